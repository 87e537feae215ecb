package testutil

import (
	"github.com/google/uuid"

	"github.com/dashpay/drive-platform/internal/wire"
)

// RandomID returns a wire.ID seeded with a fresh random UUID, for tests
// that need distinct synthetic identity/contract ids rather than the
// fixed single-byte patterns most table tests use.
func RandomID() wire.ID {
	var id wire.ID
	u := uuid.New()
	copy(id[:], u[:])
	return id
}
