// Package identity implements the identity subsystem: balance, revision,
// key bookkeeping, asset-lock proof consumption, and the nonce
// sliding-bitset acceptance algorithm.
package identity

import (
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// KeyPurpose enumerates the roles a public key may be used for.
type KeyPurpose int

const (
	PurposeAuthentication KeyPurpose = iota
	PurposeEncryption
	PurposeDecryption
	PurposeWithdraw
	PurposeVoting
	PurposeOwner
)

// SecurityLevel orders how sensitive an operation must be to require a key
// of at least that level.
type SecurityLevel int

const (
	SecurityMaster SecurityLevel = iota
	SecurityCritical
	SecurityHigh
	SecurityMedium
)

// KeyType identifies the signature scheme a key uses.
type KeyType int

const (
	KeyECDSASecp256k1 KeyType = iota
	KeyBLS12381
	KeyECDSAHash160
	KeyEdDSA25519
)

// Key is one entry in an identity's key map.
type Key struct {
	ID            uint32
	Purpose       KeyPurpose
	SecurityLevel SecurityLevel
	Type          KeyType
	Data          []byte
	DisabledAt    uint64 // milliseconds; 0 = never disabled
	// ContractBound restricts the key to signing transitions for one
	// contract only; nil means usable platform-wide.
	ContractBound *wire.ID
}

func (k Key) Disabled() bool { return k.DisabledAt != 0 }

// Identity is the in-memory projection of an identity's state.
type Identity struct {
	ID       wire.ID
	Balance  uint64
	Revision uint64
	Keys     map[uint32]Key
	Nonce    uint64 // see nonce.go for the tip/bitset layout
	// ContractNonces tracks the per-(identity,contract) nonce used by
	// document/token batch transitions scoped to one contract.
	ContractNonces map[wire.ID]uint64
}

func (id *Identity) activeKey(keyID uint32) (Key, bool) {
	k, ok := id.Keys[keyID]
	if !ok || k.Disabled() {
		return Key{}, false
	}
	return k, true
}

// ResolveSigningKey looks up a key by id and checks it is active, of a
// security level at least as strong as required, has the expected purpose,
// and — if contract-bound — is bound to the given contract.
func (id *Identity) ResolveSigningKey(keyID uint32, wantPurpose KeyPurpose, minSecurity SecurityLevel, contract *wire.ID) (Key, error) {
	k, ok := id.activeKey(keyID)
	if !ok {
		return Key{}, errs.New(errs.KindSignature, 4601, "signing key not found or disabled", map[string]any{"key_id": keyID})
	}
	if k.Purpose != wantPurpose {
		return Key{}, errs.New(errs.KindAuthorization, 4602, "key purpose does not match required purpose",
			map[string]any{"key_id": keyID, "purpose": k.Purpose, "required": wantPurpose})
	}
	// Lower SecurityLevel constants are stronger (Master=0 is the strongest).
	if k.SecurityLevel > minSecurity {
		return Key{}, errs.New(errs.KindAuthorization, 4603, "key security level is too weak for this operation",
			map[string]any{"key_id": keyID, "level": k.SecurityLevel, "required": minSecurity})
	}
	if k.ContractBound != nil {
		if contract == nil || *k.ContractBound != *contract {
			return Key{}, errs.New(errs.KindAuthorization, 4604, "contract-bound key used outside its bound contract",
				map[string]any{"key_id": keyID})
		}
	}
	return k, nil
}

// IdentityPath is the store path an identity's own element lives under.
func IdentityPath() store.Path { return store.Path{store.TagIdentities} }

// PublicKeyHashPath is the store path unique public-key-hash -> identity id
// lives under.
func PublicKeyHashPath() store.Path { return store.Path{store.TagPublicKeyHashesToIdentities} }

// NonUniquePublicKeyHashPath is the store path non-unique public-key-hash ->
// set of identity ids lives under.
func NonUniquePublicKeyHashPath() store.Path {
	return store.Path{store.TagNonUniquePublicKeyHashesToIdentities}
}
