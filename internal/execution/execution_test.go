package execution

import (
	"path/filepath"
	"testing"

	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/fees"
	"github.com/dashpay/drive-platform/internal/identity"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "execution.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testID(b byte) wire.ID {
	var id wire.ID
	id[0] = b
	return id
}

func ownerKey() identity.Key {
	return identity.Key{ID: 0, Purpose: identity.PurposeOwner, SecurityLevel: identity.SecurityMaster, Type: identity.KeyECDSASecp256k1, Data: []byte{9, 9, 9}}
}

func newTestExecutor(t *testing.T, s *store.Store) *Executor {
	t.Helper()
	params := fees.Params{StorageCostPerByte: 1, EpochsPerEra: 20, CurrentEpochInEra: 0}
	verifier := func(key identity.Key, message, signature []byte) (bool, error) { return true, nil }
	return New(s, nil, params, 10, verifier, nil)
}

// creditTransferPayload is a minimal test stand-in for a batch document/
// token payload — Transition.Payload is operation-specific and each
// registered ActionFunc knows which concrete type to expect.
type creditTransferPayload struct {
	To     wire.ID
	Amount uint64
}

// registerTestTransfer wires a trivial credit-transfer action: debit the
// sender, credit the recipient, directly against the transaction it is
// handed — exactly the "check then write" discipline Execute relies on
// to treat a returned error as a clean no-op. version 1 reports a cheap
// cost (no storage bytes) for the happy-path tests; version 2 reports a
// cost with enough storage-added bytes to exceed a modest balance, for
// exercising the insufficient-storage penalty path.
func registerTestTransfer(e *Executor) {
	fn := func(storageAddedBytes uint64) ActionFunc {
		return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
			payload := tr.Payload.(creditTransferPayload)
			sender, err := identity.Load(t, tr.IdentityID)
			if err != nil {
				return store.Cost{}, err
			}
			if err := sender.Debit(payload.Amount); err != nil {
				return store.Cost{}, err
			}
			if _, err := identity.Save(t, sender, store.DefaultMergeHook(0)); err != nil {
				return store.Cost{}, err
			}
			recipient, err := identity.Load(t, payload.To)
			if err != nil {
				return store.Cost{}, err
			}
			recipient.Credit(payload.Amount)
			if _, err := identity.Save(t, recipient, store.DefaultMergeHook(0)); err != nil {
				return store.Cost{}, err
			}
			return store.Cost{Seeks: 1, StorageAddedBytes: storageAddedBytes}, nil
		}
	}
	e.Register(OpIdentityCreditTransfer, 1, fn(0))
	e.Register(OpIdentityCreditTransfer, 2, fn(100))
}

func createTestIdentity(t *testing.T, s *store.Store, id wire.ID, balance uint64) {
	t.Helper()
	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	keys := []identity.Key{ownerKey()}
	if err := identity.ValidatePublicKeys(keys, true); err != nil {
		t.Fatalf("ValidatePublicKeys: %v", err)
	}
	if _, _, err := identity.Create(tx, id, balance, keys, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func baseTransfer(from, to wire.ID, nonce, amount uint64) *Transition {
	return &Transition{
		Operation:          OpIdentityCreditTransfer,
		ProtocolVersion:    1,
		IdentityID:         from,
		Nonce:              nonce,
		SignatureKeyID:     0,
		RequiredKeyPurpose: identity.PurposeOwner,
		RequiredSecurity:   identity.SecurityMaster,
		Payload:            creditTransferPayload{To: to, Amount: amount},
	}
}

func TestExecuteSuccessDebitsFeeAndBumpsNonce(t *testing.T) {
	s := openTestStore(t)
	e := newTestExecutor(t, s)
	registerTestTransfer(e)

	sender, recipient := testID(1), testID(2)
	createTestIdentity(t, s, sender, 1000)
	createTestIdentity(t, s, recipient, 0)

	result, err := e.Execute(baseTransfer(sender, recipient, 1, 100))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Accepted || result.Penalized {
		t.Fatalf("expected accepted, got %+v", result)
	}

	tx, _ := s.Begin()
	senderAfter, err := identity.Load(tx, sender)
	if err != nil {
		t.Fatalf("Load sender: %v", err)
	}
	recipientAfter, err := identity.Load(tx, recipient)
	if err != nil {
		t.Fatalf("Load recipient: %v", err)
	}
	tx.Rollback()

	wantSenderBalance := 1000 - 100 - result.FeeResult.Total()
	if senderAfter.Balance != wantSenderBalance {
		t.Fatalf("expected sender balance %d, got %d", wantSenderBalance, senderAfter.Balance)
	}
	if recipientAfter.Balance != 100 {
		t.Fatalf("expected recipient balance 100, got %d", recipientAfter.Balance)
	}
	if identity.Tip(senderAfter.Nonce) != 1 {
		t.Fatalf("expected nonce tip 1, got %d", identity.Tip(senderAfter.Nonce))
	}
}

func TestExecuteRejectsNonceZero(t *testing.T) {
	s := openTestStore(t)
	e := newTestExecutor(t, s)
	registerTestTransfer(e)

	sender, recipient := testID(1), testID(2)
	createTestIdentity(t, s, sender, 1000)
	createTestIdentity(t, s, recipient, 0)

	if _, err := e.Execute(baseTransfer(sender, recipient, 0, 100)); err == nil {
		t.Fatalf("expected nonce zero to be rejected")
	}

	tx, _ := s.Begin()
	senderAfter, err := identity.Load(tx, sender)
	if err != nil {
		t.Fatalf("Load sender: %v", err)
	}
	tx.Rollback()
	if senderAfter.Balance != 1000 {
		t.Fatalf("expected no state change on nonce rejection, got balance %d", senderAfter.Balance)
	}
}

func TestExecuteInsufficientBalanceChargesPenaltyAndBumpsNonce(t *testing.T) {
	s := openTestStore(t)
	e := newTestExecutor(t, s)
	registerTestTransfer(e)

	sender, recipient := testID(1), testID(2)
	// Balance covers the transfer amount and the processing fee, but not
	// the storage fee this (version-2) action's cost reports, so the
	// action itself succeeds before the balance check downgrades the
	// outcome to a penalty.
	createTestIdentity(t, s, sender, 100)
	createTestIdentity(t, s, recipient, 0)

	tr := baseTransfer(sender, recipient, 1, 50)
	tr.ProtocolVersion = 2
	result, err := e.Execute(tr)
	if err == nil {
		t.Fatalf("expected an error for the penalized outcome")
	}
	if !result.Penalized {
		t.Fatalf("expected penalized result, got %+v", result)
	}

	tx, _ := s.Begin()
	senderAfter, err := identity.Load(tx, sender)
	if err != nil {
		t.Fatalf("Load sender: %v", err)
	}
	recipientAfter, err := identity.Load(tx, recipient)
	if err != nil {
		t.Fatalf("Load recipient: %v", err)
	}
	tx.Rollback()

	if recipientAfter.Balance != 0 {
		t.Fatalf("expected the speculative transfer to be abandoned, got recipient balance %d", recipientAfter.Balance)
	}
	if senderAfter.Balance != 90 {
		t.Fatalf("expected sender balance reduced by the 10-credit penalty only, got %d", senderAfter.Balance)
	}
	if identity.Tip(senderAfter.Nonce) != 1 {
		t.Fatalf("expected nonce bumped to 1 despite the penalty, got %d", identity.Tip(senderAfter.Nonce))
	}
}

func TestExecuteUnsupportedVersionRejected(t *testing.T) {
	s := openTestStore(t)
	e := newTestExecutor(t, s)
	registerTestTransfer(e)

	sender := testID(1)
	createTestIdentity(t, s, sender, 1000)

	tr := baseTransfer(sender, testID(2), 1, 10)
	tr.ProtocolVersion = 99
	_, err := e.Execute(tr)
	ce, ok := err.(*errs.ConsensusError)
	if !ok || ce.Kind != errs.KindProtocolVersion {
		t.Fatalf("expected a ProtocolVersion rejection, got %v", err)
	}
}
