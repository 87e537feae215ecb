package abci

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/dashpay/drive-platform/internal/epoch"
	"github.com/dashpay/drive-platform/internal/execution"
	"github.com/dashpay/drive-platform/internal/fees"
	"github.com/dashpay/drive-platform/internal/identity"
	"github.com/dashpay/drive-platform/internal/platform"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "abci.db"))
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
	return identity.Key{ID: 0, Purpose: identity.PurposeOwner, SecurityLevel: identity.SecurityMaster, Type: identity.KeyECDSASecp256k1, Data: []byte{1, 2, 3}}
}

func createTestIdentity(t *testing.T, s *store.Store, id wire.ID, balance uint64) {
	t.Helper()
	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	keys := []identity.Key{ownerKey()}
	if _, _, err := identity.Create(tx, id, balance, keys, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

type transferPayload struct {
	To     wire.ID
	Amount uint64
}

// testRegistry backs a fake Deserializer: raw bytes are just a lookup key
// into a map of pre-built transitions, standing in for the consensus
// driver's concrete wire codec.
type testRegistry struct {
	byKey map[string]*execution.Transition
}

func newTestRegistry() *testRegistry { return &testRegistry{byKey: map[string]*execution.Transition{}} }

func (r *testRegistry) put(key string, tr *execution.Transition) []byte {
	r.byKey[key] = tr
	return []byte(key)
}

func (r *testRegistry) deserialize(raw []byte) (*execution.Transition, error) {
	tr, ok := r.byKey[string(raw)]
	if !ok {
		return nil, fmt.Errorf("unknown test transition key %q", raw)
	}
	return tr, nil
}

func newTestApp(t *testing.T, s *store.Store, reg *testRegistry) *App {
	t.Helper()
	params := fees.Params{StorageCostPerByte: 1, EpochsPerEra: 20}
	verifier := func(identity.Key, []byte, []byte) (bool, error) { return true, nil }
	exec := execution.New(s, nil, params, 10, verifier, nil)
	exec.Register(execution.OpIdentityCreditTransfer, 1, func(tx *store.Transaction, tr *execution.Transition) (store.Cost, error) {
		payload := tr.Payload.(transferPayload)
		sender, err := identity.Load(tx, tr.IdentityID)
		if err != nil {
			return store.Cost{}, err
		}
		if err := sender.Debit(payload.Amount); err != nil {
			return store.Cost{}, err
		}
		if _, err := identity.Save(tx, sender, store.DefaultMergeHook(0)); err != nil {
			return store.Cost{}, err
		}
		recipient, err := identity.Load(tx, payload.To)
		if err != nil {
			return store.Cost{}, err
		}
		recipient.Credit(payload.Amount)
		if _, err := identity.Save(tx, recipient, store.DefaultMergeHook(0)); err != nil {
			return store.Cost{}, err
		}
		return store.Cost{Seeks: 1}, nil
	})
	plat := platform.New(1)
	return New(exec, plat, reg.deserialize, 576, nil)
}

func transferTransition(from, to wire.ID, nonce, amount uint64) *execution.Transition {
	return &execution.Transition{
		Operation:          execution.OpIdentityCreditTransfer,
		ProtocolVersion:    1,
		IdentityID:         from,
		Nonce:              nonce,
		RequiredKeyPurpose: identity.PurposeOwner,
		RequiredSecurity:   identity.SecurityMaster,
		Payload:            transferPayload{To: to, Amount: amount},
	}
}

func TestInitChainOpensGenesisEpoch(t *testing.T) {
	s := openTestStore(t)
	app := newTestApp(t, s, newTestRegistry())

	if err := app.InitChain(1_700_000_000_000, 900000, nil); err != nil {
		t.Fatalf("InitChain: %v", err)
	}

	tx, _ := s.Begin()
	info, err := epoch.Load(tx, 0)
	if err != nil {
		t.Fatalf("Load genesis epoch: %v", err)
	}
	oldest, err := epoch.OldestUnpaid(tx)
	tx.Rollback()
	if err != nil {
		t.Fatalf("OldestUnpaid: %v", err)
	}
	if oldest != 0 {
		t.Fatalf("expected oldest-unpaid 0, got %d", oldest)
	}
	if info.StartCoreHeight != 900000 {
		t.Fatalf("expected genesis core height 900000, got %d", info.StartCoreHeight)
	}
}

func TestPrepareProposalPartitionsAcceptedAndRejected(t *testing.T) {
	s := openTestStore(t)
	reg := newTestRegistry()
	app := newTestApp(t, s, reg)

	sender, recipient := testID(1), testID(2)
	createTestIdentity(t, s, sender, 1000)
	createTestIdentity(t, s, recipient, 0)

	goodKey := reg.put("good", transferTransition(sender, recipient, 1, 100))
	badKey := reg.put("bad-nonce", transferTransition(sender, recipient, 0, 100))

	accepted, rejected, _, err := app.PrepareProposal(BlockInfo{Height: 1, Epoch: 0}, [][]byte{goodKey, badKey})
	if err != nil {
		t.Fatalf("PrepareProposal: %v", err)
	}
	if len(accepted) != 1 || string(accepted[0]) != "good" {
		t.Fatalf("expected only the good transition accepted, got %v", accepted)
	}
	if len(rejected) != 1 || string(rejected[0]) != "bad-nonce" {
		t.Fatalf("expected the bad-nonce transition rejected, got %v", rejected)
	}

	// Validation must never mutate state.
	tx, _ := s.Begin()
	senderAfter, err := identity.Load(tx, sender)
	tx.Rollback()
	if err != nil {
		t.Fatalf("Load sender: %v", err)
	}
	if senderAfter.Balance != 1000 {
		t.Fatalf("expected prepare_proposal to leave balances untouched, got %d", senderAfter.Balance)
	}
}

func TestProcessProposalAcceptsValidRejectsInvalid(t *testing.T) {
	s := openTestStore(t)
	reg := newTestRegistry()
	app := newTestApp(t, s, reg)

	sender, recipient := testID(1), testID(2)
	createTestIdentity(t, s, sender, 1000)
	createTestIdentity(t, s, recipient, 0)

	goodKey := reg.put("good", transferTransition(sender, recipient, 1, 100))
	ok, err := app.ProcessProposal(BlockInfo{Height: 1, Epoch: 0}, [][]byte{goodKey})
	if err != nil || !ok {
		t.Fatalf("expected a valid proposal to be accepted: ok=%v err=%v", ok, err)
	}

	badKey := reg.put("bad-nonce", transferTransition(sender, recipient, 0, 100))
	ok, err = app.ProcessProposal(BlockInfo{Height: 1, Epoch: 0}, [][]byte{goodKey, badKey})
	if err != nil || ok {
		t.Fatalf("expected a proposal with an invalid transition to be rejected: ok=%v err=%v", ok, err)
	}
}

func TestFinalizeBlockSettlesEpochPoolsAndProposerCount(t *testing.T) {
	s := openTestStore(t)
	reg := newTestRegistry()
	app := newTestApp(t, s, reg)
	if err := app.InitChain(0, 0, nil); err != nil {
		t.Fatalf("InitChain: %v", err)
	}

	sender, recipient := testID(1), testID(2)
	createTestIdentity(t, s, sender, 1000)
	createTestIdentity(t, s, recipient, 0)

	proposer := testID(0xAA)
	key := reg.put("good", transferTransition(sender, recipient, 1, 100))
	results, err := app.FinalizeBlock(BlockInfo{Height: 1, Epoch: 0, ProposerProTxHash: proposer}, [][]byte{key}, nil)
	if err != nil {
		t.Fatalf("FinalizeBlock: %v", err)
	}
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("expected the transition to apply cleanly, got %+v", results)
	}

	tx, _ := s.Begin()
	info, err := epoch.Load(tx, 0)
	tx.Rollback()
	if err != nil {
		t.Fatalf("Load epoch 0: %v", err)
	}
	if info.ProcessingPool == 0 {
		t.Fatalf("expected a nonzero processing pool after settling fees")
	}
	if info.ProposerBlocks[proposer] != 1 {
		t.Fatalf("expected proposer block count 1, got %d", info.ProposerBlocks[proposer])
	}
}
