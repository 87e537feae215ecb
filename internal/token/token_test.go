package token

import (
	"path/filepath"
	"testing"

	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/identity"
	"github.com/dashpay/drive-platform/internal/registry"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "token.db"))
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

func sampleContract(owner wire.ID) *registry.DataContract {
	return &registry.DataContract{
		ID:      testID(99),
		OwnerID: owner,
		Tokens: []registry.TokenConfiguration{
			{Position: 0, MaxSupply: 1000, MintingAllowed: true, BurningAllowed: true, FreezingAllowed: true, DestroyFrozenAllowed: true, DirectPurchaseEnabled: true},
		},
	}
}

func TestMintRejectsOverMaxSupply(t *testing.T) {
	s := openTestStore(t)
	owner := testID(1)
	contract := sampleContract(owner)
	cfg := contract.Tokens[0]

	tx, _ := s.Begin()
	if _, err := Mint(tx, contract, cfg, owner, testID(2), 999, 100, 0); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, _ := s.Begin()
	_, err := Mint(tx2, contract, cfg, owner, testID(2), 2, 200, 0)
	ce, ok := err.(*errs.ConsensusError)
	if !ok || ce.Kind != errs.KindTokenMintPastMaxSupply {
		t.Fatalf("expected TokenMintPastMaxSupply, got %v", err)
	}
	tx2.Rollback()

	tx3, _ := s.Begin()
	if _, err := Mint(tx3, contract, cfg, owner, testID(2), 1, 300, 0); err != nil {
		t.Fatalf("mint exactly to max supply should succeed: %v", err)
	}
	if err := tx3.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestMintRejectsUnauthorizedSigner(t *testing.T) {
	s := openTestStore(t)
	owner := testID(1)
	contract := sampleContract(owner)
	cfg := contract.Tokens[0]

	tx, _ := s.Begin()
	if _, err := Mint(tx, contract, cfg, testID(5), testID(2), 10, 0, 0); err == nil {
		t.Fatalf("expected mint from non-owner signer to be rejected")
	}
	tx.Rollback()
}

func TestBurnReducesSupplyAndBalance(t *testing.T) {
	s := openTestStore(t)
	owner := testID(1)
	contract := sampleContract(owner)
	cfg := contract.Tokens[0]

	tx, _ := s.Begin()
	holder := testID(2)
	if _, err := Mint(tx, contract, cfg, owner, holder, 500, 0, 0); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := Burn(tx, contract, cfg, owner, holder, 200, 0, 0); err != nil {
		t.Fatalf("Burn: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, _ := s.Begin()
	bal, err := BalanceOf(tx2, contract.ID, cfg.Position, holder)
	tx2.Rollback()
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if bal.Amount != 300 {
		t.Fatalf("expected balance 300 after burn, got %d", bal.Amount)
	}
}

func TestFreezeUnfreezeRoundTrip(t *testing.T) {
	s := openTestStore(t)
	owner := testID(1)
	contract := sampleContract(owner)
	cfg := contract.Tokens[0]
	holder := testID(2)

	tx, _ := s.Begin()
	if _, err := Mint(tx, contract, cfg, owner, holder, 100, 0, 0); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := Freeze(tx, contract, cfg, owner, holder, 40, 0); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, _ := s.Begin()
	bal, err := BalanceOf(tx2, contract.ID, cfg.Position, holder)
	tx2.Rollback()
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if bal.Amount != 60 || bal.Frozen != 40 {
		t.Fatalf("unexpected balance after freeze: %+v", bal)
	}

	tx3, _ := s.Begin()
	if _, err := Unfreeze(tx3, contract, cfg, owner, holder, 40, 0); err != nil {
		t.Fatalf("Unfreeze: %v", err)
	}
	if err := tx3.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx4, _ := s.Begin()
	bal2, err := BalanceOf(tx4, contract.ID, cfg.Position, holder)
	tx4.Rollback()
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if bal2.Amount != 100 || bal2.Frozen != 0 {
		t.Fatalf("unexpected balance after unfreeze: %+v", bal2)
	}
}

func TestTransferRejectsNonexistentRecipient(t *testing.T) {
	s := openTestStore(t)
	owner := testID(1)
	contract := sampleContract(owner)
	cfg := contract.Tokens[0]
	holder := testID(2)

	tx, _ := s.Begin()
	if _, err := Mint(tx, contract, cfg, owner, holder, 100, 0, 0); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, _ := s.Begin()
	if _, err := Transfer(tx2, contract, cfg, holder, testID(77), 10, 0, 0); err == nil {
		t.Fatalf("expected transfer to a non-existent identity to fail")
	}
	tx2.Rollback()
}

func TestTransferToExistingIdentitySucceeds(t *testing.T) {
	s := openTestStore(t)
	owner := testID(1)
	contract := sampleContract(owner)
	cfg := contract.Tokens[0]
	holder := testID(2)
	recipient := testID(3)

	tx, _ := s.Begin()
	if _, _, err := identity.Create(tx, recipient, 0, nil, 0); err != nil {
		t.Fatalf("identity.Create: %v", err)
	}
	if _, err := Mint(tx, contract, cfg, owner, holder, 100, 0, 0); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, _ := s.Begin()
	if _, err := Transfer(tx2, contract, cfg, holder, recipient, 30, 0, 0); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx3, _ := s.Begin()
	fromBal, _ := BalanceOf(tx3, contract.ID, cfg.Position, holder)
	toBal, _ := BalanceOf(tx3, contract.ID, cfg.Position, recipient)
	tx3.Rollback()
	if fromBal.Amount != 70 || toBal.Amount != 30 {
		t.Fatalf("unexpected post-transfer balances: from=%+v to=%+v", fromBal, toBal)
	}
}

func TestGroupActionRequiresThresholdPower(t *testing.T) {
	s := openTestStore(t)
	owner := testID(1)
	contract := sampleContract(owner)
	signerA := testID(10)
	signerB := testID(11)
	contract.MainGroupName = "council"
	contract.Groups = map[string]registry.Group{
		"council": {Members: map[wire.ID]uint32{signerA: 1, signerB: 1}, RequiredPower: 2},
	}
	cfg := contract.Tokens[0]
	cfg.ChangeControlRules = map[string]registry.ChangeControlRule{
		"mint": {Actor: registry.ActorMainGroup},
	}

	tx, _ := s.Begin()
	rule := ruleFor(cfg, "mint")
	ok, _, err := authorizeGroupAction(tx, contract, rule, cfg.Position, "mint", []byte("action-1"), signerA, 0)
	if err != nil {
		t.Fatalf("authorizeGroupAction (signerA): %v", err)
	}
	if ok {
		t.Fatalf("expected single signer below threshold to not authorize yet")
	}
	ok, _, err = authorizeGroupAction(tx, contract, rule, cfg.Position, "mint", []byte("action-1"), signerB, 0)
	if err != nil {
		t.Fatalf("authorizeGroupAction (signerB): %v", err)
	}
	if !ok {
		t.Fatalf("expected combined signer power to cross threshold")
	}
	// Crossing the threshold consumed the pending record: a new signature
	// on the same action id starts a fresh accumulation from zero rather
	// than riding the already-executed action's power.
	ok, _, err = authorizeGroupAction(tx, contract, rule, cfg.Position, "mint", []byte("action-1"), signerA, 0)
	if err != nil {
		t.Fatalf("authorizeGroupAction (signerA again): %v", err)
	}
	if ok {
		t.Fatalf("expected the executed action to be consumed, not re-authorized")
	}
	tx.Rollback()
}

func TestGroupGatedMintExecutesOnlyAtThreshold(t *testing.T) {
	s := openTestStore(t)
	owner := testID(1)
	contract := sampleContract(owner)
	signerA := testID(10)
	signerB := testID(11)
	contract.MainGroupName = "council"
	contract.Groups = map[string]registry.Group{
		"council": {Members: map[wire.ID]uint32{signerA: 1, signerB: 1}, RequiredPower: 2},
	}
	cfg := contract.Tokens[0]
	cfg.ChangeControlRules = map[string]registry.ChangeControlRule{
		"mint": {Actor: registry.ActorMainGroup},
	}
	recipient := testID(2)

	tx, _ := s.Begin()
	if _, err := Mint(tx, contract, cfg, signerA, recipient, 100, 50, 0); err != nil {
		t.Fatalf("Mint (signerA): %v", err)
	}
	bal, _ := BalanceOf(tx, contract.ID, cfg.Position, recipient)
	if bal.Amount != 0 {
		t.Fatalf("a single group signature below threshold must not mint, got balance %d", bal.Amount)
	}

	if _, err := Mint(tx, contract, cfg, signerB, recipient, 100, 60, 0); err != nil {
		t.Fatalf("Mint (signerB): %v", err)
	}
	bal, _ = BalanceOf(tx, contract.ID, cfg.Position, recipient)
	if bal.Amount != 100 {
		t.Fatalf("expected the threshold-crossing signature to execute the mint, got balance %d", bal.Amount)
	}

	// A different amount is a different pending action, not a top-up of
	// the finished one.
	if _, err := Mint(tx, contract, cfg, signerA, recipient, 7, 70, 0); err != nil {
		t.Fatalf("Mint (signerA, new amount): %v", err)
	}
	bal, _ = BalanceOf(tx, contract.ID, cfg.Position, recipient)
	if bal.Amount != 100 {
		t.Fatalf("a fresh group action must start from zero power, got balance %d", bal.Amount)
	}

	// A non-member can never contribute power.
	if _, err := Mint(tx, contract, cfg, testID(66), recipient, 100, 80, 0); err == nil {
		t.Fatalf("expected a non-member signer to be rejected")
	}
	tx.Rollback()
}

func TestDirectPurchaseChargesConfiguredPrice(t *testing.T) {
	s := openTestStore(t)
	owner := testID(1)
	contract := sampleContract(owner)
	cfg := contract.Tokens[0]
	buyer := testID(4)

	tx, _ := s.Begin()
	if _, err := SetDirectPurchasePrice(tx, contract, cfg, owner, 5, 0); err != nil {
		t.Fatalf("SetDirectPurchasePrice: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, _ := s.Begin()
	result, _, err := DirectPurchase(tx2, contract, cfg, buyer, 10, 0, 0)
	if err != nil {
		t.Fatalf("DirectPurchase: %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if result.TotalCost != 50 {
		t.Fatalf("expected total cost 50, got %d", result.TotalCost)
	}

	tx3, _ := s.Begin()
	bal, _ := BalanceOf(tx3, contract.ID, cfg.Position, buyer)
	tx3.Rollback()
	if bal.Amount != 10 {
		t.Fatalf("expected buyer balance 10, got %d", bal.Amount)
	}
}

func TestEmergencyActionPauseRequiresAuthorization(t *testing.T) {
	s := openTestStore(t)
	owner := testID(1)
	contract := sampleContract(owner)
	cfg := contract.Tokens[0]

	tx, _ := s.Begin()
	if _, err := EmergencyAction(tx, contract, cfg, testID(66), true, 0); err == nil {
		t.Fatalf("expected unauthorized signer to be rejected")
	}
	if _, err := EmergencyAction(tx, contract, cfg, owner, true, 0); err != nil {
		t.Fatalf("EmergencyAction: %v", err)
	}
	paused, err := Paused(tx, contract.ID, cfg.Position)
	tx.Rollback()
	if err != nil {
		t.Fatalf("Paused: %v", err)
	}
	if !paused {
		t.Fatalf("expected token to be paused")
	}
}
