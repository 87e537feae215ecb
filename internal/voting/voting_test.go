package voting

import (
	"path/filepath"
	"testing"

	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/testutil"
	"github.com/dashpay/drive-platform/internal/wire"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "voting.db"))
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

func TestStartOrJoinThenAwardHighestTally(t *testing.T) {
	s := openTestStore(t)
	contract := testID(1)

	tx, _ := s.Begin()
	docA := testID(10)
	docB := testID(11)
	p, _, err := StartOrJoin(tx, contract, "note", "byLabel", []byte("alice"), 100, 200,
		Contender{DocumentID: docA, OwnerID: testID(20), LockedCredits: 1000})
	if err != nil {
		t.Fatalf("StartOrJoin (A): %v", err)
	}
	p, _, err = StartOrJoin(tx, contract, "note", "byLabel", []byte("alice"), 100, 200,
		Contender{DocumentID: docB, OwnerID: testID(21), LockedCredits: 1000})
	if err != nil {
		t.Fatalf("StartOrJoin (B): %v", err)
	}
	if len(p.Contenders) != 2 {
		t.Fatalf("expected 2 contenders, got %d", len(p.Contenders))
	}

	voters := []wire.ID{testutil.RandomID(), testutil.RandomID(), testutil.RandomID()}
	for _, v := range voters {
		if _, err := CastVote(tx, p, v, docA); err != nil {
			t.Fatalf("CastVote: %v", err)
		}
	}
	if _, err := CastVote(tx, p, testutil.RandomID(), docB); err != nil {
		t.Fatalf("CastVote (B): %v", err)
	}

	if _, err := Finalize(tx, p, 3); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if p.Status != Awarded || p.AwardedTo != testID(20) {
		t.Fatalf("expected poll awarded to docA's owner, got status=%v awarded=%v", p.Status, p.AwardedTo)
	}
}

func TestRevoteDoesNotDoubleCountTally(t *testing.T) {
	s := openTestStore(t)
	contract := testID(1)

	tx, _ := s.Begin()
	docA := testID(10)
	p, _, err := StartOrJoin(tx, contract, "note", "byLabel", []byte("bob"), 0, 100,
		Contender{DocumentID: docA, OwnerID: testID(20)})
	if err != nil {
		t.Fatalf("StartOrJoin: %v", err)
	}

	voter := testID(40)
	if _, err := CastVote(tx, p, voter, docA); err != nil {
		t.Fatalf("CastVote first: %v", err)
	}
	if _, err := CastVote(tx, p, voter, docA); err != nil {
		t.Fatalf("CastVote repeat: %v", err)
	}
	tx.Rollback()

	if p.Contenders[0].Tally != 1 {
		t.Fatalf("expected tally of 1 after resubmitting the same vote, got %d", p.Contenders[0].Tally)
	}
}

func TestVoteChangeMovesTallyBetweenChoices(t *testing.T) {
	s := openTestStore(t)
	contract := testID(1)

	tx, _ := s.Begin()
	docA := testID(10)
	docB := testID(11)
	p, _, err := StartOrJoin(tx, contract, "note", "byLabel", []byte("carol"), 0, 100,
		Contender{DocumentID: docA, OwnerID: testID(20)})
	if err != nil {
		t.Fatalf("StartOrJoin: %v", err)
	}
	if _, _, err := StartOrJoin(tx, contract, "note", "byLabel", []byte("carol"), 0, 100,
		Contender{DocumentID: docB, OwnerID: testID(21)}); err != nil {
		t.Fatalf("StartOrJoin (B): %v", err)
	}

	voter := testID(40)
	if _, err := CastVote(tx, p, voter, docA); err != nil {
		t.Fatalf("CastVote A: %v", err)
	}
	if _, err := CastVote(tx, p, voter, docB); err != nil {
		t.Fatalf("CastVote B: %v", err)
	}
	tx.Rollback()

	if p.Contenders[0].Tally != 0 || p.Contenders[1].Tally != 1 {
		t.Fatalf("expected tally to move from A to B, got A=%d B=%d", p.Contenders[0].Tally, p.Contenders[1].Tally)
	}
}

func TestFinalizeLocksWhenLockTallyDominates(t *testing.T) {
	s := openTestStore(t)
	contract := testID(1)

	tx, _ := s.Begin()
	docA := testID(10)
	p, _, err := StartOrJoin(tx, contract, "note", "byLabel", []byte("dave"), 0, 100,
		Contender{DocumentID: docA, OwnerID: testID(20)})
	if err != nil {
		t.Fatalf("StartOrJoin: %v", err)
	}
	if _, err := CastVote(tx, p, testID(50), docA); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if _, err := CastVote(tx, p, testID(51), LockChoice()); err != nil {
		t.Fatalf("CastVote lock 1: %v", err)
	}
	if _, err := CastVote(tx, p, testID(52), LockChoice()); err != nil {
		t.Fatalf("CastVote lock 2: %v", err)
	}
	if _, err := Finalize(tx, p, 3); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	tx.Rollback()

	if p.Status != Locked || p.LockCount != 1 {
		t.Fatalf("expected poll locked once, got status=%v lockCount=%d", p.Status, p.LockCount)
	}
}

func TestPrefundedBalanceConsumptionAndResidualBurn(t *testing.T) {
	s := openTestStore(t)
	contract := testID(1)

	tx, _ := s.Begin()
	docA := testID(10)
	p, _, err := StartOrJoin(tx, contract, "note", "byLabel", []byte("erin"), 0, 100,
		Contender{DocumentID: docA, OwnerID: testID(20)})
	if err != nil {
		t.Fatalf("StartOrJoin: %v", err)
	}
	if _, err := FundPoll(tx, p, 500); err != nil {
		t.Fatalf("FundPoll: %v", err)
	}
	shortfall, _, err := ConsumeForVoteStorage(tx, p, 200)
	if err != nil {
		t.Fatalf("ConsumeForVoteStorage: %v", err)
	}
	if shortfall != 0 {
		t.Fatalf("expected no shortfall, got %d", shortfall)
	}
	shortfall, _, err = ConsumeForVoteStorage(tx, p, 400)
	if err != nil {
		t.Fatalf("ConsumeForVoteStorage (2): %v", err)
	}
	if shortfall != 100 {
		t.Fatalf("expected shortfall of 100 (300 remaining vs 400 cost), got %d", shortfall)
	}

	burned, _, err := BurnResidual(tx, p)
	if err != nil {
		t.Fatalf("BurnResidual: %v", err)
	}
	if burned != 0 {
		t.Fatalf("expected nothing left to burn after full consumption, got %d", burned)
	}
	tx.Rollback()
}
