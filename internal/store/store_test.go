package store

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/dashpay/drive-platform/internal/errs"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	p := Path{TagIdentities}

	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_, err = Insert(tx, nil, ModeApply, p, []byte("id1"), Element{Kind: KindItem, Item: []byte("hello")}, nil)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	el, found, err := s.Get(p, []byte("id1"))
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if string(el.Item) != "hello" {
		t.Fatalf("got %q", el.Item)
	}
}

func TestApplyBatchAtomicity(t *testing.T) {
	s := openTestStore(t)
	p := Path{TagMisc}

	rootBefore, err := s.RootHash()
	if err != nil {
		t.Fatalf("RootHash: %v", err)
	}

	ops := []PendingOp{
		{Insert: &struct {
			Path Path
			Key  []byte
			El   Element
			Hook MergeHook
		}{Path: p, Key: []byte("a"), El: Element{Kind: KindItem, Item: []byte("1")}}},
	}
	if _, err := s.ApplyBatch(ops, true); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	rootAfter, err := s.RootHash()
	if err != nil {
		t.Fatalf("RootHash: %v", err)
	}
	if rootBefore == rootAfter {
		t.Fatalf("expected root to change after a successful batch")
	}

	// A batch with a malformed op (nil) must fail entirely, leaving root
	// unchanged.
	badOps := []PendingOp{
		{Insert: &struct {
			Path Path
			Key  []byte
			El   Element
			Hook MergeHook
		}{Path: p, Key: []byte("b"), El: Element{Kind: KindItem, Item: []byte("2")}}},
		{},
	}
	if _, err := s.ApplyBatch(badOps, true); err == nil {
		t.Fatalf("expected ApplyBatch to fail on malformed op")
	}
	rootAfterBad, err := s.RootHash()
	if err != nil {
		t.Fatalf("RootHash: %v", err)
	}
	if rootAfterBad != rootAfter {
		t.Fatalf("root changed despite failed batch: %x != %x", rootAfterBad, rootAfter)
	}
}

func TestDeterminism(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	s1, _ := Open(filepath.Join(dir1, "a.db"))
	defer s1.Close()
	s2, _ := Open(filepath.Join(dir2, "b.db"))
	defer s2.Close()

	apply := func(s *Store) [32]byte {
		ops := []PendingOp{
			{Insert: &struct {
				Path Path
				Key  []byte
				El   Element
				Hook MergeHook
			}{Path: Path{TagTokens}, Key: []byte("x"), El: Element{Kind: KindItem, Item: []byte("v1")}}},
			{Insert: &struct {
				Path Path
				Key  []byte
				El   Element
				Hook MergeHook
			}{Path: Path{TagTokens}, Key: []byte("y"), El: Element{Kind: KindItem, Item: []byte("v2")}}},
		}
		if _, err := s.ApplyBatch(ops, true); err != nil {
			t.Fatalf("ApplyBatch: %v", err)
		}
		root, err := s.RootHash()
		if err != nil {
			t.Fatalf("RootHash: %v", err)
		}
		return root
	}

	r1 := apply(s1)
	r2 := apply(s2)
	if r1 != r2 {
		t.Fatalf("identical batches on identical pre-states produced different roots: %x != %x", r1, r2)
	}
}

func TestProofOfAbsence(t *testing.T) {
	s := openTestStore(t)
	p := Path{TagIdentities}
	ops := []PendingOp{
		{Insert: &struct {
			Path Path
			Key  []byte
			El   Element
			Hook MergeHook
		}{Path: p, Key: []byte("present"), El: Element{Kind: KindItem, Item: []byte("v")}}},
	}
	if _, err := s.ApplyBatch(ops, true); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	entry, err := s.ProveSubtree(p, []byte("absent"))
	if err != nil {
		t.Fatalf("ProveSubtree: %v", err)
	}
	if entry.Present {
		t.Fatalf("expected absence")
	}
	proof := &Proof{RootHash: entry.SubtreeRoot, Entries: []ProofEntry{entry}}
	if !proof.Verify() {
		t.Fatalf("genuine absence proof failed to verify")
	}

	// "absent" sorts before the only stored key, so the proof carries a
	// right neighbor at leaf 0 and no left neighbor.
	if entry.Left != nil || entry.Right == nil || entry.Right.LeafIndex != 0 {
		t.Fatalf("expected a lone right neighbor at leaf 0, got left=%v right=%v", entry.Left, entry.Right)
	}

	entryPresent, err := s.ProveSubtree(p, []byte("present"))
	if err != nil {
		t.Fatalf("ProveSubtree: %v", err)
	}
	if !entryPresent.Present {
		t.Fatalf("expected presence")
	}
	leaf := leafHash([]byte("present"), entryPresent.Value)
	if !VerifyAuditPath(leaf, entryPresent.LeafIndex, entryPresent.LeafCount, entryPresent.Siblings, entryPresent.SubtreeRoot) {
		t.Fatalf("audit path failed to verify")
	}

	// A node claiming a present key is absent has no valid bracketing to
	// offer: with no neighbors the proof must fail, and reusing the real
	// neighbors cannot bracket a key equal to one of them.
	forged := entryPresent
	forged.Present = false
	forged.Value = nil
	forged.Siblings = nil
	forgedProof := &Proof{RootHash: forged.SubtreeRoot, Entries: []ProofEntry{forged}}
	if forgedProof.Verify() {
		t.Fatalf("forged absence of a present key verified")
	}
	forged.Right = &AbsenceNeighbor{Key: []byte("present"), Value: []byte("v"), LeafIndex: 0, Siblings: nil}
	forgedProof = &Proof{RootHash: forged.SubtreeRoot, Entries: []ProofEntry{forged}}
	if forgedProof.Verify() {
		t.Fatalf("forged absence with a non-bracketing neighbor verified")
	}
}

func TestProofOfAbsenceBetweenAdjacentLeaves(t *testing.T) {
	s := openTestStore(t)
	p := Path{TagIdentities}

	tx, _ := s.Begin()
	for _, k := range []string{"alpha", "mike", "zulu"} {
		if _, err := Insert(tx, nil, ModeApply, p, []byte(k), Element{Kind: KindItem, Item: []byte("v-" + k)}, nil); err != nil {
			t.Fatalf("Insert %q: %v", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	entry, err := s.ProveSubtree(p, []byte("nova"))
	if err != nil {
		t.Fatalf("ProveSubtree: %v", err)
	}
	if entry.Present {
		t.Fatalf("expected absence")
	}
	if entry.Left == nil || entry.Right == nil {
		t.Fatalf("expected both bracketing neighbors, got left=%v right=%v", entry.Left, entry.Right)
	}
	if string(entry.Left.Key) != "mike" || string(entry.Right.Key) != "zulu" {
		t.Fatalf("wrong bracket: %q .. %q", entry.Left.Key, entry.Right.Key)
	}
	proof := &Proof{RootHash: entry.SubtreeRoot, Entries: []ProofEntry{entry}}
	if !proof.Verify() {
		t.Fatalf("absence proof between adjacent leaves failed to verify")
	}

	// Non-adjacent bracketing must fail: a prover hiding "mike" by
	// bracketing with alpha..zulu claims indices 0 and 2.
	hiding := entry
	hiding.Key = []byte("mike")
	wide, err := s.ProveSubtree(p, []byte("aaaa"))
	if err != nil {
		t.Fatalf("ProveSubtree (edge): %v", err)
	}
	hiding.Left = wide.Right // alpha at leaf 0
	if (&Proof{RootHash: hiding.SubtreeRoot, Entries: []ProofEntry{hiding}}).Verify() {
		t.Fatalf("absence proof with non-adjacent neighbors verified")
	}
}

func TestSumTreeOverflow(t *testing.T) {
	s := openTestStore(t)
	p := Path{TagPools, []byte("epoch-0")}

	tx, _ := s.Begin()
	_, err := Insert(tx, nil, ModeApply, p, []byte("a"), Element{Kind: KindSumItem, Sum: math.MaxInt64 - 1}, nil)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	tx.Commit()

	tx2, _ := s.Begin()
	_, err = Insert(tx2, nil, ModeApply, p, []byte("b"), Element{Kind: KindSumItem, Sum: 10}, nil)
	if err == nil {
		t.Fatalf("expected overflow error")
	}
	tx2.Rollback()

	agg, err := s.SumAggregate(p)
	if err != nil {
		t.Fatalf("SumAggregate: %v", err)
	}
	if agg != math.MaxInt64-1 {
		t.Fatalf("aggregate changed despite overflow rejection: %d", agg)
	}
}

func TestCheckFreshness(t *testing.T) {
	if err := CheckFreshness(100, 100, 2); err != nil {
		t.Fatalf("same height should be fresh: %v", err)
	}
	if err := CheckFreshness(100, 98, 2); err != nil {
		t.Fatalf("lag within tolerance should be fresh: %v", err)
	}
	err := CheckFreshness(100, 97, 2)
	ce, ok := err.(*errs.ConsensusError)
	if !ok || ce.Kind != errs.KindStaleNode {
		t.Fatalf("expected StaleNode, got %v", err)
	}
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
