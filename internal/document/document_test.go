package document

import (
	"path/filepath"
	"testing"

	"github.com/dashpay/drive-platform/internal/registry"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "doc.db"))
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

func noteType(unique, contested bool) registry.DocumentType {
	return registry.DocumentType{
		Name:       "note",
		Properties: map[string]registry.PropertySchema{"label": {Type: "string"}},
		Indices: []registry.Index{
			{Name: "byLabel", Properties: []string{"label"}, Unique: unique, Contested: contested},
		},
		Mutable:              true,
		CanBeDeleted:         true,
		DocumentsKeepHistory: true,
	}
}

func TestCreateEnforcesUniqueIndex(t *testing.T) {
	s := openTestStore(t)
	contract := testID(1)
	dt := noteType(true, false)

	tx, _ := s.Begin()
	docA := &Document{ID: testID(10), OwnerID: testID(2), Properties: map[string]any{"label": "alice"}}
	if _, _, err := Create(tx, contract, dt, docA, BlockInfo{TimeMs: 100, Height: 1}); err != nil {
		t.Fatalf("Create A: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, _ := s.Begin()
	docB := &Document{ID: testID(11), OwnerID: testID(3), Properties: map[string]any{"label": "alice"}}
	if _, _, err := Create(tx2, contract, dt, docB, BlockInfo{TimeMs: 200, Height: 2}); err == nil {
		t.Fatalf("expected DuplicateUniqueIndex for conflicting unique, non-contested index")
	}
	tx2.Rollback()
}

func TestCreateContestedIndexRoutesInsteadOfRejecting(t *testing.T) {
	s := openTestStore(t)
	contract := testID(1)
	dt := noteType(true, true)

	tx, _ := s.Begin()
	docA := &Document{ID: testID(10), OwnerID: testID(2), Properties: map[string]any{"label": "alice"}}
	resultsA, _, err := Create(tx, contract, dt, docA, BlockInfo{TimeMs: 100, Height: 1})
	if err != nil {
		t.Fatalf("Create A: %v", err)
	}
	if len(resultsA) != 1 || resultsA[0].Resolution != RouteToVoting || resultsA[0].ExistingID != (wire.ID{}) {
		t.Fatalf("expected the first contested create to route to voting with no prior claimant, got %+v", resultsA)
	}
	if len(resultsA[0].IndexKey) == 0 {
		t.Fatalf("expected the routed result to carry the index key tuple")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, _ := s.Begin()
	docB := &Document{ID: testID(11), OwnerID: testID(3), Properties: map[string]any{"label": "alice"}}
	results, _, err := Create(tx2, contract, dt, docB, BlockInfo{TimeMs: 200, Height: 2})
	if err != nil {
		t.Fatalf("expected contested create to succeed, got %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(results) != 1 || results[0].Resolution != RouteToVoting || results[0].ExistingID != docA.ID {
		t.Fatalf("expected a RouteToVoting result naming the prior claimant, got %+v", results)
	}

	// The prior claimant keeps the index entry while the poll is open; B's
	// create must not clobber it.
	tx3, _ := s.Begin()
	el, found, err := tx3.Get(indexPath(contract, dt.Name, "byLabel"), results[0].IndexKey)
	if err != nil || !found {
		t.Fatalf("index entry missing after contested create: found=%v err=%v", found, err)
	}
	var holder wire.ID
	copy(holder[:], el.Item)
	if holder != docA.ID {
		t.Fatalf("contested index entry was overwritten: held by %x, want %x", holder, docA.ID)
	}

	// Poll resolution moves the entry to the winner and removes the loser.
	if _, err := SetIndexEntry(tx3, contract, dt.Name, "byLabel", results[0].IndexKey, docB.ID, docB.OwnerID, 0); err != nil {
		t.Fatalf("SetIndexEntry: %v", err)
	}
	if _, err := RemoveRejected(tx3, contract, dt.Name, docA.ID); err != nil {
		t.Fatalf("RemoveRejected: %v", err)
	}
	el, found, err = tx3.Get(indexPath(contract, dt.Name, "byLabel"), results[0].IndexKey)
	if err != nil || !found {
		t.Fatalf("index entry missing after award: found=%v err=%v", found, err)
	}
	copy(holder[:], el.Item)
	if holder != docB.ID {
		t.Fatalf("award did not move the index entry: held by %x, want %x", holder, docB.ID)
	}
	if _, err := Load(tx3, contract, dt.Name, docA.ID); err == nil {
		t.Fatalf("expected the rejected document to be removed")
	}
	tx3.Rollback()
}

func TestReplaceRequiresExactRevisionBump(t *testing.T) {
	s := openTestStore(t)
	contract := testID(1)
	dt := noteType(false, false)

	tx, _ := s.Begin()
	doc := &Document{ID: testID(20), OwnerID: testID(2), Properties: map[string]any{"label": "x"}}
	if _, _, err := Create(tx, contract, dt, doc, BlockInfo{TimeMs: 100, Height: 1}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, _ := s.Begin()
	updated := &Document{ID: testID(20), Properties: map[string]any{"label": "y"}}
	if _, _, err := Replace(tx2, contract, dt, updated, 5, BlockInfo{TimeMs: 200, Height: 2}); err == nil {
		t.Fatalf("expected replace with wrong expected revision to fail")
	}
	tx2.Rollback()

	tx3, _ := s.Begin()
	if _, _, err := Replace(tx3, contract, dt, updated, 1, BlockInfo{TimeMs: 200, Height: 2}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := tx3.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx4, _ := s.Begin()
	loaded, err := Load(tx4, contract, "note", testID(20))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tx4.Rollback()
	if loaded.Revision != 2 || loaded.Properties["label"] != "y" {
		t.Fatalf("replace did not persist: %+v", loaded)
	}
}

func TestPurchaseMovesOwnershipAndClearsPrice(t *testing.T) {
	s := openTestStore(t)
	contract := testID(1)
	dt := noteType(false, false)

	tx, _ := s.Begin()
	seller := testID(2)
	doc := &Document{ID: testID(30), OwnerID: seller, Properties: map[string]any{"label": "z"}}
	if _, _, err := Create(tx, contract, dt, doc, BlockInfo{TimeMs: 100, Height: 1}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, _ := s.Begin()
	if _, err := SetPrice(tx2, contract, dt, testID(30), 500, 0); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx3, _ := s.Begin()
	buyer := testID(3)
	result, _, err := Purchase(tx3, contract, dt, testID(30), buyer, BlockInfo{TimeMs: 300, Height: 3})
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if err := tx3.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if result.SellerID != seller || result.PriceCharged != 500 {
		t.Fatalf("unexpected purchase result: %+v", result)
	}

	tx4, _ := s.Begin()
	loaded, err := Load(tx4, contract, "note", testID(30))
	tx4.Rollback()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.OwnerID != buyer || loaded.Price != 0 {
		t.Fatalf("purchase did not update ownership/price: %+v", loaded)
	}
}

func TestDeleteRejectedWhenNotAllowed(t *testing.T) {
	s := openTestStore(t)
	contract := testID(1)
	dt := noteType(false, false)
	dt.CanBeDeleted = false

	tx, _ := s.Begin()
	doc := &Document{ID: testID(40), OwnerID: testID(2), Properties: map[string]any{"label": "w"}}
	if _, _, err := Create(tx, contract, dt, doc, BlockInfo{TimeMs: 100, Height: 1}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, _ := s.Begin()
	if _, err := Delete(tx2, contract, dt, testID(40)); err == nil {
		t.Fatalf("expected delete to be rejected for non-deletable document type")
	}
	tx2.Rollback()
}
