package registry

import (
	"path/filepath"
	"testing"

	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

func testID(b byte) wire.ID {
	var id wire.ID
	id[0] = b
	return id
}

func sampleContract(id wire.ID) *DataContract {
	return &DataContract{
		ID:      id,
		OwnerID: testID(1),
		Version: 1,
		DocumentTypes: map[string]DocumentType{
			"note": {
				Name:       "note",
				Properties: map[string]PropertySchema{"body": {Type: "string", MaxBytes: 4096}},
				Required:   []string{"body"},
				Indices: []Index{
					{Name: "byOwner", Properties: []string{"$ownerId"}, Unique: false},
				},
				Mutable:      true,
				CanBeDeleted: true,
			},
		},
		Tokens: []TokenConfiguration{
			{Position: 0, MaxSupply: 1_000_000, MintingAllowed: true, BurningAllowed: true},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := sampleContract(testID(7))
	encoded := EncodeContract(c)
	decoded, err := DecodeContract(encoded)
	if err != nil {
		t.Fatalf("DecodeContract: %v", err)
	}
	if decoded.ID != c.ID || decoded.OwnerID != c.OwnerID || decoded.Version != c.Version {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
	dt, ok := decoded.DocumentType("note")
	if !ok || len(dt.Indices) != 1 || dt.Indices[0].Name != "byOwner" {
		t.Fatalf("document type round trip mismatch: %+v", dt)
	}
	tok, ok := decoded.Token(0)
	if !ok || tok.MaxSupply != 1_000_000 {
		t.Fatalf("token config round trip mismatch: %+v", tok)
	}
}

func TestDecodeUnknownVersionFailsClosed(t *testing.T) {
	bad := []byte{0xFF, 0x00}
	if _, err := DecodeContract(bad); err == nil {
		t.Fatalf("expected an unknown-version error")
	}
}

func TestOverlayIsolatesUncommittedWrites(t *testing.T) {
	reg, err := NewRegistry(16)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	id := testID(9)
	fi := &FetchInfo{Contract: sampleContract(id)}

	ov := reg.BeginOverlay()
	ov.Put(id, fi)
	if _, ok := ov.Get(id); !ok {
		t.Fatalf("overlay should see its own pending write")
	}
	if _, ok := reg.Get(id); ok {
		t.Fatalf("committed cache must not see an uncommitted overlay write")
	}

	ov.Rollback()
	if _, ok := reg.Get(id); ok {
		t.Fatalf("rollback must not leak into the committed cache")
	}

	ov2 := reg.BeginOverlay()
	ov2.Put(id, fi)
	ov2.Commit()
	if _, ok := reg.Get(id); !ok {
		t.Fatalf("commit should publish the pending write")
	}
}

func TestLoadStoreRoundTripThroughStore(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "registry.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	reg, err := NewRegistry(16)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	id := testID(3)
	c := sampleContract(id)

	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	ov := reg.BeginOverlay()
	if _, err := Store(ov, tx, c, 0, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	ov.Commit()

	fresh := reg.BeginOverlay()
	fi, err := Load(fresh, s, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if fi.Contract.ID != id {
		t.Fatalf("loaded contract id mismatch: %x != %x", fi.Contract.ID, id)
	}
}

func TestLoadMissingContractNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "registry.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	reg, _ := NewRegistry(4)
	ov := reg.BeginOverlay()
	if _, err := Load(ov, s, testID(42)); err == nil {
		t.Fatalf("expected not-found error")
	}
}
