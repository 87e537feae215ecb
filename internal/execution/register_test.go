package execution

import (
	"testing"

	"github.com/dashpay/drive-platform/internal/document"
	"github.com/dashpay/drive-platform/internal/fees"
	"github.com/dashpay/drive-platform/internal/identity"
	"github.com/dashpay/drive-platform/internal/registry"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/voting"
	"github.com/dashpay/drive-platform/internal/wire"
)

func newWiredExecutor(t *testing.T, s *store.Store) *Executor {
	t.Helper()
	reg, err := registry.NewRegistry(16)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	params := fees.Params{StorageCostPerByte: 1, EpochsPerEra: 20}
	verifier := func(identity.Key, []byte, []byte) (bool, error) { return true, nil }
	e := New(s, reg, params, 10, verifier, nil)
	e.AssetLockVerifier = func([]byte, [36]byte) (bool, error) { return true, nil }
	RegisterDefaults(e, VotingParams{PollDurationBlocks: 100, MaxLockCount: 3})
	return e
}

func noteContract(id, owner wire.ID) *registry.DataContract {
	return &registry.DataContract{
		ID:      id,
		OwnerID: owner,
		Version: 1,
		DocumentTypes: map[string]registry.DocumentType{
			"note": {
				Name:         "note",
				Properties:   map[string]registry.PropertySchema{"body": {Type: "string"}},
				Required:     []string{"body"},
				Mutable:      true,
				CanBeDeleted: true,
			},
		},
		Tokens: []registry.TokenConfiguration{
			{Position: 0, MaxSupply: 0, MintingAllowed: true, BurningAllowed: true},
		},
	}
}

func storeTestContract(t *testing.T, e *Executor, c *registry.DataContract) {
	t.Helper()
	tx, err := e.Store.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	ov := e.Registry.BeginOverlay()
	if _, err := registry.Store(ov, tx, c, 0, nil); err != nil {
		t.Fatalf("Store contract: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	ov.Commit()
}

func TestIdentityCreateFundsFromAssetLockAndChargesFee(t *testing.T) {
	s := openTestStore(t)
	e := newWiredExecutor(t, s)

	id := testID(1)
	tr := &Transition{
		Operation:       OpIdentityCreate,
		ProtocolVersion: 0,
		IdentityID:      id,
		Payload: IdentityCreatePayload{
			InitialBalance: 1000,
			Keys:           []identity.Key{ownerKey()},
			AssetLock: identity.AssetLockProof{
				Kind:             identity.AssetLockInstant,
				Outpoint:         [36]byte{1},
				FundedValue:      1000,
				InstantLockBytes: []byte{1},
			},
		},
	}
	result, err := e.Execute(tr)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("expected identity create to be accepted, got %+v", result)
	}

	tx, _ := s.Begin()
	created, err := identity.Load(tx, id)
	tx.Rollback()
	if err != nil {
		t.Fatalf("Load created identity: %v", err)
	}
	if created.Balance != 1000-result.FeeResult.Total() {
		t.Fatalf("expected balance net of fee, got %d", created.Balance)
	}
}

func TestIdentityCreateRejectsReplayedAssetLock(t *testing.T) {
	s := openTestStore(t)
	e := newWiredExecutor(t, s)

	proof := identity.AssetLockProof{
		Kind:             identity.AssetLockInstant,
		Outpoint:         [36]byte{7},
		FundedValue:      1000,
		InstantLockBytes: []byte{1},
	}
	tr := func(id wire.ID) *Transition {
		return &Transition{
			Operation:       OpIdentityCreate,
			ProtocolVersion: 0,
			IdentityID:      id,
			Payload: IdentityCreatePayload{
				InitialBalance: 1000,
				Keys:           []identity.Key{ownerKey()},
				AssetLock:      proof,
			},
		}
	}
	if _, err := e.Execute(tr(testID(2))); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := e.Execute(tr(testID(3))); err == nil {
		t.Fatalf("expected the second identity create to be rejected for a reused asset lock outpoint")
	}
}

func TestDocumentCreateThroughExecutor(t *testing.T) {
	s := openTestStore(t)
	e := newWiredExecutor(t, s)

	contractID, owner := testID(20), testID(21)
	storeTestContract(t, e, noteContract(contractID, owner))
	createTestIdentity(t, s, owner, 1000)

	docID := testID(22)
	tr := &Transition{
		Operation:          OpDocumentCreate,
		ProtocolVersion:    0,
		IdentityID:         owner,
		Nonce:              1,
		ContractID:         &contractID,
		RequiredKeyPurpose: identity.PurposeOwner,
		RequiredSecurity:   identity.SecurityMaster,
		Payload: DocumentCreatePayload{
			ContractID: contractID,
			TypeName:   "note",
			Document:   &document.Document{ID: docID, Properties: map[string]any{"body": "hi"}},
		},
	}
	result, err := e.Execute(tr)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("expected document create to be accepted, got %+v", result)
	}

	tx, _ := s.Begin()
	doc, err := document.Load(tx, contractID, "note", docID)
	tx.Rollback()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.OwnerID != owner {
		t.Fatalf("expected document owner to be forced to the submitter, got %x", doc.OwnerID)
	}
}

func TestDocumentDeleteRefundsStorageToPayer(t *testing.T) {
	s := openTestStore(t)
	e := newWiredExecutor(t, s)

	contractID, owner := testID(30), testID(31)
	storeTestContract(t, e, noteContract(contractID, owner))
	createTestIdentity(t, s, owner, 1000)

	docID := testID(32)
	createTr := &Transition{
		Operation:          OpDocumentCreate,
		ProtocolVersion:    0,
		IdentityID:         owner,
		Nonce:              1,
		ContractID:         &contractID,
		RequiredKeyPurpose: identity.PurposeOwner,
		RequiredSecurity:   identity.SecurityMaster,
		Payload: DocumentCreatePayload{
			ContractID: contractID,
			TypeName:   "note",
			Document:   &document.Document{ID: docID, Properties: map[string]any{"body": "some reasonably sized body"}},
		},
	}
	if _, err := e.Execute(createTr); err != nil {
		t.Fatalf("create: %v", err)
	}

	tx, _ := s.Begin()
	before, _ := identity.Load(tx, owner)
	tx.Rollback()

	deleteTr := &Transition{
		Operation:          OpDocumentDelete,
		ProtocolVersion:    0,
		IdentityID:         owner,
		Nonce:              2,
		ContractID:         &contractID,
		RequiredKeyPurpose: identity.PurposeOwner,
		RequiredSecurity:   identity.SecurityMaster,
		Payload:            DocumentDeletePayload{ContractID: contractID, TypeName: "note", DocumentID: docID},
	}
	result, err := e.Execute(deleteTr)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("expected delete to be accepted, got %+v", result)
	}
	if result.FeeResult.TotalRefunds == 0 {
		t.Fatalf("expected a non-zero storage refund from deleting a document this same epoch paid for")
	}

	tx2, _ := s.Begin()
	after, _ := identity.Load(tx2, owner)
	tx2.Rollback()
	if after.Balance <= before.Balance-result.FeeResult.Total() {
		t.Fatalf("expected the refund to offset the delete's own fee: before=%d after=%d fee=%d refund=%d",
			before.Balance, after.Balance, result.FeeResult.Total(), result.FeeResult.TotalRefunds)
	}
}

func TestTokenMintThroughExecutorRespectsChangeControl(t *testing.T) {
	s := openTestStore(t)
	e := newWiredExecutor(t, s)

	contractID, owner := testID(40), testID(41)
	storeTestContract(t, e, noteContract(contractID, owner))
	createTestIdentity(t, s, owner, 1000)

	other := testID(42)
	createTestIdentity(t, s, other, 1000)

	tr := &Transition{
		Operation:          OpTokenMint,
		ProtocolVersion:    0,
		IdentityID:         other,
		Nonce:              1,
		ContractID:         &contractID,
		RequiredKeyPurpose: identity.PurposeOwner,
		RequiredSecurity:   identity.SecurityMaster,
		Payload:            TokenMintPayload{ContractID: contractID, Position: 0, To: other, Amount: 50},
	}
	if _, err := e.Execute(tr); err == nil {
		t.Fatalf("expected mint by a non-owner identity to be rejected under owner-only change control")
	}
}

func TestBatchRunsSubOperationsInOrder(t *testing.T) {
	s := openTestStore(t)
	e := newWiredExecutor(t, s)

	contractID, owner := testID(50), testID(51)
	storeTestContract(t, e, noteContract(contractID, owner))
	createTestIdentity(t, s, owner, 1000)

	docA, docB := testID(52), testID(53)
	batch := &Transition{
		Operation:          OpBatch,
		ProtocolVersion:    0,
		IdentityID:         owner,
		Nonce:              1,
		ContractID:         &contractID,
		RequiredKeyPurpose: identity.PurposeOwner,
		RequiredSecurity:   identity.SecurityMaster,
		Payload: BatchPayload{Items: []BatchItem{
			{Operation: OpDocumentCreate, ContractID: &contractID, Payload: DocumentCreatePayload{
				ContractID: contractID, TypeName: "note", Document: &document.Document{ID: docA, Properties: map[string]any{"body": "a"}},
			}},
			{Operation: OpDocumentCreate, ContractID: &contractID, Payload: DocumentCreatePayload{
				ContractID: contractID, TypeName: "note", Document: &document.Document{ID: docB, Properties: map[string]any{"body": "b"}},
			}},
		}},
	}
	result, err := e.Execute(batch)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("expected batch to be accepted, got %+v", result)
	}

	tx, _ := s.Begin()
	_, errA := document.Load(tx, contractID, "note", docA)
	_, errB := document.Load(tx, contractID, "note", docB)
	tx.Rollback()
	if errA != nil || errB != nil {
		t.Fatalf("expected both batched documents to exist: %v / %v", errA, errB)
	}
}

func domainContract(id, owner wire.ID) *registry.DataContract {
	return &registry.DataContract{
		ID:      id,
		OwnerID: owner,
		Version: 1,
		DocumentTypes: map[string]registry.DocumentType{
			"domain": {
				Name:       "domain",
				Properties: map[string]registry.PropertySchema{"label": {Type: "string"}},
				Required:   []string{"label"},
				Indices: []registry.Index{
					{Name: "byLabel", Properties: []string{"label"}, Unique: true, Contested: true},
				},
			},
		},
	}
}

func domainCreate(signer, contractID, docID wire.ID, nonce, height uint64) *Transition {
	return &Transition{
		Operation:          OpDocumentCreate,
		ProtocolVersion:    0,
		IdentityID:         signer,
		Nonce:              nonce,
		ContractID:         &contractID,
		BlockHeight:        height,
		RequiredKeyPurpose: identity.PurposeOwner,
		RequiredSecurity:   identity.SecurityMaster,
		Payload: DocumentCreatePayload{
			ContractID: contractID,
			TypeName:   "domain",
			Document:   &document.Document{ID: docID, Properties: map[string]any{"label": "alice"}},
		},
	}
}

func TestContestedCreatesEnterPollAndAwardResolvesIndex(t *testing.T) {
	s := openTestStore(t)
	e := newWiredExecutor(t, s)

	contractID, ownerA, ownerB := testID(60), testID(61), testID(62)
	contract := domainContract(contractID, ownerA)
	storeTestContract(t, e, contract)
	createTestIdentity(t, s, ownerA, 10000)
	createTestIdentity(t, s, ownerB, 10000)

	docA, docB := testID(63), testID(64)
	if _, err := e.Execute(domainCreate(ownerA, contractID, docA, 1, 10)); err != nil {
		t.Fatalf("create A: %v", err)
	}
	if _, err := e.Execute(domainCreate(ownerB, contractID, docB, 1, 20)); err != nil {
		t.Fatalf("conflicting contested create must not fail: %v", err)
	}

	dt := contract.DocumentTypes["domain"]
	indexKey, err := document.IndexKey(dt, dt.Indices[0], map[string]any{"label": "alice"})
	if err != nil {
		t.Fatalf("IndexKey: %v", err)
	}

	tx, _ := s.Begin()
	poll, err := voting.Load(tx, contractID, "domain", "byLabel", indexKey)
	if err != nil {
		t.Fatalf("expected a poll to exist after the first contested create: %v", err)
	}
	if len(poll.Contenders) != 2 {
		t.Fatalf("expected both creates to enter the poll, got %d contenders", len(poll.Contenders))
	}
	for i, voter := range []wire.ID{testID(70), testID(71), testID(72)} {
		choice := docA
		if i == 2 {
			choice = docB
		}
		if _, err := voting.CastVote(tx, poll, voter, choice); err != nil {
			t.Fatalf("CastVote: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit votes: %v", err)
	}

	finalize := &Transition{
		Operation:          OpVotingFinalize,
		ProtocolVersion:    0,
		IdentityID:         ownerA,
		Nonce:              2,
		ContractID:         &contractID,
		BlockHeight:        500,
		RequiredKeyPurpose: identity.PurposeOwner,
		RequiredSecurity:   identity.SecurityMaster,
		Payload: VotingFinalizePayload{
			ContractID: contractID,
			TypeName:   "domain",
			IndexName:  "byLabel",
			IndexKey:   indexKey,
		},
	}
	if _, err := e.Execute(finalize); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	tx2, _ := s.Begin()
	defer tx2.Rollback()
	resolved, err := voting.Load(tx2, contractID, "domain", "byLabel", indexKey)
	if err != nil {
		t.Fatalf("Load poll after finalize: %v", err)
	}
	if resolved.Status != voting.Awarded || resolved.AwardedDocument != docA {
		t.Fatalf("expected the contest awarded to A's document, got status=%v doc=%x", resolved.Status, resolved.AwardedDocument)
	}
	if _, err := document.Load(tx2, contractID, "domain", docA); err != nil {
		t.Fatalf("winner's document must survive: %v", err)
	}
	if _, err := document.Load(tx2, contractID, "domain", docB); err == nil {
		t.Fatalf("expected the losing document to be removed")
	}
}

func TestVotingFinalizeRejectedBeforeEndBlock(t *testing.T) {
	s := openTestStore(t)
	e := newWiredExecutor(t, s)

	contractID, ownerA := testID(80), testID(81)
	contract := domainContract(contractID, ownerA)
	storeTestContract(t, e, contract)
	createTestIdentity(t, s, ownerA, 10000)

	docA := testID(82)
	if _, err := e.Execute(domainCreate(ownerA, contractID, docA, 1, 10)); err != nil {
		t.Fatalf("create A: %v", err)
	}

	dt := contract.DocumentTypes["domain"]
	indexKey, err := document.IndexKey(dt, dt.Indices[0], map[string]any{"label": "alice"})
	if err != nil {
		t.Fatalf("IndexKey: %v", err)
	}
	finalize := &Transition{
		Operation:          OpVotingFinalize,
		ProtocolVersion:    0,
		IdentityID:         ownerA,
		Nonce:              2,
		ContractID:         &contractID,
		BlockHeight:        50, // poll runs to 10+100
		RequiredKeyPurpose: identity.PurposeOwner,
		RequiredSecurity:   identity.SecurityMaster,
		Payload: VotingFinalizePayload{
			ContractID: contractID,
			TypeName:   "domain",
			IndexName:  "byLabel",
			IndexKey:   indexKey,
		},
	}
	if result, err := e.Execute(finalize); err == nil && result.Accepted {
		t.Fatalf("expected finalize before the poll's end block to be rejected")
	}
}
