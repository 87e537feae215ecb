package document

import (
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/registry"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// Load fetches and decodes a document from its primary subtree.
func Load(t *store.Transaction, contractID wire.ID, typeName string, docID wire.ID) (*Document, error) {
	el, found, err := t.Get(typePath(contractID, typeName), docID[:])
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errs.New(errs.KindNotFound, 4740, "document not found", map[string]any{"id": docID.String()})
	}
	if el.Kind != store.KindItem {
		return nil, errs.Fatal(errs.KindCorruptedDriveState, "document element is not an item", nil)
	}
	return Decode(el.Item)
}

// savePrimary writes doc's encoded bytes. When hook is nil (Create's
// fresh insert — there is no prior element for a MergeHook to run
// against) the element's Flags are populated directly: the whole value
// is attributed to doc.OwnerID, paid for by epoch. Replace passes a real
// hook, which derives the merged Flags from the stored original instead.
func savePrimary(t *store.Transaction, dt registry.DocumentType, doc *Document, epoch uint64, hook store.MergeHook) (store.Cost, error) {
	encoded, err := Encode(doc)
	if err != nil {
		return store.Cost{}, err
	}
	el := store.Element{Kind: store.KindItem, Item: encoded}
	if hook == nil {
		el.Flags = store.NewFlags(doc.OwnerID, epoch, uint32(len(encoded)))
	}
	return store.Insert(t, nil, store.ModeApply, typePath(doc.ContractID, dt.Name), doc.ID[:], el, hook)
}

func appendHistory(t *store.Transaction, dt registry.DocumentType, doc *Document, epoch uint64) (store.Cost, error) {
	if !dt.DocumentsKeepHistory {
		return store.Cost{}, nil
	}
	encoded, err := Encode(doc)
	if err != nil {
		return store.Cost{}, err
	}
	revKey := encodeIndexInt(doc.Revision)
	el := store.Element{
		Kind:  store.KindItem,
		Item:  encoded,
		Flags: store.NewFlags(doc.OwnerID, epoch, uint32(len(encoded))),
	}
	return store.Insert(t, nil, store.ModeApply, historyPath(doc.ContractID, dt.Name, doc.ID), revKey, el, nil)
}

// Create inserts a brand-new document. Conflicting unique, non-contested
// indices fail DuplicateUniqueIndex; conflicting contested indices are
// reported in the returned []UniquenessResult for the caller to route into
// the voting subsystem — a contested-index conflict does NOT fail Create.
func Create(t *store.Transaction, contractID wire.ID, dt registry.DocumentType, doc *Document, info BlockInfo) ([]UniquenessResult, store.Cost, error) {
	doc.ContractID = contractID
	doc.TypeName = dt.Name
	doc.Revision = 1
	if doc.CreatedAtMs == 0 {
		doc.CreatedAtMs = info.TimeMs
		doc.CreatedAtBlock = info.Height
	}
	doc.UpdatedAtMs = doc.CreatedAtMs
	doc.UpdatedAtBlock = doc.CreatedAtBlock

	results, err := validateUniqueness(t, contractID, dt, doc, false)
	if err != nil {
		return nil, store.Cost{}, err
	}

	var total store.Cost
	cost, err := savePrimary(t, dt, doc, info.Epoch, nil)
	if err != nil {
		return nil, store.Cost{}, err
	}
	addCost(&total, cost)

	idxCost, err := writeUniqueIndexEntries(t, contractID, dt, doc, info.Epoch)
	if err != nil {
		return nil, store.Cost{}, err
	}
	addCost(&total, idxCost)

	if _, err := appendHistory(t, dt, doc, info.Epoch); err != nil {
		return nil, store.Cost{}, err
	}
	return results, total, nil
}

// Replace updates an existing document. Requires the stored revision to
// equal submitted.Revision-1, enforced by the caller supplying
// expectedRevision (the document's revision before the bump).
func Replace(t *store.Transaction, contractID wire.ID, dt registry.DocumentType, doc *Document, expectedRevision uint64, info BlockInfo) ([]UniquenessResult, store.Cost, error) {
	if !dt.Mutable {
		return nil, store.Cost{}, errs.New(errs.KindAuthorization, 4741, "document type does not allow replace", nil)
	}
	current, err := Load(t, contractID, dt.Name, doc.ID)
	if err != nil {
		return nil, store.Cost{}, err
	}
	if current.Revision != expectedRevision {
		return nil, store.Cost{}, errs.New(errs.KindInvalidArgument, 4742, "replace requires revision = current+1",
			map[string]any{"current": current.Revision, "expected": expectedRevision})
	}

	doc.ContractID = contractID
	doc.TypeName = dt.Name
	doc.Revision = current.Revision + 1
	doc.CreatedAtMs = current.CreatedAtMs
	doc.CreatedAtBlock = current.CreatedAtBlock
	doc.UpdatedAtMs = info.TimeMs
	doc.UpdatedAtBlock = info.Height
	doc.TransferredAtMs = current.TransferredAtMs
	doc.TransferredAtBlock = current.TransferredAtBlock
	doc.OwnerID = current.OwnerID
	doc.Price = current.Price

	results, err := validateUniqueness(t, contractID, dt, doc, true)
	if err != nil {
		return nil, store.Cost{}, err
	}

	var total store.Cost
	cost, err := savePrimary(t, dt, doc, info.Epoch, store.DefaultMergeHook(info.Epoch))
	if err != nil {
		return nil, store.Cost{}, err
	}
	addCost(&total, cost)

	idxCost, err := writeUniqueIndexEntries(t, contractID, dt, doc, info.Epoch)
	if err != nil {
		return nil, store.Cost{}, err
	}
	addCost(&total, idxCost)

	if _, err := appendHistory(t, dt, doc, info.Epoch); err != nil {
		return nil, store.Cost{}, err
	}
	return results, total, nil
}

// Delete removes a document's primary record. Permitted only when the
// document type (or contract default, folded into dt.CanBeDeleted by the
// caller) allows deletion. The returned Cost carries RemovedBytesByEpoch
// for whatever storage the deleted element's Flags had attributed to its
// paying epochs — the caller folds this into its fee calculation so the
// deleter is refunded, not just the owner bookkeeping thrown away.
func Delete(t *store.Transaction, contractID wire.ID, dt registry.DocumentType, docID wire.ID) (store.Cost, error) {
	if !dt.CanBeDeleted {
		return store.Cost{}, errs.New(errs.KindAuthorization, 4743, "document type does not allow delete", nil)
	}
	cost, _, err := store.Delete(t, nil, store.ModeApply, typePath(contractID, dt.Name), docID[:], store.ApplyStateful)
	return cost, err
}

// Transfer moves ownership of a document to a new owner and clears any
// sale price.
func Transfer(t *store.Transaction, contractID wire.ID, dt registry.DocumentType, docID wire.ID, newOwner wire.ID, info BlockInfo) (store.Cost, error) {
	doc, err := Load(t, contractID, dt.Name, docID)
	if err != nil {
		return store.Cost{}, err
	}
	doc.OwnerID = newOwner
	doc.Price = 0
	doc.Revision++
	doc.TransferredAtMs = info.TimeMs
	doc.TransferredAtBlock = info.Height
	return savePrimary(t, dt, doc, info.Epoch, store.DefaultMergeHook(info.Epoch))
}

// SetPrice lists (or delists with price=0) a document for direct purchase.
// Only the current owner may call this (enforced by the executor, which
// resolves the signing identity before reaching here).
func SetPrice(t *store.Transaction, contractID wire.ID, dt registry.DocumentType, docID wire.ID, price uint64, epoch uint64) (store.Cost, error) {
	doc, err := Load(t, contractID, dt.Name, docID)
	if err != nil {
		return store.Cost{}, err
	}
	doc.Price = price
	doc.Revision++
	return savePrimary(t, dt, doc, epoch, store.DefaultMergeHook(epoch))
}

// PurchaseResult reports the credit movement a Purchase produced, for the
// caller to apply against buyer/seller identity balances.
type PurchaseResult struct {
	SellerID    wire.ID
	PriceCharged uint64
}

// Purchase atomically transfers ownership from the listed price to a
// buyer; it does not itself move identity balances — the executor applies
// the debit/credit using the returned PurchaseResult so document ops stay
// free of identity-package dependencies.
func Purchase(t *store.Transaction, contractID wire.ID, dt registry.DocumentType, docID wire.ID, buyer wire.ID, info BlockInfo) (PurchaseResult, store.Cost, error) {
	doc, err := Load(t, contractID, dt.Name, docID)
	if err != nil {
		return PurchaseResult{}, store.Cost{}, err
	}
	if doc.Price == 0 {
		return PurchaseResult{}, store.Cost{}, errs.New(errs.KindInvalidArgument, 4744, "document is not listed for sale", nil)
	}
	result := PurchaseResult{SellerID: doc.OwnerID, PriceCharged: doc.Price}

	doc.OwnerID = buyer
	doc.Price = 0
	doc.Revision++
	doc.TransferredAtMs = info.TimeMs
	doc.TransferredAtBlock = info.Height
	cost, err := savePrimary(t, dt, doc, info.Epoch, store.DefaultMergeHook(info.Epoch))
	if err != nil {
		return PurchaseResult{}, store.Cost{}, err
	}
	return result, cost, nil
}

func addCost(total *store.Cost, o store.Cost) {
	total.Seeks += o.Seeks
	total.StorageLoadedBytes += o.StorageLoadedBytes
	total.StorageAddedBytes += o.StorageAddedBytes
	total.StorageReplacedBytes += o.StorageReplacedBytes
	total.HashNodeCalls += o.HashNodeCalls
}
