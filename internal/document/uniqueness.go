package document

import (
	"bytes"

	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/registry"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// ConflictResolution tells the caller what to do about a conflicting
// unique-index entry found during validateUniqueness.
type ConflictResolution int

const (
	NoConflict ConflictResolution = iota
	Rejected
	RouteToVoting
)

// UniquenessResult reports the outcome for one index and, on conflict,
// which existing document id collided. IndexKey is the byte-packed value
// tuple the index computed for this document — the poll key a
// RouteToVoting caller passes to the voting subsystem.
type UniquenessResult struct {
	Index      registry.Index
	Resolution ConflictResolution
	ExistingID wire.ID
	IndexKey   []byte
}

// validateUniqueness is shared by Create and Replace: for every `unique`
// index on the document type, it computes the index tuple and checks for
// a conflicting entry already indexed to a different document. A
// contested index does not reject on conflict — it reports RouteToVoting
// so the caller can start or join a poll instead.
func validateUniqueness(t *store.Transaction, contractID wire.ID, dt registry.DocumentType, doc *Document, excludeSelf bool) ([]UniquenessResult, error) {
	var results []UniquenessResult
	for _, idx := range dt.Indices {
		if !idx.Unique {
			continue
		}
		key, err := indexKeyTuple(dt, idx, doc.Properties)
		if err != nil {
			return nil, err
		}

		el, found, err := t.Get(indexPath(contractID, dt.Name, idx.Name), key)
		if err != nil {
			return nil, err
		}
		if !found {
			// A contested index routes even its first claimant to the
			// voting subsystem: the poll starts on the first create and
			// later conflicting creates join it as contenders.
			if idx.Contested {
				results = append(results, UniquenessResult{Index: idx, Resolution: RouteToVoting, IndexKey: key})
				continue
			}
			results = append(results, UniquenessResult{Index: idx, Resolution: NoConflict, IndexKey: key})
			continue
		}

		var existing wire.ID
		copy(existing[:], el.Item)
		if excludeSelf && bytes.Equal(existing[:], doc.ID[:]) {
			results = append(results, UniquenessResult{Index: idx, Resolution: NoConflict, IndexKey: key})
			continue
		}

		if idx.Contested {
			results = append(results, UniquenessResult{Index: idx, Resolution: RouteToVoting, ExistingID: existing, IndexKey: key})
			continue
		}
		return nil, errs.New(errs.KindDuplicateUniqueIndex, 4730, "unique index already claimed",
			map[string]any{"index": idx.Name, "existing_document": existing.String()})
	}
	return results, nil
}

// writeUniqueIndexEntries installs (or moves) the index entries for every
// unique index of dt to point at doc.ID, attributing the entry's bytes to
// doc.OwnerID and epoch the same way the primary record is. A contested
// index entry already held by a different document is left alone: the
// prior claimant keeps it until the poll resolves, and SetIndexEntry
// moves it to the winner at finalization.
func writeUniqueIndexEntries(t *store.Transaction, contractID wire.ID, dt registry.DocumentType, doc *Document, epoch uint64) (store.Cost, error) {
	var total store.Cost
	for _, idx := range dt.Indices {
		if !idx.Unique {
			continue
		}
		key, err := indexKeyTuple(dt, idx, doc.Properties)
		if err != nil {
			return store.Cost{}, err
		}
		if idx.Contested {
			el, found, err := t.Get(indexPath(contractID, dt.Name, idx.Name), key)
			if err != nil {
				return store.Cost{}, err
			}
			if found && !bytes.Equal(el.Item, doc.ID[:]) {
				continue
			}
		}
		el := store.Element{
			Kind:  store.KindItem,
			Item:  doc.ID[:],
			Flags: store.NewFlags(doc.OwnerID, epoch, uint32(len(doc.ID))),
		}
		cost, err := store.Insert(t, nil, store.ModeApply, indexPath(contractID, dt.Name, idx.Name), key,
			el, store.DefaultMergeHook(epoch))
		if err != nil {
			return store.Cost{}, err
		}
		total.Seeks += cost.Seeks
		total.StorageAddedBytes += cost.StorageAddedBytes
		total.HashNodeCalls += cost.HashNodeCalls
	}
	return total, nil
}

// SetIndexEntry points one unique index's entry for key at docID, used
// when a contested poll resolves in favor of one contender.
func SetIndexEntry(t *store.Transaction, contractID wire.ID, typeName, indexName string, key []byte, docID, owner wire.ID, epoch uint64) (store.Cost, error) {
	el := store.Element{
		Kind:  store.KindItem,
		Item:  docID[:],
		Flags: store.NewFlags(owner, epoch, uint32(len(docID))),
	}
	return store.Insert(t, nil, store.ModeApply, indexPath(contractID, typeName, indexName), key,
		el, store.DefaultMergeHook(epoch))
}

// ClearIndexEntry removes one unique index's entry for key, used when a
// contested poll resolves Locked and no contender may hold the value.
func ClearIndexEntry(t *store.Transaction, contractID wire.ID, typeName, indexName string, key []byte) (store.Cost, error) {
	cost, _, err := store.Delete(t, nil, store.ModeApply, indexPath(contractID, typeName, indexName), key, store.ApplyStateful)
	return cost, err
}

// RemoveRejected deletes a losing contender's document after a contested
// poll resolves against it, bypassing the type's delete policy — the
// removal is a protocol outcome, not a user delete. The returned cost's
// removed-bytes accounting refunds the loser's storage.
func RemoveRejected(t *store.Transaction, contractID wire.ID, typeName string, docID wire.ID) (store.Cost, error) {
	cost, _, err := store.Delete(t, nil, store.ModeApply, typePath(contractID, typeName), docID[:], store.ApplyStateful)
	return cost, err
}
