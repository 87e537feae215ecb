// Package document implements indexed CRUD over the ContractDocuments
// subtree: create/replace/delete/transfer/price/purchase, unique-index
// enforcement with contested-index routing, history retention, and
// timestamp auto-fill.
package document

import (
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/registry"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// Document is the in-memory projection of a single document instance.
type Document struct {
	ID           wire.ID
	ContractID   wire.ID
	TypeName     string
	OwnerID      wire.ID
	Revision     uint64
	Properties   map[string]any
	Price        uint64 // 0 = not for sale
	CreatedAtMs  uint64
	UpdatedAtMs  uint64
	TransferredAtMs uint64
	CreatedAtBlock    uint64
	UpdatedAtBlock    uint64
	TransferredAtBlock uint64
}

// BlockInfo is the minimal block-boundary context document operations
// need to auto-fill timestamps and attribute storage flags to the epoch
// that pays for them.
type BlockInfo struct {
	TimeMs     uint64
	Height     uint64
	CoreHeight uint32
	Epoch      uint64
}

// typePath is the subtree a document type's primary records live under:
// ContractDocuments / contract_id / document_type_name.
func typePath(contractID wire.ID, typeName string) store.Path {
	return store.Path{store.TagContractDocuments, append([]byte{}, contractID[:]...), []byte(typeName)}
}

// indexPath is the subtree one index's entries live under, nested beside
// the type's primary records.
func indexPath(contractID wire.ID, typeName, indexName string) store.Path {
	return store.Path{store.TagContractDocuments, append([]byte{}, contractID[:]...), []byte(typeName), []byte("$idx:" + indexName)}
}

// historyPath is the subtree a history-retaining document type keeps its
// prior revisions under, keyed by document id then revision.
func historyPath(contractID wire.ID, typeName string, docID wire.ID) store.Path {
	return store.Path{store.TagContractDocuments, append([]byte{}, contractID[:]...), []byte(typeName), []byte("$history"), append([]byte{}, docID[:]...)}
}

// IndexKey computes the byte-packed value tuple one index derives from a
// document's properties: the key its entry is stored under, and the poll
// key a contested contest is identified by.
func IndexKey(dt registry.DocumentType, idx registry.Index, props map[string]any) ([]byte, error) {
	return indexKeyTuple(dt, idx, props)
}

func indexKeyTuple(dt registry.DocumentType, idx registry.Index, props map[string]any) ([]byte, error) {
	var key []byte
	for _, propName := range idx.Properties {
		v, ok := props[propName]
		if !ok {
			return nil, errs.New(errs.KindStructure, 4710, "document missing indexed property",
				map[string]any{"property": propName})
		}
		encoded, err := encodeIndexValue(v)
		if err != nil {
			return nil, err
		}
		key = append(key, byte(len(encoded)))
		key = append(key, encoded...)
	}
	return key, nil
}

func encodeIndexValue(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return []byte(t), nil
	case []byte:
		return t, nil
	case int64:
		return encodeIndexInt(uint64(t)), nil
	case uint64:
		return encodeIndexInt(t), nil
	case bool:
		if t {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	default:
		return nil, errs.New(errs.KindInvalidArgument, 4711, "unsupported indexed property value type", nil)
	}
}

func encodeIndexInt(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
