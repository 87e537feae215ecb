package registry

import (
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// contractElementKey is the reserved key under a contract's subtree that
// holds the serialized contract itself; every other key in that same
// subtree is a document keyed by document id.
var contractElementKey = []byte("_contract")

// ContractPath is the store path a contract (and its documents) live
// under: the ContractDocuments root tag, then the contract id.
func ContractPath(id wire.ID) store.Path {
	return store.Path{store.TagContractDocuments, append([]byte{}, id[:]...)}
}

// Load fetches a contract through the overlay, falling back to the
// authenticated store on a cache miss and populating the overlay with
// the result. LoadCost records one seek plus the loaded contract bytes.
func Load(o *Overlay, s *store.Store, id wire.ID) (*FetchInfo, error) {
	if fi, ok := o.Get(id); ok {
		return fi, nil
	}

	el, found, err := s.Get(ContractPath(id), contractElementKey)
	if err != nil {
		return nil, errs.Wrap(err, "load contract from store")
	}
	if !found {
		return nil, errs.New(errs.KindNotFound, 4402, "data contract not found", map[string]any{"id": id.String()})
	}
	if el.Kind != store.KindItem {
		return nil, errs.Fatal(errs.KindCorruptedDriveState, "contract element is not an item", nil)
	}

	contract, err := DecodeContract(el.Item)
	if err != nil {
		return nil, err
	}
	fi := &FetchInfo{
		Contract: contract,
		Flags:    el.Flags,
		LoadCost: store.Cost{Seeks: 1, StorageLoadedBytes: uint64(len(el.Item))},
	}
	o.Put(id, fi)
	return fi, nil
}

// Store serializes and inserts a contract (create or full replace) within
// the given transaction, then records the result in the overlay so
// subsequent lookups in the same transition see it immediately. hook
// decides how storage flags combine on replace; callers pass
// store.DefaultMergeHook for the common case. When hook is nil (a fresh
// contract create — there is no prior element for a MergeHook to run
// against) the element's Flags are populated directly: the whole value is
// attributed to c.OwnerID, paid for by epoch.
func Store(o *Overlay, t *store.Transaction, c *DataContract, epoch uint64, hook store.MergeHook) (store.Cost, error) {
	encoded := EncodeContract(c)
	el := store.Element{Kind: store.KindItem, Item: encoded}
	if hook == nil {
		el.Flags = store.NewFlags(c.OwnerID, epoch, uint32(len(encoded)))
	}
	cost, err := store.Insert(t, nil, store.ModeApply, ContractPath(c.ID), contractElementKey, el, hook)
	if err != nil {
		return store.Cost{}, err
	}
	// Read back the persisted element: on replace, hook has merged the
	// flags inside Insert and el still holds the pre-merge value.
	stored, _, err := t.Get(ContractPath(c.ID), contractElementKey)
	if err != nil {
		return store.Cost{}, err
	}
	o.Put(c.ID, &FetchInfo{Contract: c, Flags: stored.Flags, LoadCost: cost})
	return cost, nil
}
