package identity

import (
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// Load fetches and decodes an identity from the store within a
// transaction.
func Load(t *store.Transaction, id wire.ID) (*Identity, error) {
	el, found, err := t.Get(IdentityPath(), id[:])
	if err != nil {
		return nil, errs.Wrap(err, "load identity")
	}
	if !found {
		return nil, errs.New(errs.KindNotFound, 4650, "identity not found", map[string]any{"id": id.String()})
	}
	if el.Kind != store.KindItem {
		return nil, errs.Fatal(errs.KindCorruptedDriveState, "identity element is not an item", nil)
	}
	return Decode(el.Item)
}

// Save serializes and inserts/replaces an identity's element. hook must
// be non-nil for every identity that already exists in the store — Save
// does not invent Flags for a replacement itself; the caller's hook
// derives the merged Flags from the stored original. A nil hook is only
// correct for a brand-new identity (see Create), which sets Flags
// directly on the Element before calling Insert.
func Save(t *store.Transaction, id *Identity, hook store.MergeHook) (store.Cost, error) {
	return store.Insert(t, nil, store.ModeApply, IdentityPath(), id.ID[:],
		store.Element{Kind: store.KindItem, Item: Encode(id)}, hook)
}

// Create inserts a brand-new identity holding initialBalance, plus a
// key-hash index entry for every key in keys. It does not consume an
// asset-lock proof itself; the caller does that before calling Create.
// keys must have already passed ValidatePublicKeys(keys, true). epoch
// attributes the identity's (and its key-hash index entries') storage
// bytes to the epoch that paid for them, for later refund accounting.
func Create(t *store.Transaction, id wire.ID, initialBalance uint64, keys []Key, epoch uint64) (*Identity, store.Cost, error) {
	identity := &Identity{
		ID:             id,
		Balance:        initialBalance,
		Revision:       0,
		Keys:           map[uint32]Key{},
		ContractNonces: map[wire.ID]uint64{},
	}
	var total store.Cost
	for _, k := range keys {
		identity.Keys[k.ID] = k
		cost, err := indexPublicKeyHash(t, k, id, epoch)
		if err != nil {
			return nil, store.Cost{}, err
		}
		total.Seeks += cost.Seeks
		total.StorageAddedBytes += cost.StorageAddedBytes
		total.HashNodeCalls += cost.HashNodeCalls
	}
	encoded := Encode(identity)
	el := store.Element{
		Kind:  store.KindItem,
		Item:  encoded,
		Flags: store.NewFlags(id, epoch, uint32(len(encoded))),
	}
	cost, err := store.Insert(t, nil, store.ModeApply, IdentityPath(), identity.ID[:], el, nil)
	if err != nil {
		return nil, store.Cost{}, err
	}
	total.Seeks += cost.Seeks
	total.StorageAddedBytes += cost.StorageAddedBytes
	total.HashNodeCalls += cost.HashNodeCalls
	return identity, total, nil
}

// indexPublicKeyHash inserts the derived public-key-hash entry into the
// unique or non-unique index depending on purpose. Authentication, owner
// and withdraw keys are treated as uniquely identifying; other purposes (e.g.
// encryption keys reused across identities in some wallets) go through
// the non-unique index as a set membership insert.
func indexPublicKeyHash(t *store.Transaction, k Key, id wire.ID, epoch uint64) (store.Cost, error) {
	hash := keyHash(k)
	switch k.Purpose {
	case PurposeAuthentication, PurposeOwner, PurposeWithdraw:
		_, found, err := t.Get(PublicKeyHashPath(), hash)
		if err != nil {
			return store.Cost{}, err
		}
		if found {
			return store.Cost{}, errs.New(errs.KindAlreadyExists, 4651, "public key hash already indexed to another identity", nil)
		}
		el := store.Element{Kind: store.KindItem, Item: id[:], Flags: store.NewFlags(id, epoch, uint32(len(id)))}
		return store.Insert(t, nil, store.ModeApply, PublicKeyHashPath(), hash, el, nil)
	default:
		el := store.Element{Kind: store.KindItem, Item: id[:], Flags: store.NewFlags(id, epoch, uint32(len(id)))}
		return store.Insert(t, nil, store.ModeApply, NonUniquePublicKeyHashPath(), append(hash, id[:]...), el, nil)
	}
}

// keyHash derives the index key for a public key. The real platform uses
// RIPEMD160(SHA256(pubkey)); this module treats Key.Data as already being
// that hash-ready payload and uses it directly as the index key material,
// truncated to a stable width.
func keyHash(k Key) []byte {
	if len(k.Data) > 20 {
		return k.Data[:20]
	}
	return k.Data
}

// Debit subtracts amount from the identity's balance, failing with
// InsufficientBalance if the balance cannot cover it.
func (id *Identity) Debit(amount uint64) error {
	if id.Balance < amount {
		return errs.New(errs.KindInsufficientBalance, 4652, "identity balance cannot cover debit",
			map[string]any{"balance": id.Balance, "amount": amount})
	}
	id.Balance -= amount
	return nil
}

// Credit adds amount to the identity's balance.
func (id *Identity) Credit(amount uint64) { id.Balance += amount }

// BumpRevision advances the identity's revision counter by one, used
// after any mutating IdentityUpdate.
func (id *Identity) BumpRevision() { id.Revision++ }
