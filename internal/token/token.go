// Package token implements the token subsystem: per-identity balances
// under a token's position in its owning contract, mint/burn/freeze/
// transfer/claim/emergency lifecycle, and group-authorized change
// control driven by per-contract configuration.
package token

import (
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/registry"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// Balance is the per-identity record for one token position: a credit
// amount plus a separately tracked frozen amount that cannot move until
// unfrozen or destroyed.
type Balance struct {
	Amount uint64
	Frozen uint64
}

// balancePath is the subtree a token position's per-identity balances
// live under: Tokens / contract_id / position / identity_id.
func balancePath(contractID wire.ID, position uint16) store.Path {
	return store.Path{store.TagTokens, append([]byte{}, contractID[:]...), positionKey(position)}
}

// historyPath is where appendEvent records a token position's events
// (mint, burn, destroyFrozen, transfer, claim, directPurchase) as
// append-only entries keyed by a monotonically increasing sequence
// number. Every position records them; there is no per-contract opt-in.
func historyPath(contractID wire.ID, position uint16) store.Path {
	return store.Path{store.TagTokens, append([]byte{}, contractID[:]...), positionKey(position), []byte("$history")}
}

// supplyKey is the single item under a position's subtree tracking
// total_supply, distinct from the per-identity balance entries.
var supplyKey = []byte("$supply")

func positionKey(position uint16) []byte {
	return []byte{byte(position >> 8), byte(position)}
}

func loadBalance(t *store.Transaction, contractID wire.ID, position uint16, id wire.ID) (Balance, error) {
	el, found, err := t.Get(balancePath(contractID, position), id[:])
	if err != nil {
		return Balance{}, err
	}
	if !found {
		return Balance{}, nil
	}
	return decodeBalance(el.Item)
}

// saveBalance persists bal, attributing a fresh balance entry's storage
// bytes to id (the identity the balance belongs to) paid for by epoch.
func saveBalance(t *store.Transaction, contractID wire.ID, position uint16, id wire.ID, bal Balance, epoch uint64) (store.Cost, error) {
	encoded := encodeBalance(bal)
	el := store.Element{Kind: store.KindItem, Item: encoded, Flags: store.NewFlags(id, epoch, uint32(len(encoded)))}
	return store.Insert(t, nil, store.ModeApply, balancePath(contractID, position), id[:], el, store.DefaultMergeHook(epoch))
}

func loadTotalSupply(t *store.Transaction, contractID wire.ID, position uint16) (uint64, error) {
	el, found, err := t.Get(balancePath(contractID, position), supplyKey)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return decodeUint64(el.Item), nil
}

// saveTotalSupply persists supply, attributing a fresh total_supply
// entry's storage bytes to owner (the identity whose action changed
// supply — the minter, burner, or destroyer) paid for by epoch.
func saveTotalSupply(t *store.Transaction, contractID wire.ID, position uint16, supply uint64, owner wire.ID, epoch uint64) (store.Cost, error) {
	encoded := encodeUint64(supply)
	el := store.Element{Kind: store.KindItem, Item: encoded, Flags: store.NewFlags(owner, epoch, uint32(len(encoded)))}
	return store.Insert(t, nil, store.ModeApply, balancePath(contractID, position), supplyKey, el, store.DefaultMergeHook(epoch))
}

func identityExists(t *store.Transaction, id wire.ID) (bool, error) {
	_, found, err := t.Get(store.Path{store.TagIdentities}, id[:])
	return found, err
}

// Event is a token-history entry. appendEvent stores one for every
// recorded operation; no contract setting turns token history on or off.
type Event struct {
	Kind      string
	Position  uint16
	Actor     wire.ID
	Target    wire.ID
	Amount    uint64
	Sequence  uint64
	BlockTime uint64
}

// eventOwner picks the identity a history event's storage bytes are
// attributed to: the actor that triggered the event, or its target when
// there is no actor (e.g. a perpetual-distribution Claim).
func eventOwner(ev Event) wire.ID {
	var zero wire.ID
	if ev.Actor != zero {
		return ev.Actor
	}
	return ev.Target
}

func appendEvent(t *store.Transaction, contractID wire.ID, cfg registry.TokenConfiguration, ev Event, epoch uint64) (store.Cost, error) {
	seqEl, found, err := t.Get(historyPath(contractID, cfg.Position), []byte("$seq"))
	if err != nil {
		return store.Cost{}, err
	}
	var seq uint64
	if found {
		seq = decodeUint64(seqEl.Item)
	}
	seq++
	ev.Sequence = seq
	owner := eventOwner(ev)

	var total store.Cost
	seqBytes := encodeUint64(seq)
	seqEl2 := store.Element{Kind: store.KindItem, Item: seqBytes, Flags: store.NewFlags(owner, epoch, uint32(len(seqBytes)))}
	cost, err := store.Insert(t, nil, store.ModeApply, historyPath(contractID, cfg.Position), []byte("$seq"),
		seqEl2, store.DefaultMergeHook(epoch))
	if err != nil {
		return store.Cost{}, err
	}
	addCost(&total, cost)

	evBytes := encodeEvent(ev)
	evEl := store.Element{Kind: store.KindItem, Item: evBytes, Flags: store.NewFlags(owner, epoch, uint32(len(evBytes)))}
	cost, err = store.Insert(t, nil, store.ModeApply, historyPath(contractID, cfg.Position), encodeUint64(seq),
		evEl, nil)
	if err != nil {
		return store.Cost{}, err
	}
	addCost(&total, cost)
	return total, nil
}

func addCost(total *store.Cost, o store.Cost) {
	total.Seeks += o.Seeks
	total.StorageLoadedBytes += o.StorageLoadedBytes
	total.StorageAddedBytes += o.StorageAddedBytes
	total.StorageReplacedBytes += o.StorageReplacedBytes
	total.HashNodeCalls += o.HashNodeCalls
}

var (
	errOverflow = errs.New(errs.KindNumericOverflow, 4810, "token supply arithmetic overflow", nil)
	errPastMax  = errs.New(errs.KindTokenMintPastMaxSupply, 4811, "mint would exceed the token's max supply", nil)
)
