package epoch

import (
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// Load fetches an epoch's pool/counter state.
func Load(t *store.Transaction, index uint64) (*Info, error) {
	el, found, err := t.Get(epochPath(), epochKey(index))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errs.New(errs.KindNotFound, 41010, "epoch not found", map[string]any{"index": index})
	}
	return decodeInfo(el.Item)
}

// Open creates a brand-new epoch record; callers should Load first and
// only call Open on KindNotFound.
func Open(t *store.Transaction, index, startBlockHeight, startBlockTimeMs uint64, startCoreHeight uint32, epochBlocks uint64) (*Info, store.Cost, error) {
	info := &Info{
		Index:            index,
		StartBlockHeight: startBlockHeight,
		StartBlockTimeMs: startBlockTimeMs,
		StartCoreHeight:  startCoreHeight,
		EpochBlocks:      epochBlocks,
		ProposerBlocks:   map[wire.ID]uint64{},
	}
	cost, err := Save(t, info)
	if err != nil {
		return nil, store.Cost{}, err
	}
	return info, cost, nil
}

// Save persists an epoch's current state.
func Save(t *store.Transaction, info *Info) (store.Cost, error) {
	return store.Insert(t, nil, store.ModeApply, epochPath(), epochKey(info.Index),
		store.Element{Kind: store.KindItem, Item: encodeInfo(info)}, store.DefaultMergeHook(0))
}

// DepositFees adds a block's processing/storage fee charge to the
// current epoch's pools, called by the executor at block end.
func DepositFees(t *store.Transaction, info *Info, processingFee, storageFee uint64) (store.Cost, error) {
	info.ProcessingPool += processingFee
	info.StoragePool += storageFee
	return Save(t, info)
}

// IncrementProposerBlocks bumps proposer's block counter for this
// epoch, recording the proposer in ProposerOrder on its first block.
func IncrementProposerBlocks(t *store.Transaction, info *Info, proposer wire.ID) (store.Cost, error) {
	if _, seen := info.ProposerBlocks[proposer]; !seen {
		info.ProposerOrder = append(info.ProposerOrder, proposer)
	}
	info.ProposerBlocks[proposer]++
	return Save(t, info)
}

// OldestUnpaid returns the index of the oldest epoch not yet fully paid,
// defaulting to 0 (the genesis epoch) when the marker has never been set.
func OldestUnpaid(t *store.Transaction) (uint64, error) {
	el, found, err := t.Get(miscPath(), oldestUnpaidKey)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return decodeUint64(el.Item), nil
}

// SetOldestUnpaid advances the process-wide oldest-unpaid-epoch marker.
func SetOldestUnpaid(t *store.Transaction, index uint64) (store.Cost, error) {
	return store.Insert(t, nil, store.ModeApply, miscPath(), oldestUnpaidKey,
		store.Element{Kind: store.KindItem, Item: encodeUint64(index)}, store.DefaultMergeHook(0))
}

var systemCreditsKey = []byte("$system_credits")

// SystemCredits returns the running total of credits known to the
// platform, including Core coinbase subsidy credited across epochs.
func SystemCredits(t *store.Transaction) (uint64, error) {
	el, found, err := t.Get(miscPath(), systemCreditsKey)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return decodeUint64(el.Item), nil
}

// AddSystemCredits bumps the system credits total.
func AddSystemCredits(t *store.Transaction, amount uint64) (store.Cost, error) {
	total, err := SystemCredits(t)
	if err != nil {
		return store.Cost{}, err
	}
	return store.Insert(t, nil, store.ModeApply, miscPath(), systemCreditsKey,
		store.Element{Kind: store.KindItem, Item: encodeUint64(total + amount)}, store.DefaultMergeHook(0))
}

// CreditCoreSubsidy accounts the Core chain's coinbase subsidy for the
// core blocks spanned between two consecutive epochs into the system
// credits total. Returns the amount credited.
func CreditCoreSubsidy(t *store.Transaction, prev, next *Info, subsidyPerCoreBlock uint64) (uint64, store.Cost, error) {
	if subsidyPerCoreBlock == 0 || next.StartCoreHeight <= prev.StartCoreHeight {
		return 0, store.Cost{}, nil
	}
	credited := uint64(next.StartCoreHeight-prev.StartCoreHeight) * subsidyPerCoreBlock
	cost, err := AddSystemCredits(t, credited)
	return credited, cost, err
}
