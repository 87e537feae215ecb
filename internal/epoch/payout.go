package epoch

import (
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// BatchSize bounds how many proposers RunPayoutBatch pays per call, so a
// block proposer with an arbitrarily large epoch can never be asked to
// pay out the whole epoch in a single block.
const BatchSize = 50

// RewardFunc delivers one proposer's share of an epoch's pools. It is
// supplied by the caller because crediting a proposer's masternode
// reward share is a platform-level concern (routing through the
// reward-shares contract), not something this package owns.
type RewardFunc func(proposer wire.ID, processingShare, storageShare uint64) error

// RunPayoutBatch pays out up to BatchSize proposers from info's
// PayoutCursor, each receiving pool_total*proposer_blocks/epoch_blocks
// of the processing and storage pools, where epoch_blocks is the total
// of the recorded ProposerBlocks counters. It is safe to call repeatedly
// across blocks: each call resumes from where the previous one left
// off, and once every proposer has been paid the epoch is marked Paid.
// done reports whether the epoch's payout is now complete.
func RunPayoutBatch(t *store.Transaction, info *Info, reward RewardFunc) (done bool, paidCount int, cost store.Cost, err error) {
	return runPayoutBatchWithSize(t, info, reward, BatchSize)
}

func runPayoutBatchWithSize(t *store.Transaction, info *Info, reward RewardFunc, batchSize int) (done bool, paidCount int, cost store.Cost, err error) {
	if info.Paid {
		return true, 0, store.Cost{}, nil
	}
	var epochBlocks uint64
	for _, id := range info.ProposerOrder {
		epochBlocks += info.ProposerBlocks[id]
	}
	if epochBlocks == 0 {
		// No blocks were ever recorded for this epoch: nothing to divide by,
		// so there is nothing owed to anyone. Mark paid and move on.
		info.Paid = true
		cost, err = Save(t, info)
		return true, 0, cost, err
	}

	end := info.PayoutCursor + batchSize
	if end > len(info.ProposerOrder) {
		end = len(info.ProposerOrder)
	}
	for i := info.PayoutCursor; i < end; i++ {
		proposer := info.ProposerOrder[i]
		blocks := info.ProposerBlocks[proposer]
		processingShare := info.ProcessingPool * blocks / epochBlocks
		storageShare := info.StoragePool * blocks / epochBlocks
		if reward != nil {
			if err := reward(proposer, processingShare, storageShare); err != nil {
				return false, paidCount, store.Cost{}, err
			}
		}
		paidCount++
	}
	info.PayoutCursor = end
	if info.PayoutCursor >= len(info.ProposerOrder) {
		info.Paid = true
		done = true
	}
	cost, err = Save(t, info)
	return done, paidCount, cost, err
}

// AdvanceOldestUnpaid advances the oldest-unpaid marker to the next index
// if epochIndex is the current oldest-unpaid epoch; it does not touch the
// epoch's own Paid flag, which RunPayoutBatch sets. Call this once
// RunPayoutBatch reports done for an epoch.
func AdvanceOldestUnpaid(t *store.Transaction, epochIndex uint64) (store.Cost, error) {
	oldest, err := OldestUnpaid(t)
	if err != nil {
		return store.Cost{}, err
	}
	if oldest != epochIndex {
		return store.Cost{}, nil
	}
	return SetOldestUnpaid(t, epochIndex+1)
}
