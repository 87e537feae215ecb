// Package abci implements the inbound consensus-driver contract:
// init_chain, prepare_proposal, process_proposal, and finalize_block.
// No BFT engine is embedded here; the consensus driver is an external
// collaborator that supplies already-ordered blocks, and this package is
// only the boundary it calls into, wiring together the transition
// executor, platform state, and epoch/fee pools.
package abci

import (
	"github.com/sirupsen/logrus"

	"github.com/dashpay/drive-platform/internal/epoch"
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/execution"
	"github.com/dashpay/drive-platform/internal/identity"
	"github.com/dashpay/drive-platform/internal/platform"
	"github.com/dashpay/drive-platform/internal/wire"
)

// BlockInfo carries one block's height, time, proposer, core chain
// height, and the epoch it belongs to.
type BlockInfo struct {
	Height            uint64
	TimeMs            uint64
	ProposerProTxHash wire.ID
	CoreHeight        uint32
	Epoch             uint64
}

// Deserializer decodes one user-submitted transition's wire bytes into an
// executable Transition. The concrete wire codec for transition bodies
// belongs to the consensus driver; callers inject their own (or a
// `internal/testutil` stub in tests).
type Deserializer func(raw []byte) (*execution.Transition, error)

// TxResult pairs one submitted transition's raw bytes with its outcome,
// returned by PrepareProposal/ProcessProposal so the consensus driver
// knows which bytes to keep in the proposal.
type TxResult struct {
	Raw []byte
	Err error
}

// App is the glue between the ABCI entry points and the core components.
// It owns no state of its own beyond what Executor, Platform, and the
// store already hold.
type App struct {
	Executor     *execution.Executor
	Platform     *platform.State
	Deserialize  Deserializer
	EpochBlocks  uint64
	PayoutReward epoch.RewardFunc

	// CoreSubsidyPerBlock is the credit value of one Core coinbase
	// subsidy block, accounted into the system credits total when a new
	// epoch opens. Zero disables subsidy accounting (tests).
	CoreSubsidyPerBlock uint64

	log *logrus.Logger
}

// New wires an App together. payoutReward receives each proposer's share
// from the payout loop; when it is nil the loop still computes shares,
// advances its cursor and marks epochs paid, but credits no one.
func New(exec *execution.Executor, plat *platform.State, deserialize Deserializer, epochBlocks uint64, payoutReward epoch.RewardFunc) *App {
	return &App{
		Executor:     exec,
		Platform:     plat,
		Deserialize:  deserialize,
		EpochBlocks:  epochBlocks,
		PayoutReward: payoutReward,
		log:          logrus.StandardLogger(),
	}
}

// InitChain seeds platform state and opens the genesis epoch. Called
// exactly once, before any block is processed.
func (a *App) InitChain(genesisTimeMs uint64, initialCoreHeight uint32, initialValidators map[platform.QuorumKey]platform.ValidatorSet) error {
	for key, set := range initialValidators {
		a.Platform.SetQuorumValidatorSet(key, set)
	}
	a.Platform.RecordBlock(platform.BlockInfo{TimeMs: genesisTimeMs, CoreHeight: initialCoreHeight})

	t, err := a.Executor.Store.Begin()
	if err != nil {
		return errs.Wrap(err, "init_chain: begin")
	}
	committed := false
	defer func() {
		if !committed {
			t.Rollback()
		}
	}()

	if _, _, err := epoch.Open(t, 0, 0, genesisTimeMs, initialCoreHeight, a.EpochBlocks); err != nil {
		return errs.Wrap(err, "init_chain: open genesis epoch")
	}
	if _, err := epoch.SetOldestUnpaid(t, 0); err != nil {
		return errs.Wrap(err, "init_chain: set oldest unpaid")
	}
	if err := t.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// validateOnly runs the read-only prefix of the pipeline (identity/key
// lookup, nonce acceptance against the currently-committed state) without
// ever writing to the store — prepare_proposal and process_proposal must
// not mutate state; only finalize_block does.
func (a *App) validateOnly(tr *execution.Transition) error {
	t, err := a.Executor.Store.Begin()
	if err != nil {
		return errs.Wrap(err, "validate: begin")
	}
	defer t.Rollback()

	id, err := identity.Load(t, tr.IdentityID)
	if err != nil {
		return err
	}
	if _, err := id.ResolveSigningKey(tr.SignatureKeyID, tr.RequiredKeyPurpose, tr.RequiredSecurity, tr.ContractID); err != nil {
		return err
	}

	current := id.Nonce
	if tr.ContractID != nil {
		current = id.ContractNonces[*tr.ContractID]
	}
	if _, err := identity.ValidateNonce(current, tr.Nonce); err != nil {
		return err
	}
	return nil
}

// PrepareProposal decodes and speculatively validates every candidate
// transition, partitioning them into accepted and rejected without
// mutating the store, and returns the store's current root as the
// proposed app hash. A consensus driver calls this when it is the
// proposer for this block.
func (a *App) PrepareProposal(info BlockInfo, transitionsBytes [][]byte) (accepted, rejected [][]byte, appHash [32]byte, err error) {
	for _, raw := range transitionsBytes {
		tr, derr := a.Deserialize(raw)
		if derr != nil {
			rejected = append(rejected, raw)
			continue
		}
		if verr := a.validateOnly(tr); verr != nil {
			rejected = append(rejected, raw)
			continue
		}
		accepted = append(accepted, raw)
	}
	appHash, err = a.Executor.Store.RootHash()
	return accepted, rejected, appHash, err
}

// ProcessProposal re-validates a proposal a driver received from another
// proposer, without mutating the store. A single bad transition fails the
// whole proposal — the driver is expected to re-run prepare_proposal-style
// filtering upstream; this entry point is a pure accept/reject gate.
func (a *App) ProcessProposal(info BlockInfo, transitionsBytes [][]byte) (accept bool, err error) {
	for _, raw := range transitionsBytes {
		tr, derr := a.Deserialize(raw)
		if derr != nil {
			return false, nil
		}
		if verr := a.validateOnly(tr); verr != nil {
			return false, nil
		}
	}
	return true, nil
}

// FinalizeBlock executes every transition for real — each via
// Executor.Execute, which owns its own per-transition commit/rollback —
// deposits the resulting fees into the current epoch's pools, credits the
// proposer's block counter, runs one oldest-unpaid-epoch payout batch
// when a new epoch has begun, and records the committed block into
// platform state. signatures carries the quorum threshold signature over
// the block the driver collected; this layer does not itself verify it
// (that is internal/platform's VerifyChainLock, called by the driver
// before FinalizeBlock is invoked).
func (a *App) FinalizeBlock(info BlockInfo, transitionsBytes [][]byte, signatures [][]byte) ([]TxResult, error) {
	results := make([]TxResult, 0, len(transitionsBytes))
	var totalProcessing, totalStorage uint64
	for _, raw := range transitionsBytes {
		tr, derr := a.Deserialize(raw)
		if derr != nil {
			results = append(results, TxResult{Raw: raw, Err: derr})
			continue
		}
		tr.BlockTimeMs = info.TimeMs
		tr.BlockHeight = info.Height
		tr.CoreHeight = info.CoreHeight
		tr.Epoch = info.Epoch
		res, execErr := a.Executor.Execute(tr)
		totalProcessing += res.FeeResult.ProcessingFee
		totalStorage += res.FeeResult.StorageFee
		results = append(results, TxResult{Raw: raw, Err: execErr})
	}

	a.Platform.RecordBlock(platform.BlockInfo{
		Height:     info.Height,
		TimeMs:     info.TimeMs,
		CoreHeight: info.CoreHeight,
	})
	if err := a.settleEpoch(info, totalProcessing, totalStorage); err != nil {
		return results, err
	}
	return results, nil
}

// settleEpoch deposits this block's fees into info.Epoch's pools,
// increments the proposer's block counter, and, on the first block of a
// new epoch, runs one oldest-unpaid-epoch payout batch; a trigger pays
// one batch and resumes on the next.
func (a *App) settleEpoch(info BlockInfo, processingFee, storageFee uint64) error {
	t, err := a.Executor.Store.Begin()
	if err != nil {
		return errs.Wrap(err, "settle_epoch: begin")
	}
	committed := false
	defer func() {
		if !committed {
			t.Rollback()
		}
	}()

	ep, err := epoch.Load(t, info.Epoch)
	newEpoch := false
	if err != nil {
		ep, _, err = epoch.Open(t, info.Epoch, info.Height, info.TimeMs, info.CoreHeight, a.EpochBlocks)
		if err != nil {
			return errs.Wrap(err, "settle_epoch: open new epoch")
		}
		newEpoch = true
		if info.Epoch > 0 {
			if prev, perr := epoch.Load(t, info.Epoch-1); perr == nil {
				if _, _, serr := epoch.CreditCoreSubsidy(t, prev, ep, a.CoreSubsidyPerBlock); serr != nil {
					return serr
				}
			}
		}
	}
	if _, err := epoch.DepositFees(t, ep, processingFee, storageFee); err != nil {
		return err
	}
	if _, err := epoch.IncrementProposerBlocks(t, ep, info.ProposerProTxHash); err != nil {
		return err
	}

	if oldest, oerr := epoch.OldestUnpaid(t); newEpoch && oerr == nil && oldest < info.Epoch {
		if oldestInfo, lerr := epoch.Load(t, oldest); lerr == nil {
			done, _, _, perr := epoch.RunPayoutBatch(t, oldestInfo, a.PayoutReward)
			if perr != nil {
				return perr
			}
			if done {
				if _, err := epoch.AdvanceOldestUnpaid(t, oldest); err != nil {
					return err
				}
			}
		}
	}

	// The platform snapshot rides in the same transaction as the epoch
	// settlement, so a restarted node never sees pools from a block whose
	// platform view was lost.
	if _, err := platform.SaveState(t, a.Platform); err != nil {
		return err
	}

	if err := t.Commit(); err != nil {
		return err
	}
	committed = true

	a.log.WithFields(logrus.Fields{
		"epoch": info.Epoch, "processing_fee": processingFee, "storage_fee": storageFee,
	}).Debug("block settled into epoch pools")
	return nil
}
