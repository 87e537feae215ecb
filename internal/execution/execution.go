// Package execution implements the versioned state-transition pipeline:
// basic structure, signature, minimum-balance precheck, nonce, state, and
// apply, in that order, dispatching each accepted
// operation through a per-(operation, protocol version) function table so
// new protocol versions only ever add rows, never replace one in place.
package execution

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/fees"
	"github.com/dashpay/drive-platform/internal/identity"
	"github.com/dashpay/drive-platform/internal/registry"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// OperationKind names one of the transition types the executor dispatches.
type OperationKind string

const (
	OpContractCreate           OperationKind = "ContractCreate"
	OpContractUpdate           OperationKind = "ContractUpdate"
	OpIdentityCreate           OperationKind = "IdentityCreate"
	OpIdentityUpdate           OperationKind = "IdentityUpdate"
	OpIdentityTopUp            OperationKind = "IdentityTopUp"
	OpIdentityCreditWithdrawal OperationKind = "IdentityCreditWithdrawal"
	OpIdentityCreditTransfer   OperationKind = "IdentityCreditTransfer"
	OpBatch                    OperationKind = "Batch"
	OpMasternodeVote           OperationKind = "MasternodeVote"

	OpDocumentCreate   OperationKind = "DocumentCreate"
	OpDocumentReplace  OperationKind = "DocumentReplace"
	OpDocumentDelete   OperationKind = "DocumentDelete"
	OpDocumentTransfer OperationKind = "DocumentTransfer"
	OpDocumentSetPrice OperationKind = "DocumentSetPrice"
	OpDocumentPurchase OperationKind = "DocumentPurchase"

	OpTokenMint                 OperationKind = "TokenMint"
	OpTokenBurn                 OperationKind = "TokenBurn"
	OpTokenFreeze               OperationKind = "TokenFreeze"
	OpTokenUnfreeze             OperationKind = "TokenUnfreeze"
	OpTokenDestroyFrozenFunds   OperationKind = "TokenDestroyFrozenFunds"
	OpTokenTransfer             OperationKind = "TokenTransfer"
	OpTokenClaim                OperationKind = "TokenClaim"
	OpTokenEmergencyAction      OperationKind = "TokenEmergencyAction"
	OpTokenConfigUpdate         OperationKind = "TokenConfigUpdate"
	OpTokenSetDirectPurchasePrice OperationKind = "TokenSetDirectPurchasePrice"
	OpTokenDirectPurchase       OperationKind = "TokenDirectPurchase"

	OpVotingStartOrJoin OperationKind = "VotingStartOrJoin"
	OpVotingCastVote    OperationKind = "VotingCastVote"
	OpVotingFinalize    OperationKind = "VotingFinalize"
)

// ActionFunc performs stages 5-6 (state validation + materialization +
// apply) for one (operation, version) row. It must check everything it
// needs before issuing its first store write — our document/token/voting
// op functions already follow this check-then-write discipline, which is
// what lets Execute treat "ActionFunc returned an error before writing
// anything" as safely discardable by abandoning the whole transaction.
type ActionFunc func(t *store.Transaction, tr *Transition) (store.Cost, error)

// Transition is the decoded envelope of one user-submitted state
// transition, already past stage-1 byte parsing.
type Transition struct {
	Operation       OperationKind
	ProtocolVersion uint32
	IdentityID      wire.ID
	ContractID      *wire.ID // non-nil for contract-scoped nonces (batch document/token ops)
	Nonce           uint64
	SignatureKeyID  uint32
	Signature       []byte
	SignedMessage   []byte

	RequiredKeyPurpose     identity.KeyPurpose
	RequiredSecurity       identity.SecurityLevel
	UserFeeIncreasePercent uint64

	// BlockTimeMs, BlockHeight, CoreHeight, and Epoch carry the current
	// block's context down into ActionFuncs that need it to auto-fill
	// document timestamps or attribute storage flags to the paying epoch
	// (document/token/voting writes all take an epoch). The block driver
	// (internal/abci) fills these in from its own BlockInfo before calling
	// Execute; they are zero in tests that don't care.
	BlockTimeMs uint64
	BlockHeight uint64
	CoreHeight  uint32
	Epoch       uint64

	// Payload is the operation-specific parameter struct; each registered
	// ActionFunc knows which concrete type to expect and type-asserts it.
	Payload any
}

// SignatureVerifier checks a transition's signature against a resolved
// signing key. Injected so the executor never depends on one concrete
// signature scheme.
type SignatureVerifier func(key identity.Key, message, signature []byte) (bool, error)

// Result is the outcome of one Execute call.
type Result struct {
	Accepted  bool
	Penalized bool
	FeeResult fees.Result
}

// Executor wires the pipeline together: version table, fee parameters,
// penalty amount, and the injected signature verifier.
//
// Execute owns the full lifecycle (Begin/Commit/Rollback) of the
// transaction it runs a transition against, one transaction per
// transition. bbolt allows only one writable transaction open at a time
// with no savepoint/partial-rollback primitive, so speculative apply is
// implemented as "apply for real against a dedicated transaction, and
// abandon that whole transaction instead of committing it" rather than
// as a true estimate-only pass.
type Executor struct {
	Store         *store.Store
	Registry      *registry.Registry
	FeeParams     fees.Params
	PenaltyAmount uint64
	Verifier      SignatureVerifier
	Metrics       *fees.Metrics

	// AssetLockVerifier checks an InstantSend lock backing an
	// IdentityCreate/IdentityTopUp asset-lock proof. IdentityCreate is the
	// one operation Execute does not run through the normal identity-load
	// pipeline (there is no existing identity yet to load or sign with),
	// so its ActionFunc validates the proof itself instead of relying on
	// e.Verifier. Nil accepts every instant lock, which is only correct
	// for tests.
	AssetLockVerifier identity.InstantLockVerifier

	log *logrus.Logger

	actions map[OperationKind]map[uint32]ActionFunc
}

// New builds an Executor. verifier must not be nil in production; tests
// may supply a stub that always accepts. reg is the contract cache
// document/token action lookups resolve contracts through; it may be nil
// for tests that only exercise operations with no contract payload.
func New(s *store.Store, reg *registry.Registry, feeParams fees.Params, penaltyAmount uint64, verifier SignatureVerifier, metrics *fees.Metrics) *Executor {
	return &Executor{
		Store:         s,
		Registry:      reg,
		FeeParams:     feeParams,
		PenaltyAmount: penaltyAmount,
		Verifier:      verifier,
		Metrics:       metrics,
		log:           logrus.StandardLogger(),
		actions:       map[OperationKind]map[uint32]ActionFunc{},
	}
}

// Register adds the ActionFunc responsible for (op, version). Adding a
// new protocol version means calling Register again with a new version
// number; existing rows are never replaced in place.
func (e *Executor) Register(op OperationKind, version uint32, fn ActionFunc) {
	byVersion, ok := e.actions[op]
	if !ok {
		byVersion = map[uint32]ActionFunc{}
		e.actions[op] = byVersion
	}
	byVersion[version] = fn
}

func (e *Executor) lookup(op OperationKind, version uint32) (ActionFunc, error) {
	byVersion, ok := e.actions[op]
	if !ok {
		return nil, errs.Fatal(errs.KindUnknownVersionMismatch,
			fmt.Sprintf("no version table registered for operation %s", op), nil)
	}
	fn, ok := byVersion[version]
	if !ok {
		// A version we have no row for is attributable to the submitter,
		// not to node misconfiguration: reject the transition.
		return nil, errs.New(errs.KindProtocolVersion, 1001,
			fmt.Sprintf("unsupported protocol version %d for operation %s", version, op), nil)
	}
	return fn, nil
}

// Execute runs the full pipeline for tr, each call against its own
// dedicated transaction. On return, either that transaction (or a
// replacement one carrying only a nonce-bump penalty) has already been
// committed, or nothing was persisted at all — the caller never needs to
// commit or roll anything back itself.
func (e *Executor) Execute(tr *Transition) (Result, error) {
	// Stage 1: basic structure (operation/version exists in the table).
	fn, err := e.lookup(tr.Operation, tr.ProtocolVersion)
	if err != nil {
		return Result{}, err
	}

	// IdentityCreate cannot run the stage-2/stage-4 identity-load, signature,
	// and nonce pipeline below: the identity it names does not exist until
	// the ActionFunc creates it, so there is no key to resolve a signature
	// against and no nonce to validate. Its anti-replay is the asset lock's
	// own single-spend ledger (identity.ConsumeAssetLock), checked inside
	// the ActionFunc itself.
	if tr.Operation == OpIdentityCreate {
		return e.executeIdentityCreate(fn, tr)
	}

	t, err := e.Store.Begin()
	if err != nil {
		return Result{}, errs.Wrap(err, "begin transition transaction")
	}
	committed := false
	defer func() {
		if !committed {
			t.Rollback()
		}
	}()

	// Stage 2: signature / identity lookup.
	id, err := identity.Load(t, tr.IdentityID)
	if err != nil {
		return Result{}, err
	}
	key, err := id.ResolveSigningKey(tr.SignatureKeyID, tr.RequiredKeyPurpose, tr.RequiredSecurity, tr.ContractID)
	if err != nil {
		return Result{}, err
	}
	if e.Verifier != nil {
		valid, err := e.Verifier(key, tr.SignedMessage, tr.Signature)
		if err != nil {
			return Result{}, err
		}
		if !valid {
			return Result{}, errs.New(errs.KindSignature, 5001, "transition signature does not verify", nil)
		}
	}

	// Stages 3/5/6 are run together: apply the action for real against t,
	// since our op packages check before they write and a rejected
	// transaction's transaction is simply never committed.
	cost, fnErr := fn(t, tr)
	var fatal *errs.FatalError
	if fnErr != nil && errors.As(fnErr, &fatal) {
		return Result{}, fnErr
	}

	quote := fees.ApplyUserFeeIncrease(fees.CalculateFee(e.FeeParams, []fees.OpUnit{{Grove: &cost}}), tr.UserFeeIncreasePercent)
	balanceOutcome := fees.CheckBalance(quote, id.Balance)
	if balanceOutcome == fees.OutcomeRejectedInsufficientProcessing {
		return Result{FeeResult: quote}, fees.RejectNoPenalty()
	}

	// Stage 4: nonce. A nonce that fails to validate means nothing here —
	// action result included — may be committed.
	newNonce, nonceErr := e.validateNonce(id, tr)
	if nonceErr != nil {
		return Result{}, nonceErr
	}

	if fnErr != nil || balanceOutcome == fees.OutcomeRejectedInsufficientStorage {
		// Abandon whatever fn may have speculatively written and apply only
		// a nonce bump + penalty, against a fresh transaction.
		t.Rollback()
		committed = true // the deferred rollback above must not run twice

		decisionErr := fnErr
		if decisionErr == nil {
			decisionErr = fees.Penalize(e.PenaltyAmount).Err
		}
		result, err := e.applyPenalty(tr, newNonce)
		if err != nil {
			return Result{}, err
		}
		return result, decisionErr
	}

	// Success: fn's writes already landed in t; layer the fee debit and
	// nonce bump on top of the identity state as fn left it, then commit.
	id, err = identity.Load(t, tr.IdentityID)
	if err != nil {
		return Result{}, errs.Fatal(errs.KindCorruptedDriveState, "identity vanished mid-transition", err)
	}
	// Storage bytes released by this transition (e.g. a document delete)
	// are refunded to the payer before the gross fee is debited, so a
	// delete that frees more than it costs nets out as a credit rather
	// than silently vanishing.
	id.Credit(quote.TotalRefunds)
	if err := id.Debit(quote.Total()); err != nil {
		return Result{}, errs.Fatal(errs.KindCorruptedCachedState, "balance check passed but debit failed", err)
	}
	e.applyNonceBump(id, tr, newNonce)
	if _, err := identity.Save(t, id, store.DefaultMergeHook(tr.Epoch)); err != nil {
		return Result{}, err
	}
	if err := t.Commit(); err != nil {
		return Result{}, err
	}
	committed = true

	if e.Metrics != nil {
		e.Metrics.Observe(quote)
	}
	e.log.WithFields(logrus.Fields{
		"identity": tr.IdentityID, "operation": tr.Operation,
		"processing_fee": quote.ProcessingFee, "storage_fee": quote.StorageFee,
	}).Debug("transition applied")

	return Result{Accepted: true, FeeResult: quote}, nil
}

// executeIdentityCreate runs IdentityCreate's own short pipeline: no prior
// identity to verify a signature or nonce against, so fn (identityCreateAction)
// is trusted to validate the asset-lock proof and key set itself before it
// writes anything. A failed attempt here is simply discarded — there is no
// identity balance to charge a penalty against and no nonce slot to bump, so
// unlike every other operation a rejected IdentityCreate leaves nothing at
// all for the caller to retry against except resubmitting the same proof.
func (e *Executor) executeIdentityCreate(fn ActionFunc, tr *Transition) (Result, error) {
	t, err := e.Store.Begin()
	if err != nil {
		return Result{}, errs.Wrap(err, "begin identity create transaction")
	}
	committed := false
	defer func() {
		if !committed {
			t.Rollback()
		}
	}()

	cost, fnErr := fn(t, tr)
	var fatal *errs.FatalError
	if fnErr != nil && errors.As(fnErr, &fatal) {
		return Result{}, fnErr
	}
	if fnErr != nil {
		return Result{}, fnErr
	}

	id, err := identity.Load(t, tr.IdentityID)
	if err != nil {
		return Result{}, errs.Fatal(errs.KindCorruptedDriveState, "identity vanished after create", err)
	}
	quote := fees.ApplyUserFeeIncrease(fees.CalculateFee(e.FeeParams, []fees.OpUnit{{Grove: &cost}}), tr.UserFeeIncreasePercent)
	if err := id.Debit(quote.Total()); err != nil {
		return Result{}, errs.Wrap(err, "asset lock funded value cannot cover identity create fees")
	}
	if _, err := identity.Save(t, id, store.DefaultMergeHook(tr.Epoch)); err != nil {
		return Result{}, err
	}
	if err := t.Commit(); err != nil {
		return Result{}, err
	}
	committed = true

	if e.Metrics != nil {
		e.Metrics.Observe(quote)
	}
	e.log.WithFields(logrus.Fields{
		"identity": tr.IdentityID, "operation": tr.Operation,
		"processing_fee": quote.ProcessingFee, "storage_fee": quote.StorageFee,
	}).Debug("identity created")

	return Result{Accepted: true, FeeResult: quote}, nil
}

// applyPenalty bumps newNonce into place and debits the penalty amount
// against a fresh transaction, independent of whatever the rejected
// attempt may have touched.
func (e *Executor) applyPenalty(tr *Transition, newNonce uint64) (Result, error) {
	t, err := e.Store.Begin()
	if err != nil {
		return Result{}, errs.Wrap(err, "begin penalty transaction")
	}
	committed := false
	defer func() {
		if !committed {
			t.Rollback()
		}
	}()

	id, err := identity.Load(t, tr.IdentityID)
	if err != nil {
		return Result{}, err
	}
	penalty := e.PenaltyAmount
	if penalty > id.Balance {
		penalty = id.Balance
	}
	_ = id.Debit(penalty)
	e.applyNonceBump(id, tr, newNonce)
	if _, err := identity.Save(t, id, store.DefaultMergeHook(tr.Epoch)); err != nil {
		return Result{}, err
	}
	if err := t.Commit(); err != nil {
		return Result{}, err
	}
	committed = true

	e.log.WithFields(logrus.Fields{
		"identity": tr.IdentityID, "operation": tr.Operation, "penalty": penalty,
	}).Debug("transition rejected after nonce validation; penalty charged")
	return Result{Penalized: true}, nil
}

// validateNonce applies the sliding-bitset algorithm against the
// identity's global nonce, or its per-contract nonce when tr is
// contract-scoped (batch document/token operations).
func (e *Executor) validateNonce(id *identity.Identity, tr *Transition) (uint64, error) {
	if tr.ContractID == nil {
		return identity.ValidateNonce(id.Nonce, tr.Nonce)
	}
	if id.ContractNonces == nil {
		id.ContractNonces = map[wire.ID]uint64{}
	}
	return identity.ValidateNonce(id.ContractNonces[*tr.ContractID], tr.Nonce)
}

// applyNonceBump writes newNonce into the right slot (global or
// per-contract) without touching anything else. The penalty path uses
// it alone; the success path reuses it since a successful action also
// consumes the nonce.
func (e *Executor) applyNonceBump(id *identity.Identity, tr *Transition, newNonce uint64) {
	if tr.ContractID == nil {
		id.Nonce = newNonce
		return
	}
	if id.ContractNonces == nil {
		id.ContractNonces = map[wire.ID]uint64{}
	}
	id.ContractNonces[*tr.ContractID] = newNonce
}
