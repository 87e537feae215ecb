package execution

import (
	"github.com/dashpay/drive-platform/internal/document"
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/identity"
	"github.com/dashpay/drive-platform/internal/registry"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/token"
	"github.com/dashpay/drive-platform/internal/voting"
	"github.com/dashpay/drive-platform/internal/wire"
)

// VotingParams fixes the two poll-lifecycle constants RegisterDefaults
// needs that aren't carried on a Transition itself: how long a freshly
// started poll stays open, and MaxLockCount, the lock-count threshold
// passed to voting.Finalize. Finalize does not consult that threshold:
// every Locked outcome is already final for its index value.
type VotingParams struct {
	PollDurationBlocks uint64
	MaxLockCount        int
}

// loadContract resolves a contract through e.Registry, using a throwaway
// overlay that is deliberately never Commit()ed: publishing an
// ActionFunc's contract reads into the process-wide cache would let a
// transition that is later abandoned (penalized, or never committed
// because a later stage rejects it) leak a cache entry nothing actually
// wrote to the store. The cost is a cache miss on the next lookup in a
// different transition; correctness, not speed, is what matters here.
func loadContract(e *Executor, id wire.ID) (*registry.DataContract, error) {
	if e.Registry == nil {
		return nil, errs.Fatal(errs.KindCorruptedDriveState, "no contract registry configured", nil)
	}
	ov := e.Registry.BeginOverlay()
	fi, err := registry.Load(ov, e.Store, id)
	if err != nil {
		return nil, err
	}
	return fi.Contract, nil
}

func addCost(total *store.Cost, o store.Cost) {
	total.Seeks += o.Seeks
	total.StorageLoadedBytes += o.StorageLoadedBytes
	total.StorageAddedBytes += o.StorageAddedBytes
	total.StorageReplacedBytes += o.StorageReplacedBytes
	total.HashNodeCalls += o.HashNodeCalls
	if len(o.RemovedBytesByEpoch) == 0 {
		return
	}
	if total.RemovedBytesByEpoch == nil {
		total.RemovedBytesByEpoch = map[uint64]uint64{}
	}
	for epoch, n := range o.RemovedBytesByEpoch {
		total.RemovedBytesByEpoch[epoch] += n
	}
}

func blockInfo(tr *Transition) document.BlockInfo {
	return document.BlockInfo{TimeMs: tr.BlockTimeMs, Height: tr.BlockHeight, CoreHeight: tr.CoreHeight, Epoch: tr.Epoch}
}

// --- Contract ---------------------------------------------------------

// ContractCreatePayload carries the new contract; its ID and OwnerID are
// taken as already resolved (entropy-derived id, signer as owner) by the
// caller that built the Transition.
type ContractCreatePayload struct {
	Contract *registry.DataContract
}

func contractCreateAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(ContractCreatePayload)
		if !ok || p.Contract == nil {
			return store.Cost{}, errs.New(errs.KindStructure, 5100, "ContractCreate payload missing contract", nil)
		}
		if e.Registry == nil {
			return store.Cost{}, errs.Fatal(errs.KindCorruptedDriveState, "no contract registry configured", nil)
		}
		ov := e.Registry.BeginOverlay()
		return registry.Store(ov, t, p.Contract, tr.Epoch, nil)
	}
}

// ContractUpdatePayload carries the full replacement contract; Version is
// set by the ActionFunc from the stored contract's current Version, not
// trusted from the submitter.
type ContractUpdatePayload struct {
	Contract *registry.DataContract
}

func contractUpdateAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(ContractUpdatePayload)
		if !ok || p.Contract == nil {
			return store.Cost{}, errs.New(errs.KindStructure, 5101, "ContractUpdate payload missing contract", nil)
		}
		current, err := loadContract(e, p.Contract.ID)
		if err != nil {
			return store.Cost{}, err
		}
		if current.OwnerID != tr.IdentityID {
			return store.Cost{}, errs.New(errs.KindAuthorization, 5102, "only the contract owner may update it", nil)
		}
		p.Contract.Version = current.Version + 1
		if e.Registry == nil {
			return store.Cost{}, errs.Fatal(errs.KindCorruptedDriveState, "no contract registry configured", nil)
		}
		ov := e.Registry.BeginOverlay()
		return registry.Store(ov, t, p.Contract, tr.Epoch, store.DefaultMergeHook(tr.Epoch))
	}
}

// --- Identity -----------------------------------------------------------

// IdentityCreatePayload funds a brand-new identity from a consumed
// asset-lock proof. tr.IdentityID is the identity id being created (the
// submitter computes it, conventionally from the asset lock's outpoint).
type IdentityCreatePayload struct {
	InitialBalance uint64
	Keys           []identity.Key
	AssetLock      identity.AssetLockProof
}

func identityCreateAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(IdentityCreatePayload)
		if !ok || len(p.Keys) == 0 {
			return store.Cost{}, errs.New(errs.KindStructure, 5110, "IdentityCreate payload missing keys", nil)
		}
		if err := identity.ValidatePublicKeys(p.Keys, true); err != nil {
			return store.Cost{}, err
		}
		lockCost, err := identity.ConsumeAssetLock(t, p.AssetLock, e.AssetLockVerifier, tr.CoreHeight)
		if err != nil {
			return store.Cost{}, err
		}
		_, createCost, err := identity.Create(t, tr.IdentityID, p.InitialBalance, p.Keys, tr.Epoch)
		if err != nil {
			return store.Cost{}, err
		}
		total := lockCost
		addCost(&total, createCost)
		return total, nil
	}
}

// IdentityUpdatePayload adds and/or disables keys and bumps the
// identity's revision. DisableKeyIDs entries are marked disabled at
// DisabledAtMs rather than removed, matching the key-never-deleted
// convention ResolveSigningKey depends on for existing signatures against
// prior state.
type IdentityUpdatePayload struct {
	AddKeys        []identity.Key
	DisableKeyIDs  []uint32
	DisabledAtMs   uint64
}

func identityUpdateAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(IdentityUpdatePayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5111, "IdentityUpdate payload missing", nil)
		}
		if err := identity.ValidatePublicKeys(p.AddKeys, false); err != nil {
			return store.Cost{}, err
		}
		id, err := identity.Load(t, tr.IdentityID)
		if err != nil {
			return store.Cost{}, err
		}
		for _, k := range p.AddKeys {
			id.Keys[k.ID] = k
		}
		for _, keyID := range p.DisableKeyIDs {
			k, ok := id.Keys[keyID]
			if !ok {
				continue
			}
			if k.Disabled() {
				return store.Cost{}, errs.New(errs.KindInvalidArgument, 5116, "key is already disabled",
					map[string]any{"key_id": keyID})
			}
			k.DisabledAt = p.DisabledAtMs
			id.Keys[keyID] = k
		}
		id.BumpRevision()
		return identity.Save(t, id, store.DefaultMergeHook(tr.Epoch))
	}
}

// IdentityTopUpPayload funds an existing identity from a second,
// independently consumed asset-lock proof.
type IdentityTopUpPayload struct {
	AssetLock identity.AssetLockProof
}

func identityTopUpAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(IdentityTopUpPayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5112, "IdentityTopUp payload missing asset lock", nil)
		}
		lockCost, err := identity.ConsumeAssetLock(t, p.AssetLock, e.AssetLockVerifier, tr.CoreHeight)
		if err != nil {
			return store.Cost{}, err
		}
		id, err := identity.Load(t, tr.IdentityID)
		if err != nil {
			return store.Cost{}, err
		}
		id.Credit(p.AssetLock.FundedValue)
		saveCost, err := identity.Save(t, id, store.DefaultMergeHook(tr.Epoch))
		if err != nil {
			return store.Cost{}, err
		}
		total := lockCost
		addCost(&total, saveCost)
		return total, nil
	}
}

// IdentityCreditWithdrawalPayload debits the submitter's balance toward a
// Core asset-unlock; the asset-unlock broadcast itself is
// internal/corerpc's concern. This ActionFunc only performs the
// Drive-side ledger debit.
type IdentityCreditWithdrawalPayload struct {
	Amount uint64
}

func identityCreditWithdrawalAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(IdentityCreditWithdrawalPayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5113, "IdentityCreditWithdrawal payload missing amount", nil)
		}
		id, err := identity.Load(t, tr.IdentityID)
		if err != nil {
			return store.Cost{}, err
		}
		if err := id.Debit(p.Amount); err != nil {
			return store.Cost{}, err
		}
		return identity.Save(t, id, store.DefaultMergeHook(tr.Epoch))
	}
}

// IdentityCreditTransferPayload moves credits from the submitter to
// another existing identity.
type IdentityCreditTransferPayload struct {
	Recipient wire.ID
	Amount    uint64
}

func identityCreditTransferAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(IdentityCreditTransferPayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5114, "IdentityCreditTransfer payload missing", nil)
		}
		from, err := identity.Load(t, tr.IdentityID)
		if err != nil {
			return store.Cost{}, err
		}
		to, err := identity.Load(t, p.Recipient)
		if err != nil {
			return store.Cost{}, errs.New(errs.KindRecipientIdentityDoesNotExist, 5115,
				"credit transfer recipient identity does not exist", map[string]any{"recipient": p.Recipient.String()})
		}
		if err := from.Debit(p.Amount); err != nil {
			return store.Cost{}, err
		}
		to.Credit(p.Amount)

		var total store.Cost
		cost, err := identity.Save(t, from, store.DefaultMergeHook(tr.Epoch))
		if err != nil {
			return store.Cost{}, err
		}
		addCost(&total, cost)
		cost, err = identity.Save(t, to, store.DefaultMergeHook(tr.Epoch))
		if err != nil {
			return store.Cost{}, err
		}
		addCost(&total, cost)
		return total, nil
	}
}

// --- Document -------------------------------------------------------------

func resolveDocumentType(contract *registry.DataContract, typeName string) (registry.DocumentType, error) {
	dt, ok := contract.DocumentType(typeName)
	if !ok {
		return registry.DocumentType{}, errs.New(errs.KindNotFound, 5120, "document type not found on contract",
			map[string]any{"type": typeName})
	}
	return dt, nil
}

// routeContested enters doc into a poll for every contested-index hit
// validateUniqueness reported: the first create on a contested value
// starts the poll and every conflicting create joins it as a contender.
// PrefundedVotingCredits, when non-zero, is debited from the submitter
// and locked into the poll's vote-storage balance.
func routeContested(t *store.Transaction, tr *Transition, contractID wire.ID, typeName string, docID wire.ID,
	results []document.UniquenessResult, params VotingParams, prefund uint64) (store.Cost, error) {
	var total store.Cost
	for _, r := range results {
		if r.Resolution != document.RouteToVoting {
			continue
		}
		poll, cost, err := voting.StartOrJoin(t, contractID, typeName, r.Index.Name, r.IndexKey,
			tr.BlockHeight, tr.BlockHeight+params.PollDurationBlocks,
			voting.Contender{DocumentID: docID, OwnerID: tr.IdentityID, LockedCredits: prefund})
		if err != nil {
			return store.Cost{}, err
		}
		addCost(&total, cost)

		if prefund > 0 {
			id, err := identity.Load(t, tr.IdentityID)
			if err != nil {
				return store.Cost{}, err
			}
			if err := id.Debit(prefund); err != nil {
				return store.Cost{}, err
			}
			cost, err = identity.Save(t, id, store.DefaultMergeHook(tr.Epoch))
			if err != nil {
				return store.Cost{}, err
			}
			addCost(&total, cost)
			cost, err = voting.FundPoll(t, poll, prefund)
			if err != nil {
				return store.Cost{}, err
			}
			addCost(&total, cost)
		}
	}
	return total, nil
}

// DocumentCreatePayload carries a not-yet-stored document; OwnerID is
// overwritten with tr.IdentityID so a submitter can never create a
// document on another identity's behalf. PrefundedVotingCredits is the
// amount locked into a contested poll's vote-storage balance when the
// create hits a contested index.
type DocumentCreatePayload struct {
	ContractID             wire.ID
	TypeName               string
	Document               *document.Document
	PrefundedVotingCredits uint64
}

func documentCreateAction(e *Executor, params VotingParams) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(DocumentCreatePayload)
		if !ok || p.Document == nil {
			return store.Cost{}, errs.New(errs.KindStructure, 5121, "DocumentCreate payload missing document", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		dt, err := resolveDocumentType(contract, p.TypeName)
		if err != nil {
			return store.Cost{}, err
		}
		p.Document.OwnerID = tr.IdentityID
		results, cost, err := document.Create(t, p.ContractID, dt, p.Document, blockInfo(tr))
		if err != nil {
			return store.Cost{}, err
		}
		pollCost, err := routeContested(t, tr, p.ContractID, p.TypeName, p.Document.ID, results, params, p.PrefundedVotingCredits)
		if err != nil {
			return store.Cost{}, err
		}
		addCost(&cost, pollCost)
		return cost, nil
	}
}

// DocumentReplacePayload carries the full replacement document body.
type DocumentReplacePayload struct {
	ContractID       wire.ID
	TypeName         string
	Document         *document.Document
	ExpectedRevision uint64
}

func documentReplaceAction(e *Executor, params VotingParams) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(DocumentReplacePayload)
		if !ok || p.Document == nil {
			return store.Cost{}, errs.New(errs.KindStructure, 5122, "DocumentReplace payload missing document", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		dt, err := resolveDocumentType(contract, p.TypeName)
		if err != nil {
			return store.Cost{}, err
		}
		current, err := document.Load(t, p.ContractID, p.TypeName, p.Document.ID)
		if err != nil {
			return store.Cost{}, err
		}
		if current.OwnerID != tr.IdentityID {
			return store.Cost{}, errs.New(errs.KindAuthorization, 5123, "only the document owner may replace it", nil)
		}
		results, cost, err := document.Replace(t, p.ContractID, dt, p.Document, p.ExpectedRevision, blockInfo(tr))
		if err != nil {
			return store.Cost{}, err
		}
		// A replace that moves an indexed value onto a contested tuple
		// contends for it the same way a create does.
		pollCost, err := routeContested(t, tr, p.ContractID, p.TypeName, p.Document.ID, results, params, 0)
		if err != nil {
			return store.Cost{}, err
		}
		addCost(&cost, pollCost)
		return cost, nil
	}
}

// DocumentDeletePayload names the document to remove.
type DocumentDeletePayload struct {
	ContractID wire.ID
	TypeName   string
	DocumentID wire.ID
}

func documentDeleteAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(DocumentDeletePayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5124, "DocumentDelete payload missing document id", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		dt, err := resolveDocumentType(contract, p.TypeName)
		if err != nil {
			return store.Cost{}, err
		}
		current, err := document.Load(t, p.ContractID, p.TypeName, p.DocumentID)
		if err != nil {
			return store.Cost{}, err
		}
		if current.OwnerID != tr.IdentityID {
			return store.Cost{}, errs.New(errs.KindAuthorization, 5125, "only the document owner may delete it", nil)
		}
		return document.Delete(t, p.ContractID, dt, p.DocumentID)
	}
}

// DocumentTransferPayload moves ownership of an existing document.
type DocumentTransferPayload struct {
	ContractID wire.ID
	TypeName   string
	DocumentID wire.ID
	NewOwner   wire.ID
}

func documentTransferAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(DocumentTransferPayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5126, "DocumentTransfer payload missing document id", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		dt, err := resolveDocumentType(contract, p.TypeName)
		if err != nil {
			return store.Cost{}, err
		}
		if !dt.TransferableTo {
			return store.Cost{}, errs.New(errs.KindAuthorization, 5127, "document type does not allow ownership transfer", nil)
		}
		current, err := document.Load(t, p.ContractID, p.TypeName, p.DocumentID)
		if err != nil {
			return store.Cost{}, err
		}
		if current.OwnerID != tr.IdentityID {
			return store.Cost{}, errs.New(errs.KindAuthorization, 5128, "only the document owner may transfer it", nil)
		}
		return document.Transfer(t, p.ContractID, dt, p.DocumentID, p.NewOwner, blockInfo(tr))
	}
}

// DocumentSetPricePayload lists (price > 0) or delists (price == 0) a
// document for direct purchase.
type DocumentSetPricePayload struct {
	ContractID wire.ID
	TypeName   string
	DocumentID wire.ID
	Price      uint64
}

func documentSetPriceAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(DocumentSetPricePayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5129, "DocumentSetPrice payload missing document id", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		dt, err := resolveDocumentType(contract, p.TypeName)
		if err != nil {
			return store.Cost{}, err
		}
		current, err := document.Load(t, p.ContractID, p.TypeName, p.DocumentID)
		if err != nil {
			return store.Cost{}, err
		}
		if current.OwnerID != tr.IdentityID {
			return store.Cost{}, errs.New(errs.KindAuthorization, 5130, "only the document owner may set its price", nil)
		}
		return document.SetPrice(t, p.ContractID, dt, p.DocumentID, p.Price, tr.Epoch)
	}
}

// DocumentPurchasePayload buys a listed document; the submitter
// (tr.IdentityID) is the buyer.
type DocumentPurchasePayload struct {
	ContractID wire.ID
	TypeName   string
	DocumentID wire.ID
}

func documentPurchaseAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(DocumentPurchasePayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5131, "DocumentPurchase payload missing document id", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		dt, err := resolveDocumentType(contract, p.TypeName)
		if err != nil {
			return store.Cost{}, err
		}
		result, cost, err := document.Purchase(t, p.ContractID, dt, p.DocumentID, tr.IdentityID, blockInfo(tr))
		if err != nil {
			return store.Cost{}, err
		}
		if result.SellerID == tr.IdentityID {
			return cost, nil
		}

		buyer, err := identity.Load(t, tr.IdentityID)
		if err != nil {
			return store.Cost{}, err
		}
		if err := buyer.Debit(result.PriceCharged); err != nil {
			return store.Cost{}, err
		}
		seller, err := identity.Load(t, result.SellerID)
		if err != nil {
			return store.Cost{}, err
		}
		seller.Credit(result.PriceCharged)

		saveCost, err := identity.Save(t, buyer, store.DefaultMergeHook(tr.Epoch))
		if err != nil {
			return store.Cost{}, err
		}
		addCost(&cost, saveCost)
		saveCost, err = identity.Save(t, seller, store.DefaultMergeHook(tr.Epoch))
		if err != nil {
			return store.Cost{}, err
		}
		addCost(&cost, saveCost)
		return cost, nil
	}
}

// --- Token ------------------------------------------------------------

func resolveToken(contract *registry.DataContract, position uint16) (registry.TokenConfiguration, error) {
	cfg, ok := contract.Token(position)
	if !ok {
		return registry.TokenConfiguration{}, errs.New(errs.KindNotFound, 5140, "token position not found on contract",
			map[string]any{"position": position})
	}
	return cfg, nil
}

// TokenMintPayload mints amount of the token at Position to To.
type TokenMintPayload struct {
	ContractID wire.ID
	Position   uint16
	To         wire.ID
	Amount     uint64
}

func tokenMintAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(TokenMintPayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5141, "TokenMint payload missing", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		cfg, err := resolveToken(contract, p.Position)
		if err != nil {
			return store.Cost{}, err
		}
		return token.Mint(t, contract, cfg, tr.IdentityID, p.To, p.Amount, tr.BlockTimeMs, tr.Epoch)
	}
}

// TokenBurnPayload burns amount of the token at Position from From.
type TokenBurnPayload struct {
	ContractID wire.ID
	Position   uint16
	From       wire.ID
	Amount     uint64
}

func tokenBurnAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(TokenBurnPayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5142, "TokenBurn payload missing", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		cfg, err := resolveToken(contract, p.Position)
		if err != nil {
			return store.Cost{}, err
		}
		return token.Burn(t, contract, cfg, tr.IdentityID, p.From, p.Amount, tr.BlockTimeMs, tr.Epoch)
	}
}

// TokenFreezePayload freezes amount of Target's spendable balance.
type TokenFreezePayload struct {
	ContractID wire.ID
	Position   uint16
	Target     wire.ID
	Amount     uint64
}

func tokenFreezeAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(TokenFreezePayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5143, "TokenFreeze payload missing", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		cfg, err := resolveToken(contract, p.Position)
		if err != nil {
			return store.Cost{}, err
		}
		return token.Freeze(t, contract, cfg, tr.IdentityID, p.Target, p.Amount, tr.Epoch)
	}
}

// TokenUnfreezePayload reverses TokenFreeze.
type TokenUnfreezePayload struct {
	ContractID wire.ID
	Position   uint16
	Target     wire.ID
	Amount     uint64
}

func tokenUnfreezeAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(TokenUnfreezePayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5144, "TokenUnfreeze payload missing", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		cfg, err := resolveToken(contract, p.Position)
		if err != nil {
			return store.Cost{}, err
		}
		return token.Unfreeze(t, contract, cfg, tr.IdentityID, p.Target, p.Amount, tr.Epoch)
	}
}

// TokenDestroyFrozenFundsPayload permanently removes frozen funds.
type TokenDestroyFrozenFundsPayload struct {
	ContractID wire.ID
	Position   uint16
	Target     wire.ID
	Amount     uint64
}

func tokenDestroyFrozenFundsAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(TokenDestroyFrozenFundsPayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5145, "TokenDestroyFrozenFunds payload missing", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		cfg, err := resolveToken(contract, p.Position)
		if err != nil {
			return store.Cost{}, err
		}
		return token.DestroyFrozenFunds(t, contract, cfg, tr.IdentityID, p.Target, p.Amount, tr.BlockTimeMs, tr.Epoch)
	}
}

// TokenTransferPayload moves spendable balance from the submitter to To.
type TokenTransferPayload struct {
	ContractID wire.ID
	Position   uint16
	To         wire.ID
	Amount     uint64
}

func tokenTransferAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(TokenTransferPayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5146, "TokenTransfer payload missing", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		cfg, err := resolveToken(contract, p.Position)
		if err != nil {
			return store.Cost{}, err
		}
		return token.Transfer(t, contract, cfg, tr.IdentityID, p.To, p.Amount, tr.BlockTimeMs, tr.Epoch)
	}
}

// TokenClaimPayload credits the submitter Amount from a pre-computed
// distribution schedule; the schedule cadence itself lives outside this
// op (see token.Claim's doc comment).
type TokenClaimPayload struct {
	ContractID wire.ID
	Position   uint16
	Amount     uint64
}

func tokenClaimAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(TokenClaimPayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5147, "TokenClaim payload missing", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		cfg, err := resolveToken(contract, p.Position)
		if err != nil {
			return store.Cost{}, err
		}
		return token.Claim(t, contract, cfg, tr.IdentityID, p.Amount, tr.BlockTimeMs, tr.Epoch)
	}
}

// TokenEmergencyActionPayload pauses or unpauses a token position.
type TokenEmergencyActionPayload struct {
	ContractID wire.ID
	Position   uint16
	Pause      bool
}

func tokenEmergencyActionAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(TokenEmergencyActionPayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5148, "TokenEmergencyAction payload missing", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		cfg, err := resolveToken(contract, p.Position)
		if err != nil {
			return store.Cost{}, err
		}
		return token.EmergencyAction(t, contract, cfg, tr.IdentityID, p.Pause, tr.Epoch)
	}
}

// TokenConfigUpdatePayload names the operation whose change-control rule
// is being exercised; token.ConfigUpdate itself only authorizes — the
// actual rule mutation lives in the contract update this transition is
// expected to be batched with (see OpBatch).
type TokenConfigUpdatePayload struct {
	ContractID wire.ID
	Position   uint16
	Operation  string
}

func tokenConfigUpdateAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(TokenConfigUpdatePayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5149, "TokenConfigUpdate payload missing", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		cfg, err := resolveToken(contract, p.Position)
		if err != nil {
			return store.Cost{}, err
		}
		_, cost, err := token.ConfigUpdate(t, contract, cfg, p.Operation, tr.IdentityID, tr.Epoch)
		return cost, err
	}
}

// TokenSetDirectPurchasePricePayload sets (or, at 0, clears) a token's
// fixed direct-purchase price.
type TokenSetDirectPurchasePricePayload struct {
	ContractID    wire.ID
	Position      uint16
	PricePerToken uint64
}

func tokenSetDirectPurchasePriceAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(TokenSetDirectPurchasePricePayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5150, "TokenSetDirectPurchasePrice payload missing", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		cfg, err := resolveToken(contract, p.Position)
		if err != nil {
			return store.Cost{}, err
		}
		return token.SetDirectPurchasePrice(t, contract, cfg, tr.IdentityID, p.PricePerToken, tr.Epoch)
	}
}

// TokenDirectPurchasePayload buys TokenAmount of the token at Position at
// its configured fixed price.
type TokenDirectPurchasePayload struct {
	ContractID  wire.ID
	Position    uint16
	TokenAmount uint64
}

func tokenDirectPurchaseAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(TokenDirectPurchasePayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5151, "TokenDirectPurchase payload missing", nil)
		}
		contract, err := loadContract(e, p.ContractID)
		if err != nil {
			return store.Cost{}, err
		}
		cfg, err := resolveToken(contract, p.Position)
		if err != nil {
			return store.Cost{}, err
		}
		result, cost, err := token.DirectPurchase(t, contract, cfg, tr.IdentityID, p.TokenAmount, tr.BlockTimeMs, tr.Epoch)
		if err != nil {
			return store.Cost{}, err
		}
		buyer, err := identity.Load(t, tr.IdentityID)
		if err != nil {
			return store.Cost{}, err
		}
		if err := buyer.Debit(result.TotalCost); err != nil {
			return store.Cost{}, err
		}
		saveCost, err := identity.Save(t, buyer, store.DefaultMergeHook(tr.Epoch))
		if err != nil {
			return store.Cost{}, err
		}
		addCost(&cost, saveCost)
		return cost, nil
	}
}

// --- Voting -------------------------------------------------------------

// VotingStartOrJoinPayload starts (or joins, if already running) a poll
// for one contested index value.
type VotingStartOrJoinPayload struct {
	ContractID wire.ID
	TypeName   string
	IndexName  string
	IndexKey   []byte
	Contender  voting.Contender
}

func votingStartOrJoinAction(params VotingParams) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(VotingStartOrJoinPayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5160, "VotingStartOrJoin payload missing", nil)
		}
		_, cost, err := voting.StartOrJoin(t, p.ContractID, p.TypeName, p.IndexName, p.IndexKey,
			tr.BlockHeight, tr.BlockHeight+params.PollDurationBlocks, p.Contender)
		return cost, err
	}
}

// VotingCastVotePayload records the submitter's vote for one poll. Choice
// is the contender's document id, the zero ID to abstain, or
// voting.LockChoice() to vote to lock the contest.
type VotingCastVotePayload struct {
	ContractID wire.ID
	TypeName   string
	IndexName  string
	IndexKey   []byte
	Choice     wire.ID
}

func votingCastVoteAction() ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(VotingCastVotePayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5161, "VotingCastVote payload missing", nil)
		}
		poll, err := voting.Load(t, p.ContractID, p.TypeName, p.IndexName, p.IndexKey)
		if err != nil {
			return store.Cost{}, err
		}
		return voting.CastVote(t, poll, tr.IdentityID, p.Choice)
	}
}

// VotingFinalizePayload closes a poll once its end block has passed.
type VotingFinalizePayload struct {
	ContractID wire.ID
	TypeName   string
	IndexName  string
	IndexKey   []byte
}

func votingFinalizeAction(params VotingParams) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(VotingFinalizePayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5162, "VotingFinalize payload missing", nil)
		}
		poll, err := voting.Load(t, p.ContractID, p.TypeName, p.IndexName, p.IndexKey)
		if err != nil {
			return store.Cost{}, err
		}
		if tr.BlockHeight < poll.EndBlock {
			return store.Cost{}, errs.New(errs.KindInvalidArgument, 5163, "poll has not reached its end block",
				map[string]any{"end_block": poll.EndBlock, "height": tr.BlockHeight})
		}
		cost, err := voting.Finalize(t, poll, uint32(params.MaxLockCount))
		if err != nil {
			return store.Cost{}, err
		}

		// Apply the outcome to the contested index: the winner's document
		// takes the entry and every loser's document is removed (its
		// storage refunded through the removed-bytes accounting); a locked
		// contest clears the entry and removes every contender.
		switch poll.Status {
		case voting.Awarded:
			c, err := document.SetIndexEntry(t, p.ContractID, p.TypeName, p.IndexName, p.IndexKey,
				poll.AwardedDocument, poll.AwardedTo, tr.Epoch)
			if err != nil {
				return store.Cost{}, err
			}
			addCost(&cost, c)
			for _, contender := range poll.Contenders {
				if contender.DocumentID == poll.AwardedDocument {
					continue
				}
				c, err := document.RemoveRejected(t, p.ContractID, p.TypeName, contender.DocumentID)
				if err != nil {
					return store.Cost{}, err
				}
				addCost(&cost, c)
			}
		case voting.Locked:
			c, err := document.ClearIndexEntry(t, p.ContractID, p.TypeName, p.IndexName, p.IndexKey)
			if err != nil {
				return store.Cost{}, err
			}
			addCost(&cost, c)
			for _, contender := range poll.Contenders {
				c, err := document.RemoveRejected(t, p.ContractID, p.TypeName, contender.DocumentID)
				if err != nil {
					return store.Cost{}, err
				}
				addCost(&cost, c)
			}
		}

		_, burnCost, err := voting.BurnResidual(t, poll)
		if err != nil {
			return store.Cost{}, err
		}
		addCost(&cost, burnCost)
		return cost, nil
	}
}

// --- Masternode vote ------------------------------------------------------

// MasternodeVotePayload is a quorum-signed vote on a contested poll,
// verified against the quorum's BLS public key (voting.VerifyMasternodeVote)
// in addition to — not instead of — the submitter's own identity
// signature checked by Execute's normal stage 2.
type MasternodeVotePayload struct {
	ContractID      wire.ID
	TypeName        string
	IndexName       string
	IndexKey        []byte
	Choice          wire.ID
	QuorumPublicKey []byte
	QuorumSignature []byte
}

func masternodeVoteAction() ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(MasternodeVotePayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5170, "MasternodeVote payload missing", nil)
		}
		valid, err := voting.VerifyMasternodeVote(p.QuorumPublicKey, p.QuorumSignature, tr.SignedMessage)
		if err != nil {
			return store.Cost{}, err
		}
		if !valid {
			return store.Cost{}, errs.New(errs.KindProofVerification, 5171, "masternode quorum signature does not verify", nil)
		}
		poll, err := voting.Load(t, p.ContractID, p.TypeName, p.IndexName, p.IndexKey)
		if err != nil {
			return store.Cost{}, err
		}
		return voting.CastVote(t, poll, tr.IdentityID, p.Choice)
	}
}

// --- Batch --------------------------------------------------------------

// BatchItem is one sub-transition inside a Batch: same envelope shape as
// Transition minus the parts that stay fixed for the whole batch
// (identity, nonce, signature).
type BatchItem struct {
	Operation       OperationKind
	ProtocolVersion uint32
	ContractID      *wire.ID
	Payload         any
}

// BatchPayload runs each Items entry against the same transaction and
// identity as the enclosing Batch transition, in order; the first
// sub-operation to fail aborts the whole batch (Execute then discards the
// entire transaction, same as any other failed ActionFunc).
type BatchPayload struct {
	Items []BatchItem
}

func batchAction(e *Executor) ActionFunc {
	return func(t *store.Transaction, tr *Transition) (store.Cost, error) {
		p, ok := tr.Payload.(BatchPayload)
		if !ok {
			return store.Cost{}, errs.New(errs.KindStructure, 5190, "Batch payload missing items", nil)
		}
		var total store.Cost
		for _, item := range p.Items {
			fn, err := e.lookup(item.Operation, item.ProtocolVersion)
			if err != nil {
				return store.Cost{}, err
			}
			sub := *tr
			sub.Operation = item.Operation
			sub.ProtocolVersion = item.ProtocolVersion
			sub.ContractID = item.ContractID
			sub.Payload = item.Payload
			cost, err := fn(t, &sub)
			if err != nil {
				return store.Cost{}, err
			}
			addCost(&total, cost)
		}
		return total, nil
	}
}

// RegisterDefaults wires protocol version 0 of every operation kind into
// e: document, token, and voting lifecycle, plus the identity and
// contract operations (IdentityCreate included; Execute runs that one
// through its own short pipeline). Call once per Executor, before it
// serves its first transition.
func RegisterDefaults(e *Executor, voteParams VotingParams) {
	e.Register(OpContractCreate, 0, contractCreateAction(e))
	e.Register(OpContractUpdate, 0, contractUpdateAction(e))

	e.Register(OpIdentityCreate, 0, identityCreateAction(e))
	e.Register(OpIdentityUpdate, 0, identityUpdateAction(e))
	e.Register(OpIdentityTopUp, 0, identityTopUpAction(e))
	e.Register(OpIdentityCreditWithdrawal, 0, identityCreditWithdrawalAction(e))
	e.Register(OpIdentityCreditTransfer, 0, identityCreditTransferAction(e))

	e.Register(OpDocumentCreate, 0, documentCreateAction(e, voteParams))
	e.Register(OpDocumentReplace, 0, documentReplaceAction(e, voteParams))
	e.Register(OpDocumentDelete, 0, documentDeleteAction(e))
	e.Register(OpDocumentTransfer, 0, documentTransferAction(e))
	e.Register(OpDocumentSetPrice, 0, documentSetPriceAction(e))
	e.Register(OpDocumentPurchase, 0, documentPurchaseAction(e))

	e.Register(OpTokenMint, 0, tokenMintAction(e))
	e.Register(OpTokenBurn, 0, tokenBurnAction(e))
	e.Register(OpTokenFreeze, 0, tokenFreezeAction(e))
	e.Register(OpTokenUnfreeze, 0, tokenUnfreezeAction(e))
	e.Register(OpTokenDestroyFrozenFunds, 0, tokenDestroyFrozenFundsAction(e))
	e.Register(OpTokenTransfer, 0, tokenTransferAction(e))
	e.Register(OpTokenClaim, 0, tokenClaimAction(e))
	e.Register(OpTokenEmergencyAction, 0, tokenEmergencyActionAction(e))
	e.Register(OpTokenConfigUpdate, 0, tokenConfigUpdateAction(e))
	e.Register(OpTokenSetDirectPurchasePrice, 0, tokenSetDirectPurchasePriceAction(e))
	e.Register(OpTokenDirectPurchase, 0, tokenDirectPurchaseAction(e))

	e.Register(OpVotingStartOrJoin, 0, votingStartOrJoinAction(voteParams))
	e.Register(OpVotingCastVote, 0, votingCastVoteAction())
	e.Register(OpVotingFinalize, 0, votingFinalizeAction(voteParams))
	e.Register(OpMasternodeVote, 0, masternodeVoteAction())

	e.Register(OpBatch, 0, batchAction(e))
}
