package identity

import (
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/store"
)

// AssetLockKind distinguishes the two proof shapes an IdentityCreate (or
// IdentityTopUp) transition may carry.
type AssetLockKind int

const (
	AssetLockInstant AssetLockKind = iota
	AssetLockChain
)

// AssetLockProof is either an InstantSend-backed lock or a chain-locked
// outpoint; exactly one of InstantLock / ChainLockedHeight is meaningful
// depending on Kind.
type AssetLockProof struct {
	Kind AssetLockKind

	// Common to both kinds.
	Outpoint    [36]byte // txid(32) + vout(4)
	FundedValue uint64   // credits the output funds, after Core-side conversion

	// Instant-only.
	InstantLockBytes []byte

	// Chain-only.
	ChainLockedHeight uint32
}

// InstantLockVerifier checks an InstantSend lock against Core; abstracted
// here so the identity package doesn't depend on internal/corerpc
// directly (avoids an import cycle and keeps this package network-free).
type InstantLockVerifier func(lockBytes []byte, outpoint [36]byte) (bool, error)

// validateInstant and validateChain validate by proof kind before
// funneling into the same double-spend check.
func validateInstant(p AssetLockProof, verify InstantLockVerifier) error {
	if len(p.InstantLockBytes) == 0 {
		return errs.New(errs.KindStructure, 4620, "instant asset-lock proof missing lock bytes", nil)
	}
	ok, err := verify(p.InstantLockBytes, p.Outpoint)
	if err != nil {
		return errs.Wrap(err, "verify instant lock")
	}
	if !ok {
		return errs.New(errs.KindProofVerification, 4621, "instant lock failed verification", nil)
	}
	return nil
}

func validateChain(p AssetLockProof, chainLockHeight uint32) error {
	if p.ChainLockedHeight == 0 {
		return errs.New(errs.KindStructure, 4622, "chain asset-lock proof missing locked height", nil)
	}
	if p.ChainLockedHeight > chainLockHeight {
		return errs.New(errs.KindProofVerification, 4623, "chain asset-lock proof references a height not yet chain-locked",
			map[string]any{"proof_height": p.ChainLockedHeight, "chain_lock_height": chainLockHeight})
	}
	return nil
}

// SpentAssetLockPath is the store path the double-spend ledger of
// consumed asset-lock outpoints lives under.
func SpentAssetLockPath() store.Path { return store.Path{store.TagSpentAssetLockTransactions} }

// ConsumeAssetLock validates the proof by kind, then checks and records
// the outpoint in SpentAssetLockTransactions so the same funding output
// can never back a second identity. Returns the store operation cost.
func ConsumeAssetLock(t *store.Transaction, p AssetLockProof, verify InstantLockVerifier, chainLockHeight uint32) (store.Cost, error) {
	var err error
	switch p.Kind {
	case AssetLockInstant:
		err = validateInstant(p, verify)
	case AssetLockChain:
		err = validateChain(p, chainLockHeight)
	default:
		err = errs.New(errs.KindInvalidArgument, 4624, "unknown asset-lock proof kind", map[string]any{"kind": p.Kind})
	}
	if err != nil {
		return store.Cost{}, err
	}

	path := SpentAssetLockPath()
	_, found, err := t.Get(path, p.Outpoint[:])
	if err != nil {
		return store.Cost{}, err
	}
	if found {
		return store.Cost{}, errs.New(errs.KindAlreadyExists, 4625, "asset-lock outpoint already spent",
			map[string]any{"outpoint": p.Outpoint})
	}

	return store.Insert(t, nil, store.ModeApply, path, p.Outpoint[:],
		store.Element{Kind: store.KindItem, Item: []byte{byte(p.Kind)}}, nil)
}
