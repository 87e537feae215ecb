// Package corerpc declares the outbound contract the platform calls into
// the Dash Core chain with: masternode list diffs, quorum public keys,
// InstantSend/chain-lock verification, and asset-unlock broadcast. The
// Core chain RPC is an external collaborator named only by its contract.
// No client implementation lives here, only the interface and the
// on-disk retry bookkeeping for failed broadcasts.
package corerpc

import "github.com/dashpay/drive-platform/internal/wire"

// MasternodeEntry mirrors one row of a get_masternode_list_diff response.
type MasternodeEntry struct {
	ProTxHash         wire.ID
	OperatorPublicKey []byte
	IsHPMN            bool
	IsBanned          bool
}

// MasternodeListDiff is the added/removed/updated triple Core returns for
// a height range.
type MasternodeListDiff struct {
	Added   []MasternodeEntry
	Removed []wire.ID
	Updated []MasternodeEntry
}

// InstantLock is the InstantSend lock payload carried by an
// InstantAssetLockProof.
type InstantLock struct {
	Bytes []byte
}

// Client is the outbound Core RPC surface. Implementations
// live outside this module (a JSON-RPC client, a test double); this
// package only fixes the contract so `internal/execution` and
// `internal/identity` can depend on an interface instead of a concrete
// transport.
type Client interface {
	// GetMasternodeListDiff returns the masternode set delta between
	// fromHeight (0 meaning "from genesis") and toHeight.
	GetMasternodeListDiff(fromHeight *uint64, toHeight uint64) (MasternodeListDiff, error)
	// GetQuorumPublicKey returns the 48-byte BLS public key for the named
	// quorum.
	GetQuorumPublicKey(quorumType uint32, quorumHash wire.ID) ([]byte, error)
	// VerifyInstantLock asks Core whether lock covers tx's outputIndex
	// output.
	VerifyInstantLock(lock InstantLock, tx []byte, outputIndex uint32) (bool, error)
	// GetChainLockInfo returns the block hash chain-locked at height.
	GetChainLockInfo(height uint32) (wire.ID, error)
	// BroadcastAssetUnlockTx submits a signed asset-unlock (withdrawal)
	// transaction to Core. A retryable failure (no active quorum, expired
	// quorum, too-old quorum) is the caller's cue to persist txBytes via
	// RetryQueue rather than treat the withdrawal as failed outright.
	BroadcastAssetUnlockTx(txBytes []byte) error
}

// RetryableBroadcastError marks a BroadcastAssetUnlockTx failure as
// transient — the transaction should be retried later, not abandoned.
type RetryableBroadcastError struct {
	Reason string // "no_active_quorum", "expired_quorum", "too_old_quorum"
	Cause  error
}

func (e *RetryableBroadcastError) Error() string {
	if e.Cause != nil {
		return "retryable asset-unlock broadcast failure (" + e.Reason + "): " + e.Cause.Error()
	}
	return "retryable asset-unlock broadcast failure (" + e.Reason + ")"
}

func (e *RetryableBroadcastError) Unwrap() error { return e.Cause }
