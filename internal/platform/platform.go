// Package platform holds the cached masternode/quorum view and the
// currently active protocol version as a single writer, many-reader
// structure.
// Unlike the authenticated store, this state is not itself proven: it is
// a local cache refreshed from Core RPC at block boundaries, and readers
// only ever see a committed, non-torn snapshot of it.
package platform

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dashpay/drive-platform/internal/wire"
)

// BlockInfo describes the last block the platform committed.
type BlockInfo struct {
	Height     uint64
	TimeMs     uint64
	CoreHeight uint32
	Hash       wire.ID
	QuorumHash wire.ID
}

// MasternodeEntry is one entry of the cached masternode list.
type MasternodeEntry struct {
	ProTxHash         wire.ID
	OperatorPublicKey []byte
	IsHPMN            bool
	IsBanned          bool
}

// QuorumKey identifies a specific LLMQ quorum.
type QuorumKey struct {
	Type uint32
	Hash wire.ID
}

// ValidatorSet is the set of masternode members backing one quorum, plus
// its published 48-byte BLS aggregate public key.
type ValidatorSet struct {
	PublicKey []byte
	Members   []wire.ID
}

// MasternodeListDiff mirrors the Core RPC outbound contract's
// get_masternode_list_diff response shape.
type MasternodeListDiff struct {
	Added   []MasternodeEntry
	Removed []wire.ID
	Updated []MasternodeEntry
}

// State is the single-writer, many-reader platform cache. Mutating
// methods must only ever be called from the block-processing goroutine;
// Snapshot gives concurrent readers (proof generation, RPC queries) a
// consistent copy that outlives the next mutation.
type State struct {
	mu sync.RWMutex

	lastBlock   BlockInfo
	masternodes map[wire.ID]MasternodeEntry
	quorums     map[QuorumKey]ValidatorSet

	currentProtocolVersion uint32
	patchedVersion         *PlatformVersion
	patchedForProtocol     uint32

	log *logrus.Logger
}

// New creates platform state pinned to initialProtocolVersion until the
// first protocol-upgrade vote changes it.
func New(initialProtocolVersion uint32) *State {
	return &State{
		masternodes:            make(map[wire.ID]MasternodeEntry),
		quorums:                make(map[QuorumKey]ValidatorSet),
		currentProtocolVersion: initialProtocolVersion,
		log:                    logrus.StandardLogger(),
	}
}

// RecordBlock updates the last-committed-block marker.
func (s *State) RecordBlock(info BlockInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBlock = info
}

// ApplyMasternodeListDiff merges a get_masternode_list_diff response into
// the cached masternode list.
func (s *State) ApplyMasternodeListDiff(diff MasternodeListDiff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range diff.Added {
		s.masternodes[e.ProTxHash] = e
	}
	for _, e := range diff.Updated {
		s.masternodes[e.ProTxHash] = e
	}
	for _, id := range diff.Removed {
		delete(s.masternodes, id)
	}
	s.log.WithFields(logrus.Fields{
		"added": len(diff.Added), "updated": len(diff.Updated), "removed": len(diff.Removed),
	}).Debug("applied masternode list diff")
}

// SetQuorumValidatorSet records a quorum's public key and member set,
// learned from get_quorum_public_key plus the Core masternode list diff.
func (s *State) SetQuorumValidatorSet(key QuorumKey, set ValidatorSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quorums[key] = set
}

// IsMasternode reports whether id is a currently-known, non-banned
// masternode, and whether it is an HPMN.
func (s *State) IsMasternode(id wire.ID) (isMN, isHPMN bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.masternodes[id]
	if !ok || e.IsBanned {
		return false, false
	}
	return true, e.IsHPMN
}

// QuorumPublicKey returns a quorum's cached BLS public key.
func (s *State) QuorumPublicKey(key QuorumKey) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.quorums[key]
	if !ok {
		return nil, false
	}
	return set.PublicKey, true
}

// Snapshot is an immutable, independently-readable copy of platform
// state for use by proof generation and RPC handlers that run
// concurrently with block processing.
type Snapshot struct {
	LastBlock              BlockInfo
	Masternodes            map[wire.ID]MasternodeEntry
	Quorums                map[QuorumKey]ValidatorSet
	CurrentProtocolVersion uint32
	PatchedVersion         *PlatformVersion
}

// Snapshot takes a consistent copy-on-write snapshot of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mn := make(map[wire.ID]MasternodeEntry, len(s.masternodes))
	for k, v := range s.masternodes {
		mn[k] = v
	}
	qs := make(map[QuorumKey]ValidatorSet, len(s.quorums))
	for k, v := range s.quorums {
		qs[k] = v
	}
	var patched *PlatformVersion
	if s.patchedVersion != nil {
		cp := *s.patchedVersion
		patched = &cp
	}
	return Snapshot{
		LastBlock:              s.lastBlock,
		Masternodes:            mn,
		Quorums:                qs,
		CurrentProtocolVersion: s.currentProtocolVersion,
		PatchedVersion:         patched,
	}
}
