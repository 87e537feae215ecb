package platform

import (
	"bytes"
	"sort"

	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// savedStateKey is the auxiliary key the platform snapshot is persisted
// under, inside the Misc subtree, so the store is self-describing: a node
// restarting from only its store directory recovers the masternode/quorum
// view without waiting for a fresh Core RPC sync.
var savedStateKey = []byte("saved_state")

func miscPath() store.Path { return store.Path{store.TagMisc} }

// EncodeSnapshot serializes a platform-state snapshot with a version
// prefix. Map entries are written in sorted key order so identical state
// always produces identical bytes.
func EncodeSnapshot(s Snapshot) []byte {
	e := wire.NewEncoder(wire.VersionV0)
	e.WriteUint64(s.LastBlock.Height)
	e.WriteUint64(s.LastBlock.TimeMs)
	e.WriteUint32(s.LastBlock.CoreHeight)
	e.WriteBytes(s.LastBlock.Hash[:])
	e.WriteBytes(s.LastBlock.QuorumHash[:])
	e.WriteUint32(s.CurrentProtocolVersion)

	ids := make([]wire.ID, 0, len(s.Masternodes))
	for id := range s.Masternodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	e.WriteUint32(uint32(len(ids)))
	for _, id := range ids {
		mn := s.Masternodes[id]
		e.WriteBytes(mn.ProTxHash[:])
		e.WriteBytes(mn.OperatorPublicKey)
		e.WriteBool(mn.IsHPMN)
		e.WriteBool(mn.IsBanned)
	}

	keys := make([]QuorumKey, 0, len(s.Quorums))
	for k := range s.Quorums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return bytes.Compare(keys[i].Hash[:], keys[j].Hash[:]) < 0
	})
	e.WriteUint32(uint32(len(keys)))
	for _, k := range keys {
		set := s.Quorums[k]
		e.WriteUint32(k.Type)
		e.WriteBytes(k.Hash[:])
		e.WriteBytes(set.PublicKey)
		e.WriteUint32(uint32(len(set.Members)))
		for _, m := range set.Members {
			e.WriteBytes(m[:])
		}
	}
	return e.Bytes()
}

// DecodeSnapshot dispatches on the leading version byte. The patched
// platform version is not part of the snapshot: patch functions are code,
// reapplied from the patch table after the protocol version is known.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	d, err := wire.NewDecoder(data)
	if err != nil {
		return Snapshot{}, errs.Wrap(err, "decode platform snapshot")
	}
	switch d.Version {
	case wire.VersionV0:
		return decodeSnapshotV0(d)
	default:
		return Snapshot{}, errs.New(errs.KindUnknownVersionMismatch, 4701,
			"unrecognized platform snapshot wire version", map[string]any{"version": d.Version})
	}
}

func decodeSnapshotV0(d *wire.Decoder) (Snapshot, error) {
	var s Snapshot
	var err error
	if s.LastBlock.Height, err = d.ReadUint64(); err != nil {
		return Snapshot{}, errs.Wrap(err, "decode last block height")
	}
	if s.LastBlock.TimeMs, err = d.ReadUint64(); err != nil {
		return Snapshot{}, errs.Wrap(err, "decode last block time")
	}
	if s.LastBlock.CoreHeight, err = d.ReadUint32(); err != nil {
		return Snapshot{}, errs.Wrap(err, "decode last core height")
	}
	hash, err := d.ReadBytes()
	if err != nil {
		return Snapshot{}, errs.Wrap(err, "decode last block hash")
	}
	copy(s.LastBlock.Hash[:], hash)
	qhash, err := d.ReadBytes()
	if err != nil {
		return Snapshot{}, errs.Wrap(err, "decode last quorum hash")
	}
	copy(s.LastBlock.QuorumHash[:], qhash)
	if s.CurrentProtocolVersion, err = d.ReadUint32(); err != nil {
		return Snapshot{}, errs.Wrap(err, "decode protocol version")
	}

	nMN, err := d.ReadUint32()
	if err != nil {
		return Snapshot{}, errs.Wrap(err, "decode masternode count")
	}
	s.Masternodes = make(map[wire.ID]MasternodeEntry, nMN)
	for i := uint32(0); i < nMN; i++ {
		var mn MasternodeEntry
		proTx, err := d.ReadBytes()
		if err != nil {
			return Snapshot{}, errs.Wrap(err, "decode masternode pro-tx-hash")
		}
		copy(mn.ProTxHash[:], proTx)
		if mn.OperatorPublicKey, err = d.ReadBytes(); err != nil {
			return Snapshot{}, errs.Wrap(err, "decode masternode operator key")
		}
		if mn.IsHPMN, err = d.ReadBool(); err != nil {
			return Snapshot{}, errs.Wrap(err, "decode masternode hpmn flag")
		}
		if mn.IsBanned, err = d.ReadBool(); err != nil {
			return Snapshot{}, errs.Wrap(err, "decode masternode banned flag")
		}
		s.Masternodes[mn.ProTxHash] = mn
	}

	nQ, err := d.ReadUint32()
	if err != nil {
		return Snapshot{}, errs.Wrap(err, "decode quorum count")
	}
	s.Quorums = make(map[QuorumKey]ValidatorSet, nQ)
	for i := uint32(0); i < nQ; i++ {
		var k QuorumKey
		var set ValidatorSet
		if k.Type, err = d.ReadUint32(); err != nil {
			return Snapshot{}, errs.Wrap(err, "decode quorum type")
		}
		hash, err := d.ReadBytes()
		if err != nil {
			return Snapshot{}, errs.Wrap(err, "decode quorum hash")
		}
		copy(k.Hash[:], hash)
		if set.PublicKey, err = d.ReadBytes(); err != nil {
			return Snapshot{}, errs.Wrap(err, "decode quorum public key")
		}
		nMembers, err := d.ReadUint32()
		if err != nil {
			return Snapshot{}, errs.Wrap(err, "decode quorum member count")
		}
		set.Members = make([]wire.ID, nMembers)
		for j := uint32(0); j < nMembers; j++ {
			m, err := d.ReadBytes()
			if err != nil {
				return Snapshot{}, errs.Wrap(err, "decode quorum member")
			}
			copy(set.Members[j][:], m)
		}
		s.Quorums[k] = set
	}
	return s, nil
}

// SaveState persists the state's current snapshot under the store's
// saved_state key.
func SaveState(t *store.Transaction, s *State) (store.Cost, error) {
	return store.Insert(t, nil, store.ModeApply, miscPath(), savedStateKey,
		store.Element{Kind: store.KindItem, Item: EncodeSnapshot(s.Snapshot())}, store.DefaultMergeHook(0))
}

// LoadState restores a previously saved snapshot into s. A store with no
// saved snapshot (first boot) leaves s untouched and returns false.
func LoadState(st *store.Store, s *State) (bool, error) {
	el, ok, err := st.Get(miscPath(), savedStateKey)
	if err != nil {
		return false, errs.Wrap(err, "load saved platform state")
	}
	if !ok {
		return false, nil
	}
	snap, err := DecodeSnapshot(el.Item)
	if err != nil {
		return false, err
	}
	s.restore(snap)
	return true, nil
}

func (s *State) restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBlock = snap.LastBlock
	s.masternodes = snap.Masternodes
	s.quorums = snap.Quorums
	s.currentProtocolVersion = snap.CurrentProtocolVersion
}
