package store

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Proof is a succinct, independently verifiable witness that a path query's
// answer (value or absence) is consistent with a claimed root hash.
type Proof struct {
	RootHash [32]byte
	Entries  []ProofEntry
}

// ProofEntry covers one returned (or absent) key within one subtree.
type ProofEntry struct {
	Path    Path
	Key     []byte
	Value   []byte // nil if absent
	Present bool
	Siblings [][32]byte // audit path from leaf to subtree root
	LeafIndex int
	LeafCount int
	SubtreeRoot [32]byte

	// Left and Right are the adjacent sorted leaves bracketing an absent
	// key. Each proves its own membership at a leaf index; the verifier
	// checks the two indices are adjacent and the queried key falls
	// strictly between their keys, so no leaf anywhere in the sorted set
	// can equal it. Nil at an edge (key sorts before the first or after
	// the last leaf) or when the subtree is empty.
	Left  *AbsenceNeighbor
	Right *AbsenceNeighbor
}

// AbsenceNeighbor is one bracketing leaf of an absence proof.
type AbsenceNeighbor struct {
	Key       []byte
	Value     []byte
	LeafIndex int
	Siblings  [][32]byte
}

// internal binary Merkle tree over sorted (key,value) leaves of one bucket.
func buildMerkle(leaves [][32]byte) (root [32]byte, levels [][][32]byte) {
	if len(leaves) == 0 {
		return sha256.Sum256(nil), nil
	}
	levels = append(levels, leaves)
	cur := leaves
	for len(cur) > 1 {
		var next [][32]byte
		for i := 0; i < len(cur); i += 2 {
			if i+1 < len(cur) {
				h := sha256.New()
				h.Write(cur[i][:])
				h.Write(cur[i+1][:])
				var out [32]byte
				copy(out[:], h.Sum(nil))
				next = append(next, out)
			} else {
				// odd node promoted unchanged
				next = append(next, cur[i])
			}
		}
		levels = append(levels, next)
		cur = next
	}
	return cur[0], levels
}

func auditPath(levels [][][32]byte, index int) [][32]byte {
	var path [][32]byte
	idx := index
	for lvl := 0; lvl < len(levels)-1; lvl++ {
		level := levels[lvl]
		var sibIdx int
		if idx%2 == 0 {
			sibIdx = idx + 1
		} else {
			sibIdx = idx - 1
		}
		if sibIdx < len(level) {
			path = append(path, level[sibIdx])
		} else {
			path = append(path, level[idx]) // odd promotion: sibling is self
		}
		idx /= 2
	}
	return path
}

// VerifyAuditPath recomputes the subtree root from a leaf hash and its
// sibling path and checks it against claimed. This is pure and needs no
// store access: the defining property of a Merkle proof.
func VerifyAuditPath(leaf [32]byte, index, count int, siblings [][32]byte, claimedRoot [32]byte) bool {
	if count == 0 {
		return leaf == sha256.Sum256(nil) && claimedRoot == sha256.Sum256(nil)
	}
	cur := leaf
	idx := index
	levelSize := count
	for _, sib := range siblings {
		var h [32]byte
		if idx%2 == 0 {
			if levelSize == idx+1 {
				h = cur // promoted, no sibling combine
			} else {
				s := sha256.New()
				s.Write(cur[:])
				s.Write(sib[:])
				copy(h[:], s.Sum(nil))
			}
		} else {
			s := sha256.New()
			s.Write(sib[:])
			s.Write(cur[:])
			copy(h[:], s.Sum(nil))
		}
		cur = h
		idx /= 2
		levelSize = (levelSize + 1) / 2
	}
	return cur == claimedRoot
}

// computeSubtreeMerkle walks the elements bucket at p and returns its root,
// the sorted keys, per-key leaf hashes and full levels (for proof
// generation).
func computeSubtreeMerkle(tx *bolt.Tx, p Path) (root [32]byte, keys [][]byte, levels [][][32]byte, err error) {
	parent, err := bucketPath(tx, p, false)
	if err != nil {
		return root, nil, nil, err
	}
	if parent == nil {
		return sha256.Sum256(nil), nil, nil, nil
	}
	eb := parent.Bucket(elementsBucket)
	if eb == nil {
		return sha256.Sum256(nil), nil, nil, nil
	}
	keys = sortedKeys(eb)
	leaves := make([][32]byte, 0, len(keys))
	for _, k := range keys {
		v := eb.Get(k)
		leaves = append(leaves, leafHash(k, v))
	}
	root, levels = buildMerkle(leaves)
	return root, keys, levels, nil
}

// SubtreeRoot returns the current Merkle root of the subtree at p, serving
// from the per-subtree cache when a commit hasn't invalidated it since the
// last computation.
func (s *Store) SubtreeRoot(p Path) (root [32]byte, err error) {
	key := p.String()

	s.mu.RLock()
	if c, ok := s.merkle[key]; ok {
		root = c.root
		s.mu.RUnlock()
		return root, nil
	}
	s.mu.RUnlock()

	err = s.db.View(func(tx *bolt.Tx) error {
		root, _, _, err = computeSubtreeMerkle(tx, p)
		return err
	})
	if err != nil {
		return root, err
	}

	s.mu.Lock()
	s.merkle[key] = &merkleCache{root: root}
	s.mu.Unlock()
	return root, nil
}

// RootHash is the single root committing to all persisted state: the
// sha256 of the (tag, subtreeRoot) pairs of all twelve top-level tags, in
// the fixed order listed below; a tag with no entries contributes the
// empty-tree hash.
func (s *Store) RootHash() (out [32]byte, err error) {
	tags := [][]byte{
		TagIdentities, TagContractDocuments, TagPublicKeyHashesToIdentities,
		TagNonUniquePublicKeyHashesToIdentities, TagSpentAssetLockTransactions,
		TagPools, TagPreFundedSpecializedBalances, TagVotes, TagTokens,
		TagGroupActions, TagVersions, TagMisc,
	}
	h := sha256.New()
	for _, tag := range tags {
		root, err := s.SubtreeRoot(Path{tag})
		if err != nil {
			return out, err
		}
		h.Write(tag)
		h.Write(root[:])
	}
	copy(out[:], h.Sum(nil))
	return out, nil
}

func (s *Store) invalidateMerkleLocked(pathKey string) {
	delete(s.merkle, pathKey)
}

// markTouched records that a transaction mutated the subtree at p, so its
// Merkle cache is invalidated on commit.
func (t *Transaction) markTouched(p Path) {
	// mark every ancestor prefix too, since RootHash folds every top-level
	// tag's own root which itself depends on everything beneath it.
	for i := 1; i <= len(p); i++ {
		t.touched[p[:i].String()] = true
	}
}

// absenceNeighbors locates the sorted leaves bracketing an absent key
// and builds their membership proofs: the last leaf sorting below the
// key and the first sorting above it, each with its own audit path so a
// verifier can anchor both to the subtree root.
func absenceNeighbors(keys [][]byte, levels [][][32]byte, valueOf func([]byte) []byte, key []byte) (left, right *AbsenceNeighbor) {
	pos := 0
	for pos < len(keys) && bytes.Compare(keys[pos], key) < 0 {
		pos++
	}
	build := func(i int) *AbsenceNeighbor {
		n := &AbsenceNeighbor{
			Key:       append([]byte(nil), keys[i]...),
			LeafIndex: i,
			Siblings:  auditPath(levels, i),
		}
		if valueOf != nil {
			n.Value = append([]byte(nil), valueOf(keys[i])...)
		}
		return n
	}
	if pos > 0 {
		left = build(pos - 1)
	}
	if pos < len(keys) {
		right = build(pos)
	}
	return left, right
}

// ProveSubtree builds a Proof for a single key within one subtree,
// including the absence case.
func (s *Store) ProveSubtree(p Path, key []byte) (ProofEntry, error) {
	var entry ProofEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		root, keys, levels, err := computeSubtreeMerkle(tx, p)
		if err != nil {
			return err
		}
		entry.Path = p
		entry.Key = key
		entry.SubtreeRoot = root
		entry.LeafCount = len(keys)
		idx := -1
		for i, k := range keys {
			if string(k) == string(key) {
				idx = i
				break
			}
		}
		if idx == -1 {
			entry.Present = false
			parent, err := bucketPath(tx, p, false)
			if err != nil {
				return err
			}
			var valueOf func([]byte) []byte
			if parent != nil {
				if eb := parent.Bucket(elementsBucket); eb != nil {
					valueOf = eb.Get
				}
			}
			entry.Left, entry.Right = absenceNeighbors(keys, levels, valueOf, key)
			return nil
		}
		entry.Present = true
		entry.LeafIndex = idx
		parent, err := bucketPath(tx, p, false)
		if err != nil || parent == nil {
			return fmt.Errorf("subtree vanished mid-proof")
		}
		eb := parent.Bucket(elementsBucket)
		entry.Value = append([]byte(nil), eb.Get(key)...)
		entry.Siblings = auditPath(levels, idx)
		return nil
	})
	return entry, err
}
