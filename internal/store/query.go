package store

import (
	"bytes"
	"sort"

	bolt "go.etcd.io/bbolt"
)

// Clause is one composable condition within a PathQuery.
type Clause struct {
	Equal  []byte
	In     [][]byte
	GT, GTE, LT, LTE []byte
}

func (c Clause) matches(key []byte) bool {
	if c.Equal != nil {
		return bytes.Equal(key, c.Equal)
	}
	if c.In != nil {
		for _, v := range c.In {
			if bytes.Equal(key, v) {
				return true
			}
		}
		return false
	}
	if c.GT != nil && bytes.Compare(key, c.GT) <= 0 {
		return false
	}
	if c.GTE != nil && bytes.Compare(key, c.GTE) < 0 {
		return false
	}
	if c.LT != nil && bytes.Compare(key, c.LT) >= 0 {
		return false
	}
	if c.LTE != nil && bytes.Compare(key, c.LTE) > 0 {
		return false
	}
	return true
}

// PathQuery addresses a path prefix plus filtering/pagination options.
type PathQuery struct {
	Path      Path
	Clause    Clause
	Subquery  *PathQuery // applied per matching key, for indexed lookups
	Limit     int        // 0 = unlimited
	Offset    int
	Ascending bool
}

// QueryResult is one matching (key, element) pair.
type QueryResult struct {
	Path Path
	Key  []byte
	El   Element
}

// Query executes a structured PathQuery and returns matching items plus (if
// withProof) a proof with one membership entry per key returned at q.Path.
// The proof does not show that the clause matched no other key, and
// results expanded through Subquery are not covered by it.
func (s *Store) Query(q PathQuery, withProof bool) ([]QueryResult, *Proof, error) {
	var results []QueryResult
	var proofEntries []ProofEntry
	var root [32]byte

	err := s.db.View(func(tx *bolt.Tx) error {
		parent, err := bucketPath(tx, q.Path, false)
		if err != nil {
			return err
		}
		if parent == nil {
			return nil
		}
		eb := parent.Bucket(elementsBucket)
		if eb == nil {
			return nil
		}

		var keys [][]byte
		c := eb.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if q.Clause.matches(k) {
				keys = append(keys, append([]byte(nil), k...))
			}
		}
		if !q.Ascending {
			sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) > 0 })
		}
		if q.Offset > 0 && q.Offset < len(keys) {
			keys = keys[q.Offset:]
		} else if q.Offset >= len(keys) {
			keys = nil
		}
		if q.Limit > 0 && len(keys) > q.Limit {
			keys = keys[:q.Limit]
		}

		for _, k := range keys {
			raw := eb.Get(k)
			el, derr := decodeElement(raw)
			if derr != nil {
				return derr
			}
			results = append(results, QueryResult{Path: q.Path, Key: k, El: el})
		}

		if withProof {
			var sroot [32]byte
			var allKeys [][]byte
			var levels [][][32]byte
			sroot, allKeys, levels, err = computeSubtreeMerkle(tx, q.Path)
			if err != nil {
				return err
			}
			root = sroot
			for _, k := range keys {
				idx := indexOf(allKeys, k)
				entry := ProofEntry{Path: q.Path, Key: k, Present: idx >= 0, LeafCount: len(allKeys), SubtreeRoot: sroot}
				if idx >= 0 {
					entry.LeafIndex = idx
					entry.Value = eb.Get(k)
					entry.Siblings = auditPath(levels, idx)
				} else {
					entry.Left, entry.Right = absenceNeighbors(allKeys, levels, eb.Get, k)
				}
				proofEntries = append(proofEntries, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if q.Subquery != nil {
		var expanded []QueryResult
		for _, r := range results {
			if r.El.Kind != KindReference {
				continue
			}
			sub := *q.Subquery
			sub.Path = r.El.RefTo
			subResults, _, serr := s.Query(sub, false)
			if serr != nil {
				return nil, nil, serr
			}
			expanded = append(expanded, subResults...)
		}
		results = expanded
	}

	var proof *Proof
	if withProof {
		proof = &Proof{RootHash: root, Entries: proofEntries}
	}
	return results, proof, nil
}

func indexOf(keys [][]byte, k []byte) int {
	for i, kk := range keys {
		if bytes.Equal(kk, k) {
			return i
		}
	}
	return -1
}

// ProvePathQuery returns a succinct proof for q without materializing the
// full result set twice.
func (s *Store) ProvePathQuery(q PathQuery) (*Proof, error) {
	_, proof, err := s.Query(q, true)
	return proof, err
}
