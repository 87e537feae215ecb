package store

import (
	"bytes"
	"crypto/sha256"

	"github.com/dashpay/drive-platform/internal/errs"
)

// Verify checks every entry's audit path against its own subtree root and
// requires that root to equal the claimed p.RootHash.
// Verification is independent of the live Store — a caller holding only
// the Proof bytes and the claimed root can run this.
func (p *Proof) Verify() bool {
	for _, e := range p.Entries {
		if e.SubtreeRoot != p.RootHash {
			return false
		}
		if !e.Present {
			if !verifyAbsence(e) {
				return false
			}
			continue
		}
		if !VerifyAuditPath(leafHash(e.Key, e.Value), e.LeafIndex, e.LeafCount, e.Siblings, e.SubtreeRoot) {
			return false
		}
	}
	return true
}

// verifyAbsence checks that no leaf in the sorted set can equal the
// queried key: either the subtree is empty, or the entry carries two
// membership-proven leaves at adjacent indices whose keys strictly
// bracket it. A missing neighbor is only valid at the edges — the key
// sorts before leaf 0 or after leaf count-1.
func verifyAbsence(e ProofEntry) bool {
	if e.LeafCount == 0 {
		return e.SubtreeRoot == sha256.Sum256(nil)
	}
	if e.Left == nil && e.Right == nil {
		return false
	}
	if e.Left != nil {
		if bytes.Compare(e.Left.Key, e.Key) >= 0 {
			return false
		}
		if !VerifyAuditPath(leafHash(e.Left.Key, e.Left.Value), e.Left.LeafIndex, e.LeafCount, e.Left.Siblings, e.SubtreeRoot) {
			return false
		}
	}
	if e.Right != nil {
		if bytes.Compare(e.Right.Key, e.Key) <= 0 {
			return false
		}
		if !VerifyAuditPath(leafHash(e.Right.Key, e.Right.Value), e.Right.LeafIndex, e.LeafCount, e.Right.Siblings, e.SubtreeRoot) {
			return false
		}
	}
	switch {
	case e.Left != nil && e.Right != nil:
		return e.Right.LeafIndex == e.Left.LeafIndex+1
	case e.Left == nil:
		return e.Right.LeafIndex == 0
	default:
		return e.Left.LeafIndex == e.LeafCount-1
	}
}

// CheckFreshness rejects a query response whose metadata height lags the
// caller's last-seen height by more than tolerance blocks. The store
// itself does not track block heights; the caller supplies both sides
// from its own bookkeeping and the responding node's metadata.
func CheckFreshness(lastSeen, received, tolerance uint64) error {
	if received+tolerance < lastSeen {
		return errs.New(errs.KindStaleNode, 4901, "responding node is behind the caller's last-seen height",
			map[string]any{"expected": lastSeen, "received": received, "tolerance": tolerance})
	}
	return nil
}
