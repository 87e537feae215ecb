package store

import (
	"fmt"
	"math"

	bolt "go.etcd.io/bbolt"

	"github.com/dashpay/drive-platform/internal/errs"
)

// MergeHook is the caller-supplied function invoked when an insert would
// replace an existing item. It receives the old element's flags, the new
// flags the caller proposes, and the byte delta of the replacement, and
// returns the flags to persist.
type MergeHook func(oldFlags, newFlags Flags, delta int) (Flags, error)

// DefaultMergeHook applies MergeEpochs unconditionally; most callers that
// don't need RaiseIssue/KeepOriginal semantics can pass this.
func DefaultMergeHook(currentEpoch uint64) MergeHook {
	return func(oldFlags, newFlags Flags, delta int) (Flags, error) {
		merged, _, err := Combine(MergeEpochs, oldFlags, newFlags, delta, currentEpoch)
		return merged, err
	}
}

// Insert writes element under (path, key). In ModeApply, t must be
// non-nil and est must be nil; in ModeEstimate, est must be non-nil and t
// is ignored. Returns the Cost incurred (real or estimated); when this
// replaces an existing item, the Flags hook merged are persisted but not
// returned.
func Insert(t *Transaction, est *EstimateContext, mode Mode, p Path, key []byte, el Element, hook MergeHook) (Cost, error) {
	if mode == ModeEstimate {
		return insertEstimate(est, p, el), nil
	}
	if t == nil {
		return Cost{}, fmt.Errorf("store: apply mode requires a transaction")
	}
	return insertApply(t, p, key, el, hook)
}

func insertEstimate(est *EstimateContext, p Path, el Element) Cost {
	layer := est.Layer(p)
	var c Cost
	c.Seeks = uint64(len(p)) + 1
	size := uint64(elementSize(el))
	if size == 0 {
		size = uint64(layer.AverageValueSize)
	}
	c.StorageAddedBytes = size + uint64(layer.AverageKeySize)
	c.HashNodeCalls = uint64(math.Ceil(math.Log2(float64(layer.ExpectedCount + 1))))
	return c
}

func insertApply(t *Transaction, p Path, key []byte, el Element, hook MergeHook) (Cost, error) {
	eb, err := t.elementsBucket(p, true)
	if err != nil {
		return Cost{}, errs.Wrap(err, "store: insert")
	}
	var cost Cost
	cost.Seeks = uint64(len(p)) + 1

	existing := eb.Get(key)

	if existing != nil {
		oldEl, derr := decodeElement(existing)
		if derr != nil {
			return Cost{}, errs.Fatal(errs.KindCorruptedDriveState, "undecodable existing element", derr)
		}
		delta := elementSize(el) - elementSize(oldEl)
		if hook != nil {
			merged, herr := hook(oldEl.Flags, el.Flags, delta)
			if herr != nil {
				return Cost{}, herr
			}
			el.Flags = merged
		}
		switch {
		case delta > 0:
			cost.StorageAddedBytes = uint64(delta)
			cost.StorageReplacedBytes = uint64(elementSize(oldEl))
		case delta < 0:
			cost.StorageReplacedBytes = uint64(elementSize(el))
		default:
			cost.StorageReplacedBytes = uint64(elementSize(el))
		}
	} else {
		cost.StorageAddedBytes = uint64(elementSize(el)) + uint64(len(key))
	}

	if el.Kind == KindSumItem {
		if err := adjustSumAggregate(t, p, existingSumDelta(existing, el)); err != nil {
			return Cost{}, err
		}
	}

	// Encoded only now, after any merge hook above has finalized el.Flags —
	// encoding earlier would persist the pre-merge (often zero-value) flags.
	newBytes := encodeElement(el)
	if err := eb.Put(key, newBytes); err != nil {
		return Cost{}, errs.Wrap(err, "store: insert put")
	}
	t.markTouched(p)
	cost.HashNodeCalls = 1
	return cost, nil
}

func existingSumDelta(existing []byte, newEl Element) int64 {
	var old int64
	if existing != nil {
		if oldEl, err := decodeElement(existing); err == nil && oldEl.Kind == KindSumItem {
			old = oldEl.Sum
		}
	}
	return newEl.Sum - old
}

// adjustSumAggregate maintains the running sum for a sum-tree subtree and
// fails closed on signed-64-bit overflow.
func adjustSumAggregate(t *Transaction, p Path, delta int64) error {
	parent, err := bucketPath(t.tx, p, true)
	if err != nil {
		return errs.Wrap(err, "store: sum aggregate bucket")
	}
	cur := int64(0)
	if raw := parent.Get(sumAggregateKey); raw != nil {
		cur = getInt64(raw)
	}
	next, ok := addOverflowSafe(cur, delta)
	if !ok {
		return errs.New(errs.KindNumericOverflow, 5001, "sum-tree aggregate overflow", map[string]any{
			"path": p.String(), "current": cur, "delta": delta,
		})
	}
	var buf [8]byte
	putInt64(buf[:], next)
	return parent.Put(sumAggregateKey, buf[:])
}

func addOverflowSafe(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// SumAggregate returns the current aggregate of a sum-tree subtree.
func (s *Store) SumAggregate(p Path) (int64, error) {
	var out int64
	err := s.db.View(func(tx *bolt.Tx) error {
		parent, err := bucketPath(tx, p, false)
		if err != nil || parent == nil {
			return err
		}
		if raw := parent.Get(sumAggregateKey); raw != nil {
			out = getInt64(raw)
		}
		return nil
	})
	return out, err
}

// ApplyType selects how Delete behaves.
type ApplyType int

const (
	ApplyStateful ApplyType = iota
	ApplyStatelessKnownSubtree
	ApplyEstimatedCosts
)

// Delete removes (path, key). Returns the Cost and the released Flags (for
// refund accounting by the fee subsystem) when the element existed.
func Delete(t *Transaction, est *EstimateContext, mode Mode, p Path, key []byte, at ApplyType) (Cost, Flags, error) {
	if mode == ModeEstimate || at == ApplyEstimatedCosts {
		layer := est.Layer(p)
		var c Cost
		c.Seeks = uint64(len(p)) + 1
		c.addRemoved(0, uint64(layer.AverageValueSize))
		return c, Flags{}, nil
	}
	if t == nil {
		return Cost{}, Flags{}, fmt.Errorf("store: apply mode requires a transaction")
	}
	eb, err := t.elementsBucket(p, false)
	if err != nil {
		return Cost{}, Flags{}, errs.Wrap(err, "store: delete")
	}
	var cost Cost
	cost.Seeks = uint64(len(p)) + 1
	if eb == nil {
		return cost, Flags{}, nil
	}
	existing := eb.Get(key)
	if existing == nil {
		return cost, Flags{}, nil
	}
	el, derr := decodeElement(existing)
	if derr != nil {
		return Cost{}, Flags{}, errs.Fatal(errs.KindCorruptedDriveState, "undecodable element on delete", derr)
	}
	if el.Kind == KindSumItem {
		if err := adjustSumAggregate(t, p, -el.Sum); err != nil {
			return Cost{}, Flags{}, err
		}
	}
	refund := ReleaseAll(el.Flags)
	for e, n := range refund.RemovedBytesByEpoch {
		cost.addRemoved(e, n)
	}
	if err := eb.Delete(key); err != nil {
		return Cost{}, Flags{}, errs.Wrap(err, "store: delete")
	}
	t.markTouched(p)
	return cost, el.Flags, nil
}

// Get fetches the element stored at (path, key).
func (s *Store) Get(p Path, key []byte) (Element, bool, error) {
	var el Element
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		parent, err := bucketPath(tx, p, false)
		if err != nil || parent == nil {
			return err
		}
		eb := parent.Bucket(elementsBucket)
		if eb == nil {
			return nil
		}
		raw := eb.Get(key)
		if raw == nil {
			return nil
		}
		found = true
		el, err = decodeElement(raw)
		return err
	})
	return el, found, err
}

// Get fetches the element stored at (path, key) within an open
// transaction, so reads see the transaction's own uncommitted writes.
func (t *Transaction) Get(p Path, key []byte) (Element, bool, error) {
	parent, err := bucketPath(t.tx, p, false)
	if err != nil {
		return Element{}, false, errs.Wrap(err, "store: get in transaction")
	}
	if parent == nil {
		return Element{}, false, nil
	}
	eb := parent.Bucket(elementsBucket)
	if eb == nil {
		return Element{}, false, nil
	}
	raw := eb.Get(key)
	if raw == nil {
		return Element{}, false, nil
	}
	el, err := decodeElement(raw)
	if err != nil {
		return Element{}, false, errs.Wrap(err, "store: decode element in transaction")
	}
	return el, true, nil
}

// PendingOp is one operation within an apply_batch call.
type PendingOp struct {
	Insert *struct {
		Path  Path
		Key   []byte
		El    Element
		Hook  MergeHook
	}
	Delete *struct {
		Path Path
		Key  []byte
		At   ApplyType
	}
}

// ApplyBatch executes every operation atomically: either all land or none
// do. validate is not consulted: an Insert creates any missing subtree on
// its path, and a Delete under a missing path is a no-op.
func (s *Store) ApplyBatch(ops []PendingOp, validate bool) (Cost, error) {
	t, err := s.Begin()
	if err != nil {
		return Cost{}, err
	}
	var total Cost
	for _, op := range ops {
		switch {
		case op.Insert != nil:
			c, err := Insert(t, nil, ModeApply, op.Insert.Path, op.Insert.Key, op.Insert.El, op.Insert.Hook)
			if err != nil {
				t.Rollback()
				return Cost{}, err
			}
			total.merge(c)
		case op.Delete != nil:
			c, _, err := Delete(t, nil, ModeApply, op.Delete.Path, op.Delete.Key, op.Delete.At)
			if err != nil {
				t.Rollback()
				return Cost{}, err
			}
			total.merge(c)
		default:
			t.Rollback()
			return Cost{}, fmt.Errorf("store: empty PendingOp")
		}
	}
	if err := t.Commit(); err != nil {
		return Cost{}, err
	}
	return total, nil
}
