package store

import "fmt"

// Flags is the per-element ownership + epoch bookkeeping blob. Flags are not metadata: they participate in the element's
// stored bytes and therefore in the Merkle hash (leafHash hashes the raw
// stored bytes, and encodeElement always appends Element.Flags to the
// kind-specific payload, so callers set Flags on the Element they pass
// to Insert).
type Flags struct {
	Owner [32]byte
	// Ranges records, in insertion order, which epoch paid for which
	// contiguous byte range of the element's current value.
	Ranges []EpochRange
}

// EpochRange is a contiguous byte range attributed to the epoch that paid
// for it.
type EpochRange struct {
	Epoch      uint64
	ByteOffset uint32
	ByteLength uint32
}

func (f Flags) TotalBytes() uint32 {
	var total uint32
	for _, r := range f.Ranges {
		total += r.ByteLength
	}
	return total
}

// NewFlags builds the Flags for a brand-new element: the whole of its
// current value attributed to owner, paid for by epoch. Callers that
// insert a fresh element (no prior value to merge against, so no
// MergeHook ever runs) construct these directly rather than leaving
// Flags at its zero value.
func NewFlags(owner [32]byte, epoch uint64, length uint32) Flags {
	if length == 0 {
		return Flags{Owner: owner}
	}
	return Flags{Owner: owner, Ranges: []EpochRange{{Epoch: epoch, ByteOffset: 0, ByteLength: length}}}
}

// encodeFlags serializes Flags for persistence alongside an element's
// kind-specific bytes: owner (32 bytes), then a count-prefixed list of
// epoch ranges.
func encodeFlags(f Flags) []byte {
	buf := make([]byte, 0, 32+4+len(f.Ranges)*16)
	buf = append(buf, f.Owner[:]...)
	var countBuf [4]byte
	putUint32(countBuf[:], uint32(len(f.Ranges)))
	buf = append(buf, countBuf[:]...)
	for _, r := range f.Ranges {
		var epochBuf [8]byte
		putInt64(epochBuf[:], int64(r.Epoch))
		buf = append(buf, epochBuf[:]...)
		var offBuf, lenBuf [4]byte
		putUint32(offBuf[:], r.ByteOffset)
		putUint32(lenBuf[:], r.ByteLength)
		buf = append(buf, offBuf[:]...)
		buf = append(buf, lenBuf[:]...)
	}
	return buf
}

// decodeFlags parses the tail written by encodeFlags. An empty tail (e.g.
// data persisted before flags participated in the encoding) decodes as
// the zero-value Flags rather than an error, so existing stores don't
// need a migration step.
func decodeFlags(data []byte) (Flags, error) {
	if len(data) == 0 {
		return Flags{}, nil
	}
	if len(data) < 36 {
		return Flags{}, fmt.Errorf("store: truncated flags header")
	}
	var f Flags
	copy(f.Owner[:], data[:32])
	count := getUint32(data[32:36])
	pos := 36
	for i := uint32(0); i < count; i++ {
		if pos+16 > len(data) {
			return Flags{}, fmt.Errorf("store: truncated flags range %d", i)
		}
		epoch := uint64(getInt64(data[pos : pos+8]))
		offset := getUint32(data[pos+8 : pos+12])
		length := getUint32(data[pos+12 : pos+16])
		f.Ranges = append(f.Ranges, EpochRange{Epoch: epoch, ByteOffset: offset, ByteLength: length})
		pos += 16
	}
	if pos != len(data) {
		return Flags{}, fmt.Errorf("store: trailing bytes after flags ranges")
	}
	return f, nil
}

// CombineMode selects how two Flags blobs merge across an update.
type CombineMode int

const (
	RaiseIssue CombineMode = iota
	KeepOriginal
	MergeEpochs
)

// Combine merges oldFlags (currently stored) with newFlags (the value the
// caller proposes) given the byte delta of the update (positive: item
// grew, negative: item shrank, zero: same-size rewrite). currentEpoch
// attributes newly added bytes; bytes removed are attributed back to
// whichever epoch(s) originally paid for them, oldest-paid-first, and
// returned as part of the resulting Cost's removed-bytes breakdown so the
// fee subsystem can issue the matching refund.
func Combine(mode CombineMode, oldFlags, newFlags Flags, delta int, currentEpoch uint64) (Flags, Cost, error) {
	switch mode {
	case RaiseIssue:
		if oldFlags.Owner != newFlags.Owner {
			return Flags{}, Cost{}, fmt.Errorf("storage flags: owner mismatch on combine")
		}
		return oldFlags, Cost{}, nil
	case KeepOriginal:
		return oldFlags, Cost{}, nil
	case MergeEpochs:
		return mergeEpochs(oldFlags, delta, currentEpoch)
	}
	return Flags{}, Cost{}, fmt.Errorf("storage flags: unknown combine mode %d", mode)
}

// mergeEpochs implements growing (delta>0), shrinking (delta<0), and
// same-size (delta==0) rewrites as three distinct paths so refund
// accounting can attribute bytes to the epoch that paid for them.
func mergeEpochs(oldFlags Flags, delta int, currentEpoch uint64) (Flags, Cost, error) {
	var cost Cost
	switch {
	case delta > 0:
		// Growing: keep all existing ranges, append a new range for the
		// added bytes, paid for by the current epoch.
		out := oldFlags
		out.Ranges = append(append([]EpochRange(nil), oldFlags.Ranges...), EpochRange{
			Epoch:      currentEpoch,
			ByteOffset: oldFlags.TotalBytes(),
			ByteLength: uint32(delta),
		})
		return out, cost, nil
	case delta < 0:
		// Shrinking: remove bytes from the tail of the range list first
		// (most-recently-added bytes are evicted first), crediting the
		// epoch that originally paid for each removed range.
		toRemove := uint32(-delta)
		out := oldFlags
		ranges := append([]EpochRange(nil), oldFlags.Ranges...)
		for toRemove > 0 && len(ranges) > 0 {
			last := &ranges[len(ranges)-1]
			if last.ByteLength <= toRemove {
				cost.addRemoved(last.Epoch, uint64(last.ByteLength))
				toRemove -= last.ByteLength
				ranges = ranges[:len(ranges)-1]
			} else {
				last.ByteLength -= toRemove
				cost.addRemoved(last.Epoch, uint64(toRemove))
				toRemove = 0
			}
		}
		out.Ranges = ranges
		return out, cost, nil
	default:
		// Same size: no byte-range change, nothing to refund.
		return oldFlags, cost, nil
	}
}

// ReleaseAll computes the full refund breakdown for deleting an element
// entirely.
func ReleaseAll(f Flags) Cost {
	var c Cost
	for _, r := range f.Ranges {
		c.addRemoved(r.Epoch, uint64(r.ByteLength))
	}
	return c
}
