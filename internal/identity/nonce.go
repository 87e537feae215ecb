package identity

import "github.com/dashpay/drive-platform/internal/errs"

// Nonce packs a 40-bit tip and a 24-bit sliding missing-positions bitset
// into a single uint64: bits [0,40) are the tip, bits [40,64) are the
// bitset. A set bit at offset k (1-indexed as tip-(k+1)) means that nonce
// is still missing — it has not yet been submitted and remains eligible
// to land out of order; a clear bit means it has already been accepted.
const (
	tipBits    = 40
	tipMask    = (uint64(1) << tipBits) - 1
	bitsetBits = 24
	bitsetMask = (uint64(1) << bitsetBits) - 1
)

func Tip(n uint64) uint64    { return n & tipMask }
func Bitset(n uint64) uint64 { return (n >> tipBits) & bitsetMask }

func pack(tip, bitset uint64) uint64 {
	return (tip & tipMask) | ((bitset & bitsetMask) << tipBits)
}

// ValidateNonce applies the sliding-bitset acceptance algorithm to a
// candidate nonce against the stored value n, returning the updated
// packed nonce on acceptance or a ConsensusError on rejection. Nonce zero
// is always rejected, independent of the stored state.
func ValidateNonce(n uint64, candidate uint64) (uint64, error) {
	if candidate == 0 {
		return n, errs.New(errs.KindInvalidArgument, 4610, "nonce zero is never valid", nil)
	}

	tip := Tip(n)
	bitset := Bitset(n)

	switch {
	case candidate == tip:
		return n, errs.New(errs.KindNonceAlreadyPresentAtTip, 4611, "nonce already present at tip",
			map[string]any{"tip": tip})

	case candidate > tip:
		delta := candidate - tip
		if delta >= bitsetBits {
			return n, errs.New(errs.KindNonceTooFarInFuture, 4612, "nonce too far in the future",
				map[string]any{"tip": tip, "candidate": candidate, "delta": delta})
		}
		// Shifting left by delta re-bases existing gaps onto the new tip.
		// Every nonce strictly between the old tip and the new tip that was
		// never submitted becomes a fresh gap: those are bit positions
		// 0..delta-2 (distance 1..delta-1 from the new tip).
		newBitset := (bitset << delta) & bitsetMask
		if delta > 1 {
			newBitset |= (uint64(1) << (delta - 1)) - 1
		}
		return pack(candidate, newBitset), nil

	default: // candidate < tip
		delta := tip - candidate
		if delta >= bitsetBits {
			return n, errs.New(errs.KindNonceTooFarInPast, 4613, "nonce too far in the past",
				map[string]any{"tip": tip, "candidate": candidate, "delta": delta})
		}
		bitPos := delta - 1
		bit := uint64(1) << bitPos
		if bitset&bit == 0 {
			return n, errs.NonceAlreadyPresentInPast(delta)
		}
		return pack(tip, bitset&^bit), nil
	}
}
