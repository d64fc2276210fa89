package vm

import "github.com/bits-and-blooms/bitset"

// codeBitmaps holds the three per-byte bitmaps computed over the runtime
// code during analysis: which bytes start an instruction, which bytes are
// PUSH immediate data, and which bytes are valid jump destinations. Each
// bitmap is backed by github.com/bits-and-blooms/bitset.BitSet, a []uint64
// word array that gives word-parallel popcount and next-set queries
// without a hand-rolled scalar bit loop.
type codeBitmaps struct {
	opStart  *bitset.BitSet
	pushData *bitset.BitSet
	jumpdest *bitset.BitSet
}

func newCodeBitmaps(n int) codeBitmaps {
	return codeBitmaps{
		opStart:  bitset.New(uint(n)),
		pushData: bitset.New(uint(n)),
		jumpdest: bitset.New(uint(n)),
	}
}

// IsOpStart reports whether byte i begins a decoded instruction.
func (b codeBitmaps) IsOpStart(i uint64) bool { return b.opStart.Test(uint(i)) }

// IsPushData reports whether byte i lies inside a PUSH immediate.
func (b codeBitmaps) IsPushData(i uint64) bool { return b.pushData.Test(uint(i)) }

// IsJumpdest reports whether byte i is a valid jump target.
func (b codeBitmaps) IsJumpdest(i uint64) bool { return b.jumpdest.Test(uint(i)) }

// CountOpStartInRange returns the number of op_start bits set in [lo, hi).
func (b codeBitmaps) CountOpStartInRange(lo, hi uint64) uint64 {
	return countRange(b.opStart, lo, hi)
}

// NextOpStart returns the next op_start position at or after from, or false
// if none remains.
func (b codeBitmaps) NextOpStart(from uint64) (uint64, bool) {
	pos, ok := b.opStart.NextSet(uint(from))
	return uint64(pos), ok
}

// countRange sums set bits in [lo, hi) by stepping NextSet from one set
// bit to the next, so its cost grows with the number of set bits in the
// window.
func countRange(bs *bitset.BitSet, lo, hi uint64) uint64 {
	if hi <= lo {
		return 0
	}
	count := uint64(0)
	for i, ok := bs.NextSet(uint(lo)); ok && i < uint(hi); i, ok = bs.NextSet(i + 1) {
		count++
	}
	return count
}
