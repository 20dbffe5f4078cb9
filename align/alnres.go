package align

import (
	"fmt"
	"sort"
)

// EditType distinguishes the kinds of differences an alignment can carry.
type EditType uint8

const (
	// EditMismatch is a read/reference substitution.
	EditMismatch EditType = iota + 1
	// EditReadGap is a gap in the read (deletion w.r.t. the read).
	EditReadGap
	// EditRefGap is a gap in the reference (insertion w.r.t. the read).
	EditRefGap
	// EditN is a position with an N in either read or reference.
	EditN
)

// An Edit is one difference between the read and the reference, positioned
// relative to the upstream end of the alignment on the reference.
type Edit struct {
	Pos  int
	Type EditType
	// Ref and Read are the characters involved; '-' marks the gapped side.
	Ref  byte
	Read byte
}

// An AlnRes is one alignment produced by the dynamic programming filler.
//
// Invariants: RefOff >= 0 (unless overhangs are permitted), Edits sorted by
// position, RefOff+Extent within the reference sequence length (ditto).
type AlnRes struct {
	RefID  int
	RefOff int64
	// Extent is the number of reference positions the alignment spans.
	Extent int64
	Fw     bool
	// Score is the additive integer alignment score.
	Score int64
	Edits []Edit

	// Parameters recorded at discovery time, used by the formatters.
	SeedMms  int
	SeedLen  int
	SeedIval int
	MinScore int64
	Floor    int64
}

// Empty reports whether the result has been populated.
func (r *AlnRes) Empty() bool { return r.Extent == 0 }

// Reset returns the result to its empty state, retaining the edit buffer.
func (r *AlnRes) Reset() {
	r.Edits = r.Edits[:0]
	*r = AlnRes{Edits: r.Edits}
}

// RefExtent returns the number of reference positions spanned.
func (r *AlnRes) RefExtent() int64 { return r.Extent }

// Within reports whether the alignment lies entirely inside [0, tlen) of the
// given reference sequence.
func (r *AlnRes) Within(refid int, tlen int64) bool {
	return r.RefID == refid && r.RefOff >= 0 && r.RefOff+r.Extent <= tlen
}

// SetParams annotates the result with the seed parameters that produced it.
func (r *AlnRes) SetParams(seedmms, seedlen, seedival int, minsc, floorsc int64) {
	r.SeedMms = seedmms
	r.SeedLen = seedlen
	r.SeedIval = seedival
	r.MinScore = minsc
	r.Floor = floorsc
}

// RepOK checks the representation invariants.
func (r *AlnRes) RepOK() error {
	if r.Extent <= 0 {
		return fmt.Errorf("alignment with nonpositive extent %d", r.Extent)
	}
	if !sort.SliceIsSorted(r.Edits, func(i, j int) bool { return r.Edits[i].Pos < r.Edits[j].Pos }) {
		return fmt.Errorf("alignment edits out of order: %+v", r.Edits)
	}
	return nil
}

// FragmentLength returns the signed fragment length implied by this
// alignment and its mate's.
func (r *AlnRes) FragmentLength(o *AlnRes) int64 {
	left, right := r, o
	sign := int64(1)
	if o.RefOff < r.RefOff {
		left, right = o, r
		sign = -1
	}
	return sign * (right.RefOff + right.Extent - left.RefOff)
}
