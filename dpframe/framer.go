// Package dpframe computes the parallelogram-shaped bands handed to the
// dynamic programming filler: reference bounds, band width, trim, and the
// column masks that say where an alignment may legally start and end.
package dpframe

// A Frame is one framed DP subproblem.
//
// Column c of the band corresponds to reference position RefL+c in the first
// DP row and RefL+c+rows-1 in the last row, so RefR-RefL+1 == Width+rows-1
// always holds.
type Frame struct {
	Width  int
	TrimUp int // columns whose start position precedes the sequence
	TrimDn int // columns whose end position passes the sequence end
	RefL   int64
	RefR   int64
	// StartMask[c] / EndMask[c] mark columns where an alignment may
	// legally begin / end.
	StartMask []bool
	EndMask   []bool
}

// LegalStarts returns the number of legal start columns.
func (f *Frame) LegalStarts() int { return countTrue(f.StartMask) }

// LegalEnds returns the number of legal end columns.
func (f *Frame) LegalEnds() int { return countTrue(f.EndMask) }

func countTrue(mask []bool) int {
	n := 0
	for _, b := range mask {
		if b {
			n++
		}
	}
	return n
}

// A Framer frames DP subproblems.  TrimToRef masks band columns that fall
// outside the reference sequence; when false, overhanging alignments are
// permitted and no trimming occurs.
type Framer struct {
	TrimToRef bool
}

// FrameSeedExtension frames the band around a tentative anchor placement.
// refoff is the offset implied by the seed hit assuming no net gaps, rows
// the DP row count (read length, +1 for colorspace), tlen the reference
// sequence length.  The band covers every cell reachable within the gap
// budget, capped at 2*maxHalf+1 columns.  found is false when trimming
// leaves no legal start or end column.
func (f Framer) FrameSeedExtension(refoff int64, rows int, tlen int64, maxReadGaps, maxRefGaps, maxHalf int) (Frame, bool) {
	maxGap := maxReadGaps
	if maxRefGaps > maxGap {
		maxGap = maxRefGaps
	}
	if maxGap > maxHalf {
		maxGap = maxHalf
	}
	width := 2*maxGap + 1
	fr := Frame{
		Width:     width,
		RefL:      refoff - int64(maxGap),
		RefR:      refoff + int64(rows-1) + int64(maxGap),
		StartMask: make([]bool, width),
		EndMask:   make([]bool, width),
	}
	for c := 0; c < width; c++ {
		fr.StartMask[c] = true
		fr.EndMask[c] = true
	}
	if !f.trim(&fr, rows, tlen) {
		return Frame{}, false
	}
	return fr, true
}

// FrameFindMate frames the band for the opposite mate.  The mate
// alignment's leftmost reference position must fall in [ll, lr] and its
// rightmost in [rl, rr], as supplied by the paired-end policy.  The band
// covers every start position satisfying both constraints, widened by the
// gap budget (capped at maxHalf per side); unlike seed-extension framing
// the overall width is bounded by the fragment constraint, not by maxHalf.
// anchorLeft says the anchor alignment lies to the left of the mate
// window.
func (f Framer) FrameFindMate(anchorLeft bool, ll, lr, rl, rr int64, rows int, tlen int64, maxReadGaps, maxRefGaps, maxHalf int) (Frame, bool) {
	if lr < ll || rr < rl {
		return Frame{}, false
	}
	// Start positions satisfying both the left and (assuming a gapless
	// extent of rows) the right constraint.
	sl := ll
	if v := rl - int64(rows-1); v > sl {
		sl = v
	}
	sr := lr
	if v := rr - int64(rows-1); v < sr {
		sr = v
	}
	if sl > sr {
		return Frame{}, false
	}
	// Widen by the gap budget: gaps stretch or shrink the extent.
	maxGap := maxReadGaps
	if maxRefGaps > maxGap {
		maxGap = maxRefGaps
	}
	if maxGap > maxHalf {
		maxGap = maxHalf
	}
	sl -= int64(maxGap)
	sr += int64(maxGap)
	width := int(sr - sl + 1)
	fr := Frame{
		Width:     width,
		RefL:      sl,
		RefR:      sr + int64(rows-1),
		StartMask: make([]bool, width),
		EndMask:   make([]bool, width),
	}
	for c := 0; c < width; c++ {
		start := sl + int64(c)
		end := start + int64(rows-1)
		fr.StartMask[c] = start >= ll && start <= lr
		fr.EndMask[c] = end >= rl && end <= rr
	}
	if fr.LegalStarts() == 0 || fr.LegalEnds() == 0 {
		return Frame{}, false
	}
	if !f.trim(&fr, rows, tlen) {
		return Frame{}, false
	}
	return fr, true
}

// trim masks columns outside [0, tlen).  Returns false when no legal start
// or end column survives.
func (f Framer) trim(fr *Frame, rows int, tlen int64) bool {
	if !f.TrimToRef {
		return true
	}
	if fr.RefL < 0 {
		fr.TrimUp = int(-fr.RefL)
	}
	if fr.RefR >= tlen {
		fr.TrimDn = int(fr.RefR - tlen + 1)
	}
	for c := 0; c < fr.TrimUp && c < fr.Width; c++ {
		fr.StartMask[c] = false
	}
	for c := fr.Width - fr.TrimDn; c < fr.Width; c++ {
		if c >= 0 {
			fr.EndMask[c] = false
		}
	}
	if fr.TrimUp >= fr.Width || fr.TrimDn >= fr.Width {
		return false
	}
	return fr.LegalStarts() > 0 && fr.LegalEnds() > 0
}
