// Package pe decides where the opposite mate of an anchored alignment may
// lie and whether a candidate pair satisfies the fragment constraints.
package pe

// PairClass is the verdict for a candidate mate pair.
type PairClass int

const (
	// Concordant pairs satisfy the orientation and fragment-length
	// constraints.
	Concordant PairClass = iota + 1
	// Discordant pairs violate them.
	Discordant
)

// Orientation of a properly paired fragment.
type Orientation int

const (
	// FR: upstream mate forward, downstream mate reverse (Illumina
	// paired-end).
	FR Orientation = iota
	// RF: upstream mate reverse, downstream mate forward.
	RF
	// FF: both mates on the same strand, mate 1 upstream.
	FF
)

// A MateWindow bounds the opposite mate's placement: its leftmost reference
// position must lie in [LL, LR] and its rightmost in [RL, RR].
type MateWindow struct {
	// OLeft is true when the mate window lies to the left of the anchor.
	OLeft bool
	// OFw is the strand the mate must align to.
	OFw            bool
	LL, LR, RL, RR int64
}

// A Policy holds the fragment constraints for a paired-end library.
// Read-only, shared across workers.
type Policy struct {
	Orient  Orientation
	MinFrag int64
	MaxFrag int64
}

// DefaultPolicy matches a standard paired-end prep.
var DefaultPolicy = Policy{Orient: FR, MinFrag: 0, MaxFrag: 500}

// OtherMate computes the search window for the opposite mate.  anchor1 says
// whether the anchor is mate 1, fw its strand, off its leftmost reference
// position, anchorLen its reference extent, and olen the opposite mate's
// length.  ok is false when no placement can satisfy the constraints (for
// example, the window would precede the sequence entirely).
func (p *Policy) OtherMate(anchor1, fw bool, off int64, anchorLen, olen int, tlen int64) (MateWindow, bool) {
	var w MateWindow
	switch p.Orient {
	case FR:
		w.OLeft = !fw
		w.OFw = !fw
	case RF:
		w.OLeft = fw
		w.OFw = !fw
	case FF:
		// Same strand; mate 1 upstream on the forward strand.
		w.OFw = fw
		if fw {
			w.OLeft = !anchor1
		} else {
			w.OLeft = anchor1
		}
	}
	if !w.OLeft {
		// Fragment starts at the anchor's left end and extends right.
		w.RL = off + p.MinFrag - 1
		w.RR = off + p.MaxFrag - 1
		w.LL = off
		w.LR = w.RR - int64(olen) + 1
	} else {
		// Fragment ends at the anchor's right end and extends left.
		end := off + int64(anchorLen) - 1
		w.LL = end - p.MaxFrag + 1
		w.LR = end - p.MinFrag + 1
		w.RL = w.LL + int64(olen) - 1
		w.RR = end
	}
	if w.LR < w.LL || w.RR < w.RL || w.LR < 0 || w.RL >= tlen {
		return MateWindow{}, false
	}
	return w, true
}

// ClassifyPair checks a fully aligned candidate pair against the policy.
// Offsets are leftmost reference positions; lengths are reference extents.
func (p *Policy) ClassifyPair(off1 int64, len1 int, fw1 bool, off2 int64, len2 int, fw2 bool) PairClass {
	loff, lfw := off1, fw1
	roff, rlen, rfw := off2, len2, fw2
	m1Left := true
	if off2 < off1 {
		loff, lfw = off2, fw2
		roff, rlen, rfw = off1, len1, fw1
		m1Left = false
	}
	frag := roff + int64(rlen) - loff
	if frag < p.MinFrag || frag > p.MaxFrag {
		return Discordant
	}
	switch p.Orient {
	case FR:
		if lfw && !rfw {
			return Concordant
		}
	case RF:
		if !lfw && rfw {
			return Concordant
		}
	case FF:
		if lfw == rfw && (m1Left == lfw) {
			return Concordant
		}
	}
	return Discordant
}
