package sw

import (
	"math"
	"sort"

	"github.com/grailbio/base/log"

	"github.com/grailbio/multiseed/align"
)

// negInf marks unreachable DP cells.  Kept well above the int64 minimum so
// penalty subtraction cannot wrap.
const negInf = math.MinInt64 / 4

// Traceback codes.
const (
	tbNone byte = iota
	tbStart
	tbDiag
	tbFromE
	tbFromF
	tbOpen
	tbExtend
)

type candidate struct {
	j     int // window boundary the alignment ends at (exclusive)
	score int64
	tie   uint32
}

// BandedAligner is an affine-gap (Gotoh) filler for framed subproblems.
// The read is aligned globally; the frame's start and end masks say which
// band columns an alignment may begin and end in.  One instance per worker;
// matrices are reused across problems.
type BandedAligner struct {
	prob Problem
	win  []byte
	rows int
	wlen int

	h, e, f         []int64
	tbH, tbE, tbF   []byte
	cands           []candidate
	next            int
	inited, aligned bool
	alnMet, btMet   Metrics
}

var _ Aligner = (*BandedAligner)(nil)

// Init implements Aligner.
func (a *BandedAligner) Init(prob Problem) error {
	a.prob = prob
	a.rows = prob.Rd.Len()
	a.wlen = prob.Frame.Width + a.rows - 1
	var err error
	a.win, err = prob.Ref.GetStretch(a.win[:0], prob.RefID, prob.Frame.RefL, a.wlen)
	if err != nil {
		return err
	}
	a.inited = true
	a.aligned = false
	a.cands = a.cands[:0]
	a.next = 0
	return nil
}

func (a *BandedAligner) ensure(n int) {
	if cap(a.h) < n {
		a.h = make([]int64, n)
		a.e = make([]int64, n)
		a.f = make([]int64, n)
		a.tbH = make([]byte, n)
		a.tbE = make([]byte, n)
		a.tbF = make([]byte, n)
	}
	a.h = a.h[:n]
	a.e = a.e[:n]
	a.f = a.f[:n]
	a.tbH = a.tbH[:n]
	a.tbE = a.tbE[:n]
	a.tbF = a.tbF[:n]
}

func isN(b byte) bool { return b != 'A' && b != 'C' && b != 'G' && b != 'T' }

// Align implements Aligner.
func (a *BandedAligner) Align(rnd align.RandomSource) bool {
	if !a.inited {
		log.Panicf("Align before Init")
	}
	a.alnMet.Sws++
	a.aligned = true
	rows, wlen := a.rows, a.wlen
	stride := wlen + 1
	a.ensure((rows + 1) * stride)
	sc := a.prob.Sc
	seq, qual := a.prob.Rd.Orient(a.prob.Fw)
	floor := a.prob.Floor
	useFloor := floor > negInf
	rdOpen := int64(sc.ReadGapOpen())
	rdExt := int64(sc.ReadGapExtend())
	rfOpen := int64(sc.RefGapOpen())
	rfExt := int64(sc.RefGapExtend())

	// Row 0: alignments may begin at any legal start column.
	for j := 0; j <= wlen; j++ {
		a.h[j] = negInf
		a.e[j] = negInf
		a.f[j] = negInf
		a.tbH[j] = tbNone
		if j < a.prob.Frame.Width && a.prob.Frame.StartMask[j] {
			a.h[j] = 0
			a.tbH[j] = tbStart
		}
	}
	for i := 1; i <= rows; i++ {
		a.alnMet.Rows++
		row := i * stride
		prev := row - stride
		a.h[row] = negInf
		a.e[row] = negInf
		a.f[row] = negInf
		a.tbH[row] = tbNone
		rdc := seq[i-1]
		q := byte(30)
		if len(qual) >= i {
			q = qual[i-1]
		}
		for j := 1; j <= wlen; j++ {
			a.alnMet.Cups++
			rfc := a.win[j-1]
			var sub int64
			if isN(rdc) || isN(rfc) {
				sub = -int64(sc.N(q))
			} else if rdc == rfc {
				sub = int64(sc.MatchBonus)
			} else {
				sub = -int64(sc.Mismatch(q))
			}

			// Read gap: consume a reference position without a read char.
			eo := a.h[row+j-1] - rdOpen
			ee := a.e[row+j-1] - rdExt
			if eo >= ee {
				a.e[row+j] = eo
				a.tbE[row+j] = tbOpen
			} else {
				a.e[row+j] = ee
				a.tbE[row+j] = tbExtend
			}
			// Reference gap: consume a read char without a reference position.
			fo := a.f[prev+j] - rfExt
			fn := a.h[prev+j] - rfOpen
			if fn >= fo {
				a.f[row+j] = fn
				a.tbF[row+j] = tbOpen
			} else {
				a.f[row+j] = fo
				a.tbF[row+j] = tbExtend
			}

			h := int64(negInf)
			tb := tbNone
			if a.h[prev+j-1] > negInf {
				if d := a.h[prev+j-1] + sub; d > h {
					h = d
					tb = tbDiag
				}
			}
			if a.e[row+j] > h {
				h = a.e[row+j]
				tb = tbFromE
			}
			if a.f[row+j] > h {
				h = a.f[row+j]
				tb = tbFromF
			}
			if useFloor && h < floor {
				h = negInf
				tb = tbNone
			}
			a.h[row+j] = h
			a.tbH[row+j] = tb
		}
	}

	// Collect legal, above-minimum end cells.
	last := rows * stride
	for c := 0; c < a.prob.Frame.Width; c++ {
		if !a.prob.Frame.EndMask[c] {
			continue
		}
		j := c + rows
		s := a.h[last+j]
		if s > negInf && s >= a.prob.MinScore {
			a.cands = append(a.cands, candidate{j: j, score: s, tie: rnd.NextU32()})
		}
	}
	sort.Slice(a.cands, func(x, y int) bool {
		if a.cands[x].score != a.cands[y].score {
			return a.cands[x].score > a.cands[y].score
		}
		return a.cands[x].tie < a.cands[y].tie
	})
	if len(a.cands) > 0 {
		a.alnMet.Succ++
		return true
	}
	a.alnMet.Fail++
	return false
}

// Done implements Aligner.
func (a *BandedAligner) Done() bool { return !a.aligned || a.next >= len(a.cands) }

// NextAlignment implements Aligner.
func (a *BandedAligner) NextAlignment(res *align.AlnRes, rnd align.RandomSource) bool {
	for a.next < len(a.cands) {
		c := a.cands[a.next]
		a.next++
		a.btMet.Bts++
		if a.trace(c, res) {
			return true
		}
	}
	return false
}

// trace backtraces the alignment ending at c.  It returns false when the
// path violates the N ceiling.
func (a *BandedAligner) trace(c candidate, res *align.AlnRes) bool {
	res.Reset()
	stride := a.wlen + 1
	seq, _ := a.prob.Rd.Orient(a.prob.Fw)
	i, j := a.rows, c.j
	const (
		matH = iota
		matE
		matF
	)
	cur := matH
	nN := 0
	edits := res.Edits[:0]
	for {
		switch cur {
		case matH:
			switch a.tbH[i*stride+j] {
			case tbStart:
				// Alignment begins at window position j.
				start := j
				res.RefID = a.prob.RefID
				res.RefOff = a.prob.Frame.RefL + int64(start)
				res.Extent = int64(c.j - start)
				res.Fw = a.prob.Fw
				res.Score = c.score
				// Edits were collected back-to-front with absolute
				// window positions; flip and rebase.
				for x, y := 0, len(edits)-1; x < y; x, y = x+1, y-1 {
					edits[x], edits[y] = edits[y], edits[x]
				}
				for x := range edits {
					edits[x].Pos -= start
				}
				res.Edits = edits
				return nN <= a.prob.NCeil
			case tbDiag:
				rdc, rfc := seq[i-1], a.win[j-1]
				if isN(rdc) || isN(rfc) {
					nN++
					edits = append(edits, align.Edit{Pos: j - 1, Type: align.EditN, Ref: rfc, Read: rdc})
				} else if rdc != rfc {
					edits = append(edits, align.Edit{Pos: j - 1, Type: align.EditMismatch, Ref: rfc, Read: rdc})
				}
				i--
				j--
			case tbFromE:
				cur = matE
			case tbFromF:
				cur = matF
			default:
				log.Panicf("broken traceback at H[%d,%d]", i, j)
			}
		case matE:
			edits = append(edits, align.Edit{Pos: j - 1, Type: align.EditReadGap, Ref: a.win[j-1], Read: '-'})
			from := a.tbE[i*stride+j]
			j--
			if from == tbOpen {
				cur = matH
			}
		case matF:
			edits = append(edits, align.Edit{Pos: j, Type: align.EditRefGap, Ref: '-', Read: seq[i-1]})
			from := a.tbF[i*stride+j]
			i--
			if from == tbOpen {
				cur = matH
			}
		}
	}
}

// MergeAlignCounters implements Aligner.
func (a *BandedAligner) MergeAlignCounters(m *Metrics) { *m = m.Merge(a.alnMet) }

// ResetAlignCounters implements Aligner.
func (a *BandedAligner) ResetAlignCounters() { a.alnMet = Metrics{} }

// MergeBacktraceCounters implements Aligner.
func (a *BandedAligner) MergeBacktraceCounters(m *Metrics) { *m = m.Merge(a.btMet) }

// ResetBacktraceCounters implements Aligner.
func (a *BandedAligner) ResetBacktraceCounters() { a.btMet = Metrics{} }
