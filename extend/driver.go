package extend

import (
	"github.com/grailbio/multiseed/align"
	"github.com/grailbio/multiseed/dpframe"
	"github.com/grailbio/multiseed/sawalk"
	"github.com/grailbio/multiseed/scoring"
	"github.com/grailbio/multiseed/sink"
	"github.com/grailbio/multiseed/sw"
)

// Config carries the per-call extension parameters.  The O-prefixed fields
// apply to the opposite mate in paired mode.
type Config struct {
	SeedMms  int
	SeedLen  int
	SeedIval int

	MinScore  int64
	OMinScore int64
	Floor     int64
	OFloor    int64
	NCeil     int
	ONCeil    int

	// PosMin/PosFrac bound how many ranked seed positions are explored;
	// RowMult how many extensions are tried per position.
	PosMin  float64
	PosFrac float64
	RowMin  float64
	RowMult float64

	// MaxHalf caps the DP band at 2*MaxHalf+1 columns.
	MaxHalf int

	// SwMateImmediately searches for the opposite mate as soon as an
	// anchor alignment is found.
	SwMateImmediately bool
}

// Metrics aggregates the walker, DP, and redundancy counters the driver
// accumulates for one read.  Merged at read boundaries.
type Metrics struct {
	Walk   sawalk.Metrics
	SwSeed sw.Metrics
	SwMate sw.Metrics
	// RedundantSeedHits counts anchor coordinates suppressed by the
	// coordinate set.
	RedundantSeedHits int
}

// Merge returns the field-wise sum of m and o.
func (m Metrics) Merge(o Metrics) Metrics {
	m.Walk = m.Walk.Merge(o.Walk)
	m.SwSeed = m.SwSeed.Merge(o.SwSeed)
	m.SwMate = m.SwMate.Merge(o.SwMate)
	m.RedundantSeedHits += o.RedundantSeedHits
	return m
}

// A Driver owns the per-read extension state: one walker per non-empty
// seed, the redundancy sets, and scratch alignment results.  One Driver per
// worker; NextRead resets it.
type Driver struct {
	// ReportOverhangs permits alignments that extend past reference
	// sequence ends.
	ReportOverhangs bool

	walkers []sawalk.Walker

	redSeed1  *align.CoordSet
	redSeed2  *align.CoordSet
	redAnchor *align.AlnSet
	redMate1  *align.AlnSet
	redMate2  *align.AlnSet

	res, ores align.AlnRes
	met       Metrics
}

// NewDriver returns a Driver.
func NewDriver(reportOverhangs bool) *Driver {
	return &Driver{
		ReportOverhangs: reportOverhangs,
		redSeed1:        align.NewCoordSet(),
		redSeed2:        align.NewCoordSet(),
		redAnchor:       align.NewAlnSet(),
		redMate1:        align.NewAlnSet(),
		redMate2:        align.NewAlnSet(),
	}
}

// NextRead resets all per-read state.
func (d *Driver) NextRead() {
	d.walkers = d.walkers[:0]
	d.redSeed1.Reset()
	d.redSeed2.Reset()
	d.redAnchor.Reset()
	d.redMate1.Reset()
	d.redMate2.Reset()
}

// TakeMetrics returns the counters accumulated since the last call and
// resets them.
func (d *Driver) TakeMetrics() Metrics {
	m := d.met
	d.met = Metrics{}
	return m
}

// setUpSaRangeState wires one walker per non-empty seed hit.  Random
// narrowing to maxRows elements happens here.
func (d *Driver) setUpSaRangeState(sh *SeedResults, idx sawalk.Index, cache *sawalk.AlignmentCache, maxRows int, rnd align.RandomSource) {
	nonz := sh.NonzeroOffsets()
	if cap(d.walkers) < nonz {
		d.walkers = make([]sawalk.Walker, nonz)
	}
	d.walkers = d.walkers[:nonz]
	for i := 0; i < nonz; i++ {
		h := sh.HitByRank(i)
		d.walkers[i] = sawalk.Walker{}
		d.walkers[i].InitQval(idx, cache, h.QV, h.SeedLen, maxRows, rnd, &d.met.Walk)
	}
}

// numPoss computes how many ranked seed positions to explore:
// clamp(round(posmin + posfrac*(n-posmin)), 1, n).
func numPoss(nonz int, posmin, posfrac float64) int {
	if nonz == 0 {
		return 0
	}
	possf := posmin + posfrac*(float64(nonz)-posmin) + 0.5
	if possf < 1 {
		possf = 1
	}
	if possf > float64(nonz) {
		possf = float64(nonz)
	}
	return int(possf)
}

// maxRowsFor rounds the extensions-per-position multiplier.
func maxRowsFor(rowmult float64) int { return int(rowmult + 0.5) }

// ExtendSeeds extends the seed hits of an unpaired read (or a single mate)
// into full alignments, reporting each to snk as it is found.  It returns
// true when a report short-circuited the search; the error is non-nil only
// for reference IO failures.
func (d *Driver) ExtendSeeds(
	rd *align.Read,
	mate1 bool,
	sh *SeedResults,
	idx sawalk.Index,
	ref align.Reference,
	swa sw.Aligner,
	sc *scoring.Scoring,
	cfg Config,
	cache *sawalk.AlignmentCache,
	rnd align.RandomSource,
	snk *sink.Sink,
) (bool, error) {
	rdlen := rd.Len()
	readGaps := sc.MaxReadGaps(cfg.MinScore, rdlen)
	refGaps := sc.MaxRefGaps(cfg.MinScore, rdlen)
	maxRows := maxRowsFor(cfg.RowMult)
	framer := dpframe.Framer{TrimToRef: !d.ReportOverhangs}

	d.setUpSaRangeState(sh, idx, cache, maxRows, rnd)

	nonz := sh.NonzeroOffsets()
	poss := numPoss(nonz, cfg.PosMin, cfg.PosFrac)
	rows := rd.Rows()
	for i := 0; i < poss; i++ {
		h := sh.HitByRank(i)
		rdoff := h.RdOff
		if !h.Fw {
			// Rebase the seed offset to the upstream end of the
			// forward read.
			rdoff = rdlen - rdoff - h.SeedLen
		}
		for !d.walkers[i].Done() {
			wr, ok := d.walkers[i].Next(&d.met.Walk)
			if !ok {
				break
			}
			c := align.Coord{RefID: 0, Off: int64(wr.Joined) - int64(rdoff), Fw: h.Fw}
			if !d.redSeed1.Insert(c) {
				// Already tried an alignment anchored here.
				d.met.RedundantSeedHits++
				continue
			}
			tidx, toff, tlen := idx.JoinedToTextOff(wr.Len, wr.Joined)
			if tidx == sawalk.SentinelRef {
				// Seed hit straddles a sequence boundary.
				continue
			}
			if rd.Color {
				tlen++
			}
			refoff := int64(toff) - int64(rdoff)
			fr, found := framer.FrameSeedExtension(refoff, rows, int64(tlen), readGaps, refGaps, cfg.MaxHalf)
			if !found {
				continue
			}
			if err := swa.Init(sw.Problem{
				Rd: rd, Fw: h.Fw, RefID: tidx, Ref: ref, TLen: int64(tlen),
				Frame: fr, Sc: sc,
				MinScore: cfg.MinScore, Floor: cfg.Floor, NCeil: cfg.NCeil,
			}); err != nil {
				return false, err
			}
			found = swa.Align(rnd)
			swa.MergeAlignCounters(&d.met.SwSeed)
			swa.ResetAlignCounters()
			if !found {
				continue
			}
			for {
				d.res.Reset()
				if swa.Done() {
					break
				}
				ok := swa.NextAlignment(&d.res, rnd)
				swa.MergeBacktraceCounters(&d.met.SwSeed)
				swa.ResetBacktraceCounters()
				if !ok {
					break
				}
				if !d.ReportOverhangs && !d.res.Within(tidx, int64(tlen)) {
					continue
				}
				if d.redAnchor.Overlap(&d.res) {
					continue
				}
				d.redAnchor.Add(&d.res)
				d.res.SetParams(cfg.SeedMms, cfg.SeedLen, cfg.SeedIval, cfg.MinScore, cfg.Floor)
				var r1, r2 *align.AlnRes
				if mate1 {
					r1 = &d.res
				} else {
					r2 = &d.res
				}
				if snk.Report(r1, r2) {
					// A limit (-k, -m, -M) was reached.
					return true, nil
				}
			}
		}
	}
	return false, nil
}
