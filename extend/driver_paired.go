package extend

import (
	"github.com/grailbio/multiseed/align"
	"github.com/grailbio/multiseed/dpframe"
	"github.com/grailbio/multiseed/pe"
	"github.com/grailbio/multiseed/sawalk"
	"github.com/grailbio/multiseed/scoring"
	"github.com/grailbio/multiseed/sink"
	"github.com/grailbio/multiseed/sw"
)

// ExtendSeedsPaired extends the anchor mate's seed hits into full
// alignments and, for each, searches for the opposite mate by dynamic
// programming inside the window the paired-end policy allows.  Concordant
// pairs are reported as pairs; anchor and mate alignments are additionally
// offered unpaired when mixed or discordant reporting is enabled.
//
// It returns true when a report short-circuited the whole read.  A false
// return with no error means this anchor mate is exhausted (or done); the
// caller may continue with the other mate as anchor.  Errors are reference
// IO failures only.
func (d *Driver) ExtendSeedsPaired(
	rd *align.Read, // anchor mate
	ord *align.Read, // opposite mate
	anchor1 bool, // anchor is mate 1
	sh *SeedResults, // anchor's seed hits
	idx sawalk.Index,
	ref align.Reference,
	swa sw.Aligner, // DP filler for the anchor
	oswa sw.Aligner, // DP filler for the opposite mate
	sc *scoring.Scoring,
	pepol *pe.Policy,
	cfg Config,
	cache *sawalk.AlignmentCache,
	rnd align.RandomSource,
	snk *sink.Sink,
) (bool, error) {
	st := snk.State()
	params := st.Params()
	mixed, discord := params.Mixed, params.Discord

	rdlen := rd.Len()
	ordlen := ord.Len()
	readGaps := sc.MaxReadGaps(cfg.MinScore, rdlen)
	refGaps := sc.MaxRefGaps(cfg.MinScore, rdlen)
	oreadGaps := sc.MaxReadGaps(cfg.OMinScore, ordlen)
	orefGaps := sc.MaxRefGaps(cfg.OMinScore, ordlen)
	maxRows := maxRowsFor(cfg.RowMult)
	framer := dpframe.Framer{TrimToRef: !d.ReportOverhangs}

	d.setUpSaRangeState(sh, idx, cache, maxRows, rnd)

	redSeedAnchor := d.redSeed1
	if !anchor1 {
		redSeedAnchor = d.redSeed2
	}

	nonz := sh.NonzeroOffsets()
	poss := numPoss(nonz, cfg.PosMin, cfg.PosFrac)
	rows := rd.Rows()
	orows := ord.Rows()
	for i := 0; i < poss; i++ {
		h := sh.HitByRank(i)
		rdoff := h.RdOff
		if !h.Fw {
			rdoff = rdlen - rdoff - h.SeedLen
		}
		for !d.walkers[i].Done() {
			wr, ok := d.walkers[i].Next(&d.met.Walk)
			if !ok {
				break
			}
			c := align.Coord{RefID: 0, Off: int64(wr.Joined) - int64(rdoff), Fw: h.Fw}
			if !redSeedAnchor.Insert(c) {
				d.met.RedundantSeedHits++
				continue
			}
			tidx, toff, tlen := idx.JoinedToTextOff(wr.Len, wr.Joined)
			if tidx == sawalk.SentinelRef {
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
			// For each anchor alignment pulled out of the DP problem...
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

				swMate := cfg.SwMateImmediately
				if st.DoneWithMate(!anchor1) && !st.DoneWithMate(anchor1) {
					// The opposite mate is finished but the anchor
					// is not; don't try to mate up the anchor.
					swMate = false
				}
				if swMate {
					stop, err := d.searchMate(
						ord, anchor1, tidx, int64(tlen), orows,
						ref, oswa, sc, pepol, cfg, framer,
						oreadGaps, orefGaps, mixed, discord, rnd, snk)
					if stop || err != nil {
						return stop, err
					}
					if st.DoneWithMate(anchor1) {
						// Done with the anchor mate, not the read.
						return false, nil
					}
				} else if mixed || discord {
					// Anchor alignment found but mate search is off:
					// offer the anchor unpaired.
					stop := d.reportAnchorUnpaired(anchor1, snk)
					if stop {
						return true, nil
					}
					if st.DoneWithMate(anchor1) {
						return false, nil
					}
				}
			}
		}
	}
	return false, nil
}

// searchMate frames and solves the opposite-mate DP problem for the anchor
// alignment in d.res, classifying and reporting each candidate pair.  The
// bool result is the short-circuit signal.
func (d *Driver) searchMate(
	ord *align.Read,
	anchor1 bool,
	tidx int,
	tlen int64,
	orows int,
	ref align.Reference,
	oswa sw.Aligner,
	sc *scoring.Scoring,
	pepol *pe.Policy,
	cfg Config,
	framer dpframe.Framer,
	oreadGaps, orefGaps int,
	mixed, discord bool,
	rnd align.RandomSource,
	snk *sink.Sink,
) (bool, error) {
	st := snk.State()
	off := d.res.RefOff

	foundMate := false
	var w pe.MateWindow
	if !st.DoneConcordant() {
		w, foundMate = pepol.OtherMate(anchor1, d.res.Fw, off, int(d.res.Extent), ord.Len(), tlen)
	}
	var ofr dpframe.Frame
	if foundMate {
		ofr, foundMate = framer.FrameFindMate(!w.OLeft, w.LL, w.LR, w.RL, w.RR, orows, tlen, oreadGaps, orefGaps, cfg.MaxHalf)
	}
	mateDP := false
	if foundMate {
		if err := oswa.Init(sw.Problem{
			Rd: ord, Fw: w.OFw, RefID: tidx, Ref: ref, TLen: tlen,
			Frame: ofr, Sc: sc,
			MinScore: cfg.OMinScore, Floor: cfg.OFloor, NCeil: cfg.ONCeil,
		}); err != nil {
			return false, err
		}
		foundMate = oswa.Align(rnd)
		oswa.MergeAlignCounters(&d.met.SwMate)
		oswa.ResetAlignCounters()
		mateDP = foundMate
	}
	// One pass per candidate mate alignment; at least one pass even when
	// there is none, so the anchor can be offered unpaired.
	for {
		d.ores.Reset()
		found := false
		if mateDP && !oswa.Done() {
			found = oswa.NextAlignment(&d.ores, rnd)
			oswa.MergeBacktraceCounters(&d.met.SwMate)
			oswa.ResetBacktraceCounters()
		}
		if found {
			if !d.redAnchor.Overlap(&d.ores) {
				d.redAnchor.Add(&d.ores)
			}
			d.ores.SetParams(cfg.SeedMms, cfg.SeedLen, cfg.SeedIval, cfg.OMinScore, cfg.OFloor)
			if !d.ReportOverhangs && !d.ores.Within(tidx, tlen) {
				found = false
			}
		}
		if found {
			off1, len1, fw1 := off, int(d.res.Extent), d.res.Fw
			off2, len2, fw2 := d.ores.RefOff, int(d.ores.Extent), d.ores.Fw
			if !anchor1 {
				off1, len1, fw1, off2, len2, fw2 = off2, len2, fw2, off1, len1, fw1
			}
			found = pepol.ClassifyPair(off1, len1, fw1, off2, len2, fw2) == pe.Concordant
		}
		if st.DoneConcordant() {
			found = false
		}
		if found {
			// Report the concordant pair.
			r1, r2 := &d.res, &d.ores
			if !anchor1 {
				r1, r2 = r2, r1
			}
			if snk.Report(r1, r2) {
				return true, nil
			}
			if mixed || discord {
				// Also offer each mate unpaired.
				if !st.DoneUnpaired(true) && !d.redMate1.Overlap(r1) {
					d.redMate1.Add(r1)
					if snk.Report(r1, nil) {
						return true, nil
					}
				}
				if !st.DoneUnpaired(false) && !d.redMate2.Overlap(r2) {
					d.redMate2.Add(r2)
					if snk.Report(nil, r2) {
						return true, nil
					}
				}
			}
			if st.DoneWithMate(anchor1) {
				return false, nil
			}
		} else if mixed || discord {
			if d.reportAnchorUnpaired(anchor1, snk) {
				return true, nil
			}
			if st.DoneWithMate(anchor1) {
				return false, nil
			}
		}
		if d.ores.Empty() {
			return false, nil
		}
	}
}

// reportAnchorUnpaired offers the anchor alignment in d.res as an unpaired
// alignment for its mate, gated by the per-mate redundancy set and the
// reporting state.  Returns the short-circuit signal.
func (d *Driver) reportAnchorUnpaired(anchor1 bool, snk *sink.Sink) bool {
	st := snk.State()
	if st.DoneUnpaired(anchor1) {
		return false
	}
	red := d.redMate1
	if !anchor1 {
		red = d.redMate2
	}
	if red.Overlap(&d.res) {
		return false
	}
	red.Add(&d.res)
	var r1, r2 *align.AlnRes
	if anchor1 {
		r1 = &d.res
	} else {
		r2 = &d.res
	}
	return snk.Report(r1, r2)
}
