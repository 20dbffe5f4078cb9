package sink

import (
	"math"

	"github.com/grailbio/base/log"

	"github.com/grailbio/multiseed/align"
)

// PairType says what role a record plays in its read's report.
type PairType int

const (
	// PairConcordMate1 is mate 1 of a concordant pair.
	PairConcordMate1 PairType = iota
	// PairConcordMate2 is mate 2 of a concordant pair.
	PairConcordMate2
	// PairDiscordMate1 is mate 1 of a discordant pair.
	PairDiscordMate1
	// PairDiscordMate2 is mate 2 of a discordant pair.
	PairDiscordMate2
	// PairUnpairedMate1 is mate 1 of a pair, reported alone.
	PairUnpairedMate1
	// PairUnpairedMate2 is mate 2 of a pair, reported alone.
	PairUnpairedMate2
	// PairUnpaired is an unpaired read.
	PairUnpaired
)

// Flags accompany a batch of records handed to the formatter.
type Flags struct {
	Pair PairType
	// Maxed marks a category that exceeded the mhits ceiling.
	Maxed bool
	// MaxedPair marks the whole pair as repetitive.
	MaxedPair bool
	// MateAligned and MateFw describe the other mate's representative
	// alignment, when there is one.
	MateAligned bool
	MateFw      bool
}

// A SeedSummary aggregates seed-discovery counts for one read: overall and
// split by the strand the seed came from.
type SeedSummary struct {
	SeedsTried int
	Nonzero    int
	Ranges     int
	Elts       int

	SeedsTriedFw int
	NonzeroFw    int
	RangesFw     int
	EltsFw       int

	SeedsTriedRc int
	NonzeroRc    int
	RangesRc     int
	EltsRc       int
}

// Formatter renders final records.  Implementations serialize concurrent
// calls on their output stream; one call emits one read's records.
type Formatter interface {
	// ReportHits emits the selected alignments.  sel[i] > 0 marks rs1[i]
	// (and rs2[i] for a pair) selected, with sel[i] == 1 the primary
	// record.  rs2 is nil for unpaired reports.
	ReportHits(rd1, rd2 *align.Read, rdid uint64, sel []int, rs1, rs2 []align.AlnRes, flags1, flags2 Flags) error
	// ReportMaxed emits a repetitive-alignment record for a read whose
	// category exceeded the mhits ceiling without sampling.
	ReportMaxed(rd *align.Read, rdid uint64, rs []align.AlnRes, flags Flags) error
	// ReportUnaligned emits an unaligned record.
	ReportUnaligned(rd *align.Read, rdid uint64, flags Flags) error
	// ReportSeedSummary emits one seed summary line for a read.
	ReportSeedSummary(rd *align.Read, rdid uint64, summ SeedSummary) error
}

// A Sink accumulates candidate alignments for the read in flight and, at
// FinishRead, asks the ReportingState what to emit and drives the
// formatter.  One Sink per worker; it borrows the current read pair and the
// shared formatter and outlives neither.
type Sink struct {
	fmtr Formatter
	st   *ReportingState

	rd1, rd2 *align.Read
	rdid     uint64
	inited   bool
	best     int64

	rs1, rs2   []align.AlnRes // paired results
	rs1u, rs2u []align.AlnRes // unpaired results per mate
	sel        []int
}

// New returns a Sink reporting through f under the given limits.
func New(f Formatter, params ReportingParams) *Sink {
	return &Sink{fmtr: f, st: NewReportingState(params)}
}

// State exposes the reporting state machine; the driver consults it for
// done conditions.
func (s *Sink) State() *ReportingState { return s.st }

// NextRead readies the sink for a new read or pair.  rd2 is nil for an
// unpaired read.
func (s *Sink) NextRead(rd1, rd2 *align.Read, rdid uint64) {
	if s.inited {
		log.Panicf("NextRead before FinishRead (read id %d)", s.rdid)
	}
	s.rd1, s.rd2, s.rdid = rd1, rd2, rdid
	s.inited = true
	s.best = math.MinInt64
	s.rs1 = s.rs1[:0]
	s.rs2 = s.rs2[:0]
	s.rs1u = s.rs1u[:0]
	s.rs2u = s.rs2u[:0]
	s.st.NextRead(s.paired())
}

func (s *Sink) paired() bool { return s.rd1 != nil && s.rd2 != nil }

// Empty reports whether any alignment has been recorded for this read.
func (s *Sink) Empty() bool {
	return len(s.rs1) == 0 && len(s.rs1u) == 0 && len(s.rs2u) == 0
}

// Report records a new alignment: both mates for a concordant pair, or one
// of rs1/rs2 for an unpaired mate alignment.  It returns true when the
// reporting policy is satisfied and the caller can stop searching.
func (s *Sink) Report(rs1, rs2 *align.AlnRes) bool {
	if !s.inited {
		log.Panicf("Report before NextRead")
	}
	if rs1 == nil && rs2 == nil {
		log.Panicf("Report with no alignment")
	}
	paired := rs1 != nil && rs2 != nil
	var done bool
	var score int64
	if paired {
		done = s.st.FoundConcordant()
		s.rs1 = append(s.rs1, cloneRes(rs1))
		s.rs2 = append(s.rs2, cloneRes(rs2))
		score = rs1.Score + rs2.Score
	} else if rs1 != nil {
		done = s.st.FoundUnpaired(true)
		s.rs1u = append(s.rs1u, cloneRes(rs1))
		score = rs1.Score
	} else {
		done = s.st.FoundUnpaired(false)
		s.rs2u = append(s.rs2u, cloneRes(rs2))
		score = rs2.Score
	}
	if score > s.best {
		s.best = score
	}
	return done
}

// cloneRes copies a result, detaching the edit list from the caller's
// scratch buffer, which the driver reuses between backtraces.
func cloneRes(r *align.AlnRes) align.AlnRes {
	cp := *r
	cp.Edits = append([]align.Edit(nil), r.Edits...)
	return cp
}

// prepareDiscordants promotes the unique unpaired alignments into a fresh
// pair slate.  rs1u/rs2u are left as they are; the maxed and summary paths
// read them afterwards.
func (s *Sink) prepareDiscordants() bool {
	if len(s.rs1u) != 1 || len(s.rs2u) != 1 {
		return false
	}
	s.rs1 = append(s.rs1[:0], s.rs1u[0])
	s.rs2 = append(s.rs2[:0], s.rs2u[0])
	return true
}

// selectAlns picks num of the alignments in rs: a contiguous run starting
// at a random offset, wrapping around.  sel[i] receives the 1-based
// selection order, 0 for unselected; the return value is the index of the
// primary (first selected) record.
func (s *Sink) selectAlns(rs []align.AlnRes, num uint64, rnd align.RandomSource) int {
	sz := len(rs)
	if cap(s.sel) < sz {
		s.sel = make([]int, sz)
	}
	s.sel = s.sel[:sz]
	for i := range s.sel {
		s.sel[i] = 0
	}
	if sz == 0 {
		return 0
	}
	if sz == 1 {
		s.sel[0] = 1
		return 0
	}
	if num > uint64(sz) {
		num = uint64(sz)
	}
	off := int(rnd.NextU32() % uint32(sz))
	first := off
	for i := 1; i <= int(num); i++ {
		s.sel[off] = i
		off++
		if off == sz {
			off = 0
		}
	}
	return first
}

// FinishRead finalizes the read: closes the reporting state, selects what
// to emit, and drives the formatter.  Formatter errors abort the read and
// propagate.  summ1/summ2, when non-nil, are emitted as per-mate seed
// summary lines first.
func (s *Sink) FinishRead(summ1, summ2 *SeedSummary, rnd align.RandomSource, met *Metrics) error {
	if !s.inited {
		log.Panicf("FinishRead before NextRead")
	}
	defer func() { s.inited = false }()
	if summ1 != nil && s.rd1 != nil {
		if err := s.fmtr.ReportSeedSummary(s.rd1, s.rdid, *summ1); err != nil {
			return err
		}
	}
	if summ2 != nil && s.rd2 != nil {
		if err := s.fmtr.ReportSeedSummary(s.rd2, s.rdid, *summ2); err != nil {
			return err
		}
	}

	s.st.Finish()
	r := s.st.GetReport()

	met.NRead++
	if s.paired() {
		met.NPaired++
	} else {
		met.NUnpaired++
	}

	reportedPair := false
	if r.NConcord > 0 {
		reportedPair = true
		primary := s.selectAlns(s.rs1, r.NConcord, rnd)
		flags1 := Flags{
			Pair:        PairConcordMate1,
			Maxed:       r.Unpair1Max,
			MaxedPair:   r.PairMax,
			MateAligned: true,
			MateFw:      s.rs2[primary].Fw,
		}
		flags2 := Flags{
			Pair:        PairConcordMate2,
			Maxed:       r.Unpair2Max,
			MaxedPair:   r.PairMax,
			MateAligned: true,
			MateFw:      s.rs1[primary].Fw,
		}
		if err := s.fmtr.ReportHits(s.rd1, s.rd2, s.rdid, s.sel, s.rs1, s.rs2, flags1, flags2); err != nil {
			return err
		}
		if r.PairMax {
			met.NConcordRep++
		} else {
			met.NConcordUni++
		}
	} else if r.NDiscord > 0 {
		if !s.prepareDiscordants() {
			log.Panicf("discordant report without unique unpaired mates (read id %d)", s.rdid)
		}
		reportedPair = true
		s.selectAlns(s.rs1, 1, rnd)
		flags1 := Flags{Pair: PairDiscordMate1, MateAligned: true, MateFw: s.rs2[0].Fw}
		flags2 := Flags{Pair: PairDiscordMate2, MateAligned: true, MateFw: s.rs1[0].Fw}
		if err := s.fmtr.ReportHits(s.rd1, s.rd2, s.rdid, s.sel, s.rs1, s.rs2, flags1, flags2); err != nil {
			return err
		}
		met.NConcord0++
		met.NDiscord++
	}

	if !s.paired() || !reportedPair || r.PairMax {
		if !r.PairMax && s.paired() {
			met.NConcord0++
		}
		s.countUnpaired(met, s.rd1, r.NUnpair1, r.Unpair1Max, r.PairMax)
		s.countUnpaired(met, s.rd2, r.NUnpair2, r.Unpair2Max, r.PairMax)

		if !r.PairMax || r.NConcord == 0 {
			var repRs1, repRs2 *align.AlnRes
			if s.rd1 != nil && r.NUnpair1 > 0 {
				primary := s.selectAlns(s.rs1u, r.NUnpair1, rnd)
				repRs1 = &s.rs1u[primary]
				flags := s.unpairedFlags(true, r.Unpair1Max, r.PairMax, nil)
				if err := s.fmtr.ReportHits(s.rd1, nil, s.rdid, s.sel, s.rs1u, nil, flags, Flags{}); err != nil {
					return err
				}
			}
			if s.rd2 != nil && r.NUnpair2 > 0 {
				primary := s.selectAlns(s.rs2u, r.NUnpair2, rnd)
				repRs2 = &s.rs2u[primary]
				flags := s.unpairedFlags(false, r.Unpair2Max, r.PairMax, nil)
				if err := s.fmtr.ReportHits(s.rd2, nil, s.rdid, s.sel, s.rs2u, nil, flags, Flags{}); err != nil {
					return err
				}
			}
			if s.rd1 != nil && r.NUnpair1 == 0 {
				if err := s.reportMaxedOrUnaligned(s.rd1, s.rs1u, true, r.Unpair1Max, r.PairMax, repRs2); err != nil {
					return err
				}
			}
			if s.rd2 != nil && r.NUnpair2 == 0 {
				if err := s.reportMaxedOrUnaligned(s.rd2, s.rs2u, false, r.Unpair2Max, r.PairMax, repRs1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Sink) unpairedFlags(mate1, maxed, pairMax bool, rep *align.AlnRes) Flags {
	f := Flags{Pair: PairUnpaired, Maxed: maxed, MaxedPair: pairMax}
	if s.paired() {
		if mate1 {
			f.Pair = PairUnpairedMate1
		} else {
			f.Pair = PairUnpairedMate2
		}
	}
	if rep != nil {
		f.MateAligned = true
		f.MateFw = rep.Fw
	}
	return f
}

func (s *Sink) reportMaxedOrUnaligned(rd *align.Read, rs []align.AlnRes, mate1, maxed, pairMax bool, rep *align.AlnRes) error {
	flags := s.unpairedFlags(mate1, maxed, pairMax, rep)
	if maxed {
		if len(rs) == 0 {
			log.Panicf("maxed mate with no recorded alignments (read id %d)", s.rdid)
		}
		return s.fmtr.ReportMaxed(rd, s.rdid, rs, flags)
	}
	flags.Maxed = false
	flags.MaxedPair = false
	return s.fmtr.ReportUnaligned(rd, s.rdid, flags)
}

func (s *Sink) countUnpaired(met *Metrics, rd *align.Read, nrep uint64, maxed, pairMax bool) {
	if rd == nil {
		return
	}
	paired := s.paired()
	switch {
	case nrep > 0:
		if paired {
			if pairMax {
				if maxed {
					met.NUnpPairRepRep++
				} else {
					met.NUnpPairRepUni++
				}
			} else {
				if maxed {
					met.NUnpPair0Rep++
				} else {
					met.NUnpPair0Uni++
				}
			}
		} else {
			if maxed {
				met.NUnpRep++
			} else {
				met.NUnpUni++
			}
		}
	case maxed:
		if paired {
			if pairMax {
				met.NUnpPairRepRep++
			} else {
				met.NUnpPair0Rep++
			}
		} else {
			met.NUnpRep++
		}
	default:
		if paired {
			if pairMax {
				met.NUnpPairRepNone++
			} else {
				met.NUnpPair0None++
			}
		} else {
			met.NUnpNone++
		}
	}
}
