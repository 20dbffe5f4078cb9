// Package sink accumulates candidate alignments for a read, tracks the
// reporting state machine that decides when searching can stop, and emits
// the final records through a Formatter.
package sink

import (
	"fmt"

	"github.com/grailbio/base/log"
)

// ReportingParams are the user limits on reported alignments.  Immutable
// for a worker's lifetime.
type ReportingParams struct {
	// KHits is the maximum number of alignments reported per category.
	KHits int
	// MHits, when set, suppresses a category entirely once its count
	// exceeds the ceiling (or samples one representative when MSample is
	// set).  Zero means no ceiling.
	MHits   int
	MSample bool
	// Discord enables discordant pair reporting.
	Discord bool
	// Mixed enables unpaired reporting of individual mates of a pair.
	Mixed bool
}

// MHitsSet reports whether the repetitiveness ceiling is in force.
func (p ReportingParams) MHitsSet() bool { return p.MHits > 0 }

// Exit says how a reporting category was closed.
type Exit int

const (
	// ExitDidNotEnter marks a category that was never active for the read.
	ExitDidNotEnter Exit = iota
	// ExitDidNotExit marks a category that is still open.
	ExitDidNotExit
	// ExitShortCircuitK: the khits limit was reached.
	ExitShortCircuitK
	// ExitShortCircuitM: the mhits ceiling was exceeded; the category's
	// alignments are suppressed.
	ExitShortCircuitM
	// ExitShortCircuitMSample: the mhits ceiling was exceeded with
	// sampling enabled; one alignment is reported at random.
	ExitShortCircuitMSample
	// ExitTrumped: a preferable category made this one irrelevant.
	ExitTrumped
	// ExitWithAlignments: the search ended normally with alignments found.
	ExitWithAlignments
	// ExitNoAlignments: the search ended normally with none found.
	ExitNoAlignments
)

func (e Exit) String() string {
	switch e {
	case ExitDidNotEnter:
		return "DID_NOT_ENTER"
	case ExitDidNotExit:
		return "DID_NOT_EXIT"
	case ExitShortCircuitK:
		return "SHORT_CIRCUIT_k"
	case ExitShortCircuitM:
		return "SHORT_CIRCUIT_m"
	case ExitShortCircuitMSample:
		return "SHORT_CIRCUIT_M"
	case ExitTrumped:
		return "TRUMPED"
	case ExitWithAlignments:
		return "WITH_ALIGNMENTS"
	case ExitNoAlignments:
		return "NO_ALIGNMENTS"
	}
	return fmt.Sprintf("Exit(%d)", int(e))
}

// A Report is what ReportingState tells the sink to emit at finish time.
type Report struct {
	NConcord uint64 // concordant pairs to report
	NDiscord uint64 // discordant pairs to report (0 or 1)
	NUnpair1 uint64 // unpaired mate-1 alignments to report
	NUnpair2 uint64 // unpaired mate-2 alignments to report
	// PairMax / Unpair1Max / Unpair2Max flag categories that aligned
	// repetitively (exceeded the mhits ceiling).
	PairMax    bool
	Unpair1Max bool
	Unpair2Max bool
}

// ReportingState is the per-read finite state machine tracking counts and
// stop conditions for the concordant, discordant, and per-mate unpaired
// categories.
type ReportingState struct {
	params ReportingParams
	paired bool
	inited bool

	doneConcord, doneDiscord bool
	doneUnpair1, doneUnpair2 bool
	doneUnpair, allDone      bool

	exitConcord, exitDiscord Exit
	exitUnpair1, exitUnpair2 Exit

	nconcord, ndiscord uint64
	nunpair1, nunpair2 uint64
}

// NewReportingState returns a state machine for the given limits.
func NewReportingState(p ReportingParams) *ReportingState {
	if p.KHits <= 0 {
		log.Panicf("khits must be positive, got %d", p.KHits)
	}
	return &ReportingState{params: p}
}

// Params returns the reporting limits.
func (st *ReportingState) Params() ReportingParams { return st.params }

// NextRead initializes the machine for a new read or pair.
func (st *ReportingState) NextRead(paired bool) {
	st.paired = paired
	st.inited = true
	if paired {
		st.doneConcord = false
		st.doneDiscord = !st.params.Discord
		st.doneUnpair1 = !st.params.Mixed
		st.doneUnpair2 = !st.params.Mixed
		st.exitConcord = ExitDidNotExit
		st.exitDiscord = ExitDidNotExit
		if !st.params.Discord {
			st.exitDiscord = ExitDidNotEnter
		}
		st.exitUnpair1 = ExitDidNotExit
		st.exitUnpair2 = ExitDidNotExit
		if !st.params.Mixed {
			st.exitUnpair1 = ExitDidNotEnter
			st.exitUnpair2 = ExitDidNotEnter
		}
	} else {
		st.doneConcord = true
		st.doneDiscord = true
		st.doneUnpair1 = false
		st.doneUnpair2 = true
		st.exitConcord = ExitDidNotEnter
		st.exitDiscord = ExitDidNotEnter
		st.exitUnpair1 = ExitDidNotExit
		st.exitUnpair2 = ExitDidNotEnter
	}
	st.doneUnpair = st.doneUnpair1 && st.doneUnpair2
	st.allDone = false
	st.nconcord, st.ndiscord, st.nunpair1, st.nunpair2 = 0, 0, 0, 0
}

func (st *ReportingState) updateDone() {
	st.doneUnpair = st.doneUnpair1 && st.doneUnpair2
	st.allDone = st.doneConcord && st.doneDiscord && st.doneUnpair
}

// FoundConcordant records one more concordant alignment.  It returns true
// when the whole read's search can stop.
func (st *ReportingState) FoundConcordant() bool {
	if st.allDone {
		return true
	}
	if !st.paired || st.doneConcord {
		log.Panicf("foundConcordant in invalid state: paired=%v doneConcord=%v", st.paired, st.doneConcord)
	}
	st.nconcord++
	st.areDone(st.nconcord, &st.doneConcord, &st.exitConcord)
	// Any concordant alignment makes discordant reporting impossible.
	st.doneDiscord = true
	st.exitDiscord = ExitTrumped
	if st.doneConcord {
		// Continuing to unpaired search is only useful when the pair is
		// repetitive (-m/-M ceiling hit).  On -k exit the unpaired
		// categories are trumped.
		if st.exitConcord != ExitShortCircuitM && st.exitConcord != ExitShortCircuitMSample {
			if !st.doneUnpair1 {
				st.doneUnpair1 = true
				st.exitUnpair1 = ExitTrumped
			}
			if !st.doneUnpair2 {
				st.doneUnpair2 = true
				st.exitUnpair2 = ExitTrumped
			}
		}
	}
	st.updateDone()
	return st.allDone
}

// FoundDiscordant records the discordant alignment.  At most one per read.
func (st *ReportingState) FoundDiscordant() bool {
	if st.allDone {
		return true
	}
	if !st.paired || st.doneDiscord {
		log.Panicf("foundDiscordant in invalid state: paired=%v doneDiscord=%v", st.paired, st.doneDiscord)
	}
	st.ndiscord++
	st.doneDiscord = true
	st.exitDiscord = ExitWithAlignments
	// A discordant alignment excludes unpaired reporting.
	if !st.doneUnpair1 {
		st.doneUnpair1 = true
		st.exitUnpair1 = ExitTrumped
	}
	if !st.doneUnpair2 {
		st.doneUnpair2 = true
		st.exitUnpair2 = ExitTrumped
	}
	st.updateDone()
	return st.allDone
}

// FoundUnpaired records one more unpaired alignment for the given mate.
func (st *ReportingState) FoundUnpaired(mate1 bool) bool {
	if st.allDone {
		return true
	}
	if mate1 {
		st.nunpair1++
		if !st.doneUnpair1 {
			st.areDone(st.nunpair1, &st.doneUnpair1, &st.exitUnpair1)
		}
		if st.nunpair1 > 1 {
			// Mate 1 is not unique, so no discordant pair can form.
			st.doneDiscord = true
			if st.exitDiscord != ExitDidNotEnter {
				st.exitDiscord = ExitNoAlignments
			}
		}
	} else {
		st.nunpair2++
		if !st.doneUnpair2 {
			st.areDone(st.nunpair2, &st.doneUnpair2, &st.exitUnpair2)
		}
		if st.nunpair2 > 1 {
			st.doneDiscord = true
			if st.exitDiscord != ExitDidNotEnter {
				st.exitDiscord = ExitNoAlignments
			}
		}
	}
	st.updateDone()
	return st.allDone
}

// Finish closes every open category.  A pair with no concordant alignment
// and exactly one unpaired alignment per mate is promoted to a single
// discordant alignment.
func (st *ReportingState) Finish() {
	if !st.doneConcord {
		st.doneConcord = true
		st.exitConcord = exitFor(st.nconcord)
	}
	if !st.doneUnpair1 {
		st.doneUnpair1 = true
		st.exitUnpair1 = exitFor(st.nunpair1)
	}
	if !st.doneUnpair2 {
		st.doneUnpair2 = true
		st.exitUnpair2 = exitFor(st.nunpair2)
	}
	if !st.doneDiscord {
		if st.nconcord == 0 && st.nunpair1 == 1 && st.nunpair2 == 1 {
			st.convertUnpairedToDiscordant()
		}
		st.doneDiscord = true
		st.exitDiscord = exitFor(st.ndiscord)
	}
	st.doneUnpair = true
	st.allDone = true
}

func exitFor(cnt uint64) Exit {
	if cnt > 0 {
		return ExitWithAlignments
	}
	return ExitNoAlignments
}

func (st *ReportingState) convertUnpairedToDiscordant() {
	st.ndiscord = 1
	st.nunpair1 = 0
	st.nunpair2 = 0
}

// areDone checks whether cnt short-circuits the category and records how.
func (st *ReportingState) areDone(cnt uint64, done *bool, exit *Exit) {
	if !st.params.MHitsSet() {
		if cnt >= uint64(st.params.KHits) {
			*done = true
			*exit = ExitShortCircuitK
		}
		return
	}
	if cnt > uint64(st.params.MHits) {
		*done = true
		if st.params.MSample {
			*exit = ExitShortCircuitMSample
		} else {
			*exit = ExitShortCircuitM
		}
	}
}

// Done reports whether every category is closed.
func (st *ReportingState) Done() bool { return st.allDone }

// DoneConcordant reports whether the concordant category is closed.
func (st *ReportingState) DoneConcordant() bool { return st.doneConcord }

// DoneDiscordant reports whether the discordant category is closed.
func (st *ReportingState) DoneDiscordant() bool { return st.doneDiscord }

// DoneUnpaired reports whether the unpaired category for a mate is closed.
func (st *ReportingState) DoneUnpaired(mate1 bool) bool {
	if mate1 {
		return st.doneUnpair1
	}
	return st.doneUnpair2
}

// DoneUnpairedAll reports whether both unpaired categories are closed.
func (st *ReportingState) DoneUnpairedAll() bool { return st.doneUnpair }

// DoneWithMate reports whether the given mate can contribute nothing more:
// its unpaired category is closed (or irrelevant), the concordant category
// is closed, and it can no longer take part in a discordant pair.
func (st *ReportingState) DoneWithMate(mate1 bool) bool {
	doneUnpair := st.doneUnpair1
	nun := st.nunpair1
	if !mate1 {
		doneUnpair = st.doneUnpair2
		nun = st.nunpair2
	}
	if !doneUnpair && (st.params.Mixed || st.params.Discord) {
		return false
	}
	if !st.doneConcord {
		return false
	}
	if !st.doneDiscord && nun < 2 {
		return false
	}
	return true
}

// Counts returns (nconcord, ndiscord, nunpair1, nunpair2).
func (st *ReportingState) Counts() (uint64, uint64, uint64, uint64) {
	return st.nconcord, st.ndiscord, st.nunpair1, st.nunpair2
}

// GetReport decides what to emit for the read.  Concordant alignments are
// preferable to (and mutually exclusive with) discordant ones, and pairs
// are preferable to unpaired mates.
func (st *ReportingState) GetReport() Report {
	var r Report
	if st.paired {
		switch st.exitConcord {
		case ExitShortCircuitK:
			r.NConcord = uint64(st.params.KHits)
			return r
		case ExitShortCircuitMSample:
			r.PairMax = true
			if st.params.Mixed {
				r.Unpair1Max = st.nunpair1 > uint64(st.params.MHits)
				r.Unpair2Max = st.nunpair2 > uint64(st.params.MHits)
			}
			r.NConcord = 1 // one at random
			return r
		case ExitWithAlignments:
			r.NConcord = min64(st.nconcord, uint64(st.params.KHits))
			return r
		case ExitShortCircuitM:
			r.PairMax = true
			if st.params.Mixed {
				r.Unpair1Max = st.nunpair1 > uint64(st.params.MHits)
				r.Unpair2Max = st.nunpair2 > uint64(st.params.MHits)
			}
		}
		if st.exitDiscord == ExitWithAlignments {
			r.NDiscord = 1
			return r
		}
	}
	if (st.paired && !st.params.Mixed) || st.nunpair1+st.nunpair2 == 0 {
		return r
	}
	switch st.exitUnpair1 {
	case ExitShortCircuitK:
		r.NUnpair1 = uint64(st.params.KHits)
	case ExitShortCircuitMSample:
		r.Unpair1Max = true
		r.NUnpair1 = 1
	case ExitWithAlignments:
		r.NUnpair1 = min64(st.nunpair1, uint64(st.params.KHits))
	case ExitShortCircuitM:
		r.Unpair1Max = true
	}
	switch st.exitUnpair2 {
	case ExitShortCircuitK:
		r.NUnpair2 = uint64(st.params.KHits)
	case ExitShortCircuitMSample:
		r.Unpair2Max = true
		r.NUnpair2 = 1
	case ExitWithAlignments:
		r.NUnpair2 = min64(st.nunpair2, uint64(st.params.KHits))
	case ExitShortCircuitM:
		r.Unpair2Max = true
	}
	return r
}

// RepOK checks the representation invariants.
func (st *ReportingState) RepOK() error {
	if !st.inited {
		return fmt.Errorf("reporting state used before NextRead")
	}
	if st.allDone && !(st.doneConcord && st.doneDiscord && st.doneUnpair1 && st.doneUnpair2) {
		return fmt.Errorf("done but a category is still open")
	}
	if st.doneConcord != (st.exitConcord != ExitDidNotExit) && st.doneConcord {
		return fmt.Errorf("concordant closed with exit %v", st.exitConcord)
	}
	return nil
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
