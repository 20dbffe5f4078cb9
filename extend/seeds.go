// Package extend drives seed extension: it drains ranked seed hits,
// resolves their reference offsets through suffix-array walkers, frames and
// solves banded DP subproblems, suppresses redundant work, and feeds
// results to the reporting sink.
package extend

import (
	"sort"

	"github.com/grailbio/multiseed/sawalk"
	"github.com/grailbio/multiseed/sink"
)

// A SeedHit is one seed of a read together with its suffix-array range.
type SeedHit struct {
	// OffIdx is the seed-offset index within the read.
	OffIdx int
	// RdOff is the seed's offset from the 5' end of the read.
	RdOff int
	// SeedLen is the seed length.
	SeedLen int
	// Fw says which read representation the seed was extracted from.
	Fw bool
	// QV is the suffix-array range the seed resolved to.
	QV sawalk.QVal
}

// SeedResults collects the seeds of one read.  After Sort, hits are ordered
// by rank: smaller SA range (more specific seed) first.
type SeedResults struct {
	hits []SeedHit

	triedFw int
	triedRc int
	eltsFw  int
	eltsRc  int
	zeroFw  int
	zeroRc  int
}

// AddTried records a seed lookup, empty or not; non-empty hits are kept.
func (s *SeedResults) AddTried(h SeedHit) {
	if h.Fw {
		s.triedFw++
	} else {
		s.triedRc++
	}
	if h.QV.Empty() {
		if h.Fw {
			s.zeroFw++
		} else {
			s.zeroRc++
		}
		return
	}
	if h.Fw {
		s.eltsFw += int(h.QV.Size())
	} else {
		s.eltsRc += int(h.QV.Size())
	}
	s.hits = append(s.hits, h)
}

// Sort ranks the hits: ascending SA-range size, read offset breaking ties.
func (s *SeedResults) Sort() {
	sort.SliceStable(s.hits, func(i, j int) bool {
		si, sj := s.hits[i].QV.Size(), s.hits[j].QV.Size()
		if si != sj {
			return si < sj
		}
		if s.hits[i].RdOff != s.hits[j].RdOff {
			return s.hits[i].RdOff < s.hits[j].RdOff
		}
		return s.hits[i].Fw && !s.hits[j].Fw
	})
	for i := range s.hits {
		s.hits[i].QV.Rank = i
	}
}

// NonzeroOffsets returns the number of seeds with a non-empty range.
func (s *SeedResults) NonzeroOffsets() int { return len(s.hits) }

// HitByRank returns the rank-i hit.  Sort must have been called.
func (s *SeedResults) HitByRank(i int) SeedHit { return s.hits[i] }

// NumElts returns the total SA elements over all non-empty hits.
func (s *SeedResults) NumElts() int { return s.eltsFw + s.eltsRc }

// Summary aggregates the counts for the seed summary line.
func (s *SeedResults) Summary() sink.SeedSummary {
	nzFw := s.triedFw - s.zeroFw
	nzRc := s.triedRc - s.zeroRc
	return sink.SeedSummary{
		SeedsTried: s.triedFw + s.triedRc,
		Nonzero:    nzFw + nzRc,
		Ranges:     len(s.hits),
		Elts:       s.eltsFw + s.eltsRc,

		SeedsTriedFw: s.triedFw,
		NonzeroFw:    nzFw,
		RangesFw:     nzFw,
		EltsFw:       s.eltsFw,

		SeedsTriedRc: s.triedRc,
		NonzeroRc:    nzRc,
		RangesRc:     nzRc,
		EltsRc:       s.eltsRc,
	}
}
