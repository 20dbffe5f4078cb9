// Package sw defines the contract between the seed-extension driver and
// the banded dynamic programming filler, and provides a concrete affine-gap
// implementation.  The driver depends only on the Aligner interface.
package sw

import (
	"github.com/grailbio/multiseed/align"
	"github.com/grailbio/multiseed/dpframe"
	"github.com/grailbio/multiseed/scoring"
)

// A Problem is one framed DP subproblem: align the read (in the given
// orientation) against the reference window described by Frame.
type Problem struct {
	Rd    *align.Read
	Fw    bool
	RefID int
	Ref   align.Reference
	// TLen is the length of reference sequence RefID.
	TLen  int64
	Frame dpframe.Frame

	Sc       *scoring.Scoring
	MinScore int64
	Floor    int64
	NCeil    int
}

// Metrics counts DP work.  Merged at read boundaries.
type Metrics struct {
	Sws      int // DP problems attempted
	Cups     int // cell updates
	Rows     int // rows filled
	SkipRows int // rows skipped
	Succ     int // problems with >= 1 valid alignment
	Fail     int // problems with none
	Bts      int // backtraces performed
}

// Merge returns the field-wise sum of m and o.
func (m Metrics) Merge(o Metrics) Metrics {
	m.Sws += o.Sws
	m.Cups += o.Cups
	m.Rows += o.Rows
	m.SkipRows += o.SkipRows
	m.Succ += o.Succ
	m.Fail += o.Fail
	m.Bts += o.Bts
	return m
}

// Aligner solves framed DP subproblems.  Implementations keep per-problem
// state between Init and the last NextAlignment, and per-call counters that
// the driver merges into its own metrics at the points it chooses.
type Aligner interface {
	// Init poses a new problem.  A non-nil error means the reference
	// window could not be fetched; the read is then abandoned.
	Init(prob Problem) error
	// Align fills the DP matrix.  It returns true iff at least one
	// candidate alignment reaches the minimum score; NextAlignment may
	// still reject candidates (BandedAligner checks the N ceiling there).
	Align(rnd align.RandomSource) bool
	// Done reports whether every valid alignment has been yielded.
	Done() bool
	// NextAlignment backtraces the next-best alignment into res.  It
	// returns false when none remain.
	NextAlignment(res *align.AlnRes, rnd align.RandomSource) bool

	MergeAlignCounters(m *Metrics)
	ResetAlignCounters()
	MergeBacktraceCounters(m *Metrics)
	ResetBacktraceCounters()
}
