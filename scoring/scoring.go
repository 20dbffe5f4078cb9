// Package scoring holds the alignment scoring configuration: penalties and
// bonuses, the length-dependent minimum score, floor and N ceiling, and the
// gap budgets they imply for banded dynamic programming.  The policy-string
// parser in policy.go produces the full configuration.
package scoring

import "math"

// PenaltyType selects how a mismatch or N penalty is assessed.
type PenaltyType int

const (
	// PenaltyConstant charges a fixed amount.
	PenaltyConstant PenaltyType = iota + 1
	// PenaltyQuality charges the base's quality value.
	PenaltyQuality
	// PenaltyRoundedQuality charges the quality rounded to the nearest 10,
	// capped at 30.
	PenaltyRoundedQuality
)

// Scoring holds penalties, bonuses, and the length-dependent score
// functions.  Read-only once a worker starts; shared across workers.
type Scoring struct {
	// Local selects local alignment: positive match bonus and a zero score
	// floor.  Global alignment has zero bonus and no floor.
	Local bool

	MatchBonus int

	MismatchType  PenaltyType
	MismatchConst int

	NType  PenaltyType
	NConst int
	// NCatPair treats an N in read and reference at one position as a
	// single penalty rather than two.
	NCatPair bool

	// Gap penalties: a gap of length L costs Const + Linear*L.
	RdGapConst  int
	RdGapLinear int
	RfGapConst  int
	RfGapLinear int

	// MinScore is the minimum total score for a valid alignment.
	MinScore SimpleFunc
	// Floor is the cell floor for local alignment.
	Floor SimpleFunc
	// NCeil bounds the number of alignment positions involving an N.
	NCeil SimpleFunc
}

// Global returns the default global-alignment scoring configuration.
func Global() Scoring {
	return Scoring{
		Local:         false,
		MatchBonus:    0,
		MismatchType:  PenaltyConstant,
		MismatchConst: 30,
		NType:         PenaltyConstant,
		NConst:        1,
		RdGapConst:    25,
		RdGapLinear:   15,
		RfGapConst:    25,
		RfGapLinear:   15,
		MinScore:      linear(-3.0, -2.0),
		Floor:         linear(math.Inf(-1), 0),
		NCeil:         linear(0, 0.15),
	}
}

// LocalDefaults returns the default local-alignment scoring configuration.
func LocalDefaults() Scoring {
	s := Global()
	s.Local = true
	s.MatchBonus = 10
	s.MinScore = linear(5.0, 0.5)
	s.Floor = linear(0, 0)
	return s
}

func roundQual(q byte) int {
	r := (int(q) + 5) / 10 * 10
	if r > 30 {
		r = 30
	}
	return r
}

func (s *Scoring) penalty(typ PenaltyType, c int, q byte) int {
	switch typ {
	case PenaltyQuality:
		return int(q)
	case PenaltyRoundedQuality:
		return roundQual(q)
	}
	return c
}

// Mismatch returns the penalty for a mismatch at a base with quality q.
func (s *Scoring) Mismatch(q byte) int { return s.penalty(s.MismatchType, s.MismatchConst, q) }

// N returns the penalty for a position with an N, at read quality q.
func (s *Scoring) N(q byte) int { return s.penalty(s.NType, s.NConst, q) }

// ReadGapOpen is the cost of the first position of a read gap.
func (s *Scoring) ReadGapOpen() int { return s.RdGapConst + s.RdGapLinear }

// ReadGapExtend is the cost of each subsequent read gap position.
func (s *Scoring) ReadGapExtend() int { return s.RdGapLinear }

// RefGapOpen is the cost of the first position of a reference gap.
func (s *Scoring) RefGapOpen() int { return s.RfGapConst + s.RfGapLinear }

// RefGapExtend is the cost of each subsequent reference gap position.
func (s *Scoring) RefGapExtend() int { return s.RfGapLinear }

// Perfect returns the score of a gapless, mismatch-free alignment of a read
// of length rdlen.
func (s *Scoring) Perfect(rdlen int) int64 { return int64(s.MatchBonus) * int64(rdlen) }

// MinScoreFor evaluates the minimum valid score for a read of length rdlen.
func (s *Scoring) MinScoreFor(rdlen int) int64 { return s.MinScore.EvalScore(rdlen) }

// FloorFor evaluates the cell floor for a read of length rdlen.
func (s *Scoring) FloorFor(rdlen int) int64 { return s.Floor.EvalScore(rdlen) }

// NCeilFor evaluates the N ceiling for a read of length rdlen, clamped to
// the read length.
func (s *Scoring) NCeilFor(rdlen int) int {
	n := int(s.NCeil.Eval(float64(rdlen)))
	if n > rdlen {
		n = rdlen
	}
	if n < 0 {
		n = 0
	}
	return n
}

// MaxReadGaps returns the largest number of read-gap positions whose
// penalty, charged against an otherwise perfect alignment, still admits a
// score of at least minsc.  Bounds the band width on the reference side.
func (s *Scoring) MaxReadGaps(minsc int64, rdlen int) int {
	sc := s.Perfect(rdlen)
	n := 0
	for {
		if n == 0 {
			sc -= int64(s.ReadGapOpen())
		} else {
			sc -= int64(s.ReadGapExtend())
		}
		if sc < minsc {
			break
		}
		n++
	}
	return n
}

// MaxRefGaps is the reference-gap analogue of MaxReadGaps.  A reference gap
// consumes a read position, so each gap also forfeits one match bonus.
func (s *Scoring) MaxRefGaps(minsc int64, rdlen int) int {
	sc := s.Perfect(rdlen)
	n := 0
	for {
		if n == 0 {
			sc -= int64(s.MatchBonus + s.RefGapOpen())
		} else {
			sc -= int64(s.MatchBonus + s.RefGapExtend())
		}
		if sc < minsc {
			break
		}
		n++
	}
	return n
}
