// Package sawalk iterates the suffix-array ranges implied by seed hits,
// yielding reference offsets one at a time.  Resolution of SA elements is
// shared across walkers through an AlignmentCache.
package sawalk

import (
	"sort"

	"github.com/grailbio/base/log"

	"github.com/grailbio/multiseed/align"
)

// SentinelRef is the tidx value returned by JoinedToTextOff when a hit
// straddles a sequence boundary.
const SentinelRef = -1

// Index resolves suffix-array elements and joined reference offsets.
// Implementations are shared, read-only across workers.
type Index interface {
	// ResolveSA returns the joined reference offset of SA element i.
	ResolveSA(i uint64) uint64
	// JoinedToTextOff translates the joined offset of a hit of the given
	// length into (sequence index, in-sequence offset, sequence length).
	// tidx is SentinelRef when the hit straddles a sequence boundary.
	JoinedToTextOff(length int, joined uint64) (tidx int, toff uint64, tlen uint64)
}

// A QVal describes one suffix-array range [Top, Bot) for a seed hit, with
// the rank assigned by seed discovery (smaller range, higher priority).
type QVal struct {
	Top, Bot uint64
	Rank     int
}

// Empty reports whether the range holds no elements.
func (q QVal) Empty() bool { return q.Bot <= q.Top }

// Size returns the number of SA elements in the range.
func (q QVal) Size() uint64 {
	if q.Empty() {
		return 0
	}
	return q.Bot - q.Top
}

// A SATuple is one contiguous piece of a resolved QVal: the SA range start
// and the joined reference offset of each element.
type SATuple struct {
	Top  uint64
	Offs []uint64
}

// A WalkResult is one yielded SA element.
type WalkResult struct {
	// Elt is the suffix-array position of the element.
	Elt uint64
	// Joined is the element's joined reference offset.
	Joined uint64
	// Len is the seed-hit length.
	Len int
}

// Metrics counts walker work.  Merged at read boundaries.
type Metrics struct {
	Ranges    int // SA ranges resolved
	Elts      int // elements resolved
	CacheHits int // ranges served from the cache
	Narrowed  int // elements discarded by random narrowing
	Yields    int // elements yielded to the driver
}

// Merge returns the field-wise sum of m and o.
func (m Metrics) Merge(o Metrics) Metrics {
	m.Ranges += o.Ranges
	m.Elts += o.Elts
	m.CacheHits += o.CacheHits
	m.Narrowed += o.Narrowed
	m.Yields += o.Yields
	return m
}

// A Walker iterates one QVal's SA range, yielding a WalkResult per element.
// When the range exceeds maxRows the walker first narrows it to exactly
// maxRows elements, uniformly without replacement, deterministically for a
// given random source.  Elements are yielded in SA order after narrowing.
type Walker struct {
	qv      QVal
	seedLen int
	elts    []uint64 // SA positions to visit, ascending
	offs    []uint64 // joined offsets, parallel to elts
	cur     int
	init    bool
}

// Initialized reports whether InitQval has been called.
func (w *Walker) Initialized() bool { return w.init }

// InitQval readies the walker for qv.  maxRows == 0 disables narrowing.
func (w *Walker) InitQval(idx Index, cache *AlignmentCache, qv QVal, seedLen, maxRows int, rnd align.RandomSource, m *Metrics) {
	if qv.Empty() {
		log.Panicf("walker initialized with empty range [%d, %d)", qv.Top, qv.Bot)
	}
	w.qv = qv
	w.seedLen = seedLen
	w.cur = 0
	w.init = true

	satups := cache.QueryQval(idx, qv, m)
	n := 0
	for _, st := range satups {
		n += len(st.Offs)
	}
	w.elts = make([]uint64, 0, n)
	w.offs = make([]uint64, 0, n)
	for _, st := range satups {
		for i, off := range st.Offs {
			w.elts = append(w.elts, st.Top+uint64(i))
			w.offs = append(w.offs, off)
		}
	}
	if maxRows > 0 && n > maxRows {
		keep := randomNarrow(n, maxRows, rnd)
		m.Narrowed += n - maxRows
		elts := make([]uint64, maxRows)
		offs := make([]uint64, maxRows)
		for i, j := range keep {
			elts[i] = w.elts[j]
			offs[i] = w.offs[j]
		}
		w.elts, w.offs = elts, offs
	}
}

// Done reports whether every element of the (narrowed) range was yielded.
func (w *Walker) Done() bool { return !w.init || w.cur >= len(w.elts) }

// Next yields the next element.  ok is false once the walker is done.
func (w *Walker) Next(m *Metrics) (wr WalkResult, ok bool) {
	if w.Done() {
		return WalkResult{}, false
	}
	wr = WalkResult{Elt: w.elts[w.cur], Joined: w.offs[w.cur], Len: w.seedLen}
	w.cur++
	m.Yields++
	return wr, true
}

// randomNarrow picks exactly want of n indices uniformly without
// replacement and returns them in ascending order.
func randomNarrow(n, want int, rnd align.RandomSource) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < want; i++ {
		j := i + int(rnd.NextU32()%uint32(n-i))
		idx[i], idx[j] = idx[j], idx[i]
	}
	idx = idx[:want]
	sort.Ints(idx)
	return idx
}
