package align

import "sort"

// A Coord identifies a tentative anchor position: reference id (0 until
// resolved), reference offset, and orientation.
type Coord struct {
	RefID int
	Off   int64
	Fw    bool
}

// A CoordSet records anchor coordinates that have already been tried for the
// current read, so each unique (refid, refoff, fw) is extended at most once.
type CoordSet struct {
	m map[Coord]struct{}
}

// NewCoordSet returns an empty coordinate set.
func NewCoordSet() *CoordSet { return &CoordSet{m: map[Coord]struct{}{}} }

// Insert adds c to the set.  It returns false if c was already present.
func (s *CoordSet) Insert(c Coord) bool {
	if _, ok := s.m[c]; ok {
		return false
	}
	s.m[c] = struct{}{}
	return true
}

// Len returns the number of distinct coordinates inserted.
func (s *CoordSet) Len() int { return len(s.m) }

// Reset empties the set for the next read.
func (s *CoordSet) Reset() {
	for c := range s.m {
		delete(s.m, c)
	}
}

type alnKey struct {
	refID int
	fw    bool
}

type alnIval struct {
	lo, hi int64 // [lo, hi)
}

// An AlnSet records the reference spans of alignments already emitted for
// the current read.  Two alignments are redundant iff they share refid and
// orientation and their [refoff, refoff+extent) intervals intersect.
//
// Cardinality per read is small, so storage is a sorted interval list per
// (refid, orientation) with binary-search lookup.
type AlnSet struct {
	m map[alnKey][]alnIval
}

// NewAlnSet returns an empty alignment span set.
func NewAlnSet() *AlnSet { return &AlnSet{m: map[alnKey][]alnIval{}} }

// Overlap reports whether res is redundant with a previously added result.
func (s *AlnSet) Overlap(res *AlnRes) bool {
	ivals := s.m[alnKey{res.RefID, res.Fw}]
	lo, hi := res.RefOff, res.RefOff+res.Extent
	// First interval whose end is past our start.
	i := sort.Search(len(ivals), func(i int) bool { return ivals[i].hi > lo })
	return i < len(ivals) && ivals[i].lo < hi
}

// Add records the span of res.  Callers check Overlap first; spans are kept
// sorted by start.
func (s *AlnSet) Add(res *AlnRes) {
	k := alnKey{res.RefID, res.Fw}
	ivals := s.m[k]
	iv := alnIval{res.RefOff, res.RefOff + res.Extent}
	i := sort.Search(len(ivals), func(i int) bool { return ivals[i].lo >= iv.lo })
	ivals = append(ivals, alnIval{})
	copy(ivals[i+1:], ivals[i:])
	ivals[i] = iv
	s.m[k] = ivals
}

// Reset empties the set for the next read.
func (s *AlnSet) Reset() {
	for k := range s.m {
		delete(s.m, k)
	}
}
