// Package index provides an in-memory suffix-array index over a set of
// reference sequences, plus exact-match multiseed discovery.  It satisfies
// the lookup interfaces the extension driver consumes; a compressed
// FM-index can replace it behind the same interfaces.
//
// Construction sorts every suffix of the joined reference, so it is meant
// for moderately sized references: tests, bacterial genomes, amplicon
// panels.
package index

import (
	"bytes"
	"sort"

	"github.com/grailbio/base/log"

	"github.com/grailbio/multiseed/align"
	"github.com/grailbio/multiseed/extend"
	"github.com/grailbio/multiseed/sawalk"
)

// Index is a suffix-array index over the joined reference.  Read-only
// after New; shared across workers.
type Index struct {
	names  []string
	seqs   [][]byte
	starts []uint64 // joined offset of each sequence
	joined []byte
	sa     []uint64
}

var (
	_ sawalk.Index    = (*Index)(nil)
	_ align.Reference = (*Index)(nil)
)

// New builds the index.  Sequences are upper-cased; any byte outside ACGT
// is kept and treated as N by lookups.
func New(names []string, seqs [][]byte) *Index {
	if len(names) != len(seqs) {
		log.Panicf("index: %d names but %d sequences", len(names), len(seqs))
	}
	x := &Index{names: names, seqs: make([][]byte, len(seqs))}
	total := 0
	for _, s := range seqs {
		total += len(s)
	}
	x.joined = make([]byte, 0, total)
	for i, s := range seqs {
		up := bytes.ToUpper(s)
		x.seqs[i] = up
		x.starts = append(x.starts, uint64(len(x.joined)))
		x.joined = append(x.joined, up...)
	}
	x.sa = make([]uint64, len(x.joined))
	for i := range x.sa {
		x.sa[i] = uint64(i)
	}
	sort.Slice(x.sa, func(i, j int) bool {
		return bytes.Compare(x.joined[x.sa[i]:], x.joined[x.sa[j]:]) < 0
	})
	return x
}

// JoinedLen returns the length of the joined reference.
func (x *Index) JoinedLen() int { return len(x.joined) }

// ResolveSA implements sawalk.Index.
func (x *Index) ResolveSA(i uint64) uint64 { return x.sa[i] }

// JoinedToTextOff implements sawalk.Index.
func (x *Index) JoinedToTextOff(length int, joined uint64) (int, uint64, uint64) {
	tidx := sort.Search(len(x.starts), func(i int) bool { return x.starts[i] > joined }) - 1
	if tidx < 0 {
		return sawalk.SentinelRef, 0, 0
	}
	toff := joined - x.starts[tidx]
	tlen := uint64(len(x.seqs[tidx]))
	if toff+uint64(length) > tlen {
		// The hit straddles a sequence boundary.
		return sawalk.SentinelRef, 0, 0
	}
	return tidx, toff, tlen
}

// Lookup returns the suffix-array range of exact matches of pattern.
func (x *Index) Lookup(pattern []byte) sawalk.QVal {
	n := len(x.sa)
	lo := sort.Search(n, func(i int) bool {
		return bytes.Compare(x.suffixPrefix(i, len(pattern)), pattern) >= 0
	})
	hi := sort.Search(n, func(i int) bool {
		return bytes.Compare(x.suffixPrefix(i, len(pattern)), pattern) > 0
	})
	return sawalk.QVal{Top: uint64(lo), Bot: uint64(hi)}
}

func (x *Index) suffixPrefix(i, n int) []byte {
	s := x.joined[x.sa[i]:]
	if len(s) > n {
		s = s[:n]
	}
	return s
}

// NumSeqs implements align.Reference.
func (x *Index) NumSeqs() int { return len(x.seqs) }

// SeqLen implements align.Reference.
func (x *Index) SeqLen(tidx int) int64 { return int64(len(x.seqs[tidx])) }

// SeqName implements align.Reference.
func (x *Index) SeqName(tidx int) string { return x.names[tidx] }

// GetStretch implements align.Reference.  Positions outside the sequence
// are filled with 'N'.
func (x *Index) GetStretch(dst []byte, tidx int, off int64, n int) ([]byte, error) {
	seq := x.seqs[tidx]
	for i := 0; i < n; i++ {
		p := off + int64(i)
		if p < 0 || p >= int64(len(seq)) {
			dst = append(dst, 'N')
		} else {
			dst = append(dst, seq[p])
		}
	}
	return dst, nil
}

// ExtractSeeds extracts exact-match seeds at interval ival from both read
// representations and looks each up.  Seed offsets are recorded relative
// to the 5' end of the forward read, the convention the extension driver
// expects.  A seed longer than the read is shrunk to the read length.
func (x *Index) ExtractSeeds(rd *align.Read, seedLen, ival int) *extend.SeedResults {
	sh := &extend.SeedResults{}
	rdlen := rd.Len()
	if seedLen > rdlen {
		seedLen = rdlen
	}
	if seedLen == 0 {
		return sh
	}
	if ival < 1 {
		ival = 1
	}
	for _, fw := range []bool{true, false} {
		seq, _ := rd.Orient(fw)
		offIdx := 0
		for off := 0; off+seedLen <= rdlen; off += ival {
			qv := x.Lookup(seq[off : off+seedLen])
			rdoff := off
			if !fw {
				rdoff = rdlen - off - seedLen
			}
			sh.AddTried(extend.SeedHit{
				OffIdx:  offIdx,
				RdOff:   rdoff,
				SeedLen: seedLen,
				Fw:      fw,
				QV:      qv,
			})
			offIdx++
		}
	}
	sh.Sort()
	return sh
}
