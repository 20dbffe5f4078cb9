package sink

import (
	"io"
	"sync"

	"github.com/biogo/hts/sam"
	"github.com/pkg/errors"

	"github.com/grailbio/multiseed/align"
)

// SAMFormatter renders records in SAM format through biogo's sam package.
// Safe for concurrent use; the stream mutex is held for one read's records
// at a time.  Seed summaries are not part of SAM and are dropped.
type SAMFormatter struct {
	mu   sync.Mutex
	w    *sam.Writer
	refs []*sam.Reference
}

var _ Formatter = (*SAMFormatter)(nil)

// NewSAMFormatter writes a header for ref to w and returns the formatter.
func NewSAMFormatter(w io.Writer, ref align.Reference) (*SAMFormatter, error) {
	refs := make([]*sam.Reference, ref.NumSeqs())
	for i := range refs {
		r, err := sam.NewReference(ref.SeqName(i), "", "", int(ref.SeqLen(i)), nil, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "sam: reference %q", ref.SeqName(i))
		}
		refs[i] = r
	}
	h, err := sam.NewHeader(nil, refs)
	if err != nil {
		return nil, errors.Wrap(err, "sam: header")
	}
	sw, err := sam.NewWriter(w, h, sam.FlagDecimal)
	if err != nil {
		return nil, errors.Wrap(err, "sam: writer")
	}
	return &SAMFormatter{w: sw, refs: refs}, nil
}

func pairFlags(pt PairType, fw bool) sam.Flags {
	var f sam.Flags
	if !fw {
		f |= sam.Reverse
	}
	switch pt {
	case PairConcordMate1:
		f |= sam.Paired | sam.ProperPair | sam.Read1
	case PairConcordMate2:
		f |= sam.Paired | sam.ProperPair | sam.Read2
	case PairDiscordMate1:
		f |= sam.Paired | sam.Read1
	case PairDiscordMate2:
		f |= sam.Paired | sam.Read2
	case PairUnpairedMate1:
		f |= sam.Paired | sam.Read1 | sam.MateUnmapped
	case PairUnpairedMate2:
		f |= sam.Paired | sam.Read2 | sam.MateUnmapped
	}
	return f
}

func pairTypeTag(pt PairType) string {
	switch pt {
	case PairConcordMate1, PairConcordMate2:
		return "CP"
	case PairDiscordMate1, PairDiscordMate2:
		return "DP"
	case PairUnpairedMate1, PairUnpairedMate2:
		return "UP"
	}
	return "UU"
}

// cigarFor converts an edit list into CIGAR operations.  Edit positions are
// relative to the alignment's upstream end on the reference.
func cigarFor(res *align.AlnRes, rdlen int) []sam.CigarOp {
	var ops []sam.CigarOp
	add := func(t sam.CigarOpType, n int) {
		if n <= 0 {
			return
		}
		if len(ops) > 0 && ops[len(ops)-1].Type() == t {
			ops[len(ops)-1] = sam.NewCigarOp(t, ops[len(ops)-1].Len()+n)
			return
		}
		ops = append(ops, sam.NewCigarOp(t, n))
	}
	rp := 0  // reference positions consumed
	rdc := 0 // read positions consumed
	for _, e := range res.Edits {
		switch e.Type {
		case align.EditReadGap:
			m := e.Pos - rp
			add(sam.CigarMatch, m)
			rdc += m
			add(sam.CigarDeletion, 1)
			rp = e.Pos + 1
		case align.EditRefGap:
			m := e.Pos - rp
			add(sam.CigarMatch, m)
			rdc += m
			rp = e.Pos
			add(sam.CigarInsertion, 1)
			rdc++
		}
	}
	add(sam.CigarMatch, rdlen-rdc)
	return ops
}

func editDistance(res *align.AlnRes) int {
	n := 0
	for _, e := range res.Edits {
		if e.Type != align.EditN {
			n++
		}
	}
	return n
}

func (f *SAMFormatter) record(rd *align.Read, res, mate *align.AlnRes, flags Flags, secondary bool) (*sam.Record, error) {
	seq, qual := rd.Orient(res.Fw)
	ref := f.refs[res.RefID]
	mateRef := (*sam.Reference)(nil)
	matePos := -1
	tLen := 0
	if mate != nil {
		mateRef = f.refs[mate.RefID]
		matePos = int(mate.RefOff)
		tLen = int(res.FragmentLength(mate))
	}
	mapq := byte(42)
	if secondary || flags.Maxed || flags.MaxedPair {
		mapq = 1
	}
	rec, err := sam.NewRecord(rd.Name, ref, mateRef, int(res.RefOff), matePos, tLen, mapq, cigarFor(res, rd.Len()), seq, qual, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "sam: record %q", rd.Name)
	}
	rec.Flags = pairFlags(flags.Pair, res.Fw)
	if mate != nil && !mate.Fw {
		rec.Flags |= sam.MateReverse
	}
	if secondary {
		rec.Flags |= sam.Secondary
	}
	if as, err := sam.NewAux(sam.NewTag("AS"), int(res.Score)); err == nil {
		rec.AuxFields = append(rec.AuxFields, as)
	}
	if nm, err := sam.NewAux(sam.NewTag("NM"), editDistance(res)); err == nil {
		rec.AuxFields = append(rec.AuxFields, nm)
	}
	if yt, err := sam.NewAux(sam.NewTag("YT"), pairTypeTag(flags.Pair)); err == nil {
		rec.AuxFields = append(rec.AuxFields, yt)
	}
	return rec, nil
}

// ReportHits implements Formatter.
func (f *SAMFormatter) ReportHits(rd1, rd2 *align.Read, rdid uint64, sel []int, rs1, rs2 []align.AlnRes, flags1, flags2 Flags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range rs1 {
		if sel[i] == 0 {
			continue
		}
		secondary := sel[i] != 1
		var mate *align.AlnRes
		if rs2 != nil {
			mate = &rs2[i]
		}
		rec, err := f.record(rd1, &rs1[i], mate, flags1, secondary)
		if err != nil {
			return err
		}
		if err := f.w.Write(rec); err != nil {
			return errors.Wrap(err, "sam: write")
		}
		if rs2 != nil {
			rec, err := f.record(rd2, &rs2[i], &rs1[i], flags2, secondary)
			if err != nil {
				return err
			}
			if err := f.w.Write(rec); err != nil {
				return errors.Wrap(err, "sam: write")
			}
		}
	}
	return nil
}

// ReportMaxed implements Formatter: the read is emitted unaligned with an
// XM tag recording how many alignments were withheld.
func (f *SAMFormatter) ReportMaxed(rd *align.Read, rdid uint64, rs []align.AlnRes, flags Flags) error {
	return f.unalignedRecord(rd, flags, len(rs))
}

// ReportUnaligned implements Formatter.
func (f *SAMFormatter) ReportUnaligned(rd *align.Read, rdid uint64, flags Flags) error {
	return f.unalignedRecord(rd, flags, -1)
}

func (f *SAMFormatter) unalignedRecord(rd *align.Read, flags Flags, withheld int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, err := sam.NewRecord(rd.Name, nil, nil, -1, -1, 0, 0, nil, rd.Seq, rd.Qual, nil)
	if err != nil {
		return errors.Wrapf(err, "sam: record %q", rd.Name)
	}
	rec.Flags = pairFlags(flags.Pair, true) | sam.Unmapped
	rec.Flags &^= sam.ProperPair
	if flags.MateAligned {
		rec.Flags &^= sam.MateUnmapped
		if !flags.MateFw {
			rec.Flags |= sam.MateReverse
		}
	}
	if withheld >= 0 {
		if xm, err := sam.NewAux(sam.NewTag("XM"), withheld); err == nil {
			rec.AuxFields = append(rec.AuxFields, xm)
		}
	}
	if err := f.w.Write(rec); err != nil {
		return errors.Wrap(err, "sam: write")
	}
	return nil
}

// ReportSeedSummary implements Formatter; SAM has no seed summary lines.
func (f *SAMFormatter) ReportSeedSummary(rd *align.Read, rdid uint64, summ SeedSummary) error {
	return nil
}
