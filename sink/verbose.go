package sink

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"

	"github.com/grailbio/multiseed/align"
)

// VerboseFormatter writes one tab-separated line per reported alignment,
// plus seed summary lines.  It is the debugging-oriented counterpart of the
// SAM formatter.
type VerboseFormatter struct {
	mu  sync.Mutex
	w   *tsv.Writer
	ref align.Reference
}

var _ Formatter = (*VerboseFormatter)(nil)

// NewVerboseFormatter returns a formatter writing to w.
func NewVerboseFormatter(w io.Writer, ref align.Reference) *VerboseFormatter {
	return &VerboseFormatter{w: tsv.NewWriter(w), ref: ref}
}

// Flush flushes buffered lines to the underlying writer.
func (f *VerboseFormatter) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w.Flush()
}

func editString(res *align.AlnRes) string {
	if len(res.Edits) == 0 {
		return "-"
	}
	var b strings.Builder
	for i, e := range res.Edits {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d:%c>%c", e.Pos, e.Ref, e.Read)
	}
	return b.String()
}

func orientChar(fw bool) string {
	if fw {
		return "+"
	}
	return "-"
}

func (f *VerboseFormatter) line(rd *align.Read, res *align.AlnRes, flags Flags, primary bool) error {
	f.w.WriteString(rd.Name)
	f.w.WriteString(pairTypeTag(flags.Pair))
	f.w.WriteString(orientChar(res.Fw))
	f.w.WriteString(f.ref.SeqName(res.RefID))
	f.w.WriteInt64(res.RefOff)
	f.w.WriteInt64(res.RefOff + res.Extent)
	f.w.WriteInt64(res.Score)
	f.w.WriteString(editString(res))
	if primary {
		f.w.WriteString("primary")
	} else {
		f.w.WriteString("secondary")
	}
	return errors.Wrap(f.w.EndLine(), "verbose: write")
}

// ReportHits implements Formatter.
func (f *VerboseFormatter) ReportHits(rd1, rd2 *align.Read, rdid uint64, sel []int, rs1, rs2 []align.AlnRes, flags1, flags2 Flags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range rs1 {
		if sel[i] == 0 {
			continue
		}
		if err := f.line(rd1, &rs1[i], flags1, sel[i] == 1); err != nil {
			return err
		}
		if rs2 != nil {
			if err := f.line(rd2, &rs2[i], flags2, sel[i] == 1); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReportMaxed implements Formatter.
func (f *VerboseFormatter) ReportMaxed(rd *align.Read, rdid uint64, rs []align.AlnRes, flags Flags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.w.WriteString(rd.Name)
	f.w.WriteString(pairTypeTag(flags.Pair))
	f.w.WriteString(fmt.Sprintf("maxed:%d", len(rs)))
	return errors.Wrap(f.w.EndLine(), "verbose: write")
}

// ReportUnaligned implements Formatter.
func (f *VerboseFormatter) ReportUnaligned(rd *align.Read, rdid uint64, flags Flags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.w.WriteString(rd.Name)
	f.w.WriteString(pairTypeTag(flags.Pair))
	f.w.WriteString("unaligned")
	return errors.Wrap(f.w.EndLine(), "verbose: write")
}

// ReportSeedSummary implements Formatter.  One line per read: overall
// seed/range/element counts, then the same split per strand.
func (f *VerboseFormatter) ReportSeedSummary(rd *align.Read, rdid uint64, summ SeedSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.w.WriteString(rd.Name)
	for _, v := range []int{
		summ.SeedsTried, summ.Nonzero, summ.Ranges, summ.Elts,
		summ.SeedsTriedFw, summ.NonzeroFw, summ.RangesFw, summ.EltsFw,
		summ.SeedsTriedRc, summ.NonzeroRc, summ.RangesRc, summ.EltsRc,
	} {
		f.w.WriteInt64(int64(v))
	}
	return errors.Wrap(f.w.EndLine(), "verbose: write")
}
