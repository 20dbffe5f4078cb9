package sink

import (
	"bytes"
	"strings"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/multiseed/align"
)

// capturingFormatter records every call for inspection.
type capturingFormatter struct {
	hits      []string
	maxed     []string
	unaligned []string
	summaries int
	nSelected int
}

func describeFlags(f Flags) string {
	return pairTypeTag(f.Pair)
}

func (c *capturingFormatter) ReportHits(rd1, rd2 *align.Read, rdid uint64, sel []int, rs1, rs2 []align.AlnRes, flags1, flags2 Flags) error {
	n := 0
	for _, s := range sel {
		if s > 0 {
			n++
		}
	}
	c.nSelected += n
	c.hits = append(c.hits, rd1.Name+":"+describeFlags(flags1))
	return nil
}

func (c *capturingFormatter) ReportMaxed(rd *align.Read, rdid uint64, rs []align.AlnRes, flags Flags) error {
	c.maxed = append(c.maxed, rd.Name)
	return nil
}

func (c *capturingFormatter) ReportUnaligned(rd *align.Read, rdid uint64, flags Flags) error {
	c.unaligned = append(c.unaligned, rd.Name)
	return nil
}

func (c *capturingFormatter) ReportSeedSummary(rd *align.Read, rdid uint64, summ SeedSummary) error {
	c.summaries++
	return nil
}

func testAln(off int64, fw bool, score int64) *align.AlnRes {
	return &align.AlnRes{RefID: 0, RefOff: off, Extent: 50, Fw: fw, Score: score}
}

func TestSinkUnpairedFlow(t *testing.T) {
	f := &capturingFormatter{}
	s := New(f, ReportingParams{KHits: 2})
	rd := align.NewRead("r1", "ACGTACGT", "IIIIIIII", 0)
	var met Metrics

	s.NextRead(rd, nil, 1)
	expect.True(t, s.Empty())
	done := s.Report(testAln(100, true, -10), nil)
	expect.False(t, done)
	done = s.Report(testAln(300, true, -12), nil)
	expect.True(t, done) // -k 2 reached
	require.NoError(t, s.FinishRead(nil, nil, align.NewRand(1), &met))

	expect.EQ(t, len(f.hits), 1)
	expect.EQ(t, f.nSelected, 2)
	expect.EQ(t, met.NRead, 1)
	expect.EQ(t, met.NUnpaired, 1)
	expect.EQ(t, met.NUnpUni, 1)
}

func TestSinkUnalignedFlow(t *testing.T) {
	f := &capturingFormatter{}
	s := New(f, ReportingParams{KHits: 2})
	rd := align.NewRead("r1", "ACGTACGT", "IIIIIIII", 0)
	var met Metrics

	s.NextRead(rd, nil, 1)
	require.NoError(t, s.FinishRead(nil, nil, align.NewRand(1), &met))
	expect.EQ(t, f.unaligned, []string{"r1"})
	expect.EQ(t, met.NUnpNone, 1)
}

func TestSinkDiscordantPromotion(t *testing.T) {
	f := &capturingFormatter{}
	s := New(f, ReportingParams{KHits: 2, MHits: 3, Discord: true, Mixed: true})
	rd1 := align.NewRead("p1", "ACGTACGT", "IIIIIIII", 1)
	rd2 := align.NewRead("p1", "TTGGCCAA", "IIIIIIII", 2)
	var met Metrics

	s.NextRead(rd1, rd2, 7)
	s.Report(testAln(100, true, -5), nil)
	s.Report(nil, testAln(5000, false, -8))
	require.NoError(t, s.FinishRead(nil, nil, align.NewRand(1), &met))

	require.EqualValues(t, 1, len(f.hits))
	assert.True(t, strings.HasSuffix(f.hits[0], "DP"), "got %q", f.hits[0])
	expect.EQ(t, met.NDiscord, 1)
	expect.EQ(t, met.NConcord0, 1)
	// The unpaired slates were promoted, not reported separately.
	expect.EQ(t, len(f.unaligned), 0)
	expect.EQ(t, len(f.maxed), 0)
}

func TestSinkMaxedMate(t *testing.T) {
	f := &capturingFormatter{}
	s := New(f, ReportingParams{KHits: 1, MHits: 1, Discord: true, Mixed: true})
	rd1 := align.NewRead("p1", "ACGTACGT", "IIIIIIII", 1)
	rd2 := align.NewRead("p1", "TTGGCCAA", "IIIIIIII", 2)
	var met Metrics

	s.NextRead(rd1, rd2, 7)
	s.Report(testAln(100, true, -5), nil)
	s.Report(testAln(900, true, -9), nil)
	require.NoError(t, s.FinishRead(nil, nil, align.NewRand(1), &met))

	// Mate 1 exceeded -m: maxed record; mate 2 never aligned.
	expect.EQ(t, f.maxed, []string{"p1"})
	expect.EQ(t, f.unaligned, []string{"p1"})
	expect.EQ(t, len(f.hits), 0)
	expect.EQ(t, met.NUnpPair0Rep, 1)
	expect.EQ(t, met.NUnpPair0None, 1)
}

func TestSinkSeedSummaries(t *testing.T) {
	f := &capturingFormatter{}
	s := New(f, ReportingParams{KHits: 1})
	rd := align.NewRead("r1", "ACGTACGT", "IIIIIIII", 0)
	var met Metrics
	s.NextRead(rd, nil, 1)
	summ := &SeedSummary{SeedsTried: 4, Nonzero: 2}
	require.NoError(t, s.FinishRead(summ, nil, align.NewRand(1), &met))
	expect.EQ(t, f.summaries, 1)
}

func TestSelectAlns(t *testing.T) {
	s := New(&capturingFormatter{}, ReportingParams{KHits: 2})
	rs := make([]align.AlnRes, 5)
	rnd := align.NewRand(3)
	primary := s.selectAlns(rs, 2, rnd)
	nsel := 0
	sawPrimary := false
	for i, v := range s.sel {
		if v > 0 {
			nsel++
		}
		if v == 1 {
			sawPrimary = true
			assert.Equal(t, primary, i)
		}
	}
	expect.EQ(t, nsel, 2)
	expect.True(t, sawPrimary)
	// Wrap-around: selection is contiguous mod len.
	if primary == len(rs)-1 {
		expect.EQ(t, s.sel[0], 2)
	} else {
		expect.EQ(t, s.sel[primary+1], 2)
	}

	// Single-element fast path.
	primary = s.selectAlns(rs[:1], 2, rnd)
	expect.EQ(t, primary, 0)
	expect.EQ(t, s.sel[0], 1)
}

func TestMetricsMergeAndSummary(t *testing.T) {
	a := Metrics{NRead: 1, NPaired: 1, NConcordUni: 1}
	b := Metrics{NRead: 2, NUnpaired: 2, NUnpUni: 1, NUnpNone: 1}
	m := a.Merge(b)
	expect.EQ(t, m.NRead, 3)
	expect.EQ(t, m.NPaired, 1)
	expect.EQ(t, m.NUnpaired, 2)
	s := m.Summary(false, false)
	assert.Contains(t, s, "3 reads")
	assert.Contains(t, s, "overall alignment rate")
}

// testRef is a tiny in-memory reference for the formatter tests.
type testRef struct{ seq []byte }

func (r *testRef) NumSeqs() int       { return 1 }
func (r *testRef) SeqLen(int) int64   { return int64(len(r.seq)) }
func (r *testRef) SeqName(int) string { return "chrT" }
func (r *testRef) GetStretch(dst []byte, tidx int, off int64, n int) ([]byte, error) {
	for i := 0; i < n; i++ {
		p := off + int64(i)
		if p < 0 || p >= int64(len(r.seq)) {
			dst = append(dst, 'N')
		} else {
			dst = append(dst, r.seq[p])
		}
	}
	return dst, nil
}

func TestSAMFormatter(t *testing.T) {
	ref := &testRef{seq: bytes.Repeat([]byte("ACGT"), 64)}
	var buf bytes.Buffer
	f, err := NewSAMFormatter(&buf, ref)
	require.NoError(t, err)

	rd := align.NewRead("r1", "ACGTACGT", "IIIIIIII", 0)
	rs := []align.AlnRes{{RefID: 0, RefOff: 4, Extent: 8, Fw: true, Score: -3}}
	sel := []int{1}
	require.NoError(t, f.ReportHits(rd, nil, 1, sel, rs, nil, Flags{Pair: PairUnpaired}, Flags{}))
	require.NoError(t, f.ReportUnaligned(align.NewRead("r2", "ACGT", "IIII", 0), 2, Flags{Pair: PairUnpaired}))

	out := buf.String()
	assert.Contains(t, out, "@SQ")
	assert.Contains(t, out, "chrT")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	var recs []string
	for _, l := range lines {
		if !strings.HasPrefix(l, "@") {
			recs = append(recs, l)
		}
	}
	require.EqualValues(t, 2, len(recs))
	fields := strings.Split(recs[0], "\t")
	assert.Equal(t, "r1", fields[0])
	assert.Equal(t, "chrT", fields[2])
	assert.Equal(t, "5", fields[3]) // SAM is 1-based
	assert.Equal(t, "8M", fields[5])
	assert.Contains(t, recs[0], "YT:Z:UU")
	fields = strings.Split(recs[1], "\t")
	assert.Equal(t, "r2", fields[0])
	assert.Equal(t, "4", fields[1]) // unmapped flag
}

func TestVerboseFormatter(t *testing.T) {
	ref := &testRef{seq: bytes.Repeat([]byte("ACGT"), 64)}
	var buf bytes.Buffer
	f := NewVerboseFormatter(&buf, ref)

	rd := align.NewRead("r1", "ACGTACGT", "IIIIIIII", 0)
	rs := []align.AlnRes{{
		RefID: 0, RefOff: 4, Extent: 8, Fw: true, Score: -30,
		Edits: []align.Edit{{Pos: 2, Type: align.EditMismatch, Ref: 'G', Read: 'T'}},
	}}
	require.NoError(t, f.ReportHits(rd, nil, 1, []int{1}, rs, nil, Flags{Pair: PairUnpaired}, Flags{}))
	require.NoError(t, f.ReportSeedSummary(rd, 1, SeedSummary{SeedsTried: 4}))
	require.NoError(t, f.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.EqualValues(t, 2, len(lines))
	assert.Equal(t, "r1\tUU\t+\tchrT\t4\t12\t-30\t2:G>T\tprimary", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "r1\t4\t0\t0\t0"), "got %q", lines[1])
}
