package extend_test

import (
	"strings"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/multiseed/align"
	"github.com/grailbio/multiseed/extend"
	"github.com/grailbio/multiseed/index"
	"github.com/grailbio/multiseed/pe"
	"github.com/grailbio/multiseed/sawalk"
	"github.com/grailbio/multiseed/scoring"
	"github.com/grailbio/multiseed/sink"
	"github.com/grailbio/multiseed/sw"
)

// capture records everything the sink hands to the formatter.
type capture struct {
	recs      []align.AlnRes
	pairTypes []sink.PairType
	maxed     int
	unaligned int
}

func (c *capture) ReportHits(rd1, rd2 *align.Read, rdid uint64, sel []int, rs1, rs2 []align.AlnRes, flags1, flags2 sink.Flags) error {
	for i := range rs1 {
		if sel[i] == 0 {
			continue
		}
		c.recs = append(c.recs, rs1[i])
		c.pairTypes = append(c.pairTypes, flags1.Pair)
		if rs2 != nil {
			c.recs = append(c.recs, rs2[i])
			c.pairTypes = append(c.pairTypes, flags2.Pair)
		}
	}
	return nil
}

func (c *capture) ReportMaxed(rd *align.Read, rdid uint64, rs []align.AlnRes, flags sink.Flags) error {
	c.maxed++
	return nil
}

func (c *capture) ReportUnaligned(rd *align.Read, rdid uint64, flags sink.Flags) error {
	c.unaligned++
	return nil
}

func (c *capture) ReportSeedSummary(rd *align.Read, rdid uint64, summ sink.SeedSummary) error {
	return nil
}

const (
	r1Seg = "AGCTTAGGCTAACGTCATGC"
	r2Seg = "TTGACCAGTTCGAAGCTTAC"
)

func revComp(s string) string {
	comp := map[byte]byte{'A': 'T', 'C': 'G', 'G': 'C', 'T': 'A'}
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = comp[s[len(s)-1-i]]
	}
	return string(out)
}

func quals(n int) string { return strings.Repeat("I", n) }

func testConfig(sc *scoring.Scoring, rdlen, ordlen int) extend.Config {
	return extend.Config{
		SeedMms:           0,
		SeedLen:           10,
		SeedIval:          5,
		MinScore:          sc.MinScoreFor(rdlen),
		OMinScore:         sc.MinScoreFor(ordlen),
		Floor:             sc.FloorFor(rdlen),
		OFloor:            sc.FloorFor(ordlen),
		NCeil:             sc.NCeilFor(rdlen),
		ONCeil:            sc.NCeilFor(ordlen),
		PosMin:            3,
		PosFrac:           0.3,
		RowMin:            3,
		RowMult:           10,
		MaxHalf:           15,
		SwMateImmediately: true,
	}
}

func extendUnpaired(t *testing.T, x *index.Index, rd *align.Read, params sink.ReportingParams, seed uint64) (*capture, sink.Metrics, bool) {
	t.Helper()
	sc := scoring.Global()
	cap := &capture{}
	snk := sink.New(cap, params)
	d := extend.NewDriver(false)
	var swa sw.BandedAligner
	cache := sawalk.NewAlignmentCache()
	rnd := align.NewRand(seed)
	cfg := testConfig(&sc, rd.Len(), rd.Len())

	snk.NextRead(rd, nil, 1)
	d.NextRead()
	sh := x.ExtractSeeds(rd, cfg.SeedLen, cfg.SeedIval)
	short, err := d.ExtendSeeds(rd, true, sh, x, x, &swa, &sc, cfg, cache, rnd, snk)
	require.NoError(t, err)
	var met sink.Metrics
	summ := sh.Summary()
	require.NoError(t, snk.FinishRead(&summ, nil, rnd, &met))
	return cap, met, short
}

func TestExtendSeedsForward(t *testing.T) {
	ref := []byte("CCCCCCCCCC" + r1Seg + "CCCCCCCCCCGGGGGGGGGG")
	x := index.New([]string{"chr1"}, [][]byte{ref})
	rd := align.NewRead("r1", r1Seg, quals(len(r1Seg)), 0)

	cap, met, short := extendUnpaired(t, x, rd, sink.ReportingParams{KHits: 2}, 1)
	expect.False(t, short)
	require.EqualValues(t, 1, len(cap.recs))
	res := cap.recs[0]
	expect.EQ(t, res.RefOff, int64(10))
	expect.EQ(t, res.Extent, int64(20))
	expect.True(t, res.Fw)
	expect.EQ(t, res.Score, int64(0))
	expect.EQ(t, met.NUnpUni, 1)
}

func TestExtendSeedsReverse(t *testing.T) {
	ref := []byte("CCCCCCCCCC" + revComp(r1Seg) + "CCCCCCCCCCGGGGGGGGGG")
	x := index.New([]string{"chr1"}, [][]byte{ref})
	rd := align.NewRead("r1", r1Seg, quals(len(r1Seg)), 0)

	cap, _, _ := extendUnpaired(t, x, rd, sink.ReportingParams{KHits: 2}, 1)
	require.EqualValues(t, 1, len(cap.recs))
	res := cap.recs[0]
	expect.EQ(t, res.RefOff, int64(10))
	expect.EQ(t, res.Extent, int64(20))
	expect.False(t, res.Fw)
}

func TestExtendSeedsNoSeeds(t *testing.T) {
	ref := []byte(strings.Repeat("C", 60))
	x := index.New([]string{"chr1"}, [][]byte{ref})
	rd := align.NewRead("r1", r1Seg, quals(len(r1Seg)), 0)

	cap, met, short := extendUnpaired(t, x, rd, sink.ReportingParams{KHits: 2}, 1)
	expect.False(t, short)
	expect.EQ(t, len(cap.recs), 0)
	expect.EQ(t, cap.unaligned, 1)
	expect.EQ(t, met.NUnpNone, 1)
}

func TestExtendSeedsMultiHitAndShortCircuit(t *testing.T) {
	// Three copies of the read segment, well separated.
	ref := []byte("CCCCCCCCCC" + r1Seg + "CCCCCCCCCC" + r1Seg + "CCCCCCCCCC" + r1Seg + "CCCCCCCCCC")
	x := index.New([]string{"chr1"}, [][]byte{ref})
	rd := align.NewRead("r1", r1Seg, quals(len(r1Seg)), 0)

	// -k 3: all three distinct placements reported.
	cap, _, _ := extendUnpaired(t, x, rd, sink.ReportingParams{KHits: 3}, 1)
	offs := map[int64]bool{}
	for _, r := range cap.recs {
		offs[r.RefOff] = true
	}
	expect.EQ(t, offs, map[int64]bool{10: true, 40: true, 70: true})

	// -k 1 short-circuits.
	cap, _, short := extendUnpaired(t, x, rd, sink.ReportingParams{KHits: 1}, 1)
	expect.True(t, short)
	require.EqualValues(t, 1, len(cap.recs))

	// -m 2 without sampling: suppressed, maxed record.
	cap, met, _ := extendUnpaired(t, x, rd, sink.ReportingParams{KHits: 1, MHits: 2}, 1)
	expect.EQ(t, len(cap.recs), 0)
	expect.EQ(t, cap.maxed, 1)
	expect.EQ(t, met.NUnpRep, 1)
}

func TestExtendSeedsNoOverlappingDuplicates(t *testing.T) {
	ref := []byte("CCCCCCCCCC" + r1Seg + "CCCCCCCCCC" + r1Seg + "CCCCCCCCCC")
	x := index.New([]string{"chr1"}, [][]byte{ref})
	rd := align.NewRead("r1", r1Seg, quals(len(r1Seg)), 0)

	cap, _, _ := extendUnpaired(t, x, rd, sink.ReportingParams{KHits: 10}, 1)
	type span struct {
		lo, hi int64
		fw     bool
	}
	var spans []span
	for _, r := range cap.recs {
		s := span{r.RefOff, r.RefOff + r.Extent, r.Fw}
		for _, o := range spans {
			if s.fw == o.fw && s.lo < o.hi && o.lo < s.hi {
				t.Fatalf("overlapping same-strand alignments: %+v vs %+v", s, o)
			}
		}
		spans = append(spans, s)
	}
}

func TestExtendSeedsDeterminism(t *testing.T) {
	ref := []byte("CCCCCCCCCC" + r1Seg + "CCCCCCCCCC" + r1Seg + "CCCCCCCCCC" + r1Seg + "CCCCCCCCCC")
	x := index.New([]string{"chr1"}, [][]byte{ref})
	rd := align.NewRead("r1", r1Seg, quals(len(r1Seg)), 0)

	cap1, _, _ := extendUnpaired(t, x, rd, sink.ReportingParams{KHits: 3}, 99)
	cap2, _, _ := extendUnpaired(t, x, rd, sink.ReportingParams{KHits: 3}, 99)
	assert.Equal(t, cap1.recs, cap2.recs)
}

// runPaired runs both anchor passes the way a worker would.
func runPaired(t *testing.T, x *index.Index, rd1, rd2 *align.Read, params sink.ReportingParams, pol *pe.Policy, seed uint64) (*capture, sink.Metrics) {
	t.Helper()
	sc := scoring.Global()
	cap := &capture{}
	snk := sink.New(cap, params)
	d := extend.NewDriver(false)
	var swa, oswa sw.BandedAligner
	cache := sawalk.NewAlignmentCache()
	rnd := align.NewRand(seed)
	cfg := testConfig(&sc, rd1.Len(), rd2.Len())

	snk.NextRead(rd1, rd2, 1)
	d.NextRead()
	sh1 := x.ExtractSeeds(rd1, cfg.SeedLen, cfg.SeedIval)
	sh2 := x.ExtractSeeds(rd2, cfg.SeedLen, cfg.SeedIval)
	st := snk.State()

	short := false
	if !st.DoneWithMate(true) {
		var err error
		short, err = d.ExtendSeedsPaired(rd1, rd2, true, sh1, x, x, &swa, &oswa, &sc, pol, cfg, cache, rnd, snk)
		require.NoError(t, err)
	}
	if !short && !st.Done() && !st.DoneWithMate(false) {
		ocfg := cfg
		ocfg.MinScore, ocfg.OMinScore = cfg.OMinScore, cfg.MinScore
		_, err := d.ExtendSeedsPaired(rd2, rd1, false, sh2, x, x, &swa, &oswa, &sc, pol, ocfg, cache, rnd, snk)
		require.NoError(t, err)
	}
	var met sink.Metrics
	summ1, summ2 := sh1.Summary(), sh2.Summary()
	require.NoError(t, snk.FinishRead(&summ1, &summ2, rnd, &met))
	return cap, met
}

func pairedRef() *index.Index {
	// Fragment: R1 forward at 10, revcomp(R2) at 90; fragment length 100.
	ref := "CCCCCCCCCC" + r1Seg + strings.Repeat("G", 60) + revComp(r2Seg) + "CCCCCCCCCC"
	return index.New([]string{"chr1"}, [][]byte{[]byte(ref)})
}

func TestExtendSeedsPairedConcordant(t *testing.T) {
	x := pairedRef()
	rd1 := align.NewRead("p1", r1Seg, quals(len(r1Seg)), 1)
	rd2 := align.NewRead("p1", r2Seg, quals(len(r2Seg)), 2)
	pol := &pe.Policy{Orient: pe.FR, MinFrag: 50, MaxFrag: 200}

	cap, met := runPaired(t, x, rd1, rd2, sink.ReportingParams{KHits: 1}, pol, 1)
	require.EqualValues(t, 2, len(cap.recs))
	expect.EQ(t, cap.pairTypes[0], sink.PairConcordMate1)
	expect.EQ(t, cap.pairTypes[1], sink.PairConcordMate2)
	m1, m2 := cap.recs[0], cap.recs[1]
	expect.EQ(t, m1.RefOff, int64(10))
	expect.True(t, m1.Fw)
	expect.EQ(t, m2.RefOff, int64(90))
	expect.False(t, m2.Fw)
	expect.EQ(t, m1.FragmentLength(&m2), int64(100))
	expect.EQ(t, met.NConcordUni, 1)
}

func TestExtendSeedsPairedDiscordant(t *testing.T) {
	x := pairedRef()
	rd1 := align.NewRead("p1", r1Seg, quals(len(r1Seg)), 1)
	rd2 := align.NewRead("p1", r2Seg, quals(len(r2Seg)), 2)
	// Fragment of 100 exceeds the ceiling: no concordant pair possible.
	pol := &pe.Policy{Orient: pe.FR, MinFrag: 0, MaxFrag: 60}

	cap, met := runPaired(t, x, rd1, rd2, sink.ReportingParams{KHits: 1, MHits: 5, Discord: true, Mixed: true}, pol, 1)
	require.EqualValues(t, 2, len(cap.recs))
	expect.EQ(t, cap.pairTypes[0], sink.PairDiscordMate1)
	expect.EQ(t, cap.pairTypes[1], sink.PairDiscordMate2)
	expect.EQ(t, met.NDiscord, 1)
}

func TestExtendSeedsPairedMixedUnpaired(t *testing.T) {
	// Only mate 1 is present in the reference.
	ref := "CCCCCCCCCC" + r1Seg + strings.Repeat("G", 60)
	x := index.New([]string{"chr1"}, [][]byte{[]byte(ref)})
	rd1 := align.NewRead("p1", r1Seg, quals(len(r1Seg)), 1)
	rd2 := align.NewRead("p1", r2Seg, quals(len(r2Seg)), 2)
	pol := &pe.Policy{Orient: pe.FR, MinFrag: 0, MaxFrag: 200}

	cap, met := runPaired(t, x, rd1, rd2, sink.ReportingParams{KHits: 2, MHits: 5, Discord: true, Mixed: true}, pol, 1)
	require.EqualValues(t, 1, len(cap.recs))
	expect.EQ(t, cap.pairTypes[0], sink.PairUnpairedMate1)
	expect.EQ(t, cap.recs[0].RefOff, int64(10))
	expect.EQ(t, cap.unaligned, 1) // mate 2
	expect.EQ(t, met.NUnpPair0Uni, 1)
	expect.EQ(t, met.NUnpPair0None, 1)
}
