package main

// bio-multiseed aligns short reads against a FASTA reference with the
// multiseed seed-and-extend strategy and writes SAM.
//
// Example, paired-end:
//
//    bio-multiseed -reference=ref.fa -r1=r1.fastq -r2=r2.fastq -output=out.sam
//
// Example, unpaired with a custom policy:
//
//    bio-multiseed -reference=ref.fa -r1=r.fastq -policy='MMP=Q;SEED=0,18' -k 3

import (
	"context"
	"flag"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/grailbio/multiseed/align"
	"github.com/grailbio/multiseed/encoding/fasta"
	"github.com/grailbio/multiseed/encoding/fastq"
	"github.com/grailbio/multiseed/extend"
	"github.com/grailbio/multiseed/index"
	"github.com/grailbio/multiseed/pe"
	"github.com/grailbio/multiseed/sawalk"
	"github.com/grailbio/multiseed/scoring"
	"github.com/grailbio/multiseed/sink"
	"github.com/grailbio/multiseed/sw"
)

type alignFlags struct {
	referencePath string
	r1, r2        string
	outputPath    string

	policy string
	local  bool

	khits   int
	mhits   int
	msample bool
	discord bool
	mixed   bool

	overhangs bool
	maxHalf   int
	minFrag   int
	maxFrag   int
	orient    string

	seedSummary bool
	parallelism int
	randomSeed  uint64
}

type req struct {
	rdid       uint64
	rec1, rec2 fastq.Record
}

// worker owns all mutable per-read state: driver, DP fillers, sink, and
// metric accumulators.
type worker struct {
	flags alignFlags
	pol   scoring.Policy
	pepol *pe.Policy
	idx   *index.Index
	cache *sawalk.AlignmentCache
	fmtr  sink.Formatter

	drv       *extend.Driver
	snk       *sink.Sink
	swa, oswa sw.BandedAligner

	met    sink.Metrics
	extMet extend.Metrics
}

func newWorker(flags alignFlags, pol scoring.Policy, pepol *pe.Policy, idx *index.Index, cache *sawalk.AlignmentCache, fmtr sink.Formatter) *worker {
	params := sink.ReportingParams{
		KHits:   flags.khits,
		MHits:   flags.mhits,
		MSample: flags.msample,
		Discord: flags.discord,
		Mixed:   flags.mixed,
	}
	return &worker{
		flags: flags,
		pol:   pol,
		pepol: pepol,
		idx:   idx,
		cache: cache,
		fmtr:  fmtr,
		drv:   extend.NewDriver(flags.overhangs),
		snk:   sink.New(fmtr, params),
	}
}

func (w *worker) config(rdlen, ordlen int) extend.Config {
	sc := &w.pol.Scoring
	return extend.Config{
		SeedMms:           w.pol.SeedMms,
		SeedLen:           w.pol.SeedLen,
		SeedIval:          w.pol.IvalFor(rdlen),
		MinScore:          sc.MinScoreFor(rdlen),
		OMinScore:         sc.MinScoreFor(ordlen),
		Floor:             sc.FloorFor(rdlen),
		OFloor:            sc.FloorFor(ordlen),
		NCeil:             sc.NCeilFor(rdlen),
		ONCeil:            sc.NCeilFor(ordlen),
		PosMin:            w.pol.PosMin,
		PosFrac:           w.pol.PosFrac,
		RowMin:            w.pol.RowMin,
		RowMult:           w.pol.RowMult,
		MaxHalf:           w.flags.maxHalf,
		SwMateImmediately: true,
	}
}

func (w *worker) run(reqCh chan req) {
	for r := range reqCh {
		if err := w.alignOne(r); err != nil {
			// Reference or output IO failed for this read; it was
			// reported unaligned if possible.
			log.Error.Printf("read %q: %v", r.rec1.ID, err)
		}
	}
}

func (w *worker) alignOne(r req) error {
	rnd := align.NewRand(w.flags.randomSeed ^ r.rdid)
	paired := r.rec2.Seq != ""
	sc := &w.pol.Scoring
	w.drv.NextRead()

	if !paired {
		rd := r.rec1.ToRead(0)
		w.snk.NextRead(rd, nil, r.rdid)
		sh := w.idx.ExtractSeeds(rd, w.pol.SeedLen, w.pol.IvalFor(rd.Len()))
		cfg := w.config(rd.Len(), rd.Len())
		_, err := w.drv.ExtendSeeds(rd, true, sh, w.idx, w.idx, &w.swa, sc, cfg, w.cache, rnd, w.snk)
		w.extMet = w.extMet.Merge(w.drv.TakeMetrics())
		var summ *sink.SeedSummary
		if w.flags.seedSummary {
			s := sh.Summary()
			summ = &s
		}
		// The read is finished even after an IO error, so it is at least
		// reported unaligned.
		ferr := w.snk.FinishRead(summ, nil, rnd, &w.met)
		if err != nil {
			return err
		}
		return ferr
	}

	rd1 := r.rec1.ToRead(1)
	rd2 := r.rec2.ToRead(2)
	w.snk.NextRead(rd1, rd2, r.rdid)
	sh1 := w.idx.ExtractSeeds(rd1, w.pol.SeedLen, w.pol.IvalFor(rd1.Len()))
	sh2 := w.idx.ExtractSeeds(rd2, w.pol.SeedLen, w.pol.IvalFor(rd2.Len()))
	st := w.snk.State()

	short := false
	var err error
	if !st.DoneWithMate(true) {
		cfg := w.config(rd1.Len(), rd2.Len())
		short, err = w.drv.ExtendSeedsPaired(rd1, rd2, true, sh1, w.idx, w.idx, &w.swa, &w.oswa, sc, w.pepol, cfg, w.cache, rnd, w.snk)
	}
	if err == nil && !short && !st.Done() && !st.DoneWithMate(false) {
		cfg := w.config(rd2.Len(), rd1.Len())
		_, err = w.drv.ExtendSeedsPaired(rd2, rd1, false, sh2, w.idx, w.idx, &w.oswa, &w.swa, sc, w.pepol, cfg, w.cache, rnd, w.snk)
	}
	w.extMet = w.extMet.Merge(w.drv.TakeMetrics())
	var summ1, summ2 *sink.SeedSummary
	if w.flags.seedSummary {
		s1, s2 := sh1.Summary(), sh2.Summary()
		summ1, summ2 = &s1, &s2
	}
	ferr := w.snk.FinishRead(summ1, summ2, rnd, &w.met)
	if err != nil {
		return err
	}
	return ferr
}

func openInput(ctx context.Context, path string) (io.Reader, func(), error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	return r, func() {
		if err := in.Close(ctx); err != nil {
			log.Error.Printf("close %v: %v", path, err)
		}
	}, nil
}

func readReference(ctx context.Context, path string) *index.Index {
	r, closer, err := openInput(ctx, path)
	if err != nil {
		log.Panicf("open %v: %v", path, err)
	}
	defer closer()
	f, err := fasta.Read(r)
	if err != nil {
		log.Panicf("read %v: %v", path, err)
	}
	log.Printf("indexing %d sequences from %s", len(f.Names), path)
	return index.New(f.Names, f.Seqs)
}

func feedReads(ctx context.Context, flags alignFlags, reqCh chan req) {
	r1, close1, err := openInput(ctx, flags.r1)
	if err != nil {
		log.Panicf("open %v: %v", flags.r1, err)
	}
	defer close1()
	var rdid uint64
	if flags.r2 == "" {
		sc := fastq.NewScanner(r1)
		var rec fastq.Record
		for sc.Scan(&rec) {
			rdid++
			reqCh <- req{rdid: rdid, rec1: rec}
		}
		if err := sc.Err(); err != nil {
			log.Panicf("read %v: %v", flags.r1, err)
		}
	} else {
		r2, close2, err := openInput(ctx, flags.r2)
		if err != nil {
			log.Panicf("open %v: %v", flags.r2, err)
		}
		defer close2()
		sc := fastq.NewPairScanner(r1, r2)
		var rec1, rec2 fastq.Record
		for sc.Scan(&rec1, &rec2) {
			rdid++
			reqCh <- req{rdid: rdid, rec1: rec1, rec2: rec2}
		}
		if err := sc.Err(); err != nil {
			log.Panicf("read %v,%v: %v", flags.r1, flags.r2, err)
		}
	}
	log.Printf("read %d records from %s", rdid, flags.r1)
}

func orientFor(s string) pe.Orientation {
	switch s {
	case "fr":
		return pe.FR
	case "rf":
		return pe.RF
	case "ff":
		return pe.FF
	}
	log.Panicf("unknown orientation %q (want fr, rf, or ff)", s)
	return pe.FR
}

func main() {
	flags := alignFlags{}
	flag.StringVar(&flags.referencePath, "reference", "", "FASTA file with the reference sequences.")
	flag.StringVar(&flags.r1, "r1", "", "FASTQ file with R1 (or unpaired) reads.")
	flag.StringVar(&flags.r2, "r2", "", "FASTQ file with R2 reads. Empty means unpaired.")
	flag.StringVar(&flags.outputPath, "output", "", "SAM output path. (default stdout)")
	flag.StringVar(&flags.policy, "policy", "", "Seed alignment policy string, LAB=VAL;LAB=VAL;...")
	flag.BoolVar(&flags.local, "local", false, "Local alignment instead of end-to-end.")
	flag.IntVar(&flags.khits, "k", 1, "Report up to this many alignments per read.")
	flag.IntVar(&flags.mhits, "m", 0, "Suppress reads with more than this many alignments. 0 disables the ceiling.")
	flag.BoolVar(&flags.msample, "M", false, "With -m, sample one alignment instead of suppressing.")
	flag.BoolVar(&flags.discord, "discordant", true, "Look for discordant pairs when no concordant pair is found.")
	flag.BoolVar(&flags.mixed, "mixed", true, "Report unpaired alignments for mates of unaligned pairs.")
	flag.BoolVar(&flags.overhangs, "overhangs", false, "Permit alignments overhanging reference sequence ends.")
	flag.IntVar(&flags.maxHalf, "max-half", 15, "Max DP band half-width for seed extension.")
	flag.IntVar(&flags.minFrag, "minins", 0, "Minimum fragment length for concordant pairs.")
	flag.IntVar(&flags.maxFrag, "maxins", 500, "Maximum fragment length for concordant pairs.")
	flag.StringVar(&flags.orient, "orient", "fr", "Concordant pair orientation: fr, rf, or ff.")
	flag.BoolVar(&flags.seedSummary, "seed-summary", false, "Pass per-read seed summaries to the output formatter; the SAM formatter discards them.")
	flag.IntVar(&flags.parallelism, "parallelism", runtime.NumCPU(), "Worker goroutines.")
	flag.Uint64Var(&flags.randomSeed, "seed", 0, "Base seed for the per-read random sources.")
	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	if flags.referencePath == "" || flags.r1 == "" {
		log.Panicf("-reference and -r1 are required")
	}
	pol, err := scoring.ParsePolicy(flags.policy, flags.local)
	if err != nil {
		log.Panicf("parse -policy: %v", err)
	}
	pepol := &pe.Policy{
		Orient:  orientFor(flags.orient),
		MinFrag: int64(flags.minFrag),
		MaxFrag: int64(flags.maxFrag),
	}

	idx := readReference(ctx, flags.referencePath)

	var out io.Writer = os.Stdout
	var outFile file.File
	if flags.outputPath != "" {
		if outFile, err = file.Create(ctx, flags.outputPath); err != nil {
			log.Panicf("create %v: %v", flags.outputPath, err)
		}
		out = outFile.Writer(ctx)
	}
	fmtr, err := sink.NewSAMFormatter(out, idx)
	if err != nil {
		log.Panicf("sam header: %v", err)
	}

	cache := sawalk.NewAlignmentCache()
	reqCh := make(chan req, 4096)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		met     sink.Metrics
		extMet  extend.Metrics
		workers = flags.parallelism
	)
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := newWorker(flags, pol, pepol, idx, cache, fmtr)
			w.run(reqCh)
			mu.Lock()
			met = met.Merge(w.met)
			extMet = extMet.Merge(w.extMet)
			mu.Unlock()
		}()
	}
	feedReads(ctx, flags, reqCh)
	close(reqCh)
	wg.Wait()

	once := errors.Once{}
	if outFile != nil {
		once.Set(outFile.Close(ctx))
	}
	if err := once.Err(); err != nil {
		log.Panicf("close output: %v", err)
	}
	log.Printf("walker: %+v", extMet.Walk)
	log.Printf("seed DP: %+v mate DP: %+v redundant seeds: %d", extMet.SwSeed, extMet.SwMate, extMet.RedundantSeedHits)
	log.Printf("%s", met.Summary(flags.discord, flags.mixed))
}
