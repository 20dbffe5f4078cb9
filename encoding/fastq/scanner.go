// Package fastq reads FASTQ files for the alignment pipeline.
package fastq

import (
	"bufio"
	"errors"
	"io"

	"github.com/grailbio/multiseed/align"
)

var (
	// ErrShort is returned when a truncated FASTQ file is encountered.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid is returned when an invalid FASTQ file is encountered.
	ErrInvalid = errors.New("invalid FASTQ file")
	// ErrDiscordant is returned when two underlying FASTQ files are discordant.
	ErrDiscordant = errors.New("discordant FASTQ pairs")
)

// A Record is one FASTQ entry: ID line (with '@' stripped), bases, and the
// quality string in ASCII (Sanger) encoding.
type Record struct {
	ID, Seq, Qual string
}

// ToRead converts the record into an alignment-ready read for the given
// mate slot (0 for unpaired).
func (r *Record) ToRead(mate int) *align.Read {
	return align.NewRead(r.ID, r.Seq, r.Qual, mate)
}

var errEOF = errors.New("eof")

// Scanner reads FASTQ records.  The Scan method returns the next record,
// returning a boolean indicating whether the read succeeded.  Scanners
// validate the '@' and '+' marker lines and that sequence and quality
// lengths agree, and nothing further.  Not thread safe.
type Scanner struct {
	b   *bufio.Scanner
	err error
}

// NewScanner constructs a Scanner reading raw FASTQ data from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{b: bufio.NewScanner(r)}
}

// Scan the next record into rec.  Once Scan returns false, it never
// returns true again; check Err to distinguish EOF from corruption.
func (f *Scanner) Scan(rec *Record) bool {
	if f.err != nil {
		return false
	}
	if !f.b.Scan() {
		if f.err = f.b.Err(); f.err == nil {
			f.err = errEOF
		}
		return false
	}
	id := f.b.Text()
	if len(id) == 0 || id[0] != '@' {
		f.err = ErrInvalid
		return false
	}
	rec.ID = id[1:]
	if !f.scan() {
		return false
	}
	rec.Seq = f.b.Text()
	if !f.scan() {
		return false
	}
	if unk := f.b.Bytes(); len(unk) == 0 || unk[0] != '+' {
		f.err = ErrInvalid
		return false
	}
	if !f.scan() {
		return false
	}
	rec.Qual = f.b.Text()
	if len(rec.Qual) != len(rec.Seq) {
		f.err = ErrInvalid
		return false
	}
	return true
}

func (f *Scanner) scan() bool {
	ok := f.b.Scan()
	if !ok {
		if f.err = f.b.Err(); f.err == nil {
			f.err = ErrShort
		}
	}
	return ok
}

// Err returns the scanning error, if any.
func (f *Scanner) Err() error {
	if f.err == errEOF {
		return nil
	}
	return f.err
}

// PairScanner composes two scanners to scan a pair of FASTQ streams in
// lock step.
type PairScanner struct {
	r1, r2 *Scanner
	err    error
}

// NewPairScanner creates a PairScanner from the R1 and R2 readers.
func NewPairScanner(r1, r2 io.Reader) *PairScanner {
	return &PairScanner{r1: NewScanner(r1), r2: NewScanner(r2)}
}

// Scan scans the next pair into rec1, rec2.
func (p *PairScanner) Scan(rec1, rec2 *Record) bool {
	ok1 := p.r1.Scan(rec1)
	ok2 := p.r2.Scan(rec2)
	if ok1 != ok2 {
		p.err = ErrDiscordant
	}
	return ok1 && ok2
}

// Err returns the scanning error, if any; check it after Scan returns
// false.
func (p *PairScanner) Err() error {
	if err := p.r1.Err(); err != nil {
		return err
	}
	if err := p.r2.Err(); err != nil {
		return err
	}
	return p.err
}
