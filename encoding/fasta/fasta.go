// Package fasta reads reference sequences for index construction.
package fasta

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// A File holds the sequences of one FASTA file in input order.
type File struct {
	Names []string
	Seqs  [][]byte
}

// Read parses FASTA from r.  Sequence names are the header up to the first
// whitespace; bases are upper-cased.
func Read(r io.Reader) (*File, error) {
	f := &File{}
	var cur []byte
	sc := bufio.NewScanner(r)
	flush := func() {
		if cur != nil {
			f.Seqs = append(f.Seqs, cur)
			cur = nil
		}
	}
	for sc.Scan() {
		line := bytes.TrimRight(sc.Bytes(), "\r\n")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			flush()
			name := line[1:]
			if i := bytes.IndexAny(name, " \t"); i >= 0 {
				name = name[:i]
			}
			if len(name) == 0 {
				return nil, errors.New("fasta: empty sequence name")
			}
			f.Names = append(f.Names, string(name))
			cur = []byte{}
			continue
		}
		if cur == nil {
			return nil, errors.New("fasta: sequence data before first header")
		}
		cur = append(cur, bytes.ToUpper(line)...)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "fasta: read")
	}
	flush()
	if len(f.Names) == 0 {
		return nil, errors.New("fasta: no sequences")
	}
	return f, nil
}
