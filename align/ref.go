package align

// Reference provides random access to the reference sequences.  Shared,
// read-only across workers.
type Reference interface {
	// NumSeqs returns the number of reference sequences.
	NumSeqs() int
	// SeqLen returns the length of sequence tidx.
	SeqLen(tidx int) int64
	// SeqName returns the name of sequence tidx.
	SeqName(tidx int) string
	// GetStretch appends n bases of sequence tidx starting at off to dst
	// and returns the extended slice.  Positions outside [0, SeqLen) are
	// filled with 'N' so callers can frame bands that overhang sequence
	// ends.  A non-nil error means the underlying store failed; the read
	// being processed is then abandoned.
	GetStretch(dst []byte, tidx int, off int64, n int) ([]byte, error)
}
