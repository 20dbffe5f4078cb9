package align

import "golang.org/x/exp/rand"

// RandomSource supplies the pseudo-random values used for range narrowing
// and report subset selection.  Implementations need not be thread safe;
// each worker owns its own source.
type RandomSource interface {
	NextU32() uint32
}

type pcgSource struct {
	r *rand.Rand
}

// NewRand returns a deterministic RandomSource seeded with seed.
func NewRand(seed uint64) RandomSource {
	return &pcgSource{r: rand.New(rand.NewSource(seed))}
}

func (s *pcgSource) NextU32() uint32 { return s.r.Uint32() }
