package sawalk

import (
	"encoding/binary"
	"sync"

	farm "github.com/dgryski/go-farm"
)

// Number of shards in the alignment cache.  The per-shard maps stay small
// and shard locks are held only for lookup/insert, never for resolution.
const nCacheShard = 64

type cacheKey struct {
	top, bot uint64
}

type cacheEntry struct {
	mu       sync.Mutex
	resolved bool
	offs     []uint64
}

type cacheShard struct {
	mu sync.Mutex
	m  map[cacheKey]*cacheEntry
}

// An AlignmentCache shares SA-range resolution across walkers.  It is safe
// for concurrent use: at most one resolver runs per range, and readers of a
// resolved range observe a consistent snapshot.
type AlignmentCache struct {
	shards [nCacheShard]cacheShard
}

// NewAlignmentCache returns an empty cache.
func NewAlignmentCache() *AlignmentCache {
	c := &AlignmentCache{}
	for i := range c.shards {
		c.shards[i].m = map[cacheKey]*cacheEntry{}
	}
	return c
}

func (c *AlignmentCache) shard(k cacheKey) *cacheShard {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], k.top)
	binary.LittleEndian.PutUint64(buf[8:], k.bot)
	return &c.shards[farm.Hash64(buf[:])%nCacheShard]
}

// QueryQval returns the SA tuples covering qv, resolving each element's
// joined reference offset through idx on first use.
func (c *AlignmentCache) QueryQval(idx Index, qv QVal, m *Metrics) []SATuple {
	k := cacheKey{qv.Top, qv.Bot}
	sh := c.shard(k)
	sh.mu.Lock()
	ent, ok := sh.m[k]
	if !ok {
		ent = &cacheEntry{}
		sh.m[k] = ent
	}
	sh.mu.Unlock()

	ent.mu.Lock()
	if !ent.resolved {
		offs := make([]uint64, 0, qv.Size())
		for i := qv.Top; i < qv.Bot; i++ {
			offs = append(offs, idx.ResolveSA(i))
		}
		ent.offs = offs
		ent.resolved = true
		m.Ranges++
		m.Elts += len(offs)
	} else {
		m.CacheHits++
	}
	offs := ent.offs
	ent.mu.Unlock()
	return []SATuple{{Top: qv.Top, Offs: offs}}
}
