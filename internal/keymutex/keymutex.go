// Package keymutex provides sharded per-key mutual exclusion. Operations on
// the same key serialize; operations on different keys proceed in parallel
// (modulo shard collisions).
package keymutex

import (
	"hash/fnv"
	"sync"
)

const defaultShards = 64

type Sharded struct {
	shards []sync.Mutex
}

func New() *Sharded {
	return NewWithShards(defaultShards)
}

func NewWithShards(n int) *Sharded {
	if n <= 0 {
		n = defaultShards
	}
	return &Sharded{shards: make([]sync.Mutex, n)}
}

// Lock acquires the shard guarding key and returns its unlock func.
//
//	unlock := locks.Lock("review:" + reviewID)
//	defer unlock()
func (s *Sharded) Lock(key string) func() {
	shard := &s.shards[s.index(key)]
	shard.Lock()
	return shard.Unlock
}

func (s *Sharded) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.shards)))
}
