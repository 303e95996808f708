package metrics

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const defaultShardCount = 16

// Counter is a monotonically increasing value.
type Counter interface {
	Inc(key string)
	Add(key string, delta uint64)
	Load() uint64
}

var _ Counter = (*ShardedCounter)(nil)

// ShardedCounter spreads increments over cache line sized shards so that
// concurrent writers with different keys rarely touch the same line.
type ShardedCounter struct {
	shards []counterShard
}

type counterShard struct {
	value atomic.Uint64
	_     [56]byte
}

// NewShardedCounter creates a counter with shardCount shards, 16 if shardCount <= 0.
func NewShardedCounter(shardCount int) *ShardedCounter {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	return &ShardedCounter{shards: make([]counterShard, shardCount)}
}

func (c *ShardedCounter) shard(key string) *counterShard {
	return &c.shards[xxhash.Sum64String(key)%uint64(len(c.shards))]
}

// Inc adds one on the shard picked by key.
func (c *ShardedCounter) Inc(key string) {
	c.shard(key).value.Add(1)
}

// Add adds delta on the shard picked by key.
func (c *ShardedCounter) Add(key string, delta uint64) {
	c.shard(key).value.Add(delta)
}

// Load sums all shards. Concurrent writers may or may not be included.
func (c *ShardedCounter) Load() uint64 {
	var total uint64
	for i := range c.shards {
		total += c.shards[i].value.Load()
	}
	return total
}
