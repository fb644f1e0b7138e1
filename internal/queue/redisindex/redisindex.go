// Package redisindex implements the optional queue-readiness Index as a
// Redis sorted set, a pure accelerator over the Postgres source of truth
// (spec §2 component B, §4.14).
package redisindex

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the sorted-set key used absent an override.
const DefaultKey = "eventflow:queue:ready"

// Index maintains a Redis ZSET keyed by process_after unix time, member
// = job id, as a hint for "is there likely work" pre-checks. Never
// consulted by leaseBatch's conditional UPDATE, which remains the
// correctness boundary (spec §4.14).
type Index struct {
	client *redis.Client
	key    string
}

// New constructs an Index against client using key (DefaultKey if empty).
func New(client *redis.Client, key string) *Index {
	if key == "" {
		key = DefaultKey
	}
	return &Index{client: client, key: key}
}

// Add records jobID as becoming ready at processAfter.
func (idx *Index) Add(ctx context.Context, jobID int64, processAfter time.Time) error {
	return idx.client.ZAdd(ctx, idx.key, redis.Z{
		Score:  float64(processAfter.Unix()),
		Member: strconv.FormatInt(jobID, 10),
	}).Err()
}

// Remove drops jobID from the set, called once a job is leased.
func (idx *Index) Remove(ctx context.Context, jobID int64) error {
	return idx.client.ZRem(ctx, idx.key, strconv.FormatInt(jobID, 10)).Err()
}

// CountReady reports how many members have a process_after at or
// before now, a cheap pre-check callers may use before issuing a real
// leaseBatch call.
func (idx *Index) CountReady(ctx context.Context, now time.Time) (int64, error) {
	return idx.client.ZCount(ctx, idx.key, "-inf", strconv.FormatInt(now.Unix(), 10)).Result()
}
