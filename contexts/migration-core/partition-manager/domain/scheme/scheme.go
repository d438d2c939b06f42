package scheme

import (
	"fmt"
	"hash/fnv"
	"time"
)

// Pure routing math. No state, no I/O: re-computing a bucket with the same
// inputs always yields the same result.

// HashBucket maps a shard key onto one of modulus buckets via FNV-1a.
func HashBucket(shardKey string, modulus int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(shardKey))
	return int(h.Sum64() % uint64(modulus))
}

// MonthBucket floors t to its UTC calendar month and returns the half-open
// [start, next) interval covering it.
func MonthBucket(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// HashPartitionID names a hash bucket, e.g. "balance_p07".
func HashPartitionID(entityType string, remainder int) string {
	return fmt.Sprintf("%s_p%02d", entityType, remainder)
}

// RangePartitionID names a month bucket, e.g. "revenue_2025_03".
func RangePartitionID(entityType string, start time.Time) string {
	u := start.UTC()
	return fmt.Sprintf("%s_%04d_%02d", entityType, u.Year(), int(u.Month()))
}
