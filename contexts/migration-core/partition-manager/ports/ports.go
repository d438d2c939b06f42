package ports

import (
	"context"
	"time"
)

type SchemeType string

const (
	SchemeHashModulo    SchemeType = "hash_modulo"
	SchemeCalendarRange SchemeType = "calendar_range"
)

// SchemeConfig is fixed at entity-type onboarding. HashBuckets is immutable
// for the lifetime of the entity type; changing it is a re-partition, not a
// configuration change.
type SchemeConfig struct {
	EntityType  string
	Scheme      SchemeType
	HashBuckets int
}

// BucketSpec identifies one bucket of a scheme. Hash buckets carry
// Modulus/Remainder; range buckets carry the half-open [Start, Next) month
// interval. Unused fields stay zero.
type BucketSpec struct {
	Modulus   int
	Remainder int
	Start     time.Time
	Next      time.Time
}

const (
	PartitionStatusProvisioned = "provisioned"
	PartitionStatusActive      = "active"
	PartitionStatusRetiring    = "retiring"
)

type Partition struct {
	PartitionID string
	EntityType  string
	Scheme      SchemeType
	Bucket      BucketSpec
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type RouteResult struct {
	PartitionID string
	Scheme      SchemeType
	Bucket      BucketSpec
}

type Repository interface {
	SavePartition(ctx context.Context, partition Partition) error
	ListPartitions(ctx context.Context, entityType string) ([]Partition, error)
	ListAllPartitions(ctx context.Context) ([]Partition, error)
	MarkRetiring(ctx context.Context, partitionID string, at time.Time) error
}

// StageLegacyRetired mirrors the cutover stage value that unlocks retirement.
const StageLegacyRetired = "legacy_retired"

type StageReader interface {
	CurrentStage(ctx context.Context, entityType string) (string, error)
}

// LegacyAgeSource reports the newest legacy-side row still covered by a
// bucket, used to enforce the retention floor before retirement.
type LegacyAgeSource interface {
	NewestLegacyInBucket(ctx context.Context, entityType string, bucket BucketSpec) (time.Time, bool, error)
}

type Clock interface {
	Now() time.Time
}
