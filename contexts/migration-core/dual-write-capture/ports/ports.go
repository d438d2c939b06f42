package ports

import (
	"context"
	"time"

	pmports "parthenon/contexts/migration-core/partition-manager/ports"
)

// LedgerRow is the logical financial record mirrored between the legacy and
// partitioned layouts. NaturalKey is the stable identifier used to
// deduplicate the row across both representations.
type LedgerRow struct {
	NaturalKey  string
	EntityType  string
	ShardKey    string
	TemporalKey time.Time
	AmountCents int64
	Category    string
	Status      string
	Description string
	ApprovedBy  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Router interface {
	Route(entityType string, shardKey string, temporalKey time.Time) (pmports.RouteResult, error)
}

type ProvisionChecker interface {
	IsProvisioned(ctx context.Context, entityType string, partitionID string) (bool, error)
}

// Store is the partitioned store. Put has last-writer-wins full-replace
// semantics on the natural key: insert if absent, overwrite every mutable
// payload field if present. Safe to repeat.
type Store interface {
	Put(ctx context.Context, partitionID string, row LedgerRow) error
	Get(ctx context.Context, entityType string, naturalKey string) (LedgerRow, bool, error)
	ScanRows(ctx context.Context, entityType string, afterKey string, limit int) ([]LedgerRow, error)
	CountRows(ctx context.Context, entityType string) (int64, error)
}
