package ports

import (
	"context"
	"time"

	contractsv1 "parthenon/contracts/gen/events/v1"
	coports "parthenon/contexts/migration-core/cutover-controller/ports"
	dwports "parthenon/contexts/migration-core/dual-write-capture/ports"
)

// LedgerRow is the shared row shape compared across both layouts.
type LedgerRow = dwports.LedgerRow

// LegacySource streams the monolithic-table side of the comparison in
// natural-key order.
type LegacySource interface {
	ScanLegacyRows(ctx context.Context, entityType string, afterKey string, limit int) ([]LedgerRow, error)
	GetLegacyRows(ctx context.Context, entityType string, naturalKeys []string) ([]LedgerRow, error)
}

// PartitionedSource streams the partitioned side in natural-key order.
type PartitionedSource interface {
	ScanRows(ctx context.Context, entityType string, afterKey string, limit int) ([]LedgerRow, error)
}

// Mirror applies the same idempotent full-replace upsert live capture uses,
// which is what makes backfill safe to re-run from a stale cursor.
type Mirror interface {
	Capture(ctx context.Context, entityType string, before *LedgerRow, after LedgerRow) error
}

type Checkpoint struct {
	EntityType string
	Cursor     string
	Done       bool
	UpdatedAt  time.Time
}

type CheckpointStore interface {
	GetCheckpoint(ctx context.Context, entityType string) (Checkpoint, bool, error)
	SaveCheckpoint(ctx context.Context, checkpoint Checkpoint) error
}

type BackfillResult struct {
	RowsCopied int
	NextCursor string
	Done       bool
}

type ParityClass string

const (
	ParityMissingInPartitioned ParityClass = "missing_in_partitioned"
	ParityMissingInLegacy      ParityClass = "missing_in_legacy"
	ParityValueMismatch        ParityClass = "value_mismatch"
)

// ParityRecord is an ephemeral comparison result; matched rows are never
// materialized.
type ParityRecord struct {
	NaturalKey string
	Class      ParityClass
	Fields     []string
}

type ParityRun struct {
	RunID       string
	EntityType  string
	StartedAt   time.Time
	CompletedAt time.Time
	RowsChecked int
	Mismatched  int
	Clean       bool
}

type RunStore interface {
	SaveRun(ctx context.Context, run ParityRun) error
	LastRun(ctx context.Context, entityType string) (ParityRun, bool, error)
}

type StageReader interface {
	Current(ctx context.Context, entityType string) (coports.Stage, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = contractsv1.Envelope

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}
