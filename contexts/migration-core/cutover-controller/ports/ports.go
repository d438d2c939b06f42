package ports

import (
	"context"
	"time"

	contractsv1 "parthenon/contracts/gen/events/v1"
	pmports "parthenon/contexts/migration-core/partition-manager/ports"
)

// Stage is the per-entity-type migration state. Transitions are strictly
// forward; skipping a stage is disallowed.
type Stage string

const (
	StageOff                Stage = "off"
	StageDualWrite          Stage = "dual_write"
	StageShadowVerify       Stage = "shadow_verify"
	StagePartitionedPrimary Stage = "partitioned_primary"
	StageLegacyRetired      Stage = "legacy_retired"
)

// Order returns the position of the stage in the forward progression, or -1
// for an unknown value.
func (s Stage) Order() int {
	switch s {
	case StageOff:
		return 0
	case StageDualWrite:
		return 1
	case StageShadowVerify:
		return 2
	case StagePartitionedPrimary:
		return 3
	case StageLegacyRetired:
		return 4
	default:
		return -1
	}
}

type StageRecord struct {
	EntityType string
	Stage      Stage
	UpdatedAt  time.Time
}

type StageRepository interface {
	GetStage(ctx context.Context, entityType string) (StageRecord, bool, error)
	SaveStage(ctx context.Context, record StageRecord) error
}

type SchemeRegistry interface {
	SchemeFor(entityType string) (pmports.SchemeConfig, bool)
}

type PartitionGate interface {
	RequiredProvisioned(ctx context.Context, entityType string) (bool, error)
}

type BackfillGate interface {
	BackfillComplete(ctx context.Context, entityType string) (bool, time.Time, error)
}

// ParityGate reports the most recent completed verification pass.
type ParityGate interface {
	LastVerify(ctx context.Context, entityType string) (clean bool, completedAt time.Time, found bool, err error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}
