package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domainerrors "parthenon/contexts/migration-core/cutover-controller/domain/errors"
	"parthenon/contexts/migration-core/cutover-controller/ports"
)

// Service owns the staged cutover state machine:
// off -> dual_write -> shadow_verify -> partitioned_primary -> legacy_retired.
// Advance validates the transition's precondition and never skips or moves
// backward.
type Service struct {
	Stages     ports.StageRepository
	Schemes    ports.SchemeRegistry
	Partitions ports.PartitionGate
	Backfill   ports.BackfillGate
	Parity     ports.ParityGate
	Outbox     ports.OutboxWriter
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Logger     *slog.Logger
}

func (s Service) Current(ctx context.Context, entityType string) (ports.Stage, error) {
	entityType = strings.TrimSpace(entityType)
	if _, ok := s.Schemes.SchemeFor(entityType); !ok {
		return "", domainerrors.ErrUnknownEntityType
	}
	record, found, err := s.Stages.GetStage(ctx, entityType)
	if err != nil {
		return "", err
	}
	if !found {
		return ports.StageOff, nil
	}
	return record.Stage, nil
}

func (s Service) Advance(ctx context.Context, entityType string, confirm bool) (ports.Stage, error) {
	entityType = strings.TrimSpace(entityType)
	current, err := s.Current(ctx, entityType)
	if err != nil {
		return "", err
	}

	next, err := nextStage(current)
	if err != nil {
		return "", err
	}
	if err := s.checkPrecondition(ctx, entityType, next, confirm); err != nil {
		return "", err
	}

	now := s.now()
	if err := s.Stages.SaveStage(ctx, ports.StageRecord{
		EntityType: entityType,
		Stage:      next,
		UpdatedAt:  now,
	}); err != nil {
		return "", err
	}
	if err := s.appendStageAdvancedOutbox(ctx, entityType, current, next, now); err != nil {
		return "", err
	}

	resolveLogger(s.Logger).Info("migration stage advanced",
		"event", "cutover_stage_advanced",
		"module", "migration-core/cutover-controller",
		"layer", "application",
		"entity_type", entityType,
		"from_stage", string(current),
		"to_stage", string(next),
	)
	return next, nil
}

func nextStage(current ports.Stage) (ports.Stage, error) {
	switch current {
	case ports.StageOff:
		return ports.StageDualWrite, nil
	case ports.StageDualWrite:
		return ports.StageShadowVerify, nil
	case ports.StageShadowVerify:
		return ports.StagePartitionedPrimary, nil
	case ports.StagePartitionedPrimary:
		return ports.StageLegacyRetired, nil
	case ports.StageLegacyRetired:
		return "", fmt.Errorf("already at final stage: %w", domainerrors.ErrIllegalTransition)
	default:
		return "", domainerrors.ErrIllegalTransition
	}
}

func (s Service) checkPrecondition(
	ctx context.Context,
	entityType string,
	next ports.Stage,
	confirm bool,
) error {
	switch next {
	case ports.StageDualWrite:
		provisioned, err := s.Partitions.RequiredProvisioned(ctx, entityType)
		if err != nil {
			return err
		}
		if !provisioned {
			return fmt.Errorf("required partitions not provisioned: %w", domainerrors.ErrIllegalTransition)
		}
	case ports.StageShadowVerify:
		complete, _, err := s.Backfill.BackfillComplete(ctx, entityType)
		if err != nil {
			return err
		}
		if !complete {
			return fmt.Errorf("backfill incomplete: %w", domainerrors.ErrIllegalTransition)
		}
	case ports.StagePartitionedPrimary:
		clean, verifiedAt, found, err := s.Parity.LastVerify(ctx, entityType)
		if err != nil {
			return err
		}
		if !found || !clean {
			return fmt.Errorf("last parity pass not clean: %w", domainerrors.ErrIllegalTransition)
		}
		// A clean pass that predates backfill completion proves nothing.
		complete, backfilledAt, err := s.Backfill.BackfillComplete(ctx, entityType)
		if err != nil {
			return err
		}
		if !complete || verifiedAt.Before(backfilledAt) {
			return fmt.Errorf("parity pass is stale: %w", domainerrors.ErrIllegalTransition)
		}
	case ports.StageLegacyRetired:
		if !confirm {
			return fmt.Errorf("operator confirmation required: %w", domainerrors.ErrIllegalTransition)
		}
	}
	return nil
}

func (s Service) appendStageAdvancedOutbox(
	ctx context.Context,
	entityType string,
	from ports.Stage,
	to ports.Stage,
	at time.Time,
) error {
	if s.Outbox == nil {
		return nil
	}
	eventID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(map[string]any{
		"entity_type": entityType,
		"from_stage":  string(from),
		"to_stage":    string(to),
		"advanced_at": at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:          strings.TrimSpace(eventID),
		EventType:        "migration.stage_advanced",
		OccurredAt:       at.UTC(),
		SourceService:    "cutover-controller",
		TraceID:          strings.TrimSpace(eventID),
		SchemaVersion:    1,
		PartitionKeyPath: "entity_type",
		PartitionKey:     entityType,
		Data:             data,
	})
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}
