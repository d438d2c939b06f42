package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	coports "parthenon/contexts/migration-core/cutover-controller/ports"
	domainerrors "parthenon/contexts/migration-core/parity-service/domain/errors"
	"parthenon/contexts/migration-core/parity-service/ports"
)

// Service proves the legacy and partitioned layouts agree: the backfill
// engine drains pre-migration history, the verifier audits both stores, and
// repair re-copies specific keys on explicit operator request. All three
// lean on upsert idempotence instead of locks, so they are safe to run
// against arbitrarily many concurrent live writers.
type Service struct {
	Legacy      ports.LegacySource
	Partitioned ports.PartitionedSource
	Mirror      ports.Mirror
	Checkpoints ports.CheckpointStore
	Runs        ports.RunStore
	Stages      ports.StageReader
	Outbox      ports.OutboxWriter
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	// BatchSize bounds backfill batches; VerifyBatchSize bounds the verify
	// scanners and falls back to BatchSize when zero.
	BatchSize       int
	VerifyBatchSize int
	Logger          *slog.Logger
}

// Backfill copies legacy rows into the partitioned store in natural-key
// order, checkpointing after every batch. An empty cursor resumes from the
// persisted checkpoint; a stale cursor only re-overwrites rows with identical
// values. On cancellation the cursor is persisted before the error is
// returned, so a resumed run never re-scans from zero.
func (s Service) Backfill(ctx context.Context, entityType string, cursor string) (ports.BackfillResult, error) {
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		return ports.BackfillResult{}, domainerrors.ErrUnknownEntityType
	}

	if cursor == "" {
		if checkpoint, found, err := s.Checkpoints.GetCheckpoint(ctx, entityType); err != nil {
			return ports.BackfillResult{}, err
		} else if found {
			if checkpoint.Done {
				return ports.BackfillResult{NextCursor: checkpoint.Cursor, Done: true}, nil
			}
			cursor = checkpoint.Cursor
		}
	}

	result := ports.BackfillResult{NextCursor: cursor}
	for {
		if err := ctx.Err(); err != nil {
			if saveErr := s.saveCheckpoint(ctx, entityType, result.NextCursor, false); saveErr != nil {
				return result, saveErr
			}
			return result, err
		}

		rows, err := s.Legacy.ScanLegacyRows(ctx, entityType, result.NextCursor, s.batchSize())
		if err != nil {
			return result, err
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			if err := s.Mirror.Capture(ctx, entityType, nil, row); err != nil {
				return result, err
			}
			result.RowsCopied++
			result.NextCursor = row.NaturalKey
		}
		if err := s.saveCheckpoint(ctx, entityType, result.NextCursor, false); err != nil {
			return result, err
		}
	}

	result.Done = true
	if err := s.saveCheckpoint(ctx, entityType, result.NextCursor, true); err != nil {
		return result, err
	}

	resolveLogger(s.Logger).Info("backfill completed",
		"event", "parity_backfill_completed",
		"module", "migration-core/parity-service",
		"layer", "application",
		"entity_type", entityType,
		"rows_copied", result.RowsCopied,
	)
	return result, nil
}

// BackfillComplete satisfies the cutover controller's backfill gate.
func (s Service) BackfillComplete(ctx context.Context, entityType string) (bool, time.Time, error) {
	checkpoint, found, err := s.Checkpoints.GetCheckpoint(ctx, strings.TrimSpace(entityType))
	if err != nil || !found {
		return false, time.Time{}, err
	}
	return checkpoint.Done, checkpoint.UpdatedAt, nil
}

// LastVerify satisfies the cutover controller's parity gate.
func (s Service) LastVerify(ctx context.Context, entityType string) (bool, time.Time, bool, error) {
	run, found, err := s.Runs.LastRun(ctx, strings.TrimSpace(entityType))
	if err != nil || !found {
		return false, time.Time{}, false, err
	}
	return run.Clean, run.CompletedAt, true, nil
}

// Verify joins both stores by natural key and returns only the rows that
// disagree. It never repairs anything: drift surfaces as records and, past
// the dual-write stage, as a blocking alert.
func (s Service) Verify(ctx context.Context, entityType string) ([]ports.ParityRecord, error) {
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		return nil, domainerrors.ErrUnknownEntityType
	}

	startedAt := s.now()
	records := make([]ports.ParityRecord, 0)
	checked := 0

	legacy := newScanner(func(after string, limit int) ([]ports.LedgerRow, error) {
		return s.Legacy.ScanLegacyRows(ctx, entityType, after, limit)
	}, s.verifyBatchSize())
	partitioned := newScanner(func(after string, limit int) ([]ports.LedgerRow, error) {
		return s.Partitioned.ScanRows(ctx, entityType, after, limit)
	}, s.verifyBatchSize())

	left, leftOK, err := legacy.next()
	if err != nil {
		return nil, err
	}
	right, rightOK, err := partitioned.next()
	if err != nil {
		return nil, err
	}

	for leftOK || rightOK {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch {
		case leftOK && (!rightOK || left.NaturalKey < right.NaturalKey):
			records = append(records, ports.ParityRecord{
				NaturalKey: left.NaturalKey,
				Class:      ports.ParityMissingInPartitioned,
			})
			checked++
			left, leftOK, err = legacy.next()
		case rightOK && (!leftOK || right.NaturalKey < left.NaturalKey):
			records = append(records, ports.ParityRecord{
				NaturalKey: right.NaturalKey,
				Class:      ports.ParityMissingInLegacy,
			})
			checked++
			right, rightOK, err = partitioned.next()
		default:
			if fields := diffFields(left, right); len(fields) > 0 {
				records = append(records, ports.ParityRecord{
					NaturalKey: left.NaturalKey,
					Class:      ports.ParityValueMismatch,
					Fields:     fields,
				})
			}
			checked++
			left, leftOK, err = legacy.next()
			if err != nil {
				return nil, err
			}
			right, rightOK, err = partitioned.next()
		}
		if err != nil {
			return nil, err
		}
	}

	run := ports.ParityRun{
		EntityType:  entityType,
		StartedAt:   startedAt,
		CompletedAt: s.now(),
		RowsChecked: checked,
		Mismatched:  len(records),
		Clean:       len(records) == 0,
	}
	if run.RunID, err = s.IDGen.NewID(ctx); err != nil {
		return nil, err
	}
	if err := s.Runs.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	if err := s.reportDrift(ctx, entityType, run, records); err != nil {
		return nil, err
	}
	return records, nil
}

// Repair re-copies the named keys from the legacy store, keeping every
// consistency fix an explicit, auditable operator action.
func (s Service) Repair(ctx context.Context, entityType string, naturalKeys []string) (int, error) {
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		return 0, domainerrors.ErrUnknownEntityType
	}
	keys := make([]string, 0, len(naturalKeys))
	for _, key := range naturalKeys {
		if strings.TrimSpace(key) != "" {
			keys = append(keys, strings.TrimSpace(key))
		}
	}
	if len(keys) == 0 {
		return 0, domainerrors.ErrNoKeysRequested
	}

	rows, err := s.Legacy.GetLegacyRows(ctx, entityType, keys)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		if err := s.Mirror.Capture(ctx, entityType, nil, row); err != nil {
			return 0, err
		}
	}

	resolveLogger(s.Logger).Info("parity repair applied",
		"event", "parity_repair_applied",
		"module", "migration-core/parity-service",
		"layer", "application",
		"entity_type", entityType,
		"requested_keys", len(keys),
		"rows_copied", len(rows),
	)
	return len(rows), nil
}

func (s Service) reportDrift(ctx context.Context, entityType string, run ports.ParityRun, records []ports.ParityRecord) error {
	if run.Clean {
		return nil
	}

	stage, err := s.Stages.Current(ctx, entityType)
	if err != nil {
		return err
	}
	blocking := stage.Order() >= coports.StageDualWrite.Order()

	logger := resolveLogger(s.Logger)
	if blocking {
		// Capture should have made this impossible; treat as a bug.
		logger.Error("parity drift detected after dual-write began",
			"event", "parity_drift_blocking",
			"module", "migration-core/parity-service",
			"layer", "application",
			"entity_type", entityType,
			"mismatched", run.Mismatched,
		)
	} else {
		logger.Warn("parity drift detected",
			"event", "parity_drift_detected",
			"module", "migration-core/parity-service",
			"layer", "application",
			"entity_type", entityType,
			"mismatched", run.Mismatched,
		)
	}

	if s.Outbox == nil {
		return nil
	}
	classes := map[string]int{}
	for _, record := range records {
		classes[string(record.Class)]++
	}
	data, err := json.Marshal(map[string]any{
		"entity_type":  entityType,
		"run_id":       run.RunID,
		"rows_checked": run.RowsChecked,
		"mismatched":   run.Mismatched,
		"classes":      classes,
		"blocking":     blocking,
	})
	if err != nil {
		return err
	}
	return s.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:          run.RunID,
		EventType:        "migration.parity_drift_detected",
		OccurredAt:       run.CompletedAt.UTC(),
		SourceService:    "parity-service",
		TraceID:          run.RunID,
		SchemaVersion:    1,
		PartitionKeyPath: "entity_type",
		PartitionKey:     entityType,
		Data:             data,
	})
}

func (s Service) saveCheckpoint(ctx context.Context, entityType string, cursor string, done bool) error {
	// The checkpoint must land even while the run is being torn down, or a
	// resumed run would lose the progress it is supposed to pick up.
	return s.Checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), ports.Checkpoint{
		EntityType: entityType,
		Cursor:     cursor,
		Done:       done,
		UpdatedAt:  s.now(),
	})
}

func (s Service) batchSize() int {
	if s.BatchSize <= 0 {
		return 500
	}
	return s.BatchSize
}

func (s Service) verifyBatchSize() int {
	if s.VerifyBatchSize <= 0 {
		return s.batchSize()
	}
	return s.VerifyBatchSize
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func diffFields(legacy ports.LedgerRow, partitioned ports.LedgerRow) []string {
	var fields []string
	if legacy.AmountCents != partitioned.AmountCents {
		fields = append(fields, "amount_cents")
	}
	if legacy.Category != partitioned.Category {
		fields = append(fields, "category")
	}
	if legacy.Status != partitioned.Status {
		fields = append(fields, "status")
	}
	if legacy.Description != partitioned.Description {
		fields = append(fields, "description")
	}
	if legacy.ApprovedBy != partitioned.ApprovedBy {
		fields = append(fields, "approved_by")
	}
	return fields
}

// scanner pulls key-ordered rows in batches and hands them out one at a time.
type scanner struct {
	fetch   func(after string, limit int) ([]ports.LedgerRow, error)
	limit   int
	buffer  []ports.LedgerRow
	cursor  string
	drained bool
}

func newScanner(fetch func(after string, limit int) ([]ports.LedgerRow, error), limit int) *scanner {
	return &scanner{fetch: fetch, limit: limit}
}

func (s *scanner) next() (ports.LedgerRow, bool, error) {
	if len(s.buffer) == 0 && !s.drained {
		rows, err := s.fetch(s.cursor, s.limit)
		if err != nil {
			return ports.LedgerRow{}, false, err
		}
		if len(rows) < s.limit {
			s.drained = true
		}
		if len(rows) > 0 {
			s.cursor = rows[len(rows)-1].NaturalKey
		}
		s.buffer = rows
	}
	if len(s.buffer) == 0 {
		return ports.LedgerRow{}, false, nil
	}
	row := s.buffer[0]
	s.buffer = s.buffer[1:]
	return row, true, nil
}
