package workers

import (
	"context"
	"log/slog"

	coports "parthenon/contexts/migration-core/cutover-controller/ports"
	"parthenon/contexts/migration-core/parity-service/ports"
)

// Backfiller is the slice of the parity service the runner drives.
type Backfiller interface {
	Backfill(ctx context.Context, entityType string, cursor string) (ports.BackfillResult, error)
}

// BackfillRunner drives historical backfill for every onboarded entity type
// whose migration has reached dual-write. Cancellation mid-run is fine; the
// next cycle resumes from the persisted checkpoint.
type BackfillRunner struct {
	Service     Backfiller
	Stages      ports.StageReader
	EntityTypes []string
	Logger      *slog.Logger
}

func (r BackfillRunner) RunOnce(ctx context.Context) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for _, entityType := range r.EntityTypes {
		stage, err := r.Stages.Current(ctx, entityType)
		if err != nil {
			return err
		}
		if stage.Order() < coports.StageDualWrite.Order() {
			continue
		}

		result, err := r.Service.Backfill(ctx, entityType, "")
		if err != nil {
			logger.Error("backfill cycle failed",
				"event", "backfill_runner_failed",
				"module", "migration-core/parity-service",
				"layer", "worker",
				"entity_type", entityType,
				"error", err.Error(),
			)
			return err
		}
		if result.RowsCopied > 0 {
			logger.Info("backfill cycle progressed",
				"event", "backfill_runner_progressed",
				"module", "migration-core/parity-service",
				"layer", "worker",
				"entity_type", entityType,
				"rows_copied", result.RowsCopied,
				"done", result.Done,
			)
		}
	}
	return nil
}
