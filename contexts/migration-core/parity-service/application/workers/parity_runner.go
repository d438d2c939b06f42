package workers

import (
	"context"
	"log/slog"

	coports "parthenon/contexts/migration-core/cutover-controller/ports"
	"parthenon/contexts/migration-core/parity-service/ports"
)

// Verifier is the slice of the parity service the runner drives.
type Verifier interface {
	Verify(ctx context.Context, entityType string) ([]ports.ParityRecord, error)
}

// ParityRunner audits entity types that have reached shadow-verify. Results
// are persisted as run summaries; the cutover controller reads the latest
// one as its advance gate.
type ParityRunner struct {
	Service     Verifier
	Stages      ports.StageReader
	EntityTypes []string
	Logger      *slog.Logger
}

func (r ParityRunner) RunOnce(ctx context.Context) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for _, entityType := range r.EntityTypes {
		stage, err := r.Stages.Current(ctx, entityType)
		if err != nil {
			return err
		}
		if stage.Order() < coports.StageShadowVerify.Order() {
			continue
		}

		records, err := r.Service.Verify(ctx, entityType)
		if err != nil {
			logger.Error("parity cycle failed",
				"event", "parity_runner_failed",
				"module", "migration-core/parity-service",
				"layer", "worker",
				"entity_type", entityType,
				"error", err.Error(),
			)
			return err
		}
		if len(records) > 0 {
			logger.Warn("parity cycle found drift",
				"event", "parity_runner_drift",
				"module", "migration-core/parity-service",
				"layer", "worker",
				"entity_type", entityType,
				"mismatched", len(records),
			)
		}
	}
	return nil
}
