package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	domainerrors "parthenon/contexts/migration-core/parity-service/domain/errors"
	"parthenon/contexts/migration-core/parity-service/ports"
	platformdb "parthenon/internal/platform/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists backfill checkpoints and parity run summaries. Row
// scans stay in the legacy and partitioned stores; this adapter only tracks
// the bookkeeping both engines resume from.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

type checkpointModel struct {
	EntityType string    `gorm:"column:entity_type;primaryKey"`
	Cursor     string    `gorm:"column:cursor"`
	Done       bool      `gorm:"column:done"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (checkpointModel) TableName() string {
	return "backfill_checkpoints"
}

type parityRunModel struct {
	RunID       string    `gorm:"column:run_id;primaryKey"`
	EntityType  string    `gorm:"column:entity_type"`
	StartedAt   time.Time `gorm:"column:started_at"`
	CompletedAt time.Time `gorm:"column:completed_at"`
	RowsChecked int       `gorm:"column:rows_checked"`
	Mismatched  int       `gorm:"column:mismatched"`
	Clean       bool      `gorm:"column:clean"`
}

func (parityRunModel) TableName() string {
	return "parity_runs"
}

func (r *Repository) GetCheckpoint(ctx context.Context, entityType string) (ports.Checkpoint, bool, error) {
	var row checkpointModel
	err := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Where("entity_type = ?", strings.TrimSpace(entityType)).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Checkpoint{}, false, nil
		}
		return ports.Checkpoint{}, false, r.logError("parity_repo_get_checkpoint_failed", err,
			"entity_type", entityType,
		)
	}
	return ports.Checkpoint{
		EntityType: row.EntityType,
		Cursor:     row.Cursor,
		Done:       row.Done,
		UpdatedAt:  row.UpdatedAt,
	}, true, nil
}

func (r *Repository) SaveCheckpoint(ctx context.Context, checkpoint ports.Checkpoint) error {
	if strings.TrimSpace(checkpoint.EntityType) == "" {
		return domainerrors.ErrUnknownEntityType
	}
	row := checkpointModel{
		EntityType: strings.TrimSpace(checkpoint.EntityType),
		Cursor:     checkpoint.Cursor,
		Done:       checkpoint.Done,
		UpdatedAt:  checkpoint.UpdatedAt.UTC(),
	}
	create := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "entity_type"}},
			DoUpdates: clause.Assignments(map[string]any{
				"cursor":     row.Cursor,
				"done":       row.Done,
				"updated_at": row.UpdatedAt,
			}),
		}).Create(&row)
	if create.Error != nil {
		return r.logError("parity_repo_save_checkpoint_failed", create.Error,
			"entity_type", checkpoint.EntityType,
		)
	}
	return nil
}

func (r *Repository) SaveRun(ctx context.Context, run ports.ParityRun) error {
	if strings.TrimSpace(run.EntityType) == "" {
		return domainerrors.ErrUnknownEntityType
	}
	row := parityRunModel{
		RunID:       strings.TrimSpace(run.RunID),
		EntityType:  strings.TrimSpace(run.EntityType),
		StartedAt:   run.StartedAt.UTC(),
		CompletedAt: run.CompletedAt.UTC(),
		RowsChecked: run.RowsChecked,
		Mismatched:  run.Mismatched,
		Clean:       run.Clean,
	}
	create := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			DoNothing: true,
		}).Create(&row)
	if create.Error != nil {
		return r.logError("parity_repo_save_run_failed", create.Error,
			"run_id", run.RunID,
			"entity_type", run.EntityType,
		)
	}
	return nil
}

func (r *Repository) LastRun(ctx context.Context, entityType string) (ports.ParityRun, bool, error) {
	var row parityRunModel
	err := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Where("entity_type = ?", strings.TrimSpace(entityType)).
		Order("completed_at DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ParityRun{}, false, nil
		}
		return ports.ParityRun{}, false, r.logError("parity_repo_last_run_failed", err,
			"entity_type", entityType,
		)
	}
	return ports.ParityRun{
		RunID:       row.RunID,
		EntityType:  row.EntityType,
		StartedAt:   row.StartedAt,
		CompletedAt: row.CompletedAt,
		RowsChecked: row.RowsChecked,
		Mismatched:  row.Mismatched,
		Clean:       row.Clean,
	}, true, nil
}

func (r *Repository) logError(event string, err error, args ...any) error {
	fields := append([]any{
		"event", event,
		"module", "migration-core/parity-service",
		"layer", "adapter",
		"error", err.Error(),
	}, args...)
	r.logger.Error("parity repository operation failed", fields...)
	return err
}

var _ ports.CheckpointStore = (*Repository)(nil)
var _ ports.RunStore = (*Repository)(nil)
