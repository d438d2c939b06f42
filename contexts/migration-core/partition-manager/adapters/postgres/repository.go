package postgresadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domainerrors "parthenon/contexts/migration-core/partition-manager/domain/errors"
	"parthenon/contexts/migration-core/partition-manager/ports"
	platformdb "parthenon/internal/platform/db"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

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

type partitionModel struct {
	PartitionID string     `gorm:"column:partition_id;primaryKey"`
	EntityType  string     `gorm:"column:entity_type"`
	Scheme      string     `gorm:"column:scheme"`
	Modulus     int        `gorm:"column:modulus"`
	Remainder   int        `gorm:"column:remainder"`
	RangeStart  *time.Time `gorm:"column:range_start"`
	RangeNext   *time.Time `gorm:"column:range_next"`
	Status      string     `gorm:"column:status"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

func (partitionModel) TableName() string {
	return "ledger_partitions"
}

// SavePartition records partition metadata and creates the physical table in
// the same transaction, so the provisioned set never references a table that
// does not exist.
func (r *Repository) SavePartition(ctx context.Context, partition ports.Partition) error {
	row := partitionModelFromPort(partition)
	return platformdb.FromContext(ctx, r.db).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		create := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "partition_id"}},
			DoNothing: true,
		}).Create(&row)
		if create.Error != nil {
			if isUniqueViolation(create.Error) {
				return nil
			}
			return r.logError("partition_repo_save_failed", create.Error,
				"partition_id", partition.PartitionID,
			)
		}

		// Partition ids are derived from onboarded entity-type names plus
		// digits; safe to interpolate as an identifier.
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			natural_key  TEXT PRIMARY KEY,
			entity_type  TEXT NOT NULL,
			shard_key    TEXT NOT NULL DEFAULT '',
			temporal_key TIMESTAMPTZ,
			amount_cents BIGINT NOT NULL DEFAULT 0,
			category     TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			approved_by  TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL
		)`, quoteIdentifier(partition.PartitionID))
		if err := tx.Exec(ddl).Error; err != nil {
			return r.logError("partition_repo_create_table_failed", err,
				"partition_id", partition.PartitionID,
			)
		}
		return nil
	})
}

func (r *Repository) ListPartitions(ctx context.Context, entityType string) ([]ports.Partition, error) {
	var rows []partitionModel
	err := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Where("entity_type = ?", strings.TrimSpace(entityType)).
		Order("partition_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, r.logError("partition_repo_list_failed", err, "entity_type", entityType)
	}
	return toPorts(rows), nil
}

func (r *Repository) ListAllPartitions(ctx context.Context) ([]ports.Partition, error) {
	var rows []partitionModel
	err := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Order("partition_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, r.logError("partition_repo_list_all_failed", err)
	}
	return toPorts(rows), nil
}

func (r *Repository) MarkRetiring(ctx context.Context, partitionID string, at time.Time) error {
	update := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Model(&partitionModel{}).
		Where("partition_id = ?", strings.TrimSpace(partitionID)).
		Updates(map[string]any{
			"status":     ports.PartitionStatusRetiring,
			"updated_at": at.UTC(),
		})
	if update.Error != nil {
		return r.logError("partition_repo_mark_retiring_failed", update.Error,
			"partition_id", partitionID,
		)
	}
	if update.RowsAffected == 0 {
		return domainerrors.ErrPartitionNotFound
	}
	return nil
}

func (r *Repository) logError(event string, err error, args ...any) error {
	fields := append([]any{
		"event", event,
		"module", "migration-core/partition-manager",
		"layer", "adapter",
		"error", err.Error(),
	}, args...)
	r.logger.Error("partition repository operation failed", fields...)
	return err
}

func partitionModelFromPort(partition ports.Partition) partitionModel {
	row := partitionModel{
		PartitionID: partition.PartitionID,
		EntityType:  partition.EntityType,
		Scheme:      string(partition.Scheme),
		Modulus:     partition.Bucket.Modulus,
		Remainder:   partition.Bucket.Remainder,
		Status:      partition.Status,
		CreatedAt:   partition.CreatedAt.UTC(),
		UpdatedAt:   partition.UpdatedAt.UTC(),
	}
	if !partition.Bucket.Start.IsZero() {
		start := partition.Bucket.Start.UTC()
		next := partition.Bucket.Next.UTC()
		row.RangeStart = &start
		row.RangeNext = &next
	}
	return row
}

func toPorts(rows []partitionModel) []ports.Partition {
	items := make([]ports.Partition, 0, len(rows))
	for _, row := range rows {
		bucket := ports.BucketSpec{
			Modulus:   row.Modulus,
			Remainder: row.Remainder,
		}
		if row.RangeStart != nil {
			bucket.Start = row.RangeStart.UTC()
		}
		if row.RangeNext != nil {
			bucket.Next = row.RangeNext.UTC()
		}
		items = append(items, ports.Partition{
			PartitionID: row.PartitionID,
			EntityType:  row.EntityType,
			Scheme:      ports.SchemeType(row.Scheme),
			Bucket:      bucket,
			Status:      row.Status,
			CreatedAt:   row.CreatedAt,
			UpdatedAt:   row.UpdatedAt,
		})
	}
	return items
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, ``) + `"`
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var _ ports.Repository = (*Repository)(nil)
