package postgresadapter

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	domainerrors "parthenon/contexts/migration-core/dual-write-capture/domain/errors"
	"parthenon/contexts/migration-core/dual-write-capture/ports"
	pmports "parthenon/contexts/migration-core/partition-manager/ports"
	platformdb "parthenon/internal/platform/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PartitionLister resolves the physical tables backing an entity type.
type PartitionLister interface {
	ListActive(ctx context.Context, entityType string) ([]pmports.Partition, error)
}

// Store writes ledger rows into per-partition physical tables. Put joins the
// transaction carried in ctx, which is how a mirror write commits or aborts
// together with its legacy write.
type Store struct {
	db         *gorm.DB
	partitions PartitionLister
	logger     *slog.Logger
}

func NewStore(db *gorm.DB, partitions PartitionLister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, partitions: partitions, logger: logger}
}

type ledgerRowModel struct {
	NaturalKey  string     `gorm:"column:natural_key;primaryKey"`
	EntityType  string     `gorm:"column:entity_type"`
	ShardKey    string     `gorm:"column:shard_key"`
	TemporalKey *time.Time `gorm:"column:temporal_key"`
	AmountCents int64      `gorm:"column:amount_cents"`
	Category    string     `gorm:"column:category"`
	Status      string     `gorm:"column:status"`
	Description string     `gorm:"column:description"`
	ApprovedBy  string     `gorm:"column:approved_by"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

func (s *Store) Put(ctx context.Context, partitionID string, row ports.LedgerRow) error {
	if strings.TrimSpace(partitionID) == "" || strings.TrimSpace(row.NaturalKey) == "" {
		return domainerrors.ErrInvalidRow
	}

	model := modelFromRow(row)
	create := platformdb.FromContext(ctx, s.db).WithContext(ctx).
		Table(partitionID).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "natural_key"}},
			DoUpdates: clause.Assignments(map[string]any{
				"shard_key":    model.ShardKey,
				"temporal_key": model.TemporalKey,
				"amount_cents": model.AmountCents,
				"category":     model.Category,
				"status":       model.Status,
				"description":  model.Description,
				"approved_by":  model.ApprovedBy,
				"updated_at":   model.UpdatedAt,
			}),
		}).Create(&model)
	if create.Error != nil {
		s.logger.Error("partitioned upsert failed",
			"event", "dual_write_store_put_failed",
			"module", "migration-core/dual-write-capture",
			"layer", "adapter",
			"partition_id", partitionID,
			"natural_key", row.NaturalKey,
			"error", create.Error.Error(),
		)
		return create.Error
	}
	return nil
}

func (s *Store) Get(ctx context.Context, entityType string, naturalKey string) (ports.LedgerRow, bool, error) {
	partitions, err := s.partitions.ListActive(ctx, entityType)
	if err != nil {
		return ports.LedgerRow{}, false, err
	}
	handle := platformdb.FromContext(ctx, s.db).WithContext(ctx)
	for _, partition := range partitions {
		var model ledgerRowModel
		err := handle.Table(partition.PartitionID).
			Where("natural_key = ?", strings.TrimSpace(naturalKey)).
			Take(&model).Error
		if err == nil {
			return rowFromModel(model), true, nil
		}
		if err != gorm.ErrRecordNotFound {
			return ports.LedgerRow{}, false, err
		}
	}
	return ports.LedgerRow{}, false, nil
}

// ScanRows merges key-ordered reads across every active partition of the
// entity type, returning at most limit rows with natural key > afterKey.
func (s *Store) ScanRows(ctx context.Context, entityType string, afterKey string, limit int) ([]ports.LedgerRow, error) {
	if limit <= 0 {
		limit = 500
	}
	partitions, err := s.partitions.ListActive(ctx, entityType)
	if err != nil {
		return nil, err
	}

	handle := platformdb.FromContext(ctx, s.db).WithContext(ctx)
	merged := make([]ports.LedgerRow, 0, limit)
	for _, partition := range partitions {
		var models []ledgerRowModel
		err := handle.Table(partition.PartitionID).
			Where("natural_key > ?", afterKey).
			Order("natural_key ASC").
			Limit(limit).
			Find(&models).Error
		if err != nil {
			return nil, err
		}
		for _, model := range models {
			merged = append(merged, rowFromModel(model))
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].NaturalKey < merged[j].NaturalKey
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (s *Store) CountRows(ctx context.Context, entityType string) (int64, error) {
	partitions, err := s.partitions.ListActive(ctx, entityType)
	if err != nil {
		return 0, err
	}
	handle := platformdb.FromContext(ctx, s.db).WithContext(ctx)

	var total int64
	for _, partition := range partitions {
		var count int64
		if err := handle.Table(partition.PartitionID).Count(&count).Error; err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

func modelFromRow(row ports.LedgerRow) ledgerRowModel {
	model := ledgerRowModel{
		NaturalKey:  strings.TrimSpace(row.NaturalKey),
		EntityType:  row.EntityType,
		ShardKey:    row.ShardKey,
		AmountCents: row.AmountCents,
		Category:    row.Category,
		Status:      row.Status,
		Description: row.Description,
		ApprovedBy:  row.ApprovedBy,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if !row.TemporalKey.IsZero() {
		temporal := row.TemporalKey.UTC()
		model.TemporalKey = &temporal
	}
	return model
}

func rowFromModel(model ledgerRowModel) ports.LedgerRow {
	row := ports.LedgerRow{
		NaturalKey:  model.NaturalKey,
		EntityType:  model.EntityType,
		ShardKey:    model.ShardKey,
		AmountCents: model.AmountCents,
		Category:    model.Category,
		Status:      model.Status,
		Description: model.Description,
		ApprovedBy:  model.ApprovedBy,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
	if model.TemporalKey != nil {
		row.TemporalKey = model.TemporalKey.UTC()
	}
	return row
}

var _ ports.Store = (*Store)(nil)
