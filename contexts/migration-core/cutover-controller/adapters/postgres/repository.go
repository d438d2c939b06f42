package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	domainerrors "parthenon/contexts/migration-core/cutover-controller/domain/errors"
	"parthenon/contexts/migration-core/cutover-controller/ports"
	platformdb "parthenon/internal/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
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

type stageModel struct {
	EntityType string    `gorm:"column:entity_type;primaryKey"`
	Stage      string    `gorm:"column:stage"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (stageModel) TableName() string {
	return "migration_stages"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "migration_outbox"
}

func (r *Repository) GetStage(ctx context.Context, entityType string) (ports.StageRecord, bool, error) {
	var row stageModel
	err := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Where("entity_type = ?", strings.TrimSpace(entityType)).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.StageRecord{}, false, nil
		}
		return ports.StageRecord{}, false, r.logError("cutover_repo_get_stage_failed", err,
			"entity_type", entityType,
		)
	}
	return ports.StageRecord{
		EntityType: row.EntityType,
		Stage:      ports.Stage(row.Stage),
		UpdatedAt:  row.UpdatedAt,
	}, true, nil
}

func (r *Repository) SaveStage(ctx context.Context, record ports.StageRecord) error {
	if strings.TrimSpace(record.EntityType) == "" {
		return domainerrors.ErrUnknownEntityType
	}
	row := stageModel{
		EntityType: strings.TrimSpace(record.EntityType),
		Stage:      string(record.Stage),
		UpdatedAt:  record.UpdatedAt.UTC(),
	}
	create := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "entity_type"}},
			DoUpdates: clause.Assignments(map[string]any{
				"stage":      row.Stage,
				"updated_at": row.UpdatedAt,
			}),
		}).Create(&row)
	if create.Error != nil {
		return r.logError("cutover_repo_save_stage_failed", create.Error,
			"entity_type", record.EntityType,
			"stage", string(record.Stage),
		)
	}
	return nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	create := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "outbox_id"}},
			DoNothing: true,
		}).Create(&row)
	if create.Error != nil && !isUniqueViolation(create.Error) {
		return r.logError("cutover_repo_append_outbox_failed", create.Error,
			"event_id", envelope.EventID,
		)
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	err := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, r.logError("cutover_repo_list_outbox_failed", err)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      row.Payload,
			CreatedAt:    row.CreatedAt,
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	ts := publishedAt.UTC()
	update := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": &ts,
		})
	if update.Error != nil {
		return r.logError("cutover_repo_mark_outbox_failed", update.Error,
			"outbox_id", outboxID,
		)
	}
	return nil
}

func (r *Repository) logError(event string, err error, args ...any) error {
	fields := append([]any{
		"event", event,
		"module", "migration-core/cutover-controller",
		"layer", "adapter",
		"error", err.Error(),
	}, args...)
	r.logger.Error("cutover repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var _ ports.StageRepository = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
