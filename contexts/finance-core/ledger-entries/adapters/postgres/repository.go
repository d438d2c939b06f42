package postgresadapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"parthenon/contexts/finance-core/ledger-entries/ports"
	dwports "parthenon/contexts/migration-core/dual-write-capture/ports"
	"parthenon/contexts/migration-core/partition-manager/domain/scheme"
	pmports "parthenon/contexts/migration-core/partition-manager/ports"
	platformdb "parthenon/internal/platform/db"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Natural-key expressions used to scan the monolithic tables in the same
// order the partitioned store scans in.
const (
	entryKeyExpr   = "entry_id || ':' || to_char(entry_date, 'YYYY-MM-DD')"
	balanceKeyExpr = "org_id || ':' || to_char(balance_date, 'YYYY-MM-DD')"
)

// Repository persists the monolithic ledger tables and serves as the legacy
// side for backfill and parity scans.
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

type entryModel struct {
	EntryID     string    `gorm:"column:entry_id;primaryKey"`
	EntityType  string    `gorm:"column:entity_type"`
	OrgID       string    `gorm:"column:org_id"`
	EntryDate   time.Time `gorm:"column:entry_date"`
	AmountCents int64     `gorm:"column:amount_cents"`
	Category    string    `gorm:"column:category"`
	Status      string    `gorm:"column:status"`
	Description string    `gorm:"column:description"`
	ApprovedBy  string    `gorm:"column:approved_by"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (entryModel) TableName() string {
	return "ledger_entries"
}

type balanceModel struct {
	OrgID       string    `gorm:"column:org_id;primaryKey"`
	BalanceDate time.Time `gorm:"column:balance_date;primaryKey"`
	AmountCents int64     `gorm:"column:amount_cents"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (balanceModel) TableName() string {
	return "ledger_balances"
}

type idempotencyModel struct {
	Key             string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash     string    `gorm:"column:request_hash"`
	ResponsePayload []byte    `gorm:"column:response_payload"`
	ExpiresAt       time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "ledger_idempotency"
}

func (r *Repository) SaveEntry(ctx context.Context, entry ports.LedgerEntry) error {
	row := entryModel{
		EntryID:     entry.EntryID,
		EntityType:  entry.EntityType,
		OrgID:       entry.OrgID,
		EntryDate:   entry.EntryDate.UTC(),
		AmountCents: entry.AmountCents,
		Category:    entry.Category,
		Status:      entry.Status,
		Description: entry.Description,
		ApprovedBy:  entry.ApprovedBy,
		CreatedAt:   entry.CreatedAt.UTC(),
		UpdatedAt:   entry.UpdatedAt.UTC(),
	}
	create := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "entry_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"amount_cents": row.AmountCents,
				"category":     row.Category,
				"status":       row.Status,
				"description":  row.Description,
				"approved_by":  row.ApprovedBy,
				"updated_at":   row.UpdatedAt,
			}),
		}).Create(&row)
	if create.Error != nil {
		return r.logError("ledger_repo_save_entry_failed", create.Error,
			"entry_id", entry.EntryID,
		)
	}
	return nil
}

func (r *Repository) GetEntry(ctx context.Context, entryID string) (ports.LedgerEntry, bool, error) {
	var row entryModel
	err := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Where("entry_id = ?", strings.TrimSpace(entryID)).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.LedgerEntry{}, false, nil
		}
		return ports.LedgerEntry{}, false, r.logError("ledger_repo_get_entry_failed", err,
			"entry_id", entryID,
		)
	}
	return entryFromModel(row), true, nil
}

func (r *Repository) ListEntries(ctx context.Context, entityType string, orgID string, limit int, offset int) ([]ports.LedgerEntry, error) {
	var rows []entryModel
	err := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Where("entity_type = ? AND org_id = ?", strings.TrimSpace(entityType), strings.TrimSpace(orgID)).
		Order("entry_date DESC, entry_id ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, r.logError("ledger_repo_list_entries_failed", err,
			"entity_type", entityType,
			"org_id", orgID,
		)
	}
	items := make([]ports.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, entryFromModel(row))
	}
	return items, nil
}

func (r *Repository) SaveBalance(ctx context.Context, balance ports.DailyBalance) error {
	row := balanceModel{
		OrgID:       balance.OrgID,
		BalanceDate: balance.BalanceDate.UTC(),
		AmountCents: balance.AmountCents,
		CreatedAt:   balance.CreatedAt.UTC(),
		UpdatedAt:   balance.UpdatedAt.UTC(),
	}
	create := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "org_id"}, {Name: "balance_date"}},
			DoUpdates: clause.Assignments(map[string]any{
				"amount_cents": row.AmountCents,
				"updated_at":   row.UpdatedAt,
			}),
		}).Create(&row)
	if create.Error != nil {
		return r.logError("ledger_repo_save_balance_failed", create.Error,
			"org_id", balance.OrgID,
		)
	}
	return nil
}

func (r *Repository) GetBalance(ctx context.Context, orgID string, balanceDate time.Time) (ports.DailyBalance, bool, error) {
	var row balanceModel
	err := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Where("org_id = ? AND balance_date = ?", strings.TrimSpace(orgID), balanceDate.UTC()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.DailyBalance{}, false, nil
		}
		return ports.DailyBalance{}, false, r.logError("ledger_repo_get_balance_failed", err,
			"org_id", orgID,
		)
	}
	return balanceFromModel(row), true, nil
}

func (r *Repository) ScanLegacyRows(ctx context.Context, entityType string, afterKey string, limit int) ([]dwports.LedgerRow, error) {
	if limit <= 0 {
		limit = 500
	}
	entityType = strings.TrimSpace(entityType)
	if entityType == ports.EntityTypeBalance {
		var rows []balanceModel
		err := platformdb.FromContext(ctx, r.db).WithContext(ctx).
			Where(balanceKeyExpr+" > ?", afterKey).
			Order(balanceKeyExpr + " ASC").
			Limit(limit).
			Find(&rows).Error
		if err != nil {
			return nil, r.logError("ledger_repo_scan_balances_failed", err)
		}
		items := make([]dwports.LedgerRow, 0, len(rows))
		for _, row := range rows {
			items = append(items, rowFromBalanceModel(row))
		}
		return items, nil
	}

	var rows []entryModel
	err := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Where("entity_type = ? AND "+entryKeyExpr+" > ?", entityType, afterKey).
		Order(entryKeyExpr + " ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, r.logError("ledger_repo_scan_entries_failed", err,
			"entity_type", entityType,
		)
	}
	items := make([]dwports.LedgerRow, 0, len(rows))
	for _, row := range rows {
		items = append(items, rowFromEntryModel(row))
	}
	return items, nil
}

func (r *Repository) GetLegacyRows(ctx context.Context, entityType string, naturalKeys []string) ([]dwports.LedgerRow, error) {
	entityType = strings.TrimSpace(entityType)
	if entityType == ports.EntityTypeBalance {
		var rows []balanceModel
		err := platformdb.FromContext(ctx, r.db).WithContext(ctx).
			Where(balanceKeyExpr+" IN ?", naturalKeys).
			Order(balanceKeyExpr + " ASC").
			Find(&rows).Error
		if err != nil {
			return nil, r.logError("ledger_repo_get_balances_failed", err)
		}
		items := make([]dwports.LedgerRow, 0, len(rows))
		for _, row := range rows {
			items = append(items, rowFromBalanceModel(row))
		}
		return items, nil
	}

	var rows []entryModel
	err := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Where("entity_type = ? AND "+entryKeyExpr+" IN ?", entityType, naturalKeys).
		Order(entryKeyExpr + " ASC").
		Find(&rows).Error
	if err != nil {
		return nil, r.logError("ledger_repo_get_entries_failed", err,
			"entity_type", entityType,
		)
	}
	items := make([]dwports.LedgerRow, 0, len(rows))
	for _, row := range rows {
		items = append(items, rowFromEntryModel(row))
	}
	return items, nil
}

// NewestLegacyInBucket reports the most recent update among rows a bucket
// covers. Hash buckets are resolved in Go because routing hashes with FNV-1a,
// which has no postgres equivalent.
func (r *Repository) NewestLegacyInBucket(ctx context.Context, entityType string, bucket pmports.BucketSpec) (time.Time, bool, error) {
	entityType = strings.TrimSpace(entityType)
	if bucket.Modulus > 0 {
		type orgNewest struct {
			OrgID  string    `gorm:"column:org_id"`
			Newest time.Time `gorm:"column:newest"`
		}
		var groups []orgNewest
		err := platformdb.FromContext(ctx, r.db).WithContext(ctx).
			Model(&balanceModel{}).
			Select("org_id, max(updated_at) AS newest").
			Group("org_id").
			Find(&groups).Error
		if err != nil {
			return time.Time{}, false, r.logError("ledger_repo_newest_hash_failed", err,
				"entity_type", entityType,
			)
		}
		var newest time.Time
		found := false
		for _, group := range groups {
			if scheme.HashBucket(group.OrgID, bucket.Modulus) != bucket.Remainder {
				continue
			}
			if !found || group.Newest.After(newest) {
				newest = group.Newest
				found = true
			}
		}
		return newest, found, nil
	}

	var newest sql.NullTime
	err := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Model(&entryModel{}).
		Select("max(updated_at)").
		Where("entity_type = ? AND entry_date >= ? AND entry_date < ?",
			entityType, bucket.Start.UTC(), bucket.Next.UTC()).
		Scan(&newest).Error
	if err != nil {
		return time.Time{}, false, r.logError("ledger_repo_newest_range_failed", err,
			"entity_type", entityType,
		)
	}
	if !newest.Valid {
		return time.Time{}, false, nil
	}
	return newest.Time, true, nil
}

func (r *Repository) GetRecord(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Where("idempotency_key = ? AND expires_at > ?", strings.TrimSpace(key), now.UTC()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, r.logError("ledger_repo_get_idempotency_failed", err)
	}
	return ports.IdempotencyRecord{
		Key:             row.Key,
		RequestHash:     row.RequestHash,
		ResponsePayload: row.ResponsePayload,
		ExpiresAt:       row.ExpiresAt,
	}, true, nil
}

func (r *Repository) PutRecord(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		Key:             strings.TrimSpace(record.Key),
		RequestHash:     record.RequestHash,
		ResponsePayload: record.ResponsePayload,
		ExpiresAt:       record.ExpiresAt.UTC(),
	}
	create := platformdb.FromContext(ctx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "idempotency_key"}},
			DoUpdates: clause.Assignments(map[string]any{
				"request_hash":     row.RequestHash,
				"response_payload": row.ResponsePayload,
				"expires_at":       row.ExpiresAt,
			}),
		}).Create(&row)
	if create.Error != nil {
		return r.logError("ledger_repo_put_idempotency_failed", create.Error)
	}
	return nil
}

func (r *Repository) logError(event string, err error, args ...any) error {
	fields := append([]any{
		"event", event,
		"module", "finance-core/ledger-entries",
		"layer", "adapter",
		"error", err.Error(),
	}, args...)
	r.logger.Error("ledger repository operation failed", fields...)
	return err
}

func entryFromModel(row entryModel) ports.LedgerEntry {
	return ports.LedgerEntry{
		EntryID:     row.EntryID,
		EntityType:  row.EntityType,
		OrgID:       row.OrgID,
		EntryDate:   row.EntryDate,
		AmountCents: row.AmountCents,
		Category:    row.Category,
		Status:      row.Status,
		Description: row.Description,
		ApprovedBy:  row.ApprovedBy,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func balanceFromModel(row balanceModel) ports.DailyBalance {
	return ports.DailyBalance{
		OrgID:       row.OrgID,
		BalanceDate: row.BalanceDate,
		AmountCents: row.AmountCents,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func rowFromEntryModel(row entryModel) dwports.LedgerRow {
	return dwports.LedgerRow{
		NaturalKey:  fmt.Sprintf("%s:%s", row.EntryID, row.EntryDate.UTC().Format("2006-01-02")),
		EntityType:  row.EntityType,
		ShardKey:    row.OrgID,
		TemporalKey: row.EntryDate.UTC(),
		AmountCents: row.AmountCents,
		Category:    row.Category,
		Status:      row.Status,
		Description: row.Description,
		ApprovedBy:  row.ApprovedBy,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func rowFromBalanceModel(row balanceModel) dwports.LedgerRow {
	return dwports.LedgerRow{
		NaturalKey:  fmt.Sprintf("%s:%s", row.OrgID, row.BalanceDate.UTC().Format("2006-01-02")),
		EntityType:  ports.EntityTypeBalance,
		ShardKey:    row.OrgID,
		TemporalKey: row.BalanceDate.UTC(),
		AmountCents: row.AmountCents,
		Category:    "balance",
		Status:      "posted",
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var _ ports.Repository = (*Repository)(nil)
var _ ports.IdempotencyStore = (*Repository)(nil)
var _ pmports.LegacyAgeSource = (*Repository)(nil)
