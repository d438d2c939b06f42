package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domainerrors "parthenon/contexts/finance-core/ledger-entries/domain/errors"
	"parthenon/contexts/finance-core/ledger-entries/ports"
	coports "parthenon/contexts/migration-core/cutover-controller/ports"
	dwports "parthenon/contexts/migration-core/dual-write-capture/ports"
)

// Service is the business write path the migration instruments. Every
// mutation runs legacy save and capture inside one TxRunner unit, so a
// capture failure rolls the legacy write back too. Once an entity type
// reaches legacy-retired the legacy save is skipped and the partitioned
// layout takes the write alone.
type Service struct {
	Repo           ports.Repository
	Tx             ports.TxRunner
	Mirror         ports.Mirror
	Partitioned    ports.PartitionedReader
	Stages         ports.StageReader
	Idempotency    ports.IdempotencyStore
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func (s Service) CreateEntry(
	ctx context.Context,
	idempotencyKey string,
	input ports.CreateEntryInput,
) (ports.LedgerEntry, bool, error) {
	if strings.TrimSpace(idempotencyKey) == "" {
		return ports.LedgerEntry{}, false, domainerrors.ErrIdempotencyKeyMissing
	}
	if !isValidCreateInput(input) {
		return ports.LedgerEntry{}, false, domainerrors.ErrInvalidInput
	}

	now := s.now()
	requestHash := hashPayload(map[string]any{
		"entity_type":  strings.TrimSpace(input.EntityType),
		"org_id":       strings.TrimSpace(input.OrgID),
		"entry_date":   input.EntryDate.UTC().Format("2006-01-02"),
		"amount_cents": input.AmountCents,
		"category":     strings.TrimSpace(input.Category),
		"description":  strings.TrimSpace(input.Description),
	})

	record, found, err := s.Idempotency.GetRecord(ctx, strings.TrimSpace(idempotencyKey), now)
	if err != nil {
		return ports.LedgerEntry{}, false, err
	}
	if found {
		if record.RequestHash != requestHash {
			return ports.LedgerEntry{}, false, domainerrors.ErrIdempotencyConflict
		}
		var replayed ports.LedgerEntry
		if err := json.Unmarshal(record.ResponsePayload, &replayed); err != nil {
			return ports.LedgerEntry{}, false, err
		}
		return replayed, true, nil
	}

	entryID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return ports.LedgerEntry{}, false, err
	}
	entry := ports.LedgerEntry{
		EntryID:     strings.TrimSpace(entryID),
		EntityType:  strings.TrimSpace(input.EntityType),
		OrgID:       strings.TrimSpace(input.OrgID),
		EntryDate:   dayFloor(input.EntryDate),
		AmountCents: input.AmountCents,
		Category:    strings.TrimSpace(input.Category),
		Status:      ports.EntryStatusPending,
		Description: strings.TrimSpace(input.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.writeEntry(ctx, nil, entry); err != nil {
		return ports.LedgerEntry{}, false, err
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return ports.LedgerEntry{}, false, err
	}
	if err := s.Idempotency.PutRecord(ctx, ports.IdempotencyRecord{
		Key:             strings.TrimSpace(idempotencyKey),
		RequestHash:     requestHash,
		ResponsePayload: payload,
		ExpiresAt:       now.Add(s.idempotencyTTL()),
	}); err != nil {
		return ports.LedgerEntry{}, false, err
	}

	resolveLogger(s.Logger).Info("ledger entry created",
		"event", "ledger_entry_created",
		"module", "finance-core/ledger-entries",
		"layer", "application",
		"entry_id", entry.EntryID,
		"entity_type", entry.EntityType,
		"org_id", entry.OrgID,
	)
	return entry, false, nil
}

func (s Service) UpdateEntry(ctx context.Context, entryID string, input ports.UpdateEntryInput) (ports.LedgerEntry, error) {
	return s.mutateEntry(ctx, entryID, func(entry *ports.LedgerEntry) error {
		if input.AmountCents != nil {
			entry.AmountCents = *input.AmountCents
		}
		if input.Category != nil {
			if strings.TrimSpace(*input.Category) == "" {
				return domainerrors.ErrInvalidInput
			}
			entry.Category = strings.TrimSpace(*input.Category)
		}
		if input.Description != nil {
			entry.Description = strings.TrimSpace(*input.Description)
		}
		return nil
	})
}

func (s Service) ApproveEntry(ctx context.Context, entryID string, approvedBy string) (ports.LedgerEntry, error) {
	if strings.TrimSpace(approvedBy) == "" {
		return ports.LedgerEntry{}, domainerrors.ErrInvalidInput
	}
	return s.mutateEntry(ctx, entryID, func(entry *ports.LedgerEntry) error {
		entry.Status = ports.EntryStatusApproved
		entry.ApprovedBy = strings.TrimSpace(approvedBy)
		return nil
	})
}

func (s Service) VoidEntry(ctx context.Context, entryID string) (ports.LedgerEntry, error) {
	return s.mutateEntry(ctx, entryID, func(entry *ports.LedgerEntry) error {
		entry.Status = ports.EntryStatusVoided
		return nil
	})
}

func (s Service) GetEntry(ctx context.Context, entryID string) (ports.LedgerEntry, error) {
	entry, found, err := s.Repo.GetEntry(ctx, strings.TrimSpace(entryID))
	if err != nil {
		return ports.LedgerEntry{}, err
	}
	if !found {
		return ports.LedgerEntry{}, domainerrors.ErrEntryNotFound
	}

	stage, err := s.Stages.Current(ctx, entry.EntityType)
	if err != nil {
		return ports.LedgerEntry{}, err
	}
	if stage.Order() < coports.StagePartitionedPrimary.Order() {
		return entry, nil
	}

	// Partitioned layout is primary: the payload comes from the partition,
	// the legacy row only resolves the natural key.
	row, ok, err := s.Partitioned.Get(ctx, entry.EntityType, entryNaturalKey(entry))
	if err != nil {
		return ports.LedgerEntry{}, err
	}
	if !ok {
		return ports.LedgerEntry{}, fmt.Errorf("entry %s: %w", entryID, domainerrors.ErrEntryNotFound)
	}
	entry.AmountCents = row.AmountCents
	entry.Category = row.Category
	entry.Status = row.Status
	entry.Description = row.Description
	entry.ApprovedBy = row.ApprovedBy
	entry.UpdatedAt = row.UpdatedAt
	return entry, nil
}

func (s Service) ListEntries(ctx context.Context, entityType string, orgID string, limit int, offset int) ([]ports.LedgerEntry, error) {
	if !isEntryEntityType(entityType) || strings.TrimSpace(orgID) == "" {
		return nil, domainerrors.ErrInvalidInput
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.Repo.ListEntries(ctx, strings.TrimSpace(entityType), strings.TrimSpace(orgID), limit, offset)
}

func (s Service) UpsertDailyBalance(ctx context.Context, orgID string, balanceDate time.Time, amountCents int64) (ports.DailyBalance, error) {
	if strings.TrimSpace(orgID) == "" || balanceDate.IsZero() {
		return ports.DailyBalance{}, domainerrors.ErrInvalidInput
	}

	now := s.now()
	balance := ports.DailyBalance{
		OrgID:       strings.TrimSpace(orgID),
		BalanceDate: dayFloor(balanceDate),
		AmountCents: amountCents,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing, found, err := s.Repo.GetBalance(ctx, balance.OrgID, balance.BalanceDate); err != nil {
		return ports.DailyBalance{}, err
	} else if found {
		balance.CreatedAt = existing.CreatedAt
	}

	stage, err := s.Stages.Current(ctx, ports.EntityTypeBalance)
	if err != nil {
		return ports.DailyBalance{}, err
	}
	err = s.Tx.Do(ctx, func(ctx context.Context) error {
		if stage != coports.StageLegacyRetired {
			if err := s.Repo.SaveBalance(ctx, balance); err != nil {
				return err
			}
		}
		if stage.Order() >= coports.StageDualWrite.Order() {
			return s.Mirror.Capture(ctx, ports.EntityTypeBalance, nil, rowFromBalance(balance))
		}
		return nil
	})
	if err != nil {
		return ports.DailyBalance{}, err
	}
	return balance, nil
}

func (s Service) GetBalance(ctx context.Context, orgID string, balanceDate time.Time) (ports.DailyBalance, error) {
	if strings.TrimSpace(orgID) == "" || balanceDate.IsZero() {
		return ports.DailyBalance{}, domainerrors.ErrInvalidInput
	}
	balance, found, err := s.Repo.GetBalance(ctx, strings.TrimSpace(orgID), dayFloor(balanceDate))
	if err != nil {
		return ports.DailyBalance{}, err
	}
	if !found {
		return ports.DailyBalance{}, domainerrors.ErrEntryNotFound
	}
	return balance, nil
}

func (s Service) mutateEntry(ctx context.Context, entryID string, apply func(*ports.LedgerEntry) error) (ports.LedgerEntry, error) {
	before, found, err := s.Repo.GetEntry(ctx, strings.TrimSpace(entryID))
	if err != nil {
		return ports.LedgerEntry{}, err
	}
	if !found {
		return ports.LedgerEntry{}, domainerrors.ErrEntryNotFound
	}
	if before.Status == ports.EntryStatusVoided {
		return ports.LedgerEntry{}, domainerrors.ErrEntryVoided
	}

	after := before
	if err := apply(&after); err != nil {
		return ports.LedgerEntry{}, err
	}
	after.UpdatedAt = s.now()

	if err := s.writeEntry(ctx, &before, after); err != nil {
		return ports.LedgerEntry{}, err
	}
	return after, nil
}

// writeEntry is the dual-write unit: legacy save plus capture, atomically.
// New entries are refused once legacy is retired: without a legacy row the
// entry id can never resolve to a natural key again. Mutations of existing
// entries keep flowing to the partitioned layout.
func (s Service) writeEntry(ctx context.Context, before *ports.LedgerEntry, after ports.LedgerEntry) error {
	stage, err := s.Stages.Current(ctx, after.EntityType)
	if err != nil {
		return err
	}
	if before == nil && stage == coports.StageLegacyRetired {
		return domainerrors.ErrLegacyWritesRetired
	}
	return s.Tx.Do(ctx, func(ctx context.Context) error {
		if stage != coports.StageLegacyRetired {
			if err := s.Repo.SaveEntry(ctx, after); err != nil {
				return err
			}
		}
		if stage.Order() >= coports.StageDualWrite.Order() {
			var beforeRow *dwports.LedgerRow
			if before != nil {
				row := rowFromEntry(*before)
				beforeRow = &row
			}
			return s.Mirror.Capture(ctx, after.EntityType, beforeRow, rowFromEntry(after))
		}
		return nil
	})
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s Service) idempotencyTTL() time.Duration {
	if s.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.IdempotencyTTL
}

func entryNaturalKey(entry ports.LedgerEntry) string {
	return fmt.Sprintf("%s:%s", entry.EntryID, entry.EntryDate.UTC().Format("2006-01-02"))
}

func balanceNaturalKey(balance ports.DailyBalance) string {
	return fmt.Sprintf("%s:%s", balance.OrgID, balance.BalanceDate.UTC().Format("2006-01-02"))
}

func rowFromEntry(entry ports.LedgerEntry) dwports.LedgerRow {
	return dwports.LedgerRow{
		NaturalKey:  entryNaturalKey(entry),
		EntityType:  entry.EntityType,
		ShardKey:    entry.OrgID,
		TemporalKey: entry.EntryDate.UTC(),
		AmountCents: entry.AmountCents,
		Category:    entry.Category,
		Status:      entry.Status,
		Description: entry.Description,
		ApprovedBy:  entry.ApprovedBy,
		CreatedAt:   entry.CreatedAt,
		UpdatedAt:   entry.UpdatedAt,
	}
}

func rowFromBalance(balance ports.DailyBalance) dwports.LedgerRow {
	return dwports.LedgerRow{
		NaturalKey:  balanceNaturalKey(balance),
		EntityType:  ports.EntityTypeBalance,
		ShardKey:    balance.OrgID,
		TemporalKey: balance.BalanceDate.UTC(),
		AmountCents: balance.AmountCents,
		Category:    "balance",
		Status:      "posted",
		CreatedAt:   balance.CreatedAt,
		UpdatedAt:   balance.UpdatedAt,
	}
}

func isValidCreateInput(input ports.CreateEntryInput) bool {
	return isEntryEntityType(input.EntityType) &&
		strings.TrimSpace(input.OrgID) != "" &&
		!input.EntryDate.IsZero() &&
		strings.TrimSpace(input.Category) != ""
}

func isEntryEntityType(entityType string) bool {
	trimmed := strings.TrimSpace(entityType)
	return trimmed == ports.EntityTypeRevenue || trimmed == ports.EntityTypeExpense
}

func dayFloor(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func hashPayload(payload map[string]any) string {
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
