package ports

import (
	"context"
	"time"

	coports "parthenon/contexts/migration-core/cutover-controller/ports"
	dwports "parthenon/contexts/migration-core/dual-write-capture/ports"
)

const (
	EntityTypeRevenue = "revenue"
	EntityTypeExpense = "expense"
	EntityTypeBalance = "balance"
)

const (
	EntryStatusPending  = "pending"
	EntryStatusApproved = "approved"
	EntryStatusVoided   = "voided"
)

// LedgerEntry is a revenue or expense line in the monolithic ledger. EntryDate
// is the business occurrence date; it drives calendar-range routing and never
// changes after creation.
type LedgerEntry struct {
	EntryID     string
	EntityType  string
	OrgID       string
	EntryDate   time.Time
	AmountCents int64
	Category    string
	Status      string
	Description string
	ApprovedBy  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DailyBalance is one organization's end-of-day balance snapshot, keyed by
// org and date. It is the hash-partitioned entity.
type DailyBalance struct {
	OrgID       string
	BalanceDate time.Time
	AmountCents int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CreateEntryInput struct {
	EntityType  string
	OrgID       string
	EntryDate   time.Time
	AmountCents int64
	Category    string
	Description string
}

type UpdateEntryInput struct {
	AmountCents *int64
	Category    *string
	Description *string
}

type Repository interface {
	SaveEntry(ctx context.Context, entry LedgerEntry) error
	GetEntry(ctx context.Context, entryID string) (LedgerEntry, bool, error)
	ListEntries(ctx context.Context, entityType string, orgID string, limit int, offset int) ([]LedgerEntry, error)
	SaveBalance(ctx context.Context, balance DailyBalance) error
	GetBalance(ctx context.Context, orgID string, balanceDate time.Time) (DailyBalance, bool, error)
}

// TxRunner runs fn inside one atomic unit. The postgres adapter carries the
// transaction in ctx so capture writes join the legacy write; the memory
// adapter restores pre-call state when fn fails.
type TxRunner interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Mirror is the dual-write capture entry point.
type Mirror interface {
	Capture(ctx context.Context, entityType string, before *dwports.LedgerRow, after dwports.LedgerRow) error
}

// PartitionedReader serves point reads once an entity type is
// partitioned-primary.
type PartitionedReader interface {
	Get(ctx context.Context, entityType string, naturalKey string) (dwports.LedgerRow, bool, error)
}

type StageReader interface {
	Current(ctx context.Context, entityType string) (coports.Stage, error)
}

type IdempotencyRecord struct {
	Key             string
	RequestHash     string
	ResponsePayload []byte
	ExpiresAt       time.Time
}

type IdempotencyStore interface {
	GetRecord(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	PutRecord(ctx context.Context, record IdempotencyRecord) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
