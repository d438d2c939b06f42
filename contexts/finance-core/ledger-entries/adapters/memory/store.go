package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"parthenon/contexts/finance-core/ledger-entries/ports"
	coports "parthenon/contexts/migration-core/cutover-controller/ports"
	dwports "parthenon/contexts/migration-core/dual-write-capture/ports"
	"parthenon/contexts/migration-core/partition-manager/domain/scheme"
	pmports "parthenon/contexts/migration-core/partition-manager/ports"

	"github.com/google/uuid"
)

// Restorable snapshots a store and hands back the closure that undoes
// everything written since.
type Restorable interface {
	Checkpoint() func()
}

// TxRunner gives in-memory wiring the same both-or-neither contract the
// postgres transaction provides: when fn fails, every participating store is
// rolled back to its pre-call state.
type TxRunner struct {
	Stores []Restorable
}

func (r TxRunner) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	restores := make([]func(), 0, len(r.Stores))
	for _, store := range r.Stores {
		restores = append(restores, store.Checkpoint())
	}
	if err := fn(ctx); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// Store is the in-memory monolithic ledger: entries, balances, stages and
// idempotency records behind one mutex. It doubles as the legacy side for
// backfill and parity scans.
type Store struct {
	mu sync.RWMutex

	entries     map[string]ports.LedgerEntry
	balances    map[string]ports.DailyBalance
	stages      map[string]coports.Stage
	idempotency map[string]ports.IdempotencyRecord
}

func NewStore() *Store {
	return &Store{
		entries:     make(map[string]ports.LedgerEntry),
		balances:    make(map[string]ports.DailyBalance),
		stages:      make(map[string]coports.Stage),
		idempotency: make(map[string]ports.IdempotencyRecord),
	}
}

func (s *Store) SaveEntry(_ context.Context, entry ports.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.EntryID] = entry
	return nil
}

func (s *Store) GetEntry(_ context.Context, entryID string) (ports.LedgerEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[strings.TrimSpace(entryID)]
	return entry, ok, nil
}

func (s *Store) ListEntries(_ context.Context, entityType string, orgID string, limit int, offset int) ([]ports.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]ports.LedgerEntry, 0)
	for _, entry := range s.entries {
		if entry.EntityType == entityType && entry.OrgID == orgID {
			items = append(items, entry)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].EntryDate.Equal(items[j].EntryDate) {
			return items[i].EntryID < items[j].EntryID
		}
		return items[i].EntryDate.After(items[j].EntryDate)
	})
	if offset >= len(items) {
		return []ports.LedgerEntry{}, nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) SaveBalance(_ context.Context, balance ports.DailyBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[balanceKey(balance.OrgID, balance.BalanceDate)] = balance
	return nil
}

func (s *Store) GetBalance(_ context.Context, orgID string, balanceDate time.Time) (ports.DailyBalance, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, ok := s.balances[balanceKey(orgID, balanceDate)]
	return balance, ok, nil
}

func (s *Store) GetRecord(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.idempotency[key]
	if !ok || now.After(record.ExpiresAt) {
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) PutRecord(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idempotency[record.Key] = record
	return nil
}

func (s *Store) Current(_ context.Context, entityType string) (coports.Stage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stage, ok := s.stages[strings.TrimSpace(entityType)]
	if !ok {
		return coports.StageOff, nil
	}
	return stage, nil
}

// SetStage seeds the stage reader for tests.
func (s *Store) SetStage(entityType string, stage coports.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages[strings.TrimSpace(entityType)] = stage
}

// ScanLegacyRows streams this store's rows in natural-key order, which is
// what the backfill engine and parity verifier consume.
func (s *Store) ScanLegacyRows(_ context.Context, entityType string, afterKey string, limit int) ([]dwports.LedgerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 500
	}
	rows := s.legacyRows(entityType)
	filtered := rows[:0]
	for _, row := range rows {
		if row.NaturalKey > afterKey {
			filtered = append(filtered, row)
		}
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func (s *Store) GetLegacyRows(_ context.Context, entityType string, naturalKeys []string) ([]dwports.LedgerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(naturalKeys))
	for _, key := range naturalKeys {
		wanted[strings.TrimSpace(key)] = true
	}
	rows := s.legacyRows(entityType)
	filtered := rows[:0]
	for _, row := range rows {
		if wanted[row.NaturalKey] {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

// NewestLegacyInBucket reports the most recent update among rows a bucket
// covers, which gates partition retirement.
func (s *Store) NewestLegacyInBucket(_ context.Context, entityType string, bucket pmports.BucketSpec) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest time.Time
	found := false
	for _, row := range s.legacyRows(entityType) {
		if !bucketCovers(bucket, row) {
			continue
		}
		if !found || row.UpdatedAt.After(newest) {
			newest = row.UpdatedAt
			found = true
		}
	}
	return newest, found, nil
}

// Checkpoint deep-copies current state and returns the restore closure.
func (s *Store) Checkpoint() func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make(map[string]ports.LedgerEntry, len(s.entries))
	for id, entry := range s.entries {
		entries[id] = entry
	}
	balances := make(map[string]ports.DailyBalance, len(s.balances))
	for key, balance := range s.balances {
		balances[key] = balance
	}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.entries = entries
		s.balances = balances
	}
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) legacyRows(entityType string) []dwports.LedgerRow {
	entityType = strings.TrimSpace(entityType)
	rows := make([]dwports.LedgerRow, 0)
	if entityType == ports.EntityTypeBalance {
		for _, balance := range s.balances {
			rows = append(rows, dwports.LedgerRow{
				NaturalKey:  balanceKey(balance.OrgID, balance.BalanceDate),
				EntityType:  ports.EntityTypeBalance,
				ShardKey:    balance.OrgID,
				TemporalKey: balance.BalanceDate.UTC(),
				AmountCents: balance.AmountCents,
				Category:    "balance",
				Status:      "posted",
				CreatedAt:   balance.CreatedAt,
				UpdatedAt:   balance.UpdatedAt,
			})
		}
	} else {
		for _, entry := range s.entries {
			if entry.EntityType != entityType {
				continue
			}
			rows = append(rows, dwports.LedgerRow{
				NaturalKey:  entryKey(entry.EntryID, entry.EntryDate),
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
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].NaturalKey < rows[j].NaturalKey
	})
	return rows
}

func bucketCovers(bucket pmports.BucketSpec, row dwports.LedgerRow) bool {
	if bucket.Modulus > 0 {
		return scheme.HashBucket(row.ShardKey, bucket.Modulus) == bucket.Remainder
	}
	key := row.TemporalKey.UTC()
	return !key.Before(bucket.Start) && key.Before(bucket.Next)
}

func entryKey(entryID string, entryDate time.Time) string {
	return fmt.Sprintf("%s:%s", entryID, entryDate.UTC().Format("2006-01-02"))
}

func balanceKey(orgID string, balanceDate time.Time) string {
	return fmt.Sprintf("%s:%s", orgID, balanceDate.UTC().Format("2006-01-02"))
}

var _ ports.Repository = (*Store)(nil)
var _ ports.IdempotencyStore = (*Store)(nil)
var _ ports.StageReader = (*Store)(nil)
var _ ports.TxRunner = TxRunner{}
var _ pmports.LegacyAgeSource = (*Store)(nil)
