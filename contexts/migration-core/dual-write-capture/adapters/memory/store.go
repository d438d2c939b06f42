package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	domainerrors "parthenon/contexts/migration-core/dual-write-capture/domain/errors"
	"parthenon/contexts/migration-core/dual-write-capture/ports"
)

// Store is the in-memory partitioned store. Rows live under their partition
// id with a per-entity-type index for key-ordered scans.
type Store struct {
	mu sync.RWMutex

	partitions map[string]map[string]ports.LedgerRow
	byEntity   map[string]map[string]string // entity type -> natural key -> partition id
}

func NewStore() *Store {
	return &Store{
		partitions: make(map[string]map[string]ports.LedgerRow),
		byEntity:   make(map[string]map[string]string),
	}
}

func (s *Store) Put(_ context.Context, partitionID string, row ports.LedgerRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	partitionID = strings.TrimSpace(partitionID)
	key := strings.TrimSpace(row.NaturalKey)
	if partitionID == "" || key == "" {
		return domainerrors.ErrInvalidRow
	}

	partition := s.partitions[partitionID]
	if partition == nil {
		partition = make(map[string]ports.LedgerRow)
		s.partitions[partitionID] = partition
	}
	// Full replace, last writer wins.
	partition[key] = row

	index := s.byEntity[row.EntityType]
	if index == nil {
		index = make(map[string]string)
		s.byEntity[row.EntityType] = index
	}
	index[key] = partitionID
	return nil
}

func (s *Store) Get(_ context.Context, entityType string, naturalKey string) (ports.LedgerRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	partitionID, ok := s.byEntity[strings.TrimSpace(entityType)][strings.TrimSpace(naturalKey)]
	if !ok {
		return ports.LedgerRow{}, false, nil
	}
	row, ok := s.partitions[partitionID][strings.TrimSpace(naturalKey)]
	return row, ok, nil
}

func (s *Store) ScanRows(_ context.Context, entityType string, afterKey string, limit int) ([]ports.LedgerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 500
	}

	index := s.byEntity[strings.TrimSpace(entityType)]
	keys := make([]string, 0, len(index))
	for key := range index {
		if key > afterKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}

	rows := make([]ports.LedgerRow, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, s.partitions[index[key]][key])
	}
	return rows, nil
}

func (s *Store) CountRows(_ context.Context, entityType string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byEntity[strings.TrimSpace(entityType)])), nil
}

// RowsInPartition exposes one partition's contents for tests.
func (s *Store) RowsInPartition(partitionID string) []ports.LedgerRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]ports.LedgerRow, 0, len(s.partitions[partitionID]))
	for _, row := range s.partitions[partitionID] {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].NaturalKey < rows[j].NaturalKey
	})
	return rows
}

// Checkpoint snapshots the store and returns a restore function, so an
// in-memory unit of work can roll the mirror back alongside the legacy write.
func (s *Store) Checkpoint() func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	partitions := make(map[string]map[string]ports.LedgerRow, len(s.partitions))
	for id, rows := range s.partitions {
		clone := make(map[string]ports.LedgerRow, len(rows))
		for key, row := range rows {
			clone[key] = row
		}
		partitions[id] = clone
	}
	byEntity := make(map[string]map[string]string, len(s.byEntity))
	for entity, index := range s.byEntity {
		clone := make(map[string]string, len(index))
		for key, id := range index {
			clone[key] = id
		}
		byEntity[entity] = clone
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.partitions = partitions
		s.byEntity = byEntity
	}
}

var _ ports.Store = (*Store)(nil)
