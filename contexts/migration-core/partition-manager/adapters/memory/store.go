package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domainerrors "parthenon/contexts/migration-core/partition-manager/domain/errors"
	"parthenon/contexts/migration-core/partition-manager/ports"
)

// Store is the in-memory repository used by tests and local wiring. It also
// stands in for the cutover stage reader and the legacy age source so a
// partition-manager module can run without the rest of the monolith.
type Store struct {
	mu sync.RWMutex

	partitions map[string]ports.Partition
	stages     map[string]string
	newestRows map[string]time.Time
}

func NewStore() *Store {
	return &Store{
		partitions: make(map[string]ports.Partition),
		stages:     make(map[string]string),
		newestRows: make(map[string]time.Time),
	}
}

func (s *Store) SavePartition(_ context.Context, partition ports.Partition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(partition.PartitionID)
	if id == "" {
		return domainerrors.ErrInvalidBucket
	}
	if _, exists := s.partitions[id]; exists {
		return nil
	}
	s.partitions[id] = partition
	return nil
}

func (s *Store) ListPartitions(_ context.Context, entityType string) ([]ports.Partition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]ports.Partition, 0)
	for _, partition := range s.partitions {
		if partition.EntityType == strings.TrimSpace(entityType) {
			items = append(items, partition)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].PartitionID < items[j].PartitionID
	})
	return items, nil
}

func (s *Store) ListAllPartitions(_ context.Context) ([]ports.Partition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]ports.Partition, 0, len(s.partitions))
	for _, partition := range s.partitions {
		items = append(items, partition)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].PartitionID < items[j].PartitionID
	})
	return items, nil
}

func (s *Store) MarkRetiring(_ context.Context, partitionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	partition, ok := s.partitions[strings.TrimSpace(partitionID)]
	if !ok {
		return domainerrors.ErrPartitionNotFound
	}
	partition.Status = ports.PartitionStatusRetiring
	partition.UpdatedAt = at.UTC()
	s.partitions[partition.PartitionID] = partition
	return nil
}

func (s *Store) CurrentStage(_ context.Context, entityType string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stage, ok := s.stages[strings.TrimSpace(entityType)]
	if !ok {
		return "off", nil
	}
	return stage, nil
}

// SetStage seeds the stage reader for tests.
func (s *Store) SetStage(entityType string, stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages[strings.TrimSpace(entityType)] = stage
}

func (s *Store) NewestLegacyInBucket(_ context.Context, entityType string, _ ports.BucketSpec) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	newest, ok := s.newestRows[strings.TrimSpace(entityType)]
	return newest, ok, nil
}

// SeedNewestLegacyRow seeds the legacy age source for tests.
func (s *Store) SeedNewestLegacyRow(entityType string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newestRows[strings.TrimSpace(entityType)] = at.UTC()
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}
