package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	coports "parthenon/contexts/migration-core/cutover-controller/ports"
	domainerrors "parthenon/contexts/migration-core/parity-service/domain/errors"
	"parthenon/contexts/migration-core/parity-service/ports"

	"github.com/google/uuid"
)

// Store keeps checkpoints, run summaries and a seedable legacy source in
// memory. The legacy seed lets parity tests run without a ledger module.
type Store struct {
	mu sync.RWMutex

	legacy      map[string]map[string]ports.LedgerRow
	checkpoints map[string]ports.Checkpoint
	runs        map[string][]ports.ParityRun
	stages      map[string]coports.Stage
	outbox      map[string]outboxRecord
}

type outboxRecord struct {
	Payload   []byte
	EventType string
	CreatedAt time.Time
}

func NewStore() *Store {
	return &Store{
		legacy:      make(map[string]map[string]ports.LedgerRow),
		checkpoints: make(map[string]ports.Checkpoint),
		runs:        make(map[string][]ports.ParityRun),
		stages:      make(map[string]coports.Stage),
		outbox:      make(map[string]outboxRecord),
	}
}

// SeedLegacyRow places a row on the legacy side of the comparison.
func (s *Store) SeedLegacyRow(entityType string, row ports.LedgerRow) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.legacy[strings.TrimSpace(entityType)]
	if rows == nil {
		rows = make(map[string]ports.LedgerRow)
		s.legacy[strings.TrimSpace(entityType)] = rows
	}
	rows[strings.TrimSpace(row.NaturalKey)] = row
}

func (s *Store) ScanLegacyRows(_ context.Context, entityType string, afterKey string, limit int) ([]ports.LedgerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 500
	}
	rows := s.legacy[strings.TrimSpace(entityType)]
	keys := make([]string, 0, len(rows))
	for key := range rows {
		if key > afterKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	items := make([]ports.LedgerRow, 0, len(keys))
	for _, key := range keys {
		items = append(items, rows[key])
	}
	return items, nil
}

func (s *Store) GetLegacyRows(_ context.Context, entityType string, naturalKeys []string) ([]ports.LedgerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.legacy[strings.TrimSpace(entityType)]
	items := make([]ports.LedgerRow, 0, len(naturalKeys))
	for _, key := range naturalKeys {
		if row, ok := rows[strings.TrimSpace(key)]; ok {
			items = append(items, row)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].NaturalKey < items[j].NaturalKey
	})
	return items, nil
}

func (s *Store) GetCheckpoint(_ context.Context, entityType string) (ports.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	checkpoint, ok := s.checkpoints[strings.TrimSpace(entityType)]
	return checkpoint, ok, nil
}

func (s *Store) SaveCheckpoint(_ context.Context, checkpoint ports.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(checkpoint.EntityType) == "" {
		return domainerrors.ErrUnknownEntityType
	}
	s.checkpoints[strings.TrimSpace(checkpoint.EntityType)] = checkpoint
	return nil
}

func (s *Store) SaveRun(_ context.Context, run ports.ParityRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entityType := strings.TrimSpace(run.EntityType)
	if entityType == "" {
		return domainerrors.ErrUnknownEntityType
	}
	s.runs[entityType] = append(s.runs[entityType], run)
	return nil
}

func (s *Store) LastRun(_ context.Context, entityType string) (ports.ParityRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := s.runs[strings.TrimSpace(entityType)]
	if len(runs) == 0 {
		return ports.ParityRun{}, false, nil
	}
	return runs[len(runs)-1], true, nil
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

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	if _, ok := s.outbox[envelope.EventID]; ok {
		return nil
	}
	s.outbox[envelope.EventID] = outboxRecord{
		Payload:   payload,
		EventType: envelope.EventType,
		CreatedAt: envelope.OccurredAt.UTC(),
	}
	return nil
}

// PendingOutboxTypes lists appended event types for tests.
func (s *Store) PendingOutboxTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.outbox))
	for _, record := range s.outbox {
		types = append(types, record.EventType)
	}
	sort.Strings(types)
	return types
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
