package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	domainerrors "parthenon/contexts/migration-core/cutover-controller/domain/errors"
	"parthenon/contexts/migration-core/cutover-controller/ports"
	pmports "parthenon/contexts/migration-core/partition-manager/ports"

	"github.com/google/uuid"
)

// Store backs the stage machine and its gates in memory. The gate seeds let
// tests stand in for the partition manager and parity service.
type Store struct {
	mu sync.RWMutex

	schemes     map[string]pmports.SchemeConfig
	stages      map[string]ports.StageRecord
	provisioned map[string]bool
	backfills   map[string]backfillState
	verifies    map[string]verifyState
	outbox      map[string]outboxRecord
}

type backfillState struct {
	Complete    bool
	CompletedAt time.Time
}

type verifyState struct {
	Clean       bool
	CompletedAt time.Time
}

type outboxRecord struct {
	Message     ports.OutboxMessage
	Status      string
	PublishedAt *time.Time
}

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

func NewStore() *Store {
	return &Store{
		schemes:     make(map[string]pmports.SchemeConfig),
		stages:      make(map[string]ports.StageRecord),
		provisioned: make(map[string]bool),
		backfills:   make(map[string]backfillState),
		verifies:    make(map[string]verifyState),
		outbox:      make(map[string]outboxRecord),
	}
}

func (s *Store) RegisterScheme(cfg pmports.SchemeConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemes[strings.TrimSpace(cfg.EntityType)] = cfg
}

func (s *Store) SchemeFor(entityType string) (pmports.SchemeConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.schemes[strings.TrimSpace(entityType)]
	return cfg, ok
}

func (s *Store) GetStage(_ context.Context, entityType string) (ports.StageRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.stages[strings.TrimSpace(entityType)]
	return record, ok, nil
}

func (s *Store) SaveStage(_ context.Context, record ports.StageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(record.EntityType) == "" {
		return domainerrors.ErrUnknownEntityType
	}
	s.stages[strings.TrimSpace(record.EntityType)] = record
	return nil
}

func (s *Store) RequiredProvisioned(_ context.Context, entityType string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provisioned[strings.TrimSpace(entityType)], nil
}

func (s *Store) SetRequiredProvisioned(entityType string, provisioned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provisioned[strings.TrimSpace(entityType)] = provisioned
}

func (s *Store) BackfillComplete(_ context.Context, entityType string) (bool, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := s.backfills[strings.TrimSpace(entityType)]
	return state.Complete, state.CompletedAt, nil
}

func (s *Store) SetBackfillComplete(entityType string, complete bool, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backfills[strings.TrimSpace(entityType)] = backfillState{Complete: complete, CompletedAt: at.UTC()}
}

func (s *Store) LastVerify(_ context.Context, entityType string) (bool, time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.verifies[strings.TrimSpace(entityType)]
	return state.Clean, state.CompletedAt, ok, nil
}

func (s *Store) SetLastVerify(entityType string, clean bool, completedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifies[strings.TrimSpace(entityType)] = verifyState{Clean: clean, CompletedAt: completedAt.UTC()}
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		return domainerrors.ErrUnknownEntityType
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.Message.Payload, payload) {
			return domainerrors.ErrIllegalTransition
		}
		return nil
	}
	s.outbox[outboxID] = outboxRecord{
		Message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    envelope.EventType,
			PartitionKey: envelope.PartitionKey,
			Payload:      payload,
			CreatedAt:    envelope.OccurredAt.UTC(),
		},
		Status: outboxStatusPending,
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0)
	for _, row := range s.outbox {
		if row.Status == outboxStatusPending {
			items = append(items, row.Message)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrUnknownEntityType
	}
	ts := publishedAt.UTC()
	row.Status = outboxStatusPublished
	row.PublishedAt = &ts
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
