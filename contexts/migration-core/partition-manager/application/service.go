package application

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	domainerrors "parthenon/contexts/migration-core/partition-manager/domain/errors"
	"parthenon/contexts/migration-core/partition-manager/domain/scheme"
	"parthenon/contexts/migration-core/partition-manager/ports"
)

// Service owns the partition scheme registry and the provisioned-partition
// set. It is the single writer of that set; capture callers read it through
// an atomically swapped snapshot, so a successful Provision is visible to
// every reader before the call returns.
type Service struct {
	Repo            ports.Repository
	Stages          ports.StageReader
	LegacyAge       ports.LegacyAgeSource
	Clock           ports.Clock
	RetireRetention time.Duration
	Logger          *slog.Logger

	schemes map[string]ports.SchemeConfig

	mu   sync.Mutex
	snap atomic.Value
}

type snapshot struct {
	version  uint64
	byEntity map[string]map[string]ports.Partition
}

func New(
	schemes []ports.SchemeConfig,
	repo ports.Repository,
	stages ports.StageReader,
	legacyAge ports.LegacyAgeSource,
	clock ports.Clock,
	retireRetention time.Duration,
	logger *slog.Logger,
) *Service {
	registry := make(map[string]ports.SchemeConfig, len(schemes))
	for _, cfg := range schemes {
		registry[strings.TrimSpace(cfg.EntityType)] = cfg
	}
	return &Service{
		Repo:            repo,
		Stages:          stages,
		LegacyAge:       legacyAge,
		Clock:           clock,
		RetireRetention: retireRetention,
		Logger:          logger,
		schemes:         registry,
	}
}

// Route is pure over the scheme registry: it never consults the provisioned
// set and never defaults when no scheme is registered.
func (s *Service) Route(entityType string, shardKey string, temporalKey time.Time) (ports.RouteResult, error) {
	cfg, ok := s.schemes[strings.TrimSpace(entityType)]
	if !ok {
		return ports.RouteResult{}, domainerrors.ErrUnsupportedEntityType
	}

	switch cfg.Scheme {
	case ports.SchemeHashModulo:
		remainder := scheme.HashBucket(shardKey, cfg.HashBuckets)
		return ports.RouteResult{
			PartitionID: scheme.HashPartitionID(cfg.EntityType, remainder),
			Scheme:      ports.SchemeHashModulo,
			Bucket:      ports.BucketSpec{Modulus: cfg.HashBuckets, Remainder: remainder},
		}, nil
	case ports.SchemeCalendarRange:
		start, next := scheme.MonthBucket(temporalKey)
		return ports.RouteResult{
			PartitionID: scheme.RangePartitionID(cfg.EntityType, start),
			Scheme:      ports.SchemeCalendarRange,
			Bucket:      ports.BucketSpec{Start: start, Next: next},
		}, nil
	default:
		return ports.RouteResult{}, domainerrors.ErrUnsupportedEntityType
	}
}

func (s *Service) SchemeFor(entityType string) (ports.SchemeConfig, bool) {
	cfg, ok := s.schemes[strings.TrimSpace(entityType)]
	return cfg, ok
}

// RangeEntityTypes lists entity types on the calendar-range scheme, for the
// look-ahead provisioner.
func (s *Service) RangeEntityTypes() []string {
	var names []string
	for name, cfg := range s.schemes {
		if cfg.Scheme == ports.SchemeCalendarRange {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (s *Service) Provision(ctx context.Context, entityType string, bucket ports.BucketSpec) (ports.Partition, error) {
	cfg, ok := s.schemes[strings.TrimSpace(entityType)]
	if !ok {
		return ports.Partition{}, domainerrors.ErrUnsupportedEntityType
	}

	partition, err := s.buildPartition(cfg, bucket)
	if err != nil {
		return ports.Partition{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.Repo.ListPartitions(ctx, cfg.EntityType)
	if err != nil {
		return ports.Partition{}, err
	}
	for _, current := range existing {
		if current.PartitionID == partition.PartitionID {
			if sameBucket(current.Bucket, partition.Bucket) {
				// Identical spec: idempotent no-op.
				return current, nil
			}
			return ports.Partition{}, domainerrors.ErrPartitionOverlap
		}
		if cfg.Scheme == ports.SchemeCalendarRange && rangesOverlap(current.Bucket, partition.Bucket) {
			return ports.Partition{}, domainerrors.ErrPartitionOverlap
		}
	}

	if err := s.Repo.SavePartition(ctx, partition); err != nil {
		return ports.Partition{}, err
	}
	if err := s.reloadLocked(ctx); err != nil {
		return ports.Partition{}, err
	}

	resolveLogger(s.Logger).Info("partition provisioned",
		"event", "partition_provisioned",
		"module", "migration-core/partition-manager",
		"layer", "application",
		"entity_type", cfg.EntityType,
		"partition_id", partition.PartitionID,
		"scheme", string(cfg.Scheme),
	)
	return partition, nil
}

// ProvisionHashSet provisions the full fixed set of hash buckets for an
// entity type. Called once at onboarding; safe to repeat.
func (s *Service) ProvisionHashSet(ctx context.Context, entityType string) ([]ports.Partition, error) {
	cfg, ok := s.schemes[strings.TrimSpace(entityType)]
	if !ok {
		return nil, domainerrors.ErrUnsupportedEntityType
	}
	if cfg.Scheme != ports.SchemeHashModulo {
		return nil, domainerrors.ErrInvalidBucket
	}

	partitions := make([]ports.Partition, 0, cfg.HashBuckets)
	for remainder := 0; remainder < cfg.HashBuckets; remainder++ {
		partition, err := s.Provision(ctx, cfg.EntityType, ports.BucketSpec{
			Modulus:   cfg.HashBuckets,
			Remainder: remainder,
		})
		if err != nil {
			return nil, err
		}
		partitions = append(partitions, partition)
	}
	return partitions, nil
}

// ProvisionMonths provisions the month bucket containing from plus the given
// number of look-ahead months.
func (s *Service) ProvisionMonths(ctx context.Context, entityType string, from time.Time, lookahead int) error {
	start, _ := scheme.MonthBucket(from)
	for i := 0; i <= lookahead; i++ {
		monthStart := start.AddDate(0, i, 0)
		if _, err := s.Provision(ctx, entityType, ports.BucketSpec{
			Start: monthStart,
			Next:  monthStart.AddDate(0, 1, 0),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Retire(ctx context.Context, entityType string, bucket ports.BucketSpec) (ports.Partition, error) {
	cfg, ok := s.schemes[strings.TrimSpace(entityType)]
	if !ok {
		return ports.Partition{}, domainerrors.ErrUnsupportedEntityType
	}

	target, err := s.buildPartition(cfg, bucket)
	if err != nil {
		return ports.Partition{}, err
	}

	stage, err := s.Stages.CurrentStage(ctx, cfg.EntityType)
	if err != nil {
		return ports.Partition{}, err
	}
	if stage != ports.StageLegacyRetired {
		return ports.Partition{}, domainerrors.ErrRetireNotAllowed
	}

	newest, found, err := s.LegacyAge.NewestLegacyInBucket(ctx, cfg.EntityType, target.Bucket)
	if err != nil {
		return ports.Partition{}, err
	}
	if found && s.now().Sub(newest) < s.RetireRetention {
		return ports.Partition{}, domainerrors.ErrRetireNotAllowed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshotLocked(ctx)
	if err != nil {
		return ports.Partition{}, err
	}
	current, ok := snap.byEntity[cfg.EntityType][target.PartitionID]
	if !ok {
		return ports.Partition{}, domainerrors.ErrPartitionNotFound
	}

	if err := s.Repo.MarkRetiring(ctx, current.PartitionID, s.now()); err != nil {
		return ports.Partition{}, err
	}
	if err := s.reloadLocked(ctx); err != nil {
		return ports.Partition{}, err
	}

	resolveLogger(s.Logger).Info("partition retiring",
		"event", "partition_retiring",
		"module", "migration-core/partition-manager",
		"layer", "application",
		"entity_type", cfg.EntityType,
		"partition_id", current.PartitionID,
	)
	current.Status = ports.PartitionStatusRetiring
	return current, nil
}

func (s *Service) ListActive(ctx context.Context, entityType string) ([]ports.Partition, error) {
	if _, ok := s.schemes[strings.TrimSpace(entityType)]; !ok {
		return nil, domainerrors.ErrUnsupportedEntityType
	}
	snap, err := s.currentSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	var active []ports.Partition
	for _, partition := range snap.byEntity[strings.TrimSpace(entityType)] {
		if partition.Status != ports.PartitionStatusRetiring {
			active = append(active, partition)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].PartitionID < active[j].PartitionID
	})
	return active, nil
}

// IsProvisioned is the capture-side gate. Retiring partitions do not count:
// no new row may route into a partition on its way out.
func (s *Service) IsProvisioned(ctx context.Context, entityType string, partitionID string) (bool, error) {
	snap, err := s.currentSnapshot(ctx)
	if err != nil {
		return false, err
	}
	partition, ok := snap.byEntity[strings.TrimSpace(entityType)][partitionID]
	if !ok {
		return false, nil
	}
	return partition.Status != ports.PartitionStatusRetiring, nil
}

// RequiredProvisioned reports whether the partitions a DualWrite cutover
// needs already exist: the full hash set, or the bucket covering now for
// range schemes.
func (s *Service) RequiredProvisioned(ctx context.Context, entityType string) (bool, error) {
	cfg, ok := s.schemes[strings.TrimSpace(entityType)]
	if !ok {
		return false, domainerrors.ErrUnsupportedEntityType
	}
	snap, err := s.currentSnapshot(ctx)
	if err != nil {
		return false, err
	}
	provisioned := snap.byEntity[cfg.EntityType]

	switch cfg.Scheme {
	case ports.SchemeHashModulo:
		for remainder := 0; remainder < cfg.HashBuckets; remainder++ {
			if _, ok := provisioned[scheme.HashPartitionID(cfg.EntityType, remainder)]; !ok {
				return false, nil
			}
		}
		return true, nil
	case ports.SchemeCalendarRange:
		start, _ := scheme.MonthBucket(s.now())
		_, ok := provisioned[scheme.RangePartitionID(cfg.EntityType, start)]
		return ok, nil
	default:
		return false, domainerrors.ErrUnsupportedEntityType
	}
}

func (s *Service) buildPartition(cfg ports.SchemeConfig, bucket ports.BucketSpec) (ports.Partition, error) {
	now := s.now()
	switch cfg.Scheme {
	case ports.SchemeHashModulo:
		if bucket.Modulus != cfg.HashBuckets || bucket.Remainder < 0 || bucket.Remainder >= bucket.Modulus {
			return ports.Partition{}, domainerrors.ErrInvalidBucket
		}
		if !bucket.Start.IsZero() || !bucket.Next.IsZero() {
			return ports.Partition{}, domainerrors.ErrInvalidBucket
		}
		return ports.Partition{
			PartitionID: scheme.HashPartitionID(cfg.EntityType, bucket.Remainder),
			EntityType:  cfg.EntityType,
			Scheme:      ports.SchemeHashModulo,
			Bucket:      bucket,
			Status:      ports.PartitionStatusActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	case ports.SchemeCalendarRange:
		start, next := scheme.MonthBucket(bucket.Start)
		if bucket.Start.IsZero() || !start.Equal(bucket.Start.UTC()) {
			return ports.Partition{}, domainerrors.ErrInvalidBucket
		}
		if !bucket.Next.IsZero() && !bucket.Next.UTC().Equal(next) {
			return ports.Partition{}, domainerrors.ErrInvalidBucket
		}
		return ports.Partition{
			PartitionID: scheme.RangePartitionID(cfg.EntityType, start),
			EntityType:  cfg.EntityType,
			Scheme:      ports.SchemeCalendarRange,
			Bucket:      ports.BucketSpec{Start: start, Next: next},
			Status:      ports.PartitionStatusActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	default:
		return ports.Partition{}, domainerrors.ErrUnsupportedEntityType
	}
}

func (s *Service) currentSnapshot(ctx context.Context) (snapshot, error) {
	if snap, ok := s.snap.Load().(snapshot); ok {
		return snap, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(ctx)
}

func (s *Service) snapshotLocked(ctx context.Context) (snapshot, error) {
	if snap, ok := s.snap.Load().(snapshot); ok {
		return snap, nil
	}
	if err := s.reloadLocked(ctx); err != nil {
		return snapshot{}, err
	}
	return s.snap.Load().(snapshot), nil
}

func (s *Service) reloadLocked(ctx context.Context) error {
	partitions, err := s.Repo.ListAllPartitions(ctx)
	if err != nil {
		return err
	}
	byEntity := make(map[string]map[string]ports.Partition)
	for _, partition := range partitions {
		bucket := byEntity[partition.EntityType]
		if bucket == nil {
			bucket = make(map[string]ports.Partition)
			byEntity[partition.EntityType] = bucket
		}
		bucket[partition.PartitionID] = partition
	}

	version := uint64(1)
	if previous, ok := s.snap.Load().(snapshot); ok {
		version = previous.version + 1
	}
	s.snap.Store(snapshot{version: version, byEntity: byEntity})
	return nil
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func sameBucket(a ports.BucketSpec, b ports.BucketSpec) bool {
	return a.Modulus == b.Modulus &&
		a.Remainder == b.Remainder &&
		a.Start.Equal(b.Start) &&
		a.Next.Equal(b.Next)
}

func rangesOverlap(a ports.BucketSpec, b ports.BucketSpec) bool {
	if a.Start.IsZero() || b.Start.IsZero() {
		return false
	}
	return a.Start.Before(b.Next) && b.Start.Before(a.Next)
}
