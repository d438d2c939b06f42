package unit

import (
	"context"
	"errors"
	"testing"
	"time"

	partitionmanager "parthenon/contexts/migration-core/partition-manager"
	domainerrors "parthenon/contexts/migration-core/partition-manager/domain/errors"
	"parthenon/contexts/migration-core/partition-manager/ports"
	httptransport "parthenon/contexts/migration-core/partition-manager/transport/http"
)

func newPartitionModule() partitionmanager.Module {
	return partitionmanager.NewInMemoryModule([]ports.SchemeConfig{
		{EntityType: "revenue", Scheme: ports.SchemeCalendarRange},
		{EntityType: "expense", Scheme: ports.SchemeCalendarRange},
		{EntityType: "balance", Scheme: ports.SchemeHashModulo, HashBuckets: 4},
	}, nil)
}

func monthBucket(year int, month time.Month) ports.BucketSpec {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return ports.BucketSpec{Start: start, Next: start.AddDate(0, 1, 0)}
}

func TestPartitionProvisionMonthIsIdempotent(t *testing.T) {
	module := newPartitionModule()
	ctx := context.Background()

	first, err := module.Service.Provision(ctx, "revenue", monthBucket(2025, 3))
	if err != nil {
		t.Fatalf("first provision failed: %v", err)
	}
	if first.PartitionID != "revenue_2025_03" {
		t.Fatalf("unexpected partition id: %s", first.PartitionID)
	}

	second, err := module.Service.Provision(ctx, "revenue", monthBucket(2025, 3))
	if err != nil {
		t.Fatalf("repeat provision failed: %v", err)
	}
	if second.PartitionID != first.PartitionID {
		t.Fatalf("repeat provision produced a different partition: %s", second.PartitionID)
	}

	active, err := module.Service.ListActive(ctx, "revenue")
	if err != nil {
		t.Fatalf("list active failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected exactly one partition after repeated provision, got %d", len(active))
	}
}

func TestPartitionProvisionRejectsInvalidBuckets(t *testing.T) {
	module := newPartitionModule()
	ctx := context.Background()

	midMonth := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	_, err := module.Service.Provision(ctx, "revenue", ports.BucketSpec{
		Start: midMonth,
		Next:  midMonth.AddDate(0, 1, 0),
	})
	if !errors.Is(err, domainerrors.ErrInvalidBucket) {
		t.Fatalf("expected invalid bucket for mid-month start, got %v", err)
	}

	_, err = module.Service.Provision(ctx, "balance", ports.BucketSpec{Modulus: 8, Remainder: 1})
	if !errors.Is(err, domainerrors.ErrInvalidBucket) {
		t.Fatalf("expected invalid bucket for wrong modulus, got %v", err)
	}

	_, err = module.Service.Provision(ctx, "balance", ports.BucketSpec{Modulus: 4, Remainder: 4})
	if !errors.Is(err, domainerrors.ErrInvalidBucket) {
		t.Fatalf("expected invalid bucket for out-of-range remainder, got %v", err)
	}

	_, err = module.Service.Provision(ctx, "inventory", monthBucket(2025, 3))
	if !errors.Is(err, domainerrors.ErrUnsupportedEntityType) {
		t.Fatalf("expected unsupported entity type, got %v", err)
	}
}

func TestPartitionProvisionHashSetCoversEveryBucket(t *testing.T) {
	module := newPartitionModule()
	ctx := context.Background()

	partitions, err := module.Service.ProvisionHashSet(ctx, "balance")
	if err != nil {
		t.Fatalf("provision hash set failed: %v", err)
	}
	if len(partitions) != 4 {
		t.Fatalf("expected 4 hash partitions, got %d", len(partitions))
	}

	ready, err := module.Service.RequiredProvisioned(ctx, "balance")
	if err != nil {
		t.Fatalf("required provisioned failed: %v", err)
	}
	if !ready {
		t.Fatalf("full hash set provisioned but required check reports missing partitions")
	}

	// Re-running the onboarding pass must not duplicate anything.
	if _, err := module.Service.ProvisionHashSet(ctx, "balance"); err != nil {
		t.Fatalf("repeat provision hash set failed: %v", err)
	}
	active, err := module.Service.ListActive(ctx, "balance")
	if err != nil {
		t.Fatalf("list active failed: %v", err)
	}
	if len(active) != 4 {
		t.Fatalf("expected 4 partitions after repeat onboarding, got %d", len(active))
	}

	if _, err := module.Service.ProvisionHashSet(ctx, "revenue"); !errors.Is(err, domainerrors.ErrInvalidBucket) {
		t.Fatalf("expected invalid bucket for hash set on a range entity, got %v", err)
	}
}

func TestPartitionRequiredProvisionedForRangeNeedsCurrentMonth(t *testing.T) {
	module := newPartitionModule()
	ctx := context.Background()

	ready, err := module.Service.RequiredProvisioned(ctx, "revenue")
	if err != nil {
		t.Fatalf("required provisioned failed: %v", err)
	}
	if ready {
		t.Fatalf("no partitions exist yet, required check must report missing")
	}

	if err := module.Service.ProvisionMonths(ctx, "revenue", time.Now().UTC(), 0); err != nil {
		t.Fatalf("provision current month failed: %v", err)
	}
	ready, err = module.Service.RequiredProvisioned(ctx, "revenue")
	if err != nil {
		t.Fatalf("required provisioned failed: %v", err)
	}
	if !ready {
		t.Fatalf("current month provisioned but required check reports missing")
	}
}

func TestPartitionRetireRequiresLegacyRetiredStage(t *testing.T) {
	module := newPartitionModule()
	ctx := context.Background()

	if _, err := module.Service.Provision(ctx, "revenue", monthBucket(2024, 1)); err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	_, err := module.Service.Retire(ctx, "revenue", monthBucket(2024, 1))
	if !errors.Is(err, domainerrors.ErrRetireNotAllowed) {
		t.Fatalf("expected retire blocked before legacy_retired, got %v", err)
	}
}

func TestPartitionRetireEnforcesRetentionFloor(t *testing.T) {
	module := newPartitionModule()
	ctx := context.Background()

	if _, err := module.Service.Provision(ctx, "revenue", monthBucket(2024, 1)); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	module.Store.SetStage("revenue", "legacy_retired")
	module.Store.SeedNewestLegacyRow("revenue", time.Now().UTC().Add(-24*time.Hour))

	_, err := module.Service.Retire(ctx, "revenue", monthBucket(2024, 1))
	if !errors.Is(err, domainerrors.ErrRetireNotAllowed) {
		t.Fatalf("expected retire blocked inside the retention window, got %v", err)
	}

	module.Store.SeedNewestLegacyRow("revenue", time.Now().UTC().Add(-120*24*time.Hour))
	retired, err := module.Service.Retire(ctx, "revenue", monthBucket(2024, 1))
	if err != nil {
		t.Fatalf("retire failed after retention window passed: %v", err)
	}
	if retired.Status != ports.PartitionStatusRetiring {
		t.Fatalf("expected retiring status, got %s", retired.Status)
	}
}

func TestPartitionRetiringIsExcludedFromActiveAndRouting(t *testing.T) {
	module := newPartitionModule()
	ctx := context.Background()

	if _, err := module.Service.Provision(ctx, "revenue", monthBucket(2024, 1)); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	if _, err := module.Service.Provision(ctx, "revenue", monthBucket(2024, 2)); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	module.Store.SetStage("revenue", "legacy_retired")
	module.Store.SeedNewestLegacyRow("revenue", time.Now().UTC().Add(-120*24*time.Hour))

	if _, err := module.Service.Retire(ctx, "revenue", monthBucket(2024, 1)); err != nil {
		t.Fatalf("retire failed: %v", err)
	}

	active, err := module.Service.ListActive(ctx, "revenue")
	if err != nil {
		t.Fatalf("list active failed: %v", err)
	}
	if len(active) != 1 || active[0].PartitionID != "revenue_2024_02" {
		t.Fatalf("expected only revenue_2024_02 active, got %+v", active)
	}

	provisioned, err := module.Service.IsProvisioned(ctx, "revenue", "revenue_2024_01")
	if err != nil {
		t.Fatalf("is provisioned failed: %v", err)
	}
	if provisioned {
		t.Fatalf("retiring partition must not accept new writes")
	}
}

func TestPartitionRetireUnknownPartition(t *testing.T) {
	module := newPartitionModule()
	ctx := context.Background()

	module.Store.SetStage("revenue", "legacy_retired")
	_, err := module.Service.Retire(ctx, "revenue", monthBucket(2023, 6))
	if !errors.Is(err, domainerrors.ErrPartitionNotFound) {
		t.Fatalf("expected partition not found, got %v", err)
	}
}

func TestPartitionProvisionerWorkerKeepsLookaheadWindow(t *testing.T) {
	module := newPartitionModule()
	ctx := context.Background()

	if err := module.Provisioner.RunOnce(ctx); err != nil {
		t.Fatalf("provisioner run failed: %v", err)
	}

	for _, entityType := range []string{"revenue", "expense"} {
		active, err := module.Service.ListActive(ctx, entityType)
		if err != nil {
			t.Fatalf("list active for %s failed: %v", entityType, err)
		}
		// Current month plus two look-ahead months.
		if len(active) != 3 {
			t.Fatalf("expected 3 provisioned months for %s, got %d", entityType, len(active))
		}
	}

	// A second cycle is a no-op.
	if err := module.Provisioner.RunOnce(ctx); err != nil {
		t.Fatalf("second provisioner run failed: %v", err)
	}
	active, err := module.Service.ListActive(ctx, "revenue")
	if err != nil {
		t.Fatalf("list active failed: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected 3 months after repeated cycle, got %d", len(active))
	}
}

func TestPartitionProvisionHandlerParsesMonthBuckets(t *testing.T) {
	module := newPartitionModule()
	ctx := context.Background()

	resp, err := module.Handler.ProvisionHandler(ctx, "expense", httptransport.ProvisionPartitionRequest{Month: "2025-07"})
	if err != nil {
		t.Fatalf("provision handler failed: %v", err)
	}
	if resp.Data.PartitionID != "expense_2025_07" {
		t.Fatalf("unexpected partition id: %s", resp.Data.PartitionID)
	}
	if resp.Data.RangeStart != "2025-07-01" || resp.Data.RangeNext != "2025-08-01" {
		t.Fatalf("unexpected range bounds: %s .. %s", resp.Data.RangeStart, resp.Data.RangeNext)
	}

	_, err = module.Handler.ProvisionHandler(ctx, "expense", httptransport.ProvisionPartitionRequest{Month: "july-2025"})
	if !errors.Is(err, domainerrors.ErrInvalidBucket) {
		t.Fatalf("expected invalid bucket for malformed month, got %v", err)
	}
}
