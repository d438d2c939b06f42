package unit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	dualwritecapture "parthenon/contexts/migration-core/dual-write-capture"
	dwerrors "parthenon/contexts/migration-core/dual-write-capture/domain/errors"
	dwports "parthenon/contexts/migration-core/dual-write-capture/ports"
	partitionmanager "parthenon/contexts/migration-core/partition-manager"
	"parthenon/contexts/migration-core/partition-manager/domain/scheme"
)

func newCaptureFixture() (partitionmanager.Module, dualwritecapture.Module) {
	pm := newPartitionModule()
	capture := dualwritecapture.NewInMemoryModule(pm.Service, pm.Service, nil)
	return pm, capture
}

func revenueRow(naturalKey string, orgID string, day time.Time, amountCents int64) dwports.LedgerRow {
	return dwports.LedgerRow{
		NaturalKey:  naturalKey,
		EntityType:  "revenue",
		ShardKey:    orgID,
		TemporalKey: day,
		AmountCents: amountCents,
		Category:    "sales",
		Status:      "pending",
		CreatedAt:   day,
		UpdatedAt:   day,
	}
}

func TestCaptureRoutesToMonthPartition(t *testing.T) {
	pm, capture := newCaptureFixture()
	ctx := context.Background()

	if _, err := pm.Service.Provision(ctx, "revenue", monthBucket(2025, 3)); err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if err := capture.Service.Capture(ctx, "revenue", nil, revenueRow("e-1:2025-03-10", "org-1", day, 1500)); err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	rows := capture.Store.RowsInPartition("revenue_2025_03")
	if len(rows) != 1 || rows[0].NaturalKey != "e-1:2025-03-10" {
		t.Fatalf("expected the row in revenue_2025_03, got %+v", rows)
	}
}

func TestCaptureUpsertIsIdempotentOnNaturalKey(t *testing.T) {
	pm, capture := newCaptureFixture()
	ctx := context.Background()

	if _, err := pm.Service.Provision(ctx, "revenue", monthBucket(2025, 3)); err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	insert := revenueRow("e-1:2025-03-10", "org-1", day, 1500)
	if err := capture.Service.Capture(ctx, "revenue", nil, insert); err != nil {
		t.Fatalf("insert capture failed: %v", err)
	}

	update := insert
	update.AmountCents = 2500
	update.Status = "approved"
	if err := capture.Service.Capture(ctx, "revenue", &insert, update); err != nil {
		t.Fatalf("update capture failed: %v", err)
	}

	count, err := capture.Store.CountRows(ctx, "revenue")
	if err != nil {
		t.Fatalf("count rows failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("insert then update must leave one row, got %d", count)
	}

	row, found, err := capture.Store.Get(ctx, "revenue", "e-1:2025-03-10")
	if err != nil || !found {
		t.Fatalf("get after update failed: found=%v err=%v", found, err)
	}
	if row.AmountCents != 2500 || row.Status != "approved" {
		t.Fatalf("update not applied: %+v", row)
	}

	// Replaying the update changes nothing.
	if err := capture.Service.Capture(ctx, "revenue", &insert, update); err != nil {
		t.Fatalf("replay capture failed: %v", err)
	}
	count, _ = capture.Store.CountRows(ctx, "revenue")
	if count != 1 {
		t.Fatalf("replay must not duplicate the row, got %d", count)
	}
}

func TestCaptureFailsOnUnprovisionedPartition(t *testing.T) {
	_, capture := newCaptureFixture()
	ctx := context.Background()

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	err := capture.Service.Capture(ctx, "revenue", nil, revenueRow("e-9:2025-06-02", "org-1", day, 100))
	if !errors.Is(err, dwerrors.ErrPartitionNotProvisioned) {
		t.Fatalf("expected partition not provisioned, got %v", err)
	}

	count, _ := capture.Store.CountRows(ctx, "revenue")
	if count != 0 {
		t.Fatalf("failed capture must not write rows, got %d", count)
	}
}

func TestCaptureRejectsRowsWithoutNaturalKey(t *testing.T) {
	_, capture := newCaptureFixture()
	ctx := context.Background()

	row := revenueRow("", "org-1", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), 100)
	if err := capture.Service.Capture(ctx, "revenue", nil, row); !errors.Is(err, dwerrors.ErrInvalidRow) {
		t.Fatalf("expected invalid row, got %v", err)
	}
}

func TestCaptureHashRoutingMatchesSchemeMath(t *testing.T) {
	pm, capture := newCaptureFixture()
	ctx := context.Background()

	if _, err := pm.Service.ProvisionHashSet(ctx, "balance"); err != nil {
		t.Fatalf("provision hash set failed: %v", err)
	}

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		orgID := fmt.Sprintf("org-%d", i)
		row := dwports.LedgerRow{
			NaturalKey:  fmt.Sprintf("%s:2025-03-10", orgID),
			EntityType:  "balance",
			ShardKey:    orgID,
			TemporalKey: day,
			AmountCents: int64(i * 100),
			Category:    "balance",
			Status:      "posted",
		}
		if err := capture.Service.Capture(ctx, "balance", nil, row); err != nil {
			t.Fatalf("capture for %s failed: %v", orgID, err)
		}

		expected := scheme.HashPartitionID("balance", scheme.HashBucket(orgID, 4))
		found := false
		for _, stored := range capture.Store.RowsInPartition(expected) {
			if stored.NaturalKey == row.NaturalKey {
				found = true
			}
		}
		if !found {
			t.Fatalf("row for %s not in expected partition %s", orgID, expected)
		}
	}
}
