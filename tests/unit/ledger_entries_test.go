package unit

import (
	"context"
	"errors"
	"testing"

	ledgerentries "parthenon/contexts/finance-core/ledger-entries"
	ledgererrors "parthenon/contexts/finance-core/ledger-entries/domain/errors"
	httptransport "parthenon/contexts/finance-core/ledger-entries/transport/http"
	coports "parthenon/contexts/migration-core/cutover-controller/ports"
	dualwritecapture "parthenon/contexts/migration-core/dual-write-capture"
	partitionmanager "parthenon/contexts/migration-core/partition-manager"
)

// newLedgerFixture wires the business service over live capture. The mirror
// shares the ledger's transaction scope, so a failed capture rolls the legacy
// write back as well.
func newLedgerFixture() (partitionmanager.Module, dualwritecapture.Module, ledgerentries.Module) {
	pm, capture := newCaptureFixture()
	ledger := ledgerentries.NewInMemoryModule(capture.Service, capture.Store, nil, nil, capture.Store)
	return pm, capture, ledger
}

func createRevenueEntry(t *testing.T, ledger ledgerentries.Module, idempotencyKey string) httptransport.EntryDTO {
	t.Helper()
	resp, _, err := ledger.Handler.CreateEntryHandler(context.Background(), idempotencyKey, httptransport.CreateEntryRequest{
		EntityType:  "revenue",
		OrgID:       "org-1",
		EntryDate:   "2025-03-10",
		AmountCents: 1500,
		Category:    "sales",
		Description: "march invoice",
	})
	if err != nil {
		t.Fatalf("create entry failed: %v", err)
	}
	return resp.Data
}

func TestLedgerCreateEntryRequiresIdempotencyKey(t *testing.T) {
	_, _, ledger := newLedgerFixture()

	_, _, err := ledger.Handler.CreateEntryHandler(context.Background(), "", httptransport.CreateEntryRequest{
		EntityType:  "revenue",
		OrgID:       "org-1",
		EntryDate:   "2025-03-10",
		AmountCents: 1500,
		Category:    "sales",
	})
	if !errors.Is(err, ledgererrors.ErrIdempotencyKeyMissing) {
		t.Fatalf("expected missing idempotency key, got %v", err)
	}
}

func TestLedgerCreateEntryIdempotencyReplayAndConflict(t *testing.T) {
	_, _, ledger := newLedgerFixture()
	ctx := context.Background()

	req := httptransport.CreateEntryRequest{
		EntityType:  "revenue",
		OrgID:       "org-1",
		EntryDate:   "2025-03-10",
		AmountCents: 1500,
		Category:    "sales",
	}
	first, replayed, err := ledger.Handler.CreateEntryHandler(ctx, "idem-entry-1", req)
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if replayed {
		t.Fatalf("first create must not be a replay")
	}

	second, replayed, err := ledger.Handler.CreateEntryHandler(ctx, "idem-entry-1", req)
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if !replayed {
		t.Fatalf("expected replay on duplicate idempotency key")
	}
	if first.Data.EntryID != second.Data.EntryID {
		t.Fatalf("replay returned a different entry: %s vs %s", first.Data.EntryID, second.Data.EntryID)
	}

	entries, err := ledger.Service.ListEntries(ctx, "revenue", "org-1", 10, 0)
	if err != nil {
		t.Fatalf("list entries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("replay must not create a second entry, got %d", len(entries))
	}

	conflicting := req
	conflicting.AmountCents = 9999
	if _, _, err := ledger.Handler.CreateEntryHandler(ctx, "idem-entry-1", conflicting); !errors.Is(err, ledgererrors.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
}

func TestLedgerCreateEntryValidation(t *testing.T) {
	_, _, ledger := newLedgerFixture()
	ctx := context.Background()

	cases := []httptransport.CreateEntryRequest{
		{EntityType: "balance", OrgID: "org-1", EntryDate: "2025-03-10", Category: "sales"},
		{EntityType: "revenue", OrgID: "", EntryDate: "2025-03-10", Category: "sales"},
		{EntityType: "revenue", OrgID: "org-1", EntryDate: "not-a-date", Category: "sales"},
		{EntityType: "revenue", OrgID: "org-1", EntryDate: "2025-03-10", Category: ""},
	}
	for i, req := range cases {
		if _, _, err := ledger.Handler.CreateEntryHandler(ctx, "idem-bad", req); !errors.Is(err, ledgererrors.ErrInvalidInput) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}
}

func TestLedgerWritesStayLegacyOnlyBeforeDualWrite(t *testing.T) {
	_, capture, ledger := newLedgerFixture()

	entry := createRevenueEntry(t, ledger, "idem-off-1")
	if entry.Status != "pending" {
		t.Fatalf("expected pending status, got %s", entry.Status)
	}

	count, _ := capture.Store.CountRows(context.Background(), "revenue")
	if count != 0 {
		t.Fatalf("capture must be off before dual_write, got %d mirrored rows", count)
	}
}

func TestLedgerWritesAreMirroredAtDualWrite(t *testing.T) {
	pm, capture, ledger := newLedgerFixture()
	ctx := context.Background()

	if _, err := pm.Service.Provision(ctx, "revenue", monthBucket(2025, 3)); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	ledger.Store.SetStage("revenue", coports.StageDualWrite)

	entry := createRevenueEntry(t, ledger, "idem-dw-1")
	naturalKey := entry.EntryID + ":2025-03-10"

	row, found, err := capture.Store.Get(ctx, "revenue", naturalKey)
	if err != nil || !found {
		t.Fatalf("mirrored row missing: found=%v err=%v", found, err)
	}
	if row.AmountCents != 1500 || row.ShardKey != "org-1" {
		t.Fatalf("unexpected mirrored row: %+v", row)
	}

	// An update flows through the same natural key.
	newAmount := int64(2500)
	if _, err := ledger.Handler.UpdateEntryHandler(ctx, entry.EntryID, httptransport.UpdateEntryRequest{AmountCents: &newAmount}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	row, _, err = capture.Store.Get(ctx, "revenue", naturalKey)
	if err != nil {
		t.Fatalf("get after update failed: %v", err)
	}
	if row.AmountCents != 2500 {
		t.Fatalf("mirror not updated: %+v", row)
	}
	count, _ := capture.Store.CountRows(ctx, "revenue")
	if count != 1 {
		t.Fatalf("update must not duplicate the mirrored row, got %d", count)
	}
}

func TestLedgerCaptureFailureRollsBackLegacyWrite(t *testing.T) {
	_, capture, ledger := newLedgerFixture()
	ctx := context.Background()

	// Dual-write is on but the march partition does not exist.
	ledger.Store.SetStage("revenue", coports.StageDualWrite)

	_, _, err := ledger.Handler.CreateEntryHandler(ctx, "idem-rb-1", httptransport.CreateEntryRequest{
		EntityType:  "revenue",
		OrgID:       "org-1",
		EntryDate:   "2025-03-10",
		AmountCents: 1500,
		Category:    "sales",
	})
	if err == nil {
		t.Fatalf("expected create to fail without a provisioned partition")
	}

	entries, err := ledger.Service.ListEntries(ctx, "revenue", "org-1", 10, 0)
	if err != nil {
		t.Fatalf("list entries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("legacy write must roll back with the failed capture, got %d entries", len(entries))
	}
	count, _ := capture.Store.CountRows(ctx, "revenue")
	if count != 0 {
		t.Fatalf("partitioned store must stay empty, got %d rows", count)
	}
}

func TestLedgerGetEntryReadsPartitionAtPartitionedPrimary(t *testing.T) {
	pm, capture, ledger := newLedgerFixture()
	ctx := context.Background()

	if _, err := pm.Service.Provision(ctx, "revenue", monthBucket(2025, 3)); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	ledger.Store.SetStage("revenue", coports.StageDualWrite)
	entry := createRevenueEntry(t, ledger, "idem-pp-1")
	naturalKey := entry.EntryID + ":2025-03-10"

	// Diverge the partitioned payload, then flip reads over to it.
	row, _, err := capture.Store.Get(ctx, "revenue", naturalKey)
	if err != nil {
		t.Fatalf("get mirrored row failed: %v", err)
	}
	row.AmountCents = 7777
	route, err := capture.Service.Router.Route("revenue", row.ShardKey, row.TemporalKey)
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if err := capture.Store.Put(ctx, route.PartitionID, row); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := ledger.Service.GetEntry(ctx, entry.EntryID)
	if err != nil {
		t.Fatalf("get entry failed: %v", err)
	}
	if got.AmountCents != 1500 {
		t.Fatalf("legacy payload expected before partitioned_primary, got %d", got.AmountCents)
	}

	ledger.Store.SetStage("revenue", coports.StagePartitionedPrimary)
	got, err = ledger.Service.GetEntry(ctx, entry.EntryID)
	if err != nil {
		t.Fatalf("get entry failed: %v", err)
	}
	if got.AmountCents != 7777 {
		t.Fatalf("partitioned payload expected at partitioned_primary, got %d", got.AmountCents)
	}
}

func TestLedgerLegacyWritesStopAtLegacyRetired(t *testing.T) {
	pm, capture, ledger := newLedgerFixture()
	ctx := context.Background()

	if _, err := pm.Service.Provision(ctx, "revenue", monthBucket(2025, 3)); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	ledger.Store.SetStage("revenue", coports.StageDualWrite)
	entry := createRevenueEntry(t, ledger, "idem-lr-1")
	naturalKey := entry.EntryID + ":2025-03-10"

	ledger.Store.SetStage("revenue", coports.StageLegacyRetired)
	newAmount := int64(4200)
	if _, err := ledger.Handler.UpdateEntryHandler(ctx, entry.EntryID, httptransport.UpdateEntryRequest{AmountCents: &newAmount}); err != nil {
		t.Fatalf("update at legacy_retired failed: %v", err)
	}

	row, _, err := capture.Store.Get(ctx, "revenue", naturalKey)
	if err != nil {
		t.Fatalf("get mirrored row failed: %v", err)
	}
	if row.AmountCents != 4200 {
		t.Fatalf("partitioned row must take the write, got %d", row.AmountCents)
	}

	legacy, found, err := ledger.Store.GetEntry(ctx, entry.EntryID)
	if err != nil || !found {
		t.Fatalf("legacy row lookup failed: found=%v err=%v", found, err)
	}
	if legacy.AmountCents != 1500 {
		t.Fatalf("legacy row must stay frozen after retirement, got %d", legacy.AmountCents)
	}

	// A brand-new entry would have no legacy row to resolve its id, so the
	// create is refused outright.
	_, _, err = ledger.Handler.CreateEntryHandler(ctx, "idem-lr-2", httptransport.CreateEntryRequest{
		EntityType:  "revenue",
		OrgID:       "org-1",
		EntryDate:   "2025-03-11",
		AmountCents: 900,
		Category:    "sales",
	})
	if !errors.Is(err, ledgererrors.ErrLegacyWritesRetired) {
		t.Fatalf("expected create refused at legacy_retired, got %v", err)
	}
}

func TestLedgerApproveAndVoidLifecycle(t *testing.T) {
	_, _, ledger := newLedgerFixture()
	ctx := context.Background()

	entry := createRevenueEntry(t, ledger, "idem-life-1")

	approved, err := ledger.Handler.ApproveEntryHandler(ctx, entry.EntryID, httptransport.ApproveEntryRequest{ApprovedBy: "user-ops"})
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Data.Status != "approved" || approved.Data.ApprovedBy != "user-ops" {
		t.Fatalf("unexpected approve result: %+v", approved.Data)
	}

	if _, err := ledger.Handler.ApproveEntryHandler(ctx, entry.EntryID, httptransport.ApproveEntryRequest{}); !errors.Is(err, ledgererrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty approver, got %v", err)
	}

	voided, err := ledger.Handler.VoidEntryHandler(ctx, entry.EntryID)
	if err != nil {
		t.Fatalf("void failed: %v", err)
	}
	if voided.Data.Status != "voided" {
		t.Fatalf("unexpected void result: %+v", voided.Data)
	}

	amount := int64(1)
	if _, err := ledger.Handler.UpdateEntryHandler(ctx, entry.EntryID, httptransport.UpdateEntryRequest{AmountCents: &amount}); !errors.Is(err, ledgererrors.ErrEntryVoided) {
		t.Fatalf("expected voided entry to reject updates, got %v", err)
	}

	if _, err := ledger.Handler.GetEntryHandler(ctx, "missing-entry"); !errors.Is(err, ledgererrors.ErrEntryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLedgerDailyBalanceUpsertMirrorsAtDualWrite(t *testing.T) {
	pm, capture, ledger := newLedgerFixture()
	ctx := context.Background()

	if _, err := pm.Service.ProvisionHashSet(ctx, "balance"); err != nil {
		t.Fatalf("provision hash set failed: %v", err)
	}
	ledger.Store.SetStage("balance", coports.StageDualWrite)

	resp, err := ledger.Handler.UpsertBalanceHandler(ctx, "org-1", "2025-03-10", httptransport.UpsertBalanceRequest{AmountCents: 50000})
	if err != nil {
		t.Fatalf("upsert balance failed: %v", err)
	}
	if resp.Data.AmountCents != 50000 || resp.Data.BalanceDate != "2025-03-10" {
		t.Fatalf("unexpected balance response: %+v", resp.Data)
	}

	row, found, err := capture.Store.Get(ctx, "balance", "org-1:2025-03-10")
	if err != nil || !found {
		t.Fatalf("mirrored balance missing: found=%v err=%v", found, err)
	}
	if row.AmountCents != 50000 || row.Status != "posted" {
		t.Fatalf("unexpected mirrored balance: %+v", row)
	}

	// Same-day upsert replaces, never duplicates.
	if _, err := ledger.Handler.UpsertBalanceHandler(ctx, "org-1", "2025-03-10", httptransport.UpsertBalanceRequest{AmountCents: 60000}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	count, _ := capture.Store.CountRows(ctx, "balance")
	if count != 1 {
		t.Fatalf("expected one mirrored balance row, got %d", count)
	}

	balance, err := ledger.Handler.GetBalanceHandler(ctx, "org-1", "2025-03-10")
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if balance.Data.AmountCents != 60000 {
		t.Fatalf("unexpected balance amount: %d", balance.Data.AmountCents)
	}
}
