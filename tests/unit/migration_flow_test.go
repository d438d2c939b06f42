package unit

import (
	"context"
	"errors"
	"testing"
	"time"

	ledgerentries "parthenon/contexts/finance-core/ledger-entries"
	ledgermemory "parthenon/contexts/finance-core/ledger-entries/adapters/memory"
	httptransport "parthenon/contexts/finance-core/ledger-entries/transport/http"
	cutovercontroller "parthenon/contexts/migration-core/cutover-controller"
	cutovermemory "parthenon/contexts/migration-core/cutover-controller/adapters/memory"
	coerrors "parthenon/contexts/migration-core/cutover-controller/domain/errors"
	coports "parthenon/contexts/migration-core/cutover-controller/ports"
	dualwritecapture "parthenon/contexts/migration-core/dual-write-capture"
	dwmemory "parthenon/contexts/migration-core/dual-write-capture/adapters/memory"
	parityservice "parthenon/contexts/migration-core/parity-service"
	paritymemory "parthenon/contexts/migration-core/parity-service/adapters/memory"
	partitionmanager "parthenon/contexts/migration-core/partition-manager"
	pmmemory "parthenon/contexts/migration-core/partition-manager/adapters/memory"
	pmerrors "parthenon/contexts/migration-core/partition-manager/domain/errors"
	pmports "parthenon/contexts/migration-core/partition-manager/ports"
)

// sharedStages adapts the cutover stage store to every module's stage-reading
// port, the same shape the composition root uses against postgres.
type sharedStages struct {
	store *cutovermemory.Store
}

func (s sharedStages) Current(ctx context.Context, entityType string) (coports.Stage, error) {
	record, found, err := s.store.GetStage(ctx, entityType)
	if err != nil {
		return coports.StageOff, err
	}
	if !found {
		return coports.StageOff, nil
	}
	return record.Stage, nil
}

func (s sharedStages) CurrentStage(ctx context.Context, entityType string) (string, error) {
	stage, err := s.Current(ctx, entityType)
	if err != nil {
		return "", err
	}
	return string(stage), nil
}

type flowHarness struct {
	pm      partitionmanager.Module
	capture dualwritecapture.Module
	parity  parityservice.Module
	cutover cutovercontroller.Module
	ledger  ledgerentries.Module
}

// newFlowHarness wires all five modules over shared in-memory state, matching
// the production wiring module for module.
func newFlowHarness() flowHarness {
	cutoverStore := cutovermemory.NewStore()
	stages := sharedStages{store: cutoverStore}

	ledgerStore := ledgermemory.NewStore()
	pmStore := pmmemory.NewStore()

	pm := partitionmanager.NewModule(partitionmanager.Dependencies{
		Schemes: []pmports.SchemeConfig{
			{EntityType: "revenue", Scheme: pmports.SchemeCalendarRange},
			{EntityType: "balance", Scheme: pmports.SchemeHashModulo, HashBuckets: 4},
		},
		Repository:      pmStore,
		Stages:          stages,
		LegacyAge:       ledgerStore,
		Clock:           pmStore,
		RetireRetention: 90 * 24 * time.Hour,
		LookaheadMonths: 2,
	})
	pm.Store = pmStore

	captureStore := dwmemory.NewStore()
	capture := dualwritecapture.NewModule(dualwritecapture.Dependencies{
		Router:     pm.Service,
		Partitions: pm.Service,
		Store:      captureStore,
	})
	capture.Store = captureStore

	parityStore := paritymemory.NewStore()
	parity := parityservice.NewModule(parityservice.Dependencies{
		Legacy:      ledgerStore,
		Partitioned: captureStore,
		Mirror:      capture.Service,
		Checkpoints: parityStore,
		Runs:        parityStore,
		Stages:      stages,
		Outbox:      cutoverStore,
		Clock:       parityStore,
		IDGenerator: parityStore,
		BatchSize:   50,
	})
	parity.Store = parityStore

	cutover := cutovercontroller.NewModule(cutovercontroller.Dependencies{
		Stages:      cutoverStore,
		Schemes:     pm.Service,
		Partitions:  pm.Service,
		Backfill:    parity.Service,
		Parity:      parity.Service,
		Outbox:      cutoverStore,
		Clock:       cutoverStore,
		IDGenerator: cutoverStore,
	})
	cutover.Store = cutoverStore

	ledger := ledgerentries.NewModule(ledgerentries.Dependencies{
		Repo:        ledgerStore,
		Tx:          ledgermemory.TxRunner{Stores: []ledgermemory.Restorable{ledgerStore, captureStore}},
		Mirror:      capture.Service,
		Partitioned: captureStore,
		Stages:      stages,
		Idempotency: ledgerStore,
		Clock:       ledgerStore,
		IDGenerator: ledgerStore,
	})
	ledger.Store = ledgerStore

	return flowHarness{pm: pm, capture: capture, parity: parity, cutover: cutover, ledger: ledger}
}

func TestMigrationFlowEndToEnd(t *testing.T) {
	h := newFlowHarness()
	ctx := context.Background()
	today := time.Now().UTC().Format("2006-01-02")

	create := func(key string, amountCents int64) httptransport.EntryDTO {
		resp, _, err := h.ledger.Handler.CreateEntryHandler(ctx, key, httptransport.CreateEntryRequest{
			EntityType:  "revenue",
			OrgID:       "org-flow",
			EntryDate:   today,
			AmountCents: amountCents,
			Category:    "sales",
		})
		if err != nil {
			t.Fatalf("create entry %s failed: %v", key, err)
		}
		return resp.Data
	}

	// Pre-migration history lands in the legacy store only.
	create("flow-1", 100)
	create("flow-2", 200)
	create("flow-3", 300)
	if count, _ := h.capture.Store.CountRows(ctx, "revenue"); count != 0 {
		t.Fatalf("capture ran before dual_write, got %d rows", count)
	}

	// Cutover refuses to start without the partition set.
	if _, err := h.cutover.Service.Advance(ctx, "revenue", false); !errors.Is(err, coerrors.ErrIllegalTransition) {
		t.Fatalf("expected advance blocked without partitions, got %v", err)
	}
	if err := h.pm.Service.ProvisionMonths(ctx, "revenue", time.Now().UTC(), 1); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	stage, err := h.cutover.Service.Advance(ctx, "revenue", false)
	if err != nil || stage != coports.StageDualWrite {
		t.Fatalf("expected dual_write, got %s err=%v", stage, err)
	}

	// Live writes now hit both layouts.
	live := create("flow-4", 400)
	if _, found, _ := h.capture.Store.Get(ctx, "revenue", live.EntryID+":"+today); !found {
		t.Fatalf("live write not mirrored at dual_write")
	}

	// Backfill drains the pre-migration history; capture already handled the
	// live row, the overlap re-applies identical values.
	result, err := h.parity.Service.Backfill(ctx, "revenue", "")
	if err != nil || !result.Done {
		t.Fatalf("backfill failed: done=%v err=%v", result.Done, err)
	}
	if count, _ := h.capture.Store.CountRows(ctx, "revenue"); count != 4 {
		t.Fatalf("expected 4 partitioned rows after backfill, got %d", count)
	}

	if stage, err = h.cutover.Service.Advance(ctx, "revenue", false); err != nil || stage != coports.StageShadowVerify {
		t.Fatalf("expected shadow_verify, got %s err=%v", stage, err)
	}

	// A clean audit unlocks the read switch.
	records, err := h.parity.Service.Verify(ctx, "revenue")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected clean parity, got %+v", records)
	}
	if stage, err = h.cutover.Service.Advance(ctx, "revenue", false); err != nil || stage != coports.StagePartitionedPrimary {
		t.Fatalf("expected partitioned_primary, got %s err=%v", stage, err)
	}

	got, err := h.ledger.Service.GetEntry(ctx, live.EntryID)
	if err != nil {
		t.Fatalf("get entry at partitioned_primary failed: %v", err)
	}
	if got.AmountCents != 400 {
		t.Fatalf("unexpected partitioned read: %d", got.AmountCents)
	}

	// Retirement needs explicit confirmation, then legacy stops taking writes.
	if _, err := h.cutover.Service.Advance(ctx, "revenue", false); !errors.Is(err, coerrors.ErrIllegalTransition) {
		t.Fatalf("expected confirmation gate, got %v", err)
	}
	if stage, err = h.cutover.Service.Advance(ctx, "revenue", true); err != nil || stage != coports.StageLegacyRetired {
		t.Fatalf("expected legacy_retired, got %s err=%v", stage, err)
	}

	amount := int64(450)
	if _, err := h.ledger.Handler.UpdateEntryHandler(ctx, live.EntryID, httptransport.UpdateEntryRequest{AmountCents: &amount}); err != nil {
		t.Fatalf("update after retirement failed: %v", err)
	}
	row, _, err := h.capture.Store.Get(ctx, "revenue", live.EntryID+":"+today)
	if err != nil {
		t.Fatalf("get mirrored row failed: %v", err)
	}
	if row.AmountCents != 450 {
		t.Fatalf("partitioned row must take post-retirement writes, got %d", row.AmountCents)
	}
	legacy, _, err := h.ledger.Store.GetEntry(ctx, live.EntryID)
	if err != nil {
		t.Fatalf("legacy lookup failed: %v", err)
	}
	if legacy.AmountCents != 400 {
		t.Fatalf("legacy row must stay frozen, got %d", legacy.AmountCents)
	}

	// Every stage change left an audit event; the relay drains them once.
	publisher := &capturingPublisher{}
	relay := cutovercontroller.NewOutboxRelay(h.cutover.Store, publisher, h.cutover.Store, nil)
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	if len(publisher.events) != 4 {
		t.Fatalf("expected 4 stage_advanced events, got %d", len(publisher.events))
	}
	for _, event := range publisher.events {
		if event.EventType != "migration.stage_advanced" {
			t.Fatalf("unexpected event type: %s", event.EventType)
		}
	}

	// Partition retirement stays blocked while rows sit inside the retention
	// window, even at legacy_retired.
	start, _ := time.Parse("2006-01-02", today)
	_, err = h.pm.Service.Retire(ctx, "revenue", pmports.BucketSpec{
		Start: time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC),
		Next:  time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0),
	})
	if !errors.Is(err, pmerrors.ErrRetireNotAllowed) {
		t.Fatalf("expected retention window to block retirement, got %v", err)
	}
}
