package unit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	cutovercontroller "parthenon/contexts/migration-core/cutover-controller"
	coerrors "parthenon/contexts/migration-core/cutover-controller/domain/errors"
	coports "parthenon/contexts/migration-core/cutover-controller/ports"
	httptransport "parthenon/contexts/migration-core/cutover-controller/transport/http"
	pmports "parthenon/contexts/migration-core/partition-manager/ports"
)

func newCutoverModule() cutovercontroller.Module {
	module := cutovercontroller.NewInMemoryModule(nil)
	module.Store.RegisterScheme(pmports.SchemeConfig{
		EntityType: "revenue",
		Scheme:     pmports.SchemeCalendarRange,
	})
	return module
}

type capturingPublisher struct {
	topics []string
	events []coports.EventEnvelope
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, event coports.EventEnvelope) error {
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func TestCutoverUnknownEntityTypeRejected(t *testing.T) {
	module := newCutoverModule()
	ctx := context.Background()

	if _, err := module.Service.Current(ctx, "inventory"); !errors.Is(err, coerrors.ErrUnknownEntityType) {
		t.Fatalf("expected unknown entity type, got %v", err)
	}
	if _, err := module.Service.Advance(ctx, "inventory", false); !errors.Is(err, coerrors.ErrUnknownEntityType) {
		t.Fatalf("expected unknown entity type on advance, got %v", err)
	}
}

func TestCutoverStageDefaultsToOff(t *testing.T) {
	module := newCutoverModule()

	stage, err := module.Service.Current(context.Background(), "revenue")
	if err != nil {
		t.Fatalf("current stage failed: %v", err)
	}
	if stage != coports.StageOff {
		t.Fatalf("expected off for an untouched entity type, got %s", stage)
	}
}

func TestCutoverAdvanceWalksEveryGate(t *testing.T) {
	module := newCutoverModule()
	ctx := context.Background()

	// off -> dual_write requires the partition set.
	if _, err := module.Service.Advance(ctx, "revenue", false); !errors.Is(err, coerrors.ErrIllegalTransition) {
		t.Fatalf("expected advance blocked without partitions, got %v", err)
	}
	module.Store.SetRequiredProvisioned("revenue", true)
	stage, err := module.Service.Advance(ctx, "revenue", false)
	if err != nil {
		t.Fatalf("advance to dual_write failed: %v", err)
	}
	if stage != coports.StageDualWrite {
		t.Fatalf("expected dual_write, got %s", stage)
	}

	// dual_write -> shadow_verify requires a completed backfill.
	if _, err := module.Service.Advance(ctx, "revenue", false); !errors.Is(err, coerrors.ErrIllegalTransition) {
		t.Fatalf("expected advance blocked with incomplete backfill, got %v", err)
	}
	backfilledAt := time.Now().UTC().Add(-time.Minute)
	module.Store.SetBackfillComplete("revenue", true, backfilledAt)
	if stage, err = module.Service.Advance(ctx, "revenue", false); err != nil || stage != coports.StageShadowVerify {
		t.Fatalf("expected shadow_verify, got %s err=%v", stage, err)
	}

	// shadow_verify -> partitioned_primary requires a clean, fresh parity pass.
	if _, err := module.Service.Advance(ctx, "revenue", false); !errors.Is(err, coerrors.ErrIllegalTransition) {
		t.Fatalf("expected advance blocked without a parity run, got %v", err)
	}
	module.Store.SetLastVerify("revenue", false, time.Now().UTC())
	if _, err := module.Service.Advance(ctx, "revenue", false); !errors.Is(err, coerrors.ErrIllegalTransition) {
		t.Fatalf("expected advance blocked by dirty parity, got %v", err)
	}
	module.Store.SetLastVerify("revenue", true, backfilledAt.Add(-time.Hour))
	if _, err := module.Service.Advance(ctx, "revenue", false); !errors.Is(err, coerrors.ErrIllegalTransition) {
		t.Fatalf("expected advance blocked by stale parity, got %v", err)
	}
	module.Store.SetLastVerify("revenue", true, time.Now().UTC())
	if stage, err = module.Service.Advance(ctx, "revenue", false); err != nil || stage != coports.StagePartitionedPrimary {
		t.Fatalf("expected partitioned_primary, got %s err=%v", stage, err)
	}

	// partitioned_primary -> legacy_retired requires operator confirmation.
	if _, err := module.Service.Advance(ctx, "revenue", false); !errors.Is(err, coerrors.ErrIllegalTransition) {
		t.Fatalf("expected advance blocked without confirmation, got %v", err)
	}
	if stage, err = module.Service.Advance(ctx, "revenue", true); err != nil || stage != coports.StageLegacyRetired {
		t.Fatalf("expected legacy_retired, got %s err=%v", stage, err)
	}

	// Final stage has no successor.
	if _, err := module.Service.Advance(ctx, "revenue", true); !errors.Is(err, coerrors.ErrIllegalTransition) {
		t.Fatalf("expected advance blocked at final stage, got %v", err)
	}
}

func TestCutoverAdvanceEmitsStageAdvancedEvent(t *testing.T) {
	module := newCutoverModule()
	ctx := context.Background()
	module.Store.SetRequiredProvisioned("revenue", true)

	if _, err := module.Service.Advance(ctx, "revenue", false); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	pending, err := module.Store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending outbox failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one outbox event, got %d", len(pending))
	}
	if pending[0].EventType != "migration.stage_advanced" {
		t.Fatalf("unexpected event type: %s", pending[0].EventType)
	}
	if pending[0].PartitionKey != "revenue" {
		t.Fatalf("unexpected partition key: %s", pending[0].PartitionKey)
	}

	var envelope coports.EventEnvelope
	if err := json.Unmarshal(pending[0].Payload, &envelope); err != nil {
		t.Fatalf("decode envelope failed: %v", err)
	}
	if envelope.SourceService != "cutover-controller" {
		t.Fatalf("unexpected source service: %s", envelope.SourceService)
	}
	var data map[string]string
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		t.Fatalf("decode event data failed: %v", err)
	}
	if data["from_stage"] != "off" || data["to_stage"] != "dual_write" {
		t.Fatalf("unexpected transition in event data: %+v", data)
	}
}

func TestCutoverOutboxRelayPublishesAndMarks(t *testing.T) {
	module := newCutoverModule()
	ctx := context.Background()
	module.Store.SetRequiredProvisioned("revenue", true)
	module.Store.SetBackfillComplete("revenue", true, time.Now().UTC().Add(-time.Minute))

	if _, err := module.Service.Advance(ctx, "revenue", false); err != nil {
		t.Fatalf("first advance failed: %v", err)
	}
	if _, err := module.Service.Advance(ctx, "revenue", false); err != nil {
		t.Fatalf("second advance failed: %v", err)
	}

	publisher := &capturingPublisher{}
	relay := cutovercontroller.NewOutboxRelay(module.Store, publisher, module.Store, nil)
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("relay run failed: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(publisher.events))
	}
	for _, topic := range publisher.topics {
		if topic != "migration.events" {
			t.Fatalf("unexpected topic: %s", topic)
		}
	}

	// Published rows never go out twice.
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("second relay run failed: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected no re-publishes, got %d total", len(publisher.events))
	}
}

func TestCutoverAdvanceStageHandler(t *testing.T) {
	module := newCutoverModule()
	ctx := context.Background()
	module.Store.SetRequiredProvisioned("revenue", true)

	resp, err := module.Handler.AdvanceStageHandler(ctx, "revenue", httptransport.AdvanceStageRequest{})
	if err != nil {
		t.Fatalf("advance handler failed: %v", err)
	}
	if resp.Data.Stage != "dual_write" || resp.Data.EntityType != "revenue" {
		t.Fatalf("unexpected handler response: %+v", resp.Data)
	}

	current, err := module.Handler.CurrentStageHandler(ctx, "revenue")
	if err != nil {
		t.Fatalf("current handler failed: %v", err)
	}
	if current.Data.Stage != "dual_write" {
		t.Fatalf("unexpected current stage: %s", current.Data.Stage)
	}
}
