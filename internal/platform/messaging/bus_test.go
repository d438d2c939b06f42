package messaging

import (
	"context"
	"testing"
	"time"

	contractsv1 "parthenon/contracts/gen/events/v1"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan contractsv1.Envelope, 1)
	err := bus.Subscribe(ctx, "migration.events", "test-group", func(_ context.Context, event contractsv1.Envelope) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	event := contractsv1.Envelope{
		EventID:   "evt-bus-1",
		EventType: "migration.stage_advanced",
	}
	if err := bus.Publish(ctx, "migration.events", event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.EventID != "evt-bus-1" {
			t.Fatalf("unexpected event: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber did not receive the event")
	}
}

func TestBusPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewBus(nil)
	if err := bus.Publish(context.Background(), "migration.events", contractsv1.Envelope{EventID: "evt-bus-2"}); err != nil {
		t.Fatalf("publish without subscribers failed: %v", err)
	}
}
