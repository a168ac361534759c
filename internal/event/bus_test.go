package event

import (
	"testing"

	"github.com/hitoshi/socialauth/internal/model"
)

func TestBus_PublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus()

	var got []Event
	if err := bus.Subscribe(func(ev Event) { got = append(got, ev) }); err != nil {
		t.Fatalf("Subscribe error = %v", err)
	}

	bus.Publish(Event{Type: model.NotificationNewUser, Channel: "Email"})

	if len(got) != 1 {
		t.Fatalf("delivered %d events, want 1", len(got))
	}
	if got[0].ID == "" {
		t.Error("expected event ID to be assigned")
	}
	if got[0].OccurredAt.IsZero() {
		t.Error("expected OccurredAt to be assigned")
	}
	if got[0].Channel != "Email" {
		t.Errorf("Channel = %q, want %q", got[0].Channel, "Email")
	}
}

func TestBus_PublishKeepsExplicitID(t *testing.T) {
	bus := NewBus()
	var id string
	bus.Subscribe(func(ev Event) { id = ev.ID })

	bus.Publish(Event{ID: "fixed-id", Type: model.NotificationUserLogin})

	if id != "fixed-id" {
		t.Errorf("ID = %q, want %q", id, "fixed-id")
	}
}

func TestBus_SubscriberPanicDoesNotPropagate(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(func(ev Event) { panic("boom") })

	// panicが発行元に伝播しないこと
	bus.Publish(Event{Type: model.NotificationUserLogin})
}

func TestBus_NoSubscribers(t *testing.T) {
	NewBus().Publish(Event{Type: model.NotificationExcelExport})
}

func TestNopPublisher(t *testing.T) {
	NopPublisher.Publish(Event{Type: model.NotificationNewUser})
}
