package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	ev, err := New(AppointmentScheduled, "acme", "appt-1", map[string]string{"patient_id": "p-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.ID == "" || ev.OccurredAt.IsZero() {
		t.Error("expected id and timestamp to be set")
	}
	if ev.Type != AppointmentScheduled || ev.TenantID != "acme" || ev.ResourceID != "appt-1" {
		t.Errorf("unexpected event: %+v", ev)
	}

	var payload map[string]string
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload["patient_id"] != "p-1" {
		t.Errorf("unexpected payload %s (%v)", ev.Payload, err)
	}
}

func TestNew_UnencodablePayload(t *testing.T) {
	if _, err := New(InvoicePaid, "acme", "inv-1", make(chan int)); err == nil {
		t.Error("expected error for unencodable payload")
	}
}

func TestNew_NilPayload(t *testing.T) {
	ev, err := New(InvoicePaid, "acme", "inv-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Payload != nil {
		t.Errorf("expected no payload, got %s", ev.Payload)
	}
}

func TestMemoryPublisher(t *testing.T) {
	p := &MemoryPublisher{}
	for _, typ := range []string{PregnancyUpdated, AppointmentCancelled} {
		ev, _ := New(typ, "acme", "x", nil)
		if err := p.Publish(context.Background(), ev); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	types := p.Types()
	if len(types) != 2 || types[0] != PregnancyUpdated || types[1] != AppointmentCancelled {
		t.Errorf("unexpected types %v", types)
	}

	p.Err = errors.New("broker down")
	if err := p.Publish(context.Background(), Event{}); err == nil {
		t.Error("expected configured error")
	}
	if len(p.Events()) != 2 {
		t.Error("failed publish must not be recorded")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(context.Background(), Event{Type: InvoiceCreated}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewAMQPPublisher_BadURL(t *testing.T) {
	if _, err := NewAMQPPublisher("not a url"); err == nil {
		t.Error("expected dial error for malformed URL")
	}
}
