package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMessageBuilder(t *testing.T) {
	msg, err := NewMessage().
		WithKey("room:1:2025-01-01").
		WithValue(map[string]any{"id": "b1"}).
		WithEventType("booking.created").
		WithSource("bookings").
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.GetEventID() == "" {
		t.Error("expected generated event id")
	}
	if msg.Headers[HeaderTimestamp] == "" {
		t.Error("expected timestamp header")
	}

	var payload map[string]string
	if err := msg.DecodeValue(&payload); err != nil || payload["id"] != "b1" {
		t.Errorf("unexpected payload %v (%v)", payload, err)
	}
}

func TestMessageBuilder_Errors(t *testing.T) {
	if _, err := NewMessage().WithValue("x").Build(); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := NewMessage().WithKey("k").Build(); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("expected ErrEmptyValue, got %v", err)
	}
	if _, err := NewMessage().WithKey("k").WithValue(make(chan int)).Build(); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorType
	}{
		{nil, ErrorTypeUnknown},
		{errors.New("dial tcp: Connection Refused"), ErrorTypeTransient},
		{fmt.Errorf("write: %w", context.DeadlineExceeded), ErrorTypeTransient},
		{ErrEmptyKey, ErrorTypePermanent},
		{errors.New("unknown topic or partition"), ErrorTypePermanent},
	}
	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.want {
			t.Errorf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
