package messaging

import (
	"testing"
	"time"

	"storyforge-api/internal/domain/entity"
)

func TestNewMessageRoundTrip(t *testing.T) {
	effects := &entity.TurnEffects{
		TurnID:        "turn-1",
		PlaythroughID: "pt-1",
		Flags:         []entity.FlagEffect{{Name: "door_unlocked", Value: "true"}},
	}

	msg, err := NewMessage("msg-1", MessageTypeTurnEffects, "pt-1", "turn-1", effects)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if msg.Type != MessageTypeTurnEffects || msg.TurnID != "turn-1" {
		t.Fatalf("message header wrong: %+v", msg)
	}

	var decoded entity.TurnEffects
	if err := msg.UnmarshalPayload(&decoded); err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if decoded.TurnID != "turn-1" || len(decoded.Flags) != 1 || decoded.Flags[0].Name != "door_unlocked" {
		t.Fatalf("payload round trip lost data: %+v", decoded)
	}
}

func TestMessageMetadata(t *testing.T) {
	msg := &Message{}
	if got := msg.GetMetadata("retry"); got != "" {
		t.Fatalf("missing metadata should read empty, got %q", got)
	}
	msg.SetMetadata("retry", "2")
	if got := msg.GetMetadata("retry"); got != "2" {
		t.Fatalf("GetMetadata = %q, want 2", got)
	}
}

func TestDLQStream(t *testing.T) {
	if got := StreamTurnEffects.DLQStream(); got != "dlq:stream:turn:effects" {
		t.Fatalf("DLQStream() = %q", got)
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: 10 * time.Second, Multiplier: 2}

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{10, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := cfg.CalculateBackoff(tt.retry); got != tt.want {
			t.Fatalf("CalculateBackoff(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}
