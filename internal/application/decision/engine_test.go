package decision

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"storyforge-api/internal/application/assembler"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/gateway"
	"storyforge-api/internal/workflow/prompt"
)

// stubCompleter 按顺序返回预置输出, 用完后重复最后一个
type stubCompleter struct {
	outputs []string
	err     error
	calls   int
}

func (s *stubCompleter) Complete(_ context.Context, _ gateway.Role, _, _ string, _ int) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	idx := s.calls - 1
	if idx >= len(s.outputs) {
		idx = len(s.outputs) - 1
	}
	return s.outputs[idx], nil
}

func decisionBundle(present ...*entity.Character) *assembler.Bundle {
	return &assembler.Bundle{
		PlaythroughID: "pt-1",
		UserAction:    "I ask about the weather.",
		Present:       present,
		AssembledAt:   time.Now(),
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    entity.CharacterDecision
		wantErr bool
	}{
		{
			name: "valid json",
			raw:  `{"action":"pours tea","dialogue":"Storm's coming.","emotion":"wary","refuses":false,"reason":"small talk is safe"}`,
			want: entity.CharacterDecision{
				CharacterID:   "c1",
				CharacterName: "Maren",
				Action:        "pours tea",
				Dialogue:      "Storm's coming.",
				Emotion:       "wary",
				Refuses:       false,
				Reason:        "small talk is safe",
			},
		},
		{
			name: "json wrapped in markdown fence",
			raw:  "Here you go:\n```json\n{\"action\":\"nods\",\"dialogue\":\"\",\"emotion\":\"calm\",\"refuses\":true,\"reason\":\"\"}\n```",
			want: entity.CharacterDecision{
				CharacterID:   "c1",
				CharacterName: "Maren",
				Action:        "nods",
				Emotion:       "calm",
				Refuses:       true,
			},
		},
		{
			name: "fields are trimmed",
			raw:  `{"action":"  shrugs  ","dialogue":" Fine. ","emotion":" tired ","refuses":false}`,
			want: entity.CharacterDecision{
				CharacterID:   "c1",
				CharacterName: "Maren",
				Action:        "shrugs",
				Dialogue:      "Fine.",
				Emotion:       "tired",
			},
		},
		{name: "missing refuses field", raw: `{"action":"waves","dialogue":"hi","emotion":"warm"}`, wantErr: true},
		{name: "neither action nor dialogue", raw: `{"action":"  ","dialogue":"","emotion":"flat","refuses":false}`, wantErr: true},
		{name: "no json object at all", raw: "She would probably just smile and change the subject.", wantErr: true},
		{name: "broken json", raw: `{"action":"waves","refuses":`, wantErr: true},
		{name: "empty output", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDecision(tt.raw, "c1", "Maren")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseDecision(%q) expected error, got %+v", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDecision(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("parseDecision(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDecideAllEmptyScene(t *testing.T) {
	e := NewEngine(&stubCompleter{}, prompt.NewRegistry(), time.Second, 1200)

	decisions, err := e.DecideAll(context.Background(), decisionBundle())
	if err != nil {
		t.Fatalf("DecideAll: %v", err)
	}
	if decisions != nil {
		t.Fatalf("expected nil decisions for empty scene, got %v", decisions)
	}
}

func TestDecideAllPreservesOrder(t *testing.T) {
	completer := &stubCompleter{outputs: []string{
		`{"action":"listens","dialogue":"","emotion":"curious","refuses":false}`,
	}}
	e := NewEngine(completer, prompt.NewRegistry(), time.Second, 1200)

	bundle := decisionBundle(
		&entity.Character{ID: "c1", Name: "Maren"},
		&entity.Character{ID: "c2", Name: "Tobias"},
	)

	decisions, err := e.DecideAll(context.Background(), bundle)
	if err != nil {
		t.Fatalf("DecideAll: %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(decisions))
	}
	if decisions[0].CharacterID != "c1" || decisions[1].CharacterID != "c2" {
		t.Fatalf("decision order does not match scene order: %q, %q",
			decisions[0].CharacterID, decisions[1].CharacterID)
	}
}

func TestDecideOneRetryRecovers(t *testing.T) {
	completer := &stubCompleter{outputs: []string{
		"Sorry, let me think about that.",
		`{"action":"pours tea","dialogue":"Storm's coming.","emotion":"wary","refuses":false}`,
	}}
	e := NewEngine(completer, prompt.NewRegistry(), time.Second, 1200)
	bundle := decisionBundle(&entity.Character{ID: "c1", Name: "Maren"})

	d, err := e.decideOne(context.Background(), bundle, bundle.Present[0])
	if err != nil {
		t.Fatalf("decideOne: %v", err)
	}
	if completer.calls != 2 {
		t.Fatalf("expected 2 model calls, got %d", completer.calls)
	}
	if d.Fallback {
		t.Fatalf("recovered decision should not be a fallback: %+v", d)
	}
	if d.Action != "pours tea" {
		t.Fatalf("unexpected action %q", d.Action)
	}
}

func TestDecideOneFallsBackToSafeDefault(t *testing.T) {
	completer := &stubCompleter{outputs: []string{"not json, ever"}}
	e := NewEngine(completer, prompt.NewRegistry(), time.Second, 1200)
	bundle := decisionBundle(&entity.Character{ID: "c1", Name: "Maren"})

	d, err := e.decideOne(context.Background(), bundle, bundle.Present[0])
	if err != nil {
		t.Fatalf("decideOne: %v", err)
	}
	if completer.calls != 2 {
		t.Fatalf("expected exactly one retry before fallback, got %d calls", completer.calls)
	}
	if !d.Fallback {
		t.Fatalf("expected safe default decision, got %+v", d)
	}
	if d.Refuses {
		t.Fatalf("safe default must not refuse the player")
	}
	if d.Dialogue != "" || d.Action != "" {
		t.Fatalf("safe default must not put words in the character's mouth: %+v", d)
	}
}

func TestDecideOneRetryGetsStrictNote(t *testing.T) {
	completer := &stubCompleter{err: errors.New("model unavailable")}
	e := NewEngine(completer, prompt.NewRegistry(), time.Second, 1200)
	bundle := decisionBundle(&entity.Character{ID: "c1", Name: "Maren"})

	d, err := e.decideOne(context.Background(), bundle, bundle.Present[0])
	if err != nil {
		t.Fatalf("decideOne: %v", err)
	}
	if !d.Fallback {
		t.Fatalf("expected fallback when every call fails")
	}
	if !strings.Contains(strictRetryNote, "JSON") {
		t.Fatalf("strict retry note should demand JSON output: %q", strictRetryNote)
	}
}
