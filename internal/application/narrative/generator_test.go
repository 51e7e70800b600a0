package narrative

import (
	"context"
	"strings"
	"testing"
	"time"

	"storyforge-api/internal/application/assembler"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/gateway"
	"storyforge-api/internal/workflow/prompt"
)

type stubCompleter struct {
	output string
	user   string
}

func (s *stubCompleter) Complete(_ context.Context, _ gateway.Role, _, user string, _ int) (string, error) {
	s.user = user
	return s.output, nil
}

func narrativeBundle() *assembler.Bundle {
	return &assembler.Bundle{
		PlaythroughID: "pt-1",
		UserAction:    "I push open the tavern door.",
		Story: &entity.Story{
			Description:   "A port town with a burned archive.",
			ContentRating: entity.ContentRatingTeen,
		},
		Scene: &entity.SceneState{
			Location:  "The Gull and Anchor",
			TimeOfDay: "evening",
			Mood:      "uneasy",
			Summary:   "A low-beamed taproom thick with pipe smoke.",
		},
		AssembledAt: time.Now(),
	}
}

func TestGenerateTrimsOutput(t *testing.T) {
	completer := &stubCompleter{output: "\n  The door creaks open onto lamplight.  \n"}
	g := NewGenerator(completer, prompt.NewRegistry(), time.Second)

	text, err := g.Generate(context.Background(), narrativeBundle(), nil, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "The door creaks open onto lamplight." {
		t.Fatalf("unexpected narrative %q", text)
	}
}

func TestGenerateRejectsEmptyOutput(t *testing.T) {
	completer := &stubCompleter{output: "   \n  "}
	g := NewGenerator(completer, prompt.NewRegistry(), time.Second)

	if _, err := g.Generate(context.Background(), narrativeBundle(), nil, nil); err == nil {
		t.Fatalf("expected error for blank narrative output")
	}
}

func TestGenerateIncludesCorrections(t *testing.T) {
	completer := &stubCompleter{output: "A quieter retelling."}
	g := NewGenerator(completer, prompt.NewRegistry(), time.Second)

	notes := []string{
		"narrative puts words in the player's mouth",
		"Maren would never discuss the night of the archive fire",
	}
	if _, err := g.Generate(context.Background(), narrativeBundle(), nil, notes); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, note := range notes {
		if !strings.Contains(completer.user, note) {
			t.Fatalf("rendered prompt missing correction %q:\n%s", note, completer.user)
		}
	}
}

func TestRenderDecisions(t *testing.T) {
	tests := []struct {
		name      string
		decisions []entity.CharacterDecision
		want      string
	}{
		{
			name: "no decisions",
			want: "(no other characters react)",
		},
		{
			name: "action dialogue and emotion",
			decisions: []entity.CharacterDecision{
				{CharacterName: "Maren", Action: "wipes down the bar", Dialogue: "Storm's coming.", Emotion: "wary"},
			},
			want: `- Maren: wipes down the bar; says: "Storm's coming."; feeling wary`,
		},
		{
			name: "refusal is labelled",
			decisions: []entity.CharacterDecision{
				{CharacterName: "Maren", Dialogue: "I don't talk about that.", Refuses: true},
			},
			want: `- Maren: refuses. says: "I don't talk about that."`,
		},
		{
			name: "fallback shows no reaction",
			decisions: []entity.CharacterDecision{
				{CharacterName: "Tobias", Fallback: true},
			},
			want: "- Tobias: gives no notable reaction",
		},
		{
			name: "multiple characters keep order",
			decisions: []entity.CharacterDecision{
				{CharacterName: "Maren", Action: "nods"},
				{CharacterName: "Tobias", Fallback: true},
			},
			want: "- Maren: nods\n- Tobias: gives no notable reaction",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderDecisions(tt.decisions); got != tt.want {
				t.Fatalf("renderDecisions() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFallbackNarration(t *testing.T) {
	b := narrativeBundle()
	text := FallbackNarration(b)
	if !strings.Contains(text, "The Gull and Anchor") {
		t.Fatalf("fallback should name the scene location: %q", text)
	}

	text = FallbackNarration(nil)
	if !strings.Contains(text, "the scene") {
		t.Fatalf("nil bundle fallback should use a generic location: %q", text)
	}
}
