package prompt

import (
	"context"
	"strings"
	"testing"
)

func TestRenderCharacterDecision(t *testing.T) {
	r := NewRegistry()
	vars := map[string]any{
		"character_name":     "Maren",
		"personality":        "guarded innkeeper",
		"core_values":        "loyalty",
		"core_fears":         "exposure",
		"would_never_do":     "discuss the archive fire",
		"would_always_do":    "protect her regulars",
		"decision_style":     "cautious",
		"verbal_patterns":    "short sentences",
		"current_emotion":    "wary",
		"emotion_intensity":  "0.60",
		"goals":              "(none)",
		"beliefs":            "- the player is hiding something (conviction 0.7)",
		"avoidances":         "- avoids topic \"the archive fire\" [critical]",
		"trust":              "0.40",
		"affection":          "0.50",
		"familiarity":        "0.20",
		"memories":           "(no relevant memories)",
		"scene_description":  "the taproom",
		"present_characters": "Aster (player), Maren",
		"recent_history":     "",
		"player_action":      "I ask about the fire.",
		"correction_note":    "",
	}

	system, user, err := r.Render(context.Background(), PromptCharacterDecisionV1, vars)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if system == "" || user == "" {
		t.Fatalf("rendered prompt has empty parts: system=%d user=%d", len(system), len(user))
	}
	if !strings.Contains(user, "Maren") || !strings.Contains(user, "I ask about the fire.") {
		t.Fatalf("user prompt missing substituted variables:\n%s", user)
	}
	if strings.Contains(system+user, "{character_name}") {
		t.Fatalf("unsubstituted placeholder left in prompt")
	}
}

func TestChatTemplateCached(t *testing.T) {
	r := NewRegistry()
	first, err := r.ChatTemplate(PromptNarratorGenV1)
	if err != nil {
		t.Fatalf("ChatTemplate: %v", err)
	}
	second, err := r.ChatTemplate(PromptNarratorGenV1)
	if err != nil {
		t.Fatalf("ChatTemplate (cached): %v", err)
	}
	if first != second {
		t.Fatalf("template should be served from cache")
	}
}

func TestUnknownPromptID(t *testing.T) {
	r := NewRegistry()
	if _, err := r.ChatTemplate(PromptID("nope_v9")); err == nil {
		t.Fatalf("expected error for unknown prompt id")
	}
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	if _, err := r.ChatTemplate(PromptSceneChangeV1); err == nil {
		t.Fatalf("nil registry must error, not panic")
	}
}

func TestAllPromptIDsResolve(t *testing.T) {
	r := NewRegistry()
	for _, id := range []PromptID{
		PromptCharacterDecisionV1,
		PromptNarratorGenV1,
		PromptSceneChangeV1,
		PromptRelationshipAnalysisV1,
		PromptMemoryExtractV1,
	} {
		if _, err := r.ChatTemplate(id); err != nil {
			t.Fatalf("prompt %s failed to load: %v", id, err)
		}
	}
}
