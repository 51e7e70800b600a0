package validator

import (
	"context"
	"strings"
	"testing"

	"storyforge-api/internal/application/assembler"
	"storyforge-api/internal/domain/entity"
)

func testBundle() *assembler.Bundle {
	return &assembler.Bundle{
		Story:  &entity.Story{ContentRating: entity.ContentRatingTeen},
		Player: &entity.Character{ID: "p1", Name: "Aster", IsPlayer: true},
		Present: []*entity.Character{
			{
				ID:           "c1",
				Name:         "Maren",
				WouldNeverDo: []string{"betray a regular to the harbor authority"},
				SecretKept:   "She paid two dockhands to start the archive fire.",
			},
		},
		Avoidances: map[string][]*entity.CharacterAvoidance{
			"c1": {
				{CharacterID: "c1", Type: "topic", Target: "the archive fire", Severity: entity.AvoidanceSeverityCritical},
				{CharacterID: "c1", Type: "place", Target: "the cellar", Severity: entity.AvoidanceSeverityLow},
			},
		},
	}
}

func TestValidateCleanNarrative(t *testing.T) {
	v := New()
	result := v.Validate(context.Background(), testBundle(), nil,
		"Maren sets the glass down and studies you for a long moment. Rain keeps drumming on the roof.")
	if result.Verdict != entity.VerdictValid {
		t.Fatalf("expected valid verdict, got %s with %d violations", result.Verdict, len(result.Violations))
	}
	if len(result.Violations) != 0 {
		t.Fatalf("expected no violations, got %v", result.Violations)
	}
}

func TestValidatePlayerControl(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "second person speech", text: `You say "I know about the fire" and slam the table.`},
		{name: "second person decision", text: "You decide to trust her and hand over the letter."},
		{name: "player name attribution", text: `Aster says "fine, keep your secrets."`},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(context.Background(), testBundle(), nil, tt.text)
			if result.Verdict != entity.VerdictNeedsRegen {
				t.Fatalf("expected needs_regen, got %s", result.Verdict)
			}
			found := false
			for _, viol := range result.Violations {
				if viol.Check == CheckPlayerControl && viol.Severity == entity.SeverityCritical {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected critical player_control violation, got %v", result.Violations)
			}
		})
	}
}

func TestValidateWouldNeverDo(t *testing.T) {
	v := New()
	result := v.Validate(context.Background(), testBundle(), nil,
		"Maren leans in and offers to betray a regular to the harbor authority if the price is right.")
	if result.Verdict != entity.VerdictNeedsRegen {
		t.Fatalf("expected needs_regen, got %s", result.Verdict)
	}
	if result.Violations[0].Check != CheckHardLimit {
		t.Fatalf("expected hard_limit violation, got %s", result.Violations[0].Check)
	}
	if result.Violations[0].CharacterID != "c1" {
		t.Fatalf("expected violation attributed to c1, got %q", result.Violations[0].CharacterID)
	}
}

func TestValidateAvoidanceTrigger(t *testing.T) {
	v := New()
	decisions := []entity.CharacterDecision{
		{CharacterID: "c1", CharacterName: "Maren", Action: "recounts the night of the archive fire in detail"},
	}
	result := v.Validate(context.Background(), testBundle(), decisions,
		"Maren talks at length, her voice flat.")
	if result.Verdict != entity.VerdictNeedsRegen {
		t.Fatalf("expected needs_regen for triggered critical avoidance, got %s", result.Verdict)
	}

	// 低严重度回避不拦截
	lowDecisions := []entity.CharacterDecision{
		{CharacterID: "c1", CharacterName: "Maren", Action: "glances toward the cellar"},
	}
	result = v.Validate(context.Background(), testBundle(), lowDecisions, "Maren glances away.")
	if result.Verdict != entity.VerdictValid {
		t.Fatalf("low severity avoidance should not force regen, got %s", result.Verdict)
	}
}

func TestValidateVoicePreserved(t *testing.T) {
	v := New()
	decisions := []entity.CharacterDecision{
		{CharacterID: "c1", CharacterName: "Maren", Dialogue: "Whatever you heard about that night, sailor, you heard wrong."},
	}

	// 台词片段保留 → 通过
	result := v.Validate(context.Background(), testBundle(), decisions,
		`Maren shrugs. "Whatever you heard about that night, sailor, you heard wrong."`)
	if result.Verdict != entity.VerdictValid {
		t.Fatalf("expected valid when dialogue preserved, got %v", result.Violations)
	}

	// 台词被替换 → medium 违规但不再生成
	result = v.Validate(context.Background(), testBundle(), decisions,
		"Maren mutters something dismissive and turns away.")
	if result.Verdict != entity.VerdictValid {
		t.Fatalf("medium voice violation should not force regen, got %s", result.Verdict)
	}
	if len(result.Violations) != 1 || result.Violations[0].Check != CheckVoice {
		t.Fatalf("expected one voice violation, got %v", result.Violations)
	}
	if result.Violations[0].Severity != entity.SeverityMedium {
		t.Fatalf("expected medium severity, got %s", result.Violations[0].Severity)
	}
}

func TestValidateFallbackDecisionSkipsVoiceCheck(t *testing.T) {
	v := New()
	decisions := []entity.CharacterDecision{
		{CharacterID: "c1", CharacterName: "Maren", Dialogue: "This dialogue never made it into the scene.", Fallback: true},
	}
	result := v.Validate(context.Background(), testBundle(), decisions, "Maren hesitates, saying nothing.")
	if len(result.Violations) != 0 {
		t.Fatalf("fallback decisions must not trigger voice violations, got %v", result.Violations)
	}
}

func TestValidateMindReading(t *testing.T) {
	v := New()
	result := v.Validate(context.Background(), testBundle(), nil,
		"Maren knows what you're thinking and answers before you ask.")
	if result.Verdict != entity.VerdictNeedsRegen {
		t.Fatalf("expected needs_regen, got %s", result.Verdict)
	}
	if result.Violations[0].Check != CheckKnowledge {
		t.Fatalf("expected knowledge violation, got %s", result.Violations[0].Check)
	}
}

func TestValidateSecretLeak(t *testing.T) {
	v := New()
	result := v.Validate(context.Background(), testBundle(), nil,
		"The truth is simple: she paid two dockhands to start the archive fire, and everyone suspects it.")
	if result.Verdict != entity.VerdictNeedsRegen {
		t.Fatalf("expected needs_regen for leaked secret, got %s", result.Verdict)
	}
}

func TestValidateContentRating(t *testing.T) {
	v := New()
	bundle := testBundle()
	bundle.Story.ContentRating = entity.ContentRatingEveryone
	result := v.Validate(context.Background(), bundle, nil,
		"The fight ends badly; a corpse floats in the harbor by morning.")
	if result.Verdict != entity.VerdictNeedsRegen {
		t.Fatalf("expected needs_regen under everyone rating, got %s", result.Verdict)
	}

	bundle.Story.ContentRating = entity.ContentRatingMature
	result = v.Validate(context.Background(), bundle, nil,
		"The fight ends badly; a corpse floats in the harbor by morning.")
	if result.Verdict != entity.VerdictValid {
		t.Fatalf("mature rating should allow this, got %s", result.Verdict)
	}
}

func TestValidateContentRatingInheritsStricterTiers(t *testing.T) {
	v := New()
	bundle := testBundle()
	bundle.Story.ContentRating = entity.ContentRatingEveryone
	// 青少年级词表对全年龄分级同样生效
	result := v.Validate(context.Background(), bundle, nil,
		"The evening dissolves into graphic sex behind the curtain.")
	if result.Verdict != entity.VerdictNeedsRegen {
		t.Fatalf("teen-tier word must be banned under everyone rating, got %s", result.Verdict)
	}
	found := false
	for _, viol := range result.Violations {
		if viol.Check == CheckRating {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a content rating violation, got %v", result.Violations)
	}
}

func TestCorrectionNotes(t *testing.T) {
	violations := []entity.Violation{
		{Check: CheckPlayerControl, Severity: entity.SeverityCritical, Description: "remove the player's dialogue"},
		{Check: CheckVoice, Severity: entity.SeverityMedium, Description: "keep the given dialogue"},
		{Check: CheckHardLimit, Severity: entity.SeverityHigh, Description: "remove the betrayal"},
	}
	notes := CorrectionNotes(violations)
	if len(notes) != 2 {
		t.Fatalf("expected 2 regen-severity notes, got %d: %v", len(notes), notes)
	}
	for _, n := range notes {
		if strings.Contains(n, "given dialogue") {
			t.Fatalf("medium violations must not produce correction notes: %v", notes)
		}
	}
}

func TestSignificantFragment(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "longest clause", in: "No. Whatever you heard about that night, you heard wrong.", want: "Whatever you heard about that night"},
		{name: "short text dropped", in: "No. Go.", want: ""},
		{name: "empty", in: "", want: ""},
		{name: "single clause", in: "the archive fire was no accident", want: "the archive fire was no accident"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := significantFragment(tt.in); got != tt.want {
				t.Fatalf("significantFragment(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
