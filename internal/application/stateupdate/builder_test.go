package stateupdate

import (
	"context"
	"testing"
	"time"

	"storyforge-api/internal/application/assembler"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/gateway"
	"storyforge-api/internal/workflow/prompt"
)

// analysisStub 按 maxTokens 区分关系分析与记忆提取两种调用
type analysisStub struct {
	relationshipOut string
	memoryOut       string
}

func (s *analysisStub) Complete(_ context.Context, _ gateway.Role, _, _ string, maxTokens int) (string, error) {
	if maxTokens == extractMaxTokens {
		return s.memoryOut, nil
	}
	return s.relationshipOut, nil
}

func builderBundle() *assembler.Bundle {
	c := &entity.Character{ID: "c1", Name: "Maren"}
	return &assembler.Bundle{
		PlaythroughID: "pt-1",
		UserAction:    "I ask about her brother.",
		Present:       []*entity.Character{c},
		Relationships: map[string]*entity.Relationship{
			"c1": {CharacterID: "c1", TargetCharacterID: "player", Trust: 0.4, Affection: 0.5, Familiarity: 0.2},
		},
		States: map[string]*entity.CharacterState{
			"c1": {CharacterID: "c1", CurrentEmotion: "guarded", EmotionIntensity: 0.5, EmotionStartedAt: time.Now()},
		},
		AssembledAt: time.Now(),
	}
}

func TestBuildDerivesEffects(t *testing.T) {
	stub := &analysisStub{
		relationshipOut: `{"trust_change":-0.1,"affection_change":0.05,"familiarity_change":0.1,"reason":"the question touched a wound"}`,
		memoryOut:       `{"memories":[{"content":"The stranger asked about my brother.","importance":6,"emotional_tone":"grief"}]}`,
	}
	b := NewBuilder(stub, prompt.NewRegistry(), time.Second)

	bundle := builderBundle()
	decisions := []entity.CharacterDecision{
		{CharacterID: "c1", CharacterName: "Maren", Dialogue: "He's gone.", Emotion: "heartbroken"},
	}

	effects := b.Build(context.Background(), "turn-1", bundle, decisions, "Maren sets down the cloth.", nil)

	if effects.TurnID != "turn-1" || effects.PlaythroughID != "pt-1" {
		t.Fatalf("effects not bound to turn: %+v", effects)
	}
	if len(effects.RelationshipDeltas) != 1 {
		t.Fatalf("expected 1 relationship delta, got %d", len(effects.RelationshipDeltas))
	}
	delta := effects.RelationshipDeltas[0]
	if delta.TargetCharacterID != "player" || delta.TrustChange != -0.1 {
		t.Fatalf("unexpected delta %+v", delta)
	}
	if delta.Reason != "the question touched a wound" {
		t.Fatalf("unexpected reason %q", delta.Reason)
	}

	if len(effects.NewMemories) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(effects.NewMemories))
	}
	mem := effects.NewMemories[0]
	if mem.CharacterID != "c1" || mem.Importance != 6 {
		t.Fatalf("unexpected memory %+v", mem)
	}
	if mem.EmotionalValence != -0.6 || mem.EmotionalIntensity != 0.6 {
		t.Fatalf("grief tone should be negative and intense: %+v", mem)
	}

	if len(effects.StateTransitions) != 1 {
		t.Fatalf("expected 1 state transition, got %d", len(effects.StateTransitions))
	}
	tr := effects.StateTransitions[0]
	if tr.NewEmotion != "heartbroken" || tr.EmotionClass != entity.EmotionClassDeep {
		t.Fatalf("heartbroken should classify as a deep emotion: %+v", tr)
	}
}

func TestBuildToleratesGarbageAnalysis(t *testing.T) {
	stub := &analysisStub{relationshipOut: "I cannot answer that.", memoryOut: "nope"}
	b := NewBuilder(stub, prompt.NewRegistry(), time.Second)

	effects := b.Build(context.Background(), "turn-2", builderBundle(), nil, "narrative", nil)
	if len(effects.RelationshipDeltas) != 0 || len(effects.NewMemories) != 0 {
		t.Fatalf("garbage analysis must yield no effects: %+v", effects)
	}
}

func TestBuildDropsEmptySceneDelta(t *testing.T) {
	stub := &analysisStub{relationshipOut: "{}", memoryOut: "{}"}
	b := NewBuilder(stub, prompt.NewRegistry(), time.Second)

	effects := b.Build(context.Background(), "turn-3", builderBundle(), nil, "narrative", &entity.SceneDelta{})
	if effects.SceneDelta != nil {
		t.Fatalf("empty scene delta should be dropped")
	}

	moved := &entity.SceneDelta{LocationChanged: true, NewLocation: "the quay"}
	effects = b.Build(context.Background(), "turn-4", builderBundle(), nil, "narrative", moved)
	if effects.SceneDelta == nil || effects.SceneDelta.NewLocation != "the quay" {
		t.Fatalf("real scene delta must be kept: %+v", effects.SceneDelta)
	}
}

func TestStateTransitionsSkipFallbackAndUnchanged(t *testing.T) {
	b := NewBuilder(&analysisStub{}, prompt.NewRegistry(), time.Second)
	bundle := builderBundle()

	decisions := []entity.CharacterDecision{
		{CharacterID: "c1", Emotion: "angry", Fallback: true},
		{CharacterID: "c1", Emotion: "Guarded"},
		{CharacterID: "c1", Emotion: ""},
	}
	if got := b.stateTransitions(bundle, decisions); len(got) != 0 {
		t.Fatalf("fallback, unchanged and empty emotions must not transition: %+v", got)
	}

	decisions = []entity.CharacterDecision{{CharacterID: "c1", Emotion: "Furious"}}
	got := b.stateTransitions(bundle, decisions)
	if len(got) != 1 || got[0].NewEmotion != "furious" {
		t.Fatalf("expected lowercased transition, got %+v", got)
	}
}

func TestClassifyEmotion(t *testing.T) {
	tests := []struct {
		emotion string
		want    entity.EmotionClass
	}{
		{"grief", entity.EmotionClassDeep},
		{" Betrayed ", entity.EmotionClassDeep},
		{"startled", entity.EmotionClassAcute},
		{"", entity.EmotionClassAcute},
	}
	for _, tt := range tests {
		if got := classifyEmotion(tt.emotion); got != tt.want {
			t.Fatalf("classifyEmotion(%q) = %q, want %q", tt.emotion, got, tt.want)
		}
	}
}

func TestToneValence(t *testing.T) {
	tests := []struct {
		tone          string
		wantValence   float64
		wantIntensity float64
	}{
		{"joy", 0.6, 0.6},
		{"GRIEF", -0.6, 0.6},
		{"neutral", 0, 0.2},
		{"", 0, 0.2},
	}
	for _, tt := range tests {
		if got := toneValence(tt.tone); got != tt.wantValence {
			t.Fatalf("toneValence(%q) = %v, want %v", tt.tone, got, tt.wantValence)
		}
		if got := toneIntensity(tt.tone); got != tt.wantIntensity {
			t.Fatalf("toneIntensity(%q) = %v, want %v", tt.tone, got, tt.wantIntensity)
		}
	}
}

func TestDescribeReaction(t *testing.T) {
	tests := []struct {
		name string
		d    entity.CharacterDecision
		want string
	}{
		{"fallback", entity.CharacterDecision{Fallback: true, Action: "hidden"}, "no notable reaction"},
		{"empty", entity.CharacterDecision{}, "no notable reaction"},
		{
			"refusal with dialogue",
			entity.CharacterDecision{Refuses: true, Dialogue: "No."},
			"refuses; says: No.",
		},
		{
			"action and dialogue",
			entity.CharacterDecision{Action: "wipes the bar", Dialogue: "Storm's coming."},
			"wipes the bar; says: Storm's coming.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeReaction(tt.d); got != tt.want {
				t.Fatalf("describeReaction() = %q, want %q", got, tt.want)
			}
		})
	}
}
