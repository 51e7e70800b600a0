package turn

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"storyforge-api/internal/application/assembler"
	"storyforge-api/internal/application/narrative"
	"storyforge-api/internal/application/validator"
	"storyforge-api/internal/config"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/gateway"
	"storyforge-api/internal/domain/repository"
	"storyforge-api/internal/workflow/prompt"
)

type seqCompleter struct {
	outputs []string
	calls   int
}

func (s *seqCompleter) Complete(context.Context, gateway.Role, string, string, int) (string, error) {
	s.calls++
	idx := s.calls - 1
	if idx >= len(s.outputs) {
		idx = len(s.outputs) - 1
	}
	return s.outputs[idx], nil
}

type fakePlaythroughRepo struct {
	playthroughs map[string]*entity.Playthrough
}

func (f *fakePlaythroughRepo) Create(context.Context, *entity.Playthrough) error { return nil }
func (f *fakePlaythroughRepo) GetByID(_ context.Context, id string) (*entity.Playthrough, error) {
	return f.playthroughs[id], nil
}
func (f *fakePlaythroughRepo) Update(context.Context, *entity.Playthrough) error { return nil }
func (f *fakePlaythroughRepo) ListByStory(context.Context, string, repository.Pagination) (*repository.PagedResult[*entity.Playthrough], error) {
	return nil, errors.New("not implemented")
}

type fakeSessionRepo struct {
	sessions map[string]*entity.Session
}

func (f *fakeSessionRepo) Create(context.Context, *entity.Session) error { return nil }
func (f *fakeSessionRepo) GetByID(_ context.Context, id string) (*entity.Session, error) {
	return f.sessions[id], nil
}

func pipelineForIntake() *Pipeline {
	playthroughs := &fakePlaythroughRepo{playthroughs: map[string]*entity.Playthrough{
		"pt-active": {ID: "pt-active", Status: entity.PlaythroughStatusActive},
		"pt-done":   {ID: "pt-done", Status: entity.PlaythroughStatusCompleted},
	}}
	sessions := &fakeSessionRepo{sessions: map[string]*entity.Session{
		"s-1": {ID: "s-1", PlaythroughID: "pt-active"},
		"s-2": {ID: "s-2", PlaythroughID: "pt-other"},
	}}
	return NewPipeline(nil, nil, nil, nil, nil, nil, nil,
		nil, sessions, nil, playthroughs, config.PipelineConfig{})
}

func TestIntake(t *testing.T) {
	p := pipelineForIntake()

	tests := []struct {
		name          string
		playthroughID string
		sessionID     string
		action        string
		want          string
		wantErr       bool
	}{
		{"valid action is trimmed", "pt-active", "s-1", "  I open the door.  ", "I open the door.", false},
		{"empty action", "pt-active", "s-1", "   ", "", true},
		{"action too long", "pt-active", "s-1", strings.Repeat("x", maxUserActionRunes+1), "", true},
		{"inactive playthrough", "pt-done", "s-1", "hello", "", true},
		{"unknown playthrough", "pt-missing", "s-1", "hello", "", true},
		{"session of another playthrough", "pt-active", "s-2", "hello", "", true},
		{"unknown session", "pt-active", "s-missing", "hello", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.intake(context.Background(), tt.playthroughID, tt.sessionID, tt.action)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected intake error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("intake: %v", err)
			}
			if got != tt.want {
				t.Fatalf("intake action = %q, want %q", got, tt.want)
			}
		})
	}
}

func validationBundle() *assembler.Bundle {
	return &assembler.Bundle{
		PlaythroughID: "pt-1",
		UserAction:    "I look around.",
		Story:         &entity.Story{ContentRating: entity.ContentRatingMature},
		Player:        &entity.Character{ID: "p1", Name: "Aster", IsPlayer: true},
		Scene:         &entity.SceneState{Location: "the quay"},
		AssembledAt:   time.Now(),
	}
}

func generationPipeline(completer gateway.Completer) *Pipeline {
	narrator := narrative.NewGenerator(completer, prompt.NewRegistry(), time.Second)
	return NewPipeline(nil, nil, narrator, validator.New(), nil, nil, nil,
		nil, nil, nil, nil, config.PipelineConfig{})
}

func TestGenerateValidatedCleanFirstPass(t *testing.T) {
	completer := &seqCompleter{outputs: []string{"The gulls wheel over the quay."}}
	p := generationPipeline(completer)

	text, verdict, violations, regens, err := p.generateValidated(
		context.Background(), validationBundle(), nil, entity.JSONMap{})
	if err != nil {
		t.Fatalf("generateValidated: %v", err)
	}
	if verdict != entity.VerdictValid || regens != 0 {
		t.Fatalf("clean narrative should pass first try: verdict=%q regens=%d", verdict, regens)
	}
	if len(violations) != 0 {
		t.Fatalf("unexpected violations %+v", violations)
	}
	if text != "The gulls wheel over the quay." {
		t.Fatalf("unexpected narrative %q", text)
	}
}

func TestGenerateValidatedRecoversAfterRegen(t *testing.T) {
	completer := &seqCompleter{outputs: []string{
		`"Fine," you say, and turn away.`,
		"Aster turns away. The harbor is quiet.",
	}}
	p := generationPipeline(completer)

	text, verdict, _, regens, err := p.generateValidated(
		context.Background(), validationBundle(), nil, entity.JSONMap{})
	if err != nil {
		t.Fatalf("generateValidated: %v", err)
	}
	if verdict != entity.VerdictValid {
		t.Fatalf("expected recovery after one regeneration, got verdict %q", verdict)
	}
	if regens != 1 {
		t.Fatalf("expected 1 regeneration, got %d", regens)
	}
	if completer.calls != 2 {
		t.Fatalf("expected 2 generation calls, got %d", completer.calls)
	}
	if text == "" || strings.Contains(strings.ToLower(text), "you say") {
		t.Fatalf("released narrative still violates player control: %q", text)
	}
}

func TestGenerateValidatedCeilingReleasesFallback(t *testing.T) {
	completer := &seqCompleter{outputs: []string{`You decide to leave without a word.`}}
	p := generationPipeline(completer)

	text, verdict, violations, regens, err := p.generateValidated(
		context.Background(), validationBundle(), nil, entity.JSONMap{})
	if err != nil {
		t.Fatalf("generateValidated: %v", err)
	}
	if verdict != entity.VerdictRejected {
		t.Fatalf("exhausted ceiling must reject, got %q", verdict)
	}
	if regens != 2 {
		t.Fatalf("expected regens at the ceiling, got %d", regens)
	}
	if completer.calls != 3 {
		t.Fatalf("ceiling of 2 means 3 generation attempts, got %d", completer.calls)
	}
	if !strings.Contains(text, "the quay") {
		t.Fatalf("fallback narration should reference the scene location: %q", text)
	}
	if len(violations) == 0 {
		t.Fatalf("rejected turn should carry the last violations")
	}
}

func TestStageRetriesNonCancelErrors(t *testing.T) {
	timings := entity.JSONMap{}
	calls := 0
	got, err := stage(context.Background(), timings, "context", time.Second, 1,
		func(context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("transient")
			}
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if got != "ok" || calls != 2 {
		t.Fatalf("expected one retry then success, got %q after %d calls", got, calls)
	}
	if _, ok := timings["context"]; !ok {
		t.Fatalf("stage timing not recorded: %v", timings)
	}
}

func TestStageDoesNotRetryAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := stage(ctx, entity.JSONMap{}, "decisions", time.Second, 3,
		func(context.Context) (int, error) {
			calls++
			cancel()
			return 0, context.Canceled
		})
	if err == nil {
		t.Fatalf("expected error from cancelled stage")
	}
	if calls != 1 {
		t.Fatalf("cancelled stage must not retry, got %d calls", calls)
	}
}

func TestStageExhaustsRetries(t *testing.T) {
	calls := 0
	_, err := stage(context.Background(), entity.JSONMap{}, "generate", time.Second, 1,
		func(context.Context) (string, error) {
			calls++
			return "", errors.New("model unavailable")
		})
	if err == nil || !strings.Contains(err.Error(), "stage generate") {
		t.Fatalf("expected wrapped stage error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("retries=1 means 2 attempts, got %d", calls)
	}
}

type capturingPublisher struct {
	published []*entity.TurnEffects
	err       error
}

func (f *capturingPublisher) PublishTurnEffects(_ context.Context, effects *entity.TurnEffects) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.published = append(f.published, effects)
	return "1756700000000-0", nil
}

func TestPublishEffects(t *testing.T) {
	pub := &capturingPublisher{}
	p := NewPipeline(nil, nil, nil, nil, nil, nil, pub, nil, nil, nil, nil, config.PipelineConfig{})

	p.publishEffects(context.Background(), "turn-1", nil)
	if len(pub.published) != 0 {
		t.Fatalf("nil effects must not be published")
	}

	effects := &entity.TurnEffects{TurnID: "turn-1", PlaythroughID: "pt-1"}
	p.publishEffects(context.Background(), "turn-1", effects)
	if len(pub.published) != 1 || pub.published[0].TurnID != "turn-1" {
		t.Fatalf("effects not published: %+v", pub.published)
	}

	// 投递失败只记日志, 回合结果已释放
	pub.err = errors.New("stream unavailable")
	p.publishEffects(context.Background(), "turn-1", effects)
	if len(pub.published) != 1 {
		t.Fatalf("failed publish must not append, got %d", len(pub.published))
	}
}
