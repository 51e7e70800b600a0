package assembler

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"storyforge-api/internal/config"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/repository"
	apperrors "storyforge-api/pkg/errors"
)

type fakeMemoryRepo struct {
	memories []*entity.CharacterMemory
	recalled []string
}

func (f *fakeMemoryRepo) Create(context.Context, *entity.CharacterMemory) error { return nil }
func (f *fakeMemoryRepo) GetByID(context.Context, string) (*entity.CharacterMemory, error) {
	return nil, nil
}
func (f *fakeMemoryRepo) GetByIDs(_ context.Context, ids []string) ([]*entity.CharacterMemory, error) {
	byID := make(map[string]*entity.CharacterMemory, len(f.memories))
	for _, m := range f.memories {
		byID[m.ID] = m
	}
	out := make([]*entity.CharacterMemory, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}
func (f *fakeMemoryRepo) ListByCharacter(_ context.Context, _ string, limit int) ([]*entity.CharacterMemory, error) {
	if limit > len(f.memories) {
		limit = len(f.memories)
	}
	return f.memories[:limit], nil
}
func (f *fakeMemoryRepo) MarkRecalled(_ context.Context, ids []string) error {
	f.recalled = append(f.recalled, ids...)
	return nil
}

type fakeVectorStore struct {
	hits []repository.VectorHit
}

func (f *fakeVectorStore) Upsert(context.Context, string, string, string, []float32) error {
	return nil
}
func (f *fakeVectorStore) Search(context.Context, string, string, []float32, int) ([]repository.VectorHit, error) {
	return f.hits, nil
}
func (f *fakeVectorStore) DropPlaythrough(context.Context, string) error { return nil }

func testContextConfig() config.ContextConfig {
	return config.ContextConfig{
		TokenBudgetPerCharacter: 1200,
		HistoryTurns:            10,
		MemoryTopK:              3,
		GoalTopK:                3,
		MemoryRecencyHalfLife:   168 * time.Hour,
	}
}

func memoryAt(id string, importance int, occurred time.Time) *entity.CharacterMemory {
	return &entity.CharacterMemory{
		ID:         id,
		Content:    "memory " + id,
		Importance: importance,
		OccurredAt: occurred,
	}
}

func TestRankMemoriesRecencyFallback(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeMemoryRepo{memories: []*entity.CharacterMemory{
		memoryAt("m-old", 10, now.Add(-336*time.Hour)),
		memoryAt("m-new", 10, now.Add(-1*time.Hour)),
		memoryAt("m-weak", 2, now.Add(-1*time.Hour)),
	}}
	a := New(Deps{Memories: repo, Vectors: &fakeVectorStore{}}, nil, testContextConfig(), config.EmotionConfig{})

	scored, err := a.rankMemories(context.Background(), "pt-1", "c1", nil, now)
	if err != nil {
		t.Fatalf("rankMemories: %v", err)
	}
	if len(scored) != 3 {
		t.Fatalf("expected 3 scored memories, got %d", len(scored))
	}
	if scored[0].Memory.ID != "m-new" {
		t.Fatalf("fresh important memory should rank first, got %q", scored[0].Memory.ID)
	}
	// 两周岁 = 2 个半衰期, 重要度 10 的旧记忆得分 0.25
	if math.Abs(scored[1].Relevance-0.25) > 1e-6 || scored[1].Memory.ID != "m-old" {
		t.Fatalf("decayed memory score wrong: %q %v", scored[1].Memory.ID, scored[1].Relevance)
	}
	if len(repo.recalled) != 3 {
		t.Fatalf("ranked memories should be marked recalled, got %v", repo.recalled)
	}
}

func TestRankMemoriesUsesVectorRelevance(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeMemoryRepo{memories: []*entity.CharacterMemory{
		memoryAt("m-relevant", 5, now),
		memoryAt("m-irrelevant", 5, now),
	}}
	vectors := &fakeVectorStore{hits: []repository.VectorHit{
		{MemoryID: "m-relevant", Score: 0.9},
		{MemoryID: "m-irrelevant", Score: 0.1},
	}}
	a := New(Deps{Memories: repo, Vectors: vectors}, nil, testContextConfig(), config.EmotionConfig{})

	scored, err := a.rankMemories(context.Background(), "pt-1", "c1", []float32{0.1, 0.2}, now)
	if err != nil {
		t.Fatalf("rankMemories: %v", err)
	}
	if len(scored) != 2 {
		t.Fatalf("expected 2 scored memories, got %d", len(scored))
	}
	if scored[0].Memory.ID != "m-relevant" {
		t.Fatalf("semantic relevance should dominate at equal importance and age, got %q", scored[0].Memory.ID)
	}
}

func TestRankMemoriesDeterministicTieBreak(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeMemoryRepo{memories: []*entity.CharacterMemory{
		memoryAt("m-b", 5, now),
		memoryAt("m-a", 5, now),
		memoryAt("m-c", 5, now),
	}}
	a := New(Deps{Memories: repo, Vectors: &fakeVectorStore{}}, nil, testContextConfig(), config.EmotionConfig{})

	scored, err := a.rankMemories(context.Background(), "pt-1", "c1", nil, now)
	if err != nil {
		t.Fatalf("rankMemories: %v", err)
	}
	ids := []string{scored[0].Memory.ID, scored[1].Memory.ID, scored[2].Memory.ID}
	if ids[0] != "m-a" || ids[1] != "m-b" || ids[2] != "m-c" {
		t.Fatalf("equal scores must break ties by memory ID: %v", ids)
	}
}

func TestRankMemoriesHonorsTopK(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeMemoryRepo{}
	for i := 0; i < 9; i++ {
		repo.memories = append(repo.memories, memoryAt(string(rune('a'+i)), 5, now))
	}
	a := New(Deps{Memories: repo, Vectors: &fakeVectorStore{}}, nil, testContextConfig(), config.EmotionConfig{})

	scored, err := a.rankMemories(context.Background(), "pt-1", "c1", nil, now)
	if err != nil {
		t.Fatalf("rankMemories: %v", err)
	}
	if len(scored) != 3 {
		t.Fatalf("expected topK=3 memories, got %d", len(scored))
	}
}

func TestTriggeredAvoidances(t *testing.T) {
	avoidances := []*entity.CharacterAvoidance{
		{ID: "a1", Target: "the archive fire"},
		{ID: "a2", Target: "her brother"},
		{ID: "a3", Target: ""},
	}

	got := triggeredAvoidances(avoidances, "I ask about the Archive Fire.", "")
	if len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("expected only the archive fire avoidance, got %+v", got)
	}

	got = triggeredAvoidances(avoidances, "I wave hello.", "a portrait of her brother hangs here")
	if len(got) != 1 || got[0].ID != "a2" {
		t.Fatalf("scene description should trigger avoidances too, got %+v", got)
	}

	if got = triggeredAvoidances(avoidances, "I order a drink.", "the taproom"); got != nil {
		t.Fatalf("no target present, expected nil, got %+v", got)
	}
	if got = triggeredAvoidances(nil, "anything", ""); got != nil {
		t.Fatalf("empty avoidance list should return nil")
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		s    string
		want int
	}{
		{"", 1},
		{"abcd", 2},
		{"abcdefg", 2},
		{"abcdefgh", 3},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.s); got != tt.want {
			t.Fatalf("EstimateTokens(%q) = %d, want %d", tt.s, got, tt.want)
		}
	}
}

func TestTruncateToTokens(t *testing.T) {
	long := "0123456789abcdef"
	if got := truncateToTokens(long, 2); len([]rune(got)) > 8 {
		t.Fatalf("2-token budget should keep at most 8 runes, got %q", got)
	}
	if got := truncateToTokens(long, 0); got != "" {
		t.Fatalf("zero budget must yield empty text, got %q", got)
	}
	if got := truncateToTokens("short", 100); got != "short" {
		t.Fatalf("under budget text must be unchanged, got %q", got)
	}
}

func TestBundleTextHelpers(t *testing.T) {
	b := &Bundle{
		Player:  &entity.Character{ID: "p1", Name: "Aster"},
		Present: []*entity.Character{{ID: "c1", Name: "Maren"}},
		Scene: &entity.SceneState{
			Location: "The Gull and Anchor",
			Weather:  "rain",
			Mood:     "uneasy",
			Summary:  "Low beams, pipe smoke.",
		},
		History: []*entity.ConversationMessage{
			{Role: entity.RoleUser, Content: "I step inside."},
			{Role: entity.RoleNarrator, Content: "The rain follows you in."},
		},
		Goals: map[string][]*entity.CharacterGoal{
			"c1": {{Type: entity.GoalTypeLongTerm, Priority: 1, Description: "keep the ledger buried"}},
		},
	}

	if got := b.PresentNames(); got != "Aster (player), Maren" {
		t.Fatalf("PresentNames() = %q", got)
	}
	if got := b.SceneDescription(); got != "The Gull and Anchor, rain, uneasy. Low beams, pipe smoke." {
		t.Fatalf("SceneDescription() = %q", got)
	}
	history := b.HistoryText(200)
	if history != "Player: I step inside.\nNarrator: The rain follows you in.\n" {
		t.Fatalf("HistoryText() = %q", history)
	}
	goals := b.GoalsText("c1")
	if goals != "- [long_term, priority 1] keep the ledger buried" {
		t.Fatalf("GoalsText() = %q", goals)
	}
	if got := b.GoalsText("unknown"); got != "(none)" {
		t.Fatalf("missing goals should read (none), got %q", got)
	}
	if got := b.MemoriesText("unknown", 100); got != "(no relevant memories)" {
		t.Fatalf("missing memories placeholder wrong: %q", got)
	}
}

func TestDecisionVarsZeroBudgetDropsHistoryAndMemories(t *testing.T) {
	c := &entity.Character{ID: "c1", Name: "Maren", Description: "innkeeper"}
	b := &Bundle{
		UserAction: "I ask about the ledger.",
		Present:    []*entity.Character{c},
		History: []*entity.ConversationMessage{
			{Role: entity.RoleUser, Content: "earlier words"},
		},
		Memories: map[string][]entity.ScoredMemory{
			"c1": {{Memory: &entity.CharacterMemory{ID: "m1", Content: "a long memory"}}},
		},
		AssembledAt: time.Now(),
	}

	vars := b.DecisionVars(c, 1)
	if vars["recent_history"] != "" {
		t.Fatalf("over budget history should be dropped, got %q", vars["recent_history"])
	}
	if vars["memories"] != "" {
		t.Fatalf("over budget memories should be dropped, got %q", vars["memories"])
	}

	vars = b.DecisionVars(c, 4000)
	if vars["recent_history"] == "" || vars["memories"] == "" {
		t.Fatalf("generous budget should keep history and memories")
	}
}

func TestDecisionVarsCarryBeliefsAndAvoidances(t *testing.T) {
	c := &entity.Character{ID: "c1", Name: "Maren", Description: "innkeeper"}
	b := &Bundle{
		UserAction: "I ask about the ledger.",
		Present:    []*entity.Character{c},
		Beliefs: map[string][]*entity.CharacterBelief{
			"c1": {{Statement: "the player works for the harbor authority", Strength: 0.7}},
		},
		Avoidances: map[string][]*entity.CharacterAvoidance{
			"c1": {{Type: "topic", Target: "the archive fire", Severity: entity.AvoidanceSeverityCritical, Manifestation: "changes the subject"}},
		},
		History: []*entity.ConversationMessage{
			{Role: entity.RoleUser, Content: "earlier words"},
		},
		AssembledAt: time.Now(),
	}

	// 信念与回避属于固定块, 预算再紧也不截断
	vars := b.DecisionVars(c, 1)
	beliefs, _ := vars["beliefs"].(string)
	if !strings.Contains(beliefs, "harbor authority") || !strings.Contains(beliefs, "0.7") {
		t.Fatalf("beliefs missing from decision vars: %q", beliefs)
	}
	avoidances, _ := vars["avoidances"].(string)
	if !strings.Contains(avoidances, "the archive fire") || !strings.Contains(avoidances, "critical") {
		t.Fatalf("avoidances missing from decision vars: %q", avoidances)
	}
	if !strings.Contains(avoidances, "changes the subject") {
		t.Fatalf("manifestation missing from avoidances: %q", avoidances)
	}
	if vars["recent_history"] != "" {
		t.Fatalf("tight budget should still drop history, got %q", vars["recent_history"])
	}

	if got := b.BeliefsText("unknown"); got != "(none)" {
		t.Fatalf("missing beliefs should read (none), got %q", got)
	}
	if got := b.AvoidancesText("unknown"); got != "(none)" {
		t.Fatalf("missing avoidances should read (none), got %q", got)
	}
}

type fakeSceneRoster struct {
	present []*entity.SceneCharacter
}

func (f *fakeSceneRoster) Create(context.Context, *entity.SceneState) error { return nil }
func (f *fakeSceneRoster) GetByPlaythrough(context.Context, string) (*entity.SceneState, error) {
	return nil, nil
}
func (f *fakeSceneRoster) Update(context.Context, *entity.SceneState) error { return nil }
func (f *fakeSceneRoster) ListPresent(context.Context, string) ([]*entity.SceneCharacter, error) {
	return f.present, nil
}
func (f *fakeSceneRoster) AddCharacter(context.Context, *entity.SceneCharacter) error { return nil }
func (f *fakeSceneRoster) RemoveCharacter(context.Context, string, string) error      { return nil }
func (f *fakeSceneRoster) UpdateCharacter(context.Context, *entity.SceneCharacter) error {
	return nil
}

type fakeRosterCharacters struct {
	byID map[string]*entity.Character
}

func (f *fakeRosterCharacters) Create(context.Context, *entity.Character) error { return nil }
func (f *fakeRosterCharacters) GetByID(context.Context, string) (*entity.Character, error) {
	return nil, nil
}
func (f *fakeRosterCharacters) ListTemplatesByStory(context.Context, string) ([]*entity.Character, error) {
	return nil, nil
}
func (f *fakeRosterCharacters) ListByPlaythrough(context.Context, string) ([]*entity.Character, error) {
	return nil, nil
}
func (f *fakeRosterCharacters) GetByIDs(_ context.Context, ids []string) ([]*entity.Character, error) {
	out := make([]*entity.Character, len(ids))
	for i, id := range ids {
		out[i] = f.byID[id]
	}
	return out, nil
}
func (f *fakeRosterCharacters) GetPlayer(context.Context, string) (*entity.Character, error) {
	return nil, nil
}

func TestLoadPresentExcludesPlayer(t *testing.T) {
	a := New(Deps{
		Scenes: &fakeSceneRoster{present: []*entity.SceneCharacter{
			{SceneID: "sc-1", CharacterID: "player-1"},
			{SceneID: "sc-1", CharacterID: "c1"},
		}},
		Characters: &fakeRosterCharacters{byID: map[string]*entity.Character{
			"c1": {ID: "c1", Name: "Maren"},
		}},
	}, nil, testContextConfig(), config.EmotionConfig{})

	present, err := a.loadPresent(context.Background(), &entity.SceneState{ID: "sc-1"}, "player-1")
	if err != nil {
		t.Fatalf("loadPresent: %v", err)
	}
	if len(present) != 1 || present[0].ID != "c1" {
		t.Fatalf("expected only c1 present, got %+v", present)
	}
}

func TestLoadPresentFailsFastOnMissingCharacter(t *testing.T) {
	a := New(Deps{
		Scenes: &fakeSceneRoster{present: []*entity.SceneCharacter{
			{SceneID: "sc-1", CharacterID: "ghost"},
		}},
		Characters: &fakeRosterCharacters{byID: map[string]*entity.Character{}},
	}, nil, testContextConfig(), config.EmotionConfig{})

	_, err := a.loadPresent(context.Background(), &entity.SceneState{ID: "sc-1"}, "player-1")
	if err == nil {
		t.Fatalf("expected error for missing character row")
	}
	if !apperrors.IsCode(err, apperrors.CodeMissingEntity) {
		t.Fatalf("expected missing-entity code, got %v", err)
	}
}
