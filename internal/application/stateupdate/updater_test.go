package stateupdate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storyforge-api/internal/config"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/repository"
)

type fakeTurnRepo struct {
	applied map[string]bool
}

func newFakeTurnRepo() *fakeTurnRepo {
	return &fakeTurnRepo{applied: make(map[string]bool)}
}

func (f *fakeTurnRepo) Create(context.Context, *entity.Turn) error         { return nil }
func (f *fakeTurnRepo) GetByID(context.Context, string) (*entity.Turn, error) {
	return nil, errors.New("not found")
}
func (f *fakeTurnRepo) Update(context.Context, *entity.Turn) error { return nil }
func (f *fakeTurnRepo) ListByPlaythrough(context.Context, string, repository.Pagination) (*repository.PagedResult[*entity.Turn], error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTurnRepo) MarkApplied(_ context.Context, turnID, _, entityType string) (bool, error) {
	key := turnID + "/" + entityType
	if f.applied[key] {
		return false, nil
	}
	f.applied[key] = true
	return true, nil
}
func (f *fakeTurnRepo) IsApplied(_ context.Context, turnID, entityType string) (bool, error) {
	return f.applied[turnID+"/"+entityType], nil
}

type fakeRelationshipRepo struct {
	rels    map[string]*entity.Relationship
	gets    int
	updates int
	failGet bool
}

func relKey(characterID, targetID string) string {
	return characterID + "->" + targetID
}

func newFakeRelationshipRepo(rels ...*entity.Relationship) *fakeRelationshipRepo {
	f := &fakeRelationshipRepo{rels: make(map[string]*entity.Relationship)}
	for _, r := range rels {
		f.rels[relKey(r.CharacterID, r.TargetCharacterID)] = r
	}
	return f
}

func (f *fakeRelationshipRepo) Create(_ context.Context, r *entity.Relationship) error {
	f.rels[relKey(r.CharacterID, r.TargetCharacterID)] = r
	return nil
}
func (f *fakeRelationshipRepo) GetByPair(_ context.Context, _, characterID, targetID string) (*entity.Relationship, error) {
	f.gets++
	if f.failGet {
		return nil, errors.New("database unavailable")
	}
	r, ok := f.rels[relKey(characterID, targetID)]
	if !ok {
		return nil, fmt.Errorf("relationship %s not found", relKey(characterID, targetID))
	}
	return r, nil
}
func (f *fakeRelationshipRepo) Update(_ context.Context, r *entity.Relationship) error {
	f.updates++
	f.rels[relKey(r.CharacterID, r.TargetCharacterID)] = r
	return nil
}
func (f *fakeRelationshipRepo) ListByCharacter(context.Context, string) ([]*entity.Relationship, error) {
	return nil, nil
}
func (f *fakeRelationshipRepo) ListByPlaythrough(context.Context, string) ([]*entity.Relationship, error) {
	return nil, nil
}

type fakeFlagRepo struct {
	flags map[string]*entity.StoryFlag
	sets  int
}

func newFakeFlagRepo() *fakeFlagRepo {
	return &fakeFlagRepo{flags: make(map[string]*entity.StoryFlag)}
}

func (f *fakeFlagRepo) Set(_ context.Context, flag *entity.StoryFlag) error {
	f.sets++
	f.flags[flag.Name] = flag
	return nil
}
func (f *fakeFlagRepo) Get(_ context.Context, _, name string) (*entity.StoryFlag, error) {
	flag, ok := f.flags[name]
	if !ok {
		return nil, errors.New("flag not found")
	}
	return flag, nil
}
func (f *fakeFlagRepo) ListByPlaythrough(context.Context, string) ([]*entity.StoryFlag, error) {
	return nil, nil
}

func testRelConfig() config.RelationshipConfig {
	return config.RelationshipConfig{
		MaxDeltaPerTurn:       0.3,
		MaxFamiliarityPerTurn: 0.2,
		MinAppliedDelta:       0.01,
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	turns := newFakeTurnRepo()
	rels := newFakeRelationshipRepo(&entity.Relationship{
		CharacterID: "c1", TargetCharacterID: "player", Trust: 0.5, Affection: 0.5,
	})
	u := New(Repos{Turns: turns, Relationships: rels}, nil, nil, testRelConfig())

	effects := &entity.TurnEffects{
		TurnID:        "turn-1",
		PlaythroughID: "pt-1",
		RelationshipDeltas: []entity.RelationshipDelta{
			{CharacterID: "c1", TargetCharacterID: "player", TrustChange: 0.1},
		},
	}

	if err := u.Apply(context.Background(), effects); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if rels.updates != 1 {
		t.Fatalf("expected 1 relationship update, got %d", rels.updates)
	}

	if err := u.Apply(context.Background(), effects); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if rels.updates != 1 {
		t.Fatalf("redelivered effects must not be applied twice, got %d updates", rels.updates)
	}
}

func TestApplyRelationshipsWithoutGuardDoubles(t *testing.T) {
	rels := newFakeRelationshipRepo(&entity.Relationship{
		CharacterID: "c1", TargetCharacterID: "player", Trust: 0.5, Affection: 0.5,
	})
	u := New(Repos{Turns: newFakeTurnRepo(), Relationships: rels}, nil, nil, testRelConfig())

	effects := &entity.TurnEffects{
		TurnID:        "turn-raw",
		PlaythroughID: "pt-1",
		RelationshipDeltas: []entity.RelationshipDelta{
			{CharacterID: "c1", TargetCharacterID: "player", TrustChange: 0.1},
		},
	}

	for i := 0; i < 2; i++ {
		if err := u.applyRelationships(context.Background(), effects); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	got := rels.rels[relKey("c1", "player")].Trust
	if math.Abs(got-0.7) > 1e-9 {
		t.Fatalf("unguarded redelivery should double the delta, trust = %v", got)
	}
	if rels.updates != 2 {
		t.Fatalf("expected 2 raw updates, got %d", rels.updates)
	}
}

func TestApplyRelationshipsClampsDeltas(t *testing.T) {
	turns := newFakeTurnRepo()
	rels := newFakeRelationshipRepo(&entity.Relationship{
		CharacterID: "c1", TargetCharacterID: "player",
		Trust: 0.5, Affection: 0.5, Familiarity: 0.1,
	})
	u := New(Repos{Turns: turns, Relationships: rels}, nil, nil, testRelConfig())

	effects := &entity.TurnEffects{
		TurnID:        "turn-clamp",
		PlaythroughID: "pt-1",
		RelationshipDeltas: []entity.RelationshipDelta{
			{
				CharacterID:       "c1",
				TargetCharacterID: "player",
				TrustChange:       0.9,
				AffectionChange:   -0.9,
				FamiliarityChange: 0.8,
				Reason:            "confided a secret",
			},
		},
	}

	if err := u.Apply(context.Background(), effects); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rel := rels.rels[relKey("c1", "player")]
	if math.Abs(rel.Trust-0.8) > 1e-9 {
		t.Fatalf("trust change should clamp to +0.3, got trust %v", rel.Trust)
	}
	if math.Abs(rel.Affection-0.2) > 1e-9 {
		t.Fatalf("affection change should clamp to -0.3, got affection %v", rel.Affection)
	}
	if math.Abs(rel.Familiarity-0.3) > 1e-9 {
		t.Fatalf("familiarity change should clamp to +0.2, got familiarity %v", rel.Familiarity)
	}
	if rel.HistorySummary != "confided a secret" {
		t.Fatalf("reason should be recorded in history summary, got %q", rel.HistorySummary)
	}
}

func TestApplyRelationshipsSkipsInsignificantDeltas(t *testing.T) {
	turns := newFakeTurnRepo()
	rels := newFakeRelationshipRepo(&entity.Relationship{
		CharacterID: "c1", TargetCharacterID: "player", Trust: 0.5,
	})
	u := New(Repos{Turns: turns, Relationships: rels}, nil, nil, testRelConfig())

	effects := &entity.TurnEffects{
		TurnID:        "turn-noise",
		PlaythroughID: "pt-1",
		RelationshipDeltas: []entity.RelationshipDelta{
			{CharacterID: "c1", TargetCharacterID: "player", TrustChange: 0.005, AffectionChange: -0.003},
		},
	}

	if err := u.Apply(context.Background(), effects); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rels.gets != 0 || rels.updates != 0 {
		t.Fatalf("noise deltas must not touch storage: %d gets, %d updates", rels.gets, rels.updates)
	}
}

func TestApplyFlagsRecordsTurn(t *testing.T) {
	turns := newFakeTurnRepo()
	flags := newFakeFlagRepo()
	u := New(Repos{Turns: turns, Flags: flags}, nil, nil, testRelConfig())

	effects := &entity.TurnEffects{
		TurnID:        "turn-flag",
		PlaythroughID: "pt-1",
		Flags: []entity.FlagEffect{
			{Name: "archive_fire_mentioned", Value: "true"},
		},
	}

	if err := u.Apply(context.Background(), effects); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	flag, ok := flags.flags["archive_fire_mentioned"]
	if !ok {
		t.Fatalf("flag was not set")
	}
	if flag.SetByTurnID != "turn-flag" || flag.PlaythroughID != "pt-1" || flag.Value != "true" {
		t.Fatalf("flag fields wrong: %+v", flag)
	}
}

func TestApplyIsolatesFailures(t *testing.T) {
	turns := newFakeTurnRepo()
	rels := newFakeRelationshipRepo()
	rels.failGet = true
	flags := newFakeFlagRepo()
	u := New(Repos{Turns: turns, Relationships: rels, Flags: flags}, nil, nil, testRelConfig())

	effects := &entity.TurnEffects{
		TurnID:        "turn-partial",
		PlaythroughID: "pt-1",
		RelationshipDeltas: []entity.RelationshipDelta{
			{CharacterID: "c1", TargetCharacterID: "player", TrustChange: 0.2},
		},
		Flags: []entity.FlagEffect{{Name: "door_unlocked", Value: "true"}},
	}

	err := u.Apply(context.Background(), effects)
	if err == nil {
		t.Fatalf("expected aggregated error from failed relationship lookup")
	}
	if _, ok := flags.flags["door_unlocked"]; !ok {
		t.Fatalf("flag application must not be blocked by relationship failure")
	}
}

// overlapRelRepo 记录 Update 的并发重叠
type overlapRelRepo struct {
	*fakeRelationshipRepo
	active  int32
	overlap int32
}

func (f *overlapRelRepo) Update(ctx context.Context, r *entity.Relationship) error {
	if atomic.AddInt32(&f.active, 1) > 1 {
		atomic.StoreInt32(&f.overlap, 1)
	}
	time.Sleep(2 * time.Millisecond)
	atomic.AddInt32(&f.active, -1)
	return f.fakeRelationshipRepo.Update(ctx, r)
}

func TestApplySerializesPerPlaythrough(t *testing.T) {
	turns := newFakeTurnRepo()
	rels := &overlapRelRepo{fakeRelationshipRepo: newFakeRelationshipRepo(&entity.Relationship{
		CharacterID: "c1", TargetCharacterID: "player", Trust: 0.5, Affection: 0.5,
	})}
	u := New(Repos{Turns: turns, Relationships: rels}, nil, nil, testRelConfig())

	effectsFor := func(turnID string) *entity.TurnEffects {
		return &entity.TurnEffects{
			TurnID:        turnID,
			PlaythroughID: "pt-1",
			RelationshipDeltas: []entity.RelationshipDelta{
				{CharacterID: "c1", TargetCharacterID: "player", TrustChange: 0.1},
			},
		}
	}

	var wg sync.WaitGroup
	for _, turnID := range []string{"turn-a", "turn-b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := u.Apply(context.Background(), effectsFor(id)); err != nil {
				t.Errorf("Apply(%s): %v", id, err)
			}
		}(turnID)
	}
	wg.Wait()

	if atomic.LoadInt32(&rels.overlap) != 0 {
		t.Fatalf("same-playthrough applies must not interleave")
	}
	if rels.updates != 2 {
		t.Fatalf("expected both turns applied, updates = %d", rels.updates)
	}
	got := rels.rels[relKey("c1", "player")].Trust
	if math.Abs(got-0.7) > 1e-9 {
		t.Fatalf("serialized applies should stack, trust = %v", got)
	}
}

func TestApplyRedeliveryRecoversFailedTypes(t *testing.T) {
	turns := newFakeTurnRepo()
	rels := newFakeRelationshipRepo(&entity.Relationship{
		CharacterID: "c1", TargetCharacterID: "player", Trust: 0.5, Affection: 0.5,
	})
	rels.failGet = true
	flags := newFakeFlagRepo()
	u := New(Repos{Turns: turns, Relationships: rels, Flags: flags}, nil, nil, testRelConfig())

	effects := &entity.TurnEffects{
		TurnID:        "turn-retry",
		PlaythroughID: "pt-1",
		RelationshipDeltas: []entity.RelationshipDelta{
			{CharacterID: "c1", TargetCharacterID: "player", TrustChange: 0.1},
		},
		Flags: []entity.FlagEffect{{Name: "door_unlocked", Value: "true"}},
	}

	if err := u.Apply(context.Background(), effects); err == nil {
		t.Fatalf("first delivery should report the relationship failure")
	}
	if flags.sets != 1 {
		t.Fatalf("flag should be applied on first delivery, sets = %d", flags.sets)
	}
	if rels.updates != 0 {
		t.Fatalf("failed relationship must not be written, updates = %d", rels.updates)
	}

	// 故障恢复后的重投递补写关系, 不重复写标记
	rels.failGet = false
	if err := u.Apply(context.Background(), effects); err != nil {
		t.Fatalf("redelivery after recovery: %v", err)
	}
	if rels.updates != 1 {
		t.Fatalf("redelivery should apply the failed relationship once, updates = %d", rels.updates)
	}
	got := rels.rels[relKey("c1", "player")].Trust
	if math.Abs(got-0.6) > 1e-9 {
		t.Fatalf("trust after recovery = %v, want 0.6", got)
	}
	if flags.sets != 1 {
		t.Fatalf("already-applied flag must not be rewritten, sets = %d", flags.sets)
	}

	// 再次重投递全部命中完成标记
	if err := u.Apply(context.Background(), effects); err != nil {
		t.Fatalf("fully-applied redelivery: %v", err)
	}
	if rels.updates != 1 || flags.sets != 1 {
		t.Fatalf("fully-applied redelivery must be a no-op, updates = %d sets = %d", rels.updates, flags.sets)
	}
}

func TestAppendSummary(t *testing.T) {
	tests := []struct {
		existing, note, want string
	}{
		{"", "first note", "first note"},
		{"first note", "second note", "first note\nsecond note"},
		{"kept", "   ", "kept"},
		{"kept", "", "kept"},
	}
	for _, tt := range tests {
		if got := appendSummary(tt.existing, tt.note); got != tt.want {
			t.Fatalf("appendSummary(%q, %q) = %q, want %q", tt.existing, tt.note, got, tt.want)
		}
	}
}

func TestClampRange(t *testing.T) {
	tests := []struct {
		v, min, max, want float64
	}{
		{0.5, -1, 1, 0.5},
		{-1.5, -1, 1, -1},
		{2.0, -1, 1, 1},
		{-1, -1, 1, -1},
	}
	for _, tt := range tests {
		if got := clampRange(tt.v, tt.min, tt.max); got != tt.want {
			t.Fatalf("clampRange(%v, %v, %v) = %v, want %v", tt.v, tt.min, tt.max, got, tt.want)
		}
	}
}
