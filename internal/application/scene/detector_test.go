package scene

import (
	"context"
	"errors"
	"testing"
	"time"

	"storyforge-api/internal/application/assembler"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/gateway"
	"storyforge-api/internal/workflow/prompt"
)

type stubCompleter struct {
	output string
	err    error
}

func (s *stubCompleter) Complete(context.Context, gateway.Role, string, string, int) (string, error) {
	return s.output, s.err
}

type fakeCharacterRepo struct {
	roster []*entity.Character
}

func (f *fakeCharacterRepo) Create(context.Context, *entity.Character) error { return nil }
func (f *fakeCharacterRepo) GetByID(context.Context, string) (*entity.Character, error) {
	return nil, errors.New("not found")
}
func (f *fakeCharacterRepo) ListTemplatesByStory(context.Context, string) ([]*entity.Character, error) {
	return nil, nil
}
func (f *fakeCharacterRepo) ListByPlaythrough(context.Context, string) ([]*entity.Character, error) {
	return f.roster, nil
}
func (f *fakeCharacterRepo) GetByIDs(context.Context, []string) ([]*entity.Character, error) {
	return nil, nil
}
func (f *fakeCharacterRepo) GetPlayer(context.Context, string) (*entity.Character, error) {
	return nil, errors.New("not found")
}

func detectorBundle() *assembler.Bundle {
	return &assembler.Bundle{
		PlaythroughID: "pt-1",
		Scene:         &entity.SceneState{Location: "the taproom", TimeOfDay: "evening"},
		Present:       []*entity.Character{{ID: "c1", Name: "Maren"}},
		AssembledAt:   time.Now(),
	}
}

func testDetector(completer gateway.Completer) *Detector {
	repo := &fakeCharacterRepo{roster: []*entity.Character{
		{ID: "c1", Name: "Maren"},
		{ID: "c2", Name: "Tobias"},
	}}
	return NewDetector(completer, prompt.NewRegistry(), repo, time.Second)
}

func TestDetectLocationAndTimeChange(t *testing.T) {
	d := testDetector(&stubCompleter{
		output: `{"location_changed":true,"new_location":"the quay","time_advanced":true,"new_time":"night"}`,
	})

	delta := d.Detect(context.Background(), detectorBundle(), "You follow Maren out to the quay as night falls.")
	if !delta.LocationChanged || delta.NewLocation != "the quay" {
		t.Fatalf("location change not detected: %+v", delta)
	}
	if !delta.TimeChanged || delta.NewTimeOfDay != "night" {
		t.Fatalf("time change not detected: %+v", delta)
	}
}

func TestDetectMapsRosterNames(t *testing.T) {
	d := testDetector(&stubCompleter{
		output: `{"entered":["Tobias","The Stranger"],"left":["Maren"]}`,
	})

	delta := d.Detect(context.Background(), detectorBundle(), "Tobias shoulders in as Maren slips out the back.")
	if len(delta.CharactersEnter) != 1 || delta.CharactersEnter[0] != "c2" {
		t.Fatalf("unknown names must be dropped, known names mapped to IDs: %+v", delta.CharactersEnter)
	}
	if len(delta.CharactersLeave) != 1 || delta.CharactersLeave[0] != "c1" {
		t.Fatalf("leave list wrong: %+v", delta.CharactersLeave)
	}
}

func TestDetectIgnoresImpossibleMoves(t *testing.T) {
	// c2 不在场, 离场无效; c1 已在场, 进场无效
	d := testDetector(&stubCompleter{
		output: `{"entered":["Maren"],"left":["Tobias"]}`,
	})

	delta := d.Detect(context.Background(), detectorBundle(), "narrative")
	if len(delta.CharactersEnter) != 0 || len(delta.CharactersLeave) != 0 {
		t.Fatalf("present/absent checks failed: %+v", delta)
	}
}

func TestDetectFailuresYieldEmptyDelta(t *testing.T) {
	d := testDetector(&stubCompleter{err: errors.New("model unavailable")})
	if delta := d.Detect(context.Background(), detectorBundle(), "narrative"); !delta.Empty() {
		t.Fatalf("model failure must keep the scene unchanged: %+v", delta)
	}

	d = testDetector(&stubCompleter{output: "not json"})
	if delta := d.Detect(context.Background(), detectorBundle(), "narrative"); !delta.Empty() {
		t.Fatalf("garbage output must keep the scene unchanged: %+v", delta)
	}
}
