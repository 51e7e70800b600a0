package entity

import "testing"

func TestSceneDeltaEmpty(t *testing.T) {
	tests := []struct {
		name  string
		delta SceneDelta
		want  bool
	}{
		{name: "zero value", delta: SceneDelta{}, want: true},
		{name: "location change", delta: SceneDelta{LocationChanged: true, NewLocation: "the harbor"}, want: false},
		{name: "time change", delta: SceneDelta{TimeChanged: true, NewTimeOfDay: "dusk"}, want: false},
		{name: "character enters", delta: SceneDelta{CharactersEnter: []string{"c1"}}, want: false},
		{name: "character leaves", delta: SceneDelta{CharactersLeave: []string{"c1"}}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.delta.Empty(); got != tt.want {
				t.Fatalf("Empty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStoryArcCloneInto(t *testing.T) {
	template := &StoryArc{ID: "a1", StoryID: "s1", Title: "The Forged Ledger", Stage: 2, Status: ArcStatusActive}
	clone := template.CloneInto("play-1")

	if clone.ID != "" {
		t.Fatalf("clone must not carry the template ID")
	}
	if clone.PlaythroughID == nil || *clone.PlaythroughID != "play-1" {
		t.Fatalf("clone must be bound to the playthrough")
	}
	if clone.Stage != 2 || clone.Status != ArcStatusActive {
		t.Fatalf("clone must keep stage and status, got %+v", clone)
	}
	if template.PlaythroughID != nil {
		t.Fatalf("template must stay unbound")
	}
}
