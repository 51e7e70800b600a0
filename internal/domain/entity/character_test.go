package entity

import "testing"

func TestIsTemplate(t *testing.T) {
	playID := "play-1"
	template := &Character{ID: "c1", StoryID: "s1"}
	instance := &Character{ID: "c2", StoryID: "s1", PlaythroughID: &playID}

	if !template.IsTemplate() {
		t.Fatalf("character without playthrough must be a template")
	}
	if instance.IsTemplate() {
		t.Fatalf("character bound to a playthrough must not be a template")
	}
}

func TestCloneIntoDeepCopies(t *testing.T) {
	template := &Character{
		ID:           "c1",
		StoryID:      "s1",
		Name:         "Maren",
		WouldNeverDo: []string{"betray a regular"},
		CoreValues:   []string{"loyalty"},
	}

	clone := template.CloneInto("play-1")

	if clone.ID != "" {
		t.Fatalf("clone must not carry the template ID, got %q", clone.ID)
	}
	if clone.PlaythroughID == nil || *clone.PlaythroughID != "play-1" {
		t.Fatalf("clone must be bound to the playthrough")
	}
	if clone.StoryID != "s1" || clone.Name != "Maren" {
		t.Fatalf("clone must keep identity fields, got %+v", clone)
	}

	// 切片不得共享底层数组
	clone.WouldNeverDo[0] = "changed"
	if template.WouldNeverDo[0] != "betray a regular" {
		t.Fatalf("clone mutated the template's constraint set")
	}
	clone.CoreValues = append(clone.CoreValues, "greed")
	if len(template.CoreValues) != 1 {
		t.Fatalf("clone append leaked into the template")
	}
}

func TestSafeDefaultDecision(t *testing.T) {
	d := SafeDefaultDecision("c1", "Maren", "guarded")
	if !d.Fallback {
		t.Fatalf("safe default must be marked as fallback")
	}
	if d.Refuses {
		t.Fatalf("safe default must not refuse")
	}
	if d.Dialogue != "" || d.Action != "" {
		t.Fatalf("safe default must not invent speech or action, got %+v", d)
	}
	if d.Emotion != "guarded" {
		t.Fatalf("safe default keeps the current emotion, got %q", d.Emotion)
	}
}
