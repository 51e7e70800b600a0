package entity

import (
	"math"
	"testing"
	"time"
)

func TestDecayedIntensity(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	acute := 2 * time.Hour
	deep := 72 * time.Hour

	tests := []struct {
		name      string
		intensity float64
		class     EmotionClass
		elapsed   time.Duration
		want      float64
	}{
		{name: "no time passed", intensity: 0.8, class: EmotionClassAcute, elapsed: 0, want: 0.8},
		{name: "acute one half-life", intensity: 0.8, class: EmotionClassAcute, elapsed: 2 * time.Hour, want: 0.4},
		{name: "acute two half-lives", intensity: 0.8, class: EmotionClassAcute, elapsed: 4 * time.Hour, want: 0.2},
		{name: "deep barely decays in two hours", intensity: 0.8, class: EmotionClassDeep, elapsed: 2 * time.Hour, want: 0.8 * math.Pow(0.5, 2.0/72.0)},
		{name: "deep one half-life", intensity: 0.8, class: EmotionClassDeep, elapsed: 72 * time.Hour, want: 0.4},
		{name: "zero intensity stays zero", intensity: 0, class: EmotionClassAcute, elapsed: time.Hour, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecayedIntensity(tt.intensity, tt.class, start, start.Add(tt.elapsed), acute, deep)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("DecayedIntensity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecayedIntensityClockSkew(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// now 在 startedAt 之前时不放大强度
	got := DecayedIntensity(0.8, EmotionClassAcute, start, start.Add(-time.Hour), 2*time.Hour, 72*time.Hour)
	if got != 0.8 {
		t.Fatalf("negative elapsed must not change intensity, got %v", got)
	}
}

func TestEffectiveEmotionFallsBackToBaseline(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	state := &CharacterState{
		BaselineEmotion:  "calm",
		CurrentEmotion:   "furious",
		EmotionIntensity: 0.8,
		EmotionClass:     EmotionClassAcute,
		EmotionStartedAt: start,
	}

	if got := state.EffectiveEmotion(start.Add(time.Hour), 2*time.Hour, 72*time.Hour); got != "furious" {
		t.Fatalf("fresh emotion should hold, got %q", got)
	}

	// 0.8 * 0.5^(12/2) = 0.0125 < 0.1 → 回落基线
	if got := state.EffectiveEmotion(start.Add(12*time.Hour), 2*time.Hour, 72*time.Hour); got != "calm" {
		t.Fatalf("decayed emotion should fall back to baseline, got %q", got)
	}
}

func TestClamp01(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: -0.5, want: 0},
		{in: 0, want: 0},
		{in: 0.42, want: 0.42},
		{in: 1, want: 1},
		{in: 1.7, want: 1},
	}
	for _, tt := range tests {
		if got := Clamp01(tt.in); got != tt.want {
			t.Fatalf("Clamp01(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
