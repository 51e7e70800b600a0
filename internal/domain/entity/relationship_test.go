package entity

import "testing"

func TestClampDelta(t *testing.T) {
	tests := []struct {
		name  string
		in    RelationshipDelta
		want  RelationshipDelta
	}{
		{
			name: "within bounds unchanged",
			in:   RelationshipDelta{TrustChange: 0.1, AffectionChange: -0.2, FamiliarityChange: 0.1},
			want: RelationshipDelta{TrustChange: 0.1, AffectionChange: -0.2, FamiliarityChange: 0.1},
		},
		{
			name: "trust clamped both directions",
			in:   RelationshipDelta{TrustChange: 0.9, AffectionChange: -0.9},
			want: RelationshipDelta{TrustChange: 0.3, AffectionChange: -0.3},
		},
		{
			name: "negative familiarity floored at zero",
			in:   RelationshipDelta{FamiliarityChange: -0.5},
			want: RelationshipDelta{FamiliarityChange: 0},
		},
		{
			name: "familiarity capped",
			in:   RelationshipDelta{FamiliarityChange: 0.8},
			want: RelationshipDelta{FamiliarityChange: 0.2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.ClampDelta(0.3, 0.2)
			if got.TrustChange != tt.want.TrustChange ||
				got.AffectionChange != tt.want.AffectionChange ||
				got.FamiliarityChange != tt.want.FamiliarityChange {
				t.Fatalf("ClampDelta = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSignificant(t *testing.T) {
	tests := []struct {
		name string
		in   RelationshipDelta
		want bool
	}{
		{name: "noise filtered", in: RelationshipDelta{TrustChange: 0.005, AffectionChange: -0.003}, want: false},
		{name: "trust significant", in: RelationshipDelta{TrustChange: 0.05}, want: true},
		{name: "negative affection significant", in: RelationshipDelta{AffectionChange: -0.05}, want: true},
		{name: "familiarity significant", in: RelationshipDelta{FamiliarityChange: 0.05}, want: true},
		{name: "zero", in: RelationshipDelta{}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Significant(0.01); got != tt.want {
				t.Fatalf("Significant(%+v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestApplyClampsToUnitRange(t *testing.T) {
	r := &Relationship{Trust: 0.9, Affection: 0.1, Familiarity: 0.95}
	r.Apply(RelationshipDelta{TrustChange: 0.3, AffectionChange: -0.3, FamiliarityChange: 0.2})

	if r.Trust != 1 {
		t.Fatalf("trust should clamp to 1, got %v", r.Trust)
	}
	if r.Affection < 0 {
		t.Fatalf("affection should clamp to 0, got %v", r.Affection)
	}
	if r.Familiarity != 1 {
		t.Fatalf("familiarity should clamp to 1, got %v", r.Familiarity)
	}
}

func TestApplyFamiliarityMonotonic(t *testing.T) {
	r := &Relationship{Familiarity: 0.5}
	r.Apply(RelationshipDelta{FamiliarityChange: -0.2})
	if r.Familiarity != 0.5 {
		t.Fatalf("familiarity must never decrease, got %v", r.Familiarity)
	}
	r.Apply(RelationshipDelta{FamiliarityChange: 0.1})
	if r.Familiarity != 0.6 {
		t.Fatalf("familiarity should rise to 0.6, got %v", r.Familiarity)
	}
}
