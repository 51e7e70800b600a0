package dto

import (
	"math"
	"testing"

	"storyforge-api/internal/application/turn"
	"storyforge-api/internal/config"
	"storyforge-api/internal/domain/entity"
)

func TestNewTurnResponseClampsRelationshipDeltas(t *testing.T) {
	relCfg := config.RelationshipConfig{
		MaxDeltaPerTurn:       0.3,
		MaxFamiliarityPerTurn: 0.2,
		MinAppliedDelta:       0.01,
	}
	result := &turn.Result{
		TurnID:  "turn-1",
		Status:  entity.TurnStatusCompleted,
		Verdict: entity.VerdictValid,
		Effects: &entity.TurnEffects{
			RelationshipDeltas: []entity.RelationshipDelta{
				{CharacterID: "c1", TrustChange: 0.8, AffectionChange: -0.9, FamiliarityChange: 0.9},
				{CharacterID: "c2", TrustChange: 0.001},
			},
			Flags: []entity.FlagEffect{{Name: "door_unlocked", Value: "true"}},
		},
	}

	resp := NewTurnResponse(result, relCfg)

	// 响应与回写走同一套钳制, 不显著的增量也一并隐藏
	if len(resp.RelationshipDeltas) != 1 {
		t.Fatalf("expected 1 visible delta, got %d", len(resp.RelationshipDeltas))
	}
	d := resp.RelationshipDeltas[0]
	if d.CharacterID != "c1" {
		t.Fatalf("wrong delta surfaced: %+v", d)
	}
	if math.Abs(d.TrustChange-0.3) > 1e-9 || math.Abs(d.AffectionChange+0.3) > 1e-9 {
		t.Fatalf("trust/affection not clamped: %+v", d)
	}
	if math.Abs(d.FamiliarityChange-0.2) > 1e-9 {
		t.Fatalf("familiarity not clamped: %+v", d)
	}
	if len(resp.FlagsSet) != 1 || resp.FlagsSet[0] != "door_unlocked" {
		t.Fatalf("flags missing from response: %v", resp.FlagsSet)
	}
}

func TestNewTurnResponseWithoutEffects(t *testing.T) {
	result := &turn.Result{
		TurnID:  "turn-2",
		Status:  entity.TurnStatusRejected,
		Verdict: entity.VerdictRejected,
	}
	resp := NewTurnResponse(result, config.RelationshipConfig{MaxDeltaPerTurn: 0.3})
	if resp.SceneDelta != nil || resp.RelationshipDeltas != nil || resp.FlagsSet != nil {
		t.Fatalf("rejected turn must not surface effects: %+v", resp)
	}
}
