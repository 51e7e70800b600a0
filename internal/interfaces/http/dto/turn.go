package dto

import (
	"time"

	"storyforge-api/internal/application/turn"
	"storyforge-api/internal/config"
	"storyforge-api/internal/domain/entity"
)

// TurnRequest 回合请求
type TurnRequest struct {
	SessionID string `json:"session_id" binding:"required,uuid"`
	Action    string `json:"action" binding:"required"`
}

// RelationshipDeltaView 对外的关系增量视图
type RelationshipDeltaView struct {
	CharacterID       string  `json:"character_id"`
	TrustChange       float64 `json:"trust_change"`
	AffectionChange   float64 `json:"affection_change"`
	FamiliarityChange float64 `json:"familiarity_change"`
}

// TurnResponse 回合响应
type TurnResponse struct {
	TurnID             string                  `json:"turn_id"`
	NarrativeText      string                  `json:"narrative_text"`
	TurnStatus         string                  `json:"turn_status"`
	Verdict            string                  `json:"verdict"`
	Regenerations      int                     `json:"regenerations"`
	SceneDelta         *entity.SceneDelta      `json:"scene_delta,omitempty"`
	RelationshipDeltas []RelationshipDeltaView `json:"relationship_deltas,omitempty"`
	FlagsSet           []string                `json:"flags_set,omitempty"`
}

// NewTurnResponse 从管线结果构建回合响应.
// 关系增量按回写同样的钳制展示, 响应里不出现不会被应用的数值
func NewTurnResponse(result *turn.Result, relCfg config.RelationshipConfig) *TurnResponse {
	resp := &TurnResponse{
		TurnID:        result.TurnID,
		NarrativeText: result.NarrativeText,
		TurnStatus:    string(result.Status),
		Verdict:       string(result.Verdict),
		Regenerations: result.Regenerations,
	}
	if result.Effects == nil {
		return resp
	}
	resp.SceneDelta = result.Effects.SceneDelta
	for _, d := range result.Effects.RelationshipDeltas {
		clamped := d.ClampDelta(relCfg.MaxDeltaPerTurn, relCfg.MaxFamiliarityPerTurn)
		if !clamped.Significant(relCfg.MinAppliedDelta) {
			continue
		}
		resp.RelationshipDeltas = append(resp.RelationshipDeltas, RelationshipDeltaView{
			CharacterID:       clamped.CharacterID,
			TrustChange:       clamped.TrustChange,
			AffectionChange:   clamped.AffectionChange,
			FamiliarityChange: clamped.FamiliarityChange,
		})
	}
	for _, f := range result.Effects.Flags {
		resp.FlagsSet = append(resp.FlagsSet, f.Name)
	}
	return resp
}

// TurnAuditResponse 回合审计响应, 完整回放 "AI 看到并决定了什么"
type TurnAuditResponse struct {
	ID              string         `json:"id"`
	PlaythroughID   string         `json:"playthrough_id"`
	SessionID       string         `json:"session_id"`
	UserAction      string         `json:"user_action"`
	NarrativeText   string         `json:"narrative_text"`
	Status          string         `json:"status"`
	Verdict         string         `json:"verdict"`
	Regenerations   int            `json:"regenerations"`
	ContextSnapshot entity.JSONMap `json:"context_snapshot,omitempty"`
	Decisions       entity.JSONMap `json:"decisions,omitempty"`
	Violations      entity.JSONMap `json:"violations,omitempty"`
	AppliedDeltas   entity.JSONMap `json:"applied_deltas,omitempty"`
	StageTimings    entity.JSONMap `json:"stage_timings,omitempty"`
	CreatedAt       string         `json:"created_at"`
}

// NewTurnAuditResponse 从回合审计记录构建响应
func NewTurnAuditResponse(t *entity.Turn) *TurnAuditResponse {
	return &TurnAuditResponse{
		ID:              t.ID,
		PlaythroughID:   t.PlaythroughID,
		SessionID:       t.SessionID,
		UserAction:      t.UserAction,
		NarrativeText:   t.NarrativeText,
		Status:          string(t.Status),
		Verdict:         t.Verdict,
		Regenerations:   t.Regenerations,
		ContextSnapshot: t.ContextSnapshot,
		Decisions:       t.Decisions,
		Violations:      t.Violations,
		AppliedDeltas:   t.AppliedDeltas,
		StageTimings:    t.StageTimings,
		CreatedAt:       t.CreatedAt.Format(time.RFC3339),
	}
}
