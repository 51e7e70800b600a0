// Package entity 定义领域实体
package entity

import (
	"time"
)

// Relationship 有向角色关系, 各维度标量位于 [0,1],
// 每回合只允许有界增量修改, 熟悉度单调不减
type Relationship struct {
	ID                string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CharacterID       string    `json:"character_id" gorm:"type:uuid;index:idx_rel_pair;not null"`
	TargetCharacterID string    `json:"target_character_id" gorm:"type:uuid;index:idx_rel_pair;not null"`
	PlaythroughID     *string   `json:"playthrough_id,omitempty" gorm:"type:uuid;index"`
	Trust             float64   `json:"trust" gorm:"not null;default:0.5"`
	Affection         float64   `json:"affection" gorm:"not null;default:0.5"`
	Familiarity       float64   `json:"familiarity" gorm:"not null;default:0"`
	Closeness         float64   `json:"closeness" gorm:"not null;default:0"`
	Importance        float64   `json:"importance" gorm:"not null;default:0.5"`
	HistorySummary    string    `json:"history_summary" gorm:"type:text"`
	CreatedAt         time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Relationship) TableName() string {
	return "relationships"
}

// RelationshipDelta 单回合关系增量, 钳制前的原始值来自关系分析模型
type RelationshipDelta struct {
	CharacterID       string  `json:"character_id"`
	TargetCharacterID string  `json:"target_character_id"`
	TrustChange       float64 `json:"trust_change"`
	AffectionChange   float64 `json:"affection_change"`
	FamiliarityChange float64 `json:"familiarity_change"`
	Reason            string  `json:"reason"`
}

// ClampDelta 将增量钳制到配置边界: 信任/好感 ±maxDelta,
// 熟悉度 [0, maxFamiliarity] 保证单调不减
func (d RelationshipDelta) ClampDelta(maxDelta, maxFamiliarity float64) RelationshipDelta {
	clamped := d
	clamped.TrustChange = clampAbs(d.TrustChange, maxDelta)
	clamped.AffectionChange = clampAbs(d.AffectionChange, maxDelta)
	fam := d.FamiliarityChange
	if fam < 0 {
		fam = 0
	}
	if fam > maxFamiliarity {
		fam = maxFamiliarity
	}
	clamped.FamiliarityChange = fam
	return clamped
}

// Significant 增量绝对值低于阈值时视为噪声不回写
func (d RelationshipDelta) Significant(minDelta float64) bool {
	return absFloat(d.TrustChange) > minDelta ||
		absFloat(d.AffectionChange) > minDelta ||
		d.FamiliarityChange > minDelta
}

// Apply 把钳制后的增量应用到关系, 运行值钳制回 [0,1]
func (r *Relationship) Apply(d RelationshipDelta) {
	r.Trust = Clamp01(r.Trust + d.TrustChange)
	r.Affection = Clamp01(r.Affection + d.AffectionChange)
	if d.FamiliarityChange > 0 {
		r.Familiarity = Clamp01(r.Familiarity + d.FamiliarityChange)
	}
}

func clampAbs(v, max float64) float64 {
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
