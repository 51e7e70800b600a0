// Package entity 定义领域实体
package entity

import (
	"time"
)

// AvoidanceSeverity 回避严重程度
type AvoidanceSeverity string

const (
	AvoidanceSeverityLow      AvoidanceSeverity = "low"
	AvoidanceSeverityMedium   AvoidanceSeverity = "medium"
	AvoidanceSeverityHigh     AvoidanceSeverity = "high"
	AvoidanceSeverityCritical AvoidanceSeverity = "critical"
)

// CharacterAvoidance 角色回避项, 被场景内容触发时进入上下文并参与校验,
// OverrideConditions 记录允许突破该回避的条件
type CharacterAvoidance struct {
	ID                 string            `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CharacterID        string            `json:"character_id" gorm:"type:uuid;index;not null"`
	PlaythroughID      *string           `json:"playthrough_id,omitempty" gorm:"type:uuid;index"`
	Type               string            `json:"type" gorm:"type:varchar(32);not null"` // topic/place/person/action
	Target             string            `json:"target" gorm:"type:text;not null"`
	Reason             string            `json:"reason" gorm:"type:text"`
	ReasonMemoryID     *string           `json:"reason_memory_id,omitempty" gorm:"type:uuid"`
	Severity           AvoidanceSeverity `json:"severity" gorm:"type:varchar(16);not null;default:'medium'"`
	Manifestation      string            `json:"manifestation" gorm:"type:text"`
	OverrideConditions string            `json:"override_conditions" gorm:"type:text"`
	CreatedAt          time.Time         `json:"created_at" gorm:"autoCreateTime"`
}

func (CharacterAvoidance) TableName() string {
	return "character_avoidances"
}
