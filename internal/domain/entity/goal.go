// Package entity 定义领域实体
package entity

import (
	"time"
)

// GoalType 目标时间尺度
type GoalType string

const (
	GoalTypeImmediate GoalType = "immediate"
	GoalTypeShortTerm GoalType = "short_term"
	GoalTypeLongTerm  GoalType = "long_term"
	GoalTypeHidden    GoalType = "hidden"
)

// GoalStatus 目标状态
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusAchieved  GoalStatus = "achieved"
	GoalStatusAbandoned GoalStatus = "abandoned"
	GoalStatusBlocked   GoalStatus = "blocked"
)

// CharacterGoal 角色目标, 按优先级取 Top-K 进入上下文, 由状态回写器推进
type CharacterGoal struct {
	ID            string     `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CharacterID   string     `json:"character_id" gorm:"type:uuid;index;not null"`
	PlaythroughID *string    `json:"playthrough_id,omitempty" gorm:"type:uuid;index"`
	Type          GoalType   `json:"type" gorm:"type:varchar(16);not null"`
	Description   string     `json:"description" gorm:"type:text;not null"`
	Priority      int        `json:"priority" gorm:"not null;default:5"` // 1-10
	Status        GoalStatus `json:"status" gorm:"type:varchar(16);not null;default:'active'"`
	ProgressNote  string     `json:"progress_note" gorm:"type:text"`
	CreatedAt     time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (CharacterGoal) TableName() string {
	return "character_goals"
}
