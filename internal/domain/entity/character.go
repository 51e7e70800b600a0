// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/lib/pq"
)

// Character 角色身份与约束集
// PlaythroughID 为空表示故事模板行, 非空表示某次游玩的实例行,
// 约束集在同一游玩内不可变, 校验器将其视为硬性规则而非软性建议
type Character struct {
	ID            string  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	StoryID       string  `json:"story_id" gorm:"type:uuid;index;not null"`
	PlaythroughID *string `json:"playthrough_id,omitempty" gorm:"type:uuid;index"`
	Name          string  `json:"name" gorm:"type:varchar(128);not null"`
	Description   string  `json:"description" gorm:"type:text"`
	IsPlayer      bool    `json:"is_player" gorm:"not null;default:false"`

	// 人格约束集
	CoreValues            pq.StringArray `json:"core_values" gorm:"type:text[]"`
	CoreFears             pq.StringArray `json:"core_fears" gorm:"type:text[]"`
	WouldNeverDo          pq.StringArray `json:"would_never_do" gorm:"type:text[]"`
	WouldAlwaysDo         pq.StringArray `json:"would_always_do" gorm:"type:text[]"`
	VerbalPatterns        string         `json:"verbal_patterns" gorm:"type:text"`
	DecisionStyle         string         `json:"decision_style" gorm:"type:text"`
	SecretKept            string         `json:"secret_kept" gorm:"type:text"`
	Vulnerability         string         `json:"vulnerability" gorm:"type:text"`
	InternalContradiction string         `json:"internal_contradiction" gorm:"type:text"`
	ComfortBehaviors      pq.StringArray `json:"comfort_behaviors" gorm:"type:text[]"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Character) TableName() string {
	return "characters"
}

// IsTemplate 是否为模板行
func (c *Character) IsTemplate() bool {
	return c.PlaythroughID == nil
}

// CloneInto 深拷贝为指定游玩会话的实例行, 不共享任何切片底层数组
func (c *Character) CloneInto(playthroughID string) *Character {
	clone := *c
	clone.ID = ""
	clone.PlaythroughID = &playthroughID
	clone.CoreValues = append(pq.StringArray(nil), c.CoreValues...)
	clone.CoreFears = append(pq.StringArray(nil), c.CoreFears...)
	clone.WouldNeverDo = append(pq.StringArray(nil), c.WouldNeverDo...)
	clone.WouldAlwaysDo = append(pq.StringArray(nil), c.WouldAlwaysDo...)
	clone.ComfortBehaviors = append(pq.StringArray(nil), c.ComfortBehaviors...)
	now := time.Now()
	clone.CreatedAt = now
	clone.UpdatedAt = now
	return &clone
}
