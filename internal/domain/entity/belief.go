// Package entity 定义领域实体
package entity

import (
	"time"
)

// CharacterBelief 角色信念, 供校验器与决策引擎参考,
// 可选关联形成该信念的记忆
type CharacterBelief struct {
	ID             string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CharacterID    string    `json:"character_id" gorm:"type:uuid;index;not null"`
	PlaythroughID  *string   `json:"playthrough_id,omitempty" gorm:"type:uuid;index"`
	Statement      string    `json:"statement" gorm:"type:text;not null"`
	Strength       float64   `json:"strength" gorm:"not null;default:0.5"` // [0,1]
	Origin         string    `json:"origin" gorm:"type:text"`
	OriginMemoryID *string   `json:"origin_memory_id,omitempty" gorm:"type:uuid"`
	IsChallenged   bool      `json:"is_challenged" gorm:"not null;default:false"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (CharacterBelief) TableName() string {
	return "character_beliefs"
}
