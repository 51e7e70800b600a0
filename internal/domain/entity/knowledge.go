// Package entity 定义领域实体
package entity

import (
	"time"
)

// CharacterKnowledge 角色确知的信息,
// 校验器据此判定"读心"违规: 角色引用了不在其知识/记忆内的信息
type CharacterKnowledge struct {
	ID            string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CharacterID   string    `json:"character_id" gorm:"type:uuid;index;not null"`
	PlaythroughID *string   `json:"playthrough_id,omitempty" gorm:"type:uuid;index"`
	Subject       string    `json:"subject" gorm:"type:varchar(255);not null"`
	Content       string    `json:"content" gorm:"type:text;not null"`
	Source        string    `json:"source" gorm:"type:text"`
	Certainty     float64   `json:"certainty" gorm:"not null;default:1"` // [0,1]
	AccessCount   int       `json:"access_count" gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (CharacterKnowledge) TableName() string {
	return "character_knowledge"
}
