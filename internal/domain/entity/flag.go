// Package entity 定义领域实体
package entity

import (
	"time"
)

// StoryFlag 故事推进标记, 由回合管线设置, 上下文装配器读取
type StoryFlag struct {
	ID            string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	PlaythroughID string    `json:"playthrough_id" gorm:"type:uuid;index:idx_flag_name,unique;not null"`
	Name          string    `json:"name" gorm:"type:varchar(128);index:idx_flag_name,unique;not null"`
	Value         string    `json:"value" gorm:"type:text"`
	SetByTurnID   string    `json:"set_by_turn_id" gorm:"type:uuid"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (StoryFlag) TableName() string {
	return "story_flags"
}
