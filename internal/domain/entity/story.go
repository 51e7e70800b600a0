// Package entity 定义领域实体
package entity

import (
	"time"
)

// ContentRating 故事内容分级
type ContentRating string

const (
	ContentRatingEveryone ContentRating = "everyone"
	ContentRatingTeen     ContentRating = "teen"
	ContentRatingMature   ContentRating = "mature"
)

// Story 故事模板容器, 创建后不可变, 开局时深拷贝为 Playthrough 实例数据
type Story struct {
	ID              string        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Title           string        `json:"title" gorm:"type:varchar(255);not null"`
	Description     string        `json:"description" gorm:"type:text"`
	OpeningText     string        `json:"opening_text" gorm:"type:text"`
	WorldBackground string        `json:"world_background" gorm:"type:text"`
	ContentRating   ContentRating `json:"content_rating" gorm:"type:varchar(16);not null;default:'teen'"`
	CreatedAt       time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Story) TableName() string {
	return "stories"
}

// PlaythroughStatus 游玩会话状态
type PlaythroughStatus string

const (
	PlaythroughStatusActive    PlaythroughStatus = "active"
	PlaythroughStatusCompleted PlaythroughStatus = "completed"
	PlaythroughStatusAbandoned PlaythroughStatus = "abandoned"
)

// Playthrough 一次独立的故事游玩会话, 持有模板数据的可变副本
type Playthrough struct {
	ID        string            `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	StoryID   string            `json:"story_id" gorm:"type:uuid;index;not null"`
	Title     string            `json:"title" gorm:"type:varchar(255)"`
	Status    PlaythroughStatus `json:"status" gorm:"type:varchar(16);not null;default:'active'"`
	CreatedAt time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Playthrough) TableName() string {
	return "playthroughs"
}

func NewPlaythrough(storyID, title string) *Playthrough {
	now := time.Now()
	return &Playthrough{
		StoryID:   storyID,
		Title:     title,
		Status:    PlaythroughStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
