// Package entity 定义领域实体
package entity

import (
	"time"
)

// ArcStatus 故事弧线状态
type ArcStatus string

const (
	ArcStatusPending  ArcStatus = "pending"
	ArcStatusActive   ArcStatus = "active"
	ArcStatusResolved ArcStatus = "resolved"
)

// StoryArc 故事弧线, 模板行随开局深拷贝, 由状态回写器推进
type StoryArc struct {
	ID            string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	StoryID       string    `json:"story_id" gorm:"type:uuid;index;not null"`
	PlaythroughID *string   `json:"playthrough_id,omitempty" gorm:"type:uuid;index"`
	Title         string    `json:"title" gorm:"type:varchar(255);not null"`
	Description   string    `json:"description" gorm:"type:text"`
	Stage         int       `json:"stage" gorm:"not null;default:0"`
	Status        ArcStatus `json:"status" gorm:"type:varchar(16);not null;default:'pending'"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (StoryArc) TableName() string {
	return "story_arcs"
}

// CloneInto 深拷贝为指定游玩会话的实例行
func (a *StoryArc) CloneInto(playthroughID string) *StoryArc {
	clone := *a
	clone.ID = ""
	clone.PlaythroughID = &playthroughID
	now := time.Now()
	clone.CreatedAt = now
	clone.UpdatedAt = now
	return &clone
}

// StoryEpisode 弧线内的剧情节拍
type StoryEpisode struct {
	ID            string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ArcID         string    `json:"arc_id" gorm:"type:uuid;index;not null"`
	PlaythroughID *string   `json:"playthrough_id,omitempty" gorm:"type:uuid;index"`
	Sequence      int       `json:"sequence" gorm:"not null"`
	Beat          string    `json:"beat" gorm:"type:text;not null"`
	Completed     bool      `json:"completed" gorm:"not null;default:false"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (StoryEpisode) TableName() string {
	return "story_episodes"
}
