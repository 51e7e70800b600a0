// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/lib/pq"
)

// CharacterMemory 情景记忆, 通过相关性检索而非全表扫描进入上下文,
// 对应向量以记忆 ID 存放在 Milvus
type CharacterMemory struct {
	ID                 string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CharacterID        string         `json:"character_id" gorm:"type:uuid;index;not null"`
	PlaythroughID      *string        `json:"playthrough_id,omitempty" gorm:"type:uuid;index"`
	Content            string         `json:"content" gorm:"type:text;not null"`
	Importance         int            `json:"importance" gorm:"not null;default:5"` // 1-10
	EmotionalValence   float64        `json:"emotional_valence" gorm:"not null;default:0"`
	EmotionalIntensity float64        `json:"emotional_intensity" gorm:"not null;default:0"`
	RecallCount        int            `json:"recall_count" gorm:"not null;default:0"`
	LastRecalledAt     *time.Time     `json:"last_recalled_at,omitempty"`
	Tags               pq.StringArray `json:"tags" gorm:"type:text[]"`
	OccurredAt         time.Time      `json:"occurred_at"`
	CreatedAt          time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

func (CharacterMemory) TableName() string {
	return "character_memories"
}

// ScoredMemory 带检索得分的记忆, 得分为余弦相似度 [0,1]
type ScoredMemory struct {
	Memory    *CharacterMemory
	Relevance float64
}
