// Package entity 定义领域实体
package entity

import (
	"time"
)

// Role 对话角色枚举
type Role string

const (
	RoleUser     Role = "user"
	RoleNarrator Role = "narrator"
)

// Session 玩家会话, 一次游玩可跨多个会话
type Session struct {
	ID            string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	PlaythroughID string    `json:"playthrough_id" gorm:"type:uuid;index;not null"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Session) TableName() string {
	return "sessions"
}

// ConversationMessage 对话消息, 最近 N 条进入上下文装配
type ConversationMessage struct {
	ID            string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID     string    `json:"session_id" gorm:"type:uuid;index;not null"`
	PlaythroughID string    `json:"playthrough_id" gorm:"type:uuid;index;not null"`
	TurnID        string    `json:"turn_id" gorm:"type:uuid;index"`
	Role          Role      `json:"role" gorm:"type:varchar(16);not null"`
	Content       string    `json:"content" gorm:"type:text;not null"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (ConversationMessage) TableName() string {
	return "conversation_messages"
}

func NewConversationMessage(sessionID, playthroughID, turnID string, role Role, content string) *ConversationMessage {
	return &ConversationMessage{
		SessionID:     sessionID,
		PlaythroughID: playthroughID,
		TurnID:        turnID,
		Role:          role,
		Content:       content,
		CreatedAt:     time.Now(),
	}
}
