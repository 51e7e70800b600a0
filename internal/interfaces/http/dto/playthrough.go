package dto

import (
	"time"

	"storyforge-api/internal/domain/entity"
)

// StartPlaythroughRequest 开局请求
type StartPlaythroughRequest struct {
	StoryID string `json:"story_id" binding:"required,uuid"`
	Title   string `json:"title,omitempty"`
}

// PlaythroughResponse 游玩会话响应
type PlaythroughResponse struct {
	ID          string `json:"id"`
	StoryID     string `json:"story_id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	SessionID   string `json:"session_id,omitempty"`
	OpeningText string `json:"opening_text,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// NewPlaythroughResponse 从实体构建游玩会话响应
func NewPlaythroughResponse(play *entity.Playthrough) *PlaythroughResponse {
	return &PlaythroughResponse{
		ID:        play.ID,
		StoryID:   play.StoryID,
		Title:     play.Title,
		Status:    string(play.Status),
		CreatedAt: play.CreatedAt.Format(time.RFC3339),
	}
}

// CharacterResponse 角色响应, 不暴露秘密/恐惧/隐藏约束
type CharacterResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsPlayer    bool   `json:"is_player"`
	Description string `json:"description,omitempty"`
}

// NewCharacterResponse 从实体构建角色响应
func NewCharacterResponse(c *entity.Character) *CharacterResponse {
	return &CharacterResponse{
		ID:          c.ID,
		Name:        c.Name,
		IsPlayer:    c.IsPlayer,
		Description: c.Description,
	}
}

// CharacterListResponse 角色列表响应
type CharacterListResponse struct {
	Characters []*CharacterResponse `json:"characters"`
}

// CharacterStateResponse 角色状态响应, 情绪强度为衰减后的有效值
type CharacterStateResponse struct {
	CharacterID      string  `json:"character_id"`
	CurrentEmotion   string  `json:"current_emotion"`
	EmotionIntensity float64 `json:"emotion_intensity"`
	Stress           float64 `json:"stress"`
	Energy           float64 `json:"energy"`
	PrimaryConcern   string  `json:"primary_concern,omitempty"`
	UpdatedAt        string  `json:"updated_at"`
}
