package dto

import (
	"time"

	"storyforge-api/internal/domain/entity"
)

// StoryResponse 故事模板响应
type StoryResponse struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	OpeningText   string `json:"opening_text,omitempty"`
	ContentRating string `json:"content_rating"`
	CreatedAt     string `json:"created_at"`
}

// NewStoryResponse 从实体构建故事响应
func NewStoryResponse(story *entity.Story) *StoryResponse {
	return &StoryResponse{
		ID:            story.ID,
		Title:         story.Title,
		Description:   story.Description,
		OpeningText:   story.OpeningText,
		ContentRating: string(story.ContentRating),
		CreatedAt:     story.CreatedAt.Format(time.RFC3339),
	}
}

// StoryListResponse 故事列表响应
type StoryListResponse struct {
	Stories []*StoryResponse `json:"stories"`
}
