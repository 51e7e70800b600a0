// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"storyforge-api/internal/domain/entity"
)

// StoryRepository 故事模板仓储接口
type StoryRepository interface {
	// Create 创建故事模板
	Create(ctx context.Context, story *entity.Story) error

	// GetByID 根据 ID 获取故事模板
	GetByID(ctx context.Context, id string) (*entity.Story, error)

	// List 分页获取故事模板列表
	List(ctx context.Context, pagination Pagination) (*PagedResult[*entity.Story], error)
}

// PlaythroughRepository 游玩会话仓储接口
type PlaythroughRepository interface {
	// Create 创建游玩会话
	Create(ctx context.Context, playthrough *entity.Playthrough) error

	// GetByID 根据 ID 获取游玩会话
	GetByID(ctx context.Context, id string) (*entity.Playthrough, error)

	// Update 更新游玩会话
	Update(ctx context.Context, playthrough *entity.Playthrough) error

	// ListByStory 获取故事的游玩会话列表
	ListByStory(ctx context.Context, storyID string, pagination Pagination) (*PagedResult[*entity.Playthrough], error)
}
