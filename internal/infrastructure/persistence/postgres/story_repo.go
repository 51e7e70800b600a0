// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/repository"
)

// StoryRepository 故事模板仓储实现
type StoryRepository struct {
	client *Client
}

// NewStoryRepository 创建故事模板仓储
func NewStoryRepository(client *Client) *StoryRepository {
	return &StoryRepository{client: client}
}

// Create 创建故事模板
func (r *StoryRepository) Create(ctx context.Context, story *entity.Story) error {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(story).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create story: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取故事模板
func (r *StoryRepository) GetByID(ctx context.Context, id string) (*entity.Story, error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var story entity.Story
	if err := db.First(&story, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	return &story, nil
}

// List 分页获取故事模板列表
func (r *StoryRepository) List(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.Story], error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.List")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Story{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count stories: %w", err)
	}

	var stories []*entity.Story
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).Limit(pagination.Limit()).
		Find(&stories).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}

	return repository.NewPagedResult(stories, total, pagination), nil
}

// PlaythroughRepository 游玩会话仓储实现
type PlaythroughRepository struct {
	client *Client
}

// NewPlaythroughRepository 创建游玩会话仓储
func NewPlaythroughRepository(client *Client) *PlaythroughRepository {
	return &PlaythroughRepository{client: client}
}

// Create 创建游玩会话
func (r *PlaythroughRepository) Create(ctx context.Context, playthrough *entity.Playthrough) error {
	ctx, span := tracer.Start(ctx, "postgres.PlaythroughRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(playthrough).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create playthrough: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取游玩会话
func (r *PlaythroughRepository) GetByID(ctx context.Context, id string) (*entity.Playthrough, error) {
	ctx, span := tracer.Start(ctx, "postgres.PlaythroughRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var playthrough entity.Playthrough
	if err := db.First(&playthrough, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get playthrough: %w", err)
	}
	return &playthrough, nil
}

// Update 更新游玩会话
func (r *PlaythroughRepository) Update(ctx context.Context, playthrough *entity.Playthrough) error {
	ctx, span := tracer.Start(ctx, "postgres.PlaythroughRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(playthrough).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update playthrough: %w", err)
	}
	return nil
}

// ListByStory 获取故事的游玩会话列表
func (r *PlaythroughRepository) ListByStory(ctx context.Context, storyID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Playthrough], error) {
	ctx, span := tracer.Start(ctx, "postgres.PlaythroughRepository.ListByStory")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Playthrough{}).Where("story_id = ?", storyID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count playthroughs: %w", err)
	}

	var playthroughs []*entity.Playthrough
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).Limit(pagination.Limit()).
		Find(&playthroughs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list playthroughs: %w", err)
	}

	return repository.NewPagedResult(playthroughs, total, pagination), nil
}
