// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"storyforge-api/internal/domain/entity"
)

// CharacterRepository 角色仓储实现
type CharacterRepository struct {
	client *Client
}

// NewCharacterRepository 创建角色仓储
func NewCharacterRepository(client *Client) *CharacterRepository {
	return &CharacterRepository{client: client}
}

// Create 创建角色
func (r *CharacterRepository) Create(ctx context.Context, character *entity.Character) error {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(character).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create character: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取角色
func (r *CharacterRepository) GetByID(ctx context.Context, id string) (*entity.Character, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var character entity.Character
	if err := db.First(&character, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get character: %w", err)
	}
	return &character, nil
}

// ListTemplatesByStory 获取故事的模板角色列表
func (r *CharacterRepository) ListTemplatesByStory(ctx context.Context, storyID string) ([]*entity.Character, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.ListTemplatesByStory")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var characters []*entity.Character
	if err := db.Where("story_id = ? AND playthrough_id IS NULL", storyID).
		Order("name ASC").Find(&characters).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list template characters: %w", err)
	}
	return characters, nil
}

// ListByPlaythrough 获取游玩会话的实例角色列表
func (r *CharacterRepository) ListByPlaythrough(ctx context.Context, playthroughID string) ([]*entity.Character, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.ListByPlaythrough")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var characters []*entity.Character
	if err := db.Where("playthrough_id = ?", playthroughID).
		Order("name ASC").Find(&characters).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	return characters, nil
}

// GetByIDs 批量获取角色
func (r *CharacterRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.Character, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	db := getDB(ctx, r.client.db)
	var characters []*entity.Character
	if err := db.Where("id IN ?", ids).Find(&characters).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get characters: %w", err)
	}
	return characters, nil
}

// GetPlayer 获取游玩会话中的玩家角色
func (r *CharacterRepository) GetPlayer(ctx context.Context, playthroughID string) (*entity.Character, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.GetPlayer")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var character entity.Character
	if err := db.Where("playthrough_id = ? AND is_player = true", playthroughID).
		First(&character).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get player character: %w", err)
	}
	return &character, nil
}

// CharacterStateRepository 角色状态仓储实现
type CharacterStateRepository struct {
	client *Client
}

// NewCharacterStateRepository 创建角色状态仓储
func NewCharacterStateRepository(client *Client) *CharacterStateRepository {
	return &CharacterStateRepository{client: client}
}

// Create 创建角色状态
func (r *CharacterStateRepository) Create(ctx context.Context, state *entity.CharacterState) error {
	ctx, span := tracer.Start(ctx, "postgres.CharacterStateRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(state).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create character state: %w", err)
	}
	return nil
}

// GetByCharacter 获取角色当前状态
func (r *CharacterStateRepository) GetByCharacter(ctx context.Context, characterID string) (*entity.CharacterState, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterStateRepository.GetByCharacter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var state entity.CharacterState
	if err := db.Where("character_id = ?", characterID).First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get character state: %w", err)
	}
	return &state, nil
}

// Update 更新角色状态
func (r *CharacterStateRepository) Update(ctx context.Context, state *entity.CharacterState) error {
	ctx, span := tracer.Start(ctx, "postgres.CharacterStateRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(state).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update character state: %w", err)
	}
	return nil
}

// ListByCharacters 批量获取角色状态
func (r *CharacterStateRepository) ListByCharacters(ctx context.Context, characterIDs []string) ([]*entity.CharacterState, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterStateRepository.ListByCharacters")
	defer span.End()

	if len(characterIDs) == 0 {
		return nil, nil
	}

	db := getDB(ctx, r.client.db)
	var states []*entity.CharacterState
	if err := db.Where("character_id IN ?", characterIDs).Find(&states).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list character states: %w", err)
	}
	return states, nil
}
