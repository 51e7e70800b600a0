// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"storyforge-api/internal/domain/entity"
)

// RelationshipRepository 角色关系仓储实现
type RelationshipRepository struct {
	client *Client
}

// NewRelationshipRepository 创建角色关系仓储
func NewRelationshipRepository(client *Client) *RelationshipRepository {
	return &RelationshipRepository{client: client}
}

// Create 创建关系
func (r *RelationshipRepository) Create(ctx context.Context, relationship *entity.Relationship) error {
	ctx, span := tracer.Start(ctx, "postgres.RelationshipRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(relationship).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create relationship: %w", err)
	}
	return nil
}

// GetByPair 获取有向角色对的关系
func (r *RelationshipRepository) GetByPair(ctx context.Context, playthroughID, characterID, targetCharacterID string) (*entity.Relationship, error) {
	ctx, span := tracer.Start(ctx, "postgres.RelationshipRepository.GetByPair")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var relationship entity.Relationship
	err := db.Where("playthrough_id = ? AND character_id = ? AND target_character_id = ?",
		playthroughID, characterID, targetCharacterID).
		First(&relationship).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get relationship: %w", err)
	}
	return &relationship, nil
}

// Update 更新关系
func (r *RelationshipRepository) Update(ctx context.Context, relationship *entity.Relationship) error {
	ctx, span := tracer.Start(ctx, "postgres.RelationshipRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(relationship).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update relationship: %w", err)
	}
	return nil
}

// ListByCharacter 获取角色的全部出向关系
func (r *RelationshipRepository) ListByCharacter(ctx context.Context, characterID string) ([]*entity.Relationship, error) {
	ctx, span := tracer.Start(ctx, "postgres.RelationshipRepository.ListByCharacter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var relationships []*entity.Relationship
	if err := db.Where("character_id = ?", characterID).
		Order("importance DESC, id ASC").Find(&relationships).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	return relationships, nil
}

// ListByPlaythrough 获取游玩会话的全部关系
func (r *RelationshipRepository) ListByPlaythrough(ctx context.Context, playthroughID string) ([]*entity.Relationship, error) {
	ctx, span := tracer.Start(ctx, "postgres.RelationshipRepository.ListByPlaythrough")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var relationships []*entity.Relationship
	if err := db.Where("playthrough_id = ?", playthroughID).
		Order("id ASC").Find(&relationships).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	return relationships, nil
}
