// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"storyforge-api/internal/domain/entity"
)

// RelationshipRepository 角色关系仓储接口
type RelationshipRepository interface {
	// Create 创建关系
	Create(ctx context.Context, relationship *entity.Relationship) error

	// GetByPair 获取有向角色对的关系
	GetByPair(ctx context.Context, playthroughID, characterID, targetCharacterID string) (*entity.Relationship, error)

	// Update 更新关系
	Update(ctx context.Context, relationship *entity.Relationship) error

	// ListByCharacter 获取角色的全部出向关系
	ListByCharacter(ctx context.Context, characterID string) ([]*entity.Relationship, error)

	// ListByPlaythrough 获取游玩会话的全部关系
	ListByPlaythrough(ctx context.Context, playthroughID string) ([]*entity.Relationship, error)
}
