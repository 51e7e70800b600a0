// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"storyforge-api/internal/domain/entity"
)

// CharacterRepository 角色仓储接口
// 模板行 playthrough_id 为空, 实例行非空, 两类行绝不共用写路径
type CharacterRepository interface {
	// Create 创建角色
	Create(ctx context.Context, character *entity.Character) error

	// GetByID 根据 ID 获取角色
	GetByID(ctx context.Context, id string) (*entity.Character, error)

	// ListTemplatesByStory 获取故事的模板角色列表
	ListTemplatesByStory(ctx context.Context, storyID string) ([]*entity.Character, error)

	// ListByPlaythrough 获取游玩会话的实例角色列表
	ListByPlaythrough(ctx context.Context, playthroughID string) ([]*entity.Character, error)

	// GetByIDs 批量获取角色
	GetByIDs(ctx context.Context, ids []string) ([]*entity.Character, error)

	// GetPlayer 获取游玩会话中的玩家角色
	GetPlayer(ctx context.Context, playthroughID string) (*entity.Character, error)
}

// CharacterStateRepository 角色状态仓储接口
type CharacterStateRepository interface {
	// Create 创建角色状态
	Create(ctx context.Context, state *entity.CharacterState) error

	// GetByCharacter 获取角色当前状态
	GetByCharacter(ctx context.Context, characterID string) (*entity.CharacterState, error)

	// Update 更新角色状态
	Update(ctx context.Context, state *entity.CharacterState) error

	// ListByCharacters 批量获取角色状态
	ListByCharacters(ctx context.Context, characterIDs []string) ([]*entity.CharacterState, error)
}
