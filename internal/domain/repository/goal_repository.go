// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"storyforge-api/internal/domain/entity"
)

// GoalRepository 角色目标仓储接口
type GoalRepository interface {
	// Create 创建目标
	Create(ctx context.Context, goal *entity.CharacterGoal) error

	// GetByID 根据 ID 获取目标
	GetByID(ctx context.Context, id string) (*entity.CharacterGoal, error)

	// Update 更新目标
	Update(ctx context.Context, goal *entity.CharacterGoal) error

	// ListActiveByCharacter 按优先级降序获取角色活跃目标,
	// 同优先级按 ID 升序保证排序确定性
	ListActiveByCharacter(ctx context.Context, characterID string, limit int) ([]*entity.CharacterGoal, error)
}

// BeliefRepository 角色信念仓储接口
type BeliefRepository interface {
	// Create 创建信念
	Create(ctx context.Context, belief *entity.CharacterBelief) error

	// GetByID 根据 ID 获取信念
	GetByID(ctx context.Context, id string) (*entity.CharacterBelief, error)

	// Update 更新信念
	Update(ctx context.Context, belief *entity.CharacterBelief) error

	// ListByCharacter 获取角色信念列表
	ListByCharacter(ctx context.Context, characterID string) ([]*entity.CharacterBelief, error)
}

// AvoidanceRepository 角色回避项仓储接口
type AvoidanceRepository interface {
	// Create 创建回避项
	Create(ctx context.Context, avoidance *entity.CharacterAvoidance) error

	// ListByCharacter 获取角色回避项列表
	ListByCharacter(ctx context.Context, characterID string) ([]*entity.CharacterAvoidance, error)
}

// KnowledgeRepository 角色知识仓储接口
type KnowledgeRepository interface {
	// Create 创建知识记录
	Create(ctx context.Context, knowledge *entity.CharacterKnowledge) error

	// ListByCharacter 获取角色知识列表
	ListByCharacter(ctx context.Context, characterID string) ([]*entity.CharacterKnowledge, error)

	// MarkAccessed 记录知识被访问
	MarkAccessed(ctx context.Context, ids []string) error
}
