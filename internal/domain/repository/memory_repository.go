// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"storyforge-api/internal/domain/entity"
)

// MemoryRepository 角色记忆仓储接口
type MemoryRepository interface {
	// Create 创建记忆
	Create(ctx context.Context, memory *entity.CharacterMemory) error

	// GetByID 根据 ID 获取记忆
	GetByID(ctx context.Context, id string) (*entity.CharacterMemory, error)

	// GetByIDs 批量获取记忆, 返回顺序与入参一致
	GetByIDs(ctx context.Context, ids []string) ([]*entity.CharacterMemory, error)

	// ListByCharacter 获取角色记忆, 按重要度与时间排序
	ListByCharacter(ctx context.Context, characterID string, limit int) ([]*entity.CharacterMemory, error)

	// MarkRecalled 记录记忆被召回
	MarkRecalled(ctx context.Context, ids []string) error
}

// MemoryVectorStore 记忆向量存储接口 (语义检索端口)
type MemoryVectorStore interface {
	// Upsert 写入记忆向量, 按游玩会话分区
	Upsert(ctx context.Context, playthroughID, characterID, memoryID string, vector []float32) error

	// Search 按余弦相似度检索角色记忆, 返回记忆 ID 与得分
	Search(ctx context.Context, playthroughID, characterID string, vector []float32, topK int) ([]VectorHit, error)

	// DropPlaythrough 删除游玩会话的全部向量
	DropPlaythrough(ctx context.Context, playthroughID string) error
}

// VectorHit 向量检索命中
type VectorHit struct {
	MemoryID string
	Score    float64
}
