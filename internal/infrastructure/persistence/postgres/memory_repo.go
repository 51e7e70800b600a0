// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"storyforge-api/internal/domain/entity"
)

// MemoryRepository 角色记忆仓储实现
type MemoryRepository struct {
	client *Client
}

// NewMemoryRepository 创建角色记忆仓储
func NewMemoryRepository(client *Client) *MemoryRepository {
	return &MemoryRepository{client: client}
}

// Create 创建记忆
func (r *MemoryRepository) Create(ctx context.Context, memory *entity.CharacterMemory) error {
	ctx, span := tracer.Start(ctx, "postgres.MemoryRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(memory).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create memory: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取记忆
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*entity.CharacterMemory, error) {
	ctx, span := tracer.Start(ctx, "postgres.MemoryRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var memory entity.CharacterMemory
	if err := db.First(&memory, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return &memory, nil
}

// GetByIDs 批量获取记忆, 返回顺序与入参一致
func (r *MemoryRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.CharacterMemory, error) {
	ctx, span := tracer.Start(ctx, "postgres.MemoryRepository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	db := getDB(ctx, r.client.db)
	var memories []*entity.CharacterMemory
	if err := db.Where("id IN ?", ids).Find(&memories).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get memories: %w", err)
	}

	byID := make(map[string]*entity.CharacterMemory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}
	ordered := make([]*entity.CharacterMemory, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			ordered = append(ordered, m)
		}
	}
	return ordered, nil
}

// ListByCharacter 获取角色记忆, 按重要度与时间排序
func (r *MemoryRepository) ListByCharacter(ctx context.Context, characterID string, limit int) ([]*entity.CharacterMemory, error) {
	ctx, span := tracer.Start(ctx, "postgres.MemoryRepository.ListByCharacter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Where("character_id = ?", characterID).
		Order("importance DESC, created_at DESC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var memories []*entity.CharacterMemory
	if err := query.Find(&memories).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	return memories, nil
}

// MarkRecalled 记录记忆被召回
func (r *MemoryRepository) MarkRecalled(ctx context.Context, ids []string) error {
	ctx, span := tracer.Start(ctx, "postgres.MemoryRepository.MarkRecalled")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	db := getDB(ctx, r.client.db)
	now := time.Now()
	if err := db.Model(&entity.CharacterMemory{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"recall_count":     gorm.Expr("recall_count + 1"),
			"last_recalled_at": now,
		}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark memories recalled: %w", err)
	}
	return nil
}
