// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"storyforge-api/internal/domain/entity"
)

// GoalRepository 角色目标仓储实现
type GoalRepository struct {
	client *Client
}

// NewGoalRepository 创建角色目标仓储
func NewGoalRepository(client *Client) *GoalRepository {
	return &GoalRepository{client: client}
}

// Create 创建目标
func (r *GoalRepository) Create(ctx context.Context, goal *entity.CharacterGoal) error {
	ctx, span := tracer.Start(ctx, "postgres.GoalRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(goal).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create goal: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取目标
func (r *GoalRepository) GetByID(ctx context.Context, id string) (*entity.CharacterGoal, error) {
	ctx, span := tracer.Start(ctx, "postgres.GoalRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var goal entity.CharacterGoal
	if err := db.First(&goal, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}
	return &goal, nil
}

// Update 更新目标
func (r *GoalRepository) Update(ctx context.Context, goal *entity.CharacterGoal) error {
	ctx, span := tracer.Start(ctx, "postgres.GoalRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(goal).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update goal: %w", err)
	}
	return nil
}

// ListActiveByCharacter 按优先级降序获取角色活跃目标, 同优先级按 ID 升序
func (r *GoalRepository) ListActiveByCharacter(ctx context.Context, characterID string, limit int) ([]*entity.CharacterGoal, error) {
	ctx, span := tracer.Start(ctx, "postgres.GoalRepository.ListActiveByCharacter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Where("character_id = ? AND status = ?", characterID, entity.GoalStatusActive).
		Order("priority DESC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var goals []*entity.CharacterGoal
	if err := query.Find(&goals).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list active goals: %w", err)
	}
	return goals, nil
}

// BeliefRepository 角色信念仓储实现
type BeliefRepository struct {
	client *Client
}

// NewBeliefRepository 创建角色信念仓储
func NewBeliefRepository(client *Client) *BeliefRepository {
	return &BeliefRepository{client: client}
}

// Create 创建信念
func (r *BeliefRepository) Create(ctx context.Context, belief *entity.CharacterBelief) error {
	ctx, span := tracer.Start(ctx, "postgres.BeliefRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(belief).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create belief: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取信念
func (r *BeliefRepository) GetByID(ctx context.Context, id string) (*entity.CharacterBelief, error) {
	ctx, span := tracer.Start(ctx, "postgres.BeliefRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var belief entity.CharacterBelief
	if err := db.First(&belief, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get belief: %w", err)
	}
	return &belief, nil
}

// Update 更新信念
func (r *BeliefRepository) Update(ctx context.Context, belief *entity.CharacterBelief) error {
	ctx, span := tracer.Start(ctx, "postgres.BeliefRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(belief).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update belief: %w", err)
	}
	return nil
}

// ListByCharacter 获取角色信念列表
func (r *BeliefRepository) ListByCharacter(ctx context.Context, characterID string) ([]*entity.CharacterBelief, error) {
	ctx, span := tracer.Start(ctx, "postgres.BeliefRepository.ListByCharacter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var beliefs []*entity.CharacterBelief
	if err := db.Where("character_id = ?", characterID).
		Order("strength DESC, id ASC").Find(&beliefs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list beliefs: %w", err)
	}
	return beliefs, nil
}

// AvoidanceRepository 角色回避项仓储实现
type AvoidanceRepository struct {
	client *Client
}

// NewAvoidanceRepository 创建角色回避项仓储
func NewAvoidanceRepository(client *Client) *AvoidanceRepository {
	return &AvoidanceRepository{client: client}
}

// Create 创建回避项
func (r *AvoidanceRepository) Create(ctx context.Context, avoidance *entity.CharacterAvoidance) error {
	ctx, span := tracer.Start(ctx, "postgres.AvoidanceRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(avoidance).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create avoidance: %w", err)
	}
	return nil
}

// ListByCharacter 获取角色回避项列表
func (r *AvoidanceRepository) ListByCharacter(ctx context.Context, characterID string) ([]*entity.CharacterAvoidance, error) {
	ctx, span := tracer.Start(ctx, "postgres.AvoidanceRepository.ListByCharacter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var avoidances []*entity.CharacterAvoidance
	if err := db.Where("character_id = ?", characterID).
		Order("severity DESC, id ASC").Find(&avoidances).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list avoidances: %w", err)
	}
	return avoidances, nil
}

// KnowledgeRepository 角色知识仓储实现
type KnowledgeRepository struct {
	client *Client
}

// NewKnowledgeRepository 创建角色知识仓储
func NewKnowledgeRepository(client *Client) *KnowledgeRepository {
	return &KnowledgeRepository{client: client}
}

// Create 创建知识记录
func (r *KnowledgeRepository) Create(ctx context.Context, knowledge *entity.CharacterKnowledge) error {
	ctx, span := tracer.Start(ctx, "postgres.KnowledgeRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(knowledge).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create knowledge: %w", err)
	}
	return nil
}

// ListByCharacter 获取角色知识列表
func (r *KnowledgeRepository) ListByCharacter(ctx context.Context, characterID string) ([]*entity.CharacterKnowledge, error) {
	ctx, span := tracer.Start(ctx, "postgres.KnowledgeRepository.ListByCharacter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var knowledge []*entity.CharacterKnowledge
	if err := db.Where("character_id = ?", characterID).
		Order("created_at DESC, id ASC").Find(&knowledge).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list knowledge: %w", err)
	}
	return knowledge, nil
}

// MarkAccessed 记录知识被访问
func (r *KnowledgeRepository) MarkAccessed(ctx context.Context, ids []string) error {
	ctx, span := tracer.Start(ctx, "postgres.KnowledgeRepository.MarkAccessed")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.CharacterKnowledge{}).
		Where("id IN ?", ids).
		Update("access_count", gorm.Expr("access_count + 1")).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark knowledge accessed: %w", err)
	}
	return nil
}
