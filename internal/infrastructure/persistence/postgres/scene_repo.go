// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storyforge-api/internal/domain/entity"
)

// SceneRepository 场景状态仓储实现
type SceneRepository struct {
	client *Client
}

// NewSceneRepository 创建场景状态仓储
func NewSceneRepository(client *Client) *SceneRepository {
	return &SceneRepository{client: client}
}

// Create 创建场景状态
func (r *SceneRepository) Create(ctx context.Context, scene *entity.SceneState) error {
	ctx, span := tracer.Start(ctx, "postgres.SceneRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(scene).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create scene: %w", err)
	}
	return nil
}

// GetByPlaythrough 获取游玩会话的当前场景
func (r *SceneRepository) GetByPlaythrough(ctx context.Context, playthroughID string) (*entity.SceneState, error) {
	ctx, span := tracer.Start(ctx, "postgres.SceneRepository.GetByPlaythrough")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var scene entity.SceneState
	if err := db.Where("playthrough_id = ?", playthroughID).First(&scene).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get scene: %w", err)
	}
	return &scene, nil
}

// Update 更新场景状态
func (r *SceneRepository) Update(ctx context.Context, scene *entity.SceneState) error {
	ctx, span := tracer.Start(ctx, "postgres.SceneRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(scene).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update scene: %w", err)
	}
	return nil
}

// ListPresent 获取场景在场角色
func (r *SceneRepository) ListPresent(ctx context.Context, sceneID string) ([]*entity.SceneCharacter, error) {
	ctx, span := tracer.Start(ctx, "postgres.SceneRepository.ListPresent")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var present []*entity.SceneCharacter
	if err := db.Where("scene_id = ?", sceneID).
		Order("created_at ASC, id ASC").Find(&present).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list scene characters: %w", err)
	}
	return present, nil
}

// AddCharacter 角色进入场景
func (r *SceneRepository) AddCharacter(ctx context.Context, sc *entity.SceneCharacter) error {
	ctx, span := tracer.Start(ctx, "postgres.SceneRepository.AddCharacter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(sc).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to add scene character: %w", err)
	}
	return nil
}

// RemoveCharacter 角色离开场景
func (r *SceneRepository) RemoveCharacter(ctx context.Context, sceneID, characterID string) error {
	ctx, span := tracer.Start(ctx, "postgres.SceneRepository.RemoveCharacter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("scene_id = ? AND character_id = ?", sceneID, characterID).
		Delete(&entity.SceneCharacter{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to remove scene character: %w", err)
	}
	return nil
}

// UpdateCharacter 更新在场角色状态
func (r *SceneRepository) UpdateCharacter(ctx context.Context, sc *entity.SceneCharacter) error {
	ctx, span := tracer.Start(ctx, "postgres.SceneRepository.UpdateCharacter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(sc).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update scene character: %w", err)
	}
	return nil
}

// FlagRepository 故事标记仓储实现
type FlagRepository struct {
	client *Client
}

// NewFlagRepository 创建故事标记仓储
func NewFlagRepository(client *Client) *FlagRepository {
	return &FlagRepository{client: client}
}

// Set 设置标记, 同名标记覆盖
func (r *FlagRepository) Set(ctx context.Context, flag *entity.StoryFlag) error {
	ctx, span := tracer.Start(ctx, "postgres.FlagRepository.Set")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "playthrough_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "set_by_turn_id", "updated_at"}),
	}).Create(flag).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set flag: %w", err)
	}
	return nil
}

// Get 读取标记
func (r *FlagRepository) Get(ctx context.Context, playthroughID, name string) (*entity.StoryFlag, error) {
	ctx, span := tracer.Start(ctx, "postgres.FlagRepository.Get")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var flag entity.StoryFlag
	if err := db.Where("playthrough_id = ? AND name = ?", playthroughID, name).
		First(&flag).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get flag: %w", err)
	}
	return &flag, nil
}

// ListByPlaythrough 获取游玩会话全部标记
func (r *FlagRepository) ListByPlaythrough(ctx context.Context, playthroughID string) ([]*entity.StoryFlag, error) {
	ctx, span := tracer.Start(ctx, "postgres.FlagRepository.ListByPlaythrough")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var flags []*entity.StoryFlag
	if err := db.Where("playthrough_id = ?", playthroughID).
		Order("name ASC").Find(&flags).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list flags: %w", err)
	}
	return flags, nil
}

// ArcRepository 故事弧线仓储实现
type ArcRepository struct {
	client *Client
}

// NewArcRepository 创建故事弧线仓储
func NewArcRepository(client *Client) *ArcRepository {
	return &ArcRepository{client: client}
}

// Create 创建弧线
func (r *ArcRepository) Create(ctx context.Context, arc *entity.StoryArc) error {
	ctx, span := tracer.Start(ctx, "postgres.ArcRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(arc).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create arc: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取弧线
func (r *ArcRepository) GetByID(ctx context.Context, id string) (*entity.StoryArc, error) {
	ctx, span := tracer.Start(ctx, "postgres.ArcRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var arc entity.StoryArc
	if err := db.First(&arc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get arc: %w", err)
	}
	return &arc, nil
}

// Update 更新弧线
func (r *ArcRepository) Update(ctx context.Context, arc *entity.StoryArc) error {
	ctx, span := tracer.Start(ctx, "postgres.ArcRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(arc).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update arc: %w", err)
	}
	return nil
}

// ListTemplatesByStory 获取故事的模板弧线列表
func (r *ArcRepository) ListTemplatesByStory(ctx context.Context, storyID string) ([]*entity.StoryArc, error) {
	ctx, span := tracer.Start(ctx, "postgres.ArcRepository.ListTemplatesByStory")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var arcs []*entity.StoryArc
	if err := db.Where("story_id = ? AND playthrough_id IS NULL", storyID).
		Order("created_at ASC, id ASC").Find(&arcs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list template arcs: %w", err)
	}
	return arcs, nil
}

// ListActiveByPlaythrough 获取游玩会话的活跃弧线
func (r *ArcRepository) ListActiveByPlaythrough(ctx context.Context, playthroughID string) ([]*entity.StoryArc, error) {
	ctx, span := tracer.Start(ctx, "postgres.ArcRepository.ListActiveByPlaythrough")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var arcs []*entity.StoryArc
	if err := db.Where("playthrough_id = ? AND status = ?", playthroughID, entity.ArcStatusActive).
		Order("created_at ASC, id ASC").Find(&arcs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list active arcs: %w", err)
	}
	return arcs, nil
}

// ListEpisodes 获取弧线剧情节拍
func (r *ArcRepository) ListEpisodes(ctx context.Context, arcID string) ([]*entity.StoryEpisode, error) {
	ctx, span := tracer.Start(ctx, "postgres.ArcRepository.ListEpisodes")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var episodes []*entity.StoryEpisode
	if err := db.Where("arc_id = ?", arcID).
		Order("sequence ASC").Find(&episodes).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	return episodes, nil
}
