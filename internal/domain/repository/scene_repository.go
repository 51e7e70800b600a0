// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"storyforge-api/internal/domain/entity"
)

// SceneRepository 场景状态仓储接口
type SceneRepository interface {
	// Create 创建场景状态
	Create(ctx context.Context, scene *entity.SceneState) error

	// GetByPlaythrough 获取游玩会话的当前场景
	GetByPlaythrough(ctx context.Context, playthroughID string) (*entity.SceneState, error)

	// Update 更新场景状态
	Update(ctx context.Context, scene *entity.SceneState) error

	// ListPresent 获取场景在场角色
	ListPresent(ctx context.Context, sceneID string) ([]*entity.SceneCharacter, error)

	// AddCharacter 角色进入场景
	AddCharacter(ctx context.Context, sc *entity.SceneCharacter) error

	// RemoveCharacter 角色离开场景
	RemoveCharacter(ctx context.Context, sceneID, characterID string) error

	// UpdateCharacter 更新在场角色状态
	UpdateCharacter(ctx context.Context, sc *entity.SceneCharacter) error
}

// FlagRepository 故事标记仓储接口
type FlagRepository interface {
	// Set 设置标记, 同名标记覆盖
	Set(ctx context.Context, flag *entity.StoryFlag) error

	// Get 读取标记
	Get(ctx context.Context, playthroughID, name string) (*entity.StoryFlag, error)

	// ListByPlaythrough 获取游玩会话全部标记
	ListByPlaythrough(ctx context.Context, playthroughID string) ([]*entity.StoryFlag, error)
}

// ArcRepository 故事弧线仓储接口
type ArcRepository interface {
	// Create 创建弧线
	Create(ctx context.Context, arc *entity.StoryArc) error

	// GetByID 根据 ID 获取弧线
	GetByID(ctx context.Context, id string) (*entity.StoryArc, error)

	// Update 更新弧线
	Update(ctx context.Context, arc *entity.StoryArc) error

	// ListTemplatesByStory 获取故事的模板弧线列表
	ListTemplatesByStory(ctx context.Context, storyID string) ([]*entity.StoryArc, error)

	// ListActiveByPlaythrough 获取游玩会话的活跃弧线
	ListActiveByPlaythrough(ctx context.Context, playthroughID string) ([]*entity.StoryArc, error)

	// ListEpisodes 获取弧线剧情节拍
	ListEpisodes(ctx context.Context, arcID string) ([]*entity.StoryEpisode, error)
}
