// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"storyforge-api/internal/domain/entity"
)

// TurnRepository 回合审计仓储接口
type TurnRepository interface {
	// Create 创建回合记录
	Create(ctx context.Context, turn *entity.Turn) error

	// GetByID 根据 ID 获取回合记录
	GetByID(ctx context.Context, id string) (*entity.Turn, error)

	// Update 更新回合记录
	Update(ctx context.Context, turn *entity.Turn) error

	// ListByPlaythrough 获取游玩会话的回合历史
	ListByPlaythrough(ctx context.Context, playthroughID string, pagination Pagination) (*PagedResult[*entity.Turn], error)

	// MarkApplied 写入指定实体类型的回写完成标记, 已存在时返回 false
	MarkApplied(ctx context.Context, turnID, playthroughID, entityType string) (bool, error)

	// IsApplied 指定实体类型的效果是否已回写
	IsApplied(ctx context.Context, turnID, entityType string) (bool, error)
}

// SessionRepository 玩家会话仓储接口
type SessionRepository interface {
	// Create 创建会话
	Create(ctx context.Context, session *entity.Session) error

	// GetByID 根据 ID 获取会话
	GetByID(ctx context.Context, id string) (*entity.Session, error)
}

// ConversationRepository 对话消息仓储接口
type ConversationRepository interface {
	// Append 追加对话消息
	Append(ctx context.Context, message *entity.ConversationMessage) error

	// ListRecent 获取会话最近 N 条消息, 按时间升序返回
	ListRecent(ctx context.Context, sessionID string, limit int) ([]*entity.ConversationMessage, error)
}
