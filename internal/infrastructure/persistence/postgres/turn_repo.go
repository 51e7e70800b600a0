// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/repository"
)

// TurnRepository 回合审计仓储实现
type TurnRepository struct {
	client *Client
}

// NewTurnRepository 创建回合审计仓储
func NewTurnRepository(client *Client) *TurnRepository {
	return &TurnRepository{client: client}
}

// Create 创建回合记录
func (r *TurnRepository) Create(ctx context.Context, turn *entity.Turn) error {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(turn).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create turn: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取回合记录
func (r *TurnRepository) GetByID(ctx context.Context, id string) (*entity.Turn, error) {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var turn entity.Turn
	if err := db.First(&turn, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get turn: %w", err)
	}
	return &turn, nil
}

// Update 更新回合记录
func (r *TurnRepository) Update(ctx context.Context, turn *entity.Turn) error {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(turn).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update turn: %w", err)
	}
	return nil
}

// ListByPlaythrough 获取游玩会话的回合历史
func (r *TurnRepository) ListByPlaythrough(ctx context.Context, playthroughID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Turn], error) {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.ListByPlaythrough")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Turn{}).Where("playthrough_id = ?", playthroughID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count turns: %w", err)
	}

	var turns []*entity.Turn
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).Limit(pagination.Limit()).
		Find(&turns).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}

	return repository.NewPagedResult(turns, total, pagination), nil
}

// MarkApplied 写入指定实体类型的回写完成标记, 已存在时返回 false
func (r *TurnRepository) MarkApplied(ctx context.Context, turnID, playthroughID, entityType string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.MarkApplied")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&entity.AppliedTurn{
		TurnID:        turnID,
		EntityType:    entityType,
		PlaythroughID: playthroughID,
	})
	if result.Error != nil {
		span.RecordError(result.Error)
		return false, fmt.Errorf("failed to mark turn applied: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// IsApplied 指定实体类型的效果是否已回写
func (r *TurnRepository) IsApplied(ctx context.Context, turnID, entityType string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.IsApplied")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	if err := db.Model(&entity.AppliedTurn{}).
		Where("turn_id = ? AND entity_type = ?", turnID, entityType).Count(&count).Error; err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to check applied turn: %w", err)
	}
	return count > 0, nil
}

// SessionRepository 玩家会话仓储实现
type SessionRepository struct {
	client *Client
}

// NewSessionRepository 创建玩家会话仓储
func NewSessionRepository(client *Client) *SessionRepository {
	return &SessionRepository{client: client}
}

// Create 创建会话
func (r *SessionRepository) Create(ctx context.Context, session *entity.Session) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(session).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取会话
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entity.Session, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var session entity.Session
	if err := db.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// ConversationRepository 对话消息仓储实现
type ConversationRepository struct {
	client *Client
}

// NewConversationRepository 创建对话消息仓储
func NewConversationRepository(client *Client) *ConversationRepository {
	return &ConversationRepository{client: client}
}

// Append 追加对话消息
func (r *ConversationRepository) Append(ctx context.Context, message *entity.ConversationMessage) error {
	ctx, span := tracer.Start(ctx, "postgres.ConversationRepository.Append")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(message).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListRecent 获取会话最近 N 条消息, 按时间升序返回
func (r *ConversationRepository) ListRecent(ctx context.Context, sessionID string, limit int) ([]*entity.ConversationMessage, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConversationRepository.ListRecent")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var messages []*entity.ConversationMessage
	if err := db.Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").Limit(limit).
		Find(&messages).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	// 反转为时间升序
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
