// Package playthrough 游玩会话开局: 把不可变的故事模板深拷贝为
// 一套独立演化的实例数据. 模板行 playthrough_id 为空, 实例行非空,
// 同一故事的多次游玩互不可见
package playthrough

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/gateway"
	"storyforge-api/internal/domain/repository"
	"storyforge-api/internal/infrastructure/persistence/postgres"
	apperrors "storyforge-api/pkg/errors"
	"storyforge-api/pkg/logger"
)

var tracer = otel.Tracer("playthrough")

const (
	templateGoalLimit   = 100
	templateMemoryLimit = 500

	// 开局后模板记忆向量化的总预算
	embedBudget = 2 * time.Minute
)

// Repos 开局服务依赖的仓储集合
type Repos struct {
	Stories       repository.StoryRepository
	Playthroughs  repository.PlaythroughRepository
	Characters    repository.CharacterRepository
	States        repository.CharacterStateRepository
	Goals         repository.GoalRepository
	Memories      repository.MemoryRepository
	Beliefs       repository.BeliefRepository
	Avoidances    repository.AvoidanceRepository
	Knowledge     repository.KnowledgeRepository
	Relationships repository.RelationshipRepository
	Arcs          repository.ArcRepository
	Scenes        repository.SceneRepository
	Sessions      repository.SessionRepository
	Vectors       repository.MemoryVectorStore
}

// Service 游玩会话开局服务
type Service struct {
	repos    Repos
	tx       *postgres.TxManager
	embedder gateway.Embedder
}

// NewService 创建开局服务. embedder 为 nil 时克隆记忆不做向量化,
// 检索退化为纯时近排序
func NewService(repos Repos, tx *postgres.TxManager, embedder gateway.Embedder) *Service {
	return &Service{repos: repos, tx: tx, embedder: embedder}
}

// Start 从故事模板开局一次新的游玩会话.
// 单事务内克隆全部模板数据, 任何一步失败整体回滚,
// 不产生半实例化的游玩会话
func (s *Service) Start(ctx context.Context, storyID, title string) (*entity.Playthrough, *entity.Session, error) {
	ctx, span := tracer.Start(ctx, "playthrough.Start")
	defer span.End()
	span.SetAttributes(attribute.String("story_id", storyID))

	story, err := s.repos.Stories.GetByID(ctx, storyID)
	if err != nil {
		return nil, nil, fmt.Errorf("load story: %w", err)
	}
	if story == nil {
		return nil, nil, apperrors.ErrStoryNotFound
	}
	if title == "" {
		title = story.Title
	}

	templates, err := s.repos.Characters.ListTemplatesByStory(ctx, storyID)
	if err != nil {
		return nil, nil, fmt.Errorf("list template characters: %w", err)
	}
	if len(templates) == 0 {
		return nil, nil, apperrors.ErrInvalidParam.WithDetail("story has no characters")
	}

	play := entity.NewPlaythrough(storyID, title)
	var session *entity.Session
	var clonedMemories []*entity.CharacterMemory

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.repos.Playthroughs.Create(ctx, play); err != nil {
			return fmt.Errorf("create playthrough: %w", err)
		}

		// 先克隆全部角色拿到新 ID, 关系重映射依赖完整映射表
		idMap := make(map[string]string, len(templates))
		for _, tmpl := range templates {
			clone := tmpl.CloneInto(play.ID)
			if err := s.repos.Characters.Create(ctx, clone); err != nil {
				return fmt.Errorf("clone character %s: %w", tmpl.ID, err)
			}
			idMap[tmpl.ID] = clone.ID
		}

		for _, tmpl := range templates {
			memories, err := s.cloneCharacterData(ctx, play.ID, tmpl.ID, idMap[tmpl.ID])
			if err != nil {
				return fmt.Errorf("clone character data %s: %w", tmpl.ID, err)
			}
			clonedMemories = append(clonedMemories, memories...)
		}

		if err := s.cloneRelationships(ctx, play.ID, templates, idMap); err != nil {
			return err
		}
		if err := s.cloneArcs(ctx, storyID, play.ID); err != nil {
			return err
		}

		scene := &entity.SceneState{
			PlaythroughID: play.ID,
			Summary:       story.OpeningText,
		}
		if err := s.repos.Scenes.Create(ctx, scene); err != nil {
			return fmt.Errorf("create scene: %w", err)
		}
		// 非玩家角色开局全部在场
		for _, tmpl := range templates {
			if tmpl.IsPlayer {
				continue
			}
			sc := &entity.SceneCharacter{SceneID: scene.ID, CharacterID: idMap[tmpl.ID]}
			if err := s.repos.Scenes.AddCharacter(ctx, sc); err != nil {
				return fmt.Errorf("seat character: %w", err)
			}
		}

		session = &entity.Session{PlaythroughID: play.ID}
		if err := s.repos.Sessions.Create(ctx, session); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	go s.embedMemories(context.WithoutCancel(ctx), play.ID, clonedMemories)

	logger.FromContext(ctx).Info("playthrough started",
		"playthrough_id", play.ID,
		"story_id", storyID,
		"characters", len(templates),
		"memories", len(clonedMemories))
	return play, session, nil
}

// cloneCharacterData 克隆单个角色的状态/目标/记忆/信念/回避/知识
func (s *Service) cloneCharacterData(ctx context.Context, playthroughID, templateID, cloneID string) ([]*entity.CharacterMemory, error) {
	state, err := s.repos.States.GetByCharacter(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if state != nil {
		stateClone := *state
		stateClone.ID = ""
		stateClone.CharacterID = cloneID
		stateClone.PlaythroughID = &playthroughID
		if err := s.repos.States.Create(ctx, &stateClone); err != nil {
			return nil, fmt.Errorf("clone state: %w", err)
		}
	}

	goals, err := s.repos.Goals.ListActiveByCharacter(ctx, templateID, templateGoalLimit)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	for _, goal := range goals {
		clone := *goal
		clone.ID = ""
		clone.CharacterID = cloneID
		clone.PlaythroughID = &playthroughID
		if err := s.repos.Goals.Create(ctx, &clone); err != nil {
			return nil, fmt.Errorf("clone goal: %w", err)
		}
	}

	var cloned []*entity.CharacterMemory
	memories, err := s.repos.Memories.ListByCharacter(ctx, templateID, templateMemoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	for _, memory := range memories {
		clone := *memory
		clone.ID = ""
		clone.CharacterID = cloneID
		clone.PlaythroughID = &playthroughID
		clone.RecallCount = 0
		clone.LastRecalledAt = nil
		if err := s.repos.Memories.Create(ctx, &clone); err != nil {
			return nil, fmt.Errorf("clone memory: %w", err)
		}
		cloned = append(cloned, &clone)
	}

	beliefs, err := s.repos.Beliefs.ListByCharacter(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("list beliefs: %w", err)
	}
	for _, belief := range beliefs {
		clone := *belief
		clone.ID = ""
		clone.CharacterID = cloneID
		clone.PlaythroughID = &playthroughID
		clone.OriginMemoryID = nil
		if err := s.repos.Beliefs.Create(ctx, &clone); err != nil {
			return nil, fmt.Errorf("clone belief: %w", err)
		}
	}

	avoidances, err := s.repos.Avoidances.ListByCharacter(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("list avoidances: %w", err)
	}
	for _, av := range avoidances {
		clone := *av
		clone.ID = ""
		clone.CharacterID = cloneID
		clone.PlaythroughID = &playthroughID
		clone.ReasonMemoryID = nil
		if err := s.repos.Avoidances.Create(ctx, &clone); err != nil {
			return nil, fmt.Errorf("clone avoidance: %w", err)
		}
	}

	knowledge, err := s.repos.Knowledge.ListByCharacter(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	for _, k := range knowledge {
		clone := *k
		clone.ID = ""
		clone.CharacterID = cloneID
		clone.PlaythroughID = &playthroughID
		clone.AccessCount = 0
		if err := s.repos.Knowledge.Create(ctx, &clone); err != nil {
			return nil, fmt.Errorf("clone knowledge: %w", err)
		}
	}
	return cloned, nil
}

// cloneRelationships 克隆模板关系并把两端 ID 重映射到实例角色
func (s *Service) cloneRelationships(ctx context.Context, playthroughID string, templates []*entity.Character, idMap map[string]string) error {
	for _, tmpl := range templates {
		relationships, err := s.repos.Relationships.ListByCharacter(ctx, tmpl.ID)
		if err != nil {
			return fmt.Errorf("list relationships %s: %w", tmpl.ID, err)
		}
		for _, rel := range relationships {
			targetID, ok := idMap[rel.TargetCharacterID]
			if !ok {
				// 指向其他故事角色的模板行, 不属于本次开局
				continue
			}
			clone := *rel
			clone.ID = ""
			clone.CharacterID = idMap[tmpl.ID]
			clone.TargetCharacterID = targetID
			clone.PlaythroughID = &playthroughID
			if err := s.repos.Relationships.Create(ctx, &clone); err != nil {
				return fmt.Errorf("clone relationship: %w", err)
			}
		}
	}
	return nil
}

func (s *Service) cloneArcs(ctx context.Context, storyID, playthroughID string) error {
	arcs, err := s.repos.Arcs.ListTemplatesByStory(ctx, storyID)
	if err != nil {
		return fmt.Errorf("list arcs: %w", err)
	}
	for _, arc := range arcs {
		clone := arc.CloneInto(playthroughID)
		if err := s.repos.Arcs.Create(ctx, clone); err != nil {
			return fmt.Errorf("clone arc %s: %w", arc.ID, err)
		}
	}
	return nil
}

// embedMemories 开局后为克隆记忆建立向量, 失败只降级检索质量
func (s *Service) embedMemories(ctx context.Context, playthroughID string, memories []*entity.CharacterMemory) {
	if s.embedder == nil || s.repos.Vectors == nil || len(memories) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, embedBudget)
	defer cancel()
	log := logger.FromContext(ctx)

	for _, memory := range memories {
		vector, err := s.embedder.EmbedText(ctx, memory.Content)
		if err != nil {
			log.Warn("memory embedding failed", "memory_id", memory.ID, "error", err)
			continue
		}
		if err := s.repos.Vectors.Upsert(ctx, playthroughID, memory.CharacterID, memory.ID, vector); err != nil {
			log.Warn("memory vector upsert failed", "memory_id", memory.ID, "error", err)
		}
	}
}
