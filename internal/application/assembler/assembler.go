// Package assembler 每回合为模型装配确定性的分级上下文,
// 只读访问持久层, 不做任何状态修改
package assembler

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storyforge-api/internal/config"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/gateway"
	"storyforge-api/internal/domain/repository"
	apperrors "storyforge-api/pkg/errors"
	"storyforge-api/pkg/logger"
)

var tracer = otel.Tracer("assembler")

// Deps 装配器依赖的只读仓储集合
type Deps struct {
	Stories       repository.StoryRepository
	Playthroughs  repository.PlaythroughRepository
	Characters    repository.CharacterRepository
	States        repository.CharacterStateRepository
	Relationships repository.RelationshipRepository
	Goals         repository.GoalRepository
	Beliefs       repository.BeliefRepository
	Avoidances    repository.AvoidanceRepository
	Knowledge     repository.KnowledgeRepository
	Memories      repository.MemoryRepository
	Vectors       repository.MemoryVectorStore
	Scenes        repository.SceneRepository
	Arcs          repository.ArcRepository
	Flags         repository.FlagRepository
	Conversations repository.ConversationRepository
}

// Assembler 上下文装配器
type Assembler struct {
	deps     Deps
	embedder gateway.Embedder
	cfg      config.ContextConfig
	emotion  config.EmotionConfig
}

// New 创建上下文装配器. embedder 可为 nil, 此时语义相关性取 1.0
func New(deps Deps, embedder gateway.Embedder, cfg config.ContextConfig, emotion config.EmotionConfig) *Assembler {
	return &Assembler{
		deps:     deps,
		embedder: embedder,
		cfg:      cfg,
		emotion:  emotion,
	}
}

// Assemble 装配一个回合的上下文.
// 缺失必需实体时立即返回 MISSING_ENTITY 错误, 绝不用占位符继续
func (a *Assembler) Assemble(ctx context.Context, playthroughID, sessionID, userAction string) (*Bundle, error) {
	ctx, span := tracer.Start(ctx, "assembler.Assemble",
		trace.WithAttributes(attribute.String("playthrough_id", playthroughID)))
	defer span.End()

	playthrough, err := a.deps.Playthroughs.GetByID(ctx, playthroughID)
	if err != nil {
		return nil, fmt.Errorf("failed to load playthrough: %w", err)
	}
	if playthrough == nil {
		return nil, apperrors.MissingEntity("playthrough", playthroughID)
	}

	story, err := a.deps.Stories.GetByID(ctx, playthrough.StoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load story: %w", err)
	}
	if story == nil {
		return nil, apperrors.MissingEntity("story", playthrough.StoryID)
	}

	scene, err := a.deps.Scenes.GetByPlaythrough(ctx, playthroughID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scene: %w", err)
	}
	if scene == nil {
		return nil, apperrors.MissingEntity("scene", playthroughID)
	}

	player, err := a.deps.Characters.GetPlayer(ctx, playthroughID)
	if err != nil {
		return nil, fmt.Errorf("failed to load player character: %w", err)
	}
	if player == nil {
		return nil, apperrors.MissingEntity("player_character", playthroughID)
	}

	present, err := a.loadPresent(ctx, scene, player.ID)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{
		PlaythroughID: playthroughID,
		SessionID:     sessionID,
		UserAction:    userAction,
		Story:         story,
		Scene:         scene,
		Player:        player,
		Present:       present,
		States:        make(map[string]*entity.CharacterState, len(present)),
		Relationships: make(map[string]*entity.Relationship, len(present)),
		Goals:         make(map[string][]*entity.CharacterGoal, len(present)),
		Memories:      make(map[string][]entity.ScoredMemory, len(present)),
		Beliefs:       make(map[string][]*entity.CharacterBelief, len(present)),
		Avoidances:    make(map[string][]*entity.CharacterAvoidance, len(present)),
		Knowledge:     make(map[string][]*entity.CharacterKnowledge, len(present)),
		AssembledAt:   time.Now(),
		acuteHalfLife: a.emotion.AcuteHalfLife,
		deepHalfLife:  a.emotion.DeepHalfLife,
	}

	// 用户动作只向量化一次, 供所有角色的记忆检索复用
	var actionVector []float32
	if a.embedder != nil && a.deps.Vectors != nil {
		actionVector, err = a.embedder.EmbedText(ctx, userAction)
		if err != nil {
			// 检索降级, 语义相关性取 1.0
			logger.FromContext(ctx).Warn("embedding unavailable, falling back to recency ranking", "error", err)
			actionVector = nil
		}
	}

	for _, c := range present {
		if err := a.loadCharacterContext(ctx, bundle, c, actionVector); err != nil {
			return nil, err
		}
	}

	history, err := a.deps.Conversations.ListRecent(ctx, sessionID, a.cfg.HistoryTurns*2)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}
	bundle.History = history

	arcs, err := a.deps.Arcs.ListActiveByPlaythrough(ctx, playthroughID)
	if err != nil {
		return nil, fmt.Errorf("failed to load story arcs: %w", err)
	}
	bundle.Arcs = arcs

	flags, err := a.deps.Flags.ListByPlaythrough(ctx, playthroughID)
	if err != nil {
		return nil, fmt.Errorf("failed to load story flags: %w", err)
	}
	bundle.Flags = flags

	span.SetAttributes(
		attribute.Int("present_count", len(present)),
		attribute.Int("history_count", len(history)),
	)
	return bundle, nil
}

// loadPresent 加载在场 NPC (不含玩家), 按场景加入顺序排列
func (a *Assembler) loadPresent(ctx context.Context, scene *entity.SceneState, playerID string) ([]*entity.Character, error) {
	sceneChars, err := a.deps.Scenes.ListPresent(ctx, scene.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scene roster: %w", err)
	}

	ids := make([]string, 0, len(sceneChars))
	for _, sc := range sceneChars {
		if sc.CharacterID == playerID {
			continue
		}
		ids = append(ids, sc.CharacterID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	characters, err := a.deps.Characters.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load present characters: %w", err)
	}
	for i, c := range characters {
		if c == nil {
			return nil, apperrors.MissingEntity("character", ids[i])
		}
	}
	return characters, nil
}

// loadCharacterContext 加载单个角色的状态/关系/目标/记忆/信念/回避/知识
func (a *Assembler) loadCharacterContext(ctx context.Context, b *Bundle, c *entity.Character, actionVector []float32) error {
	state, err := a.deps.States.GetByCharacter(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to load character state: %w", err)
	}
	if state == nil {
		return apperrors.MissingEntity("character_state", c.ID)
	}
	b.States[c.ID] = state

	rel, err := a.deps.Relationships.GetByPair(ctx, b.PlaythroughID, c.ID, b.Player.ID)
	if err != nil {
		return fmt.Errorf("failed to load relationship: %w", err)
	}
	if rel == nil {
		return apperrors.MissingEntity("relationship", c.ID+"->"+b.Player.ID)
	}
	b.Relationships[c.ID] = rel

	goals, err := a.deps.Goals.ListActiveByCharacter(ctx, c.ID, a.cfg.GoalTopK)
	if err != nil {
		return fmt.Errorf("failed to load goals: %w", err)
	}
	b.Goals[c.ID] = goals

	memories, err := a.rankMemories(ctx, b.PlaythroughID, c.ID, actionVector, b.AssembledAt)
	if err != nil {
		return err
	}
	b.Memories[c.ID] = memories

	beliefs, err := a.deps.Beliefs.ListByCharacter(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to load beliefs: %w", err)
	}
	b.Beliefs[c.ID] = beliefs

	avoidances, err := a.deps.Avoidances.ListByCharacter(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to load avoidances: %w", err)
	}
	b.Avoidances[c.ID] = triggeredAvoidances(avoidances, b.UserAction, b.SceneDescription())

	knowledge, err := a.deps.Knowledge.ListByCharacter(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to load knowledge: %w", err)
	}
	b.Knowledge[c.ID] = knowledge

	return nil
}

// rankMemories 记忆检索与排序.
// 得分 = importance/10 × 0.5^(age/halfLife) × 语义相关性,
// 向量检索不可用时相关性取 1.0, 排序以记忆 ID 做稳定决胜
func (a *Assembler) rankMemories(ctx context.Context, playthroughID, characterID string, actionVector []float32, now time.Time) ([]entity.ScoredMemory, error) {
	topK := a.cfg.MemoryTopK
	if topK <= 0 {
		topK = 7
	}

	relevance := make(map[string]float64)
	var candidates []*entity.CharacterMemory

	if actionVector != nil {
		hits, err := a.deps.Vectors.Search(ctx, playthroughID, characterID, actionVector, topK*3)
		if err != nil {
			logger.FromContext(ctx).Warn("vector search failed, falling back to recency ranking", "error", err)
		} else if len(hits) > 0 {
			ids := make([]string, 0, len(hits))
			for _, h := range hits {
				ids = append(ids, h.MemoryID)
				relevance[h.MemoryID] = h.Score
			}
			candidates, err = a.deps.Memories.GetByIDs(ctx, ids)
			if err != nil {
				return nil, fmt.Errorf("failed to load memories: %w", err)
			}
		}
	}

	if candidates == nil {
		var err error
		candidates, err = a.deps.Memories.ListByCharacter(ctx, characterID, topK*3)
		if err != nil {
			return nil, fmt.Errorf("failed to load memories: %w", err)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	halfLife := a.cfg.MemoryRecencyHalfLife
	scored := make([]entity.ScoredMemory, 0, len(candidates))
	for _, m := range candidates {
		if m == nil {
			continue
		}
		rel, ok := relevance[m.ID]
		if !ok {
			rel = 1.0
		}
		age := now.Sub(m.OccurredAt)
		recency := 1.0
		if halfLife > 0 && age > 0 {
			recency = math.Pow(0.5, age.Hours()/halfLife.Hours())
		}
		scored = append(scored, entity.ScoredMemory{
			Memory:    m,
			Relevance: float64(m.Importance) / 10.0 * recency * rel,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Relevance != scored[j].Relevance {
			return scored[i].Relevance > scored[j].Relevance
		}
		return scored[i].Memory.ID < scored[j].Memory.ID
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}

	ids := make([]string, 0, len(scored))
	for _, s := range scored {
		ids = append(ids, s.Memory.ID)
	}
	if err := a.deps.Memories.MarkRecalled(ctx, ids); err != nil {
		logger.FromContext(ctx).Warn("failed to mark memories recalled", "error", err)
	}

	return scored, nil
}

// triggeredAvoidances 回避项触发判定: 目标词出现在用户动作或场景描述中
func triggeredAvoidances(avoidances []*entity.CharacterAvoidance, userAction, sceneDescription string) []*entity.CharacterAvoidance {
	if len(avoidances) == 0 {
		return nil
	}
	haystack := strings.ToLower(userAction + " " + sceneDescription)
	var triggered []*entity.CharacterAvoidance
	for _, av := range avoidances {
		target := strings.ToLower(strings.TrimSpace(av.Target))
		if target == "" {
			continue
		}
		if strings.Contains(haystack, target) {
			triggered = append(triggered, av)
		}
	}
	return triggered
}
