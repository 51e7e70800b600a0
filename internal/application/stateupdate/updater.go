// Package stateupdate 状态回写器: 回合释放后异步应用全部状态效果.
// 回写按固定顺序应用, 各实体类型之间错误隔离,
// 同一回合通过 applied_turns 标记幂等去重
package stateupdate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"storyforge-api/internal/config"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/gateway"
	"storyforge-api/internal/domain/repository"
	rediscache "storyforge-api/internal/infrastructure/persistence/redis"
	"storyforge-api/pkg/logger"
	"storyforge-api/pkg/metrics"
)

var tracer = otel.Tracer("stateupdate")

// Repos 回写器依赖的仓储集合
type Repos struct {
	Turns         repository.TurnRepository
	Relationships repository.RelationshipRepository
	States        repository.CharacterStateRepository
	Memories      repository.MemoryRepository
	Vectors       repository.MemoryVectorStore
	Knowledge     repository.KnowledgeRepository
	Goals         repository.GoalRepository
	Flags         repository.FlagRepository
	Beliefs       repository.BeliefRepository
	Scenes        repository.SceneRepository
	Arcs          repository.ArcRepository
}

// Updater 状态回写器
type Updater struct {
	repos    Repos
	embedder gateway.Embedder
	cache    *rediscache.Cache
	relCfg   config.RelationshipConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New 创建状态回写器. embedder 与 cache 允许为 nil,
// 此时跳过向量写入与缓存失效
func New(repos Repos, embedder gateway.Embedder, cache *rediscache.Cache, relCfg config.RelationshipConfig) *Updater {
	if relCfg.MaxDeltaPerTurn <= 0 {
		relCfg.MaxDeltaPerTurn = 0.3
	}
	if relCfg.MaxFamiliarityPerTurn <= 0 {
		relCfg.MaxFamiliarityPerTurn = 0.2
	}
	if relCfg.MinAppliedDelta <= 0 {
		relCfg.MinAppliedDelta = 0.01
	}
	return &Updater{
		repos:    repos,
		embedder: embedder,
		cache:    cache,
		relCfg:   relCfg,
		locks:    make(map[string]*sync.Mutex),
	}
}

// playthroughLock 同一游玩会话的回写串行化, 不同会话互不阻塞
func (u *Updater) playthroughLock(playthroughID string) *sync.Mutex {
	u.mu.Lock()
	defer u.mu.Unlock()
	lock, ok := u.locks[playthroughID]
	if !ok {
		lock = &sync.Mutex{}
		u.locks[playthroughID] = lock
	}
	return lock
}

// Apply 应用一个回合的全部状态效果.
// 重复投递通过去重标记跳过; 部分实体类型失败不阻塞其余类型,
// 失败汇总为返回错误供消费端重试计数与死信归档
func (u *Updater) Apply(ctx context.Context, effects *entity.TurnEffects) error {
	ctx, span := tracer.Start(ctx, "stateupdate.Apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("turn_id", effects.TurnID),
		attribute.String("playthrough_id", effects.PlaythroughID),
	)

	lock := u.playthroughLock(effects.PlaythroughID)
	lock.Lock()
	defer lock.Unlock()

	log := logger.FromContext(ctx)

	// 完成标记按实体类型粒度记录, 且在该类型成功落库之后写入.
	// 部分失败的回合重投递时只补写失败的类型
	var errs []error
	applied := 0
	apply := func(entityType string, fn func(ctx context.Context) error) {
		done, err := u.repos.Turns.IsApplied(ctx, effects.TurnID, entityType)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: check applied: %w", entityType, err))
			return
		}
		if done {
			metrics.StateUpdateTotal.WithLabelValues(entityType, "skipped").Inc()
			return
		}
		if err := fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entityType, err))
			metrics.StateUpdateTotal.WithLabelValues(entityType, "error").Inc()
			log.Error("state effect application failed",
				"turn_id", effects.TurnID, "entity_type", entityType, "error", err)
			return
		}
		if _, err := u.repos.Turns.MarkApplied(ctx, effects.TurnID, effects.PlaythroughID, entityType); err != nil {
			errs = append(errs, fmt.Errorf("%s: mark applied: %w", entityType, err))
			return
		}
		applied++
		metrics.StateUpdateTotal.WithLabelValues(entityType, "success").Inc()
	}

	apply("relationship", func(ctx context.Context) error {
		return u.applyRelationships(ctx, effects)
	})
	apply("character_state", func(ctx context.Context) error {
		return u.applyStateTransitions(ctx, effects)
	})
	apply("memory", func(ctx context.Context) error {
		return u.applyMemories(ctx, effects)
	})
	apply("knowledge", func(ctx context.Context) error {
		return u.applyKnowledge(ctx, effects)
	})
	apply("goal", func(ctx context.Context) error {
		return u.applyGoals(ctx, effects)
	})
	apply("flag", func(ctx context.Context) error {
		return u.applyFlags(ctx, effects)
	})
	apply("belief", func(ctx context.Context) error {
		return u.applyBeliefs(ctx, effects)
	})
	apply("scene", func(ctx context.Context) error {
		return u.applyScene(ctx, effects)
	})
	apply("arc", func(ctx context.Context) error {
		return u.applyArcs(ctx, effects)
	})

	if applied == 0 && len(errs) == 0 {
		log.Info("turn effects already applied, skipping", "turn_id", effects.TurnID)
		return nil
	}

	u.invalidateCaches(ctx, effects)

	return errors.Join(errs...)
}

func (u *Updater) applyRelationships(ctx context.Context, effects *entity.TurnEffects) error {
	var errs []error
	for _, delta := range effects.RelationshipDeltas {
		clamped := delta.ClampDelta(u.relCfg.MaxDeltaPerTurn, u.relCfg.MaxFamiliarityPerTurn)
		if !clamped.Significant(u.relCfg.MinAppliedDelta) {
			continue
		}
		rel, err := u.repos.Relationships.GetByPair(ctx, effects.PlaythroughID, delta.CharacterID, delta.TargetCharacterID)
		if err != nil {
			errs = append(errs, fmt.Errorf("relationship %s->%s: %w", delta.CharacterID, delta.TargetCharacterID, err))
			continue
		}
		rel.Apply(clamped)
		if clamped.Reason != "" {
			rel.HistorySummary = appendSummary(rel.HistorySummary, clamped.Reason)
		}
		if err := u.repos.Relationships.Update(ctx, rel); err != nil {
			errs = append(errs, fmt.Errorf("relationship %s->%s: %w", delta.CharacterID, delta.TargetCharacterID, err))
		}
	}
	return errors.Join(errs...)
}

func (u *Updater) applyStateTransitions(ctx context.Context, effects *entity.TurnEffects) error {
	now := time.Now()
	var errs []error
	for _, tr := range effects.StateTransitions {
		state, err := u.repos.States.GetByCharacter(ctx, tr.CharacterID)
		if err != nil {
			errs = append(errs, fmt.Errorf("state %s: %w", tr.CharacterID, err))
			continue
		}
		if tr.NewEmotion != "" {
			state.CurrentEmotion = tr.NewEmotion
			state.EmotionIntensity = entity.Clamp01(tr.EmotionIntensity)
			if tr.EmotionClass != "" {
				state.EmotionClass = tr.EmotionClass
			}
			state.EmotionStartedAt = now
		}
		state.Stress = entity.Clamp01(state.Stress + tr.StressChange)
		state.Energy = entity.Clamp01(state.Energy + tr.EnergyChange)
		if tr.PrimaryConcern != "" {
			state.PrimaryConcern = tr.PrimaryConcern
		}
		if err := u.repos.States.Update(ctx, state); err != nil {
			errs = append(errs, fmt.Errorf("state %s: %w", tr.CharacterID, err))
		}
	}
	return errors.Join(errs...)
}

func (u *Updater) applyMemories(ctx context.Context, effects *entity.TurnEffects) error {
	now := time.Now()
	var errs []error
	for _, m := range effects.NewMemories {
		importance := m.Importance
		if importance < 1 {
			importance = 1
		}
		if importance > 10 {
			importance = 10
		}
		memory := &entity.CharacterMemory{
			CharacterID:        m.CharacterID,
			PlaythroughID:      &effects.PlaythroughID,
			Content:            m.Content,
			Importance:         importance,
			EmotionalValence:   clampRange(m.EmotionalValence, -1, 1),
			EmotionalIntensity: entity.Clamp01(m.EmotionalIntensity),
			Tags:               m.Tags,
			OccurredAt:         now,
		}
		if err := u.repos.Memories.Create(ctx, memory); err != nil {
			errs = append(errs, fmt.Errorf("memory for %s: %w", m.CharacterID, err))
			continue
		}
		if u.embedder == nil || u.repos.Vectors == nil {
			continue
		}
		vector, err := u.embedder.EmbedText(ctx, memory.Content)
		if err != nil {
			// 向量缺失只降级检索质量, 记忆本体已落库
			logger.FromContext(ctx).Warn("memory embedding failed",
				"memory_id", memory.ID, "error", err)
			continue
		}
		if err := u.repos.Vectors.Upsert(ctx, effects.PlaythroughID, memory.CharacterID, memory.ID, vector); err != nil {
			logger.FromContext(ctx).Warn("memory vector upsert failed",
				"memory_id", memory.ID, "error", err)
		}
	}
	return errors.Join(errs...)
}

func (u *Updater) applyKnowledge(ctx context.Context, effects *entity.TurnEffects) error {
	var errs []error
	for _, k := range effects.Knowledge {
		record := &entity.CharacterKnowledge{
			CharacterID:   k.CharacterID,
			PlaythroughID: &effects.PlaythroughID,
			Subject:       k.Subject,
			Content:       k.Content,
			Source:        k.Source,
			Certainty:     entity.Clamp01(k.Certainty),
		}
		if err := u.repos.Knowledge.Create(ctx, record); err != nil {
			errs = append(errs, fmt.Errorf("knowledge for %s: %w", k.CharacterID, err))
		}
	}
	return errors.Join(errs...)
}

func (u *Updater) applyGoals(ctx context.Context, effects *entity.TurnEffects) error {
	var errs []error
	for _, g := range effects.GoalProgress {
		goal, err := u.repos.Goals.GetByID(ctx, g.GoalID)
		if err != nil {
			errs = append(errs, fmt.Errorf("goal %s: %w", g.GoalID, err))
			continue
		}
		if g.NewStatus != "" {
			goal.Status = g.NewStatus
		}
		if g.ProgressNote != "" {
			goal.ProgressNote = appendSummary(goal.ProgressNote, g.ProgressNote)
		}
		if err := u.repos.Goals.Update(ctx, goal); err != nil {
			errs = append(errs, fmt.Errorf("goal %s: %w", g.GoalID, err))
		}
	}
	return errors.Join(errs...)
}

func (u *Updater) applyFlags(ctx context.Context, effects *entity.TurnEffects) error {
	var errs []error
	for _, f := range effects.Flags {
		flag := &entity.StoryFlag{
			PlaythroughID: effects.PlaythroughID,
			Name:          f.Name,
			Value:         f.Value,
			SetByTurnID:   effects.TurnID,
		}
		if err := u.repos.Flags.Set(ctx, flag); err != nil {
			errs = append(errs, fmt.Errorf("flag %s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (u *Updater) applyBeliefs(ctx context.Context, effects *entity.TurnEffects) error {
	var errs []error
	for _, b := range effects.Beliefs {
		belief, err := u.repos.Beliefs.GetByID(ctx, b.BeliefID)
		if err != nil {
			errs = append(errs, fmt.Errorf("belief %s: %w", b.BeliefID, err))
			continue
		}
		belief.Strength = entity.Clamp01(belief.Strength + b.StrengthChange)
		if b.Challenged {
			belief.IsChallenged = true
		}
		if err := u.repos.Beliefs.Update(ctx, belief); err != nil {
			errs = append(errs, fmt.Errorf("belief %s: %w", b.BeliefID, err))
		}
	}
	return errors.Join(errs...)
}

func (u *Updater) applyScene(ctx context.Context, effects *entity.TurnEffects) error {
	if effects.SceneDelta == nil || effects.SceneDelta.Empty() {
		return nil
	}
	delta := effects.SceneDelta
	scene, err := u.repos.Scenes.GetByPlaythrough(ctx, effects.PlaythroughID)
	if err != nil {
		return err
	}
	if delta.LocationChanged && delta.NewLocation != "" {
		scene.Location = delta.NewLocation
	}
	if delta.TimeChanged && delta.NewTimeOfDay != "" {
		scene.TimeOfDay = delta.NewTimeOfDay
	}
	if delta.WeatherChanged && delta.NewWeather != "" {
		scene.Weather = delta.NewWeather
	}
	if delta.MoodChanged && delta.NewMood != "" {
		scene.Mood = delta.NewMood
	}
	if err := u.repos.Scenes.Update(ctx, scene); err != nil {
		return err
	}

	var errs []error
	for _, characterID := range delta.CharactersEnter {
		sc := &entity.SceneCharacter{SceneID: scene.ID, CharacterID: characterID}
		if err := u.repos.Scenes.AddCharacter(ctx, sc); err != nil {
			errs = append(errs, fmt.Errorf("enter %s: %w", characterID, err))
		}
	}
	for _, characterID := range delta.CharactersLeave {
		if err := u.repos.Scenes.RemoveCharacter(ctx, scene.ID, characterID); err != nil {
			errs = append(errs, fmt.Errorf("leave %s: %w", characterID, err))
		}
	}
	return errors.Join(errs...)
}

func (u *Updater) applyArcs(ctx context.Context, effects *entity.TurnEffects) error {
	var errs []error
	for _, a := range effects.ArcProgress {
		arc, err := u.repos.Arcs.GetByID(ctx, a.ArcID)
		if err != nil {
			errs = append(errs, fmt.Errorf("arc %s: %w", a.ArcID, err))
			continue
		}
		// 弧线阶段只能前进
		if a.NewStage > arc.Stage {
			arc.Stage = a.NewStage
		}
		if a.NewStatus != "" {
			arc.Status = a.NewStatus
		}
		if err := u.repos.Arcs.Update(ctx, arc); err != nil {
			errs = append(errs, fmt.Errorf("arc %s: %w", a.ArcID, err))
		}
	}
	return errors.Join(errs...)
}

// invalidateCaches 回写完成后失效读缓存, 失败仅告警
func (u *Updater) invalidateCaches(ctx context.Context, effects *entity.TurnEffects) {
	if u.cache == nil {
		return
	}
	if err := u.cache.InvalidatePlaythrough(ctx, effects.PlaythroughID); err != nil {
		logger.FromContext(ctx).Warn("cache invalidation failed",
			"playthrough_id", effects.PlaythroughID, "error", err)
	}
}

func appendSummary(existing, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return existing
	}
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

func clampRange(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
