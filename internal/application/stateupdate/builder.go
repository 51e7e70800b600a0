package stateupdate

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"storyforge-api/internal/application/assembler"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/gateway"
	"storyforge-api/internal/workflow/node"
	"storyforge-api/internal/workflow/prompt"
	"storyforge-api/pkg/logger"
)

const (
	analysisMaxTokens  = 250
	extractMaxTokens   = 350
	analysisConcurrent = 4
)

// Builder 从回合产物推导状态效果: 关系增量与新记忆走分析模型,
// 角色状态迁移直接取自决策输出. 分析失败的角色跳过,
// 缺失的效果比错误的效果代价低
type Builder struct {
	completer   gateway.Completer
	prompts     *prompt.Registry
	callTimeout time.Duration
}

// NewBuilder 创建效果推导器
func NewBuilder(completer gateway.Completer, prompts *prompt.Registry, callTimeout time.Duration) *Builder {
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	return &Builder{completer: completer, prompts: prompts, callTimeout: callTimeout}
}

// Build 推导一个回合的状态效果.
// 关系分析与记忆提取按角色并发, sceneDelta 由场景变化检测单独提供
func (b *Builder) Build(ctx context.Context, turnID string, bundle *assembler.Bundle, decisions []entity.CharacterDecision, narrativeText string, sceneDelta *entity.SceneDelta) *entity.TurnEffects {
	ctx, span := tracer.Start(ctx, "stateupdate.Build")
	defer span.End()

	effects := &entity.TurnEffects{
		TurnID:        turnID,
		PlaythroughID: bundle.PlaythroughID,
		SceneDelta:    sceneDelta,
	}
	if sceneDelta != nil && sceneDelta.Empty() {
		effects.SceneDelta = nil
	}

	effects.StateTransitions = b.stateTransitions(bundle, decisions)

	decisionByCharacter := make(map[string]entity.CharacterDecision, len(decisions))
	for _, d := range decisions {
		decisionByCharacter[d.CharacterID] = d
	}

	relResults := make([]*entity.RelationshipDelta, len(bundle.Present))
	memResults := make([][]entity.NewMemoryEffect, len(bundle.Present))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(analysisConcurrent)
	for i, c := range bundle.Present {
		g.Go(func() error {
			d := decisionByCharacter[c.ID]
			relResults[i] = b.analyzeRelationship(gctx, bundle, c, d, narrativeText)
			memResults[i] = b.extractMemories(gctx, bundle, c, d, narrativeText)
			return nil
		})
	}
	// 工作函数不返回错误, 等待仅用于汇合
	_ = g.Wait()

	for _, delta := range relResults {
		if delta != nil {
			effects.RelationshipDeltas = append(effects.RelationshipDeltas, *delta)
		}
	}
	for _, memories := range memResults {
		effects.NewMemories = append(effects.NewMemories, memories...)
	}
	return effects
}

// stateTransitions 决策中的情绪变化直接成为状态迁移, 不经过模型
func (b *Builder) stateTransitions(bundle *assembler.Bundle, decisions []entity.CharacterDecision) []entity.StateTransitionEffect {
	var transitions []entity.StateTransitionEffect
	for _, d := range decisions {
		if d.Fallback || d.Emotion == "" {
			continue
		}
		state := bundle.States[d.CharacterID]
		if state != nil && strings.EqualFold(state.CurrentEmotion, d.Emotion) {
			continue
		}
		transitions = append(transitions, entity.StateTransitionEffect{
			CharacterID:      d.CharacterID,
			NewEmotion:       strings.ToLower(d.Emotion),
			EmotionIntensity: 0.6,
			EmotionClass:     classifyEmotion(d.Emotion),
		})
	}
	return transitions
}

// deepEmotions 缓慢衰减的深层情绪
var deepEmotions = map[string]bool{
	"grief": true, "resentment": true, "despair": true, "heartbroken": true,
	"betrayed": true, "guilt": true, "shame": true, "love": true,
}

func classifyEmotion(emotion string) entity.EmotionClass {
	if deepEmotions[strings.ToLower(strings.TrimSpace(emotion))] {
		return entity.EmotionClassDeep
	}
	return entity.EmotionClassAcute
}

func (b *Builder) analyzeRelationship(ctx context.Context, bundle *assembler.Bundle, c *entity.Character, d entity.CharacterDecision, narrativeText string) *entity.RelationshipDelta {
	rel := bundle.Relationships[c.ID]
	if rel == nil {
		return nil
	}
	vars := map[string]any{
		"character_name":     c.Name,
		"trust":              rel.Trust,
		"affection":          rel.Affection,
		"familiarity":        rel.Familiarity,
		"player_action":      bundle.UserAction,
		"character_reaction": describeReaction(d),
		"narrative_text":     narrativeText,
	}
	system, user, err := b.prompts.Render(ctx, prompt.PromptRelationshipAnalysisV1, vars)
	if err != nil {
		logger.FromContext(ctx).Warn("relationship prompt render failed", "character_id", c.ID, "error", err)
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	output, err := b.completer.Complete(callCtx, gateway.RoleAnalysis, system, user, analysisMaxTokens)
	if err != nil {
		logger.FromContext(ctx).Warn("relationship analysis failed", "character_id", c.ID, "error", err)
		return nil
	}

	var parsed struct {
		TrustChange       float64 `json:"trust_change"`
		AffectionChange   float64 `json:"affection_change"`
		FamiliarityChange float64 `json:"familiarity_change"`
		Reason            string  `json:"reason"`
	}
	raw := node.ExtractJSONObject(output)
	if strings.TrimSpace(raw) == "" {
		logger.FromContext(ctx).Warn("relationship analysis returned no JSON", "character_id", c.ID)
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		logger.FromContext(ctx).Warn("relationship analysis unparseable", "character_id", c.ID, "error", err)
		return nil
	}
	return &entity.RelationshipDelta{
		CharacterID:       c.ID,
		TargetCharacterID: rel.TargetCharacterID,
		TrustChange:       parsed.TrustChange,
		AffectionChange:   parsed.AffectionChange,
		FamiliarityChange: parsed.FamiliarityChange,
		Reason:            strings.TrimSpace(parsed.Reason),
	}
}

func (b *Builder) extractMemories(ctx context.Context, bundle *assembler.Bundle, c *entity.Character, d entity.CharacterDecision, narrativeText string) []entity.NewMemoryEffect {
	vars := map[string]any{
		"character_name":     c.Name,
		"player_action":      bundle.UserAction,
		"character_reaction": describeReaction(d),
		"narrative_text":     narrativeText,
	}
	system, user, err := b.prompts.Render(ctx, prompt.PromptMemoryExtractV1, vars)
	if err != nil {
		logger.FromContext(ctx).Warn("memory prompt render failed", "character_id", c.ID, "error", err)
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	output, err := b.completer.Complete(callCtx, gateway.RoleAnalysis, system, user, extractMaxTokens)
	if err != nil {
		logger.FromContext(ctx).Warn("memory extraction failed", "character_id", c.ID, "error", err)
		return nil
	}

	var parsed struct {
		Memories []struct {
			Content       string `json:"content"`
			Importance    int    `json:"importance"`
			EmotionalTone string `json:"emotional_tone"`
		} `json:"memories"`
	}
	raw := node.ExtractJSONObject(output)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		logger.FromContext(ctx).Warn("memory extraction unparseable", "character_id", c.ID, "error", err)
		return nil
	}

	var memories []entity.NewMemoryEffect
	for _, m := range parsed.Memories {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		memories = append(memories, entity.NewMemoryEffect{
			CharacterID:        c.ID,
			Content:            content,
			Importance:         m.Importance,
			EmotionalValence:   toneValence(m.EmotionalTone),
			EmotionalIntensity: toneIntensity(m.EmotionalTone),
		})
		if len(memories) == 2 {
			break
		}
	}
	return memories
}

// describeReaction 决策转为分析输入的一句话描述
func describeReaction(d entity.CharacterDecision) string {
	if d.Fallback {
		return "no notable reaction"
	}
	var parts []string
	if d.Refuses {
		parts = append(parts, "refuses")
	}
	if d.Action != "" {
		parts = append(parts, d.Action)
	}
	if d.Dialogue != "" {
		parts = append(parts, "says: "+d.Dialogue)
	}
	if len(parts) == 0 {
		return "no notable reaction"
	}
	return strings.Join(parts, "; ")
}

var positiveTones = map[string]bool{
	"joy": true, "warmth": true, "relief": true, "hope": true,
	"gratitude": true, "affection": true, "pride": true, "amusement": true,
}

var negativeTones = map[string]bool{
	"fear": true, "anger": true, "grief": true, "disgust": true,
	"betrayal": true, "shame": true, "sadness": true, "dread": true,
	"resentment": true, "hurt": true,
}

func toneValence(tone string) float64 {
	t := strings.ToLower(strings.TrimSpace(tone))
	switch {
	case positiveTones[t]:
		return 0.6
	case negativeTones[t]:
		return -0.6
	default:
		return 0
	}
}

func toneIntensity(tone string) float64 {
	t := strings.ToLower(strings.TrimSpace(tone))
	if positiveTones[t] || negativeTones[t] {
		return 0.6
	}
	return 0.2
}
