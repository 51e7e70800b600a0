// Package decision 角色决策引擎: 并行为每个在场 NPC 产出结构化决策,
// 模型输出解析失败时退回确定性安全默认值, 绝不用关键词猜测
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"storyforge-api/internal/application/assembler"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/gateway"
	wfnode "storyforge-api/internal/workflow/node"
	"storyforge-api/internal/workflow/prompt"
	"storyforge-api/pkg/logger"
	"storyforge-api/pkg/metrics"
)

var tracer = otel.Tracer("decision")

const (
	defaultConcurrency = 4
	decisionMaxTokens  = 400

	strictRetryNote = "IMPORTANT: your previous response was not valid JSON. Respond with ONLY the JSON object, no prose, no markdown fences."
)

// Engine 角色决策引擎
type Engine struct {
	completer   gateway.Completer
	prompts     *prompt.Registry
	callTimeout time.Duration
	concurrency int
	budget      int
}

// NewEngine 创建决策引擎. budgetTokens 为单角色上下文预算
func NewEngine(completer gateway.Completer, prompts *prompt.Registry, callTimeout time.Duration, budgetTokens int) *Engine {
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	if budgetTokens <= 0 {
		budgetTokens = 2000
	}
	return &Engine{
		completer:   completer,
		prompts:     prompts,
		callTimeout: callTimeout,
		concurrency: defaultConcurrency,
		budget:      budgetTokens,
	}
}

// DecideAll 并行决策所有在场 NPC, 结果顺序与在场顺序一致.
// 单角色失败不拖垮整组: 解析失败的角色携带安全默认值
func (e *Engine) DecideAll(ctx context.Context, bundle *assembler.Bundle) ([]entity.CharacterDecision, error) {
	ctx, span := tracer.Start(ctx, "decision.DecideAll",
		trace.WithAttributes(attribute.Int("npc_count", len(bundle.Present))))
	defer span.End()

	if len(bundle.Present) == 0 {
		return nil, nil
	}

	decisions := make([]entity.CharacterDecision, len(bundle.Present))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, c := range bundle.Present {
		g.Go(func() error {
			d, err := e.decideOne(gctx, bundle, c)
			if err != nil {
				return err
			}
			decisions[i] = d
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return decisions, nil
}

// decideOne 单角色决策: 一次调用, 失败后一次更严格的重试, 再失败用安全默认
func (e *Engine) decideOne(ctx context.Context, bundle *assembler.Bundle, c *entity.Character) (entity.CharacterDecision, error) {
	ctx, span := tracer.Start(ctx, "decision.decideOne",
		trace.WithAttributes(attribute.String("character_id", c.ID)))
	defer span.End()

	currentEmotion, _ := bundle.EffectiveState(c.ID)
	vars := bundle.DecisionVars(c, e.budget)

	d, err := e.tryDecide(ctx, c, vars)
	if err == nil {
		return d, nil
	}
	if ctx.Err() != nil {
		return entity.CharacterDecision{}, ctx.Err()
	}

	logger.FromContext(ctx).Warn("decision parse failed, retrying with strict instruction",
		"character_id", c.ID, "error", err)

	vars["correction_note"] = strictRetryNote
	d, retryErr := e.tryDecide(ctx, c, vars)
	if retryErr == nil {
		metrics.DecisionFallbacks.WithLabelValues("retry_recovered").Inc()
		return d, nil
	}
	if ctx.Err() != nil {
		return entity.CharacterDecision{}, ctx.Err()
	}

	logger.FromContext(ctx).Warn("decision retry failed, using safe default",
		"character_id", c.ID, "error", retryErr)
	metrics.DecisionFallbacks.WithLabelValues("safe_default").Inc()
	span.SetAttributes(attribute.Bool("fallback", true))

	return entity.SafeDefaultDecision(c.ID, c.Name, currentEmotion), nil
}

// tryDecide 一次模型调用与严格解析
func (e *Engine) tryDecide(ctx context.Context, c *entity.Character, vars map[string]any) (entity.CharacterDecision, error) {
	system, user, err := e.prompts.Render(ctx, prompt.PromptCharacterDecisionV1, vars)
	if err != nil {
		return entity.CharacterDecision{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	out, err := e.completer.Complete(callCtx, gateway.RoleCharacter, system, user, decisionMaxTokens)
	if err != nil {
		return entity.CharacterDecision{}, err
	}

	return parseDecision(out, c.ID, c.Name)
}

// parseDecision 严格 JSON 解析, 任何结构缺陷都返回错误而不是猜测
func parseDecision(raw, characterID, characterName string) (entity.CharacterDecision, error) {
	extracted := wfnode.ExtractJSONObject(raw)
	if strings.TrimSpace(extracted) == "" {
		return entity.CharacterDecision{}, fmt.Errorf("empty decision output")
	}

	var parsed struct {
		Action   string `json:"action"`
		Dialogue string `json:"dialogue"`
		Emotion  string `json:"emotion"`
		Refuses  *bool  `json:"refuses"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(extracted), &parsed); err != nil {
		return entity.CharacterDecision{}, fmt.Errorf("failed to parse decision json: %w", err)
	}
	if parsed.Refuses == nil {
		return entity.CharacterDecision{}, fmt.Errorf("decision json missing refuses field")
	}
	if strings.TrimSpace(parsed.Action) == "" && strings.TrimSpace(parsed.Dialogue) == "" {
		return entity.CharacterDecision{}, fmt.Errorf("decision json has neither action nor dialogue")
	}

	return entity.CharacterDecision{
		CharacterID:   characterID,
		CharacterName: characterName,
		Action:        strings.TrimSpace(parsed.Action),
		Dialogue:      strings.TrimSpace(parsed.Dialogue),
		Emotion:       strings.TrimSpace(parsed.Emotion),
		Refuses:       *parsed.Refuses,
		Reason:        strings.TrimSpace(parsed.Reason),
	}, nil
}
