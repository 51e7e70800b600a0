// Package turn 回合管线编排器: 驱动一个玩家输入走完
// 接收 -> 上下文 -> 决策 -> 生成 -> 校验 -> 释放的状态机,
// 释放后异步推导并投递状态效果
package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"storyforge-api/internal/application/assembler"
	"storyforge-api/internal/application/decision"
	"storyforge-api/internal/application/narrative"
	"storyforge-api/internal/application/scene"
	"storyforge-api/internal/application/stateupdate"
	"storyforge-api/internal/application/validator"
	"storyforge-api/internal/config"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/repository"
	"storyforge-api/internal/infrastructure/messaging"
	apperrors "storyforge-api/pkg/errors"
	"storyforge-api/pkg/logger"
	"storyforge-api/pkg/metrics"
)

var tracer = otel.Tracer("turn")

const (
	maxUserActionRunes = 2000

	// 释放后效果推导与投递的总预算
	releaseBudget = 90 * time.Second
)

// Result 回合管线对外结果
type Result struct {
	TurnID        string
	NarrativeText string
	Verdict       entity.ValidationVerdict
	Status        entity.TurnStatus
	Regenerations int
	// Effects 本回合推导出的状态效果, 拒绝回合为 nil.
	// 推导在释放阶段同步完成, 应用由回写流异步执行
	Effects *entity.TurnEffects
}

// Pipeline 回合管线编排器
// EffectsPublisher 回合效果投递端口, 返回流消息 ID
type EffectsPublisher interface {
	PublishTurnEffects(ctx context.Context, effects *entity.TurnEffects) (string, error)
}

var _ EffectsPublisher = (*messaging.Producer)(nil)

type Pipeline struct {
	assembler *assembler.Assembler
	decisions *decision.Engine
	narrator  *narrative.Generator
	validator *validator.Validator
	detector  *scene.Detector
	builder   *stateupdate.Builder
	producer  EffectsPublisher

	turns         repository.TurnRepository
	sessions      repository.SessionRepository
	conversations repository.ConversationRepository
	playthroughs  repository.PlaythroughRepository

	cfg config.PipelineConfig
}

// NewPipeline 创建回合管线
func NewPipeline(
	asm *assembler.Assembler,
	decisions *decision.Engine,
	narrator *narrative.Generator,
	v *validator.Validator,
	detector *scene.Detector,
	builder *stateupdate.Builder,
	producer EffectsPublisher,
	turns repository.TurnRepository,
	sessions repository.SessionRepository,
	conversations repository.ConversationRepository,
	playthroughs repository.PlaythroughRepository,
	cfg config.PipelineConfig,
) *Pipeline {
	if cfg.ContextTimeout <= 0 {
		cfg.ContextTimeout = 10 * time.Second
	}
	if cfg.DecisionTimeout <= 0 {
		cfg.DecisionTimeout = 30 * time.Second
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 60 * time.Second
	}
	if cfg.ValidateTimeout <= 0 {
		cfg.ValidateTimeout = 5 * time.Second
	}
	if cfg.RegenerationCeiling <= 0 {
		cfg.RegenerationCeiling = 2
	}
	return &Pipeline{
		assembler:     asm,
		decisions:     decisions,
		narrator:      narrator,
		validator:     v,
		detector:      detector,
		builder:       builder,
		producer:      producer,
		turns:         turns,
		sessions:      sessions,
		conversations: conversations,
		playthroughs:  playthroughs,
		cfg:           cfg,
	}
}

// Execute 处理一个玩家回合.
// 取消只能发生在释放之前: 释放前取消不产生任何状态效果,
// 释放后效果推导使用与请求解耦的上下文
func (p *Pipeline) Execute(ctx context.Context, playthroughID, sessionID, userAction string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "turn.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("playthrough_id", playthroughID),
		attribute.String("session_id", sessionID),
	)

	metrics.ActiveTurns.Inc()
	defer metrics.ActiveTurns.Dec()
	started := time.Now()
	timings := entity.JSONMap{}

	// INTAKE
	userAction, err := p.intake(ctx, playthroughID, sessionID, userAction)
	if err != nil {
		metrics.TurnTotal.WithLabelValues("rejected_input").Inc()
		return nil, err
	}

	turn := &entity.Turn{
		PlaythroughID: playthroughID,
		SessionID:     sessionID,
		UserAction:    userAction,
		Status:        entity.TurnStatusProcessing,
	}
	if err := p.turns.Create(ctx, turn); err != nil {
		metrics.TurnTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("create turn: %w", err)
	}
	ctx = logger.WithContext(ctx, logger.TurnIDKey, turn.ID)
	span.SetAttributes(attribute.String("turn_id", turn.ID))

	result, err := p.run(ctx, turn, timings)
	elapsed := time.Since(started)
	if err != nil {
		status := entity.TurnStatusFailed
		if errors.Is(err, context.Canceled) {
			status = entity.TurnStatusCancelled
		}
		p.finishTurn(ctx, turn, status, timings)
		metrics.TurnTotal.WithLabelValues(string(status)).Inc()
		metrics.TurnDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
		return nil, err
	}

	metrics.TurnTotal.WithLabelValues(string(result.Status)).Inc()
	metrics.TurnDuration.WithLabelValues(string(result.Status)).Observe(elapsed.Seconds())
	return result, nil
}

// intake 校验输入与会话归属
func (p *Pipeline) intake(ctx context.Context, playthroughID, sessionID, userAction string) (string, error) {
	userAction = strings.TrimSpace(userAction)
	if userAction == "" {
		return "", apperrors.ErrInvalidParam.WithDetail("action must not be empty")
	}
	if utf8.RuneCountInString(userAction) > maxUserActionRunes {
		return "", apperrors.ErrInvalidParam.WithDetail("action too long")
	}

	playthrough, err := p.playthroughs.GetByID(ctx, playthroughID)
	if err != nil {
		return "", fmt.Errorf("load playthrough: %w", err)
	}
	if playthrough == nil {
		return "", apperrors.ErrPlaythroughNotFound
	}
	if playthrough.Status != entity.PlaythroughStatusActive {
		return "", apperrors.ErrConflict.WithDetail("playthrough is not active")
	}

	session, err := p.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	if session == nil || session.PlaythroughID != playthroughID {
		return "", apperrors.ErrNotFound.WithDetail("session not found for playthrough")
	}
	return userAction, nil
}

// run 执行上下文之后的阶段, 回合记录已创建
func (p *Pipeline) run(ctx context.Context, turn *entity.Turn, timings entity.JSONMap) (*Result, error) {
	log := logger.FromContext(ctx)

	// CONTEXT
	bundle, err := stage(ctx, timings, string(entity.TurnStageContext), p.cfg.ContextTimeout, p.cfg.StageRetries,
		func(ctx context.Context) (*assembler.Bundle, error) {
			return p.assembler.Assemble(ctx, turn.PlaythroughID, turn.SessionID, turn.UserAction)
		})
	if err != nil {
		return nil, err
	}
	turn.ContextSnapshot = bundle.Snapshot()

	// DECISIONS
	decisions, err := stage(ctx, timings, string(entity.TurnStageDecisions), p.cfg.DecisionTimeout, p.cfg.StageRetries,
		func(ctx context.Context) ([]entity.CharacterDecision, error) {
			return p.decisions.DecideAll(ctx, bundle)
		})
	if err != nil {
		return nil, err
	}
	turn.Decisions = decisionsSnapshot(decisions)

	// GENERATE 与 VALIDATE 的再生成环
	narrativeText, verdict, violations, regens, err := p.generateValidated(ctx, bundle, decisions, timings)
	if err != nil {
		return nil, err
	}
	turn.NarrativeText = narrativeText
	turn.Verdict = string(verdict)
	turn.Regenerations = regens
	if len(violations) > 0 {
		turn.Violations = violationsSnapshot(violations)
	}

	// RELEASE: 效果推导同步完成, 应用交给回写流.
	// 过了校验关便不再响应取消, 半释放的回合比慢回合更糟
	ctx = context.WithoutCancel(ctx)
	status := entity.TurnStatusCompleted
	if verdict == entity.VerdictRejected {
		status = entity.TurnStatusRejected
	}

	// 拒绝回合不产生状态效果
	var effects *entity.TurnEffects
	if status == entity.TurnStatusCompleted {
		effects, err = stage(ctx, timings, string(entity.TurnStageRelease), releaseBudget, 0,
			func(ctx context.Context) (*entity.TurnEffects, error) {
				sceneDelta := p.detector.Detect(ctx, bundle, narrativeText)
				return p.builder.Build(ctx, turn.ID, bundle, decisions, narrativeText, &sceneDelta), nil
			})
		if err != nil {
			return nil, err
		}
		turn.AppliedDeltas = effectsSnapshot(effects)
	}

	turn.StageTimings = timings
	turn.Status = status
	if err := p.turns.Update(ctx, turn); err != nil {
		return nil, fmt.Errorf("persist turn: %w", err)
	}
	p.appendConversation(ctx, turn)

	p.publishEffects(ctx, turn.ID, effects)

	log.Info("turn released",
		"turn_id", turn.ID,
		"verdict", string(verdict),
		"regenerations", regens,
		"status", string(status))

	return &Result{
		TurnID:        turn.ID,
		NarrativeText: narrativeText,
		Verdict:       verdict,
		Status:        status,
		Regenerations: regens,
		Effects:       effects,
	}, nil
}

// publishEffects 将效果投递到回写流.
// 投递失败意味着本回合状态不演进, 叙事已释放无法撤回, 只记日志
func (p *Pipeline) publishEffects(ctx context.Context, turnID string, effects *entity.TurnEffects) {
	if effects == nil {
		return
	}
	log := logger.FromContext(ctx)
	msgID, err := p.producer.PublishTurnEffects(ctx, effects)
	if err != nil {
		log.Error("turn effects publish failed", "turn_id", turnID, "error", err)
		return
	}
	log.Debug("turn effects published", "turn_id", turnID, "message_id", msgID)
}

// generateValidated 生成并校验, 严重违规触发再生成,
// 到达上限后降级为约束安全的保底叙事
func (p *Pipeline) generateValidated(ctx context.Context, bundle *assembler.Bundle, decisions []entity.CharacterDecision, timings entity.JSONMap) (string, entity.ValidationVerdict, []entity.Violation, int, error) {
	var correctionNotes []string
	var lastViolations []entity.Violation

	for attempt := 0; attempt <= p.cfg.RegenerationCeiling; attempt++ {
		narrativeText, err := stage(ctx, timings, string(entity.TurnStageGenerate), p.cfg.GenerateTimeout, p.cfg.StageRetries,
			func(ctx context.Context) (string, error) {
				return p.narrator.Generate(ctx, bundle, decisions, correctionNotes)
			})
		if err != nil {
			return "", "", nil, attempt, err
		}

		result, err := stage(ctx, timings, string(entity.TurnStageValidate), p.cfg.ValidateTimeout, 0,
			func(ctx context.Context) (validator.Result, error) {
				return p.validator.Validate(ctx, bundle, decisions, narrativeText), nil
			})
		if err != nil {
			return "", "", nil, attempt, err
		}
		lastViolations = result.Violations

		if result.Verdict == entity.VerdictValid {
			return narrativeText, entity.VerdictValid, result.Violations, attempt, nil
		}

		for _, viol := range result.Violations {
			if viol.Severity.RequiresRegen() {
				metrics.TurnRegenerations.WithLabelValues(string(viol.Severity)).Inc()
			}
		}
		correctionNotes = validator.CorrectionNotes(result.Violations)
		logger.FromContext(ctx).Warn("narrative needs regeneration",
			"attempt", attempt, "violations", len(result.Violations))
	}

	// 上限耗尽, 保底叙事释放, 回合标记为拒绝
	logger.FromContext(ctx).Warn("regeneration ceiling reached, releasing fallback narration",
		"ceiling", p.cfg.RegenerationCeiling)
	return narrative.FallbackNarration(bundle), entity.VerdictRejected, lastViolations, p.cfg.RegenerationCeiling, nil
}

// appendConversation 记录对话历史, 失败只告警不影响回合结果
func (p *Pipeline) appendConversation(ctx context.Context, turn *entity.Turn) {
	userMsg := entity.NewConversationMessage(turn.SessionID, turn.PlaythroughID, turn.ID, entity.RoleUser, turn.UserAction)
	if err := p.conversations.Append(ctx, userMsg); err != nil {
		logger.FromContext(ctx).Warn("conversation append failed", "role", "user", "error", err)
	}
	narratorMsg := entity.NewConversationMessage(turn.SessionID, turn.PlaythroughID, turn.ID, entity.RoleNarrator, turn.NarrativeText)
	if err := p.conversations.Append(ctx, narratorMsg); err != nil {
		logger.FromContext(ctx).Warn("conversation append failed", "role", "narrator", "error", err)
	}
}

// finishTurn 失败或取消时落终态, 尽力而为
func (p *Pipeline) finishTurn(ctx context.Context, turn *entity.Turn, status entity.TurnStatus, timings entity.JSONMap) {
	turn.Status = status
	turn.StageTimings = timings
	if err := p.turns.Update(context.WithoutCancel(ctx), turn); err != nil {
		logger.FromContext(ctx).Warn("turn finalization failed",
			"turn_id", turn.ID, "status", string(status), "error", err)
	}
}

// stage 执行一个带超时与重试的管线阶段.
// 仅对非取消错误重试, 阶段耗时写入 timings 并上报指标
func stage[T any](ctx context.Context, timings entity.JSONMap, name string, timeout time.Duration, retries int, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	started := time.Now()
	defer func() {
		elapsed := time.Since(started)
		timings[name] = elapsed.Milliseconds()
		metrics.TurnStageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		stageCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := fn(stageCtx)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return zero, fmt.Errorf("stage %s: %w", name, lastErr)
}

func decisionsSnapshot(decisions []entity.CharacterDecision) entity.JSONMap {
	items := make([]any, 0, len(decisions))
	for _, d := range decisions {
		items = append(items, map[string]any{
			"character_id":   d.CharacterID,
			"character_name": d.CharacterName,
			"action":         d.Action,
			"dialogue":       d.Dialogue,
			"emotion":        d.Emotion,
			"refuses":        d.Refuses,
			"fallback":       d.Fallback,
		})
	}
	return entity.JSONMap{"decisions": items}
}

func effectsSnapshot(effects *entity.TurnEffects) entity.JSONMap {
	snapshot := entity.JSONMap{
		"relationship_deltas": len(effects.RelationshipDeltas),
		"state_transitions":   len(effects.StateTransitions),
		"new_memories":        len(effects.NewMemories),
		"knowledge":           len(effects.Knowledge),
		"flags":               len(effects.Flags),
		"beliefs":             len(effects.Beliefs),
	}
	if data, err := json.Marshal(effects); err == nil {
		var full map[string]any
		if json.Unmarshal(data, &full) == nil {
			snapshot["effects"] = full
		}
	}
	return snapshot
}

func violationsSnapshot(violations []entity.Violation) entity.JSONMap {
	items := make([]any, 0, len(violations))
	for _, v := range violations {
		items = append(items, map[string]any{
			"check":        v.Check,
			"severity":     string(v.Severity),
			"character_id": v.CharacterID,
			"description":  v.Description,
		})
	}
	return entity.JSONMap{"violations": items}
}
