package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storyforge-api/internal/config"
	"storyforge-api/internal/domain/gateway"
	apperrors "storyforge-api/pkg/errors"
	"storyforge-api/pkg/metrics"
)

var tracer = otel.Tracer("llm")

// Gateway 基于 Eino 的模型网关, 按角色路由到配置的提供商
type Gateway struct {
	factory *EinoFactory
	config  *config.LLMConfig
}

// NewGateway 创建模型网关
func NewGateway(factory *EinoFactory, cfg *config.Config) *Gateway {
	return &Gateway{
		factory: factory,
		config:  &cfg.LLM,
	}
}

var _ gateway.Completer = (*Gateway)(nil)

// providerFor 解析角色对应的提供商名称, 未配置时回退到默认提供商
func (g *Gateway) providerFor(role gateway.Role) string {
	var name string
	switch role {
	case gateway.RoleNarrator:
		name = g.config.Roles.Narrator
	case gateway.RoleCharacter:
		name = g.config.Roles.Character
	case gateway.RoleAnalysis:
		name = g.config.Roles.Analysis
	}
	if strings.TrimSpace(name) == "" {
		name = g.config.DefaultProvider
	}
	return name
}

// Complete 执行一次补全调用
func (g *Gateway) Complete(ctx context.Context, role gateway.Role, system, user string, maxTokens int) (string, error) {
	provider := g.providerFor(role)

	ctx, span := tracer.Start(ctx, "llm.Complete",
		trace.WithAttributes(
			attribute.String("llm.role", string(role)),
			attribute.String("llm.provider", provider),
			attribute.Int("llm.max_tokens", maxTokens),
		))
	defer span.End()

	chatModel, err := g.factory.Get(ctx, provider)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	modelName := ""
	if providerCfg, ok := g.config.Providers[provider]; ok {
		modelName = providerCfg.Model
	}

	msgs := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}

	opts := make([]model.Option, 0, 1)
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}

	start := time.Now()
	outMsg, err := chatModel.Generate(ctx, msgs, opts...)
	metrics.LLMCallDuration.WithLabelValues(provider, modelName).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		metrics.LLMCallTotal.WithLabelValues(provider, modelName, "error").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return "", apperrors.ErrGatewayTimeout.WithError(err)
		}
		return "", fmt.Errorf("llm call failed: %w", err)
	}
	if outMsg == nil || strings.TrimSpace(outMsg.Content) == "" {
		metrics.LLMCallTotal.WithLabelValues(provider, modelName, "empty").Inc()
		return "", apperrors.ErrGatewayMalformed
	}

	metrics.LLMCallTotal.WithLabelValues(provider, modelName, "success").Inc()
	if outMsg.ResponseMeta != nil && outMsg.ResponseMeta.Usage != nil {
		metrics.LLMTokensUsed.WithLabelValues(provider, modelName, "prompt").Add(float64(outMsg.ResponseMeta.Usage.PromptTokens))
		metrics.LLMTokensUsed.WithLabelValues(provider, modelName, "completion").Add(float64(outMsg.ResponseMeta.Usage.CompletionTokens))
	}

	return outMsg.Content, nil
}
