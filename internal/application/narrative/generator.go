// Package narrative 叙事生成器: 把玩家动作与角色决策编织为叙述者视角的散文
package narrative

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storyforge-api/internal/application/assembler"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/gateway"
	"storyforge-api/internal/workflow/prompt"
)

var tracer = otel.Tracer("narrative")

const narrativeMaxTokens = 900

// Generator 叙事生成器
type Generator struct {
	completer   gateway.Completer
	prompts     *prompt.Registry
	callTimeout time.Duration
}

// NewGenerator 创建叙事生成器
func NewGenerator(completer gateway.Completer, prompts *prompt.Registry, callTimeout time.Duration) *Generator {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Generator{
		completer:   completer,
		prompts:     prompts,
		callTimeout: callTimeout,
	}
}

// Generate 生成一段叙事. correctionNotes 来自校验器, 再生成时非空
func (g *Generator) Generate(ctx context.Context, bundle *assembler.Bundle, decisions []entity.CharacterDecision, correctionNotes []string) (string, error) {
	ctx, span := tracer.Start(ctx, "narrative.Generate",
		trace.WithAttributes(
			attribute.Int("decision_count", len(decisions)),
			attribute.Int("correction_count", len(correctionNotes)),
		))
	defer span.End()

	correction := ""
	if len(correctionNotes) > 0 {
		correction = "Corrections from the previous attempt, you must fix all of them:\n- " +
			strings.Join(correctionNotes, "\n- ")
	}

	vars := map[string]any{
		"story_premise":      bundle.Story.Description,
		"content_rating":     string(bundle.Story.ContentRating),
		"tone":               bundle.Scene.Mood,
		"scene_description":  bundle.SceneDescription(),
		"scene_time":         bundle.SceneTime(),
		"present_characters": bundle.PresentNames(),
		"recent_history":     bundle.HistoryText(800),
		"player_action":      bundle.UserAction,
		"decisions":          renderDecisions(decisions),
		"correction_note":    correction,
	}

	system, user, err := g.prompts.Render(ctx, prompt.PromptNarratorGenV1, vars)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	text, err := g.completer.Complete(callCtx, gateway.RoleNarrator, system, user, narrativeMaxTokens)
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty narrative output")
	}
	return text, nil
}

// FallbackNarration 校验被最终拒绝后的保底叙事:
// 不描写任何角色行为, 只给出一个不违反约束的中性收束
func FallbackNarration(bundle *assembler.Bundle) string {
	location := "the scene"
	if bundle != nil && bundle.Scene != nil && bundle.Scene.Location != "" {
		location = bundle.Scene.Location
	}
	return fmt.Sprintf("A moment passes in %s. The others take in what just happened, "+
		"each keeping their thoughts to themselves. The air settles, waiting for what you do next.", location)
}

// renderDecisions 把结构化决策转为叙事提示文本, 安全默认值的角色标注为无反应
func renderDecisions(decisions []entity.CharacterDecision) string {
	if len(decisions) == 0 {
		return "(no other characters react)"
	}
	var sb strings.Builder
	for _, d := range decisions {
		sb.WriteString("- ")
		sb.WriteString(d.CharacterName)
		sb.WriteString(": ")
		switch {
		case d.Fallback:
			sb.WriteString("gives no notable reaction")
		case d.Refuses:
			sb.WriteString("refuses. ")
			sb.WriteString(describeDecision(d))
		default:
			sb.WriteString(describeDecision(d))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func describeDecision(d entity.CharacterDecision) string {
	parts := make([]string, 0, 3)
	if d.Action != "" {
		parts = append(parts, d.Action)
	}
	if d.Dialogue != "" {
		parts = append(parts, fmt.Sprintf("says: %q", d.Dialogue))
	}
	if d.Emotion != "" {
		parts = append(parts, "feeling "+d.Emotion)
	}
	return strings.Join(parts, "; ")
}
