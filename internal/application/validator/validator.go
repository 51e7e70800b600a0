// Package validator 一致性校验器: 对生成叙事做硬边界检查.
// 校验按成本从低到高排列, 低成本检查失败即可短路出再生成结论
package validator

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"storyforge-api/internal/application/assembler"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/pkg/logger"
	"storyforge-api/pkg/metrics"
)

var tracer = otel.Tracer("validator")

const (
	CheckPlayerControl = "player_control"
	CheckHardLimit     = "hard_limit"
	CheckVoice         = "voice"
	CheckKnowledge     = "knowledge"
	CheckRating        = "content_rating"
)

// Result 校验结论与违规明细
type Result struct {
	Verdict    entity.ValidationVerdict
	Violations []entity.Violation
}

// Validator 一致性校验器. 纯启发式, 不依赖模型调用
type Validator struct{}

// New 创建校验器
func New() *Validator {
	return &Validator{}
}

// Validate 校验一段生成叙事.
// 任何 critical/high 违规 → needs_regen; 仅 medium → 接受并告警; low → 接受
func (v *Validator) Validate(ctx context.Context, bundle *assembler.Bundle, decisions []entity.CharacterDecision, narrativeText string) Result {
	ctx, span := tracer.Start(ctx, "validator.Validate")
	defer span.End()

	var violations []entity.Violation
	violations = append(violations, v.checkPlayerControl(bundle, narrativeText)...)
	violations = append(violations, v.checkHardLimits(bundle, decisions, narrativeText)...)
	violations = append(violations, v.checkVoice(bundle, decisions, narrativeText)...)
	violations = append(violations, v.checkKnowledge(bundle, narrativeText)...)
	violations = append(violations, v.checkRating(bundle, narrativeText)...)

	verdict := entity.VerdictValid
	for _, viol := range violations {
		if viol.Severity.RequiresRegen() {
			verdict = entity.VerdictNeedsRegen
		}
	}

	for _, viol := range violations {
		metrics.ValidationTotal.WithLabelValues(viol.Check, string(verdict)).Inc()
		if verdict == entity.VerdictValid && viol.Severity == entity.SeverityMedium {
			logger.FromContext(ctx).Warn("narrative accepted with violation",
				"check", viol.Check, "description", viol.Description)
		}
	}
	if len(violations) == 0 {
		metrics.ValidationTotal.WithLabelValues("none", string(verdict)).Inc()
	}

	span.SetAttributes(
		attribute.String("verdict", string(verdict)),
		attribute.Int("violation_count", len(violations)),
	)
	return Result{Verdict: verdict, Violations: violations}
}

// CorrectionNotes 把需要再生成的违规转为纠正指令
func CorrectionNotes(violations []entity.Violation) []string {
	var notes []string
	for _, viol := range violations {
		if viol.Severity.RequiresRegen() {
			notes = append(notes, viol.Description)
		}
	}
	return notes
}

// playerSpeechPatterns 叙述者替玩家说话/做决定的句式
var playerSpeechPatterns = []string{
	"you say", "you reply", "you answer", "you shout", "you whisper",
	"you declare", "you tell them", "you tell him", "you tell her",
	"you decide", "you agree", "you refuse", "you promise", "you admit",
	"you confess", "you apologize",
}

// checkPlayerControl 玩家主权: 叙述者不得替玩家行动或说话
func (v *Validator) checkPlayerControl(bundle *assembler.Bundle, text string) []entity.Violation {
	lower := strings.ToLower(text)
	var violations []entity.Violation

	for _, pattern := range playerSpeechPatterns {
		if strings.Contains(lower, pattern) {
			violations = append(violations, entity.Violation{
				Check:       CheckPlayerControl,
				Severity:    entity.SeverityCritical,
				Description: fmt.Sprintf("the narration speaks or decides for the player (%q); describe only NPC reactions and the environment", pattern),
			})
			break
		}
	}

	// 以玩家名字引述台词同样是替玩家说话
	if bundle.Player != nil && bundle.Player.Name != "" {
		name := strings.ToLower(bundle.Player.Name)
		for _, verb := range []string{" says", " replies", " answers", " shouts", " decides", " agrees"} {
			if strings.Contains(lower, name+verb) {
				violations = append(violations, entity.Violation{
					Check:       CheckPlayerControl,
					Severity:    entity.SeverityCritical,
					CharacterID: bundle.Player.ID,
					Description: fmt.Sprintf("the narration attributes speech or decisions to %s; the player's words belong to the player", bundle.Player.Name),
				})
				break
			}
		}
	}
	return violations
}

// checkHardLimits 硬性底线: would_never_do 与触发的高危回避项
func (v *Validator) checkHardLimits(bundle *assembler.Bundle, decisions []entity.CharacterDecision, text string) []entity.Violation {
	lower := strings.ToLower(text)
	var violations []entity.Violation

	decisionText := make(map[string]string, len(decisions))
	for _, d := range decisions {
		decisionText[d.CharacterID] = strings.ToLower(d.Action + " " + d.Dialogue)
	}

	for _, c := range bundle.Present {
		for _, never := range c.WouldNeverDo {
			phrase := strings.ToLower(strings.TrimSpace(never))
			if phrase == "" {
				continue
			}
			if strings.Contains(lower, phrase) || strings.Contains(decisionText[c.ID], phrase) {
				violations = append(violations, entity.Violation{
					Check:       CheckHardLimit,
					Severity:    entity.SeverityCritical,
					CharacterID: c.ID,
					Description: fmt.Sprintf("%s does something they would never do (%q); remove this action entirely", c.Name, never),
				})
			}
		}

		for _, av := range bundle.Avoidances[c.ID] {
			if av.Severity != entity.AvoidanceSeverityHigh && av.Severity != entity.AvoidanceSeverityCritical {
				continue
			}
			target := strings.ToLower(strings.TrimSpace(av.Target))
			if target == "" {
				continue
			}
			if strings.Contains(decisionText[c.ID], target) {
				violations = append(violations, entity.Violation{
					Check:       CheckHardLimit,
					Severity:    entity.SeverityHigh,
					CharacterID: c.ID,
					Description: fmt.Sprintf("%s engages with %q which they actively avoid; show their avoidance behavior instead", c.Name, av.Target),
				})
			}
		}
	}
	return violations
}

// checkVoice 声音保真: 叙事必须采用决策给出的台词, 不得为角色另造发言
func (v *Validator) checkVoice(bundle *assembler.Bundle, decisions []entity.CharacterDecision, text string) []entity.Violation {
	var violations []entity.Violation
	for _, d := range decisions {
		if d.Fallback || d.Dialogue == "" {
			continue
		}
		// 要求至少保留台词的一个显著片段
		fragment := significantFragment(d.Dialogue)
		if fragment == "" {
			continue
		}
		if !strings.Contains(strings.ToLower(text), strings.ToLower(fragment)) {
			violations = append(violations, entity.Violation{
				Check:       CheckVoice,
				Severity:    entity.SeverityMedium,
				CharacterID: d.CharacterID,
				Description: fmt.Sprintf("%s's given dialogue was replaced; keep their words: %q", d.CharacterName, d.Dialogue),
			})
		}
	}
	return violations
}

// mindReadingPatterns 读心句式: 角色"知道"玩家内心
var mindReadingPatterns = []string{
	"reads your mind", "knows what you are thinking", "knows what you're thinking",
	"senses your thoughts", "can tell exactly what you", "knows your true",
}

// checkKnowledge 知识边界: 角色不得引用其知识与记忆之外的信息,
// 也不得泄露其他角色的秘密
func (v *Validator) checkKnowledge(bundle *assembler.Bundle, text string) []entity.Violation {
	lower := strings.ToLower(text)
	var violations []entity.Violation

	for _, pattern := range mindReadingPatterns {
		if strings.Contains(lower, pattern) {
			violations = append(violations, entity.Violation{
				Check:       CheckKnowledge,
				Severity:    entity.SeverityHigh,
				Description: fmt.Sprintf("a character reads the player's mind (%q); characters only know what they observe", pattern),
			})
			break
		}
	}

	// 秘密只能由持有者自己揭露, 叙述者直接陈述即是泄露
	for _, c := range bundle.Present {
		secret := strings.ToLower(strings.TrimSpace(c.SecretKept))
		if secret == "" {
			continue
		}
		fragment := significantFragment(secret)
		if fragment != "" && strings.Contains(lower, fragment) {
			violations = append(violations, entity.Violation{
				Check:       CheckKnowledge,
				Severity:    entity.SeverityHigh,
				CharacterID: c.ID,
				Description: fmt.Sprintf("the narration exposes %s's secret; secrets surface only through the character's own choices", c.Name),
			})
		}
	}
	return violations
}

// ratedWords 各分级自身新增的禁用词
var ratedWords = map[entity.ContentRating][]string{
	entity.ContentRatingEveryone: {
		"fuck", "shit", "goddamn", "bitch", "bastard",
		"blood sprays", "gore", "dismember", "corpse",
	},
	entity.ContentRatingTeen: {
		"explicit", "graphic sex", "dismember", "torture porn",
	},
	entity.ContentRatingMature: {},
}

// bannedWords 汇总某分级的禁用词: 自身词表并上所有更宽分级的词表,
// 全年龄分级同时禁用青少年分级的词
func bannedWords(rating entity.ContentRating) []string {
	banned := ratedWords[rating]
	if rating == entity.ContentRatingEveryone {
		banned = append(append([]string{}, banned...), ratedWords[entity.ContentRatingTeen]...)
	}
	return banned
}

// checkRating 内容分级
func (v *Validator) checkRating(bundle *assembler.Bundle, text string) []entity.Violation {
	banned := bannedWords(bundle.Story.ContentRating)
	lower := strings.ToLower(text)
	for _, word := range banned {
		if strings.Contains(lower, word) {
			return []entity.Violation{{
				Check:       CheckRating,
				Severity:    entity.SeverityHigh,
				Description: fmt.Sprintf("the narration exceeds the %q content rating (%q); rewrite within the rating", bundle.Story.ContentRating, word),
			}}
		}
	}
	return nil
}

// significantFragment 取一段文本中最长的显著片段用于包含性匹配
func significantFragment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	// 取最长的分句, 短台词整句匹配
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == ',' || r == '!' || r == '?' || r == ';'
	})
	longest := ""
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) > len(longest) {
			longest = p
		}
	}
	if len(longest) < 8 {
		return ""
	}
	return longest
}
