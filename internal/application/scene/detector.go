// Package scene 场景变化检测: 从生成叙事中提取位置/时间变化与角色进出
package scene

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"storyforge-api/internal/application/assembler"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/gateway"
	"storyforge-api/internal/domain/repository"
	"storyforge-api/internal/workflow/node"
	"storyforge-api/internal/workflow/prompt"
	"storyforge-api/pkg/logger"
)

var tracer = otel.Tracer("scene")

const detectMaxTokens = 250

// Detector 场景变化检测器. 检测失败返回空增量,
// 场景保持不变比错误跳转代价低
type Detector struct {
	completer   gateway.Completer
	prompts     *prompt.Registry
	characters  repository.CharacterRepository
	callTimeout time.Duration
}

// NewDetector 创建场景变化检测器
func NewDetector(completer gateway.Completer, prompts *prompt.Registry, characters repository.CharacterRepository, callTimeout time.Duration) *Detector {
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	return &Detector{
		completer:   completer,
		prompts:     prompts,
		characters:  characters,
		callTimeout: callTimeout,
	}
}

// Detect 检测一段叙事引起的场景变化.
// 进出名单中的名字映射到游玩会话角色 ID, 不认识的名字忽略
func (d *Detector) Detect(ctx context.Context, bundle *assembler.Bundle, narrativeText string) entity.SceneDelta {
	ctx, span := tracer.Start(ctx, "scene.Detect")
	defer span.End()

	vars := map[string]any{
		"scene_description":  bundle.SceneDescription(),
		"scene_time":         bundle.SceneTime(),
		"present_characters": bundle.PresentNames(),
		"narrative_text":     narrativeText,
	}
	system, user, err := d.prompts.Render(ctx, prompt.PromptSceneChangeV1, vars)
	if err != nil {
		logger.FromContext(ctx).Warn("scene change prompt render failed", "error", err)
		return entity.SceneDelta{}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()
	output, err := d.completer.Complete(callCtx, gateway.RoleAnalysis, system, user, detectMaxTokens)
	if err != nil {
		logger.FromContext(ctx).Warn("scene change detection failed", "error", err)
		return entity.SceneDelta{}
	}

	var parsed struct {
		LocationChanged bool     `json:"location_changed"`
		NewLocation     string   `json:"new_location"`
		TimeAdvanced    bool     `json:"time_advanced"`
		NewTime         string   `json:"new_time"`
		Entered         []string `json:"entered"`
		Left            []string `json:"left"`
	}
	raw := node.ExtractJSONObject(output)
	if strings.TrimSpace(raw) == "" {
		logger.FromContext(ctx).Warn("scene change detection returned no JSON")
		return entity.SceneDelta{}
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		logger.FromContext(ctx).Warn("scene change detection unparseable", "error", err)
		return entity.SceneDelta{}
	}

	delta := entity.SceneDelta{
		LocationChanged: parsed.LocationChanged && strings.TrimSpace(parsed.NewLocation) != "",
		NewLocation:     strings.TrimSpace(parsed.NewLocation),
		TimeChanged:     parsed.TimeAdvanced && strings.TrimSpace(parsed.NewTime) != "",
		NewTimeOfDay:    strings.TrimSpace(parsed.NewTime),
	}

	if len(parsed.Entered) > 0 || len(parsed.Left) > 0 {
		byName, err := d.characterIDsByName(ctx, bundle.PlaythroughID)
		if err != nil {
			logger.FromContext(ctx).Warn("character roster lookup failed", "error", err)
			return delta
		}
		presentIDs := make(map[string]bool, len(bundle.Present))
		for _, c := range bundle.Present {
			presentIDs[c.ID] = true
		}
		for _, name := range parsed.Entered {
			if id, ok := byName[normalizeName(name)]; ok && !presentIDs[id] {
				delta.CharactersEnter = append(delta.CharactersEnter, id)
			}
		}
		for _, name := range parsed.Left {
			if id, ok := byName[normalizeName(name)]; ok && presentIDs[id] {
				delta.CharactersLeave = append(delta.CharactersLeave, id)
			}
		}
	}
	return delta
}

func (d *Detector) characterIDsByName(ctx context.Context, playthroughID string) (map[string]string, error) {
	roster, err := d.characters.ListByPlaythrough(ctx, playthroughID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(roster))
	for _, c := range roster {
		byName[normalizeName(c.Name)] = c.ID
	}
	return byName, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
