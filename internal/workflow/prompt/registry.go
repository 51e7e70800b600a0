package prompt

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	PromptCharacterDecisionV1    PromptID = "character_decision_v1"
	PromptNarratorGenV1          PromptID = "narrator_gen_v1"
	PromptSceneChangeV1          PromptID = "scene_change_v1"
	PromptRelationshipAnalysisV1 PromptID = "relationship_analysis_v1"
	PromptMemoryExtractV1        PromptID = "memory_extract_v1"
)

type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]einoprompt.ChatTemplate),
	}
}

func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	systemPath, userPath, err := resolvePromptFiles(id)
	if err != nil {
		return nil, err
	}
	system, err := readEmbeddedText(systemPath)
	if err != nil {
		return nil, err
	}
	user, err := readEmbeddedText(userPath)
	if err != nil {
		return nil, err
	}

	tpl := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[id] = tpl
	return tpl, nil
}

// Render 渲染模板为 system/user 文本对, 供模型网关调用
func (r *Registry) Render(ctx context.Context, id PromptID, vars map[string]any) (system string, user string, err error) {
	tpl, err := r.ChatTemplate(id)
	if err != nil {
		return "", "", err
	}

	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", "", fmt.Errorf("failed to format prompt %s: %w", id, err)
	}

	for _, msg := range msgs {
		switch msg.Role {
		case schema.System:
			system = msg.Content
		case schema.User:
			user = msg.Content
		}
	}
	return system, user, nil
}

func resolvePromptFiles(id PromptID) (systemFile string, userFile string, err error) {
	switch id {
	case PromptCharacterDecisionV1:
		return "templates/character_decision_v1.system.txt", "templates/character_decision_v1.user.txt", nil
	case PromptNarratorGenV1:
		return "templates/narrator_gen_v1.system.txt", "templates/narrator_gen_v1.user.txt", nil
	case PromptSceneChangeV1:
		return "templates/scene_change_v1.system.txt", "templates/scene_change_v1.user.txt", nil
	case PromptRelationshipAnalysisV1:
		return "templates/relationship_analysis_v1.system.txt", "templates/relationship_analysis_v1.user.txt", nil
	case PromptMemoryExtractV1:
		return "templates/memory_extract_v1.system.txt", "templates/memory_extract_v1.user.txt", nil
	default:
		return "", "", fmt.Errorf("unknown prompt id: %s", id)
	}
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
