package assembler

import (
	"fmt"
	"strings"
	"time"

	"storyforge-api/internal/domain/entity"
	wfnode "storyforge-api/internal/workflow/node"
)

// Bundle 一个回合的完整上下文快照.
// 所有切片均按确定性顺序排列, 同一状态下两次装配产生相同内容
type Bundle struct {
	PlaythroughID string
	SessionID     string
	UserAction    string

	Story   *entity.Story
	Scene   *entity.SceneState
	Player  *entity.Character
	Present []*entity.Character

	States        map[string]*entity.CharacterState
	Relationships map[string]*entity.Relationship
	Goals         map[string][]*entity.CharacterGoal
	Memories      map[string][]entity.ScoredMemory
	Beliefs       map[string][]*entity.CharacterBelief
	Avoidances    map[string][]*entity.CharacterAvoidance
	Knowledge     map[string][]*entity.CharacterKnowledge

	History []*entity.ConversationMessage
	Arcs    []*entity.StoryArc
	Flags   []*entity.StoryFlag

	AssembledAt time.Time

	acuteHalfLife time.Duration
	deepHalfLife  time.Duration
}

// EstimateTokens 粗略 token 估算, 约 4 字符一个 token
func EstimateTokens(s string) int {
	n := 0
	for range s {
		n++
	}
	return n/4 + 1
}

// truncateToTokens 按 token 预算截断文本
func truncateToTokens(s string, tokens int) string {
	if tokens <= 0 {
		return ""
	}
	return wfnode.TruncateByRunes(s, tokens*4)
}

// SceneDescription 场景描述文本
func (b *Bundle) SceneDescription() string {
	if b.Scene == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(b.Scene.Location)
	if b.Scene.Weather != "" {
		sb.WriteString(", ")
		sb.WriteString(b.Scene.Weather)
	}
	if b.Scene.Mood != "" {
		sb.WriteString(", ")
		sb.WriteString(b.Scene.Mood)
	}
	if b.Scene.Summary != "" {
		sb.WriteString(". ")
		sb.WriteString(b.Scene.Summary)
	}
	return sb.String()
}

// SceneTime 场景时间文本
func (b *Bundle) SceneTime() string {
	if b.Scene == nil {
		return ""
	}
	return b.Scene.TimeOfDay
}

// PresentNames 在场角色名列表 (含玩家)
func (b *Bundle) PresentNames() string {
	names := make([]string, 0, len(b.Present)+1)
	if b.Player != nil {
		names = append(names, b.Player.Name+" (player)")
	}
	for _, c := range b.Present {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}

// HistoryText 最近对话历史, 最早的在前
func (b *Bundle) HistoryText(maxTokens int) string {
	var sb strings.Builder
	for _, msg := range b.History {
		prefix := "Narrator"
		if msg.Role == entity.RoleUser {
			prefix = "Player"
		}
		sb.WriteString(prefix)
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return truncateToTokens(sb.String(), maxTokens)
}

// MemoriesText 角色记忆文本, 已按相关性排序
func (b *Bundle) MemoriesText(characterID string, maxTokens int) string {
	memories := b.Memories[characterID]
	if len(memories) == 0 {
		return "(no relevant memories)"
	}
	var sb strings.Builder
	for _, m := range memories {
		sb.WriteString("- ")
		sb.WriteString(m.Memory.Content)
		sb.WriteString("\n")
	}
	return truncateToTokens(sb.String(), maxTokens)
}

// GoalsText 角色活跃目标文本, 按优先级排序
func (b *Bundle) GoalsText(characterID string) string {
	goals := b.Goals[characterID]
	if len(goals) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, g := range goals {
		sb.WriteString(fmt.Sprintf("- [%s, priority %d] %s", g.Type, g.Priority, g.Description))
		if g.ProgressNote != "" {
			sb.WriteString(" (" + g.ProgressNote + ")")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// BeliefsText 角色信念文本, 含确信度
func (b *Bundle) BeliefsText(characterID string) string {
	beliefs := b.Beliefs[characterID]
	if len(beliefs) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, bl := range beliefs {
		sb.WriteString(fmt.Sprintf("- %s (conviction %.1f)", bl.Statement, bl.Strength))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// AvoidancesText 角色回避文本, 含严重度与表现方式
func (b *Bundle) AvoidancesText(characterID string) string {
	avoidances := b.Avoidances[characterID]
	if len(avoidances) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, av := range avoidances {
		sb.WriteString(fmt.Sprintf("- avoids %s %q [%s]", av.Type, av.Target, av.Severity))
		if av.Manifestation != "" {
			sb.WriteString("; when pressed: " + av.Manifestation)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// EffectiveState 读取时应用情绪衰减后的角色状态视图
func (b *Bundle) EffectiveState(characterID string) (emotion string, intensity float64) {
	st, ok := b.States[characterID]
	if !ok {
		return "", 0
	}
	return st.EffectiveEmotion(b.AssembledAt, b.acuteHalfLife, b.deepHalfLife),
		st.EffectiveIntensity(b.AssembledAt, b.acuteHalfLife, b.deepHalfLife)
}

// DecisionVars 构造角色决策模板变量, 整体受 token 预算约束.
// 超预算时按固定优先级截断: 先压缩历史, 再压缩记忆, 约束集永不截断
func (b *Bundle) DecisionVars(c *entity.Character, budgetTokens int) map[string]any {
	emotion, intensity := b.EffectiveState(c.ID)

	rel := b.Relationships[c.ID]
	trust, affection, familiarity := 0.5, 0.5, 0.0
	if rel != nil {
		trust, affection, familiarity = rel.Trust, rel.Affection, rel.Familiarity
	}

	fixed := strings.Join([]string{
		c.Name, c.Description,
		strings.Join(c.CoreValues, "; "),
		strings.Join(c.CoreFears, "; "),
		strings.Join(c.WouldNeverDo, "; "),
		strings.Join(c.WouldAlwaysDo, "; "),
		c.DecisionStyle, c.VerbalPatterns,
		b.GoalsText(c.ID),
		b.BeliefsText(c.ID),
		b.AvoidancesText(c.ID),
		b.SceneDescription(),
		b.UserAction,
	}, "\n")

	remaining := budgetTokens - EstimateTokens(fixed)
	historyBudget := remaining / 2
	memoryBudget := remaining - historyBudget
	if remaining <= 0 {
		historyBudget, memoryBudget = 0, 0
	}

	return map[string]any{
		"character_name":     c.Name,
		"personality":        c.Description,
		"core_values":        strings.Join(c.CoreValues, "; "),
		"core_fears":         strings.Join(c.CoreFears, "; "),
		"would_never_do":     strings.Join(c.WouldNeverDo, "; "),
		"would_always_do":    strings.Join(c.WouldAlwaysDo, "; "),
		"decision_style":     c.DecisionStyle,
		"verbal_patterns":    c.VerbalPatterns,
		"current_emotion":    emotion,
		"emotion_intensity":  fmt.Sprintf("%.2f", intensity),
		"goals":              b.GoalsText(c.ID),
		"beliefs":            b.BeliefsText(c.ID),
		"avoidances":         b.AvoidancesText(c.ID),
		"trust":              fmt.Sprintf("%.2f", trust),
		"affection":          fmt.Sprintf("%.2f", affection),
		"familiarity":        fmt.Sprintf("%.2f", familiarity),
		"memories":           b.MemoriesText(c.ID, memoryBudget),
		"scene_description":  b.SceneDescription(),
		"present_characters": b.PresentNames(),
		"recent_history":     b.HistoryText(historyBudget),
		"player_action":      b.UserAction,
		"correction_note":    "",
	}
}

// Snapshot 审计用的压缩上下文快照
func (b *Bundle) Snapshot() entity.JSONMap {
	memoryIDs := make(map[string][]string, len(b.Memories))
	for charID, mems := range b.Memories {
		ids := make([]string, 0, len(mems))
		for _, m := range mems {
			ids = append(ids, m.Memory.ID)
		}
		memoryIDs[charID] = ids
	}

	presentIDs := make([]string, 0, len(b.Present))
	for _, c := range b.Present {
		presentIDs = append(presentIDs, c.ID)
	}

	flags := make(map[string]string, len(b.Flags))
	for _, f := range b.Flags {
		flags[f.Name] = f.Value
	}

	snapshot := entity.JSONMap{
		"user_action":   b.UserAction,
		"present":       presentIDs,
		"memory_ids":    memoryIDs,
		"history_count": len(b.History),
		"flags":         flags,
		"assembled_at":  b.AssembledAt.UTC().Format(time.RFC3339),
	}
	if b.Scene != nil {
		snapshot["scene_location"] = b.Scene.Location
		snapshot["scene_time"] = b.Scene.TimeOfDay
	}
	return snapshot
}
