// Package entity 定义领域实体
package entity

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// JSONMap 用于 GORM JSON 序列化的通用映射
type JSONMap map[string]interface{}

// Value 实现 driver.Valuer 接口
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan 实现 sql.Scanner 接口
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	return json.Unmarshal(value.([]byte), m)
}

// TurnStage 回合状态机阶段
type TurnStage string

const (
	TurnStageIntake      TurnStage = "intake"
	TurnStageContext     TurnStage = "context"
	TurnStageDecisions   TurnStage = "decisions"
	TurnStageGenerate    TurnStage = "generate"
	TurnStageValidate    TurnStage = "validate"
	TurnStageRelease     TurnStage = "release"
	TurnStageStateUpdate TurnStage = "state_update"
)

// TurnStatus 回合终态
type TurnStatus string

const (
	TurnStatusProcessing TurnStatus = "processing"
	TurnStatusCompleted  TurnStatus = "completed"
	TurnStatusRejected   TurnStatus = "rejected"
	TurnStatusFailed     TurnStatus = "failed"
	TurnStatusCancelled  TurnStatus = "cancelled"
)

// ValidationVerdict 校验结论
type ValidationVerdict string

const (
	VerdictValid      ValidationVerdict = "valid"
	VerdictNeedsRegen ValidationVerdict = "needs_regen"
	VerdictRejected   ValidationVerdict = "rejected"
)

// ViolationSeverity 违规严重程度
type ViolationSeverity string

const (
	SeverityLow      ViolationSeverity = "low"
	SeverityMedium   ViolationSeverity = "medium"
	SeverityHigh     ViolationSeverity = "high"
	SeverityCritical ViolationSeverity = "critical"
)

// RequiresRegen 该严重程度是否触发再生成
func (s ViolationSeverity) RequiresRegen() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// Violation 单条校验违规
type Violation struct {
	Check       string            `json:"check"`
	Severity    ViolationSeverity `json:"severity"`
	CharacterID string            `json:"character_id,omitempty"`
	Description string            `json:"description"`
}

// Turn 回合审计记录: 一次用户输入, 一组角色决策, 一段生成叙事,
// 一个校验结论, 一批状态效果. 可按 ID 回查 "AI 看到并决定了什么"
type Turn struct {
	ID              string     `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	PlaythroughID   string     `json:"playthrough_id" gorm:"type:uuid;index;not null"`
	SessionID       string     `json:"session_id" gorm:"type:uuid;index;not null"`
	UserAction      string     `json:"user_action" gorm:"type:text;not null"`
	ContextSnapshot JSONMap    `json:"context_snapshot,omitempty" gorm:"type:jsonb"`
	Decisions       JSONMap    `json:"decisions,omitempty" gorm:"type:jsonb"`
	NarrativeText   string     `json:"narrative_text" gorm:"type:text"`
	Verdict         string     `json:"verdict" gorm:"type:varchar(16)"`
	Violations      JSONMap    `json:"violations,omitempty" gorm:"type:jsonb"`
	Regenerations   int        `json:"regenerations" gorm:"not null;default:0"`
	AppliedDeltas   JSONMap    `json:"applied_deltas,omitempty" gorm:"type:jsonb"`
	StageTimings    JSONMap    `json:"stage_timings,omitempty" gorm:"type:jsonb"`
	Status          TurnStatus `json:"status" gorm:"type:varchar(16);not null;default:'processing'"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Turn) TableName() string {
	return "turns"
}

// AppliedTurn 状态回写去重标记, 按 (TurnID, EntityType) 幂等保护.
// 重投递只补写此前失败的实体类型, 已成功的类型不会重复应用
type AppliedTurn struct {
	TurnID        string    `json:"turn_id" gorm:"type:uuid;primaryKey"`
	EntityType    string    `json:"entity_type" gorm:"type:varchar(32);primaryKey"`
	PlaythroughID string    `json:"playthrough_id" gorm:"type:uuid;index;not null"`
	AppliedAt     time.Time `json:"applied_at" gorm:"autoCreateTime"`
}

func (AppliedTurn) TableName() string {
	return "applied_turns"
}

// NewMemoryEffect 回合产生的新记忆
type NewMemoryEffect struct {
	CharacterID        string   `json:"character_id"`
	Content            string   `json:"content"`
	Importance         int      `json:"importance"`
	EmotionalValence   float64  `json:"emotional_valence"`
	EmotionalIntensity float64  `json:"emotional_intensity"`
	Tags               []string `json:"tags,omitempty"`
}

// StateTransitionEffect 回合产生的角色状态迁移
type StateTransitionEffect struct {
	CharacterID      string       `json:"character_id"`
	NewEmotion       string       `json:"new_emotion"`
	EmotionIntensity float64      `json:"emotion_intensity"`
	EmotionClass     EmotionClass `json:"emotion_class"`
	StressChange     float64      `json:"stress_change"`
	EnergyChange     float64      `json:"energy_change"`
	PrimaryConcern   string       `json:"primary_concern,omitempty"`
}

// KnowledgeEffect 回合产生的新知识
type KnowledgeEffect struct {
	CharacterID string  `json:"character_id"`
	Subject     string  `json:"subject"`
	Content     string  `json:"content"`
	Source      string  `json:"source"`
	Certainty   float64 `json:"certainty"`
}

// GoalProgressEffect 回合产生的目标推进
type GoalProgressEffect struct {
	GoalID       string     `json:"goal_id"`
	NewStatus    GoalStatus `json:"new_status,omitempty"`
	ProgressNote string     `json:"progress_note,omitempty"`
}

// FlagEffect 回合设置的故事标记
type FlagEffect struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// BeliefEffect 回合产生的信念强化或动摇
type BeliefEffect struct {
	BeliefID       string  `json:"belief_id"`
	StrengthChange float64 `json:"strength_change"`
	Challenged     bool    `json:"challenged"`
}

// ArcProgressEffect 回合产生的弧线推进
type ArcProgressEffect struct {
	ArcID     string    `json:"arc_id"`
	NewStage  int       `json:"new_stage"`
	NewStatus ArcStatus `json:"new_status,omitempty"`
}

// TurnEffects 一个回合的全部状态效果, 释放响应后经消息队列异步回写.
// 回写按固定顺序应用: 关系 -> 角色状态 -> 记忆 -> 知识 -> 目标 ->
// 标记 -> 信念 -> 场景 -> 弧线
type TurnEffects struct {
	TurnID             string                  `json:"turn_id"`
	PlaythroughID      string                  `json:"playthrough_id"`
	RelationshipDeltas []RelationshipDelta     `json:"relationship_deltas,omitempty"`
	StateTransitions   []StateTransitionEffect `json:"state_transitions,omitempty"`
	NewMemories        []NewMemoryEffect       `json:"new_memories,omitempty"`
	Knowledge          []KnowledgeEffect       `json:"knowledge,omitempty"`
	GoalProgress       []GoalProgressEffect    `json:"goal_progress,omitempty"`
	Flags              []FlagEffect            `json:"flags,omitempty"`
	Beliefs            []BeliefEffect          `json:"beliefs,omitempty"`
	SceneDelta         *SceneDelta             `json:"scene_delta,omitempty"`
	ArcProgress        []ArcProgressEffect     `json:"arc_progress,omitempty"`
}
