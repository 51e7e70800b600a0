// Package entity 定义领域实体
package entity

import (
	"math"
	"time"
)

// EmotionClass 情绪类别, 决定强度衰减速度
type EmotionClass string

const (
	// EmotionClassAcute 急性情绪, 快速衰减 (受惊/恼怒)
	EmotionClassAcute EmotionClass = "acute"
	// EmotionClassDeep 深层情绪, 缓慢衰减 (悲恸/怨恨)
	EmotionClassDeep EmotionClass = "deep"
)

// CharacterState 角色可变状态, 仅由状态回写器修改,
// 上下文装配器与角色决策引擎只读
type CharacterState struct {
	ID               string       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CharacterID      string       `json:"character_id" gorm:"type:uuid;uniqueIndex;not null"`
	PlaythroughID    *string      `json:"playthrough_id,omitempty" gorm:"type:uuid;index"`
	BaselineEmotion  string       `json:"baseline_emotion" gorm:"type:varchar(64);not null;default:'calm'"`
	CurrentEmotion   string       `json:"current_emotion" gorm:"type:varchar(64);not null;default:'calm'"`
	EmotionIntensity float64      `json:"emotion_intensity" gorm:"not null;default:0"`
	EmotionClass     EmotionClass `json:"emotion_class" gorm:"type:varchar(16);not null;default:'acute'"`
	EmotionStartedAt time.Time    `json:"emotion_started_at"`
	Stress           float64      `json:"stress" gorm:"not null;default:0"`
	Energy           float64      `json:"energy" gorm:"not null;default:1"`
	Clarity          float64      `json:"clarity" gorm:"not null;default:1"`
	PrimaryConcern   string       `json:"primary_concern" gorm:"type:text"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}

func (CharacterState) TableName() string {
	return "character_states"
}

// DecayedIntensity 按经过时间与情绪类别计算当前有效强度,
// 纯函数, 读取时应用, 不依赖后台定时器
func DecayedIntensity(intensity float64, class EmotionClass, startedAt, now time.Time, acuteHalfLife, deepHalfLife time.Duration) float64 {
	if intensity <= 0 {
		return 0
	}
	halfLife := acuteHalfLife
	if class == EmotionClassDeep {
		halfLife = deepHalfLife
	}
	if halfLife <= 0 {
		return intensity
	}
	elapsed := now.Sub(startedAt)
	if elapsed <= 0 {
		return intensity
	}
	decayed := intensity * math.Pow(0.5, elapsed.Hours()/halfLife.Hours())
	return Clamp01(decayed)
}

// EffectiveIntensity 当前有效情绪强度
func (s *CharacterState) EffectiveIntensity(now time.Time, acuteHalfLife, deepHalfLife time.Duration) float64 {
	return DecayedIntensity(s.EmotionIntensity, s.EmotionClass, s.EmotionStartedAt, now, acuteHalfLife, deepHalfLife)
}

// EffectiveEmotion 衰减后低于阈值时回落到基线情绪
func (s *CharacterState) EffectiveEmotion(now time.Time, acuteHalfLife, deepHalfLife time.Duration) string {
	if s.EffectiveIntensity(now, acuteHalfLife, deepHalfLife) < 0.1 {
		return s.BaselineEmotion
	}
	return s.CurrentEmotion
}

// Clamp01 将标量钳制到 [0,1]
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
