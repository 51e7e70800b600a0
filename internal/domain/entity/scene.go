// Package entity 定义领域实体
package entity

import (
	"time"
)

// SceneState 当前场景状态, 由场景变化检测与回合管线修改
type SceneState struct {
	ID            string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	PlaythroughID string    `json:"playthrough_id" gorm:"type:uuid;uniqueIndex;not null"`
	Location      string    `json:"location" gorm:"type:varchar(255)"`
	TimeOfDay     string    `json:"time_of_day" gorm:"type:varchar(64)"`
	Weather       string    `json:"weather" gorm:"type:varchar(64)"`
	Mood          string    `json:"mood" gorm:"type:varchar(64)"`
	Summary       string    `json:"summary" gorm:"type:text"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (SceneState) TableName() string {
	return "scene_states"
}

// SceneCharacter 场景在场角色及其场内状态
type SceneCharacter struct {
	ID          string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SceneID     string    `json:"scene_id" gorm:"type:uuid;index;not null"`
	CharacterID string    `json:"character_id" gorm:"type:uuid;index;not null"`
	Mood        string    `json:"mood" gorm:"type:varchar(64)"`
	Intent      string    `json:"intent" gorm:"type:text"`
	Position    string    `json:"position" gorm:"type:varchar(128)"`
	IsSpeaking  bool      `json:"is_speaking" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (SceneCharacter) TableName() string {
	return "scene_characters"
}

// SceneDelta 一回合内检测到的场景变化
type SceneDelta struct {
	LocationChanged  bool     `json:"location_changed"`
	NewLocation      string   `json:"new_location,omitempty"`
	TimeChanged      bool     `json:"time_changed"`
	NewTimeOfDay     string   `json:"new_time_of_day,omitempty"`
	WeatherChanged   bool     `json:"weather_changed"`
	NewWeather       string   `json:"new_weather,omitempty"`
	MoodChanged      bool     `json:"mood_changed"`
	NewMood          string   `json:"new_mood,omitempty"`
	CharactersEnter  []string `json:"characters_enter,omitempty"`
	CharactersLeave  []string `json:"characters_leave,omitempty"`
}

// Empty 没有任何变化
func (d SceneDelta) Empty() bool {
	return !d.LocationChanged && !d.TimeChanged && !d.WeatherChanged &&
		!d.MoodChanged && len(d.CharactersEnter) == 0 && len(d.CharactersLeave) == 0
}
