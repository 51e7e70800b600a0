// Package entity 定义领域实体
package entity

// CharacterDecision 角色决策引擎的结构化输出,
// 仅作为叙事生成的建议输入, 不直接展示给玩家
type CharacterDecision struct {
	CharacterID   string `json:"character_id"`
	CharacterName string `json:"character_name"`
	Action        string `json:"action"`
	Dialogue      string `json:"dialogue"`
	Emotion       string `json:"emotion"`
	Refuses       bool   `json:"refuses"`
	Reason        string `json:"reason"`
	// Fallback 表示模型响应解析失败, 使用了确定性安全默认值
	Fallback bool `json:"fallback,omitempty"`
}

// SafeDefaultDecision 解析失败后的确定性安全默认值:
// 不拒绝, 空台词, 情绪保持当前状态, 绝不从关键词猜测
func SafeDefaultDecision(characterID, characterName, currentEmotion string) CharacterDecision {
	return CharacterDecision{
		CharacterID:   characterID,
		CharacterName: characterName,
		Action:        "",
		Dialogue:      "",
		Emotion:       currentEmotion,
		Refuses:       false,
		Reason:        "",
		Fallback:      true,
	}
}
