// Package gateway 定义模型网关端口, 管线各阶段通过端口调用模型而非直接依赖 SDK
package gateway

import "context"

// Role 管线角色, 决定一次调用路由到大模型还是小模型
type Role string

const (
	// RoleNarrator 叙事生成, 使用大模型
	RoleNarrator Role = "narrator"
	// RoleCharacter 角色决策, 使用小模型
	RoleCharacter Role = "character"
	// RoleAnalysis 关系分析/场景检测等辅助调用, 使用小模型
	RoleAnalysis Role = "analysis"
)

// Completer 模型补全端口
type Completer interface {
	Complete(ctx context.Context, role Role, system, user string, maxTokens int) (string, error)
}

// Embedder 文本向量化端口
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}
