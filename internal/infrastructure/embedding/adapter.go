package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"

	"storyforge-api/internal/domain/gateway"
)

// Adapter 把 Eino Embedder 适配到领域向量化端口
type Adapter struct {
	embedder embedding.Embedder
}

// NewAdapter 创建向量化适配器
func NewAdapter(embedder embedding.Embedder) *Adapter {
	return &Adapter{embedder: embedder}
}

var _ gateway.Embedder = (*Adapter)(nil)

// EmbedText 向量化单条文本
func (a *Adapter) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := a.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}

	vec := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		vec[i] = float32(v)
	}
	return vec, nil
}
