// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionMemories 角色记忆集合
	CollectionMemories = "memories"

	// VectorDimension 向量维度
	VectorDimension = 1024
)

// MemoriesSchema 角色记忆 Collection Schema
func MemoriesSchema() *entity.Schema {
	return &entity.Schema{
		CollectionName: CollectionMemories,
		Description:    "Character memory embeddings for semantic recall",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": "1024",
				},
			},
			{
				Name:     "playthrough_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "character_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
		},
	}
}

// MemoryVector 记忆向量数据结构
type MemoryVector struct {
	ID            string    `json:"id"`
	Vector        []float32 `json:"vector"`
	PlaythroughID string    `json:"playthrough_id"`
	CharacterID   string    `json:"character_id"`
}

// PartitionName 生成分区名称 (Milvus 分区名不允许连字符)
func PartitionName(playthroughID string) string {
	return "play_" + strings.ReplaceAll(playthroughID, "-", "_")
}
