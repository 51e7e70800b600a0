package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storyforge-api/internal/domain/repository"
	"storyforge-api/pkg/metrics"
)

// Repository 记忆向量仓储, 实现 repository.MemoryVectorStore
type Repository struct {
	client *Client
}

// NewRepository 创建记忆向量仓储
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

var _ repository.MemoryVectorStore = (*Repository)(nil)

// EnsureCollection 创建记忆集合与 HNSW 索引 (已存在时直接加载)
func (r *Repository) EnsureCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.EnsureCollection")
	defer span.End()

	has, err := r.client.HasCollection(ctx, CollectionMemories)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		schema := MemoriesSchema()
		schema.CollectionName = r.client.CollectionName(CollectionMemories)
		if err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create collection: %w", err)
		}
		if err := r.CreateIndex(ctx); err != nil {
			return err
		}
	}

	if err := r.client.LoadCollection(ctx, CollectionMemories); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// CreateIndex 为向量字段创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", CollectionMemories)))
	defer span.End()

	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	collName := r.client.CollectionName(CollectionMemories)
	if err := r.client.milvus.CreateIndex(ctx, collName, "vector", idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Upsert 写入记忆向量, 分区不存在时先创建
func (r *Repository) Upsert(ctx context.Context, playthroughID, characterID, memoryID string, vector []float32) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.Upsert",
		trace.WithAttributes(
			attribute.String("playthrough_id", playthroughID),
			attribute.String("character_id", characterID),
			attribute.String("memory_id", memoryID),
		))
	defer span.End()

	collName := r.client.CollectionName(CollectionMemories)
	partitionName := PartitionName(playthroughID)

	has, err := r.client.milvus.HasPartition(ctx, collName, partitionName)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		if err := r.client.milvus.CreatePartition(ctx, collName, partitionName); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create partition: %w", err)
		}
	}

	idCol := entity.NewColumnVarChar("id", []string{memoryID})
	vectorCol := entity.NewColumnFloatVector("vector", VectorDimension, [][]float32{vector})
	playthroughCol := entity.NewColumnVarChar("playthrough_id", []string{playthroughID})
	characterCol := entity.NewColumnVarChar("character_id", []string{characterID})

	_, err = r.client.milvus.Upsert(ctx, collName, partitionName,
		idCol, vectorCol, playthroughCol, characterCol)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert memory vector: %w", err)
	}
	return nil
}

// Search 按余弦相似度检索角色记忆
func (r *Repository) Search(ctx context.Context, playthroughID, characterID string, vector []float32, topK int) ([]repository.VectorHit, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("playthrough_id", playthroughID),
			attribute.String("character_id", characterID),
			attribute.Int("top_k", topK),
		))
	defer span.End()

	start := time.Now()

	collName := r.client.CollectionName(CollectionMemories)
	partitionName := PartitionName(playthroughID)

	// 分区尚未创建 (新游玩会话还没有记忆) 时直接返回空结果
	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		metrics.MilvusSearchTotal.WithLabelValues(CollectionMemories, "error").Inc()
		return nil, fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		metrics.MilvusSearchTotal.WithLabelValues(CollectionMemories, "empty").Inc()
		return []repository.VectorHit{}, nil
	}

	filter := fmt.Sprintf(`character_id == "%s"`, characterID)

	sp, err := entity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		collName,
		[]string{partitionName},
		filter,
		[]string{"id"},
		[]entity.Vector{entity.FloatVector(vector)},
		"vector",
		entity.COSINE,
		topK,
		sp,
	)
	metrics.MilvusSearchDuration.WithLabelValues(CollectionMemories).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		metrics.MilvusSearchTotal.WithLabelValues(CollectionMemories, "error").Inc()
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	metrics.MilvusSearchTotal.WithLabelValues(CollectionMemories, "success").Inc()

	var hits []repository.VectorHit
	for _, result := range results {
		idCol, ok := result.Fields.GetColumn("id").(*entity.ColumnVarChar)
		if !ok {
			continue
		}
		for i := 0; i < result.ResultCount; i++ {
			hits = append(hits, repository.VectorHit{
				MemoryID: idCol.Data()[i],
				Score:    float64(result.Scores[i]),
			})
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(hits)))
	return hits, nil
}

// DropPlaythrough 删除游玩会话的全部向量 (整分区释放后丢弃)
func (r *Repository) DropPlaythrough(ctx context.Context, playthroughID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DropPlaythrough",
		trace.WithAttributes(attribute.String("playthrough_id", playthroughID)))
	defer span.End()

	collName := r.client.CollectionName(CollectionMemories)
	partitionName := PartitionName(playthroughID)

	has, err := r.client.milvus.HasPartition(ctx, collName, partitionName)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		return nil
	}

	if err := r.client.milvus.ReleasePartitions(ctx, collName, []string{partitionName}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to release partition: %w", err)
	}
	if err := r.client.milvus.DropPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to drop partition: %w", err)
	}
	return nil
}
