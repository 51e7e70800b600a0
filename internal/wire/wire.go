//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"os"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/google/wire"

	"storyforge-api/internal/application/assembler"
	"storyforge-api/internal/application/decision"
	"storyforge-api/internal/application/narrative"
	"storyforge-api/internal/application/playthrough"
	appscene "storyforge-api/internal/application/scene"
	"storyforge-api/internal/application/stateupdate"
	"storyforge-api/internal/application/turn"
	"storyforge-api/internal/application/validator"
	"storyforge-api/internal/config"
	"storyforge-api/internal/domain/gateway"
	"storyforge-api/internal/domain/repository"
	infraembedding "storyforge-api/internal/infrastructure/embedding"
	"storyforge-api/internal/infrastructure/llm"
	"storyforge-api/internal/infrastructure/messaging"
	"storyforge-api/internal/infrastructure/persistence/milvus"
	"storyforge-api/internal/infrastructure/persistence/postgres"
	"storyforge-api/internal/infrastructure/persistence/redis"
	"storyforge-api/internal/interfaces/http/handler"
	"storyforge-api/internal/interfaces/http/middleware"
	"storyforge-api/internal/interfaces/http/router"
	"storyforge-api/internal/workflow/prompt"
	"storyforge-api/pkg/logger"
)

// Worker 状态回写服务的依赖容器
type Worker struct {
	Consumer *messaging.Consumer
	Updater  *stateupdate.Updater
}

// Bootstrap 引导工具的依赖容器
type Bootstrap struct {
	PgClient   *postgres.Client
	VectorRepo *milvus.Repository
	Stories    repository.StoryRepository
	Characters repository.CharacterRepository
	States     repository.CharacterStateRepository
	Goals      repository.GoalRepository
	Memories   repository.MemoryRepository
	Beliefs    repository.BeliefRepository
	Avoidances repository.AvoidanceRepository
	Knowledge  repository.KnowledgeRepository
	Relations  repository.RelationshipRepository
	Arcs       repository.ArcRepository
}

// InitializeApp 初始化 API 服务
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		MilvusAppSet,
		EmbeddingSet,
		LLMSet,
		PipelineSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeWorker 初始化状态回写服务
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MilvusAppSet,
		EmbeddingSet,
		ProvideConsumer,
		ProvideUpdater,
		wire.Struct(new(stateupdate.Repos), "*"),
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializeBootstrap 初始化引导工具
func InitializeBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, func(), error) {
	wire.Build(
		RepoSet,
		MilvusSet,
		wire.Struct(new(Bootstrap), "*"),
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewStoryRepository,
	postgres.NewPlaythroughRepository,
	postgres.NewCharacterRepository,
	postgres.NewCharacterStateRepository,
	postgres.NewGoalRepository,
	postgres.NewBeliefRepository,
	postgres.NewAvoidanceRepository,
	postgres.NewKnowledgeRepository,
	postgres.NewMemoryRepository,
	postgres.NewRelationshipRepository,
	postgres.NewSceneRepository,
	postgres.NewFlagRepository,
	postgres.NewArcRepository,
	postgres.NewTurnRepository,
	postgres.NewSessionRepository,
	postgres.NewConversationRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.StoryRepository), new(*postgres.StoryRepository)),
	wire.Bind(new(repository.PlaythroughRepository), new(*postgres.PlaythroughRepository)),
	wire.Bind(new(repository.CharacterRepository), new(*postgres.CharacterRepository)),
	wire.Bind(new(repository.CharacterStateRepository), new(*postgres.CharacterStateRepository)),
	wire.Bind(new(repository.GoalRepository), new(*postgres.GoalRepository)),
	wire.Bind(new(repository.BeliefRepository), new(*postgres.BeliefRepository)),
	wire.Bind(new(repository.AvoidanceRepository), new(*postgres.AvoidanceRepository)),
	wire.Bind(new(repository.KnowledgeRepository), new(*postgres.KnowledgeRepository)),
	wire.Bind(new(repository.MemoryRepository), new(*postgres.MemoryRepository)),
	wire.Bind(new(repository.RelationshipRepository), new(*postgres.RelationshipRepository)),
	wire.Bind(new(repository.SceneRepository), new(*postgres.SceneRepository)),
	wire.Bind(new(repository.FlagRepository), new(*postgres.FlagRepository)),
	wire.Bind(new(repository.ArcRepository), new(*postgres.ArcRepository)),
	wire.Bind(new(repository.TurnRepository), new(*postgres.TurnRepository)),
	wire.Bind(new(repository.SessionRepository), new(*postgres.SessionRepository)),
	wire.Bind(new(repository.ConversationRepository), new(*postgres.ConversationRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
)

// MilvusSet Milvus 提供者集合（不可达即失败,用于 bootstrap）
var MilvusSet = wire.NewSet(
	ProvideMilvusClient,
	milvus.NewRepository,
)

// MilvusAppSet 在线服务的可选 Milvus（不可达时记忆检索退化为时近排序）
var MilvusAppSet = wire.NewSet(
	ProvideMilvusClientOptional,
	ProvideMilvusRepositoryOptional,
	ProvideMemoryVectorStore,
)

// EmbeddingSet 可选 Embedder（不可用时跳过向量写入与语义检索）
var EmbeddingSet = wire.NewSet(
	ProvideEmbedderOptional,
	ProvideGatewayEmbedder,
)

// LLMSet 模型网关提供者集合
var LLMSet = wire.NewSet(
	llm.NewEinoFactory,
	llm.NewGateway,
	wire.Bind(new(gateway.Completer), new(*llm.Gateway)),
)

// PipelineSet 回合管线提供者集合
var PipelineSet = wire.NewSet(
	prompt.NewRegistry,
	ProvideAssembler,
	ProvideDecisionEngine,
	ProvideNarrativeGenerator,
	validator.New,
	ProvideSceneDetector,
	ProvideEffectsBuilder,
	ProvidePlaythroughService,
	ProvideTurnPipeline,
	wire.Struct(new(assembler.Deps), "*"),
	wire.Struct(new(playthrough.Repos), "*"),
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideAuthConfig,
	handler.NewHealthHandler,
	handler.NewStoryHandler,
	ProvidePlaythroughHandler,
	ProvideTurnHandler,
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideConsumer 提供回合效果流消费者
func ProvideConsumer(redisClient *redis.Client, cfg *config.Config) *messaging.Consumer {
	mc := cfg.Messaging.RedisStream
	consumerName, _ := os.Hostname()
	if consumerName == "" {
		consumerName = "state-worker"
	}
	return messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamTurnEffects,
		Group:         messaging.ConsumerGroupStateWorker,
		ConsumerName:  consumerName,
		BlockTimeout:  mc.BlockTimeout,
		ClaimInterval: mc.ClaimInterval,
		RetryLimit:    mc.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    mc.RetryBackoff.Initial,
			Max:        mc.RetryBackoff.Max,
			Multiplier: mc.RetryBackoff.Multiplier,
		},
	})
}

// ProvideMilvusClient 提供 Milvus 客户端
func ProvideMilvusClient(ctx context.Context, cfg *config.Config) (*milvus.Client, func(), error) {
	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

func ProvideMilvusClientOptional(ctx context.Context, cfg *config.Config) (*milvus.Client, func(), error) {
	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus not available, memory retrieval falls back to recency", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

func ProvideMilvusRepositoryOptional(client *milvus.Client) *milvus.Repository {
	if client == nil {
		return nil
	}
	return milvus.NewRepository(client)
}

func ProvideMemoryVectorStore(repo *milvus.Repository) repository.MemoryVectorStore {
	if repo == nil {
		return nil
	}
	return repo
}

func ProvideEmbedderOptional(ctx context.Context, cfg *config.Config) (einoembedding.Embedder, error) {
	// tei 走自建 HTTP 客户端, 不经过 Eino
	if cfg.Embedding.Provider == "tei" {
		return nil, nil
	}
	embedder, err := infraembedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Warn(ctx, "embedding not available, semantic recall disabled", "error", err.Error())
		return nil, nil
	}
	return embedder, nil
}

func ProvideGatewayEmbedder(ctx context.Context, embedder einoembedding.Embedder, cfg *config.Config) gateway.Embedder {
	if cfg.Embedding.Provider == "tei" {
		if cfg.Embedding.Endpoint == "" {
			logger.Warn(ctx, "tei embedding endpoint missing, semantic recall disabled")
			return nil
		}
		return infraembedding.NewClient(&cfg.Embedding)
	}
	if embedder == nil {
		return nil
	}
	return infraembedding.NewAdapter(embedder)
}

// ProvideAssembler 提供上下文装配器
func ProvideAssembler(deps assembler.Deps, embedder gateway.Embedder, cfg *config.Config) *assembler.Assembler {
	return assembler.New(deps, embedder, cfg.Pipeline.Context, cfg.Pipeline.Emotion)
}

// ProvideDecisionEngine 提供角色决策引擎
func ProvideDecisionEngine(completer gateway.Completer, prompts *prompt.Registry, cfg *config.Config) *decision.Engine {
	return decision.NewEngine(completer, prompts, cfg.Pipeline.DecisionTimeout, cfg.Pipeline.Context.TokenBudgetPerCharacter)
}

// ProvideNarrativeGenerator 提供叙事生成器
func ProvideNarrativeGenerator(completer gateway.Completer, prompts *prompt.Registry, cfg *config.Config) *narrative.Generator {
	return narrative.NewGenerator(completer, prompts, cfg.Pipeline.GenerateTimeout)
}

// ProvideSceneDetector 提供场景变化检测器
func ProvideSceneDetector(completer gateway.Completer, prompts *prompt.Registry, characters repository.CharacterRepository) *appscene.Detector {
	return appscene.NewDetector(completer, prompts, characters, 0)
}

// ProvideEffectsBuilder 提供回合效果构建器
func ProvideEffectsBuilder(completer gateway.Completer, prompts *prompt.Registry) *stateupdate.Builder {
	return stateupdate.NewBuilder(completer, prompts, 0)
}

// ProvideUpdater 提供状态回写器
func ProvideUpdater(repos stateupdate.Repos, embedder gateway.Embedder, cache *redis.Cache, cfg *config.Config) *stateupdate.Updater {
	return stateupdate.New(repos, embedder, cache, cfg.Pipeline.Relationship)
}

// ProvidePlaythroughService 提供开局服务
func ProvidePlaythroughService(repos playthrough.Repos, tx *postgres.TxManager, embedder gateway.Embedder) *playthrough.Service {
	return playthrough.NewService(repos, tx, embedder)
}

// ProvideTurnPipeline 提供回合管线
func ProvideTurnPipeline(
	asm *assembler.Assembler,
	decisions *decision.Engine,
	narrator *narrative.Generator,
	v *validator.Validator,
	detector *appscene.Detector,
	builder *stateupdate.Builder,
	producer *messaging.Producer,
	turns repository.TurnRepository,
	sessions repository.SessionRepository,
	conversations repository.ConversationRepository,
	playthroughs repository.PlaythroughRepository,
	cfg *config.Config,
) *turn.Pipeline {
	return turn.NewPipeline(asm, decisions, narrator, v, detector, builder, producer,
		turns, sessions, conversations, playthroughs, cfg.Pipeline)
}

// ProvidePlaythroughHandler 提供游玩会话处理器
func ProvidePlaythroughHandler(
	service *playthrough.Service,
	playthroughs repository.PlaythroughRepository,
	stories repository.StoryRepository,
	characters repository.CharacterRepository,
	states repository.CharacterStateRepository,
	cache *redis.Cache,
	cfg *config.Config,
) *handler.PlaythroughHandler {
	return handler.NewPlaythroughHandler(service, playthroughs, stories, characters, states, cache, cfg.Pipeline.Emotion)
}

// ProvideTurnHandler 提供回合处理器
func ProvideTurnHandler(pipeline *turn.Pipeline, turns repository.TurnRepository, cfg *config.Config) *handler.TurnHandler {
	return handler.NewTurnHandler(pipeline, turns, cfg.Pipeline.Relationship)
}

// ProvideAuthConfig 提供认证配置
func ProvideAuthConfig(cfg *config.Config) middleware.AuthConfig {
	return middleware.AuthConfig{
		Secret:    cfg.Security.JWT.Secret,
		Issuer:    cfg.Security.JWT.Issuer,
		SkipPaths: middleware.DefaultSkipPaths,
		Enabled:   cfg.Security.JWT.Secret != "",
	}
}
