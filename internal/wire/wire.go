//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"rag-knowledge-hub/internal/application/retrieval"
	"rag-knowledge-hub/internal/config"
	"rag-knowledge-hub/internal/infrastructure/llm"
	"rag-knowledge-hub/internal/infrastructure/persistence/postgres"
	"rag-knowledge-hub/internal/infrastructure/persistence/redis"
	"rag-knowledge-hub/internal/interfaces/http/router"
	workflowprompt "rag-knowledge-hub/internal/workflow/prompt"
)

// InitializeApp 初始化整个应用
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		PostgresSet,
		RedisSet,
		MessagingSet,
		VectorSet,
		EmbeddingSet,
		RetrievalSet,
		KnowledgeSet,
		QASet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeBootstrap 仅初始化存储层（用于 bootstrap）
func InitializeBootstrap(ctx context.Context, cfg *config.Config) (*BootstrapLayer, func(), error) {
	wire.Build(
		ProvidePostgresClient,
		ProvideMilvusClient,
		ProvideMilvusVectorIndex,
		wire.Struct(new(BootstrapLayer), "*"),
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewDocumentRepository,
	postgres.NewChunkRepository,
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
)

// MessagingSet 索引同步事件
var MessagingSet = wire.NewSet(
	ProvideInstanceID,
	ProvideMessagingProducer,
	ProvideMessagingConsumer,
	ProvidePublisher,
)

// VectorSet 向量索引（memory 或 milvus）
var VectorSet = wire.NewSet(
	ProvideMilvusClient,
	ProvideMilvusVectorIndex,
	ProvideVectorIndex,
)

// EmbeddingSet 可选 Embedder（未配置时检索退化为纯关键词）
var EmbeddingSet = wire.NewSet(
	ProvideRetryPolicy,
	ProvideEmbedder,
)

// RetrievalSet 混合检索引擎
var RetrievalSet = wire.NewSet(
	ProvideKeywordIndex,
	retrieval.NewKnowledgeBase,
	retrieval.NewEngine,
	ProvideRetrievalParams,
)

// KnowledgeSet 文档入库与生命周期
var KnowledgeSet = wire.NewSet(
	ProvideChunker,
	ProvideIndexer,
	ProvideExtractor,
	ProvideKnowledgeService,
)

// QASet 问答编排
var QASet = wire.NewSet(
	llm.NewEinoFactory,
	workflowprompt.NewRegistry,
	ProvideAnswerGenerator,
	ProvideExternalClassifier,
	ProvideIntentClassifier,
	ProvideScorer,
	ProvideGate,
	ProvideQAService,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideDocumentHandler,
	ProvideQueryHandler,
	ProvideHealthHandler,
	ProvideRateLimiter,
	ProvideRouterHandlers,
	router.New,
)
