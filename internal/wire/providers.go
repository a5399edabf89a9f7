package wire

import (
	"context"
	"strings"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"

	"rag-knowledge-hub/internal/application/evidence"
	"rag-knowledge-hub/internal/application/intent"
	"rag-knowledge-hub/internal/application/knowledge"
	"rag-knowledge-hub/internal/application/qa"
	"rag-knowledge-hub/internal/application/retrieval"
	"rag-knowledge-hub/internal/application/security"
	"rag-knowledge-hub/internal/config"
	infraembedding "rag-knowledge-hub/internal/infrastructure/embedding"
	"rag-knowledge-hub/internal/infrastructure/extraction"
	"rag-knowledge-hub/internal/infrastructure/llm"
	"rag-knowledge-hub/internal/infrastructure/messaging"
	"rag-knowledge-hub/internal/infrastructure/persistence/milvus"
	"rag-knowledge-hub/internal/infrastructure/persistence/postgres"
	"rag-knowledge-hub/internal/infrastructure/persistence/redis"
	"rag-knowledge-hub/internal/infrastructure/retry"
	"rag-knowledge-hub/internal/interfaces/http/handler"
	"rag-knowledge-hub/internal/interfaces/http/middleware"
	"rag-knowledge-hub/internal/interfaces/http/router"
	workflowprompt "rag-knowledge-hub/internal/workflow/prompt"
	"rag-knowledge-hub/pkg/logger"
)

// InstanceID 当前副本标识
type InstanceID string

// App 进程级组件
type App struct {
	Router    *router.Router
	Knowledge *knowledge.Service
	// Consumer 未启用索引同步时为 nil
	Consumer *messaging.Consumer
}

// BootstrapLayer 初始化存储结构所需的依赖
type BootstrapLayer struct {
	PgClient *postgres.Client
	// VectorIndex 向量后端为 memory 时为 nil
	VectorIndex *milvus.VectorIndex
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
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
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMilvusClient 向量后端不是 milvus 时返回 nil
func ProvideMilvusClient(ctx context.Context, cfg *config.Config) (*milvus.Client, func(), error) {
	if !usesMilvus(cfg) {
		return nil, func() {}, nil
	}
	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

func ProvideMilvusVectorIndex(ctx context.Context, cfg *config.Config, client *milvus.Client) (*milvus.VectorIndex, error) {
	if client == nil {
		return nil, nil
	}
	idx := milvus.NewVectorIndex(client, cfg.Embedding.Dimension)
	if err := idx.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// ProvideVectorIndex 选择向量索引实现
func ProvideVectorIndex(cfg *config.Config, milvusIndex *milvus.VectorIndex) retrieval.VectorIndex {
	if milvusIndex != nil {
		return milvusIndex
	}
	return retrieval.NewMemoryVectorIndex(cfg.Embedding.Dimension)
}

func usesMilvus(cfg *config.Config) bool {
	return strings.EqualFold(strings.TrimSpace(cfg.Vector.Backend), "milvus")
}

// ProvideInstanceID 未配置时随机生成
func ProvideInstanceID(cfg *config.Config) InstanceID {
	if id := strings.TrimSpace(cfg.App.InstanceID); id != "" {
		return InstanceID(id)
	}
	return InstanceID(uuid.NewString())
}

// ProvideMessagingProducer 未启用 Redis Stream 时返回 nil
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config, id InstanceID) *messaging.Producer {
	rs := cfg.Messaging.RedisStream
	if !rs.Enabled {
		return nil
	}
	maxLen := rs.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return messaging.NewProducer(redisClient.Redis(), string(id), int64(maxLen))
}

// ProvidePublisher 避免把 nil *Producer 装进接口
func ProvidePublisher(p *messaging.Producer) knowledge.Publisher {
	if p == nil {
		return nil
	}
	return p
}

// ProvideMessagingConsumer 未启用 Redis Stream 时返回 nil
func ProvideMessagingConsumer(redisClient *redis.Client, cfg *config.Config, id InstanceID) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	if !rs.Enabled {
		return nil
	}
	return messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		GroupPrefix:   rs.ConsumerGroupPrefix,
		InstanceID:    string(id),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	})
}

func ProvideRetryPolicy(cfg *config.Config) retry.Policy {
	r := cfg.Retry
	return retry.Policy{
		MaxAttempts:     r.MaxAttempts,
		InitialInterval: r.InitialInterval,
		MaxInterval:     r.MaxInterval,
		Multiplier:      r.Multiplier,
		CallTimeout:     r.CallTimeout,
	}
}

// ProvideEmbedder 提供方 -> 重试 -> Redis 缓存；未配置时返回 nil，检索退化为纯关键词
func ProvideEmbedder(ctx context.Context, cfg *config.Config, policy retry.Policy, cache *redis.Cache) (einoembedding.Embedder, error) {
	base, err := infraembedding.NewProviderEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		return nil, err
	}
	if base == nil {
		logger.Warn(ctx, "embedding provider not configured, vector retrieval disabled",
			"provider", cfg.Embedding.Provider)
		return nil, nil
	}

	var emb einoembedding.Embedder = infraembedding.NewRetryingEmbedder(base, policy, cfg.Embedding.BatchSize)
	if cfg.Embedding.CacheTTL > 0 && cache != nil {
		emb = infraembedding.NewCachedEmbedder(emb, cache, cfg.Embedding.Model, cfg.Embedding.CacheTTL)
	}
	return emb, nil
}

func ProvideKeywordIndex(cfg *config.Config) *retrieval.KeywordIndex {
	return retrieval.NewKeywordIndex(cfg.Retrieval.BM25K1, cfg.Retrieval.BM25B)
}

func ProvideChunker(cfg *config.Config) retrieval.Chunker {
	r := cfg.Retrieval
	return retrieval.NewChunker(r.ChunkSize, r.ChunkOverlap, r.Lookback)
}

func ProvideIndexer(cfg *config.Config, emb einoembedding.Embedder) *retrieval.Indexer {
	return retrieval.NewIndexer(emb, cfg.Embedding.Dimension, cfg.Embedding.BatchSize, cfg.Ingest.EmbedConcurrency)
}

func ProvideExtractor(cfg *config.Config) *extraction.Extractor {
	return extraction.NewExtractor(cfg.Ingest.AllowedFormats)
}

// ProvideKnowledgeService 提供知识库管理服务
func ProvideKnowledgeService(
	cfg *config.Config,
	kb *retrieval.KnowledgeBase,
	chunker retrieval.Chunker,
	indexer *retrieval.Indexer,
	extractor *extraction.Extractor,
	docs *postgres.DocumentRepository,
	chunks *postgres.ChunkRepository,
	tx *postgres.TxManager,
	publisher knowledge.Publisher,
) *knowledge.Service {
	return knowledge.NewService(kb, chunker, indexer, extractor, docs, chunks, tx, publisher, knowledge.Options{
		MaxFileBytes:      cfg.Ingest.MaxFileBytes,
		SharedVectorIndex: usesMilvus(cfg),
	})
}

func ProvideAnswerGenerator(cfg *config.Config, factory *llm.EinoFactory, prompts *workflowprompt.Registry, policy retry.Policy) *llm.AnswerGenerator {
	return llm.NewAnswerGenerator(factory, prompts, cfg.LLM.DefaultProvider, policy, cfg.Retrieval.HistoryTurns)
}

// ProvideExternalClassifier 未开启模型兜底时返回 nil
func ProvideExternalClassifier(cfg *config.Config, factory *llm.EinoFactory, prompts *workflowprompt.Registry) intent.ExternalClassifier {
	if !cfg.Intent.LLMFallback {
		return nil
	}
	provider := cfg.LLM.ClassifierProvider
	if provider == "" {
		provider = cfg.LLM.DefaultProvider
	}
	return llm.NewIntentClassifier(factory, prompts, provider)
}

func ProvideIntentClassifier(cfg *config.Config, external intent.ExternalClassifier, policy retry.Policy) *intent.Classifier {
	return intent.NewClassifier(intent.DefaultRules(), external, cfg.Intent.Timeout, policy)
}

func ProvideScorer(cfg *config.Config, emb einoembedding.Embedder) *evidence.Scorer {
	e := cfg.Evidence
	return evidence.NewScorer(evidence.Params{
		Measure:          evidence.Measure(strings.ToLower(strings.TrimSpace(e.Measure))),
		MinOverlap:       e.MinOverlap,
		MinEvidence:      e.MinEvidence,
		MinSentenceRunes: e.MinSentenceRunes,
		EvidenceWeight:   e.EvidenceWeight,
		RetrievalWeight:  e.RetrievalWeight,
		CertaintyWeight:  e.CertaintyWeight,
	}, emb)
}

func ProvideGate(cfg *config.Config) *security.Gate {
	g := cfg.Security.Gate
	return security.NewGate(security.Options{
		Enabled:       g.Enabled,
		BlockPII:      g.BlockPII,
		BlockedTopics: g.BlockedTopics,
		RedactAnswers: g.RedactAnswers,
	})
}

// ProvideRetrievalParams 配置中的检索默认值
func ProvideRetrievalParams(cfg *config.Config) retrieval.Params {
	r := cfg.Retrieval
	return retrieval.Params{
		TopK:           r.TopK,
		Threshold:      r.Threshold,
		Hybrid:         r.Hybrid,
		SemanticWeight: r.SemanticWeight,
		Oversample:     r.Oversample,
	}.Sanitize()
}

func ProvideQAService(
	cfg *config.Config,
	gate *security.Gate,
	classifier *intent.Classifier,
	engine *retrieval.Engine,
	generator *llm.AnswerGenerator,
	scorer *evidence.Scorer,
	params retrieval.Params,
) *qa.Service {
	return qa.NewService(gate, classifier, engine, generator, scorer, qa.Options{
		Params:          params,
		ContextMaxRunes: cfg.Retrieval.ContextMaxRunes,
		OnInsufficient:  cfg.Evidence.OnInsufficient,
	})
}

func ProvideDocumentHandler(cfg *config.Config, svc *knowledge.Service) *handler.DocumentHandler {
	return handler.NewDocumentHandler(svc, cfg.Ingest.MaxFileBytes)
}

func ProvideQueryHandler(svc *qa.Service) *handler.QueryHandler {
	return handler.NewQueryHandler(svc)
}

// ProvideHealthHandler PostgreSQL 与 Redis 为必需依赖，Milvus 仅在启用时参与检查
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, rc *redis.Client, mc *milvus.Client) *handler.HealthHandler {
	deps := []handler.Dependency{
		{Name: "postgres", Checker: pg},
		{Name: "redis", Checker: rc},
	}
	if mc != nil {
		deps = append(deps, handler.Dependency{Name: "milvus", Checker: mc, Optional: true})
	}
	return handler.NewHealthHandler(cfg.App.Version, deps...)
}

// ProvideRateLimiter 未启用限流时返回 nil
func ProvideRateLimiter(cfg *config.Config, rl *redis.RateLimiter) middleware.RateLimiter {
	if !cfg.Security.RateLimit.Enabled || rl == nil {
		return nil
	}
	return rl
}

func ProvideRouterHandlers(
	health *handler.HealthHandler,
	documents *handler.DocumentHandler,
	query *handler.QueryHandler,
	limiter middleware.RateLimiter,
) router.Handlers {
	return router.Handlers{
		Health:       health,
		Documents:    documents,
		Query:        query,
		RateLimiter:  limiter,
		RateLimitKey: redis.BuildRateLimitKey,
	}
}
