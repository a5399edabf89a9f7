// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Vector        VectorConfig        `yaml:"vector" mapstructure:"vector"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Retrieval     RetrievalConfig     `yaml:"retrieval" mapstructure:"retrieval"`
	Intent        IntentConfig        `yaml:"intent" mapstructure:"intent"`
	Evidence      EvidenceConfig      `yaml:"evidence" mapstructure:"evidence"`
	Ingest        IngestConfig        `yaml:"ingest" mapstructure:"ingest"`
	Retry         RetryConfig         `yaml:"retry" mapstructure:"retry"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
	// InstanceID 副本标识，为空时启动时生成；用于跳过自己发布的索引同步事件
	InstanceID string `yaml:"instance_id" mapstructure:"instance_id"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	// MaxUploadBytes 单次上传请求体上限
	MaxUploadBytes int64 `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// VectorConfig 向量索引配置
type VectorConfig struct {
	// Backend 向量索引实现：memory（进程内）| milvus
	Backend string       `yaml:"backend" mapstructure:"backend"`
	Milvus  MilvusConfig `yaml:"milvus" mapstructure:"milvus"`
}

// MilvusConfig Milvus 配置
type MilvusConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	CollectionPrefix   string `yaml:"collection_prefix" mapstructure:"collection_prefix"`
	IndexType          string `yaml:"index_type" mapstructure:"index_type"`
	MetricType         string `yaml:"metric_type" mapstructure:"metric_type"`
	HNSWM              int    `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
	SearchEf           int    `yaml:"search_ef" mapstructure:"search_ef"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	// ClassifierProvider 意图分类使用的提供商，为空时使用 DefaultProvider
	ClassifierProvider string `yaml:"classifier_provider" mapstructure:"classifier_provider"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EmbeddingConfig Embedding 配置
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider" mapstructure:"provider"`
	Model     string        `yaml:"model" mapstructure:"model"`
	Dimension int           `yaml:"dimension" mapstructure:"dimension"`
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"`
	Endpoint  string        `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey    string        `yaml:"api_key" mapstructure:"api_key"`
	CacheTTL  time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	Enabled             bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxLen              int           `yaml:"max_len" mapstructure:"max_len"`
	ConsumerGroupPrefix string        `yaml:"consumer_group_prefix" mapstructure:"consumer_group_prefix"`
	BlockTimeout        time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval       time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit          int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff        BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// RetrievalConfig 切分与融合检索默认参数（请求可逐项覆盖）
type RetrievalConfig struct {
	ChunkSize      int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap   int     `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
	Lookback       int     `yaml:"lookback" mapstructure:"lookback"`
	TopK           int     `yaml:"top_k" mapstructure:"top_k"`
	Threshold      float64 `yaml:"threshold" mapstructure:"threshold"`
	Hybrid         bool    `yaml:"hybrid" mapstructure:"hybrid"`
	SemanticWeight float64 `yaml:"semantic_weight" mapstructure:"semantic_weight"`
	Oversample     int     `yaml:"oversample" mapstructure:"oversample"`
	BM25K1         float64 `yaml:"bm25_k1" mapstructure:"bm25_k1"`
	BM25B          float64 `yaml:"bm25_b" mapstructure:"bm25_b"`
	// ContextMaxRunes 拼入 prompt 的上下文总长度上限
	ContextMaxRunes int `yaml:"context_max_runes" mapstructure:"context_max_runes"`
	// HistoryTurns 带入 prompt 的历史轮数
	HistoryTurns int `yaml:"history_turns" mapstructure:"history_turns"`
}

// IntentConfig 意图分类配置
type IntentConfig struct {
	// LLMFallback 规则全部弃权时是否调用外部分类
	LLMFallback bool          `yaml:"llm_fallback" mapstructure:"llm_fallback"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EvidenceConfig 证据与置信度评分配置
type EvidenceConfig struct {
	// Measure 支撑度量：lexical | semantic | hybrid
	Measure          string  `yaml:"measure" mapstructure:"measure"`
	MinOverlap       float64 `yaml:"min_overlap" mapstructure:"min_overlap"`
	MinEvidence      float64 `yaml:"min_evidence" mapstructure:"min_evidence"`
	MinSentenceRunes int     `yaml:"min_sentence_runes" mapstructure:"min_sentence_runes"`
	EvidenceWeight   float64 `yaml:"evidence_weight" mapstructure:"evidence_weight"`
	RetrievalWeight  float64 `yaml:"retrieval_weight" mapstructure:"retrieval_weight"`
	CertaintyWeight  float64 `yaml:"certainty_weight" mapstructure:"certainty_weight"`
	// OnInsufficient annotate（追加免责声明）| suppress（替换为无依据回答）| none
	OnInsufficient string `yaml:"on_insufficient" mapstructure:"on_insufficient"`
}

// IngestConfig 入库配置
type IngestConfig struct {
	MaxFileBytes     int64    `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`
	AllowedFormats   []string `yaml:"allowed_formats" mapstructure:"allowed_formats"`
	EmbedConcurrency int      `yaml:"embed_concurrency" mapstructure:"embed_concurrency"`
	// WarmStart 启动时从 PostgreSQL 重建内存索引
	WarmStart bool `yaml:"warm_start" mapstructure:"warm_start"`
}

// RetryConfig 外部调用重试策略
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval" mapstructure:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval" mapstructure:"max_interval"`
	Multiplier      float64       `yaml:"multiplier" mapstructure:"multiplier"`
	CallTimeout     time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	JWT       JWTConfig       `yaml:"jwt" mapstructure:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
	Gate      GateConfig      `yaml:"gate" mapstructure:"gate"`
}

// AuthConfig API 鉴权开关
type AuthConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	Secret     string        `yaml:"secret" mapstructure:"secret"`
	Issuer     string        `yaml:"issuer" mapstructure:"issuer"`
	Expiration time.Duration `yaml:"expiration" mapstructure:"expiration"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int  `yaml:"burst" mapstructure:"burst"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// GateConfig 查询安全闸门配置
type GateConfig struct {
	Enabled       bool     `yaml:"enabled" mapstructure:"enabled"`
	BlockPII      bool     `yaml:"block_pii" mapstructure:"block_pii"`
	BlockedTopics []string `yaml:"blocked_topics" mapstructure:"blocked_topics"`
	RedactAnswers bool     `yaml:"redact_answers" mapstructure:"redact_answers"`
}
