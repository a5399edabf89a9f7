// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// envPattern 匹配 ${VAR} 或 ${VAR:default}
// g1: 变量名, g2: 默认值部分（含冒号）, g3: 默认值内容
var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 加载配置文件
// 按优先级加载：默认配置 -> 环境配置 -> 环境变量
// 配置目录取 CONFIG_DIR，缺省为 configs
func Load() (*Config, error) {
	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		dir = "configs"
	}
	return LoadFromDir(dir)
}

// LoadFromDir 从指定目录加载 config.yaml 与 config.{APP_ENV}.yaml
func LoadFromDir(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 加载默认配置
	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), false); err != nil {
		return nil, err
	}

	// 2. 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env))
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	// 3. 绑定环境变量 (直接覆盖)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值 (兜底)
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// 执行环境变量替换
	expanded := expandEnv(string(content))

	// 加载到 viper
	reader := strings.NewReader(expanded)
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		// 手动标记已加载文件，防止后续 ReadInConfig 报错
		v.SetConfigFile(path)
	} else {
		if err := v.MergeConfig(reader); err != nil {
			return fmt.Errorf("failed to merge processed config %s: %w", path, err)
		}
	}

	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envPattern.FindStringSubmatch(match)
		key := submatch[1]
		hasDefault := submatch[2] != ""
		defVal := submatch[3]

		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		if hasDefault {
			return defVal
		}
		// 保留原样以便识别未定义的变量
		return match
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 校验相互约束的配置项
func (c *Config) Validate() error {
	r := c.Retrieval
	if r.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be positive, got %d", r.ChunkSize)
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must be in [0, chunk_size), got %d", r.ChunkOverlap)
	}
	if r.SemanticWeight < 0 || r.SemanticWeight > 1 {
		return fmt.Errorf("retrieval.semantic_weight must be in [0,1], got %v", r.SemanticWeight)
	}
	switch strings.ToLower(c.Vector.Backend) {
	case "memory", "milvus":
	default:
		return fmt.Errorf("vector.backend must be memory or milvus, got %q", c.Vector.Backend)
	}
	switch strings.ToLower(c.Evidence.Measure) {
	case "lexical", "semantic", "hybrid":
	default:
		return fmt.Errorf("evidence.measure must be lexical, semantic or hybrid, got %q", c.Evidence.Measure)
	}
	if c.Security.Auth.Enabled && c.Security.JWT.Secret == "" {
		return fmt.Errorf("security.jwt.secret is required when auth is enabled")
	}
	return nil
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 应用默认值
	v.SetDefault("app.name", "rag-knowledge-hub")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	// HTTP 服务器默认值
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "120s")
	v.SetDefault("server.http.idle_timeout", "120s")
	v.SetDefault("server.http.shutdown_timeout", "30s")
	v.SetDefault("server.http.max_upload_bytes", 64<<20)

	// 数据库默认值
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.database", "rag_hub")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 20)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.conn_max_idle_time", "5m")

	// Redis 默认值
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 50)
	v.SetDefault("cache.redis.min_idle_conns", 5)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")

	// 向量索引默认值
	v.SetDefault("vector.backend", "memory")
	v.SetDefault("vector.milvus.host", "localhost")
	v.SetDefault("vector.milvus.port", 19530)
	v.SetDefault("vector.milvus.collection_prefix", "rag_hub")
	v.SetDefault("vector.milvus.index_type", "HNSW")
	v.SetDefault("vector.milvus.metric_type", "COSINE")
	v.SetDefault("vector.milvus.hnsw_m", 16)
	v.SetDefault("vector.milvus.hnsw_ef_construction", 200)
	v.SetDefault("vector.milvus.search_ef", 128)

	// LLM / Embedding 默认值
	v.SetDefault("llm.default_provider", "openai")
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.cache_ttl", "24h")

	// 索引同步默认值
	v.SetDefault("messaging.redis_stream.enabled", false)
	v.SetDefault("messaging.redis_stream.max_len", 10000)
	v.SetDefault("messaging.redis_stream.consumer_group_prefix", "rag-hub")
	v.SetDefault("messaging.redis_stream.block_timeout", "5s")
	v.SetDefault("messaging.redis_stream.claim_interval", "30s")
	v.SetDefault("messaging.redis_stream.retry_limit", 3)
	v.SetDefault("messaging.redis_stream.retry_backoff.initial", "1s")
	v.SetDefault("messaging.redis_stream.retry_backoff.max", "30s")
	v.SetDefault("messaging.redis_stream.retry_backoff.multiplier", 2.0)

	// 检索默认值
	v.SetDefault("retrieval.chunk_size", 500)
	v.SetDefault("retrieval.chunk_overlap", 100)
	v.SetDefault("retrieval.lookback", 0)
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.threshold", 0.6)
	v.SetDefault("retrieval.hybrid", true)
	v.SetDefault("retrieval.semantic_weight", 0.7)
	v.SetDefault("retrieval.oversample", 2)
	v.SetDefault("retrieval.bm25_k1", 1.2)
	v.SetDefault("retrieval.bm25_b", 0.75)
	v.SetDefault("retrieval.context_max_runes", 6000)
	v.SetDefault("retrieval.history_turns", 4)

	// 意图与证据默认值
	v.SetDefault("intent.llm_fallback", true)
	v.SetDefault("intent.timeout", "5s")
	v.SetDefault("evidence.measure", "lexical")
	v.SetDefault("evidence.min_overlap", 0.5)
	v.SetDefault("evidence.min_evidence", 0.8)
	v.SetDefault("evidence.min_sentence_runes", 10)
	v.SetDefault("evidence.evidence_weight", 0.5)
	v.SetDefault("evidence.retrieval_weight", 0.5)
	v.SetDefault("evidence.certainty_weight", 0.0)
	v.SetDefault("evidence.on_insufficient", "annotate")

	// 入库默认值
	v.SetDefault("ingest.max_file_bytes", 32<<20)
	v.SetDefault("ingest.allowed_formats", []string{"pdf", "txt", "md", "html", "docx"})
	v.SetDefault("ingest.embed_concurrency", 4)
	v.SetDefault("ingest.warm_start", true)

	// 重试默认值
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_interval", "200ms")
	v.SetDefault("retry.max_interval", "2s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.call_timeout", "15s")

	// 可观测性默认值
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	// 安全默认值
	v.SetDefault("security.auth.enabled", false)
	v.SetDefault("security.jwt.issuer", "rag-knowledge-hub")
	v.SetDefault("security.jwt.expiration", "24h")
	v.SetDefault("security.rate_limit.enabled", false)
	v.SetDefault("security.rate_limit.requests_per_second", 20)
	v.SetDefault("security.rate_limit.burst", 40)
	v.SetDefault("security.gate.enabled", true)
	v.SetDefault("security.gate.block_pii", true)
	v.SetDefault("security.gate.blocked_topics", []string{"legal advice", "medical advice", "diagnosis", "treatment", "lawsuit", "court"})
	v.SetDefault("security.gate.redact_answers", false)
}
