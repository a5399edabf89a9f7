package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"rag-knowledge-hub/internal/config"
)

// 嵌入提供商
const (
	ProviderOpenAI = "openai"
	ProviderHTTP   = "http"
	ProviderNone   = "none"
)

// NewProviderEmbedder 按配置创建底层 Embedder。
// provider=none 或缺少凭据时返回 (nil, nil)：语义检索关闭，只走关键词检索。
func NewProviderEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderNone:
		return nil, nil
	case ProviderHTTP:
		return NewHTTPEmbedder(cfg)
	case ProviderOpenAI:
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, nil
		}
		return NewEinoEmbedder(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// NewEinoEmbedder 创建基于 Eino OpenAI 适配器的 Embedder
func NewEinoEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}

	embedder, err := openai.NewEmbedder(ctx, &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.Endpoint,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino embedder: %w", err)
	}
	return embedder, nil
}
