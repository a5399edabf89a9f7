// Package embedding 提供文本嵌入客户端及其重试、缓存装饰器
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"rag-knowledge-hub/internal/config"
)

// HTTPEmbedder 自部署嵌入服务（POST {texts, model} → {embeddings}）的客户端，
// 用于 provider=http，例如在内网运行的 bge-m3 推理服务。
type HTTPEmbedder struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

var _ embedding.Embedder = (*HTTPEmbedder)(nil)

func NewHTTPEmbedder(cfg *config.EmbeddingConfig) (*HTTPEmbedder, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding endpoint: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/embed"
	}
	model := cfg.Model
	if model == "" {
		model = "BAAI/bge-m3"
	}
	return &HTTPEmbedder{
		endpoint:   u.String(),
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *HTTPEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	body, err := json.Marshal(&embedRequest{Texts: texts, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(out.Embeddings), len(texts))
	}
	return out.Embeddings, nil
}

// StatusError 嵌入服务返回的非 2xx 状态
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embedding request failed: status=%d", e.Code)
}

// Retryable 限流与服务端错误可以重试，其余 4xx 不重试
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}
