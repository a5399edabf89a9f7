// Package llm 管理对话模型客户端，并实现回答生成与意图分类两个外部调用
package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"rag-knowledge-hub/internal/config"
)

// ChatModelFactory 应用层对 ChatModel 的最小依赖，测试中可替换
type ChatModelFactory interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
}

// EinoFactory 管理多个 Eino ChatModel 客户端实例
type EinoFactory struct {
	config *config.LLMConfig
	models map[string]model.BaseChatModel
	mu     sync.RWMutex
}

var _ ChatModelFactory = (*EinoFactory)(nil)

// NewEinoFactory 创建 Eino LLM 工厂
func NewEinoFactory(cfg *config.Config) *EinoFactory {
	return &EinoFactory{
		config: &cfg.LLM,
		models: make(map[string]model.BaseChatModel),
	}
}

// Get 获取指定名称的 ChatModel，如果未指定则返回默认客户端
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	name = f.resolve(name)

	f.mu.RLock()
	m, ok := f.models[name]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	// 惰性加载
	f.mu.Lock()
	defer f.mu.Unlock()

	if m, ok = f.models[name]; ok {
		return m, nil
	}

	providerCfg, ok := f.config.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not found in LLM config", name)
	}
	if strings.TrimSpace(providerCfg.APIKey) == "" {
		return nil, fmt.Errorf("provider %s has no api key", name)
	}

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      providerCfg.APIKey,
		BaseURL:     providerCfg.BaseURL,
		Model:       providerCfg.Model,
		MaxTokens:   ptrInt(providerCfg.MaxTokens),
		Temperature: ptrFloat32(float32(providerCfg.Temperature)),
		Timeout:     providerCfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", name, err)
	}

	f.models[name] = chatModel
	return chatModel, nil
}

// Default 返回默认 ChatModel
func (f *EinoFactory) Default(ctx context.Context) (model.BaseChatModel, error) {
	return f.Get(ctx, "")
}

// Configured 指定提供商是否带有可用凭据
func (f *EinoFactory) Configured(name string) bool {
	p, ok := f.config.Providers[f.resolve(name)]
	return ok && strings.TrimSpace(p.APIKey) != ""
}

// Providers 已配置的提供商名称（排序后）
func (f *EinoFactory) Providers() []string {
	out := make([]string, 0, len(f.config.Providers))
	for name := range f.config.Providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (f *EinoFactory) resolve(name string) string {
	if strings.TrimSpace(name) == "" {
		return f.config.DefaultProvider
	}
	return strings.TrimSpace(name)
}

func ptrFloat32(f float32) *float32 {
	return &f
}

func ptrInt(i int) *int {
	if i <= 0 {
		return nil
	}
	return &i
}
