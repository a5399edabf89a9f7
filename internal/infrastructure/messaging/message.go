// Package messaging 基于 Redis Stream 在多个服务实例之间同步知识库变更
package messaging

import (
	"encoding/json"
	"time"
)

// Message 流消息信封
//
// Origin 为发布方实例 ID，消费方据此跳过自己发布的事件。
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Origin    string            `json:"origin"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage 创建消息并序列化载荷
func NewMessage(id, msgType, origin string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		Origin:    origin,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (m *Message) SetMetadata(key, value string) {
	if value == "" {
		return
	}
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

func (m *Message) GetMetadata(key string) string {
	return m.Metadata[key]
}

// UnmarshalPayload 解析消息载荷
func (m *Message) UnmarshalPayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// Stream 流定义
type Stream string

const (
	StreamIndexSync Stream = "stream:kb:sync"
)

// DLQStream 对应的死信流
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// 知识库同步事件类型
const (
	EventDocumentIndexed = "document_indexed"
	EventDocumentRemoved = "document_removed"
	EventKnowledgeReset  = "knowledge_reset"
)

// DocumentEvent 文档级事件载荷
type DocumentEvent struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename,omitempty"`
	ChunkCount int    `json:"chunk_count,omitempty"`
}

// BackoffConfig 待处理消息重投的退避配置
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
	}
}

// Delay 第 attempt 次重投前需要的最小空闲时长
func (c BackoffConfig) Delay(attempt int) time.Duration {
	d := c.Initial
	for i := 0; i < attempt && d < c.Max; i++ {
		d = time.Duration(float64(d) * c.Multiplier)
	}
	return min(d, c.Max)
}
