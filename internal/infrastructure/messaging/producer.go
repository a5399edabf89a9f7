package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rag-knowledge-hub/pkg/logger"
)

var tracer = otel.Tracer("messaging")

const defaultMaxLen = 10000

// Producer 发布知识库变更事件
type Producer struct {
	client *redis.Client
	stream Stream
	origin string
	maxLen int64
}

func NewProducer(client *redis.Client, origin string, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &Producer{
		client: client,
		stream: StreamIndexSync,
		origin: origin,
		maxLen: maxLen,
	}
}

// Publish 发布消息到同步流
func (p *Producer) Publish(ctx context.Context, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(p.stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(p.stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{"data": string(data)},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}
	span.SetAttributes(attribute.String("stream.message_id", id))
	return id, nil
}

func (p *Producer) DocumentIndexed(ctx context.Context, ev DocumentEvent) error {
	return p.publishEvent(ctx, EventDocumentIndexed, ev)
}

func (p *Producer) DocumentRemoved(ctx context.Context, documentID string) error {
	return p.publishEvent(ctx, EventDocumentRemoved, DocumentEvent{DocumentID: documentID})
}

func (p *Producer) KnowledgeReset(ctx context.Context) error {
	return p.publishEvent(ctx, EventKnowledgeReset, struct{}{})
}

func (p *Producer) publishEvent(ctx context.Context, eventType string, payload any) error {
	msg, err := NewMessage(uuid.NewString(), eventType, p.origin, payload)
	if err != nil {
		return err
	}
	msg.SetMetadata("request_id", contextString(ctx, logger.RequestIDKey))
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.SetMetadata("trace_id", sc.TraceID().String())
	}
	_, err = p.Publish(ctx, msg)
	return err
}

func contextString(ctx context.Context, key logger.ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
