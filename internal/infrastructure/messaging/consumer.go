package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rag-knowledge-hub/pkg/logger"
	"rag-knowledge-hub/pkg/metrics"
)

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, msg *Message) error

// Consumer 同步流消费者
//
// 每个实例使用独立的消费者组，保证所有实例都能收到全部事件；
// 自己发布的事件直接确认，不再处理。
type Consumer struct {
	client        *redis.Client
	stream        Stream
	group         string
	consumerName  string
	origin        string
	blockTimeout  time.Duration
	claimInterval time.Duration
	retryLimit    int
	backoff       BackoffConfig

	handlers map[string]MessageHandler
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	GroupPrefix   string
	InstanceID    string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	RetryLimit    int
	Backoff       BackoffConfig
}

func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}
	prefix := strings.TrimSpace(cfg.GroupPrefix)
	if prefix == "" {
		prefix = "cg-kb-sync"
	}

	return &Consumer{
		client:        client,
		stream:        StreamIndexSync,
		group:         prefix + "-" + cfg.InstanceID,
		consumerName:  cfg.InstanceID,
		origin:        cfg.InstanceID,
		blockTimeout:  cfg.BlockTimeout,
		claimInterval: cfg.ClaimInterval,
		retryLimit:    cfg.RetryLimit,
		backoff:       cfg.Backoff,
		handlers:      make(map[string]MessageHandler),
		stopCh:        make(chan struct{}),
	}
}

// RegisterHandler 注册消息处理器
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// Start 创建消费者组并启动消费循环。
// 新组从 "$" 开始读取：启动前的历史由预热从 PostgreSQL 恢复。
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer already running")
	}
	c.running = true
	c.mu.Unlock()

	err := c.client.XGroupCreateMkStream(ctx, string(c.stream), c.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	go c.run(ctx)
	return nil
}

func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		close(c.stopCh)
		c.running = false
	}
}

func (c *Consumer) run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info("index sync consumer started", "stream", c.stream, "group", c.group)

	lastClaim := time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Info("index sync consumer stopped due to context cancellation")
			return
		case <-c.stopCh:
			log.Info("index sync consumer stopped")
			return
		default:
		}

		if time.Since(lastClaim) >= c.claimInterval {
			c.retryPending(ctx)
			lastClaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumerName,
			Streams:  []string{string(c.stream), ">"},
			Count:    10,
			Block:    c.blockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			log.Error("failed to read from stream", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, s := range streams {
			for _, xmsg := range s.Messages {
				c.processMessage(ctx, xmsg)
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, xmsg redis.XMessage) {
	ctx, span := tracer.Start(ctx, "consumer.processMessage",
		trace.WithAttributes(
			attribute.String("stream", string(c.stream)),
			attribute.String("stream.message_id", xmsg.ID),
		))
	defer span.End()

	msg, err := decode(xmsg)
	if err != nil {
		logger.FromContext(ctx).Error("invalid sync message", "error", err, "message_id", xmsg.ID)
		c.ack(ctx, xmsg.ID, "invalid")
		return
	}

	if msg.Origin == c.origin {
		c.ack(ctx, xmsg.ID, "skipped")
		return
	}

	if reqID := msg.GetMetadata("request_id"); reqID != "" {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, reqID)
	}
	if traceID := msg.GetMetadata("trace_id"); traceID != "" {
		ctx = logger.WithContext(ctx, logger.TraceIDKey, traceID)
	}
	log := logger.FromContext(ctx)

	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.type", msg.Type),
		attribute.String("message.origin", msg.Origin),
	)

	c.mu.RLock()
	handler, ok := c.handlers[msg.Type]
	c.mu.RUnlock()
	if !ok {
		log.Warn("no handler for message type", "type", msg.Type)
		c.ack(ctx, xmsg.ID, "unhandled")
		return
	}

	if err := handler(ctx, msg); err != nil {
		span.RecordError(err)
		log.Error("sync handler failed", "error", err, "message_id", msg.ID)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "failed").Inc()
		// 保留在 pending 列表中，由 retryPending 按退避重投
		return
	}
	c.ack(ctx, xmsg.ID, "ok")
}

func decode(xmsg redis.XMessage) (*Message, error) {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("missing data field")
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Consumer) ack(ctx context.Context, id, status string) {
	if err := c.client.XAck(ctx, string(c.stream), c.group, id).Err(); err != nil {
		logger.FromContext(ctx).Error("failed to ack message", "error", err, "message_id", id)
		return
	}
	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), status).Inc()
}

// retryPending 重投本组内失败的消息；超过重试上限的移入死信流
func (c *Consumer) retryPending(ctx context.Context) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.stream),
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  20,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.FromContext(ctx).Error("failed to query pending messages", "error", err)
		}
		return
	}

	for _, p := range pending {
		exhausted := int(p.RetryCount) >= c.retryLimit
		minIdle := c.backoff.Delay(int(p.RetryCount))
		if !exhausted && p.Idle < minIdle {
			continue
		}
		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   string(c.stream),
			Group:    c.group,
			Consumer: c.consumerName,
			MinIdle:  0,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			logger.FromContext(ctx).Error("failed to claim pending message", "error", err, "message_id", p.ID)
			continue
		}
		for _, xmsg := range claimed {
			if !exhausted {
				c.processMessage(ctx, xmsg)
				continue
			}
			logger.FromContext(ctx).Warn("sync message moved to DLQ after max retries",
				"message_id", xmsg.ID, "retry_count", p.RetryCount)
			c.moveToDLQ(ctx, xmsg)
			c.ack(ctx, xmsg.ID, "dead_letter")
		}
	}
}

func (c *Consumer) moveToDLQ(ctx context.Context, xmsg redis.XMessage) {
	raw, _ := xmsg.Values["data"].(string)
	entry := map[string]any{
		"original_stream": string(c.stream),
		"group":           c.group,
		"data":            raw,
		"failed_at":       time.Now().Unix(),
	}
	data, _ := json.Marshal(entry)
	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream.DLQStream(),
		Values: map[string]any{"data": string(data)},
	}).Err(); err != nil {
		logger.FromContext(ctx).Error("failed to write DLQ entry", "error", err, "message_id", xmsg.ID)
	}
}
