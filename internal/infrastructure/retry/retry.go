// Package retry 为外部调用提供有界的指数退避重试策略。
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"rag-knowledge-hub/pkg/logger"
	"rag-knowledge-hub/pkg/metrics"
)

// Policy 重试策略：最大尝试次数、退避区间与单次调用超时
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// CallTimeout 单次尝试的超时，<=0 表示不单独限制
	CallTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
		CallTimeout:     15 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = max(d.MaxInterval, p.InitialInterval)
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	return p
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.Reset()
	return b
}

// Permanent 包装后的错误不再重试
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do 执行 op，失败时按策略重试。operation 用于日志与指标标签。
// 调用方 ctx 被取消或超时时立即停止；最后一次的错误原样返回。
func Do[T any](ctx context.Context, p Policy, operation string, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()
	attempt := 0

	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		callCtx, cancel := withCallTimeout(ctx, p.CallTimeout)
		defer cancel()

		v, err := op(callCtx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.ExternalRetriesTotal.WithLabelValues(operation).Inc()
			logger.Debug(ctx, "retrying external call",
				"operation", operation, "attempt", attempt, "next_in_ms", next.Milliseconds(), "error", err.Error())
		}),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return res, perm.Unwrap()
	}
	return res, err
}

func withCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
