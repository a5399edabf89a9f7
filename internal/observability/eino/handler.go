package eino

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rag-knowledge-hub/internal/domain/service"
	"rag-knowledge-hub/pkg/metrics"
)

// startTimeKey 在 Context 中存储调用开始时间，OnEnd/OnError 据此计算耗时
type startTimeKey struct{}

// newChatModelCallbackHandler 生成调用（回答、意图分类）的回调：
// 记录调用次数、耗时、Token 消耗并维护 llm.generate span。
func newChatModelCallbackHandler() *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

			attrs := []attribute.KeyValue{
				attribute.String("eino.workflow", service.WorkflowFromContext(ctx)),
				attribute.String("llm.provider", service.ProviderFromContext(ctx)),
				attribute.String("llm.model", modelNameFromInput(input)),
			}
			attrs = append(attrs, runInfoAttrs(info)...)

			ctx, _ = otel.Tracer("eino").Start(ctx, "llm.generate", trace.WithAttributes(attrs...))
			return ctx
		},

		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			workflow := service.WorkflowFromContext(ctx)
			provider := service.ProviderFromContext(ctx)
			modelName := modelNameFromOutput(output)

			metrics.LLMCallTotal.WithLabelValues(workflow, provider, modelName, "success").Inc()
			if d := elapsedSeconds(ctx); d > 0 {
				metrics.LLMCallDuration.WithLabelValues(workflow, provider, modelName).Observe(d)
			}

			span := trace.SpanFromContext(ctx)
			if output != nil && output.TokenUsage != nil {
				metrics.LLMTokensUsed.WithLabelValues(workflow, provider, modelName, "prompt").Add(float64(output.TokenUsage.PromptTokens))
				metrics.LLMTokensUsed.WithLabelValues(workflow, provider, modelName, "completion").Add(float64(output.TokenUsage.CompletionTokens))
				span.SetAttributes(
					attribute.Int("llm.prompt_tokens", output.TokenUsage.PromptTokens),
					attribute.Int("llm.completion_tokens", output.TokenUsage.CompletionTokens),
				)
			}
			span.End()
			return ctx
		},

		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			workflow := service.WorkflowFromContext(ctx)
			provider := service.ProviderFromContext(ctx)

			metrics.LLMCallTotal.WithLabelValues(workflow, provider, "", "error").Inc()
			if d := elapsedSeconds(ctx); d > 0 {
				metrics.LLMCallDuration.WithLabelValues(workflow, provider, "").Observe(d)
			}
			endWithError(ctx, err)
			return ctx
		},
	}
}

// newEmbeddingCallbackHandler 嵌入调用（入库、查询、证据校验）的回调
func newEmbeddingCallbackHandler() *cbtemplate.EmbeddingCallbackHandler {
	return &cbtemplate.EmbeddingCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *embedding.CallbackInput) context.Context {
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

			attrs := []attribute.KeyValue{
				attribute.String("eino.workflow", service.WorkflowFromContext(ctx)),
			}
			if input != nil {
				attrs = append(attrs, attribute.Int("embedding.texts", len(input.Texts)))
				if input.Config != nil {
					attrs = append(attrs, attribute.String("embedding.model", input.Config.Model))
				}
			}
			attrs = append(attrs, runInfoAttrs(info)...)

			ctx, _ = otel.Tracer("eino").Start(ctx, "embedding.embed", trace.WithAttributes(attrs...))
			return ctx
		},

		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *embedding.CallbackOutput) context.Context {
			workflow := service.WorkflowFromContext(ctx)
			modelName := ""
			if output != nil && output.Config != nil {
				modelName = output.Config.Model
			}

			metrics.EmbeddingCallTotal.WithLabelValues(workflow, modelName, "success").Inc()
			if d := elapsedSeconds(ctx); d > 0 {
				metrics.EmbeddingCallDuration.WithLabelValues(workflow, modelName).Observe(d)
			}
			trace.SpanFromContext(ctx).End()
			return ctx
		},

		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			workflow := service.WorkflowFromContext(ctx)
			metrics.EmbeddingCallTotal.WithLabelValues(workflow, "", "error").Inc()
			if d := elapsedSeconds(ctx); d > 0 {
				metrics.EmbeddingCallDuration.WithLabelValues(workflow, "").Observe(d)
			}
			endWithError(ctx, err)
			return ctx
		},
	}
}

func runInfoAttrs(info *einocb.RunInfo) []attribute.KeyValue {
	if info == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String("eino.node_name", info.Name),
		attribute.String("eino.type", info.Type),
	}
}

func endWithError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// elapsedSeconds 计算 OnStart 写入的开始时间到现在的秒数，取不到时返回 0
func elapsedSeconds(ctx context.Context) float64 {
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start).Seconds()
}

// modelNameFromInput 从输入配置中提取模型名称
func modelNameFromInput(in *model.CallbackInput) string {
	if in == nil || in.Config == nil {
		return ""
	}
	return in.Config.Model
}

// modelNameFromOutput 从输出配置中提取模型名称
func modelNameFromOutput(out *model.CallbackOutput) string {
	if out == nil || out.Config == nil {
		return ""
	}
	return out.Config.Model
}
