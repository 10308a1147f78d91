package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/BaSui01/agentruntime/llm"

// Instrumentation 为模型调用记录 OpenTelemetry span 与指标.
type Instrumentation struct {
	tracer trace.Tracer
	cost   *CostCalculator

	requestTotal    metric.Int64Counter
	tokenTotal      metric.Int64Counter
	errorTotal      metric.Int64Counter
	requestDuration metric.Float64Histogram
	costPerRequest  metric.Float64Histogram
	activeRequests  metric.Int64UpDownCounter
}

// NewInstrumentation 创建指标收集器。mp/tp 为 nil 时使用全局 Provider。
func NewInstrumentation(mp metric.MeterProvider, tp trace.TracerProvider, cost *CostCalculator) (*Instrumentation, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if cost == nil {
		cost = NewCostCalculator()
	}
	meter := mp.Meter(instrumentationName)
	m := &Instrumentation{tracer: tp.Tracer(instrumentationName), cost: cost}

	var err error
	if m.requestTotal, err = meter.Int64Counter("llm.request.total",
		metric.WithDescription("Total number of LLM requests"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.tokenTotal, err = meter.Int64Counter("llm.token.total",
		metric.WithDescription("Total tokens consumed"),
		metric.WithUnit("{token}")); err != nil {
		return nil, err
	}
	if m.errorTotal, err = meter.Int64Counter("llm.error.total",
		metric.WithDescription("Total number of errors"),
		metric.WithUnit("{error}")); err != nil {
		return nil, err
	}
	if m.requestDuration, err = meter.Float64Histogram("llm.request.duration",
		metric.WithDescription("Request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30)); err != nil {
		return nil, err
	}
	if m.costPerRequest, err = meter.Float64Histogram("llm.cost.per_request",
		metric.WithDescription("Cost per request in USD"),
		metric.WithUnit("USD"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5)); err != nil {
		return nil, err
	}
	if m.activeRequests, err = meter.Int64UpDownCounter("llm.request.active",
		metric.WithDescription("Number of active requests"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	return m, nil
}

// RequestAttrs 请求属性
type RequestAttrs struct {
	Provider string
	Model    string
	AgentID  string
	// Operation 是调用方的辅助函数名，例如 generateText、generateShouldRespond
	Operation string
}

// ResponseAttrs 响应属性
type ResponseAttrs struct {
	ErrorCode        string
	TokensPrompt     int
	TokensCompletion int
	Duration         time.Duration
	Err              error
}

func (r RequestAttrs) common() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("provider", r.Provider),
		attribute.String("model", r.Model),
		attribute.String("operation", r.Operation),
	}
}

// StartRequest 开始请求追踪
func (m *Instrumentation) StartRequest(ctx context.Context, attrs RequestAttrs) (context.Context, trace.Span) {
	ctx, span := m.tracer.Start(ctx, "llm."+attrs.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", attrs.Provider),
			attribute.String("llm.model", attrs.Model),
			attribute.String("agent.id", attrs.AgentID),
		))
	m.activeRequests.Add(ctx, 1, metric.WithAttributes(attrs.common()...))
	return ctx, span
}

// EndRequest 结束请求追踪并返回估算成本
func (m *Instrumentation) EndRequest(ctx context.Context, span trace.Span, req RequestAttrs, resp ResponseAttrs) float64 {
	defer span.End()

	status := "ok"
	if resp.Err != nil {
		status = "error"
	}
	common := append(req.common(), attribute.String("status", status))

	m.activeRequests.Add(ctx, -1, metric.WithAttributes(req.common()...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(common...))
	m.requestDuration.Record(ctx, resp.Duration.Seconds(), metric.WithAttributes(common...))

	if resp.TokensPrompt > 0 {
		m.tokenTotal.Add(ctx, int64(resp.TokensPrompt), metric.WithAttributes(
			attribute.String("provider", req.Provider),
			attribute.String("model", req.Model),
			attribute.String("type", "prompt")))
	}
	if resp.TokensCompletion > 0 {
		m.tokenTotal.Add(ctx, int64(resp.TokensCompletion), metric.WithAttributes(
			attribute.String("provider", req.Provider),
			attribute.String("model", req.Model),
			attribute.String("type", "completion")))
	}

	cost := m.cost.Calculate(req.Provider, req.Model, resp.TokensPrompt, resp.TokensCompletion)
	if cost > 0 {
		m.costPerRequest.Record(ctx, cost, metric.WithAttributes(common...))
	}

	if resp.Err != nil {
		m.errorTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", req.Provider),
			attribute.String("model", req.Model),
			attribute.String("error_code", resp.ErrorCode)))
		span.RecordError(resp.Err)
		span.SetStatus(codes.Error, resp.Err.Error())
		if resp.ErrorCode != "" {
			span.SetAttributes(attribute.String("error.code", resp.ErrorCode))
		}
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.prompt", resp.TokensPrompt),
		attribute.Int("llm.tokens.completion", resp.TokensCompletion),
		attribute.Float64("llm.cost", cost),
		attribute.Float64("llm.duration_ms", float64(resp.Duration.Milliseconds())))
	return cost
}

// Tracer 获取 Tracer
func (m *Instrumentation) Tracer() trace.Tracer {
	return m.tracer
}
