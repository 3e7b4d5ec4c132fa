// Package metrics 按操作和结果记录时延与计数，供可观测性后端采集。
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder 是编排层消费的指标汇点抽象。
type Recorder interface {
	// Observe 记录一次操作的耗时与结果（"success" 或错误分类）。
	Observe(op, outcome string, d time.Duration)
}

// otelRecorder 基于 OpenTelemetry metric API 的实现。
// 未安装 SDK 时 otel 全局 MeterProvider 是 no-op，开销可忽略。
type otelRecorder struct {
	duration metric.Float64Histogram
	ops      metric.Int64Counter
}

// NewOtelRecorder 创建 OpenTelemetry 指标记录器。
func NewOtelRecorder() (Recorder, error) {
	meter := otel.Meter("trainvault-go/storage")

	duration, err := meter.Float64Histogram("storage.operation.duration",
		metric.WithDescription("存储操作耗时"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	ops, err := meter.Int64Counter("storage.operation.count",
		metric.WithDescription("按操作与结果统计的存储操作次数"))
	if err != nil {
		return nil, err
	}
	return &otelRecorder{duration: duration, ops: ops}, nil
}

func (r *otelRecorder) Observe(op, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	ctx := context.Background()
	r.duration.Record(ctx, float64(d.Milliseconds()), attrs)
	r.ops.Add(ctx, 1, attrs)
}

// Nop 是丢弃所有指标的空实现，用于测试。
type Nop struct{}

func (Nop) Observe(string, string, time.Duration) {}
