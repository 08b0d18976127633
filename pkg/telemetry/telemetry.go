// Package telemetry はOpenTelemetryのトレースプロバイダを初期化する。
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config はトレースの設定。
type Config struct {
	// Enabled がfalseの場合は何も初期化しない。
	Enabled bool
	// ServiceName はservice.name属性の値。
	ServiceName string
	// Endpoint はOTLP/HTTPエクスポーターの送信先（例: "http://localhost:4318"）。
	Endpoint string
}

// ShutdownFunc はプロバイダを停止する関数。
type ShutdownFunc func(context.Context) error

// Init はトレースプロバイダとW3C Trace Contextのプロパゲータを設定する。
// 無効の場合は何もしないShutdownFuncを返す。
func Init(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.Endpoint+"/v1/traces"),
	)
	if err != nil {
		return nil, fmt.Errorf("トレースエクスポーターの生成に失敗: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
