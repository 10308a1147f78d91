// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为运行时提供 TracerProvider 与 MeterProvider，llm/observability 在其上记录模型调用。
// 遥测禁用时不连接任何外部服务，访问器回落到全局 Provider。
package telemetry
