/*
包 observability 基于 OpenTelemetry 为模型调用记录追踪与指标。

  - Instrumentation：StartRequest/EndRequest 包裹一次模型调用，记录
    请求数、延迟、Token、错误与成本，并在 span 上标注 Provider 与模型。
  - CostCalculator：按 "provider:model" 维护每千 Token 单价，
    Provider 使用目录中的厂商 id，可从配置覆盖。

Prometheus 侧的聚合指标见 internal/metrics。
*/
package observability
