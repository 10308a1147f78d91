/*
包 generation 实现运行时的文本与结构化生成。

每次调用依次执行：裁剪上下文（tiktoken 计数，保留尾部）→ 从
ProviderRegistry 选择 Provider → 调用 → 解析 →（必要时）重试。

  - GenerateText：一次性调用，错误原样返回，结果去掉 <think> 推理块。
  - GenerateShouldRespond / GenerateTrueOrFalse / GenerateTextArray /
    GenerateObjectDeprecated / GenerateObjectArray / GenerateMessageResponse /
    GenerateTweetActions / GenerateObject：解析失败视为 retry.ErrNoResult，
    按 1000ms 起步翻倍的退避重试。默认不限次数，仅由 ctx 终止；
    MaxAttempts 设定上限，StopOnNonRetryable 让鉴权、参数类错误立即返回。
*/
package generation
