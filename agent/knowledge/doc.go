// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 knowledge 提供角色未开启 RAG 模式时使用的扁平知识。

# 存储

Set 把整篇文档以零向量写入 documents 表，再把预处理后的文本按
512 字符、20 字符重叠切片，每片嵌入后写入 fragments 表，
content.source 指向文档 id，片段 id 由文档 id 与片段文本派生。

# 检索

Get 嵌入消息文本，在本 agent 的片段中检索（阈值 0.1，最多 5 条），
去重片段来源后读取对应文档原文。
*/
package knowledge
