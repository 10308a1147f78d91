// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
# 概述

Package agent 实现 agent 运行时：持有角色、存储、记忆表、知识与插件，
并驱动一条消息从接收到回复的完整流程。

# 核心接口/类型

  - AgentRuntime：运行时本体，按 Options 组装
  - Action / Evaluator / Provider / Service / Plugin：插件契约
  - ActionResolver：把模型输出的动作名映射到已注册动作，
    FuzzyActionResolver 做子串匹配，ExactActionResolver 要求完全一致

# 消息流程

HandleMessage 依次执行：

 1. EnsureConnection：账户、房间与成员关系
 2. ComposeState：并发读取成员、最近消息与目标，随机抽取人设片段，
    检索知识，校验动作与评估器并调用提供者
 3. 生成回复（template.MessageHandler 模板）
 4. ProcessActions：执行回复选择的动作，处理器的错误与 panic 只记录日志
 5. Evaluate：通过校验且被模型选中的评估器才会执行

# 知识

Initialize 导入角色知识。角色开启 ragKnowledge 时文本、文件与目录都进入
rag.KnowledgeManager，并在导入后清理源文件已删除的知识；否则只有文本知识
写入 documents / fragments 两张记忆表。
*/
package agent
