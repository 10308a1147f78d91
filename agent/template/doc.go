// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package template 提供提示词模板：内置的消息处理、是否回复与评估模板，
// 角色级覆盖，以及基于 {{key}} 的单遍替换。
package template
