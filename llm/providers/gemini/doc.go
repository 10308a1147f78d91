// Package gemini 基于 google.golang.org/genai 实现 Google Gemini 的 Provider 适配。
//
// system 消息合并进 SystemInstruction，assistant 角色映射为 genai.RoleModel。
package gemini
