package agent

import (
	"context"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/types"
)

// ============================================================
// 插件契约
// 动作、评估器、状态提供者与服务，由 Plugin 打包注册到运行时。
// ============================================================

// HandlerCallback 接收处理器产生的回复内容，返回据此写入的记忆.
type HandlerCallback func(ctx context.Context, response types.Content) ([]*types.Memory, error)

// ValidateFunc 判断动作或评估器是否适用于当前消息.
type ValidateFunc func(ctx context.Context, rt *AgentRuntime, message *types.Memory, state *types.State) bool

// HandlerFunc 执行动作或评估器.
type HandlerFunc func(ctx context.Context, rt *AgentRuntime, message *types.Memory, state *types.State,
	options map[string]any, callback HandlerCallback) error

// ActionExample 是示例对话中的一条消息，user 可以是 {{user1}} 之类的占位符.
type ActionExample struct {
	User    string        `json:"user"`
	Content types.Content `json:"content"`
}

// Action 是模型可以在回复中选择执行的动作.
type Action struct {
	Name        string
	Similes     []string
	Description string
	Examples    [][]ActionExample
	// Validate 为 nil 时视为总是可用
	Validate ValidateFunc
	Handler  HandlerFunc
}

// EvaluationExample 是评估器提示词中的一个示例.
type EvaluationExample struct {
	Context  string
	Messages []ActionExample
	Outcome  string
}

// Evaluator 在回复之后对对话做后处理，例如提取事实或更新目标.
type Evaluator struct {
	Name        string
	Similes     []string
	Description string
	Examples    []EvaluationExample
	// AlwaysRun 为 true 时即使 agent 没有回复也会参与评估
	AlwaysRun bool
	Validate  ValidateFunc
	Handler   HandlerFunc
}

// Provider 为提示词提供额外的上下文，返回空字符串表示无内容.
type Provider interface {
	Get(ctx context.Context, rt *AgentRuntime, message *types.Memory, state *types.State) (string, error)
}

// ProviderFunc 把普通函数适配为 Provider.
type ProviderFunc func(ctx context.Context, rt *AgentRuntime, message *types.Memory, state *types.State) (string, error)

// Get 实现 Provider.
func (f ProviderFunc) Get(ctx context.Context, rt *AgentRuntime, message *types.Memory, state *types.State) (string, error) {
	return f(ctx, rt, message, state)
}

// Service 是随运行时启动的长生命周期组件，按类型唯一.
type Service interface {
	ServiceType() string
	Initialize(ctx context.Context, rt *AgentRuntime) error
}

// Plugin 把一组扩展打包在一起.
type Plugin struct {
	Name        string
	Description string
	Actions     []Action
	Evaluators  []Evaluator
	Providers   []Provider
	Services    []Service
	// Adapters 由插件提供的额外存储，运行时只负责登记
	Adapters []adapter.DatabaseAdapter
}

func validates(ctx context.Context, fn ValidateFunc, rt *AgentRuntime, message *types.Memory, state *types.State) bool {
	if fn == nil {
		return true
	}
	return fn(ctx, rt, message, state)
}
