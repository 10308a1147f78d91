package agent

import (
	"fmt"
	"strings"
)

// ActionResolver 把模型输出的动作名映射到已注册的动作.
type ActionResolver interface {
	Resolve(name string, actions []Action) (*Action, bool)
}

// 解析器名称，对应 config.RuntimeConfig.ActionResolver
const (
	ResolverFuzzy = "fuzzy"
	ResolverExact = "exact"
)

// NewActionResolver 按名称创建解析器，空名称返回模糊解析器.
func NewActionResolver(name string) (ActionResolver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ResolverFuzzy:
		return FuzzyActionResolver{}, nil
	case ResolverExact:
		return ExactActionResolver{}, nil
	default:
		return nil, fmt.Errorf("unknown action resolver %q", name)
	}
}

func normalizeActionName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", ""))
}

// FuzzyActionResolver 去掉下划线并忽略大小写后做双向子串匹配，
// 先匹配动作名，再匹配 similes.
type FuzzyActionResolver struct{}

// Resolve 实现 ActionResolver.
func (FuzzyActionResolver) Resolve(name string, actions []Action) (*Action, bool) {
	target := normalizeActionName(name)
	if target == "" {
		return nil, false
	}
	related := func(candidate string) bool {
		c := normalizeActionName(candidate)
		return c != "" && (strings.Contains(c, target) || strings.Contains(target, c))
	}

	for i := range actions {
		if related(actions[i].Name) {
			return &actions[i], true
		}
	}
	for i := range actions {
		for _, simile := range actions[i].Similes {
			if related(simile) {
				return &actions[i], true
			}
		}
	}
	return nil, false
}

// ExactActionResolver 只接受规范化后完全相同的动作名或 simile.
type ExactActionResolver struct{}

// Resolve 实现 ActionResolver.
func (ExactActionResolver) Resolve(name string, actions []Action) (*Action, bool) {
	target := normalizeActionName(name)
	if target == "" {
		return nil, false
	}
	for i := range actions {
		if normalizeActionName(actions[i].Name) == target {
			return &actions[i], true
		}
	}
	for i := range actions {
		for _, simile := range actions[i].Similes {
			if normalizeActionName(simile) == target {
				return &actions[i], true
			}
		}
	}
	return nil, false
}
