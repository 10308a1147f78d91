package agent

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentruntime/agent/template"
	"github.com/BaSui01/agentruntime/llm"
	"github.com/BaSui01/agentruntime/llm/generation"
	"github.com/BaSui01/agentruntime/types"
)

// ProcessActions 执行回复中选择的动作。找不到动作或处理器失败只记录日志，
// 不影响后续回复；返回实际执行过的动作名。
func (r *AgentRuntime) ProcessActions(ctx context.Context, message *types.Memory, responses []*types.Memory,
	state *types.State, callback HandlerCallback) []string {
	actions := r.Actions()
	var executed []string

	for _, resp := range responses {
		if ctx.Err() != nil {
			break
		}
		if resp == nil || resp.Content.Action == "" {
			r.logger.Debug("response without action")
			continue
		}
		action, ok := r.resolver.Resolve(resp.Content.Action, actions)
		if !ok {
			r.logger.Warn("no action found", zap.String("action", resp.Content.Action))
			continue
		}
		if action.Handler == nil {
			r.logger.Debug("action has no handler", zap.String("action", action.Name))
			continue
		}

		err := r.runHandler(ctx, "action", action.Name, action.Handler, message, state, callback)
		r.observeAction(action.Name, err)
		if err != nil {
			r.logger.Error("action handler failed", zap.String("action", action.Name), zap.Error(err))
			continue
		}
		executed = append(executed, action.Name)
	}
	return executed
}

// Evaluate 先并发校验评估器，再让模型从通过校验的评估器中挑选，
// 只执行两者的交集。agent 没有回复时只有 AlwaysRun 的评估器参与。
func (r *AgentRuntime) Evaluate(ctx context.Context, message *types.Memory, state *types.State,
	didRespond bool, callback HandlerCallback) ([]string, error) {
	var candidates []Evaluator
	for _, e := range r.Evaluators() {
		if e.Handler == nil || (!didRespond && !e.AlwaysRun) {
			continue
		}
		candidates = append(candidates, e)
	}

	passed := make([]bool, len(candidates))
	var wg sync.WaitGroup
	for i := range candidates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			passed[i] = r.safeValidate(ctx, "evaluator", candidates[i].Name, candidates[i].Validate, message, state)
		}()
	}
	wg.Wait()

	var validated []Evaluator
	for i, ok := range passed {
		if ok {
			validated = append(validated, candidates[i])
		}
	}
	if len(validated) == 0 {
		return nil, nil
	}
	if r.generator == nil {
		return nil, types.NewError(types.ErrProviderNotSet, "evaluate: no generator configured")
	}

	evalState := types.State{}
	if state != nil {
		evalState = *state
	}
	evalState.Evaluators = formatEvaluators(validated)
	evalState.EvaluatorNames = formatEvaluatorNames(validated)
	r.withRand(func(rng *rand.Rand) { evalState.EvaluatorExamples = formatEvaluatorExamples(rng, validated) })

	prompt := template.ComposeContext(&evalState, template.Get(r.character, template.Evaluation))
	selected, err := r.generator.GenerateTextArray(ctx, generation.Request{
		Context:    prompt,
		Provider:   r.modelProvider,
		ModelClass: llm.ModelClassSmall,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	chosen := make(map[string]struct{}, len(selected))
	for _, name := range selected {
		chosen[strings.ToUpper(strings.TrimSpace(name))] = struct{}{}
	}

	var executed []string
	for _, e := range validated {
		if _, ok := chosen[strings.ToUpper(e.Name)]; !ok {
			continue
		}
		err := r.runHandler(ctx, "evaluator", e.Name, e.Handler, message, state, callback)
		r.observeAction("evaluator:"+e.Name, err)
		if err != nil {
			r.logger.Error("evaluator handler failed", zap.String("evaluator", e.Name), zap.Error(err))
			continue
		}
		executed = append(executed, e.Name)
	}
	return executed, nil
}

// runHandler 执行处理器，panic 转换为错误
func (r *AgentRuntime) runHandler(ctx context.Context, kind, name string, h HandlerFunc,
	message *types.Memory, state *types.State, callback HandlerCallback) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = types.NewError(types.ErrActionFailed, fmt.Sprintf("%s %s panicked: %v", kind, name, p))
		}
	}()
	return h(ctx, r, message, state, map[string]any{}, callback)
}

func (r *AgentRuntime) observeAction(name string, err error) {
	if r.observer != nil {
		r.observer.ObserveAction(name, err)
	}
}
