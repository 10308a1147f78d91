package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentruntime/config"
	"github.com/BaSui01/agentruntime/types"
)

// callbackRecorder 收集处理器通过回调发送的内容
type callbackRecorder struct {
	mu   sync.Mutex
	sent []types.Content
}

func (c *callbackRecorder) callback(_ context.Context, content types.Content) ([]*types.Memory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, content)
	return []*types.Memory{{Content: content}}, nil
}

func (c *callbackRecorder) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, s := range c.sent {
		out[i] = s.Text
	}
	return out
}

func validateTrue(context.Context, *AgentRuntime, *types.Memory, *types.State) bool  { return true }
func validateFalse(context.Context, *AgentRuntime, *types.Memory, *types.State) bool { return false }

func replyWith(text string) HandlerFunc {
	return func(ctx context.Context, _ *AgentRuntime, _ *types.Memory, _ *types.State, _ map[string]any, cb HandlerCallback) error {
		_, err := cb(ctx, types.Content{Text: text})
		return err
	}
}

func failWith(err error) HandlerFunc {
	return func(context.Context, *AgentRuntime, *types.Memory, *types.State, map[string]any, HandlerCallback) error {
		return err
	}
}

func panicking(context.Context, *AgentRuntime, *types.Memory, *types.State, map[string]any, HandlerCallback) error {
	panic("handler bug")
}

func testActions() []Action {
	return []Action{
		{Name: "WAVE", Similes: []string{"GREET"}, Handler: replyWith("*waves*")},
		{Name: "FAIL", Handler: failWith(errors.New("remote unavailable"))},
		{Name: "BOOM", Handler: panicking},
		{Name: "NOOP"},
	}
}

func responses(actions ...string) []*types.Memory {
	out := make([]*types.Memory, len(actions))
	for i, a := range actions {
		out[i] = &types.Memory{ID: types.NewID(), Content: types.Content{Text: "reply", Action: a}}
	}
	return out
}

func TestProcessActions(t *testing.T) {
	obs := newRecordingObserver()
	rt := newRuntime(t, Options{Actions: testActions(), Observer: obs})
	rec := &callbackRecorder{}

	msg := &types.Memory{ID: "m", UserID: userBob, RoomID: roomA}
	resps := append(responses("wave", "FAIL", "BOOM", "NOOP", "DANCE", ""), nil)
	executed := rt.ProcessActions(context.Background(), msg, resps, &types.State{}, rec.callback)

	assert.Equal(t, []string{"WAVE"}, executed)
	assert.Equal(t, []string{"*waves*"}, rec.texts())

	calls, failed := obs.counts("WAVE")
	assert.Equal(t, 1, calls)
	assert.Zero(t, failed)
	calls, failed = obs.counts("FAIL")
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, failed)
	calls, failed = obs.counts("BOOM")
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, failed, "panics are reported as failures")
	calls, _ = obs.counts("NOOP")
	assert.Zero(t, calls, "actions without handlers are not observed")
}

func TestProcessActions_Similes(t *testing.T) {
	rt := newRuntime(t, Options{Actions: testActions()})
	rec := &callbackRecorder{}
	executed := rt.ProcessActions(context.Background(), &types.Memory{ID: "m"}, responses("greet"), nil, rec.callback)
	assert.Equal(t, []string{"WAVE"}, executed)
}

func TestProcessActions_ExactResolver(t *testing.T) {
	rt := newRuntime(t, Options{
		Actions: testActions(),
		Config:  config.RuntimeConfig{ActionResolver: "exact"},
	})
	rec := &callbackRecorder{}
	msg := &types.Memory{ID: "m"}

	assert.Empty(t, rt.ProcessActions(context.Background(), msg, responses("WAVE_BACK"), nil, rec.callback))
	assert.Equal(t, []string{"WAVE"}, rt.ProcessActions(context.Background(), msg, responses("wave"), nil, rec.callback))

	fuzzy := newRuntime(t, Options{Actions: testActions()})
	assert.Equal(t, []string{"WAVE"}, fuzzy.ProcessActions(context.Background(), msg, responses("WAVE_BACK"), nil, rec.callback))
}

func TestProcessActions_CanceledContext(t *testing.T) {
	rt := newRuntime(t, Options{Actions: testActions()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &callbackRecorder{}
	assert.Empty(t, rt.ProcessActions(ctx, &types.Memory{ID: "m"}, responses("WAVE"), nil, rec.callback))
	assert.Empty(t, rec.texts())
}

func TestEvaluate_RunsValidatedAndSelected(t *testing.T) {
	gen, model := newGenerator(t, `["facts", "UNKNOWN"]`)
	obs := newRecordingObserver()
	rt := newRuntime(t, Options{
		Generator: gen,
		Observer:  obs,
		Evaluators: []Evaluator{
			{Name: "FACTS", Description: "extract facts", Validate: validateTrue, Handler: replyWith("fact stored")},
			{Name: "GOALS", Description: "track goals", Validate: validateTrue, Handler: replyWith("goal updated")},
			{Name: "SECRET", Description: "never valid", Validate: validateFalse, Handler: replyWith("leaked")},
			{Name: "DOCS", Description: "no handler", Validate: validateTrue},
		},
	})
	rec := &callbackRecorder{}
	msg := &types.Memory{ID: "m", UserID: userBob, RoomID: roomA}

	executed, err := rt.Evaluate(context.Background(), msg, &types.State{AgentName: "Ada"}, true, rec.callback)
	require.NoError(t, err)
	assert.Equal(t, []string{"FACTS"}, executed)
	assert.Equal(t, []string{"fact stored"}, rec.texts())

	require.Equal(t, 1, model.calls())
	prompt := model.prompt(0)
	assert.Contains(t, prompt, "'FACTS'")
	assert.Contains(t, prompt, "'GOALS: track goals'")
	assert.NotContains(t, prompt, "SECRET")
	assert.NotContains(t, prompt, "DOCS")

	calls, failed := obs.counts("evaluator:FACTS")
	assert.Equal(t, 1, calls)
	assert.Zero(t, failed)
}

func TestEvaluate_WithoutResponseOnlyAlwaysRun(t *testing.T) {
	gen, model := newGenerator(t, `["ALWAYS", "FACTS"]`)
	rt := newRuntime(t, Options{
		Generator: gen,
		Evaluators: []Evaluator{
			{Name: "FACTS", Validate: validateTrue, Handler: replyWith("fact")},
			{Name: "ALWAYS", AlwaysRun: true, Handler: replyWith("always")},
		},
	})
	rec := &callbackRecorder{}

	executed, err := rt.Evaluate(context.Background(), &types.Memory{ID: "m"}, nil, false, rec.callback)
	require.NoError(t, err)
	assert.Equal(t, []string{"ALWAYS"}, executed)
	assert.Equal(t, 1, model.calls())
	assert.NotContains(t, model.prompt(0), "'FACTS'")
}

func TestEvaluate_NothingValidatedSkipsModel(t *testing.T) {
	gen, model := newGenerator(t, `["FACTS"]`)
	rt := newRuntime(t, Options{
		Generator: gen,
		Evaluators: []Evaluator{
			{Name: "FACTS", Validate: validateFalse, Handler: replyWith("fact")},
			{Name: "CRASH", Validate: func(context.Context, *AgentRuntime, *types.Memory, *types.State) bool {
				panic("validator bug")
			}, Handler: replyWith("crash")},
		},
	})

	executed, err := rt.Evaluate(context.Background(), &types.Memory{ID: "m"}, nil, true, (&callbackRecorder{}).callback)
	require.NoError(t, err)
	assert.Nil(t, executed)
	assert.Zero(t, model.calls())
}

func TestEvaluate_RequiresGenerator(t *testing.T) {
	rt := newRuntime(t, Options{
		Evaluators: []Evaluator{{Name: "FACTS", Handler: replyWith("fact")}},
	})
	_, err := rt.Evaluate(context.Background(), &types.Memory{ID: "m"}, nil, true, (&callbackRecorder{}).callback)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrProviderNotSet))
}

func TestEvaluate_HandlerFailuresAreObserved(t *testing.T) {
	gen, _ := newGenerator(t, `["BOOM", "FAIL"]`)
	obs := newRecordingObserver()
	rt := newRuntime(t, Options{
		Generator: gen,
		Observer:  obs,
		Evaluators: []Evaluator{
			{Name: "BOOM", Handler: panicking},
			{Name: "FAIL", Handler: failWith(errors.New("store down"))},
		},
	})

	executed, err := rt.Evaluate(context.Background(), &types.Memory{ID: "m"}, nil, true, (&callbackRecorder{}).callback)
	require.NoError(t, err)
	assert.Empty(t, executed)
	_, failed := obs.counts("evaluator:BOOM")
	assert.Equal(t, 1, failed)
	_, failed = obs.counts("evaluator:FAIL")
	assert.Equal(t, 1, failed)
}

func TestEvaluate_ModelErrorIsReturned(t *testing.T) {
	gen, model := newGenerator(t, errors.New("rate limited"))
	rt := newRuntime(t, Options{
		Generator:  gen,
		Evaluators: []Evaluator{{Name: "FACTS", Handler: replyWith("fact")}},
	})
	_, err := rt.Evaluate(context.Background(), &types.Memory{ID: "m"}, nil, true, (&callbackRecorder{}).callback)
	require.Error(t, err)
	assert.Equal(t, 2, model.calls(), "generation retries before giving up")
}
