package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/harnessd/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Tool {
	return &FuncTool{
		Def: provider.ToolDefinition{
			Name:        name,
			Description: "echoes its arguments back",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`),
		},
		Fn: func(ctx context.Context, argsJSON string, ec ExecutionContext) (string, error) {
			args, err := ParseObject(argsJSON)
			if err != nil {
				return "", err
			}
			text, err := RequiredString(args, "text")
			if err != nil {
				return "", err
			}
			return "echo: " + text, nil
		},
	}
}

type recordingHooks struct {
	mu        sync.Mutex
	starts    int
	successes int
	failures  int
}

func (h *recordingHooks) OnToolStart(string, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
}

func (h *recordingHooks) OnToolSuccess(string, string, time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.successes++
}

func (h *recordingHooks) OnToolFailure(string, string, error, time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))
	require.NoError(t, r.Register(echoTool("shout")))

	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Contains("echo"))
	assert.False(t, r.Contains("whisper"))

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "echo", defs[0].Name)
	assert.Equal(t, "shout", defs[1].Name)

	r.Remove("echo")
	assert.False(t, r.Contains("echo"))
	assert.Equal(t, 1, r.Len())

	err := r.Register(&FuncTool{Def: provider.ToolDefinition{}})
	require.Error(t, err)
}

func TestRegistryRuntimeExecute(t *testing.T) {
	t.Run("runs a registered tool", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoTool("echo")))
		hooks := &recordingHooks{}
		rt, err := NewRegistryRuntime(r, hooks, nil)
		require.NoError(t, err)

		res, err := rt.Execute(context.Background(), provider.ToolCall{
			ID: "c1", Name: "echo", ArgumentsJSON: `{"text":"hello"}`,
		}, ExecutionContext{SessionID: "s1"})
		require.NoError(t, err)
		assert.Equal(t, "echo: hello", res.Content)
		assert.Equal(t, "c1", res.CallID)
		assert.False(t, res.IsError)
		assert.Equal(t, 1, hooks.starts)
		assert.Equal(t, 1, hooks.successes)
	})

	t.Run("unregistered tool is not found", func(t *testing.T) {
		rt, err := NewRegistryRuntime(NewRegistry(), nil, nil)
		require.NoError(t, err)

		_, err = rt.Execute(context.Background(), provider.ToolCall{
			ID: "c1", Name: "missing",
		}, ExecutionContext{})
		require.Error(t, err)
		var terr *Error
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, ErrNotFound, terr.Kind)
		assert.True(t, terr.UserFacing())
	})

	t.Run("bad arguments are classified", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoTool("echo")))
		rt, err := NewRegistryRuntime(r, nil, nil)
		require.NoError(t, err)

		_, err = rt.Execute(context.Background(), provider.ToolCall{
			ID: "c1", Name: "echo", ArgumentsJSON: `{"wrong":"key"}`,
		}, ExecutionContext{})
		require.Error(t, err)
		var terr *Error
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, ErrInvalidArguments, terr.Kind)
		assert.Equal(t, "echo", terr.Tool)
		assert.Equal(t, "c1", terr.CallID)
	})

	t.Run("plain errors become execution failures", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(&FuncTool{
			Def: provider.ToolDefinition{Name: "broken"},
			Fn: func(context.Context, string, ExecutionContext) (string, error) {
				return "", errors.New("disk on fire")
			},
		}))
		hooks := &recordingHooks{}
		rt, err := NewRegistryRuntime(r, hooks, nil)
		require.NoError(t, err)

		_, err = rt.Execute(context.Background(), provider.ToolCall{ID: "c9", Name: "broken"}, ExecutionContext{})
		require.Error(t, err)
		var terr *Error
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, ErrExecution, terr.Kind)
		assert.Equal(t, 1, hooks.failures)
	})

	t.Run("requires a registry", func(t *testing.T) {
		_, err := NewRegistryRuntime(nil, nil, nil)
		require.Error(t, err)
	})
}

func TestArgsHelpers(t *testing.T) {
	t.Run("empty payload parses to empty map", func(t *testing.T) {
		args, err := ParseObject("")
		require.NoError(t, err)
		assert.Empty(t, args)
	})

	t.Run("non-object payload is rejected", func(t *testing.T) {
		_, err := ParseObject(`[1,2,3]`)
		require.Error(t, err)
	})

	t.Run("optional string falls back", func(t *testing.T) {
		args, err := ParseObject(`{"a":"x"}`)
		require.NoError(t, err)
		v, err := OptionalString(args, "b", "fallback")
		require.NoError(t, err)
		assert.Equal(t, "fallback", v)
	})

	t.Run("optional string rejects wrong type", func(t *testing.T) {
		args, err := ParseObject(`{"a":7}`)
		require.NoError(t, err)
		_, err = OptionalString(args, "a", "")
		require.Error(t, err)
	})
}
