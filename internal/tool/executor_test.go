package tool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/agentrund/internal/effect"
	"github.com/opencode-ai/agentrund/pkg/types"
)

type fakeBackend struct {
	name  string
	defs  []Definition
	invoke func(ctx context.Context, name string, parameters map[string]any) (Output, error)
}

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) Definitions(ctx context.Context) ([]Definition, error) { return f.defs, nil }
func (f *fakeBackend) Invoke(ctx context.Context, name string, parameters map[string]any) (Output, error) {
	return f.invoke(ctx, name, parameters)
}

func TestExecutorRunSucceeds(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeBackend{
		name: "local",
		defs: []Definition{{Name: "echo"}},
		invoke: func(ctx context.Context, name string, parameters map[string]any) (Output, error) {
			return Output{Title: "ok", Text: parameters["msg"].(string)}, nil
		},
	})
	exec := NewExecutor(reg, 2)

	act := exec.Run(context.Background(), types.Timestamp(1), "msg1", effect.RunTool{
		OpID: "op1", ToolCallID: "tc1", Name: "echo", Parameters: map[string]any{"msg": "hi"},
	})

	completed, ok := act.(effect.ToolCompleted)
	require.True(t, ok)
	assert.Equal(t, "hi", completed.Result.Output)
	assert.Equal(t, types.ToolCallID("tc1"), completed.ToolCallID)
}

func TestExecutorRunUnknownTool(t *testing.T) {
	exec := NewExecutor(NewRegistry(), 1)
	act := exec.Run(context.Background(), types.Timestamp(1), "msg1", effect.RunTool{
		OpID: "op1", ToolCallID: "tc1", Name: "ghost",
	})
	failed, ok := act.(effect.ToolFailed)
	require.True(t, ok)
	assert.Equal(t, types.ToolErrUnknownTool, failed.Error.Kind)
}

func TestExecutorRunTimesOut(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeBackend{
		name: "local",
		defs: []Definition{{Name: "slow"}},
		invoke: func(ctx context.Context, name string, parameters map[string]any) (Output, error) {
			<-ctx.Done()
			return Output{}, ctx.Err()
		},
	})
	exec := NewExecutor(reg, 1)

	act := exec.Run(context.Background(), types.Timestamp(1), "msg1", effect.RunTool{
		OpID: "op1", ToolCallID: "tc1", Name: "slow", Timeout: 10 * time.Millisecond,
	})
	failed, ok := act.(effect.ToolFailed)
	require.True(t, ok)
	assert.Equal(t, types.ToolErrTimeout, failed.Error.Kind)
}

func TestExecutorRunTranslatesBackendError(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeBackend{
		name: "local",
		defs: []Definition{{Name: "strict"}},
		invoke: func(ctx context.Context, name string, parameters map[string]any) (Output, error) {
			return Output{}, &Error{Kind: string(types.ToolErrInvalidParams), Message: "missing field"}
		},
	})
	exec := NewExecutor(reg, 1)

	act := exec.Run(context.Background(), types.Timestamp(1), "msg1", effect.RunTool{
		OpID: "op1", ToolCallID: "tc1", Name: "strict",
	})
	failed, ok := act.(effect.ToolFailed)
	require.True(t, ok)
	assert.Equal(t, types.ToolErrInvalidParams, failed.Error.Kind)
	assert.Equal(t, "missing field", failed.Error.Message)
}

func TestExecutorRunCapsConcurrency(t *testing.T) {
	var active int32
	var maxObserved int32
	release := make(chan struct{})
	reg := NewRegistry()
	reg.Register(&fakeBackend{
		name: "local",
		defs: []Definition{{Name: "block"}},
		invoke: func(ctx context.Context, name string, parameters map[string]any) (Output, error) {
			n := atomic.AddInt32(&active, 1)
			for {
				cur := atomic.LoadInt32(&maxObserved)
				if n <= cur || atomic.CompareAndSwapInt32(&maxObserved, cur, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&active, -1)
			return Output{}, nil
		},
	})
	exec := NewExecutor(reg, 1)

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		id := types.ToolCallID("tc" + string(rune('0'+i)))
		go func(id types.ToolCallID) {
			exec.Run(context.Background(), types.Timestamp(1), "msg1", effect.RunTool{OpID: "op1", ToolCallID: id, Name: "block"})
			done <- struct{}{}
		}(id)
	}

	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&active))

	close(release)
	<-done
	<-done
	assert.EqualValues(t, 1, atomic.LoadInt32(&maxObserved))
}
