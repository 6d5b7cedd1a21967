package toolloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func newTestExecutor(concurrent bool) *executor {
	return &executor{
		concurrent: concurrent,
		tracer:     noop.NewTracerProvider().Tracer("test"),
		logger:     discardLogger(),
	}
}

func calls(names ...string) []CallRequest {
	out := make([]CallRequest, len(names))
	for i, n := range names {
		out[i] = CallRequest{ID: n + "-id", Name: n, Args: map[string]any{}}
	}
	return out
}

func TestExecuteBatch_FoundAndNotFound(t *testing.T) {
	table := resolveTools([]Tool{returning("foo", "foo result")})
	outcomes, err := newTestExecutor(false).executeBatch(context.Background(), calls("foo", "bar"), table, round{iteration: 1, capture: true})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, StatusCompleted, outcomes[0].Status)
	assert.Equal(t, "foo result", outcomes[0].Result)
	assert.Equal(t, StatusToolNotFound, outcomes[1].Status)
	assert.Equal(t, "bar", outcomes[1].Call.Name)
	assert.NoError(t, outcomes[1].Err)
}

func TestExecuteBatch_CaptureFailure(t *testing.T) {
	boom := errors.New("boom")
	table := resolveTools([]Tool{
		&minTool{name: "bad", invoke: func(context.Context, map[string]any) (any, error) { return nil, boom }},
		returning("good", 1),
	})
	outcomes, err := newTestExecutor(false).executeBatch(context.Background(), calls("bad", "good"), table, round{capture: true})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Same(t, boom, outcomes[0].Err)
	assert.Equal(t, StatusCompleted, outcomes[1].Status)
}

func TestExecuteBatch_NoCaptureAbortsSerialBatch(t *testing.T) {
	boom := errors.New("boom")
	var secondRan atomic.Bool
	table := resolveTools([]Tool{
		&minTool{name: "bad", invoke: func(context.Context, map[string]any) (any, error) { return nil, boom }},
		&minTool{name: "good", invoke: func(context.Context, map[string]any) (any, error) {
			secondRan.Store(true)
			return 1, nil
		}},
	})
	outcomes, err := newTestExecutor(false).executeBatch(context.Background(), calls("bad", "good"), table, round{capture: false})
	require.ErrorIs(t, err, boom)
	assert.Nil(t, outcomes)
	assert.False(t, secondRan.Load(), "serial batch must stop at the first fault")
}

func TestExecuteBatch_PanicRecovered(t *testing.T) {
	table := resolveTools([]Tool{
		&minTool{name: "panic", invoke: func(context.Context, map[string]any) (any, error) { panic("oops") }},
	})
	outcomes, err := newTestExecutor(true).executeBatch(context.Background(), calls("panic"), table, round{capture: true})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, outcomes[0].Status)
	var se *SystemError
	require.ErrorAs(t, outcomes[0].Err, &se)
	assert.Contains(t, se.Err.Error(), "oops")
}

func TestExecuteBatch_ConcurrentPreservesOrder(t *testing.T) {
	boom := errors.New("call 2 failed")
	// Later calls finish first.
	delayed := func(name string, d time.Duration, err error) *minTool {
		return &minTool{name: name, invoke: func(ctx context.Context, _ map[string]any) (any, error) {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if err != nil {
				return nil, err
			}
			return name + " result", nil
		}}
	}
	table := resolveTools([]Tool{
		delayed("one", 60*time.Millisecond, nil),
		delayed("two", 30*time.Millisecond, boom),
		delayed("three", 0, nil),
	})
	outcomes, err := newTestExecutor(true).executeBatch(context.Background(), calls("one", "two", "three"), table, round{capture: true})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, StatusCompleted, outcomes[0].Status)
	assert.Equal(t, "one result", outcomes[0].Result)
	assert.Equal(t, StatusFailed, outcomes[1].Status)
	assert.Same(t, boom, outcomes[1].Err)
	assert.Equal(t, StatusCompleted, outcomes[2].Status)
	assert.Equal(t, "three result", outcomes[2].Result)
}

func TestExecuteBatch_ConcurrentRunsInParallel(t *testing.T) {
	const n = 3
	var wg sync.WaitGroup
	wg.Add(n)
	barrier := func(ctx context.Context, _ map[string]any) (any, error) {
		wg.Done()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return "ok", nil
		case <-time.After(2 * time.Second):
			<-done
			return nil, errors.New("calls did not overlap")
		}
	}
	table := resolveTools([]Tool{&minTool{name: "b", invoke: barrier}})
	outcomes, err := newTestExecutor(true).executeBatch(context.Background(), calls("b", "b", "b"), table, round{capture: true})
	require.NoError(t, err)
	for _, o := range outcomes {
		assert.Equal(t, StatusCompleted, o.Status)
	}
}

func TestExecuteBatch_SerialRunsOneAtATime(t *testing.T) {
	var running, maxRunning atomic.Int32
	var order []string
	var mu sync.Mutex
	track := func(name string) *minTool {
		return &minTool{name: name, invoke: func(context.Context, map[string]any) (any, error) {
			cur := running.Add(1)
			defer running.Add(-1)
			if cur > maxRunning.Load() {
				maxRunning.Store(cur)
			}
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			return nil, nil
		}}
	}
	table := resolveTools([]Tool{track("a"), track("b"), track("c")})
	_, err := newTestExecutor(false).executeBatch(context.Background(), calls("c", "a", "b"), table, round{capture: true})
	require.NoError(t, err)
	assert.Equal(t, int32(1), maxRunning.Load())
	assert.Equal(t, []string{"c", "a", "b"}, order)
}

func TestExecuteBatch_CallerCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	table := resolveTools([]Tool{&minTool{name: "block", invoke: func(ctx context.Context, _ map[string]any) (any, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}})
	for _, concurrent := range []bool{false, true} {
		_, err := newTestExecutor(concurrent).executeBatch(ctx, calls("block", "block"), table, round{capture: true})
		require.ErrorIs(t, err, context.Canceled, "concurrent=%v", concurrent)
	}
}

func TestExecuteBatch_ToolOwnCancellationIsCaptured(t *testing.T) {
	table := resolveTools([]Tool{&minTool{name: "inner", invoke: func(ctx context.Context, _ map[string]any) (any, error) {
		inner, cancel := context.WithCancel(ctx)
		cancel()
		<-inner.Done()
		return nil, inner.Err()
	}}})
	outcomes, err := newTestExecutor(false).executeBatch(context.Background(), calls("inner"), table, round{capture: true})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.ErrorIs(t, outcomes[0].Err, context.Canceled)
}

func TestExecuteBatch_ToolTimeout(t *testing.T) {
	slow, err := NewFunc("slow", "", nil, func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, WithTimeout(10*time.Millisecond))
	require.NoError(t, err)
	outcomes, err := newTestExecutor(false).executeBatch(context.Background(), calls("slow"), resolveTools([]Tool{slow}), round{capture: true})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.ErrorIs(t, outcomes[0].Err, ErrTimeout)
	assert.ErrorIs(t, outcomes[0].Err, context.DeadlineExceeded)
}

func TestExecuteBatch_InvocationContext(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]*Invocation{}
	services := Services{}
	probe := &minTool{name: "probe", invoke: func(ctx context.Context, _ map[string]any) (any, error) {
		inv := InvocationFrom(ctx)
		mu.Lock()
		seen[inv.Call.ID] = inv
		mu.Unlock()
		return inv.Index, nil
	}}
	exec := newTestExecutor(true)
	exec.services = services
	batch := []CallRequest{{ID: "a", Name: "probe"}, {ID: "b", Name: "probe"}}
	outcomes, err := exec.executeBatch(context.Background(), batch, resolveTools([]Tool{probe}), round{iteration: 4, capture: true})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.NotSame(t, seen["a"], seen["b"])
	assert.Equal(t, 0, outcomes[0].Result)
	assert.Equal(t, 1, outcomes[1].Result)
	for _, inv := range seen {
		assert.Equal(t, 4, inv.Iteration)
		assert.Equal(t, 2, inv.Count)
		assert.NotNil(t, inv.Args, "nil arguments are replaced by an empty map")
		assert.Equal(t, services, inv.Services)
	}
}

func TestExecuteBatch_Terminate(t *testing.T) {
	stop := &minTool{name: "stop", invoke: func(ctx context.Context, _ map[string]any) (any, error) {
		InvocationFrom(ctx).Terminate()
		return "bye", nil
	}}
	outcomes, err := newTestExecutor(false).executeBatch(context.Background(), calls("stop", "foo"), resolveTools([]Tool{stop, returning("foo", 1)}), round{capture: true})
	require.NoError(t, err)
	assert.True(t, outcomes[0].Terminate)
	assert.False(t, outcomes[1].Terminate)
}

func TestExecuteBatch_InvokeOverride(t *testing.T) {
	exec := newTestExecutor(false)
	exec.invoke = func(ctx context.Context, inv *Invocation) (any, error) {
		res, err := inv.Tool.Invoke(ctx, inv.Args)
		return []any{"wrapped", res}, err
	}
	outcomes, err := exec.executeBatch(context.Background(), calls("foo"), resolveTools([]Tool{returning("foo", 1)}), round{capture: true})
	require.NoError(t, err)
	assert.Equal(t, []any{"wrapped", 1}, outcomes[0].Result)
}

func TestExecuteBatch_Idempotent(t *testing.T) {
	table := resolveTools([]Tool{returning("foo", 42)})
	batch := calls("foo", "bar")
	exec := newTestExecutor(true)
	first, err := exec.executeBatch(context.Background(), batch, table, round{capture: true})
	require.NoError(t, err)
	second, err := exec.executeBatch(context.Background(), batch, table, round{capture: true})
	require.NoError(t, err)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Status, second[i].Status)
		assert.Equal(t, first[i].Result, second[i].Result)
	}
}

func TestOutcomeStatus_String(t *testing.T) {
	assert.Equal(t, "completed", StatusCompleted.String())
	assert.Equal(t, "tool_not_found", StatusToolNotFound.String())
	assert.Equal(t, "failed", StatusFailed.String())
}
