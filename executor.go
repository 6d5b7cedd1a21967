package toolloop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// OutcomeStatus is the status of one call after a round.
type OutcomeStatus int

const (
	StatusCompleted OutcomeStatus = iota
	StatusToolNotFound
	StatusFailed
)

func (s OutcomeStatus) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusToolNotFound:
		return "tool_not_found"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of attempting (or declining) one call. Result is set for StatusCompleted,
// Err for StatusFailed. Terminate is true when the tool asked the loop to stop.
type Outcome struct {
	Call      CallRequest
	Status    OutcomeStatus
	Result    any
	Err       error
	Terminate bool
}

// executor runs the calls of one round against the round's ToolTable.
type executor struct {
	invoke     InvokeFunc
	concurrent bool
	services   ServiceProvider
	tracer     trace.Tracer
	logger     *slog.Logger
}

// round carries the per-round inputs of executeBatch.
type round struct {
	iteration int
	// capture turns tool faults into StatusFailed outcomes. When false the first fault aborts
	// the batch and is returned.
	capture bool
}

// executeBatch returns one outcome per call, in batch order. The returned error is non-nil when ctx
// was cancelled during the batch or, with capture disabled, when a call failed.
func (e *executor) executeBatch(ctx context.Context, batch []CallRequest, table ToolTable, r round) ([]Outcome, error) {
	outcomes := make([]Outcome, len(batch))
	if e.concurrent && len(batch) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i, call := range batch {
			g.Go(func() error {
				out, err := e.invokeOne(ctx, gctx, call, table.Resolve(call.Name), i, len(batch), r)
				if err != nil {
					return err
				}
				outcomes[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return outcomes, nil
	}
	for i, call := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := e.invokeOne(ctx, ctx, call, table.Resolve(call.Name), i, len(batch), r)
		if err != nil {
			return nil, err
		}
		outcomes[i] = out
	}
	return outcomes, nil
}

// invokeOne executes a single call. parent is the loop context used to tell caller cancellation apart
// from a tool's own cancellation; ctx is the context the tool runs under.
func (e *executor) invokeOne(parent, ctx context.Context, call CallRequest, res Resolution, index, count int, r round) (Outcome, error) {
	switch res.Kind {
	case ToolUnknown:
		e.logger.DebugContext(ctx, "tool not found", "tool", call.Name, "call_id", call.ID)
		return Outcome{Call: call, Status: StatusToolNotFound}, nil
	case ToolDeclarationOnly:
		err := fmt.Errorf("%w: %s", ErrDeclarationOnly, call.Name)
		if !r.capture {
			return Outcome{}, err
		}
		return Outcome{Call: call, Status: StatusFailed, Err: err}, nil
	}

	inv := &Invocation{
		Call:      call,
		Tool:      res.Invoker,
		Args:      call.Args,
		Services:  e.services,
		Iteration: r.iteration,
		Index:     index,
		Count:     count,
	}
	if inv.Args == nil {
		inv.Args = map[string]any{}
	}
	ctx = WithInvocation(ctx, inv)
	ctx, span := startToolSpan(ctx, e.tracer, call)

	e.logger.DebugContext(ctx, "invoking tool", "tool", call.Name, "call_id", call.ID, "iteration", r.iteration)
	start := time.Now()
	result, err := e.call(ctx, inv)
	dur := time.Since(start)
	endSpan(span, err)

	if err != nil {
		if perr := parent.Err(); perr != nil {
			return Outcome{}, perr
		}
		e.logger.DebugContext(ctx, "tool failed", "tool", call.Name, "call_id", call.ID, "duration", dur, "error", err)
		if !r.capture {
			return Outcome{}, err
		}
		return Outcome{Call: call, Status: StatusFailed, Err: err, Terminate: inv.Terminated()}, nil
	}
	e.logger.DebugContext(ctx, "tool completed", "tool", call.Name, "call_id", call.ID, "duration", dur)
	return Outcome{Call: call, Status: StatusCompleted, Result: result, Terminate: inv.Terminated()}, nil
}

// call runs the configured InvokeFunc with the tool's own timeout and panic recovery.
func (e *executor) call(ctx context.Context, inv *Invocation) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = &SystemError{Err: &panicError{p: p}}
		}
	}()
	invoke := e.invoke
	if invoke == nil {
		invoke = defaultInvoke
	}
	if tm, ok := inv.Tool.(ToolMetadata); ok && tm.Timeout() > 0 {
		return invokeWithTimeout(ctx, tm.Timeout(), func(ctx context.Context) (any, error) {
			return invoke(ctx, inv)
		})
	}
	return invoke(ctx, inv)
}

func defaultInvoke(ctx context.Context, inv *Invocation) (any, error) {
	return inv.Tool.Invoke(ctx, inv.Args)
}
