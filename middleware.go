package toolloop

import (
	"context"
	"log/slog"
	"time"
)

// ToolMiddleware wraps an Invoker with cross-cutting behavior (logging, recovery, timeout).
type ToolMiddleware func(Invoker) Invoker

// WithToolLogging returns a middleware that logs start, end, duration, and errors of each invocation.
func WithToolLogging(logger *slog.Logger) ToolMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Invoker) Invoker {
		return &loggingTool{toolBase: toolBase{next: next}, logger: logger}
	}
}

// WithRecovery returns a middleware that recovers panics and returns SystemError.
func WithRecovery() ToolMiddleware {
	return func(next Invoker) Invoker {
		return &recoveryTool{toolBase{next: next}}
	}
}

// WithTimeoutMiddleware returns a middleware that enforces a per-tool timeout. Named with "Middleware" suffix
// to avoid collision with ToolOption WithTimeout. A deadline hit inside the tool is reported as ErrTimeout.
func WithTimeoutMiddleware(d time.Duration) ToolMiddleware {
	return func(next Invoker) Invoker {
		return &timeoutTool{toolBase: toolBase{next: next}, timeout: d}
	}
}

// toolBase delegates Tool and ToolMetadata to the wrapped Invoker; used by middleware wrappers.
type toolBase struct{ next Invoker }

func (b *toolBase) Name() string               { return b.next.Name() }
func (b *toolBase) Description() string        { return b.next.Description() }
func (b *toolBase) Parameters() map[string]any { return b.next.Parameters() }

func (b *toolBase) Timeout() time.Duration {
	if tm, ok := b.next.(ToolMetadata); ok {
		return tm.Timeout()
	}
	return 0
}

func (b *toolBase) Tags() []string {
	if tm, ok := b.next.(ToolMetadata); ok {
		return tm.Tags()
	}
	return nil
}

type loggingTool struct {
	toolBase
	logger *slog.Logger
}

func (m *loggingTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	attrs := []any{"tool", m.next.Name()}
	if inv := InvocationFrom(ctx); inv != nil {
		attrs = append(attrs, "call_id", inv.Call.ID, "iteration", inv.Iteration)
	}
	m.logger.InfoContext(ctx, "tool start", attrs...)
	start := time.Now()
	res, err := m.next.Invoke(ctx, args)
	attrs = append(attrs, "duration", time.Since(start))
	if err != nil {
		m.logger.ErrorContext(ctx, "tool error", append(attrs, "error", err)...)
		return nil, err
	}
	m.logger.InfoContext(ctx, "tool end", attrs...)
	return res, nil
}

type recoveryTool struct{ toolBase }

func (r *recoveryTool) Invoke(ctx context.Context, args map[string]any) (res any, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = &SystemError{Err: &panicError{p: p}}
		}
	}()
	return r.next.Invoke(ctx, args)
}

type timeoutTool struct {
	toolBase
	timeout time.Duration
}

func (t *timeoutTool) Timeout() time.Duration {
	if t.timeout > 0 {
		return t.timeout
	}
	return t.toolBase.Timeout()
}

func (t *timeoutTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	if t.timeout <= 0 {
		return t.next.Invoke(ctx, args)
	}
	return invokeWithTimeout(ctx, t.timeout, func(ctx context.Context) (any, error) {
		return t.next.Invoke(ctx, args)
	})
}

// invokeWithTimeout runs fn under a derived deadline. When the derived deadline (and not the
// parent context) expired, the error is reported as ErrTimeout wrapping the original error.
func invokeWithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) (any, error)) (any, error) {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	res, err := fn(tctx)
	if err != nil && ctx.Err() == nil && tctx.Err() != nil {
		return nil, &timeoutError{err: err}
	}
	return res, err
}

type timeoutError struct{ err error }

func (e *timeoutError) Error() string { return ErrTimeout.Error() + ": " + e.err.Error() }

func (e *timeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *timeoutError) Unwrap() error { return e.err }
