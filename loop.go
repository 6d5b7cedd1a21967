package toolloop

import (
	"context"
	"iter"
	"log/slog"
)

// Loop is a Session decorator that executes the tool calls requested by the backend and feeds
// the results back into the same session, round after round, until the model stops calling
// tools or a stop condition fires. Every inbound message is passed through to the caller unchanged
// and before any call it carries is executed.
//
// A Loop is safe to share between goroutines, but each Receive drives its own request: iteration
// and consecutive-error counters start from zero on every call to Receive.
type Loop struct {
	inner   Session
	opts    loopOptions
	logger  *slog.Logger
	results resultBuilder
}

// NewLoop wraps inner with the tool loop. It fails with ErrMisconfigured when inner is nil or an
// option value is invalid.
func NewLoop(inner Session, opts ...Option) (*Loop, error) {
	if inner == nil {
		return nil, misconfigured("inner session is nil")
	}
	o := defaultLoopOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		inner:   inner,
		opts:    o,
		logger:  logger,
		results: resultBuilder{detailedErrors: o.detailedErrors, transform: o.transform},
	}, nil
}

// WithToolLoop returns a Middleware installing a Loop.
func WithToolLoop(opts ...Option) Middleware {
	return func(next Session) (Session, error) {
		return NewLoop(next, opts...)
	}
}

// Send forwards msg to the inner session.
func (l *Loop) Send(ctx context.Context, msg ClientMessage) error {
	return l.inner.Send(ctx, msg)
}

// Tools returns the inner session's declared tools.
func (l *Loop) Tools() []Tool { return l.inner.Tools() }

// Service forwards to the inner session.
func (l *Loop) Service(key any) (any, bool) { return l.inner.Service(key) }

// loopState is owned by a single Receive run and only touched between rounds.
type loopState struct {
	iteration         int
	consecutiveErrors int
}

// Receive streams the inner session's messages and runs the tool loop as a side effect.
// The sequence ends with an error when ctx is cancelled, when the inner stream fails, when injecting
// results fails, or when the consecutive-error budget is exhausted; in that last case the error is
// the first tool fault of the failing round. A policy stop (declaration-only tool, unknown tool with
// WithTerminateOnUnknownCalls, or a tool calling Invocation.Terminate) ends the sequence without error.
func (l *Loop) Receive(ctx context.Context) iter.Seq2[ServerMessage, error] {
	return func(yield func(ServerMessage, error) bool) {
		var st loopState
		exec := &executor{
			invoke:     l.opts.invoke,
			concurrent: l.opts.concurrent,
			services:   l.inner,
			tracer:     resolveTracer(l.opts.tracerProvider, l.inner),
			logger:     l.logger,
		}
		for msg, err := range l.inner.Receive(ctx) {
			if err != nil {
				yield(ServerMessage{}, err)
				return
			}
			if !yield(msg, nil) {
				return
			}
			if msg.Type != ServerResponseDone {
				continue
			}
			// A new completion always defines a new batch.
			batch := msg.Calls()
			if len(batch) == 0 {
				continue
			}
			if err := ctx.Err(); err != nil {
				yield(ServerMessage{}, err)
				return
			}
			stop, err := l.round(ctx, exec, &st, msg, batch)
			if err != nil {
				yield(ServerMessage{}, err)
				return
			}
			if stop {
				return
			}
		}
	}
}

// round runs one batch. It reports stop when the stream must end after this message.
func (l *Loop) round(ctx context.Context, exec *executor, st *loopState, msg ServerMessage, batch []CallRequest) (bool, error) {
	if st.iteration >= l.opts.maxIterations {
		l.logger.WarnContext(ctx, "maximum iterations reached, calls left to the caller",
			"max_iterations", l.opts.maxIterations, "calls", len(batch), "response_id", msg.ResponseID)
		return false, nil
	}

	table := resolveTools(l.inner.Tools(), l.supplementary()...)
	if reason := table.terminationReason(batch, l.opts.terminateOnUnknown); reason != "" {
		l.logger.InfoContext(ctx, "tool loop terminated", "reason", reason, "iteration", st.iteration)
		return true, nil
	}

	st.iteration++
	// Capture stays on while the budget allows another failing round. Once it is spent the
	// round runs uncaptured and its first fault ends the stream.
	capture := st.consecutiveErrors < l.opts.maxConsecutiveErrors
	ctx, span := startRoundSpan(ctx, exec.tracer, msg, st.iteration, len(batch), l.opts.concurrent)
	outcomes, err := exec.executeBatch(ctx, batch, table, round{iteration: st.iteration, capture: capture})
	if err != nil {
		if !capture && ctx.Err() == nil {
			l.logger.ErrorContext(ctx, "consecutive error budget exceeded",
				"max_consecutive_errors", l.opts.maxConsecutiveErrors, "iteration", st.iteration, "error", err)
		} else {
			l.logger.ErrorContext(ctx, "tool loop aborted", "iteration", st.iteration, "error", err)
		}
		endSpan(span, err)
		return true, err
	}
	// Tools may complete after the caller gave up; nothing is injected then.
	if err := ctx.Err(); err != nil {
		endSpan(span, err)
		return true, err
	}

	failed := countFailures(outcomes)
	span.SetAttributes(attrFailedCalls.Int(failed))
	if failed > 0 {
		st.consecutiveErrors++
	} else {
		st.consecutiveErrors = 0
	}

	if terminationRequested(outcomes) {
		l.logger.InfoContext(ctx, "tool loop terminated", "reason", "requested by tool", "iteration", st.iteration)
		endSpan(span, nil)
		return true, nil
	}

	for _, m := range l.results.build(outcomes) {
		if err := l.inner.Send(ctx, m); err != nil {
			endSpan(span, err)
			return true, err
		}
	}
	endSpan(span, nil)
	return false, nil
}

// supplementary returns the tools consulted for names the request does not declare.
func (l *Loop) supplementary() [][]Tool {
	out := make([][]Tool, 0, len(l.opts.sources)+1)
	if len(l.opts.additional) > 0 {
		out = append(out, l.opts.additional)
	}
	for _, src := range l.opts.sources {
		out = append(out, src.Tools())
	}
	return out
}

// countFailures returns the number of failed outcomes.
func countFailures(outcomes []Outcome) int {
	var failed int
	for _, o := range outcomes {
		if o.Status == StatusFailed {
			failed++
		}
	}
	return failed
}

func terminationRequested(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Terminate {
			return true
		}
	}
	return false
}

var _ Session = (*Loop)(nil)
