package toolloop

import (
	"context"
	"iter"
	"log/slog"
	"time"
)

// Middleware wraps a Session with another handler implementing the same interface
// (tool loop, logging, tracing...). It fails when it cannot be built on top of next.
type Middleware func(next Session) (Session, error)

// Chain builds a pipeline over inner. The first middleware is outermost: it sees the caller's
// calls first and the inner session's messages last. A nil middleware or a middleware returning
// a nil session is a configuration error reported before any message flows.
func Chain(inner Session, middlewares ...Middleware) (Session, error) {
	if inner == nil {
		return nil, misconfigured("inner session is nil")
	}
	s := inner
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		if mw == nil {
			return nil, misconfigured("middleware %d is nil", i)
		}
		next, err := mw(s)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, misconfigured("middleware %d returned a nil session", i)
		}
		s = next
	}
	return s, nil
}

// WithLogging returns a pass-through middleware that logs traffic of the wrapped session.
// Message-level events are logged at debug level, failures at error level.
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Session) (Session, error) {
		if next == nil {
			return nil, misconfigured("inner session is nil")
		}
		return &loggingSession{next: next, logger: logger}, nil
	}
}

type loggingSession struct {
	next   Session
	logger *slog.Logger
}

func (s *loggingSession) Send(ctx context.Context, msg ClientMessage) error {
	attrs := []any{"type", msg.Type.String(), "id", msg.ID}
	if msg.Result != nil {
		attrs = append(attrs, "call_id", msg.Result.CallID, "tool", msg.Result.Name, "is_error", msg.Result.IsError)
	}
	if err := s.next.Send(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "session send failed", append(attrs, "error", err)...)
		return err
	}
	s.logger.DebugContext(ctx, "session send", attrs...)
	return nil
}

func (s *loggingSession) Receive(ctx context.Context) iter.Seq2[ServerMessage, error] {
	return func(yield func(ServerMessage, error) bool) {
		start := time.Now()
		var count int
		for msg, err := range s.next.Receive(ctx) {
			if err != nil {
				s.logger.ErrorContext(ctx, "session receive failed", "messages", count, "duration", time.Since(start), "error", err)
				yield(msg, err)
				return
			}
			count++
			s.logger.DebugContext(ctx, "session receive", "type", msg.Type.String(), "response_id", msg.ResponseID, "calls", len(msg.Calls()))
			if !yield(msg, nil) {
				return
			}
		}
		s.logger.DebugContext(ctx, "session stream ended", "messages", count, "duration", time.Since(start))
	}
}

func (s *loggingSession) Tools() []Tool { return s.next.Tools() }

func (s *loggingSession) Service(key any) (any, bool) { return s.next.Service(key) }
