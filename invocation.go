package toolloop

import (
	"context"
	"sync/atomic"
)

// Invocation describes one call being executed. A fresh Invocation is created per call and
// carried in the call's context, so tools (and anything they call) can inspect their own call
// metadata with InvocationFrom. Concurrent calls never share an Invocation.
type Invocation struct {
	Call      CallRequest
	Tool      Invoker
	Args      map[string]any
	Services  ServiceProvider
	Iteration int // 1-based round number
	Index     int // position of the call in its batch
	Count     int // size of the batch

	terminate atomic.Bool
}

// Terminate asks the loop to stop after the current round. The round's results are not sent;
// the caller receives the stream up to this point and handles the remaining conversation.
func (inv *Invocation) Terminate() { inv.terminate.Store(true) }

// Terminated reports whether Terminate was called.
func (inv *Invocation) Terminated() bool { return inv.terminate.Load() }

type invocationKey struct{}

// WithInvocation returns a copy of ctx carrying inv.
func WithInvocation(ctx context.Context, inv *Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

// InvocationFrom returns the invocation carried by ctx, or nil outside a tool call.
func InvocationFrom(ctx context.Context) *Invocation {
	inv, _ := ctx.Value(invocationKey{}).(*Invocation)
	return inv
}
