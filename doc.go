// Package toolloop runs the tool-calling loop of a streaming model session.
//
// # Overview
//
// A model backend streams server messages. When a response completes with tool calls, a Loop
// resolves the calls against the tools the request declared (plus optional supplementary tools),
// executes them, sends one result message per call followed by a single "continue" message into the
// same session, and keeps reading. To the caller the session looks like a model that calls functions
// on its own: every server message is still passed through, unchanged and in order.
//
// Pipeline: Session → Chain(WithLogging, WithToolLoop, ...) → Receive → for each completed response:
// resolve → execute (serial or concurrent) → build results → Send → next round.
//
// # Key concepts
//
//   - Tool / Invoker: a Tool is a declaration shown to the model; an Invoker also has a body.
//     A call to a declaration-only tool ends the loop and is left to the caller.
//   - Outcome: every call ends as Completed, ToolNotFound or Failed. Tool faults are contained per call
//     until WithMaxConsecutiveErrors rounds in a row failed; the next failing round ends the stream with
//     the first fault.
//   - Invocation: per-call metadata carried in the context (InvocationFrom). A tool may call
//     Invocation.Terminate to stop the loop after its round.
//   - Cancellation of the Receive context always ends the stream with the context error.
//
// # Example
//
//	type Args struct { City string `json:"city"` }
//	weather, err := toolloop.NewTool("weather", "Get weather", func(_ context.Context, a Args) (string, error) {
//	    return "22C in " + a.City, nil
//	})
//	if err != nil { ... }
//	session, err := toolloop.Chain(inner,
//	    toolloop.WithLogging(logger),
//	    toolloop.WithToolLoop(toolloop.WithAdditionalTools(weather), toolloop.WithConcurrentInvocation(true)),
//	)
//	if err != nil { ... }
//	for msg, err := range session.Receive(ctx) { ... }
package toolloop
