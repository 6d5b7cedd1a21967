package toolloop

import (
	"context"
	"iter"
	"reflect"
)

// Tool is the contract for anything a request can declare to the model.
// A Tool that does not also implement Invoker is declaration-only: the model may call it,
// but the loop hands such calls back to the caller instead of executing them.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns a valid JSON Schema as map (compatible with LLM tool definitions).
	Parameters() map[string]any
}

// Invoker is a Tool with an execution body in this process.
type Invoker interface {
	Tool
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// ToolSource supplies tools on demand. It is read once per round, so a source that changes
// between rounds (e.g. a Registry with late registrations) is picked up by the next round.
type ToolSource interface {
	Tools() []Tool
}

// ToolList is a fixed ToolSource.
type ToolList []Tool

// Tools returns the list itself.
func (l ToolList) Tools() []Tool { return l }

// CallRequest is a single tool call produced by the model inside a completed response.
type CallRequest struct {
	ID   string
	Name string
	Args map[string]any
}

// ServerMessageType classifies inbound messages. Only ServerResponseDone is inspected for calls.
type ServerMessageType int

const (
	ServerOther ServerMessageType = iota
	ServerResponseCreated
	ServerResponseDelta
	ServerResponseDone
	ServerError
)

func (t ServerMessageType) String() string {
	switch t {
	case ServerResponseCreated:
		return "response.created"
	case ServerResponseDelta:
		return "response.delta"
	case ServerResponseDone:
		return "response.done"
	case ServerError:
		return "error"
	default:
		return "other"
	}
}

// ContentItem is one item of a server message. Exactly one of Text or Call is meaningful.
type ContentItem struct {
	Text string
	Call *CallRequest
}

// ServerMessage is a message received from the backend. Raw keeps the transport's own value
// so decorators can pass through fields this package does not model.
type ServerMessage struct {
	Type       ServerMessageType
	ResponseID string
	Items      []ContentItem
	Err        error // set for ServerError
	Raw        any
}

// Calls returns the call requests carried by the message, in item order.
func (m ServerMessage) Calls() []CallRequest {
	var calls []CallRequest
	for _, item := range m.Items {
		if item.Call != nil {
			calls = append(calls, *item.Call)
		}
	}
	return calls
}

// ClientMessageType classifies outbound messages.
type ClientMessageType int

const (
	ClientOther ClientMessageType = iota
	ClientToolResult
	ClientResponseCreate
)

func (t ClientMessageType) String() string {
	switch t {
	case ClientToolResult:
		return "tool.result"
	case ClientResponseCreate:
		return "response.create"
	default:
		return "other"
	}
}

// ClientMessage is a message sent to the backend through Session.Send.
type ClientMessage struct {
	ID     string
	Type   ClientMessageType
	Result *ToolResult // set for ClientToolResult
	Raw    any
}

// ToolResult is the payload of a ClientToolResult message. Err is the original fault for local
// inspection; it is never serialized and never sent to the model.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Output  any    `json:"output"`
	IsError bool   `json:"is_error,omitempty"`
	Err     error  `json:"-"`
}

// ServiceProvider looks up ambient services (tracer provider, clients, ...) by key.
// By convention the key is the reflect.Type of the service; see Lookup.
type ServiceProvider interface {
	Service(key any) (any, bool)
}

// Session is a bidirectional streaming session with a model backend.
type Session interface {
	ServiceProvider
	// Send injects one client message into the session.
	Send(ctx context.Context, msg ClientMessage) error
	// Receive streams server messages until the response stream ends, ctx is done or an error occurs.
	// An error ends the sequence.
	Receive(ctx context.Context) iter.Seq2[ServerMessage, error]
	// Tools returns the tools declared by the current request.
	Tools() []Tool
}

// Lookup returns the service registered under the type T.
func Lookup[T any](sp ServiceProvider) (T, bool) {
	var zero T
	if sp == nil {
		return zero, false
	}
	v, ok := sp.Service(reflect.TypeFor[T]())
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Services is a simple ServiceProvider backed by a map keyed by reflect.Type.
type Services map[reflect.Type]any

// Service implements ServiceProvider.
func (s Services) Service(key any) (any, bool) {
	t, ok := key.(reflect.Type)
	if !ok {
		return nil, false
	}
	v, ok := s[t]
	return v, ok
}

// Provide registers v under the type T.
func Provide[T any](s Services, v T) {
	s[reflect.TypeFor[T]()] = v
}
