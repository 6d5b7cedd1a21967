package testutil

import (
	"context"
	"iter"
	"slices"
	"sync"

	"github.com/skosovsky/toolloop"
)

// Session is a scripted toolloop.Session. Receive plays Rounds in order: the first round is
// streamed immediately, each following round only if a ClientResponseCreate message was sent
// while the previous one was streamed. Sent messages are recorded.
type Session struct {
	Rounds   [][]toolloop.ServerMessage
	Declared []toolloop.Tool
	Services toolloop.Services
	// SendErr, when set, is returned by every Send (the message is not recorded).
	SendErr error
	// ReceiveErr, when set, ends the stream after the last played message.
	ReceiveErr error

	mu   sync.Mutex
	sent []toolloop.ClientMessage
}

// NewSession returns a Session playing rounds.
func NewSession(rounds ...[]toolloop.ServerMessage) *Session {
	return &Session{Rounds: rounds}
}

// Send records msg.
func (s *Session) Send(ctx context.Context, msg toolloop.ClientMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

// Receive streams the scripted rounds.
func (s *Session) Receive(ctx context.Context) iter.Seq2[toolloop.ServerMessage, error] {
	return func(yield func(toolloop.ServerMessage, error) bool) {
		prev := 0
		for i, round := range s.Rounds {
			if i > 0 && s.Continuations() == prev {
				break
			}
			prev = s.Continuations()
			for _, msg := range round {
				if err := ctx.Err(); err != nil {
					yield(toolloop.ServerMessage{}, err)
					return
				}
				if !yield(msg, nil) {
					return
				}
			}
		}
		if s.ReceiveErr != nil {
			yield(toolloop.ServerMessage{}, s.ReceiveErr)
		}
	}
}

// Tools returns the declared tools.
func (s *Session) Tools() []toolloop.Tool { return s.Declared }

// Service looks up Services.
func (s *Session) Service(key any) (any, bool) {
	if s.Services == nil {
		return nil, false
	}
	return s.Services.Service(key)
}

// Sent returns a copy of the recorded messages.
func (s *Session) Sent() []toolloop.ClientMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent)
}

// Results returns the payloads of the recorded ClientToolResult messages.
func (s *Session) Results() []*toolloop.ToolResult {
	var out []*toolloop.ToolResult
	for _, m := range s.Sent() {
		if m.Type == toolloop.ClientToolResult {
			out = append(out, m.Result)
		}
	}
	return out
}

// Continuations returns the number of recorded ClientResponseCreate messages.
func (s *Session) Continuations() int {
	var n int
	for _, m := range s.Sent() {
		if m.Type == toolloop.ClientResponseCreate {
			n++
		}
	}
	return n
}
