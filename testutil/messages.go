package testutil

import (
	"github.com/skosovsky/toolloop"
)

// Call builds a call request.
func Call(id, name string, args map[string]any) toolloop.CallRequest {
	return toolloop.CallRequest{ID: id, Name: name, Args: args}
}

// Delta builds a streamed text message.
func Delta(responseID, text string) toolloop.ServerMessage {
	return toolloop.ServerMessage{
		Type:       toolloop.ServerResponseDelta,
		ResponseID: responseID,
		Items:      []toolloop.ContentItem{{Text: text}},
	}
}

// Done builds a response completion carrying calls.
func Done(responseID string, calls ...toolloop.CallRequest) toolloop.ServerMessage {
	items := make([]toolloop.ContentItem, 0, len(calls))
	for i := range calls {
		items = append(items, toolloop.ContentItem{Call: &calls[i]})
	}
	return toolloop.ServerMessage{
		Type:       toolloop.ServerResponseDone,
		ResponseID: responseID,
		Items:      items,
	}
}

// Text builds a response completion carrying only text.
func Text(responseID, text string) toolloop.ServerMessage {
	return toolloop.ServerMessage{
		Type:       toolloop.ServerResponseDone,
		ResponseID: responseID,
		Items:      []toolloop.ContentItem{{Text: text}},
	}
}
