package toolloop

import (
	"fmt"

	"github.com/google/uuid"
)

// Payloads reported to the model for calls that did not complete.
const (
	functionFailedPayload = "Error: Function failed."
)

func notFoundPayload(name string) string {
	return fmt.Sprintf("Error: Requested function %q not found.", name)
}

// resultBuilder turns a round's outcomes into client messages.
type resultBuilder struct {
	detailedErrors bool
	transform      ResultTransform
}

// build returns one ClientToolResult per outcome, in order, followed by a single ClientResponseCreate.
// outcomes is never empty when called by the loop.
func (b resultBuilder) build(outcomes []Outcome) []ClientMessage {
	msgs := make([]ClientMessage, 0, len(outcomes)+1)
	for _, o := range outcomes {
		msgs = append(msgs, ClientMessage{
			ID:     uuid.NewString(),
			Type:   ClientToolResult,
			Result: b.result(o),
		})
	}
	msgs = append(msgs, ClientMessage{ID: uuid.NewString(), Type: ClientResponseCreate})
	return msgs
}

func (b resultBuilder) result(o Outcome) *ToolResult {
	r := &ToolResult{CallID: o.Call.ID, Name: o.Call.Name}
	switch o.Status {
	case StatusCompleted:
		if b.transform != nil {
			r.Output = b.transform(o)
		} else {
			r.Output = o.Result
		}
	case StatusToolNotFound:
		r.Output = notFoundPayload(o.Call.Name)
		r.IsError = true
		r.Err = fmt.Errorf("%w: %s", ErrToolNotFound, o.Call.Name)
	default:
		r.Output = b.failedPayload(o.Err)
		r.IsError = true
		r.Err = o.Err
	}
	return r
}

// failedPayload hides the error text unless detailed errors are enabled. ClientError reasons are
// written for the model and are always reported.
func (b resultBuilder) failedPayload(err error) string {
	if err == nil {
		return functionFailedPayload
	}
	if b.detailedErrors || IsClientError(err) {
		return functionFailedPayload + " Exception: " + err.Error()
	}
	return functionFailedPayload
}
