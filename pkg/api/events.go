package api

// StreamEventType identifies the kind of a streaming event.
type StreamEventType string

const (
	EventToken         StreamEventType = "token"
	EventDone          StreamEventType = "done"
	EventError         StreamEventType = "error"
	EventClarification StreamEventType = "clarification"
)

// StreamEvent is one frame of a streamed turn.
type StreamEvent struct {
	Type          StreamEventType       `json:"type"`
	Data          string                `json:"data,omitempty"`
	ThreadID      string                `json:"thread_id,omitempty"`
	Message       string                `json:"message,omitempty"`
	Clarification *PendingClarification `json:"clarification,omitempty"`
}

// IsTerminal reports whether the event ends a stream.
func (e StreamEvent) IsTerminal() bool {
	switch e.Type {
	case EventDone, EventError, EventClarification:
		return true
	}
	return false
}

// TokenEvent builds a token frame.
func TokenEvent(data string) StreamEvent {
	return StreamEvent{Type: EventToken, Data: data}
}

// DoneEvent builds the success terminal frame.
func DoneEvent(threadID string) StreamEvent {
	return StreamEvent{Type: EventDone, ThreadID: threadID}
}

// ErrorEvent builds the failure terminal frame.
func ErrorEvent(threadID, message string) StreamEvent {
	return StreamEvent{Type: EventError, ThreadID: threadID, Message: message}
}

// ClarificationEvent builds the suspend terminal frame.
func ClarificationEvent(threadID string, p *PendingClarification) StreamEvent {
	return StreamEvent{Type: EventClarification, ThreadID: threadID, Clarification: p}
}

// TurnResult is the outcome of a synchronous turn or resume.
type TurnResult struct {
	ThreadID      string
	Reply         string
	Decision      RouteDecision
	MessageCount  int
	History       []Message
	Clarification *PendingClarification
}

// Suspended reports whether the turn paused for clarification.
func (r *TurnResult) Suspended() bool {
	return r.Clarification != nil
}
