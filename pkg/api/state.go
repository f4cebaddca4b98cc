package api

import (
	"fmt"
	"time"
)

// Route is the closed set of destinations the router may choose.
type Route string

const (
	RoutePersonal Route = "personal"
	RouteProjects Route = "projects"
	RouteHomelab  Route = "homelab"
	RouteGeneral  Route = "general"

	// DefaultRoute receives anything the router cannot place.
	DefaultRoute = RouteGeneral
)

// Routes lists every valid route in presentation order.
func Routes() []Route {
	return []Route{RoutePersonal, RouteProjects, RouteHomelab, RouteGeneral}
}

// IsValid reports whether r is a member of the closed route set.
func (r Route) IsValid() bool {
	switch r {
	case RoutePersonal, RouteProjects, RouteHomelab, RouteGeneral:
		return true
	}
	return false
}

// ParseRoute maps arbitrary input to a route. Anything outside the closed
// set maps to DefaultRoute.
func ParseRoute(s string) Route {
	r := Route(s)
	if r.IsValid() {
		return r
	}
	return DefaultRoute
}

// RouteDecision is the router's verdict for one turn.
type RouteDecision struct {
	Route            Route   `json:"route"`
	Confidence       float64 `json:"confidence"`
	Reason           string  `json:"reason"`
	NeedsHumanReview bool    `json:"needs_human_review"`
}

// ClampConfidence restricts c to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0 || c != c:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// PendingClarification is persisted while a thread waits for the caller to
// pick a route.
type PendingClarification struct {
	Prompt       string    `json:"prompt"`
	Options      []Route   `json:"options"`
	OriginalText string    `json:"original_text"`
	CreatedAt    time.Time `json:"created_at"`
}

// ConversationState is the versioned per-thread record.
type ConversationState struct {
	ThreadID string    `json:"thread_id"`
	Version  int64     `json:"version"`
	Messages []Message `json:"messages"`

	Route            Route   `json:"route,omitempty"`
	RouteConfidence  float64 `json:"route_confidence"`
	RouteReason      string  `json:"route_reason,omitempty"`
	NeedsHumanReview bool    `json:"needs_human_review"`

	ToolResults []ToolResultRecord    `json:"tool_results,omitempty"`
	Pending     *PendingClarification `json:"pending,omitempty"`

	FinalAnswer       string `json:"final_answer,omitempty"`
	FinalMessageCount int    `json:"final_message_count,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToolResultRecord caches one tool output produced during the last dispatch.
type ToolResultRecord struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error,omitempty"`
}

// NewConversationState returns an empty state for a new thread.
func NewConversationState(threadID string, now time.Time) *ConversationState {
	return &ConversationState{
		ThreadID:  threadID,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ApplyDecision records the routing scalars, clamping confidence.
func (s *ConversationState) ApplyDecision(d RouteDecision) {
	s.Route = d.Route
	s.RouteConfidence = ClampConfidence(d.Confidence)
	s.RouteReason = d.Reason
	s.NeedsHumanReview = d.NeedsHumanReview
}

// Decision returns the routing scalars as a RouteDecision.
func (s *ConversationState) Decision() RouteDecision {
	return RouteDecision{
		Route:            s.Route,
		Confidence:       s.RouteConfidence,
		Reason:           s.RouteReason,
		NeedsHumanReview: s.NeedsHumanReview,
	}
}

// Suspended reports whether the thread waits on a clarification.
func (s *ConversationState) Suspended() bool {
	return s.Pending != nil
}

// Summary returns the listing view of the state.
func (s *ConversationState) Summary() ThreadSummary {
	return ThreadSummary{
		ThreadID:     s.ThreadID,
		Route:        s.Route,
		MessageCount: len(s.Messages),
		Suspended:    s.Suspended(),
		UpdatedAt:    s.UpdatedAt.Unix(),
	}
}

// Clone returns a deep copy so stores never share slices with callers.
// Nil and empty slices are preserved as they are.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := *s
	if s.Messages != nil {
		c.Messages = make([]Message, len(s.Messages))
		for i, m := range s.Messages {
			c.Messages[i] = m.Clone()
		}
	}
	c.ToolResults = cloneSlice(s.ToolResults)
	if s.Pending != nil {
		p := *s.Pending
		p.Options = cloneSlice(s.Pending.Options)
		c.Pending = &p
	}
	return &c
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	c := m
	c.Content = cloneSlice(m.Content)
	c.ToolCalls = cloneSlice(m.ToolCalls)
	return c
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// RouterPhase is the router's position in its small state machine.
type RouterPhase string

const (
	PhaseClassifying           RouterPhase = "classifying"
	PhaseAwaitingClarification RouterPhase = "awaiting_clarification"
	PhaseResolved              RouterPhase = "resolved"
)

// ValidatePhaseTransition checks whether a router phase transition is valid.
// Resolved is terminal; AwaitingClarification only leaves on resume.
func ValidatePhaseTransition(from, to RouterPhase) error {
	valid := map[RouterPhase][]RouterPhase{
		PhaseClassifying:           {PhaseAwaitingClarification, PhaseResolved},
		PhaseAwaitingClarification: {PhaseResolved},
		PhaseResolved:              {},
	}

	for _, p := range valid[from] {
		if p == to {
			return nil
		}
	}
	return fmt.Errorf("invalid router transition from %q to %q", from, to)
}
