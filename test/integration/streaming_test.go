package integration

import (
	"net/http"
	"testing"

	"github.com/rhuss/homebrain/pkg/api"
)

func postStream(t *testing.T, path string, body any) []api.StreamEvent {
	t.Helper()
	resp := postJSON(t, testEnv.BaseURL()+path, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST %s: status %d: %s", path, resp.StatusCode, readBody(t, resp))
	}
	return readSSE(t, resp)
}

func lastEvent(t *testing.T, events []api.StreamEvent) api.StreamEvent {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("stream produced no events")
	}
	for i, ev := range events[:len(events)-1] {
		if ev.IsTerminal() {
			t.Fatalf("event %d (%s) is terminal but not last", i, ev.Type)
		}
	}
	return events[len(events)-1]
}

func TestStreamTokensThenDone(t *testing.T) {
	events := postStream(t, "/api/chat/stream", api.ChatRequest{Message: "stream this please"})

	if got := tokens(events); got != "Mock reply to: stream this please" {
		t.Errorf("tokens = %q", got)
	}
	if len(events) < 3 {
		t.Errorf("expected several token frames, got %d events", len(events))
	}

	done := lastEvent(t, events)
	if done.Type != api.EventDone {
		t.Fatalf("terminal event = %s, want done", done.Type)
	}
	if !api.ValidateThreadID(done.ThreadID) {
		t.Errorf("done carries thread id %q", done.ThreadID)
	}

	var state api.ConversationState
	decodeJSON(t, getURL(t, testEnv.BaseURL()+"/api/threads/"+done.ThreadID), &state)
	if state.FinalAnswer != "Mock reply to: stream this please" {
		t.Errorf("stored final answer = %q", state.FinalAnswer)
	}
}

func TestStreamToolLoop(t *testing.T) {
	events := postStream(t, "/api/chat/stream", api.ChatRequest{Message: "what time is it"})

	if got := tokens(events); got != "The current UTC time is 2026-03-01T12:00:00Z." {
		t.Errorf("tokens = %q", got)
	}
	if ev := lastEvent(t, events); ev.Type != api.EventDone {
		t.Errorf("terminal event = %s, want done", ev.Type)
	}
}

func TestStreamClarificationAndResume(t *testing.T) {
	events := postStream(t, "/api/chat/stream", api.ChatRequest{Message: "hmm what about that"})

	ev := lastEvent(t, events)
	if ev.Type != api.EventClarification || ev.Clarification == nil {
		t.Fatalf("terminal event = %+v, want clarification", ev)
	}
	if tokens(events) != "" {
		t.Errorf("suspended stream emitted tokens %q", tokens(events))
	}
	if ev.Clarification.OriginalText != "hmm what about that" {
		t.Errorf("original text = %q", ev.Clarification.OriginalText)
	}

	resumed := postStream(t, "/api/chat/resume", api.ResumeRequest{
		ThreadID: ev.ThreadID,
		Choice:   "projects",
		Stream:   true,
	})
	if got := tokens(resumed); got != "Mock reply to: hmm what about that" {
		t.Errorf("resumed tokens = %q", got)
	}
	if done := lastEvent(t, resumed); done.Type != api.EventDone || done.ThreadID != ev.ThreadID {
		t.Errorf("resume terminal = %+v", done)
	}

	var state api.ConversationState
	decodeJSON(t, getURL(t, testEnv.BaseURL()+"/api/threads/"+ev.ThreadID), &state)
	if state.Route != api.RouteProjects || state.Pending != nil {
		t.Errorf("route = %q, pending = %v", state.Route, state.Pending)
	}
}

func TestStreamBackendFailure(t *testing.T) {
	events := postStream(t, "/api/chat/stream", api.ChatRequest{Message: "stream a meltdown"})

	ev := lastEvent(t, events)
	if ev.Type != api.EventError {
		t.Fatalf("terminal event = %s, want error", ev.Type)
	}
	if ev.Message != "LLM call failed" {
		t.Errorf("message = %q", ev.Message)
	}
}
