package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/engine"
	"github.com/rhuss/homebrain/pkg/generator/generatortest"
	"github.com/rhuss/homebrain/pkg/storage"
	"github.com/rhuss/homebrain/pkg/storage/memory"
	"github.com/rhuss/homebrain/pkg/transport"
)

const testThreadID = "6f1c1d3e-2b7a-4c55-9a43-0d7a1f3b9e21"

func decision(route string, conf float64) generatortest.Structured {
	return generatortest.JSON(map[string]any{
		"route": route, "confidence": conf, "reason": "test", "needs_human_review": false,
	})
}

func newEngineAdapter(t *testing.T, gen *generatortest.Fake) (*Adapter, *memory.Store) {
	t.Helper()
	store := memory.New(0)
	cfg := engine.DefaultConfig()
	cfg.RouterRetryBackoff = time.Millisecond
	eng, err := engine.New(gen, store, cfg)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return NewAdapter(eng, store, DefaultConfig(), transport.Recovery(), transport.RequestID()), store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

// mockRunner is a configurable TurnRunner for testing.
type mockRunner struct {
	runTurn       func(ctx context.Context, threadID, text string) (*api.TurnResult, error)
	runTurnStream func(ctx context.Context, threadID, text string, w transport.EventWriter) (string, error)
}

func (m *mockRunner) RunTurn(ctx context.Context, threadID, text string) (*api.TurnResult, error) {
	return m.runTurn(ctx, threadID, text)
}

func (m *mockRunner) RunTurnStream(ctx context.Context, threadID, text string, w transport.EventWriter) (string, error) {
	return m.runTurnStream(ctx, threadID, text, w)
}

func (m *mockRunner) Resume(context.Context, string, string) (*api.TurnResult, error) {
	return nil, api.ErrNoPendingClarification
}

func (m *mockRunner) ResumeStream(context.Context, string, string, transport.EventWriter) error {
	return api.ErrNoPendingClarification
}

func TestChat_Completed(t *testing.T) {
	gen := generatortest.New(generatortest.Text("Mostly Go.")).WithStructured(decision("projects", 0.9))
	a, _ := newEngineAdapter(t, gen)

	rec := do(t, a.Handler(), "POST", "/api/chat", `{"message":"what is the blog written in"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	resp := decodeBody[api.ChatResponse](t, rec)
	if resp.Reply != "Mostly Go." || resp.Route != api.RouteProjects {
		t.Errorf("response = %+v", resp)
	}
	if !api.ValidateThreadID(resp.ThreadID) {
		t.Errorf("thread_id = %q", resp.ThreadID)
	}
	if len(resp.History) != 2 || resp.History[0].Role != api.RoleUser {
		t.Errorf("history = %+v", resp.History)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestChat_SuspendedThenResume(t *testing.T) {
	gen := generatortest.New(generatortest.Text("The NAS runs ZFS.")).WithStructured(decision("general", 0.2))
	a, _ := newEngineAdapter(t, gen)
	h := a.Handler()

	rec := do(t, h, "POST", "/api/chat", `{"thread_id":"`+testThreadID+`","message":"what about storage"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	resp := decodeBody[api.ChatResponse](t, rec)
	if resp.Clarification == nil || resp.Clarification.OriginalText != "what about storage" || resp.Reply != "" {
		t.Fatalf("response = %+v", resp)
	}

	rec = do(t, h, "POST", "/api/chat/resume", `{"thread_id":"`+testThreadID+`","choice":"homelab"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d, body = %s", rec.Code, rec.Body)
	}
	resp = decodeBody[api.ChatResponse](t, rec)
	if resp.Reply != "The NAS runs ZFS." || resp.Route != api.RouteHomelab {
		t.Errorf("resume response = %+v", resp)
	}
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantType   api.ErrorType
		wantMsg    string
	}{
		{"empty message", "POST", "/api/chat", `{"message":"   "}`, 400, api.ErrorTypeInvalidRequest, "Empty message is not allowed."},
		{"invalid json", "POST", "/api/chat", `{"message":`, 400, api.ErrorTypeInvalidRequest, "invalid JSON"},
		{"bad thread id", "POST", "/api/chat", `{"thread_id":"nope","message":"hi"}`, 400, api.ErrorTypeInvalidRequest, "UUID"},
		{"resume unknown thread", "POST", "/api/chat/resume", `{"thread_id":"` + testThreadID + `","choice":"general"}`, 404, api.ErrorTypeNotFound, "not found"},
		{"resume missing thread id", "POST", "/api/chat/resume", `{"choice":"general"}`, 400, api.ErrorTypeInvalidRequest, "thread_id"},
		{"get malformed id", "GET", "/api/threads/abc", "", 400, api.ErrorTypeInvalidRequest, "malformed"},
		{"get unknown thread", "GET", "/api/threads/" + testThreadID, "", 404, api.ErrorTypeNotFound, "not found"},
		{"delete unknown thread", "DELETE", "/api/threads/" + testThreadID, "", 404, api.ErrorTypeNotFound, "not found"},
		{"cancel without stream", "DELETE", "/api/chat/stream/" + testThreadID, "", 404, api.ErrorTypeNotFound, "no active stream"},
		{"bad list order", "GET", "/api/threads?order=sideways", "", 400, api.ErrorTypeInvalidRequest, "order"},
		{"bad list limit", "GET", "/api/threads?limit=0", "", 400, api.ErrorTypeInvalidRequest, "limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newEngineAdapter(t, generatortest.New())
			rec := do(t, a.Handler(), tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantStatus, rec.Body)
			}
			resp := decodeBody[api.ErrorResponse](t, rec)
			if resp.Error.Type != tt.wantType || !strings.Contains(resp.Error.Message, tt.wantMsg) {
				t.Errorf("error = %+v", resp.Error)
			}
		})
	}
}

func TestChat_ContentTypeAndSize(t *testing.T) {
	a, _ := newEngineAdapter(t, generatortest.New())

	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("content type status = %d", rec.Code)
	}

	big := `{"message":"` + strings.Repeat("x", 2<<20) + `"}`
	rec = do(t, a.Handler(), "POST", "/api/chat", big)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("body size status = %d", rec.Code)
	}
}

func TestChat_RunnerErrorsMapped(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"no reply", api.ErrNoReply, http.StatusBadGateway, "No assistant reply found"},
		{"internal", errors.New("dial tcp: refused"), http.StatusInternalServerError, "LLM call failed"},
		{"conflict", errors.Join(errors.New("save"), storage.ErrConflict), http.StatusConflict, "concurrent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{runTurn: func(context.Context, string, string) (*api.TurnResult, error) {
				return nil, tt.err
			}}
			a := NewAdapter(runner, memory.New(0), DefaultConfig())
			rec := do(t, a.Handler(), "POST", "/api/chat", `{"message":"hi"}`)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantMsg) {
				t.Errorf("body = %s", rec.Body)
			}
			if strings.Contains(rec.Body.String(), "refused") {
				t.Error("internal error details leaked")
			}
		})
	}
}

func TestChat_PanicRecovered(t *testing.T) {
	runner := &mockRunner{runTurn: func(context.Context, string, string) (*api.TurnResult, error) {
		panic("handler bug")
	}}
	a := NewAdapter(runner, memory.New(0), DefaultConfig(), transport.Recovery())

	rec := do(t, a.Handler(), "POST", "/api/chat", `{"message":"hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestChatStream(t *testing.T) {
	gen := generatortest.New(generatortest.Text("one two")).WithStructured(decision("general", 0.9))
	a, store := newEngineAdapter(t, gen)

	rec := do(t, a.Handler(), "POST", "/api/chat/stream", `{"thread_id":"`+testThreadID+`","message":"count"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	want := `data: {"type":"token","data":"one "}` + "\n\n" +
		`data: {"type":"token","data":"two"}` + "\n\n" +
		`data: {"type":"done","thread_id":"` + testThreadID + `"}` + "\n\n"
	if rec.Body.String() != want {
		t.Errorf("body =\n%s\nwant\n%s", rec.Body, want)
	}
	if _, err := store.Load(context.Background(), testThreadID); err != nil {
		t.Errorf("streamed turn not saved: %v", err)
	}
}

func TestChatStream_GeneratesThreadID(t *testing.T) {
	gen := generatortest.New(generatortest.Text("hi")).WithStructured(decision("general", 0.9))
	a, _ := newEngineAdapter(t, gen)

	rec := do(t, a.Handler(), "POST", "/api/chat/stream", `{"message":"hello"}`)
	body := rec.Body.String()
	i := strings.Index(body, `"thread_id":"`)
	if i < 0 {
		t.Fatalf("no thread id in %s", body)
	}
	id := body[i+len(`"thread_id":"`):]
	id = id[:strings.Index(id, `"`)]
	if !api.ValidateThreadID(id) {
		t.Errorf("thread id = %q", id)
	}
}

func TestChatStream_EmptyMessageIsJSONError(t *testing.T) {
	a, _ := newEngineAdapter(t, generatortest.New())

	rec := do(t, a.Handler(), "POST", "/api/chat/stream", `{"message":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestChatStream_Clarification(t *testing.T) {
	gen := generatortest.New(generatortest.Text("resumed")).WithStructured(decision("general", 0.2))
	a, _ := newEngineAdapter(t, gen)
	h := a.Handler()

	rec := do(t, h, "POST", "/api/chat/stream", `{"thread_id":"`+testThreadID+`","message":"hmm"}`)
	if !strings.Contains(rec.Body.String(), `"type":"clarification"`) || strings.Contains(rec.Body.String(), `"type":"done"`) {
		t.Fatalf("body = %s", rec.Body)
	}

	rec = do(t, h, "POST", "/api/chat/resume", `{"thread_id":"`+testThreadID+`","choice":"projects","stream":true}`)
	body := rec.Body.String()
	if !strings.Contains(body, `"data":"resumed"`) || !strings.HasSuffix(body, `"type":"done","thread_id":"`+testThreadID+`"}`+"\n\n") {
		t.Errorf("resume stream body = %s", body)
	}
}

func TestChatStream_FailureEndsWithErrorEvent(t *testing.T) {
	gen := generatortest.New(generatortest.Fail(errors.New("socket closed"))).WithStructured(decision("general", 0.9))
	a, _ := newEngineAdapter(t, gen)

	rec := do(t, a.Handler(), "POST", "/api/chat/stream", `{"thread_id":"`+testThreadID+`","message":"hi"}`)
	want := `data: {"type":"error","thread_id":"` + testThreadID + `","message":"LLM call failed"}` + "\n\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
}

func TestChatStream_Heartbeat(t *testing.T) {
	release := make(chan struct{})
	runner := &mockRunner{runTurnStream: func(ctx context.Context, threadID, _ string, w transport.EventWriter) (string, error) {
		<-release
		return threadID, w.WriteEvent(ctx, api.DoneEvent(threadID))
	}}
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	a := NewAdapter(runner, memory.New(0), cfg)

	go func() {
		time.Sleep(60 * time.Millisecond)
		close(release)
	}()
	rec := do(t, a.Handler(), "POST", "/api/chat/stream", `{"thread_id":"`+testThreadID+`","message":"hi"}`)

	body := rec.Body.String()
	if !strings.HasPrefix(body, ": ping\n\n") {
		t.Errorf("expected heartbeat before events, body = %q", body)
	}
	if !strings.HasSuffix(body, `"type":"done","thread_id":"`+testThreadID+`"}`+"\n\n") {
		t.Errorf("stream should end with done, body = %q", body)
	}
}

func TestCancelStream(t *testing.T) {
	started := make(chan struct{})
	runner := &mockRunner{runTurnStream: func(ctx context.Context, threadID, _ string, w transport.EventWriter) (string, error) {
		if err := w.WriteEvent(ctx, api.TokenEvent("partial")); err != nil {
			return threadID, err
		}
		close(started)
		<-ctx.Done()
		return threadID, ctx.Err()
	}}
	a := NewAdapter(runner, memory.New(0), DefaultConfig())
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	type result struct {
		body string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.Post(srv.URL+"/api/chat/stream", "application/json",
			bytes.NewBufferString(`{"thread_id":"`+testThreadID+`","message":"long"}`))
		if err != nil {
			done <- result{err: err}
			return
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		done <- result{body: string(b), err: err}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not start")
	}

	req, _ := http.NewRequest("DELETE", srv.URL+"/api/chat/stream/"+testThreadID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("cancel status = %d", resp.StatusCode)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("stream read: %v", r.err)
		}
		if !strings.Contains(r.body, "partial") {
			t.Errorf("body = %q", r.body)
		}
		for _, term := range []string{`"type":"done"`, `"type":"error"`, `"type":"clarification"`} {
			if strings.Contains(r.body, term) {
				t.Errorf("cancelled stream sent terminal event: %q", r.body)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after cancel")
	}
	if a.inflight.Len() != 0 {
		t.Error("in-flight registry not cleaned up")
	}
}

func TestThreads(t *testing.T) {
	gen := generatortest.New(generatortest.Text("hello")).WithStructured(decision("personal", 0.9))
	a, _ := newEngineAdapter(t, gen)
	h := a.Handler()

	if rec := do(t, h, "POST", "/api/chat", `{"thread_id":"`+testThreadID+`","message":"hi"}`); rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d", rec.Code)
	}

	rec := do(t, h, "GET", "/api/threads", "")
	list := decodeBody[api.ThreadList](t, rec)
	if len(list.Data) != 1 || list.Data[0].ThreadID != testThreadID || list.Data[0].MessageCount != 2 {
		t.Errorf("list = %+v", list)
	}

	rec = do(t, h, "GET", "/api/threads/"+testThreadID, "")
	state := decodeBody[api.ConversationState](t, rec)
	if state.Route != api.RoutePersonal || state.FinalAnswer != "hello" || len(state.Messages) != 2 {
		t.Errorf("state = %+v", state)
	}

	if rec := do(t, h, "DELETE", "/api/threads/"+testThreadID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/threads/"+testThreadID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

type unhealthyStore struct{ *memory.Store }

func (unhealthyStore) HealthCheck(context.Context) error { return errors.New("db down") }

func TestHealth(t *testing.T) {
	a, _ := newEngineAdapter(t, generatortest.New())
	rec := do(t, a.Handler(), "GET", "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"service":"homebrain-backend","status":"ok"}` {
		t.Errorf("body = %s", got)
	}

	b := NewAdapter(&mockRunner{}, unhealthyStore{memory.New(0)}, DefaultConfig())
	rec = do(t, b.Handler(), "GET", "/api/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a, _ := newEngineAdapter(t, generatortest.New())
	do(t, a.Handler(), "GET", "/api/health", "")

	rec := do(t, a.Handler(), "GET", "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `homebrain_requests_total{method="GET",route="/api/health",status="2xx"}`) {
		t.Error("request metrics missing from /metrics")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	a, _ := newEngineAdapter(t, generatortest.New())
	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestRequestIDGeneratedWhenAbsent(t *testing.T) {
	var seen string
	runner := &mockRunner{runTurn: func(ctx context.Context, _, _ string) (*api.TurnResult, error) {
		seen = transport.RequestIDFromContext(ctx)
		return &api.TurnResult{ThreadID: testThreadID, Reply: "ok"}, nil
	}}
	a := NewAdapter(runner, memory.New(0), DefaultConfig(), transport.RequestID())

	rec := do(t, a.Handler(), "POST", "/api/chat", `{"message":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := rec.Header().Get("X-Request-ID")
	if len(got) != 32 {
		t.Fatalf("X-Request-ID = %q, want a generated 32 char id", got)
	}
	if seen != got {
		t.Errorf("runner saw request id %q, response carries %q", seen, got)
	}

	other := do(t, a.Handler(), "GET", "/api/health", "")
	if id := other.Header().Get("X-Request-ID"); id == "" || id == got {
		t.Errorf("second request id = %q, want a fresh id", id)
	}
}
