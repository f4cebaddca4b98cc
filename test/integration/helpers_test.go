// Package integration runs homebrain end to end: the HTTP server, the
// engine and the OpenAI-compatible generator talking to a deterministic
// Chat Completions backend, all started in-process with net/http/httptest.
package integration

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/engine"
	"github.com/rhuss/homebrain/pkg/generator"
	"github.com/rhuss/homebrain/pkg/generator/openai"
	"github.com/rhuss/homebrain/pkg/storage/memory"
	"github.com/rhuss/homebrain/pkg/tools/builtins/clock"
	"github.com/rhuss/homebrain/pkg/tools/registry"
	transporthttp "github.com/rhuss/homebrain/pkg/transport/http"
)

// Trigger words understood by the mock backend.
const (
	homelabWord   = "kubectl"  // routed to homelab with high confidence
	ambiguousWord = "hmm"      // routed to general below the threshold
	timeWord      = "time"     // answered through the get_utc_time tool
	failWord      = "meltdown" // the answer call fails with a 500
)

// fixedNow is what the clock tool reports.
var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var testEnv *TestEnvironment

// TestEnvironment holds the homebrain server and the mock backend.
type TestEnvironment struct {
	Server      *httptest.Server
	MockBackend *httptest.Server
	Store       *memory.Store
}

func TestMain(m *testing.M) {
	testEnv = setupTestEnvironment()
	code := m.Run()
	testEnv.Teardown()
	os.Exit(code)
}

func setupTestEnvironment() *TestEnvironment {
	mockBackend := startMockBackend()

	gen, err := openai.New(openai.Config{
		BaseURL: mockBackend.URL + "/v1/",
		APIKey:  "test-key",
		Model:   "mock-model",
		Timeout: 10 * time.Second,
	})
	if err != nil {
		panic(fmt.Sprintf("creating generator: %v", err))
	}

	reg := registry.New()
	reg.Register(clock.New(func() time.Time { return fixedNow }))

	cfg := engine.DefaultConfig()
	cfg.RouterRetryBackoff = time.Millisecond
	cfg.Capabilities = map[api.Route]engine.Capability{
		api.RouteGeneral: {Tools: reg.Toolset([]string{"get_utc_time"})},
		api.RouteHomelab: {Instruction: "You answer questions about the homelab."},
	}

	store := memory.New(100)
	eng, err := engine.New(generator.Instrument(gen), store, cfg)
	if err != nil {
		panic(fmt.Sprintf("creating engine: %v", err))
	}

	srv := transporthttp.NewServer(eng, store, transporthttp.WithHeartbeatInterval(time.Hour))

	return &TestEnvironment{
		Server:      httptest.NewServer(srv.Handler()),
		MockBackend: mockBackend,
		Store:       store,
	}
}

// Teardown stops both servers.
func (env *TestEnvironment) Teardown() {
	if env.Server != nil {
		env.Server.Close()
	}
	if env.MockBackend != nil {
		env.MockBackend.Close()
	}
}

// BaseURL returns the homebrain server base URL.
func (env *TestEnvironment) BaseURL() string {
	return env.Server.URL
}

// --- HTTP helpers ---

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func getURL(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func deleteURL(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("creating DELETE request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", url, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return string(body)
}

func decodeJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding JSON: %v", err)
	}
}

// chat posts a synchronous turn and decodes the reply, failing unless the
// status matches.
func chat(t *testing.T, threadID, message string, wantStatus int) api.ChatResponse {
	t.Helper()
	resp := postJSON(t, testEnv.BaseURL()+"/api/chat", api.ChatRequest{ThreadID: threadID, Message: message})
	if resp.StatusCode != wantStatus {
		t.Fatalf("POST /api/chat: status %d, want %d: %s", resp.StatusCode, wantStatus, readBody(t, resp))
	}
	var out api.ChatResponse
	decodeJSON(t, resp, &out)
	return out
}

// readSSE collects the data frames of an event stream until EOF.
func readSSE(t *testing.T, resp *http.Response) []api.StreamEvent {
	t.Helper()
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	var events []api.StreamEvent
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev api.StreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("decoding event %q: %v", data, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	return events
}

// tokens joins the token frames of a stream.
func tokens(events []api.StreamEvent) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == api.EventToken {
			b.WriteString(ev.Data)
		}
	}
	return b.String()
}

// --- Mock backend ---

// startMockBackend creates an httptest server that mimics the Chat
// Completions API closely enough for the openai-go client.
func startMockBackend() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleMockChatCompletions)
	return httptest.NewServer(mux)
}

type mockMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCallID string          `json:"tool_call_id"`
}

// text returns the message content whether it was sent as a string or as
// an array of text parts.
func (m mockMessage) text() string {
	var s string
	if json.Unmarshal(m.Content, &s) == nil {
		return s
	}
	var parts []struct {
		Text string `json:"text"`
	}
	json.Unmarshal(m.Content, &parts)
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

type mockRequest struct {
	Model          string          `json:"model"`
	Messages       []mockMessage   `json:"messages"`
	Tools          []any           `json:"tools"`
	Stream         bool            `json:"stream"`
	ResponseFormat json.RawMessage `json:"response_format"`
}

// mockToolCall is the single tool call the backend knows how to request.
type mockToolCall struct {
	ID, Name, Arguments string
}

func handleMockChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req mockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		mockError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if len(req.ResponseFormat) > 0 {
		writeCompletion(w, req.Model, routeDecision(req), nil)
		return
	}

	var lastUser, toolOutput string
	for _, m := range req.Messages {
		switch m.Role {
		case "user":
			lastUser = m.text()
			toolOutput = ""
		case "tool":
			toolOutput = m.text()
		}
	}
	lower := strings.ToLower(lastUser)

	switch {
	case strings.Contains(lower, failWord):
		mockError(w, http.StatusInternalServerError, "backend exploded")
		return
	case toolOutput != "":
		answer(w, req, "The current UTC time is "+toolOutput+".", nil)
	case strings.Contains(lower, timeWord) && len(req.Tools) > 0:
		answer(w, req, "", &mockToolCall{ID: "call_1", Name: "get_utc_time", Arguments: "{}"})
	default:
		answer(w, req, "Mock reply to: "+lastUser, nil)
	}
}

// routeDecision answers the router's structured output request. The user
// text is embedded at the end of the prompt.
func routeDecision(req mockRequest) string {
	prompt := ""
	if len(req.Messages) > 0 {
		prompt = req.Messages[len(req.Messages)-1].text()
	}
	if i := strings.LastIndex(prompt, "User message:\n"); i >= 0 {
		prompt = prompt[i+len("User message:\n"):]
	}
	lower := strings.ToLower(prompt)

	decision := map[string]any{"route": "general", "confidence": 0.9, "reason": "small talk", "needs_human_review": false}
	switch {
	case strings.Contains(lower, homelabWord):
		decision = map[string]any{"route": "homelab", "confidence": 0.93, "reason": "cluster tooling", "needs_human_review": false}
	case strings.Contains(lower, ambiguousWord):
		decision = map[string]any{"route": "general", "confidence": 0.2, "reason": "unclear", "needs_human_review": false}
	}
	data, _ := json.Marshal(decision)
	return string(data)
}

func answer(w http.ResponseWriter, req mockRequest, text string, call *mockToolCall) {
	if req.Stream {
		writeStream(w, req.Model, text, call)
		return
	}
	writeCompletion(w, req.Model, text, call)
}

func writeCompletion(w http.ResponseWriter, model, text string, call *mockToolCall) {
	msg := map[string]any{"role": "assistant", "content": text}
	finish := "stop"
	if call != nil {
		msg["tool_calls"] = []map[string]any{{
			"id":       call.ID,
			"type":     "function",
			"function": map[string]any{"name": call.Name, "arguments": call.Arguments},
		}}
		finish = "tool_calls"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{{"index": 0, "message": msg, "finish_reason": finish}},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
}

// writeStream sends the answer word by word as chat.completion.chunk
// frames, or a tool call split over two chunks.
func writeStream(w http.ResponseWriter, model, text string, call *mockToolCall) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	writeChunk(w, model, map[string]any{"role": "assistant"}, nil)
	finish := "stop"
	if call != nil {
		writeChunk(w, model, map[string]any{"tool_calls": []map[string]any{{
			"index":    0,
			"id":       call.ID,
			"type":     "function",
			"function": map[string]any{"name": call.Name, "arguments": ""},
		}}}, nil)
		writeChunk(w, model, map[string]any{"tool_calls": []map[string]any{{
			"index":    0,
			"function": map[string]any{"arguments": call.Arguments},
		}}}, nil)
		finish = "tool_calls"
	} else {
		words := strings.SplitAfter(text, " ")
		for _, word := range words {
			writeChunk(w, model, map[string]any{"content": word}, nil)
			flusher.Flush()
		}
	}
	writeChunk(w, model, map[string]any{}, &finish)
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeChunk(w http.ResponseWriter, model string, delta map[string]any, finish *string) {
	data, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-mock-stream",
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{{"index": 0, "delta": delta, "finish_reason": finish}},
	})
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func mockError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "type": "server_error"},
	})
}
