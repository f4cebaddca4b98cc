package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/generator"
)

// newTestGenerator starts a fake Chat Completions endpoint. The handler
// receives the decoded request body.
func newTestGenerator(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *Generator {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		handler(w, body)
	}))
	t.Cleanup(srv.Close)

	g, err := New(Config{BaseURL: srv.URL + "/v1/", APIKey: "test", Model: "test-model"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func writeCompletion(w http.ResponseWriter, message string, finish string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","created":1,"model":"test-model",
		"choices":[{"index":0,"message":%s,"finish_reason":%q}]}`, message, finish)
}

func TestNewRequiresModel(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestGenerateText(t *testing.T) {
	var got map[string]any
	g := newTestGenerator(t, func(w http.ResponseWriter, body map[string]any) {
		got = body
		writeCompletion(w, `{"role":"assistant","content":"Hello there"}`, "stop")
	})

	reply, err := g.Generate(context.Background(), &generator.Request{
		Instruction: "be brief",
		Messages:    []api.Message{api.NewTextMessage(api.RoleUser, "hi")},
		Tools: []generator.ToolSpec{{
			Name:        "get_utc_time",
			Description: "current time",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply.Message.Text() != "Hello there" {
		t.Errorf("text = %q", reply.Message.Text())
	}
	if reply.WantsTools() {
		t.Error("unexpected tool calls")
	}

	if got["model"] != "test-model" {
		t.Errorf("model = %v", got["model"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message role = %v, want system", first["role"])
	}
	tools, _ := got["tools"].([]any)
	if len(tools) != 1 {
		t.Errorf("tools = %d, want 1", len(tools))
	}
}

func TestGenerateToolCalls(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, _ map[string]any) {
		writeCompletion(w, `{"role":"assistant","content":null,"tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"get_utc_time","arguments":"{}"}}]}`, "tool_calls")
	})

	reply, err := g.Generate(context.Background(), &generator.Request{
		Messages: []api.Message{api.NewTextMessage(api.RoleUser, "what time is it")},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !reply.WantsTools() {
		t.Fatal("expected tool calls")
	}
	tc := reply.Message.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "get_utc_time" || tc.Arguments != "{}" {
		t.Errorf("tool call = %+v", tc)
	}
}

func TestGenerateSendsToolHistory(t *testing.T) {
	var got map[string]any
	g := newTestGenerator(t, func(w http.ResponseWriter, body map[string]any) {
		got = body
		writeCompletion(w, `{"role":"assistant","content":"It is noon."}`, "stop")
	})

	_, err := g.Generate(context.Background(), &generator.Request{
		Messages: []api.Message{
			api.NewTextMessage(api.RoleUser, "time?"),
			{Role: api.RoleAssistant, ToolCalls: []api.ToolCall{{ID: "call_1", Name: "get_utc_time", Arguments: "{}"}}},
			{Role: api.RoleTool, ToolCallID: "call_1", Content: []api.ContentPart{{Type: api.ContentTypeText, Text: "12:00"}}},
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	msgs, _ := got["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
	tool, _ := msgs[2].(map[string]any)
	if tool["role"] != "tool" || tool["tool_call_id"] != "call_1" {
		t.Errorf("tool message = %v", tool)
	}
}

func TestStream(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, body map[string]any) {
		if body["stream"] != true {
			t.Errorf("stream flag = %v", body["stream"])
		}
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := g.Stream(context.Background(), &generator.Request{
		Messages: []api.Message{api.NewTextMessage(api.RoleUser, "hi")},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var text strings.Builder
	var final *generator.Reply
	for d := range ch {
		if d.Err != nil {
			t.Fatalf("stream error: %v", d.Err)
		}
		text.WriteString(d.Text)
		if d.Reply != nil {
			final = d.Reply
		}
	}
	if text.String() != "Hello" {
		t.Errorf("streamed text = %q", text.String())
	}
	if final == nil || final.Message.Text() != "Hello" || final.FinishReason != "stop" {
		t.Errorf("final reply = %+v", final)
	}
}

func TestStreamAccumulatesToolCalls(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_utc_time","arguments":"{"}}]}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"}"}}]}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := g.Stream(context.Background(), &generator.Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var final *generator.Reply
	for d := range ch {
		if d.Reply != nil {
			final = d.Reply
		}
	}
	if final == nil || len(final.Message.ToolCalls) != 1 {
		t.Fatalf("final reply = %+v", final)
	}
	if tc := final.Message.ToolCalls[0]; tc.ID != "call_1" || tc.Arguments != "{}" {
		t.Errorf("tool call = %+v", tc)
	}
}

func TestGenerateStructured(t *testing.T) {
	var got map[string]any
	g := newTestGenerator(t, func(w http.ResponseWriter, body map[string]any) {
		got = body
		writeCompletion(w, `{"role":"assistant","content":"{\"route\":\"homelab\",\"confidence\":0.8}"}`, "stop")
	})

	var out struct {
		Route      string  `json:"route"`
		Confidence float64 `json:"confidence"`
	}
	err := g.GenerateStructured(context.Background(), "classify this", generator.Schema{
		Name:   "route_decision",
		Schema: map[string]any{"type": "object"},
	}, &out)
	if err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
	if out.Route != "homelab" || out.Confidence != 0.8 {
		t.Errorf("decoded = %+v", out)
	}
	rf, _ := got["response_format"].(map[string]any)
	if rf["type"] != "json_schema" {
		t.Errorf("response_format = %v", got["response_format"])
	}
}

func TestGenerateStructuredMalformed(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, _ map[string]any) {
		writeCompletion(w, `{"role":"assistant","content":"not json"}`, "stop")
	})

	var out map[string]any
	err := g.GenerateStructured(context.Background(), "x", generator.Schema{Name: "s"}, &out)
	if !errors.Is(err, generator.ErrMalformedOutput) {
		t.Errorf("err = %v, want ErrMalformedOutput", err)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			g := newTestGenerator(t, func(w http.ResponseWriter, _ map[string]any) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"nope","type":"test"}}`)
			})
			_, err := g.Generate(context.Background(), &generator.Request{})
			if err == nil {
				t.Fatal("expected error")
			}
			if generator.IsTransient(err) != tt.transient {
				t.Errorf("IsTransient = %v, want %v (err=%v)", generator.IsTransient(err), tt.transient, err)
			}
		})
	}
}
