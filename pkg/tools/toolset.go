package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/observability"
)

var toolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "homebrain_tool_duration_seconds",
		Help:    "Tool execution duration",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	},
	[]string{"tool_name"},
)

func init() {
	prometheus.MustRegister(toolDuration)
}

// Toolset is the ordered set of tools bound to one route. Calls naming a
// tool outside the set produce an error result instead of running.
type Toolset struct {
	tools  []Tool
	byName map[string]Tool
}

// NewToolset builds a toolset. Later duplicates of a name are ignored.
func NewToolset(ts ...Tool) *Toolset {
	s := &Toolset{byName: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		if _, dup := s.byName[t.Name()]; dup {
			slog.Warn("duplicate tool in toolset, keeping first", "tool", t.Name())
			continue
		}
		s.byName[t.Name()] = t
		s.tools = append(s.tools, t)
	}
	return s
}

// Len returns the number of tools. A nil Toolset is empty.
func (s *Toolset) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tools)
}

// Tools returns the tools in registration order.
func (s *Toolset) Tools() []Tool {
	if s == nil {
		return nil
	}
	return append([]Tool(nil), s.tools...)
}

// Names returns the tool names in registration order.
func (s *Toolset) Names() []string {
	names := make([]string, 0, s.Len())
	for _, t := range s.Tools() {
		names = append(names, t.Name())
	}
	return names
}

// Execute runs one call. It never returns an error: unknown tools, tool
// errors and panics all come back as an error result for the model.
func (s *Toolset) Execute(ctx context.Context, call api.ToolCall) (result ToolResult) {
	result = ToolResult{CallID: call.ID, Name: call.Name}

	var t Tool
	if s != nil {
		t = s.byName[call.Name]
	}
	if t == nil {
		observability.ToolExecutionsTotal.WithLabelValues("unknown", "rejected").Inc()
		result.Output = fmt.Sprintf("error: unknown tool %q", call.Name)
		result.IsError = true
		return result
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool panicked", "tool", call.Name, "panic", rec)
			result.Output = fmt.Sprintf("error: tool %q failed internally", call.Name)
			result.IsError = true
			observability.ToolExecutionsTotal.WithLabelValues(call.Name, "panic").Inc()
			toolDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
		}
	}()

	out, err := t.Call(ctx, call.Arguments)
	status := "success"
	if err != nil {
		status = "error"
		slog.Warn("tool call failed", "tool", call.Name, "call_id", call.ID, "error", err)
		result.Output = "error: " + err.Error()
		result.IsError = true
	} else {
		result.Output = out
	}
	observability.ToolExecutionsTotal.WithLabelValues(call.Name, status).Inc()
	toolDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
	return result
}

// Func adapts a plain function into a Tool.
type Func struct {
	ToolName        string
	ToolDescription string
	Schema          map[string]any
	Fn              func(ctx context.Context, args string) (string, error)
}

var _ Tool = (*Func)(nil)

func (f *Func) Name() string        { return f.ToolName }
func (f *Func) Description() string { return f.ToolDescription }

func (f *Func) Parameters() map[string]any {
	if f.Schema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return f.Schema
}

func (f *Func) Call(ctx context.Context, args string) (string, error) {
	return f.Fn(ctx, args)
}
