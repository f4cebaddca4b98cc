// Package clock provides the get_utc_time built-in tool.
package clock

import (
	"context"
	"time"

	"github.com/rhuss/homebrain/pkg/tools"
)

// ToolName is the name the model calls.
const ToolName = "get_utc_time"

// Provider contributes get_utc_time.
type Provider struct {
	now func() time.Time
}

var _ tools.Provider = (*Provider)(nil)

// New creates the provider. A nil now uses time.Now.
func New(now func() time.Time) *Provider {
	if now == nil {
		now = time.Now
	}
	return &Provider{now: now}
}

func (p *Provider) Name() string { return "clock" }
func (p *Provider) Kind() tools.ToolKind { return tools.ToolKindBuiltin }
func (p *Provider) Close() error { return nil }

func (p *Provider) Tools() []tools.Tool {
	return []tools.Tool{&tools.Func{
		ToolName:        ToolName,
		ToolDescription: "Return the current UTC time in RFC 3339 format.",
		Schema:          map[string]any{"type": "object", "properties": map[string]any{}},
		Fn: func(context.Context, string) (string, error) {
			return p.now().UTC().Format(time.RFC3339Nano), nil
		},
	}}
}
