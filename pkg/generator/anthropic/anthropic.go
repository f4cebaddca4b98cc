// Package anthropic implements generator.Generator on the Anthropic
// Messages API. Structured output is obtained by forcing a single tool
// call whose input schema is the requested shape.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/generator"
)

const defaultMaxTokens = 1024

// Config configures the adapter.
type Config struct {
	BaseURL     string // empty uses the SDK default
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64 // required by the API; zero means 1024
	Timeout     time.Duration
	MaxRetries  int
}

// Generator is the Anthropic adapter.
type Generator struct {
	client anthropic.Client
	cfg    Config
}

var _ generator.Generator = (*Generator)(nil)

// New creates an adapter.
func New(cfg Config) (*Generator, error) {
	if cfg.Model == "" {
		return nil, errors.New("anthropic: model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	opts := []option.RequestOption{option.WithMaxRetries(cfg.MaxRetries)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	slog.Debug("anthropic generator configured", "model", cfg.Model)
	return &Generator{client: anthropic.NewClient(opts...), cfg: cfg}, nil
}

func (g *Generator) Name() string { return "anthropic" }

func (g *Generator) Generate(ctx context.Context, req *generator.Request) (*generator.Reply, error) {
	resp, err := g.client.Messages.New(ctx, g.params(req))
	if err != nil {
		return nil, classify(err)
	}
	return toReply(resp), nil
}

func (g *Generator) Stream(ctx context.Context, req *generator.Request) (<-chan generator.Delta, error) {
	stream := g.client.Messages.NewStreaming(ctx, g.params(req))

	out := make(chan generator.Delta)
	go func() {
		defer close(out)
		defer stream.Close()

		message := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				generator.Send(ctx, out, generator.Delta{Err: fmt.Errorf("anthropic: accumulating stream: %w", err)})
				return
			}
			ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			if td, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && td.Text != "" {
				if !generator.Send(ctx, out, generator.Delta{Text: td.Text}) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			generator.Send(ctx, out, generator.Delta{Err: classify(err)})
			return
		}
		generator.Send(ctx, out, generator.Delta{Reply: toReply(&message)})
	}()
	return out, nil
}

func (g *Generator) GenerateStructured(ctx context.Context, prompt string, schema generator.Schema, out any) error {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.cfg.Model),
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Tools: []anthropic.ToolUnionParam{toolParam(generator.ToolSpec{
			Name:        schema.Name,
			Description: schema.Description,
			Parameters:  schema.Schema,
		})},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: schema.Name},
		},
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return classify(err)
	}
	for _, block := range resp.Content {
		if block.Type != "tool_use" {
			continue
		}
		raw, err := json.Marshal(block.AsToolUse().Input)
		if err != nil {
			return fmt.Errorf("%w: %w", generator.ErrMalformedOutput, err)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: %w", generator.ErrMalformedOutput, err)
		}
		return nil
	}
	return fmt.Errorf("%w: no tool_use block in response", generator.ErrMalformedOutput)
}

func (g *Generator) params(req *generator.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.cfg.Model),
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: anthropic.Float(g.cfg.Temperature),
		Messages:    convertMessages(req.Messages),
	}

	var system []anthropic.TextBlockParam
	if req.Instruction != "" {
		system = append(system, anthropic.TextBlockParam{Text: req.Instruction})
	}
	for _, m := range req.Messages {
		if m.Role == api.RoleSystem {
			if text := m.Text(); text != "" {
				system = append(system, anthropic.TextBlockParam{Text: text})
			}
		}
	}
	params.System = system

	for _, t := range req.Tools {
		params.Tools = append(params.Tools, toolParam(t))
	}
	return params
}

// convertMessages maps the log onto Anthropic's alternating turns. Tool
// results travel in user messages, and consecutive results share one.
func convertMessages(in []api.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var results []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, m := range in {
		switch m.Role {
		case api.RoleTool:
			results = append(results, anthropic.NewToolResultBlock(m.ToolCallID, m.Text(), false))
		case api.RoleUser:
			flush()
			if text := m.Text(); text != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		case api.RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if text := m.Text(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, tc := range m.ToolCalls {
				var input any = map[string]any{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						input = map[string]any{}
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		}
	}
	flush()
	return out
}

func toolParam(t generator.ToolSpec) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
	if props, ok := t.Parameters["properties"]; ok {
		schema.Properties = props
	}
	switch req := t.Parameters["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	tool := anthropic.ToolUnionParamOfTool(schema, t.Name)
	if t.Description != "" && tool.OfTool != nil {
		tool.OfTool.Description = anthropic.String(t.Description)
	}
	return tool
}

func toReply(resp *anthropic.Message) *generator.Reply {
	msg := api.Message{Role: api.RoleAssistant}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if text := block.AsText().Text; text != "" {
				msg.Content = append(msg.Content, api.ContentPart{Type: api.ContentTypeText, Text: text})
			}
		case "tool_use":
			tu := block.AsToolUse()
			args := "{}"
			if raw, err := json.Marshal(tu.Input); err == nil && string(raw) != "null" {
				args = string(raw)
			}
			msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{ID: tu.ID, Name: tu.Name, Arguments: args})
		}
	}

	finish := "stop"
	switch resp.StopReason {
	case "tool_use":
		finish = "tool_calls"
	case "max_tokens":
		finish = "length"
	}
	return &generator.Reply{Message: msg, FinishReason: finish}
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if generator.TransientStatus(apiErr.StatusCode) {
			return generator.Transient(err)
		}
		return fmt.Errorf("anthropic: %w", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return generator.Transient(err)
	}
	return fmt.Errorf("anthropic: %w", err)
}
