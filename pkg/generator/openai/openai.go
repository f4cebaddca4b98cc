// Package openai implements generator.Generator on top of the OpenAI Chat
// Completions API. Any compatible endpoint works (vLLM, LiteLLM, Ollama,
// Gemini's OpenAI surface) by pointing BaseURL at it.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/generator"
)

// Config configures the adapter.
type Config struct {
	// BaseURL of the API, including the version prefix
	// (e.g., "https://api.openai.com/v1/"). Empty uses the SDK default.
	BaseURL string

	APIKey string

	// Model name sent with every request.
	Model string

	Temperature float64

	// MaxTokens caps completion length. Zero leaves it to the backend.
	MaxTokens int64

	// Timeout bounds a single HTTP attempt. Zero means no per-attempt limit.
	Timeout time.Duration

	// MaxRetries is the SDK-level retry count. The engine retries router
	// calls itself, so the default is zero.
	MaxRetries int
}

// Generator is the OpenAI-compatible adapter.
type Generator struct {
	client openai.Client
	cfg    Config
}

var _ generator.Generator = (*Generator)(nil)

// New creates an adapter.
func New(cfg Config) (*Generator, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai: model is required")
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

	slog.Debug("openai generator configured", "model", cfg.Model, "base_url", cfg.BaseURL)
	return &Generator{client: openai.NewClient(opts...), cfg: cfg}, nil
}

func (g *Generator) Name() string { return "openai" }

func (g *Generator) Generate(ctx context.Context, req *generator.Request) (*generator.Reply, error) {
	resp, err := g.client.Chat.Completions.New(ctx, g.params(req))
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, generator.ErrEmptyResponse
	}
	ch := resp.Choices[0]

	msg := api.Message{Role: api.RoleAssistant}
	if ch.Message.Content != "" {
		msg.Content = []api.ContentPart{{Type: api.ContentTypeText, Text: ch.Message.Content}}
	}
	for _, tc := range ch.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return &generator.Reply{Message: msg, FinishReason: ch.FinishReason}, nil
}

// pendingCall accumulates a tool call spread over stream chunks.
type pendingCall struct{ id, name, args string }

func (g *Generator) Stream(ctx context.Context, req *generator.Request) (<-chan generator.Delta, error) {
	stream := g.client.Chat.Completions.NewStreaming(ctx, g.params(req))

	out := make(chan generator.Delta)
	go func() {
		defer close(out)
		defer stream.Close()

		var text strings.Builder
		calls := map[int64]*pendingCall{}
		finish := ""

		for stream.Next() {
			chunk := stream.Current()
			for _, ch := range chunk.Choices {
				if ch.Delta.Content != "" {
					text.WriteString(ch.Delta.Content)
					if !generator.Send(ctx, out, generator.Delta{Text: ch.Delta.Content}) {
						return
					}
				}
				for _, tc := range ch.Delta.ToolCalls {
					pc, ok := calls[tc.Index]
					if !ok {
						pc = &pendingCall{}
						calls[tc.Index] = pc
					}
					if tc.ID != "" {
						pc.id = tc.ID
					}
					if tc.Function.Name != "" {
						pc.name = tc.Function.Name
					}
					pc.args += tc.Function.Arguments
				}
				if ch.FinishReason != "" {
					finish = ch.FinishReason
				}
			}
		}
		if err := stream.Err(); err != nil {
			generator.Send(ctx, out, generator.Delta{Err: classify(err)})
			return
		}

		msg := api.Message{Role: api.RoleAssistant}
		if text.Len() > 0 {
			msg.Content = []api.ContentPart{{Type: api.ContentTypeText, Text: text.String()}}
		}
		indexes := make([]int64, 0, len(calls))
		for i := range calls {
			indexes = append(indexes, i)
		}
		sort.Slice(indexes, func(a, b int) bool { return indexes[a] < indexes[b] })
		for _, i := range indexes {
			pc := calls[i]
			msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{ID: pc.id, Name: pc.name, Arguments: pc.args})
		}
		generator.Send(ctx, out, generator.Delta{Reply: &generator.Reply{Message: msg, FinishReason: finish}})
	}()
	return out, nil
}

func (g *Generator) GenerateStructured(ctx context.Context, prompt string, schema generator.Schema, out any) error {
	params := openai.ChatCompletionNewParams{
		Model:       g.cfg.Model,
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        schema.Name,
					Description: openai.String(schema.Description),
					Schema:      schema.Schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return classify(err)
	}
	if len(resp.Choices) == 0 {
		return generator.ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), out); err != nil {
		return fmt.Errorf("%w: %w", generator.ErrMalformedOutput, err)
	}
	return nil
}

func (g *Generator) params(req *generator.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:       g.cfg.Model,
		Messages:    convertMessages(req),
		Temperature: openai.Float(g.cfg.Temperature),
	}
	if g.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(g.cfg.MaxTokens)
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters,
			},
		})
	}
	return params
}

func convertMessages(req *generator.Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.Instruction != "" {
		msgs = append(msgs, openai.SystemMessage(req.Instruction))
	}
	for _, m := range req.Messages {
		text := m.Text()
		switch m.Role {
		case api.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(text))
		case api.RoleUser:
			msgs = append(msgs, openai.UserMessage(text))
		case api.RoleTool:
			msgs = append(msgs, openai.ToolMessage(text, m.ToolCallID))
		case api.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				msgs = append(msgs, openai.AssistantMessage(text))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				calls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: calls,
				},
			})
		}
	}
	return msgs
}

// classify marks retryable failures as transient.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if generator.TransientStatus(apiErr.StatusCode) {
			return generator.Transient(err)
		}
		return fmt.Errorf("openai: %w", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return generator.Transient(err)
	}
	return fmt.Errorf("openai: %w", err)
}
