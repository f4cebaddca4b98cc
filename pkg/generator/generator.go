package generator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rhuss/homebrain/pkg/api"
)

// Generator produces assistant output from a message history.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Generator interface {
	// Name returns the adapter identifier (e.g., "openai", "anthropic").
	Name() string

	// Generate performs one non-streaming completion.
	Generate(ctx context.Context, req *Request) (*Reply, error)

	// Stream performs one streaming completion. The channel yields text
	// deltas in order and ends with exactly one Delta carrying either the
	// complete Reply or an Err. The channel is closed afterwards. Adapters
	// stop sending when ctx is cancelled.
	Stream(ctx context.Context, req *Request) (<-chan Delta, error)

	// GenerateStructured asks for a single JSON object matching schema and
	// decodes it into out.
	GenerateStructured(ctx context.Context, prompt string, schema Schema, out any) error
}

// Request is one completion request.
type Request struct {
	// Instruction is sent as the system prompt. Empty means none.
	Instruction string

	// Messages is the conversation so far. System messages inside the log
	// are passed through.
	Messages []api.Message

	// Tools the model may call. Empty disables tool calling.
	Tools []ToolSpec
}

// ToolSpec describes a callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema of the arguments object
}

// Reply is a complete assistant turn.
type Reply struct {
	Message      api.Message
	FinishReason string
}

// WantsTools reports whether the reply requests tool calls.
func (r *Reply) WantsTools() bool {
	return len(r.Message.ToolCalls) > 0
}

// Delta is one element of a streamed completion.
type Delta struct {
	Text  string
	Reply *Reply // set on the final element of a successful stream
	Err   error  // set on the final element of a failed stream
}

// Schema names and describes a structured output shape.
type Schema struct {
	Name        string
	Description string
	Schema      map[string]any
}

var (
	// ErrTransient marks failures worth retrying: rate limits, upstream 5xx,
	// timeouts of the individual call, connection resets.
	ErrTransient = errors.New("transient generator failure")

	// ErrMalformedOutput marks structured output that could not be decoded.
	ErrMalformedOutput = errors.New("malformed structured output")

	// ErrEmptyResponse is returned when the backend produced no choices.
	ErrEmptyResponse = errors.New("backend returned no output")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Transient wraps err so IsTransient reports true.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// TransientStatus reports whether an HTTP status from a model backend is
// worth retrying.
func TransientStatus(code int) bool {
	return code == 408 || code == 409 || code == 429 || code >= 500
}

// NewAssistantReply builds a plain text reply.
func NewAssistantReply(text string) *Reply {
	return &Reply{Message: api.NewTextMessage(api.RoleAssistant, text), FinishReason: "stop"}
}

// StreamFromGenerate adapts a one-shot completion into the Stream contract,
// emitting the whole reply text as a single delta. Adapters without native
// streaming use it.
func StreamFromGenerate(ctx context.Context, g Generator, req *Request) (<-chan Delta, error) {
	out := make(chan Delta, 2)
	go func() {
		defer close(out)
		reply, err := g.Generate(ctx, req)
		if err != nil {
			Send(ctx, out, Delta{Err: err})
			return
		}
		if text := reply.Message.Text(); text != "" {
			if !Send(ctx, out, Delta{Text: text}) {
				return
			}
		}
		Send(ctx, out, Delta{Reply: reply})
	}()
	return out, nil
}

// Send delivers d unless ctx is done first.
func Send(ctx context.Context, out chan<- Delta, d Delta) bool {
	select {
	case out <- d:
		return true
	case <-ctx.Done():
		return false
	}
}
