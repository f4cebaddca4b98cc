// Package generatortest provides a scripted Generator for tests.
package generatortest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/generator"
)

// ErrScriptExhausted is returned when a call arrives after the script ran out.
var ErrScriptExhausted = errors.New("generatortest: script exhausted")

// Step is one scripted Generate or Stream result.
type Step struct {
	Reply *generator.Reply
	Err   error

	// Chunks overrides how the reply text is split into stream deltas.
	// Nil splits on spaces.
	Chunks []string
}

// Text scripts a plain assistant answer.
func Text(s string) Step {
	return Step{Reply: generator.NewAssistantReply(s)}
}

// ToolCalls scripts an assistant message requesting the given calls.
func ToolCalls(calls ...api.ToolCall) Step {
	return Step{Reply: &generator.Reply{
		Message:      api.Message{Role: api.RoleAssistant, ToolCalls: calls},
		FinishReason: "tool_calls",
	}}
}

// Fail scripts an error.
func Fail(err error) Step {
	return Step{Err: err}
}

// Structured is one scripted GenerateStructured result: raw JSON or an error.
type Structured struct {
	JSON string
	Err  error
}

// JSON scripts a structured result from any value.
func JSON(v any) Structured {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Structured{JSON: string(b)}
}

// Fake is a Generator that replays scripted results in order and records
// what it was asked.
type Fake struct {
	mu         sync.Mutex
	steps      []Step
	structured []Structured
	requests   []*generator.Request
	prompts    []string
}

var _ generator.Generator = (*Fake)(nil)

// New returns a Fake with the given Generate/Stream script.
func New(steps ...Step) *Fake {
	return &Fake{steps: steps}
}

// WithStructured appends GenerateStructured results and returns f.
func (f *Fake) WithStructured(results ...Structured) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.structured = append(f.structured, results...)
	return f
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Generate(_ context.Context, req *generator.Request) (*generator.Reply, error) {
	step, err := f.next(req)
	if err != nil {
		return nil, err
	}
	return step.Reply, step.Err
}

func (f *Fake) Stream(ctx context.Context, req *generator.Request) (<-chan generator.Delta, error) {
	step, err := f.next(req)
	if err != nil {
		return nil, err
	}
	out := make(chan generator.Delta)
	go func() {
		defer close(out)
		if step.Err != nil {
			generator.Send(ctx, out, generator.Delta{Err: step.Err})
			return
		}
		chunks := step.Chunks
		if chunks == nil {
			chunks = splitWords(step.Reply.Message.Text())
		}
		for _, c := range chunks {
			if !generator.Send(ctx, out, generator.Delta{Text: c}) {
				return
			}
		}
		generator.Send(ctx, out, generator.Delta{Reply: step.Reply})
	}()
	return out, nil
}

func (f *Fake) GenerateStructured(_ context.Context, prompt string, _ generator.Schema, out any) error {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	if len(f.structured) == 0 {
		f.mu.Unlock()
		return ErrScriptExhausted
	}
	res := f.structured[0]
	f.structured = f.structured[1:]
	f.mu.Unlock()

	if res.Err != nil {
		return res.Err
	}
	if err := json.Unmarshal([]byte(res.JSON), out); err != nil {
		return fmt.Errorf("%w: %w", generator.ErrMalformedOutput, err)
	}
	return nil
}

// Requests returns the Generate/Stream requests seen so far.
func (f *Fake) Requests() []*generator.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*generator.Request(nil), f.requests...)
}

// Prompts returns the GenerateStructured prompts seen so far.
func (f *Fake) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// Remaining reports how many Generate/Stream steps are left.
func (f *Fake) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.steps)
}

func (f *Fake) next(req *generator.Request) (Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.steps) == 0 {
		return Step{}, ErrScriptExhausted
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	return s, nil
}

// splitWords keeps the separating spaces so the chunks concatenate back to s.
func splitWords(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.SplitAfter(s, " ")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
