package engine

import (
	"time"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/tools"
)

// Config holds configuration for the core engine.
type Config struct {
	// MinConfidence is the router threshold below which the engine asks
	// the user to pick a route.
	MinConfidence float64

	// InterruptOnAmbiguity enables the clarification suspend point. When
	// false, low-confidence decisions are dispatched as classified.
	InterruptOnAmbiguity bool

	// RouterRetryAttempts is the number of retries after a transient
	// classification failure. Zero disables retries.
	RouterRetryAttempts int

	// RouterRetryBackoff is the fixed wait between classification retries.
	RouterRetryBackoff time.Duration

	// ToolLoopMaxIterations bounds generator calls in one tool loop.
	// Zero or negative means use the default of 10.
	ToolLoopMaxIterations int

	// Capabilities configures the handler for each route. A route without
	// an entry is served single-shot with its built-in instruction.
	Capabilities map[api.Route]Capability

	// Now returns the current time. Nil means time.Now.
	Now func() time.Time
}

// Capability describes how one route is served.
type Capability struct {
	// Instruction is the system prompt of the route's handler. Empty uses
	// the built-in instruction for the route.
	Instruction string

	// Tools available to the handler. A non-empty set selects the tool
	// loop handler, otherwise the route is served single shot.
	Tools *tools.Toolset
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MinConfidence:         0.55,
		InterruptOnAmbiguity:  true,
		RouterRetryAttempts:   2,
		RouterRetryBackoff:    500 * time.Millisecond,
		ToolLoopMaxIterations: 10,
	}
}

// maxIterations returns the effective tool loop bound, defaulting to 10.
func (c Config) maxIterations() int {
	if c.ToolLoopMaxIterations <= 0 {
		return 10
	}
	return c.ToolLoopMaxIterations
}

func (c Config) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
