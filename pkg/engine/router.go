package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/debug"
	"github.com/rhuss/homebrain/pkg/generator"
	"github.com/rhuss/homebrain/pkg/observability"
)

// Reasons recorded on decisions the router did not take from the model.
const (
	ReasonInvalidRoute      = "invalid_route"
	ReasonClassifyError     = "classify_error"
	ReasonUserSelectedRoute = "user_selected_route"
)

// ClarificationPrompt is shown to the user when the router suspends.
const ClarificationPrompt = "Quick clarification so I route you correctly:"

const (
	fallbackConfidence = 0.1
	selectedConfidence = 0.99
)

const routerPrompt = `You are a router for a personal assistant.

Choose exactly one route:
- personal: about the owner (public/professional background)
- projects: about the owner's software projects
- homelab: about the owner's homelab/infra
- general: everything else

Set needs_human_review=true if the request asks for private identifiers
(address, phone, DOB, passwords, tokens) or asks for risky/real-world actions.

User message:
%s`

// routeSchema is the JSON schema the router's structured output must match.
var routeSchema = generator.Schema{
	Name:        "route_decision",
	Description: "Routing decision for the latest user message.",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"route": map[string]any{
				"type": "string",
				"enum": []string{
					string(api.RoutePersonal), string(api.RouteProjects),
					string(api.RouteHomelab), string(api.RouteGeneral),
				},
			},
			"confidence":         map[string]any{"type": "number"},
			"reason":             map[string]any{"type": "string"},
			"needs_human_review": map[string]any{"type": "boolean"},
		},
		"required":             []string{"route", "confidence", "reason", "needs_human_review"},
		"additionalProperties": false,
	},
}

// rawDecision holds the model output before validation. Route stays a
// plain string so out-of-set values survive decoding.
type rawDecision struct {
	Route            string  `json:"route"`
	Confidence       float64 `json:"confidence"`
	Reason           string  `json:"reason"`
	NeedsHumanReview bool    `json:"needs_human_review"`
}

// router classifies user text into a route decision.
type router struct {
	gen      generator.Generator
	attempts int
	wait     time.Duration
}

// classify asks the generator for a decision about the most recent user
// message in history. It never fails: any error becomes the
// classify_error fallback. Transient failures are retried with a fixed
// backoff first.
func (r *router) classify(ctx context.Context, history []api.Message) api.RouteDecision {
	prompt := fmt.Sprintf(routerPrompt, api.LastUserText(history))

	var raw rawDecision
	op := func() error {
		raw = rawDecision{}
		err := r.gen.GenerateStructured(ctx, prompt, routeSchema, &raw)
		if err != nil && !generator.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		debug.Log("router", "classification retry", "error", err, "wait", wait)
	}

	attempts := r.attempts
	if attempts < 0 {
		attempts = 0
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.wait), uint64(attempts)), ctx)

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		slog.Warn("router classification failed, falling back to general", "error", err)
		return api.RouteDecision{Route: api.RouteGeneral, Confidence: fallbackConfidence, Reason: ReasonClassifyError}
	}

	route := api.Route(raw.Route)
	if !route.IsValid() {
		debug.Log("router", "model returned invalid route", "route", raw.Route)
		return api.RouteDecision{Route: api.RouteGeneral, Confidence: fallbackConfidence, Reason: ReasonInvalidRoute}
	}

	conf := api.ClampConfidence(raw.Confidence)
	if conf != raw.Confidence {
		debug.Log("router", "confidence clamped", "raw", raw.Confidence, "clamped", conf)
	}
	return api.RouteDecision{
		Route:            route,
		Confidence:       conf,
		Reason:           raw.Reason,
		NeedsHumanReview: raw.NeedsHumanReview,
	}
}

// selectedDecision maps a clarification answer to a decision. Choices
// outside the route set map to the default route.
func selectedDecision(choice string) api.RouteDecision {
	return api.RouteDecision{
		Route:      api.ParseRoute(choice),
		Confidence: selectedConfidence,
		Reason:     ReasonUserSelectedRoute,
	}
}

// newPending builds the clarification record for a suspended turn.
func newPending(text string, now time.Time) *api.PendingClarification {
	return &api.PendingClarification{
		Prompt:       ClarificationPrompt,
		Options:      api.Routes(),
		OriginalText: text,
		CreatedAt:    now,
	}
}

func recordDecision(d api.RouteDecision) {
	observability.RouteDecisionsTotal.WithLabelValues(string(d.Route), decisionReasonLabel(d.Reason)).Inc()
}

// decisionReasonLabel keeps metric cardinality bounded: model-written
// reasons are free text.
func decisionReasonLabel(reason string) string {
	switch reason {
	case ReasonInvalidRoute, ReasonClassifyError, ReasonUserSelectedRoute:
		return reason
	}
	return "model"
}
