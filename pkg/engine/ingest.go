package engine

import (
	"strings"

	"github.com/rhuss/homebrain/pkg/api"
)

// normalizeInput trims the user text and rejects empty input.
func normalizeInput(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", api.ErrEmptyInput
	}
	return text, nil
}

// ingest appends the user message and clears the turn-scoped fields left
// over from the previous turn.
func ingest(state *api.ConversationState, text string) {
	state.Messages = append(state.Messages, api.NewTextMessage(api.RoleUser, text))
	state.RouteReason = ""
	state.RouteConfidence = 0
	state.NeedsHumanReview = false
	state.ToolResults = nil
	state.FinalAnswer = ""
	state.FinalMessageCount = 0
}
