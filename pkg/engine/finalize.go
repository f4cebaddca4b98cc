package engine

import (
	"strings"

	"github.com/rhuss/homebrain/pkg/api"
)

// ErrNoReply is returned by synchronous turns that end without assistant text.
var ErrNoReply = api.ErrNoReply

// Finalize returns the trimmed text of the last assistant message with
// non-empty text, and the length of the log. It does not modify messages.
func Finalize(messages []api.Message) (answer string, count int) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != api.RoleAssistant {
			continue
		}
		if text := strings.TrimSpace(m.Text()); text != "" {
			return text, len(messages)
		}
	}
	return "", len(messages)
}

func finalize(state *api.ConversationState) {
	state.FinalAnswer, state.FinalMessageCount = Finalize(state.Messages)
}
