package api

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ContentPart is one ordered part of a message body. Only parts of type
// "text" carry conversational text; other part types (images, files) are
// preserved but ignored when extracting text.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

// ContentTypeText is the part type holding plain text.
const ContentTypeText = "text"

// ToolCall is a tool invocation requested by the generator.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a single entry in a conversation log.
type Message struct {
	Role       Role          `json:"role"`
	Content    []ContentPart `json:"content"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

// NewTextMessage builds a message with a single text part.
func NewTextMessage(role Role, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentPart{{Type: ContentTypeText, Text: text}},
	}
}

// Text joins the text parts of the message in order, skipping non-text parts.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Content {
		if p.Type == ContentTypeText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// UnmarshalJSON accepts content either as a plain string or as a list of
// parts. A plain string becomes a single text part.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	var wire struct {
		alias
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*m = Message(wire.alias)
	m.Content = nil

	raw := strings.TrimSpace(string(wire.Content))
	if raw == "" || raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, "\"") {
		var s string
		if err := json.Unmarshal(wire.Content, &s); err != nil {
			return err
		}
		m.Content = []ContentPart{{Type: ContentTypeText, Text: s}}
		return nil
	}
	return json.Unmarshal(wire.Content, &m.Content)
}

// LastUserText returns the text of the most recent user message, or the
// empty string if the log holds none.
func LastUserText(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Text()
		}
	}
	return ""
}

// ChatRequest is the body of a turn request.
type ChatRequest struct {
	ThreadID string `json:"thread_id,omitempty"`
	Message  string `json:"message"`
}

// ResumeRequest answers a pending clarification.
type ResumeRequest struct {
	ThreadID string `json:"thread_id"`
	Choice   string `json:"choice"`
	Stream   bool   `json:"stream,omitempty"`
}

// ChatResponse is the body returned for a completed or suspended turn.
type ChatResponse struct {
	ThreadID      string                `json:"thread_id"`
	Reply         string                `json:"reply,omitempty"`
	Route         Route                 `json:"route,omitempty"`
	History       []Message             `json:"history,omitempty"`
	Clarification *PendingClarification `json:"clarification,omitempty"`
}

// ThreadSummary is the listing view of a stored thread.
type ThreadSummary struct {
	ThreadID     string `json:"thread_id"`
	Route        Route  `json:"route,omitempty"`
	MessageCount int    `json:"message_count"`
	Suspended    bool   `json:"suspended"`
	UpdatedAt    int64  `json:"updated_at"`
}

// ThreadList is a page of thread summaries.
type ThreadList struct {
	Object string          `json:"object"`
	Data   []ThreadSummary `json:"data"`
}
