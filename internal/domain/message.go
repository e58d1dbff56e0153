package domain

import "encoding/json"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message mirrors the assistant provider's thread message. A message decoded
// from provider JSON encodes back to exactly that JSON, so fields the relay
// does not model (status, attachments, metadata, non-text content) survive.
type Message struct {
	ID          string        `json:"id,omitempty"`
	Object      string        `json:"object,omitempty"`
	CreatedAt   int64         `json:"created_at,omitempty"`
	ThreadID    string        `json:"thread_id,omitempty"`
	Role        string        `json:"role"`
	Content     []ContentPart `json:"content"`
	AssistantID string        `json:"assistant_id,omitempty"`
	RunID       string        `json:"run_id,omitempty"`

	raw json.RawMessage
}

// messageFields has Message's fields without its JSON methods.
type messageFields Message

func (m *Message) UnmarshalJSON(b []byte) error {
	var f messageFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*m = Message(f)
	m.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.raw) > 0 {
		return m.raw, nil
	}
	return json.Marshal(messageFields(m))
}

// Raw returns the provider JSON the message was decoded from, or nil for a
// locally built message.
func (m Message) Raw() json.RawMessage {
	return m.raw
}

type ContentPart struct {
	Type string       `json:"type,omitempty"`
	Text *TextContent `json:"text,omitempty"`
}

type TextContent struct {
	Value       string `json:"value"`
	Annotations []any  `json:"annotations,omitempty"`
}

// NewUserMessage builds the local, not yet acknowledged, user message.
func NewUserMessage(text string) Message {
	return Message{
		Role:    RoleUser,
		Content: []ContentPart{{Text: &TextContent{Value: text}}},
	}
}

// Text returns content[0].text.value, or "" when the first part is not text.
func (m Message) Text() string {
	if len(m.Content) == 0 || m.Content[0].Text == nil {
		return ""
	}
	return m.Content[0].Text.Value
}

func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

// Chronological returns a reversed copy of a newest-first message list.
func Chronological(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out
}
