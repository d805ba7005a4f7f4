package openai

import (
	"encoding/json"
	"fmt"
)

// AssistantMessage is a reply from the model, either a complete response
// or a single chunk of a stream.
type AssistantMessage struct {
	// Content is the text of the reply. Empty for reasoning chunks.
	Content string

	// Reasoning is the reasoning content produced by reasoning models.
	Reasoning string

	// IsReasoning is true when the choice carried no content, which is how
	// providers mark chunks of the reasoning phase.
	IsReasoning bool

	// Response is the decoded response or chunk.
	Response *CreateChatResponse

	// Raw is the original JSON the message was decoded from.
	Raw json.RawMessage
}

// NewAssistantMessage decodes a chat response or stream chunk. The message is
// read from the first choice, preferring "message" over "delta".
func NewAssistantMessage(raw []byte) (*AssistantMessage, error) {
	var resp CreateChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	choice := resp.Choices[0]

	m := choice.Message
	if m == nil {
		m = choice.Delta
	}
	if m == nil {
		m = &ChatChoiceMessage{}
	}

	msg := &AssistantMessage{
		Response:    &resp,
		Raw:         json.RawMessage(raw),
		IsReasoning: m.Content == nil,
	}
	if m.Content != nil {
		msg.Content = *m.Content
	}
	if m.ReasoningContent != nil {
		msg.Reasoning = *m.ReasoningContent
	}

	return msg, nil
}

// Role is always the assistant role.
func (m *AssistantMessage) Role() ChatRole {
	return ChatRoleAssistant
}

// Simple returns the message as plain content and role, suitable for
// appending to a conversation history.
func (m *AssistantMessage) Simple() ChatMessage {
	return ChatMessage{
		Role:             ChatRoleAssistant,
		Content:          m.Content,
		ReasoningContent: m.Reasoning,
	}
}

// Usage returns the token usage reported with the message, if any.
func (m *AssistantMessage) Usage() Usage {
	if m.Response == nil || m.Response.Usage == nil {
		return Usage{}
	}
	return *m.Response.Usage
}
