package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"time"
)

// ChatMessage is a single message in a chat conversation.
type ChatMessage struct {
	// Role is the role of the author of the message.
	//
	// https://platform.openai.com/docs/api-reference/chat/create#chat-create-messages
	//
	// Required.
	Role ChatRole `json:"role"`

	// Content is the text of the message.
	Content string `json:"content"`

	// Name is an optional name for the participant.
	Name string `json:"name,omitempty"`

	// ReasoningContent is the reasoning produced by reasoning models such as
	// DeepSeek-R1. It is only populated on replies and is never sent back.
	ReasoningContent string `json:"-"`
}

// UserMessage returns a message with the user role.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: ChatRoleUser, Content: content}
}

// SystemMessage returns a message with the system role, used to set up the assistant.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: ChatRoleSystem, Content: content}
}

// ChatConfig holds the model options sent with every chat request.
//
// https://platform.openai.com/docs/api-reference/chat/create
type ChatConfig struct {
	// The model to use for the chat (e.g. "gpt-4o" or "deepseek-ai/DeepSeek-R1").
	//
	// Required.
	Model string `json:"model,omitempty"`

	// https://platform.openai.com/docs/api-reference/chat/create#chat-create-temperature
	Temperature *float64 `json:"temperature,omitempty"`

	// https://platform.openai.com/docs/api-reference/chat/create#chat-create-top_p
	TopP *float64 `json:"top_p,omitempty"`

	// https://platform.openai.com/docs/api-reference/chat/create#chat-create-max_tokens
	MaxTokens int `json:"max_tokens,omitempty"`

	// Number between -2.0 and 2.0.
	PresencePenalty *float64 `json:"presence_penalty,omitempty"`

	// Number between -2.0 and 2.0.
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`

	// Up to 4 sequences where the API will stop generating further tokens.
	Stop []string `json:"stop,omitempty"`

	// https://platform.openai.com/docs/api-reference/chat/create#chat-create-seed
	Seed *int64 `json:"seed,omitempty"`

	// A unique identifier representing your end-user.
	User string `json:"user,omitempty"`

	// Extra holds provider specific options that have no typed field
	// (e.g. "enable_thinking"). Typed fields take precedence.
	Extra map[string]any `json:"-"`
}

// Clone returns a deep enough copy of the config that callers may mutate
// the result without affecting the original.
func (c ChatConfig) Clone() ChatConfig {
	if c.Stop != nil {
		c.Stop = append([]string(nil), c.Stop...)
	}
	if c.Extra != nil {
		c.Extra = maps.Clone(c.Extra)
	}
	return c
}

// CreateChatRequest is sent to the API, which will return a chat response.
type CreateChatRequest struct {
	ChatConfig

	// The context window of the conversation, which is a list of messages.
	//
	// Required.
	Messages []ChatMessage `json:"messages"`

	// Enable streaming mode. Set by CreateChatStream.
	Stream bool `json:"stream,omitempty"`

	// StreamOptions is only sent with streamed requests. CreateChatStream
	// asks for usage unless it is set here or in ChatConfig.Extra.
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
}

// StreamOptions configures a streamed response.
//
// https://platform.openai.com/docs/api-reference/chat/create#chat-create-stream_options
type StreamOptions struct {
	// IncludeUsage adds a final chunk, without choices, carrying the token
	// usage of the whole request.
	IncludeUsage bool `json:"include_usage"`
}

// MarshalJSON merges ChatConfig.Extra into the request body.
func (r CreateChatRequest) MarshalJSON() ([]byte, error) {
	type plain CreateChatRequest

	b, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}

	if len(r.Extra) == 0 {
		return b, nil
	}

	var body map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}

	for k, v := range r.Extra {
		if _, ok := body[k]; ok || k == "messages" || k == "stream" || (k == "stream_options" && !r.Stream) {
			continue
		}
		body[k] = v
	}

	return json.Marshal(body)
}

// Usage reports the tokens consumed by a request.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ChatChoiceMessage is the message (or stream delta) of a choice. Content
// is a pointer so a null content, which marks a reasoning chunk, can be
// told apart from an empty one.
type ChatChoiceMessage struct {
	Role             ChatRole `json:"role,omitempty"`
	Content          *string  `json:"content"`
	ReasoningContent *string  `json:"reasoning_content,omitempty"`
}

// ChatChoice is one of the completions returned by the API.
type ChatChoice struct {
	Index        int                `json:"index"`
	Message      *ChatChoiceMessage `json:"message,omitempty"`
	Delta        *ChatChoiceMessage `json:"delta,omitempty"`
	FinishReason string             `json:"finish_reason,omitempty"`
}

// CreateChatResponse is received in response to a chat request, or as a
// single chunk of a streamed response.
//
// https://platform.openai.com/docs/api-reference/chat/object
type CreateChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Usage   *Usage       `json:"usage,omitempty"`
	Choices []ChatChoice `json:"choices"`
}

// CreateChat sends a chat request to the API to obtain a chat response,
// creating a completion for the included chat messages (the conversation
// context and history).
//
// # Example
//
//	reply, _ := client.CreateChat(ctx, &openai.CreateChatRequest{
//		ChatConfig: openai.ChatConfig{Model: "gpt-4o"},
//		Messages:   []openai.ChatMessage{openai.UserMessage("Hello!")},
//	})
//
//	fmt.Println(reply.Content)
//
// https://platform.openai.com/docs/api-reference/chat/create
func (c *Client) CreateChat(ctx context.Context, req *CreateChatRequest) (*AssistantMessage, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	plain := *req
	plain.Stream = false
	plain.StreamOptions = nil

	start := time.Now()
	resp, err := c.post(ctx, plain, "application/json")
	if err != nil {
		c.Metrics.observe(modeSync, err, time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("failed to read response: %w", err)
		c.Metrics.observe(modeSync, err, time.Since(start))
		return nil, err
	}

	c.Logger.DebugContext(ctx, "chat response body", "bytes", len(body))

	msg, err := NewAssistantMessage(body)
	if err != nil {
		c.Metrics.observe(modeSync, err, time.Since(start))
		return nil, err
	}

	c.Metrics.observe(modeSync, nil, time.Since(start))

	if msg.Response.Usage != nil {
		c.reserveTokens(msg.Response.Usage.TotalTokens)
	}

	return msg, nil
}
