package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ximatai/openai/internal/sse"
)

// ChatStream is an open streamed chat response. Callers must either drain
// it with Collect or call Close.
type ChatStream struct {
	body    io.ReadCloser
	logger  *slog.Logger
	metrics *Metrics
	reserve func(int64)
	start   time.Time
	usage   *Usage
	err     error

	observeOnce sync.Once
	closeOnce   sync.Once
	closeErr    error
}

// CreateChatStream sends a chat request with streaming enabled and returns
// the open stream of chunks.
//
// # Example
//
//	stream, _ := client.CreateChatStream(ctx, req)
//	reply, _ := stream.Collect(func(chunk *openai.AssistantMessage) {
//		fmt.Print(chunk.Content)
//	})
//
// https://platform.openai.com/docs/api-reference/chat/create#chat-create-stream
func (c *Client) CreateChatStream(ctx context.Context, req *CreateChatRequest) (*ChatStream, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	streamed := *req
	streamed.Stream = true
	if _, ok := req.Extra["stream_options"]; !ok && streamed.StreamOptions == nil {
		streamed.StreamOptions = &StreamOptions{IncludeUsage: true}
	}

	start := time.Now()
	resp, err := c.post(ctx, streamed, "text/event-stream")
	if err != nil {
		c.Metrics.observe(modeStream, err, time.Since(start))
		return nil, err
	}

	return &ChatStream{
		body:    resp.Body,
		logger:  c.Logger,
		metrics: c.Metrics,
		reserve: c.reserveTokens,
		start:   start,
	}, nil
}

// Chunks returns an iterator over the decoded chunks of the stream. Chunks
// without any choice, such as a trailing usage-only chunk, are skipped. The
// first read or decode error is yielded and ends the iteration.
func (s *ChatStream) Chunks() iter.Seq2[*AssistantMessage, error] {
	return func(yield func(*AssistantMessage, error) bool) {
		for data, err := range sse.Events(s.body, s.logger) {
			if err != nil {
				s.err = fmt.Errorf("failed to read stream: %w", err)
				yield(nil, s.err)
				return
			}

			msg, err := NewAssistantMessage([]byte(data))
			switch {
			case errors.Is(err, ErrNoChoices):
				var tail CreateChatResponse
				if json.Unmarshal([]byte(data), &tail) == nil && tail.Usage != nil {
					s.usage = tail.Usage
				}
				s.logger.Debug("skipping chunk without choices", "data", data)
				continue
			case err != nil:
				s.err = fmt.Errorf("failed to decode stream chunk: %w", err)
				yield(nil, s.err)
				return
			}

			if !yield(msg, nil) {
				return
			}
		}
	}
}

// Collect reads the whole stream, calling handler for every chunk, and
// returns the assembled reply. The reply keeps the last chunk's metadata,
// with its content set to the trimmed concatenation of every non-reasoning
// chunk. The stream is closed when Collect returns.
func (s *ChatStream) Collect(handler func(*AssistantMessage)) (*AssistantMessage, error) {
	defer s.Close()

	var (
		content   strings.Builder
		reasoning strings.Builder
		last      *AssistantMessage
		usage     *Usage
	)

	for chunk, err := range s.Chunks() {
		if err != nil {
			s.observe(err)
			return nil, err
		}

		last = chunk
		if chunk.Response.Usage != nil {
			usage = chunk.Response.Usage
		}

		if handler != nil {
			handler(chunk)
		}

		reasoning.WriteString(chunk.Reasoning)
		if !chunk.IsReasoning {
			content.WriteString(chunk.Content)
		}
	}

	if s.usage != nil {
		usage = s.usage
	}

	if last == nil {
		s.observe(ErrEmptyStream)
		return nil, ErrEmptyStream
	}

	final, err := assemble(last, strings.TrimSpace(content.String()), strings.TrimSpace(reasoning.String()), usage)
	if err != nil {
		s.observe(err)
		return nil, err
	}

	s.observe(nil)
	if usage != nil && s.reserve != nil {
		s.reserve(usage.TotalTokens)
	}

	return final, nil
}

// assemble rewrites the last chunk into a complete, non-streamed reply.
func assemble(last *AssistantMessage, content, reasoning string, usage *Usage) (*AssistantMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(last.Raw, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode last chunk: %w", err)
	}

	choice := ChatChoice{
		Index:        last.Response.Choices[0].Index,
		FinishReason: last.Response.Choices[0].FinishReason,
		Message: &ChatChoiceMessage{
			Role:    ChatRoleAssistant,
			Content: &content,
		},
	}
	if reasoning != "" {
		choice.Message.ReasoningContent = &reasoning
	}

	choices, err := json.Marshal([]ChatChoice{choice})
	if err != nil {
		return nil, err
	}
	raw["choices"] = choices

	if usage != nil {
		u, err := json.Marshal(usage)
		if err != nil {
			return nil, err
		}
		raw["usage"] = u
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	return NewAssistantMessage(b)
}

// observe records the outcome of the stream once.
func (s *ChatStream) observe(err error) {
	s.observeOnce.Do(func() {
		s.metrics.observe(modeStream, err, time.Since(s.start))
	})
}

// Close releases the underlying response body. A stream read only through
// Chunks is recorded in the metrics here, with the first error it yielded.
func (s *ChatStream) Close() error {
	s.observe(s.err)
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
