package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/ximatai/openai"
	"github.com/ximatai/openai/storage"
)

// ErrEmptySystemMessage is returned when setting an empty system message.
var ErrEmptySystemMessage = errors.New("system message cannot be empty")

// ChatClient is the part of [openai.Client] a session needs.
type ChatClient interface {
	CreateChat(ctx context.Context, req *openai.CreateChatRequest) (*openai.AssistantMessage, error)
	CreateChatStream(ctx context.Context, req *openai.CreateChatRequest) (*openai.ChatStream, error)
}

// Exchange is one request and its reply, as persisted to storage.
type Exchange struct {
	Model            string               `json:"model,omitzero"`
	Requests         []openai.ChatMessage `json:"requests"`
	Response         openai.ChatMessage   `json:"response"`
	Reasoning        string               `json:"reasoning,omitzero"`
	PromptTokens     int64                `json:"prompt_tokens,omitzero"`
	CompletionTokens int64                `json:"completion_tokens,omitzero"`
	CreatedAt        time.Time            `json:"created_at"`
}

// Messages returns the request messages followed by the response.
func (e Exchange) Messages() []openai.ChatMessage {
	msgs := slices.Clone(e.Requests)
	resp := e.Response
	resp.ReasoningContent = e.Reasoning
	return append(msgs, resp)
}

// TotalTokens is the sum of prompt and completion tokens.
func (e Exchange) TotalTokens() int64 {
	return e.PromptTokens + e.CompletionTokens
}

// Option configures a Session.
type Option func(*Session)

// WithStorage persists every non-temporary exchange to b.
func WithStorage(b storage.Backend[string, Exchange]) Option {
	return func(s *Session) {
		s.store = b
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Session is a conversation with a model. It is safe for concurrent use;
// requests in flight at the same time see the same history.
type Session struct {
	client ChatClient
	logger *slog.Logger
	store  storage.Backend[string, Exchange]

	mu       sync.Mutex
	config   openai.ChatConfig
	system   *openai.ChatMessage
	messages []openai.ChatMessage
}

// Connect opens a session for the given model.
func Connect(client ChatClient, model string, opts ...Option) *Session {
	return New(client, openai.ChatConfig{Model: model}, opts...)
}

// New opens a session with a full model configuration, such as
// temperature, max_tokens or provider specific extras.
func New(client ChatClient, config openai.ChatConfig, opts ...Option) *Session {
	s := &Session{
		client: client,
		logger: slog.New(slog.DiscardHandler),
		config: config.Clone(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SetSystemMessage sets the message used to set up the assistant. It is
// sent first with every request and is not part of the history.
func (s *Session) SetSystemMessage(text string) error {
	if text == "" {
		return ErrEmptySystemMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := openai.SystemMessage(text)
	s.system = &msg
	return nil
}

// SystemMessage returns the current system message, if any.
func (s *Session) SystemMessage() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.system == nil {
		return "", false
	}
	return s.system.Content, true
}

// SetConfig replaces the model configuration used by later requests.
func (s *Session) SetConfig(config openai.ChatConfig) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = config.Clone()
	return s
}

// Config returns a copy of the model configuration.
func (s *Session) Config() openai.ChatConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.config.Clone()
}

// Messages returns a copy of the history.
func (s *Session) Messages() []openai.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.messages)
}

// SetMessages replaces the history.
func (s *Session) SetMessages(msgs []openai.ChatMessage) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = slices.Clone(msgs)
	return s
}

// PopMessage removes and returns the last message of the history.
func (s *Session) PopMessage() (openai.ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) == 0 {
		return openai.ChatMessage{}, false
	}

	last := s.messages[len(s.messages)-1]
	s.messages = s.messages[:len(s.messages)-1]
	return last, true
}

// Clear removes the history and the system message. Stored exchanges are
// kept; see Erase.
func (s *Session) Clear() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	s.system = nil
	return s
}

// ClearMessages removes the history but keeps the system message.
func (s *Session) ClearMessages() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	return s
}

// Request opens a new request on the session.
func (s *Session) Request() *Request {
	return &Request{session: s}
}

// send performs the request and records the exchange.
func (s *Session) send(ctx context.Context, r *Request) (*openai.AssistantMessage, error) {
	if len(r.messages) == 0 {
		return nil, openai.ErrNoMessages
	}

	s.mu.Lock()
	config := s.config.Clone()
	msgs := make([]openai.ChatMessage, 0, len(s.messages)+len(r.messages)+1)
	if s.system != nil {
		msgs = append(msgs, *s.system)
	}
	msgs = append(msgs, s.messages...)
	s.mu.Unlock()

	msgs = append(msgs, r.messages...)

	req := &openai.CreateChatRequest{
		ChatConfig: config,
		Messages:   msgs,
	}

	s.logger.DebugContext(ctx, "sending chat request",
		"model", config.Model,
		"messages", len(msgs),
		"stream", r.stream,
		"temporary", r.temporary,
	)

	var (
		reply *openai.AssistantMessage
		err   error
	)
	if r.stream {
		reply, err = s.stream(ctx, req, r.handler)
	} else {
		reply, err = s.client.CreateChat(ctx, req)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "chat request failed", "error", err)
		return nil, err
	}

	if r.temporary {
		return reply, nil
	}

	s.mu.Lock()
	s.messages = append(s.messages, r.messages...)
	s.messages = append(s.messages, reply.Simple())
	s.mu.Unlock()

	if err := s.persist(ctx, config.Model, r.messages, reply); err != nil {
		return reply, err
	}

	return reply, nil
}

func (s *Session) stream(ctx context.Context, req *openai.CreateChatRequest, handler func(*openai.AssistantMessage)) (*openai.AssistantMessage, error) {
	stream, err := s.client.CreateChatStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return stream.Collect(handler)
}

// persist writes the exchange to storage under a time sortable key.
func (s *Session) persist(ctx context.Context, model string, reqs []openai.ChatMessage, reply *openai.AssistantMessage) error {
	if s.store == nil {
		return nil
	}

	usage := reply.Usage()

	key := ksuid.New().String()
	if reply.Response != nil && reply.Response.ID != "" {
		key = fmt.Sprintf("%s-%s", key, reply.Response.ID)
	}

	err := s.store.Set(ctx, key, Exchange{
		Model:            model,
		Requests:         slices.Clone(reqs),
		Response:         reply.Simple(),
		Reasoning:        reply.Reasoning,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to store exchange", "key", key, "error", err)
		return fmt.Errorf("failed to save chat response to backend storage: %w", err)
	}

	s.logger.DebugContext(ctx, "stored exchange", "key", key)
	return nil
}

// Exchanges returns up to limit of the most recent stored exchanges,
// oldest first. A limit of zero or less returns all of them.
func (s *Session) Exchanges(ctx context.Context, limit int) ([]storage.Entry[string, Exchange], error) {
	if s.store == nil {
		return nil, nil
	}

	entries, err := storage.All(ctx, s.store, 100)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat history: %w", err)
	}

	slices.SortStableFunc(entries, func(a, b storage.Entry[string, Exchange]) int {
		return cmp.Or(
			a.Value.CreatedAt.Compare(b.Value.CreatedAt),
			cmp.Compare(a.Key, b.Key),
		)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	return entries, nil
}

// Load replaces the history with the most recent stored exchanges and
// returns them, oldest first.
func (s *Session) Load(ctx context.Context, limit int) ([]Exchange, error) {
	entries, err := s.Exchanges(ctx, limit)
	if err != nil {
		return nil, err
	}

	var (
		loaded []Exchange
		msgs   []openai.ChatMessage
	)
	for _, e := range entries {
		loaded = append(loaded, e.Value)
		msgs = append(msgs, e.Value.Messages()...)
	}

	s.SetMessages(msgs)

	s.logger.DebugContext(ctx, "loaded chat history", "exchanges", len(loaded), "messages", len(msgs))
	return loaded, nil
}

// Erase deletes every stored exchange and flushes the storage backend. The
// in-memory history is left alone.
func (s *Session) Erase(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	if err := storage.Clear(ctx, s.store); err != nil {
		return fmt.Errorf("failed to erase chat history: %w", err)
	}

	if err := s.store.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush backend storage: %w", err)
	}

	return nil
}
