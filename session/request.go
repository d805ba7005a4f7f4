package session

import (
	"context"

	"github.com/ximatai/openai"
)

// Request is a single turn of a conversation. Build it with the chained
// methods and finish with Send. A request should not be sent twice.
type Request struct {
	session   *Session
	temporary bool
	stream    bool
	handler   func(*openai.AssistantMessage)
	messages  []openai.ChatMessage
}

// Temporary keeps the request and its reply out of the session history
// and storage.
func (r *Request) Temporary() *Request {
	r.temporary = true
	return r
}

// AddText adds a user message.
func (r *Request) AddText(text string) *Request {
	return r.AddMessage(openai.UserMessage(text))
}

// AddMessage adds a message of any role.
func (r *Request) AddMessage(msg openai.ChatMessage) *Request {
	r.messages = append(r.messages, msg)
	return r
}

// Stream switches the request to streaming mode. handler is called for
// every chunk, reasoning chunks included; it may be nil.
func (r *Request) Stream(handler func(*openai.AssistantMessage)) *Request {
	r.stream = true
	r.handler = handler
	return r
}

// Send sends the request and returns the complete reply. It returns
// openai.ErrNoMessages without any I/O when no message was added.
//
// When storing the exchange fails, the reply is returned along with the
// error; the in-memory history has already been updated at that point.
func (r *Request) Send(ctx context.Context) (*openai.AssistantMessage, error) {
	return r.session.send(ctx, r)
}
