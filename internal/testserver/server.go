// Package testserver provides a fake OpenAI compatible chat completions
// endpoint for tests, answering both plain and streamed requests.
package testserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Reply scripts the answer to a single request.
type Reply struct {
	// Content is the answer text. Streamed replies send it word by word.
	Content string

	// Reasoning, when set, is sent before the content as reasoning chunks
	// (content null, reasoning_content set).
	Reasoning []string

	// Status, when set to a non-2xx code, fails the request with Body.
	Status int
	Body   string
}

// Request is a request received by the server.
type Request struct {
	Header http.Header
	Path   string
	Body   map[string]any
}

// Messages returns the role and content of each message in the request.
func (r Request) Messages() [][2]string {
	raw, _ := r.Body["messages"].([]any)
	out := make([][2]string, 0, len(raw))
	for _, m := range raw {
		mm, _ := m.(map[string]any)
		role, _ := mm["role"].(string)
		content, _ := mm["content"].(string)
		out = append(out, [2]string{role, content})
	}
	return out
}

// Server is a fake chat completions endpoint.
type Server struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	replies  []Reply
	requests []Request
}

// New starts a server that is closed when the test ends.
func New(t *testing.T) *Server {
	t.Helper()

	s := &Server{t: t}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.server.Close)
	return s
}

// URL returns the API base URL, e.g. http://127.0.0.1:1234/v1.
func (s *Server) URL() string {
	return s.server.URL + "/v1"
}

// Enqueue scripts the next replies. Without a scripted reply the server
// echoes the last message it received.
func (s *Server) Enqueue(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Last returns the most recent request.
func (s *Server) Last() Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		s.t.Fatal("testserver: no requests received")
	}
	return s.requests[len(s.requests)-1]
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := Request{Header: r.Header.Clone(), Path: r.URL.Path, Body: body}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	var reply Reply
	if len(s.replies) > 0 {
		reply = s.replies[0]
		s.replies = s.replies[1:]
	} else {
		msgs := req.Messages()
		if len(msgs) > 0 {
			reply.Content = "echo: " + msgs[len(msgs)-1][1]
		}
	}
	s.mu.Unlock()

	if reply.Status != 0 && (reply.Status < 200 || reply.Status > 299) {
		http.Error(w, reply.Body, reply.Status)
		return
	}

	model, _ := body["model"].(string)

	if stream, _ := body["stream"].(bool); stream {
		opts, _ := body["stream_options"].(map[string]any)
		includeUsage, _ := opts["include_usage"].(bool)
		s.stream(w, model, reply, includeUsage)
		return
	}

	var reasoning any
	if len(reply.Reasoning) > 0 {
		reasoning = strings.Join(reply.Reasoning, "")
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   model,
		"choices": []map[string]any{{
			"index": 0,
			"message": map[string]any{
				"role":              "assistant",
				"content":           reply.Content,
				"reasoning_content": reasoning,
			},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 5,
			"total_tokens":      15,
		},
	})
}

// stream sends the reply as chunks. The usage only tail chunk is sent when
// the request asked for it with stream_options.include_usage.
func (s *Server) stream(w http.ResponseWriter, model string, reply Reply, includeUsage bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)

	send := func(v any) {
		data, _ := json.Marshal(v)
		_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}

	chunk := func(delta map[string]any, finish any) map[string]any {
		return map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion.chunk",
			"created": 1700000000,
			"model":   model,
			"choices": []map[string]any{{
				"index":         0,
				"delta":         delta,
				"finish_reason": finish,
			}},
		}
	}

	for _, r := range reply.Reasoning {
		send(chunk(map[string]any{"content": nil, "reasoning_content": r}, nil))
	}

	words := strings.SplitAfter(reply.Content, " ")
	for i, word := range words {
		var finish any
		if i == len(words)-1 {
			finish = "stop"
		}
		send(chunk(map[string]any{"content": word, "reasoning_content": nil}, finish))
	}

	if includeUsage {
		send(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion.chunk",
			"created": 1700000000,
			"model":   model,
			"choices": []any{},
			"usage": map[string]any{
				"prompt_tokens":     10,
				"completion_tokens": 5,
				"total_tokens":      15,
			},
		})
	}

	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}
