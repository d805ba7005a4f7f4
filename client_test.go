package openai_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shoenig/test/must"
	"github.com/ximatai/openai"
	"github.com/ximatai/openai/internal/testserver"
)

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func ptr[T any](v T) *T {
	return &v
}

func TestCreateChat(t *testing.T) {
	srv := testserver.New(t)
	srv.Enqueue(testserver.Reply{Content: "Hi, I am a translator."})

	c := openai.NewClient("test-key",
		openai.WithBaseURL(srv.URL()),
		openai.WithOrganization("org-123"),
	)

	reply, err := c.CreateChat(testCtx(t), &openai.CreateChatRequest{
		ChatConfig: openai.ChatConfig{
			Model:       "deepseek-ai/DeepSeek-R1",
			Temperature: ptr(0.2),
			Extra: map[string]any{
				"enable_thinking": false,
				"temperature":     1.5,
			},
		},
		Messages: []openai.ChatMessage{
			openai.SystemMessage("You are a translator."),
			openai.UserMessage("你好"),
		},
	})
	must.NoError(t, err)

	must.Eq(t, "Hi, I am a translator.", reply.Content)
	must.False(t, reply.IsReasoning)
	must.Eq(t, openai.ChatRoleAssistant, reply.Role())
	must.Eq(t, int64(15), reply.Usage().TotalTokens)
	must.Eq(t, openai.ChatMessage{Role: openai.ChatRoleAssistant, Content: "Hi, I am a translator."}, reply.Simple())
	must.NotNil(t, reply.Raw)

	req := srv.Last()
	must.Eq(t, "/v1/chat/completions", req.Path)
	must.Eq(t, "Bearer test-key", req.Header.Get("Authorization"))
	must.Eq(t, "application/json", req.Header.Get("Content-Type"))
	must.Eq(t, "org-123", req.Header.Get("OpenAI-Organization"))

	must.Eq(t, "deepseek-ai/DeepSeek-R1", req.Body["model"].(string))
	must.Eq(t, 0.2, req.Body["temperature"].(float64))
	must.Eq(t, false, req.Body["enable_thinking"].(bool))
	_, streamed := req.Body["stream"]
	must.False(t, streamed)
	must.Eq(t, [][2]string{{"system", "You are a translator."}, {"user", "你好"}}, req.Messages())
}

func TestCreateChat_fullEndpointURL(t *testing.T) {
	srv := testserver.New(t)

	c := openai.NewClient("test-key", openai.WithBaseURL(srv.URL()+"/chat/completions"))

	reply, err := c.CreateChat(testCtx(t), &openai.CreateChatRequest{
		ChatConfig: openai.ChatConfig{Model: "gpt-4o"},
		Messages:   []openai.ChatMessage{openai.UserMessage("ping")},
	})
	must.NoError(t, err)
	must.Eq(t, "echo: ping", reply.Content)
	must.Eq(t, "/v1/chat/completions", srv.Last().Path)
}

func TestClient_ChatURL(t *testing.T) {
	cases := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{base: "", want: "https://api.openai.com/v1/chat/completions"},
		{base: "https://api.siliconflow.cn/v1/", want: "https://api.siliconflow.cn/v1/chat/completions"},
		{base: "https://api.siliconflow.cn/v1/chat/completions", want: "https://api.siliconflow.cn/v1/chat/completions"},
		{base: "http://localhost:11434/v1", want: "http://localhost:11434/v1/chat/completions"},
		{base: "ftp://example.com", wantErr: true},
		{base: "https:///v1", wantErr: true},
		{base: "://bad", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.base, func(t *testing.T) {
			got, err := openai.NewClient("k", openai.WithBaseURL(tc.base)).ChatURL()
			if tc.wantErr {
				must.Error(t, err)
				return
			}
			must.NoError(t, err)
			must.Eq(t, tc.want, got)
		})
	}
}

func TestCreateChat_apiError(t *testing.T) {
	srv := testserver.New(t)
	srv.Enqueue(testserver.Reply{Status: http.StatusUnauthorized, Body: "invalid api key"})

	c := openai.NewClient("bad-key", openai.WithBaseURL(srv.URL()))

	_, err := c.CreateChat(testCtx(t), &openai.CreateChatRequest{
		ChatConfig: openai.ChatConfig{Model: "gpt-4o"},
		Messages:   []openai.ChatMessage{openai.UserMessage("hello")},
	})
	must.Error(t, err)

	var apiErr *openai.APIError
	must.True(t, errors.As(err, &apiErr))
	must.Eq(t, http.StatusUnauthorized, apiErr.StatusCode)
	must.StrContains(t, apiErr.Body, "invalid api key")
	must.False(t, apiErr.Temporary())
}

func TestCreateChat_noMessages(t *testing.T) {
	srv := testserver.New(t)
	c := openai.NewClient("test-key", openai.WithBaseURL(srv.URL()))

	_, err := c.CreateChat(testCtx(t), &openai.CreateChatRequest{
		ChatConfig: openai.ChatConfig{Model: "gpt-4o"},
	})
	must.ErrorIs(t, err, openai.ErrNoMessages)

	_, err = c.CreateChatStream(testCtx(t), &openai.CreateChatRequest{
		ChatConfig: openai.ChatConfig{Model: "gpt-4o"},
	})
	must.ErrorIs(t, err, openai.ErrNoMessages)

	must.SliceEmpty(t, srv.Requests())
}

func TestCreateChatStream(t *testing.T) {
	srv := testserver.New(t)
	srv.Enqueue(testserver.Reply{
		Reasoning: []string{"The user ", "greets me."},
		Content:   "Hello there friend",
	})

	c := openai.NewClient("test-key", openai.WithBaseURL(srv.URL()))

	stream, err := c.CreateChatStream(testCtx(t), &openai.CreateChatRequest{
		ChatConfig: openai.ChatConfig{Model: "deepseek-ai/DeepSeek-R1"},
		Messages:   []openai.ChatMessage{openai.UserMessage("你好，你是谁？")},
	})
	must.NoError(t, err)

	var (
		reasoning []string
		content   []string
	)

	reply, err := stream.Collect(func(chunk *openai.AssistantMessage) {
		if chunk.IsReasoning {
			reasoning = append(reasoning, chunk.Reasoning)
		} else {
			content = append(content, chunk.Content)
		}
	})
	must.NoError(t, err)

	must.Eq(t, []string{"The user ", "greets me."}, reasoning)
	must.Eq(t, []string{"Hello ", "there ", "friend"}, content)

	must.Eq(t, "Hello there friend", reply.Content)
	must.Eq(t, "The user greets me.", reply.Reasoning)
	must.False(t, reply.IsReasoning)
	must.Eq(t, "stop", reply.Response.Choices[0].FinishReason)
	must.Eq(t, "chatcmpl-test", reply.Response.ID)
	must.Eq(t, int64(15), reply.Usage().TotalTokens)

	req := srv.Last()
	must.True(t, req.Body["stream"].(bool))
	must.Eq[any](t, map[string]any{"include_usage": true}, req.Body["stream_options"])
	must.Eq(t, "text/event-stream", req.Header.Get("Accept"))

	// Closing after Collect is harmless.
	must.NoError(t, stream.Close())
}

func TestCreateChatStream_chunks(t *testing.T) {
	srv := testserver.New(t)
	srv.Enqueue(testserver.Reply{Content: "one two three"})

	c := openai.NewClient("test-key", openai.WithBaseURL(srv.URL()))

	stream, err := c.CreateChatStream(testCtx(t), &openai.CreateChatRequest{
		ChatConfig: openai.ChatConfig{Model: "gpt-4o"},
		Messages:   []openai.ChatMessage{openai.UserMessage("count")},
	})
	must.NoError(t, err)
	defer stream.Close()

	var got []string
	for chunk, err := range stream.Chunks() {
		must.NoError(t, err)
		got = append(got, chunk.Content)
		if len(got) == 2 {
			break
		}
	}
	must.Eq(t, []string{"one ", "two "}, got)
}

func TestCreateChatStream_streamOptions(t *testing.T) {
	srv := testserver.New(t)
	c := openai.NewClient("test-key", openai.WithBaseURL(srv.URL()))

	t.Run("extra overrides", func(t *testing.T) {
		stream, err := c.CreateChatStream(testCtx(t), &openai.CreateChatRequest{
			ChatConfig: openai.ChatConfig{
				Model: "gpt-4o",
				Extra: map[string]any{"stream_options": map[string]any{"include_usage": false}},
			},
			Messages: []openai.ChatMessage{openai.UserMessage("hello")},
		})
		must.NoError(t, err)

		reply, err := stream.Collect(nil)
		must.NoError(t, err)

		must.Eq[any](t, map[string]any{"include_usage": false}, srv.Last().Body["stream_options"])
		must.Eq(t, int64(0), reply.Usage().TotalTokens)
	})

	t.Run("not sent without streaming", func(t *testing.T) {
		_, err := c.CreateChat(testCtx(t), &openai.CreateChatRequest{
			ChatConfig: openai.ChatConfig{
				Model: "gpt-4o",
				Extra: map[string]any{"stream_options": map[string]any{"include_usage": true}},
			},
			StreamOptions: &openai.StreamOptions{IncludeUsage: true},
			Messages:      []openai.ChatMessage{openai.UserMessage("hello")},
		})
		must.NoError(t, err)

		_, ok := srv.Last().Body["stream_options"]
		must.False(t, ok)
	})
}

func TestCreateChatStream_empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(": keep-alive\n\ndata: [DONE]\n\n"))
	}))
	t.Cleanup(srv.Close)

	c := openai.NewClient("test-key", openai.WithBaseURL(srv.URL))

	stream, err := c.CreateChatStream(testCtx(t), &openai.CreateChatRequest{
		ChatConfig: openai.ChatConfig{Model: "gpt-4o"},
		Messages:   []openai.ChatMessage{openai.UserMessage("hello")},
	})
	must.NoError(t, err)

	_, err = stream.Collect(nil)
	must.ErrorIs(t, err, openai.ErrEmptyStream)
}

func TestCreateChatStream_badChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {not json\n\n"))
	}))
	t.Cleanup(srv.Close)

	c := openai.NewClient("test-key", openai.WithBaseURL(srv.URL))

	stream, err := c.CreateChatStream(testCtx(t), &openai.CreateChatRequest{
		ChatConfig: openai.ChatConfig{Model: "gpt-4o"},
		Messages:   []openai.ChatMessage{openai.UserMessage("hello")},
	})
	must.NoError(t, err)

	_, err = stream.Collect(nil)
	must.Error(t, err)
	must.StrContains(t, err.Error(), "failed to decode stream chunk")
}

func TestNewAssistantMessage(t *testing.T) {
	t.Run("message", func(t *testing.T) {
		m, err := openai.NewAssistantMessage([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi","reasoning_content":"why"}}]}`))
		must.NoError(t, err)
		must.Eq(t, "hi", m.Content)
		must.Eq(t, "why", m.Reasoning)
		must.False(t, m.IsReasoning)
	})

	t.Run("reasoning delta", func(t *testing.T) {
		m, err := openai.NewAssistantMessage([]byte(`{"choices":[{"delta":{"content":null,"reasoning_content":"hmm"}}]}`))
		must.NoError(t, err)
		must.True(t, m.IsReasoning)
		must.Eq(t, "", m.Content)
		must.Eq(t, "hmm", m.Reasoning)
	})

	t.Run("empty content is not reasoning", func(t *testing.T) {
		m, err := openai.NewAssistantMessage([]byte(`{"choices":[{"delta":{"content":""}}]}`))
		must.NoError(t, err)
		must.False(t, m.IsReasoning)
	})

	t.Run("message wins over delta", func(t *testing.T) {
		m, err := openai.NewAssistantMessage([]byte(`{"choices":[{"message":{"content":"final"},"delta":{"content":"partial"}}]}`))
		must.NoError(t, err)
		must.Eq(t, "final", m.Content)
	})

	t.Run("no choices", func(t *testing.T) {
		_, err := openai.NewAssistantMessage([]byte(`{"choices":[]}`))
		must.ErrorIs(t, err, openai.ErrNoChoices)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := openai.NewAssistantMessage([]byte(`nope`))
		must.Error(t, err)
	})
}

func TestCreateChatRequest_MarshalJSON(t *testing.T) {
	req := openai.CreateChatRequest{
		ChatConfig: openai.ChatConfig{
			Model: "m",
			Seed:  ptr(int64(9007199254740993)),
			Extra: map[string]any{
				"messages": "ignored",
				"stream":   true,
				"top_k":    50,
			},
		},
		Messages: []openai.ChatMessage{openai.UserMessage("x")},
	}

	b, err := req.MarshalJSON()
	must.NoError(t, err)

	s := string(b)
	must.StrContains(t, s, `"seed":9007199254740993`)
	must.StrContains(t, s, `"top_k":50`)
	must.StrContains(t, s, `"messages":[{"content":"x","role":"user"}]`)
	must.StrNotContains(t, s, `"stream"`)
}
