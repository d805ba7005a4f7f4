package session_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shoenig/test/must"
	"github.com/ximatai/openai"
	"github.com/ximatai/openai/internal/testserver"
	"github.com/ximatai/openai/session"
	"github.com/ximatai/openai/storage/memory"
)

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testSession(t *testing.T, opts ...session.Option) (*session.Session, *testserver.Server) {
	t.Helper()

	srv := testserver.New(t)
	client := openai.NewClient("test-key", openai.WithBaseURL(srv.URL()+"/chat/completions"))

	return session.Connect(client, "deepseek-ai/DeepSeek-R1-Distill-Qwen-7B", opts...), srv
}

func TestSession_chat(t *testing.T) {
	s, srv := testSession(t)
	srv.Enqueue(testserver.Reply{Content: "Hello, who are you?"})

	must.NoError(t, s.Clear().SetSystemMessage("You are a translator."))

	reply, err := s.Request().AddText("你好，你是谁？").Send(testCtx(t))
	must.NoError(t, err)
	must.Eq(t, "Hello, who are you?", reply.Content)

	must.Len(t, 2, s.Messages())
	must.Eq(t, [][2]string{
		{"system", "You are a translator."},
		{"user", "你好，你是谁？"},
	}, srv.Last().Messages())
	must.Eq(t, "deepseek-ai/DeepSeek-R1-Distill-Qwen-7B", srv.Last().Body["model"].(string))

	system, ok := s.SystemMessage()
	must.True(t, ok)
	must.Eq(t, "You are a translator.", system)
}

func TestSession_history(t *testing.T) {
	s, srv := testSession(t)

	_, err := s.Request().AddText("first").Send(testCtx(t))
	must.NoError(t, err)
	must.Len(t, 2, s.Messages())

	_, err = s.Request().AddText("second").Send(testCtx(t))
	must.NoError(t, err)
	must.Len(t, 4, s.Messages())

	// The second request carries the first exchange as context.
	must.Eq(t, [][2]string{
		{"user", "first"},
		{"assistant", "echo: first"},
		{"user", "second"},
	}, srv.Last().Messages())

	msgs := s.Messages()
	must.Eq(t, openai.ChatRoleAssistant, msgs[3].Role)
	must.Eq(t, "echo: second", msgs[3].Content)
}

func TestSession_configChanged(t *testing.T) {
	s, srv := testSession(t)

	s.Clear()
	s.SetConfig(openai.ChatConfig{
		Model: "meta-llama/Meta-Llama-3.1-8B-Instruct",
		Extra: map[string]any{"top_k": 5},
	})

	_, err := s.Request().AddText("你好，你是谁？").Send(testCtx(t))
	must.NoError(t, err)

	must.Eq(t, "meta-llama/Meta-Llama-3.1-8B-Instruct", srv.Last().Body["model"].(string))
	must.Eq(t, 5.0, srv.Last().Body["top_k"].(float64))
	must.Len(t, 2, s.Messages())

	// Config hands out copies.
	cfg := s.Config()
	cfg.Extra["top_k"] = 99
	must.Eq(t, 5, s.Config().Extra["top_k"].(int))
}

func TestSession_temporary(t *testing.T) {
	store := memory.NewBackend[string, session.Exchange]()
	s, _ := testSession(t, session.WithStorage(store))

	reply, err := s.Clear().Request().Temporary().AddText("你好，你是谁").Send(testCtx(t))
	must.NoError(t, err)
	must.Eq(t, "echo: 你好，你是谁", reply.Content)

	must.Len(t, 0, s.Messages())

	stored, err := s.Exchanges(testCtx(t), 0)
	must.NoError(t, err)
	must.SliceEmpty(t, stored)
}

func TestSession_temporaryUsesHistory(t *testing.T) {
	s, srv := testSession(t)

	_, err := s.Request().AddText("remember me").Send(testCtx(t))
	must.NoError(t, err)

	_, err = s.Request().Temporary().AddText("summarize").Send(testCtx(t))
	must.NoError(t, err)

	must.Len(t, 3, srv.Last().Messages())
	must.Len(t, 2, s.Messages())
}

func TestSession_stream(t *testing.T) {
	s, srv := testSession(t)
	srv.Enqueue(testserver.Reply{
		Reasoning: []string{"Someone ", "says hi."},
		Content:   "I am an assistant.",
	})

	var (
		reasoning []string
		content   []string
	)

	reply, err := s.Clear().
		Request().
		AddText("你好，你是谁？").
		Stream(func(msg *openai.AssistantMessage) {
			if msg.IsReasoning {
				reasoning = append(reasoning, msg.Reasoning)
			} else {
				content = append(content, msg.Content)
			}
		}).
		Send(testCtx(t))
	must.NoError(t, err)

	must.Eq(t, "I am an assistant.", reply.Content)
	must.Eq(t, []string{"Someone ", "says hi."}, reasoning)
	must.Eq(t, []string{"I ", "am ", "an ", "assistant."}, content)
	must.True(t, srv.Last().Body["stream"].(bool))

	msgs := s.Messages()
	must.Len(t, 2, msgs)
	must.Eq(t, "I am an assistant.", msgs[1].Content)
	must.Eq(t, "Someone says hi.", msgs[1].ReasoningContent)
}

func TestSession_noMessages(t *testing.T) {
	s, srv := testSession(t)

	_, err := s.Request().Send(testCtx(t))
	must.ErrorIs(t, err, openai.ErrNoMessages)

	_, err = s.Request().Stream(nil).Send(testCtx(t))
	must.ErrorIs(t, err, openai.ErrNoMessages)

	must.SliceEmpty(t, srv.Requests())
}

func TestSession_failureKeepsHistory(t *testing.T) {
	s, srv := testSession(t)
	srv.Enqueue(testserver.Reply{Status: http.StatusInternalServerError, Body: "boom"})

	_, err := s.Request().AddText("hello").Send(testCtx(t))
	must.Error(t, err)
	must.SliceEmpty(t, s.Messages())
}

// failingBackend accepts reads but refuses every write.
type failingBackend struct {
	*memory.Backend[string, session.Exchange]
}

var errDiskFull = errors.New("disk full")

func (failingBackend) Set(context.Context, string, session.Exchange) error {
	return errDiskFull
}

func TestSession_storageFailure(t *testing.T) {
	s, srv := testSession(t, session.WithStorage(failingBackend{memory.NewBackend[string, session.Exchange]()}))
	srv.Enqueue(testserver.Reply{Content: "saved nowhere"})

	reply, err := s.Request().AddText("hello").Send(testCtx(t))
	must.ErrorIs(t, err, errDiskFull)
	must.ErrorContains(t, err, "failed to save chat response to backend storage")

	// The reply and the in-memory history survive the storage failure.
	must.NotNil(t, reply)
	must.Eq(t, "saved nowhere", reply.Content)

	msgs := s.Messages()
	must.Len(t, 2, msgs)
	must.Eq(t, "hello", msgs[0].Content)
	must.Eq(t, "saved nowhere", msgs[1].Content)

	exchanges, err := s.Exchanges(testCtx(t), 0)
	must.NoError(t, err)
	must.SliceEmpty(t, exchanges)
}

func TestSession_systemMessage(t *testing.T) {
	s, srv := testSession(t)

	must.ErrorIs(t, s.SetSystemMessage(""), session.ErrEmptySystemMessage)

	must.NoError(t, s.SetSystemMessage("be brief"))
	_, err := s.Request().AddText("hi").Send(testCtx(t))
	must.NoError(t, err)

	// The system message is sent but never recorded.
	must.Eq(t, "system", srv.Last().Messages()[0][0])
	must.Len(t, 2, s.Messages())

	s.ClearMessages()
	_, ok := s.SystemMessage()
	must.True(t, ok)
	must.SliceEmpty(t, s.Messages())

	s.Clear()
	_, ok = s.SystemMessage()
	must.False(t, ok)
}

func TestSession_editHistory(t *testing.T) {
	s, _ := testSession(t)

	_, ok := s.PopMessage()
	must.False(t, ok)

	s.SetMessages([]openai.ChatMessage{
		openai.UserMessage("a"),
		{Role: openai.ChatRoleAssistant, Content: "b"},
	})

	last, ok := s.PopMessage()
	must.True(t, ok)
	must.Eq(t, "b", last.Content)
	must.Len(t, 1, s.Messages())
}

func TestSession_storage(t *testing.T) {
	store := memory.NewBackend[string, session.Exchange]()
	s, srv := testSession(t, session.WithStorage(store))

	_, err := s.Request().AddText("one").Send(testCtx(t))
	must.NoError(t, err)

	srv.Enqueue(testserver.Reply{Content: "two back", Reasoning: []string{"thinking"}})
	_, err = s.Request().AddText("two").Stream(nil).Send(testCtx(t))
	must.NoError(t, err)

	exchanges, err := s.Exchanges(testCtx(t), 0)
	must.NoError(t, err)
	must.Len(t, 2, exchanges)

	first := exchanges[0].Value
	must.Eq(t, "deepseek-ai/DeepSeek-R1-Distill-Qwen-7B", first.Model)
	must.Eq(t, "one", first.Requests[0].Content)
	must.Eq(t, "echo: one", first.Response.Content)
	must.Eq(t, int64(15), first.TotalTokens())
	must.StrContains(t, exchanges[0].Key, "chatcmpl-test")

	second := exchanges[1].Value
	must.Eq(t, "two back", second.Response.Content)
	must.Eq(t, "thinking", second.Reasoning)
	must.Eq(t, int64(15), second.TotalTokens())

	latest, err := s.Exchanges(testCtx(t), 1)
	must.NoError(t, err)
	must.Len(t, 1, latest)
	must.Eq(t, "two", latest[0].Value.Requests[0].Content)

	// A fresh session picks the conversation back up.
	restored, _ := testSession(t, session.WithStorage(store))
	loaded, err := restored.Load(testCtx(t), 10)
	must.NoError(t, err)
	must.Len(t, 2, loaded)

	msgs := restored.Messages()
	must.Len(t, 4, msgs)
	must.Eq(t, "one", msgs[0].Content)
	must.Eq(t, "two back", msgs[3].Content)
	must.Eq(t, "thinking", msgs[3].ReasoningContent)

	must.NoError(t, restored.Erase(testCtx(t)))
	exchanges, err = s.Exchanges(testCtx(t), 0)
	must.NoError(t, err)
	must.SliceEmpty(t, exchanges)
	must.Len(t, 4, restored.Messages())
}

func TestSession_concurrent(t *testing.T) {
	s, srv := testSession(t)

	ctx := testCtx(t)
	errs := make(chan error, 10)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Request().AddText("hi").Send(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		must.NoError(t, err)
	}

	must.Len(t, 20, s.Messages())
	must.Len(t, 10, srv.Requests())
}
