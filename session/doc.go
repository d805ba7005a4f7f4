// Package session keeps the state of a conversation on top of an
// [openai.Client]: the model configuration, an optional system message and
// the message history.
//
// Every call to [Session.Request] opens a single request. Messages added to
// it are sent together with the system message and the history, and once
// the reply arrives both are appended to the history, unless the request
// was marked temporary.
//
//	client := openai.NewClient(os.Getenv("SF_API_KEY"),
//		openai.WithBaseURL("https://api.siliconflow.cn/v1/chat/completions"),
//	)
//
//	s := session.Connect(client, "deepseek-ai/DeepSeek-R1")
//	s.SetSystemMessage("Translate everything I say into English.")
//
//	reply, err := s.Request().AddText("你好，你是谁？").Send(ctx)
//
// Streaming requests deliver each chunk to a handler and still return the
// assembled reply:
//
//	reply, err := s.Request().
//		AddText("你好，你是谁？").
//		Stream(func(chunk *openai.AssistantMessage) {
//			if chunk.IsReasoning {
//				fmt.Print(chunk.Reasoning)
//			} else {
//				fmt.Print(chunk.Content)
//			}
//		}).
//		Send(ctx)
package session
