// Package openai is a thin client for the OpenAI chat completions API and
// the many providers that expose a compatible endpoint.
//
// The client sends requests and decodes replies, both whole and streamed
// as server-sent events. It adds no retries and keeps no state of its own.
// Conversation state lives in the [github.com/ximatai/openai/session]
// package.
//
//	client := openai.NewClient(os.Getenv("OPENAI_API_KEY"),
//		openai.WithBaseURL("https://api.siliconflow.cn/v1/chat/completions"),
//	)
//
// https://platform.openai.com/docs/api-reference/chat
package openai
