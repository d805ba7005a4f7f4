package storage_test

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"
	"github.com/ximatai/openai"
	"github.com/ximatai/openai/storage"
)

type record struct {
	Messages []openai.ChatMessage `json:"messages"`
	At       time.Time           `json:"at"`
}

func TestJSONCodec(t *testing.T) {
	codec := &storage.JSONCodec[string, record]{}

	key, err := codec.EncodeKey("2abc-chatcmpl-1")
	must.NoError(t, err)
	must.Eq(t, `"2abc-chatcmpl-1"`, string(key))

	decodedKey, err := codec.DecodeKey(key)
	must.NoError(t, err)
	must.Eq(t, "2abc-chatcmpl-1", decodedKey)

	in := record{
		Messages: []openai.ChatMessage{
			openai.UserMessage("hi"),
			{Role: openai.ChatRoleAssistant, Content: "hello", ReasoningContent: "dropped"},
		},
		At: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	value, err := codec.EncodeValue(in)
	must.NoError(t, err)

	out, err := codec.DecodeValue(value)
	must.NoError(t, err)
	must.True(t, in.At.Equal(out.At))
	must.Eq(t, "hello", out.Messages[1].Content)

	// Reasoning is never part of the stored message.
	must.Eq(t, "", out.Messages[1].ReasoningContent)

	_, err = codec.DecodeValue([]byte("{"))
	must.ErrorContains(t, err, "json decode value")

	_, err = codec.DecodeKey([]byte("not json"))
	must.ErrorContains(t, err, "json decode key")
}
