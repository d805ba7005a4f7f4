package openai

// ChatRole is a role that can be used in a chat session, either “system”,
// “user”, “assistant” or “tool”.
//
// https://platform.openai.com/docs/guides/text-generation
type ChatRole string

const (
	// ChatRoleUser is a user role.
	ChatRoleUser ChatRole = "user"

	// ChatRoleSystem is a system role, used to set up the assistant.
	ChatRoleSystem ChatRole = "system"

	// ChatRoleAssistant is an assistant role.
	ChatRoleAssistant ChatRole = "assistant"

	// ChatRoleTool is the role of a tool result.
	ChatRoleTool ChatRole = "tool"
)
