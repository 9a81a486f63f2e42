// Package chat defines the conversation data model shared by the
// dataset, llm, judge and sample packages.
package chat

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered sequence of turns, oldest first.
type Conversation []Message

// System reports whether the conversation opens with a system turn.
func (c Conversation) System() bool {
	return len(c) > 0 && c[0].Role == RoleSystem
}

// Clone returns a copy whose backing array is independent of c.
func (c Conversation) Clone() Conversation {
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}
