package llm

import "context"

// Role tags a message segment.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged segment of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Completer turns an ordered list of segments into a single reply.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// System is shorthand for a system segment.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User is shorthand for a user segment.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }
