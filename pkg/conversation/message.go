// Package conversation models a conversation as an ordered message history
// and persists it in a project's conversation store.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role is the role for a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is one entry of the conversation history.
// Assistant messages may carry tool calls in addition to text; tool messages
// carry the ID of the call they answer in ToolCallID and whether it failed.
type Message struct {
	ID         string     `json:"id,omitempty"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Timestamp  time.Time  `json:"timestamp"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
}

// ToolCall is a model-issued request to run a named local operation.
// ID is opaque and only used to correlate the result.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the textual outcome of executing a ToolCall.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// Now returns the current time at the precision stored in transcripts.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// NewID returns a fresh message or call identifier.
func NewID() string {
	return uuid.NewString()
}

// NewUserMessage builds a user message stamped with the current time.
func NewUserMessage(content string) Message {
	return Message{ID: NewID(), Role: RoleUser, Content: content, Timestamp: Now()}
}

// NewAssistantMessage builds an assistant message with optional tool calls.
func NewAssistantMessage(content string, calls []ToolCall) Message {
	return Message{ID: NewID(), Role: RoleAssistant, Content: content, Timestamp: Now(), ToolCalls: calls}
}

// NewToolMessage records a tool result, correlated by call ID.
func NewToolMessage(result ToolResult) Message {
	return Message{
		ID:         NewID(),
		Role:       RoleTool,
		Content:    result.Content,
		Timestamp:  Now(),
		ToolCallID: result.CallID,
		Name:       result.Name,
		IsError:    result.IsError,
	}
}

// HasToolCalls reports whether the message requests tool execution.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Conversation is the durable state of one named conversation.
type Conversation struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// Append adds messages to the end of the history, filling in missing IDs
// and timestamps.
func (c *Conversation) Append(msgs ...Message) {
	for _, msg := range msgs {
		if msg.ID == "" {
			msg.ID = NewID()
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = Now()
		}
		c.Messages = append(c.Messages, msg)
	}
}

// Last returns a pointer to the most recent message, or nil when empty.
func (c *Conversation) Last() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// PendingPrompt reports whether the history ends with a non-empty user
// message that has not been answered yet.
func (c *Conversation) PendingPrompt() bool {
	last := c.Last()
	return last != nil && last.Role == RoleUser && !isBlank(last.Content)
}
