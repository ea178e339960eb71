// Package state holds the in-memory chat history of a build session. History
// lives only as long as the process.
package state

import (
	"sync"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message mirrors the OpenAI/OpenRouter chat schema so history can be sent
// back verbatim.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// User builds a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant builds an assistant message.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Conversation is an append-only message list safe for concurrent use.
type Conversation struct {
	mu        sync.RWMutex
	key       string
	messages  []Message
	createdAt time.Time
	updatedAt time.Time
}

// NewConversation returns an empty conversation identified by key.
func NewConversation(key string) *Conversation {
	now := time.Now()
	return &Conversation{key: key, createdAt: now, updatedAt: now}
}

// Key returns the identifier assigned to the conversation.
func (c *Conversation) Key() string {
	return c.key
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Append adds messages in order.
func (c *Conversation) Append(msgs ...Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
	c.updatedAt = time.Now()
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Last returns the most recent message with role, if any.
func (c *Conversation) Last(role string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == role {
			return c.messages[i], true
		}
	}
	return Message{}, false
}

// CreatedAt returns when the conversation started.
func (c *Conversation) CreatedAt() time.Time {
	return c.createdAt
}

// UpdatedAt returns when the conversation last changed.
func (c *Conversation) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}
