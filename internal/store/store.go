package store

import (
	"context"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser  Sender = "User"
	SenderRobot Sender = "Robot"
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderRobot
}

// Chat represents a conversation.
type Chat struct {
	ID              int64
	Name            string
	LastMessage     string
	LastMessageDate time.Time
	LastSender      string

	// Messages is filled at read time and never persisted as a column.
	Messages []*Message
}

// Reset restores every field to its zero value.
func (c *Chat) Reset() {
	c.ID = 0
	c.Name = ""
	c.LastMessage = ""
	c.LastMessageDate = time.Time{}
	c.LastSender = ""
	clear(c.Messages)
	c.Messages = c.Messages[:0]
}

// CopyFrom copies src into c. The messages slice is copied, not shared.
func (c *Chat) CopyFrom(src *Chat) *Chat {
	c.ID = src.ID
	c.Name = src.Name
	c.LastMessage = src.LastMessage
	c.LastMessageDate = src.LastMessageDate
	c.LastSender = src.LastSender
	c.Messages = append(c.Messages[:0], src.Messages...)
	return c
}

// Identity returns the chat id.
func (c *Chat) Identity() int64 {
	return c.ID
}

// SameContent compares the fields shown in a chat list row.
func (c *Chat) SameContent(other *Chat) bool {
	return c.Name == other.Name &&
		c.LastMessage == other.LastMessage &&
		c.LastMessageDate.Equal(other.LastMessageDate) &&
		c.LastSender == other.LastSender
}

// Message represents a persisted chat message.
type Message struct {
	ID               int64
	ChatID           int64
	Text             string
	Date             time.Time
	Sender           Sender
	// ReplyToMessageID has no referential integrity.
	ReplyToMessageID *int64
	ReplyPreviewText *string
}

// Reset restores every field to its zero value.
func (m *Message) Reset() {
	*m = Message{}
}

// CopyFrom copies src into m.
func (m *Message) CopyFrom(src *Message) *Message {
	*m = *src
	return m
}

// Identity returns the message id.
func (m *Message) Identity() int64 {
	return m.ID
}

// SameContent compares the fields shown in a message bubble.
func (m *Message) SameContent(other *Message) bool {
	return m.Text == other.Text &&
		m.Sender == other.Sender &&
		m.Date.Equal(other.Date)
}

// IsReply reports whether the message answers another one.
func (m *Message) IsReply() bool {
	return m.ReplyToMessageID != nil
}

// ChatStore handles chat persistence.
type ChatStore interface {
	// ListChats returns all chats with their messages. Read failures yield an empty list.
	ListChats(ctx context.Context) []*Chat

	// GetChat retrieves a single chat with its messages.
	GetChat(ctx context.Context, id int64) (*Chat, error)

	// SaveChat inserts the chat when its ID is zero and updates it otherwise.
	// On insert the assigned ID is written back into chat.
	SaveChat(ctx context.Context, chat *Chat) error

	// DeleteChat removes the chat and all of its messages.
	DeleteChat(ctx context.Context, chat *Chat) error

	// IsChatNameUnique reports whether no chat other than excludeID has the
	// given name, compared case-insensitively.
	IsChatNameUnique(ctx context.Context, name string, excludeID int64) (bool, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage inserts or updates a message in a single attempt.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages retrieves all messages of a chat in insertion order.
	ListMessages(ctx context.Context, chatID int64) ([]*Message, error)

	// DeleteMessage removes the message. The record must not be used afterwards.
	DeleteMessage(ctx context.Context, msg *Message) error
}

// Store aggregates all storage interfaces.
type Store interface {
	ChatStore
	MessageStore

	// CheckDatabaseSize reports whether the backing file is under the size ceiling.
	CheckDatabaseSize(ctx context.Context) (bool, error)

	// ReleaseChats and ReleaseMessages hand records the caller no longer
	// displays back for reuse.
	ReleaseChats(chats ...*Chat)
	ReleaseMessages(msgs ...*Message)

	// Close closes the underlying database connection.
	Close() error
}
