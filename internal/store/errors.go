package store

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxChatNameLength is the maximum chat name length in characters.
	MaxChatNameLength = 50
	// MaxMessageLength is the maximum message text length in characters.
	MaxMessageLength = 500
)

var (
	// ErrStorageFailure marks a write or read that the backing store could not complete.
	ErrStorageFailure = errors.New("storage failure")
	// ErrValidation marks a record rejected before reaching storage.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a lookup or update of a missing record.
	ErrNotFound = errors.New("not found")
)

// ValidateChatName checks the name constraints that do not need the database.
func ValidateChatName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: chat name is empty", ErrValidation)
	}
	if n := utf8.RuneCountInString(name); n > MaxChatNameLength {
		return fmt.Errorf("%w: chat name has %d characters, max %d", ErrValidation, n, MaxChatNameLength)
	}
	return nil
}

// ValidateChat checks a chat before it is saved.
func ValidateChat(chat *Chat) error {
	if chat == nil {
		return fmt.Errorf("%w: chat is nil", ErrValidation)
	}
	if chat.ID < 0 {
		return fmt.Errorf("%w: negative chat id %d", ErrValidation, chat.ID)
	}
	return ValidateChatName(chat.Name)
}

// ValidateMessageText checks the text length limits.
func ValidateMessageText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: message text is empty", ErrValidation)
	}
	if n := utf8.RuneCountInString(text); n > MaxMessageLength {
		return fmt.Errorf("%w: message has %d characters, max %d", ErrValidation, n, MaxMessageLength)
	}
	return nil
}

// ValidateMessage checks a message before it is saved.
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrValidation)
	}
	if msg.ChatID <= 0 {
		return fmt.Errorf("%w: message has no chat", ErrValidation)
	}
	if msg.ID < 0 {
		return fmt.Errorf("%w: negative message id %d", ErrValidation, msg.ID)
	}
	if !msg.Sender.Valid() {
		return fmt.Errorf("%w: unknown sender %q", ErrValidation, msg.Sender)
	}
	return ValidateMessageText(msg.Text)
}
