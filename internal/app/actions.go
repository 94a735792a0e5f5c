package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/vovakirdan/chatkeep/internal/store"
)

// MinChatNameLength is the shortest chat name accepted when creating or
// renaming a chat.
const MinChatNameLength = 3

var (
	// ErrNameTaken is returned when a chat name is already used by another chat.
	ErrNameTaken = errors.New("chat name already exists")
	// ErrNotUserMessage is returned when editing or deleting a robot message.
	ErrNotUserMessage = errors.New("only user messages can be changed")
)

// CreateChat validates the name, checks it is unused and saves a new chat.
func (a *App) CreateChat(ctx context.Context, name string) (*store.Chat, error) {
	name = strings.TrimSpace(name)
	if err := a.checkName(ctx, name, 0); err != nil {
		return nil, err
	}
	a.warnIfDatabaseFull(ctx)

	chat := &store.Chat{Name: name}
	if err := a.chats.SaveChat(ctx, chat); err != nil {
		return nil, err
	}
	a.log.Info().Int64("chat_id", chat.ID).Str("name", chat.Name).Msg("chat created")
	return chat, nil
}

// RenameChat gives an existing chat a new, unused name. The returned chat
// can be handed back with Chats().Release.
func (a *App) RenameChat(ctx context.Context, id int64, name string) (*store.Chat, error) {
	name = strings.TrimSpace(name)
	if err := a.checkName(ctx, name, id); err != nil {
		return nil, err
	}

	chat, err := a.chats.GetChat(ctx, id)
	if err != nil {
		return nil, err
	}
	chat.Name = name
	if err := a.chats.SaveChat(ctx, chat); err != nil {
		a.chats.Release(chat)
		return nil, err
	}
	return chat, nil
}

// DeleteChat removes a chat by id together with its messages.
func (a *App) DeleteChat(ctx context.Context, id int64) error {
	chat, err := a.chats.GetChat(ctx, id)
	if err != nil {
		return err
	}
	return a.chats.DeleteChat(ctx, chat)
}

// DeleteMessages removes user messages of a chat. Nothing is deleted unless
// every id exists and belongs to a user message.
func (a *App) DeleteMessages(ctx context.Context, chatID int64, ids ...int64) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: no messages selected", store.ErrValidation)
	}

	msgs, err := a.chats.ListMessages(ctx, chatID)
	if err != nil {
		return err
	}

	selected, err := pick(msgs, chatID, ids)
	if err != nil {
		a.chats.ReleaseMessages(msgs...)
		return err
	}
	for _, m := range selected {
		if m.Sender != store.SenderUser {
			a.chats.ReleaseMessages(msgs...)
			return fmt.Errorf("%w: %w: message %d", store.ErrValidation, ErrNotUserMessage, m.ID)
		}
	}

	kept := slices.DeleteFunc(msgs, func(m *store.Message) bool {
		return slices.Contains(selected, m)
	})
	defer a.chats.ReleaseMessages(kept...)

	for _, m := range selected {
		if err := a.chats.DeleteMessage(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// EditMessage replaces the text of a user message. When it is the chat's
// latest message the chat preview follows.
func (a *App) EditMessage(ctx context.Context, chatID, msgID int64, text string) (*store.Message, error) {
	chat, err := a.chats.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	defer a.chats.Release(chat)

	i := slices.IndexFunc(chat.Messages, func(m *store.Message) bool { return m.ID == msgID })
	if i < 0 {
		return nil, fmt.Errorf("message %d in chat %d: %w", msgID, chatID, store.ErrNotFound)
	}
	msg := chat.Messages[i]
	if msg.Sender != store.SenderUser {
		return nil, fmt.Errorf("%w: %w: message %d", store.ErrValidation, ErrNotUserMessage, msgID)
	}

	if err := a.messages.Edit(msg, text); err != nil {
		return nil, err
	}
	if err := a.chats.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	if i == len(chat.Messages)-1 {
		setPreview(chat, msg)
		if err := a.chats.SaveChat(ctx, chat); err != nil {
			return nil, err
		}
	}
	return new(store.Message).CopyFrom(msg), nil
}

// SendMessage stores a user message, optionally as a reply, then a robot
// answer, keeping the chat preview in sync after each.
func (a *App) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) (user, robot *store.Message, err error) {
	chat, err := a.chats.GetChat(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	defer a.chats.Release(chat)

	if replyTo != 0 {
		i := slices.IndexFunc(chat.Messages, func(m *store.Message) bool { return m.ID == replyTo })
		if i < 0 {
			return nil, nil, fmt.Errorf("reply target %d: %w", replyTo, store.ErrNotFound)
		}
		user, err = a.messages.NewReply(chat.Messages[i], text)
	} else {
		user, err = a.messages.NewUserMessage(chatID, text)
	}
	if err != nil {
		return nil, nil, err
	}
	return a.converse(ctx, chat, user)
}

// ForwardMessages quotes messages of one chat as a new user message in
// another chat, which the robot then answers.
func (a *App) ForwardMessages(ctx context.Context, fromChatID int64, ids []int64, toChatID int64) (user, robot *store.Message, err error) {
	msgs, err := a.chats.ListMessages(ctx, fromChatID)
	if err != nil {
		return nil, nil, err
	}
	selected, err := pick(msgs, fromChatID, ids)
	if err == nil {
		user, err = a.messages.NewForward(toChatID, selected)
	}
	a.chats.ReleaseMessages(msgs...)
	if err != nil {
		return nil, nil, err
	}

	chat, err := a.chats.GetChat(ctx, toChatID)
	if err != nil {
		a.messages.Recycle(user)
		return nil, nil, err
	}
	defer a.chats.Release(chat)

	return a.converse(ctx, chat, user)
}

func (a *App) converse(ctx context.Context, chat *store.Chat, user *store.Message) (*store.Message, *store.Message, error) {
	if err := a.post(ctx, chat, user); err != nil {
		a.messages.Recycle(user)
		return nil, nil, err
	}

	robot := a.messages.NewRobotMessage(chat.ID)
	if err := a.post(ctx, chat, robot); err != nil {
		a.messages.Recycle(robot)
		return user, nil, err
	}
	return user, robot, nil
}

func (a *App) post(ctx context.Context, chat *store.Chat, msg *store.Message) error {
	if err := a.chats.SaveMessage(ctx, msg); err != nil {
		return err
	}
	setPreview(chat, msg)
	return a.chats.SaveChat(ctx, chat)
}

func setPreview(chat *store.Chat, msg *store.Message) {
	chat.LastMessage = msg.Text
	chat.LastMessageDate = msg.Date
	chat.LastSender = string(msg.Sender)
}

// pick returns the messages with the given ids in chat order.
func pick(msgs []*store.Message, chatID int64, ids []int64) ([]*store.Message, error) {
	selected := make([]*store.Message, 0, len(ids))
	for _, m := range msgs {
		if slices.Contains(ids, m.ID) {
			selected = append(selected, m)
		}
	}
	for _, id := range ids {
		if !slices.ContainsFunc(selected, func(m *store.Message) bool { return m.ID == id }) {
			return nil, fmt.Errorf("message %d in chat %d: %w", id, chatID, store.ErrNotFound)
		}
	}
	return selected, nil
}

func (a *App) checkName(ctx context.Context, name string, excludeID int64) error {
	if err := store.ValidateChatName(name); err != nil {
		return err
	}
	if utf8.RuneCountInString(name) < MinChatNameLength {
		return fmt.Errorf("%w: chat name must be at least %d characters", store.ErrValidation, MinChatNameLength)
	}
	unique, err := a.chats.IsChatNameUnique(ctx, name, excludeID)
	if err != nil {
		return err
	}
	if !unique {
		return fmt.Errorf("%w: %w: %q", store.ErrValidation, ErrNameTaken, name)
	}
	return nil
}

func (a *App) warnIfDatabaseFull(ctx context.Context) {
	ok, err := a.chats.CheckDatabaseSize(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("could not check database size")
		return
	}
	if !ok {
		a.log.Warn().Msg("database is over its size limit")
	}
}
