package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vovakirdan/chatkeep/internal/store"
	"golang.org/x/sync/errgroup"
)

// messageFanOut bounds concurrent message queries in ListChats.
const messageFanOut = 4

// ListChats returns all chats ordered by id, each with its messages.
// Any read failure is logged and yields an empty list.
func (s *SQLiteStore) ListChats(ctx context.Context) []*store.Chat {
	chats, err := s.listChats(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.log.Warn().Err(err).Msg("list chats cancelled")
		} else {
			s.log.Error().Err(err).Msg("error retrieving chats")
		}
		return []*store.Chat{}
	}
	return chats
}

func (s *SQLiteStore) listChats(ctx context.Context) ([]*store.Chat, error) {
	query := `
		SELECT Id, Name, LastMessage, LastMessageDate, LastSender
		FROM Chat
		ORDER BY Id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	chats := []*store.Chat{}
	for rows.Next() {
		chat := s.acquireChat()
		if err := scanChat(rows, chat); err != nil {
			s.ReleaseChats(append(chats, chat)...)
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		s.ReleaseChats(chats...)
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	rows.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(messageFanOut)
	for _, chat := range chats {
		g.Go(func() error {
			msgs, err := s.ListMessages(gctx, chat.ID)
			if err != nil {
				return err
			}
			chat.Messages = msgs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.ReleaseChats(chats...)
		return nil, err
	}

	return chats, nil
}

// GetChat retrieves a chat by id together with its messages.
func (s *SQLiteStore) GetChat(ctx context.Context, id int64) (*store.Chat, error) {
	query := `
		SELECT Id, Name, LastMessage, LastMessageDate, LastSender
		FROM Chat
		WHERE Id = ?
	`
	chat := s.acquireChat()
	if err := scanChat(s.db.QueryRowContext(ctx, query, id), chat); err != nil {
		s.ReleaseChats(chat)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat %d: %w", id, store.ErrNotFound)
		}
		return nil, failure(ctx, "get chat", err)
	}

	msgs, err := s.ListMessages(ctx, id)
	if err != nil {
		s.ReleaseChats(chat)
		return nil, err
	}
	chat.Messages = msgs

	return chat, nil
}

// SaveChat inserts the chat when its ID is zero and updates it otherwise.
// Transient failures are retried with a fixed backoff. The op id logged with
// every attempt is repeated in the returned error.
func (s *SQLiteStore) SaveChat(ctx context.Context, chat *store.Chat) error {
	if err := store.ValidateChat(chat); err != nil {
		return err
	}

	opID := uuid.NewString()
	logger := s.log.With().
		Str("op_id", opID).
		Str("op", "save_chat").
		Int64("chat_id", chat.ID).
		Logger()

	err := s.retry(ctx, logger, s.saveChatAttempts, s.retryBackoff, func(ctx context.Context) error {
		return s.saveChatOnce(ctx, chat)
	})
	if err != nil {
		return failure(ctx, "save chat (op "+opID+")", err)
	}
	return nil
}

func (s *SQLiteStore) saveChatOnce(ctx context.Context, chat *store.Chat) error {
	if chat.ID == 0 {
		s.log.Debug().Str("name", chat.Name).Msg("inserting new chat")

		query := `
			INSERT INTO Chat (Name, LastMessage, LastMessageDate, LastSender)
			VALUES (?, ?, ?, ?)
		`
		result, err := s.db.ExecContext(ctx, query, chat.Name, chat.LastMessage, chat.LastMessageDate, chat.LastSender)
		if err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("get last insert id: %w", err)
		}
		chat.ID = id
		s.log.Debug().Int64("chat_id", id).Msg("assigned id to chat")
		return nil
	}

	s.log.Debug().Int64("chat_id", chat.ID).Msg("updating existing chat")

	query := `
		UPDATE Chat
		SET Name = ?, LastMessage = ?, LastMessageDate = ?, LastSender = ?
		WHERE Id = ?
	`
	result, err := s.db.ExecContext(ctx, query, chat.Name, chat.LastMessage, chat.LastMessageDate, chat.LastSender, chat.ID)
	if err != nil {
		return fmt.Errorf("update chat: %w", err)
	}
	return expectRow(result, "chat", chat.ID)
}

// DeleteChat removes the chat's messages, then the chat itself. The two
// statements are not wrapped in a transaction: an interruption between them
// leaves orphaned messages behind. The chat record is returned to the pool
// and must not be used afterwards.
func (s *SQLiteStore) DeleteChat(ctx context.Context, chat *store.Chat) error {
	if chat == nil || chat.ID <= 0 {
		return fmt.Errorf("delete chat: %w: chat is not saved", store.ErrValidation)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM Message WHERE ChatId = ?`, chat.ID); err != nil {
		return failure(ctx, "delete chat messages", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM Chat WHERE Id = ?`, chat.ID); err != nil {
		return failure(ctx, "delete chat", err)
	}

	s.log.Debug().Int64("chat_id", chat.ID).Msg("chat deleted")
	s.ReleaseChats(chat)
	return nil
}

// IsChatNameUnique reports whether no chat other than excludeID is named
// name, ignoring case.
func (s *SQLiteStore) IsChatNameUnique(ctx context.Context, name string, excludeID int64) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM Chat
		WHERE lower_unicode(Name) = lower_unicode(?) AND Id != ?
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, name, excludeID).Scan(&count); err != nil {
		return false, failure(ctx, "check chat name uniqueness", err)
	}
	return count == 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(row scanner, chat *store.Chat) error {
	return row.Scan(
		&chat.ID,
		&chat.Name,
		&chat.LastMessage,
		&chat.LastMessageDate,
		&chat.LastSender,
	)
}

func expectRow(result sql.Result, kind string, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, store.ErrNotFound)
	}
	return nil
}
