package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vovakirdan/chatkeep/internal/store"
)

// SaveMessage inserts the message when its ID is zero and updates it
// otherwise. Unlike SaveChat there is a single attempt.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if err := store.ValidateMessage(msg); err != nil {
		return err
	}

	if msg.ID == 0 {
		query := `
			INSERT INTO Message (ChatId, Text, Date, Sender, ReplyToMessageId, ReplyPreviewText)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		result, err := s.db.ExecContext(ctx, query,
			msg.ChatID, msg.Text, msg.Date, string(msg.Sender), msg.ReplyToMessageID, msg.ReplyPreviewText)
		if err != nil {
			return failure(ctx, "insert message", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return failure(ctx, "get last insert id", err)
		}
		msg.ID = id
		s.log.Debug().Int64("message_id", id).Int64("chat_id", msg.ChatID).Msg("message inserted")
		return nil
	}

	query := `
		UPDATE Message
		SET ChatId = ?, Text = ?, Date = ?, Sender = ?, ReplyToMessageId = ?, ReplyPreviewText = ?
		WHERE Id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.ChatID, msg.Text, msg.Date, string(msg.Sender), msg.ReplyToMessageID, msg.ReplyPreviewText, msg.ID)
	if err != nil {
		return failure(ctx, "update message", err)
	}
	if err := expectRow(result, "message", msg.ID); err != nil {
		return failure(ctx, "update message", err)
	}
	s.log.Debug().Int64("message_id", msg.ID).Msg("message updated")
	return nil
}

// ListMessages retrieves all messages of a chat in insertion order.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID int64) ([]*store.Message, error) {
	query := `
		SELECT Id, ChatId, Text, Date, Sender, ReplyToMessageId, ReplyPreviewText
		FROM Message
		WHERE ChatId = ?
		ORDER BY Id
	`
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, failure(ctx, "query messages", err)
	}
	defer rows.Close()

	messages := []*store.Message{}
	for rows.Next() {
		msg := s.acquireMessage()
		if err := scanMessage(rows, msg); err != nil {
			s.ReleaseMessages(append(messages, msg)...)
			return nil, failure(ctx, "scan message", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		s.ReleaseMessages(messages...)
		return nil, failure(ctx, "iterate messages", err)
	}

	return messages, nil
}

// DeleteMessage removes the message and returns the record to the pool.
// The record must not be used afterwards.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, msg *store.Message) error {
	if msg == nil || msg.ID <= 0 {
		return fmt.Errorf("delete message: %w: message is not saved", store.ErrValidation)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM Message WHERE Id = ?`, msg.ID); err != nil {
		return failure(ctx, "delete message", err)
	}

	s.log.Debug().Int64("message_id", msg.ID).Msg("message deleted")
	s.ReleaseMessages(msg)
	return nil
}

func scanMessage(row scanner, msg *store.Message) error {
	var (
		sender       string
		replyTo      sql.NullInt64
		replyPreview sql.NullString
	)
	err := row.Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.Text,
		&msg.Date,
		&sender,
		&replyTo,
		&replyPreview,
	)
	if err != nil {
		return err
	}

	msg.Sender = store.Sender(sender)
	if replyTo.Valid {
		msg.ReplyToMessageID = &replyTo.Int64
	}
	if replyPreview.Valid {
		msg.ReplyPreviewText = &replyPreview.String
	}
	return nil
}
