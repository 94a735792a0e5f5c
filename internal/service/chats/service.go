package chats

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/chatkeep/internal/diff"
	"github.com/vovakirdan/chatkeep/internal/store"
)

// Service is the single coordination point between presentation code and
// storage. It forwards every call and returns errors unchanged.
type Service struct {
	store store.Store
	log   *zerolog.Logger
}

// New creates a new chats Service.
func New(st store.Store, logger *zerolog.Logger) *Service {
	if st == nil {
		panic("chats: nil store")
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "chats").Logger()
	return &Service{
		store: st,
		log:   &l,
	}
}

// ListChats returns every chat with its messages, or an empty list when
// storage cannot be read.
func (s *Service) ListChats(ctx context.Context) []*store.Chat {
	chats := s.store.ListChats(ctx)
	s.log.Debug().Int("count", len(chats)).Msg("chats listed")
	return chats
}

// GetChat returns one chat with its messages.
func (s *Service) GetChat(ctx context.Context, id int64) (*store.Chat, error) {
	return s.store.GetChat(ctx, id)
}

// SaveChat inserts or updates a chat.
func (s *Service) SaveChat(ctx context.Context, chat *store.Chat) error {
	return s.store.SaveChat(ctx, chat)
}

// DeleteChat removes a chat and its messages.
func (s *Service) DeleteChat(ctx context.Context, chat *store.Chat) error {
	return s.store.DeleteChat(ctx, chat)
}

// IsChatNameUnique checks a name against all chats except excludeID.
func (s *Service) IsChatNameUnique(ctx context.Context, name string, excludeID int64) (bool, error) {
	return s.store.IsChatNameUnique(ctx, name, excludeID)
}

// ListMessages returns the messages of a chat.
func (s *Service) ListMessages(ctx context.Context, chatID int64) ([]*store.Message, error) {
	return s.store.ListMessages(ctx, chatID)
}

// SaveMessage inserts or updates a message.
func (s *Service) SaveMessage(ctx context.Context, msg *store.Message) error {
	return s.store.SaveMessage(ctx, msg)
}

// DeleteMessage removes a message.
func (s *Service) DeleteMessage(ctx context.Context, msg *store.Message) error {
	return s.store.DeleteMessage(ctx, msg)
}

// CheckDatabaseSize reports whether the database is under its size ceiling.
func (s *Service) CheckDatabaseSize(ctx context.Context) (bool, error) {
	return s.store.CheckDatabaseSize(ctx)
}

// Release returns chats the caller no longer holds to the store pools.
func (s *Service) Release(chats ...*store.Chat) {
	s.store.ReleaseChats(chats...)
}

// ReleaseMessages returns messages the caller no longer holds to the store pool.
func (s *Service) ReleaseMessages(msgs ...*store.Message) {
	s.store.ReleaseMessages(msgs...)
}

// DiffChats computes the patch from a displayed chat list to a fresh one.
func (s *Service) DiffChats(displayed, fresh []*store.Chat) diff.Script {
	return diff.Compute(displayed, fresh)
}

// DiffMessages computes the patch from a displayed message list to a fresh one.
func (s *Service) DiffMessages(displayed, fresh []*store.Message) diff.Script {
	return diff.Compute(displayed, fresh)
}
