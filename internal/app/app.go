package app

import (
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/chatkeep/internal/config"
	"github.com/vovakirdan/chatkeep/internal/factory"
	"github.com/vovakirdan/chatkeep/internal/service/chats"
	"github.com/vovakirdan/chatkeep/internal/store"
	"github.com/vovakirdan/chatkeep/internal/store/sqlite"
)

// App wires together storage, the chats service and the message factory.
// It owns the store lifecycle.
type App struct {
	store    store.Store
	chats    *chats.Service
	messages *factory.Factory
	log      *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath, sqlite.Options{
		Logger:           logger,
		ChatPoolSize:     cfg.ChatPoolSize,
		MessagePoolSize:  cfg.MessagePoolSize,
		SaveChatAttempts: cfg.SaveChatAttempts,
		RetryBackoff:     cfg.RetryBackoff,
		MaxDatabaseSize:  cfg.MaxDatabaseSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Debug().Str("db_path", st.Path()).Msg("database initialized")

	return &App{
		store:    st,
		chats:    chats.New(st, logger),
		messages: factory.New(cfg.MessagePoolSize, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), logger),
		log:      logger,
	}, nil
}

// Chats returns the chats service.
func (a *App) Chats() *chats.Service {
	return a.chats
}

// Messages returns the message factory.
func (a *App) Messages() *factory.Factory {
	return a.messages
}

// Close releases pooled records and closes the database.
func (a *App) Close() error {
	a.messages.Clear()
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
		return err
	}
	a.log.Debug().Msg("store closed")
	return nil
}
