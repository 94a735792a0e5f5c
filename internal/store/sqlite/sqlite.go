package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/chatkeep/internal/pool"
	"github.com/vovakirdan/chatkeep/internal/store"
)

const (
	driverName = "sqlite3_chatkeep"

	// DefaultSaveChatAttempts is how many times a chat save is tried.
	DefaultSaveChatAttempts = 3
	// DefaultRetryBackoff is the fixed wait between chat save attempts.
	DefaultRetryBackoff = time.Second
	// DefaultMaxDatabaseSize is the size ceiling reported by CheckDatabaseSize.
	DefaultMaxDatabaseSize int64 = 50 * 1024 * 1024

	defaultChatPoolSize    = 50
	defaultMessagePoolSize = 100
)

const schema = `
CREATE TABLE IF NOT EXISTS Chat (
	Id              INTEGER PRIMARY KEY AUTOINCREMENT,
	Name            TEXT NOT NULL,
	LastMessage     TEXT NOT NULL DEFAULT '',
	LastMessageDate DATETIME NOT NULL,
	LastSender      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS Message (
	Id               INTEGER PRIMARY KEY AUTOINCREMENT,
	ChatId           INTEGER NOT NULL,
	Text             TEXT NOT NULL,
	Date             DATETIME NOT NULL,
	Sender           TEXT NOT NULL,
	ReplyToMessageId INTEGER,
	ReplyPreviewText TEXT
);

CREATE INDEX IF NOT EXISTS idx_message_chatid ON Message(ChatId);
`

func init() {
	// SQLite's LOWER only folds ASCII; chat names are compared with Go's
	// Unicode-aware lowering instead.
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower_unicode", strings.ToLower, true)
		},
	})
}

// Options tunes the store. Zero values select defaults.
type Options struct {
	Logger           *zerolog.Logger
	ChatPoolSize     int
	MessagePoolSize  int
	SaveChatAttempts int
	RetryBackoff     time.Duration
	MaxDatabaseSize  int64
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	if o.ChatPoolSize <= 0 {
		o.ChatPoolSize = defaultChatPoolSize
	}
	if o.MessagePoolSize <= 0 {
		o.MessagePoolSize = defaultMessagePoolSize
	}
	if o.SaveChatAttempts <= 0 {
		o.SaveChatAttempts = DefaultSaveChatAttempts
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.MaxDatabaseSize <= 0 {
		o.MaxDatabaseSize = DefaultMaxDatabaseSize
	}
	return o
}

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	log  *zerolog.Logger

	// mu guards the pools; the fan-out in ListChats touches them concurrently.
	mu       sync.Mutex
	chats    *pool.Pool[store.Chat, *store.Chat]
	messages *pool.Pool[store.Message, *store.Message]

	saveChatAttempts int
	retryBackoff     time.Duration
	maxDatabaseSize  int64
	wait             func(ctx context.Context, d time.Duration) error
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens or creates the SQLite database at dbPath and ensures the schema.
func New(dbPath string, opts Options) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, opts, nil)
}

// NewWithSetup creates a new SQLite store and runs a setup function after the
// schema is applied. Useful for tests to seed data.
func NewWithSetup(dbPath string, opts Options, setup func(*sql.DB) error) (*SQLiteStore, error) {
	opts = opts.withDefaults()

	if _, err := os.Stat(dbPath); errors.Is(err, fs.ErrNotExist) && dbPath != ":memory:" {
		opts.Logger.Debug().Str("db_path", dbPath).Msg("database file not found, will be created")
	}

	db, err := sql.Open(driverName, dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return &SQLiteStore{
		db:               db,
		path:             dbPath,
		log:              opts.Logger,
		chats:            pool.New[store.Chat]("chat", opts.ChatPoolSize, opts.Logger),
		messages:         pool.New[store.Message]("message", opts.MessagePoolSize, opts.Logger),
		saveChatAttempts: opts.SaveChatAttempts,
		retryBackoff:     opts.RetryBackoff,
		maxDatabaseSize:  opts.MaxDatabaseSize,
		wait:             sleepContext,
	}, nil
}

// Close closes the database connection and drops pooled records.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	s.chats.Clear()
	s.messages.Clear()
	s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	s.log.Debug().Msg("database connection closed and pools cleared")
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckDatabaseSize reports whether the database file, including its WAL,
// is within the configured ceiling.
func (s *SQLiteStore) CheckDatabaseSize(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("check database size: %w", err)
	}
	if s.path == ":memory:" {
		return true, nil
	}

	var total int64
	for _, p := range []string{s.path, s.path + "-wal"} {
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return false, fmt.Errorf("%w: check database size: %w", store.ErrStorageFailure, err)
		}
		total += info.Size()
	}

	ok := total <= s.maxDatabaseSize
	if !ok {
		s.log.Warn().Int64("size", total).Int64("limit", s.maxDatabaseSize).Msg("database size over limit")
	}
	return ok, nil
}

// PoolStats returns the chat and message pool sizes.
func (s *SQLiteStore) PoolStats() []pool.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []pool.Stats{s.chats.Stats(), s.messages.Stats()}
}

func (s *SQLiteStore) acquireChat() *store.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chats.Acquire()
}

func (s *SQLiteStore) acquireMessage() *store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages.Acquire()
}

// ReleaseChats returns chats read from the store, and their messages, to the
// pools. The records must not be used afterwards.
func (s *SQLiteStore) ReleaseChats(chats ...*store.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chats {
		if c == nil {
			continue
		}
		for _, m := range c.Messages {
			s.messages.Release(m)
		}
		s.chats.Release(c)
	}
}

// ReleaseMessages returns messages read from the store to the pool.
func (s *SQLiteStore) ReleaseMessages(msgs ...*store.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.messages.Release(m)
	}
}

// failure classifies an error from a storage call. Cancellation wins over
// storage failure so callers can tell them apart.
func failure(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrValidation) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", store.ErrStorageFailure, op, err)
}
