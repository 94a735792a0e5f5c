package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/chatkeep/internal/diff"
	"github.com/vovakirdan/chatkeep/internal/store"
)

func newTestStore(t *testing.T, opts Options) *SQLiteStore {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "chats.db3"), opts)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustSaveChat(t *testing.T, s *SQLiteStore, name string) *store.Chat {
	t.Helper()

	chat := &store.Chat{Name: name, LastMessageDate: time.Now()}
	if err := s.SaveChat(context.Background(), chat); err != nil {
		t.Fatalf("save chat %q: %v", name, err)
	}
	return chat
}

func mustSaveMessage(t *testing.T, s *SQLiteStore, chatID int64, text string) *store.Message {
	t.Helper()

	msg := &store.Message{ChatID: chatID, Text: text, Sender: store.SenderUser, Date: time.Now()}
	if err := s.SaveMessage(context.Background(), msg); err != nil {
		t.Fatalf("save message %q: %v", text, err)
	}
	return msg
}

func TestSaveChatAssignsIDAndListsIt(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	chat := mustSaveChat(t, s, "Test")
	if chat.ID <= 0 {
		t.Fatalf("expected positive id, got %d", chat.ID)
	}

	chats := s.ListChats(ctx)
	if len(chats) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(chats))
	}
	if chats[0].ID != chat.ID || !chats[0].SameContent(chat) {
		t.Fatalf("unexpected chat: %+v", chats[0])
	}
}

func TestSaveChatUpdatesExisting(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	chat := mustSaveChat(t, s, "Draft")
	id := chat.ID
	chat.Name = "Final"
	chat.LastMessage = "done"
	chat.LastSender = string(store.SenderRobot)
	if err := s.SaveChat(ctx, chat); err != nil {
		t.Fatalf("update chat: %v", err)
	}
	if chat.ID != id {
		t.Fatalf("update changed id from %d to %d", id, chat.ID)
	}

	got, err := s.GetChat(ctx, id)
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if !got.SameContent(chat) {
		t.Fatalf("expected %+v, got %+v", chat, got)
	}
}

func TestSaveChatMissingRowIsNotFound(t *testing.T) {
	s := newTestStore(t, Options{})
	waits := 0
	s.wait = func(context.Context, time.Duration) error {
		waits++
		return nil
	}

	err := s.SaveChat(context.Background(), &store.Chat{ID: 999, Name: "ghost"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if errors.Is(err, store.ErrStorageFailure) {
		t.Fatalf("not found must not be reported as storage failure")
	}
	if waits != 0 {
		t.Fatalf("expected no retries, got %d waits", waits)
	}
}

func TestIsChatNameUnique(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	alpha := mustSaveChat(t, s, "ALPHA")
	mustSaveChat(t, s, "Work")
	mustSaveChat(t, s, "work")
	cyrillic := mustSaveChat(t, s, "Работа")

	tests := []struct {
		name      string
		query     string
		excludeID int64
		want      bool
	}{
		{name: "different case", query: "Alpha", want: false},
		{name: "duplicates stay detected", query: "WORK", want: false},
		{name: "unicode folding", query: "РАБОТА", want: false},
		{name: "exclude self", query: "alpha", excludeID: alpha.ID, want: true},
		{name: "exclude self unicode", query: "работа", excludeID: cyrillic.ID, want: true},
		{name: "unknown name", query: "Beta", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.IsChatNameUnique(ctx, tt.query, tt.excludeID)
			if err != nil {
				t.Fatalf("IsChatNameUnique failed: %v", err)
			}
			if got != tt.want {
				t.Fatalf("IsChatNameUnique(%q, %d) = %v, want %v", tt.query, tt.excludeID, got, tt.want)
			}
		})
	}

	if err := s.DeleteChat(ctx, alpha); err != nil {
		t.Fatalf("delete chat: %v", err)
	}
	unique, err := s.IsChatNameUnique(ctx, "Alpha", 0)
	if err != nil {
		t.Fatalf("IsChatNameUnique failed: %v", err)
	}
	if !unique {
		t.Fatalf("expected name to be free after delete")
	}
}

func TestDeleteChatCascadesToMessages(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	chat := mustSaveChat(t, s, "Doomed")
	other := mustSaveChat(t, s, "Survivor")
	mustSaveMessage(t, s, chat.ID, "one")
	mustSaveMessage(t, s, chat.ID, "two")
	mustSaveMessage(t, s, other.ID, "keep")

	chatID := chat.ID
	if err := s.DeleteChat(ctx, chat); err != nil {
		t.Fatalf("delete chat: %v", err)
	}

	msgs, err := s.ListMessages(ctx, chatID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages after delete, got %d", len(msgs))
	}

	kept, err := s.ListMessages(ctx, other.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(kept) != 1 {
		t.Fatalf("expected other chat untouched, got %d messages", len(kept))
	}

	if _, err := s.GetChat(ctx, chatID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted chat to be gone, got %v", err)
	}
}

func TestSaveMessageRejectsLongText(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	chat := mustSaveChat(t, s, "Limits")
	msg := &store.Message{ChatID: chat.ID, Text: strings.Repeat("x", store.MaxMessageLength+1), Sender: store.SenderUser}
	if err := s.SaveMessage(ctx, msg); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if msg.ID != 0 {
		t.Fatalf("rejected message got id %d", msg.ID)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM Message`).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected message reached storage")
	}
}

func TestMessageRoundTripAndDiff(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	chat := mustSaveChat(t, s, "Test")
	msg := mustSaveMessage(t, s, chat.ID, "hi")

	msgs, err := s.ListMessages(ctx, chat.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hi" || msgs[0].ID != msg.ID || msgs[0].Sender != store.SenderUser {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	script := diff.Compute(nil, msgs)
	if len(script) != 1 || script[0].Kind != diff.Insert || script[0].Pos != 0 {
		t.Fatalf("expected single insert at 0, got %v", script)
	}
}

func TestSaveMessageReplyAndUpdate(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	chat := mustSaveChat(t, s, "Replies")
	target := mustSaveMessage(t, s, chat.ID, "question")

	preview := "question"
	reply := &store.Message{
		ChatID:           chat.ID,
		Text:             "answer",
		Sender:           store.SenderRobot,
		Date:             time.Now(),
		ReplyToMessageID: &target.ID,
		ReplyPreviewText: &preview,
	}
	if err := s.SaveMessage(ctx, reply); err != nil {
		t.Fatalf("save reply: %v", err)
	}

	reply.Text = "better answer"
	if err := s.SaveMessage(ctx, reply); err != nil {
		t.Fatalf("update reply: %v", err)
	}

	msgs, err := s.ListMessages(ctx, chat.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].IsReply() {
		t.Fatalf("first message should not be a reply")
	}
	got := msgs[1]
	if !got.IsReply() || *got.ReplyToMessageID != target.ID || *got.ReplyPreviewText != preview {
		t.Fatalf("reply fields lost: %+v", got)
	}
	if got.Text != "better answer" || !got.Date.Equal(reply.Date) {
		t.Fatalf("update lost: %+v", got)
	}
}

func TestDeleteMessageRecyclesRecord(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	chat := mustSaveChat(t, s, "Recycle")
	mustSaveMessage(t, s, chat.ID, "bye")

	msgs, err := s.ListMessages(ctx, chat.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	before := s.PoolStats()[1].Size

	if err := s.DeleteMessage(ctx, msgs[0]); err != nil {
		t.Fatalf("delete message: %v", err)
	}
	if after := s.PoolStats()[1].Size; after != before+1 {
		t.Fatalf("expected message pool to grow from %d, got %d", before, after)
	}

	left, err := s.ListMessages(ctx, chat.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected message to be deleted")
	}
}

func TestSaveChatRetriesTransientFailures(t *testing.T) {
	s := newTestStore(t, Options{RetryBackoff: time.Second})

	var waited []time.Duration
	s.wait = func(_ context.Context, d time.Duration) error {
		waited = append(waited, d)
		return nil
	}

	// A closed pool fails every attempt the same way a busy file would.
	if err := s.db.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	chat := &store.Chat{Name: "Unlucky"}
	err := s.SaveChat(context.Background(), chat)
	if !errors.Is(err, store.ErrStorageFailure) {
		t.Fatalf("expected storage failure, got %v", err)
	}
	if len(waited) != DefaultSaveChatAttempts-1 {
		t.Fatalf("expected %d backoff waits, got %d", DefaultSaveChatAttempts-1, len(waited))
	}
	for _, d := range waited {
		if d != time.Second {
			t.Fatalf("expected 1s backoff, got %v", d)
		}
	}
	if chat.ID != 0 {
		t.Fatalf("failed insert assigned id %d", chat.ID)
	}
}

func TestSaveChatFailureCarriesLoggedOpID(t *testing.T) {
	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	s := newTestStore(t, Options{Logger: &logger})
	s.wait = func(context.Context, time.Duration) error { return nil }

	if err := s.db.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	err := s.SaveChat(context.Background(), &store.Chat{Name: "Traced"})
	if !errors.Is(err, store.ErrStorageFailure) {
		t.Fatalf("expected storage failure, got %v", err)
	}

	var opIDs []string
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry struct {
			OpID string `json:"op_id"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if entry.OpID != "" && !slices.Contains(opIDs, entry.OpID) {
			opIDs = append(opIDs, entry.OpID)
		}
	}
	if len(opIDs) != 1 {
		t.Fatalf("expected one op id across retries, got %v", opIDs)
	}
	if !strings.Contains(err.Error(), opIDs[0]) {
		t.Fatalf("error %q does not carry op id %s", err, opIDs[0])
	}
}

func TestSaveChatCancelledIsNotRetried(t *testing.T) {
	s := newTestStore(t, Options{})
	waits := 0
	s.wait = func(context.Context, time.Duration) error {
		waits++
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SaveChat(ctx, &store.Chat{Name: "Never"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if errors.Is(err, store.ErrStorageFailure) {
		t.Fatalf("cancellation reported as storage failure: %v", err)
	}
	if waits != 0 {
		t.Fatalf("cancelled save was retried %d times", waits)
	}
}

func TestSaveChatCancelDuringBackoff(t *testing.T) {
	s := newTestStore(t, Options{RetryBackoff: time.Minute})
	if err := s.db.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := s.SaveChat(ctx, &store.Chat{Name: "Stalled"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("backoff was not interrupted, took %v", elapsed)
	}
}

func TestSaveMessageFailsFast(t *testing.T) {
	s := newTestStore(t, Options{})
	chat := mustSaveChat(t, s, "Fast")
	waits := 0
	s.wait = func(context.Context, time.Duration) error {
		waits++
		return nil
	}
	if err := s.db.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	err := s.SaveMessage(context.Background(), &store.Message{ChatID: chat.ID, Text: "hi", Sender: store.SenderUser})
	if !errors.Is(err, store.ErrStorageFailure) {
		t.Fatalf("expected storage failure, got %v", err)
	}
	if waits != 0 {
		t.Fatalf("message save must not retry, waited %d times", waits)
	}
}

func TestReadFailureHandling(t *testing.T) {
	s := newTestStore(t, Options{})
	chat := mustSaveChat(t, s, "Gone")
	if err := s.db.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}
	ctx := context.Background()

	chats := s.ListChats(ctx)
	if chats == nil || len(chats) != 0 {
		t.Fatalf("expected empty non-nil chat list, got %#v", chats)
	}

	if _, err := s.ListMessages(ctx, chat.ID); !errors.Is(err, store.ErrStorageFailure) {
		t.Fatalf("expected storage failure from ListMessages, got %v", err)
	}
}

func TestListChatsAggregatesMessages(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	var ids []int64
	for i, name := range []string{"a", "b", "c", "d", "e", "f"} {
		chat := mustSaveChat(t, s, name)
		ids = append(ids, chat.ID)
		for j := 0; j <= i; j++ {
			mustSaveMessage(t, s, chat.ID, name)
		}
	}

	chats := s.ListChats(ctx)
	if len(chats) != len(ids) {
		t.Fatalf("expected %d chats, got %d", len(ids), len(chats))
	}
	for i, chat := range chats {
		if chat.ID != ids[i] {
			t.Fatalf("chats out of order: %d at %d", chat.ID, i)
		}
		if len(chat.Messages) != i+1 {
			t.Fatalf("chat %s: expected %d messages, got %d", chat.Name, i+1, len(chat.Messages))
		}
		for _, m := range chat.Messages {
			if m.ChatID != chat.ID {
				t.Fatalf("message %d attached to wrong chat", m.ID)
			}
		}
	}
}

func TestCheckDatabaseSize(t *testing.T) {
	ctx := context.Background()

	s := newTestStore(t, Options{})
	ok, err := s.CheckDatabaseSize(ctx)
	if err != nil {
		t.Fatalf("check size: %v", err)
	}
	if !ok {
		t.Fatalf("fresh database reported over limit")
	}

	tiny := newTestStore(t, Options{MaxDatabaseSize: 1})
	mustSaveChat(t, tiny, "Big")
	ok, err = tiny.CheckDatabaseSize(ctx)
	if err != nil {
		t.Fatalf("check size: %v", err)
	}
	if ok {
		t.Fatalf("expected database over a 1 byte limit")
	}
}

func TestNewWithSetupInMemory(t *testing.T) {
	s, err := NewWithSetup(":memory:", Options{}, func(db *sql.DB) error {
		_, err := db.Exec(`INSERT INTO Chat (Name, LastMessageDate) VALUES ('seeded', CURRENT_TIMESTAMP)`)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	chats := s.ListChats(context.Background())
	if len(chats) != 1 || chats[0].Name != "seeded" {
		t.Fatalf("expected seeded chat, got %+v", chats)
	}

	ok, err := s.CheckDatabaseSize(context.Background())
	if err != nil || !ok {
		t.Fatalf("in-memory database should always fit, got %v %v", ok, err)
	}
}

func TestNewFailsOnUnopenablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "chats.db3")
	if _, err := New(path, Options{}); err == nil {
		t.Fatalf("expected error opening %s", path)
	}
}
