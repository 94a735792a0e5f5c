// Package factory builds new message records for the chat screens: validated
// user messages and canned robot replies.
package factory

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/chatkeep/internal/pool"
	"github.com/vovakirdan/chatkeep/internal/store"
)

// RobotResponses are the canned replies picked by NewRobotMessage.
var RobotResponses = []string{
	"Hi! How can I help?",
	"Ask a question, get an answer!",
	"What would you like to know?",
}

// Factory creates messages from its own pool. Not safe for concurrent use.
type Factory struct {
	pool *pool.Pool[store.Message, *store.Message]
	rand *rand.Rand
	now  func() time.Time
	log  *zerolog.Logger
}

// New creates a Factory. A nil rng selects a randomly seeded one.
func New(poolSize int, rng *rand.Rand, logger *zerolog.Logger) *Factory {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Factory{
		pool: pool.New[store.Message]("factory", poolSize, logger),
		rand: rng,
		now:  time.Now,
		log:  logger,
	}
}

// NewUserMessage validates text and returns an unsaved user message.
func (f *Factory) NewUserMessage(chatID int64, text string) (*store.Message, error) {
	if err := store.ValidateMessageText(text); err != nil {
		return nil, err
	}

	msg := f.pool.Acquire()
	msg.ChatID = chatID
	msg.Text = text
	msg.Date = f.now()
	msg.Sender = store.SenderUser
	f.log.Debug().Int64("chat_id", chatID).Msg("created user message")
	return msg, nil
}

// NewReply returns an unsaved user message answering to.
func (f *Factory) NewReply(to *store.Message, text string) (*store.Message, error) {
	msg, err := f.NewUserMessage(to.ChatID, text)
	if err != nil {
		return nil, err
	}
	id, preview := to.ID, to.Text
	msg.ReplyToMessageID = &id
	msg.ReplyPreviewText = &preview
	return msg, nil
}

// NewForward returns an unsaved user message in chatID quoting msgs, one
// "Sender: text" line per message.
func (f *Factory) NewForward(chatID int64, msgs []*store.Message) (*store.Message, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: nothing to forward", store.ErrValidation)
	}
	return f.NewUserMessage(chatID, ForwardText(msgs))
}

// ForwardText joins msgs into the text of a forwarded message.
func ForwardText(msgs []*store.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Sender, m.Text))
	}
	return strings.Join(lines, "\n")
}

// Edit replaces the text of msg and stamps it with the current time.
// msg is left untouched when text is invalid.
func (f *Factory) Edit(msg *store.Message, text string) error {
	if err := store.ValidateMessageText(text); err != nil {
		return err
	}
	msg.Text = text
	msg.Date = f.now()
	return nil
}

// NewRobotMessage returns an unsaved robot reply with a canned text.
func (f *Factory) NewRobotMessage(chatID int64) *store.Message {
	msg := f.pool.Acquire()
	msg.ChatID = chatID
	msg.Text = RobotResponses[f.rand.IntN(len(RobotResponses))]
	msg.Date = f.now()
	msg.Sender = store.SenderRobot
	f.log.Debug().Int64("chat_id", chatID).Str("text", msg.Text).Msg("created robot message")
	return msg
}

// Recycle returns a message that is no longer displayed to the pool.
func (f *Factory) Recycle(msg *store.Message) {
	f.pool.Release(msg)
}

// Clear empties the factory pool.
func (f *Factory) Clear() {
	f.log.Debug().Int("size", f.pool.Len()).Msg("clearing message pool")
	f.pool.Clear()
}
