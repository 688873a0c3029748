// Package messagetest provides an in-memory message for tests.
package messagetest

import (
	"context"
	"sync"

	"github.com/zephyrtronium/playbot/message"
)

// Message is a message with a fixed body which records its replies.
type Message struct {
	Text      string
	From      string
	Me        string
	Addressed bool

	mu      sync.Mutex
	replies []string
	notify  chan struct{}
}

var _ message.Message = (*Message)(nil)

// New creates a new test message.
func New(from, text string, addressed bool) *Message {
	return &Message{Text: text, From: from, Me: "playbot", Addressed: addressed, notify: make(chan struct{}, 1)}
}

func (m *Message) Body() string            { return m.Text }
func (m *Message) DirectlyAddressed() bool { return m.Addressed }
func (m *Message) Sender() string          { return m.From }
func (m *Message) Nick() string            { return m.Me }

// Reply records text.
func (m *Message) Reply(ctx context.Context, text string) error {
	m.mu.Lock()
	m.replies = append(m.replies, text)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// Replies returns a copy of all replies so far.
func (m *Message) Replies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.replies...)
}

// Wait blocks until there are at least n replies or ctx is done, then returns
// the replies so far.
func (m *Message) Wait(ctx context.Context, n int) []string {
	for {
		r := m.Replies()
		if len(r) >= n {
			return r
		}
		select {
		case <-ctx.Done():
			return m.Replies()
		case <-m.notify:
		}
	}
}
