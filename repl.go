package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/zephyrtronium/playbot/message"
)

// replMessage is a line read from a terminal.
type replMessage struct {
	body string
	nick string
	out  *lockedWriter
}

var _ message.Message = (*replMessage)(nil)

func (m *replMessage) Body() string            { return m.body }
func (m *replMessage) DirectlyAddressed() bool { return true }
func (m *replMessage) Sender() string          { return "repl" }
func (m *replMessage) Nick() string            { return m.nick }

func (m *replMessage) Reply(ctx context.Context, text string) error {
	for _, line := range message.Lines(text) {
		if _, err := m.out.println(line); err != nil {
			return err
		}
	}
	return nil
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *lockedWriter) println(s string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fmt.Fprintln(w.w, s)
}

// repl returns a transport that treats every line of r as a message
// addressed to the bot and writes replies to w. Once r is exhausted, it
// waits for plugins to finish with what they were given.
func (b *Bot) repl(r io.Reader, w io.Writer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		out := &lockedWriter{w: w}
		lines := make(chan string)
		errs := make(chan error, 1)
		go func() {
			defer close(lines)
			sc := bufio.NewScanner(r)
			for sc.Scan() {
				select {
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				case lines <- sc.Text():
				}
			}
			errs <- sc.Err()
		}()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case line, ok := <-lines:
				if !ok {
					if err := <-errs; err != nil {
						return fmt.Errorf("couldn't read input: %w", err)
					}
					slog.DebugContext(ctx, "input finished; waiting for plugins")
					return b.manager.Drain(ctx)
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				b.receive(ctx, &replMessage{body: line, nick: b.replNick, out: out})
			}
		}
	}
}
