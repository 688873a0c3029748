package message

import (
	"context"
	"fmt"
	"strings"
)

// Message is a chat message received from a service.
// Implementations must be safe to share among goroutines.
type Message interface {
	// Body is the text of the message without any address prefix.
	// E.g. "bot: hello" has body "hello".
	Body() string
	// DirectlyAddressed reports whether the message was aimed at the bot,
	// either by private message or by prefixing the bot's name followed by
	// ':' or ','.
	DirectlyAddressed() bool
	// Sender is the nickname of the user who sent the message.
	Sender() string
	// Nick is the bot's own nickname at the time the message was received.
	Nick() string
	// Reply sends text to wherever the message came from.
	// It may be called any number of times from any goroutine.
	Reply(ctx context.Context, text string) error
}

// formatString is a type to prevent misuse of format strings passed to [Replyf].
type formatString string

// Replyf replies to a message with text formatted from a format string
// literal and formatting arguments.
func Replyf(ctx context.Context, m Message, f formatString, args ...any) error {
	return m.Reply(ctx, strings.TrimSpace(fmt.Sprintf(string(f), args...)))
}

// Lines splits reply text into lines to send individually.
// Empty lines are dropped.
func Lines(text string) []string {
	f := func(r rune) bool { return r == '\n' || r == '\r' }
	return strings.FieldsFunc(text, f)
}
