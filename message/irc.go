package message

import (
	"context"
	"strings"
	"unicode"

	"gitlab.com/zephyrtronium/tmi"
	"golang.org/x/text/cases"
)

// MaxLine is the maximum length in bytes of a single line sent over IRC.
const MaxLine = 400

// TooLong replaces lines longer than [MaxLine].
const TooLong = "<<<message too long for irc>>>"

// IRC is a message received over IRC.
type IRC struct {
	body      string
	sender    string
	nick      string
	target    string
	channel   bool
	addressed bool
	send      func(ctx context.Context, msg *tmi.Message) error
}

var _ Message = (*IRC)(nil)

// FromTMI adapts an IRC PRIVMSG addressed to a channel or to the bot whose
// current nickname is nick. Replies are written through send.
// It returns nil if m is not a chat message, including CTCP requests.
func FromTMI(m *tmi.Message, nick string, send func(ctx context.Context, msg *tmi.Message) error) *IRC {
	if m.Command != "PRIVMSG" || len(m.Params) == 0 {
		return nil
	}
	body := strings.TrimSpace(m.Trailing)
	if strings.HasPrefix(body, "\x01") && strings.HasSuffix(body, "\x01") {
		return nil
	}
	r := IRC{
		body:   body,
		sender: m.Nick,
		nick:   nick,
		target: m.To(),
		send:   send,
	}
	if isChannel(r.target) {
		r.channel = true
	} else {
		// Private message. Reply to whoever sent it.
		r.target = m.Nick
		r.addressed = true
	}
	if rest, ok := cutNick(body, nick); ok {
		r.body = rest
		r.addressed = true
	}
	return &r
}

// cutNick removes a "nick:" or "nick," prefix from body, ignoring case.
// Whitespace may come between the nick and the separator.
func cutNick(body, nick string) (string, bool) {
	if nick == "" || len(body) <= len(nick) {
		return body, false
	}
	if !SameNick(body[:len(nick)], nick) {
		return body, false
	}
	rest := strings.TrimLeftFunc(body[len(nick):], unicode.IsSpace)
	if rest == "" {
		return body, false
	}
	switch rest[0] {
	case ':', ',':
		return strings.TrimSpace(rest[1:]), true
	}
	return body, false
}

// SameNick reports whether two IRC nicknames are equal under case folding.
func SameNick(a, b string) bool {
	// Casers are stateful, so each call gets its own.
	return cases.Fold().String(a) == cases.Fold().String(b)
}

func isChannel(s string) bool {
	return s != "" && strings.IndexByte("#&+!", s[0]) >= 0
}

func (m *IRC) Body() string            { return m.body }
func (m *IRC) DirectlyAddressed() bool { return m.addressed }
func (m *IRC) Sender() string          { return m.sender }
func (m *IRC) Nick() string            { return m.nick }

// Target is the channel or nickname that replies go to.
func (m *IRC) Target() string { return m.target }

// Reply sends each line of text separately. Replies in channels are notices.
func (m *IRC) Reply(ctx context.Context, text string) error {
	for _, line := range Lines(text) {
		if len(line) > MaxLine {
			line = TooLong
		}
		if err := m.send(ctx, ToTMI(m.channel, m.target, line)); err != nil {
			return err
		}
	}
	return nil
}

// ToTMI creates a message to send over IRC. Messages to channels are
// notices so that other bots do not respond to them.
func ToTMI(notice bool, to, text string) *tmi.Message {
	r := tmi.Privmsg(to, text)
	if notice {
		r.Command = "NOTICE"
	}
	return r
}
