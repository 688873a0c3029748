package main

import (
	"cmp"
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"gitlab.com/zephyrtronium/tmi"
	"golang.org/x/time/rate"

	"github.com/zephyrtronium/playbot/message"
	"github.com/zephyrtronium/playbot/syncmap"
)

// ircConn is the state of the connection to one IRC network.
type ircConn struct {
	cfg IRCCfg
	// nick is the bot's current nickname on the network.
	nick atomic.Pointer[string]
	// channels are the channels the bot is in, with join times.
	channels *syncmap.Map[string, time.Time]
	log      *slog.Logger
}

func newIRCConn(cfg IRCCfg) *ircConn {
	c := &ircConn{
		cfg:      cfg,
		channels: syncmap.New[string, time.Time](),
		log:      slog.With(slog.String("server", cfg.Server)),
	}
	c.setNick(cfg.Nick)
	return c
}

// Nick returns the bot's current nickname on the network.
func (c *ircConn) Nick() string {
	if p := c.nick.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *ircConn) setNick(nick string) {
	c.nick.Store(&nick)
}

// irc returns a transport that connects to an IRC server and relays chat
// messages to plugins until ctx is done.
func (b *Bot) irc(c *ircConn) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		cfg := c.cfg
		conn := tmi.ConnectConfig{
			Dial:      cfg.dialer(),
			RetryWait: tmi.RetryList(true, 0, time.Second, time.Minute, 5*time.Minute),
			Nick:      cfg.Nick,
			Pass:      cfg.Pass,
			Timeout:   cmp.Or(fseconds(cfg.Timeout), 300*time.Second),
		}
		send := make(chan *tmi.Message, 1)
		recv := make(chan *tmi.Message, 8) // 8 is enough for on-connect msgs
		lim := rate.NewLimiter(rate.Every(fseconds(cfg.Rate.Every)), max(cfg.Rate.Num, 1))
		go b.ircLoop(ctx, c, lim, send, recv)
		log := slog.NewLogLogger(c.log.Handler(), slog.LevelDebug)
		tmi.Connect(ctx, conn, tmi.Log(log, false), send, recv)
		return ctx.Err()
	}
}

// ircLoop handles messages received from IRC.
func (b *Bot) ircLoop(ctx context.Context, c *ircConn, lim *rate.Limiter, send chan<- *tmi.Message, recv <-chan *tmi.Message) {
	reply := func(ctx context.Context, msg *tmi.Message) error {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case send <- msg:
			return nil
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-recv:
			if !ok {
				return
			}
			switch msg.Command {
			case "PRIVMSG":
				m := message.FromTMI(msg, c.Nick(), reply)
				if m == nil {
					// CTCP.
					continue
				}
				b.receive(ctx, m)
			case "NICK":
				if message.SameNick(msg.Nick, c.Nick()) {
					nick := param(msg)
					c.log.InfoContext(ctx, "nick changed", slog.String("old", msg.Nick), slog.String("new", nick))
					c.setNick(nick)
				}
			case "JOIN":
				if message.SameNick(msg.Nick, c.Nick()) {
					ch := param(msg)
					c.log.InfoContext(ctx, "joined channel", slog.String("channel", ch))
					c.channels.Store(strings.ToLower(ch), time.Now())
				}
			case "PART":
				if message.SameNick(msg.Nick, c.Nick()) {
					ch := param(msg)
					c.log.InfoContext(ctx, "left channel", slog.String("channel", ch))
					c.channels.Delete(strings.ToLower(ch))
				}
			case "KICK":
				if len(msg.Params) > 1 && message.SameNick(msg.Params[1], c.Nick()) {
					c.log.WarnContext(ctx, "kicked from channel", slog.String("channel", msg.Params[0]), slog.String("by", msg.Nick), slog.String("reason", msg.Trailing))
					c.channels.Delete(strings.ToLower(msg.Params[0]))
				}
			case "433": // Nickname in use
				nick := c.Nick() + "_"
				c.log.WarnContext(ctx, "nick in use", slog.String("next", nick))
				c.setNick(nick)
				go reply(ctx, &tmi.Message{Command: "NICK", Params: []string{nick}})
			case "001": // Welcome
				// The server tells us what our nick actually is.
				if len(msg.Params) > 0 && msg.Params[0] != "*" {
					c.setNick(msg.Params[0])
				}
			case "376", "422": // End MOTD, No MOTD
				c.channels.Clear()
				go join(ctx, c.log, reply, c.cfg.Channels)
			}
		}
	}
}

// join joins channels in batches.
func join(ctx context.Context, log *slog.Logger, send func(context.Context, *tmi.Message) error, channels []string) {
	const burst = 10
	for len(channels) > 0 {
		l := channels[:min(burst, len(channels))]
		channels = channels[len(l):]
		msg := tmi.Message{
			Command: "JOIN",
			Params:  []string{strings.Join(l, ",")},
		}
		if err := send(ctx, &msg); err != nil {
			log.ErrorContext(ctx, "couldn't join channels", slog.Any("channels", l), slog.Any("err", err))
			return
		}
	}
}

// param returns a message's first parameter. Some servers send it as the
// trailing parameter instead.
func param(msg *tmi.Message) string {
	if len(msg.Params) > 0 {
		return msg.Params[0]
	}
	return msg.Trailing
}
