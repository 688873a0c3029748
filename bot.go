package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/zephyrtronium/playbot/audit"
	"github.com/zephyrtronium/playbot/ignore"
	"github.com/zephyrtronium/playbot/message"
	"github.com/zephyrtronium/playbot/metrics"
	"github.com/zephyrtronium/playbot/plugin"
	"github.com/zephyrtronium/playbot/plugins"
)

// Bot connects transports to the plugin manager.
type Bot struct {
	// manager routes messages to plugins.
	manager *plugin.Manager
	// factories are the plugins that can be loaded by name.
	factories map[string]plugin.Factory
	// src holds databases and collaborators.
	src *sources
	// metrics are the bot's metrics.
	metrics *metrics.Metrics
	// works is the pool of background workers.
	works chan chan func(context.Context)
	// networks holds one connection per configured IRC network.
	networks []*ircConn
	// replNick is the nickname the bot uses at the terminal.
	replNick string
}

var errUnknownBuiltin = errors.New("no such built-in plugin")

// New creates a bot. It does nothing until Run is called.
func New(cfg *Config, src *sources, m *metrics.Metrics, workers int) *Bot {
	b := &Bot{
		src:      src,
		metrics:  m,
		works:    make(chan chan func(context.Context), workers),
		replNick: "playbot",
	}
	for _, c := range cfg.IRC {
		b.networks = append(b.networks, newIRCConn(c))
	}
	if len(cfg.IRC) > 0 && cfg.IRC[0].Nick != "" {
		b.replNick = cfg.IRC[0].Nick
	}
	b.manager = plugin.New(plugin.Config{
		Prefix:  cfg.Prefix,
		Inline:  cfg.Inline,
		Log:     slog.Default(),
		Metrics: m,
		Audit:   b.audit,
	})
	deps := src.deps
	deps.Commands = b.manager.Commands
	deps.Latency = m.PlaygroundLatency
	b.factories = plugins.Builtin(deps)
	return b
}

// Load registers a built-in plugin.
func (b *Bot) Load(ctx context.Context, name string) error {
	f := b.factories[name]
	if f == nil {
		return fmt.Errorf("couldn't load %s: %w", name, errUnknownBuiltin)
	}
	if _, err := b.manager.Register(ctx, name, f); err != nil {
		return fmt.Errorf("couldn't load %s: %w", name, err)
	}
	return nil
}

// Run runs the plugin manager, loads the named plugins, and then runs each
// transport concurrently. When any transport returns, everything stops.
func (b *Bot) Run(ctx context.Context, names []string, transports ...func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return b.manager.Run(ctx) })
	group.Go(func() error {
		for _, name := range names {
			if err := b.Load(ctx, name); err != nil {
				return err
			}
		}
		for _, t := range transports {
			group.Go(func() error {
				defer cancel()
				return t(ctx)
			})
		}
		return nil
	})
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		// Shutting down normally, either from SIGINT or because a transport
		// finished.
		err = nil
	}
	return err
}

// receive handles a message from any transport.
func (b *Bot) receive(ctx context.Context, msg message.Message) {
	if b.src.ignore != nil {
		switch err := b.src.ignore.Check(ctx, msg.Sender()); {
		case err == nil: // do nothing
		case errors.Is(err, ignore.ErrIgnored):
			slog.DebugContext(ctx, "ignored message", slog.String("from", msg.Sender()))
			return
		default:
			// Fail open.
			slog.ErrorContext(ctx, "couldn't check ignore list", slog.String("from", msg.Sender()), slog.Any("err", err))
		}
	}
	if err := b.manager.OnMessage(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "couldn't dispatch message", slog.String("from", msg.Sender()), slog.Any("err", err))
	}
}

// audit records a routed command in the background.
func (b *Bot) audit(ctx context.Context, r plugin.Route) {
	if b.src.audit == nil {
		return
	}
	e := audit.Entry{
		Time:    r.Time,
		Trace:   r.Trace,
		Sender:  r.Sender,
		Command: r.Command,
		Args:    r.Args,
		Plugin:  string(r.Plugin),
	}
	b.enqueue(ctx, func(ctx context.Context) {
		if err := audit.Record(ctx, b.src.audit, e); err != nil {
			slog.ErrorContext(ctx, "couldn't record command", slog.String("trace", e.Trace), slog.Any("err", err))
		}
	})
}

func (b *Bot) enqueue(ctx context.Context, work func(context.Context)) {
	var w chan func(context.Context)
	// Get a worker if one exists. Otherwise, spawn a new one.
	select {
	case w = <-b.works:
	default:
		w = make(chan func(context.Context), 1)
		go worker(ctx, b.works, w)
	}
	select {
	case <-ctx.Done():
	case w <- work:
	}
}

// worker runs works until the pool has no room for it.
func worker(ctx context.Context, works chan chan func(context.Context), ch chan func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case work := <-ch:
			work(ctx)
			select {
			case works <- ch:
			default:
				return
			}
		}
	}
}
