// Package plugin routes chat messages to independently running plugins.
//
// A [Manager] owns every registration. Each plugin receives its events through
// a private mailbox drained by a single goroutine, so one plugin's handlers
// never run concurrently with each other and always observe events in the
// order the manager dispatched them. Delivery only enqueues; the manager never
// waits for a handler to finish.
package plugin

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zephyrtronium/playbot/command"
	"github.com/zephyrtronium/playbot/message"
)

// Priority orders broadcast handlers. Higher priorities are dispatched first.
type Priority int64

// Normal is the priority for handlers with no particular ordering needs.
const Normal Priority = 1000

// ID identifies a registered plugin. It is the name the plugin was
// registered with.
type ID string

// MessageEvent is a message delivered to broadcast handlers.
type MessageEvent struct {
	Message message.Message
	// Log carries the dispatch trace.
	Log *slog.Logger
}

// CommandEvent is a command invocation delivered to the single handler
// registered for the command name.
type CommandEvent struct {
	Message message.Message
	// Command is the parsed invocation.
	Command command.Command
	Log     *slog.Logger
}

// Name is the invoked command name.
func (ev *CommandEvent) Name() string { return ev.Command.Name }

// Arg is the raw argument text following the command name.
func (ev *CommandEvent) Arg() string { return ev.Command.Raw }

// MessageHandler handles broadcast messages.
type MessageHandler func(ctx context.Context, ev *MessageEvent)

// CommandHandler handles command invocations.
type CommandHandler func(ctx context.Context, ev *CommandEvent)

// Factory sets up a plugin's handlers. It runs in the plugin's own goroutine
// as the first item in its mailbox.
type Factory func(ctx context.Context, c *Context)

var (
	// ErrDuplicatePlugin is returned when registering a name that is in use.
	ErrDuplicatePlugin = errors.New("plugin already registered")
	// ErrDuplicateCommand is returned when a command name is already owned
	// by another handler.
	ErrDuplicateCommand = errors.New("command already registered")
	// ErrUnknownPlugin is returned when unloading a plugin that is not loaded.
	ErrUnknownPlugin = errors.New("no such plugin")
	// ErrStopped is returned when the manager is no longer running.
	ErrStopped = errors.New("plugin manager stopped")
)

// Recipient delivers events of one type to a plugin's mailbox.
// The zero value discards everything sent to it.
type Recipient[E any] struct {
	mb *mailbox
	fn func(context.Context, E)
}

// Send enqueues an event for the recipient's plugin and returns immediately.
// It reports false if the plugin has been unloaded.
func (r Recipient[E]) Send(ev E) bool {
	if r.mb == nil {
		return false
	}
	return r.mb.push(func(ctx context.Context) { r.fn(ctx, ev) })
}

// Context is a plugin's handle to its manager.
// It is created once per plugin at registration.
type Context struct {
	m   *Manager
	id  ID
	mb  *mailbox
	ctx context.Context
	log *slog.Logger
}

// ID returns the plugin's ID.
func (c *Context) ID() ID { return c.id }

// Log returns the plugin's logger.
func (c *Context) Log() *slog.Logger { return c.log }

// Recv creates a recipient which runs fn in the plugin's goroutine for each
// event sent to it.
func Recv[E any](c *Context, fn func(ctx context.Context, ev E)) Recipient[E] {
	return Recipient[E]{mb: c.mb, fn: fn}
}

// OnMessage registers a handler for every message that is not a command.
// Handlers with equal priorities run in the order they were registered.
func (c *Context) OnMessage(p Priority, h MessageHandler) error {
	r := Recv[*MessageEvent](c, h)
	err := c.m.call(c.ctx, func(ctx context.Context) error {
		return c.m.addBroadcast(ctx, c.id, p, r)
	})
	if err != nil && !errors.Is(err, ErrUnknownPlugin) {
		c.log.WarnContext(c.ctx, "couldn't register message handler", slog.Int64("priority", int64(p)), slog.Any("err", err))
	}
	return err
}

// OnCommand registers a handler for the named command.
// If another handler already owns the name, the result is ErrDuplicateCommand
// and the first handler keeps it.
func (c *Context) OnCommand(name string, h CommandHandler) error {
	r := Recv[*CommandEvent](c, h)
	err := c.m.call(c.ctx, func(ctx context.Context) error {
		return c.m.addExclusive(ctx, c.id, name, r)
	})
	switch {
	case err == nil, errors.Is(err, ErrUnknownPlugin), errors.Is(err, ErrDuplicateCommand):
		// Either fine or already logged.
	default:
		c.log.WarnContext(c.ctx, "couldn't register command", slog.String("command", name), slog.Any("err", err))
	}
	return err
}
