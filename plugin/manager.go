package plugin

import (
	"cmp"
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zephyrtronium/playbot/command"
	"github.com/zephyrtronium/playbot/message"
	"github.com/zephyrtronium/playbot/metrics"
)

// DefaultInline is the number of inline commands handled per message when
// the configuration does not say otherwise.
const DefaultInline = 3

// Config configures a [Manager].
type Config struct {
	// Prefix introduces commands. Empty means "?".
	Prefix string
	// Inline is the maximum number of inline commands handled per message.
	// Zero means DefaultInline. Negative disables inline commands.
	Inline int
	// Log receives dispatch and registration logs. Nil means slog.Default().
	Log *slog.Logger
	// Metrics records dispatch statistics. Nil means metrics are discarded.
	Metrics *metrics.Metrics
	// Audit, if not nil, is called from the dispatch loop with every routed
	// or unknown command. It must not block.
	Audit func(ctx context.Context, r Route)
}

// Route describes what the manager did with a command.
type Route struct {
	Time    time.Time
	Trace   string
	Sender  string
	Command string
	Args    string
	// Plugin is the plugin that owns the command, or empty if the command
	// does not exist.
	Plugin ID
}

// Info describes a loaded plugin.
type Info struct {
	ID         ID         `json:"id"`
	Commands   []string   `json:"commands"`
	Priorities []Priority `json:"priorities"`
}

type broadcastEntry struct {
	id ID
	p  Priority
	r  Recipient[*MessageEvent]
}

type exclusiveEntry struct {
	id ID
	r  Recipient[*CommandEvent]
}

// Manager routes messages to plugins.
// All registry changes and routing happen in the goroutine running [Run].
type Manager struct {
	ops     chan func(context.Context)
	done    chan struct{}
	prefix  string
	inline  int
	log     *slog.Logger
	metrics *metrics.Metrics
	audit   func(context.Context, Route)

	// Everything below is owned by Run.

	plugins   map[ID]*mailbox
	broadcast []broadcastEntry
	exclusive map[string]exclusiveEntry
	// sys sends replies on the manager's behalf.
	sys *mailbox
}

// New creates a plugin manager. It does nothing until Run is called.
func New(cfg Config) *Manager {
	m := &Manager{
		ops:       make(chan func(context.Context), 64),
		done:      make(chan struct{}),
		prefix:    cmp.Or(cfg.Prefix, "?"),
		inline:    cmp.Or(cfg.Inline, DefaultInline),
		log:       cmp.Or(cfg.Log, slog.Default()),
		metrics:   cfg.Metrics,
		audit:     cfg.Audit,
		plugins:   make(map[ID]*mailbox),
		exclusive: make(map[string]exclusiveEntry),
		sys:       newMailbox(),
	}
	if m.metrics == nil {
		m.metrics = metrics.Discard()
	}
	if m.audit == nil {
		m.audit = func(context.Context, Route) {}
	}
	return m
}

// Run processes registrations and messages until ctx is canceled.
// It must be called exactly once.
// When it returns, every plugin's mailbox is stopped.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.done)
	go m.sys.run(ctx, "", m.log, metrics.Discard().HandlerLatency)
	for {
		select {
		case <-ctx.Done():
			for _, mb := range m.plugins {
				mb.close()
			}
			m.sys.close()
			return ctx.Err()
		case op := <-m.ops:
			op(ctx)
		}
	}
}

// send queues an operation for the dispatch loop.
func (m *Manager) send(ctx context.Context, op func(context.Context)) error {
	select {
	case <-m.done:
		return ErrStopped
	default:
	}
	select {
	case m.ops <- op:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrStopped
	}
}

// call runs f in the dispatch loop and waits for its result.
func (m *Manager) call(ctx context.Context, f func(context.Context) error) error {
	res := make(chan error, 1)
	if err := m.send(ctx, func(ctx context.Context) { res <- f(ctx) }); err != nil {
		return err
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrStopped
		}
	}
}

// Register loads a plugin under the given name.
// The factory runs in the plugin's goroutine, and Register returns once it
// has finished, so messages sent after Register returns reach every handler
// the factory registered.
// If the name is already in use, the result is ErrDuplicatePlugin.
// If ctx ends while the factory is still running, Register returns the ID
// with ctx's error. The plugin stays loaded in that case and holds its name
// until it is unloaded.
func (m *Manager) Register(ctx context.Context, name string, f Factory) (ID, error) {
	id := ID(name)
	ready := make(chan struct{})
	err := m.call(ctx, func(ctx context.Context) error {
		if _, ok := m.plugins[id]; ok {
			m.log.ErrorContext(ctx, "plugin already registered", slog.String("plugin", name))
			return ErrDuplicatePlugin
		}
		mb := newMailbox()
		pctx, cancel := context.WithCancel(ctx)
		log := m.log.With(slog.String("plugin", name))
		c := &Context{m: m, id: id, mb: mb, ctx: pctx, log: log}
		m.plugins[id] = mb
		go func() {
			defer cancel()
			mb.run(pctx, id, log, m.metrics.HandlerLatency)
		}()
		mb.push(func(ctx context.Context) {
			defer close(ready)
			f(ctx, c)
		})
		m.metrics.Plugins.Observe(1)
		m.log.InfoContext(ctx, "registered plugin", slog.String("plugin", name))
		return nil
	})
	if err != nil {
		return "", err
	}
	select {
	case <-ready:
		return id, nil
	case <-ctx.Done():
		return id, ctx.Err()
	case <-m.done:
		return id, ErrStopped
	}
}

// Unload removes all of a plugin's handlers and stops its mailbox once the
// events already delivered to it are handled.
// If no plugin has the ID, the result is ErrUnknownPlugin.
func (m *Manager) Unload(ctx context.Context, id ID) error {
	return m.call(ctx, func(ctx context.Context) error {
		mb, ok := m.plugins[id]
		if !ok {
			m.log.WarnContext(ctx, "unload of unknown plugin", slog.String("plugin", string(id)))
			return ErrUnknownPlugin
		}
		delete(m.plugins, id)
		m.broadcast = slices.DeleteFunc(m.broadcast, func(e broadcastEntry) bool { return e.id == id })
		maps.DeleteFunc(m.exclusive, func(_ string, e exclusiveEntry) bool { return e.id == id })
		mb.close()
		m.metrics.Plugins.Observe(-1)
		m.log.InfoContext(ctx, "unloaded plugin", slog.String("plugin", string(id)))
		return nil
	})
}

// addBroadcast inserts a broadcast handler after all others with the same or
// higher priority. The recipient must belong to the currently loaded plugin
// with the ID. Only the dispatch loop may call it.
func (m *Manager) addBroadcast(ctx context.Context, id ID, p Priority, r Recipient[*MessageEvent]) error {
	if m.plugins[id] != r.mb {
		m.log.WarnContext(ctx, "message handler from unloaded plugin", slog.String("plugin", string(id)), slog.Int64("priority", int64(p)))
		return ErrUnknownPlugin
	}
	k := slices.IndexFunc(m.broadcast, func(e broadcastEntry) bool { return e.p < p })
	if k < 0 {
		k = len(m.broadcast)
	}
	m.broadcast = slices.Insert(m.broadcast, k, broadcastEntry{id: id, p: p, r: r})
	m.log.DebugContext(ctx, "registered message handler", slog.String("plugin", string(id)), slog.Int64("priority", int64(p)))
	return nil
}

// addExclusive claims a command name. Only the dispatch loop may call it.
func (m *Manager) addExclusive(ctx context.Context, id ID, name string, r Recipient[*CommandEvent]) error {
	if m.plugins[id] != r.mb {
		m.log.WarnContext(ctx, "command from unloaded plugin", slog.String("plugin", string(id)), slog.String("command", name))
		return ErrUnknownPlugin
	}
	if e, ok := m.exclusive[name]; ok {
		m.log.ErrorContext(ctx, "command already registered",
			slog.String("command", name),
			slog.String("plugin", string(id)),
			slog.String("owner", string(e.id)),
		)
		return ErrDuplicateCommand
	}
	m.exclusive[name] = exclusiveEntry{id: id, r: r}
	m.log.DebugContext(ctx, "registered command", slog.String("plugin", string(id)), slog.String("command", name))
	return nil
}

// OnMessage queues a message for dispatch. It does not wait for any handler.
func (m *Manager) OnMessage(ctx context.Context, msg message.Message) error {
	return m.send(ctx, func(ctx context.Context) {
		m.metrics.MessagesCount.Observe(1)
		m.route(ctx, msg, false)
		if m.inline < 0 {
			return
		}
		derived := message.Inline(msg)
		if len(derived) > m.inline {
			n := len(derived) - m.inline
			m.log.DebugContext(ctx, "dropped inline commands", slog.String("from", msg.Sender()), slog.Int("count", n))
			m.metrics.InlineDroppedCount.Observe(float64(n))
			derived = derived[:m.inline]
		}
		for _, d := range derived {
			m.metrics.InlineCount.Observe(1)
			m.route(ctx, d, true)
		}
	})
}

// route delivers one message to either its command handler or all broadcast
// handlers. Only the dispatch loop may call it.
func (m *Manager) route(ctx context.Context, msg message.Message, inline bool) {
	trace := uuid.NewString()
	log := m.log.With(slog.String("trace", trace), slog.String("from", msg.Sender()))
	if inline {
		log = log.With(slog.Bool("inline", true))
	}
	cmd, ok := command.Parse(m.prefix, msg.Body())
	if !ok {
		ev := &MessageEvent{Message: msg, Log: log}
		for _, e := range m.broadcast {
			e.r.Send(ev)
		}
		m.metrics.DeliveryCount.Observe(float64(len(m.broadcast)))
		log.DebugContext(ctx, "broadcast message", slog.Int("handlers", len(m.broadcast)))
		return
	}
	log = log.With(slog.String("command", cmd.Name), slog.String("args", cmd.Raw))
	r := Route{
		Time:    time.Now(),
		Trace:   trace,
		Sender:  msg.Sender(),
		Command: cmd.Name,
		Args:    cmd.Raw,
	}
	e, ok := m.exclusive[cmd.Name]
	if !ok {
		log.InfoContext(ctx, "unknown command")
		m.metrics.UnknownCommandCount.Observe(1)
		m.audit(ctx, r)
		m.sys.push(func(ctx context.Context) {
			if err := message.Replyf(ctx, msg, "Command '%s' does not exist", cmd.Name); err != nil {
				log.ErrorContext(ctx, "couldn't reply", slog.Any("err", err))
			}
		})
		return
	}
	r.Plugin = e.id
	log.InfoContext(ctx, "command", slog.String("plugin", string(e.id)))
	m.metrics.CommandCount.Observe(1, cmd.Name)
	m.audit(ctx, r)
	e.r.Send(&CommandEvent{Message: msg, Command: cmd, Log: log})
}

// Plugins lists the loaded plugins sorted by ID.
func (m *Manager) Plugins(ctx context.Context) ([]Info, error) {
	var r []Info
	err := m.call(ctx, func(ctx context.Context) error {
		info := make(map[ID]*Info, len(m.plugins))
		for id := range m.plugins {
			info[id] = &Info{ID: id}
		}
		for _, e := range m.broadcast {
			info[e.id].Priorities = append(info[e.id].Priorities, e.p)
		}
		for name, e := range m.exclusive {
			info[e.id].Commands = append(info[e.id].Commands, name)
		}
		r = make([]Info, 0, len(info))
		for _, p := range info {
			slices.Sort(p.Commands)
			r = append(r, *p)
		}
		slices.SortFunc(r, func(a, b Info) int { return cmp.Compare(a.ID, b.ID) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Commands lists the registered command names in sorted order.
func (m *Manager) Commands(ctx context.Context) ([]string, error) {
	var r []string
	err := m.call(ctx, func(ctx context.Context) error {
		r = slices.Sorted(maps.Keys(m.exclusive))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Drain waits until every plugin has handled the events delivered to it
// before Drain was called, including replies the manager makes itself.
func (m *Manager) Drain(ctx context.Context) error {
	var wg sync.WaitGroup
	err := m.call(ctx, func(ctx context.Context) error {
		mark := func(context.Context) { wg.Done() }
		for _, mb := range m.plugins {
			wg.Add(1)
			if !mb.push(mark) {
				wg.Done()
			}
		}
		wg.Add(1)
		if !m.sys.push(mark) {
			wg.Done()
		}
		return nil
	})
	if err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
