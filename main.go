package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/zephyrtronium/playbot/audit"
	"github.com/zephyrtronium/playbot/metrics"
)

var app = cli.Command{
	Name:  "playbot",
	Usage: "IRC bot for evaluating Rust code and looking up crates",

	Flags: []cli.Flag{
		&flagConfig,
		&flagLog,
		&flagLogFormat,
		&flagEnv,
	},
	Commands: []*cli.Command{
		{
			Name:   "repl",
			Usage:  "Read messages from standard input and print replies",
			Action: cliREPL,
		},
		{
			Name:  "audit",
			Usage: "Print recent command invocations",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "n",
					Usage: "Number of entries to print",
					Value: 20,
				},
			},
			Action: cliAudit,
		},
		{
			Name:  "ignore",
			Usage: "Manage the ignore list",
			Commands: []*cli.Command{
				{
					Name:      "add",
					Usage:     "Ignore users",
					ArgsUsage: "nick...",
					Action:    cliIgnoreAdd,
				},
				{
					Name:      "remove",
					Aliases:   []string{"rm"},
					Usage:     "Stop ignoring users",
					ArgsUsage: "nick...",
					Action:    cliIgnoreRemove,
				},
				{
					Name:   "list",
					Usage:  "List ignored users",
					Action: cliIgnoreList,
				},
			},
		},
	},
	Action: cliRun,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	go func() {
		<-ctx.Done()
		stop()
	}()
	err := app.Run(ctx, os.Args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// setup loads configuration and opens everything it names.
func setup(ctx context.Context, cmd *cli.Command) (*Config, *toml.MetaData, *sources, error) {
	slog.SetDefault(loggerFromFlags(cmd))
	if f := cmd.String("env"); f != "" {
		if err := godotenv.Load(f); err != nil {
			return nil, nil, nil, fmt.Errorf("couldn't load env file: %w", err)
		}
	}
	r, err := os.Open(cmd.String("config"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("couldn't open config file: %w", err)
	}
	cfg, md, err := Load(ctx, r)
	r.Close()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("couldn't load config: %w", err)
	}
	src, err := loadSources(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, md, src, nil
}

func cliRun(ctx context.Context, cmd *cli.Command) error {
	cfg, _, src, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer src.Close()
	for i, irc := range cfg.IRC {
		if irc.Server == "" || irc.Nick == "" {
			return fmt.Errorf("irc network %d needs server and nick", i)
		}
	}
	m := newMetrics()
	bot := New(cfg, src, m, runtime.GOMAXPROCS(0))
	var transports []func(context.Context) error
	for _, c := range bot.networks {
		transports = append(transports, bot.irc(c))
	}
	if cfg.HTTP.Listen != "" {
		transports = append(transports, bot.api(cfg.HTTP.Listen, m.Collectors()))
	}
	if len(transports) == 0 {
		return errors.New("nothing to run; configure irc or http")
	}
	return bot.Run(ctx, cfg.enabled(), transports...)
}

func cliREPL(ctx context.Context, cmd *cli.Command) error {
	cfg, _, src, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer src.Close()
	bot := New(cfg, src, metrics.Discard(), runtime.GOMAXPROCS(0))
	return bot.Run(ctx, cfg.enabled(), bot.repl(os.Stdin, os.Stdout))
}

func cliAudit(ctx context.Context, cmd *cli.Command) error {
	_, _, src, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer src.Close()
	if src.audit == nil {
		return errors.New("no audit db configured")
	}
	l, err := audit.Recent(ctx, src.audit, int(cmd.Int("n")))
	if err != nil {
		return err
	}
	for _, e := range l {
		plugin := e.Plugin
		if plugin == "" {
			plugin = "-"
		}
		fmt.Printf("%s\t%s\t%s\t%s\t%s %s\n", e.Time.Format(time.RFC3339), e.Trace, e.Sender, plugin, e.Command, e.Args)
	}
	return nil
}

// ignoreSources is setup for commands that need the ignore list.
func ignoreSources(ctx context.Context, cmd *cli.Command) (*sources, error) {
	_, _, src, err := setup(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if src.ignore == nil {
		src.Close()
		return nil, errors.New("no ignore db configured")
	}
	return src, nil
}

func cliIgnoreAdd(ctx context.Context, cmd *cli.Command) error {
	src, err := ignoreSources(ctx, cmd)
	if err != nil {
		return err
	}
	defer src.Close()
	for _, nick := range cmd.Args().Slice() {
		if err := src.ignore.Add(ctx, nick); err != nil {
			return err
		}
		slog.InfoContext(ctx, "ignoring user", slog.String("nick", nick))
	}
	return nil
}

func cliIgnoreRemove(ctx context.Context, cmd *cli.Command) error {
	src, err := ignoreSources(ctx, cmd)
	if err != nil {
		return err
	}
	defer src.Close()
	for _, nick := range cmd.Args().Slice() {
		if err := src.ignore.Remove(ctx, nick); err != nil {
			return err
		}
		slog.InfoContext(ctx, "unignoring user", slog.String("nick", nick))
	}
	return nil
}

func cliIgnoreList(ctx context.Context, cmd *cli.Command) error {
	src, err := ignoreSources(ctx, cmd)
	if err != nil {
		return err
	}
	defer src.Close()
	l, err := src.ignore.All(ctx)
	if err != nil {
		return err
	}
	for _, nick := range l {
		fmt.Println(nick)
	}
	return nil
}

var (
	flagConfig = cli.StringFlag{
		Name:       "config",
		Required:   true,
		Usage:      "TOML config file",
		Persistent: true,
		Action: func(ctx context.Context, cmd *cli.Command, s string) error {
			i, err := os.Stat(s)
			if err != nil {
				return err
			}
			if !i.Mode().IsRegular() {
				return errors.New("config must be a regular file")
			}
			return nil
		},
	}

	flagLog = cli.StringFlag{
		Name:       "log",
		Usage:      "Logging level, one of debug, info, warn, error",
		Value:      "info",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			var l slog.Level
			return l.UnmarshalText([]byte(s))
		},
	}

	flagLogFormat = cli.StringFlag{
		Name:       "log-format",
		Usage:      "Logging format, either text or json",
		Value:      "text",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			switch strings.ToLower(s) {
			case "text", "json":
				return nil
			default:
				return errors.New("unknown logging format")
			}
		},
	}

	flagEnv = cli.StringFlag{
		Name:       "env",
		Usage:      "File of environment variables to load before reading config",
		Persistent: true,
	}
)

func loggerFromFlags(cmd *cli.Command) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(cmd.String("log"))); err != nil {
		panic(err)
	}
	var h slog.Handler
	switch strings.ToLower(cmd.String("log-format")) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	case "json":
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	}
	return slog.New(h)
}

// metrics configuration
func newMetrics() *metrics.Metrics {
	return &metrics.Metrics{
		MessagesCount: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "playbot",
					Subsystem: "dispatch",
					Name:      "messages",
					Help:      "Number of messages received from all transports.",
				},
			),
		),
		CommandCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "playbot",
					Subsystem: "dispatch",
					Name:      "commands",
					Help:      "Number of command invocations routed to plugins.",
				},
				[]string{"command"},
			),
		),
		UnknownCommandCount: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "playbot",
					Subsystem: "dispatch",
					Name:      "unknown_commands",
					Help:      "Number of invocations of commands that do not exist.",
				},
			),
		),
		DeliveryCount: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "playbot",
					Subsystem: "dispatch",
					Name:      "deliveries",
					Help:      "Number of non-command messages delivered to message handlers.",
				},
			),
		),
		InlineCount: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "playbot",
					Subsystem: "dispatch",
					Name:      "inline",
					Help:      "Number of inline commands dispatched.",
				},
			),
		),
		InlineDroppedCount: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "playbot",
					Subsystem: "dispatch",
					Name:      "inline_dropped",
					Help:      "Number of inline commands dropped for exceeding the per-message limit.",
				},
			),
		),
		Plugins: metrics.NewPromGauge(
			prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "playbot",
					Subsystem: "plugins",
					Name:      "loaded",
					Help:      "Number of loaded plugins.",
				},
			),
		),
		HandlerLatency: metrics.NewPromObserverVec(
			prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
					Namespace: "playbot",
					Subsystem: "plugins",
					Name:      "handler_latency",
					Help:      "How long plugin handlers take to handle one event in seconds.",
				},
				[]string{"plugin"},
			),
		),
		PlaygroundLatency: metrics.NewPromHistogram(
			prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
					Namespace: "playbot",
					Subsystem: "playground",
					Name:      "execute_latency",
					Help:      "How long the playground takes to execute code in seconds.",
				},
			),
		),
	}
}
