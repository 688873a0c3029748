package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/dgraph-io/badger/v4"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/zephyrtronium/playbot/audit"
	"github.com/zephyrtronium/playbot/cratesio"
	"github.com/zephyrtronium/playbot/dict"
	"github.com/zephyrtronium/playbot/ignore"
	"github.com/zephyrtronium/playbot/playground"
	"github.com/zephyrtronium/playbot/plugins"
)

// Load loads the bot's configuration from TOML. Variable references in
// paths and secrets are expanded from the environment, and then PLAYBOT_*
// environment variables override whatever the file says.
func Load(ctx context.Context, r io.Reader) (*Config, *toml.MetaData, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't decode config: %w", err)
	}
	expandcfg(&cfg, os.Getenv)
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "PLAYBOT_"}); err != nil {
		return nil, nil, fmt.Errorf("couldn't read config from environment: %w", err)
	}
	if undec := md.Undecoded(); len(undec) != 0 {
		slog.WarnContext(ctx, "unknown config keys", slog.Any("keys", undec))
	}
	return &cfg, &md, nil
}

// Config is the marshaled structure of the bot's configuration.
type Config struct {
	// Prefix introduces commands. Defaults to "?".
	Prefix string `toml:"prefix" env:"PREFIX"`
	// Inline is the maximum number of inline commands handled per message.
	// Zero uses the default. Negative disables inline commands.
	Inline int `toml:"inline" env:"INLINE"`
	// IRC lists the chat networks to connect to, one connection each.
	// Networks are configured only in the file. Use variable references for
	// secrets.
	IRC []IRCCfg `toml:"irc"`
	// HTTP is the API and metrics server.
	HTTP HTTPCfg `toml:"http" envPrefix:"HTTP_"`
	// Crates configures crate lookups.
	Crates CratesCfg `toml:"crates" envPrefix:"CRATES_"`
	// Playground configures code execution.
	Playground PlaygroundCfg `toml:"playground" envPrefix:"PLAYGROUND_"`
	// Dict is the word list for generated words.
	Dict DictCfg `toml:"dict" envPrefix:"DICT_"`
	// DB is the table of database connection strings.
	DB DBCfg `toml:"db" envPrefix:"DB_"`
	// Help is the usage help.
	Help HelpCfg `toml:"help" envPrefix:"HELP_"`
	// Plugins selects built-in plugins.
	Plugins PluginsCfg `toml:"plugins" envPrefix:"PLUGINS_"`
}

// IRCCfg is the configuration for connecting to an IRC server.
type IRCCfg struct {
	// Server is the host:port to connect to.
	Server string `toml:"server"`
	// TLS enables TLS on the connection.
	TLS bool `toml:"tls"`
	// Nick is the bot's nickname. It is also used as the user name.
	Nick string `toml:"nick"`
	// Pass is the server password, if any.
	Pass string `toml:"pass"`
	// Channels is the list of channels to join.
	Channels []string `toml:"channels"`
	// Rate limits outgoing messages.
	Rate Rate `toml:"rate"`
	// Timeout is the connection read timeout in seconds.
	Timeout float64 `toml:"timeout"`
}

// HTTPCfg is the configuration for the HTTP API.
type HTTPCfg struct {
	// Listen is the address to serve on. Empty disables the API.
	Listen string `toml:"listen" env:"LISTEN"`
}

// CratesCfg is the configuration for crates.io lookups.
type CratesCfg struct {
	// API overrides the crates.io API root.
	API string `toml:"api" env:"API"`
	// Agent is the User-Agent sent to crates.io.
	Agent string `toml:"agent" env:"AGENT"`
	// Cache is the directory of the crate cache. Empty disables caching.
	// ":memory:" keeps the cache in memory.
	Cache string `toml:"cache" env:"CACHE"`
	// TTL is how long crate info stays cached in seconds.
	TTL float64 `toml:"ttl" env:"TTL"`
}

// PlaygroundCfg is the configuration for the Rust playground.
type PlaygroundCfg struct {
	// API overrides the playground root.
	API string `toml:"api" env:"API"`
	// GistAPI overrides the GitHub API root used to fetch gists.
	GistAPI string `toml:"gist" env:"GIST"`
	// Timeout is the limit on each playground request in seconds.
	Timeout float64 `toml:"timeout" env:"TIMEOUT"`
}

// DictCfg is the configuration for the word list.
type DictCfg struct {
	// File is the path to the word list. Defaults to dict.DefaultFile.
	File string `toml:"file" env:"FILE"`
}

// DBCfg is the configuration of databases.
type DBCfg struct {
	// Audit is the sqlite DSN for the command audit log.
	Audit string `toml:"audit" env:"AUDIT"`
	// Ignore is the sqlite DSN for the ignore list. It may be the same as
	// Audit.
	Ignore string `toml:"ignore" env:"IGNORE"`
}

// HelpCfg is the configuration for usage help.
type HelpCfg struct {
	// URL is where usage help lives.
	URL string `toml:"url" env:"URL"`
}

// PluginsCfg selects built-in plugins.
type PluginsCfg struct {
	// Disable lists built-in plugins not to load at startup.
	Disable []string `toml:"disable" env:"DISABLE"`
}

// Rate is a rate limit configuration.
type Rate struct {
	Every float64 `toml:"every"`
	Num   int     `toml:"num"`
}

func expandcfg(cfg *Config, expand func(s string) string) {
	fields := []*string{
		&cfg.Crates.Agent,
		&cfg.Crates.Cache,
		&cfg.Dict.File,
		&cfg.DB.Audit,
		&cfg.DB.Ignore,
	}
	for _, f := range fields {
		*f = os.Expand(*f, expand)
	}
	for i := range cfg.IRC {
		irc := &cfg.IRC[i]
		irc.Server = os.Expand(irc.Server, expand)
		irc.Nick = os.Expand(irc.Nick, expand)
		irc.Pass = os.Expand(irc.Pass, expand)
		for k, s := range irc.Channels {
			irc.Channels[k] = os.Expand(s, expand)
		}
	}
}

func fseconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// enabled lists the built-in plugins to load at startup.
func (cfg *Config) enabled() []string {
	return slices.DeleteFunc(slices.Clone(plugins.Names), func(s string) bool {
		return slices.Contains(cfg.Plugins.Disable, s)
	})
}

// dialer returns the dialer for the IRC connection.
func (cfg *IRCCfg) dialer() func(ctx context.Context, network, addr string) (net.Conn, error) {
	server := cfg.Server
	if cfg.TLS {
		d := &tls.Dialer{NetDialer: &net.Dialer{Timeout: 30 * time.Second}}
		return func(ctx context.Context, network, _ string) (net.Conn, error) {
			return d.DialContext(ctx, network, server)
		}
	}
	d := &net.Dialer{Timeout: 30 * time.Second}
	return func(ctx context.Context, network, _ string) (net.Conn, error) {
		return d.DialContext(ctx, network, server)
	}
}

// sources holds the collaborators built from configuration.
type sources struct {
	audit    *sqlitex.Pool
	ignoreDB *sqlitex.Pool
	ignore   *ignore.List
	cache    *badger.DB
	deps     plugins.Deps
}

// Close closes the databases.
func (s *sources) Close() error {
	var err error
	if s.cache != nil {
		err = s.cache.Close()
	}
	if s.ignoreDB != nil && s.ignoreDB != s.audit {
		if e := s.ignoreDB.Close(); e != nil && err == nil {
			err = e
		}
	}
	if s.audit != nil {
		if e := s.audit.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// loadSources opens databases and creates the collaborators for plugins.
func loadSources(ctx context.Context, cfg *Config) (*sources, error) {
	var s sources
	var err error
	if cfg.DB.Audit != "" {
		slog.DebugContext(ctx, "audit db", slog.String("path", cfg.DB.Audit))
		s.audit, err = sqlitex.NewPool(cfg.DB.Audit, sqlitex.PoolOptions{})
		if err != nil {
			return nil, fmt.Errorf("couldn't open audit db: %w", err)
		}
		if err := audit.Init(ctx, s.audit); err != nil {
			s.Close()
			return nil, fmt.Errorf("couldn't init audit log: %w", err)
		}
	}
	switch cfg.DB.Ignore {
	case "":
		slog.DebugContext(ctx, "no ignore db")
	case cfg.DB.Audit:
		slog.DebugContext(ctx, "ignore db shared with audit db")
		s.ignoreDB = s.audit
	default:
		slog.DebugContext(ctx, "ignore db", slog.String("path", cfg.DB.Ignore))
		s.ignoreDB, err = sqlitex.NewPool(cfg.DB.Ignore, sqlitex.PoolOptions{})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("couldn't open ignore db: %w", err)
		}
	}
	if s.ignoreDB != nil {
		if err := ignore.Init(ctx, s.ignoreDB); err != nil {
			s.Close()
			return nil, fmt.Errorf("couldn't init ignore list: %w", err)
		}
		s.ignore, err = ignore.Open(ctx, s.ignoreDB)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("couldn't open ignore list: %w", err)
		}
	}

	crates := &cratesio.Client{
		HTTP:  &http.Client{Timeout: 30 * time.Second},
		API:   cfg.Crates.API,
		Agent: cfg.Crates.Agent,
	}
	if cfg.Crates.Cache != "" {
		opts := badger.DefaultOptions(cfg.Crates.Cache)
		if cfg.Crates.Cache == ":memory:" {
			opts = badger.DefaultOptions("").WithInMemory(true)
		}
		s.cache, err = badger.Open(opts.WithLogger(nil))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("couldn't open crate cache: %w", err)
		}
		ttl := fseconds(cfg.Crates.TTL)
		if ttl <= 0 {
			ttl = time.Hour
		}
		crates.Cache = cratesio.NewCache(s.cache, ttl)
	}
	timeout := fseconds(cfg.Playground.Timeout)
	if timeout <= 0 {
		timeout = time.Minute
	}
	play := &playground.Client{
		HTTP:    &http.Client{Timeout: timeout},
		API:     cfg.Playground.API,
		GistAPI: cfg.Playground.GistAPI,
		Agent:   cfg.Crates.Agent,
	}
	s.deps = plugins.Deps{
		Crates:     crates,
		Playground: play,
		Words:      dict.Open(cmp.Or(cfg.Dict.File, dict.DefaultFile)),
		HelpURL:    cfg.Help.URL,
	}
	return &s, nil
}
