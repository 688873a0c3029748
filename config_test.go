package main_test

import (
	"context"
	_ "embed"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	main "github.com/zephyrtronium/playbot"
)

//go:embed example.toml
var exampleToml string

func eqcase[T comparable](t *testing.T, name string, val T, eq T) {
	t.Helper()
	if val != eq {
		t.Errorf("wrong %s: want %#v, got %#v", name, eq, val)
	}
}

func TestExampleConfig(t *testing.T) {
	t.Setenv("PLAYBOT_PASSWORD", "hunter2")
	t.Setenv("PLAYBOT_DATA", "/var/lib/playbot")
	t.Setenv("XDG_CACHE_HOME", "/var/cache")
	cfg, md, err := main.Load(context.Background(), strings.NewReader(exampleToml))
	if err != nil {
		t.Fatalf("failed to load example.toml: %v", err)
	}
	eqcase(t, "Prefix", cfg.Prefix, "?")
	eqcase(t, "Inline", cfg.Inline, 3)
	if len(cfg.IRC) != 2 {
		t.Fatalf("wrong number of IRC networks: want 2, got %d", len(cfg.IRC))
	}
	libera, oftc := cfg.IRC[0], cfg.IRC[1]
	eqcase(t, "IRC[0].Server", libera.Server, "irc.libera.chat:6697")
	eqcase(t, "IRC[0].TLS", libera.TLS, true)
	eqcase(t, "IRC[0].Nick", libera.Nick, "playbot")
	eqcase(t, "IRC[0].Pass", libera.Pass, "hunter2")
	eqcase(t, "IRC[0].Timeout", libera.Timeout, 300)
	eqcase(t, "IRC[0].Rate.Every", libera.Rate.Every, 0.5)
	eqcase(t, "IRC[0].Rate.Num", libera.Rate.Num, 5)
	eqcase(t, "IRC[1].Server", oftc.Server, "irc.oftc.net:6697")
	eqcase(t, "IRC[1].Pass", oftc.Pass, "")
	eqcase(t, "IRC[1].Rate.Every", oftc.Rate.Every, 1)
	eqcase(t, "IRC[1].Rate.Num", oftc.Rate.Num, 3)
	eqcase(t, "HTTP.Listen", cfg.HTTP.Listen, ":4959")
	eqcase(t, "Crates.Cache", cfg.Crates.Cache, "/var/cache/playbot/crates")
	eqcase(t, "Crates.TTL", cfg.Crates.TTL, 3600)
	eqcase(t, "Crates.API", cfg.Crates.API, "")
	eqcase(t, "Playground.Timeout", cfg.Playground.Timeout, 60)
	eqcase(t, "Dict.File", cfg.Dict.File, "/usr/share/dict/words")
	eqcase(t, "DB.Audit", cfg.DB.Audit, "file:/var/lib/playbot/playbot.db")
	eqcase(t, "DB.Ignore", cfg.DB.Ignore, "file:/var/lib/playbot/playbot.db")
	eqcase(t, "Help.URL", cfg.Help.URL, "https://github.com/panicbit/playbot_ng/tree/master/README.md")
	if diff := cmp.Diff([]string{"#rust-offtopic", "#playbot"}, libera.Channels); diff != "" {
		t.Errorf("wrong IRC[0].Channels (+got/-want):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"#playbot"}, oftc.Channels); diff != "" {
		t.Errorf("wrong IRC[1].Channels (+got/-want):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"genword"}, cfg.Plugins.Disable); diff != "" {
		t.Errorf("wrong Plugins.Disable (+got/-want):\n%s", diff)
	}
	if !md.IsDefined("irc") {
		t.Error("irc table not defined")
	}
}

func TestConfigEnvironment(t *testing.T) {
	t.Setenv("PLAYBOT_PREFIX", "!")
	t.Setenv("PLAYBOT_INLINE", "-1")
	t.Setenv("PLAYBOT_HTTP_LISTEN", "localhost:8080")
	t.Setenv("PLAYBOT_PLUGINS_DISABLE", "egg,help")
	cfg, _, err := main.Load(context.Background(), strings.NewReader(exampleToml))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	eqcase(t, "Prefix", cfg.Prefix, "!")
	eqcase(t, "Inline", cfg.Inline, -1)
	if len(cfg.IRC) != 2 {
		t.Fatalf("wrong number of IRC networks: want 2, got %d", len(cfg.IRC))
	}
	eqcase(t, "IRC[0].Nick", cfg.IRC[0].Nick, "playbot")
	eqcase(t, "HTTP.Listen", cfg.HTTP.Listen, "localhost:8080")
	if diff := cmp.Diff([]string{"egg", "help"}, cfg.Plugins.Disable); diff != "" {
		t.Errorf("wrong Plugins.Disable (+got/-want):\n%s", diff)
	}
}

func TestConfigMalformed(t *testing.T) {
	_, _, err := main.Load(context.Background(), strings.NewReader("[irc\nserver = 1"))
	if err == nil {
		t.Error("malformed config loaded")
	}
}
