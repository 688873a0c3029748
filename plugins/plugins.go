// Package plugins provides the bot's built-in plugins.
package plugins

import (
	"context"

	"github.com/zephyrtronium/playbot/cratesio"
	"github.com/zephyrtronium/playbot/metrics"
	"github.com/zephyrtronium/playbot/playground"
	"github.com/zephyrtronium/playbot/plugin"
)

// Crates looks up crate metadata.
type Crates interface {
	Crate(ctx context.Context, name string) (cratesio.Crate, error)
}

// Runner executes code and reports on the execution environment.
type Runner interface {
	Execute(ctx context.Context, req playground.Request) (playground.Response, error)
	Paste(ctx context.Context, text string, channel playground.Channel, mode playground.Mode) (string, error)
	Version(ctx context.Context, channel playground.Channel) (playground.Version, error)
	FetchGist(ctx context.Context, link string) (string, error)
}

// Words supplies random dictionary words.
type Words interface {
	Random() (string, error)
}

// Deps holds everything the built-in plugins use.
type Deps struct {
	Crates     Crates
	Playground Runner
	Words      Words
	// HelpURL is where usage help lives.
	HelpURL string
	// Commands lists registered command names.
	Commands func(ctx context.Context) ([]string, error)
	// Latency records code execution time. It may be nil.
	Latency metrics.Observer
}

// DefaultHelpURL is the usage help given when none is configured.
const DefaultHelpURL = "https://github.com/panicbit/playbot_ng/tree/master/README.md"

// Builtin returns the factories for the built-in plugins by name.
func Builtin(deps Deps) map[string]plugin.Factory {
	return map[string]plugin.Factory{
		"crate":      CrateInfo(deps.Crates),
		"playground": Playground(deps.Playground, deps.HelpURL, deps.Latency),
		"egg":        Egg(),
		"help":       Help(deps.HelpURL, deps.Commands),
		"genword":    GenWord(deps.Words),
	}
}

// Names lists the built-in plugins in the order they should be loaded.
var Names = []string{"crate", "playground", "egg", "help", "genword"}
