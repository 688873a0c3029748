package plugins

import (
	"cmp"
	"context"
	"log/slog"
	"strings"

	"github.com/zephyrtronium/playbot/message"
	"github.com/zephyrtronium/playbot/plugin"
)

// Help creates a plugin that points to usage help for `help`.
// If commands is not nil, the reply also lists the registered commands.
func Help(url string, commands func(context.Context) ([]string, error)) plugin.Factory {
	url = cmp.Or(url, DefaultHelpURL)
	return func(ctx context.Context, c *plugin.Context) {
		c.OnCommand("help", func(ctx context.Context, ev *plugin.CommandEvent) {
			usage(ctx, ev.Message, url)
			if commands == nil {
				return
			}
			cmds, err := commands(ctx)
			if err != nil {
				ev.Log.ErrorContext(ctx, "couldn't list commands", slog.Any("err", err))
				return
			}
			message.Replyf(ctx, ev.Message, "Commands: %s", strings.Join(cmds, ", "))
		})
	}
}

// usage replies with the usage help link.
func usage(ctx context.Context, msg message.Message, url string) {
	message.Replyf(ctx, msg, "Usage help can be found here: %s", url)
}
