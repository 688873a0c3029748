package plugins

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/zephyrtronium/playbot/cratesio"
	"github.com/zephyrtronium/playbot/message"
	"github.com/zephyrtronium/playbot/plugin"
)

// maxCrates is the most crates one command looks up.
const maxCrates = 3

// CrateInfo creates a plugin that shows crate metadata for `crate <name>...`.
func CrateInfo(cl Crates) plugin.Factory {
	return func(ctx context.Context, c *plugin.Context) {
		c.OnCommand("crate", func(ctx context.Context, ev *plugin.CommandEvent) {
			names := ev.Command.Args
			if len(names) > maxCrates {
				names = names[:maxCrates]
			}
			for _, name := range names {
				crateInfo(ctx, cl, ev, name)
			}
		})
	}
}

func crateInfo(ctx context.Context, cl Crates, ev *plugin.CommandEvent, name string) {
	cr, err := cl.Crate(ctx, name)
	switch {
	case errors.Is(err, cratesio.ErrNotFound):
		message.Replyf(ctx, ev.Message, "Crate '%s' does not exist.", name)
		return
	case err != nil:
		ev.Log.ErrorContext(ctx, "couldn't get crate info", slog.String("crate", name), slog.Any("err", err))
		message.Replyf(ctx, ev.Message, "Failed to get crate info for %s", name)
		return
	}
	u := url.PathEscape(cr.Name)
	desc := strings.Join(strings.Fields(cr.Description), " ")
	err = message.Replyf(ctx, ev.Message, "%s (%s) - %s -> https://crates.io/crates/%s [https://docs.rs/crate/%s]", cr.Name, cr.MaxVersion, desc, u, u)
	if err != nil {
		ev.Log.ErrorContext(ctx, "couldn't reply", slog.Any("err", err))
	}
}
