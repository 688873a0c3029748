package plugins

import (
	"context"
	"log/slog"

	"github.com/zephyrtronium/playbot/plugin"
)

// GenWord creates a plugin that invents a word for `genword` by joining two
// random dictionary words.
func GenWord(words Words) plugin.Factory {
	return func(ctx context.Context, c *plugin.Context) {
		c.OnCommand("genword", func(ctx context.Context, ev *plugin.CommandEvent) {
			w, err := genWord(words)
			if err != nil {
				ev.Log.ErrorContext(ctx, "couldn't generate word", slog.Any("err", err))
				ev.Message.Reply(ctx, "Failed to generate word")
				return
			}
			ev.Message.Reply(ctx, w)
		})
	}
}

func genWord(words Words) (string, error) {
	a, err := words.Random()
	if err != nil {
		return "", err
	}
	b, err := words.Random()
	if err != nil {
		return "", err
	}
	return a + b, nil
}
