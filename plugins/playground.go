package plugins

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/zephyrtronium/playbot/message"
	"github.com/zephyrtronium/playbot/metrics"
	"github.com/zephyrtronium/playbot/playground"
	"github.com/zephyrtronium/playbot/plugin"
)

// Playground creates a plugin that evaluates Rust code from `eval` commands
// and from messages addressed directly to the bot.
func Playground(cl Runner, helpURL string, latency metrics.Observer) plugin.Factory {
	if helpURL == "" {
		helpURL = DefaultHelpURL
	}
	p := &evaluator{cl: cl, help: helpURL, latency: latency}
	return func(ctx context.Context, c *plugin.Context) {
		c.OnMessage(plugin.Normal, func(ctx context.Context, ev *plugin.MessageEvent) {
			if !ev.Message.DirectlyAddressed() {
				return
			}
			p.eval(ctx, ev.Log, ev.Message, ev.Message.Body())
		})
		c.OnCommand("eval", func(ctx context.Context, ev *plugin.CommandEvent) {
			p.eval(ctx, ev.Log, ev.Message, ev.Arg())
		})
	}
}

type evaluator struct {
	cl      Runner
	help    string
	latency metrics.Observer
}

// Lines of output shown in chat.
const (
	stdoutLines = 3
	stderrLines = 1
)

func (p *evaluator) eval(ctx context.Context, log *slog.Logger, msg message.Message, body string) {
	req := playground.NewRequest("")
	tmpl := playground.Expr
flags:
	for {
		body = strings.TrimLeftFunc(body, unicode.IsSpace)
		flag := body
		if k := strings.IndexFunc(body, unicode.IsSpace); k >= 0 {
			flag = body[:k]
		}
		switch flag {
		case "--stable":
			req.Channel = playground.Stable
		case "--beta":
			req.Channel = playground.Beta
		case "--nightly":
			req.Channel = playground.Nightly
		case "--version", "VERSION":
			p.version(ctx, log, msg, req.Channel)
			return
		case "--bare", "--mini":
			tmpl = playground.Bare
		case "--allocs", "--alloc", "--stats", "--alloc-stats":
			tmpl = playground.AllocStats
		case "--debug":
			req.Mode = playground.Debug
		case "--release":
			req.Mode = playground.Release
		case "--2015":
			req.Edition = "2015"
		case "--2018":
			req.Edition = "2018"
		case "help", "h", "-h", "-help", "--help", "--h":
			usage(ctx, msg, p.help)
			return
		case "--":
			body = body[len(flag):]
			break flags
		default:
			break flags
		}
		body = body[len(flag):]
	}
	body = strings.TrimLeftFunc(body, unicode.IsSpace)

	if playground.IsGistURL(body) {
		tmpl = playground.Bare
		code, err := p.cl.FetchGist(ctx, body)
		if err != nil {
			log.ErrorContext(ctx, "couldn't fetch gist", slog.String("url", body), slog.Any("err", err))
			msg.Reply(ctx, "Failed to fetch gist")
			return
		}
		body = code
	}
	if tmpl == playground.Bare {
		req.CrateType = playground.BareCrateType(body)
	}
	req.Code = playground.Wrap(tmpl, body)
	p.execute(ctx, log, msg, req)
}

func (p *evaluator) version(ctx context.Context, log *slog.Logger, msg message.Message, channel playground.Channel) {
	v, err := p.cl.Version(ctx, channel)
	if err != nil {
		log.ErrorContext(ctx, "couldn't get version", slog.String("channel", string(channel)), slog.Any("err", err))
		msg.Reply(ctx, "Failed to get version")
		return
	}
	hash := v.Hash
	if len(hash) > 9 {
		hash = hash[:9]
	}
	message.Replyf(ctx, msg, "%s (%s %s)", v.Version, hash, v.Date)
}

func (p *evaluator) execute(ctx context.Context, log *slog.Logger, msg message.Message, req playground.Request) {
	start := time.Now()
	resp, err := p.cl.Execute(ctx, req)
	if p.latency != nil {
		p.latency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		log.ErrorContext(ctx, "couldn't execute code", slog.Any("err", err))
		msg.Reply(ctx, "Failed to execute code")
		return
	}
	lines, take := output(resp.Stderr, false), stderrLines
	if resp.Success {
		lines, take = output(resp.Stdout, true), stdoutLines
	}
	for _, line := range lines[:min(take, len(lines))] {
		msg.Reply(ctx, line)
	}
	if len(lines) == 0 && resp.Success {
		msg.Reply(ctx, "~~~ Code compiled successfully without output.")
	}
	if len(lines) <= take {
		return
	}
	text := playground.PasteText(req.Code, resp.Stdout, resp.Stderr)
	u, err := p.cl.Paste(ctx, text, req.Channel, req.Mode)
	if err != nil {
		log.ErrorContext(ctx, "couldn't paste output", slog.Any("err", err))
		msg.Reply(ctx, "Failed to paste full output")
		return
	}
	message.Replyf(ctx, msg, "~~~ Full output: %s", u)
}

// output splits program output into lines. Cargo's progress lines are
// removed from compiler output.
func output(s string, stdout bool) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	var r []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !stdout {
			t := strings.TrimSpace(line)
			if strings.HasPrefix(t, "Compiling") || strings.HasPrefix(t, "Finished") || strings.HasPrefix(t, "Running") {
				continue
			}
		}
		r = append(r, line)
	}
	return r
}
