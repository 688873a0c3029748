package plugins

import (
	"context"
	"regexp"
	"strings"

	"github.com/zephyrtronium/playbot/message"
	"github.com/zephyrtronium/playbot/plugin"
)

type dialog struct {
	re *regexp.Regexp
	// reply gives the response to the sender's nick.
	// An empty response means to say nothing.
	reply func(from string) string
}

// script compiles a case-insensitive pattern which matches the whole text and
// allows any whitespace between the words of pat.
func script(pat string) *regexp.Regexp {
	parts := append([]string{"(?i)^"}, strings.Fields(pat)...)
	parts = append(parts, "$")
	return regexp.MustCompile(strings.Join(parts, `\s*`))
}

var hal = []dialog{
	{
		re:    script(`Open the [[:word:]]( [[:word:]]+)* bay doors? ,? (?P<nick>[[:word:]]+) [.!]?`),
		reply: func(from string) string { return "I'm sorry " + from + ", I'm afraid I can't do that." },
	},
	{
		re:    script(`(What'?s|What is|Wats) the problem \??`),
		reply: func(string) string { return "I think you know what the problem is just as well as I do." },
	},
	{
		re:    script(`What are you talking about ,? (?P<nick>[[:word:]]+) \??`),
		reply: func(string) string { return "This mission is too important for me to allow you to jeopardize it." },
	},
	{
		re: script(`I (don't|dont) know what you are talking about ,? (?P<nick>[[:word:]]+) [.?!]?`),
		reply: func(from string) string {
			other := "Graydon"
			switch strings.ToLower(from) {
			case "panicbit":
				other = "Rantanen"
			case "rantanen":
				other = "panicbit"
			case "graydon":
				other = "steveklabnik"
			}
			return "I know that you and " + other + " were planning to disconnect me and I'm afraid that's something I cannot allow to happen"
		},
	},
	{
		re: script(`(You're|You are) doing good work,? (?P<nick>[[:word:]]+)!?`),
		reply: func(from string) string {
			switch from {
			case "rustbot", "[o__o]":
				return "Thank you " + from + "!"
			}
			return ""
		},
	},
}

// Commands are matched without the command prefix.
var botchain = []dialog{
	{
		re: script(`hey (?P<nick>[[:word:]]+)`),
		reply: func(from string) string {
			if from == "rustbot" {
				return "hey j and rink"
			}
			return ""
		},
	},
	{
		re:    script(`botchain`),
		reply: func(string) string { return "hey j and rink" },
	},
}

// Egg creates a plugin with a few easter eggs.
func Egg() plugin.Factory {
	return func(ctx context.Context, c *plugin.Context) {
		c.OnMessage(plugin.Normal, func(ctx context.Context, ev *plugin.MessageEvent) {
			converse(ctx, ev.Message, hal, ev.Message.Body())
		})
		for _, name := range []string{"hey", "botchain"} {
			c.OnCommand(name, func(ctx context.Context, ev *plugin.CommandEvent) {
				converse(ctx, ev.Message, botchain, strings.TrimSpace(ev.Name()+" "+ev.Arg()))
			})
		}
	}
}

// converse replies to the first dialog in lines that matches text.
// Dialogs which name a nick only apply when it is the bot's own.
func converse(ctx context.Context, msg message.Message, lines []dialog, text string) {
	for _, d := range lines {
		m := d.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if k := d.re.SubexpIndex("nick"); k >= 0 && !message.SameNick(m[k], msg.Nick()) {
			return
		}
		if r := d.reply(msg.Sender()); r != "" {
			msg.Reply(ctx, r)
		}
		return
	}
}
