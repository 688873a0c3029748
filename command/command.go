// Package command parses command invocations out of chat messages.
package command

import (
	"strings"
	"unicode"
)

// Command is a parsed command invocation.
type Command struct {
	// Name is the first whitespace-delimited token after the prefix.
	// It is never empty for a command returned by Parse.
	Name string
	// Args is the remainder of the message split on whitespace.
	Args []string
	// Raw is the unsplit remainder of the message following the name and
	// the whitespace that separates it from the name.
	Raw string
}

// Parse parses a command from a message body.
// The body is trimmed of surrounding whitespace, then it must begin with
// prefix to be a command.
func Parse(prefix, body string) (Command, bool) {
	body = strings.TrimSpace(body)
	body, ok := strings.CutPrefix(body, prefix)
	if !ok {
		return Command{}, false
	}
	name, rest := body, ""
	if k := strings.IndexFunc(body, unicode.IsSpace); k >= 0 {
		name = body[:k]
		rest = strings.TrimLeftFunc(body[k:], unicode.IsSpace)
	}
	if name == "" {
		return Command{}, false
	}
	cmd := Command{
		Name: name,
		Args: strings.Fields(rest),
		Raw:  rest,
	}
	return cmd, true
}
