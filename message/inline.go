package message

import "strings"

// inline is a message derived from an inline command in another message.
type inline struct {
	Message
	body string
}

func (m *inline) Body() string {
	return m.body
}

// Inline extracts inline commands from a message.
// An inline command is the shortest text between a '{' and the next '}'.
// Each result shares everything but its body with m.
// Messages directly addressed to the bot never contain inline commands.
// The result is computed anew on each call.
func Inline(m Message) []Message {
	if m.DirectlyAddressed() {
		return nil
	}
	var r []Message
	s := m.Body()
	for {
		i := strings.IndexByte(s, '{')
		if i < 0 {
			return r
		}
		s = s[i+1:]
		k := strings.IndexByte(s, '}')
		if k < 0 {
			// No close brace means there are no more matches anywhere.
			return r
		}
		r = append(r, &inline{Message: m, body: s[:k]})
		s = s[k+1:]
	}
}
