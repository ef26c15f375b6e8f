// Package bot routes chat messages to diagnostic commands and
// conversation flows and delivers the framed replies.
package bot

import (
	"strings"

	"github.com/ashureev/opsbot/internal/domain"
)

// Message is one inbound chat message.
type Message struct {
	ChatID int64
	User   domain.User
	Text   string
	// Trusted messages come from an authenticated operator channel and
	// skip the allowlist.
	Trusted bool
}

// ParseCommand splits "/name[@bot] [args]" into its name and arguments.
// ok is false for text that is not a command. Commands addressed to a
// different bot come back with an empty name.
func ParseCommand(text, botName string) (name string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name = strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		mention := name[at+1:]
		name = name[:at]
		if botName != "" && !strings.EqualFold(mention, botName) {
			return "", nil, true
		}
	}
	return name, fields[1:], true
}
