// Package transport holds the pieces shared by the chat and console
// transports.
package transport

import (
	"context"

	"github.com/ashureev/opsbot/internal/bot"
	"github.com/ashureev/opsbot/internal/frame"
)

// Owner is a sender that only serves some chats.
type Owner interface {
	bot.Sender
	Owns(chatID int64) bool
}

// Mux routes frames to the first owner claiming the chat and to fallback
// otherwise.
type Mux struct {
	owners   []Owner
	fallback bot.Sender
}

// NewMux creates a mux. fallback receives every chat no owner claims.
func NewMux(fallback bot.Sender, owners ...Owner) *Mux {
	return &Mux{owners: owners, fallback: fallback}
}

// Send implements bot.Sender.
func (m *Mux) Send(ctx context.Context, chatID int64, f frame.Frame) error {
	for _, o := range m.owners {
		if o.Owns(chatID) {
			return o.Send(ctx, chatID, f)
		}
	}
	return m.fallback.Send(ctx, chatID, f)
}
