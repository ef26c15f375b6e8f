package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/opsbot/internal/frame"
	"golang.org/x/time/rate"
)

// Sender delivers one frame to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, f frame.Frame) error
}

// Delivery sends the frames of one reply in order, spaced by delay.
type Delivery struct {
	sender Sender
	delay  time.Duration
}

// NewDelivery creates a delivery over sender. A zero delay sends frames
// back to back.
func NewDelivery(sender Sender, delay time.Duration) *Delivery {
	return &Delivery{sender: sender, delay: delay}
}

// Deliver sends frames in order. It stops at the first failed send.
func (d *Delivery) Deliver(ctx context.Context, chatID int64, frames []frame.Frame) error {
	limit := rate.Inf
	if d.delay > 0 {
		limit = rate.Every(d.delay)
	}
	pace := rate.NewLimiter(limit, 1)
	for i, f := range frames {
		if err := pace.Wait(ctx); err != nil {
			return fmt.Errorf("wait before frame %d: %w", i+1, err)
		}
		if err := d.sender.Send(ctx, chatID, f); err != nil {
			return fmt.Errorf("send frame %d of %d: %w", i+1, len(frames), err)
		}
	}
	return nil
}
