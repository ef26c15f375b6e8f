package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/opsbot/internal/domain"
)

const defaultSweepInterval = time.Minute

// ExpireCallback is called for every conversation the sweeper ends.
type ExpireCallback func(conv domain.Conversation)

// Sweeper periodically ends conversations that have gone idle.
type Sweeper struct {
	store    *Store
	ttl      time.Duration
	interval time.Duration
	onExpire ExpireCallback
	logger   *slog.Logger
}

// NewSweeper creates a sweeper for store. A non-positive interval selects
// one minute.
func NewSweeper(store *Store, ttl, interval time.Duration, onExpire ExpireCallback, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, ttl: ttl, interval: interval, onExpire: onExpire, logger: logger}
}

// Run sweeps until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("Conversation sweeper started", "interval", s.interval, "ttl", s.ttl)

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-ctx.Done():
			s.logger.Info("Conversation sweeper shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

// Sweep ends idle conversations once and returns how many were ended.
func (s *Sweeper) Sweep() int {
	expired := s.store.Expire(s.ttl)
	for _, conv := range expired {
		s.logger.Info("Conversation expired",
			"user_id", conv.UserID,
			"flow", conv.Flow,
			"state", conv.State)
		if s.onExpire != nil {
			s.onExpire(conv)
		}
	}
	return len(expired)
}
