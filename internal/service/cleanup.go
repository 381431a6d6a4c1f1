package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/admin-auth/internal/logging"
	"github.com/iliyamo/admin-auth/internal/repository"
)

// Cleaner periodically deletes expired refresh tokens.
type Cleaner struct {
	tokens   *repository.TokenRepo
	interval time.Duration
	log      *slog.Logger
}

// NewCleaner returns a sweeper running every interval (one hour when not
// positive).
func NewCleaner(tokens *repository.TokenRepo, interval time.Duration, logger *slog.Logger) *Cleaner {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Cleaner{tokens: tokens, interval: interval, log: logger.With("component", "token-cleaner")}
}

// RunOnce performs a single sweep and returns the number of deleted rows.
func (c *Cleaner) RunOnce(ctx context.Context) (int64, error) {
	n, err := c.tokens.CleanupExpired(ctx)
	if err != nil {
		c.log.Error("expired token cleanup failed", "error", err)
		return 0, err
	}
	if n > 0 {
		c.log.Info("expired tokens deleted", "count", n)
	}
	return n, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (c *Cleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	_, _ = c.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = c.RunOnce(ctx)
		}
	}
}
