package service

import (
	"context"
	"log/slog"
	"time"

	"auth-session-service/internal/repository"
)

// SessionPruner removes terminal (revoked or expired) session tokens older
// than the retention window. Retention is a policy knob, not a guess: the
// store keeps full token history until the operator opts into pruning.
type SessionPruner struct {
	store     repository.AccountStore
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewSessionPruner(store repository.AccountStore, retention, interval time.Duration, logger *slog.Logger) *SessionPruner {
	return &SessionPruner{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// PruneOnce deletes tokens that became terminal before now-retention and
// returns how many rows were removed.
func (p *SessionPruner) PruneOnce() (int64, error) {
	cutoff := p.now().Add(-p.retention)
	return p.store.PurgeTerminalTokens(cutoff)
}

// Run prunes on the configured interval until the context is cancelled.
// An interval of zero disables the loop.
func (p *SessionPruner) Run(ctx context.Context) error {
	if p.interval <= 0 {
		p.logger.Info("session pruning disabled")
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := p.PruneOnce()
			if err != nil {
				p.logger.Error("session prune failed", "error", err)
				continue
			}
			if removed > 0 {
				p.logger.Info("session tokens pruned", "removed", removed)
			}
		}
	}
}
