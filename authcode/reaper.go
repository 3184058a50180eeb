package authcode

import (
	"context"
	"time"

	"go.pilab.hu/fence/domain"
	"go.pilab.hu/fence/log"
)

// Reaper periodically removes expired codes from a repository.
type Reaper struct {
	repo     domain.AuthorizationCodeRepository
	interval time.Duration
	logger   log.Logger
	onReap   func(n int64)
}

// NewReaper creates a Reaper. onReap may be nil.
func NewReaper(repo domain.AuthorizationCodeRepository, interval time.Duration, logger log.Logger, onReap func(n int64)) *Reaper {
	if logger == nil {
		logger = log.Nop()
	}
	if onReap == nil {
		onReap = func(int64) {}
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{repo: repo, interval: interval, logger: logger, onReap: onReap}
}

// Run reaps every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.ReapOnce(ctx)
		}
	}
}

// ReapOnce deletes expired codes and returns how many were removed.
func (r *Reaper) ReapOnce(ctx context.Context) (int64, error) {
	n, err := r.repo.DeleteExpiredAuthCodes(ctx)
	if err != nil {
		r.logger.Error(ctx, "failed to delete expired authorization codes", err)
		return 0, err
	}
	if n > 0 {
		r.onReap(n)
		r.logger.Debug(ctx, "expired authorization codes deleted", log.Fields{"count": n})
	}
	return n, nil
}
