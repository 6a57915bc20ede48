package chat

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// Reaper force-closes sessions idle past the inactivity threshold. It runs on
// a fixed interval and talks only to the store, so it can live in any process.
type Reaper struct {
	repo      *Repo
	interval  time.Duration
	threshold time.Duration
	log       *zap.Logger
}

func NewReaper(repo *Repo, interval, threshold time.Duration, log *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reaper{repo: repo, interval: interval, threshold: threshold, log: log}
}

// Run sweeps until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reaper started",
		zap.Duration("interval", r.interval),
		zap.Duration("threshold", r.threshold))

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep closes every active session idle past the threshold and returns the
// number closed. Per-session failures are logged and skipped; a failed query
// logs and returns 0. Sweep never propagates an error — it has no caller to
// hand one to.
func (r *Reaper) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-r.threshold)
	sessions, err := r.repo.FindIdleSessions(ctx, cutoff)
	if err != nil {
		r.log.Error("reaper query failed", zap.Error(err))
		return 0
	}

	closed := 0
	for i := range sessions {
		sess := &sessions[i]
		now := time.Now()
		duration := int64(math.Round(now.Sub(sess.CreatedAt).Seconds()))

		ok, err := r.repo.EndSessionIfActive(ctx, sess.ID, now, duration)
		if err != nil {
			r.log.Warn("reaper failed to close session",
				zap.String("session_id", sess.SessionID), zap.Error(err))
			continue
		}
		if ok {
			closed++
			r.log.Info("closed idle session",
				zap.String("session_id", sess.SessionID),
				zap.Time("last_used", sess.LastUsed))
		}
	}
	return closed
}
