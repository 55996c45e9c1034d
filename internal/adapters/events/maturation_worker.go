package events

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// CommissionReleaser promotes held commissions whose hold has elapsed.
type CommissionReleaser interface {
	ReleaseMaturedCommissions(ctx context.Context) (int, error)
}

type MaturationWorker struct {
	logger   *slog.Logger
	releaser CommissionReleaser
	interval time.Duration
}

func NewMaturationWorker(logger *slog.Logger, releaser CommissionReleaser, interval time.Duration) *MaturationWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &MaturationWorker{logger: logger, releaser: releaser, interval: interval}
}

func (w *MaturationWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.releaser.ReleaseMaturedCommissions(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "commission maturation failed",
				"module", "events.maturation_worker",
				"layer", "adapter",
				"operation", "release_matured",
				"outcome", "failure",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
