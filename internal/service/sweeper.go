package service

import (
	"context"
	"log/slog"
	"time"
)

const defaultSweepInterval = time.Minute

// UploadExpirer закрывает просроченные сессии загрузки
type UploadExpirer interface {
	ExpireStaleUploads(ctx context.Context) (int, error)
}

// UploadSweeper периодически истекает незавершенные загрузки, чтобы их блокировки не висели до TTL
type UploadSweeper struct {
	expirer  UploadExpirer
	interval time.Duration
	logger   *slog.Logger
}

func NewUploadSweeper(expirer UploadExpirer, interval time.Duration) *UploadSweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &UploadSweeper{
		expirer:  expirer,
		interval: interval,
		logger:   slog.Default().With("component", "sweeper"),
	}
}

// Run блокируется до отмены ctx
func (s *UploadSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *UploadSweeper) sweep(ctx context.Context) {
	for {
		n, err := s.expirer.ExpireStaleUploads(ctx)
		if err != nil {
			s.logger.Error("upload sweep failed", "error", err)
			return
		}
		// повторяем, пока в очереди остаются просроченные сессии
		if n == 0 || ctx.Err() != nil {
			return
		}
	}
}
