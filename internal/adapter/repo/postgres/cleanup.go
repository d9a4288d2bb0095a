package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Purger deletes messages older than a cutoff.
type Purger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupService enforces the message retention window.
type CleanupService struct {
	Purger        Purger
	RetentionDays int
	now           func() time.Time
}

// NewCleanupService creates a cleanup service. retentionDays <= 0 means 30.
func NewCleanupService(p Purger, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &CleanupService{Purger: p, RetentionDays: retentionDays, now: time.Now}
}

// CleanupOldData removes messages older than the retention window.
func (s *CleanupService) CleanupOldData(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.RetentionDays)
	n, err := s.Purger.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=postgres.CleanupOldData: %w", err)
	}
	slog.Info("message cleanup completed", slog.Int64("deleted_messages", n), slog.Time("cutoff", cutoff))
	return n, nil
}

// RunPeriodic runs a cleanup immediately and then every interval until ctx
// is done.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if _, err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
