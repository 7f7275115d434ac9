package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/feed"
)

// Snapshot is the first message a live subscriber receives
type Snapshot struct {
	Stats      domain.Stats      `json:"stats"`
	Activities []domain.Activity `json:"activities"`
}

// ActivityIDs lists the embedded activities so the live feed can skip them
func (s Snapshot) ActivityIDs() []string {
	ids := make([]string, len(s.Activities))
	for i, a := range s.Activities {
		ids[i] = a.ID.String()
	}
	return ids
}

// Stats computes the dashboard summary
func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	now := s.now().UTC()
	stats := domain.Stats{GeneratedAt: now}

	byStatus, err := s.store.CountCarsByStatus(ctx)
	if err != nil {
		return stats, fmt.Errorf("computing stats: %w", err)
	}
	stats.CarsByStatus = make(map[domain.CarStatus]int, len(domain.CarStatuses))
	for _, status := range domain.CarStatuses {
		stats.CarsByStatus[status] = byStatus[status]
		stats.TotalCars += byStatus[status]
	}

	if stats.InventoryValue, err = s.store.InventoryValue(ctx); err != nil {
		return stats, fmt.Errorf("computing stats: %w", err)
	}
	if stats.OpenInquiries, err = s.store.CountOpenInquiries(ctx); err != nil {
		return stats, fmt.Errorf("computing stats: %w", err)
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if stats.ActivitiesToday, err = s.store.CountActivitiesSince(ctx, midnight); err != nil {
		return stats, fmt.Errorf("computing stats: %w", err)
	}
	return stats, nil
}

// Snapshot returns the stats plus the most recent activities
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	recent, err := s.store.RecentActivities(ctx, s.config.SnapshotSize)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading recent activity: %w", err)
	}
	return Snapshot{Stats: stats, Activities: recent}, nil
}

// PublishStats pushes fresh stats to live subscribers
func (s *Service) PublishStats(ctx context.Context) error {
	if s.broker == nil {
		return nil
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	return s.broker.Publish(ctx, feed.Event{Kind: feed.KindStats, Stats: &stats})
}

// Activities returns one page of the activity log, newest first
func (s *Service) Activities(ctx context.Context, cursor *domain.Cursor, limit int) (domain.Page[domain.Activity], error) {
	return s.store.ListActivities(ctx, cursor, limit)
}

// PruneActivities deletes activities older than retention
func (s *Service) PruneActivities(ctx context.Context, retention time.Duration) (int64, error) {
	return s.store.PruneActivities(ctx, s.now().Add(-retention))
}
