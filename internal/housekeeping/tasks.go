package housekeeping

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Task names registered by RegisterDefaults
const (
	TaskPruneActivities = "prune-activities"
	TaskSweepOrphans    = "sweep-orphans"
	TaskBroadcastStats  = "broadcast-stats"
)

// Maintainer is the inventory surface the default tasks need
type Maintainer interface {
	PruneActivities(ctx context.Context, retention time.Duration) (int64, error)
	SweepOrphans(ctx context.Context, grace time.Duration) (int, error)
	PublishStats(ctx context.Context) error
}

// TasksConfig configures the default tasks
type TasksConfig struct {
	ActivityRetention time.Duration
	OrphanGrace       time.Duration
	PruneInterval     time.Duration
	SweepInterval     time.Duration
	StatsInterval     time.Duration
}

// DefaultTasksConfig returns the default retention and intervals
func DefaultTasksConfig() TasksConfig {
	return TasksConfig{
		ActivityRetention: 180 * 24 * time.Hour,
		OrphanGrace:       time.Hour,
		PruneInterval:     6 * time.Hour,
		SweepInterval:     time.Hour,
		StatsInterval:     time.Minute,
	}
}

// RegisterDefaults adds the activity pruning, orphan sweeping and stats
// broadcast tasks
func RegisterDefaults(s *Scheduler, m Maintainer, config TasksConfig) error {
	prune := func(ctx context.Context) error {
		n, err := m.PruneActivities(ctx, config.ActivityRetention)
		if err == nil && n > 0 {
			s.logger.Info("pruned activities", zap.Int64("removed", n))
		}
		return err
	}
	sweep := func(ctx context.Context) error {
		_, err := m.SweepOrphans(ctx, config.OrphanGrace)
		return err
	}

	if err := s.AddTask(TaskPruneActivities, config.PruneInterval, prune); err != nil {
		return err
	}
	if err := s.AddTask(TaskSweepOrphans, config.SweepInterval, sweep); err != nil {
		return err
	}
	return s.AddTask(TaskBroadcastStats, config.StatsInterval, m.PublishStats)
}
