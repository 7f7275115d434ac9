// Package inventory is the application service behind the admin back office,
// the JSON API and the CLI. Every mutation writes its activity entry in the
// same transaction, invalidates cached listings and publishes to the live feed.
package inventory

import (
	"context"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/showroom-auto/showroom/internal/blob"
	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/feed"
	"github.com/showroom-auto/showroom/internal/store"
	"github.com/showroom-auto/showroom/internal/web/cache"
)

// Config tunes the service
type Config struct {
	// ListingTTL bounds how long a cached listing page or car is served
	ListingTTL time.Duration

	// SettingsTTL bounds how long the cached dealership profile is served
	SettingsTTL time.Duration

	// SnapshotSize is the number of activities sent to a new live subscriber
	SnapshotSize int
}

// DefaultConfig returns the service defaults
func DefaultConfig() Config {
	return Config{
		ListingTTL:   5 * time.Minute,
		SettingsTTL:  10 * time.Minute,
		SnapshotSize: 20,
	}
}

// Service coordinates the store, blob storage, cache and live feed
type Service struct {
	store    *store.Store
	blobs    blob.Store
	broker   feed.Broker
	listings *cache.Namespace
	settings *cache.Namespace
	policy   *bluemonday.Policy
	config   Config
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Service. broker may be nil when nothing listens to the feed.
func New(st *store.Store, blobs blob.Store, c cache.Cache, broker feed.Broker, config Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SnapshotSize <= 0 {
		config.SnapshotSize = DefaultConfig().SnapshotSize
	}
	return &Service{
		store:    st,
		blobs:    blobs,
		broker:   broker,
		listings: cache.NewNamespace(c, "cars", config.ListingTTL),
		settings: cache.NewNamespace(c, "settings", config.SettingsTTL),
		policy:   bluemonday.UGCPolicy(),
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Record appends a standalone activity, e.g. a sign-in, and publishes it
func (s *Service) Record(ctx context.Context, a *domain.Activity) error {
	if err := s.store.AppendActivity(ctx, a); err != nil {
		return err
	}
	s.publish(ctx, a)
	return nil
}

// publish sends the feed events for a committed activity. Feed failures never
// fail the mutation.
func (s *Service) publish(ctx context.Context, a *domain.Activity) {
	if s.broker == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, e := range feed.ActivityEvents(a) {
		if err := s.broker.Publish(ctx, e); err != nil {
			s.logger.Warn("publishing feed event", zap.String("kind", e.Kind), zap.Error(err))
		}
	}
	if a.Action == domain.ActionUserSignedIn {
		return
	}
	if err := s.PublishStats(ctx); err != nil {
		s.logger.Warn("publishing stats", zap.Error(err))
	}
}

func (s *Service) invalidateListings(ctx context.Context) {
	if err := s.listings.Invalidate(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("invalidating listing cache", zap.Error(err))
	}
}

// deleteBlob removes key, logging failures; the orphan sweep retries later
func (s *Service) deleteBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil && !isBlobNotFound(err) {
		s.logger.Warn("deleting image blob", zap.String("key", key), zap.Error(err))
	}
}
