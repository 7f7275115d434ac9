package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/showroom-auto/showroom/internal/blob"
	"github.com/showroom-auto/showroom/internal/config"
	"github.com/showroom-auto/showroom/internal/feed"
	"github.com/showroom-auto/showroom/internal/inventory"
	"github.com/showroom-auto/showroom/internal/logging"
	"github.com/showroom-auto/showroom/internal/store"
	"github.com/showroom-auto/showroom/internal/web/cache"
	"github.com/showroom-auto/showroom/internal/web/ratelimit"
	"github.com/showroom-auto/showroom/internal/web/session"
)

// app holds what every command needs once configuration is loaded
type app struct {
	config  *config.Config
	logger  *zap.Logger
	store   *store.Store
	closers []func() error
}

// loadApp reads configuration, builds the logger and opens the database
func loadApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, withHint(err, "fix showroom.yaml or the SHOWROOM_* environment variables")
	}

	logger, _, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	st, err := store.Open(ctx, store.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	a := &app{config: cfg, logger: logger, store: st}
	a.onClose(st.Close)
	return a, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("closing resource", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func (a *app) noColor() bool {
	return color.NoColor
}

// backends are the shared-state components that live in Redis when it is
// configured and in process memory otherwise
type backends struct {
	redis    *redis.Client
	cache    cache.Cache
	sessions session.Store
	limiter  ratelimit.Limiter
	broker   feed.Broker
}

func (a *app) backends(ctx context.Context) (*backends, error) {
	cfg := a.config
	if cfg.Redis.Addr == "" {
		mem := cache.NewMemoryCache()
		sessions := session.NewMemoryStore(10 * time.Minute)
		bucket := ratelimit.DefaultTokenBucketConfig()
		bucket.Capacity = cfg.RateLimit.Requests
		bucket.Window = cfg.RateLimit.Window
		limiter := ratelimit.NewTokenBucketWithConfig(bucket)
		broker := feed.NewLocalBroker(256, a.logger.Named("feed"))
		a.onClose(mem.Close)
		a.onClose(sessions.Close)
		a.onClose(limiter.Close)
		a.onClose(broker.Close)
		a.logger.Info("using in-memory backends")
		return &backends{cache: mem, sessions: sessions, limiter: limiter, broker: broker}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
	}
	a.onClose(client.Close)

	limiter, err := ratelimit.NewRedisLimiter(client, ratelimit.RedisConfig{
		Limit:  cfg.RateLimit.Requests,
		Window: cfg.RateLimit.Window,
		Prefix: ratelimit.DefaultRedisConfig().Prefix,
	})
	if err != nil {
		return nil, err
	}
	broker := feed.NewRedisBroker(client, "showroom:feed", a.logger.Named("feed"))
	a.onClose(broker.Close)

	a.logger.Info("using redis backends", zap.String("addr", cfg.Redis.Addr))
	return &backends{
		redis:    client,
		cache:    cache.NewRedisCache(client, cache.DefaultConfig()),
		sessions: session.NewRedisStore(client, "showroom:session:"),
		limiter:  limiter,
		broker:   broker,
	}, nil
}

// inventory builds the service over local photo storage and the shared
// backends, so CLI mutations invalidate the server's caches and reach the feed
func (a *app) inventory(b *backends) (*inventory.Service, error) {
	blobs, err := blob.NewLocalStore(a.config.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening photo storage: %w", err)
	}
	logger := a.logger.Named("inventory")
	logger.Debug("photo storage ready", zap.String("dir", blobs.Root()))
	return inventory.New(a.store, blobs, b.cache, b.broker, inventory.DefaultConfig(), logger), nil
}
