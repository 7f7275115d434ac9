package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/showroom-auto/showroom/internal/blob"
	"github.com/showroom-auto/showroom/internal/housekeeping"
	"github.com/showroom-auto/showroom/internal/site"
	"github.com/showroom-auto/showroom/internal/web/auth"
	"github.com/showroom-auto/showroom/internal/web/query"
	"github.com/showroom-auto/showroom/internal/web/server"
	"github.com/showroom-auto/showroom/internal/web/session"
	"github.com/showroom-auto/showroom/internal/web/websocket"
)

// NewServeCommand creates the serve command
func NewServeCommand(opts *globalOptions) *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		Long: `Start the public site, back office, API and live feed.

Pending migrations are applied before the listener starts. SIGINT or SIGTERM
drain in-flight requests, stop housekeeping and close the live feed.`,
		Example: `  # Serve with showroom.yaml from the working directory
  showroom serve

  # Serve with an explicit configuration file
  showroom serve --config /etc/showroom/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, skipMigrate)
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not apply pending migrations on start")

	return cmd
}

func runServe(ctx context.Context, opts *globalOptions, skipMigrate bool) error {
	a, err := loadApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.config
	logger := a.logger

	if !skipMigrate {
		version, err := a.store.Migrate(ctx)
		if err != nil {
			return err
		}
		logger.Info("database ready", zap.String("driver", a.store.Driver()), zap.Int64("version", version))
	}

	b, err := a.backends(ctx)
	if err != nil {
		return err
	}
	inv, err := a.inventory(b)
	if err != nil {
		return err
	}

	sessionConfig := session.DefaultConfig()
	sessionConfig.TTL = cfg.Auth.SessionTTL
	sessionConfig.Secure = cfg.Auth.SecureCookies

	uploads := blob.DefaultUploadConfig()
	uploads.MaxFileSize = cfg.MaxUploadBytes()

	hub := websocket.NewHub(logger.Named("websocket"))

	checks := map[string]site.HealthCheck{"database": a.store.Ping}
	if b.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return b.redis.Ping(ctx).Err() }
	}

	siteConfig := site.DefaultConfig()
	siteConfig.BaseURL = cfg.Server.BaseURL
	siteConfig.PrettyHTML = cfg.Site.PrettyHTML
	siteConfig.Listing = query.Config{DefaultLimit: cfg.Site.PageSize, MaxLimit: cfg.Site.MaxPageSize}
	siteConfig.AllowedOrigins = cfg.Server.AllowedOrigins
	siteConfig.TrustForwarded = cfg.Server.TrustForwarded
	siteConfig.Profiling = cfg.Server.Profiling

	web, err := site.New(siteConfig, site.Deps{
		Inventory:     inv,
		Authenticator: auth.NewAuthenticator(a.store, auth.NewAdminPolicy(cfg.Auth.AdminDomains), inv, logger.Named("auth")),
		Tokens:        auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Sessions:      session.NewManager(sessionConfig, b.sessions, logger.Named("session")),
		Limiter:       b.limiter,
		Uploader:      blob.NewUploader(uploads),
		Hub:           hub,
		Checks:        checks,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("building site: %w", err)
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Address = cfg.Server.Address
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	serverConfig.IdleTimeout = cfg.Server.IdleTimeout
	serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	serverConfig.CertFile = cfg.Server.CertFile
	serverConfig.KeyFile = cfg.Server.KeyFile

	srv, err := server.New(serverConfig, web.Handler(), logger)
	if err != nil {
		return err
	}

	scheduler := housekeeping.NewScheduler(logger.Named("housekeeping"))
	if err := housekeeping.RegisterDefaults(scheduler, inv, tasksConfig(cfg)); err != nil {
		return err
	}

	// hooks run once the listener has drained
	srv.RegisterHook("housekeeping", func(context.Context) error {
		scheduler.Stop()
		return nil
	})
	srv.RegisterHook("websocket", func(ctx context.Context) error {
		select {
		case <-hub.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return hub.Relay(ctx, b.broker)
	})
	g.Go(func() error {
		return scheduler.Start(ctx)
	})
	g.Go(func() error {
		return srv.Run(ctx)
	})

	logger.Info("showroom started",
		zap.String("version", Version),
		zap.String("address", cfg.Server.Address),
		zap.String("base_url", cfg.Server.BaseURL))

	if err := g.Wait(); err != nil {
		logger.Error("showroom stopped with error", zap.Error(err))
		return err
	}
	logger.Info("showroom stopped")
	return nil
}
