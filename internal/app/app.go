package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/foxzi/reviewflow/internal/api"
	"github.com/foxzi/reviewflow/internal/archive"
	"github.com/foxzi/reviewflow/internal/attribution"
	"github.com/foxzi/reviewflow/internal/config"
	"github.com/foxzi/reviewflow/internal/db"
	"github.com/foxzi/reviewflow/internal/dispatch"
	"github.com/foxzi/reviewflow/internal/distlock"
	"github.com/foxzi/reviewflow/internal/mailer"
	"github.com/foxzi/reviewflow/internal/metrics"
	"github.com/foxzi/reviewflow/internal/ratelimit"
	"github.com/foxzi/reviewflow/internal/repository"
	"github.com/foxzi/reviewflow/internal/stats"
	"github.com/foxzi/reviewflow/internal/template"
	"github.com/foxzi/reviewflow/internal/tracking"
	"github.com/foxzi/reviewflow/internal/upload"
)

// App is the main application
type App struct {
	config        *config.Config
	db            *db.DB
	store         *repository.Store
	redis         *redis.Client
	quota         *ratelimit.Limiter
	metrics       *metrics.Metrics
	metricsServer *metrics.Server
	apiServer     *api.Server
	uploads       *upload.Service
	dispatcher    *dispatch.Orchestrator
	matcher       *attribution.Service
	stats         *stats.Aggregator
	logger        *slog.Logger
}

// New opens the database, applies migrations and builds every component.
// Nothing listens until Run is called.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := SetupLogger(cfg.Logging)
	a := &App{config: cfg, logger: logger}

	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.config
	logger := a.logger

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	a.db = database
	if err := database.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.store = repository.NewStore(database.DB)

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		a.metricsServer = metrics.NewServer(a.metrics, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs, logger)
	}

	transport, err := newTransport(ctx, cfg.Mail, logger)
	if err != nil {
		return err
	}

	tmpl, err := template.LoadFiles(cfg.Template.Subject, cfg.Template.HTMLFile, cfg.Template.TextFile)
	if err != nil {
		return err
	}
	engine, err := template.NewEngine(tmpl)
	if err != nil {
		return fmt.Errorf("failed to compile email template: %w", err)
	}

	// Redis shares the dispatch lock between instances
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("distributed dispatch lock enabled", "redis", cfg.Redis.Addr)
	}
	locker := distlock.New(a.redis, cfg.Dispatch.LockTTL)

	opts := dispatch.Options{
		Tracking: tracking.NewURLs(cfg.Tracking.BaseURL),
		Locker:   locker,
		Delay:    cfg.Dispatch.Delay,
		Metrics:  a.metrics,
	}
	if cfg.Quota.Enabled() {
		a.quota, err = ratelimit.Open(cfg.Quota.Path, cfg.Quota.Config)
		if err != nil {
			return fmt.Errorf("failed to open send quota: %w", err)
		}
		opts.Quota = a.quota
		logger.Info("send quota enabled",
			"messages_per_hour", cfg.Quota.MessagesPerHour,
			"messages_per_day", cfg.Quota.MessagesPerDay,
		)
	}
	a.dispatcher = dispatch.New(a.store.Customers, a.store.Batches, engine, transport, opts, logger)

	var archiver archive.Archiver
	if cfg.Archive.Enabled {
		s3Archive, err := archive.NewS3Archive(ctx, cfg.Archive.Options(), logger)
		if err != nil {
			return err
		}
		archiver = s3Archive
		logger.Info("upload archive enabled", "bucket", cfg.Archive.Bucket)
	}
	a.uploads = upload.NewService(a.store, archiver, cfg.Upload.MaxSize, a.metrics, logger)

	a.matcher = attribution.NewService(a.store.Customers, a.metrics, logger)
	a.stats = stats.NewAggregator(a.store.Customers)

	trackingSvc := tracking.NewService(a.store.Customers, a.metrics, logger)
	if cfg.Tracking.BaseURL == "" {
		logger.Warn("tracking.base_url is not set, opens and clicks will not be tracked")
	}

	a.apiServer = api.NewServer(cfg, api.Services{
		Store:      a.store,
		Uploads:    a.uploads,
		Dispatcher: a.dispatcher,
		Matcher:    a.matcher,
		Stats:      a.stats,
		Tracking:   tracking.NewHandler(trackingSvc, cfg.Tracking.FallbackURL, cfg.Tracking.BusinessName, logger),
	}, a.metrics, logger)

	return nil
}

// newTransport builds the configured mail transport
func newTransport(ctx context.Context, cfg config.MailConfig, logger *slog.Logger) (mailer.Transport, error) {
	sender := mailer.Sender{Address: cfg.FromAddress, Name: cfg.FromName}

	switch cfg.Transport {
	case "ses":
		t, err := mailer.NewSESTransport(ctx, mailer.SESOptions{
			Region:           cfg.SES.Region,
			AccessKeyID:      cfg.SES.AccessKeyID,
			SecretAccessKey:  cfg.SES.SecretAccessKey,
			ConfigurationSet: cfg.SES.ConfigurationSet,
		}, sender)
		if err != nil {
			return nil, err
		}
		logger.Info("mail transport configured", "transport", "ses", "region", cfg.SES.Region)
		return t, nil
	default:
		t := mailer.NewSMTPTransport(mailer.SMTPOptions{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			Username:           cfg.SMTP.Username,
			Password:           cfg.SMTP.Password,
			TLSMode:            cfg.SMTP.TLSMode,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
			HelloName:          cfg.SMTP.HelloName,
			Timeout:            cfg.SMTP.Timeout,
		}, sender, logger.With("component", "smtp_transport"))

		if cfg.DKIM.Enabled {
			signer, err := mailer.LoadDKIMSigner(cfg.DKIM.KeyFile, cfg.DKIM.Domain, cfg.DKIM.Selector)
			if err != nil {
				return nil, fmt.Errorf("failed to load DKIM key: %w", err)
			}
			t.SetDKIMSigner(signer)
			logger.Info("DKIM signing enabled", "domain", cfg.DKIM.Domain, "selector", cfg.DKIM.Selector)
		}
		logger.Info("mail transport configured", "transport", "smtp", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port)
		return t, nil
	}
}

// Store returns the repository store
func (a *App) Store() *repository.Store { return a.store }

// Uploads returns the upload service
func (a *App) Uploads() *upload.Service { return a.uploads }

// Dispatcher returns the dispatch orchestrator
func (a *App) Dispatcher() *dispatch.Orchestrator { return a.dispatcher }

// Matcher returns the review attribution service
func (a *App) Matcher() *attribution.Service { return a.matcher }

// Stats returns the stats aggregator
func (a *App) Stats() *stats.Aggregator { return a.stats }

// Logger returns the application logger
func (a *App) Logger() *slog.Logger { return a.logger }

// ReleaseStaleClaims resets rows left in sending by runs that died
func (a *App) ReleaseStaleClaims(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-a.config.Dispatch.StaleClaimAfter)
	n, err := a.store.ReleaseStaleClaims(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.logger.Warn("released stale dispatch claims", "customers", n, "older_than", a.config.Dispatch.StaleClaimAfter)
	}
	return n, nil
}

// Run starts the servers and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting reviewflow",
		"api_addr", a.config.Server.ListenAddr,
		"database", a.config.Database.Path,
		"mail_transport", a.config.Mail.Transport,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := a.ReleaseStaleClaims(ctx); err != nil {
		a.logger.Error("failed to release stale claims", "error", err)
	}

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("server error", "error", runErr)
		cancel()
	}

	a.Shutdown(context.Background())
	return runErr
}

// Shutdown stops the servers and releases resources
func (a *App) Shutdown(ctx context.Context) {
	a.logger.Info("shutting down")

	// Shutdown waits for in-flight requests, so a synchronous POST /send
	// gets up to the write timeout to finish its run
	grace := shutdownGrace(a.config.Server.WriteTimeout)
	shutdownCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			a.logger.Warn("abandoning in-flight requests, claimed customers are released by stale claim recovery",
				"grace", grace,
			)
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	a.Close()
	a.logger.Info("shutdown complete")
}

// shutdownGrace is how long Shutdown waits for in-flight requests
func shutdownGrace(writeTimeout time.Duration) time.Duration {
	const minGrace = 30 * time.Second
	if writeTimeout > minGrace {
		return writeTimeout
	}
	return minGrace
}

// Close releases storage and connections without touching the servers
func (a *App) Close() {
	if a.quota != nil {
		if err := a.quota.Close(); err != nil {
			a.logger.Error("send quota close error", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("database close error", "error", err)
		}
	}
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
