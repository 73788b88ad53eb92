// Package server builds the application graph from configuration and runs
// the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookmarks/internal/api"
	"github.com/JakeFAU/bookmarks/internal/bookmark"
	rediscache "github.com/JakeFAU/bookmarks/internal/cache/redis"
	"github.com/JakeFAU/bookmarks/internal/clock/system"
	"github.com/JakeFAU/bookmarks/internal/config"
	"github.com/JakeFAU/bookmarks/internal/extract"
	collyfetcher "github.com/JakeFAU/bookmarks/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/bookmarks/internal/fetcher/headless"
	"github.com/JakeFAU/bookmarks/internal/id/uuid"
	"github.com/JakeFAU/bookmarks/internal/logging"
	"github.com/JakeFAU/bookmarks/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/bookmarks/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/bookmarks/internal/publisher/pubsub"
	dynamostore "github.com/JakeFAU/bookmarks/internal/storage/dynamodb"
	gcsstorage "github.com/JakeFAU/bookmarks/internal/storage/gcs"
	localstorage "github.com/JakeFAU/bookmarks/internal/storage/local"
	memorystorage "github.com/JakeFAU/bookmarks/internal/storage/memory"
	pgstore "github.com/JakeFAU/bookmarks/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server

	store        bookmark.Store
	pgStore      *pgstore.BookmarkStore
	headless     *headlessfetcher.Fetcher
	cache        *rediscache.Cache
	gcsClient    *storage.Client
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
}

// Build creates the application's dependencies. Resources opened before a
// failure are released before returning.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	app.logger.Info("building application dependencies",
		zap.String("storage_backend", cfg.StorageBackend()),
		zap.String("fetcher_mode", cfg.Fetcher.Mode),
		zap.Bool("enrichment", cfg.Enrichment.Enabled),
		zap.Bool("snapshots", cfg.Snapshots.Enabled),
	)

	if err = app.setupStore(ctx); err != nil {
		return nil, err
	}
	fetcher, err := app.setupFetcher()
	if err != nil {
		return nil, err
	}

	ids := uuid.New()
	if cfg.Identity.TimeOrderedIDs {
		ids = uuid.NewTimeOrdered()
	}

	opts := []bookmark.Option{bookmark.WithLogger(logger.Named("service"))}
	if err = app.setupCache(ctx); err != nil {
		return nil, err
	}
	if app.cache != nil {
		opts = append(opts, bookmark.WithCache(app.cache))
	}
	snapshots, err := app.setupSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	if snapshots != nil {
		opts = append(opts, bookmark.WithSnapshots(snapshots))
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	if publisher != nil {
		opts = append(opts, bookmark.WithPublisher(publisher))
	}

	svc, err := bookmark.NewService(
		app.store,
		fetcher,
		extract.New(),
		ids,
		system.New(),
		bookmark.ServiceConfig{
			OwnerID:           cfg.Identity.OwnerID,
			EnrichmentEnabled: cfg.Enrichment.Enabled,
			SnapshotPrefix:    cfg.Snapshots.Prefix,
			EventTopic:        cfg.PubSub.TopicName,
		},
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("service init failed: %w", err)
	}

	app.apiServer = api.NewServer(svc, logger.Named("api"), app.serverOptions()...)
	return app, nil
}

// Handler exposes the HTTP router.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Mux exposes the chi router, for example to a Lambda adapter.
func (a *App) Mux() *chi.Mux {
	return a.apiServer.Mux()
}

// Logger returns the root application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run serves HTTP until the context is canceled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return closeErr
}

// Close releases every client the App opened. It is safe on a partially
// built App.
func (a *App) Close(_ context.Context) error {
	var errs []error
	if a.gcpPublisher != nil {
		a.gcpPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub client: %w", err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gcs client: %w", err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis cache: %w", err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

func (a *App) setupStore(ctx context.Context) error {
	cfg := a.cfg.Storage
	switch a.cfg.StorageBackend() {
	case config.BackendDynamoDB:
		store, err := dynamostore.NewFromConfig(ctx, dynamostore.Config{
			Table:    cfg.DynamoDB.Table,
			Region:   cfg.DynamoDB.Region,
			Endpoint: cfg.DynamoDB.Endpoint,
		})
		if err != nil {
			return fmt.Errorf("dynamodb store init failed: %w", err)
		}
		a.store = store
		a.logger.Info("using dynamodb bookmark store", zap.String("table", cfg.DynamoDB.Table))
	case config.BackendPostgres:
		store, err := pgstore.NewBookmarkStore(ctx, pgstore.StoreConfig{
			DSN:             cfg.Postgres.DSN,
			Table:           cfg.Postgres.Table,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: a.cfg.ConnLifetime(),
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		a.pgStore = store
		a.store = store
		if cfg.Postgres.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("postgres schema init failed: %w", err)
			}
		}
		a.logger.Info("using postgres bookmark store", zap.String("table", cfg.Postgres.Table))
	default:
		a.store = memorystorage.NewBookmarkStore()
		a.logger.Warn("using in-memory bookmark store; data is lost on restart")
	}
	return nil
}

func (a *App) setupFetcher() (bookmark.Fetcher, error) {
	f, err := a.baseFetcher()
	if err != nil {
		return nil, err
	}
	fc := a.cfg.Fetcher
	if fc.RateLimitRPS <= 0 {
		return f, nil
	}
	a.logger.Info("per-site fetch rate limit enabled",
		zap.Float64("rps", fc.RateLimitRPS),
		zap.Int("burst", fc.RateLimitBurst),
	)
	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: fc.RateLimitRPS, DefaultBurst: fc.RateLimitBurst})
	return ratelimit.Wrap(f, limiter, a.cfg.FetchTimeout(), a.logger.Named("fetcher")), nil
}

func (a *App) baseFetcher() (bookmark.Fetcher, error) {
	fc := a.cfg.Fetcher
	logger := a.logger.Named("fetcher")
	if fc.Mode == config.FetcherHeadless {
		f, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       fc.HeadlessMaxParallel,
			UserAgent:         fc.UserAgent,
			AcceptLanguage:    fc.AcceptLanguage,
			NavigationTimeout: a.cfg.FetchTimeout(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		a.headless = f
		a.logger.Info("using headless fetcher", zap.Int("max_parallel", fc.HeadlessMaxParallel))
		return f, nil
	}
	a.logger.Info("using colly fetcher", zap.Duration("timeout", a.cfg.FetchTimeout()))
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:      fc.UserAgent,
		Accept:         fc.Accept,
		AcceptLanguage: fc.AcceptLanguage,
		Timeout:        a.cfg.FetchTimeout(),
		MaxBodyBytes:   fc.MaxBodyBytes,
	}, logger), nil
}

func (a *App) setupCache(ctx context.Context) error {
	rc := a.cfg.Cache.Redis
	if rc.Addr == "" {
		return nil
	}
	c, err := rediscache.Dial(ctx, rediscache.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
		TTL:      a.cfg.CacheTTL(),
	})
	if err != nil {
		return fmt.Errorf("redis cache init failed: %w", err)
	}
	a.cache = c
	a.logger.Info("metadata cache enabled", zap.String("addr", rc.Addr), zap.Duration("ttl", a.cfg.CacheTTL()))
	return nil
}

func (a *App) setupSnapshots(ctx context.Context) (bookmark.BlobStore, error) {
	sc := a.cfg.Snapshots
	if !sc.Enabled {
		return nil, nil
	}
	switch sc.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: sc.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using gcs snapshot store", zap.String("bucket", sc.Bucket))
		return blobs, nil
	case config.BackendLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: sc.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local snapshot store", zap.String("path", sc.Local.BaseDir))
		return blobs, nil
	default:
		a.logger.Info("using in-memory snapshot store")
		return memorystorage.NewBlobStore(), nil
	}
}

// setupPublisher returns nil when no broker is configured, except for the
// fully in-memory setup where events are kept in process.
func (a *App) setupPublisher(ctx context.Context) (bookmark.Publisher, error) {
	ps := a.cfg.PubSub
	if ps.ProjectID == "" || ps.TopicName == "" {
		if a.cfg.StorageBackend() == config.BackendMemory {
			a.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
			return memorypublisher.New(), nil
		}
		a.logger.Info("no Pub/Sub topic configured, lifecycle events disabled")
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, ps.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.gcpPublisher = gcppublisher.New(client)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", ps.ProjectID),
		zap.String("topic", ps.TopicName),
	)
	return a.gcpPublisher, nil
}

func (a *App) serverOptions() []api.Option {
	opts := []api.Option{api.WithRequestTimeout(a.cfg.RequestTimeout())}
	if c, ok := a.store.(api.Checker); ok {
		opts = append(opts, api.WithReadinessCheck("store", c))
	}
	if a.cache != nil {
		opts = append(opts, api.WithReadinessCheck("cache", a.cache))
	}
	return opts
}
