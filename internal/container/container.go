package container

import (
	"context"
	"fmt"

	"animetracker/internal/config"
	"animetracker/internal/database"
	"animetracker/internal/handlers"
	"animetracker/internal/logger"
	"animetracker/internal/metrics"
	"animetracker/internal/models"
	"animetracker/internal/repository"
	"animetracker/internal/services"
	"animetracker/internal/store"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type Container struct {
	Config       *config.Config
	Logger       *logrus.Logger
	Registry     *prometheus.Registry
	Metrics      *metrics.Collector
	AnimeService *services.Client
	Store        *store.Store

	db *pgxpool.Pool
}

// New wires the client side: logger, metrics, catalog client and store.
func New(cfg *config.Config) (*Container, error) {
	log := logger.Configure(cfg.LogLevel, cfg.LogFormat)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	animeService, err := services.NewClientWithConfig(&services.ClientConfig{
		BaseURL:   cfg.APIURL,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		UserAgent: cfg.UserAgent,
		Logger:    log,
		Metrics:   collector,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize anime service: %w", err)
	}

	return &Container{
		Config:       cfg,
		Logger:       log,
		Registry:     registry,
		Metrics:      collector,
		AnimeService: animeService,
		Store: store.New(store.Config{
			Catalog:       animeService,
			Logger:        log,
			Metrics:       collector,
			InitialFilter: models.DefaultFilter(),
		}),
	}, nil
}

// RouterDeps builds the reference server's dependencies. The repository is
// Postgres when a DSN is configured and in-memory otherwise.
func (c *Container) RouterDeps(ctx context.Context) (*handlers.RouterDeps, error) {
	repo, err := c.newRepository(ctx)
	if err != nil {
		return nil, err
	}
	return &handlers.RouterDeps{
		Repository:     repo,
		Images:         handlers.NewImageStore(),
		Logger:         c.Logger,
		Metrics:        c.Metrics,
		MetricsHandler: metrics.Handler(c.Registry),
	}, nil
}

func (c *Container) newRepository(ctx context.Context) (repository.AnimeRepository, error) {
	dsn, ok := c.Config.PostgresDSN()
	if !ok {
		c.Logger.Info("No database configured, using in-memory repository")
		return repository.NewMemoryAnimeRepository(), nil
	}

	pool, err := database.Open(ctx, dsn, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := repository.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	c.db = pool
	return repository.NewPostgresAnimeRepository(pool), nil
}

func (c *Container) Close() {
	if c.db != nil {
		database.Close(c.db, c.Logger)
		c.db = nil
	}
}
