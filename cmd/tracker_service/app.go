package trackerservice

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"pet-tracker/internal/domain/geo"
	"pet-tracker/internal/domain/tracking"
	"pet-tracker/internal/general/blobstore"
	"pet-tracker/internal/general/config"
	"pet-tracker/internal/general/httpserver"
	"pet-tracker/internal/general/jwt"
	"pet-tracker/internal/general/logger"
	"pet-tracker/internal/general/postgres"
	"pet-tracker/internal/general/rabbitmq"
	"pet-tracker/internal/general/websocket"
	"pet-tracker/internal/software/tracker/handler"
	"pet-tracker/internal/software/tracker/service"

	"golang.org/x/sync/errgroup"
)

// Run starts the tracker service and blocks until ctx is cancelled.
func Run(ctx context.Context, configPath string, prefetch, maxConcurrent int) error {
	// set up a new logger for the tracker service with a static request ID for startup logs
	logger := logger.New("tracker-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load configuration (.env first so secrets can override the file)
	if err := config.LoadEnv(); err != nil {
		logger.Error(ctx, "env_load_failed", "Failed to load .env file", err, nil)
		return err
	}
	cfg, err := config.LoadFromFile(config.ResolvePath(configPath))
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load config", err, nil)
		return err
	}
	logger.SetLevel(cfg.LogLevel())

	// bring the schema up to date before anything touches it
	if err := postgres.MigrateUp(ctx, postgres.DSN(cfg, "pgx5"), logger); err != nil {
		logger.Error(ctx, "db_migration_failed", "Failed to apply database migrations", err, nil)
		return err
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	// profile images live on the local filesystem
	blobs, err := blobstore.NewFileStore(cfg.Media.Dir, cfg.Media.BaseURL)
	if err != nil {
		logger.Error(ctx, "blobstore_init_failed", "Failed to open media directory", err, map[string]any{"dir": cfg.Media.Dir})
		return err
	}

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// set up the repos and the pet change listener
	changes := postgres.NewPetChangeListener(pool, logger)
	positions := postgres.NewDevicePositionRepo(pool, cfg.MaxFixAge())
	svc := service.NewTrackerService(service.Deps{
		Logger:    logger,
		UoW:       postgres.NewUnitOfWork(pool),
		Pets:      postgres.NewPetRepo(),
		History:   postgres.NewHistoryRepo(pool),
		Feed:      positions,
		Positions: positions,
		Blobs:     blobs,
		Changes:   changes,
		Publisher: rmq,
		Consumer:  rmq,
	}, service.Config{
		Policy: tracking.SamplingPolicy{
			TimeThresholdMillis:     cfg.Tracking.TimeThresholdMillis,
			DistanceThresholdMeters: cfg.Tracking.DistanceThresholdMeters,
		},
		PollInterval:  cfg.PollInterval(),
		DefaultCenter: geo.Coordinate{Latitude: cfg.Tracking.DefaultLatitude, Longitude: cfg.Tracking.DefaultLongitude},
		Prefetch:      prefetch,
	})
	defer svc.Shutdown()

	// set up the HTTP handler and its routes
	ws := websocket.NewWebSocket(logger, jwtManager, svc)
	mux := http.NewServeMux()
	handler.NewTrackerHTTPHandler(svc, logger, jwtManager, ws, blobs.Handler()).RegisterRoutes(mux)
	srv := httpserver.New(ctx, cfg.Services.TrackerServicePort, maxConcurrent, mux)

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Tracker Service started on port %d", cfg.Services.TrackerServicePort),
		map[string]any{"port": cfg.Services.TrackerServicePort, "max_concurrent": maxConcurrent, "prefetch": prefetch},
	)

	g, gctx := errgroup.WithContext(ctx)
	svc.StartBackgroundConsumer(gctx)
	g.Go(func() error {
		changes.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return httpserver.Serve(gctx, srv, logger)
	})

	err = g.Wait()
	logger.Info(context.WithoutCancel(ctx), "service_stopped", "Tracker Service stopped", nil)
	return err
}
