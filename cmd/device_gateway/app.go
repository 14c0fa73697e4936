package devicegateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"pet-tracker/internal/general/config"
	"pet-tracker/internal/general/httpserver"
	"pet-tracker/internal/general/jwt"
	"pet-tracker/internal/general/logger"
	"pet-tracker/internal/general/rabbitmq"
	"pet-tracker/internal/software/gateway/handler"
	"pet-tracker/internal/software/gateway/service"
)

// Run starts the device gateway and blocks until ctx is cancelled.
func Run(ctx context.Context, configPath string, maxConcurrent int) error {
	// set up a new logger for the gateway with a static request ID for startup logs
	logger := logger.New("device-gateway")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load configuration
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

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	// set up the JWT manager; device tokens are long lived
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 24*time.Hour)

	svc := service.NewGatewayService(logger, rmq, nil)

	mux := http.NewServeMux()
	handler.NewGatewayHTTPHandler(svc, logger, jwtManager).WithReadiness(rmq.Ready).RegisterRoutes(mux)
	srv := httpserver.New(ctx, cfg.Services.DeviceGatewayPort, maxConcurrent, mux)

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Device Gateway started on port %d", cfg.Services.DeviceGatewayPort),
		map[string]any{"port": cfg.Services.DeviceGatewayPort, "max_concurrent": maxConcurrent},
	)

	err = httpserver.Serve(ctx, srv, logger)
	logger.Info(context.WithoutCancel(ctx), "service_stopped", "Device Gateway stopped", nil)
	return err
}
