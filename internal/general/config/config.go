package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"pet-tracker/internal/general/logger"

	"github.com/joho/godotenv"
)

const (
	DefaultPath = "./config/config.yaml"

	envConfigPath       = "PETTRACK_CONFIG"
	envDBPassword       = "PETTRACK_DB_PASSWORD"
	envRabbitMQPassword = "PETTRACK_RABBITMQ_PASSWORD"
	envJWTSecret        = "PETTRACK_JWT_SECRET"
)

type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string // YAML key: "database"
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	Services struct {
		TrackerServicePort int
		DeviceGatewayPort  int
	}
	JWT struct {
		SecretKey string `yaml:"secret_key"`
	}
	Tracking struct {
		PollIntervalMillis      int64
		TimeThresholdMillis     int64
		DistanceThresholdMeters float64
		MaxFixAgeMillis         int64 // 0 disables the staleness check
		DefaultLatitude         float64
		DefaultLongitude        float64
	}
	Media struct {
		Dir     string
		BaseURL string
	}
	Logging struct {
		Level string // debug | info | error
	}
}

// LogLevel returns the configured minimum log level. validate has already rejected unknown names.
func (c *Config) LogLevel() logger.Level {
	lvl, _ := logger.ParseLevel(c.Logging.Level)
	return lvl
}

// PollInterval returns the session poll period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Tracking.PollIntervalMillis) * time.Millisecond
}

// MaxFixAge returns how old a device fix may be before the feed reports it as unavailable.
func (c *Config) MaxFixAge() time.Duration {
	return time.Duration(c.Tracking.MaxFixAgeMillis) * time.Millisecond
}

// ResolvePath picks the config file: explicit flag value, then PETTRACK_CONFIG, then DefaultPath.
func ResolvePath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(envConfigPath)); p != "" {
		return p
	}
	return DefaultPath
}

// LoadEnv loads a .env file from the working directory if one exists. A missing file is not an error.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// LoadFromFile loads config from a YAML file to a Config struct, overlays secrets from the environment,
// applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := parseYAML(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&cfg, os.LookupEnv)
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnv overrides secrets with environment values so they can stay out of config.yaml.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(envDBPassword); ok && v != "" {
		cfg.Database.Password = v
	}
	if v, ok := lookup(envRabbitMQPassword); ok && v != "" {
		cfg.RabbitMQ.Password = v
	}
	if v, ok := lookup(envJWTSecret); ok && v != "" {
		cfg.JWT.SecretKey = v
	}
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// Services
	if cfg.Services.TrackerServicePort == 0 {
		cfg.Services.TrackerServicePort = 3000
	}
	if cfg.Services.DeviceGatewayPort == 0 {
		cfg.Services.DeviceGatewayPort = 3001
	}

	// Tracking
	if cfg.Tracking.PollIntervalMillis == 0 {
		cfg.Tracking.PollIntervalMillis = 30000
	}
	if cfg.Tracking.TimeThresholdMillis == 0 {
		cfg.Tracking.TimeThresholdMillis = 30000
	}
	if cfg.Tracking.DistanceThresholdMeters == 0 {
		cfg.Tracking.DistanceThresholdMeters = 1
	}
	if cfg.Tracking.DefaultLatitude == 0 && cfg.Tracking.DefaultLongitude == 0 {
		cfg.Tracking.DefaultLatitude = 14.6037
		cfg.Tracking.DefaultLongitude = 121.3084
	}

	// Media
	if cfg.Media.Dir == "" {
		cfg.Media.Dir = "./data/media"
	}
	if cfg.Media.BaseURL == "" {
		cfg.Media.BaseURL = fmt.Sprintf("http://localhost:%d/media", cfg.Services.TrackerServicePort)
	}
	cfg.Media.BaseURL = strings.TrimRight(cfg.Media.BaseURL, "/")

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// Services
	if c.Services.TrackerServicePort <= 0 || c.Services.TrackerServicePort > 65535 {
		problems = append(problems, "services.tracker_service must be in 1..65535")
	}
	if c.Services.DeviceGatewayPort <= 0 || c.Services.DeviceGatewayPort > 65535 {
		problems = append(problems, "services.device_gateway must be in 1..65535")
	}

	// Tracking
	if c.Tracking.PollIntervalMillis < 1000 {
		problems = append(problems, "tracking.poll_interval_ms must be at least 1000")
	}
	if c.Tracking.TimeThresholdMillis < 0 {
		problems = append(problems, "tracking.time_threshold_ms must not be negative")
	}
	if c.Tracking.DistanceThresholdMeters < 0 || math.IsNaN(c.Tracking.DistanceThresholdMeters) {
		problems = append(problems, "tracking.distance_threshold_m must not be negative")
	}
	if c.Tracking.MaxFixAgeMillis < 0 {
		problems = append(problems, "tracking.max_fix_age_ms must not be negative")
	}
	if c.Tracking.DefaultLatitude < -90 || c.Tracking.DefaultLatitude > 90 {
		problems = append(problems, "tracking.default_latitude must be in -90..90")
	}
	if c.Tracking.DefaultLongitude < -180 || c.Tracking.DefaultLongitude > 180 {
		problems = append(problems, "tracking.default_longitude must be in -180..180")
	}

	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, "logging.level must be debug, info or error")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
