package service

import (
	"context"
	"time"

	"pet-tracker/internal/domain/geo"
	"pet-tracker/internal/domain/tracking"
	"pet-tracker/internal/general/logger"
	"pet-tracker/internal/ports"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer attaches a handler to a broker queue until ctx is cancelled.
type Consumer interface {
	ConsumeWithRetry(ctx context.Context, queue, consumerTag string, prefetch int, handler func(context.Context, amqp.Delivery) error)
}

// Config holds the tracking knobs of the service.
type Config struct {
	Policy        tracking.SamplingPolicy
	PollInterval  time.Duration
	DefaultCenter geo.Coordinate
	Prefetch      int
}

// Deps are the collaborators of the tracker service. Consumer and Publisher may be nil.
type Deps struct {
	Logger    *logger.Logger
	UoW       ports.UnitOfWork
	Pets      ports.PetRepository
	History   ports.HistoryStore
	Feed      ports.LocationFeed
	Positions ports.DevicePositionRepository
	Blobs     ports.BlobStore
	Changes   ports.PetChangeFeed
	Publisher ports.EventPublisher
	Consumer  Consumer

	Now   func() time.Time
	NewID func() string
}

// trackerService holds all dependencies required by the tracker service.
type trackerService struct {
	logger    *logger.Logger
	uow       ports.UnitOfWork
	pets      ports.PetRepository
	history   ports.HistoryStore
	feed      ports.LocationFeed
	positions ports.DevicePositionRepository
	blobs     ports.BlobStore
	changes   ports.PetChangeFeed
	pub       ports.EventPublisher
	consumer  Consumer

	cfg      Config
	sessions *sessionRegistry
	now      func() time.Time
	newID    func() string
}

// NewTrackerService constructs the service with required dependencies.
func NewTrackerService(deps Deps, cfg Config) ports.TrackerService {
	if cfg.Policy == (tracking.SamplingPolicy{}) {
		cfg.Policy = tracking.DefaultSamplingPolicy()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	return &trackerService{
		logger:    deps.Logger,
		uow:       deps.UoW,
		pets:      deps.Pets,
		history:   deps.History,
		feed:      deps.Feed,
		positions: deps.Positions,
		blobs:     deps.Blobs,
		changes:   deps.Changes,
		pub:       deps.Publisher,
		consumer:  deps.Consumer,
		cfg:       cfg,
		sessions:  newSessionRegistry(),
		now:       deps.Now,
		newID:     deps.NewID,
	}
}

// Shutdown stops every tracking session. In-flight history writes complete first.
func (service *trackerService) Shutdown() {
	n := service.sessions.stopAll()
	service.logger.Info(context.Background(), "tracking_sessions_stopped", "Stopped all tracking sessions", map[string]any{
		"count": n,
	})
}
