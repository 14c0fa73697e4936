package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pet-tracker/internal/general/contracts"
	"pet-tracker/internal/general/logger"
	"pet-tracker/internal/general/metrics"
	"pet-tracker/internal/ports"

	"github.com/google/uuid"
)

// maxClockSkew is how far in the future a device clock may run before a fix is refused.
const maxClockSkew = 5 * time.Minute

// gatewayService forwards device fixes to the broker.
type gatewayService struct {
	logger *logger.Logger
	pub    ports.EventPublisher
	now    func() time.Time
}

// NewGatewayService constructs the gateway. now may be nil.
func NewGatewayService(logger *logger.Logger, pub ports.EventPublisher, now func() time.Time) ports.DeviceGatewayService {
	if now == nil {
		now = time.Now
	}
	return &gatewayService{logger: logger, pub: pub, now: now}
}

// IngestFix validates a fix and publishes it on the device topic.
func (service *gatewayService) IngestFix(ctx context.Context, in ports.IngestFixInput) (ports.IngestFixResult, error) {
	res, err := service.ingest(ctx, in)
	metrics.RecordDeviceFix("ingest", err)
	return res, err
}

func (service *gatewayService) ingest(ctx context.Context, in ports.IngestFixInput) (ports.IngestFixResult, error) {
	deviceID := strings.TrimSpace(in.DeviceID)
	if deviceID == "" {
		return ports.IngestFixResult{}, fmt.Errorf("%w: device_id is required", ports.ErrInvalidFix)
	}
	if err := in.Coordinate.Validate(); err != nil {
		return ports.IngestFixResult{}, fmt.Errorf("%w: %w", ports.ErrInvalidFix, err)
	}
	if b := in.BatteryPercent; b != nil && (*b < 0 || *b > 100) {
		return ports.IngestFixResult{}, fmt.Errorf("%w: battery_percent must be between 0 and 100", ports.ErrInvalidFix)
	}

	now := service.now().UTC()
	recordedAt := in.RecordedAt.UTC()
	if in.RecordedAt.IsZero() {
		recordedAt = now
	}
	if recordedAt.After(now.Add(maxClockSkew)) {
		return ports.IngestFixResult{}, fmt.Errorf("%w: recorded_at is in the future", ports.ErrInvalidFix)
	}

	msg := contracts.DeviceFixMessage{
		DeviceID:       deviceID,
		Location:       contracts.NewGeoPoint(in.Coordinate),
		BatteryPercent: in.BatteryPercent,
		RecordedAt:     recordedAt,
		Envelope: contracts.Envelope{
			CorrelationID: uuid.NewString(),
			Producer:      "device-gateway",
			SentAt:        now,
		},
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return ports.IngestFixResult{}, fmt.Errorf("encode device fix: %w", err)
	}

	routingKey := contracts.RouteDeviceFixPrefix + deviceID
	if err := service.pub.Publish(ctx, contracts.ExchangeDeviceTopic, routingKey, body); err != nil {
		service.logger.Error(ctx, "device_fix_publish_failed", "Failed to publish device fix", err, map[string]any{
			"device_id": deviceID,
		})
		return ports.IngestFixResult{}, fmt.Errorf("publish device fix: %w", err)
	}

	service.logger.Debug(ctx, "device_fix_published", "Device fix forwarded to RabbitMQ", map[string]any{
		"device_id":      deviceID,
		"routing_key":    routingKey,
		"correlation_id": msg.CorrelationID,
	})

	return ports.IngestFixResult{DeviceID: deviceID, RecordedAt: recordedAt, Accepted: true}, nil
}
