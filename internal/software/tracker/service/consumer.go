package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pet-tracker/internal/domain/tracking"
	"pet-tracker/internal/general/contracts"
	"pet-tracker/internal/general/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StartBackgroundConsumer attaches the broker consumers. Fixes published by the device gateway
// are stored as the latest position per device, which tracking sessions read through the
// location feed. Pet events wake the pet-list streams of the pet's owner on every instance.
func (service *trackerService) StartBackgroundConsumer(ctx context.Context) {
	if service.consumer == nil {
		return
	}

	if service.changes != nil {
		go service.consumer.ConsumeWithRetry(ctx, contracts.QueuePetEvents, "tracker-service-pet-events", service.cfg.Prefetch,
			func(ctx context.Context, d amqp.Delivery) error {
				eventType, err := service.handlePetEvent(ctx, d.Body)
				metrics.RecordPetEvent(eventType, err)
				if err != nil {
					service.logger.Error(ctx, "pet_event_consume_failed", "Failed to handle pet event", err,
						map[string]any{"routing_key": d.RoutingKey})
				}
				return err
			})
	}

	if service.positions == nil {
		return
	}
	go service.consumer.ConsumeWithRetry(ctx, contracts.QueueDeviceFixes, "tracker-service-device-fixes", service.cfg.Prefetch,
		func(ctx context.Context, d amqp.Delivery) error {
			err := service.handleDeviceFix(ctx, d.Body)
			metrics.RecordDeviceFix("store", err)
			if err != nil {
				service.logger.Error(ctx, "device_fix_store_failed", "Failed to store device fix", err,
					map[string]any{"routing_key": d.RoutingKey})
			}
			return err
		})
}

func (service *trackerService) handlePetEvent(ctx context.Context, body []byte) (string, error) {
	var msg contracts.PetEventMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", fmt.Errorf("parse pet event: %w", err)
	}
	switch msg.Type {
	case contracts.PetEventMissing, contracts.PetEventFound, contracts.PetEventHistoryCleared:
	default:
		return msg.Type, fmt.Errorf("pet event %q: unknown type", msg.Type)
	}
	ownerID := strings.TrimSpace(msg.OwnerID)
	if ownerID == "" {
		return msg.Type, fmt.Errorf("pet event %s without owner id", msg.Type)
	}

	service.changes.Notify(ownerID)

	ctx = service.logger.WithPetID(service.logger.WithOwnerID(ctx, ownerID), msg.PetID)
	service.logger.Debug(ctx, "pet_event_consumed", "Pet event delivered to pet-list subscribers", map[string]any{
		"type":           msg.Type,
		"correlation_id": msg.CorrelationID,
	})
	return msg.Type, nil
}

func (service *trackerService) handleDeviceFix(ctx context.Context, body []byte) error {
	var msg contracts.DeviceFixMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("parse device fix: %w", err)
	}

	deviceID := strings.TrimSpace(msg.DeviceID)
	if deviceID == "" {
		return fmt.Errorf("device fix without device id")
	}
	coord, err := msg.Location.Coordinate()
	if err != nil {
		return fmt.Errorf("device fix %s: %w", deviceID, err)
	}
	if msg.BatteryPercent != nil && (*msg.BatteryPercent < 0 || *msg.BatteryPercent > 100) {
		return fmt.Errorf("device fix %s: battery percent %d out of range", deviceID, *msg.BatteryPercent)
	}

	recordedAt := msg.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = service.now()
	}
	fix := tracking.Fix{
		Coordinate:     coord,
		BatteryPercent: msg.BatteryPercent,
		RecordedAt:     recordedAt.UTC(),
	}

	stored, err := service.positions.UpsertLatest(ctx, deviceID, fix)
	if err != nil {
		return err
	}
	if stored {
		metrics.RecordFixStored(fix.RecordedAt)
	}

	service.logger.Debug(ctx, "device_fix_stored", "Device fix processed", map[string]any{
		"device_id":      deviceID,
		"stored":         stored,
		"correlation_id": msg.CorrelationID,
		"lag_ms":         time.Since(fix.RecordedAt).Milliseconds(),
	})
	return nil
}
