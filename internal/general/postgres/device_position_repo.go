package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pet-tracker/internal/domain/geo"
	"pet-tracker/internal/domain/tracking"
	"pet-tracker/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DevicePositionRepo keeps the latest fix of each tracker device. The device-fix consumer writes it
// and tracking sessions read it through the LocationFeed port.
type DevicePositionRepo struct {
	pool      *pgxpool.Pool
	maxFixAge time.Duration
	now       func() time.Time
}

// NewDevicePositionRepo constructs a DevicePositionRepo. A fix older than maxFixAge is reported as
// not available; zero disables the check.
func NewDevicePositionRepo(pool *pgxpool.Pool, maxFixAge time.Duration) *DevicePositionRepo {
	return &DevicePositionRepo{pool: pool, maxFixAge: maxFixAge, now: time.Now}
}

var (
	_ ports.LocationFeed             = (*DevicePositionRepo)(nil)
	_ ports.DevicePositionRepository = (*DevicePositionRepo)(nil)
)

// UpsertLatest stores fix as the device's current position unless a newer one is already stored.
func (repo *DevicePositionRepo) UpsertLatest(ctx context.Context, deviceID string, fix tracking.Fix) (bool, error) {
	if deviceID == "" {
		return false, errors.New("device id is required")
	}
	if err := fix.Coordinate.Validate(); err != nil {
		return false, err
	}

	recordedAt := fix.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = repo.now()
	}

	tag, err := connFrom(ctx, repo.pool).Exec(ctx, `
		INSERT INTO device_positions (device_id, latitude, longitude, battery_percent, recorded_at, received_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (device_id) DO UPDATE
		SET latitude = EXCLUDED.latitude,
		    longitude = EXCLUDED.longitude,
		    battery_percent = EXCLUDED.battery_percent,
		    recorded_at = EXCLUDED.recorded_at,
		    received_at = EXCLUDED.received_at
		WHERE device_positions.recorded_at <= EXCLUDED.recorded_at
	`, deviceID, fix.Coordinate.Latitude, fix.Coordinate.Longitude, fix.BatteryPercent, recordedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("upsert device position: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PollLatest reads the latest stored fix for the device.
func (repo *DevicePositionRepo) PollLatest(ctx context.Context, trackedEntityID string) (tracking.Fix, bool, error) {
	if trackedEntityID == "" {
		return tracking.Fix{}, false, nil
	}

	var (
		lat, lng   float64
		battery    *int16
		recordedAt time.Time
	)
	err := repo.pool.QueryRow(ctx, `
		SELECT latitude, longitude, battery_percent, recorded_at
		FROM device_positions
		WHERE device_id = $1
	`, trackedEntityID).Scan(&lat, &lng, &battery, &recordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return tracking.Fix{}, false, nil
	}
	if err != nil {
		return tracking.Fix{}, false, fmt.Errorf("%w: %v", tracking.ErrFeedUnavailable, err)
	}

	coord, err := geo.NewCoordinate(lat, lng)
	if err != nil {
		return tracking.Fix{}, false, nil
	}
	if repo.maxFixAge > 0 && repo.now().Sub(recordedAt) > repo.maxFixAge {
		return tracking.Fix{}, false, nil
	}

	fix := tracking.Fix{Coordinate: coord, RecordedAt: recordedAt}
	if battery != nil {
		b := int(*battery)
		fix.BatteryPercent = &b
	}
	return fix, true, nil
}
