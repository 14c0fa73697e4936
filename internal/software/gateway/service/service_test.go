package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"pet-tracker/internal/domain/geo"
	"pet-tracker/internal/general/contracts"
	"pet-tracker/internal/general/logger"
	"pet-tracker/internal/general/rabbitmq"
	"pet-tracker/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	exchange, key string
	body          []byte
	err           error
}

func (p *capturePublisher) Publish(_ context.Context, exchange, routingKey string, body []byte) error {
	p.exchange, p.key, p.body = exchange, routingKey, body
	return p.err
}

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newGateway(pub ports.EventPublisher) ports.DeviceGatewayService {
	return NewGatewayService(logger.NewWithWriter("gateway-test", nil), pub, func() time.Time { return now })
}

func TestIngestFixPublishesOnDeviceTopic(t *testing.T) {
	pub := &capturePublisher{}
	battery := 42

	res, err := newGateway(pub).IngestFix(context.Background(), ports.IngestFixInput{
		DeviceID:       "collar-1",
		Coordinate:     geo.Coordinate{Latitude: 14.6, Longitude: 121.3},
		BatteryPercent: &battery,
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, now, res.RecordedAt)

	assert.Equal(t, contracts.ExchangeDeviceTopic, pub.exchange)
	assert.Equal(t, "device.fix.collar-1", pub.key)

	var msg contracts.DeviceFixMessage
	require.NoError(t, json.Unmarshal(pub.body, &msg))
	assert.Equal(t, "collar-1", msg.DeviceID)
	assert.Equal(t, 14.6, msg.Location.Lat)
	assert.Equal(t, 42, *msg.BatteryPercent)
	assert.Equal(t, "device-gateway", msg.Producer)
	assert.NotEmpty(t, msg.CorrelationID)
}

func TestIngestFixRejectsBadInput(t *testing.T) {
	battery := 101
	cases := map[string]ports.IngestFixInput{
		"no device":    {Coordinate: geo.Coordinate{Latitude: 1, Longitude: 1}},
		"bad latitude": {DeviceID: "c", Coordinate: geo.Coordinate{Latitude: 95, Longitude: 1}},
		"battery":      {DeviceID: "c", Coordinate: geo.Coordinate{Latitude: 1, Longitude: 1}, BatteryPercent: &battery},
		"future":       {DeviceID: "c", Coordinate: geo.Coordinate{Latitude: 1, Longitude: 1}, RecordedAt: now.Add(time.Hour)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			pub := &capturePublisher{}
			_, err := newGateway(pub).IngestFix(context.Background(), in)
			require.ErrorIs(t, err, ports.ErrInvalidFix)
			assert.Empty(t, pub.key)
		})
	}
}

func TestIngestFixSurfacesPublishFailure(t *testing.T) {
	pub := &capturePublisher{err: errors.New("connection is not open")}
	_, err := newGateway(pub).IngestFix(context.Background(), ports.IngestFixInput{
		DeviceID:   "collar-1",
		Coordinate: geo.Coordinate{Latitude: 1, Longitude: 1},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ports.ErrInvalidFix)
}

func TestIngestFixWithDottedDeviceIDRoutesToFixQueue(t *testing.T) {
	pub := &capturePublisher{}
	_, err := newGateway(pub).IngestFix(context.Background(), ports.IngestFixInput{
		DeviceID:   "collar.7",
		Coordinate: geo.Coordinate{Latitude: 1, Longitude: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "device.fix.collar.7", pub.key)
	assert.True(t, rabbitmq.RoutesTo(contracts.ExchangeDeviceTopic, pub.key, contracts.QueueDeviceFixes))
}

func TestIngestFixFailsWhenBrokerReturnsMessage(t *testing.T) {
	pub := &capturePublisher{err: fmt.Errorf("%w: device_topic/device.fix.x: 312 NO_ROUTE", rabbitmq.ErrUnroutable)}
	res, err := newGateway(pub).IngestFix(context.Background(), ports.IngestFixInput{
		DeviceID:   "x",
		Coordinate: geo.Coordinate{Latitude: 1, Longitude: 1},
	})
	require.ErrorIs(t, err, rabbitmq.ErrUnroutable)
	assert.False(t, res.Accepted)
}
