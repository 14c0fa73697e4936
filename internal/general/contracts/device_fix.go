package contracts

import "time"

// DeviceFixMessage is published by the device gateway for every accepted fix.
// Exchange: ExchangeDeviceTopic, routing key RouteDeviceFixPrefix + device_id.
type DeviceFixMessage struct {
	DeviceID       string    `json:"device_id"`
	Location       GeoPoint  `json:"location"`
	BatteryPercent *int      `json:"battery_percent,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
	Envelope
}
