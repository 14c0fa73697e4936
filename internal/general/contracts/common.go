package contracts

import (
	"time"

	"pet-tracker/internal/domain/geo"
)

// Envelope adds cross-cutting headers all messages may carry.
type Envelope struct {
	CorrelationID string    `json:"correlation_id,omitempty"` // Correlation for tracing across services
	Producer      string    `json:"producer,omitempty"`       // Producer service name, e.g. "device-gateway"
	SentAt        time.Time `json:"sent_at,omitempty"`        // ISO-8601 send time (UTC)
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewGeoPoint converts a domain coordinate to its wire form.
func NewGeoPoint(c geo.Coordinate) GeoPoint {
	return GeoPoint{Lat: c.Latitude, Lng: c.Longitude}
}

// Coordinate converts the wire form back to a validated domain coordinate.
func (p GeoPoint) Coordinate() (geo.Coordinate, error) {
	return geo.NewCoordinate(p.Lat, p.Lng)
}
