package contracts

import (
	"time"

	"pet-tracker/internal/domain/tracking"
)

// WebSocket message types
const (
	WSTypeAuth             = "auth"
	WSTypeTrackingSnapshot = "tracking_snapshot"
	WSTypePetList          = "pet_list"
	WSTypeError            = "error"
)

// WSTrackingSnapshot is pushed to owners watching a pet's tracking session.
type WSTrackingSnapshot struct {
	Type      string            `json:"type"` // "tracking_snapshot"
	PetID     string            `json:"pet_id"`
	Snapshot  tracking.Snapshot `json:"snapshot"`
	Timestamp time.Time         `json:"timestamp"`
	Envelope
}

// WSPetList carries the owner's full pet list after each change.
type WSPetList struct {
	Type      string    `json:"type"` // "pet_list"
	Pets      any       `json:"pets"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}

// WSError is sent before the server closes a socket because of a client error.
type WSError struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}
