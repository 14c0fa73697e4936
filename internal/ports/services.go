package ports

import (
	"context"
	"errors"
	"io"
	"time"

	"pet-tracker/internal/domain/geo"
	"pet-tracker/internal/domain/history"
	"pet-tracker/internal/domain/pet"
	"pet-tracker/internal/domain/tracking"
)

var (
	// ErrNotTracking is returned for session operations on a pet that has no tracking session.
	ErrNotTracking      = errors.New("pet is not being tracked")
	ErrNoTrackerDevice  = errors.New("pet has no tracker device assigned")
	ErrUnsupportedImage = errors.New("profile image must be JPEG, PNG or WebP")
	ErrImageTooLarge    = errors.New("profile image exceeds 5 MiB")

	// ErrInvalidFix is wrapped by the device gateway for fixes it refuses to forward.
	ErrInvalidFix = errors.New("invalid device fix")
)

// ----- DTOs for Tracker Service -----

// PetView is a pet record as returned by the API, with the profile image resolved to a URL.
type PetView struct {
	pet.TrackedPet
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

// CreatePetInput is the validated input for POST /pets.
type CreatePetInput struct {
	OwnerID string // from token
	Profile pet.Profile
}

// UpdatePetInput is the validated input for PATCH /pets/{pet_id}.
// Nil fields are left unchanged.
type UpdatePetInput struct {
	OwnerID         string // from token
	PetID           string // from path
	Name            *string
	Species         *string
	Breed           *string
	Gender          *string
	Age             *string
	TrackerDeviceID *string
}

// UploadPhotoInput is the validated input for PUT /pets/{pet_id}/photo.
type UploadPhotoInput struct {
	OwnerID     string
	PetID       string
	ContentType string
	Body        io.Reader
}

// MissingPetView is the public projection of a missing pet (no owner id).
type MissingPetView struct {
	PetID           string         `json:"pet_id"`
	Name            string         `json:"name"`
	Species         string         `json:"species,omitempty"`
	Breed           string         `json:"breed,omitempty"`
	ProfileImageURL string         `json:"profile_image_url,omitempty"`
	LastSeen        geo.Coordinate `json:"last_seen_coordinate"`
	LastSeenAt      int64          `json:"last_seen_at_ms"`
	Notes           string         `json:"missing_notes"`
}

// ReportMissingInput is the validated input for POST /pets/{pet_id}/missing.
type ReportMissingInput struct {
	OwnerID      string          // from token
	PetID        string          // from path
	LastSeen     *geo.Coordinate // optional when UseLastKnown is set
	LastSeenAt   int64           // unix millis; 0 with UseLastKnown takes the last known time
	Notes        string
	UseLastKnown bool
}

// RefreshResult is returned by a manual poll.
type RefreshResult struct {
	Polled   bool              `json:"polled"` // false when a poll was already in flight
	Snapshot tracking.Snapshot `json:"snapshot"`
}

// HistoryResult is the response for GET /pets/{pet_id}/history.
type HistoryResult struct {
	PetID   string          `json:"pet_id"`
	Entries []history.Entry `json:"entries"` // newest first
	Count   int             `json:"count"`
}

// DeleteHistoryResult is the response for DELETE /pets/{pet_id}/history.
type DeleteHistoryResult struct {
	PetID   string `json:"pet_id"`
	Deleted int64  `json:"deleted"`
}

// ViewportResult is the response for GET /pets/{pet_id}/history/viewport.
type ViewportResult struct {
	PetID    string          `json:"pet_id"`
	Viewport geo.MapViewport `json:"viewport"`
	Trail    history.Trail   `json:"trail"`
}

// ----- Tracker Service Interface -----

// TrackerService exposes pets, tracking sessions, location history and missing reports.
// Every operation takes the owner id explicitly.
type TrackerService interface {
	CreatePet(ctx context.Context, in CreatePetInput) (PetView, error)
	GetPet(ctx context.Context, ownerID, petID string) (PetView, error)
	ListPets(ctx context.Context, ownerID string) ([]PetView, error)
	UpdatePet(ctx context.Context, in UpdatePetInput) (PetView, error)
	DeletePet(ctx context.Context, ownerID, petID string) error
	UploadPetPhoto(ctx context.Context, in UploadPhotoInput) (PetView, error)
	ListMissingPets(ctx context.Context, limit int) ([]MissingPetView, error)
	WatchPets(ownerID string) (<-chan struct{}, func())

	StartTracking(ctx context.Context, ownerID, petID string) (tracking.Snapshot, error)
	StopTracking(ctx context.Context, ownerID, petID string) (tracking.Snapshot, error)
	RefreshTracking(ctx context.Context, ownerID, petID string) (RefreshResult, error)
	TrackingStatus(ctx context.Context, ownerID, petID string) (tracking.Snapshot, error)
	SubscribeTracking(ctx context.Context, ownerID, petID string) (<-chan tracking.Snapshot, func(), error)

	ListHistory(ctx context.Context, ownerID, petID string) (HistoryResult, error)
	DeleteHistoryEntry(ctx context.Context, ownerID, petID, entryID string) error
	DeleteAllHistory(ctx context.Context, ownerID, petID string) (DeleteHistoryResult, error)
	HistoryViewport(ctx context.Context, ownerID, petID string) (ViewportResult, error)

	ReportMissing(ctx context.Context, in ReportMissingInput) (PetView, error)
	ClearMissing(ctx context.Context, ownerID, petID string) (PetView, error)

	StartBackgroundConsumer(ctx context.Context)
	Shutdown()
}

// ---------------------------------------------------------------------------------------------------------------

// ----- DTOs for Device Gateway -----

// IngestFixInput is the validated input for POST /devices/{device_id}/fixes.
type IngestFixInput struct {
	DeviceID       string // from path
	Coordinate     geo.Coordinate
	BatteryPercent *int
	RecordedAt     time.Time // zero means "now"
}

// IngestFixResult matches the API response for an accepted fix.
type IngestFixResult struct {
	DeviceID   string    `json:"device_id"`
	RecordedAt time.Time `json:"recorded_at"`
	Accepted   bool      `json:"accepted"`
}

// ----- Device Gateway Interface -----

// DeviceGatewayService accepts fixes from tracker devices and forwards them to the broker.
type DeviceGatewayService interface {
	IngestFix(ctx context.Context, in IngestFixInput) (IngestFixResult, error)
}
