package ports

import (
	"context"
	"errors"
	"io"

	"pet-tracker/internal/domain/history"
	"pet-tracker/internal/domain/pet"
	"pet-tracker/internal/domain/tracking"
)

// ErrNotFound is returned by repositories when an owner-scoped record does not exist.
var ErrNotFound = errors.New("not found")

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	// WithinReadTx is for operations that only read pets.
	WithinReadTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PetRepository defines the methods for managing pet records, always scoped by owner.
type PetRepository interface {
	Create(ctx context.Context, p *pet.TrackedPet) error
	GetByID(ctx context.Context, ownerID, petID string) (*pet.TrackedPet, error)
	ListByOwner(ctx context.Context, ownerID string) ([]pet.TrackedPet, error)
	ListMissing(ctx context.Context, limit int) ([]pet.TrackedPet, error)
	UpdateProfile(ctx context.Context, p *pet.TrackedPet) error
	UpdateMissing(ctx context.Context, p *pet.TrackedPet) error
	Delete(ctx context.Context, ownerID, petID string) error
}

// PetChangeFeed notifies subscribers whenever any pet of an owner changes.
type PetChangeFeed interface {
	Subscribe(ownerID string) (<-chan struct{}, func())
	// Notify wakes the owner's subscribers for a change learned outside the database.
	Notify(ownerID string)
}

// HistoryStore is the append-only, per-pet log of persisted positions.
// Entries are independent rows, so concurrent appends for one pet never contend.
type HistoryStore interface {
	Append(ctx context.Context, ownerID, petID string, entry history.Entry) error
	// ListAll returns entries newest first, ordered by the stored capture time.
	ListAll(ctx context.Context, ownerID, petID string) ([]history.Entry, error)
	Latest(ctx context.Context, ownerID, petID string) (history.Entry, bool, error)
	// DeleteOne is a no-op when the entry is already gone.
	DeleteOne(ctx context.Context, ownerID, petID, entryID string) error
	// DeleteAll removes every entry of the pet as a single state change.
	DeleteAll(ctx context.Context, ownerID, petID string) (int64, error)
}

// LocationFeed reads the latest reported position of a tracked entity.
// ok == false with a nil error means the feed is reachable but has no current fix.
// Transport or backend failures wrap tracking.ErrFeedUnavailable.
type LocationFeed interface {
	PollLatest(ctx context.Context, trackedEntityID string) (fix tracking.Fix, ok bool, err error)
}

// DevicePositionRepository stores the latest fix per device, written by the device-fix consumer.
type DevicePositionRepository interface {
	// UpsertLatest returns false when the stored fix is newer than the given one.
	UpsertLatest(ctx context.Context, deviceID string, fix tracking.Fix) (bool, error)
}

// BlobStore stores profile images and resolves them to URLs.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// EventPublisher publishes JSON messages to a broker exchange. A message the broker cannot
// route to any queue is an error, not a silent drop.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}
