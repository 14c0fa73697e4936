package history

import (
	"errors"
	"fmt"
	"strings"

	"pet-tracker/internal/domain/geo"
)

// Entry is one persisted position in a pet's location history.
type Entry struct {
	ID               string         `json:"id"`
	PetID            string         `json:"pet_id"`
	Coordinate       geo.Coordinate `json:"coordinate"`
	CapturedAtMillis int64          `json:"captured_at_ms"`
}

var (
	ErrMissingEntryID     = errors.New("history entry ID is missing")
	ErrMissingPetID       = errors.New("pet ID is missing")
	ErrCapturedAtNotValid = errors.New("captured_at_ms must be a non-negative unix timestamp in milliseconds")
)

// NewEntry constructs a validated history entry.
func NewEntry(id, petID string, coordinate geo.Coordinate, capturedAtMillis int64) (Entry, error) {
	entry := Entry{
		ID:               strings.TrimSpace(id),
		PetID:            strings.TrimSpace(petID),
		Coordinate:       coordinate,
		CapturedAtMillis: capturedAtMillis,
	}
	if err := entry.Validate(); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Validate checks invariants of the Entry.
func (entry Entry) Validate() error {
	if entry.ID == "" {
		return ErrMissingEntryID
	}
	if entry.PetID == "" {
		return ErrMissingPetID
	}
	if err := entry.Coordinate.Validate(); err != nil {
		return err
	}
	if entry.CapturedAtMillis < 0 {
		return ErrCapturedAtNotValid
	}
	return nil
}

// StoreError is returned by history stores when an append, list or delete fails.
// It is surfaced to the caller and never retried by the tracking core.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("history store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
