package pet

import (
	"errors"
	"fmt"
	"strings"

	"pet-tracker/internal/domain/geo"
)

// ErrValidation is wrapped by every ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a missing-report precondition that the caller's input failed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ReportMissing returns a copy of pet marked missing with the given last-seen details.
// It does not persist anything.
func ReportMissing(pet TrackedPet, lastSeen *geo.Coordinate, lastSeenAtMillis int64, notes string, nowMillis int64) (TrackedPet, error) {
	if pet.IsMissing {
		return TrackedPet{}, invalid("is_missing", "pet is already reported missing")
	}
	if lastSeen == nil {
		return TrackedPet{}, invalid("last_seen_coordinate", "last-seen location is required")
	}
	if err := lastSeen.Validate(); err != nil {
		return TrackedPet{}, invalid("last_seen_coordinate", err.Error())
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return TrackedPet{}, invalid("notes", "additional information is required")
	}
	if lastSeenAtMillis <= 0 {
		return TrackedPet{}, invalid("last_seen_at_ms", "last-seen time is required")
	}
	if lastSeenAtMillis > nowMillis {
		return TrackedPet{}, invalid("last_seen_at_ms", "last-seen time cannot be in the future")
	}

	out := pet
	out.IsMissing = true
	out.LastSeen = lastSeen.Ptr()
	at := lastSeenAtMillis
	out.LastSeenAt = &at
	out.MissingNotes = &notes
	return out, nil
}

// ClearMissing returns a copy of pet with the missing flag and every last-seen field cleared.
func ClearMissing(pet TrackedPet) (TrackedPet, error) {
	if !pet.IsMissing {
		return TrackedPet{}, invalid("is_missing", "pet is not reported missing")
	}

	out := pet
	out.IsMissing = false
	out.LastSeen = nil
	out.LastSeenAt = nil
	out.MissingNotes = nil
	return out, nil
}
