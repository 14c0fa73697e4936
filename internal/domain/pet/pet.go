package pet

import (
	"errors"
	"strings"
	"time"

	"pet-tracker/internal/domain/geo"
)

// TrackedPet is the domain entity corresponding to the `pets` table.
type TrackedPet struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"owner_id"`
	Name            string          `json:"name"`
	Species         string          `json:"species,omitempty"`
	Breed           string          `json:"breed,omitempty"`
	Gender          string          `json:"gender,omitempty"`
	Age             string          `json:"age,omitempty"`
	ProfileImageRef string          `json:"profile_image_ref,omitempty"`
	TrackerDeviceID string          `json:"tracker_device_id,omitempty"`
	IsMissing       bool            `json:"is_missing"`
	LastSeen        *geo.Coordinate `json:"last_seen_coordinate,omitempty"`
	LastSeenAt      *int64          `json:"last_seen_at_ms,omitempty"`
	MissingNotes    *string         `json:"missing_notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

var (
	ErrMissingOwnerID       = errors.New("owner ID is missing")
	ErrEmptyName            = errors.New("pet name cannot be empty")
	ErrNameTooLong          = errors.New("pet name must be at most 100 characters")
	ErrMissingFieldsPresent = errors.New("last-seen fields must be empty unless the pet is missing")
	ErrMissingFieldsAbsent  = errors.New("a missing pet must have last-seen coordinate, time and notes")
	ErrBadTimestamps        = errors.New("updated_at cannot be before created_at")
)

// Profile holds the owner-editable fields of a pet.
type Profile struct {
	Name            string
	Species         string
	Breed           string
	Gender          string
	Age             string
	TrackerDeviceID string
}

// NewTrackedPet constructs a not-missing pet for ownerID.
func NewTrackedPet(id, ownerID string, profile Profile) (*TrackedPet, error) {
	now := time.Now().UTC()
	pet := &TrackedPet{
		ID:        strings.TrimSpace(id),
		OwnerID:   strings.TrimSpace(ownerID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	pet.applyProfile(profile)

	if err := pet.Validate(); err != nil {
		return nil, err
	}
	return pet, nil
}

// Validate checks invariants of the TrackedPet entity.
func (pet *TrackedPet) Validate() error {
	if pet.OwnerID == "" {
		return ErrMissingOwnerID
	}
	if pet.Name == "" {
		return ErrEmptyName
	}
	if len([]rune(pet.Name)) > 100 {
		return ErrNameTooLong
	}

	if !pet.IsMissing {
		if pet.LastSeen != nil || pet.LastSeenAt != nil || pet.MissingNotes != nil {
			return ErrMissingFieldsPresent
		}
	} else {
		if pet.LastSeen == nil || pet.LastSeenAt == nil || pet.MissingNotes == nil {
			return ErrMissingFieldsAbsent
		}
		if err := pet.LastSeen.Validate(); err != nil {
			return err
		}
	}

	if !pet.CreatedAt.IsZero() && !pet.UpdatedAt.IsZero() && pet.UpdatedAt.Before(pet.CreatedAt) {
		return ErrBadTimestamps
	}
	return nil
}

// ----- Setters and helpers -----

// UpdateProfile replaces the editable fields. Updates UpdatedAt timestamp.
func (pet *TrackedPet) UpdateProfile(profile Profile) error {
	updated := *pet
	updated.applyProfile(profile)
	if err := updated.Validate(); err != nil {
		return err
	}
	*pet = updated
	pet.touch()
	return nil
}

// SetProfileImage records the blob key of the pet's profile picture. Updates UpdatedAt timestamp.
func (pet *TrackedPet) SetProfileImage(ref string) {
	pet.ProfileImageRef = strings.TrimSpace(ref)
	pet.touch()
}

// TrackedEntityID is the id the location feed knows this pet by.
func (pet *TrackedPet) TrackedEntityID() string {
	return pet.TrackerDeviceID
}

func (pet *TrackedPet) applyProfile(profile Profile) {
	pet.Name = strings.TrimSpace(profile.Name)
	pet.Species = strings.TrimSpace(profile.Species)
	pet.Breed = strings.TrimSpace(profile.Breed)
	pet.Gender = strings.TrimSpace(profile.Gender)
	pet.Age = strings.TrimSpace(profile.Age)
	pet.TrackerDeviceID = strings.TrimSpace(profile.TrackerDeviceID)
}

// touch sets UpdatedAt to now (UTC).
func (pet *TrackedPet) touch() {
	pet.UpdatedAt = time.Now().UTC()
}
