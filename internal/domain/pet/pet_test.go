package pet

import (
	"strings"
	"testing"

	"pet-tracker/internal/domain/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrackedPetTrimsAndValidates(t *testing.T) {
	p, err := NewTrackedPet("id", " owner ", Profile{Name: "  Rex ", TrackerDeviceID: " collar-1 "})
	require.NoError(t, err)
	assert.Equal(t, "owner", p.OwnerID)
	assert.Equal(t, "Rex", p.Name)
	assert.Equal(t, "collar-1", p.TrackedEntityID())
	assert.False(t, p.IsMissing)

	_, err = NewTrackedPet("id", "", Profile{Name: "Rex"})
	require.ErrorIs(t, err, ErrMissingOwnerID)

	_, err = NewTrackedPet("id", "owner", Profile{Name: " "})
	require.ErrorIs(t, err, ErrEmptyName)

	_, err = NewTrackedPet("id", "owner", Profile{Name: strings.Repeat("x", 101)})
	require.ErrorIs(t, err, ErrNameTooLong)
}

func TestValidateRejectsLeftoverMissingFields(t *testing.T) {
	p, err := NewTrackedPet("id", "owner", Profile{Name: "Rex"})
	require.NoError(t, err)

	notes := "stale"
	p.MissingNotes = &notes
	require.ErrorIs(t, p.Validate(), ErrMissingFieldsPresent)

	p.IsMissing = true
	require.ErrorIs(t, p.Validate(), ErrMissingFieldsAbsent)

	at := int64(1)
	p.LastSeenAt = &at
	p.LastSeen = &geo.Coordinate{Latitude: 1, Longitude: 1}
	require.NoError(t, p.Validate())
}

func TestUpdateProfileKeepsRecordOnInvalidInput(t *testing.T) {
	p, err := NewTrackedPet("id", "owner", Profile{Name: "Rex", Breed: "Aspin"})
	require.NoError(t, err)

	require.ErrorIs(t, p.UpdateProfile(Profile{Name: ""}), ErrEmptyName)
	assert.Equal(t, "Rex", p.Name)
	assert.Equal(t, "Aspin", p.Breed)

	require.NoError(t, p.UpdateProfile(Profile{Name: "Rexy", TrackerDeviceID: "c-2"}))
	assert.Equal(t, "Rexy", p.Name)
	assert.Equal(t, "", p.Breed)
	assert.Equal(t, "c-2", p.TrackerDeviceID)
}
