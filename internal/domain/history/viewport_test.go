package history

import (
	"testing"

	"pet-tracker/internal/domain/geo"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id string, lat, lon float64, at int64) Entry {
	return Entry{ID: id, PetID: "pet-1", Coordinate: geo.Coordinate{Latitude: lat, Longitude: lon}, CapturedAtMillis: at}
}

func TestComputeViewportEmptyUsesFallback(t *testing.T) {
	fallback := geo.Coordinate{Latitude: 14.6037, Longitude: 121.3084}

	got := ComputeViewport(nil, fallback)

	assert.Equal(t, geo.MapViewport{Center: fallback, LatitudeSpan: 0.005, LongitudeSpan: 0.005}, got)
}

func TestComputeViewportFramesAllEntries(t *testing.T) {
	entries := []Entry{
		entry("b", 10.5, 10.2, 2000),
		entry("a", 10, 10, 1000),
	}

	got := ComputeViewport(entries, geo.Coordinate{})

	want := geo.MapViewport{Center: geo.Coordinate{Latitude: 10.25, Longitude: 10.1}, LatitudeSpan: 0.51, LongitudeSpan: 0.21}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("ComputeViewport mismatch (-want +got):\n%s", diff)
	}
}

func TestOrderedTrailIsAscendingWithDistinctEndpoints(t *testing.T) {
	entries := []Entry{
		entry("c", 3, 3, 3000),
		entry("a", 1, 1, 1000),
		entry("b", 2, 2, 2000),
	}

	trail := OrderedTrail(entries)

	require.Len(t, trail.Points, 3)
	assert.Equal(t, []geo.Coordinate{
		{Latitude: 1, Longitude: 1},
		{Latitude: 2, Longitude: 2},
		{Latitude: 3, Longitude: 3},
	}, trail.Points)

	start, ok := trail.Start()
	require.True(t, ok)
	assert.Equal(t, "a", start.EntryID)
	assert.True(t, start.IsStart)
	assert.False(t, start.IsEnd)

	end, ok := trail.End()
	require.True(t, ok)
	assert.Equal(t, "c", end.EntryID)
	assert.True(t, end.IsEnd)
	assert.False(t, end.IsStart)

	middle := trail.Markers[1]
	assert.False(t, middle.IsStart)
	assert.False(t, middle.IsEnd)

	// input order untouched
	assert.Equal(t, "c", entries[0].ID)
}

func TestOrderedTrailSingleEntryIsBothEndpoints(t *testing.T) {
	trail := OrderedTrail([]Entry{entry("only", 1, 1, 1000)})

	require.Len(t, trail.Markers, 1)
	assert.True(t, trail.Markers[0].IsStart)
	assert.True(t, trail.Markers[0].IsEnd)
}

func TestOrderedTrailEmpty(t *testing.T) {
	trail := OrderedTrail(nil)

	assert.Empty(t, trail.Points)
	_, ok := trail.Start()
	assert.False(t, ok)
	_, ok = trail.End()
	assert.False(t, ok)
}

func TestSortDescendingBreaksTiesByID(t *testing.T) {
	entries := []Entry{
		entry("a", 0, 0, 1000),
		entry("c", 0, 0, 2000),
		entry("b", 0, 0, 2000),
	}

	SortDescending(entries)

	ids := []string{entries[0].ID, entries[1].ID, entries[2].ID}
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestNewEntryValidates(t *testing.T) {
	_, err := NewEntry("", "pet", geo.Coordinate{}, 1)
	require.ErrorIs(t, err, ErrMissingEntryID)

	_, err = NewEntry("id", " ", geo.Coordinate{}, 1)
	require.ErrorIs(t, err, ErrMissingPetID)

	_, err = NewEntry("id", "pet", geo.Coordinate{Latitude: 91}, 1)
	require.ErrorIs(t, err, geo.ErrInvalidLatitude)

	_, err = NewEntry("id", "pet", geo.Coordinate{}, -1)
	require.ErrorIs(t, err, ErrCapturedAtNotValid)

	// the epoch itself is a valid capture time
	entry, err := NewEntry("id", "pet", geo.Coordinate{}, 0)
	require.NoError(t, err)
	assert.Zero(t, entry.CapturedAtMillis)
}
