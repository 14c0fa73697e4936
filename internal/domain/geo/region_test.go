package geo

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestBoundingRegionSinglePoint(t *testing.T) {
	got, err := BoundingRegion([]Coordinate{{Latitude: 0, Longitude: 0}})
	require.NoError(t, err)

	want := MapViewport{Center: Coordinate{Latitude: 0, Longitude: 0}, LatitudeSpan: 0.01, LongitudeSpan: 0.01}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Fatalf("BoundingRegion mismatch (-want +got):\n%s", diff)
	}
}

func TestBoundingRegionTwoPoints(t *testing.T) {
	got, err := BoundingRegion([]Coordinate{{Latitude: 10, Longitude: 10}, {Latitude: 10.5, Longitude: 10.2}})
	require.NoError(t, err)

	want := MapViewport{Center: Coordinate{Latitude: 10.25, Longitude: 10.1}, LatitudeSpan: 0.51, LongitudeSpan: 0.21}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Fatalf("BoundingRegion mismatch (-want +got):\n%s", diff)
	}
}

func TestBoundingRegionUsesMidpointOfExtremesNotCentroid(t *testing.T) {
	// three points clustered at the south end would pull a centroid down
	got, err := BoundingRegion([]Coordinate{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 0}, {Latitude: 1, Longitude: 1}})
	require.NoError(t, err)

	want := MapViewport{Center: Coordinate{Latitude: 0.5, Longitude: 0.5}, LatitudeSpan: 1.01, LongitudeSpan: 1.01}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Fatalf("BoundingRegion mismatch (-want +got):\n%s", diff)
	}
}

func TestBoundingRegionEmptyInput(t *testing.T) {
	_, err := BoundingRegion(nil)
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = BoundingRegion([]Coordinate{})
	require.ErrorIs(t, err, ErrEmptyInput)
}
