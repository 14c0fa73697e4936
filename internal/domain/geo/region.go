package geo

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// RegionPadding is added to both spans so that a single point still yields a zoomed-in region.
const RegionPadding = 0.01

var ErrEmptyInput = errors.New("bounding region requires at least one point")

// MapViewport is the map center and the latitude/longitude spans needed to frame a set of points.
type MapViewport struct {
	Center        Coordinate `json:"center"`
	LatitudeSpan  float64    `json:"latitude_span"`
	LongitudeSpan float64    `json:"longitude_span"`
}

// BoundingRegion frames all points. The center is the midpoint of the extremes, not the centroid.
func BoundingRegion(points []Coordinate) (MapViewport, error) {
	if len(points) == 0 {
		return MapViewport{}, ErrEmptyInput
	}

	lats := make([]float64, len(points))
	lons := make([]float64, len(points))
	for i, p := range points {
		lats[i] = p.Latitude
		lons[i] = p.Longitude
	}

	minLat, maxLat := floats.Min(lats), floats.Max(lats)
	minLon, maxLon := floats.Min(lons), floats.Max(lons)

	return MapViewport{
		Center: Coordinate{
			Latitude:  (maxLat + minLat) / 2,
			Longitude: (maxLon + minLon) / 2,
		},
		LatitudeSpan:  (maxLat - minLat) + RegionPadding,
		LongitudeSpan: (maxLon - minLon) + RegionPadding,
	}, nil
}
