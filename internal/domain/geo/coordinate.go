package geo

import (
	"errors"
	"math"
)

// Coordinate is an immutable WGS84 latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)

// NewCoordinate constructs a validated Coordinate.
func NewCoordinate(latitude, longitude float64) (Coordinate, error) {
	coordinate := Coordinate{Latitude: latitude, Longitude: longitude}
	if err := coordinate.Validate(); err != nil {
		return Coordinate{}, err
	}
	return coordinate, nil
}

// Validate checks the latitude/longitude ranges.
func (coordinate Coordinate) Validate() error {
	if math.IsNaN(coordinate.Latitude) || coordinate.Latitude < -90 || coordinate.Latitude > 90 {
		return ErrInvalidLatitude
	}
	if math.IsNaN(coordinate.Longitude) || coordinate.Longitude < -180 || coordinate.Longitude > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// Ptr returns a pointer to a copy of the coordinate.
func (coordinate Coordinate) Ptr() *Coordinate {
	return &coordinate
}
