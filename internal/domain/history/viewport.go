package history

import (
	"cmp"
	"slices"

	"pet-tracker/internal/domain/geo"
)

// EmptyTrailSpan is the span used to frame the fallback center when there is no history yet.
const EmptyTrailSpan = 0.005

// Marker is one rendered point of a trail.
type Marker struct {
	EntryID          string         `json:"entry_id"`
	Coordinate       geo.Coordinate `json:"coordinate"`
	CapturedAtMillis int64          `json:"captured_at_ms"`
	IsStart          bool           `json:"is_start"`
	IsEnd            bool           `json:"is_end"`
}

// Trail is the chronological polyline of a pet's history with its endpoint markers.
type Trail struct {
	Points  []geo.Coordinate `json:"points"`
	Markers []Marker         `json:"markers"`
}

// Start returns the oldest marker.
func (trail Trail) Start() (Marker, bool) {
	if len(trail.Markers) == 0 {
		return Marker{}, false
	}
	return trail.Markers[0], true
}

// End returns the newest marker.
func (trail Trail) End() (Marker, bool) {
	if len(trail.Markers) == 0 {
		return Marker{}, false
	}
	return trail.Markers[len(trail.Markers)-1], true
}

// ComputeViewport frames every entry. An empty history is a normal state, so instead of failing it
// centers on fallback with EmptyTrailSpan.
func ComputeViewport(entries []Entry, fallback geo.Coordinate) geo.MapViewport {
	if len(entries) == 0 {
		return geo.MapViewport{
			Center:        fallback,
			LatitudeSpan:  EmptyTrailSpan,
			LongitudeSpan: EmptyTrailSpan,
		}
	}

	points := make([]geo.Coordinate, len(entries))
	for i, e := range entries {
		points[i] = e.Coordinate
	}

	// points is non-empty here
	viewport, _ := geo.BoundingRegion(points)
	return viewport
}

// OrderedTrail sorts entries oldest first. The input slice is not modified.
func OrderedTrail(entries []Entry) Trail {
	sorted := slices.Clone(entries)
	SortAscending(sorted)

	trail := Trail{
		Points:  make([]geo.Coordinate, len(sorted)),
		Markers: make([]Marker, len(sorted)),
	}
	for i, e := range sorted {
		trail.Points[i] = e.Coordinate
		trail.Markers[i] = Marker{
			EntryID:          e.ID,
			Coordinate:       e.Coordinate,
			CapturedAtMillis: e.CapturedAtMillis,
			IsStart:          i == 0,
			IsEnd:            i == len(sorted)-1,
		}
	}
	return trail
}

// SortDescending orders entries newest first (display order). Ties are broken by ID.
func SortDescending(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.CapturedAtMillis, a.CapturedAtMillis); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

// SortAscending orders entries oldest first (trail order). Ties are broken by ID.
func SortAscending(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(a.CapturedAtMillis, b.CapturedAtMillis); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
