package tracking

import (
	"errors"
	"time"

	"pet-tracker/internal/domain/geo"
)

// ErrFeedUnavailable marks a transport or backend failure of the location feed.
// It is transient: the next scheduled poll is the retry.
var ErrFeedUnavailable = errors.New("location feed unavailable")

// Fix is a single position report read from the location feed.
type Fix struct {
	Coordinate     geo.Coordinate
	BatteryPercent *int
	RecordedAt     time.Time
}

// Lifecycle is the state of a tracking session.
type Lifecycle string

const (
	LifecycleIdle    Lifecycle = "IDLE"
	LifecycleRunning Lifecycle = "RUNNING"
	LifecycleStopped Lifecycle = "STOPPED"
)

// String returns the string representation of the Lifecycle.
func (lifecycle Lifecycle) String() string {
	return string(lifecycle)
}

// SessionState is the transient state owned by a running session. It is never persisted.
type SessionState struct {
	LastReported          *geo.Coordinate `json:"last_reported,omitempty"`
	LastReportAtMillis    int64           `json:"last_report_at_ms,omitempty"`
	LastPersisted         *geo.Coordinate `json:"last_persisted,omitempty"`
	LastPersistedAtMillis int64           `json:"last_persisted_at_ms,omitempty"`
	DeviceOnline          bool            `json:"device_online"`
	BatteryPercent        *int            `json:"battery_percent,omitempty"`
	LastError             string          `json:"last_error,omitempty"`
}

// Clone returns a deep copy so observers never share pointers with the session.
func (state SessionState) Clone() SessionState {
	out := state
	if state.LastReported != nil {
		out.LastReported = state.LastReported.Ptr()
	}
	if state.LastPersisted != nil {
		out.LastPersisted = state.LastPersisted.Ptr()
	}
	if state.BatteryPercent != nil {
		battery := *state.BatteryPercent
		out.BatteryPercent = &battery
	}
	return out
}

// Snapshot is what observers of a session receive.
type Snapshot struct {
	PetID     string       `json:"pet_id"`
	Lifecycle Lifecycle    `json:"lifecycle"`
	State     SessionState `json:"state"`
	Persisted bool         `json:"persisted"` // the report that produced this snapshot became a history entry
}
