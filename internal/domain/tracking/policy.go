package tracking

import "pet-tracker/internal/domain/geo"

const (
	DefaultTimeThresholdMillis     int64   = 30000
	DefaultDistanceThresholdMeters float64 = 1
)

// SamplingPolicy decides whether a reported fix is durable enough to become a history entry.
// A candidate is persisted when either enough time has passed since the last persisted entry
// or the pet has moved far enough from it.
type SamplingPolicy struct {
	TimeThresholdMillis     int64
	DistanceThresholdMeters float64
}

// DefaultSamplingPolicy returns the 30 s / 1 m policy.
func DefaultSamplingPolicy() SamplingPolicy {
	return SamplingPolicy{
		TimeThresholdMillis:     DefaultTimeThresholdMillis,
		DistanceThresholdMeters: DefaultDistanceThresholdMeters,
	}
}

// ShouldPersist reports whether candidate should be committed to history.
// A nil lastPersisted means nothing has been stored yet, so the candidate always wins.
func (policy SamplingPolicy) ShouldPersist(
	candidate geo.Coordinate,
	candidateAtMillis int64,
	lastPersisted *geo.Coordinate,
	lastPersistedAtMillis int64,
) bool {
	if lastPersisted == nil {
		return true
	}
	if candidateAtMillis-lastPersistedAtMillis >= policy.TimeThresholdMillis {
		return true
	}
	return geo.DistanceMeters(candidate, *lastPersisted) >= policy.DistanceThresholdMeters
}
