package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pet-tracker/internal/domain/geo"
	"pet-tracker/internal/domain/history"
	"pet-tracker/internal/domain/tracking"
	"pet-tracker/internal/general/logger"
	"pet-tracker/internal/general/metrics"
	"pet-tracker/internal/ports"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultPollInterval = 30 * time.Second
	defaultPollTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// ErrSessionNotIdle is returned by Start on a session that already ran. A stopped session
// is never restarted; construct a new one instead.
var ErrSessionNotIdle = errors.New("tracking session already started")

// Config describes one pet's tracking session.
type Config struct {
	OwnerID         string
	PetID           string
	TrackedEntityID string

	Interval     time.Duration // poll period, default 30s
	PollTimeout  time.Duration // bound on a single feed read
	WriteTimeout time.Duration // bound on a single history append
	Policy       tracking.SamplingPolicy

	// Seed is the newest stored history entry, if any. It becomes the initial
	// last-persisted position so a restarted app does not duplicate the tail of the trail.
	Seed *history.Entry

	Now   func() time.Time
	NewID func() string
}

// Session polls the location feed for one pet, thins the fixes through the sampling
// policy into the history store, and fans snapshots out to observers.
//
// Lifecycle is Idle -> Running -> Stopped. At most one poll is in flight at a time; ticks
// that arrive while a poll is running are skipped. Once Stop returns no further history
// write happens and no late poll result is applied.
type Session struct {
	cfg    Config
	feed   ports.LocationFeed
	store  ports.HistoryStore
	logger *logger.Logger

	polling *semaphore.Weighted

	// applyMu serialises applying a poll result (including its history write) with Stop.
	// Lock order: applyMu, then mu.
	applyMu sync.Mutex

	mu           sync.Mutex
	lifecycle    tracking.Lifecycle
	state        tracking.SessionState
	lastClockMs  int64
	cancel       context.CancelFunc
	observers    map[uint64]chan tracking.Snapshot
	nextObserver uint64

	done chan struct{}
}

// New constructs an Idle session.
func New(cfg Config, feed ports.LocationFeed, store ports.HistoryStore, log *logger.Logger) *Session {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Policy == (tracking.SamplingPolicy{}) {
		cfg.Policy = tracking.DefaultSamplingPolicy()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if log == nil {
		log = logger.NewWithWriter("tracking-session", nil)
	}

	s := &Session{
		cfg:       cfg,
		feed:      feed,
		store:     store,
		logger:    log,
		polling:   semaphore.NewWeighted(1),
		lifecycle: tracking.LifecycleIdle,
		observers: make(map[uint64]chan tracking.Snapshot),
		done:      make(chan struct{}),
	}

	if seed := cfg.Seed; seed != nil {
		s.state.LastPersisted = seed.Coordinate.Ptr()
		s.state.LastPersistedAtMillis = seed.CapturedAtMillis
	}

	return s
}

// PetID returns the pet this session tracks.
func (s *Session) PetID() string { return s.cfg.PetID }

// OwnerID returns the owner the session writes history for.
func (s *Session) OwnerID() string { return s.cfg.OwnerID }

// Start moves the session from Idle to Running, polls once immediately and then on every interval.
// The session outlives ctx's cancellation; only Stop ends it.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.lifecycle != tracking.LifecycleIdle {
		s.mu.Unlock()
		return ErrSessionNotIdle
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = s.logger.WithPetID(runCtx, s.cfg.PetID)
	s.cancel = cancel
	s.lifecycle = tracking.LifecycleRunning
	s.mu.Unlock()

	metrics.SessionStarted()
	s.logger.Info(runCtx, "tracking_session_started", "Tracking session started", map[string]any{
		"tracked_entity_id": s.cfg.TrackedEntityID,
		"interval_ms":       s.cfg.Interval.Milliseconds(),
	})

	s.poll(runCtx)
	go s.loop(runCtx)

	return nil
}

// Stop moves a Running session to Stopped, cancels the schedule and any in-flight poll,
// and closes every observer channel. It waits for a history write that is already under way.
// Stop on an Idle or Stopped session is a no-op.
func (s *Session) Stop() {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if s.lifecycle != tracking.LifecycleRunning {
		s.mu.Unlock()
		return
	}
	s.lifecycle = tracking.LifecycleStopped
	s.cancel()

	final := s.snapshotLocked(false)
	for id, ch := range s.observers {
		offer(ch, final)
		close(ch)
		delete(s.observers, id)
	}
	s.mu.Unlock()

	metrics.SessionStopped()
	s.logger.Info(s.logger.WithPetID(context.Background(), s.cfg.PetID), "tracking_session_stopped", "Tracking session stopped", nil)
}

// Done is closed when the polling loop of a started session has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// PollNow triggers an out-of-schedule poll. It returns false without polling when another
// poll is in flight or the session is not running.
func (s *Session) PollNow(ctx context.Context) bool {
	s.mu.Lock()
	running := s.lifecycle == tracking.LifecycleRunning
	s.mu.Unlock()
	if !running {
		return false
	}
	return s.poll(s.logger.WithPetID(ctx, s.cfg.PetID))
}

// Snapshot returns the current lifecycle and a copy of the session state.
func (s *Session) Snapshot() tracking.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(false)
}

// Lifecycle returns the current lifecycle state.
func (s *Session) Lifecycle() tracking.Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle
}

// Subscribe registers an observer. The channel holds at most one pending snapshot; a slow
// observer only ever sees the latest one. The current snapshot is delivered immediately.
// The channel is closed by the returned cancel func or when the session stops.
func (s *Session) Subscribe() (<-chan tracking.Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan tracking.Snapshot, 1)
	ch <- s.snapshotLocked(false)

	if s.lifecycle == tracking.LifecycleStopped {
		close(ch)
		return ch, func() {}
	}

	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.observers[id]; ok {
				delete(s.observers, id)
				close(c)
			}
		})
	}
}

// ----- internals -----

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll reads the feed once and applies the outcome. It skips when a poll is in flight.
func (s *Session) poll(ctx context.Context) bool {
	if !s.polling.TryAcquire(1) {
		return false
	}
	defer s.polling.Release(1)

	start := time.Now()
	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	fix, ok, err := s.feed.PollLatest(pollCtx, s.cfg.TrackedEntityID)
	cancel()

	outcome := s.apply(ctx, fix, ok, err)
	metrics.RecordPoll(outcome, time.Since(start))
	return true
}

// apply folds one poll outcome into the session state. Results that arrive after Stop are dropped.
func (s *Session) apply(ctx context.Context, fix tracking.Fix, ok bool, pollErr error) string {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if s.lifecycle != tracking.LifecycleRunning {
		s.mu.Unlock()
		s.logger.Debug(ctx, "tracking_poll_discarded", "Poll resolved after the session stopped", nil)
		return metrics.PollDiscarded
	}

	nowMs := s.clockLocked()

	// feed failure or no current fix: keep the last known position, flag the device offline
	if pollErr != nil || !ok {
		s.state.DeviceOnline = false
		outcome := metrics.PollNotAvailable
		if pollErr != nil {
			outcome = metrics.PollFailed
			s.state.LastError = pollErr.Error()
		} else {
			s.state.LastError = "no current fix from tracker device"
		}
		s.notifyLocked(s.snapshotLocked(false))
		s.mu.Unlock()

		if pollErr != nil {
			s.logger.Error(ctx, "tracking_poll_failed", "Location feed poll failed", pollErr, map[string]any{
				"tracked_entity_id": s.cfg.TrackedEntityID,
			})
		}
		return outcome
	}

	coord := fix.Coordinate
	s.state.LastReported = coord.Ptr()
	s.state.LastReportAtMillis = nowMs
	s.state.DeviceOnline = true
	s.state.LastError = ""
	if fix.BatteryPercent != nil {
		battery := *fix.BatteryPercent
		s.state.BatteryPercent = &battery
	}
	persist := s.cfg.Policy.ShouldPersist(coord, nowMs, s.state.LastPersisted, s.state.LastPersistedAtMillis)
	s.mu.Unlock()

	if !persist {
		s.mu.Lock()
		s.notifyLocked(s.snapshotLocked(false))
		s.mu.Unlock()
		return metrics.PollFix
	}

	// the write runs under applyMu only, so Stop waits for it but observers and readers do not
	writeErr := s.appendEntry(ctx, coord, nowMs)
	metrics.RecordHistoryAppend(writeErr)

	s.mu.Lock()
	if writeErr != nil {
		s.state.LastError = writeErr.Error()
	} else {
		s.state.LastPersisted = coord.Ptr()
		s.state.LastPersistedAtMillis = nowMs
	}
	s.notifyLocked(s.snapshotLocked(writeErr == nil))
	s.mu.Unlock()

	if writeErr != nil {
		s.logger.Error(ctx, "history_append_failed", "Failed to persist history entry", writeErr, map[string]any{
			"captured_at_ms": nowMs,
		})
	} else {
		s.logger.Debug(ctx, "history_entry_persisted", "History entry persisted", map[string]any{
			"captured_at_ms": nowMs,
			"lat":            coord.Latitude,
			"lng":            coord.Longitude,
		})
	}

	return metrics.PollFix
}

func (s *Session) appendEntry(ctx context.Context, coord geo.Coordinate, capturedAtMs int64) error {
	entry, err := history.NewEntry(s.cfg.NewID(), s.cfg.PetID, coord, capturedAtMs)
	if err != nil {
		return fmt.Errorf("build history entry: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	return s.store.Append(writeCtx, s.cfg.OwnerID, s.cfg.PetID, entry)
}

// clockLocked returns the session clock in unix millis, never going backwards.
func (s *Session) clockLocked() int64 {
	now := s.cfg.Now().UnixMilli()
	if now < s.lastClockMs {
		now = s.lastClockMs
	}
	s.lastClockMs = now
	return now
}

func (s *Session) snapshotLocked(persisted bool) tracking.Snapshot {
	return tracking.Snapshot{
		PetID:     s.cfg.PetID,
		Lifecycle: s.lifecycle,
		State:     s.state.Clone(),
		Persisted: persisted,
	}
}

func (s *Session) notifyLocked(snap tracking.Snapshot) {
	for _, ch := range s.observers {
		offer(ch, snap)
	}
}

// offer replaces any pending snapshot in ch with snap without blocking.
func offer(ch chan tracking.Snapshot, snap tracking.Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
