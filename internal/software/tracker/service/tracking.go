package service

import (
	"context"
	"errors"

	"pet-tracker/internal/domain/history"
	"pet-tracker/internal/domain/pet"
	"pet-tracker/internal/domain/tracking"
	"pet-tracker/internal/ports"
	"pet-tracker/internal/software/tracker/session"
)

// StartTracking starts polling the pet's tracker device. Starting a pet that is already
// being tracked returns the running session's snapshot.
func (service *trackerService) StartTracking(ctx context.Context, ownerID, petID string) (tracking.Snapshot, error) {
	ctx = service.logger.WithPetID(ctx, petID)

	p, err := service.loadPet(ctx, ownerID, petID)
	if err != nil {
		return tracking.Snapshot{}, err
	}
	if p.TrackedEntityID() == "" {
		return tracking.Snapshot{}, ports.ErrNoTrackerDevice
	}

	seed, err := service.latestEntry(ctx, ownerID, petID)
	if err != nil {
		return tracking.Snapshot{}, err
	}

	s, created := service.sessions.acquire(petID, func() *session.Session {
		return service.newSession(p, seed)
	})
	if !created {
		return s.Snapshot(), nil
	}

	if err := s.Start(ctx); err != nil && !errors.Is(err, session.ErrSessionNotIdle) {
		return tracking.Snapshot{}, err
	}

	service.logger.Info(ctx, "tracking_started", "Tracking session started", map[string]any{
		"tracker_device_id": p.TrackedEntityID(),
		"seeded":            seed != nil,
	})
	return s.Snapshot(), nil
}

// StopTracking stops the pet's session. The stopped session stays readable until the next start.
func (service *trackerService) StopTracking(ctx context.Context, ownerID, petID string) (tracking.Snapshot, error) {
	if _, err := service.loadPet(ctx, ownerID, petID); err != nil {
		return tracking.Snapshot{}, err
	}

	s, ok := service.sessions.get(petID)
	if !ok {
		return idleSnapshot(petID), nil
	}
	s.Stop()

	service.logger.Info(service.logger.WithPetID(ctx, petID), "tracking_stopped", "Tracking session stopped", nil)
	return s.Snapshot(), nil
}

// RefreshTracking polls the feed right away. Polled is false when a poll was already in flight.
func (service *trackerService) RefreshTracking(ctx context.Context, ownerID, petID string) (ports.RefreshResult, error) {
	s, err := service.ownedSession(ctx, ownerID, petID)
	if err != nil {
		return ports.RefreshResult{}, err
	}
	if s.Lifecycle() != tracking.LifecycleRunning {
		return ports.RefreshResult{}, ports.ErrNotTracking
	}

	polled := s.PollNow(ctx)
	return ports.RefreshResult{Polled: polled, Snapshot: s.Snapshot()}, nil
}

// TrackingStatus returns the session snapshot, or an Idle snapshot when the pet was never tracked.
func (service *trackerService) TrackingStatus(ctx context.Context, ownerID, petID string) (tracking.Snapshot, error) {
	s, err := service.ownedSession(ctx, ownerID, petID)
	if errors.Is(err, ports.ErrNotTracking) {
		return idleSnapshot(petID), nil
	}
	if err != nil {
		return tracking.Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// SubscribeTracking registers an observer of the pet's session.
func (service *trackerService) SubscribeTracking(ctx context.Context, ownerID, petID string) (<-chan tracking.Snapshot, func(), error) {
	s, err := service.ownedSession(ctx, ownerID, petID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.Subscribe()
	return ch, cancel, nil
}

// ownedSession checks that the pet belongs to the owner before handing out its session.
func (service *trackerService) ownedSession(ctx context.Context, ownerID, petID string) (*session.Session, error) {
	if _, err := service.loadPet(ctx, ownerID, petID); err != nil {
		return nil, err
	}
	s, ok := service.sessions.get(petID)
	if !ok || s.OwnerID() != ownerID {
		return nil, ports.ErrNotTracking
	}
	return s, nil
}

func (service *trackerService) newSession(p *pet.TrackedPet, seed *history.Entry) *session.Session {
	return session.New(session.Config{
		OwnerID:         p.OwnerID,
		PetID:           p.ID,
		TrackedEntityID: p.TrackedEntityID(),
		Interval:        service.cfg.PollInterval,
		Policy:          service.cfg.Policy,
		Seed:            seed,
		Now:             service.now,
		NewID:           service.newID,
	}, service.feed, service.history, service.logger)
}

func (service *trackerService) latestEntry(ctx context.Context, ownerID, petID string) (*history.Entry, error) {
	entry, ok, err := service.history.Latest(ctx, ownerID, petID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func idleSnapshot(petID string) tracking.Snapshot {
	return tracking.Snapshot{PetID: petID, Lifecycle: tracking.LifecycleIdle}
}
