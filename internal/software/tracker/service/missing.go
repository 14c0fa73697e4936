package service

import (
	"context"

	"pet-tracker/internal/domain/geo"
	"pet-tracker/internal/domain/pet"
	"pet-tracker/internal/general/contracts"
	"pet-tracker/internal/ports"
)

// ReportMissing marks the pet missing with its last-seen location, time and notes.
// With UseLastKnown, absent location and time are taken from the running session's
// last report, or else from the newest history entry.
func (service *trackerService) ReportMissing(ctx context.Context, in ports.ReportMissingInput) (ports.PetView, error) {
	ctx = service.logger.WithPetID(ctx, in.PetID)

	lastSeen, lastSeenAt := in.LastSeen, in.LastSeenAt
	if in.UseLastKnown && (lastSeen == nil || lastSeenAt <= 0) {
		known, knownAt, err := service.lastKnownPosition(ctx, in.OwnerID, in.PetID)
		if err != nil {
			return ports.PetView{}, err
		}
		if known == nil {
			return ports.PetView{}, &pet.ValidationError{
				Field:  "use_last_known",
				Reason: "no known position for this pet",
			}
		}
		if lastSeen == nil {
			lastSeen = known
		}
		if lastSeenAt <= 0 {
			lastSeenAt = knownAt
		}
	}

	var updated pet.TrackedPet
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		p, err := service.pets.GetByID(txCtx, in.OwnerID, in.PetID)
		if err != nil {
			return err
		}
		reported, err := pet.ReportMissing(*p, lastSeen, lastSeenAt, in.Notes, service.now().UnixMilli())
		if err != nil {
			return err
		}
		if err := service.pets.UpdateMissing(txCtx, &reported); err != nil {
			return err
		}
		updated = reported
		return nil
	})
	if err != nil {
		return ports.PetView{}, err
	}

	service.logger.Info(ctx, "pet_reported_missing", "Pet reported missing", map[string]any{
		"last_seen_at_ms": lastSeenAt,
	})
	service.publishPetEvent(ctx, contracts.RoutePetMissingPrefix, petEvent(contracts.PetEventMissing, updated))

	return service.view(updated), nil
}

// ClearMissing marks a missing pet as found and clears every last-seen field.
func (service *trackerService) ClearMissing(ctx context.Context, ownerID, petID string) (ports.PetView, error) {
	ctx = service.logger.WithPetID(ctx, petID)

	var found pet.TrackedPet
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		p, err := service.pets.GetByID(txCtx, ownerID, petID)
		if err != nil {
			return err
		}
		cleared, err := pet.ClearMissing(*p)
		if err != nil {
			return err
		}
		if err := service.pets.UpdateMissing(txCtx, &cleared); err != nil {
			return err
		}
		found = cleared
		return nil
	})
	if err != nil {
		return ports.PetView{}, err
	}

	service.logger.Info(ctx, "pet_found", "Missing report cleared", nil)
	service.publishPetEvent(ctx, contracts.RoutePetFoundPrefix, petEvent(contracts.PetEventFound, found))

	return service.view(found), nil
}

// lastKnownPosition prefers the live session over stored history.
func (service *trackerService) lastKnownPosition(ctx context.Context, ownerID, petID string) (*geo.Coordinate, int64, error) {
	if s, ok := service.sessions.get(petID); ok && s.OwnerID() == ownerID {
		state := s.Snapshot().State
		if state.LastReported != nil && state.LastReportAtMillis > 0 {
			return state.LastReported, state.LastReportAtMillis, nil
		}
	}

	entry, ok, err := service.history.Latest(ctx, ownerID, petID)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, nil
	}
	return entry.Coordinate.Ptr(), entry.CapturedAtMillis, nil
}
