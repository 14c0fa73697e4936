package service

import (
	"context"

	"pet-tracker/internal/domain/geo"
	"pet-tracker/internal/domain/history"
	"pet-tracker/internal/general/contracts"
	"pet-tracker/internal/ports"
)

// ListHistory returns the pet's persisted positions, newest first.
func (service *trackerService) ListHistory(ctx context.Context, ownerID, petID string) (ports.HistoryResult, error) {
	if _, err := service.loadPet(ctx, ownerID, petID); err != nil {
		return ports.HistoryResult{}, err
	}

	entries, err := service.history.ListAll(ctx, ownerID, petID)
	if err != nil {
		return ports.HistoryResult{}, err
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return ports.HistoryResult{PetID: petID, Entries: entries, Count: len(entries)}, nil
}

// DeleteHistoryEntry removes one entry. Deleting an entry that is already gone succeeds.
func (service *trackerService) DeleteHistoryEntry(ctx context.Context, ownerID, petID, entryID string) error {
	if _, err := service.loadPet(ctx, ownerID, petID); err != nil {
		return err
	}
	if err := service.history.DeleteOne(ctx, ownerID, petID, entryID); err != nil {
		return err
	}

	service.logger.Info(service.logger.WithPetID(ctx, petID), "history_entry_deleted", "History entry deleted", map[string]any{
		"entry_id": entryID,
	})
	return nil
}

// DeleteAllHistory clears the pet's trail and announces it on the pet topic.
func (service *trackerService) DeleteAllHistory(ctx context.Context, ownerID, petID string) (ports.DeleteHistoryResult, error) {
	p, err := service.loadPet(ctx, ownerID, petID)
	if err != nil {
		return ports.DeleteHistoryResult{}, err
	}

	deleted, err := service.history.DeleteAll(ctx, ownerID, petID)
	if err != nil {
		return ports.DeleteHistoryResult{}, err
	}

	ctx = service.logger.WithPetID(ctx, petID)
	service.logger.Info(ctx, "history_cleared", "Location history cleared", map[string]any{
		"deleted": deleted,
	})

	msg := petEvent(contracts.PetEventHistoryCleared, *p)
	msg.DeletedEntries = deleted
	service.publishPetEvent(ctx, contracts.RoutePetHistoryClearedPfx, msg)

	return ports.DeleteHistoryResult{PetID: petID, Deleted: deleted}, nil
}

// HistoryViewport frames the whole trail. An empty trail centers on the best known position.
func (service *trackerService) HistoryViewport(ctx context.Context, ownerID, petID string) (ports.ViewportResult, error) {
	p, err := service.loadPet(ctx, ownerID, petID)
	if err != nil {
		return ports.ViewportResult{}, err
	}

	entries, err := service.history.ListAll(ctx, ownerID, petID)
	if err != nil {
		return ports.ViewportResult{}, err
	}

	fallback := service.cfg.DefaultCenter
	if reported := service.lastReported(petID, ownerID); reported != nil {
		fallback = *reported
	} else if p.LastSeen != nil {
		fallback = *p.LastSeen
	}

	return ports.ViewportResult{
		PetID:    petID,
		Viewport: history.ComputeViewport(entries, fallback),
		Trail:    history.OrderedTrail(entries),
	}, nil
}

// lastReported is the newest position the pet's session has seen, if any.
func (service *trackerService) lastReported(petID, ownerID string) *geo.Coordinate {
	s, ok := service.sessions.get(petID)
	if !ok || s.OwnerID() != ownerID {
		return nil
	}
	return s.Snapshot().State.LastReported
}
