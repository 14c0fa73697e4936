package service

import (
	"context"
	"encoding/json"
	"time"

	"pet-tracker/internal/domain/pet"
	"pet-tracker/internal/general/contracts"
	"pet-tracker/internal/ports"

	"github.com/google/uuid"
)

// loadPet reads an owner's pet in its own transaction.
func (service *trackerService) loadPet(ctx context.Context, ownerID, petID string) (*pet.TrackedPet, error) {
	var out *pet.TrackedPet
	err := service.uow.WithinReadTx(ctx, func(txCtx context.Context) error {
		p, err := service.pets.GetByID(txCtx, ownerID, petID)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// view resolves the profile image reference to a URL.
func (service *trackerService) view(p pet.TrackedPet) ports.PetView {
	v := ports.PetView{TrackedPet: p}
	if p.ProfileImageRef != "" && service.blobs != nil {
		v.ProfileImageURL = service.blobs.URL(p.ProfileImageRef)
	}
	return v
}

// publishPetEvent sends a pet event to the pet topic exchange. Failures are logged, not returned:
// the state change is already committed.
func (service *trackerService) publishPetEvent(ctx context.Context, routingPrefix string, msg contracts.PetEventMessage) {
	if service.pub == nil {
		return
	}

	msg.Envelope = contracts.Envelope{
		CorrelationID: uuid.NewString(),
		Producer:      "tracker-service",
		SentAt:        time.Now().UTC(),
	}
	routingKey := routingPrefix + msg.PetID

	body, err := json.Marshal(msg)
	if err == nil {
		err = service.pub.Publish(ctx, contracts.ExchangePetTopic, routingKey, body)
	}
	if err != nil {
		service.logger.Error(ctx, "pet_event_publish_failed", "Failed to publish pet event", err, map[string]any{
			"routing_key": routingKey,
		})
		return
	}

	service.logger.Info(ctx, "pet_event_published", "Published pet event to RabbitMQ", map[string]any{
		"routing_key":    routingKey,
		"correlation_id": msg.CorrelationID,
	})
}

func petEvent(eventType string, p pet.TrackedPet) contracts.PetEventMessage {
	msg := contracts.PetEventMessage{
		Type:         eventType,
		PetID:        p.ID,
		OwnerID:      p.OwnerID,
		Name:         p.Name,
		LastSeenAtMs: p.LastSeenAt,
		Notes:        p.MissingNotes,
	}
	if p.LastSeen != nil {
		gp := contracts.NewGeoPoint(*p.LastSeen)
		msg.LastSeen = &gp
	}
	return msg
}
