package contracts

// PetEventMessage announces a missing-report or history change of a pet.
// Exchange: ExchangePetTopic, routing key RoutePet*Prefix + pet_id.
type PetEventMessage struct {
	Type           string    `json:"type"` // PetEventMissing | PetEventFound | PetEventHistoryCleared
	PetID          string    `json:"pet_id"`
	OwnerID        string    `json:"owner_id"`
	Name           string    `json:"name,omitempty"`
	LastSeen       *GeoPoint `json:"last_seen,omitempty"`
	LastSeenAtMs   *int64    `json:"last_seen_at_ms,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
	DeletedEntries int64     `json:"deleted_entries,omitempty"`
	Envelope
}
