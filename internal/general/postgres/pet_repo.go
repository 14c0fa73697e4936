package postgres

import (
	"context"
	"errors"
	"fmt"

	"pet-tracker/internal/domain/geo"
	"pet-tracker/internal/domain/pet"
	"pet-tracker/internal/ports"

	"github.com/jackc/pgx/v5"
)

// PetRepo persists pets using pgx and plain SQL. Every method must run inside UnitOfWork.WithinTx.
type PetRepo struct{}

// NewPetRepo constructs a new PetRepo.
func NewPetRepo() ports.PetRepository {
	return &PetRepo{}
}

const petColumns = `
	id, owner_id, name, species, breed, gender, age,
	profile_image_ref, tracker_device_id,
	is_missing, last_seen_lat, last_seen_lng, last_seen_at_ms, missing_notes,
	created_at, updated_at`

// Create inserts a new pet row.
func (repo *PetRepo) Create(ctx context.Context, p *pet.TrackedPet) error {
	tx, err := requireTx(ctx)
	if err != nil {
		return err
	}

	if err := p.Validate(); err != nil {
		return err
	}

	lat, lng := splitCoordinate(p.LastSeen)
	return tx.QueryRow(ctx, `
		INSERT INTO pets (
			id, owner_id, name, species, breed, gender, age,
			profile_image_ref, tracker_device_id,
			is_missing, last_seen_lat, last_seen_lng, last_seen_at_ms, missing_notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`,
		p.ID, p.OwnerID, p.Name, p.Species, p.Breed, p.Gender, p.Age,
		p.ProfileImageRef, p.TrackerDeviceID,
		p.IsMissing, lat, lng, p.LastSeenAt, p.MissingNotes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// GetByID returns one pet owned by ownerID, or ports.ErrNotFound.
func (repo *PetRepo) GetByID(ctx context.Context, ownerID, petID string) (*pet.TrackedPet, error) {
	tx, err := requireTx(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT `+petColumns+` FROM pets WHERE owner_id = $1 AND id = $2`, ownerID, petID)
	out, err := scanPet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByOwner returns the owner's pets sorted by name.
func (repo *PetRepo) ListByOwner(ctx context.Context, ownerID string) ([]pet.TrackedPet, error) {
	tx, err := requireTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+petColumns+`
		FROM pets
		WHERE owner_id = $1
		ORDER BY name, id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	return collectPets(rows)
}

// ListMissing returns missing pets of every owner, most recently seen first.
func (repo *PetRepo) ListMissing(ctx context.Context, limit int) ([]pet.TrackedPet, error) {
	tx, err := requireTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+petColumns+`
		FROM pets
		WHERE is_missing
		ORDER BY last_seen_at_ms DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return collectPets(rows)
}

// UpdateProfile writes the owner-editable fields and the profile image reference.
func (repo *PetRepo) UpdateProfile(ctx context.Context, p *pet.TrackedPet) error {
	tx, err := requireTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE pets
		SET name = $3, species = $4, breed = $5, gender = $6, age = $7,
		    profile_image_ref = $8, tracker_device_id = $9, updated_at = $10
		WHERE owner_id = $1 AND id = $2
	`,
		p.OwnerID, p.ID,
		p.Name, p.Species, p.Breed, p.Gender, p.Age,
		p.ProfileImageRef, p.TrackerDeviceID, p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// UpdateMissing writes the missing flag and its last-seen fields in one statement.
func (repo *PetRepo) UpdateMissing(ctx context.Context, p *pet.TrackedPet) error {
	tx, err := requireTx(ctx)
	if err != nil {
		return err
	}

	if err := p.Validate(); err != nil {
		return err
	}

	lat, lng := splitCoordinate(p.LastSeen)
	tag, err := tx.Exec(ctx, `
		UPDATE pets
		SET is_missing = $3, last_seen_lat = $4, last_seen_lng = $5,
		    last_seen_at_ms = $6, missing_notes = $7, updated_at = now()
		WHERE owner_id = $1 AND id = $2
	`, p.OwnerID, p.ID, p.IsMissing, lat, lng, p.LastSeenAt, p.MissingNotes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// Delete removes the pet; its history rows go with it (ON DELETE CASCADE).
func (repo *PetRepo) Delete(ctx context.Context, ownerID, petID string) error {
	tx, err := requireTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM pets WHERE owner_id = $1 AND id = $2`, ownerID, petID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// ----- helpers -----

func scanPet(row pgx.Row) (*pet.TrackedPet, error) {
	var (
		out      pet.TrackedPet
		lat, lng *float64
	)
	err := row.Scan(
		&out.ID, &out.OwnerID, &out.Name, &out.Species, &out.Breed, &out.Gender, &out.Age,
		&out.ProfileImageRef, &out.TrackerDeviceID,
		&out.IsMissing, &lat, &lng, &out.LastSeenAt, &out.MissingNotes,
		&out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		out.LastSeen = &geo.Coordinate{Latitude: *lat, Longitude: *lng}
	}
	return &out, nil
}

func collectPets(rows pgx.Rows) ([]pet.TrackedPet, error) {
	defer rows.Close()

	out := make([]pet.TrackedPet, 0)
	for rows.Next() {
		p, err := scanPet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pet: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func splitCoordinate(c *geo.Coordinate) (lat, lng *float64) {
	if c == nil {
		return nil, nil
	}
	la, lo := c.Latitude, c.Longitude
	return &la, &lo
}
