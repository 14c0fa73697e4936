package postgres

import (
	"context"
	"errors"
	"fmt"

	"pet-tracker/internal/domain/geo"
	"pet-tracker/internal/domain/history"
	"pet-tracker/internal/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryRepo is the append-only location history of each pet. Each entry is its own row,
// so appends from a polling loop never read or rewrite earlier entries.
//
// Methods join the caller's transaction when one is in ctx and otherwise use the pool.
type HistoryRepo struct {
	pool *pgxpool.Pool
}

// NewHistoryRepo constructs a new HistoryRepo.
func NewHistoryRepo(pool *pgxpool.Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool}
}

var _ ports.HistoryStore = (*HistoryRepo)(nil)

// Append inserts a single history entry.
func (repo *HistoryRepo) Append(ctx context.Context, ownerID, petID string, entry history.Entry) error {
	if err := entry.Validate(); err != nil {
		return &history.StoreError{Op: "append", Err: err}
	}
	if entry.PetID != petID {
		return &history.StoreError{Op: "append", Err: fmt.Errorf("entry belongs to pet %q, not %q", entry.PetID, petID)}
	}

	_, err := connFrom(ctx, repo.pool).Exec(ctx, `
		INSERT INTO pet_location_history (id, owner_id, pet_id, latitude, longitude, captured_at_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		entry.ID, ownerID, petID,
		entry.Coordinate.Latitude, entry.Coordinate.Longitude,
		entry.CapturedAtMillis,
	)
	if err != nil {
		return &history.StoreError{Op: "append", Err: err}
	}
	return nil
}

// ListAll returns the pet's entries newest first.
func (repo *HistoryRepo) ListAll(ctx context.Context, ownerID, petID string) ([]history.Entry, error) {
	rows, err := connFrom(ctx, repo.pool).Query(ctx, `
		SELECT id, pet_id, latitude, longitude, captured_at_ms
		FROM pet_location_history
		WHERE owner_id = $1 AND pet_id = $2
		ORDER BY captured_at_ms DESC, id DESC
	`, ownerID, petID)
	if err != nil {
		return nil, &history.StoreError{Op: "list", Err: err}
	}
	defer rows.Close()

	out := make([]history.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, &history.StoreError{Op: "list", Err: err}
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, &history.StoreError{Op: "list", Err: err}
	}
	return out, nil
}

// Latest returns the newest entry of the pet, if any.
func (repo *HistoryRepo) Latest(ctx context.Context, ownerID, petID string) (history.Entry, bool, error) {
	row := connFrom(ctx, repo.pool).QueryRow(ctx, `
		SELECT id, pet_id, latitude, longitude, captured_at_ms
		FROM pet_location_history
		WHERE owner_id = $1 AND pet_id = $2
		ORDER BY captured_at_ms DESC, id DESC
		LIMIT 1
	`, ownerID, petID)

	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return history.Entry{}, false, nil
	}
	if err != nil {
		return history.Entry{}, false, &history.StoreError{Op: "latest", Err: err}
	}
	return entry, true, nil
}

// DeleteOne removes one entry. Deleting an entry that does not exist is not an error, and an
// id that is not a uuid cannot name an entry.
func (repo *HistoryRepo) DeleteOne(ctx context.Context, ownerID, petID, entryID string) error {
	if _, err := uuid.Parse(entryID); err != nil {
		return nil
	}
	_, err := connFrom(ctx, repo.pool).Exec(ctx, `
		DELETE FROM pet_location_history
		WHERE owner_id = $1 AND pet_id = $2 AND id = $3
	`, ownerID, petID, entryID)
	if err != nil {
		return &history.StoreError{Op: "delete_one", Err: err}
	}
	return nil
}

// DeleteAll removes every entry of the pet in one statement and returns how many went.
func (repo *HistoryRepo) DeleteAll(ctx context.Context, ownerID, petID string) (int64, error) {
	tag, err := connFrom(ctx, repo.pool).Exec(ctx, `
		DELETE FROM pet_location_history
		WHERE owner_id = $1 AND pet_id = $2
	`, ownerID, petID)
	if err != nil {
		return 0, &history.StoreError{Op: "delete_all", Err: err}
	}
	return tag.RowsAffected(), nil
}

func scanEntry(row pgx.Row) (history.Entry, error) {
	var entry history.Entry
	var lat, lng float64
	if err := row.Scan(&entry.ID, &entry.PetID, &lat, &lng, &entry.CapturedAtMillis); err != nil {
		return history.Entry{}, err
	}
	entry.Coordinate = geo.Coordinate{Latitude: lat, Longitude: lng}
	return entry, nil
}
