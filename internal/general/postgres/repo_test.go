package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRepo_DeleteOneWithMalformedIDIsNoOp(t *testing.T) {
	// nil pool: a malformed id must not reach the database.
	repo := NewHistoryRepo(nil)
	for _, id := range []string{"not-a-uuid", "h-1", ""} {
		assert.NoError(t, repo.DeleteOne(context.Background(), "owner-1", "pet-1", id), id)
	}
}

func TestPetRepo_RequiresUnitOfWork(t *testing.T) {
	_, err := NewPetRepo().GetByID(context.Background(), "owner-1", "pet-1")
	require.ErrorIs(t, err, ErrNoTx)

	_, ok := txFrom(context.Background())
	assert.False(t, ok)
}
