package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSlotRepository(newTestDB(t))

	_, _, found, err := repo.Get(ctx, "drawing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.Set(ctx, "drawing", `{"id":"s1"}`))
	require.NoError(t, repo.Set(ctx, "drawing", `{"id":"s2"}`))

	value, updatedAt, found, err := repo.Get(ctx, "drawing")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"id":"s2"}`, value)
	assert.WithinDuration(t, time.Now(), updatedAt, 5*time.Second)

	require.NoError(t, repo.Delete(ctx, "drawing"))
	_, _, found, err = repo.Get(ctx, "drawing")
	require.NoError(t, err)
	assert.False(t, found)
}
