package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quiver/internal/model"
	"github.com/roach88/quiver/internal/testutil"
)

func marketplaceBatch(ids ...string) []model.MarketplaceEntry {
	entries := make([]model.MarketplaceEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, model.MarketplaceEntry{
			ID:      id,
			Name:    "Entry " + id,
			Type:    "skill",
			URL:     "https://marketplace.example/" + id,
			Payload: json.RawMessage(`{}`),
		})
	}
	return entries
}

func TestUpdateMarketplace_StampsAndPrunes(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := testutil.NewClock(start)
	m := setupManager(t, clock, WithMarketplaceTTL(24*time.Hour))
	ctx := t.Context()

	_, err := m.UpdateMarketplace(ctx, marketplaceBatch("mk-1", "mk-2"))
	require.NoError(t, err)

	entries := m.MarketplaceEntries(ctx, "")
	require.Len(t, entries, 2)
	assert.True(t, entries[0].CachedAt.Equal(start))

	// A refresh 25h later re-stamps mk-1 and prunes mk-2 (not in the batch,
	// now older than the TTL)
	clock.Advance(25 * time.Hour)
	pruned, err := m.UpdateMarketplace(ctx, marketplaceBatch("mk-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	entries = m.MarketplaceEntries(ctx, "")
	require.Len(t, entries, 1)
	assert.Equal(t, "mk-1", entries[0].ID)
}

func TestIsMarketplaceStale(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := testutil.NewClock(start)
	m := setupManager(t, clock)
	ctx := t.Context()

	// Empty marketplace cache is stale
	assert.True(t, m.IsMarketplaceStale(ctx, time.Hour))

	_, err := m.UpdateMarketplace(ctx, marketplaceBatch("mk-1"))
	require.NoError(t, err)
	assert.False(t, m.IsMarketplaceStale(ctx, time.Hour))

	// Boundary is inclusive
	clock.Advance(time.Hour)
	assert.True(t, m.IsMarketplaceStale(ctx, time.Hour))
}

func TestMarketplaceEntries_TypeFilter(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	m := setupManager(t, clock)
	ctx := t.Context()

	batch := marketplaceBatch("mk-1", "mk-2")
	batch[1].Type = "agent"
	_, err := m.UpdateMarketplace(ctx, batch)
	require.NoError(t, err)

	agents := m.MarketplaceEntries(ctx, "agent")
	require.Len(t, agents, 1)
	assert.Equal(t, "mk-2", agents[0].ID)
}
