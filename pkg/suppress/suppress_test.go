package suppress_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagesec/triagebot/pkg/suppress"
	"github.com/triagesec/triagebot/test/util"
)

func TestIgnoreStore_RoundTrip(t *testing.T) {
	db := util.SetupTestDatabase(t)
	store := suppress.NewSQLIgnoreStore(db)
	ctx := context.Background()

	ignored, err := store.IsIgnored(ctx, "amendoza", "vpn_from_new_country")
	require.NoError(t, err)
	assert.False(t, ignored)

	until := time.Now().Add(2 * time.Hour)
	require.NoError(t, store.Ignore(ctx, suppress.Ignore{
		Username: "amendoza",
		Title:    "vpn_from_new_country",
		Reason:   "traveling this week",
		Until:    until,
	}))

	ignored, err = store.IsIgnored(ctx, "amendoza", "vpn_from_new_country")
	require.NoError(t, err)
	assert.True(t, ignored)

	// Scoped to the user and title
	ignored, err = store.IsIgnored(ctx, "amendoza", "usb_drive_mounted")
	require.NoError(t, err)
	assert.False(t, ignored)

	ignored, err = store.IsIgnored(ctx, "jsmith", "vpn_from_new_country")
	require.NoError(t, err)
	assert.False(t, ignored)

	list, err := store.Ignored(ctx, "amendoza")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "traveling this week", list[0].Reason)
	assert.WithinDuration(t, until, list[0].Until, time.Second)
}

func TestIgnoreStore_ExpiredRowsArePruned(t *testing.T) {
	db := util.SetupTestDatabase(t)
	store := suppress.NewSQLIgnoreStore(db)
	ctx := context.Background()

	require.NoError(t, store.Ignore(ctx, suppress.Ignore{
		Username: "amendoza",
		Title:    "stale_alert",
		Reason:   "old",
		Until:    time.Now().Add(-time.Minute),
	}))

	ignored, err := store.IsIgnored(ctx, "amendoza", "stale_alert")
	require.NoError(t, err)
	assert.False(t, ignored, "expired ignore must not suppress")

	list, err := store.Ignored(ctx, "amendoza")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestIgnoreStore_ReIgnoreExtendsDeadline(t *testing.T) {
	db := util.SetupTestDatabase(t)
	store := suppress.NewSQLIgnoreStore(db)
	ctx := context.Background()

	require.NoError(t, store.Ignore(ctx, suppress.Ignore{
		Username: "amendoza",
		Title:    "vpn_from_new_country",
		Reason:   "first",
		Until:    time.Now().Add(time.Hour),
	}))

	later := time.Now().Add(4 * time.Hour)
	require.NoError(t, store.Ignore(ctx, suppress.Ignore{
		Username: "amendoza",
		Title:    "vpn_from_new_country",
		Reason:   "second",
		Until:    later,
	}))

	list, err := store.Ignored(ctx, "amendoza")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "second", list[0].Reason)
	assert.WithinDuration(t, later, list[0].Until, time.Second)
}

func TestBlacklist_PersistsAcrossReload(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()

	bl, err := suppress.LoadSQLBlacklist(ctx, db)
	require.NoError(t, err)

	assert.False(t, bl.Contains("mallory"))
	require.NoError(t, bl.Add(ctx, "mallory"))
	assert.True(t, bl.Contains("mallory"))

	// Double add is a no-op
	require.NoError(t, bl.Add(ctx, "mallory"))

	reloaded, err := suppress.LoadSQLBlacklist(ctx, db)
	require.NoError(t, err)
	assert.True(t, reloaded.Contains("mallory"))

	require.NoError(t, reloaded.Remove(ctx, "mallory"))
	assert.False(t, reloaded.Contains("mallory"))

	// Removing a non-member is a no-op
	require.NoError(t, reloaded.Remove(ctx, "nobody"))

	final, err := suppress.LoadSQLBlacklist(ctx, db)
	require.NoError(t, err)
	assert.False(t, final.Contains("mallory"))
}
