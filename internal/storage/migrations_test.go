package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_ReachesExpectedVersion(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	pending, err := store.PendingMigrations(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, len(migrations))

	require.NoError(t, store.Migrate(ctx))

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	pending, err = store.PendingMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMigrations_AreOrdered(t *testing.T) {
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, "migration %q", m.Description)
		assert.NotEmpty(t, m.Description)
	}
	assert.Equal(t, ExpectedSchemaVersion, migrations[len(migrations)-1].Version)
}

func TestMigrate_CreatesIndexes(t *testing.T) {
	store := createTestStorage(t)

	for _, name := range []string{"idx_cards_sport", "idx_cards_created", "idx_cards_valued"} {
		var count int
		err := store.db.QueryRow(`
			SELECT COUNT(*) FROM sqlite_master
			WHERE type='index' AND name=?
		`, name).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "index %s", name)
	}
}

func TestMigrate_SportConstraint(t *testing.T) {
	store := createTestStorage(t)

	_, err := store.db.Exec(`INSERT INTO cards (front_image_ref, sport) VALUES ('cards/x.jpg', 'cricket')`)
	assert.Error(t, err)
}
