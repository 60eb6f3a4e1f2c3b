// Package testutil provides test helpers shared across packages: an
// in-memory card database and a small set of card fixtures.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/collectorstream/internal/model"
	"github.com/Veraticus/collectorstream/internal/storage"
)

// TestDB is a migrated in-memory database seeded with cards.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
	// IDs holds the card IDs in seeding order.
	IDs []int64
}

// SetupTestDB creates a new in-memory test database seeded with cards.
// It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t, testutil.GriffeyRookie(), testutil.GradedGretzky())
func SetupTestDB(t *testing.T, cards ...model.CardUpload) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Logf("Failed to close store: %v", err)
		}
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	db := &TestDB{Storage: store, t: t}
	for i, card := range cards {
		id, err := store.SaveCard(ctx, card)
		if err != nil {
			t.Fatalf("failed to seed card %d: %v", i, err)
		}
		db.IDs = append(db.IDs, id)
	}
	return db
}

// MustValue records a valuation for the i-th seeded card, fetched at the
// given time.
func (db *TestDB) MustValue(i int, price float64, fetchedAt time.Time) {
	db.t.Helper()
	valuation := model.Valuation{
		FetchedAt:  fetchedAt,
		Price:      model.Some(price),
		Low:        model.Some(price),
		High:       model.Some(price),
		Source:     "test",
		SampleSize: 1,
		Confidence: 0.5,
	}
	if err := db.Storage.UpdateMarketValue(context.Background(), db.IDs[i], valuation); err != nil {
		db.t.Fatalf("failed to value card %d: %v", db.IDs[i], err)
	}
}

// MustGetCard returns the i-th seeded card or fails the test.
func (db *TestDB) MustGetCard(i int) *model.Card {
	db.t.Helper()
	card, err := db.Storage.GetCard(context.Background(), db.IDs[i])
	if err != nil {
		db.t.Fatalf("failed to get card %d: %v", db.IDs[i], err)
	}
	return card
}
