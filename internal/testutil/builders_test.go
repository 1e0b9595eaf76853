package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/storage"
)

func TestSetupTestDB(t *testing.T) {
	db := SetupTestDB(t, WithLabels("Coffee", "Rent"))

	coffee := db.MustLabel("Coffee")
	assert.NotEmpty(t, coffee)
	assert.NotEqual(t, coffee, db.MustLabel("Rent"))

	inserted := db.SeedTransactions(NewTransaction("t1").Description("Coffee").On(2024, time.March, 15).Build())
	require.Len(t, inserted, 1)

	rule := db.CreateRule(NewRule("Coffee").
		When(model.FieldDescription, model.OpContains, model.Scalar("coffee")).
		Apply(coffee).
		Build())
	assert.NotEmpty(t, rule.ID)

	assert.Equal(t, "Coffee", db.Reload("t1").Description)
}

func TestBuildersCopy(t *testing.T) {
	b := NewRule("r").Apply("a")
	first := b.Build()
	b.Apply("b")
	assert.Equal(t, []string{"a"}, first.LabelsToApply)

	txn := NewTransaction("t").Labels("x").Status(model.StatusReviewed).Build()
	assert.True(t, txn.HasLabel("x"))
	assert.Equal(t, model.StatusReviewed, txn.Status)
}

func TestSetupOptions(t *testing.T) {
	var ran bool
	db := SetupTestDB(t, WithoutMigrations(), WithSetup(func(ctx context.Context, store *storage.SQLiteStorage) error {
		version, err := store.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		ran = version == 0
		return store.Migrate(ctx)
	}))
	assert.True(t, ran)

	version, err := db.Storage.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.ExpectedSchemaVersion, version)
}
