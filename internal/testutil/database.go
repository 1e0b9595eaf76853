// Package testutil provides test fixtures backed by a real SQLite store.
//
// Example:
//
//	db := testutil.SetupTestDB(t, testutil.WithLabels("Coffee", "Rent"))
//	db.SeedTransactions(testutil.NewTransaction("t1").Description("Morning Coffee Run").Build())
//	rule := db.CreateRule(testutil.NewRule("Coffee").
//		When(model.FieldDescription, model.OpContains, model.Scalar("coffee")).
//		Apply(db.MustLabel("Coffee")).
//		Build())
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/storage"
)

// TestDB is a migrated in-memory store plus the labels seeded into it.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
	labels  map[string]string
}

// Option configures SetupTestDB.
type Option func(*options)

type options struct {
	setup          func(context.Context, *storage.SQLiteStorage) error
	labels         []string
	skipMigrations bool
}

// WithLabels seeds labels with the given names.
func WithLabels(names ...string) Option {
	return func(o *options) { o.labels = append(o.labels, names...) }
}

// WithSetup runs fn after migrations and seeding.
func WithSetup(fn func(context.Context, *storage.SQLiteStorage) error) Option {
	return func(o *options) { o.setup = fn }
}

// WithoutMigrations leaves the schema empty.
func WithoutMigrations() Option {
	return func(o *options) { o.skipMigrations = true }
}

// SetupTestDB creates an in-memory store that is closed when the test ends.
func SetupTestDB(t *testing.T, opts ...Option) *TestDB {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	if !o.skipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	db := &TestDB{Storage: store, t: t, labels: make(map[string]string)}
	for _, name := range o.labels {
		label, err := store.CreateLabel(ctx, name, "")
		if err != nil {
			t.Fatalf("failed to seed label %q: %v", name, err)
		}
		db.labels[name] = label.ID
	}

	if o.setup != nil {
		if err := o.setup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return db
}

// MustLabel returns the id of a seeded label or fails the test.
func (db *TestDB) MustLabel(name string) string {
	db.t.Helper()
	id, ok := db.labels[name]
	if !ok {
		db.t.Fatalf("label %q was not seeded", name)
	}
	return id
}

// SeedTransactions saves transactions and returns the stored copies.
func (db *TestDB) SeedTransactions(txns ...model.Transaction) []model.Transaction {
	db.t.Helper()
	inserted, err := db.Storage.SaveTransactions(context.Background(), txns)
	if err != nil {
		db.t.Fatalf("failed to seed transactions: %v", err)
	}
	return inserted
}

// CreateRule stores a rule and returns it with its id set.
func (db *TestDB) CreateRule(rule model.Rule) model.Rule {
	db.t.Helper()
	if err := db.Storage.CreateRule(context.Background(), &rule); err != nil {
		db.t.Fatalf("failed to create rule %q: %v", rule.Name, err)
	}
	return rule
}

// Reload fetches a transaction with its current labels.
func (db *TestDB) Reload(id string) *model.Transaction {
	db.t.Helper()
	txn, err := db.Storage.GetTransaction(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to reload transaction %s: %v", id, err)
	}
	return txn
}
