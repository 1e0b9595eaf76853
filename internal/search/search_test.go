package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/predicate"
	"github.com/Veraticus/saffron/internal/storage"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	at := func(d int) time.Time { return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC) }
	_, err = store.SaveTransactions(context.Background(), []model.Transaction{
		{ID: "a", Description: "Laptop", Amount: 1299, Date: at(1)},
		{ID: "b", Description: "Groceries", Amount: 150, Date: at(3)},
		{ID: "c", Description: "Coffee", Amount: 4.5, Date: at(2)},
		{ID: "d", Description: "Refund", Amount: 100, Date: at(4)},
	})
	require.NoError(t, err)
	return store
}

func amountOver(n float64) model.ConditionSet {
	return model.ConditionSet{Conditions: []model.Condition{
		{Field: model.FieldAmount, Operator: model.OpGreaterThan, Value: model.Number(n)},
	}}
}

func TestFind_AmountFilter(t *testing.T) {
	svc := NewWithConfig(seededStore(t), Config{Logger: quiet()})

	result, err := svc.Find(context.Background(), amountOver(100), Query{})
	require.NoError(t, err)

	// Newest first by default; 100 itself is excluded.
	assert.Equal(t, []string{"b", "a"}, txnIDs(result.Transactions))
	assert.Empty(t, result.Drift)
	assert.Empty(t, result.Dropped)
}

func TestFind_OrderAndLimit(t *testing.T) {
	svc := NewWithConfig(seededStore(t), Config{Logger: quiet()})

	result, err := svc.Find(context.Background(), model.ConditionSet{}, Query{
		Order: []predicate.Order{{Column: "amount"}},
		Limit: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, txnIDs(result.Transactions))
}

func TestFind_PrunesDraftConditions(t *testing.T) {
	svc := NewWithConfig(seededStore(t), Config{Logger: quiet()})

	set := amountOver(100)
	set.Conditions = append(set.Conditions, model.Condition{
		Field: model.FieldDescription, Operator: model.OpContains, Value: model.Scalar(""),
	})

	result, err := svc.Find(context.Background(), set, Query{})
	require.NoError(t, err)
	require.Len(t, result.Dropped, 1)
	assert.Equal(t, 1, result.Dropped[0].Index)
	assert.Len(t, result.Transactions, 2)
}

type driftingReader struct {
	txns []model.Transaction
}

func (r driftingReader) FetchTransactions(context.Context, predicate.Predicate, []predicate.Order, int) ([]model.Transaction, error) {
	return r.txns, nil
}

func TestFind_DriftIsExcluded(t *testing.T) {
	reader := driftingReader{txns: []model.Transaction{
		{ID: "ok", Description: "Straße", Amount: 200},
		{ID: "drift", Description: "Other", Amount: 50},
	}}
	svc := NewWithConfig(reader, Config{Logger: quiet()})

	result, err := svc.Find(context.Background(), amountOver(100), Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, txnIDs(result.Transactions))
	assert.Equal(t, []string{"drift"}, result.Drift)
}

type failingReader struct{}

func (failingReader) FetchTransactions(context.Context, predicate.Predicate, []predicate.Order, int) ([]model.Transaction, error) {
	return nil, errors.New("disk on fire")
}

func TestFind_ReaderError(t *testing.T) {
	_, err := New(failingReader{}).Find(context.Background(), amountOver(1), Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func txnIDs(txns []model.Transaction) []string {
	out := make([]string, 0, len(txns))
	for _, txn := range txns {
		out = append(out, txn.ID)
	}
	return out
}
