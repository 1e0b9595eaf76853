package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/predicate"
)

type stubSource struct {
	err   error
	rules []model.Rule
}

func (s stubSource) ListActiveRules(context.Context) ([]model.Rule, error) {
	return s.rules, s.err
}

type stubReader struct {
	pred  predicate.Predicate
	order []predicate.Order
	txns  []model.Transaction
	calls int
}

func (r *stubReader) FetchTransactions(_ context.Context, pred predicate.Predicate, order []predicate.Order, _ int) ([]model.Transaction, error) {
	r.calls++
	r.pred = pred
	r.order = order
	return r.txns, nil
}

func TestRunner_ApplyPending(t *testing.T) {
	writer := newMemWriter()
	reader := &stubReader{txns: []model.Transaction{
		{ID: "t1", Description: "Coffee", Status: model.StatusPending},
		{ID: "t2", Description: "Rent", Status: model.StatusPending},
	}}
	source := stubSource{rules: []model.Rule{rule("r1", 0, []string{"L1"}, contains(model.FieldDescription, "coffee"))}}

	runner := NewRunner(source, reader, NewWithConfig(writer, quietConfig()))
	report, err := runner.ApplyPending(context.Background())
	require.NoError(t, err)

	assert.Equal(t, predicate.Compare{Column: "status", Op: predicate.OpEq, Value: "pending"}, reader.pred)
	assert.Equal(t, []predicate.Order{{Column: "date"}}, reader.order)
	assert.Equal(t, 2, report.Transactions)
	assert.Equal(t, 1, report.LabelsApplied)
	assert.Equal(t, 1, writer.count("t1", "L1"))
}

func TestRunner_OnInserted(t *testing.T) {
	writer := newMemWriter()
	reader := &stubReader{}
	source := stubSource{rules: []model.Rule{rule("r1", 0, []string{"L1"}, contains(model.FieldDescription, "coffee"))}}
	runner := NewRunner(source, reader, NewWithConfig(writer, quietConfig()))

	report, err := runner.OnInserted(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Transactions)

	report, err = runner.OnInserted(context.Background(), []model.Transaction{{ID: "new", Description: "iced coffee"}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.LabelsApplied)
	assert.Zero(t, reader.calls)
}

func TestRunner_RuleSourceError(t *testing.T) {
	boom := errors.New("boom")
	runner := NewRunner(stubSource{err: boom}, &stubReader{}, NewWithConfig(newMemWriter(), quietConfig()))

	_, err := runner.ApplyPending(context.Background())
	require.ErrorIs(t, err, boom)

	_, err = runner.OnInserted(context.Background(), []model.Transaction{{ID: "t1"}})
	require.ErrorIs(t, err, boom)
}
