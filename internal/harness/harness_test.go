package harness

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/Veraticus/saffron/internal/search"
)

type stubFinder struct {
	err    error
	result *search.Result
	query  search.Query
}

func (f *stubFinder) Find(_ context.Context, _ model.ConditionSet, q search.Query) (*search.Result, error) {
	f.query = q
	return f.result, f.err
}

type noWrites struct{}

func (noWrites) AttachLabel(context.Context, string, string) error {
	return errors.New("dry runs must not write")
}

func (noWrites) IsLabelAttached(context.Context, string, string) (bool, error) {
	return false, errors.New("dry runs must not read")
}

func newEngine() *rules.Engine {
	config := rules.DefaultConfig()
	config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return rules.NewWithConfig(noWrites{}, config)
}

func TestTestAgainstSample(t *testing.T) {
	over100 := model.ConditionSet{Conditions: []model.Condition{
		{Field: model.FieldAmount, Operator: model.OpGreaterThan, Value: model.Number(100)},
	}}

	assert.False(t, TestAgainstSample(over100, model.Transaction{Amount: 50}).Matches)
	assert.True(t, TestAgainstSample(over100, model.Transaction{Amount: 150}).Matches)

	draft := over100
	draft.Conditions = append(draft.Conditions, model.Condition{Field: model.FieldDescription, Operator: model.OpEquals})
	result := TestAgainstSample(draft, model.Transaction{Amount: 150})
	assert.True(t, result.Matches)
	require.Len(t, result.Dropped, 1)
}

func TestHarness_TestAgainstStore(t *testing.T) {
	finder := &stubFinder{result: &search.Result{Transactions: []model.Transaction{{ID: "t1"}}}}
	h := New(finder, newEngine(), 0)

	result := h.TestAgainstStore(context.Background(), model.ConditionSet{})
	assert.True(t, result.Matches)
	assert.Len(t, result.Results, 1)
	assert.Empty(t, result.Error)
	assert.Equal(t, DefaultLimit, finder.query.Limit)

	finder.result = &search.Result{}
	assert.False(t, h.TestAgainstStore(context.Background(), model.ConditionSet{}).Matches)
}

func TestHarness_TestAgainstStoreError(t *testing.T) {
	h := New(&stubFinder{err: errors.New("connection refused")}, newEngine(), 3)

	result := h.TestAgainstStore(context.Background(), model.ConditionSet{})
	assert.False(t, result.Matches)
	assert.Equal(t, "connection refused", result.Error)
}

func TestHarness_TestRule(t *testing.T) {
	h := New(&stubFinder{}, newEngine(), 0)
	rule := model.Rule{
		ID:   "r1",
		Name: "Coffee",
		Conditions: []model.Condition{
			{Field: model.FieldDescription, Operator: model.OpContains, Value: model.Scalar("coffee")},
		},
		LabelsToApply: []string{"L1"},
	}

	// Inactive rules are still tested.
	result := h.TestRule(rule, model.Transaction{ID: "t1", Description: "Morning Coffee Run"})
	assert.True(t, result.Matches)
	assert.Equal(t, []string{"r1"}, result.Rules)
	assert.Equal(t, []string{"L1"}, result.Labels)

	already := model.Transaction{ID: "t1", Description: "coffee", Labels: []model.Label{{ID: "L1"}}}
	result = h.TestRule(rule, already)
	assert.True(t, result.Matches)
	assert.Empty(t, result.Labels)
}

func TestHarness_TestRulesSeesEarlierLabels(t *testing.T) {
	h := New(&stubFinder{}, newEngine(), 0)
	first := model.Rule{
		ID: "r1", OrderIndex: 0, IsActive: true, LabelsToApply: []string{"coffee"},
		Conditions: []model.Condition{{Field: model.FieldDescription, Operator: model.OpContains, Value: model.Scalar("coffee")}},
	}
	second := model.Rule{
		ID: "r2", OrderIndex: 1, IsActive: true, LabelsToApply: []string{"treats"},
		Conditions: []model.Condition{{Field: model.FieldLabel, Operator: model.OpEquals, Value: model.Scalar("coffee")}},
	}

	result := h.TestRules([]model.Rule{second, first}, model.Transaction{ID: "t1", Description: "coffee"})
	assert.Equal(t, []string{"r1", "r2"}, result.Rules)
	assert.Equal(t, []string{"coffee", "treats"}, result.Labels)
}
