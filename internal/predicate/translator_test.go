package predicate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/saffron/internal/match"
	"github.com/Veraticus/saffron/internal/model"
)

func cond(field model.FieldKind, op model.Operator, v model.Value) model.Condition {
	return model.Condition{Field: field, Operator: op, Value: v}
}

func TestTranslate_EmptySetIsTrue(t *testing.T) {
	for _, conj := range []model.Conjunction{model.ConjunctionAnd, model.ConjunctionOr} {
		got := Translate(model.ConditionSet{Conjunction: conj}, TransactionsTable())
		assert.Equal(t, True, got.Predicate)
		assert.Empty(t, got.Unsatisfiable)
	}
}

func TestTranslate_Text(t *testing.T) {
	tests := []struct {
		want Predicate
		name string
		op   model.Operator
		val  string
	}{
		{
			name: "equals folds value",
			op:   model.OpEquals,
			val:  "Coffee",
			want: Compare{Column: "description", Op: OpEq, Value: "coffee", Fold: true},
		},
		{
			name: "contains wraps pattern",
			op:   model.OpContains,
			val:  "STAR",
			want: Like{Column: "description", Pattern: "%star%"},
		},
		{
			name: "starts with",
			op:   model.OpStartsWith,
			val:  "Star",
			want: Like{Column: "description", Pattern: "star%"},
		},
		{
			name: "ends with",
			op:   model.OpEndsWith,
			val:  "Bucks",
			want: Like{Column: "description", Pattern: "%bucks"},
		},
		{
			name: "metacharacters are escaped",
			op:   model.OpContains,
			val:  `50%_off\`,
			want: Like{Column: "description", Pattern: `%50\%\_off\\%`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Translate(model.ConditionSet{Conditions: []model.Condition{
				cond(model.FieldDescription, tt.op, model.Scalar(tt.val)),
			}}, TransactionsTable())
			assert.Equal(t, tt.want, got.Predicate)
		})
	}
}

func TestTranslate_Amount(t *testing.T) {
	exact := NewTranslator(TransactionsTable(), match.Options{})
	loose := NewTranslator(TransactionsTable(), match.Options{AmountTolerance: 0.01})

	p, err := exact.Condition(cond(model.FieldAmount, model.OpEquals, model.Scalar("12.5")))
	require.NoError(t, err)
	assert.Equal(t, Compare{Column: "amount", Op: OpEq, Value: 12.5}, p)

	p, err = loose.Condition(cond(model.FieldAmount, model.OpEquals, model.Scalar("12.5")))
	require.NoError(t, err)
	widened, isBetween := p.(Between)
	require.True(t, isBetween)
	assert.Equal(t, "amount", widened.Column)
	assert.InDelta(t, 12.49, widened.Low, 1e-9)
	assert.InDelta(t, 12.51, widened.High, 1e-9)

	p, err = exact.Condition(cond(model.FieldAmount, model.OpBetween, model.Range("10", "20")))
	require.NoError(t, err)
	assert.Equal(t, Between{Column: "amount", Low: 10.0, High: 20.0}, p)

	p, err = exact.Condition(cond(model.FieldAmount, model.OpGreaterThan, model.Number(100)))
	require.NoError(t, err)
	assert.Equal(t, Compare{Column: "amount", Op: OpGt, Value: 100.0}, p)

	p, err = exact.Condition(cond(model.FieldAmount, model.OpLessThan, model.Number(-5)))
	require.NoError(t, err)
	assert.Equal(t, Compare{Column: "amount", Op: OpLt, Value: -5.0}, p)
}

func TestTranslate_Date(t *testing.T) {
	tr := NewTranslator(TransactionsTable(), match.Options{})
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	p, err := tr.Condition(cond(model.FieldDate, model.OpEquals, model.Scalar("2024-03-15T13:45:00Z")))
	require.NoError(t, err)
	assert.Equal(t, And{Predicates: []Predicate{
		Compare{Column: "date", Op: OpGte, Value: day.Unix()},
		Compare{Column: "date", Op: OpLt, Value: day.AddDate(0, 0, 1).Unix()},
	}}, p)

	p, err = tr.Condition(cond(model.FieldDate, model.OpGreaterThan, model.Scalar("2024-03-15")))
	require.NoError(t, err)
	assert.Equal(t, Compare{Column: "date", Op: OpGt, Value: day.Unix()}, p)

	// Fractional instants round so whole-second storage compares exactly.
	p, err = tr.Condition(cond(model.FieldDate, model.OpLessThan, model.Scalar("2024-03-15T00:00:00.5Z")))
	require.NoError(t, err)
	assert.Equal(t, Compare{Column: "date", Op: OpLt, Value: day.Unix() + 1}, p)

	p, err = tr.Condition(cond(model.FieldDate, model.OpBetween, model.Range("2024-03-15T00:00:00.5Z", "2024-03-16T00:00:00.5Z")))
	require.NoError(t, err)
	assert.Equal(t, Between{Column: "date", Low: day.Unix() + 1, High: day.Unix() + 86400}, p)
}

func TestTranslate_StatusAndLabels(t *testing.T) {
	tr := NewTranslator(TransactionsTable(), match.Options{})

	p, err := tr.Condition(cond(model.FieldStatus, model.OpEquals, model.Scalar("pending")))
	require.NoError(t, err)
	assert.Equal(t, Compare{Column: "status", Op: OpEq, Value: "pending"}, p)

	p, err = tr.Condition(cond(model.FieldStatus, model.OpNotIn, model.List("archived", "reviewed")))
	require.NoError(t, err)
	assert.Equal(t, In{Column: "status", Values: []any{"archived", "reviewed"}, Negate: true}, p)

	p, err = tr.Condition(cond(model.FieldLabel, model.OpEquals, model.List("lbl-1", "lbl-2")))
	require.NoError(t, err)
	assert.Equal(t, LabelMembership{
		JoinTable:   "transaction_labels",
		OwnerColumn: "transaction_id",
		LabelColumn: "label_id",
		OuterTable:  "transactions",
		OuterKey:    "id",
		LabelIDs:    []string{"lbl-1", "lbl-2"},
	}, p)
}

func TestTranslate_Conjunctions(t *testing.T) {
	a := cond(model.FieldDescription, model.OpContains, model.Scalar("coffee"))
	b := cond(model.FieldAmount, model.OpGreaterThan, model.Number(5))

	and := Translate(model.ConditionSet{Conditions: []model.Condition{a, b}}, TransactionsTable())
	require.IsType(t, And{}, and.Predicate)
	assert.Len(t, and.Predicate.(And).Predicates, 2)

	or := Translate(model.ConditionSet{Conjunction: "or", Conditions: []model.Condition{a, b}}, TransactionsTable())
	require.IsType(t, Or{}, or.Predicate)
	assert.Len(t, or.Predicate.(Or).Predicates, 2)

	single := Translate(model.ConditionSet{Conditions: []model.Condition{a}}, TransactionsTable())
	assert.IsType(t, Like{}, single.Predicate)
}

func TestTranslate_UnsatisfiableBecomesFalse(t *testing.T) {
	ok := cond(model.FieldDescription, model.OpContains, model.Scalar("coffee"))
	bad := cond(model.FieldAmount, model.OpGreaterThan, model.Scalar("lots"))

	got := Translate(model.ConditionSet{Conditions: []model.Condition{ok, bad}}, TransactionsTable())
	require.Len(t, got.Unsatisfiable, 1)
	assert.Equal(t, 1, got.Unsatisfiable[0].Index)
	assert.ErrorIs(t, got.Unsatisfiable[0].Err, match.ErrValueType)

	and, isAnd := got.Predicate.(And)
	require.True(t, isAnd)
	assert.Equal(t, False, and.Predicates[1])

	alone := Translate(model.ConditionSet{Conditions: []model.Condition{
		cond(model.FieldDescription, model.OpGreaterThan, model.Scalar("x")),
	}}, TransactionsTable())
	assert.Equal(t, False, alone.Predicate)
	assert.ErrorIs(t, alone.Unsatisfiable[0].Err, match.ErrIllegalOperator)
}

func TestTranslate_MissingColumn(t *testing.T) {
	ref := TransactionsTable()
	delete(ref.Columns, model.FieldSource)

	got := Translate(model.ConditionSet{Conditions: []model.Condition{
		cond(model.FieldSource, model.OpEquals, model.Scalar("checking")),
	}}, ref)
	assert.Equal(t, False, got.Predicate)
	require.Len(t, got.Unsatisfiable, 1)
}
