package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/saffron/internal/model"
)

func cond(field model.FieldKind, op model.Operator, v model.Value) model.Condition {
	return model.Condition{Field: field, Operator: op, Value: v}
}

func TestMatch_Text(t *testing.T) {
	txn := model.Transaction{
		Description: "Morning Coffee Run",
		Identifier:  "REF-2024-001",
		Source:      "Chase Checking",
	}

	tests := []struct {
		name string
		c    model.Condition
		want bool
	}{
		{"equals ignores case", cond(model.FieldDescription, model.OpEquals, model.Scalar("morning coffee run")), true},
		{"equals needs whole value", cond(model.FieldDescription, model.OpEquals, model.Scalar("coffee")), false},
		{"contains", cond(model.FieldDescription, model.OpContains, model.Scalar("COFFEE")), true},
		{"contains miss", cond(model.FieldDescription, model.OpContains, model.Scalar("tea")), false},
		{"starts_with", cond(model.FieldDescription, model.OpStartsWith, model.Scalar("morning")), true},
		{"starts_with miss", cond(model.FieldDescription, model.OpStartsWith, model.Scalar("coffee")), false},
		{"ends_with", cond(model.FieldDescription, model.OpEndsWith, model.Scalar("RUN")), true},
		{"identifier prefix", cond(model.FieldIdentifier, model.OpStartsWith, model.Scalar("ref-2024")), true},
		{"source contains", cond(model.FieldSource, model.OpContains, model.Scalar("checking")), true},
		{"text rejects numeric operator", cond(model.FieldDescription, model.OpGreaterThan, model.Scalar("a")), false},
		{"empty value never matches", cond(model.FieldDescription, model.OpContains, model.Scalar("")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, defaultEvaluator.Match(&txn, tt.c))
		})
	}
}

func TestMatch_TextUnicodeFolding(t *testing.T) {
	txn := model.Transaction{Description: "CAFÉ NOIR"}
	assert.True(t, defaultEvaluator.Match(&txn, cond(model.FieldDescription, model.OpStartsWith, model.Scalar("café"))))
	assert.Equal(t, "coffee", Fold("Coffee"))
}

func TestMatch_TextEmptyFieldNeverMatches(t *testing.T) {
	txn := model.Transaction{Description: "  "}
	for _, op := range textOperators {
		assert.False(t, defaultEvaluator.Match(&txn, cond(model.FieldSource, op, model.Scalar("x"))), op)
		assert.False(t, defaultEvaluator.Match(&txn, cond(model.FieldDescription, op, model.Scalar(" "))), op)
	}
}

func TestMatch_AmountBetweenIsInclusive(t *testing.T) {
	c := cond(model.FieldAmount, model.OpBetween, model.Range("10", "20"))

	tests := []struct {
		amount float64
		want   bool
	}{
		{15, true},
		{10, true},
		{20, true},
		{9.99, false},
		{20.01, false},
	}

	for _, tt := range tests {
		txn := model.Transaction{Amount: tt.amount}
		assert.Equal(t, tt.want, defaultEvaluator.Match(&txn, c), "amount %v", tt.amount)
	}
}

func TestMatch_Amount(t *testing.T) {
	txn := model.Transaction{Amount: 100}

	assert.True(t, defaultEvaluator.Match(&txn, cond(model.FieldAmount, model.OpEquals, model.Number(100))))
	assert.False(t, defaultEvaluator.Match(&txn, cond(model.FieldAmount, model.OpGreaterThan, model.Number(100))))
	assert.True(t, defaultEvaluator.Match(&txn, cond(model.FieldAmount, model.OpGreaterThan, model.Number(99.5))))
	assert.False(t, defaultEvaluator.Match(&txn, cond(model.FieldAmount, model.OpLessThan, model.Number(100))))
	assert.True(t, defaultEvaluator.Match(&txn, cond(model.FieldAmount, model.OpLessThan, model.Scalar("100.01"))))
	assert.False(t, defaultEvaluator.Match(&txn, cond(model.FieldAmount, model.OpEquals, model.Scalar("one hundred"))))
	assert.False(t, defaultEvaluator.Match(&txn, cond(model.FieldAmount, model.OpContains, model.Scalar("1"))))
}

func TestMatch_AmountEqualsIsExactByDefault(t *testing.T) {
	// 0.1 + 0.2 is not exactly 0.3 in binary floating point.
	a, b := 0.1, 0.2
	txn := model.Transaction{Amount: a + b}
	c := cond(model.FieldAmount, model.OpEquals, model.Scalar("0.3"))

	assert.False(t, defaultEvaluator.Match(&txn, c))

	tolerant := NewEvaluator(Options{AmountTolerance: 0.005})
	assert.True(t, tolerant.Match(&txn, c))
}

func TestMatch_AmountToleranceCoversOneCent(t *testing.T) {
	cent := NewEvaluator(Options{AmountTolerance: 0.01})
	c := cond(model.FieldAmount, model.OpEquals, model.Scalar("-128"))

	assert.True(t, cent.Match(&model.Transaction{Amount: -127.99}, c))
	assert.True(t, cent.Match(&model.Transaction{Amount: -128.01}, c))
	assert.False(t, cent.Match(&model.Transaction{Amount: -128.02}, c))
}

func TestMatch_Date(t *testing.T) {
	txn := model.Transaction{Date: time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)}

	tests := []struct {
		name string
		c    model.Condition
		want bool
	}{
		{"equals ignores time of day", cond(model.FieldDate, model.OpEquals, model.Scalar("2024-03-15")), true},
		{"equals with timestamp value", cond(model.FieldDate, model.OpEquals, model.Scalar("2024-03-15T01:00:00Z")), true},
		{"equals other day", cond(model.FieldDate, model.OpEquals, model.Scalar("2024-03-16")), false},
		{"greater_than midnight same day", cond(model.FieldDate, model.OpGreaterThan, model.Scalar("2024-03-15")), true},
		{"less_than compares instants", cond(model.FieldDate, model.OpLessThan, model.Scalar("2024-03-15T18:00:00Z")), false},
		{"between inclusive", cond(model.FieldDate, model.OpBetween, model.Range("2024-03-01", "2024-03-15T18:30:00Z")), true},
		{"between outside", cond(model.FieldDate, model.OpBetween, model.Range("2024-03-01", "2024-03-15")), false},
		{"unparseable value", cond(model.FieldDate, model.OpEquals, model.Scalar("March 15th")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, defaultEvaluator.Match(&txn, tt.c))
		})
	}

	undated := model.Transaction{}
	assert.False(t, defaultEvaluator.Match(&undated, cond(model.FieldDate, model.OpLessThan, model.Scalar("2100-01-01"))))
}

func TestMatch_Status(t *testing.T) {
	txn := model.Transaction{Status: model.StatusPending}

	assert.True(t, defaultEvaluator.Match(&txn, cond(model.FieldStatus, model.OpEquals, model.Scalar("pending"))))
	assert.False(t, defaultEvaluator.Match(&txn, cond(model.FieldStatus, model.OpEquals, model.Scalar("Pending"))))
	assert.False(t, defaultEvaluator.Match(&txn, cond(model.FieldStatus, model.OpNotIn, model.Scalar("pending"))))
	assert.True(t, defaultEvaluator.Match(&txn, cond(model.FieldStatus, model.OpNotIn, model.Scalar("reviewed"))))
	assert.True(t, defaultEvaluator.Match(&txn, cond(model.FieldStatus, model.OpEquals, model.List("reviewed", "pending"))))
	assert.False(t, defaultEvaluator.Match(&txn, cond(model.FieldStatus, model.OpNotIn, model.List("reviewed", "pending"))))
}

func TestMatch_Label(t *testing.T) {
	tagged := model.Transaction{Labels: []model.Label{{ID: "food"}, {ID: "work"}}}
	bare := model.Transaction{}

	assert.True(t, defaultEvaluator.Match(&tagged, cond(model.FieldLabel, model.OpEquals, model.Scalar("work"))))
	assert.False(t, defaultEvaluator.Match(&tagged, cond(model.FieldLabel, model.OpEquals, model.Scalar("travel"))))
	assert.False(t, defaultEvaluator.Match(&tagged, cond(model.FieldLabel, model.OpNotIn, model.Scalar("food"))))
	assert.True(t, defaultEvaluator.Match(&tagged, cond(model.FieldLabel, model.OpNotIn, model.Scalar("travel"))))
	assert.False(t, defaultEvaluator.Match(&bare, cond(model.FieldLabel, model.OpEquals, model.Scalar("food"))))
	assert.True(t, defaultEvaluator.Match(&bare, cond(model.FieldLabel, model.OpNotIn, model.Scalar("food"))))
}

func TestEvaluate_Conjunctions(t *testing.T) {
	txn := model.Transaction{Description: "Coffee", Amount: 5}
	coffee := cond(model.FieldDescription, model.OpContains, model.Scalar("coffee"))
	big := cond(model.FieldAmount, model.OpGreaterThan, model.Number(100))

	assert.False(t, Evaluate(txn, model.ConditionSet{Conditions: []model.Condition{coffee, big}}))
	assert.True(t, Evaluate(txn, model.ConditionSet{Conditions: []model.Condition{coffee, big}, Conjunction: model.ConjunctionOr}))
	assert.False(t, Evaluate(txn, model.ConditionSet{Conditions: []model.Condition{big}, Conjunction: model.ConjunctionOr}))
}

func TestEvaluate_EmptySetMatchesEverything(t *testing.T) {
	txn := model.Transaction{Description: "anything"}
	assert.True(t, Evaluate(txn, model.ConditionSet{}))
	assert.True(t, Evaluate(txn, model.ConditionSet{Conjunction: model.ConjunctionOr}))
}

func TestEvaluate_UnsatisfiableConditionFailsAnd(t *testing.T) {
	records := []model.Transaction{
		{Description: "Coffee", Amount: 5},
		{Description: "Rent", Amount: 1500},
		{},
	}
	set := model.ConditionSet{
		Conjunction: model.ConjunctionAnd,
		Conditions: []model.Condition{
			cond(model.FieldAmount, model.OpGreaterThan, model.Number(0)),
			cond(model.FieldDescription, model.OpContains, model.Value{}),
		},
	}

	for _, r := range records {
		assert.False(t, Evaluate(r, set))
	}
}

func TestEvaluate_AmountFilterScenario(t *testing.T) {
	set := model.ConditionSet{
		Conjunction: model.ConjunctionAnd,
		Conditions:  []model.Condition{cond(model.FieldAmount, model.OpGreaterThan, model.Number(100))},
	}
	records := []model.Transaction{{ID: "a", Amount: 50}, {ID: "b", Amount: 150}}

	var matched []string
	for _, r := range records {
		if Evaluate(r, set) {
			matched = append(matched, r.ID)
		}
	}
	assert.Equal(t, []string{"b"}, matched)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		c       model.Condition
		wantErr error
	}{
		{"valid text", cond(model.FieldDescription, model.OpContains, model.Scalar("x")), nil},
		{"unknown field", cond("merchant", model.OpEquals, model.Scalar("x")), ErrUnknownField},
		{"illegal operator", cond(model.FieldStatus, model.OpContains, model.Scalar("x")), ErrIllegalOperator},
		{"missing value", cond(model.FieldAmount, model.OpEquals, model.Value{}), ErrEmptyValue},
		{"blank range member", cond(model.FieldAmount, model.OpBetween, model.Range("10", " ")), ErrEmptyValue},
		{"between needs a pair", cond(model.FieldAmount, model.OpBetween, model.Scalar("10")), ErrValueShape},
		{"text takes one value", cond(model.FieldSource, model.OpEquals, model.List("a", "b")), ErrValueShape},
		{"status takes a list", cond(model.FieldStatus, model.OpNotIn, model.List("a", "b")), nil},
		{"non-numeric amount", cond(model.FieldAmount, model.OpLessThan, model.Scalar("ten")), ErrValueType},
		{"infinite amount", cond(model.FieldAmount, model.OpLessThan, model.Scalar("Inf")), ErrValueType},
		{"bad date", cond(model.FieldDate, model.OpGreaterThan, model.Scalar("yesterday")), ErrValueType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.c)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewCondition(t *testing.T) {
	c, err := NewCondition(model.FieldAmount, model.OpBetween, model.Range("1", "2"))
	require.NoError(t, err)
	assert.Equal(t, model.OpBetween, c.Operator)

	_, err = NewCondition(model.FieldLabel, model.OpBetween, model.Range("1", "2"))
	assert.ErrorIs(t, err, ErrIllegalOperator)
}

func TestOperators(t *testing.T) {
	assert.Equal(t, []model.Operator{model.OpEquals, model.OpNotIn}, Operators(model.FieldLabel))
	assert.Len(t, Operators(model.FieldDescription), 4)
	assert.Nil(t, Operators("nope"))

	typ, ok := TypeOf(model.FieldDate)
	assert.True(t, ok)
	assert.Equal(t, TypeDate, typ)
}

func TestPrune(t *testing.T) {
	set := model.ConditionSet{
		Conjunction: "or",
		Conditions: []model.Condition{
			cond(model.FieldDescription, model.OpContains, model.Scalar("coffee")),
			cond(model.FieldAmount, model.OpBetween, model.Range("10", "")),
			cond(model.FieldSource, model.OpEquals, model.Scalar("chase")),
		},
	}

	pruned, dropped := Prune(set)
	assert.Equal(t, model.ConjunctionOr, pruned.Conjunction)
	require.Len(t, pruned.Conditions, 2)
	require.Len(t, dropped, 1)
	assert.Equal(t, 1, dropped[0].Index)
	assert.ErrorIs(t, dropped[0].Err, ErrEmptyValue)

	allBad, dropped := Prune(model.ConditionSet{Conditions: []model.Condition{cond(model.FieldAmount, model.OpEquals, model.Value{})}})
	assert.Empty(t, allBad.Conditions)
	assert.Len(t, dropped, 1)
	assert.True(t, Evaluate(model.Transaction{}, allBad))
}
