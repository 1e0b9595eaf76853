package querysql

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/predicate"
)

func render(sql string, params []any) []byte {
	var b strings.Builder
	b.WriteString(sql)
	b.WriteString("\n")
	for i, p := range params {
		fmt.Fprintf(&b, "%d %T %v\n", i+1, p, p)
	}
	return []byte(b.String())
}

func c(field model.FieldKind, op model.Operator, v model.Value) model.Condition {
	return model.Condition{Field: field, Operator: op, Value: v}
}

func TestCompile_Golden(t *testing.T) {
	coffee := model.ConditionSet{Conditions: []model.Condition{
		c(model.FieldDescription, model.OpContains, model.Scalar("Coffee")),
		c(model.FieldAmount, model.OpGreaterThan, model.Number(5)),
		c(model.FieldStatus, model.OpEquals, model.Scalar("pending")),
	}}

	tests := []struct {
		dialect Dialect
		name    string
		set     model.ConditionSet
		order   []predicate.Order
		limit   int
	}{
		{
			name:    "sqlite_and",
			dialect: SQLite{},
			set:     coffee,
			order:   []predicate.Order{{Column: "date"}},
		},
		{
			name:    "postgres_and",
			dialect: Postgres{},
			set:     coffee,
			order:   []predicate.Order{{Column: "date"}},
		},
		{
			name:    "sqlite_or_labels",
			dialect: SQLite{},
			set: model.ConditionSet{Conjunction: model.ConjunctionOr, Conditions: []model.Condition{
				c(model.FieldLabel, model.OpEquals, model.List("lbl-1", "lbl-2")),
				c(model.FieldDescription, model.OpStartsWith, model.Scalar("Star")),
			}},
			limit: 10,
		},
		{
			name:    "postgres_dates",
			dialect: Postgres{},
			set: model.ConditionSet{Conditions: []model.Condition{
				c(model.FieldDate, model.OpEquals, model.Scalar("2024-03-15")),
				c(model.FieldStatus, model.OpNotIn, model.List("archived", "reviewed")),
				c(model.FieldAmount, model.OpBetween, model.Range("10", "20")),
			}},
			order: []predicate.Order{{Column: "date", Desc: true}},
		},
		{
			name:    "sqlite_unsatisfiable",
			dialect: SQLite{},
			set: model.ConditionSet{Conditions: []model.Condition{
				c(model.FieldDescription, model.OpContains, model.Scalar("coffee")),
				c(model.FieldAmount, model.OpGreaterThan, model.Scalar("lots")),
			}},
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := predicate.Translate(tt.set, predicate.TransactionsTable())
			sql, params, err := NewCompiler(tt.dialect).Compile(Select{
				Table:   "transactions",
				Columns: []string{"id", "description"},
				Where:   tr.Predicate,
				OrderBy: tt.order,
				Limit:   tt.limit,
			})
			require.NoError(t, err)
			g.Assert(t, tt.name, render(sql, params))
		})
	}
}

func TestCompile_EmptyFilterSelectsEverything(t *testing.T) {
	tr := predicate.Translate(model.ConditionSet{}, predicate.TransactionsTable())

	sql, params, err := NewCompiler(SQLite{}).Compile(Select{Table: "transactions", Where: tr.Predicate})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM transactions WHERE 1 = 1 ORDER BY id ASC", sql)
	assert.Empty(t, params)
}

func TestCompile_OrderAlwaysEndsWithKey(t *testing.T) {
	compiler := NewCompiler(SQLite{})

	sql, _, err := compiler.Compile(Select{Table: "transactions"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, "ORDER BY id ASC"))

	sql, _, err = compiler.Compile(Select{Table: "transactions", OrderBy: []predicate.Order{{Column: "id", Desc: true}}})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, "ORDER BY id DESC"))

	sql, _, err = compiler.Compile(Select{Table: "rules", KeyColumn: "order_index"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, "ORDER BY order_index ASC"))
}

func TestCompile_ValuesAreNeverInterpolated(t *testing.T) {
	tr := predicate.Translate(model.ConditionSet{Conditions: []model.Condition{
		c(model.FieldDescription, model.OpEquals, model.Scalar("'; DROP TABLE transactions; --")),
	}}, predicate.TransactionsTable())

	sql, params, err := NewCompiler(SQLite{}).Compile(Select{Table: "transactions", Where: tr.Predicate})
	require.NoError(t, err)
	assert.NotContains(t, sql, "DROP")
	assert.Equal(t, []any{"'; drop table transactions; --"}, params)
}

func TestCompile_RejectsBadIdentifiers(t *testing.T) {
	compiler := NewCompiler(SQLite{})

	_, _, err := compiler.Compile(Select{Table: "transactions; DROP"})
	require.ErrorIs(t, err, ErrBadIdentifier)

	_, _, err = compiler.Compile(Select{
		Table: "transactions",
		Where: predicate.Compare{Column: "amount)", Op: predicate.OpEq, Value: 1.0},
	})
	require.ErrorIs(t, err, ErrBadIdentifier)

	_, _, err = compiler.Compile(Select{
		Table:   "transactions",
		OrderBy: []predicate.Order{{Column: "date desc"}},
	})
	require.ErrorIs(t, err, ErrBadIdentifier)

	_, _, err = compiler.Compile(Select{
		Table: "transactions",
		Where: predicate.Compare{Column: "amount", Op: "LIKE", Value: 1.0},
	})
	require.Error(t, err)
}

func TestCompile_EmptyLists(t *testing.T) {
	compiler := NewCompiler(Postgres{})

	tests := []struct {
		pred predicate.Predicate
		name string
		want string
	}{
		{name: "empty in", pred: predicate.In{Column: "status"}, want: "1 = 0"},
		{name: "empty not in", pred: predicate.In{Column: "status", Negate: true}, want: "1 = 1"},
		{name: "empty membership", pred: predicate.LabelMembership{
			JoinTable: "transaction_labels", OwnerColumn: "transaction_id", LabelColumn: "label_id",
			OuterTable: "transactions", OuterKey: "id",
		}, want: "1 = 0"},
		{name: "empty and", pred: predicate.And{}, want: "1 = 1"},
		{name: "empty or", pred: predicate.Or{}, want: "1 = 0"},
		{name: "false", pred: predicate.False, want: "1 = 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := compiler.Compile(Select{Table: "transactions", Where: tt.pred})
			require.NoError(t, err)
			assert.Equal(t, "SELECT * FROM transactions WHERE "+tt.want+" ORDER BY id ASC", sql)
			assert.Empty(t, params)
		})
	}
}

func TestCompile_PostgresFoldsThroughStoredCopy(t *testing.T) {
	tr := predicate.Translate(model.ConditionSet{Conditions: []model.Condition{
		c(model.FieldDescription, model.OpContains, model.Scalar("Straße")),
		c(model.FieldSource, model.OpEquals, model.Scalar("ΟΔΟΣ")),
	}}, predicate.TransactionsTable())

	sql, params, err := NewCompiler(Postgres{}).Compile(Select{Table: "transactions", Where: tr.Predicate})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT * FROM transactions WHERE (description_folded LIKE $1 ESCAPE '\' AND source_folded = $2) ORDER BY id ASC`,
		sql)
	assert.Equal(t, []any{"%strasse%", "οδοσ"}, params)
	assert.NotContains(t, sql, "lower(")
}

func TestCompile_NullDatesSortTheSameEverywhere(t *testing.T) {
	tests := []struct {
		dialect Dialect
		name    string
		want    string
		desc    bool
	}{
		{name: "sqlite desc", dialect: SQLite{}, desc: true, want: "ORDER BY date DESC, id ASC"},
		{name: "sqlite asc", dialect: SQLite{}, want: "ORDER BY date ASC, id ASC"},
		{name: "postgres desc", dialect: Postgres{}, desc: true, want: "ORDER BY date DESC NULLS LAST, id ASC"},
		{name: "postgres asc", dialect: Postgres{}, want: "ORDER BY date ASC NULLS FIRST, id ASC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, _, err := NewCompiler(tt.dialect).Compile(Select{
				Table:   "transactions",
				OrderBy: []predicate.Order{{Column: "date", Desc: tt.desc}},
			})
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(sql, tt.want), sql)
		})
	}
}
