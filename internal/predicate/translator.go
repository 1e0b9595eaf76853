package predicate

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/saffron/internal/match"
	"github.com/Veraticus/saffron/internal/model"
)

// TableRef maps field kinds onto a concrete table layout.
type TableRef struct {
	Columns          map[model.FieldKind]string
	Table            string
	IDColumn         string
	LabelTable       string
	LabelOwnerColumn string
	LabelIDColumn    string
}

// TransactionsTable is the layout shared by the bundled SQLite and PostgreSQL stores.
func TransactionsTable() TableRef {
	return TableRef{
		Table:    "transactions",
		IDColumn: "id",
		Columns: map[model.FieldKind]string{
			model.FieldDescription: "description",
			model.FieldAmount:      "amount",
			model.FieldDate:        "date",
			model.FieldIdentifier:  "identifier",
			model.FieldSource:      "source",
			model.FieldStatus:      "status",
		},
		LabelTable:       "transaction_labels",
		LabelOwnerColumn: "transaction_id",
		LabelIDColumn:    "label_id",
	}
}

// Note records a condition that could not contribute to the predicate.
type Note struct {
	Err       error
	Condition model.Condition
	Index     int
}

// Translation is the result of translating a condition set.
type Translation struct {
	Predicate Predicate
	// Unsatisfiable lists conditions rendered as FALSE. Under AND they empty
	// the result; under OR they contribute nothing.
	Unsatisfiable []Note
}

// Translator converts condition sets into predicates for one table layout.
type Translator struct {
	ref  TableRef
	opts match.Options
}

// NewTranslator creates a translator. Options must match the evaluator used
// for local re-validation.
func NewTranslator(ref TableRef, opts match.Options) *Translator {
	return &Translator{ref: ref, opts: opts}
}

// Translate converts a set with exact semantics.
func Translate(set model.ConditionSet, ref TableRef) Translation {
	return NewTranslator(ref, match.Options{}).Translate(set)
}

// Translate converts a condition set. The resulting predicate selects the
// same records that the local evaluator accepts.
func (t *Translator) Translate(set model.ConditionSet) Translation {
	if len(set.Conditions) == 0 {
		return Translation{Predicate: True}
	}

	var notes []Note
	clauses := make([]Predicate, 0, len(set.Conditions))
	for i, c := range set.Conditions {
		p, err := t.Condition(c)
		if err != nil {
			notes = append(notes, Note{Index: i, Condition: c, Err: err})
			p = False
		}
		clauses = append(clauses, p)
	}

	if len(clauses) == 1 {
		return Translation{Predicate: clauses[0], Unsatisfiable: notes}
	}
	if set.Mode() == model.ConjunctionOr {
		return Translation{Predicate: Or{Predicates: clauses}, Unsatisfiable: notes}
	}
	return Translation{Predicate: And{Predicates: clauses}, Unsatisfiable: notes}
}

// Condition translates a single condition into one clause.
func (t *Translator) Condition(c model.Condition) (Predicate, error) {
	if err := match.Validate(c); err != nil {
		return nil, err
	}

	typ, _ := match.TypeOf(c.Field)
	if typ == match.TypeMembership {
		return t.labelClause(c), nil
	}

	column, ok := t.ref.Columns[c.Field]
	if !ok {
		return nil, fmt.Errorf("table %s has no column for field %s", t.ref.Table, c.Field)
	}

	switch typ {
	case match.TypeText:
		return textClause(column, c), nil
	case match.TypeNumber:
		return t.numberClause(column, c)
	case match.TypeDate:
		return dateClause(column, c)
	case match.TypeStatus:
		return statusClause(column, c), nil
	}
	return nil, fmt.Errorf("field %s has no translation", c.Field)
}

func textClause(column string, c model.Condition) Predicate {
	needle := match.Fold(c.Value.First())
	switch c.Operator {
	case model.OpContains:
		return Like{Column: column, Pattern: "%" + EscapeLike(needle) + "%"}
	case model.OpStartsWith:
		return Like{Column: column, Pattern: EscapeLike(needle) + "%"}
	case model.OpEndsWith:
		return Like{Column: column, Pattern: "%" + EscapeLike(needle)}
	default:
		return Compare{Column: column, Op: OpEq, Value: needle, Fold: true}
	}
}

func (t *Translator) numberClause(column string, c model.Condition) (Predicate, error) {
	if c.Operator == model.OpBetween {
		rawLo, rawHi, _ := c.Value.Bounds()
		lo, err := match.ParseNumber(rawLo)
		if err != nil {
			return nil, err
		}
		hi, err := match.ParseNumber(rawHi)
		if err != nil {
			return nil, err
		}
		return Between{Column: column, Low: lo, High: hi}, nil
	}

	n, err := match.ParseNumber(c.Value.First())
	if err != nil {
		return nil, err
	}

	switch c.Operator {
	case model.OpGreaterThan:
		return Compare{Column: column, Op: OpGt, Value: n}, nil
	case model.OpLessThan:
		return Compare{Column: column, Op: OpLt, Value: n}, nil
	default:
		if tol := t.opts.AmountTolerance; tol > 0 {
			return Between{Column: column, Low: n - tol, High: n + tol}, nil
		}
		return Compare{Column: column, Op: OpEq, Value: n}, nil
	}
}

// Dates are stored as whole Unix seconds, so instant bounds are rounded
// toward the side that keeps the comparison exact.
func dateClause(column string, c model.Condition) (Predicate, error) {
	if c.Operator == model.OpBetween {
		rawLo, rawHi, _ := c.Value.Bounds()
		lo, err := match.ParseDate(rawLo)
		if err != nil {
			return nil, err
		}
		hi, err := match.ParseDate(rawHi)
		if err != nil {
			return nil, err
		}
		return Between{Column: column, Low: ceilUnix(lo), High: hi.Unix()}, nil
	}

	target, err := match.ParseDate(c.Value.First())
	if err != nil {
		return nil, err
	}

	switch c.Operator {
	case model.OpGreaterThan:
		return Compare{Column: column, Op: OpGt, Value: target.Unix()}, nil
	case model.OpLessThan:
		return Compare{Column: column, Op: OpLt, Value: ceilUnix(target)}, nil
	default:
		start := match.StartOfDay(target)
		return And{Predicates: []Predicate{
			Compare{Column: column, Op: OpGte, Value: start.Unix()},
			Compare{Column: column, Op: OpLt, Value: start.AddDate(0, 0, 1).Unix()},
		}}, nil
	}
}

func ceilUnix(t time.Time) int64 {
	if t.Nanosecond() > 0 {
		return t.Unix() + 1
	}
	return t.Unix()
}

func statusClause(column string, c model.Condition) Predicate {
	items := c.Value.Items()
	negate := c.Operator == model.OpNotIn

	if len(items) == 1 {
		op := OpEq
		if negate {
			op = OpNe
		}
		return Compare{Column: column, Op: op, Value: items[0]}
	}

	values := make([]any, 0, len(items))
	for _, item := range items {
		values = append(values, item)
	}
	return In{Column: column, Values: values, Negate: negate}
}

func (t *Translator) labelClause(c model.Condition) Predicate {
	return LabelMembership{
		JoinTable:   t.ref.LabelTable,
		OwnerColumn: t.ref.LabelOwnerColumn,
		LabelColumn: t.ref.LabelIDColumn,
		OuterTable:  t.ref.Table,
		OuterKey:    t.ref.IDColumn,
		LabelIDs:    c.Value.Items(),
		Negate:      c.Operator == model.OpNotIn,
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes LIKE metacharacters using backslash.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}
