// Package match evaluates condition sets against transactions in memory.
//
// Every field kind is registered in a dispatch table that names its legal
// operators and the evaluator that tests it. Conditions are checked against
// the table when built (NewCondition, Validate); during evaluation a malformed
// condition is never an error, it simply does not match.
package match

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/saffron/internal/model"
)

// Validation errors.
var (
	ErrUnknownField    = errors.New("unknown field")
	ErrIllegalOperator = errors.New("operator not supported for field")
	ErrEmptyValue      = errors.New("condition value is empty")
	ErrValueShape      = errors.New("condition value has the wrong shape")
	ErrValueType       = errors.New("condition value has the wrong type")
)

// FieldType groups field kinds that share an evaluator family.
type FieldType string

// Field type constants.
const (
	TypeText       FieldType = "text"
	TypeNumber     FieldType = "number"
	TypeDate       FieldType = "date"
	TypeStatus     FieldType = "status"
	TypeMembership FieldType = "label"
)

type evalFunc func(e *Evaluator, txn *model.Transaction, op model.Operator, v model.Value) bool

type fieldDef struct {
	operators map[model.Operator]bool
	eval      evalFunc
	typ       FieldType
}

var (
	textOperators   = []model.Operator{model.OpEquals, model.OpContains, model.OpStartsWith, model.OpEndsWith}
	rangeOperators  = []model.Operator{model.OpEquals, model.OpGreaterThan, model.OpLessThan, model.OpBetween}
	memberOperators = []model.Operator{model.OpEquals, model.OpNotIn}
)

var registry = map[model.FieldKind]fieldDef{
	model.FieldDescription: textField(func(t *model.Transaction) string { return t.Description }),
	model.FieldIdentifier:  textField(func(t *model.Transaction) string { return t.Identifier }),
	model.FieldSource:      textField(func(t *model.Transaction) string { return t.Source }),
	model.FieldAmount: {
		typ:       TypeNumber,
		operators: operatorSet(rangeOperators),
		eval: func(e *Evaluator, t *model.Transaction, op model.Operator, v model.Value) bool {
			return e.matchNumber(t.Amount, op, v)
		},
	},
	model.FieldDate: {
		typ:       TypeDate,
		operators: operatorSet(rangeOperators),
		eval: func(_ *Evaluator, t *model.Transaction, op model.Operator, v model.Value) bool {
			return matchDate(t.Date, op, v)
		},
	},
	model.FieldStatus: {
		typ:       TypeStatus,
		operators: operatorSet(memberOperators),
		eval: func(_ *Evaluator, t *model.Transaction, op model.Operator, v model.Value) bool {
			return matchStatus(string(t.Status), op, v)
		},
	},
	model.FieldLabel: {
		typ:       TypeMembership,
		operators: operatorSet(memberOperators),
		eval: func(_ *Evaluator, t *model.Transaction, op model.Operator, v model.Value) bool {
			return matchLabels(t, op, v)
		},
	},
}

func textField(get func(*model.Transaction) string) fieldDef {
	return fieldDef{
		typ:       TypeText,
		operators: operatorSet(textOperators),
		eval: func(_ *Evaluator, t *model.Transaction, op model.Operator, v model.Value) bool {
			return matchText(get(t), op, v.First())
		},
	}
}

func operatorSet(ops []model.Operator) map[model.Operator]bool {
	set := make(map[model.Operator]bool, len(ops))
	for _, op := range ops {
		set[op] = true
	}
	return set
}

// TypeOf returns the evaluator family of a field kind.
func TypeOf(field model.FieldKind) (FieldType, bool) {
	def, ok := registry[field]
	return def.typ, ok
}

// Operators lists the legal operators for a field kind, sorted by name.
func Operators(field model.FieldKind) []model.Operator {
	def, ok := registry[field]
	if !ok {
		return nil
	}
	ops := make([]model.Operator, 0, len(def.operators))
	for op := range def.operators {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// NewCondition builds a condition and validates it against the dispatch table.
func NewCondition(field model.FieldKind, op model.Operator, value model.Value) (model.Condition, error) {
	c := model.Condition{Field: field, Operator: op, Value: value}
	if err := Validate(c); err != nil {
		return model.Condition{}, err
	}
	return c, nil
}

// Validate reports why a condition cannot be evaluated, or nil when it can.
func Validate(c model.Condition) error {
	def, ok := registry[c.Field]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, c.Field)
	}
	if !def.operators[c.Operator] {
		return fmt.Errorf("%w: %s %s", ErrIllegalOperator, c.Field, c.Operator)
	}
	if c.Value.HasEmptyMember() {
		return fmt.Errorf("%w: %s %s", ErrEmptyValue, c.Field, c.Operator)
	}

	if err := validateShape(def.typ, c); err != nil {
		return err
	}

	switch def.typ {
	case TypeNumber:
		for _, item := range c.Value.Items() {
			if _, err := ParseNumber(item); err != nil {
				return fmt.Errorf("%w: %s is not a number", ErrValueType, strconv.Quote(item))
			}
		}
	case TypeDate:
		for _, item := range c.Value.Items() {
			if _, err := ParseDate(item); err != nil {
				return fmt.Errorf("%w: %s is not a date", ErrValueType, strconv.Quote(item))
			}
		}
	}

	return nil
}

func validateShape(typ FieldType, c model.Condition) error {
	if c.Operator == model.OpBetween {
		if _, _, ok := c.Value.Bounds(); !ok {
			return fmt.Errorf("%w: between needs [min, max]", ErrValueShape)
		}
		return nil
	}

	if !c.Value.IsList() {
		return nil
	}

	// Status and label conditions accept a list of alternatives.
	if typ == TypeStatus || typ == TypeMembership {
		return nil
	}
	return fmt.Errorf("%w: %s %s takes a single value", ErrValueShape, c.Field, c.Operator)
}

// Satisfiable reports whether the condition can ever match.
func Satisfiable(c model.Condition) bool {
	return Validate(c) == nil
}

// ParseNumber parses a finite decimal amount.
func ParseNumber(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("amount %q is not finite", s)
	}
	return f, nil
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate parses a calendar date or timestamp. Values without a zone are UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
