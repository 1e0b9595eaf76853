package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldKind names the transaction attribute a condition tests.
type FieldKind string

// Field kind constants.
const (
	FieldDescription FieldKind = "description"
	FieldAmount      FieldKind = "amount"
	FieldDate        FieldKind = "date"
	FieldIdentifier  FieldKind = "identifier"
	FieldSource      FieldKind = "source"
	FieldStatus      FieldKind = "status"
	FieldLabel       FieldKind = "label"
)

// AllFields lists every field kind in display order.
func AllFields() []FieldKind {
	return []FieldKind{
		FieldDescription, FieldAmount, FieldDate,
		FieldIdentifier, FieldSource, FieldStatus, FieldLabel,
	}
}

// Operator is the comparison a condition applies. Legal operators depend on the field.
type Operator string

// Operator constants.
const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpBetween     Operator = "between"
	OpNotIn       Operator = "not_in"
)

// Conjunction combines the conditions of a set.
type Conjunction string

// Conjunction constants.
const (
	ConjunctionAnd Conjunction = "AND"
	ConjunctionOr  Conjunction = "OR"
)

// Condition is a single (field, operator, value) test.
type Condition struct {
	Field    FieldKind `json:"field" yaml:"field"`
	Operator Operator  `json:"operator" yaml:"operator"`
	Value    Value     `json:"value" yaml:"value"`
}

// String renders the condition for logs and tables.
func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Field, c.Operator, c.Value)
}

// ConditionSet is a list of conditions plus the conjunction joining them.
type ConditionSet struct {
	Conjunction Conjunction `json:"conjunction" yaml:"conjunction,omitempty"`
	Conditions  []Condition `json:"conditions" yaml:"conditions"`
}

// Mode returns the effective conjunction. Anything other than OR means AND.
func (s ConditionSet) Mode() Conjunction {
	if strings.EqualFold(string(s.Conjunction), string(ConjunctionOr)) {
		return ConjunctionOr
	}
	return ConjunctionAnd
}

// ParseConjunction accepts "and"/"or" in any case.
func ParseConjunction(s string) (Conjunction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(ConjunctionAnd):
		return ConjunctionAnd, nil
	case string(ConjunctionOr):
		return ConjunctionOr, nil
	default:
		return "", fmt.Errorf("invalid conjunction: %q (valid: AND, OR)", s)
	}
}

// Value holds a condition operand: nothing, a scalar, or a list of scalars.
// A two-item list is the [min, max] pair used by between. Scalars are kept as
// text and interpreted by the field evaluator.
type Value struct {
	items  []string
	isList bool
}

// Scalar builds a single-valued operand.
func Scalar(s string) Value {
	return Value{items: []string{s}}
}

// Number builds a scalar operand from a float.
func Number(f float64) Value {
	return Scalar(strconv.FormatFloat(f, 'f', -1, 64))
}

// Range builds the [min, max] operand for between.
func Range(lo, hi string) Value {
	return List(lo, hi)
}

// List builds a list operand.
func List(items ...string) Value {
	return Value{items: append([]string(nil), items...), isList: true}
}

// IsSet reports whether the value carries any item at all.
func (v Value) IsSet() bool {
	return len(v.items) > 0
}

// IsList reports whether the value was given as a list.
func (v Value) IsList() bool {
	return v.isList
}

// Items returns a copy of the value's members.
func (v Value) Items() []string {
	return append([]string(nil), v.items...)
}

// First returns the first member or the empty string.
func (v Value) First() string {
	if len(v.items) == 0 {
		return ""
	}
	return v.items[0]
}

// Bounds returns the [min, max] pair when the value is a two-item list.
func (v Value) Bounds() (lo, hi string, ok bool) {
	if !v.isList || len(v.items) != 2 {
		return "", "", false
	}
	return v.items[0], v.items[1], true
}

// HasEmptyMember reports whether the value is missing or any member is blank.
func (v Value) HasEmptyMember() bool {
	if len(v.items) == 0 {
		return true
	}
	for _, item := range v.items {
		if strings.TrimSpace(item) == "" {
			return true
		}
	}
	return false
}

func (v Value) String() string {
	switch {
	case len(v.items) == 0:
		return "<empty>"
	case v.isList:
		return "[" + strings.Join(v.items, ", ") + "]"
	default:
		return strconv.Quote(v.items[0])
	}
}

// MarshalJSON encodes scalars as strings and lists as string arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case !v.isList && len(v.items) == 0:
		return []byte("null"), nil
	case v.isList:
		items := v.items
		if items == nil {
			items = []string{}
		}
		return json.Marshal(items)
	default:
		return json.Marshal(v.items[0])
	}
}

// UnmarshalJSON accepts null, strings, numbers, booleans and arrays of those.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}

	if data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("invalid condition value: %w", err)
		}
		items := make([]string, 0, len(raw))
		for _, r := range raw {
			s, err := jsonScalar(r)
			if err != nil {
				return err
			}
			items = append(items, s)
		}
		*v = Value{items: items, isList: true}
		return nil
	}

	s, err := jsonScalar(data)
	if err != nil {
		return err
	}
	*v = Scalar(s)
	return nil
}

func jsonScalar(data json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return "", fmt.Errorf("invalid condition value: %w", err)
	}

	switch x := raw.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("invalid condition value: unsupported JSON type %T", raw)
	}
}

// MarshalYAML encodes scalars as plain scalars and lists as sequences.
func (v Value) MarshalYAML() (any, error) {
	switch {
	case !v.isList && len(v.items) == 0:
		return nil, nil
	case v.isList:
		return v.Items(), nil
	default:
		return v.items[0], nil
	}
}

// UnmarshalYAML accepts scalars and sequences of scalars.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*v = Value{}
			return nil
		}
		*v = Scalar(node.Value)
		return nil
	case yaml.SequenceNode:
		items := make([]string, 0, len(node.Content))
		for _, child := range node.Content {
			if child.Kind != yaml.ScalarNode {
				return fmt.Errorf("invalid condition value at line %d: nested values are not supported", child.Line)
			}
			if child.Tag == "!!null" {
				items = append(items, "")
				continue
			}
			items = append(items, child.Value)
		}
		*v = Value{items: items, isList: true}
		return nil
	default:
		return fmt.Errorf("invalid condition value at line %d", node.Line)
	}
}
