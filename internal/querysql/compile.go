// Package querysql compiles predicate trees into parameterized SQL.
//
// Values are always bound as parameters, never interpolated. Every SELECT
// carries an ORDER BY that ends in the key column so results are
// deterministic across runs and backends.
package querysql

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Veraticus/saffron/internal/predicate"
)

// ErrBadIdentifier is returned when a table or column name is not a plain SQL identifier.
var ErrBadIdentifier = errors.New("invalid identifier")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Select describes a single-table query.
type Select struct {
	Where     predicate.Predicate
	Table     string
	KeyColumn string
	Columns   []string
	OrderBy   []predicate.Order
	Limit     int
}

// Compiler compiles predicates for one dialect.
type Compiler struct {
	dialect Dialect
}

// NewCompiler creates a compiler for the given dialect.
func NewCompiler(d Dialect) *Compiler {
	return &Compiler{dialect: d}
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() Dialect {
	return c.dialect
}

type compilation struct {
	dialect Dialect
	params  []any
}

func (s *compilation) bind(v any) string {
	s.params = append(s.params, v)
	return s.dialect.Placeholder(len(s.params))
}

// Compile renders a full SELECT statement.
func (c *Compiler) Compile(q Select) (string, []any, error) {
	if err := checkIdentifiers(append([]string{q.Table}, q.Columns...)...); err != nil {
		return "", nil, err
	}

	key := q.KeyColumn
	if key == "" {
		key = "id"
	}

	columns := "*"
	if len(q.Columns) > 0 {
		columns = strings.Join(q.Columns, ", ")
	}

	s := &compilation{dialect: c.dialect}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", columns, q.Table)

	if q.Where != nil {
		where, err := s.predicate(q.Where)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	order, err := orderBy(c.dialect, q.OrderBy, key)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(order)

	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.Limit))
	}

	return b.String(), s.params, nil
}

func orderBy(d Dialect, terms []predicate.Order, key string) (string, error) {
	parts := make([]string, 0, len(terms)+1)
	sawKey := false
	for _, term := range terms {
		if err := checkIdentifiers(term.Column); err != nil {
			return "", err
		}
		dir := "ASC"
		if term.Desc {
			dir = "DESC"
		}
		if term.Column == key {
			sawKey = true
			parts = append(parts, term.Column+" "+dir)
			continue
		}
		parts = append(parts, term.Column+" "+dir+d.NullOrder(term.Desc))
	}
	if !sawKey {
		parts = append(parts, key+" ASC")
	}
	return strings.Join(parts, ", "), nil
}

func (s *compilation) predicate(p predicate.Predicate) (string, error) {
	switch node := p.(type) {
	case nil:
		return "1 = 1", nil
	case predicate.Const:
		if node.Value {
			return "1 = 1", nil
		}
		return "1 = 0", nil
	case predicate.Compare:
		return s.compare(node)
	case predicate.Like:
		if err := checkIdentifiers(node.Column); err != nil {
			return "", err
		}
		return fmt.Sprintf(`%s LIKE %s ESCAPE '\'`, s.dialect.Fold(node.Column), s.bind(node.Pattern)), nil
	case predicate.Between:
		if err := checkIdentifiers(node.Column); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", node.Column, s.bind(node.Low), s.bind(node.High)), nil
	case predicate.In:
		return s.in(node)
	case predicate.LabelMembership:
		return s.membership(node)
	case predicate.And:
		return s.group(node.Predicates, " AND ", "1 = 1")
	case predicate.Or:
		return s.group(node.Predicates, " OR ", "1 = 0")
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (s *compilation) compare(node predicate.Compare) (string, error) {
	if err := checkIdentifiers(node.Column); err != nil {
		return "", err
	}
	switch node.Op {
	case predicate.OpEq, predicate.OpNe, predicate.OpGt, predicate.OpLt, predicate.OpGte, predicate.OpLte:
	default:
		return "", fmt.Errorf("unsupported comparison %q", node.Op)
	}

	column := node.Column
	if node.Fold {
		column = s.dialect.Fold(column)
	}
	return fmt.Sprintf("%s %s %s", column, node.Op, s.bind(node.Value)), nil
}

func (s *compilation) in(node predicate.In) (string, error) {
	if err := checkIdentifiers(node.Column); err != nil {
		return "", err
	}
	if len(node.Values) == 0 {
		if node.Negate {
			return "1 = 1", nil
		}
		return "1 = 0", nil
	}

	keyword := "IN"
	if node.Negate {
		keyword = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", node.Column, keyword, s.list(node.Values)), nil
}

func (s *compilation) membership(node predicate.LabelMembership) (string, error) {
	if err := checkIdentifiers(node.JoinTable, node.OwnerColumn, node.LabelColumn, node.OuterTable, node.OuterKey); err != nil {
		return "", err
	}
	if len(node.LabelIDs) == 0 {
		if node.Negate {
			return "1 = 1", nil
		}
		return "1 = 0", nil
	}

	ids := make([]any, 0, len(node.LabelIDs))
	for _, id := range node.LabelIDs {
		ids = append(ids, id)
	}

	keyword := "EXISTS"
	if node.Negate {
		keyword = "NOT EXISTS"
	}
	return fmt.Sprintf("%s (SELECT 1 FROM %s WHERE %s.%s = %s.%s AND %s.%s IN (%s))",
		keyword,
		node.JoinTable,
		node.JoinTable, node.OwnerColumn,
		node.OuterTable, node.OuterKey,
		node.JoinTable, node.LabelColumn,
		s.list(ids),
	), nil
}

func (s *compilation) group(children []predicate.Predicate, sep, empty string) (string, error) {
	if len(children) == 0 {
		return empty, nil
	}
	if len(children) == 1 {
		return s.predicate(children[0])
	}

	parts := make([]string, 0, len(children))
	for _, child := range children {
		sql, err := s.predicate(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (s *compilation) list(values []any) string {
	marks := make([]string, 0, len(values))
	for _, v := range values {
		marks = append(marks, s.bind(v))
	}
	return strings.Join(marks, ", ")
}

func checkIdentifiers(names ...string) error {
	for _, name := range names {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("%w: %q", ErrBadIdentifier, name)
		}
	}
	return nil
}
