// Package predicate translates condition sets into store-native filter trees.
//
// Predicate is a sealed interface: only the node types in this package
// implement it, so backend compilers can switch over it exhaustively.
// Column names are resolved during translation; values are carried as Go
// values and are never rendered into query text.
package predicate

// Predicate is a node in a filter tree.
type Predicate interface {
	predicateNode()
}

// CompareOp is a binary comparison.
type CompareOp string

// Comparison operators.
const (
	OpEq  CompareOp = "="
	OpNe  CompareOp = "<>"
	OpGt  CompareOp = ">"
	OpLt  CompareOp = "<"
	OpGte CompareOp = ">="
	OpLte CompareOp = "<="
)

// Compare tests column <op> value. When Fold is set the column is case-folded
// by the backend and Value is already folded.
type Compare struct {
	Value  any
	Column string
	Op     CompareOp
	Fold   bool
}

func (Compare) predicateNode() {}

// Like is a case-folded pattern match. Pattern uses % as the wildcard and
// backslash as the escape character.
type Like struct {
	Column  string
	Pattern string
}

func (Like) predicateNode() {}

// Between tests Low <= column <= High.
type Between struct {
	Low    any
	High   any
	Column string
}

func (Between) predicateNode() {}

// In tests column against a list of values. Negate turns it into NOT IN.
type In struct {
	Column string
	Values []any
	Negate bool
}

func (In) predicateNode() {}

// LabelMembership tests whether a record has any of the labels attached.
// Negate selects records with none of them.
//
// Conceptual SQL:
//
//	EXISTS (SELECT 1 FROM <JoinTable>
//	        WHERE <JoinTable>.<OwnerColumn> = <OuterTable>.<OuterKey>
//	          AND <JoinTable>.<LabelColumn> IN (...))
type LabelMembership struct {
	JoinTable   string
	OwnerColumn string
	LabelColumn string
	OuterTable  string
	OuterKey    string
	LabelIDs    []string
	Negate      bool
}

func (LabelMembership) predicateNode() {}

// And holds when every child holds. An empty And is true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or holds when any child holds. An empty Or is false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Const is a literal truth value.
type Const struct {
	Value bool
}

func (Const) predicateNode() {}

// True and False are the constant predicates.
var (
	True  Predicate = Const{Value: true}
	False Predicate = Const{Value: false}
)

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}
