package querysql

import "strconv"

// Dialect covers the syntax that differs between SQL backends.
type Dialect interface {
	// Placeholder renders the n-th bind parameter, starting at 1.
	Placeholder(n int) string
	// Fold wraps a column expression in the backend's case-folding function.
	Fold(expr string) string
	// NullOrder is appended to an ORDER BY term so NULLs sort first
	// ascending and last descending on every backend.
	NullOrder(desc bool) string
	Name() string
}

// FoldFunction is the scalar function the SQLite store registers on every
// connection. It must apply the same folding as match.Fold.
const FoldFunction = "saffron_fold"

// SQLite renders ? placeholders and folds through FoldFunction.
type SQLite struct{}

// Placeholder implements Dialect.
func (SQLite) Placeholder(int) string { return "?" }

// Fold implements Dialect.
func (SQLite) Fold(expr string) string { return FoldFunction + "(" + expr + ")" }

// NullOrder implements Dialect. SQLite already sorts NULLs as the smallest value.
func (SQLite) NullOrder(bool) string { return "" }

// Name implements Dialect.
func (SQLite) Name() string { return "sqlite" }

// FoldedSuffix names the case-folded copy the PostgreSQL store keeps for
// each text column.
const FoldedSuffix = "_folded"

// Postgres renders $n placeholders. PostgreSQL has no full Unicode case
// folding, so the store writes match.Fold of every text column into a
// <column>_folded copy and Fold reads that copy instead of calling lower().
type Postgres struct{}

// Placeholder implements Dialect.
func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// Fold implements Dialect.
func (Postgres) Fold(expr string) string { return expr + FoldedSuffix }

// NullOrder implements Dialect.
func (Postgres) NullOrder(desc bool) string {
	if desc {
		return " NULLS LAST"
	}
	return " NULLS FIRST"
}

// Name implements Dialect.
func (Postgres) Name() string { return "postgres" }
