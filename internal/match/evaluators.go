package match

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/Veraticus/saffron/internal/model"
)

// Fold returns the Unicode case-folded form of s. Text comparisons fold both
// sides, and the SQL backends fold columns with the same function so store
// queries agree with in-memory matches.
func Fold(s string) string {
	// A Caser keeps state, so each call gets its own.
	return cases.Fold().String(s)
}

// matchText never matches a blank record value.
func matchText(fieldValue string, op model.Operator, needle string) bool {
	if strings.TrimSpace(fieldValue) == "" {
		return false
	}

	haystack := Fold(fieldValue)
	needle = Fold(needle)

	switch op {
	case model.OpEquals:
		return haystack == needle
	case model.OpContains:
		return strings.Contains(haystack, needle)
	case model.OpStartsWith:
		return strings.HasPrefix(haystack, needle)
	case model.OpEndsWith:
		return strings.HasSuffix(haystack, needle)
	}
	return false
}

func (e *Evaluator) matchNumber(amount float64, op model.Operator, v model.Value) bool {
	if op == model.OpBetween {
		lo, hi, ok := parseNumberBounds(v)
		if !ok {
			return false
		}
		return amount >= lo && amount <= hi
	}

	n, err := ParseNumber(v.First())
	if err != nil {
		return false
	}

	switch op {
	case model.OpEquals:
		if tol := e.opts.AmountTolerance; tol > 0 {
			return amount >= n-tol && amount <= n+tol
		}
		return amount == n
	case model.OpGreaterThan:
		return amount > n
	case model.OpLessThan:
		return amount < n
	}
	return false
}

func parseNumberBounds(v model.Value) (lo, hi float64, ok bool) {
	rawLo, rawHi, ok := v.Bounds()
	if !ok {
		return 0, 0, false
	}
	lo, errLo := ParseNumber(rawLo)
	hi, errHi := ParseNumber(rawHi)
	if errLo != nil || errHi != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// matchDate compares calendar days for equals and full instants otherwise.
func matchDate(recordDate time.Time, op model.Operator, v model.Value) bool {
	if recordDate.IsZero() {
		return false
	}
	d := recordDate.UTC()

	if op == model.OpBetween {
		rawLo, rawHi, ok := v.Bounds()
		if !ok {
			return false
		}
		lo, errLo := ParseDate(rawLo)
		hi, errHi := ParseDate(rawHi)
		if errLo != nil || errHi != nil {
			return false
		}
		return !d.Before(lo) && !d.After(hi)
	}

	target, err := ParseDate(v.First())
	if err != nil {
		return false
	}

	switch op {
	case model.OpEquals:
		return StartOfDay(d).Equal(StartOfDay(target))
	case model.OpGreaterThan:
		return d.After(target)
	case model.OpLessThan:
		return d.Before(target)
	}
	return false
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, day := t.UTC().Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func matchStatus(status string, op model.Operator, v model.Value) bool {
	found := false
	for _, want := range v.Items() {
		if status == want {
			found = true
			break
		}
	}

	switch op {
	case model.OpEquals:
		return found
	case model.OpNotIn:
		return !found
	}
	return false
}

func matchLabels(txn *model.Transaction, op model.Operator, v model.Value) bool {
	found := false
	for _, id := range v.Items() {
		if txn.HasLabel(id) {
			found = true
			break
		}
	}

	switch op {
	case model.OpEquals:
		return found
	case model.OpNotIn:
		return !found
	}
	return false
}
