package match

import (
	"github.com/Veraticus/saffron/internal/model"
)

// Options tunes evaluation. The zero value gives exact semantics.
type Options struct {
	// AmountTolerance widens amount equality to |a-b| <= tolerance when positive.
	AmountTolerance float64
}

// Evaluator decides whether a transaction satisfies a condition set.
// It holds no per-call state and is safe for concurrent use.
type Evaluator struct {
	opts Options
}

// NewEvaluator creates an evaluator with the given options.
func NewEvaluator(opts Options) *Evaluator {
	if opts.AmountTolerance < 0 {
		opts.AmountTolerance = 0
	}
	return &Evaluator{opts: opts}
}

// Options returns the evaluator's options.
func (e *Evaluator) Options() Options {
	return e.opts
}

var defaultEvaluator = NewEvaluator(Options{})

// Evaluate matches a transaction against a set using exact semantics.
func Evaluate(txn model.Transaction, set model.ConditionSet) bool {
	return defaultEvaluator.Evaluate(txn, set)
}

// Evaluate matches a transaction against a set. An empty set matches every
// transaction under either conjunction.
func (e *Evaluator) Evaluate(txn model.Transaction, set model.ConditionSet) bool {
	if len(set.Conditions) == 0 {
		return true
	}

	if set.Mode() == model.ConjunctionOr {
		for _, c := range set.Conditions {
			if e.Match(&txn, c) {
				return true
			}
		}
		return false
	}

	for _, c := range set.Conditions {
		if !e.Match(&txn, c) {
			return false
		}
	}
	return true
}

// Match tests a single condition. Conditions that fail validation never match.
func (e *Evaluator) Match(txn *model.Transaction, c model.Condition) bool {
	if txn == nil || !Satisfiable(c) {
		return false
	}
	return registry[c.Field].eval(e, txn, c.Operator, c.Value)
}
