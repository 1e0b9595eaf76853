package rules

import (
	"context"
	"fmt"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/predicate"
	"github.com/Veraticus/saffron/internal/service"
)

// Runner wires the engine to its trigger points: a manual pass over every
// pending transaction and an event-driven pass over newly inserted ones.
type Runner struct {
	rules  service.RuleSource
	reader service.RecordReader
	engine *Engine
	ref    predicate.TableRef
}

// NewRunner creates a runner over the transactions table layout.
func NewRunner(rules service.RuleSource, reader service.RecordReader, engine *Engine) *Runner {
	return &Runner{
		rules:  rules,
		reader: reader,
		engine: engine,
		ref:    predicate.TransactionsTable(),
	}
}

// PendingFilter selects transactions awaiting review.
func PendingFilter() model.ConditionSet {
	return model.ConditionSet{
		Conjunction: model.ConjunctionAnd,
		Conditions: []model.Condition{
			{Field: model.FieldStatus, Operator: model.OpEquals, Value: model.Scalar(string(model.StatusPending))},
		},
	}
}

// ApplyPending applies the active rules to every pending transaction,
// oldest first.
func (r *Runner) ApplyPending(ctx context.Context) (*Report, error) {
	active, err := r.rules.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}

	tr := predicate.NewTranslator(r.ref, r.engine.Options()).Translate(PendingFilter())
	txns, err := r.reader.FetchTransactions(ctx, tr.Predicate, []predicate.Order{{Column: r.ref.Columns[model.FieldDate]}}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending transactions: %w", err)
	}

	return r.engine.Apply(ctx, active, txns)
}

// OnInserted applies the active rules to transactions that were just stored.
func (r *Runner) OnInserted(ctx context.Context, txns []model.Transaction) (*Report, error) {
	if len(txns) == 0 {
		return newReport(), nil
	}

	active, err := r.rules.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}

	return r.engine.Apply(ctx, active, txns)
}
