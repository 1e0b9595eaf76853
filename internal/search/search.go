// Package search runs advanced filters against a record store.
//
// A filter is pruned, translated into a store predicate, fetched, and then
// re-validated record by record with the local evaluator. The store query and
// the evaluator share semantics, so re-validation normally keeps everything;
// a record the evaluator rejects is drift and is left out of the result.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/saffron/internal/match"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/predicate"
	"github.com/Veraticus/saffron/internal/service"
)

// DefaultOrder lists the newest transactions first.
var DefaultOrder = []predicate.Order{{Column: "date", Desc: true}}

// Query controls ordering and size of a search.
type Query struct {
	// Order defaults to DefaultOrder. The id is always the final tiebreaker.
	Order []predicate.Order
	// Limit of zero returns every match.
	Limit int
}

// Result is the outcome of a search.
type Result struct {
	Transactions []model.Transaction
	// Dropped lists draft conditions removed before the query ran.
	Dropped []match.Dropped
	// Drift lists ids the store returned that the local evaluator rejected.
	Drift []string
}

// Config holds configuration options for the search service.
type Config struct {
	Logger   *slog.Logger
	Table    *predicate.TableRef
	Matching match.Options
}

// Service finds transactions matching a condition set.
type Service struct {
	reader     service.RecordReader
	evaluator  *match.Evaluator
	translator *predicate.Translator
	logger     *slog.Logger
}

// New creates a search service with exact matching semantics.
func New(reader service.RecordReader) *Service {
	return NewWithConfig(reader, Config{})
}

// NewWithConfig creates a search service with custom configuration.
func NewWithConfig(reader service.RecordReader, config Config) *Service {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ref := predicate.TransactionsTable()
	if config.Table != nil {
		ref = *config.Table
	}
	return &Service{
		reader:     reader,
		evaluator:  match.NewEvaluator(config.Matching),
		translator: predicate.NewTranslator(ref, config.Matching),
		logger:     logger,
	}
}

// Find returns the transactions matching set.
func (s *Service) Find(ctx context.Context, set model.ConditionSet, q Query) (*Result, error) {
	pruned, dropped := match.Prune(set)
	for _, d := range dropped {
		s.logger.Debug("dropped filter condition",
			"index", d.Index,
			"condition", d.Condition.String(),
			"reason", d.Err)
	}

	translation := s.translator.Translate(pruned)

	order := q.Order
	if len(order) == 0 {
		order = DefaultOrder
	}

	fetched, err := s.reader.FetchTransactions(ctx, translation.Predicate, order, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	result := &Result{
		Dropped:      dropped,
		Transactions: make([]model.Transaction, 0, len(fetched)),
	}
	for _, txn := range fetched {
		if !s.evaluator.Evaluate(txn, pruned) {
			result.Drift = append(result.Drift, txn.ID)
			s.logger.Warn("store returned a transaction the filter rejects",
				"transaction_id", txn.ID,
				"conditions", len(pruned.Conditions))
			continue
		}
		result.Transactions = append(result.Transactions, txn)
	}

	return result, nil
}
