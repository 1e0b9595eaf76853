// Package rules applies ordered labeling rules to transactions.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/match"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/service"
)

// Engine evaluates rules locally and attaches labels through a LabelWriter.
// It keeps no state between calls.
type Engine struct {
	writer     service.LabelWriter
	evaluator  *match.Evaluator
	logger     *slog.Logger
	onProgress func(done, total int)
	retry      service.RetryOptions
}

// Config holds configuration options for the rule engine.
type Config struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// OnProgress is called after each transaction of a batch.
	OnProgress func(done, total int)
	Attach     service.RetryOptions
	Matching   match.Options
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Attach: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
		},
	}
}

// New creates a rule engine with the default configuration.
func New(writer service.LabelWriter) *Engine {
	return NewWithConfig(writer, DefaultConfig())
}

// NewWithConfig creates a rule engine with custom configuration.
func NewWithConfig(writer service.LabelWriter, config Config) *Engine {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		writer:     writer,
		evaluator:  match.NewEvaluator(config.Matching),
		logger:     logger,
		onProgress: config.OnProgress,
		retry:      config.Attach,
	}
}

// Options returns the matching options, so translated queries can agree
// with local evaluation.
func (e *Engine) Options() match.Options {
	return e.evaluator.Options()
}

// Active returns the active rules ordered by order index. Ties keep their
// input order.
func Active(rules []model.Rule) []model.Rule {
	active := make([]model.Rule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].OrderIndex < active[j].OrderIndex
	})
	return active
}

// Matches reports whether a rule's conditions all hold for txn. A rule
// with no conditions never matches.
func (e *Engine) Matches(rule model.Rule, txn model.Transaction) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	return e.evaluator.Evaluate(txn, rule.ConditionSet())
}

// Apply runs the active rules over each transaction in order. Attach
// failures are recorded in the report and do not stop the run. If ctx is
// canceled the partial report is returned with the context error.
func (e *Engine) Apply(ctx context.Context, rules []model.Rule, txns []model.Transaction) (*Report, error) {
	active := Active(rules)
	report := newReport()

	e.logger.Debug("Applying rules", "rules", len(active), "transactions", len(txns))

	for i, txn := range txns {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		report.add(e.pass(ctx, active, txn, e.attach))

		if e.onProgress != nil {
			e.onProgress(i+1, len(txns))
		}
	}

	e.logger.Info("Rule application complete",
		"transactions", report.Transactions,
		"rules_matched", report.RulesMatched,
		"labels_applied", report.LabelsApplied,
		"errors", report.Errors)

	return report, nil
}

// ApplyOne runs the active rules over a single transaction.
func (e *Engine) ApplyOne(ctx context.Context, rules []model.Rule, txn model.Transaction) (Outcome, error) {
	report, err := e.Apply(ctx, rules, []model.Transaction{txn})
	if err != nil {
		return Outcome{TransactionID: txn.ID}, err
	}
	o, _ := report.Outcome(txn.ID)
	return o, nil
}

// DryRun evaluates the active rules against txn without writing anything.
// AppliedLabels lists the labels a real run would attach, considering only
// the labels already on txn.
func (e *Engine) DryRun(rules []model.Rule, txn model.Transaction) Outcome {
	return e.pass(context.Background(), Active(rules), txn, func(context.Context, string, string) (bool, error) {
		return true, nil
	})
}

type attachFunc func(ctx context.Context, transactionID, labelID string) (bool, error)

func (e *Engine) pass(ctx context.Context, active []model.Rule, txn model.Transaction, attach attachFunc) Outcome {
	// Work on a copy so labels applied by earlier rules are visible to later ones.
	working := txn
	working.Labels = append([]model.Label(nil), txn.Labels...)

	outcome := Outcome{TransactionID: txn.ID}

	for _, rule := range active {
		if !e.Matches(rule, working) {
			continue
		}
		outcome.MatchedRules = append(outcome.MatchedRules, rule.ID)

		for _, labelID := range rule.LabelsToApply {
			if working.HasLabel(labelID) {
				continue
			}

			applied, err := attach(ctx, working.ID, labelID)
			if err != nil {
				e.logger.Error("Failed to attach label",
					"transaction_id", working.ID,
					"rule_id", rule.ID,
					"label_id", labelID,
					"error", err)
				outcome.Failures = append(outcome.Failures, Failure{RuleID: rule.ID, LabelID: labelID, Err: err})
				continue
			}

			working.Labels = append(working.Labels, model.Label{ID: labelID})
			if applied {
				outcome.AppliedLabels = append(outcome.AppliedLabels, labelID)
			}
		}
	}

	return outcome
}

// attach pre-checks the store and attaches when the label is missing. It
// reports whether this call created the association.
func (e *Engine) attach(ctx context.Context, transactionID, labelID string) (bool, error) {
	attached, err := e.writer.IsLabelAttached(ctx, transactionID, labelID)
	if err != nil {
		return false, fmt.Errorf("failed to check label: %w", err)
	}
	if attached {
		return false, nil
	}

	err = common.WithRetry(ctx, func() error {
		if err := e.writer.AttachLabel(ctx, transactionID, labelID); err != nil {
			if !common.IsRetryable(err) {
				return common.Permanent(err)
			}
			return err
		}
		return nil
	}, e.retry)
	if err != nil {
		return false, fmt.Errorf("failed to attach label: %w", err)
	}

	e.logger.Debug("Attached label", "transaction_id", transactionID, "label_id", labelID)
	return true, nil
}
