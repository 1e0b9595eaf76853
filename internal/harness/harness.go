// Package harness dry-runs filters and rules without changing any state.
package harness

import (
	"context"

	"github.com/Veraticus/saffron/internal/match"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/Veraticus/saffron/internal/search"
)

// DefaultLimit bounds the store fetch of TestAgainstStore.
const DefaultLimit = 5

// Finder runs a search. search.Service implements it.
type Finder interface {
	Find(ctx context.Context, set model.ConditionSet, q search.Query) (*search.Result, error)
}

// SampleResult is the outcome of testing a set against one record.
type SampleResult struct {
	Dropped []match.Dropped
	Matches bool
}

// StoreResult is the outcome of testing a set against the store.
type StoreResult struct {
	Error   string
	Results []model.Transaction
	Dropped []match.Dropped
	Drift   []string
	Matches bool
}

// RuleResult is the outcome of dry-running rules against one record.
type RuleResult struct {
	// Labels lists the labels a real run would newly attach.
	Labels  []string
	Rules   []string
	Matches bool
}

// TestAgainstSample evaluates set against sample in memory. Draft
// conditions that cannot be evaluated are dropped first, as a filter
// builder would.
func TestAgainstSample(set model.ConditionSet, sample model.Transaction) SampleResult {
	pruned, dropped := match.Prune(set)
	return SampleResult{
		Matches: match.Evaluate(sample, pruned),
		Dropped: dropped,
	}
}

// Harness tests filters against a store and rules against samples.
type Harness struct {
	finder Finder
	engine *rules.Engine
	limit  int
}

// New creates a harness. A limit of zero or less uses DefaultLimit.
func New(finder Finder, engine *rules.Engine, limit int) *Harness {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Harness{finder: finder, engine: engine, limit: limit}
}

// TestAgainstStore runs set against the store with a small limit. Fetch
// failures are reported in Error rather than returned.
func (h *Harness) TestAgainstStore(ctx context.Context, set model.ConditionSet) StoreResult {
	result, err := h.finder.Find(ctx, set, search.Query{Limit: h.limit})
	if err != nil {
		return StoreResult{Error: err.Error()}
	}
	return StoreResult{
		Matches: len(result.Transactions) > 0,
		Results: result.Transactions,
		Dropped: result.Dropped,
		Drift:   result.Drift,
	}
}

// TestRule dry-runs a single rule against sample. The rule is tested even
// when it is inactive.
func (h *Harness) TestRule(rule model.Rule, sample model.Transaction) RuleResult {
	rule.IsActive = true
	return h.TestRules([]model.Rule{rule}, sample)
}

// TestRules dry-runs the active rules in order against sample, with labels
// from earlier rules visible to later ones.
func (h *Harness) TestRules(set []model.Rule, sample model.Transaction) RuleResult {
	outcome := h.engine.DryRun(set, sample)
	return RuleResult{
		Matches: outcome.Matched(),
		Rules:   outcome.MatchedRules,
		Labels:  outcome.AppliedLabels,
	}
}
