package rules

import (
	"fmt"
	"strings"
)

// Failure records a label that matched but could not be attached.
type Failure struct {
	Err     error
	RuleID  string
	LabelID string
}

// Outcome is the result of one rule pass over one transaction.
type Outcome struct {
	TransactionID string
	MatchedRules  []string
	AppliedLabels []string
	Failures      []Failure
}

// Matched reports whether any rule matched.
func (o Outcome) Matched() bool {
	return len(o.MatchedRules) > 0
}

// Report summarizes an application run, keyed by transaction id.
type Report struct {
	outcomes      map[string]*Outcome
	order         []string
	Transactions  int
	RulesMatched  int
	LabelsApplied int
	Errors        int
}

func newReport() *Report {
	return &Report{outcomes: make(map[string]*Outcome)}
}

func (r *Report) add(o Outcome) {
	r.Transactions++
	r.RulesMatched += len(o.MatchedRules)
	r.LabelsApplied += len(o.AppliedLabels)
	r.Errors += len(o.Failures)

	existing, ok := r.outcomes[o.TransactionID]
	if !ok {
		stored := o
		r.outcomes[o.TransactionID] = &stored
		r.order = append(r.order, o.TransactionID)
		return
	}
	existing.MatchedRules = append(existing.MatchedRules, o.MatchedRules...)
	existing.AppliedLabels = append(existing.AppliedLabels, o.AppliedLabels...)
	existing.Failures = append(existing.Failures, o.Failures...)
}

// Outcome returns the result for a transaction id.
func (r *Report) Outcome(transactionID string) (Outcome, bool) {
	o, ok := r.outcomes[transactionID]
	if !ok {
		return Outcome{}, false
	}
	return *o, true
}

// Outcomes returns every result in processing order.
func (r *Report) Outcomes() []Outcome {
	out := make([]Outcome, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.outcomes[id])
	}
	return out
}

// Summary renders the aggregate counts in one line.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s processed, %d %s matched, %d %s applied",
		r.Transactions, plural(r.Transactions, "transaction", "transactions"),
		r.RulesMatched, plural(r.RulesMatched, "rule", "rules"),
		r.LabelsApplied, plural(r.LabelsApplied, "label", "labels"))
	if r.Errors > 0 {
		fmt.Fprintf(&b, ", %d %s", r.Errors, plural(r.Errors, "error", "errors"))
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
