package testutil

import (
	"time"

	"github.com/Veraticus/saffron/internal/model"
)

// TransactionBuilder builds transactions for tests.
type TransactionBuilder struct {
	txn model.Transaction
}

// NewTransaction starts a pending transaction with the given id.
func NewTransaction(id string) *TransactionBuilder {
	return &TransactionBuilder{txn: model.Transaction{ID: id, Status: model.StatusPending}}
}

// Description sets the description.
func (b *TransactionBuilder) Description(s string) *TransactionBuilder {
	b.txn.Description = s
	return b
}

// Amount sets the amount.
func (b *TransactionBuilder) Amount(a float64) *TransactionBuilder {
	b.txn.Amount = a
	return b
}

// On sets the date to noon UTC of the given day.
func (b *TransactionBuilder) On(year int, month time.Month, day int) *TransactionBuilder {
	b.txn.Date = time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	return b
}

// At sets the exact date.
func (b *TransactionBuilder) At(t time.Time) *TransactionBuilder {
	b.txn.Date = t
	return b
}

// Identifier sets the identifier.
func (b *TransactionBuilder) Identifier(s string) *TransactionBuilder {
	b.txn.Identifier = s
	return b
}

// Source sets the source.
func (b *TransactionBuilder) Source(s string) *TransactionBuilder {
	b.txn.Source = s
	return b
}

// Status sets the status.
func (b *TransactionBuilder) Status(s model.TransactionStatus) *TransactionBuilder {
	b.txn.Status = s
	return b
}

// Labels attaches labels by id. Only in-memory tests see these; the store
// ignores labels on save.
func (b *TransactionBuilder) Labels(ids ...string) *TransactionBuilder {
	for _, id := range ids {
		b.txn.Labels = append(b.txn.Labels, model.Label{ID: id})
	}
	return b
}

// Build returns the transaction.
func (b *TransactionBuilder) Build() model.Transaction {
	txn := b.txn
	txn.Labels = append([]model.Label(nil), b.txn.Labels...)
	return txn
}

// RuleBuilder builds active rules for tests.
type RuleBuilder struct {
	rule model.Rule
}

// NewRule starts an active rule at order index zero.
func NewRule(name string) *RuleBuilder {
	return &RuleBuilder{rule: model.Rule{Name: name, IsActive: true}}
}

// ID sets the rule id. Stored rules get a generated id when unset.
func (b *RuleBuilder) ID(id string) *RuleBuilder {
	b.rule.ID = id
	return b
}

// When adds a condition.
func (b *RuleBuilder) When(field model.FieldKind, op model.Operator, value model.Value) *RuleBuilder {
	b.rule.Conditions = append(b.rule.Conditions, model.Condition{Field: field, Operator: op, Value: value})
	return b
}

// Apply adds labels to apply.
func (b *RuleBuilder) Apply(labelIDs ...string) *RuleBuilder {
	b.rule.LabelsToApply = append(b.rule.LabelsToApply, labelIDs...)
	return b
}

// Order sets the order index.
func (b *RuleBuilder) Order(i int) *RuleBuilder {
	b.rule.OrderIndex = i
	return b
}

// Inactive disables the rule.
func (b *RuleBuilder) Inactive() *RuleBuilder {
	b.rule.IsActive = false
	return b
}

// Build returns the rule.
func (b *RuleBuilder) Build() model.Rule {
	rule := b.rule
	rule.Conditions = append([]model.Condition(nil), b.rule.Conditions...)
	rule.LabelsToApply = append([]string(nil), b.rule.LabelsToApply...)
	return rule
}
