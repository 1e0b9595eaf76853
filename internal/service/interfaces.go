// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/predicate"
)

// RecordReader fetches transactions with a store-native filter.
type RecordReader interface {
	// FetchTransactions returns transactions selected by pred, ordered by
	// order with the id as the final tiebreaker. A limit of zero means no limit.
	// Returned transactions carry their attached labels.
	FetchTransactions(ctx context.Context, pred predicate.Predicate, order []predicate.Order, limit int) ([]model.Transaction, error)
}

// LabelWriter attaches labels to transactions.
type LabelWriter interface {
	// AttachLabel is idempotent: attaching an already attached label succeeds.
	AttachLabel(ctx context.Context, transactionID, labelID string) error
	IsLabelAttached(ctx context.Context, transactionID, labelID string) (bool, error)
}

// RuleSource provides the active rule set.
type RuleSource interface {
	// ListActiveRules returns active rules ordered by order index, then id.
	ListActiveRules(ctx context.Context) ([]model.Rule, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	RecordReader
	LabelWriter
	RuleSource

	// Transaction operations
	SaveTransactions(ctx context.Context, transactions []model.Transaction) ([]model.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	SetTransactionStatus(ctx context.Context, id string, status model.TransactionStatus) error
	DetachLabel(ctx context.Context, transactionID, labelID string) error

	// Label operations
	CreateLabel(ctx context.Context, name, color string) (*model.Label, error)
	GetLabel(ctx context.Context, id string) (*model.Label, error)
	GetLabelByName(ctx context.Context, name string) (*model.Label, error)
	ListLabels(ctx context.Context) ([]model.Label, error)
	UpdateLabel(ctx context.Context, label *model.Label) error
	DeleteLabel(ctx context.Context, id string) error

	// Rule operations
	CreateRule(ctx context.Context, rule *model.Rule) error
	GetRule(ctx context.Context, id string) (*model.Rule, error)
	ListRules(ctx context.Context) ([]model.Rule, error)
	UpdateRule(ctx context.Context, rule *model.Rule) error
	SetRuleActive(ctx context.Context, id string, active bool) error
	ReorderRules(ctx context.Context, ids []string) error
	DeleteRule(ctx context.Context, id string) error
	NextRuleOrderIndex(ctx context.Context) (int, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
