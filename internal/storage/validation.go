// Package storage provides the SQLite persistence layer for saffron.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidLabel       = common.ErrInvalidLabel
	ErrLabelInUse         = common.ErrLabelInUse
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i, txn := range transactions {
		if err := validateTransaction(&txn); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction. Empty text fields are
// allowed; they simply never match a text condition.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if math.IsNaN(txn.Amount) || math.IsInf(txn.Amount, 0) {
		return fmt.Errorf("%w: amount is not finite", ErrInvalidTransaction)
	}
	if txn.ID == "" && txn.Description == "" && txn.Identifier == "" {
		return fmt.Errorf("%w: missing ID, description and identifier", ErrInvalidTransaction)
	}
	return nil
}

// validateLabel validates a label before it is written.
func validateLabel(label *model.Label) error {
	if label == nil {
		return fmt.Errorf("%w: label", ErrNilParameter)
	}
	if strings.TrimSpace(label.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidLabel)
	}
	return nil
}
