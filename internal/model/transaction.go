// Package model defines the core data structures for the saffron application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// TransactionStatus tracks where a transaction sits in the inbox.
type TransactionStatus string

// Inbox status constants.
const (
	StatusPending  TransactionStatus = "pending"
	StatusReviewed TransactionStatus = "reviewed"
	StatusArchived TransactionStatus = "archived"
)

// Transaction represents a single financial transaction in the inbox.
type Transaction struct {
	Date        time.Time         `json:"date"`
	CreatedAt   time.Time         `json:"created_at"`
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Identifier  string            `json:"identifier"` // Bank reference, check number or similar
	Source      string            `json:"source"`     // Account or import origin
	Status      TransactionStatus `json:"status"`
	Labels      []Label           `json:"labels"`
	Amount      float64           `json:"amount"`
}

// HasLabel reports whether the transaction carries the label with the given id.
func (t *Transaction) HasLabel(labelID string) bool {
	for _, l := range t.Labels {
		if l.ID == labelID {
			return true
		}
	}
	return false
}

// LabelIDs returns the ids of all attached labels in attachment order.
func (t *Transaction) LabelIDs() []string {
	ids := make([]string, 0, len(t.Labels))
	for _, l := range t.Labels {
		ids = append(ids, l.ID)
	}
	return ids
}

// GenerateID creates a stable id for duplicate detection when the source
// does not supply one.
func (t *Transaction) GenerateID() string {
	data := fmt.Sprintf("%s:%.2f:%s:%s:%s",
		t.Date.UTC().Format("2006-01-02"),
		t.Amount,
		t.Description,
		t.Identifier,
		t.Source)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:16])
}
