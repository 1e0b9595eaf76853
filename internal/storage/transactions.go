package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/predicate"
	"github.com/Veraticus/saffron/internal/querysql"
)

var transactionColumns = []string{
	"id", "description", "amount", "date", "identifier", "source", "status", "created_at",
}

// labelChunk bounds the number of bind parameters in one label lookup.
const labelChunk = 500

// SaveTransactions inserts transactions, ignoring ids that already exist.
// It returns the transactions that were newly inserted, with ids and
// defaults filled in.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateTransactions(transactions); err != nil {
		return nil, err
	}

	var inserted []model.Transaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO transactions (
				id, description, amount, date, identifier, source, status, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		now := time.Now().UTC()
		for _, txn := range transactions {
			// Dates are stored as whole seconds.
			if !txn.Date.IsZero() {
				txn.Date = time.Unix(txn.Date.Unix(), 0).UTC()
			}
			if txn.ID == "" {
				txn.ID = txn.GenerateID()
			}
			if txn.Status == "" {
				txn.Status = model.StatusPending
			}
			txn.CreatedAt = now

			result, err := stmt.ExecContext(ctx,
				txn.ID,
				txn.Description,
				txn.Amount,
				unixOrNull(txn.Date),
				txn.Identifier,
				txn.Source,
				string(txn.Status),
				txn.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, classify(err))
			}

			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if affected == 1 {
				txn.Labels = nil
				inserted = append(inserted, txn)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return inserted, nil
}

// GetTransaction retrieves a transaction and its labels by id.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	txns, err := s.FetchTransactions(ctx, predicate.Compare{Column: "id", Op: predicate.OpEq, Value: id}, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return &txns[0], nil
}

// FetchTransactions runs a translated predicate against the transactions table.
func (s *SQLiteStorage) FetchTransactions(ctx context.Context, pred predicate.Predicate, order []predicate.Order, limit int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query, args, err := s.compiler.Compile(querysql.Select{
		Table:     "transactions",
		KeyColumn: "id",
		Columns:   transactionColumns,
		Where:     pred,
		OrderBy:   order,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", classify(err))
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	if err := s.loadLabels(ctx, txns); err != nil {
		return nil, err
	}
	return txns, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (model.Transaction, error) {
	var txn model.Transaction
	var status string
	var date sql.NullInt64

	err := row.Scan(
		&txn.ID,
		&txn.Description,
		&txn.Amount,
		&date,
		&txn.Identifier,
		&txn.Source,
		&status,
		&txn.CreatedAt,
	)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("failed to scan transaction: %w", err)
	}

	txn.Status = model.TransactionStatus(status)
	if date.Valid {
		txn.Date = time.Unix(date.Int64, 0).UTC()
	}
	return txn, nil
}

// loadLabels fills the Labels of each transaction in attachment order.
func (s *SQLiteStorage) loadLabels(ctx context.Context, txns []model.Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	index := make(map[string]int, len(txns))
	for i := range txns {
		index[txns[i].ID] = i
	}

	for start := 0; start < len(txns); start += labelChunk {
		end := min(start+labelChunk, len(txns))

		ids := make([]any, 0, end-start)
		for _, txn := range txns[start:end] {
			ids = append(ids, txn.ID)
		}

		query := `
			SELECT tl.transaction_id, l.id, l.name, l.color, l.created_at
			FROM transaction_labels tl
			JOIN labels l ON l.id = tl.label_id
			WHERE tl.transaction_id IN (` + placeholders(len(ids)) + `)
			ORDER BY tl.attached_at ASC, l.id ASC
		`
		rows, err := s.db.QueryContext(ctx, query, ids...)
		if err != nil {
			return fmt.Errorf("failed to load labels: %w", classify(err))
		}

		for rows.Next() {
			var transactionID string
			var label model.Label
			if err := rows.Scan(&transactionID, &label.ID, &label.Name, &label.Color, &label.CreatedAt); err != nil {
				_ = rows.Close()
				return fmt.Errorf("failed to scan label: %w", err)
			}
			i := index[transactionID]
			txns[i].Labels = append(txns[i].Labels, label)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return fmt.Errorf("error iterating labels: %w", err)
		}
	}
	return nil
}

// SetTransactionStatus updates a transaction's status.
func (s *SQLiteStorage) SetTransactionStatus(ctx context.Context, id string, status model.TransactionStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateString(string(status), "status"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, "UPDATE transactions SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", classify(err))
	}
	return expectOneRow(result, "transaction "+id)
}

// AttachLabel attaches a label to a transaction. Attaching an already
// attached label is a no-op; the primary key on the join table backs this
// even when two runs race.
func (s *SQLiteStorage) AttachLabel(ctx context.Context, transactionID, labelID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}
	if err := validateString(labelID, "labelID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO transaction_labels (transaction_id, label_id, attached_at)
		VALUES (?, ?, ?)
	`, transactionID, labelID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to attach label %s to %s: %w", labelID, transactionID, classify(err))
	}
	return nil
}

// IsLabelAttached reports whether the label is attached to the transaction.
func (s *SQLiteStorage) IsLabelAttached(ctx context.Context, transactionID, labelID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}

	var attached bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM transaction_labels WHERE transaction_id = ? AND label_id = ?)
	`, transactionID, labelID).Scan(&attached)
	if err != nil {
		return false, fmt.Errorf("failed to check label: %w", classify(err))
	}
	return attached, nil
}

// DetachLabel removes a label from a transaction.
func (s *SQLiteStorage) DetachLabel(ctx context.Context, transactionID, labelID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM transaction_labels WHERE transaction_id = ? AND label_id = ?",
		transactionID, labelID)
	if err != nil {
		return fmt.Errorf("failed to detach label: %w", classify(err))
	}
	return expectOneRow(result, "label "+labelID+" on transaction "+transactionID)
}

func unixOrNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func expectOneRow(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, common.ErrNotFound)
	}
	return nil
}

// isNoRows reports whether err is sql.ErrNoRows.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
