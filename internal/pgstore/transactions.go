package pgstore

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/match"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/predicate"
	"github.com/Veraticus/saffron/internal/querysql"
)

var transactionColumns = []string{
	"id", "description", "amount", "date", "identifier", "source", "status", "created_at",
}

// SaveTransactions inserts transactions, skipping ids that already exist,
// and returns the ones that were inserted.
func (s *Store) SaveTransactions(ctx context.Context, transactions []model.Transaction) ([]model.Transaction, error) {
	if len(transactions) == 0 {
		return nil, nil
	}
	for i, txn := range transactions {
		if math.IsNaN(txn.Amount) || math.IsInf(txn.Amount, 0) {
			return nil, fmt.Errorf("transaction at index %d: amount is not finite", i)
		}
	}

	var inserted []model.Transaction
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		prepared := make([]model.Transaction, 0, len(transactions))
		now := time.Now().UTC()

		for _, txn := range transactions {
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
			txn.Labels = nil
			prepared = append(prepared, txn)

			batch.Queue(`
				INSERT INTO transactions (
					id, description, amount, date, identifier, source, status, created_at,
					description_folded, identifier_folded, source_folded
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				ON CONFLICT (id) DO NOTHING
			`, txn.ID, txn.Description, txn.Amount, unixOrNil(txn.Date),
				txn.Identifier, txn.Source, string(txn.Status), txn.CreatedAt,
				match.Fold(txn.Description), match.Fold(txn.Identifier), match.Fold(txn.Source))
		}

		results := tx.SendBatch(ctx, batch)
		for _, txn := range prepared {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, classify(err))
			}
			if tag.RowsAffected() == 1 {
				inserted = append(inserted, txn)
			}
		}
		return results.Close()
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// GetTransaction retrieves a transaction and its labels by id.
func (s *Store) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
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
func (s *Store) FetchTransactions(ctx context.Context, pred predicate.Predicate, order []predicate.Order, limit int) ([]model.Transaction, error) {
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

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", classify(err))
	}
	txns, err := pgx.CollectRows(rows, scanTransaction)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transactions: %w", err)
	}

	if err := s.loadLabels(ctx, txns); err != nil {
		return nil, err
	}
	return txns, nil
}

func scanTransaction(row pgx.CollectableRow) (model.Transaction, error) {
	var txn model.Transaction
	var status string
	var date *int64

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
		return model.Transaction{}, err
	}

	txn.Status = model.TransactionStatus(status)
	if date != nil {
		txn.Date = time.Unix(*date, 0).UTC()
	}
	txn.CreatedAt = txn.CreatedAt.UTC()
	return txn, nil
}

func (s *Store) loadLabels(ctx context.Context, txns []model.Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	index := make(map[string]int, len(txns))
	ids := make([]string, 0, len(txns))
	for i, txn := range txns {
		index[txn.ID] = i
		ids = append(ids, txn.ID)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT tl.transaction_id, l.id, l.name, l.color, l.created_at
		FROM transaction_labels tl
		JOIN labels l ON l.id = tl.label_id
		WHERE tl.transaction_id = ANY($1)
		ORDER BY tl.attached_at ASC, l.id ASC
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to load labels: %w", classify(err))
	}
	defer rows.Close()

	for rows.Next() {
		var transactionID string
		var label model.Label
		if err := rows.Scan(&transactionID, &label.ID, &label.Name, &label.Color, &label.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan label: %w", err)
		}
		i := index[transactionID]
		txns[i].Labels = append(txns[i].Labels, label)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating labels: %w", err)
	}
	return nil
}

// backfillFolded fills the folded text columns of rows written before they
// existed.
func (s *Store) backfillFolded(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, description, identifier, source FROM transactions
		WHERE (description <> '' AND description_folded = '')
		   OR (identifier <> '' AND identifier_folded = '')
		   OR (source <> '' AND source_folded = '')
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to find unfolded transactions: %w", classify(err))
	}
	type unfolded struct{ id, description, identifier, source string }
	pending, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (unfolded, error) {
		var u unfolded
		err := row.Scan(&u.id, &u.description, &u.identifier, &u.source)
		return u, err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan unfolded transactions: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, u := range pending {
		batch.Queue(`
			UPDATE transactions
			SET description_folded = $2, identifier_folded = $3, source_folded = $4
			WHERE id = $1
		`, u.id, match.Fold(u.description), match.Fold(u.identifier), match.Fold(u.source))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to backfill folded text: %w", classify(err))
	}
	return len(pending), nil
}

// SetTransactionStatus updates a transaction's status.
func (s *Store) SetTransactionStatus(ctx context.Context, id string, status model.TransactionStatus) error {
	tag, err := s.pool.Exec(ctx, "UPDATE transactions SET status = $1 WHERE id = $2", string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", classify(err))
	}
	return expectOne(tag, "transaction "+id)
}

// AttachLabel attaches a label to a transaction. The primary key on the
// join table keeps concurrent attaches from duplicating the association.
func (s *Store) AttachLabel(ctx context.Context, transactionID, labelID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transaction_labels (transaction_id, label_id, attached_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (transaction_id, label_id) DO NOTHING
	`, transactionID, labelID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to attach label %s to %s: %w", labelID, transactionID, classify(err))
	}
	return nil
}

// IsLabelAttached reports whether the label is attached to the transaction.
func (s *Store) IsLabelAttached(ctx context.Context, transactionID, labelID string) (bool, error) {
	var attached bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM transaction_labels WHERE transaction_id = $1 AND label_id = $2)
	`, transactionID, labelID).Scan(&attached)
	if err != nil {
		return false, fmt.Errorf("failed to check label: %w", classify(err))
	}
	return attached, nil
}

// DetachLabel removes a label from a transaction.
func (s *Store) DetachLabel(ctx context.Context, transactionID, labelID string) error {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM transaction_labels WHERE transaction_id = $1 AND label_id = $2",
		transactionID, labelID)
	if err != nil {
		return fmt.Errorf("failed to detach label: %w", classify(err))
	}
	return expectOne(tag, "label "+labelID+" on transaction "+transactionID)
}

func unixOrNil(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	u := t.Unix()
	return &u
}
