package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// CreateTransaction persists a new settlement transaction.
func (s *SQLiteStore) CreateTransaction(ctx context.Context, transaction *models.Transaction) error {
	if transaction.ID == "" {
		transaction.ID = uuid.New().String()
	}
	if transaction.CreatedAt == 0 {
		transaction.CreatedAt = time.Now().Unix()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, group_id, from_id, to_id, amount, note, created_by, deleted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		transaction.ID, transaction.GroupID, transaction.FromID, transaction.ToID,
		transaction.Amount, transaction.Note, transaction.CreatedBy, transaction.Deleted, transaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a transaction by ID, soft-deleted or not.
func (s *SQLiteStore) GetTransaction(ctx context.Context, txID string) (*models.Transaction, error) {
	transaction := &models.Transaction{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, from_id, to_id, amount, note, created_by, deleted, created_at
		 FROM transactions WHERE id = ?`,
		txID,
	).Scan(&transaction.ID, &transaction.GroupID, &transaction.FromID, &transaction.ToID,
		&transaction.Amount, &transaction.Note, &transaction.CreatedBy, &transaction.Deleted, &transaction.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s: %w", txID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return transaction, nil
}

// SetTransactionDeleted soft-deletes or restores a transaction.
func (s *SQLiteStore) SetTransactionDeleted(ctx context.Context, txID string, deleted bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET deleted = ? WHERE id = ?",
		deleted, txID,
	)
	if err != nil {
		return fmt.Errorf("failed to set transaction deleted flag: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("transaction %s: %w", txID, storage.ErrNotFound)
	}
	return nil
}

// ListTransactionsByGroup retrieves all non-deleted transactions for a
// group. An empty group ID lists personal settlements.
func (s *SQLiteStore) ListTransactionsByGroup(ctx context.Context, groupID string) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, from_id, to_id, amount, note, created_by, deleted, created_at
		 FROM transactions WHERE group_id = ? AND deleted = 0 ORDER BY created_at`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		transaction := &models.Transaction{}
		if err := rows.Scan(&transaction.ID, &transaction.GroupID, &transaction.FromID, &transaction.ToID,
			&transaction.Amount, &transaction.Note, &transaction.CreatedBy, &transaction.Deleted, &transaction.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return transactions, nil
}
