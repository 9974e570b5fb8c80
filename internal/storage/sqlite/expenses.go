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

// CreateExpense persists a new expense with its splits.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}
	if expense.Date == 0 {
		expense.Date = expense.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (id, group_id, description, amount, date, payer_id, payer_user_id, deleted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.GroupID, expense.Description, expense.Amount, expense.Date,
		expense.PayerID, expense.PayerUserID, expense.Deleted, expense.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	if err := insertSplits(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetExpense retrieves an expense by ID, including splits. Soft-deleted
// expenses are returned too, so they can be restored.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expense := &models.Expense{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, description, amount, date, payer_id, payer_user_id, deleted, created_at
		 FROM expenses WHERE id = ?`,
		expenseID,
	).Scan(&expense.ID, &expense.GroupID, &expense.Description, &expense.Amount, &expense.Date,
		&expense.PayerID, &expense.PayerUserID, &expense.Deleted, &expense.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	if err := s.loadSplits(ctx, expense); err != nil {
		return nil, err
	}
	return expense, nil
}

// UpdateExpense replaces an expense and its splits.
func (s *SQLiteStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE expenses SET group_id = ?, description = ?, amount = ?, date = ?, payer_id = ?, payer_user_id = ?
		 WHERE id = ?`,
		expense.GroupID, expense.Description, expense.Amount, expense.Date,
		expense.PayerID, expense.PayerUserID, expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("expense %s: %w", expense.ID, storage.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM expense_splits WHERE expense_id = ?", expense.ID); err != nil {
		return fmt.Errorf("failed to clear splits: %w", err)
	}
	if err := insertSplits(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SetExpenseDeleted soft-deletes or restores an expense.
func (s *SQLiteStore) SetExpenseDeleted(ctx context.Context, expenseID string, deleted bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE expenses SET deleted = ? WHERE id = ?",
		deleted, expenseID,
	)
	if err != nil {
		return fmt.Errorf("failed to set expense deleted flag: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	return nil
}

// ListExpensesByGroup retrieves all non-deleted expenses for a group.
// An empty group ID lists personal expenses.
func (s *SQLiteStore) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, description, amount, date, payer_id, payer_user_id, deleted, created_at
		 FROM expenses WHERE group_id = ? AND deleted = 0 ORDER BY date, created_at`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*models.Expense
	for rows.Next() {
		expense := &models.Expense{}
		if err := rows.Scan(&expense.ID, &expense.GroupID, &expense.Description, &expense.Amount, &expense.Date,
			&expense.PayerID, &expense.PayerUserID, &expense.Deleted, &expense.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	for _, expense := range expenses {
		if err := s.loadSplits(ctx, expense); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

func insertSplits(ctx context.Context, tx *sql.Tx, expense *models.Expense) error {
	for _, split := range expense.Splits {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO expense_splits (expense_id, user_id, amount, paid) VALUES (?, ?, ?, ?)",
			expense.ID, split.UserID, split.Amount, split.Paid,
		); err != nil {
			return fmt.Errorf("failed to insert split: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) loadSplits(ctx context.Context, expense *models.Expense) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, amount, paid FROM expense_splits WHERE expense_id = ? ORDER BY user_id",
		expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get splits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var split models.Split
		if err := rows.Scan(&split.UserID, &split.Amount, &split.Paid); err != nil {
			return fmt.Errorf("failed to scan split: %w", err)
		}
		expense.Splits = append(expense.Splits, split)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate splits: %w", err)
	}
	return nil
}
