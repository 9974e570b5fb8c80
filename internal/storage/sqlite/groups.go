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

// CreateGroup persists a new group with its members.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO groups (id, name, simplify_debts, created_at) VALUES (?, ?, ?, ?)",
		group.ID, group.Name, group.SimplifyDebts, group.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	for _, m := range group.Members {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO group_members (group_id, member_id, user_id, name) VALUES (?, ?, ?, ?)",
			group.ID, m.ID, m.UserID, m.Name,
		); err != nil {
			return fmt.Errorf("failed to insert group member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID, including members and both derived
// caches.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, simplify_debts, created_at FROM groups WHERE id = ?",
		groupID,
	).Scan(&group.ID, &group.Name, &group.SimplifyDebts, &group.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT member_id, user_id, name FROM group_members WHERE group_id = ? ORDER BY member_id",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.GroupMember
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		group.Members = append(group.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group members: %w", err)
	}

	group.UserBalances = make(map[string]float64)
	balRows, err := s.db.QueryContext(ctx,
		"SELECT member_id, amount FROM group_balances WHERE group_id = ?",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get group balances: %w", err)
	}
	defer balRows.Close()

	for balRows.Next() {
		var memberID string
		var amount float64
		if err := balRows.Scan(&memberID, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan group balance: %w", err)
		}
		group.UserBalances[memberID] = amount
	}
	if err := balRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group balances: %w", err)
	}

	debtRows, err := s.db.QueryContext(ctx,
		"SELECT from_id, to_id, amount FROM simplified_debts WHERE group_id = ? ORDER BY from_id, to_id",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get simplified debts: %w", err)
	}
	defer debtRows.Close()

	for debtRows.Next() {
		var edge models.DebtEdge
		if err := debtRows.Scan(&edge.From, &edge.To, &edge.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan simplified debt: %w", err)
		}
		group.SimplifiedDebts = append(group.SimplifiedDebts, edge)
	}
	if err := debtRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate simplified debts: %w", err)
	}

	return group, nil
}

// ListGroupIDs retrieves the IDs of all groups.
func (s *SQLiteStore) ListGroupIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM groups ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group ids: %w", err)
	}
	return ids, nil
}

// DeleteGroup removes a group. Members and derived caches cascade; expense
// and transaction records are kept, as they are soft-delete only.
func (s *SQLiteStore) DeleteGroup(ctx context.Context, groupID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM groups WHERE id = ?", groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	return nil
}

// RemoveGroupMember removes one member from a group.
func (s *SQLiteStore) RemoveGroupMember(ctx context.Context, groupID, memberID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM group_members WHERE group_id = ? AND member_id = ?",
		groupID, memberID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("member %s in group %s: %w", memberID, groupID, storage.ErrNotFound)
	}
	return nil
}

// SaveGroupCaches atomically replaces the group's balance and simplified
// debt caches with freshly computed values.
func (s *SQLiteStore) SaveGroupCaches(ctx context.Context, groupID string, balances map[string]float64, edges []models.DebtEdge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM group_balances WHERE group_id = ?", groupID); err != nil {
		return fmt.Errorf("failed to clear group balances: %w", err)
	}
	for memberID, amount := range balances {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO group_balances (group_id, member_id, amount) VALUES (?, ?, ?)",
			groupID, memberID, amount,
		); err != nil {
			return fmt.Errorf("failed to insert group balance: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM simplified_debts WHERE group_id = ?", groupID); err != nil {
		return fmt.Errorf("failed to clear simplified debts: %w", err)
	}
	for _, edge := range edges {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO simplified_debts (group_id, from_id, to_id, amount) VALUES (?, ?, ?, ?)",
			groupID, edge.From, edge.To, edge.Amount,
		); err != nil {
			return fmt.Errorf("failed to insert simplified debt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
