package sqlite

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mmynk/splitledger/internal/models"
)

// ReplaceBreakdownEntry upserts one owner/friend/group breakdown entry.
// Entries within a cent of zero are removed instead of stored.
func (s *SQLiteStore) ReplaceBreakdownEntry(ctx context.Context, ownerID, friendID, groupID string, amount float64) error {
	if math.Abs(amount) < 0.01 {
		_, err := s.db.ExecContext(ctx,
			"DELETE FROM friend_balances WHERE owner_id = ? AND friend_id = ? AND group_id = ?",
			ownerID, friendID, groupID,
		)
		if err != nil {
			return fmt.Errorf("failed to clear breakdown entry: %w", err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO friend_balances (owner_id, friend_id, group_id, amount) VALUES (?, ?, ?, ?)
		 ON CONFLICT (owner_id, friend_id, group_id) DO UPDATE SET amount = excluded.amount`,
		ownerID, friendID, groupID, amount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert breakdown entry: %w", err)
	}
	return nil
}

// DeleteBreakdownEntries removes all breakdown entries for the given group
// that involve any of the given member IDs, as owner or as friend.
func (s *SQLiteStore) DeleteBreakdownEntries(ctx context.Context, groupID string, memberIDs ...string) error {
	if len(memberIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(memberIDs)), ",")
	args := make([]interface{}, 0, 2*len(memberIDs)+1)
	args = append(args, groupID)
	for _, id := range memberIDs {
		args = append(args, id)
	}
	for _, id := range memberIDs {
		args = append(args, id)
	}

	query := fmt.Sprintf(
		"DELETE FROM friend_balances WHERE group_id = ? AND (owner_id IN (%s) OR friend_id IN (%s))",
		placeholders, placeholders,
	)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete breakdown entries: %w", err)
	}
	return nil
}

// GetBreakdown retrieves the per-group decomposition of an owner/friend
// balance. The overall balance is the sum of the entries, so pruning an
// entry can never leave a stale total behind.
func (s *SQLiteStore) GetBreakdown(ctx context.Context, ownerID, friendID string) (*models.Breakdown, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT group_id, amount FROM friend_balances WHERE owner_id = ? AND friend_id = ? ORDER BY group_id",
		ownerID, friendID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get breakdown: %w", err)
	}
	defer rows.Close()

	breakdown := &models.Breakdown{OwnerID: ownerID, FriendID: friendID}
	var totalCents int64
	for rows.Next() {
		var entry models.BreakdownEntry
		if err := rows.Scan(&entry.GroupID, &entry.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan breakdown entry: %w", err)
		}
		breakdown.Groups = append(breakdown.Groups, entry)
		totalCents += int64(math.Round(entry.Amount * 100))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate breakdown entries: %w", err)
	}

	breakdown.Balance = float64(totalCents) / 100
	return breakdown, nil
}
