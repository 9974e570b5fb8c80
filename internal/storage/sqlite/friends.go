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

// CreateFriend persists a new friend record.
func (s *SQLiteStore) CreateFriend(ctx context.Context, friend *models.Friend) error {
	if friend.ID == "" {
		friend.ID = uuid.New().String()
	}
	if friend.CreatedAt == 0 {
		friend.CreatedAt = time.Now().Unix()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO friends (id, name, avatar_url, linked_user_id, created_at) VALUES (?, ?, ?, ?, ?)",
		friend.ID, friend.Name, friend.AvatarURL, friend.LinkedUserID, friend.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert friend: %w", err)
	}
	return nil
}

// GetFriend retrieves a friend record by ID.
func (s *SQLiteStore) GetFriend(ctx context.Context, friendID string) (*models.Friend, error) {
	friend := &models.Friend{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, avatar_url, linked_user_id, created_at FROM friends WHERE id = ?",
		friendID,
	).Scan(&friend.ID, &friend.Name, &friend.AvatarURL, &friend.LinkedUserID, &friend.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("friend %s: %w", friendID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get friend: %w", err)
	}
	return friend, nil
}

// ListFriends retrieves all friend records ordered by name.
func (s *SQLiteStore) ListFriends(ctx context.Context) ([]*models.Friend, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, avatar_url, linked_user_id, created_at FROM friends ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	var friends []*models.Friend
	for rows.Next() {
		friend := &models.Friend{}
		if err := rows.Scan(&friend.ID, &friend.Name, &friend.AvatarURL, &friend.LinkedUserID, &friend.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		friends = append(friends, friend)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate friends: %w", err)
	}
	return friends, nil
}
