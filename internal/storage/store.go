// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/splitledger/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the interface for ledger storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL,
// etc.) without changing the service layer.
//
// Expense and transaction records are append/soft-delete only; the derived
// caches (group balances, simplified debts, friend breakdowns) are written
// only through the Save/Replace methods and always hold values computed
// from the full ledger.
type Store interface {
	// Friends.
	CreateFriend(ctx context.Context, friend *models.Friend) error
	GetFriend(ctx context.Context, friendID string) (*models.Friend, error)
	ListFriends(ctx context.Context) ([]*models.Friend, error)

	// Groups. GetGroup returns the group with members and both derived
	// caches populated.
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	ListGroupIDs(ctx context.Context) ([]string, error)
	DeleteGroup(ctx context.Context, groupID string) error
	RemoveGroupMember(ctx context.Context, groupID, memberID string) error

	// SaveGroupCaches atomically replaces the group's derived caches.
	// A nil edge slice means simplification is unavailable or disabled.
	SaveGroupCaches(ctx context.Context, groupID string, balances map[string]float64, edges []models.DebtEdge) error

	// Expenses. List methods return non-deleted records only; Get returns
	// the record regardless of its deleted flag so it can be restored.
	CreateExpense(ctx context.Context, expense *models.Expense) error
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)
	UpdateExpense(ctx context.Context, expense *models.Expense) error
	SetExpenseDeleted(ctx context.Context, expenseID string, deleted bool) error
	ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error)

	// Transactions (settlements).
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, txID string) (*models.Transaction, error)
	SetTransactionDeleted(ctx context.Context, txID string, deleted bool) error
	ListTransactionsByGroup(ctx context.Context, groupID string) ([]*models.Transaction, error)

	// Friend breakdown cache. Entries are keyed (owner, friend, group);
	// an empty group ID is the personal bucket. The overall balance is the
	// sum of a pair's entries.
	ReplaceBreakdownEntry(ctx context.Context, ownerID, friendID, groupID string, amount float64) error
	DeleteBreakdownEntries(ctx context.Context, groupID string, memberIDs ...string) error
	GetBreakdown(ctx context.Context, ownerID, friendID string) (*models.Breakdown, error)

	// Close releases any resources held by the store.
	Close() error
}
