package models

// Transaction represents a settlement payment between two members to clear
// debt, independent of any expense.
//
// Direction matters: when X pays Y, X's net balance increases by Amount
// (X has discharged debt) and Y's decreases by Amount.
type Transaction struct {
	// ID is the unique identifier for the transaction (UUID format).
	ID string

	// GroupID scopes the settlement to a group, or empty for personal.
	GroupID string

	// FromID identifies who paid (debtor settling up). May be a
	// friend-record ID or a linked account ID.
	FromID string

	// ToID identifies who received the payment (creditor being paid).
	ToID string

	// Amount is the payment amount. Always positive.
	Amount float64

	// Note is an optional description for the settlement.
	Note string

	// CreatedBy is the identity that recorded this settlement.
	CreatedBy string

	// Deleted marks the transaction as soft-deleted; excluded from
	// balance math but restorable.
	Deleted bool

	// CreatedAt is the Unix timestamp when the record was created.
	CreatedAt int64
}
