package models

// Split records one participant's part in an expense: the share they owe
// and the amount they contributed toward paying the bill.
type Split struct {
	// UserID identifies the participant. May be a friend-record ID or a
	// linked account ID; resolve with MemberRef.MatchesID.
	UserID string

	// Amount is the participant's owed share.
	Amount float64

	// Paid is what the participant contributed toward paying the expense.
	// An expense with more than one split where Paid > 0 is multi-payer.
	Paid float64
}

// Expense represents a shared expense, either owned by a group or personal
// (GroupID empty).
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// GroupID is the owning group, or empty for a personal expense.
	GroupID string

	// Description is the human-readable label (e.g., "Dinner", "Rent").
	Description string

	// Amount is the full expense amount.
	Amount float64

	// Date is the Unix timestamp of when the expense occurred.
	Date int64

	// PayerID is the friend-record ID of the payer. For multi-payer
	// expenses the per-split Paid amounts are authoritative instead.
	PayerID string

	// PayerUserID is the payer's linked account ID, if any.
	PayerUserID string

	// Splits are the per-participant shares. Their Amounts must sum to
	// Amount, and so must their Paid contributions, within one cent.
	Splits []Split

	// Deleted marks the expense as soft-deleted. Deleted expenses are
	// excluded from balance math but kept so they can be restored.
	Deleted bool

	// CreatedAt is the Unix timestamp when the record was created.
	CreatedAt int64
}

// Payer returns the payer's identity pair.
func (e *Expense) Payer() MemberRef {
	return MemberRef{ID: e.PayerID, UserID: e.PayerUserID}
}

// MultiPayer reports whether more than one split contributed payment.
func (e *Expense) MultiPayer() bool {
	payers := 0
	for _, s := range e.Splits {
		if s.Paid > 0 {
			payers++
		}
	}
	return payers > 1
}
