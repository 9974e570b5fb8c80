package models

// Friend represents a friend record. Friend records are created when a
// friendship is accepted and never deleted, only unlinked from groups.
type Friend struct {
	// ID is the unique identifier for the friend record (UUID format).
	ID string

	// Name is the display name.
	Name string

	// AvatarURL is an optional profile picture URL.
	AvatarURL string

	// LinkedUserID is the account ID once the person signs up, else empty.
	LinkedUserID string

	// CreatedAt is the Unix timestamp when the record was created.
	CreatedAt int64
}

// Ref returns the friend's identity pair.
func (f *Friend) Ref() MemberRef {
	return MemberRef{ID: f.ID, UserID: f.LinkedUserID}
}

// BreakdownEntry is one bucket of an owner/friend balance: a group, or the
// personal (non-group) bucket when GroupID is empty.
type BreakdownEntry struct {
	GroupID string // empty = personal bucket
	Amount  float64
}

// Breakdown is the per-friend decomposition of an overall balance, from the
// owner's point of view. Positive amounts mean the friend owes the owner.
//
// Balance is always the sum of the entries, rounded to two decimals.
type Breakdown struct {
	OwnerID  string
	FriendID string
	Balance  float64
	Groups   []BreakdownEntry
}
