package models

// DebtEdge represents one suggested payment in a simplified debt set.
type DebtEdge struct {
	From   string  // member who owes
	To     string  // member who is owed
	Amount float64 // always positive
}

// Group represents a group of members sharing expenses.
//
// UserBalances and SimplifiedDebts are derived caches rebuilt from the
// group's expense and transaction records on every mutation. Readers use
// them as-is and never recompute.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Roommates").
	Name string

	// Members is the current membership.
	Members []GroupMember

	// UserBalances maps member ID to net balance. Positive = owed money,
	// negative = owes money.
	UserBalances map[string]float64

	// SimplifiedDebts is the minimal payment set that settles the group,
	// present only when SimplifyDebts is enabled and the last integrity
	// check passed. Nil means "show the raw ledger".
	SimplifiedDebts []DebtEdge

	// SimplifyDebts enables debt simplification for this group.
	SimplifyDebts bool

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64
}

// Member returns the member matching the given ref, if any.
func (g *Group) Member(ref MemberRef) (GroupMember, bool) {
	for _, m := range g.Members {
		if m.Ref().Matches(ref) {
			return m, true
		}
	}
	return GroupMember{}, false
}

// MemberBalance pairs a member with their cached net balance, used in guard
// decisions and balance listings.
type MemberBalance struct {
	MemberID string
	Name     string
	Amount   float64
}
