package models

// MemberRef identifies a group member by both of their possible identities:
// the friend-record ID and, if the person has an account, the linked user ID.
//
// Balances, splits and transactions may reference a member by either
// identity, so every comparison must go through Matches or MatchesID.
type MemberRef struct {
	// ID is the friend-record ID. Always set.
	ID string

	// UserID is the linked account ID, if any.
	UserID string
}

// Matches reports whether two refs identify the same person under either
// identity.
func (r MemberRef) Matches(other MemberRef) bool {
	if r.ID != "" && (r.ID == other.ID || r.ID == other.UserID) {
		return true
	}
	if r.UserID != "" && (r.UserID == other.ID || r.UserID == other.UserID) {
		return true
	}
	return false
}

// MatchesID reports whether the given raw identifier refers to this member
// under either identity.
func (r MemberRef) MatchesID(id string) bool {
	if id == "" {
		return false
	}
	return id == r.ID || id == r.UserID
}

// GroupMember is one member of a group.
type GroupMember struct {
	// ID is the friend-record ID of the member.
	ID string

	// UserID is the linked account ID, empty until the person signs up.
	UserID string

	// Name is the display name shown in balances and guard rejections.
	Name string
}

// Ref returns the member's identity pair.
func (m GroupMember) Ref() MemberRef {
	return MemberRef{ID: m.ID, UserID: m.UserID}
}
