package calculator

import (
	"github.com/mmynk/splitledger/internal/models"
)

// keyResolver maps either identity of a member (friend-record ID or linked
// user ID) to the canonical balance key, the friend-record ID. IDs that
// match no known member pass through unchanged.
type keyResolver []models.GroupMember

func (r keyResolver) key(id string) string {
	for _, m := range r {
		if m.Ref().MatchesID(id) {
			return m.ID
		}
	}
	return id
}

func (r keyResolver) refKey(ref models.MemberRef) string {
	for _, m := range r {
		if m.Ref().Matches(ref) {
			return m.ID
		}
	}
	if ref.ID != "" {
		return ref.ID
	}
	return ref.UserID
}

// NetBalances folds the given non-deleted expenses and transactions into a
// map from member ID to net balance. Positive = owed money, negative =
// owes money.
//
// Single-payer expenses credit the payer with the full amount and debit
// each participant their share; the payer's own share nets out. Multi-payer
// expenses credit every split its Paid contribution and debit every split
// its owed share, so a member who fronted part of the bill is owed exactly
// that part back.
//
// Settlements move debt, not goods: when X pays Y, X's balance increases
// by the amount and Y's decreases.
//
// Soft-deleted records are skipped. Running NetBalances twice over the same
// records yields identical results.
//
// The result covers exactly the current members: balances accrued by
// identifiers matching no member (e.g. a participant who has since left the
// group) are dropped rather than published.
func NetBalances(members []models.GroupMember, expenses []*models.Expense, transactions []*models.Transaction) map[string]float64 {
	resolve := keyResolver(members)
	cents := make(map[string]int64)

	for _, m := range members {
		cents[m.ID] = 0
	}

	for _, e := range expenses {
		if e.Deleted {
			continue
		}
		if e.MultiPayer() {
			for _, s := range e.Splits {
				cents[resolve.key(s.UserID)] += Cents(s.Paid) - Cents(s.Amount)
			}
			continue
		}
		cents[resolve.refKey(e.Payer())] += Cents(e.Amount)
		for _, s := range e.Splits {
			cents[resolve.key(s.UserID)] -= Cents(s.Amount)
		}
	}

	for _, t := range transactions {
		if t.Deleted {
			continue
		}
		cents[resolve.key(t.FromID)] += Cents(t.Amount)
		cents[resolve.key(t.ToID)] -= Cents(t.Amount)
	}

	balances := make(map[string]float64, len(members))
	for _, m := range members {
		balances[m.ID] = float64(cents[m.ID]) / 100
	}
	return balances
}
