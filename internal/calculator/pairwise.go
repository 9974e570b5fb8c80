package calculator

import (
	"github.com/mmynk/splitledger/internal/models"
)

// ExpensePairEffect returns the signed effect of one expense on member a's
// balance relative to member b: positive means b owes a.
//
// The expense is decomposed into per-member nets (paid minus owed share),
// then each debtor's deficit is attributed to the creditors in proportion
// to their credit, and only the flow between a and b is kept. For a
// single-payer expense where a paid and b participated this reduces to b's
// share.
func ExpensePairEffect(e *models.Expense, a, b models.MemberRef) float64 {
	if e.Deleted {
		return 0
	}

	// Per-participant net in cents for this one expense.
	nets := make(map[string]int64)
	keys := make([]models.MemberRef, 0, len(e.Splits)+1)
	add := func(id string, delta int64) {
		for _, k := range keys {
			if k.MatchesID(id) {
				nets[k.ID] += delta
				return
			}
		}
		ref := models.MemberRef{ID: id}
		if a.MatchesID(id) {
			ref = a
		} else if b.MatchesID(id) {
			ref = b
		}
		keys = append(keys, ref)
		nets[ref.ID] += delta
	}

	if e.MultiPayer() {
		for _, s := range e.Splits {
			add(s.UserID, Cents(s.Paid)-Cents(s.Amount))
		}
	} else {
		payer := e.Payer()
		payerID := payer.ID
		if payerID == "" {
			payerID = payer.UserID
		}
		add(payerID, Cents(e.Amount))
		for _, s := range e.Splits {
			add(s.UserID, -Cents(s.Amount))
		}
	}

	var totalCredit int64
	for _, n := range nets {
		if n > 0 {
			totalCredit += n
		}
	}
	if totalCredit == 0 {
		return 0
	}

	netA, netB := nets[a.ID], nets[b.ID]
	switch {
	case netA > 0 && netB < 0:
		// b's deficit flows to a in proportion to a's credit.
		return float64(-netB) * float64(netA) / float64(totalCredit) / 100
	case netA < 0 && netB > 0:
		return -float64(-netA) * float64(netB) / float64(totalCredit) / 100
	default:
		return 0
	}
}

// TransactionPairEffect returns the signed effect of one settlement on a's
// balance relative to b: +amount if a paid b, -amount if b paid a, zero if
// the transaction does not join exactly this pair.
func TransactionPairEffect(t *models.Transaction, a, b models.MemberRef) float64 {
	if t.Deleted {
		return 0
	}
	if a.MatchesID(t.FromID) && b.MatchesID(t.ToID) {
		return t.Amount
	}
	if b.MatchesID(t.FromID) && a.MatchesID(t.ToID) {
		return -t.Amount
	}
	return 0
}

// PairBalance replays every record touching both members and returns a's
// signed balance relative to b: positive means b owes a. This is the raw,
// non-simplified view and the basis for settle-up direction checks.
func PairBalance(expenses []*models.Expense, transactions []*models.Transaction, a, b models.MemberRef) float64 {
	var balance float64
	for _, e := range expenses {
		balance += ExpensePairEffect(e, a, b)
	}
	for _, t := range transactions {
		balance += TransactionPairEffect(t, a, b)
	}
	return Round2(balance)
}
