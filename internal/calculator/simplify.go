package calculator

import (
	"errors"
	"sort"

	"github.com/mmynk/splitledger/internal/models"
)

// ErrUnbalanced is returned by Simplify when the input balances do not sum
// to zero within one cent. This is an integrity failure in the underlying
// ledger: the caller must fall back to the raw ledger rather than publish
// a misleading simplified view.
var ErrUnbalanced = errors.New("balances do not sum to zero")

type party struct {
	id    string
	cents int64 // always positive
}

// Simplify reduces a set of net balances to the minimal set of directed
// payments that settles everyone, without changing any member's net
// position: for every member, outgoing minus incoming edge weight equals
// the negation of their balance.
//
// Greedy matching, largest magnitude first with member ID as tie-break so
// the output is deterministic. Balances below one cent are ignored as
// rounding noise. The result has at most N-1 edges for N nonzero-balance
// members.
func Simplify(balances map[string]float64) ([]models.DebtEdge, error) {
	var total int64
	var creditors, debtors []party
	for id, bal := range balances {
		c := Cents(bal)
		total += c
		switch {
		case c >= 1:
			creditors = append(creditors, party{id: id, cents: c})
		case c <= -1:
			debtors = append(debtors, party{id: id, cents: -c})
		}
	}
	if abs64(total) > 1 {
		return nil, ErrUnbalanced
	}

	byMagnitude := func(parties []party) func(i, j int) bool {
		return func(i, j int) bool {
			if parties[i].cents != parties[j].cents {
				return parties[i].cents > parties[j].cents
			}
			return parties[i].id < parties[j].id
		}
	}
	sort.Slice(creditors, byMagnitude(creditors))
	sort.Slice(debtors, byMagnitude(debtors))

	var edges []models.DebtEdge
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		transfer := debtors[i].cents
		if creditors[j].cents < transfer {
			transfer = creditors[j].cents
		}

		if transfer >= 1 {
			edges = append(edges, models.DebtEdge{
				From:   debtors[i].id,
				To:     creditors[j].id,
				Amount: float64(transfer) / 100,
			})
		}

		debtors[i].cents -= transfer
		creditors[j].cents -= transfer
		if debtors[i].cents < 1 {
			i++
		}
		if creditors[j].cents < 1 {
			j++
		}
	}

	return edges, nil
}
