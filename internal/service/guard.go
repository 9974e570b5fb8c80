package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// balanceTolerance is how far from zero a two-decimal balance may drift
// before it counts as outstanding.
const balanceTolerance = 0.01

// Decision is the structured outcome of a guard check. A blocked decision
// is a normal, expected result: Reason names the outstanding balances and
// is surfaced verbatim to the end user.
type Decision struct {
	Allowed     bool
	Reason      string
	Outstanding []models.MemberBalance
}

func allowed() Decision {
	return Decision{Allowed: true}
}

// Guard gates destructive operations on a group: it refuses deletion,
// leaving and removal while the relevant cached balances are not settled.
type Guard struct {
	store storage.Store
}

// NewGuard creates a Guard reading from the given storage backend.
func NewGuard(store storage.Store) *Guard {
	return &Guard{store: store}
}

// CanDeleteGroup allows deletion only when every member's cached net
// balance in the group is within tolerance of zero.
func (g *Guard) CanDeleteGroup(ctx context.Context, groupID string) (Decision, error) {
	group, err := g.store.GetGroup(ctx, groupID)
	if err != nil {
		return Decision{}, fmt.Errorf("guard: %w", err)
	}

	outstanding := outstandingBalances(group)
	if len(outstanding) == 0 {
		return allowed(), nil
	}
	return Decision{
		Reason:      fmt.Sprintf("group has outstanding balances: %s", describeBalances(outstanding)),
		Outstanding: outstanding,
	}, nil
}

// CanLeaveGroup allows a member to leave only when their own net balance in
// the group is within tolerance of zero.
func (g *Guard) CanLeaveGroup(ctx context.Context, groupID string, member models.MemberRef) (Decision, error) {
	return g.checkMemberSettled(ctx, groupID, member, "cannot leave the group")
}

// CanRemoveMember allows removing a member only when that member's net
// balance in the group is within tolerance of zero.
func (g *Guard) CanRemoveMember(ctx context.Context, groupID string, member models.MemberRef) (Decision, error) {
	return g.checkMemberSettled(ctx, groupID, member, "cannot remove the member")
}

func (g *Guard) checkMemberSettled(ctx context.Context, groupID string, member models.MemberRef, verb string) (Decision, error) {
	group, err := g.store.GetGroup(ctx, groupID)
	if err != nil {
		return Decision{}, fmt.Errorf("guard: %w", err)
	}

	name := member.ID
	balance := 0.0
	if m, ok := group.Member(member); ok {
		name = m.Name
		balance = group.UserBalances[m.ID]
	} else {
		// Unknown to the membership list; try the raw identities against
		// the cached balances directly.
		for id, amount := range group.UserBalances {
			if member.MatchesID(id) {
				balance = amount
				break
			}
		}
	}

	if math.Abs(balance) < balanceTolerance {
		return allowed(), nil
	}
	return Decision{
		Reason: fmt.Sprintf("%s: %s", verb, describeBalance(name, balance)),
		Outstanding: []models.MemberBalance{
			{MemberID: member.ID, Name: name, Amount: balance},
		},
	}, nil
}

func outstandingBalances(group *models.Group) []models.MemberBalance {
	var outstanding []models.MemberBalance
	for _, m := range group.Members {
		amount := group.UserBalances[m.ID]
		if math.Abs(amount) >= balanceTolerance {
			outstanding = append(outstanding, models.MemberBalance{
				MemberID: m.ID,
				Name:     m.Name,
				Amount:   amount,
			})
		}
	}
	return outstanding
}

func describeBalances(balances []models.MemberBalance) string {
	parts := make([]string, len(balances))
	for i, b := range balances {
		parts[i] = describeBalance(b.Name, b.Amount)
	}
	return strings.Join(parts, ", ")
}

func describeBalance(name string, amount float64) string {
	if amount < 0 {
		return fmt.Sprintf("%s owes %.2f", name, -amount)
	}
	return fmt.Sprintf("%s is owed %.2f", name, amount)
}
