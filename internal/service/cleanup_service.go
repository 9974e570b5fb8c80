package service

import (
	"context"
	"log/slog"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// CleanupService repairs the derived caches after a member leaves or is
// removed from a group.
//
// Cleanup is deliberately best-effort: the exit itself has already been
// committed, so every failure here is logged and swallowed rather than
// propagated. Any cache the cleanup leaves inconsistent is rebuilt by the
// next full recompute (see LedgerService.Reconcile).
type CleanupService struct {
	store storage.Store
}

// NewCleanupService creates a CleanupService over the given storage
// backend.
func NewCleanupService(store storage.Store) *CleanupService {
	return &CleanupService{store: store}
}

// OnMemberExit strips the exited member from the group's cached balances,
// reruns debt simplification on the remaining balances if the group has it
// enabled, and prunes the breakdown entries that pair the exited member
// with the remaining members for this group. The remaining members'
// overall friend balances are the sum of their remaining entries, so
// pruning cannot leave a stale total behind.
func (c *CleanupService) OnMemberExit(ctx context.Context, groupID string, member models.MemberRef) {
	group, err := c.store.GetGroup(ctx, groupID)
	if err != nil {
		c.swallow("load group", groupID, err)
		return
	}

	balances := make(map[string]float64, len(group.UserBalances))
	for id, amount := range group.UserBalances {
		if member.MatchesID(id) {
			continue
		}
		balances[id] = amount
	}

	var edges []models.DebtEdge
	if group.SimplifyDebts {
		edges, err = calculator.Simplify(balances)
		if err != nil {
			// Expected when the exited member held a nonzero balance: the
			// remainder no longer sums to zero. Publish no simplified view.
			slog.Warn("debt simplification unavailable after member exit",
				"group_id", groupID,
				"member_id", member.ID,
				"error", err,
			)
			metrics.SimplifyFailures.Inc()
			edges = nil
		}
	}

	if err := c.store.SaveGroupCaches(ctx, groupID, balances, edges); err != nil {
		c.swallow("save group caches", groupID, err)
	}

	ids := []string{member.ID}
	if member.UserID != "" {
		ids = append(ids, member.UserID)
	}
	if err := c.store.DeleteBreakdownEntries(ctx, groupID, ids...); err != nil {
		c.swallow("prune breakdown entries", groupID, err)
	}
}

func (c *CleanupService) swallow(step, groupID string, err error) {
	slog.Warn("membership cleanup failed, continuing",
		"step", step,
		"group_id", groupID,
		"error", err,
	)
	metrics.CleanupFailures.Inc()
}
