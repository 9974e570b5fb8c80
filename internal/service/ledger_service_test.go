package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
)

func newTestLedger(t *testing.T) (*LedgerService, storage.Store) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "splitledger-service-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewLedgerService(store), store
}

func newTestGroup(t *testing.T, store storage.Store, simplify bool) *models.Group {
	t.Helper()

	group := &models.Group{
		Name:          "Trip",
		SimplifyDebts: simplify,
		Members: []models.GroupMember{
			{ID: "A", UserID: "user-a", Name: "Alice"},
			{ID: "B", Name: "Bob"},
			{ID: "C", Name: "Charlie"},
		},
	}
	require.NoError(t, store.CreateGroup(context.Background(), group))
	return group
}

func groupExpense(groupID string, payer string, amount float64, splits ...models.Split) *models.Expense {
	return &models.Expense{
		GroupID:     groupID,
		Description: "test expense",
		Amount:      amount,
		PayerID:     payer,
		Splits:      splits,
	}
}

func TestRecordExpenseRecomputesCaches(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	group := newTestGroup(t, store, true)

	expense := groupExpense(group.ID, "A", 90,
		models.Split{UserID: "A", Amount: 30},
		models.Split{UserID: "B", Amount: 30},
		models.Split{UserID: "C", Amount: 30},
	)
	require.NoError(t, ledger.RecordExpense(ctx, expense))

	got, err := store.GetGroup(ctx, group.ID)
	require.NoError(t, err)

	assert.InDelta(t, 60, got.UserBalances["A"], 0.001)
	assert.InDelta(t, -30, got.UserBalances["B"], 0.001)
	assert.InDelta(t, -30, got.UserBalances["C"], 0.001)

	// With simplification enabled the cached edge set points every debtor
	// at Alice, equal magnitudes ordered by member id.
	require.Len(t, got.SimplifiedDebts, 2)
	assert.Equal(t, models.DebtEdge{From: "B", To: "A", Amount: 30}, got.SimplifiedDebts[0])
	assert.Equal(t, models.DebtEdge{From: "C", To: "A", Amount: 30}, got.SimplifiedDebts[1])

	// The pairwise breakdown caches mirror the same ledger.
	ab, err := store.GetBreakdown(ctx, "A", "B")
	require.NoError(t, err)
	assert.InDelta(t, 30, ab.Balance, 0.001)

	ba, err := store.GetBreakdown(ctx, "B", "A")
	require.NoError(t, err)
	assert.InDelta(t, -30, ba.Balance, 0.001)
}

func TestRecordExpenseRejectsInvalid(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	group := newTestGroup(t, store, false)

	bad := groupExpense(group.ID, "A", 90,
		models.Split{UserID: "A", Amount: 30},
		models.Split{UserID: "B", Amount: 30},
	)
	err := ledger.RecordExpense(ctx, bad)
	require.Error(t, err)

	// The rejected write must not have touched the ledger.
	expenses, err := store.ListExpensesByGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Empty(t, expenses)
}

func TestDeleteAndRestoreExpense(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	group := newTestGroup(t, store, false)

	expense := groupExpense(group.ID, "A", 60,
		models.Split{UserID: "B", Amount: 30},
		models.Split{UserID: "C", Amount: 30},
	)
	require.NoError(t, ledger.RecordExpense(ctx, expense))

	require.NoError(t, ledger.DeleteExpense(ctx, expense.ID))
	got, err := store.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	for id, balance := range got.UserBalances {
		assert.InDelta(t, 0, balance, 0.001, "member %s after delete", id)
	}

	require.NoError(t, ledger.RestoreExpense(ctx, expense.ID))
	got, err = store.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.InDelta(t, 60, got.UserBalances["A"], 0.001)
	assert.InDelta(t, -30, got.UserBalances["B"], 0.001)
	assert.InDelta(t, -30, got.UserBalances["C"], 0.001)
}

func TestRecordSettlement(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	group := newTestGroup(t, store, false)

	require.NoError(t, ledger.RecordExpense(ctx, groupExpense(group.ID, "A", 90,
		models.Split{UserID: "A", Amount: 30},
		models.Split{UserID: "B", Amount: 30},
		models.Split{UserID: "C", Amount: 30},
	)))

	t.Run("wrong direction is rejected", func(t *testing.T) {
		err := ledger.RecordSettlement(ctx, &models.Transaction{
			GroupID: group.ID, FromID: "A", ToID: "B", Amount: 10,
		}, false)
		assert.ErrorIs(t, err, ErrWrongDirection)
	})

	t.Run("overpayment is rejected without acknowledgement", func(t *testing.T) {
		err := ledger.RecordSettlement(ctx, &models.Transaction{
			GroupID: group.ID, FromID: "B", ToID: "A", Amount: 100,
		}, false)
		assert.ErrorIs(t, err, ErrOverpayment)
	})

	t.Run("partial payment reduces the debt", func(t *testing.T) {
		require.NoError(t, ledger.RecordSettlement(ctx, &models.Transaction{
			GroupID: group.ID, FromID: "B", ToID: "A", Amount: 10,
		}, false))

		got, err := store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.InDelta(t, 50, got.UserBalances["A"], 0.001)
		assert.InDelta(t, -20, got.UserBalances["B"], 0.001)
	})

	t.Run("exact payment settles the pair", func(t *testing.T) {
		require.NoError(t, ledger.RecordSettlement(ctx, &models.Transaction{
			GroupID: group.ID, FromID: "B", ToID: "A", Amount: 20,
		}, false))

		got, err := store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.InDelta(t, 0, got.UserBalances["B"], 0.001)
	})

	t.Run("acknowledged overpayment flips the balance", func(t *testing.T) {
		require.NoError(t, ledger.RecordSettlement(ctx, &models.Transaction{
			GroupID: group.ID, FromID: "C", ToID: "A", Amount: 50,
		}, true))

		got, err := store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.InDelta(t, -20, got.UserBalances["A"], 0.001)
		assert.InDelta(t, 20, got.UserBalances["C"], 0.001)
	})
}

func TestDeleteAndRestoreSettlement(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	group := newTestGroup(t, store, false)

	require.NoError(t, ledger.RecordExpense(ctx, groupExpense(group.ID, "A", 50,
		models.Split{UserID: "B", Amount: 50},
	)))
	settlement := &models.Transaction{GroupID: group.ID, FromID: "B", ToID: "A", Amount: 50}
	require.NoError(t, ledger.RecordSettlement(ctx, settlement, false))

	got, err := store.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0, got.UserBalances["B"], 0.001)

	// Deleting the settlement reinstates the debt.
	require.NoError(t, ledger.DeleteSettlement(ctx, settlement.ID))
	got, err = store.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.InDelta(t, -50, got.UserBalances["B"], 0.001)

	require.NoError(t, ledger.RestoreSettlement(ctx, settlement.ID))
	got, err = store.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0, got.UserBalances["B"], 0.001)
}

func TestPairLedger(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	group := newTestGroup(t, store, false)

	require.NoError(t, ledger.RecordExpense(ctx, groupExpense(group.ID, "A", 100,
		models.Split{UserID: "B", Amount: 100},
	)))
	require.NoError(t, ledger.RecordSettlement(ctx, &models.Transaction{
		GroupID: group.ID, FromID: "B", ToID: "A", Amount: 30,
	}, false))

	refA := models.MemberRef{ID: "A", UserID: "user-a"}
	refB := models.MemberRef{ID: "B"}

	balance, err := ledger.PairLedger(ctx, group.ID, refA, refB)
	require.NoError(t, err)
	assert.InDelta(t, 70, balance, 0.001)
}

func TestDeleteGroupGuard(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	group := newTestGroup(t, store, false)

	require.NoError(t, ledger.RecordExpense(ctx, groupExpense(group.ID, "A", 40,
		models.Split{UserID: "B", Amount: 40},
	)))

	decision, err := ledger.DeleteGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "outstanding balances")
	assert.Contains(t, decision.Reason, "Alice is owed 40.00")
	assert.Contains(t, decision.Reason, "Bob owes 40.00")
	assert.Len(t, decision.Outstanding, 2)

	// The group must still exist after a blocked decision.
	_, err = store.GetGroup(ctx, group.ID)
	require.NoError(t, err)

	require.NoError(t, ledger.RecordSettlement(ctx, &models.Transaction{
		GroupID: group.ID, FromID: "B", ToID: "A", Amount: 40,
	}, false))

	decision, err = ledger.DeleteGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	_, err = store.GetGroup(ctx, group.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRemoveMember(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	group := newTestGroup(t, store, false)

	require.NoError(t, ledger.RecordExpense(ctx, groupExpense(group.ID, "A", 60,
		models.Split{UserID: "B", Amount: 30},
		models.Split{UserID: "C", Amount: 30},
	)))

	refB := models.MemberRef{ID: "B"}

	t.Run("blocked while unsettled", func(t *testing.T) {
		decision, err := ledger.RemoveMember(ctx, group.ID, refB)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Contains(t, decision.Reason, "Bob owes 30.00")
	})

	t.Run("allowed once settled, caches pruned", func(t *testing.T) {
		require.NoError(t, ledger.RecordSettlement(ctx, &models.Transaction{
			GroupID: group.ID, FromID: "B", ToID: "A", Amount: 30,
		}, false))

		decision, err := ledger.RemoveMember(ctx, group.ID, refB)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)

		got, err := store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		require.Len(t, got.Members, 2)
		_, present := got.UserBalances["B"]
		assert.False(t, present, "removed member must not appear in cached balances")

		// Bob's breakdown entries for this group are gone.
		ab, err := store.GetBreakdown(ctx, "A", "B")
		require.NoError(t, err)
		for _, entry := range ab.Groups {
			assert.NotEqual(t, group.ID, entry.GroupID)
		}
	})
}

func TestRemoveMemberByLinkedUserID(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	group := newTestGroup(t, store, false)

	// Alice nets to zero but holds offsetting pairwise positions: Bob owes
	// her 30 and she owes Charlie 30.
	require.NoError(t, ledger.RecordExpense(ctx, groupExpense(group.ID, "A", 30,
		models.Split{UserID: "B", Amount: 30},
	)))
	require.NoError(t, ledger.RecordExpense(ctx, groupExpense(group.ID, "C", 30,
		models.Split{UserID: "A", Amount: 30},
	)))

	// Identify her only by the linked account id.
	decision, err := ledger.RemoveMember(ctx, group.ID, models.MemberRef{UserID: "user-a"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	got, err := store.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, got.Members, 2)
	_, present := got.UserBalances["A"]
	assert.False(t, present, "removed member must not appear in cached balances")
	assert.InDelta(t, -30, got.UserBalances["B"], 0.001)
	assert.InDelta(t, 30, got.UserBalances["C"], 0.001)

	// Her breakdown entries for this group are gone from both sides.
	for _, pair := range [][2]string{{"B", "A"}, {"A", "B"}, {"C", "A"}, {"A", "C"}} {
		breakdown, err := store.GetBreakdown(ctx, pair[0], pair[1])
		require.NoError(t, err)
		for _, entry := range breakdown.Groups {
			assert.NotEqual(t, group.ID, entry.GroupID, "stale entry for pair %v", pair)
		}
	}
}

func TestConcurrentExpenseMovesDoNotDeadlock(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	group1 := newTestGroup(t, store, false)
	group2 := newTestGroup(t, store, false)

	e1 := groupExpense(group1.ID, "A", 30, models.Split{UserID: "B", Amount: 30})
	e2 := groupExpense(group2.ID, "A", 40, models.Split{UserID: "C", Amount: 40})
	require.NoError(t, ledger.RecordExpense(ctx, e1))
	require.NoError(t, ledger.RecordExpense(ctx, e2))

	// Two movers shuttle expenses between the same pair of groups in
	// opposite directions, so each update needs both scope locks.
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	move := func(e *models.Expense, first, second string) {
		defer wg.Done()
		for i := 0; i < 25; i++ {
			e.GroupID = first
			if err := ledger.UpdateExpense(ctx, e); err != nil {
				errs <- err
				return
			}
			e.GroupID = second
			if err := ledger.UpdateExpense(ctx, e); err != nil {
				errs <- err
				return
			}
		}
	}

	wg.Add(2)
	go move(e1, group2.ID, group1.ID)
	go move(e2, group1.ID, group2.ID)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Both expenses end where they started; the caches agree.
	got, err := store.GetGroup(ctx, group1.ID)
	require.NoError(t, err)
	assert.InDelta(t, 30, got.UserBalances["A"], 0.001)
	assert.InDelta(t, -30, got.UserBalances["B"], 0.001)

	got, err = store.GetGroup(ctx, group2.ID)
	require.NoError(t, err)
	assert.InDelta(t, 40, got.UserBalances["A"], 0.001)
	assert.InDelta(t, -40, got.UserBalances["C"], 0.001)
}

func TestLeaveGroupGuard(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	group := newTestGroup(t, store, false)

	require.NoError(t, ledger.RecordExpense(ctx, groupExpense(group.ID, "A", 30,
		models.Split{UserID: "B", Amount: 30},
	)))

	// Charlie owes nothing and may leave; Alice is owed and may not.
	decision, err := ledger.LeaveGroup(ctx, group.ID, models.MemberRef{ID: "C"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = ledger.LeaveGroup(ctx, group.ID, models.MemberRef{ID: "A", UserID: "user-a"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "cannot leave the group")
	assert.Contains(t, decision.Reason, "Alice is owed 30.00")
}

func TestReconcileRepairsCorruptedCaches(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	group := newTestGroup(t, store, true)

	require.NoError(t, ledger.RecordExpense(ctx, groupExpense(group.ID, "A", 90,
		models.Split{UserID: "A", Amount: 30},
		models.Split{UserID: "B", Amount: 30},
		models.Split{UserID: "C", Amount: 30},
	)))

	// Clobber the derived caches behind the service's back.
	require.NoError(t, store.SaveGroupCaches(ctx, group.ID,
		map[string]float64{"A": 999, "B": 999, "C": 999}, nil))

	require.NoError(t, ledger.Reconcile(ctx, group.ID))

	got, err := store.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.InDelta(t, 60, got.UserBalances["A"], 0.001)
	assert.InDelta(t, -30, got.UserBalances["B"], 0.001)
	assert.InDelta(t, -30, got.UserBalances["C"], 0.001)
	assert.Len(t, got.SimplifiedDebts, 2)
}

func TestReconcileAllCoversEveryScope(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	group := newTestGroup(t, store, false)

	require.NoError(t, ledger.RecordExpense(ctx, groupExpense(group.ID, "A", 20,
		models.Split{UserID: "B", Amount: 20},
	)))

	friendA := &models.Friend{Name: "Alice", LinkedUserID: "user-a"}
	friendD := &models.Friend{Name: "Dana"}
	require.NoError(t, store.CreateFriend(ctx, friendA))
	require.NoError(t, store.CreateFriend(ctx, friendD))

	require.NoError(t, ledger.RecordExpense(ctx, &models.Expense{
		Description: "lunch",
		Amount:      15,
		PayerID:     friendA.ID,
		Splits:      []models.Split{{UserID: friendD.ID, Amount: 15}},
	}))

	require.NoError(t, store.SaveGroupCaches(ctx, group.ID, map[string]float64{"A": 999}, nil))

	require.NoError(t, ledger.ReconcileAll(ctx))

	got, err := store.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.InDelta(t, 20, got.UserBalances["A"], 0.001)

	breakdown, err := store.GetBreakdown(ctx, friendA.ID, friendD.ID)
	require.NoError(t, err)
	assert.InDelta(t, 15, breakdown.Balance, 0.001)
}

func TestPersonalExpenseUpdatesBreakdown(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	friendA := &models.Friend{Name: "Alice", LinkedUserID: "user-a"}
	friendB := &models.Friend{Name: "Bob"}
	require.NoError(t, store.CreateFriend(ctx, friendA))
	require.NoError(t, store.CreateFriend(ctx, friendB))

	require.NoError(t, ledger.RecordExpense(ctx, &models.Expense{
		Description: "movie tickets",
		Amount:      24,
		PayerID:     friendA.ID,
		Splits: []models.Split{
			{UserID: friendA.ID, Amount: 12},
			{UserID: friendB.ID, Amount: 12},
		},
	}))

	breakdown, err := store.GetBreakdown(ctx, friendA.ID, friendB.ID)
	require.NoError(t, err)
	assert.InDelta(t, 12, breakdown.Balance, 0.001)
	require.Len(t, breakdown.Groups, 1)
	assert.Equal(t, "", breakdown.Groups[0].GroupID)

	// Payer referenced through the linked user id resolves to the same pair.
	require.NoError(t, ledger.RecordSettlement(ctx, &models.Transaction{
		FromID: friendB.ID, ToID: "user-a", Amount: 12,
	}, false))

	breakdown, err = store.GetBreakdown(ctx, friendA.ID, friendB.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0, breakdown.Balance, 0.001)
}

func TestUpdateExpenseMovesBetweenScopes(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	group := newTestGroup(t, store, false)

	expense := groupExpense(group.ID, "A", 50,
		models.Split{UserID: "B", Amount: 50},
	)
	require.NoError(t, ledger.RecordExpense(ctx, expense))

	// Reassign the expense to the personal scope; the group's caches must
	// drop it.
	expense.GroupID = ""
	require.NoError(t, ledger.UpdateExpense(ctx, expense))

	got, err := store.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0, got.UserBalances["A"], 0.001)
	assert.InDelta(t, 0, got.UserBalances["B"], 0.001)
}
