// Package service implements the engine's operations over storage: the
// ledger service (recompute entry point), the consistency guard and the
// membership cleanup service.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// Settle-up direction errors. Both belong to the validation class: the
// triggering write is rejected before any ledger mutation.
var (
	// ErrWrongDirection is returned when a settlement would be recorded
	// against the direction of the existing debt.
	ErrWrongDirection = errors.New("settlement direction does not reduce an existing debt")

	// ErrOverpayment is returned when a settlement exceeds the existing
	// debt and the caller has not acknowledged flipping the balance.
	ErrOverpayment = errors.New("settlement exceeds the existing debt")
)

// scopeLocks serializes the read-ledger/recompute/write-caches sequence per
// scope. A scope is a group ID, or "personal" for non-group records. Without
// this, two concurrent mutations to the same group could race on the derived
// caches and lose an update.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *scopeLocks) forScope(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.locks[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	l.locks[key] = m
	return m
}

// lockScopes acquires the locks for every given scope, deduplicated and in
// canonical key order so that concurrent multi-scope operations cannot
// deadlock. The returned function releases them.
func (l *scopeLocks) lockScopes(groupIDs ...string) func() {
	var keys []string
	for _, id := range groupIDs {
		key := scopeKey(id)
		dup := false
		for _, k := range keys {
			if k == key {
				dup = true
				break
			}
		}
		if !dup {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	locked := make([]*sync.Mutex, 0, len(keys))
	for _, key := range keys {
		m := l.forScope(key)
		m.Lock()
		locked = append(locked, m)
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].Unlock()
		}
	}
}

const personalScope = "personal"

func scopeKey(groupID string) string {
	if groupID == "" {
		return personalScope
	}
	return groupID
}

// LedgerService is the single entry point for every mutation that touches
// balances. Each mutation triggers an immediate, blocking recompute of the
// affected scope before returning, and all derived caches are written with
// values computed from the full ledger, never incremental deltas.
type LedgerService struct {
	store   storage.Store
	guard   *Guard
	cleanup *CleanupService
	locks   *scopeLocks
}

// NewLedgerService creates a LedgerService with the given storage backend.
func NewLedgerService(store storage.Store) *LedgerService {
	locks := newScopeLocks()
	return &LedgerService{
		store:   store,
		guard:   NewGuard(store),
		cleanup: NewCleanupService(store),
		locks:   locks,
	}
}

// Guard exposes the service's consistency guard for read-only checks.
func (s *LedgerService) Guard() *Guard {
	return s.guard
}

// RecordExpense validates and persists a new expense, then recomputes the
// affected scope's caches.
func (s *LedgerService) RecordExpense(ctx context.Context, expense *models.Expense) error {
	if err := calculator.ValidateExpense(expense); err != nil {
		return err
	}

	lock := s.locks.forScope(scopeKey(expense.GroupID))
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.CreateExpense(ctx, expense); err != nil {
		return fmt.Errorf("record expense: %w", err)
	}
	return s.recomputeScope(ctx, expense.GroupID)
}

// UpdateExpense validates and replaces an expense, then recomputes every
// affected scope (both if the expense moved between groups). Both scope
// locks are taken in canonical order before any write.
func (s *LedgerService) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	if err := calculator.ValidateExpense(expense); err != nil {
		return err
	}

	for {
		old, err := s.store.GetExpense(ctx, expense.ID)
		if err != nil {
			return fmt.Errorf("update expense: %w", err)
		}

		unlock := s.locks.lockScopes(expense.GroupID, old.GroupID)

		// The expense may have moved again before the locks were acquired;
		// retry with the fresh scope pair if so.
		current, err := s.store.GetExpense(ctx, expense.ID)
		if err != nil {
			unlock()
			return fmt.Errorf("update expense: %w", err)
		}
		if current.GroupID != old.GroupID {
			unlock()
			continue
		}

		err = s.updateExpenseLocked(ctx, expense, old.GroupID)
		unlock()
		return err
	}
}

func (s *LedgerService) updateExpenseLocked(ctx context.Context, expense *models.Expense, oldGroupID string) error {
	if err := s.store.UpdateExpense(ctx, expense); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if err := s.recomputeScope(ctx, expense.GroupID); err != nil {
		return err
	}
	if oldGroupID != expense.GroupID {
		return s.recomputeScope(ctx, oldGroupID)
	}
	return nil
}

// DeleteExpense soft-deletes an expense and recomputes its scope. The
// record is kept so RestoreExpense can bring the balances back.
func (s *LedgerService) DeleteExpense(ctx context.Context, expenseID string) error {
	return s.setExpenseDeleted(ctx, expenseID, true)
}

// RestoreExpense re-includes a soft-deleted expense in the next recompute.
func (s *LedgerService) RestoreExpense(ctx context.Context, expenseID string) error {
	return s.setExpenseDeleted(ctx, expenseID, false)
}

func (s *LedgerService) setExpenseDeleted(ctx context.Context, expenseID string, deleted bool) error {
	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return fmt.Errorf("load expense: %w", err)
	}

	lock := s.locks.forScope(scopeKey(expense.GroupID))
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.SetExpenseDeleted(ctx, expenseID, deleted); err != nil {
		return fmt.Errorf("set expense deleted: %w", err)
	}
	return s.recomputeScope(ctx, expense.GroupID)
}

// RecordSettlement validates and persists a settlement payment, then
// recomputes the affected scope.
//
// A settlement may only be recorded in the direction that reduces the
// existing debt between the two members. Paying more than is owed, or
// paying when nothing is owed, flips the balance and must be acknowledged
// explicitly with ackOverpayment.
func (s *LedgerService) RecordSettlement(ctx context.Context, transaction *models.Transaction, ackOverpayment bool) error {
	if err := calculator.ValidateTransaction(transaction); err != nil {
		return err
	}

	lock := s.locks.forScope(scopeKey(transaction.GroupID))
	lock.Lock()
	defer lock.Unlock()

	if !ackOverpayment {
		if err := s.checkSettlementDirection(ctx, transaction); err != nil {
			return err
		}
	}

	if err := s.store.CreateTransaction(ctx, transaction); err != nil {
		return fmt.Errorf("record settlement: %w", err)
	}
	return s.recomputeScope(ctx, transaction.GroupID)
}

// checkSettlementDirection replays the scope's records for the pair and
// rejects the settlement unless the payer currently owes the receiver at
// least the paid amount.
func (s *LedgerService) checkSettlementDirection(ctx context.Context, transaction *models.Transaction) error {
	expenses, transactions, err := s.loadScope(ctx, transaction.GroupID)
	if err != nil {
		return fmt.Errorf("check settlement direction: %w", err)
	}

	from, err := s.resolveRef(ctx, transaction.GroupID, transaction.FromID)
	if err != nil {
		return fmt.Errorf("check settlement direction: %w", err)
	}
	to, err := s.resolveRef(ctx, transaction.GroupID, transaction.ToID)
	if err != nil {
		return fmt.Errorf("check settlement direction: %w", err)
	}

	// Positive = from owes to.
	owed := calculator.PairBalance(expenses, transactions, to, from)
	if owed < balanceTolerance {
		return fmt.Errorf("%w: %s owes %s nothing", ErrWrongDirection, transaction.FromID, transaction.ToID)
	}
	if transaction.Amount > owed+balanceTolerance {
		return fmt.Errorf("%w: owed %.2f, paying %.2f", ErrOverpayment, owed, transaction.Amount)
	}
	return nil
}

// DeleteSettlement soft-deletes a settlement and recomputes its scope.
func (s *LedgerService) DeleteSettlement(ctx context.Context, txID string) error {
	return s.setSettlementDeleted(ctx, txID, true)
}

// RestoreSettlement re-includes a soft-deleted settlement.
func (s *LedgerService) RestoreSettlement(ctx context.Context, txID string) error {
	return s.setSettlementDeleted(ctx, txID, false)
}

func (s *LedgerService) setSettlementDeleted(ctx context.Context, txID string, deleted bool) error {
	transaction, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return fmt.Errorf("load settlement: %w", err)
	}

	lock := s.locks.forScope(scopeKey(transaction.GroupID))
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.SetTransactionDeleted(ctx, txID, deleted); err != nil {
		return fmt.Errorf("set settlement deleted: %w", err)
	}
	return s.recomputeScope(ctx, transaction.GroupID)
}

// PairLedger returns the raw (non-simplified) signed balance of member a
// relative to member b within the given scope: positive means b owes a.
func (s *LedgerService) PairLedger(ctx context.Context, groupID string, a, b models.MemberRef) (float64, error) {
	expenses, transactions, err := s.loadScope(ctx, groupID)
	if err != nil {
		return 0, fmt.Errorf("pair ledger: %w", err)
	}
	return calculator.PairBalance(expenses, transactions, a, b), nil
}

// DeleteGroup deletes a group if the guard allows it: every member's
// cached balance must be within tolerance of zero. A blocked decision is a
// normal outcome, not an error.
func (s *LedgerService) DeleteGroup(ctx context.Context, groupID string) (Decision, error) {
	lock := s.locks.forScope(scopeKey(groupID))
	lock.Lock()
	defer lock.Unlock()

	decision, err := s.guard.CanDeleteGroup(ctx, groupID)
	if err != nil || !decision.Allowed {
		return decision, err
	}

	if err := s.store.DeleteGroup(ctx, groupID); err != nil {
		return Decision{}, fmt.Errorf("delete group: %w", err)
	}
	return decision, nil
}

// LeaveGroup removes the leaving member if their own balance is settled,
// then runs membership cleanup on the caches.
func (s *LedgerService) LeaveGroup(ctx context.Context, groupID string, member models.MemberRef) (Decision, error) {
	return s.removeMember(ctx, groupID, member, s.guard.CanLeaveGroup)
}

// RemoveMember removes the given member if their balance is settled, then
// runs membership cleanup on the caches.
func (s *LedgerService) RemoveMember(ctx context.Context, groupID string, member models.MemberRef) (Decision, error) {
	return s.removeMember(ctx, groupID, member, s.guard.CanRemoveMember)
}

func (s *LedgerService) removeMember(
	ctx context.Context,
	groupID string,
	member models.MemberRef,
	check func(context.Context, string, models.MemberRef) (Decision, error),
) (Decision, error) {
	lock := s.locks.forScope(scopeKey(groupID))
	lock.Lock()
	defer lock.Unlock()

	decision, err := check(ctx, groupID, member)
	if err != nil || !decision.Allowed {
		return decision, err
	}

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return Decision{}, fmt.Errorf("remove member: %w", err)
	}
	// Resolve the caller's ref to the full identity pair: the caller may
	// have named the member by either identity, but the balance keys and
	// breakdown entries are keyed by the canonical member ID.
	exit := member
	if m, ok := group.Member(member); ok {
		exit = m.Ref()
	}

	if err := s.store.RemoveGroupMember(ctx, groupID, exit.ID); err != nil {
		return Decision{}, fmt.Errorf("remove member: %w", err)
	}

	// Cache cleanup is best-effort: the removal has already succeeded and
	// the next full recompute repairs any cache the cleanup missed.
	s.cleanup.OnMemberExit(ctx, groupID, exit)
	return decision, nil
}

// Recompute rebuilds the derived caches for one group from its full record
// set. This is the only code path that writes the caches.
func (s *LedgerService) Recompute(ctx context.Context, groupID string) error {
	lock := s.locks.forScope(scopeKey(groupID))
	lock.Lock()
	defer lock.Unlock()
	return s.recomputeScope(ctx, groupID)
}

// Reconcile is Recompute under its operational name: invoked manually or on
// a schedule to repair any drift left behind by best-effort cleanup.
func (s *LedgerService) Reconcile(ctx context.Context, groupID string) error {
	return s.Recompute(ctx, groupID)
}

// ReconcileAll reconciles every group and the personal scope.
func (s *LedgerService) ReconcileAll(ctx context.Context) error {
	ids, err := s.store.ListGroupIDs(ctx)
	if err != nil {
		return fmt.Errorf("reconcile all: %w", err)
	}
	for _, id := range ids {
		if err := s.Reconcile(ctx, id); err != nil {
			return fmt.Errorf("reconcile group %s: %w", id, err)
		}
	}
	return s.Recompute(ctx, "")
}

// recomputeScope dispatches to the group or personal recompute. Callers
// must hold the scope lock.
func (s *LedgerService) recomputeScope(ctx context.Context, groupID string) error {
	start := time.Now()
	defer func() {
		metrics.RecomputeDuration.Observe(time.Since(start).Seconds())
	}()

	if groupID == "" {
		metrics.RecomputeTotal.WithLabelValues("personal").Inc()
		return s.recomputePersonal(ctx)
	}
	metrics.RecomputeTotal.WithLabelValues("group").Inc()
	return s.recomputeGroup(ctx, groupID)
}

func (s *LedgerService) recomputeGroup(ctx context.Context, groupID string) error {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("recompute group: %w", err)
	}
	expenses, transactions, err := s.loadScope(ctx, groupID)
	if err != nil {
		return fmt.Errorf("recompute group: %w", err)
	}

	balances := calculator.NetBalances(group.Members, expenses, transactions)

	var edges []models.DebtEdge
	if group.SimplifyDebts {
		edges, err = calculator.Simplify(balances)
		if err != nil {
			// Integrity failure. Publish no simplified view; readers fall
			// back to the raw ledger.
			slog.Warn("debt simplification unavailable",
				"group_id", groupID,
				"error", err,
			)
			metrics.SimplifyFailures.Inc()
			edges = nil
		}
	}

	if err := s.store.SaveGroupCaches(ctx, groupID, balances, edges); err != nil {
		return fmt.Errorf("recompute group: %w", err)
	}

	// Mirror the pairwise balances into each member's breakdown cache.
	for i, owner := range group.Members {
		for j, friend := range group.Members {
			if i == j {
				continue
			}
			amount := calculator.PairBalance(expenses, transactions, owner.Ref(), friend.Ref())
			if err := s.store.ReplaceBreakdownEntry(ctx, owner.ID, friend.ID, groupID, amount); err != nil {
				return fmt.Errorf("recompute group breakdown: %w", err)
			}
		}
	}

	slog.Debug("group caches recomputed",
		"group_id", groupID,
		"members", len(group.Members),
		"expenses", len(expenses),
		"transactions", len(transactions),
		"simplified_edges", len(edges),
	)
	return nil
}

// recomputePersonal rebuilds the personal (non-group) breakdown bucket for
// every pair of participants appearing in personal records.
func (s *LedgerService) recomputePersonal(ctx context.Context) error {
	expenses, transactions, err := s.loadScope(ctx, "")
	if err != nil {
		return fmt.Errorf("recompute personal: %w", err)
	}

	refs, err := s.participantRefs(ctx, expenses, transactions)
	if err != nil {
		return fmt.Errorf("recompute personal: %w", err)
	}

	for i, owner := range refs {
		for j, friend := range refs {
			if i == j {
				continue
			}
			amount := calculator.PairBalance(expenses, transactions, owner, friend)
			if err := s.store.ReplaceBreakdownEntry(ctx, owner.ID, friend.ID, "", amount); err != nil {
				return fmt.Errorf("recompute personal breakdown: %w", err)
			}
		}
	}
	return nil
}

// participantRefs collects the distinct member identities referenced by the
// given records, resolving friend records so both identities are known.
func (s *LedgerService) participantRefs(ctx context.Context, expenses []*models.Expense, transactions []*models.Transaction) ([]models.MemberRef, error) {
	friends, err := s.store.ListFriends(ctx)
	if err != nil {
		return nil, err
	}

	var refs []models.MemberRef
	seen := func(id string) bool {
		for _, r := range refs {
			if r.MatchesID(id) {
				return true
			}
		}
		return false
	}
	add := func(id string) {
		if id == "" || seen(id) {
			return
		}
		for _, f := range friends {
			if f.Ref().MatchesID(id) {
				refs = append(refs, f.Ref())
				return
			}
		}
		refs = append(refs, models.MemberRef{ID: id})
	}

	for _, e := range expenses {
		add(e.PayerID)
		for _, split := range e.Splits {
			add(split.UserID)
		}
	}
	for _, t := range transactions {
		add(t.FromID)
		add(t.ToID)
	}
	return refs, nil
}

func (s *LedgerService) loadScope(ctx context.Context, groupID string) ([]*models.Expense, []*models.Transaction, error) {
	expenses, err := s.store.ListExpensesByGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	transactions, err := s.store.ListTransactionsByGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	return expenses, transactions, nil
}

// resolveRef resolves a raw identifier to a full identity pair using the
// group membership, or the friend records for personal scope.
func (s *LedgerService) resolveRef(ctx context.Context, groupID, id string) (models.MemberRef, error) {
	if groupID != "" {
		group, err := s.store.GetGroup(ctx, groupID)
		if err != nil {
			return models.MemberRef{}, err
		}
		for _, m := range group.Members {
			if m.Ref().MatchesID(id) {
				return m.Ref(), nil
			}
		}
		return models.MemberRef{ID: id}, nil
	}

	friends, err := s.store.ListFriends(ctx)
	if err != nil {
		return models.MemberRef{}, err
	}
	for _, f := range friends {
		if f.Ref().MatchesID(id) {
			return f.Ref(), nil
		}
	}
	return models.MemberRef{ID: id}, nil
}
