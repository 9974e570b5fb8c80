// Package models defines the core domain models for the splitledger engine.
//
// # Records and caches
//
// Expenses and transactions are the source of truth for all balance math.
// They are append-only and soft-deleted, never removed, so a delete can be
// undone and the affected balances restored.
//
// Group.UserBalances, Group.SimplifiedDebts and the per-friend breakdown
// are derived caches. They must always be reproducible from the record set
// and are written only by the recompute path, never patched incrementally.
//
// # Identity
//
// A member carries two possible identities: the friend-record ID and, once
// the person has an account, a linked user ID. Every lookup that matches a
// participant must try both. MemberRef is the single value type for this;
// its Matches/MatchesID predicates are the only identity comparison in the
// repository.
package models
