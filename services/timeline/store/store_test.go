// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"testing"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/timelayer/services/timeline/engine"
	"github.com/AleutianAI/timelayer/services/timeline/storage/badger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil)
}

func iv(start, end string) engine.Interval {
	s, _ := time.Parse(time.RFC3339, start)
	e, _ := time.Parse(time.RFC3339, end)
	return engine.Interval{Start: s, End: e, Project: "timelayer", TaskType: "dev"}
}

// submit runs the full read-plan-apply cycle the service performs.
func submit(t *testing.T, s *Store, incoming engine.Interval) engine.Interval {
	t.Helper()
	ctx := context.Background()
	candidates, err := s.ListRange(ctx, incoming.Start, incoming.End)
	require.NoError(t, err)
	stored, err := s.Apply(ctx, engine.BuildPlan(incoming, candidates))
	require.NoError(t, err)
	return stored
}

func TestApplyInsertOnEmptyStore(t *testing.T) {
	s := newTestStore(t)

	stored := submit(t, s, iv("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z"))
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, "timelayer", stored.Project)

	got, err := s.Get(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, got)
}

func TestListRangeOrdering(t *testing.T) {
	s := newTestStore(t)

	// Insert out of chronological order.
	submit(t, s, iv("2025-06-02T14:00:00Z", "2025-06-02T15:00:00Z"))
	submit(t, s, iv("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z"))
	submit(t, s, iv("2025-06-02T11:00:00Z", "2025-06-02T12:00:00Z"))

	from, _ := time.Parse(time.RFC3339, "2025-06-02T00:00:00Z")
	to, _ := time.Parse(time.RFC3339, "2025-06-03T00:00:00Z")
	got, err := s.ListRange(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.True(t, got[0].Start.Before(got[1].Start))
	assert.True(t, got[1].Start.Before(got[2].Start))
}

func TestListRangeIncludesStraddler(t *testing.T) {
	s := newTestStore(t)

	// An interval crossing midnight must show up in a query for the
	// following day even though its start sorts before the window.
	submit(t, s, iv("2025-06-01T23:00:00Z", "2025-06-02T01:00:00Z"))
	submit(t, s, iv("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z"))

	from, _ := time.Parse(time.RFC3339, "2025-06-02T00:00:00Z")
	to, _ := time.Parse(time.RFC3339, "2025-06-03T00:00:00Z")
	got, err := s.ListRange(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Start.Before(from))
}

func TestListRangeExcludesAdjacent(t *testing.T) {
	s := newTestStore(t)

	submit(t, s, iv("2025-06-02T08:00:00Z", "2025-06-02T09:00:00Z"))
	submit(t, s, iv("2025-06-02T10:00:00Z", "2025-06-02T11:00:00Z"))

	// Window exactly between the two: both merely touch it.
	from, _ := time.Parse(time.RFC3339, "2025-06-02T09:00:00Z")
	to, _ := time.Parse(time.RFC3339, "2025-06-02T10:00:00Z")
	got, err := s.ListRange(context.Background(), from, to)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stored := submit(t, s, iv("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z"))

	require.NoError(t, s.Delete(ctx, stored.ID))
	_, err := s.Get(ctx, stored.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, stored.ID), ErrNotFound)
}

func TestApplyTruncations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	left := submit(t, s, iv("2025-06-02T08:00:00Z", "2025-06-02T09:30:00Z"))
	right := submit(t, s, iv("2025-06-02T11:00:00Z", "2025-06-02T12:30:00Z"))

	// Overlaps the tail of left and the head of right.
	submit(t, s, iv("2025-06-02T09:00:00Z", "2025-06-02T12:00:00Z"))

	// Truncation preserves identity on both sides.
	gotLeft, err := s.Get(ctx, left.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-02T09:00:00Z", gotLeft.End.Format(time.RFC3339))
	assert.Equal(t, left.Start, gotLeft.Start)

	gotRight, err := s.Get(ctx, right.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-02T12:00:00Z", gotRight.Start.Format(time.RFC3339))
	assert.Equal(t, right.End, gotRight.End)

	assert.NoError(t, s.CheckInvariant(ctx))
}

func TestApplySplit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	big := submit(t, s, iv("2025-06-02T09:00:00Z", "2025-06-02T12:00:00Z"))
	submit(t, s, iv("2025-06-02T10:00:00Z", "2025-06-02T11:00:00Z"))

	// The split original is gone; its pieces carry new identities.
	_, err := s.Get(ctx, big.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	from, _ := time.Parse(time.RFC3339, "2025-06-02T00:00:00Z")
	to, _ := time.Parse(time.RFC3339, "2025-06-03T00:00:00Z")
	all, err := s.ListRange(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, "2025-06-02T09:00:00Z", all[0].Start.Format(time.RFC3339))
	assert.Equal(t, "2025-06-02T10:00:00Z", all[0].End.Format(time.RFC3339))
	assert.Equal(t, "2025-06-02T11:00:00Z", all[2].Start.Format(time.RFC3339))
	assert.Equal(t, "2025-06-02T12:00:00Z", all[2].End.Format(time.RFC3339))

	assert.NoError(t, s.CheckInvariant(ctx))
}

func TestApplyDeleteContained(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	small := submit(t, s, iv("2025-06-02T09:30:00Z", "2025-06-02T09:45:00Z"))
	winner := submit(t, s, iv("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z"))

	_, err := s.Get(ctx, small.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.Get(ctx, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, winner, got)
}

func TestApplyStalePlanConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	victim := submit(t, s, iv("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z"))

	// Build a plan against the current view.
	incoming := iv("2025-06-02T09:30:00Z", "2025-06-02T10:30:00Z")
	candidates, err := s.ListRange(ctx, incoming.Start, incoming.End)
	require.NoError(t, err)
	plan := engine.BuildPlan(incoming, candidates)

	// The timeline moves underneath the planner.
	require.NoError(t, s.Delete(ctx, victim.ID))

	_, err = s.Apply(ctx, plan)
	assert.ErrorIs(t, err, ErrConflict)

	// All-or-nothing: the failed apply left nothing behind.
	from, _ := time.Parse(time.RFC3339, "2025-06-02T00:00:00Z")
	to, _ := time.Parse(time.RFC3339, "2025-06-03T00:00:00Z")
	all, err := s.ListRange(ctx, from, to)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestApplyUnexpectedOverlapConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Plan built before anything existed in the window.
	incoming := iv("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z")
	plan := engine.BuildPlan(incoming, nil)

	// Someone else fills the window first.
	submit(t, s, iv("2025-06-02T09:15:00Z", "2025-06-02T09:45:00Z"))

	_, err := s.Apply(ctx, plan)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestOverlappingAppliesConflictAtCommit(t *testing.T) {
	// Two read-write transactions opened before either commits, both
	// inserting into the same empty window. Neither sees the other, so
	// both pass candidate verification; without the version key both
	// commits would succeed and leave two overlapping intervals. The
	// second commit must fail instead.
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	s := New(db, nil)
	ctx := context.Background()

	incoming := iv("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z")
	planA := engine.BuildPlan(incoming, nil)
	planB := engine.BuildPlan(incoming, nil)

	txnA := db.NewTransaction(true)
	defer txnA.Discard()
	txnB := db.NewTransaction(true)
	defer txnB.Discard()

	_, err = applyPlanTxn(txnA, planA)
	require.NoError(t, err)
	_, err = applyPlanTxn(txnB, planB)
	require.NoError(t, err)

	require.NoError(t, txnA.Commit())
	assert.ErrorIs(t, txnB.Commit(), dgbadger.ErrConflict)

	// Only the winner's interval is stored.
	all, err := s.ListRange(ctx, incoming.Start, incoming.End)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.NoError(t, s.CheckInvariant(ctx))
}

func TestDisjointAppliesAlsoSerializedByVersionKey(t *testing.T) {
	// Coarse whole-timeline serialization: even applies over disjoint
	// windows conflict when their transactions overlap in time. The
	// loser surfaces as a retryable conflict, never a silent drop.
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	s := New(db, nil)
	ctx := context.Background()

	planA := engine.BuildPlan(iv("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z"), nil)
	planB := engine.BuildPlan(iv("2025-06-02T14:00:00Z", "2025-06-02T15:00:00Z"), nil)

	txnA := db.NewTransaction(true)
	defer txnA.Discard()
	txnB := db.NewTransaction(true)
	defer txnB.Discard()

	_, err = applyPlanTxn(txnA, planA)
	require.NoError(t, err)
	_, err = applyPlanTxn(txnB, planB)
	require.NoError(t, err)

	require.NoError(t, txnA.Commit())
	assert.ErrorIs(t, txnB.Commit(), dgbadger.ErrConflict)

	// The losing plan succeeds on a fresh attempt.
	_, err = s.Apply(ctx, planB)
	require.NoError(t, err)
	assert.NoError(t, s.CheckInvariant(ctx))
}

func TestCheckInvariantAfterManySubmissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Repeated overlapping submissions over the same morning.
	submit(t, s, iv("2025-06-02T08:00:00Z", "2025-06-02T12:00:00Z"))
	submit(t, s, iv("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z"))
	submit(t, s, iv("2025-06-02T09:30:00Z", "2025-06-02T11:30:00Z"))
	submit(t, s, iv("2025-06-02T07:00:00Z", "2025-06-02T08:30:00Z"))

	assert.NoError(t, s.CheckInvariant(ctx))

	// Total coverage never exceeds the window.
	var total time.Duration
	require.NoError(t, s.ForEach(ctx, func(x engine.Interval) error {
		total += x.Duration()
		return nil
	}))
	assert.LessOrEqual(t, total, 5*time.Hour)
}
