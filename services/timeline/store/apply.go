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
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/timelayer/services/timeline/engine"
)

var applyTracer = otel.Tracer("timeline.store")

// versionKey is the coordination key every Apply transaction reads and
// rewrites. Badger's conflict detection compares a transaction's read
// keys against concurrent commits and has no phantom protection: an
// iterator over an empty window registers no reads, so two inserts
// into the same empty region would otherwise both commit. Touching
// this one key makes any two temporally overlapping applies conflict
// at commit; the loser restarts from the candidate query.
var versionKey = []byte("timeline:version")

// Apply executes a resolution plan as a single all-or-nothing
// transaction and returns the inserted interval with its assigned ID.
//
// Description:
//
//	The atomic applier. Inside one read-write transaction it:
//
//	 1. Reads and increments the timeline version key, serializing
//	    this apply against every temporally overlapping one.
//	 2. Re-runs the range query over the insert's window. The set of
//	    overlapping IDs must exactly match the plan's mutation targets;
//	    any difference means the planner's candidate read is stale and
//	    the transaction aborts with ErrConflict.
//	 3. Executes every mutation: deletes, truncations (identity
//	    preserved), and splits (original identity retired, remainders
//	    inserted under fresh IDs).
//	 4. Inserts the incoming interval last, under a fresh ID.
//
//	A commit-time Badger conflict surfaces as ErrConflict. No retry
//	happens here; restarting the read-plan-apply sequence is the
//	submission entry point's job, since the state the plan was built
//	against is stale. The version key conflicts even applies over
//	disjoint windows; that coarse whole-timeline serialization is
//	absorbed by the submission retry loop.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - plan: The complete plan from engine.BuildPlan. The insert must be
//     validated and normalized.
//
// Outputs:
//   - engine.Interval: The inserted interval with its assigned ID.
//   - error: ErrConflict when the plan's view was invalidated; wrapped
//     storage failure otherwise. On any error nothing was written.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Apply(ctx context.Context, plan engine.Plan) (engine.Interval, error) {
	start := time.Now()
	ctx, span := applyTracer.Start(ctx, "timeline.Store.Apply")
	defer span.End()

	var inserted engine.Interval
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		var err error
		inserted, err = applyPlanTxn(txn, plan)
		return err
	})

	if errors.Is(err, dgbadger.ErrConflict) {
		err = fmt.Errorf("%w: transaction conflict", ErrConflict)
	}

	if err != nil {
		span.RecordError(err)
		status := "error"
		if errors.Is(err, ErrConflict) {
			span.SetStatus(codes.Error, "plan invalidated")
			status = "conflict"
			applyConflictsTotal.Inc()
		} else {
			span.SetStatus(codes.Error, "apply failed")
		}
		applyDurationHistogram.WithLabelValues(status).Observe(time.Since(start).Seconds())
		return engine.Interval{}, err
	}

	for _, m := range plan.Mutations {
		applyMutationsTotal.WithLabelValues(mutationLabel(m)).Inc()
	}
	applyDurationHistogram.WithLabelValues("success").Observe(time.Since(start).Seconds())

	span.SetAttributes(
		attribute.Int("mutations", len(plan.Mutations)),
		attribute.String("interval_id", inserted.ID),
	)
	s.logger.Debug("plan applied",
		slog.Int("mutations", len(plan.Mutations)),
		slog.String("interval_id", inserted.ID),
		slog.Duration("duration", time.Since(start)))

	return inserted, nil
}

// applyPlanTxn runs the full apply sequence inside an existing
// read-write transaction. The caller commits.
func applyPlanTxn(txn *dgbadger.Txn, plan engine.Plan) (engine.Interval, error) {
	if err := bumpVersion(txn); err != nil {
		return engine.Interval{}, err
	}

	if err := verifyCandidates(txn, plan); err != nil {
		return engine.Interval{}, err
	}

	for _, m := range plan.Mutations {
		if err := applyMutation(txn, m); err != nil {
			return engine.Interval{}, err
		}
	}

	inserted := plan.Insert
	inserted.ID = uuid.NewString()
	if err := insertTxn(txn, inserted); err != nil {
		return engine.Interval{}, err
	}
	return inserted, nil
}

// bumpVersion reads and rewrites the timeline version key. The read
// registers the key with the conflict detector, so of two overlapping
// read-write transactions that both bump it, only the first commit
// succeeds.
func bumpVersion(txn *dgbadger.Txn) error {
	var n uint64
	item, err := txn.Get(versionKey)
	switch {
	case errors.Is(err, dgbadger.ErrKeyNotFound):
		// First apply ever; start the counter at zero.
	case err != nil:
		return fmt.Errorf("read timeline version: %w", err)
	default:
		if err := item.Value(func(val []byte) error {
			if len(val) == 8 {
				n = binary.BigEndian.Uint64(val)
			}
			return nil
		}); err != nil {
			return fmt.Errorf("read timeline version value: %w", err)
		}
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n+1)
	if err := txn.Set(versionKey, buf); err != nil {
		return fmt.Errorf("write timeline version: %w", err)
	}
	return nil
}

// verifyCandidates aborts the transaction when the stored intervals
// overlapping the insert window differ from the plan's targets.
func verifyCandidates(txn *dgbadger.Txn, plan engine.Plan) error {
	overlapping, err := listRangeTxn(txn, plan.Insert.Start, plan.Insert.End)
	if err != nil {
		return err
	}

	targets := make(map[string]bool, len(plan.Mutations))
	for _, id := range plan.TargetIDs() {
		targets[id] = true
	}

	seen := 0
	for _, iv := range overlapping {
		if !iv.Overlaps(plan.Insert) {
			// Range edge case: a window candidate that only touches.
			continue
		}
		if !targets[iv.ID] {
			return fmt.Errorf("%w: unplanned interval id=%s in window", ErrConflict, iv.ID)
		}
		seen++
	}
	if seen != len(targets) {
		return fmt.Errorf("%w: %d of %d planned targets still present", ErrConflict, seen, len(targets))
	}
	return nil
}

// applyMutation executes one mutation inside the transaction.
func applyMutation(txn *dgbadger.Txn, m engine.Mutation) error {
	switch mut := m.(type) {
	case engine.Delete:
		return conflictIfMissing(deleteByIDTxn(txn, mut.ID))

	case engine.TruncateEnd:
		iv, err := getByIDTxn(txn, mut.ID)
		if err != nil {
			return conflictIfMissing(err)
		}
		iv.End = mut.NewEnd
		// Start is unchanged, so the primary key stays stable.
		return insertTxn(txn, iv)

	case engine.TruncateStart:
		iv, err := getByIDTxn(txn, mut.ID)
		if err != nil {
			return conflictIfMissing(err)
		}
		if err := txn.Delete(primaryKey(iv.Start, iv.ID)); err != nil {
			return fmt.Errorf("delete old key: %w", err)
		}
		iv.Start = mut.NewStart
		return insertTxn(txn, iv)

	case engine.Split:
		original, err := getByIDTxn(txn, mut.ID)
		if err != nil {
			return conflictIfMissing(err)
		}
		if err := txn.Delete(primaryKey(original.Start, original.ID)); err != nil {
			return fmt.Errorf("delete split original: %w", err)
		}
		if err := txn.Delete(indexKey(original.ID)); err != nil {
			return fmt.Errorf("delete split index: %w", err)
		}
		for _, remainder := range []*engine.Interval{mut.Left, mut.Right} {
			if remainder == nil {
				continue
			}
			piece := *remainder
			piece.ID = uuid.NewString()
			if err := insertTxn(txn, piece); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown mutation type %T", m)
	}
}

// conflictIfMissing converts a missing mutation target into a conflict:
// the planner saw the interval, so its disappearance means a concurrent
// submission won the race.
func conflictIfMissing(err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrConflict, err)
	}
	return err
}

// mutationLabel names a mutation for metrics.
func mutationLabel(m engine.Mutation) string {
	switch m.(type) {
	case engine.Delete:
		return "delete"
	case engine.TruncateEnd:
		return "truncate_end"
	case engine.TruncateStart:
		return "truncate_start"
	case engine.Split:
		return "split"
	default:
		return "unknown"
	}
}
