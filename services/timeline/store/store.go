// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists the timeline's interval set in BadgerDB and
// applies resolution plans atomically.
//
// Key layout:
//
//	iv:{start}:{id} -> JSON-encoded interval, start zero-padded so keys
//	                   sort by start instant
//	id:{id}         -> primary key bytes, for delete/update by identity
//
// The ordered primary keys make the [from, to) range query a bounded
// forward scan plus one reverse lookup for an interval straddling the
// window's left edge, so cross-midnight spans are found on absolute
// instants rather than per-day buckets.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/timelayer/services/timeline/engine"
	"github.com/AleutianAI/timelayer/services/timeline/storage/badger"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the target interval no longer exists.
	ErrNotFound = errors.New("interval not found")

	// ErrConflict indicates a concurrent submission invalidated the
	// planner's view of the timeline. The whole transaction was
	// aborted; the caller must restart from the candidate query.
	ErrConflict = errors.New("timeline changed concurrently")
)

const (
	intervalPrefix = "iv:"
	idPrefix       = "id:"
)

// Store owns the persisted interval set.
//
// Description:
//
//	All access to persisted intervals goes through this type. Reads run
//	in read-only transactions and may proceed concurrently with writes;
//	writes happen only through Apply, one plan per read-write
//	transaction, so a partially applied plan is never observable.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// New creates a store on an opened database handle.
//
// The store does not take ownership of the handle; the caller closes it.
// Passing the handle in, rather than reaching for a process-wide
// singleton, lets tests run against isolated in-memory databases.
func New(db *badger.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With(slog.String("component", "timeline_store")),
	}
}

// primaryKey builds the start-ordered primary key for an interval.
// Zero-padded decimal only sorts correctly for non-negative timestamps;
// Interval.Validate rejects pre-epoch starts before they reach storage.
func primaryKey(start time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%016d:%s", intervalPrefix, start.Unix(), id))
}

// seekKey builds the lowest possible primary key for a start instant.
// It sorts before every real key with that start and after every key
// with an earlier start.
func seekKey(start time.Time) []byte {
	return []byte(fmt.Sprintf("%s%016d", intervalPrefix, start.Unix()))
}

// indexKey builds the identity index key for an interval ID.
func indexKey(id string) []byte {
	return []byte(idPrefix + id)
}

func encodeInterval(iv engine.Interval) ([]byte, error) {
	data, err := json.Marshal(iv)
	if err != nil {
		return nil, fmt.Errorf("encode interval: %w", err)
	}
	return data, nil
}

func decodeInterval(data []byte) (engine.Interval, error) {
	var iv engine.Interval
	if err := json.Unmarshal(data, &iv); err != nil {
		return engine.Interval{}, fmt.Errorf("decode interval: %w", err)
	}
	return iv, nil
}

// ListRange returns every interval whose span intersects [from, to),
// ordered by start.
//
// Description:
//
//	Forward-scans primary keys with start in [from, to), then checks
//	one reverse lookup for the newest interval starting before the
//	window, which by the non-overlap invariant is the only stored
//	interval that could straddle the window's left edge.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - from: Inclusive window start.
//   - to: Exclusive window end.
//
// Outputs:
//   - []engine.Interval: Intersecting intervals ordered by start.
//     Empty slice when none intersect.
//   - error: Non-nil on storage failure.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) ListRange(ctx context.Context, from, to time.Time) ([]engine.Interval, error) {
	var out []engine.Interval
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		var err error
		out, err = listRangeTxn(txn, from, to)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list range: %w", err)
	}
	return out, nil
}

// listRangeTxn runs the range query inside an existing transaction.
//
// When the transaction is a read-write one, the iterator registers its
// reads with Badger's conflict detector, so a concurrent commit into
// the scanned window fails this transaction's commit.
func listRangeTxn(txn *dgbadger.Txn, from, to time.Time) ([]engine.Interval, error) {
	out := []engine.Interval{}

	// One interval may start before the window and reach into it.
	straddler, ok, err := lastStartingBefore(txn, from)
	if err != nil {
		return nil, err
	}
	if ok && straddler.End.After(from) {
		out = append(out, straddler)
	}

	opts := dgbadger.DefaultIteratorOptions
	opts.Prefix = []byte(intervalPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	upper := seekKey(to)
	for it.Seek(seekKey(from)); it.Valid(); it.Next() {
		item := it.Item()
		if bytes.Compare(item.Key(), upper) >= 0 {
			break
		}
		var iv engine.Interval
		err := item.Value(func(val []byte) error {
			var derr error
			iv, derr = decodeInterval(val)
			return derr
		})
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}

	return out, nil
}

// lastStartingBefore returns the interval with the greatest start
// strictly before the given instant, if any.
func lastStartingBefore(txn *dgbadger.Txn, before time.Time) (engine.Interval, bool, error) {
	opts := dgbadger.DefaultIteratorOptions
	opts.Prefix = []byte(intervalPrefix)
	opts.Reverse = true
	it := txn.NewIterator(opts)
	defer it.Close()

	// In reverse mode Seek positions at the greatest key <= the seek
	// key. seekKey(before) has no trailing ":{id}", so every real key
	// with the same start sorts after it and is skipped.
	it.Seek(seekKey(before))
	if !it.Valid() {
		return engine.Interval{}, false, nil
	}

	var iv engine.Interval
	err := it.Item().Value(func(val []byte) error {
		var derr error
		iv, derr = decodeInterval(val)
		return derr
	})
	if err != nil {
		return engine.Interval{}, false, err
	}
	return iv, true, nil
}

// Get returns the interval with the given ID.
//
// Outputs:
//   - engine.Interval: The stored interval.
//   - error: ErrNotFound if no interval has that ID.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Get(ctx context.Context, id string) (engine.Interval, error) {
	var iv engine.Interval
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		var err error
		iv, err = getByIDTxn(txn, id)
		return err
	})
	if err != nil {
		return engine.Interval{}, err
	}
	return iv, nil
}

func getByIDTxn(txn *dgbadger.Txn, id string) (engine.Interval, error) {
	item, err := txn.Get(indexKey(id))
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return engine.Interval{}, fmt.Errorf("%w: id=%s", ErrNotFound, id)
	}
	if err != nil {
		return engine.Interval{}, fmt.Errorf("read index: %w", err)
	}

	var pk []byte
	if err := item.Value(func(val []byte) error {
		pk = append([]byte(nil), val...)
		return nil
	}); err != nil {
		return engine.Interval{}, fmt.Errorf("read index value: %w", err)
	}

	primary, err := txn.Get(pk)
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return engine.Interval{}, fmt.Errorf("%w: id=%s", ErrNotFound, id)
	}
	if err != nil {
		return engine.Interval{}, fmt.Errorf("read interval: %w", err)
	}

	var iv engine.Interval
	err = primary.Value(func(val []byte) error {
		var derr error
		iv, derr = decodeInterval(val)
		return derr
	})
	if err != nil {
		return engine.Interval{}, err
	}
	return iv, nil
}

// Delete removes the interval with the given ID.
//
// Description:
//
//	Explicit user deletion. Runs in its own transaction; the identity
//	is retired permanently.
//
// Outputs:
//   - error: ErrNotFound if no interval has that ID; storage failure
//     otherwise.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return deleteByIDTxn(txn, id)
	})
	if errors.Is(err, dgbadger.ErrConflict) {
		return fmt.Errorf("%w: %s", ErrConflict, err)
	}
	return err
}

func deleteByIDTxn(txn *dgbadger.Txn, id string) error {
	iv, err := getByIDTxn(txn, id)
	if err != nil {
		return err
	}
	if err := txn.Delete(primaryKey(iv.Start, iv.ID)); err != nil {
		return fmt.Errorf("delete interval: %w", err)
	}
	if err := txn.Delete(indexKey(id)); err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	return nil
}

// insertTxn writes a new interval under both keys.
func insertTxn(txn *dgbadger.Txn, iv engine.Interval) error {
	data, err := encodeInterval(iv)
	if err != nil {
		return err
	}
	pk := primaryKey(iv.Start, iv.ID)
	if err := txn.Set(pk, data); err != nil {
		return fmt.Errorf("write interval: %w", err)
	}
	if err := txn.Set(indexKey(iv.ID), pk); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// ForEach calls fn for every persisted interval in start order.
//
// Used by read-only derived views (tag suggestions); fn must not
// mutate the store.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) ForEach(ctx context.Context, fn func(engine.Interval) error) error {
	return s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.Prefix = []byte(intervalPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var iv engine.Interval
			err := it.Item().Value(func(val []byte) error {
				var derr error
				iv, derr = decodeInterval(val)
				return derr
			})
			if err != nil {
				return err
			}
			if err := fn(iv); err != nil {
				return err
			}
		}
		return nil
	})
}

// CheckInvariant verifies that no two persisted intervals overlap.
//
// Description:
//
//	Walks the start-ordered keyspace and compares each interval with
//	its successor. Intended for tests and diagnostics; a correct
//	applier makes this pass between any two transactions.
//
// Outputs:
//   - error: Non-nil naming the first overlapping pair found.
func (s *Store) CheckInvariant(ctx context.Context) error {
	var prev *engine.Interval
	return s.ForEach(ctx, func(iv engine.Interval) error {
		if prev != nil && prev.Overlaps(iv) {
			return fmt.Errorf("overlap invariant violated: [%s, %s) id=%s overlaps [%s, %s) id=%s",
				prev.Start.Format(time.RFC3339), prev.End.Format(time.RFC3339), prev.ID,
				iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339), iv.ID)
		}
		cur := iv
		prev = &cur
		return nil
	})
}
