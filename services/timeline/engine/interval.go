// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine implements the timeline consistency engine.
//
// The engine keeps a user's persisted work intervals non-overlapping in
// absolute time. A newly submitted interval always wins over anything
// already stored in its range: the classifier determines how each stored
// interval relates to the new one, and the planner turns those
// classifications into an ordered mutation plan (deletions, truncations,
// splits, then the final insert) that the store applies as a single
// transaction.
//
// The classifier and planner are pure functions with no I/O, which keeps
// the interval algebra independently testable from persistence.
package engine

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for interval validation.
var (
	// ErrInvalidRange indicates start is not strictly before end.
	ErrInvalidRange = errors.New("interval start must be before end")

	// ErrEmptyProject indicates the project label is empty.
	ErrEmptyProject = errors.New("project must not be empty")

	// ErrEmptyTaskType indicates the task type label is empty.
	ErrEmptyTaskType = errors.New("task type must not be empty")
)

// Interval is a recorded work span with project and task metadata.
//
// Description:
//
//	The unit the engine reasons about. Start and End are absolute
//	instants at minute resolution; the covered range is the half-open
//	[Start, End). ID is assigned by the store on insertion and is empty
//	before an interval is persisted. Memo is free text with no effect
//	on overlap resolution.
//
// Thread Safety: Immutable by convention; the engine never mutates a
// persisted interval in place.
type Interval struct {
	// ID is the opaque identity assigned on persistence.
	ID string `json:"id,omitempty"`

	// Start is the inclusive start instant.
	Start time.Time `json:"start_time"`

	// End is the exclusive end instant. Always after Start.
	End time.Time `json:"end_time"`

	// Project is the non-empty project label.
	Project string `json:"project"`

	// TaskType is the non-empty task type label.
	TaskType string `json:"task_type"`

	// Memo is optional free text.
	Memo string `json:"memo,omitempty"`
}

// Validate checks the interval invariants enforced at the boundary.
//
// Outputs:
//   - error: ErrInvalidRange, ErrEmptyProject, or ErrEmptyTaskType.
//     Nil when the interval is well formed.
func (iv Interval) Validate() error {
	if !iv.Start.Before(iv.End) {
		return fmt.Errorf("%w: start=%s end=%s",
			ErrInvalidRange, iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
	}
	// Storage keys order intervals by the unsigned decimal of the start
	// Unix timestamp, so pre-epoch instants are rejected here.
	if iv.Start.Unix() < 0 {
		return fmt.Errorf("%w: start %s precedes 1970-01-01",
			ErrInvalidRange, iv.Start.Format(time.RFC3339))
	}
	if iv.Project == "" {
		return ErrEmptyProject
	}
	if iv.TaskType == "" {
		return ErrEmptyTaskType
	}
	return nil
}

// Normalize truncates both instants to minute resolution in UTC.
//
// Description:
//
//	The engine works at minute granularity. Normalization happens once
//	at the boundary so every comparison downstream is exact.
func (iv Interval) Normalize() Interval {
	iv.Start = iv.Start.UTC().Truncate(time.Minute)
	iv.End = iv.End.UTC().Truncate(time.Minute)
	return iv
}

// Duration returns the length of the interval.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// DurationMinutes returns the length of the interval in whole minutes.
func (iv Interval) DurationMinutes() int {
	return int(iv.Duration() / time.Minute)
}

// Overlaps reports whether the two half-open ranges intersect.
//
// Touching endpoints (iv.End == other.Start or vice versa) do not count
// as overlap; adjacency is allowed.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// degenerate reports whether the interval covers no time.
func (iv Interval) degenerate() bool {
	return !iv.Start.Before(iv.End)
}
