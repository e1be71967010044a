// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "time"

// Mutation is one rewrite of a stored interval required before the
// incoming interval can be inserted.
//
// The set is sealed: Delete, TruncateEnd, TruncateStart, and Split are
// the only implementations. Every mutation names its target by ID so
// the applier can verify the target still exists at commit time.
type Mutation interface {
	// TargetID returns the ID of the stored interval this mutation
	// rewrites.
	TargetID() string
}

// Delete removes a stored interval that the incoming one fully covers.
type Delete struct {
	ID string
}

// TruncateEnd shortens a stored interval from the right, keeping its
// identity.
type TruncateEnd struct {
	ID     string
	NewEnd time.Time
}

// TruncateStart shortens a stored interval from the left, keeping its
// identity.
type TruncateStart struct {
	ID       string
	NewStart time.Time
}

// Split replaces a stored interval with up to two remainders, one on
// each side of the incoming interval. The original identity is retired;
// the remainders receive new identities on insertion. A degenerate
// remainder is represented as nil and not stored.
type Split struct {
	ID    string
	Left  *Interval
	Right *Interval
}

func (m Delete) TargetID() string        { return m.ID }
func (m TruncateEnd) TargetID() string   { return m.ID }
func (m TruncateStart) TargetID() string { return m.ID }
func (m Split) TargetID() string         { return m.ID }

// Plan is the complete, ordered rewrite a submission requires: zero or
// more mutations of stored intervals followed by the insertion of the
// incoming interval.
//
// A Plan is a pure value. Nothing is written until the store applies it,
// and application is all-or-nothing.
type Plan struct {
	// Mutations are the rewrites of conflicting stored intervals.
	Mutations []Mutation

	// Insert is the incoming interval, stored last so its identity is
	// assigned after all conflicting state is resolved.
	Insert Interval
}

// TargetIDs returns the IDs of every stored interval the plan mutates.
func (p Plan) TargetIDs() []string {
	ids := make([]string, 0, len(p.Mutations))
	for _, m := range p.Mutations {
		ids = append(ids, m.TargetID())
	}
	return ids
}
