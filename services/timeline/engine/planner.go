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

// BuildPlan resolves an incoming interval against the stored intervals
// that could overlap it.
//
// Description:
//
//	For each candidate, classifies its relationship to the incoming
//	interval and appends the implied mutation. Candidates are, by the
//	store invariant, mutually non-overlapping, so classification
//	results are independent and the candidate order does not affect
//	the resulting state. The insertion always comes last.
//
//	Pure function: no I/O, no clock, no store access. Degenerate split
//	remainders (zero-length after truncation at a shared boundary) are
//	dropped rather than planned.
//
// Inputs:
//   - incoming: The validated, normalized submission.
//   - candidates: Every persisted interval whose range could intersect
//     incoming's range. The store's range query is responsible for this
//     filtering; extra disjoint candidates are harmless.
//
// Outputs:
//   - Plan: The complete mutation list plus the final insert.
func BuildPlan(incoming Interval, candidates []Interval) Plan {
	plan := Plan{Insert: incoming}

	for _, existing := range candidates {
		switch c := Classify(existing, incoming).(type) {
		case Disjoint:
			// Adjacency is not overlap; nothing to do.

		case Contained:
			plan.Mutations = append(plan.Mutations, Delete{ID: existing.ID})

		case Engulfing:
			split := Split{ID: existing.ID}
			if left := c.Left; !left.degenerate() {
				left.ID = ""
				split.Left = &left
			}
			if right := c.Right; !right.degenerate() {
				right.ID = ""
				split.Right = &right
			}
			plan.Mutations = append(plan.Mutations, split)

		case LeftOverhang:
			plan.Mutations = append(plan.Mutations, TruncateEnd{
				ID:     existing.ID,
				NewEnd: c.Remainder.End,
			})

		case RightOverhang:
			plan.Mutations = append(plan.Mutations, TruncateStart{
				ID:       existing.ID,
				NewStart: c.Remainder.Start,
			})
		}
	}

	return plan
}
