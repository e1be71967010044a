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

// Classification is the closed set of overlap relationships between one
// stored interval and one incoming interval.
//
// Description:
//
//	Each variant carries only the data its implied mutation needs. The
//	set is sealed: only the five types in this file implement it, so a
//	type switch over a Classification is exhaustive.
//
//	Ranges are half-open, so touching endpoints classify as Disjoint.
type Classification interface {
	isClassification()
}

// Disjoint means the ranges do not intersect. No action.
type Disjoint struct{}

// Contained means the stored interval lies fully inside the incoming
// one. Action: delete the stored interval.
type Contained struct{}

// Engulfing means the stored interval strictly surrounds the incoming
// one. Action: split the stored interval into the two remainders, both
// inheriting its project, task type, and memo.
type Engulfing struct {
	// Left is the surviving piece before the incoming interval.
	Left Interval

	// Right is the surviving piece after the incoming interval.
	Right Interval
}

// LeftOverhang means the stored interval starts before the incoming one
// and overlaps it on the incoming's left side. Action: truncate the
// stored interval's end to the incoming's start; Remainder is the
// surviving piece.
type LeftOverhang struct {
	Remainder Interval
}

// RightOverhang means the stored interval extends past the incoming
// one's end and overlaps it on the incoming's right side. Action:
// truncate the stored interval's start to the incoming's end; Remainder
// is the surviving piece.
type RightOverhang struct {
	Remainder Interval
}

func (Disjoint) isClassification()      {}
func (Contained) isClassification()     {}
func (Engulfing) isClassification()     {}
func (LeftOverhang) isClassification()  {}
func (RightOverhang) isClassification() {}

// Classify determines the relationship between a stored interval and an
// incoming submission.
//
// Description:
//
//	Compares the half-open ranges [existing.Start, existing.End) and
//	[incoming.Start, incoming.End) and returns the variant naming the
//	rewrite the incoming interval forces on the existing one. The
//	incoming interval always wins; the classification only describes
//	what survives of the existing one.
//
//	Case analysis (E = existing, N = incoming):
//	  - no intersection, including touching endpoints -> Disjoint
//	  - N.Start <= E.Start and E.End <= N.End         -> Contained
//	  - E.Start <  N.Start and N.End <  E.End         -> Engulfing
//	  - E.Start <  N.Start and E.End <= N.End         -> LeftOverhang
//	  - N.Start <= E.Start and N.End <  E.End         -> RightOverhang
//
//	The function is total over well-formed inputs: every overlapping
//	pair falls into exactly one of the four overlap cases. Engulfing
//	remainders are non-degenerate by construction, because both bounds
//	are strict.
//
// Inputs:
//   - existing: A persisted interval. Must satisfy Start < End.
//   - incoming: The submission being resolved. Must satisfy Start < End.
//
// Outputs:
//   - Classification: One of the five variants.
func Classify(existing, incoming Interval) Classification {
	if !existing.Overlaps(incoming) {
		return Disjoint{}
	}

	startsAtOrBefore := !incoming.Start.After(existing.Start) // N.Start <= E.Start
	endsAtOrAfter := !existing.End.After(incoming.End)        // E.End <= N.End

	switch {
	case startsAtOrBefore && endsAtOrAfter:
		return Contained{}

	case !startsAtOrBefore && !endsAtOrAfter:
		// Existing strictly surrounds incoming on both sides.
		left := existing
		left.End = incoming.Start
		right := existing
		right.Start = incoming.End
		return Engulfing{Left: left, Right: right}

	case !startsAtOrBefore:
		// Existing starts earlier and ends inside or at incoming's end.
		trunc := existing
		trunc.End = incoming.Start
		return LeftOverhang{Remainder: trunc}

	default:
		// Existing extends past incoming's end.
		trunc := existing
		trunc.Start = incoming.End
		return RightOverhang{Remainder: trunc}
	}
}
