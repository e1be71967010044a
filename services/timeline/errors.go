// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package timeline

import "errors"

// Sentinel errors for the timeline service.
var (
	// ErrEmptyDay indicates a clone request named a source day with no
	// recorded intervals.
	ErrEmptyDay = errors.New("no intervals recorded on source day")

	// ErrBadDate indicates a date parameter was not YYYY-MM-DD.
	ErrBadDate = errors.New("date must be YYYY-MM-DD")

	// ErrBadWindow indicates a range query window was missing or inverted.
	ErrBadWindow = errors.New("query window must satisfy from < to")

	// ErrRetriesExhausted indicates a submission kept losing races with
	// concurrent submissions and gave up. The request can be retried.
	ErrRetriesExhausted = errors.New("submission retries exhausted")
)
