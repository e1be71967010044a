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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	applyDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timeline_apply_duration_seconds",
		Help:    "Time to apply a resolution plan",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"status"})

	applyMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_apply_mutations_total",
		Help: "Resolution mutations committed, by action",
	}, []string{"action"})

	applyConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_apply_conflicts_total",
		Help: "Plan applications aborted because the planner's view was stale",
	})
)
