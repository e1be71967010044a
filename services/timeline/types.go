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

import (
	"time"

	"github.com/AleutianAI/timelayer/services/timeline/engine"
)

// SubmitRequest is the body for POST /v1/timeline/entries.
type SubmitRequest struct {
	// StartTime is the inclusive start instant, RFC3339.
	StartTime time.Time `json:"start_time" binding:"required"`

	// EndTime is the exclusive end instant, RFC3339. Must be after StartTime.
	EndTime time.Time `json:"end_time" binding:"required"`

	// Project is the project label.
	Project string `json:"project" binding:"required"`

	// TaskType is the task type label.
	TaskType string `json:"task_type" binding:"required"`

	// Memo is optional free text.
	Memo string `json:"memo"`
}

// Interval converts the request into the engine's data type.
func (r SubmitRequest) Interval() engine.Interval {
	return engine.Interval{
		Start:    r.StartTime,
		End:      r.EndTime,
		Project:  r.Project,
		TaskType: r.TaskType,
		Memo:     r.Memo,
	}
}

// EntryResponse is the wire form of a persisted interval.
type EntryResponse struct {
	ID              string    `json:"id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Project         string    `json:"project"`
	TaskType        string    `json:"task_type"`
	Memo            string    `json:"memo,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
}

// NewEntryResponse converts a persisted interval to its wire form.
func NewEntryResponse(iv engine.Interval) EntryResponse {
	return EntryResponse{
		ID:              iv.ID,
		StartTime:       iv.Start,
		EndTime:         iv.End,
		Project:         iv.Project,
		TaskType:        iv.TaskType,
		Memo:            iv.Memo,
		DurationMinutes: iv.DurationMinutes(),
	}
}

// NewEntryResponses converts a slice of intervals, preserving order.
func NewEntryResponses(ivs []engine.Interval) []EntryResponse {
	out := make([]EntryResponse, 0, len(ivs))
	for _, iv := range ivs {
		out = append(out, NewEntryResponse(iv))
	}
	return out
}

// CloneDayRequest is the body for POST /v1/timeline/entries/clone-day.
// Both dates default when empty: source to yesterday, target to today.
type CloneDayRequest struct {
	// SourceDate is the day to copy from, YYYY-MM-DD.
	SourceDate string `json:"source_date"`

	// TargetDate is the day to copy onto, YYYY-MM-DD.
	TargetDate string `json:"target_date"`
}

// NameValue is one slice of a breakdown, ordered by descending value.
type NameValue struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// DailySummary is one day's recorded total.
type DailySummary struct {
	Date    string  `json:"date"`
	Minutes int     `json:"minutes"`
	Hours   float64 `json:"hours"`
}

// AnalyticsResponse is the aggregation over a day window. It is a
// read-only derived view; the engine guarantees the underlying set it
// sums over is non-overlapping, so totals never double-count time.
type AnalyticsResponse struct {
	ProjectBreakdown  []NameValue    `json:"project_breakdown"`
	TaskTypeBreakdown []NameValue    `json:"task_type_breakdown"`
	DailySummary      []DailySummary `json:"daily_summary"`
	TotalMinutes      int            `json:"total_minutes"`
	TotalHours        float64        `json:"total_hours"`
	EntryCount        int            `json:"entry_count"`
}

// TagsResponse lists the distinct labels observed historically.
type TagsResponse struct {
	Projects  []string `json:"projects"`
	TaskTypes []string `json:"task_types"`
}

// ErrorResponse is the error body returned by every handler.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the body for GET /v1/timeline/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the body for GET /v1/timeline/ready.
type ReadyResponse struct {
	Ready bool `json:"ready"`
}
