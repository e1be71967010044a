// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package timeline is the TimeLayer service: submission with automatic
// overlap resolution, range listing, period analytics, day cloning, and
// tag suggestions over a single persisted timeline.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/AleutianAI/timelayer/services/timeline/engine"
	"github.com/AleutianAI/timelayer/services/timeline/store"
)

// ServiceVersion is the timeline service version.
const ServiceVersion = "0.1.0"

// dayLayout is the wire format for calendar-day parameters.
const dayLayout = "2006-01-02"

// ServiceConfig configures the timeline service.
type ServiceConfig struct {
	// MaxConflictRetries bounds how often a submission restarts its
	// read-plan-apply sequence after losing a race with a concurrent
	// submission. Default: 3.
	MaxConflictRetries int

	// Logger for service operations. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultServiceConfig returns production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxConflictRetries: 3,
	}
}

// Service implements the timeline boundary on top of the consistency
// engine and the store.
//
// Thread Safety: Safe for concurrent use; every write is one store
// transaction.
type Service struct {
	store  *store.Store
	cfg    ServiceConfig
	logger *slog.Logger
}

// NewService creates the timeline service on an existing store.
func NewService(st *store.Store, cfg ServiceConfig) *Service {
	if cfg.MaxConflictRetries <= 0 {
		cfg.MaxConflictRetries = DefaultServiceConfig().MaxConflictRetries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "timeline_service")),
	}
}

// Submit records a work interval, rewriting any stored intervals it
// overlaps so the persisted set stays non-overlapping.
//
// Description:
//
//	Validates and normalizes the interval, then runs the
//	read-plan-apply sequence: query the candidates that could overlap,
//	build the resolution plan, apply it in one transaction. When the
//	apply aborts with a conflict the whole sequence restarts from the
//	candidate query, up to MaxConflictRetries times, because the state
//	the plan was built against is stale.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - iv: The submission. ID must be empty; identity is assigned on
//     persistence.
//
// Outputs:
//   - engine.Interval: The stored interval with its assigned ID.
//   - error: engine validation sentinels for malformed input (nothing
//     written), ErrRetriesExhausted wrapping store.ErrConflict when
//     every attempt lost its race, or a wrapped storage failure.
func (s *Service) Submit(ctx context.Context, iv engine.Interval) (engine.Interval, error) {
	iv = iv.Normalize()
	if err := iv.Validate(); err != nil {
		submissionsTotal.WithLabelValues("invalid").Inc()
		return engine.Interval{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxConflictRetries; attempt++ {
		candidates, err := s.store.ListRange(ctx, iv.Start, iv.End)
		if err != nil {
			submissionsTotal.WithLabelValues("error").Inc()
			return engine.Interval{}, err
		}

		plan := engine.BuildPlan(iv, candidates)

		stored, err := s.store.Apply(ctx, plan)
		if err == nil {
			submissionsTotal.WithLabelValues("success").Inc()
			s.logger.Info("interval recorded",
				slog.String("id", stored.ID),
				slog.String("project", stored.Project),
				slog.Int("resolved", len(plan.Mutations)))
			return stored, nil
		}

		if !errors.Is(err, store.ErrConflict) {
			submissionsTotal.WithLabelValues("error").Inc()
			return engine.Interval{}, err
		}

		lastErr = err
		conflictRetriesTotal.Inc()
		s.logger.Warn("submission lost race, restarting",
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", s.cfg.MaxConflictRetries))
	}

	submissionsTotal.WithLabelValues("conflict").Inc()
	return engine.Interval{}, fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

// Delete removes an interval by ID.
//
// Outputs:
//   - error: store.ErrNotFound when no interval has that ID.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("interval deleted", slog.String("id", id))
	return nil
}

// ListRange returns the intervals intersecting [from, to), ordered by
// start.
func (s *Service) ListRange(ctx context.Context, from, to time.Time) ([]engine.Interval, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from=%s to=%s", ErrBadWindow,
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return s.store.ListRange(ctx, from.UTC(), to.UTC())
}

// ListDay returns the intervals intersecting a calendar day (UTC).
func (s *Service) ListDay(ctx context.Context, day time.Time) ([]engine.Interval, error) {
	from, to := dayWindow(day)
	return s.store.ListRange(ctx, from, to)
}

// Analytics aggregates recorded time over an inclusive day window.
//
// Description:
//
//	Read-only derived view: sums durations per project, per task type,
//	and per day over the intervals returned by the range query. An
//	interval is bucketed on its start day; intervals that begin before
//	the window (midnight straddlers from the previous day) are excluded
//	so every bucket falls inside [start_day, end_day]. Breakdowns are
//	ordered by descending minutes, the daily summary by date.
func (s *Service) Analytics(ctx context.Context, startDay, endDay time.Time) (AnalyticsResponse, error) {
	from, _ := dayWindow(startDay)
	_, to := dayWindow(endDay)
	if !from.Before(to) {
		return AnalyticsResponse{}, fmt.Errorf("%w: start_date after end_date", ErrBadWindow)
	}

	intervals, err := s.store.ListRange(ctx, from, to)
	if err != nil {
		return AnalyticsResponse{}, err
	}

	projectTotals := map[string]int{}
	taskTypeTotals := map[string]int{}
	dailyTotals := map[string]int{}
	totalMinutes := 0
	entryCount := 0

	for _, iv := range intervals {
		// Start-day bucketing: straddlers belong to the previous day.
		if iv.Start.Before(from) {
			continue
		}
		minutes := iv.DurationMinutes()
		projectTotals[iv.Project] += minutes
		taskTypeTotals[iv.TaskType] += minutes
		dailyTotals[iv.Start.Format(dayLayout)] += minutes
		totalMinutes += minutes
		entryCount++
	}

	resp := AnalyticsResponse{
		ProjectBreakdown:  sortedBreakdown(projectTotals),
		TaskTypeBreakdown: sortedBreakdown(taskTypeTotals),
		DailySummary:      make([]DailySummary, 0, len(dailyTotals)),
		TotalMinutes:      totalMinutes,
		TotalHours:        roundHours(totalMinutes),
		EntryCount:        entryCount,
	}

	days := make([]string, 0, len(dailyTotals))
	for day := range dailyTotals {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		resp.DailySummary = append(resp.DailySummary, DailySummary{
			Date:    day,
			Minutes: dailyTotals[day],
			Hours:   roundHours(dailyTotals[day]),
		})
	}

	return resp, nil
}

// CloneDay copies one day's intervals onto another day.
//
// Description:
//
//	Reads every interval of the source day, shifts each by the whole
//	day offset between source and target, and re-submits them through
//	Submit in start order. Each clone goes through the full conflict
//	resolution, so cloning onto a day that already has entries rewrites
//	them the same way manual submissions would.
//
// Outputs:
//   - []engine.Interval: The stored clones in submission order.
//   - error: ErrEmptyDay when the source day has no intervals.
func (s *Service) CloneDay(ctx context.Context, sourceDay, targetDay time.Time) ([]engine.Interval, error) {
	source, err := s.ListDay(ctx, sourceDay)
	if err != nil {
		return nil, err
	}
	if len(source) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDay, sourceDay.Format(dayLayout))
	}

	srcFrom, _ := dayWindow(sourceDay)
	dstFrom, _ := dayWindow(targetDay)
	offset := dstFrom.Sub(srcFrom)

	created := make([]engine.Interval, 0, len(source))
	for _, iv := range source {
		clone := engine.Interval{
			Start:    iv.Start.Add(offset),
			End:      iv.End.Add(offset),
			Project:  iv.Project,
			TaskType: iv.TaskType,
			Memo:     iv.Memo,
		}
		stored, err := s.Submit(ctx, clone)
		if err != nil {
			return nil, fmt.Errorf("clone interval starting %s: %w",
				iv.Start.Format(time.RFC3339), err)
		}
		created = append(created, stored)
	}

	s.logger.Info("day cloned",
		slog.String("source", sourceDay.Format(dayLayout)),
		slog.String("target", targetDay.Format(dayLayout)),
		slog.Int("count", len(created)))
	return created, nil
}

// Tags returns the distinct project and task type labels observed
// historically, sorted.
func (s *Service) Tags(ctx context.Context) (TagsResponse, error) {
	projects := map[string]bool{}
	taskTypes := map[string]bool{}

	err := s.store.ForEach(ctx, func(iv engine.Interval) error {
		projects[iv.Project] = true
		taskTypes[iv.TaskType] = true
		return nil
	})
	if err != nil {
		return TagsResponse{}, err
	}

	resp := TagsResponse{
		Projects:  make([]string, 0, len(projects)),
		TaskTypes: make([]string, 0, len(taskTypes)),
	}
	for p := range projects {
		resp.Projects = append(resp.Projects, p)
	}
	for t := range taskTypes {
		resp.TaskTypes = append(resp.TaskTypes, t)
	}
	sort.Strings(resp.Projects)
	sort.Strings(resp.TaskTypes)
	return resp, nil
}

// parseDay parses a YYYY-MM-DD parameter as a UTC calendar day.
func parseDay(s string) (time.Time, error) {
	day, err := time.ParseInLocation(dayLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, s)
	}
	return day, nil
}

// dayWindow returns the [midnight, next midnight) window of a day in UTC.
func dayWindow(day time.Time) (time.Time, time.Time) {
	day = day.UTC()
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}

// sortedBreakdown orders totals by descending minutes, name ascending
// on ties so output is deterministic.
func sortedBreakdown(totals map[string]int) []NameValue {
	out := make([]NameValue, 0, len(totals))
	for name, value := range totals {
		out = append(out, NameValue{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// roundHours converts minutes to hours rounded to one decimal.
func roundHours(minutes int) float64 {
	return math.Round(float64(minutes)/60*10) / 10
}
