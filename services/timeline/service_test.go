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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/timelayer/services/timeline/engine"
	"github.com/AleutianAI/timelayer/services/timeline/storage/badger"
	"github.com/AleutianAI/timelayer/services/timeline/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(store.New(db, nil), DefaultServiceConfig())
}

func entry(start, end, project, taskType string) engine.Interval {
	s, _ := time.Parse(time.RFC3339, start)
	e, _ := time.Parse(time.RFC3339, end)
	return engine.Interval{Start: s, End: e, Project: project, TaskType: taskType}
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	require.NoError(t, err)
	return d
}

func TestSubmitAssignsIdentity(t *testing.T) {
	svc := newTestService(t)

	stored, err := svc.Submit(context.Background(),
		entry("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z", "timelayer", "dev"))
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, "timelayer", stored.Project)
}

func TestSubmitValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, entry("2025-06-02T10:00:00Z", "2025-06-02T09:00:00Z", "p", "t"))
	assert.ErrorIs(t, err, engine.ErrInvalidRange)

	_, err = svc.Submit(ctx, entry("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z", "", "t"))
	assert.ErrorIs(t, err, engine.ErrEmptyProject)

	_, err = svc.Submit(ctx, entry("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z", "p", ""))
	assert.ErrorIs(t, err, engine.ErrEmptyTaskType)

	// Nothing was written on any of the rejected submissions.
	got, err := svc.ListDay(ctx, day(t, "2025-06-02"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSubmitNormalizesToMinuteUTC(t *testing.T) {
	svc := newTestService(t)

	loc := time.FixedZone("CET", 2*3600)
	iv := engine.Interval{
		Start:    time.Date(2025, 6, 2, 11, 0, 30, 0, loc),
		End:      time.Date(2025, 6, 2, 12, 0, 45, 0, loc),
		Project:  "timelayer",
		TaskType: "dev",
	}

	stored, err := svc.Submit(context.Background(), iv)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), stored.Start)
	assert.Equal(t, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC), stored.End)
}

func TestSubmitRewritesOverlaps(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// A long block, then a correction in the middle of it.
	_, err := svc.Submit(ctx, entry("2025-06-02T09:00:00Z", "2025-06-02T12:00:00Z", "timelayer", "dev"))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, entry("2025-06-02T10:00:00Z", "2025-06-02T11:00:00Z", "timelayer", "meeting"))
	require.NoError(t, err)

	got, err := svc.ListDay(ctx, day(t, "2025-06-02"))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "dev", got[0].TaskType)
	assert.Equal(t, "meeting", got[1].TaskType)
	assert.Equal(t, "dev", got[2].TaskType)

	// No overlap between adjacent pieces.
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i-1].Overlaps(got[i]))
	}
}

func TestResubmitSameRangeIsIdempotentInShape(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Submit(ctx, entry("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z", "timelayer", "dev"))
	require.NoError(t, err)
	second, err := svc.Submit(ctx, entry("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z", "timelayer", "review"))
	require.NoError(t, err)

	got, err := svc.ListDay(ctx, day(t, "2025-06-02"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, second.ID, got[0].ID)
	assert.NotEqual(t, first.ID, got[0].ID)
	assert.Equal(t, "review", got[0].TaskType)
}

func TestDeleteNotFound(t *testing.T) {
	svc := newTestService(t)
	assert.ErrorIs(t, svc.Delete(context.Background(), "missing"), store.ErrNotFound)
}

func TestListRangeRejectsBadWindow(t *testing.T) {
	svc := newTestService(t)
	from := day(t, "2025-06-03")
	to := day(t, "2025-06-02")

	_, err := svc.ListRange(context.Background(), from, to)
	assert.ErrorIs(t, err, ErrBadWindow)
}

func TestAnalytics(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, entry("2025-06-02T09:00:00Z", "2025-06-02T10:30:00Z", "timelayer", "dev"))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, entry("2025-06-02T11:00:00Z", "2025-06-02T11:30:00Z", "website", "design"))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, entry("2025-06-03T09:00:00Z", "2025-06-03T10:00:00Z", "timelayer", "dev"))
	require.NoError(t, err)

	resp, err := svc.Analytics(ctx, day(t, "2025-06-02"), day(t, "2025-06-03"))
	require.NoError(t, err)

	assert.Equal(t, 180, resp.TotalMinutes)
	assert.Equal(t, 3.0, resp.TotalHours)
	assert.Equal(t, 3, resp.EntryCount)

	// Largest project first.
	require.Len(t, resp.ProjectBreakdown, 2)
	assert.Equal(t, NameValue{Name: "timelayer", Value: 150}, resp.ProjectBreakdown[0])
	assert.Equal(t, NameValue{Name: "website", Value: 30}, resp.ProjectBreakdown[1])

	require.Len(t, resp.TaskTypeBreakdown, 2)
	assert.Equal(t, "dev", resp.TaskTypeBreakdown[0].Name)

	require.Len(t, resp.DailySummary, 2)
	assert.Equal(t, DailySummary{Date: "2025-06-02", Minutes: 120, Hours: 2.0}, resp.DailySummary[0])
	assert.Equal(t, DailySummary{Date: "2025-06-03", Minutes: 60, Hours: 1.0}, resp.DailySummary[1])
}

func TestAnalyticsExcludesStraddlersFromEarlierDays(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// Crosses midnight: starts June 1, ends June 2.
	_, err := svc.Submit(ctx, entry("2025-06-01T23:00:00Z", "2025-06-02T01:00:00Z", "timelayer", "dev"))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, entry("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z", "timelayer", "dev"))
	require.NoError(t, err)

	// A June 2 window sees only the interval that starts on June 2.
	resp, err := svc.Analytics(ctx, day(t, "2025-06-02"), day(t, "2025-06-02"))
	require.NoError(t, err)
	assert.Equal(t, 60, resp.TotalMinutes)
	assert.Equal(t, 1, resp.EntryCount)
	require.Len(t, resp.DailySummary, 1)
	assert.Equal(t, "2025-06-02", resp.DailySummary[0].Date)

	// The straddler is counted in full on its start day.
	resp, err = svc.Analytics(ctx, day(t, "2025-06-01"), day(t, "2025-06-01"))
	require.NoError(t, err)
	assert.Equal(t, 120, resp.TotalMinutes)
	assert.Equal(t, 1, resp.EntryCount)
	require.Len(t, resp.DailySummary, 1)
	assert.Equal(t, DailySummary{Date: "2025-06-01", Minutes: 120, Hours: 2.0}, resp.DailySummary[0])
}

func TestAnalyticsEmptyWindow(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.Analytics(context.Background(), day(t, "2025-06-02"), day(t, "2025-06-02"))
	require.NoError(t, err)
	assert.Zero(t, resp.TotalMinutes)
	assert.Zero(t, resp.EntryCount)
	assert.Empty(t, resp.ProjectBreakdown)
}

func TestAnalyticsRejectsInvertedWindow(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Analytics(context.Background(), day(t, "2025-06-05"), day(t, "2025-06-02"))
	assert.ErrorIs(t, err, ErrBadWindow)
}

func TestCloneDay(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, entry("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z", "timelayer", "dev"))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, entry("2025-06-02T11:00:00Z", "2025-06-02T12:00:00Z", "timelayer", "meeting"))
	require.NoError(t, err)

	created, err := svc.CloneDay(ctx, day(t, "2025-06-02"), day(t, "2025-06-03"))
	require.NoError(t, err)
	require.Len(t, created, 2)

	assert.Equal(t, time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC), created[0].Start)
	assert.Equal(t, time.Date(2025, 6, 3, 11, 0, 0, 0, time.UTC), created[1].Start)

	// Source day untouched.
	source, err := svc.ListDay(ctx, day(t, "2025-06-02"))
	require.NoError(t, err)
	assert.Len(t, source, 2)
}

func TestCloneDayOverwritesTargetOverlaps(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, entry("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z", "timelayer", "dev"))
	require.NoError(t, err)

	// Target day already has an entry covering the same slot.
	_, err = svc.Submit(ctx, entry("2025-06-03T09:00:00Z", "2025-06-03T10:00:00Z", "other", "misc"))
	require.NoError(t, err)

	_, err = svc.CloneDay(ctx, day(t, "2025-06-02"), day(t, "2025-06-03"))
	require.NoError(t, err)

	target, err := svc.ListDay(ctx, day(t, "2025-06-03"))
	require.NoError(t, err)
	require.Len(t, target, 1)
	assert.Equal(t, "timelayer", target[0].Project)
}

func TestCloneDayEmptySource(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CloneDay(context.Background(), day(t, "2025-06-02"), day(t, "2025-06-03"))
	assert.ErrorIs(t, err, ErrEmptyDay)
}

func TestTags(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, entry("2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z", "timelayer", "dev"))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, entry("2025-06-02T11:00:00Z", "2025-06-02T12:00:00Z", "website", "design"))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, entry("2025-06-03T09:00:00Z", "2025-06-03T10:00:00Z", "timelayer", "dev"))
	require.NoError(t, err)

	tags, err := svc.Tags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"timelayer", "website"}, tags.Projects)
	assert.Equal(t, []string{"design", "dev"}, tags.TaskTypes)
}

func TestTagsEmptyStore(t *testing.T) {
	svc := newTestService(t)

	tags, err := svc.Tags(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tags.Projects)
	assert.Empty(t, tags.TaskTypes)
}
