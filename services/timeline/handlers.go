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
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/timelayer/services/timeline/engine"
	"github.com/AleutianAI/timelayer/services/timeline/store"
)

// Handlers contains the HTTP handlers for the timeline service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleSubmit handles POST /v1/timeline/entries.
//
// Description:
//
//	Records a work interval. Anything already stored in the same time
//	range is rewritten so the submission wins; the response is the
//	stored interval with its assigned ID.
//
// Response:
//
//	201 Created: EntryResponse
//	400 Bad Request: INVALID_REQUEST / INVALID_RANGE / VALIDATION_ERROR
//	409 Conflict: CONFLICT (concurrent submissions kept winning; retry)
//	500 Internal Server Error: STORAGE_FAILURE
func (h *Handlers) HandleSubmit(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSubmit")

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	stored, err := h.svc.Submit(c.Request.Context(), req.Interval())
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "STORAGE_FAILURE"

		switch {
		case errors.Is(err, engine.ErrInvalidRange):
			statusCode = http.StatusBadRequest
			errCode = "INVALID_RANGE"
		case errors.Is(err, engine.ErrEmptyProject), errors.Is(err, engine.ErrEmptyTaskType):
			statusCode = http.StatusBadRequest
			errCode = "VALIDATION_ERROR"
		case errors.Is(err, store.ErrConflict):
			statusCode = http.StatusConflict
			errCode = "CONFLICT"
		}

		logger.Error("Submit failed", "error", err)
		c.JSON(statusCode, ErrorResponse{Error: err.Error(), Code: errCode})
		return
	}

	logger.Info("Interval recorded", "interval_id", stored.ID)
	c.JSON(http.StatusCreated, NewEntryResponse(stored))
}

// HandleList handles GET /v1/timeline/entries.
//
// Description:
//
//	Lists intervals ordered by start. Accepts either date=YYYY-MM-DD
//	for one calendar day, or from/to as RFC3339 instants. The window
//	is evaluated on absolute instants, so an interval crossing
//	midnight shows up on both days it touches.
//
// Response:
//
//	200 OK: []EntryResponse
//	400 Bad Request: INVALID_DATE / INVALID_WINDOW
func (h *Handlers) HandleList(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleList")

	var (
		intervals []engine.Interval
		err       error
	)

	if date := c.Query("date"); date != "" {
		var day time.Time
		day, err = parseDay(date)
		if err == nil {
			intervals, err = h.svc.ListDay(c.Request.Context(), day)
		}
	} else {
		var from, to time.Time
		from, to, err = parseWindow(c.Query("from"), c.Query("to"))
		if err == nil {
			intervals, err = h.svc.ListRange(c.Request.Context(), from, to)
		}
	}

	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "STORAGE_FAILURE"
		switch {
		case errors.Is(err, ErrBadDate):
			statusCode = http.StatusBadRequest
			errCode = "INVALID_DATE"
		case errors.Is(err, ErrBadWindow):
			statusCode = http.StatusBadRequest
			errCode = "INVALID_WINDOW"
		}
		logger.Warn("List failed", "error", err)
		c.JSON(statusCode, ErrorResponse{Error: err.Error(), Code: errCode})
		return
	}

	c.JSON(http.StatusOK, NewEntryResponses(intervals))
}

// HandleDelete handles DELETE /v1/timeline/entries/:id.
//
// Response:
//
//	200 OK: {"ok": true}
//	404 Not Found: NOT_FOUND
func (h *Handlers) HandleDelete(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDelete")

	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "Entry not found",
				Code:  "NOT_FOUND",
			})
			return
		}
		logger.Error("Delete failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "STORAGE_FAILURE",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// HandleAnalytics handles GET /v1/timeline/analytics.
//
// Description:
//
//	Aggregates recorded time over start_date..end_date (inclusive,
//	YYYY-MM-DD): totals per project, per task type, and per day.
//
// Response:
//
//	200 OK: AnalyticsResponse
//	400 Bad Request: INVALID_DATE / INVALID_WINDOW
func (h *Handlers) HandleAnalytics(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAnalytics")

	startDay, err := parseDay(c.Query("start_date"))
	if err == nil {
		var endDay time.Time
		endDay, err = parseDay(c.Query("end_date"))
		if err == nil {
			var resp AnalyticsResponse
			resp, err = h.svc.Analytics(c.Request.Context(), startDay, endDay)
			if err == nil {
				c.JSON(http.StatusOK, resp)
				return
			}
		}
	}

	statusCode := http.StatusInternalServerError
	errCode := "STORAGE_FAILURE"
	switch {
	case errors.Is(err, ErrBadDate):
		statusCode = http.StatusBadRequest
		errCode = "INVALID_DATE"
	case errors.Is(err, ErrBadWindow):
		statusCode = http.StatusBadRequest
		errCode = "INVALID_WINDOW"
	}
	logger.Warn("Analytics failed", "error", err)
	c.JSON(statusCode, ErrorResponse{Error: err.Error(), Code: errCode})
}

// HandleCloneDay handles POST /v1/timeline/entries/clone-day.
//
// Description:
//
//	Copies one day's intervals onto another, re-submitting each clone
//	through the consistency engine in start order. Source defaults to
//	yesterday, target to today.
//
// Response:
//
//	201 Created: []EntryResponse
//	404 Not Found: EMPTY_SOURCE_DAY
//	409 Conflict: CONFLICT
func (h *Handlers) HandleCloneDay(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCloneDay")

	// The body is optional; an empty one means clone yesterday onto today.
	var req CloneDayRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	now := time.Now().UTC()
	sourceDay := now.AddDate(0, 0, -1)
	targetDay := now

	var err error
	if req.SourceDate != "" {
		sourceDay, err = parseDay(req.SourceDate)
	}
	if err == nil && req.TargetDate != "" {
		targetDay, err = parseDay(req.TargetDate)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_DATE"})
		return
	}

	created, err := h.svc.CloneDay(c.Request.Context(), sourceDay, targetDay)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "STORAGE_FAILURE"
		switch {
		case errors.Is(err, ErrEmptyDay):
			statusCode = http.StatusNotFound
			errCode = "EMPTY_SOURCE_DAY"
		case errors.Is(err, store.ErrConflict):
			statusCode = http.StatusConflict
			errCode = "CONFLICT"
		}
		logger.Error("Clone failed", "error", err)
		c.JSON(statusCode, ErrorResponse{Error: err.Error(), Code: errCode})
		return
	}

	c.JSON(http.StatusCreated, NewEntryResponses(created))
}

// HandleTags handles GET /v1/timeline/tags.
//
// Response:
//
//	200 OK: TagsResponse
func (h *Handlers) HandleTags(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTags")

	resp, err := h.svc.Tags(c.Request.Context())
	if err != nil {
		logger.Error("Tags failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "STORAGE_FAILURE",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /v1/timeline/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /v1/timeline/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, ReadyResponse{Ready: true})
}

// parseWindow parses from/to RFC3339 query parameters.
func parseWindow(fromStr, toStr string) (time.Time, time.Time, error) {
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, ErrBadWindow
	}
	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, ErrBadWindow
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		return time.Time{}, time.Time{}, ErrBadWindow
	}
	return from, to, nil
}

// getOrCreateRequestID extracts or generates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
