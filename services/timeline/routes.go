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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all timeline routes with the router.
//
// Description:
//
//	Registers the /v1/timeline/* endpoints with the given Gin router
//	group. The group should already have any required middleware
//	applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST   /v1/timeline/entries           - Record an interval (resolves overlaps)
//	GET    /v1/timeline/entries           - List intervals by day or window
//	DELETE /v1/timeline/entries/:id       - Delete an interval
//	POST   /v1/timeline/entries/clone-day - Clone one day's intervals onto another
//	GET    /v1/timeline/analytics         - Period aggregation
//	GET    /v1/timeline/tags              - Distinct project/task-type labels
//	GET    /v1/timeline/health            - Health check
//	GET    /v1/timeline/ready             - Readiness check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	tl := rg.Group("/timeline")
	{
		// Submission and listing
		tl.POST("/entries", handlers.HandleSubmit)
		tl.GET("/entries", handlers.HandleList)
		tl.DELETE("/entries/:id", handlers.HandleDelete)

		// Convenience: re-submit a previous day through the engine
		tl.POST("/entries/clone-day", handlers.HandleCloneDay)

		// Read-only derived views
		tl.GET("/analytics", handlers.HandleAnalytics)
		tl.GET("/tags", handlers.HandleTags)

		// Health checks
		tl.GET("/health", handlers.HandleHealth)
		tl.GET("/ready", handlers.HandleReady)
	}
}
