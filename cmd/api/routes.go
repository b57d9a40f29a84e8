package main

import (
	"batchcall-platform/internal/executor"
	"batchcall-platform/internal/httpapi"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	AuthMW   gin.HandlerFunc
	Handlers httpapi.Handlers
	Webhook  executor.WebhookHandler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	h := deps.Handlers

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Executor webhooks (public).
	// NOTE: This endpoint should be protected by signature validation in production.
	r.POST("/webhooks/executor/status", deps.Webhook.HandleStatusCallback)

	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	v1.POST("/auth/login", h.Login)

	// protected API group
	protected := v1.Group("")
	protected.Use(deps.AuthMW)
	{
		// BATCH routes
		batches := protected.Group("/batches")
		{
			batches.POST("", h.CreateBatch)
			batches.GET("", h.ListBatches)
			batches.GET("/:batch_id", h.GetBatch)
			batches.PUT("/:batch_id", h.UpdateBatch)
			batches.POST("/:batch_id/start", h.StartBatch)
			batches.POST("/:batch_id/cancel", h.CancelBatch)
			batches.POST("/:batch_id/pause", h.PauseSeries)
			batches.POST("/:batch_id/resume", h.ResumeSeries)
			batches.GET("/:batch_id/next-run", h.SeriesNextRun)
		}

		// RECIPIENT routes
		recipients := protected.Group("/recipients")
		{
			recipients.POST("/preview", h.PreviewRecipients)
			recipients.GET("/template", h.RecipientTemplate)
			recipients.POST("/:recipient_id/retry", h.RetryRecipient)
		}

		// REPORT routes
		reports := protected.Group("/reports")
		{
			reports.GET("/batches", h.BatchesSummary)
			reports.GET("/batches/:batch_id/recipients", h.RecipientBreakdown)
			reports.GET("/batches/:batch_id/runs", h.SeriesReport)
		}
	}
}
