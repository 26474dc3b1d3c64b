package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledger-integrity-pipeline/internal/api_gateway/handler"
	"github.com/ledger-integrity-pipeline/internal/api_gateway/middleware"
)

// handlers groups the HTTP handlers mounted by setupRouter
type handlers struct {
	sequences        *handler.SequenceHandler
	documents        *handler.DocumentHandler
	bankTransactions *handler.BankTransactionHandler
	exports          *handler.ExportHandler
	links            *handler.LinkHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(logger *slog.Logger, r *gin.Engine, h handlers) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Principal())
	r.Use(middleware.Logger(logger))

	// API v1 endpoints, all scoped to one tenant
	v1 := r.Group("/api/v1")
	tenant := v1.Group("/tenants/:tenant_id")
	{
		// Number sequences
		sequences := tenant.Group("/sequences")
		{
			sequences.GET("", h.sequences.List)
			sequences.POST("/bootstrap", h.sequences.Bootstrap)
			sequences.POST("/:type/allocate", h.sequences.Allocate)
			sequences.POST("/:type/resync", h.sequences.Resync)
		}

		// Financial documents
		documents := tenant.Group("/documents")
		{
			documents.POST("", h.documents.Create)
			documents.POST("/ingest", h.documents.Ingest)
			documents.GET("/:id", h.documents.GetByID)
			documents.POST("/:id/finalize", h.documents.Finalize)
			documents.POST("/:id/cancel", h.documents.Cancel)
			documents.POST("/:id/pay", h.documents.MarkPaid)
			documents.POST("/:id/book", h.documents.MarkBooked)
			documents.GET("/:id/link", h.links.GetByDocument)
			documents.PUT("/:id/link/booking-status", h.links.UpdateBookingStatus)
		}

		// Bank transactions
		bankTransactions := tenant.Group("/bank-transactions")
		{
			bankTransactions.POST("", h.bankTransactions.Import)
			bankTransactions.GET("/:id", h.bankTransactions.GetByID)
		}

		// Accounting exports
		exports := tenant.Group("/exports")
		{
			exports.POST("", h.exports.Create)
			exports.GET("", h.exports.History)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
