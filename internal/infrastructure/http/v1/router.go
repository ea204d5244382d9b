package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/auth"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/journal"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/internal/infrastructure/idempotency"
	"stockledger/internal/infrastructure/metrics"
	"stockledger/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	Ledger   *ledger.Service
	Journals *journal.Service
	Balances *balance.Service

	// IdempotencyStore enables X-Idempotency-Key handling when set
	IdempotencyStore idempotency.Store

	// Metrics serves /metrics and records request metrics when set
	Metrics *metrics.Metrics

	// ReadinessChecks run on /health/ready
	ReadinessChecks map[string]handlers.ReadinessCheck
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	router := gin.New()

	// Global middleware (order matters!). Recovery sits inside ErrorHandler
	// so a recovered panic is still rendered.
	router.Use(middleware.Trace())
	router.Use(cfg.Metrics.Middleware())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.ReadinessChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))
		protected.Use(middleware.Idempotency(cfg.IdempotencyStore))

		registerInventoryRoutes(protected.Group("/inventory"), cfg)
	}

	return router
}

// registerInventoryRoutes registers ledger, journal and balance endpoints.
func registerInventoryRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	baseHandler := handlers.NewBaseHandler()

	// --- LEDGER ENTRIES ---
	{
		handler := handlers.NewLedgerHandler(baseHandler, cfg.Ledger)
		group := rg.Group("/transactions")
		write := middleware.RequirePermission(auth.PermissionLedgerWrite)

		group.POST("", write, handler.Post)
		group.POST("/bulk", write, handler.BulkPost)
		RegisterResourceRoutes(group, handler, auth.PermissionLedgerRead, auth.PermissionLedgerWrite)
	}

	// --- STOCK JOURNALS ---
	{
		handler := handlers.NewJournalHandler(baseHandler, cfg.Journals)
		group := rg.Group("/journals")

		group.POST("", middleware.RequirePermission(auth.PermissionJournalWrite), handler.Submit)
		RegisterResourceRoutes(group, handler, auth.PermissionJournalRead, auth.PermissionJournalWrite)
		group.GET("/:id/history", middleware.RequirePermission(auth.PermissionJournalRead), handler.History)
	}

	// --- BALANCES ---
	{
		handler := handlers.NewStockHandler(baseHandler, cfg.Balances)
		read := middleware.RequirePermission(auth.PermissionStockRead)

		balances := rg.Group("/balances")
		balances.GET("", read, handler.GetBalance)
		balances.GET("/report", read, handler.Report)
		balances.GET("/summary", read, handler.Summary)

		write := middleware.RequirePermission(auth.PermissionStockWrite)
		opening := rg.Group("/opening-stock")
		opening.POST("", write, handler.RecordOpeningStock)
		opening.GET("", read, handler.ListOpeningStock)
		opening.GET("/:id", read, handler.GetOpeningStock)
		opening.PUT("/:id", write, handler.UpdateOpeningStock)
		opening.DELETE("/:id", write, handler.DeleteOpeningStock)
	}
}
