// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/infrastructure/http/v1/middleware"
)

// ResourceRouteHandler defines the item routes shared by ledger entries and
// journals.
type ResourceRouteHandler interface {
	List(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
}

// RegisterResourceRoutes registers list/get/update/delete routes for a resource.
// Create routes differ per resource and are registered by the caller.
//
// Usage:
//
//	handler := handlers.NewJournalHandler(baseHandler, cfg.Journals)
//	group := inventory.Group("/journals")
//	RegisterResourceRoutes(group, handler, auth.PermissionJournalRead, auth.PermissionJournalWrite)
//	group.POST("", middleware.RequirePermission(auth.PermissionJournalWrite), handler.Submit)
func RegisterResourceRoutes(group *gin.RouterGroup, handler ResourceRouteHandler, readPermission, writePermission string) {
	group.GET("", middleware.RequirePermission(readPermission), handler.List)
	group.GET("/:id", middleware.RequirePermission(readPermission), handler.Get)
	group.PUT("/:id", middleware.RequirePermission(writePermission), handler.Update)
	group.DELETE("/:id", middleware.RequirePermission(writePermission), handler.Delete)
}
