package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marcho78/prompt2json/internal/quota"
	"github.com/marcho78/prompt2json/internal/storage"
)

// Handles system-related endpoints
type HealthHandler struct {
	store    quota.Store
	postgres *storage.Postgres
}

func NewHealthHandler(store quota.Store, postgres *storage.Postgres) *HealthHandler {
	return &HealthHandler{
		store:    store,
		postgres: postgres,
	}
}

// Handles GET /health. The service stays up when the counter store is
// down (admission fails open), so a store outage reports degraded rather
// than unhealthy.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()

	status := "healthy"
	httpStatus := http.StatusOK
	checks := gin.H{}

	if err := h.store.Ping(ctx); err != nil {
		checks["counter_store"] = gin.H{"status": "down", "error": err.Error()}
		status = "degraded"
	} else {
		checks["counter_store"] = gin.H{"status": "up"}
	}

	if h.postgres != nil {
		if err := h.postgres.Ping(ctx); err != nil {
			checks["database"] = gin.H{"status": "down", "error": err.Error()}
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = gin.H{"status": "up"}
		}
	}

	c.JSON(httpStatus, gin.H{
		"status": status,
		"checks": checks,
	})
}
