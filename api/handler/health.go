package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/perkins/cache"
	"github.com/use-agent/perkins/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when the ledger file cannot be read.
func Health(cc *cache.Cache, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.HealthResponse{
			Status:     "healthy",
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			LedgerPath: cc.Path(),
			Version:    Version,
		}

		l, err := cc.Snapshot()
		if err != nil {
			resp.Status = "degraded"
		} else {
			resp.Records = l.Len()
		}
		c.JSON(http.StatusOK, resp)
	}
}
