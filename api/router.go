package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/perkins/api/handler"
	"github.com/use-agent/perkins/api/middleware"
	"github.com/use-agent/perkins/cache"
	"github.com/use-agent/perkins/config"
)

// NewRouter creates a configured Gin engine serving the ledger read-only.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if keys configured) → RateLimit
//
// Health sits outside auth for uptime monitors.
func NewRouter(cfg config.ServerConfig, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(cc, startTime))

	protected := v1.Group("")
	protected.Use(middleware.Auth(cfg.APIKeys))
	protected.Use(middleware.RateLimit(cfg))

	protected.GET("/records", handler.ListRecords(cc))
	protected.GET("/records/lookup", handler.LookupRecord(cc))

	return r
}
