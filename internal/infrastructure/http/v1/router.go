// Package v1 provides HTTP API version 1.
package v1

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"pharmledger/internal/domain/inventory"
	"pharmledger/internal/domain/sales"
	"pharmledger/internal/infrastructure/http/v1/handlers"
	"pharmledger/internal/infrastructure/http/v1/middleware"
	"pharmledger/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Inventory *inventory.Service
	Sales     *sales.Service

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Idempotency stores checkout and refund keys; nil disables the middleware.
	Idempotency middleware.IdempotencyStore

	// HealthChecks run on /health/ready.
	HealthChecks []handlers.HealthCheck

	// CORSAllowOrigins lists allowed origins; "*" allows any.
	CORSAllowOrigins []string

	// Debug switches gin into debug mode.
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := middleware.SetupValidator(); err != nil {
		return nil, err
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(cors.New(corsConfig(cfg.CORSAllowOrigins)))

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks...)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTValidator))
	{
		base := handlers.NewBaseHandler()
		registerInventoryRoutes(v1, handlers.NewInventoryHandler(base, cfg.Inventory))
		registerSalesRoutes(v1, handlers.NewSalesHandler(base, cfg.Sales), idempotency(cfg.Idempotency))
	}

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders,
		"Authorization",
		middleware.HeaderIdempotencyKey,
		middleware.HeaderRequestID,
		middleware.HeaderTraceID,
	)
	c.ExposeHeaders = []string{middleware.HeaderRequestID, middleware.HeaderTraceID, "Content-Disposition"}
	c.MaxAge = 12 * time.Hour

	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	return c
}

// idempotency returns a no-op handler when no store is configured.
func idempotency(store middleware.IdempotencyStore) gin.HandlerFunc {
	if store == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.Idempotency(store)
}
