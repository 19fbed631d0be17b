package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/handlers"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/internal/services"
)

// RouterDeps carries the collaborators the HTTP surface is built from.
type RouterDeps struct {
	Auth      *services.AuthService
	Verifier  middleware.AccessTokenVerifier
	Health    *monitoring.HealthManager
	// RateStore backs rate limiting. Nil falls back to an in-process counter.
	RateStore middleware.RateStore
	RateLimit middleware.RateLimitConfig
	Logger    *zap.Logger
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps RouterDeps) (*gin.Engine, error) {
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service must be provided")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("access token verifier must be provided")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	rateStore := deps.RateStore
	if rateStore == nil {
		// Without a shared cache each process counts its own clients.
		rateStore = middleware.NewMemoryRateStore()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.NoRoute(middleware.NotFoundHandler)
	r.NoMethod(middleware.MethodNotAllowedHandler)

	// Global middleware
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Metrics())

	registerHealthRoutes(r, deps.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	registerAuthRoutes(api, authRouteDeps{
		Handler:     handlers.NewAuthHandler(deps.Auth),
		RequireAuth: middleware.Auth(deps.Verifier),
		RateLimit:   middleware.RateLimit(rateStore, deps.RateLimit, log),
	})

	return r, nil
}
