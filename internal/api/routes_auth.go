package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/handlers"
)

type authRouteDeps struct {
	Handler     *handlers.AuthHandler
	RequireAuth gin.HandlerFunc
	RateLimit   gin.HandlerFunc
}

func registerAuthRoutes(api *gin.RouterGroup, deps authRouteDeps) {
	auth := api.Group("/auth")
	{
		// Credential endpoints are rate limited per client.
		auth.POST("/register", deps.RateLimit, deps.Handler.Register)
		auth.POST("/login", deps.RateLimit, deps.Handler.Login)
		auth.POST("/refresh", deps.RateLimit, deps.Handler.Refresh)
		auth.GET("/confirm-mail/:token", deps.Handler.ConfirmMail)
		auth.POST("/logout", deps.Handler.Logout)
	}

	api.GET("/auth", deps.RequireAuth, deps.Handler.Me)
}
