package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
)

// requestContext is the context service calls run under. Handlers invoked without an
// http.Request, as in unit tests, get a background context.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}
