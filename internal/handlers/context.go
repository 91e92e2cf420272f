package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/fieldbase/fieldbase/internal/middleware"
	appErrors "github.com/fieldbase/fieldbase/pkg/errors"
	"github.com/fieldbase/fieldbase/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// mustActor returns the acting user id or writes a 401 and returns false.
func mustActor(c *gin.Context) (string, bool) {
	actor, ok := middleware.CurrentActorID(c)
	if !ok {
		response.Error(c, appErrors.New("UNAUTHORIZED", "Missing "+middleware.ActorHeader+" header", 401))
		return "", false
	}
	return actor, true
}
