package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ActorHeader carries the acting user's id. Authentication happens upstream
// (gateway or reverse proxy); this service trusts the header it is handed.
const ActorHeader = "X-Actor-ID"

const actorContextKey = "actor_id"

// Actor extracts the acting user from the request header and stores it in
// the gin context for handlers.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := strings.TrimSpace(c.GetHeader(ActorHeader)); actor != "" {
			c.Set(actorContextKey, actor)
		}
		c.Next()
	}
}

// RequireActor aborts with 401 when no actor id accompanies the request.
// Mutating routes sit behind this; read routes decide per handler.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentActorID(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Missing " + ActorHeader + " header",
				},
			})
			return
		}
		c.Next()
	}
}

// CurrentActorID returns the acting user id stored by Actor.
func CurrentActorID(c *gin.Context) (string, bool) {
	value, ok := c.Get(actorContextKey)
	if !ok {
		return "", false
	}
	actor, ok := value.(string)
	return actor, ok && actor != ""
}
