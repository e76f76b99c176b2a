package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sujalbistaa/karmafeed/internal/models"
)

const actorKey = "karmafeed.actor"

// ActorMiddleware resolves who is recorded as author or liker on this
// request. The configured user is the default; X-User-ID and X-Username
// override it. Like state shown by the engine stays relative to the
// configured viewer, so an overriding actor only changes attribution.
func ActorMiddleware(fallback models.UserRef) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := fallback

		if raw := c.GetHeader("X-User-ID"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id < 1 {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid X-User-ID header"})
				return
			}
			if id != fallback.ID {
				actor = models.UserRef{ID: id}
			}
		}
		if name := c.GetHeader("X-Username"); name != "" {
			actor.Username = name
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorFrom returns the actor stored by ActorMiddleware.
func ActorFrom(c *gin.Context) models.UserRef {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(models.UserRef); ok {
			return actor
		}
	}
	return models.UserRef{}
}

// SecurityHeadersMiddleware adds basic, sensible security headers.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevents clickjacking
		c.Header("X-Frame-Options", "DENY")
		// Prevents MIME-type sniffing
		c.Header("X-Content-Type-Options", "nosniff")
		// JSON only; nothing here should ever load.
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}
