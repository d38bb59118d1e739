package chat

import (
	"context"
	"net/http"
	"time"

	"PPBridge/service/bridge"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionHandler serves GET /sessions/:userId with the identity's current
// assignment.
func SessionHandler(b *bridge.Bridge, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		identity := c.Param("userId")
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		resource, ok, err := b.Current(ctx, identity)
		if err != nil {
			log.Warn("session lookup failed", zap.String("userId", identity), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session lookup failed"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no session"})
			return
		}
		c.JSON(http.StatusOK, bridge.AssignmentEvent{Identity: identity, Resource: resource})
	}
}
