package metrics

import (
	"errors"
	"io"
	"net/http"

	"PPBridge/tools/decode"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxBody = 64 << 10

// Handler serves POST /metrics/:resource. A nil store answers 503 so the route
// stays mounted when the database is disabled or unreachable.
func Handler(store Store, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		resource := c.Param("resource")
		if _, err := TableName(resource); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics storage unavailable"})
			return
		}

		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read body"})
			return
		}
		sample, err := decode.JSON[Sample](raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := store.Append(c.Request.Context(), resource, *sample); err != nil {
			if errors.Is(err, ErrInvalidSample) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			log.Error("metrics append failed", zap.String("game", resource), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
			return
		}
		c.Status(http.StatusCreated)
	}
}
