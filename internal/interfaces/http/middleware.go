package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/repair-center/internal/domain/entity"
	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
)

const (
	headerRequestID = "X-Request-ID"
	ctxRequestID    = "requestID"
	ctxActor        = "actor"
)

// requestIDMiddleware propagates or assigns a request id
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		fields := []interface{}{
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(ctxRequestID),
		}
		if actor, ok := actorFrom(c); ok {
			fields = append(fields, "actor", actor.ID)
		}
		s.logger.Info("HTTP request", fields...)
	}
}

// actorMiddleware requires a valid bearer token and stores the actor it names
func actorMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			abortWith(c, http.StatusUnauthorized, kindUnauthorized, "missing bearer token")
			return
		}

		actor, err := verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			abortWith(c, http.StatusUnauthorized, kindUnauthorized, "invalid token")
			return
		}

		c.Set(ctxActor, actor)
		c.Next()
	}
}

// requireRole rejects actors that hold none of the roles
func requireRole(roles ...entity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			abortWith(c, http.StatusUnauthorized, kindUnauthorized, "missing actor")
			return
		}
		if !actor.HasRole(roles...) {
			abortWith(c, http.StatusForbidden, string(domainwf.KindForbidden), "role "+string(actor.Role)+" may not perform this operation")
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) (entity.Actor, bool) {
	v, ok := c.Get(ctxActor)
	if !ok {
		return entity.Actor{}, false
	}
	actor, ok := v.(entity.Actor)
	return actor, ok
}
