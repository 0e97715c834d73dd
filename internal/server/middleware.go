package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	obsmetrics "github.com/billflow/billflow/internal/observability/metrics"
	"github.com/billflow/billflow/internal/ratelimit"
	userdomain "github.com/billflow/billflow/internal/user/domain"
)

const contextUserKey = "current_user"

// RequestMetricsMiddleware records request counts and latency per route.
func RequestMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		obsmetrics.App().ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// AuthRequired verifies the bearer token, loads the account, and applies
// the per-user rate limit. It does not meter: billable API calls are
// charged by the object service, so usage and billing reads stay free.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims, err := s.authSvc.VerifyToken(token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		id, err := snowflake.ParseString(claims.Subject)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		user, err := s.userSvc.GetByID(c.Request.Context(), id)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if s.limiter.Enabled() {
			result, limitErr := s.limiter.AllowUser(c.Request.Context(), claims.Subject)
			if limitErr != nil {
				// Redis being down must not take the API with it.
				s.log.Warn("rate limit check failed", zap.Error(limitErr))
			} else if !result.Allowed {
				c.Header("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(result.RetryAfter)))
				AbortWithError(c, ErrRateLimited)
				return
			}
		}

		c.Set(contextUserKey, user)
		c.Next()
	}
}

// RequireAdmin gates admin routes. Must run after AuthRequired.
func (s *Server) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || !user.IsAdmin() {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *userdomain.User {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, ok := value.(*userdomain.User)
	if !ok {
		return nil
	}
	return user
}
