package middleware

import (
	"net/http"
	"slices"
	"strings"

	"fulfillment-service/internal/service"
	"fulfillment-service/internal/transport/http/dto"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TokenParser interface {
	Parse(token string) (service.Principal, error)
}

// AuthRequired validates the Bearer token and stores the caller's Principal in the
// request context.
func AuthRequired(parser TokenParser, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewUnauthorizedError("missing Authorization header"))
			return
		}
		token, ok := ExtractBearerToken(authz)
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewUnauthorizedError("invalid Authorization header"))
			return
		}

		p, err := parser.Parse(token)
		if err != nil {
			log.Warn("token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewUnauthorizedError("invalid token"))
			return
		}

		c.Request = c.Request.WithContext(service.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...service.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := service.PrincipalFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewUnauthorizedError("unauthenticated"))
			return
		}
		if !slices.Contains(roles, p.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewForbiddenError("role not allowed"))
			return
		}
		c.Next()
	}
}

// ExtractBearerToken accepts "Bearer <token>" and tolerates surrounding quotes.
func ExtractBearerToken(authz string) (string, bool) {
	scheme, rest, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	t := strings.Trim(strings.TrimSpace(rest), "\"'")
	if i := strings.IndexAny(t, ", "); i >= 0 {
		t = t[:i]
	}
	return t, true
}
