package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hmis-api/internal/handler"
	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/service/audit"
	"github.com/jwalitptl/hmis-api/internal/service/authz"
)

const (
	ContextPrincipal = "principal"
	ContextUserID    = "user_id"
)

// retryAfterSeconds is sent with 503 responses while roles are still loading.
const retryAfterSeconds = "1"

// TokenValidator turns a bearer token into claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error)
}

type AuthMiddleware struct {
	tokens   TokenValidator
	resolver *authz.Resolver
	engine   *authz.Engine
}

func NewAuthMiddleware(tokens TokenValidator, resolver *authz.Resolver, engine *authz.Engine) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:   tokens,
		resolver: resolver,
		engine:   engine,
	}
}

// Authenticate verifies the bearer token and attaches the resolved principal
// to the request context. A principal whose roles failed to load is still
// attached; the permission gates deny it.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			return
		}

		claims, err := m.tokens.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			return
		}

		p := m.resolver.Resolve(c.Request.Context(), claims.UserID, claims.Email)
		ctx := authz.WithPrincipal(c.Request.Context(), p)
		ctx = audit.WithClient(ctx, c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Set(ContextPrincipal, p)
		c.Set(ContextUserID, claims.UserID)
		c.Next()
	}
}

// RequirePermission lets the request through only when the principal holds
// action on module.
func (m *AuthMiddleware) RequirePermission(module model.Module, action model.Action) gin.HandlerFunc {
	return m.require(authz.Requirement{Module: module, Action: action})
}

// RequireRole lets the request through only when the principal holds role or
// is an admin.
func (m *AuthMiddleware) RequireRole(role model.Role) gin.HandlerFunc {
	return m.require(authz.Requirement{Role: role})
}

func (m *AuthMiddleware) require(req authz.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Principal(c)
		switch m.engine.Gate(c.Request.Context(), p, req) {
		case authz.GateLoading:
			c.Header("Retry-After", retryAfterSeconds)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, handler.NewErrorResponse("permissions are still loading"))
		case authz.GateDenied:
			c.AbortWithStatusJSON(http.StatusForbidden, handler.NewErrorResponse("Access Denied"))
		default:
			c.Next()
		}
	}
}

// Principal returns the principal attached by Authenticate, or an
// uninitialized one.
func Principal(c *gin.Context) authz.Principal {
	return authz.PrincipalFrom(c.Request.Context())
}
