package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository/memory"
	"github.com/jwalitptl/hmis-api/internal/service/authz"
	apperrors "github.com/jwalitptl/hmis-api/pkg/errors"
	"github.com/jwalitptl/hmis-api/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubTokens map[string]*model.TokenClaims

func (s stubTokens) ValidateToken(_ context.Context, token string) (*model.TokenClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, apperrors.Unauthorized(errors.New("bad token"))
}

type blockingRoles struct{}

func (*blockingRoles) ListUserRoles(ctx context.Context, _ uuid.UUID) ([]model.Role, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (*blockingRoles) AssignRole(context.Context, *model.UserRole) error { return nil }

func (*blockingRoles) RemoveRole(context.Context, uuid.UUID, model.Role) error { return nil }

type authFixture struct {
	router *gin.Engine
	nurse  uuid.UUID
	nobody uuid.UUID
}

func newAuthFixture(t *testing.T, resolverRoles bool) *authFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	f := &authFixture{nurse: uuid.New(), nobody: uuid.New()}

	require.NoError(t, store.Roles().AssignRole(ctx, &model.UserRole{UserID: f.nurse, Role: model.RoleNurse}))
	require.NoError(t, store.Permissions().Upsert(ctx, &model.RolePermission{
		Role: model.RoleNurse, Module: model.ModuleMedications, CanView: true, CanEdit: true,
	}))

	engine := authz.NewEngine(store.Permissions(), time.Minute, metrics.New("test"), zerolog.Nop())
	resolver := authz.NewResolver(store.Roles(), time.Second, zerolog.Nop())
	if !resolverRoles {
		resolver = authz.NewResolver(&blockingRoles{}, 10*time.Millisecond, zerolog.Nop())
	}

	tokens := stubTokens{
		"nurse":  {UserID: f.nurse, Email: "nurse@example.com"},
		"nobody": {UserID: f.nobody, Email: "nobody@example.com"},
	}
	m := NewAuthMiddleware(tokens, resolver, engine)

	r := gin.New()
	api := r.Group("/", m.Authenticate())
	ok := func(c *gin.Context) {
		c.String(http.StatusOK, Principal(c).Status().String())
	}
	api.GET("/doses", m.RequirePermission(model.ModuleMedications, model.ActionView), ok)
	api.DELETE("/doses", m.RequirePermission(model.ModuleMedications, model.ActionDelete), ok)
	api.GET("/nursing", m.RequireRole(model.RoleNurse), ok)
	f.router = r
	return f
}

func (f *authFixture) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAuthenticate_RejectsMissingAndInvalidTokens(t *testing.T) {
	f := newAuthFixture(t, true)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/doses", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/doses", "forged").Code)

	req := httptest.NewRequest(http.MethodGet, "/doses", nil)
	req.Header.Set("Authorization", "Basic abc")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirePermission(t *testing.T) {
	f := newAuthFixture(t, true)

	w := f.do(http.MethodGet, "/doses", "nurse")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", w.Body.String())

	w = f.do(http.MethodDelete, "/doses", "nurse")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Access Denied")

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/doses", "nobody").Code)
}

func TestRequireRole(t *testing.T) {
	f := newAuthFixture(t, true)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/nursing", "nurse").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/nursing", "nobody").Code)
}

func TestRequirePermission_LoadingIsUnavailable(t *testing.T) {
	f := newAuthFixture(t, false)

	w := f.do(http.MethodGet, "/doses", "nurse")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.NotContains(t, w.Body.String(), "Access Denied")
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		assert.NotNil(t, zerolog.Ctx(c.Request.Context()))
		c.String(http.StatusOK, c.GetString(ContextRequestID))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderXRequestID))
	assert.Equal(t, w.Header().Get(HeaderXRequestID), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())
}

func TestErrorHandler_MapsAppErrors(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/missing", func(c *gin.Context) {
		_ = c.Error(apperrors.NotFound("dose", nil))
	})
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("connection refused to 10.0.0.1"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "dose not found")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.1")
}

func TestValidation_ReportsFields(t *testing.T) {
	type body struct {
		Module model.Module `json:"module" binding:"required,module"`
		Reason string       `json:"reason" binding:"required"`
	}

	r := gin.New()
	r.Use(ErrorHandler(), Validation())
	r.POST("/", func(c *gin.Context) {
		var b body
		if err := c.ShouldBindJSON(&b); err != nil {
			_ = c.Error(err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"module":"kitchen"}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ValidationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	fields := map[string]string{}
	for _, f := range resp.Errors {
		fields[f.Field] = f.Message
	}
	assert.Equal(t, "Unknown module", fields["module"])
	assert.Equal(t, "Field is required", fields["reason"])
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS(DefaultCORSConfig([]string{"https://ward.example.com"})))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://ward.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://ward.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 2})
	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2"))
}

func TestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(SizeLimit(SizeLimitConfig{MaxBodySize: 8, MaxHeaderSize: 1 << 10}))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123")))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(TimeoutConfig{Duration: 10 * time.Millisecond}))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	r.GET("/fast", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fast", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(DefaultSecurityConfig()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}
