package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/hmis-api/internal/app"
	"github.com/jwalitptl/hmis-api/internal/config"
	auditHandler "github.com/jwalitptl/hmis-api/internal/handler/audit"
	authHandler "github.com/jwalitptl/hmis-api/internal/handler/auth"
	authzHandler "github.com/jwalitptl/hmis-api/internal/handler/authz"
	"github.com/jwalitptl/hmis-api/internal/handler/health"
	medicationHandler "github.com/jwalitptl/hmis-api/internal/handler/medication"
	"github.com/jwalitptl/hmis-api/internal/handler/prometheus"
	rbacHandler "github.com/jwalitptl/hmis-api/internal/handler/rbac"
	reminderHandler "github.com/jwalitptl/hmis-api/internal/handler/reminder"
	"github.com/jwalitptl/hmis-api/internal/middleware"
	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository/memory"
	"github.com/jwalitptl/hmis-api/internal/router"
	"github.com/jwalitptl/hmis-api/internal/service/auth"
	"github.com/jwalitptl/hmis-api/internal/service/authz"
	"github.com/jwalitptl/hmis-api/pkg/messaging"
	memorybroker "github.com/jwalitptl/hmis-api/pkg/messaging/memory"
	"github.com/jwalitptl/hmis-api/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testPassword = "correct-horse-battery"

// setup is the administrator fixtures are created as.
var setup = authz.Ready(uuid.Nil, "setup@example.com", model.RoleAdmin)

// Response is the envelope every endpoint answers with.
type Response struct {
	Code    int             `json:"-"`
	Header  http.Header     `json:"-"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (r Response) IsSuccess() bool {
	return r.Status == "success"
}

func (r Response) Decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Data, v), "data: %s", r.Data)
}

type testAPI struct {
	t        *testing.T
	store    *memory.Store
	broker   *memorybroker.Broker
	services *app.Services
	router   *router.Router
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cfg := &config.Config{
		JWT:      config.JWTConfig{Secret: "test-secret", Issuer: "hmis-test", ExpiryHours: 1},
		Authz:    config.AuthzConfig{CacheTTL: time.Minute, ResolveTimeout: time.Second},
		Security: config.SecurityConfig{BcryptCost: bcrypt.MinCost},
	}

	store := memory.NewStore()
	repos := app.Repositories{
		Users:             store.Users(),
		Roles:             store.Roles(),
		Permissions:       store.Permissions(),
		Prescriptions:     store.Prescriptions(),
		Doses:             store.Doses(),
		AdministrationLog: store.AdministrationLog(),
		Audit:             store.Audit(),
		Outbox:            store.Outbox(),
		Reminders:         store.ReminderLog(),
	}
	services := app.NewServices(cfg, repos, metrics.New("test"), zerolog.Nop())
	_, err := services.RBAC.SeedDefaults(context.Background(), uuid.Nil)
	require.NoError(t, err)

	broker := memorybroker.NewBroker()
	t.Cleanup(func() { broker.Close() })

	r := router.NewRouter(
		middleware.NewAuthMiddleware(services.Auth, services.Resolver, services.Engine),
		health.NewHandler(map[string]health.Pinger{
			"broker": health.PingFunc(func(context.Context) error { return nil }),
		}),
		prometheus.New(promclient.NewRegistry(), "test"),
		router.RouterConfig{
			Mode:           gin.TestMode,
			AllowedOrigins: []string{"*"},
			RequestTimeout: 5 * time.Second,
		},
		authHandler.NewHandler(services.Auth),
		authzHandler.NewHandler(services.Engine),
		rbacHandler.NewHandler(services.RBAC),
		medicationHandler.NewHandler(services.Medication, broker),
		reminderHandler.NewHandler(services.Reminder),
		auditHandler.NewHandler(services.Audit),
	)
	r.Setup()

	return &testAPI{t: t, store: store, broker: broker, services: services, router: r}
}

// staff creates an active user holding roles and returns the user and a
// token obtained through the login endpoint.
func (a *testAPI) staff(email string, roles ...model.Role) (*model.User, string) {
	a.t.Helper()
	ctx := context.Background()

	user, err := a.services.Auth.CreateUser(ctx, auth.CreateUserRequest{
		Email:    email,
		Name:     email,
		Password: testPassword,
	})
	require.NoError(a.t, err)
	for _, role := range roles {
		require.NoError(a.t, a.services.RBAC.AssignRole(ctx, setup, user.ID, role))
	}

	resp := a.MakeRequest(http.MethodPost, "/api/v1/auth/login", model.LoginRequest{Email: email, Password: testPassword}, "")
	require.Equal(a.t, http.StatusOK, resp.Code, resp.Message)
	var token model.TokenResponse
	resp.Decode(a.t, &token)
	return user, token.AccessToken
}

// item stores a prescription item for a fresh patient.
func (a *testAPI) item(frequency string) *model.PrescriptionItem {
	item := &model.PrescriptionItem{
		ID:             uuid.New(),
		PrescriptionID: uuid.New(),
		PatientID:      uuid.New(),
		MedicationName: "Amoxicillin",
		Dosage:         "500mg",
		Frequency:      frequency,
		Route:          "oral",
		DurationDays:   5,
		CreatedAt:      time.Now().UTC(),
	}
	a.store.PutItem(item)
	return item
}

func (a *testAPI) MakeRequest(method, path string, body interface{}, token string) Response {
	a.t.Helper()

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(a.t, err)
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.Engine().ServeHTTP(w, req)

	resp := Response{Code: w.Code, Header: w.Header()}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return resp
}

func (a *testAPI) publishDue(ctx context.Context, dose *model.ScheduledDose) error {
	return a.broker.Publish(ctx, messaging.ChannelDosesDue, messaging.Message{Type: model.EventDoseDue, Payload: dose})
}
