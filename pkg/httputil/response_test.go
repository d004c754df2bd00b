package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jwalitptl/hmis-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func respond(err error) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	RespondWithError(c, err)
	return w
}

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", apperrors.NotFound("dose", nil), http.StatusNotFound, "dose not found"},
		{"conflict wrapped", fmt.Errorf("record: %w", apperrors.Conflict("dose already administered", nil)), http.StatusConflict, "dose already administered"},
		{"forbidden", apperrors.Forbidden(nil), http.StatusForbidden, "access denied"},
		{"unavailable", apperrors.Unavailable(errors.New("dial tcp")), http.StatusServiceUnavailable, "store unavailable"},
		{"plain error hidden", errors.New("pq: secret detail"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := respond(tt.err)
			assert.Equal(t, tt.status, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestRespondWithPagination(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondWithPagination(c, []int{1, 2}, 1, 2, 5)

	var body struct {
		Data PaginatedResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Data.Pagination.TotalPage)
}

func TestBind(t *testing.T) {
	type body struct {
		Reason string `json:"reason" binding:"required"`
	}
	run := func(payload string) (*gin.Context, *httptest.ResponseRecorder, bool) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
		c.Request.Header.Set("Content-Type", "application/json")
		var b body
		return c, w, Bind(c, &b)
	}

	_, _, ok := run(`{"reason":"patient asleep"}`)
	assert.True(t, ok)

	c, _, ok := run(`{}`)
	assert.False(t, ok)
	assert.Len(t, c.Errors, 1)
	assert.False(t, c.Writer.Written())

	_, w, ok := run(`{not json`)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParamUUID(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}

	_, ok := ParamUUID(c, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryUUID(t *testing.T) {
	query := func(raw string) (*gin.Context, *httptest.ResponseRecorder) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/doses?"+raw, nil)
		return c, w
	}

	c, _ := query("")
	id, ok := QueryUUID(c, "patient_id")
	assert.True(t, ok)
	assert.Nil(t, id)

	c, _ = query("patient_id=6f1c2b0e-3d4a-4c1b-9a55-2f7e8d9c0b1a")
	id, ok = QueryUUID(c, "patient_id")
	require.True(t, ok)
	assert.Equal(t, "6f1c2b0e-3d4a-4c1b-9a55-2f7e8d9c0b1a", id.String())

	c, w := query("patient_id=42")
	_, ok = QueryUUID(c, "patient_id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
