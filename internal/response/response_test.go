package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardhptr21/myits-lapor/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func render(fn func(c *gin.Context)) (*httptest.ResponseRecorder, Envelope) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	fn(c)

	var env Envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestPaginated(t *testing.T) {
	w, env := render(func(c *gin.Context) {
		Paginated(c, "Reports fetched", []string{"a"}, Meta{Page: 2, Limit: 1, Total: 3})
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, 200, env.Code)
	require.NotNil(t, env.Meta)
	assert.Equal(t, Meta{Page: 2, Limit: 1, Total: 3}, *env.Meta)
}

func TestErrorFromServiceKind(t *testing.T) {
	w, env := render(func(c *gin.Context) {
		Error(c, service.Forbidden("Access denied"))
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, 403, env.Code)
	assert.Equal(t, "Access denied", env.Message)
	assert.Nil(t, env.Error)
}

func TestErrorWithFields(t *testing.T) {
	w, env := render(func(c *gin.Context) {
		Error(c, service.BadRequest("Invalid file upload", map[string]string{"photos": "Invalid file type"}))
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]any{"photos": "Invalid file type"}, env.Error)
}

func TestErrorHidesInternalCause(t *testing.T) {
	w, env := render(func(c *gin.Context) {
		Error(c, errors.New("pq: connection refused"))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", env.Message)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestValidationErrors(t *testing.T) {
	type body struct {
		Name  string `json:"name" binding:"required,min=3"`
		Email string `json:"email" binding:"required,email"`
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ab","email":"nope"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var b body
	err := c.ShouldBindJSON(&b)
	require.Error(t, err)
	BindError(c, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation failed, check your input", env.Message)
	assert.Equal(t, map[string]any{
		"name":  "must be at least 3 characters",
		"email": "must be a valid email",
	}, env.Error)
}
