package blast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kunaal-theme/notify/internal/middleware"
	"github.com/kunaal-theme/notify/internal/modules/queue"
	"github.com/kunaal-theme/notify/internal/pkg/cron"
	"github.com/kunaal-theme/notify/internal/pkg/jwt"
)

func setupRouter(t *testing.T, h *Handler) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"), middleware.Auth())
	return r
}

func setupQueueStore(t *testing.T) (*queue.Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return queue.NewStore(db, 10), mock
}

func postJSON(r *gin.Engine, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIssueToken(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, nil, nil, cron.New(), "hunter2", zap.NewNop())
	r := setupRouter(t, h)

	t.Run("correct secret", func(t *testing.T) {
		w := postJSON(r, "/api/v1/auth/token", `{"secret":"hunter2"}`, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Token     string `json:"token"`
			ExpiresIn int    `json:"expires_in"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.Token)
		assert.Equal(t, int((12 * 3600)), resp.ExpiresIn)

		claims, err := jwt.Parse(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, middleware.RoleAdmin, claims.Role)
	})

	t.Run("wrong secret", func(t *testing.T) {
		w := postJSON(r, "/api/v1/auth/token", `{"secret":"nope"}`, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing secret field", func(t *testing.T) {
		w := postJSON(r, "/api/v1/auth/token", `{}`, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestIssueToken_NoConfiguredSecret(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, nil, nil, cron.New(), "", zap.NewNop())
	r := setupRouter(t, h)

	// An unset admin secret must never become a passable check.
	w := postJSON(r, "/api/v1/auth/token", `{"secret":""}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(r, "/api/v1/auth/token", `{"secret":"anything"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutes_RequireAuth(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, nil, nil, cron.New(), "hunter2", zap.NewNop())
	r := setupRouter(t, h)

	w := postJSON(r, "/api/v1/admin/blast", `{"subject":"s","body":"b"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(r, "/api/v1/admin/blast", `{"subject":"s","body":"b"}`, "garbage-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.Sign(middleware.RoleAdmin, time.Hour)
	require.NoError(t, err)
	return token
}

func TestRequeue(t *testing.T) {
	store, mock := setupQueueStore(t)
	h := NewHandler(nil, nil, nil, store, nil, nil, cron.New(), "hunter2", zap.NewNop())
	r := setupRouter(t, h)
	token := adminToken(t)

	t.Run("failed item requeued", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `email_queue`").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		w := postJSON(r, "/api/v1/admin/queue/3/requeue", "", token)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("non-failed item conflicts", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `email_queue`").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		w := postJSON(r, "/api/v1/admin/queue/3/requeue", "", token)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		w := postJSON(r, "/api/v1/admin/queue/abc/requeue", "", token)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestJobs(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, nil, nil, cron.New(), "hunter2", zap.NewNop())
	r := setupRouter(t, h)
	token := adminToken(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = postJSON(r, "/api/v1/admin/jobs/nonexistent/run", "", token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
