package tracking

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kunaal-theme/notify/internal/pkg/signature"
)

func setupHandler(t *testing.T) (*gin.Engine, *signature.Service, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	signer := signature.New("tok", "url-secret", "https://notify.example.com")

	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(db, signer, zap.NewNop()).RegisterRoutes(r)
	return r, signer, mock
}

// clickPath strips the base URL off a generated click link so it can be
// served against the test router.
func clickPath(t *testing.T, full string) string {
	t.Helper()
	u, err := url.Parse(full)
	require.NoError(t, err)
	return u.Path + "?" + u.RawQuery
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("User-Agent", "test-agent/1.0")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestClick_ValidLinkRedirects(t *testing.T) {
	r, signer, mock := setupHandler(t)
	target := "https://blog.example.com/post?ref=1"

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `email_events`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	w := get(r, clickPath(t, signer.ClickURL(7, 42, target)))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, target, w.Header().Get("Location"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClick_EventInsertFailureStillRedirects(t *testing.T) {
	r, signer, mock := setupHandler(t)
	target := "https://blog.example.com/post"

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `email_events`").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	w := get(r, clickPath(t, signer.ClickURL(7, 42, target)))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, target, w.Header().Get("Location"))
}

func TestClick_InvalidRequestsRejected(t *testing.T) {
	r, signer, _ := setupHandler(t)
	valid := clickPath(t, signer.ClickURL(7, 42, "https://blog.example.com/post"))

	tests := []struct {
		name string
		path string
	}{
		{"missing params", "/t/c"},
		{"bad qid", strings.Replace(valid, "qid=7", "qid=abc", 1)},
		{"tampered signature", valid[:len(valid)-4] + "0000"},
		{"swapped subscriber", strings.Replace(valid, "sid=42", "sid=43", 1)},
		{"garbage target", strings.Replace(valid, "u=", "u=!!!", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, tt.path)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, w.Header().Get("Location"))
		})
	}
}

func TestClick_NonHTTPTargetRejected(t *testing.T) {
	r, signer, _ := setupHandler(t)

	// Even a correctly signed non-http target must not redirect.
	w := get(r, clickPath(t, signer.ClickURL(7, 42, "javascript:alert(1)")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
