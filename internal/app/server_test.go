package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/smartbot/internal/config"
	db "github.com/markdave123-py/smartbot/internal/core/database"
	"github.com/markdave123-py/smartbot/internal/core/ingestion_engine"
	"github.com/markdave123-py/smartbot/internal/services"
)

const testSecret = "0123456789abcdef0123"

func testConfig() *config.Config {
	return &config.Config{
		Port:              "8080",
		JWTSecret:         testSecret,
		CompletionTimeout: time.Second,
		MaxUploadMB:       1,
		AllowedOrigins:    []string{"*"},
	}
}

// testRouter serves only routes that are rejected before reaching a service.
func testRouter() http.Handler {
	return NewRouter(testConfig(), zap.NewNop(), nil, nil, nil, nil)
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	r := testRouter()
	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/organizations"},
		{http.MethodPost, "/api/create-bot"},
		{http.MethodGet, "/api/bot/b1/chat-history"},
		{http.MethodDelete, "/api/bot/b1"},
		{http.MethodDelete, "/api/chat-history/r1"},
		{http.MethodGet, "/api/auth/me"},
	}
	for _, p := range paths {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(p.method, p.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, p.method+" "+p.path)
	}
}

func TestRouter_DeleteBotReachesHandler(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := db.NewFromDB(sqlDB)
	bots := services.NewBotService(store, nil, ingestion_engine.NewDocconvExtractor(false), 3, zap.NewNop())
	r := NewRouter(testConfig(), zap.NewNop(), nil, bots, nil, nil)

	t.Run("soft delete", func(t *testing.T) {
		mock.ExpectExec("UPDATE organizations SET is_deleted = TRUE").
			WithArgs("b1", "u1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		req := httptest.NewRequest(http.MethodDelete, "/api/bot/b1", nil)
		req.Header.Set("Authorization", bearer(t, "u1"))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Bot deleted successfully")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("purge", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT data FROM organizations").
			WithArgs("b1", "u1").
			WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{}`)))
		mock.ExpectExec("DELETE FROM chat_history").WithArgs("b1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("DELETE FROM widget_configs").WithArgs("b1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM organizations").WithArgs("b1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		req := httptest.NewRequest(http.MethodDelete, "/api/bot/b1?purge=true", nil)
		req.Header.Set("Authorization", bearer(t, "u1"))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRouter_WidgetScriptIsPublic(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widget.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_QueryPreflightAllowsAnyOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/query/b1", nil)
	req.Header.Set("Origin", "https://customer.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost))
}

func TestRouter_ForwardedHeadersNeedTrustProxy(t *testing.T) {
	remoteAddr := func(cfg *config.Config) string {
		mux := NewRouter(cfg, zap.NewNop(), nil, nil, nil, nil).(*chi.Mux)
		mux.Get("/remote", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(r.RemoteAddr))
		})

		req := httptest.NewRequest(http.MethodGet, "/remote", nil)
		req.RemoteAddr = "198.51.100.4:40000"
		req.Header.Set("X-Forwarded-For", "203.0.113.99")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec.Body.String()
	}

	assert.Equal(t, "198.51.100.4:40000", remoteAddr(testConfig()))

	trusted := testConfig()
	trusted.TrustProxy = true
	assert.Equal(t, "203.0.113.99", remoteAddr(trusted))
}
