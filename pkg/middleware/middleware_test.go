package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core).Sugar()

	r := gin.New()
	r.Use(RecoveryMiddleware(log))
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log, "/health"))

	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/panic", func(*gin.Context) { panic("boom") })
	return r, logs
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDMiddleware_Generates(t *testing.T) {
	r, _ := newTestRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestRequestIDMiddleware_Propagates(t *testing.T) {
	r, logs := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := serve(r, req)

	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "abc-123", entries[0].ContextMap()["request_id"])
}

func TestLoggerMiddleware_Levels(t *testing.T) {
	r, logs := newTestRouter(t)

	serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/ok?x=1", nil))

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "x=1", entries[1].ContextMap()["query"])
}

func TestRecoveryMiddleware(t *testing.T) {
	r, logs := newTestRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}
