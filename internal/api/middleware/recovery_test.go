package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/jobvine/sentinel/internal/logger"
)

func panicRouter(verbose bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.Use(Recovery(verbose))
	router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})
	return router
}

func TestRecoveryLogsStacktraceVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.Init(true, buf)

	router := panicRouter(true)
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	out := buf.String()
	assert.Contains(t, out, "PANIC: test panic")
	assert.Contains(t, out, "Stacktrace:")
	assert.Contains(t, out, "request_id")
}

func TestRecoveryLogsBriefWhenNotVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.Init(false, buf)

	router := panicRouter(false)
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	out := buf.String()
	assert.Contains(t, out, "PANIC: test panic")
	assert.False(t, strings.Contains(out, "Stacktrace:"), "non-verbose log unexpectedly included stacktrace")
}

func TestRecoverySanitizesHeadersAndPath(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.Init(true, buf)

	router := panicRouter(true)
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	out := buf.String()
	assert.False(t, strings.Contains(out, "secret-token"), "log contained sensitive token")
	assert.Contains(t, out, "<redacted>")
}
