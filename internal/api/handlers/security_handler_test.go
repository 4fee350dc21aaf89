package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jobvine/sentinel/internal/sentinel"
)

const testBreakGlassToken = "open-sesame"

func securityRouter(t *testing.T) (*gin.Engine, *sentinel.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := sentinel.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := sentinel.NewService(sentinel.Options{Clock: clock})

	hash, err := bcrypt.GenerateFromPassword([]byte(testBreakGlassToken), bcrypt.MinCost)
	require.NoError(t, err)
	h := NewSecurityHandler(svc, string(hash))

	r := gin.New()
	r.GET("/security/status", h.GetStatus)
	r.GET("/security/audit", h.GetAudit)
	r.GET("/security/blocked", h.GetBlocked)
	r.GET("/security/whitelist", h.GetWhitelist)
	r.POST("/security/unblock", h.Unblock)
	return r, svc
}

func blockIdentity(svc *sentinel.Service, identity string) {
	for i := 0; i < 5; i++ {
		svc.Check(sentinel.CheckInput{
			Identity: identity,
			Tier:     sentinel.TierAnonymous,
			Route:    sentinel.RouteGeneral,
			Fields:   []sentinel.Field{{Name: "q", Value: "<script>alert(1)</script>"}},
		})
	}
}

func TestSecurityHandler_GetStatus(t *testing.T) {
	r, svc := securityRouter(t)
	blockIdentity(svc, "203.0.113.9")

	req, _ := http.NewRequest("GET", "/security/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var status sentinel.SecurityStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Len(t, status.BlockedIdentities, 1)
	assert.Equal(t, "203.0.113.9", status.BlockedIdentities[0].Identity)
	assert.Equal(t, 1, status.TrackedThreats)
	assert.NotEmpty(t, status.RecentEvents)
}

func TestSecurityHandler_GetAudit(t *testing.T) {
	r, svc := securityRouter(t)
	svc.Check(sentinel.CheckInput{
		Identity: "198.51.100.4",
		Tier:     sentinel.TierAnonymous,
		Route:    sentinel.RouteGeneral,
		Fields:   []sentinel.Field{{Name: "q", Value: "' OR '1'='1"}},
	})

	req, _ := http.NewRequest("GET", "/security/audit?hours=12", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var report sentinel.AuditReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 12*time.Hour, report.PeriodEnd.Sub(report.PeriodStart))
	assert.Equal(t, 1, report.EventCounts[sentinel.EventSQLInjectionAttempt])
	assert.NotEmpty(t, report.Recommendations)
}

func TestSecurityHandler_GetAuditRejectsBadHours(t *testing.T) {
	r, _ := securityRouter(t)

	for _, raw := range []string{"0", "-3", "soon"} {
		req, _ := http.NewRequest("GET", "/security/audit?hours="+raw, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "hours=%s", raw)
	}
}

func TestSecurityHandler_GetBlocked(t *testing.T) {
	r, svc := securityRouter(t)
	blockIdentity(svc, "203.0.113.9")

	req, _ := http.NewRequest("GET", "/security/blocked", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "203.0.113.9")
}

func TestSecurityHandler_Unblock(t *testing.T) {
	r, svc := securityRouter(t)
	blockIdentity(svc, "203.0.113.9")

	body := `{"identity":"203.0.113.9","token":"` + testBreakGlassToken + `","actor":"oncall"}`
	req, _ := http.NewRequest("POST", "/security/unblock", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, svc.Blocked())
}

func TestSecurityHandler_UnblockBadToken(t *testing.T) {
	r, svc := securityRouter(t)
	blockIdentity(svc, "203.0.113.9")

	body := `{"identity":"203.0.113.9","token":"wrong"}`
	req, _ := http.NewRequest("POST", "/security/unblock", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Len(t, svc.Blocked(), 1)
}

func TestSecurityHandler_UnblockUnknownIdentity(t *testing.T) {
	r, _ := securityRouter(t)

	body := `{"identity":"192.0.2.1","token":"` + testBreakGlassToken + `"}`
	req, _ := http.NewRequest("POST", "/security/unblock", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSecurityHandler_UnblockDisabledWithoutHash(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := sentinel.NewService(sentinel.Options{})
	h := NewSecurityHandler(svc, "")

	r := gin.New()
	r.POST("/security/unblock", h.Unblock)

	body := `{"identity":"192.0.2.1","token":"anything"}`
	req, _ := http.NewRequest("POST", "/security/unblock", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSecurityHandler_GetWhitelist(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := sentinel.NewService(sentinel.Options{Whitelist: []string{"10.0.0.1", "10.0.0.2"}})
	h := NewSecurityHandler(svc, "")

	r := gin.New()
	r.GET("/security/whitelist", h.GetWhitelist)

	req, _ := http.NewRequest("GET", "/security/whitelist", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Whitelist []string `json:"whitelist"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, resp.Whitelist)
}
