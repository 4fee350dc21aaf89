package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/jobvine/sentinel/internal/sentinel"
)

const defaultRecentEvents = 50

// SecurityHandler serves the read-only reporting surface plus the
// break-glass unblock override.
type SecurityHandler struct {
	svc            *sentinel.Service
	breakGlassHash string
}

// NewSecurityHandler creates a new SecurityHandler. breakGlassHash is the
// bcrypt hash of the admin override token; empty disables the unblock
// endpoint.
func NewSecurityHandler(svc *sentinel.Service, breakGlassHash string) *SecurityHandler {
	return &SecurityHandler{svc: svc, breakGlassHash: breakGlassHash}
}

// GetStatus returns the current engine snapshot.
func (h *SecurityHandler) GetStatus(c *gin.Context) {
	limit := defaultRecentEvents
	if raw := c.Query("events"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	c.JSON(http.StatusOK, h.svc.Status(limit))
}

// GetAudit returns the aggregate report for the trailing period, default
// 24 hours.
func (h *SecurityHandler) GetAudit(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be a positive integer"})
			return
		}
		hours = n
	}
	c.JSON(http.StatusOK, h.svc.GenerateAudit(time.Duration(hours)*time.Hour))
}

// GetBlocked lists the currently blocked identities.
func (h *SecurityHandler) GetBlocked(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"blocked": h.svc.Blocked()})
}

// GetWhitelist lists the configured exempt identities.
func (h *SecurityHandler) GetWhitelist(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"whitelist": h.svc.WhitelistIdentities()})
}

type unblockRequest struct {
	Identity string `json:"identity" binding:"required"`
	Token    string `json:"token" binding:"required"`
	Actor    string `json:"actor"`
}

// Unblock lifts a block immediately. Guarded by the break-glass token so a
// locked-out operator can recover without redeploying.
func (h *SecurityHandler) Unblock(c *gin.Context) {
	if h.breakGlassHash == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "break-glass override not configured"})
		return
	}
	var req unblockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identity and token are required"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.breakGlassHash), []byte(req.Token)); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid break-glass token"})
		return
	}

	actor := req.Actor
	if actor == "" {
		actor = c.ClientIP()
	}
	if !h.svc.Unblock(req.Identity, actor) {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity is not blocked"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unblocked": req.Identity})
}
