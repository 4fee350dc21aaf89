package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jobvine/sentinel/internal/sentinel"
)

const signatureHeader = "X-Signature"

// WebhookGuard verifies the HMAC signature on webhook callbacks (payment
// provider, background-check vendor). A bad signature is audited and
// rejected with 401; it never touches reputation or rate state.
func WebhookGuard(svc *sentinel.Service, secret, source string) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyInspectBytes))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(payload))

		if !svc.VerifyWebhook(payload, c.GetHeader(signatureHeader), secret, source) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}
