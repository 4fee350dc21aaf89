package sentinel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature checks a webhook payload against its HMAC-SHA256
// signature using constant-time comparison. Pure function with no side
// effects; callers that want the failure audited wrap it (see
// Service.VerifyWebhook). The signature may carry a "sha256=" prefix.
func VerifySignature(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(sig, mac.Sum(nil))
}

// SignPayload produces the hex HMAC-SHA256 signature for a payload. Used by
// tests and by callers that need to emit signed callbacks.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
