package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jobvine/sentinel/internal/sentinel"
)

const (
	callerTierKey = "callerTier"
	callerUserKey = "callerUserID"
)

// CallerClaims is the subset of JWT claims the engine cares about.
type CallerClaims struct {
	Tier string `json:"tier"`
	jwt.RegisteredClaims
}

// CallerIdentity resolves the caller's tier and user id from the bearer
// token, if any. The engine does not own authentication: a missing or
// invalid token simply downgrades the caller to anonymous instead of
// rejecting the request.
func CallerIdentity(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tier, userID := claimsFromHeader(c.GetHeader("Authorization"), secret)
		c.Set(callerTierKey, tier)
		c.Set(callerUserKey, userID)
		c.Next()
	}
}

func claimsFromHeader(header, secret string) (sentinel.Tier, string) {
	if secret == "" || !strings.HasPrefix(header, "Bearer ") {
		return sentinel.TierAnonymous, ""
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	claims := &CallerClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return sentinel.TierAnonymous, ""
	}

	switch claims.Tier {
	case "admin":
		return sentinel.TierAdmin, claims.Subject
	case "premium":
		return sentinel.TierPremium, claims.Subject
	default:
		return sentinel.TierAuthenticated, claims.Subject
	}
}

// TierFromContext returns the tier resolved by CallerIdentity, defaulting
// to anonymous.
func TierFromContext(c *gin.Context) sentinel.Tier {
	if v, ok := c.Get(callerTierKey); ok {
		if tier, ok := v.(sentinel.Tier); ok {
			return tier
		}
	}
	return sentinel.TierAnonymous
}

// UserIDFromContext returns the authenticated user id, empty when anonymous.
func UserIDFromContext(c *gin.Context) string {
	if v, ok := c.Get(callerUserKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
