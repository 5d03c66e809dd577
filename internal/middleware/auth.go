package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderAPIKey   = "X-API-Key"
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	RoleStudent = "student"
	RoleCompany = "company"

	ctxUserID   = "user_id"
	ctxUserRole = "user_role"
)

var errNoIdentity = errors.New("missing user identity")

// APIKeyAuth rejects requests whose X-API-Key is not one of keys. An empty
// key list disables the check.
func APIKeyAuth(keys []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(keys) == 0 {
			c.Next()
			return
		}

		apiKey := c.GetHeader(HeaderAPIKey)
		if apiKey == "" {
			abort(c, http.StatusUnauthorized, "unauthenticated", "missing api key")
			return
		}
		for _, k := range keys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(k)) == 1 {
				c.Next()
				return
			}
		}
		abort(c, http.StatusUnauthorized, "unauthenticated", "invalid api key")
	}
}

// Identity reads the caller set by the upstream auth layer. Requests without
// a user id are rejected.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			abort(c, http.StatusUnauthorized, "unauthenticated", "missing "+HeaderUserID)
			return
		}
		c.Set(ctxUserID, userID)
		c.Set(ctxUserRole, strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole))))
		c.Next()
	}
}

// RequireRole only lets callers with role through. Must run after Identity.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxUserRole) != role {
			abort(c, http.StatusForbidden, "forbidden", "only "+role+" accounts can manage this asset")
			return
		}
		c.Next()
	}
}

// ExtractUserID gets the user id stored by Identity.
func ExtractUserID(c *gin.Context) (string, error) {
	userID := c.GetString(ctxUserID)
	if userID == "" {
		return "", errNoIdentity
	}
	return userID, nil
}

func abort(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   kind,
		"message": message,
	})
}
