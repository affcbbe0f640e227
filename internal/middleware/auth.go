package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitekeep/internal/models"
)

// FingerprintHeader carries a bare fingerprint when sessions are optional.
const FingerprintHeader = "X-Fingerprint"

const callerKey = "caller"

// TokenParser resolves a session token to the caller it was issued for.
type TokenParser interface {
	Parse(token string) (models.Principal, error)
}

// Identity resolves the caller. A Bearer session token wins; otherwise,
// unless requireSession is set, the X-Fingerprint header or the fingerprint
// query parameter is accepted as-is. Bare fingerprints never carry an admin
// grant.
func Identity(tokens TokenParser, requireSession bool, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			// Check if it's a Bearer token
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Debugw("authorization header is not Bearer", "path", c.FullPath())
				abort(c, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			caller, err := tokens.Parse(parts[1])
			if err != nil {
				logger.Debugw("session token rejected", "error", err)
				abort(c, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			c.Set(callerKey, caller)
			c.Next()
			return
		}

		if requireSession {
			abort(c, http.StatusUnauthorized, "session required")
			return
		}

		fp := c.GetHeader(FingerprintHeader)
		if fp == "" {
			fp = c.Query("fingerprint")
		}
		if fp == "" {
			abort(c, http.StatusUnauthorized, "fingerprint required")
			return
		}
		if !models.ValidFingerprint(fp) {
			abort(c, http.StatusBadRequest, "invalid fingerprint")
			return
		}

		c.Set(callerKey, models.Principal{Fingerprint: fp})
		c.Next()
	}
}

// Caller returns the identity resolved by Identity, or the zero Principal.
func Caller(c *gin.Context) models.Principal {
	v, _ := c.Get(callerKey)
	caller, _ := v.(models.Principal)
	return caller
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": msg})
}
