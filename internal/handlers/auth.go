package handlers

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitekeep/internal/models"
)

// SessionIssuer signs session tokens for a fingerprint.
type SessionIssuer interface {
	Issue(fingerprint string, admin bool) (string, time.Time, error)
}

// AdminChecker resolves whether a fingerprint is an admin.
type AdminChecker interface {
	IsAdmin(ctx context.Context, fingerprint string) bool
}

type SessionHandler struct {
	issuer     SessionIssuer
	admins     AdminChecker
	adminToken []byte
	logger     *zap.SugaredLogger
}

// NewSessionHandler creates a SessionHandler. An empty adminToken disables
// admin sessions.
func NewSessionHandler(issuer SessionIssuer, admins AdminChecker, adminToken string, logger *zap.SugaredLogger) *SessionHandler {
	return &SessionHandler{issuer: issuer, admins: admins, adminToken: []byte(adminToken), logger: logger}
}

// SessionRequest defines the JSON struct we expect from the client
type SessionRequest struct {
	Fingerprint string `json:"fingerprint" binding:"required,max=256"`
	AdminToken  string `json:"adminToken" binding:"max=512"`
}

// CreateSession exchanges a fingerprint for a signed session token. The
// session carries an admin grant only when the operator admin token is
// presented and the fingerprint resolves as admin.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Invalid request: " + err.Error()})
		return
	}

	admin := false
	if req.AdminToken != "" {
		if !h.adminTokenMatches(req.AdminToken) || !h.admins.IsAdmin(c.Request.Context(), req.Fingerprint) {
			h.logger.Warnw("admin session refused", "fingerprint", req.Fingerprint)
			respondError(c, h.logger, "ok", fmt.Errorf("create session: admin grant refused: %w", models.ErrUnauthenticated))
			return
		}
		admin = true
	}

	token, expiresAt, err := h.issuer.Issue(req.Fingerprint, admin)
	if err != nil {
		respondError(c, h.logger, "ok", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "token": token, "expiresAt": expiresAt, "admin": admin})
}

func (h *SessionHandler) adminTokenMatches(got string) bool {
	if len(h.adminToken) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), h.adminToken) == 1
}
