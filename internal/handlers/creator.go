package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitekeep/internal/middleware"
	"sitekeep/internal/models"
)

// UsageReporter reports usage counters for a fingerprint.
type UsageReporter interface {
	Usage(ctx context.Context, fingerprint string) (models.Usage, error)
}

// DeploymentRegistry lists and records deployments.
type DeploymentRegistry interface {
	Elevated(ctx context.Context, caller models.Principal) bool
	List(ctx context.Context, caller models.Principal, wantAll bool) ([]models.Deployment, bool, error)
	Publish(ctx context.Context, caller models.Principal, repo, homepage string) (*models.Deployment, error)
}

// SiteHandler serves the dashboard read paths and publishing.
type SiteHandler struct {
	usage    UsageReporter
	registry DeploymentRegistry
	logger   *zap.SugaredLogger
}

func NewSiteHandler(usage UsageReporter, registry DeploymentRegistry, logger *zap.SugaredLogger) *SiteHandler {
	return &SiteHandler{usage: usage, registry: registry, logger: logger}
}

func (h *SiteHandler) GetUsage(c *gin.Context) {
	caller := middleware.Caller(c)
	ctx := c.Request.Context()

	u, err := h.usage.Usage(ctx, caller.Fingerprint)
	if err != nil {
		respondError(c, h.logger, "ok", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"admin":       h.registry.Elevated(ctx, caller),
		"fingerprint": caller.Fingerprint,
		"counts":      u.Counts,
		"limits":      u.Limits,
		"nextResetAt": u.NextResetAt,
		"expirySoon":  u.ExpirySoon,
	})
}

// ListDeployments returns the caller's deployments, or every deployment when
// an admin session passes all=1. Newest first.
func (h *SiteHandler) ListDeployments(c *gin.Context) {
	wantAll, _ := strconv.ParseBool(c.Query("all"))

	sites, admin, err := h.registry.List(c.Request.Context(), middleware.Caller(c), wantAll)
	if err != nil {
		respondError(c, h.logger, "ok", err)
		return
	}
	if sites == nil {
		sites = []models.Deployment{}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "admin": admin, "sites": sites})
}

type PublishRequest struct {
	Repo     string `json:"repo" binding:"required,max=512"`
	Homepage string `json:"homepage" binding:"required,url,max=2048"`
}

func (h *SiteHandler) Publish(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Invalid request: " + err.Error()})
		return
	}

	site, err := h.registry.Publish(c.Request.Context(), middleware.Caller(c), req.Repo, req.Homepage)
	if err != nil {
		respondError(c, h.logger, "ok", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "site": site})
}
