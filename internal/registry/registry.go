// Package registry lists deployments scoped by caller identity and gates new
// publishes on the usage limits.
package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sitekeep/internal/models"
)

// Store is the persistence port for deployments.
type Store interface {
	ListDeploymentsByFingerprint(ctx context.Context, fingerprint string) ([]models.Deployment, error)
	ListAllDeployments(ctx context.Context) ([]models.Deployment, error)
	CreateDeployment(ctx context.Context, d models.Deployment, minExpiry time.Time) (*models.Deployment, error)
}

// AdminResolver resolves elevated privilege.
type AdminResolver interface {
	IsAdmin(ctx context.Context, fingerprint string) (bool, error)
}

// UsageReporter reports usage counters against the limits.
type UsageReporter interface {
	Usage(ctx context.Context, fingerprint string) (models.Usage, error)
}

// Registry serves deployment listings and records new publishes.
type Registry struct {
	store    Store
	admins   AdminResolver
	usage    UsageReporter
	lifetime time.Duration
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// New creates a Registry. lifetime is the time box granted to a new publish.
func New(store Store, admins AdminResolver, usage UsageReporter, lifetime time.Duration, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		store:    store,
		admins:   admins,
		usage:    usage,
		lifetime: lifetime,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// IsAdmin resolves the caller's privilege. A lookup failure is logged and
// treated as non-admin.
func (r *Registry) IsAdmin(ctx context.Context, caller string) bool {
	admin, err := r.admins.IsAdmin(ctx, caller)
	if err != nil {
		r.logger.Warnw("admin lookup failed, treating caller as non-admin",
			"fingerprint", caller,
			"error", err,
		)
		return false
	}
	return admin
}

// Elevated reports whether caller may use admin privilege: the session must
// carry an admin grant and the fingerprint must still resolve as admin.
func (r *Registry) Elevated(ctx context.Context, caller models.Principal) bool {
	if !caller.AdminGrant {
		return false
	}
	return r.IsAdmin(ctx, caller.Fingerprint)
}

// List returns deployments newest first. wantAll widens the scope to every
// account only when caller is elevated; otherwise the caller's own
// deployments are returned. The second result reports whether caller is elevated.
func (r *Registry) List(ctx context.Context, caller models.Principal, wantAll bool) ([]models.Deployment, bool, error) {
	if !models.ValidFingerprint(caller.Fingerprint) {
		return nil, false, fmt.Errorf("list deployments: invalid fingerprint: %w", models.ErrValidation)
	}

	admin := r.Elevated(ctx, caller)

	var (
		deployments []models.Deployment
		err         error
	)
	if wantAll && admin {
		deployments, err = r.store.ListAllDeployments(ctx)
	} else {
		deployments, err = r.store.ListDeploymentsByFingerprint(ctx, caller.Fingerprint)
	}
	if err != nil {
		return nil, admin, fmt.Errorf("list deployments: %w", err)
	}
	return deployments, admin, nil
}

// Publish records a new deployment for caller after checking the usage
// limits. Elevated callers are exempt. The account is created on first publish.
func (r *Registry) Publish(ctx context.Context, caller models.Principal, repo, homepage string) (*models.Deployment, error) {
	fingerprint := caller.Fingerprint
	repo = strings.TrimSpace(repo)
	homepage = strings.TrimSpace(homepage)
	if !models.ValidFingerprint(fingerprint) || repo == "" || homepage == "" {
		return nil, fmt.Errorf("publish: fingerprint, repo and homepage are required: %w", models.ErrValidation)
	}

	if !r.Elevated(ctx, caller) {
		u, err := r.usage.Usage(ctx, fingerprint)
		if err != nil {
			return nil, fmt.Errorf("publish: %w", err)
		}
		if limit := u.Exceeded(); limit != "" {
			return nil, fmt.Errorf("publish: %s limit reached: %w", limit, models.ErrQuotaExceeded)
		}
	}

	now := r.now().UTC()
	d := models.Deployment{
		ID:          uuid.NewString(),
		Fingerprint: fingerprint,
		Repo:        repo,
		Homepage:    homepage,
		CreatedAt:   now,
		Live:        true,
		State:       models.StateCreated,
	}

	created, err := r.store.CreateDeployment(ctx, d, now.Add(r.lifetime))
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}

	r.logger.Infow("deployment published",
		"id", created.ID,
		"fingerprint", fingerprint,
		"expires_at", created.ExpiresAt,
	)
	return created, nil
}
