// Package usage computes rolling publish counters and live-site counts for a
// fingerprint. It reports; the publish path enforces.
package usage

import (
	"context"
	"fmt"
	"time"

	"sitekeep/internal/models"
)

const (
	dailyWindow      = 24 * time.Hour
	expirySoonWindow = 7 * 24 * time.Hour
)

// DeploymentLister is the read port the counter needs.
type DeploymentLister interface {
	ListDeploymentsByFingerprint(ctx context.Context, fingerprint string) ([]models.Deployment, error)
}

// Counter reports usage for a fingerprint against the fixed limits.
type Counter struct {
	store  DeploymentLister
	limits models.Limits
	now    func() time.Time
}

// NewCounter creates a Counter using models.DefaultLimits and the wall clock.
func NewCounter(store DeploymentLister) *Counter {
	return &Counter{
		store:  store,
		limits: models.DefaultLimits,
		now:    time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (c *Counter) SetClock(now func() time.Time) {
	c.now = now
}

// Usage loads the fingerprint's deployments and counts them at the current instant.
func (c *Counter) Usage(ctx context.Context, fingerprint string) (models.Usage, error) {
	deployments, err := c.store.ListDeploymentsByFingerprint(ctx, fingerprint)
	if err != nil {
		return models.Usage{}, fmt.Errorf("usage for %s: %w", fingerprint, err)
	}

	now := c.now().UTC()
	counts, soon := Count(deployments, now)

	return models.Usage{
		Fingerprint: fingerprint,
		Counts:      counts,
		Limits:      c.limits,
		ExpirySoon:  soon,
		NextResetAt: NextMonthStart(now),
	}, nil
}

// Count computes the counters over deployments at now. The daily window is
// exclusive at exactly 24h; a site whose expiry equals now is not live.
// expirySoon is true when some live site expires within the next 7 days.
func Count(deployments []models.Deployment, now time.Time) (models.Counts, bool) {
	var (
		counts     models.Counts
		expirySoon bool
	)
	dayAgo := now.Add(-dailyWindow)
	monthStart := MonthStart(now)
	soonLimit := now.Add(expirySoonWindow)

	for _, d := range deployments {
		if d.CreatedAt.After(dayAgo) {
			counts.PublishesToday++
		}
		if !d.CreatedAt.Before(monthStart) {
			counts.PublishedThisMonth++
		}
		if d.IsServing(now) {
			counts.LiveSites++
			if !d.ExpiresAt.After(soonLimit) {
				expirySoon = true
			}
		}
	}

	return counts, expirySoon
}

// MonthStart returns the first instant of now's calendar month in UTC.
func MonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextMonthStart returns the first instant of the following UTC month.
// It is informational; the windows are rolling.
func NextMonthStart(now time.Time) time.Time {
	return MonthStart(now).AddDate(0, 1, 0)
}
