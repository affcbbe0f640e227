// Package ledger turns verified donations into bounded expiry extensions.
package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"sitekeep/internal/models"
)

const (
	// Every complete increment of this amount buys daysPerIncrement days.
	incrementAmount  = 5
	daysPerIncrement = 30

	day = 24 * time.Hour

	// No donation can push expiry further than this past the current instant.
	maxHorizon = 180 * day
)

// MaxExtensionDays bounds the days credited for a single donation. It is far
// past the horizon and keeps the persisted running total small.
const MaxExtensionDays = 36600

// Store applies a donation as a single unit of work.
type Store interface {
	ApplyDonation(ctx context.Context, donation models.Donation, now time.Time, extend models.ExtendFunc) (*models.DonationOutcome, error)
}

// Notifier is told about each donation that changed an account.
type Notifier interface {
	NotifyDonation(donation models.Donation, outcome models.DonationOutcome)
}

// Ledger is the only writer of account expiry and donation totals.
type Ledger struct {
	store    Store
	notifier Notifier
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// New creates a Ledger. notifier may be nil.
func New(store Store, notifier Notifier, logger *zap.SugaredLogger) *Ledger {
	return &Ledger{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// ExtensionDays returns floor(amount/5)*30, at most MaxExtensionDays.
// Remainders buy nothing.
func ExtensionDays(amount float64) int {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0
	}
	increments := math.Floor(amount / incrementAmount)
	if increments >= MaxExtensionDays/daysPerIncrement {
		return MaxExtensionDays
	}
	return int(increments) * daysPerIncrement
}

// NewExpiry adds days to current and caps the result at now+180 days.
// days is compared against the distance to the cap in whole days before it
// is converted to a Duration, so no day count can overflow.
func NewExpiry(current, now time.Time, days int) time.Time {
	limit := now.Add(maxHorizon)
	if !current.Before(limit) {
		return limit
	}
	if days <= 0 {
		return current
	}
	// Sub saturates for very old expiries; the quotient still fits a Duration.
	if gapDays := int64(limit.Sub(current) / day); int64(days) > gapDays {
		return limit
	}
	return current.Add(time.Duration(days) * day)
}

// ApplyDonation extends the donor's account and every deployment it owns.
// Unknown fingerprints return models.ErrNotFound; store problems wrap
// models.ErrStore. A replayed event returns an outcome with Duplicate set.
func (l *Ledger) ApplyDonation(ctx context.Context, donation models.Donation) (*models.DonationOutcome, error) {
	if donation.Fingerprint == "" || donation.EventID == "" {
		return nil, fmt.Errorf("apply donation: missing fingerprint or event id: %w", models.ErrValidation)
	}
	if ExtensionDays(donation.Amount) == 0 {
		return nil, fmt.Errorf("apply donation: amount %v buys no extension: %w", donation.Amount, models.ErrValidation)
	}

	now := l.now().UTC()
	extend := func(current time.Time) (time.Time, int) {
		days := ExtensionDays(donation.Amount)
		return NewExpiry(current, now, days), days
	}

	outcome, err := l.store.ApplyDonation(ctx, donation, now, extend)
	if err != nil {
		return nil, err
	}

	if outcome.Duplicate {
		l.logger.Infow("duplicate donation event ignored",
			"event_id", donation.EventID,
			"fingerprint", donation.Fingerprint,
		)
		return outcome, nil
	}

	l.logger.Infow("donation applied",
		"event_id", donation.EventID,
		"fingerprint", donation.Fingerprint,
		"amount", donation.Amount,
		"extended_days", outcome.ExtendedDays,
		"new_expiry", outcome.NewExpiry,
		"revived", outcome.Revived,
	)

	if l.notifier != nil {
		l.notifier.NotifyDonation(donation, *outcome)
	}
	return outcome, nil
}
