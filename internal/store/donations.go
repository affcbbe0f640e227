package store

import (
	"context"
	"fmt"
	"time"

	"sitekeep/internal/models"
)

// ApplyDonation applies a verified donation as one unit of work: it locks the
// account, records the event id, adds to the donation totals, sets the new
// expiry on the account and on every deployment it owns, and revives those
// deployments when the new expiry is after now.
//
// A previously processed event id changes nothing and yields an outcome with
// Duplicate set and the account's current expiry.
func (s *Store) ApplyDonation(ctx context.Context, donation models.Donation, now time.Time, extend models.ExtendFunc) (*models.DonationOutcome, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin apply donation", err)
	}
	defer tx.Rollback()

	acc, err := s.lockAccount(ctx, tx, donation.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("apply donation %s: %w", donation.Fingerprint, err)
	}

	eventQuery := s.q(`INSERT INTO processed_events (event_id, fingerprint, amount, currency, processed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`)
	res, err := tx.ExecContext(ctx, eventQuery,
		donation.EventID, donation.Fingerprint, donation.Amount, donation.Currency, now.UTC())
	if err != nil {
		return nil, storeErr("record event", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, storeErr("record event", err)
	}
	if inserted == 0 {
		return &models.DonationOutcome{
			Fingerprint: donation.Fingerprint,
			NewExpiry:   acc.Expiry,
			Duplicate:   true,
		}, nil
	}

	newExpiry, days := extend(acc.Expiry)
	newExpiry = newExpiry.UTC()

	// Totals are incremented in SQL so concurrent donations build on the
	// stored values rather than on acc.
	accountQuery := s.q(`UPDATE accounts
		SET expiry = ?,
		    donation_amount = donation_amount + ?,
		    donation_extended_days = donation_extended_days + ?
		WHERE fingerprint = ?`)
	if _, err := tx.ExecContext(ctx, accountQuery, newExpiry, donation.Amount, days, donation.Fingerprint); err != nil {
		return nil, storeErr("update account expiry", err)
	}

	syncQuery := s.q(`UPDATE deployments SET expires_at = ? WHERE fingerprint = ?`)
	if _, err := tx.ExecContext(ctx, syncQuery, newExpiry, donation.Fingerprint); err != nil {
		return nil, storeErr("sync deployment expiry", err)
	}

	var revived int64
	if newExpiry.After(now) {
		reviveQuery := s.q(`UPDATE deployments SET live = ? WHERE fingerprint = ? AND live = ?`)
		res, err := tx.ExecContext(ctx, reviveQuery, true, donation.Fingerprint, false)
		if err != nil {
			return nil, storeErr("revive deployments", err)
		}
		if revived, err = res.RowsAffected(); err != nil {
			return nil, storeErr("revive deployments", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit apply donation", err)
	}

	return &models.DonationOutcome{
		Fingerprint:  donation.Fingerprint,
		NewExpiry:    newExpiry,
		ExtendedDays: days,
		Revived:      revived,
	}, nil
}
