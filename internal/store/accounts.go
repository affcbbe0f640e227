package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sitekeep/internal/models"
)

// accountRow flattens donation_status into its two columns.
type accountRow struct {
	Fingerprint  string    `db:"fingerprint"`
	Expiry       time.Time `db:"expiry"`
	Amount       float64   `db:"donation_amount"`
	ExtendedDays int       `db:"donation_extended_days"`
	IsAdmin      bool      `db:"is_admin"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r accountRow) toModel() *models.Account {
	return &models.Account{
		Fingerprint: r.Fingerprint,
		Expiry:      r.Expiry.UTC(),
		DonationStatus: models.DonationStatus{
			Amount:       r.Amount,
			ExtendedDays: r.ExtendedDays,
		},
		IsAdmin:   r.IsAdmin,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

const accountColumns = `fingerprint, expiry, donation_amount, donation_extended_days, is_admin, created_at`

// GetAccount returns the account for fingerprint, or models.ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, fingerprint string) (*models.Account, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var row accountRow
	query := s.q(`SELECT ` + accountColumns + ` FROM accounts WHERE fingerprint = ?`)
	if err := s.db.GetContext(ctx, &row, query, fingerprint); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get account: %w", models.ErrNotFound)
		}
		return nil, storeErr("get account", err)
	}

	return row.toModel(), nil
}

// SetAdmin flips the is_admin flag on an existing account.
func (s *Store) SetAdmin(ctx context.Context, fingerprint string, admin bool) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.q(`UPDATE accounts SET is_admin = ? WHERE fingerprint = ?`), admin, fingerprint)
	if err != nil {
		return storeErr("set admin", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("set admin", err)
	}
	if n == 0 {
		return fmt.Errorf("set admin: %w", models.ErrNotFound)
	}
	return nil
}
