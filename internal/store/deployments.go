package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"sitekeep/internal/models"
)

const deploymentColumns = `id, fingerprint, repo, homepage, created_at, expires_at, live, state`

// ListDeploymentsByFingerprint returns the deployments owned by fingerprint,
// newest first.
func (s *Store) ListDeploymentsByFingerprint(ctx context.Context, fingerprint string) ([]models.Deployment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := s.q(`SELECT ` + deploymentColumns + ` FROM deployments
		WHERE fingerprint = ?
		ORDER BY created_at DESC, id`)

	var deployments []models.Deployment
	if err := s.db.SelectContext(ctx, &deployments, query, fingerprint); err != nil {
		return nil, storeErr("list deployments", err)
	}
	return normalize(deployments), nil
}

// ListAllDeployments returns every deployment across all accounts, newest first.
func (s *Store) ListAllDeployments(ctx context.Context) ([]models.Deployment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + deploymentColumns + ` FROM deployments ORDER BY created_at DESC, id`

	var deployments []models.Deployment
	if err := s.db.SelectContext(ctx, &deployments, query); err != nil {
		return nil, storeErr("list all deployments", err)
	}
	return normalize(deployments), nil
}

// CreateDeployment records a new deployment, creating the owning account
// with expiry minExpiry on first publish. The deployment's expires_at is the
// later of the account expiry and minExpiry. Both writes share a transaction.
func (s *Store) CreateDeployment(ctx context.Context, d models.Deployment, minExpiry time.Time) (*models.Deployment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin create deployment", err)
	}

	// Ensure the transaction is rolled back on error
	defer tx.Rollback()

	accountQuery := s.q(`INSERT INTO accounts (fingerprint, expiry, donation_amount, donation_extended_days, is_admin, created_at)
		VALUES (?, ?, 0, 0, ?, ?)
		ON CONFLICT (fingerprint) DO NOTHING`)
	if _, err := tx.ExecContext(ctx, accountQuery, d.Fingerprint, minExpiry.UTC(), false, d.CreatedAt.UTC()); err != nil {
		return nil, storeErr("ensure account", err)
	}

	acc, err := s.lockAccount(ctx, tx, d.Fingerprint)
	if err != nil {
		return nil, err
	}

	d.ExpiresAt = acc.Expiry
	if minExpiry.After(d.ExpiresAt) {
		d.ExpiresAt = minExpiry
	}
	d.ExpiresAt = d.ExpiresAt.UTC()
	d.CreatedAt = d.CreatedAt.UTC()

	insertQuery := s.q(`INSERT INTO deployments (` + deploymentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = tx.ExecContext(ctx, insertQuery,
		d.ID, d.Fingerprint, d.Repo, d.Homepage,
		d.CreatedAt, d.ExpiresAt, d.Live, string(d.State),
	)
	if err != nil {
		return nil, storeErr("insert deployment", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit create deployment", err)
	}
	return &d, nil
}

// lockAccount reads the account row inside tx, locking it where the driver
// supports row locks.
func (s *Store) lockAccount(ctx context.Context, tx *sqlx.Tx, fingerprint string) (*models.Account, error) {
	var rows []accountRow
	query := s.q(`SELECT ` + accountColumns + ` FROM accounts WHERE fingerprint = ?` + s.lockClause())
	if err := tx.SelectContext(ctx, &rows, query, fingerprint); err != nil {
		return nil, storeErr("lock account", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("lock account: %w", models.ErrNotFound)
	}
	return rows[0].toModel(), nil
}

func normalize(deployments []models.Deployment) []models.Deployment {
	if deployments == nil {
		return []models.Deployment{}
	}
	for i := range deployments {
		deployments[i].CreatedAt = deployments[i].CreatedAt.UTC()
		deployments[i].ExpiresAt = deployments[i].ExpiresAt.UTC()
	}
	return deployments
}
