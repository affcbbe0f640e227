package store

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"sitekeep/internal/models"
)

// setupTestStore creates a named shared in-memory SQLite database for testing.
// A unique name derived from t.Name() keeps tests isolated.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		url.PathEscape(t.Name()),
	)

	s, err := Open(context.Background(), DriverSQLite, dsn, 5*time.Second)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := s.RunMigrations(); err != nil {
		_ = s.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })
	return s
}

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// seedAccount inserts an account row directly.
func seedAccount(t *testing.T, s *Store, fingerprint string, expiry time.Time, admin bool) {
	t.Helper()
	_, err := s.db.Exec(
		`INSERT INTO accounts (fingerprint, expiry, donation_amount, donation_extended_days, is_admin, created_at) VALUES (?, ?, 0, 0, ?, ?)`,
		fingerprint, expiry.UTC(), admin, testNow.Add(-30*24*time.Hour),
	)
	if err != nil {
		t.Fatalf("seed account %s: %v", fingerprint, err)
	}
}

// seedDeployment inserts a deployment row directly, bypassing publish rules.
func seedDeployment(t *testing.T, s *Store, d models.Deployment) {
	t.Helper()
	if d.State == "" {
		d.State = models.StateCreated
	}
	_, err := s.db.Exec(
		`INSERT INTO deployments (id, fingerprint, repo, homepage, created_at, expires_at, live, state) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Fingerprint, d.Repo, d.Homepage, d.CreatedAt.UTC(), d.ExpiresAt.UTC(), d.Live, string(d.State),
	)
	if err != nil {
		t.Fatalf("seed deployment %s: %v", d.ID, err)
	}
}

func countEvents(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	if err := s.db.Get(&n, `SELECT COUNT(*) FROM processed_events`); err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}
