package ledger

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"sitekeep/internal/models"
	"sitekeep/internal/store"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type mockStore struct {
	expiry    time.Time
	outcome   *models.DonationOutcome
	err       error
	gotNow    time.Time
	gotAmount float64
}

func (m *mockStore) ApplyDonation(_ context.Context, d models.Donation, now time.Time, extend models.ExtendFunc) (*models.DonationOutcome, error) {
	m.gotNow = now
	m.gotAmount = d.Amount
	if m.err != nil {
		return nil, m.err
	}
	if m.outcome != nil {
		return m.outcome, nil
	}
	newExpiry, days := extend(m.expiry)
	return &models.DonationOutcome{Fingerprint: d.Fingerprint, NewExpiry: newExpiry, ExtendedDays: days}, nil
}

type recordingNotifier struct {
	outcomes []models.DonationOutcome
}

func (r *recordingNotifier) NotifyDonation(_ models.Donation, out models.DonationOutcome) {
	r.outcomes = append(r.outcomes, out)
}

func newTestLedger(t *testing.T, s Store, n Notifier) *Ledger {
	t.Helper()
	l := New(s, n, zaptest.NewLogger(t).Sugar())
	l.SetClock(func() time.Time { return now })
	return l
}

func TestExtensionDays(t *testing.T) {
	tests := []struct {
		amount float64
		want   int
	}{
		{4.99, 0},
		{5, 30},
		{9.99, 30},
		{10, 60},
		{24, 120},
		{25, 150},
		{100, 600},
		{0, 0},
		{-5, 0},
		{6095, 36570},
		{6100, MaxExtensionDays},
		{17800, MaxExtensionDays},
		{1e6, MaxExtensionDays},
		{1e20, MaxExtensionDays},
		{math.MaxFloat64, MaxExtensionDays},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.amount), func(t *testing.T) {
			assert.Equal(t, tt.want, ExtensionDays(tt.amount))
		})
	}
}

func TestNewExpiry(t *testing.T) {
	tests := []struct {
		name    string
		current time.Time
		days    int
		want    time.Time
	}{
		{name: "within cap", current: now.Add(10 * day), days: 60, want: now.Add(70 * day)},
		{name: "capped from far future", current: now.Add(170 * day), days: 60, want: now.Add(180 * day)},
		{name: "exactly at cap", current: now.Add(120 * day), days: 60, want: now.Add(180 * day)},
		{name: "lapsed account stays relative to old expiry", current: now.Add(-100 * day), days: 30, want: now.Add(-70 * day)},
		{name: "large donation capped", current: now, days: 6000, want: now.Add(180 * day)},
		{name: "day count past duration range", current: now.Add(10 * day), days: 106800, want: now.Add(180 * day)},
		{name: "max int days", current: now.Add(10 * day), days: math.MaxInt, want: now.Add(180 * day)},
		{name: "ancient expiry with max days", current: time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC), days: math.MaxInt, want: now.Add(180 * day)},
		{name: "zero days leaves expiry", current: now.Add(10 * day), days: 0, want: now.Add(10 * day)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewExpiry(tt.current, now, tt.days))
		})
	}
}

func TestApplyDonation_TenDollars(t *testing.T) {
	current := now.Add(5 * day)
	s := &mockStore{expiry: current}
	n := &recordingNotifier{}
	l := newTestLedger(t, s, n)

	out, err := l.ApplyDonation(context.Background(), models.Donation{EventID: "e", Fingerprint: "fp", Amount: 10, Currency: "usd"})
	require.NoError(t, err)

	assert.Equal(t, 60, out.ExtendedDays)
	assert.Equal(t, current.Add(60*day), out.NewExpiry)
	assert.Equal(t, now, s.gotNow)
	require.Len(t, n.outcomes, 1)
	assert.Equal(t, out.NewExpiry, n.outcomes[0].NewExpiry)
}

func TestApplyDonation_HugeAmountHitsCap(t *testing.T) {
	current := now.Add(10 * day)
	s := &mockStore{expiry: current}
	l := newTestLedger(t, s, nil)

	out, err := l.ApplyDonation(context.Background(), models.Donation{EventID: "e", Fingerprint: "fp", Amount: 17800, Currency: "usd"})
	require.NoError(t, err)

	assert.Equal(t, MaxExtensionDays, out.ExtendedDays)
	assert.Equal(t, now.Add(180*day), out.NewExpiry)
	assert.False(t, out.NewExpiry.Before(current))
}

func TestApplyDonation_DuplicateIsNotNotified(t *testing.T) {
	s := &mockStore{outcome: &models.DonationOutcome{Fingerprint: "fp", NewExpiry: now, Duplicate: true}}
	n := &recordingNotifier{}
	l := newTestLedger(t, s, n)

	out, err := l.ApplyDonation(context.Background(), models.Donation{EventID: "e", Fingerprint: "fp", Amount: 10})
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Empty(t, n.outcomes)
}

func TestApplyDonation_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		donation models.Donation
		storeErr error
		wantErr  error
	}{
		{name: "sub-minimum", donation: models.Donation{EventID: "e", Fingerprint: "fp", Amount: 4}, wantErr: models.ErrValidation},
		{name: "no fingerprint", donation: models.Donation{EventID: "e", Amount: 10}, wantErr: models.ErrValidation},
		{name: "no event id", donation: models.Donation{Fingerprint: "fp", Amount: 10}, wantErr: models.ErrValidation},
		{name: "unknown fingerprint", donation: models.Donation{EventID: "e", Fingerprint: "ghost", Amount: 10}, storeErr: models.ErrNotFound, wantErr: models.ErrNotFound},
		{name: "store failure", donation: models.Donation{EventID: "e", Fingerprint: "fp", Amount: 10}, storeErr: models.ErrStore, wantErr: models.ErrStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &recordingNotifier{}
			l := newTestLedger(t, &mockStore{err: tt.storeErr}, n)

			_, err := l.ApplyDonation(context.Background(), tt.donation)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, n.outcomes)
		})
	}
}

// --- end-to-end against the SQLite store ---

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(ON)", url.PathEscape(t.Name()))
	s, err := store.Open(context.Background(), store.DriverSQLite, dsn, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, s.RunMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func publish(t *testing.T, s *store.Store, id, fp string, createdAt, minExpiry time.Time) {
	t.Helper()
	_, err := s.CreateDeployment(context.Background(), models.Deployment{
		ID: id, Fingerprint: fp, Repo: "repo-" + id, Homepage: "https://pages.test/" + id,
		CreatedAt: createdAt, Live: true, State: models.StateCreated,
	}, minExpiry)
	require.NoError(t, err)
}

func TestApplyDonation_NeverExceedsHorizon(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		wantDays int
	}{
		{name: "one increment", amount: 5, wantDays: 30},
		{name: "past horizon", amount: 500, wantDays: 3000},
		{name: "beyond duration range", amount: 17800, wantDays: MaxExtensionDays},
		{name: "a million", amount: 1e6, wantDays: MaxExtensionDays},
		{name: "beyond int range", amount: 1e20, wantDays: MaxExtensionDays},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupStore(t)
			prior := now.Add(6 * day)
			publish(t, s, "d1", "fp", now.Add(-day), prior)
			l := newTestLedger(t, s, nil)
			ctx := context.Background()

			out, err := l.ApplyDonation(ctx, models.Donation{EventID: "evt", Fingerprint: "fp", Amount: tt.amount, Currency: "usd"})
			require.NoError(t, err)

			want := NewExpiry(prior, now, tt.wantDays)
			assert.Equal(t, tt.wantDays, out.ExtendedDays)
			assert.WithinDuration(t, want, out.NewExpiry, time.Second)
			assert.False(t, out.NewExpiry.After(now.Add(180*day)))
			assert.False(t, out.NewExpiry.Before(prior), "expiry shortened")

			acc, err := s.GetAccount(ctx, "fp")
			require.NoError(t, err)
			assert.WithinDuration(t, want, acc.Expiry, time.Second)
			assert.Equal(t, tt.wantDays, acc.DonationStatus.ExtendedDays)

			list, err := s.ListDeploymentsByFingerprint(ctx, "fp")
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.WithinDuration(t, want, list[0].ExpiresAt, time.Second)
		})
	}
}

func TestApplyDonation_RepeatedDonationsStopAtHorizon(t *testing.T) {
	s := setupStore(t)
	publish(t, s, "d1", "fp", now.Add(-day), now.Add(6*day))
	l := newTestLedger(t, s, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		out, err := l.ApplyDonation(ctx, models.Donation{EventID: fmt.Sprintf("evt-%d", i), Fingerprint: "fp", Amount: 50, Currency: "usd"})
		require.NoError(t, err)
		assert.False(t, out.NewExpiry.After(now.Add(180*day)), "donation %d exceeded horizon", i)
	}

	acc, err := s.GetAccount(ctx, "fp")
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(180*day), acc.Expiry, time.Second)
	assert.Equal(t, 5*300, acc.DonationStatus.ExtendedDays)
}

func TestApplyDonation_TotalsIgnoreRejectedEvents(t *testing.T) {
	s := setupStore(t)
	publish(t, s, "d1", "fp", now.Add(-day), now.Add(6*day))
	l := newTestLedger(t, s, nil)
	ctx := context.Background()

	applied := []float64{5, 7.5, 20}
	for i, amt := range applied {
		_, err := l.ApplyDonation(ctx, models.Donation{EventID: fmt.Sprintf("ok-%d", i), Fingerprint: "fp", Amount: amt, Currency: "usd"})
		require.NoError(t, err)
	}

	_, err := l.ApplyDonation(ctx, models.Donation{EventID: "small", Fingerprint: "fp", Amount: 3, Currency: "usd"})
	require.ErrorIs(t, err, models.ErrValidation)
	out, err := l.ApplyDonation(ctx, models.Donation{EventID: "ok-0", Fingerprint: "fp", Amount: 5, Currency: "usd"})
	require.NoError(t, err)
	require.True(t, out.Duplicate)

	acc, err := s.GetAccount(ctx, "fp")
	require.NoError(t, err)
	assert.InDelta(t, 32.5, acc.DonationStatus.Amount, 1e-9)
	assert.Equal(t, 30+30+120, acc.DonationStatus.ExtendedDays)
}

func TestApplyDonation_RevivesLapsedDeployments(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	// Account expired two days ago; its only deployment lapsed with it.
	publish(t, s, "old", "fp", now.Add(-9*day), now.Add(-2*day))
	l := newTestLedger(t, s, nil)

	out, err := l.ApplyDonation(ctx, models.Donation{EventID: "e", Fingerprint: "fp", Amount: 10, Currency: "usd"})
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(58*day), out.NewExpiry, time.Second)

	list, err := s.ListDeploymentsByFingerprint(ctx, "fp")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsServing(now))
	assert.WithinDuration(t, out.NewExpiry, list[0].ExpiresAt, time.Second)
}
