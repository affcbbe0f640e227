package models

import (
	"strings"
	"time"
)

// We use 'db' tags for sqlx to automatically map
// the database column names (snake_case) to our Go fields (CamelCase).

// DeploymentState is the lifecycle state of a hosted artifact.
type DeploymentState string

const (
	StateCreated  DeploymentState = "created"
	StateDeleted  DeploymentState = "deleted"
	StateArchived DeploymentState = "archived"
	StateError    DeploymentState = "error"
)

// DonationStatus is the cumulative contribution history of an account.
// Both fields only ever grow.
type DonationStatus struct {
	Amount       float64 `json:"amount"`
	ExtendedDays int     `json:"extendedDays"`
}

// Account is the persistent record for one fingerprint.
type Account struct {
	Fingerprint    string         `db:"fingerprint" json:"fingerprint"`
	Expiry         time.Time      `db:"expiry" json:"expiry"`
	DonationStatus DonationStatus `db:"-" json:"donationStatus"`
	IsAdmin        bool           `db:"is_admin" json:"isAdmin"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
}

// Deployment is one published, externally hosted page owned by an account.
type Deployment struct {
	ID          string          `db:"id" json:"id"`
	Fingerprint string          `db:"fingerprint" json:"fingerprint"`
	Repo        string          `db:"repo" json:"repo"`
	Homepage    string          `db:"homepage" json:"homepage"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	ExpiresAt   time.Time       `db:"expires_at" json:"expiresAt"`
	Live        bool            `db:"live" json:"live"`
	State       DeploymentState `db:"state" json:"state"`
}

// IsServing reports whether the deployment should currently be served.
// The live flag alone is not authoritative.
func (d Deployment) IsServing(now time.Time) bool {
	return d.Live && d.ExpiresAt.After(now)
}

// Donation is a verified contribution ready to be applied to an account.
type Donation struct {
	EventID     string
	Fingerprint string
	Amount      float64
	Currency    string
}

// DonationOutcome describes the effect of applying a donation.
type DonationOutcome struct {
	Fingerprint  string
	NewExpiry    time.Time
	ExtendedDays int
	Revived      int64
	Duplicate    bool
}

// ExtendFunc computes the new account expiry and the number of days granted
// from the account's current expiry.
type ExtendFunc func(current time.Time) (newExpiry time.Time, extendedDays int)

// MaxFingerprintLen bounds the client-supplied identifier.
const MaxFingerprintLen = 256

// ValidFingerprint reports whether fp is usable as an account key.
func ValidFingerprint(fp string) bool {
	return fp != "" && len(fp) <= MaxFingerprintLen && strings.TrimSpace(fp) == fp
}

// Principal is the resolved caller of a request.
type Principal struct {
	Fingerprint string
	// AdminGrant is set only for sessions issued against the operator admin
	// token. A fingerprint alone never carries it.
	AdminGrant bool
}
