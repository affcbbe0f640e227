// Package webhook authenticates and parses inbound donation notifications.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"sitekeep/internal/models"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Signature"

const (
	eventTypeSupport = "support"
	acceptedCurrency = "usd"
	minimumAmount    = 5
)

type payload struct {
	Amount      *float64 `json:"amount" validate:"required"`
	Currency    string   `json:"currency" validate:"required"`
	Fingerprint string   `json:"fingerprint" validate:"required,max=256"`
}

type envelope struct {
	ID   string `json:"id" validate:"max=256"`
	Type string `json:"type" validate:"required,eq=support"`
	Data struct {
		Object *payload `json:"object" validate:"required"`
	} `json:"data"`
}

// Verifier checks signatures with a shared secret injected at construction.
type Verifier struct {
	secret   []byte
	validate *validator.Validate
}

// NewVerifier creates a Verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret:   []byte(secret),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify authenticates rawBody against signature and only then parses it.
//
// Signature problems return models.ErrUnauthenticated. A body that is not a
// support event with amount, currency and fingerprint, a currency other than
// usd, or an amount below 5 returns models.ErrValidation.
func (v *Verifier) Verify(rawBody []byte, signature string) (*models.Donation, error) {
	if err := v.authenticate(rawBody, signature); err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w: %v", models.ErrValidation, err)
	}
	if err := v.validate.Struct(env); err != nil {
		return nil, fmt.Errorf("invalid event: %w: %v", models.ErrValidation, err)
	}

	obj := env.Data.Object
	currency := strings.ToLower(strings.TrimSpace(obj.Currency))
	if currency != acceptedCurrency {
		return nil, fmt.Errorf("currency %q not accepted: %w", obj.Currency, models.ErrValidation)
	}
	if *obj.Amount < minimumAmount {
		return nil, fmt.Errorf("amount %v below minimum %d: %w", *obj.Amount, minimumAmount, models.ErrValidation)
	}

	eventID := env.ID
	if eventID == "" {
		sum := sha256.Sum256(rawBody)
		eventID = "sha256:" + hex.EncodeToString(sum[:])
	}

	return &models.Donation{
		EventID:     eventID,
		Fingerprint: obj.Fingerprint,
		Amount:      *obj.Amount,
		Currency:    currency,
	}, nil
}

func (v *Verifier) authenticate(rawBody []byte, signature string) error {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if len(v.secret) == 0 || signature == "" || len(rawBody) == 0 {
		return fmt.Errorf("missing signature or body: %w", models.ErrUnauthenticated)
	}

	got, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", models.ErrUnauthenticated)
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return fmt.Errorf("signature mismatch: %w", models.ErrUnauthenticated)
	}
	return nil
}
