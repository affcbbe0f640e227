package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitekeep/internal/models"
	"sitekeep/internal/webhook"
)

// maxWebhookBody bounds the raw body read before signature verification.
const maxWebhookBody = 1 << 20

var errBodyUnreadable = fmt.Errorf("request body unreadable or too large: %w", models.ErrValidation)

// DonationVerifier authenticates and parses a raw notification.
type DonationVerifier interface {
	Verify(rawBody []byte, signature string) (*models.Donation, error)
}

// DonationApplier applies a verified donation.
type DonationApplier interface {
	ApplyDonation(ctx context.Context, donation models.Donation) (*models.DonationOutcome, error)
}

type DonationHandler struct {
	verifier DonationVerifier
	ledger   DonationApplier
	logger   *zap.SugaredLogger
}

func NewDonationHandler(verifier DonationVerifier, ledger DonationApplier, logger *zap.SugaredLogger) *DonationHandler {
	return &DonationHandler{verifier: verifier, ledger: ledger, logger: logger}
}

// HandleDonationNotification verifies the signature over the exact bytes
// received, then extends the donor's expiry.
func (h *DonationHandler) HandleDonationNotification(c *gin.Context) {
	rawBody, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		h.logger.Debugw("webhook body rejected", "error", err)
		respondError(c, h.logger, "success", errBodyUnreadable)
		return
	}

	donation, err := h.verifier.Verify(rawBody, c.GetHeader(webhook.SignatureHeader))
	if err != nil {
		respondError(c, h.logger, "success", err)
		return
	}

	outcome, err := h.ledger.ApplyDonation(c.Request.Context(), *donation)
	if err != nil {
		respondError(c, h.logger, "success", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"newExpiry":    outcome.NewExpiry,
		"extendedDays": outcome.ExtendedDays,
		"duplicate":    outcome.Duplicate,
	})
}
