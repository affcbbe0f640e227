package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitekeep/internal/models"
)

// statusFor maps an error kind to its HTTP status. Anything unrecognised,
// including store failures, is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is what a caller may see for err. Store and driver detail
// stays in the logs.
func publicMessage(err error, status int) string {
	switch status {
	case http.StatusUnauthorized:
		return models.ErrUnauthenticated.Error()
	case http.StatusNotFound:
		return "unknown fingerprint"
	case http.StatusBadRequest, http.StatusTooManyRequests:
		return err.Error()
	default:
		return "internal error"
	}
}

// respondError writes {<flag>: false, error: ...} with the mapped status.
func respondError(c *gin.Context, logger *zap.SugaredLogger, flag string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Errorw("request failed", "path", c.FullPath(), "error", err)
	} else {
		logger.Debugw("request rejected", "path", c.FullPath(), "status", status, "error", err)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{flag: false, "error": publicMessage(err, status)})
}
