package api

import (
	"errors"
	"net/http"

	"cardora-service/internal/service"
	"cardora-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errorKinds = []struct {
	err    error
	status int
	kind   string
}{
	{service.ErrValidation, http.StatusBadRequest, "ValidationError"},
	{service.ErrInvalidSignature, http.StatusBadRequest, "InvalidSignature"},
	{service.ErrNotEligible, http.StatusForbidden, "NotEligible"},
	{service.ErrForbidden, http.StatusForbidden, "Forbidden"},
	{service.ErrInviteNotFound, http.StatusNotFound, "InviteNotFound"},
	{service.ErrPaymentNotFound, http.StatusNotFound, "PaymentNotFound"},
	{service.ErrRSVPNotFound, http.StatusNotFound, "RSVPNotFound"},
	{service.ErrRateLimited, http.StatusTooManyRequests, "RateLimited"},
	{service.ErrRequestInProgress, http.StatusConflict, "RequestInProgress"},
	{service.ErrProviderUnavailable, http.StatusServiceUnavailable, "ProviderUnavailable"},
	{service.ErrSlugAllocationExhausted, http.StatusInternalServerError, "SlugAllocationExhausted"},
	{service.ErrPersistence, http.StatusInternalServerError, "PersistenceError"},
}

// respondError writes the error body for err and its mapped status
func respondError(c *gin.Context, err error) {
	status, kind := http.StatusInternalServerError, "InternalError"
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			status, kind = k.status, k.kind
			break
		}
	}

	details := err.Error()
	if status >= http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", kind),
			zap.Error(err))
		if status == http.StatusInternalServerError {
			details = "internal error"
		}
	}
	if service.IsRetryable(err) {
		c.Header("Retry-After", "5")
	}

	c.JSON(status, gin.H{
		"error":   kind,
		"details": details,
	})
}
