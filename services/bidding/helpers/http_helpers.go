package helpers

import (
	"errors"
	"net/http"

	"live-auction/internal/biddingerrors"
	"live-auction/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	utils.JSONError(c, http.StatusBadRequest, "invalid request payload", gin.H{"reason": biddingerrors.ReasonInvalidBid})
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// StatusForReason maps a rejection reason to its HTTP status
func StatusForReason(reason biddingerrors.Reason) int {
	switch reason {
	case biddingerrors.ReasonUnauthenticated:
		return http.StatusUnauthorized
	case biddingerrors.ReasonVerificationRequired, biddingerrors.ReasonBidderBanned:
		return http.StatusForbidden
	case biddingerrors.ReasonNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// MapErrorToHTTP maps domain/service errors to HTTP status code, message and extra body fields
func MapErrorToHTTP(err error) (int, string, gin.H) {
	if rej, ok := biddingerrors.AsRejection(err); ok {
		extra := gin.H{"reason": rej.Reason}
		if rej.Reason == biddingerrors.ReasonBidTooLow {
			extra["minBid"] = rej.MinBid
		}
		return StatusForReason(rej.Reason), rej.Error(), extra
	}

	switch {
	case errors.Is(err, biddingerrors.ErrListingNotFound):
		return http.StatusNotFound, "listing not found", gin.H{"reason": biddingerrors.ReasonNotFound}
	case errors.Is(err, biddingerrors.ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required", gin.H{"reason": biddingerrors.ReasonUnauthenticated}
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid request", gin.H{"reason": biddingerrors.ReasonInvalidBid}
	default:
		return http.StatusInternalServerError, "internal server error", nil
	}
}

// WriteError maps err and writes it as the response body
func WriteError(c *gin.Context, err error) int {
	status, message, extra := MapErrorToHTTP(err)
	utils.JSONError(c, status, message, extra)
	return status
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
