package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"live-auction/internal/biddingerrors"

	"github.com/stretchr/testify/require"
)

func TestMapErrorToHTTP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason any
		wantMinBid any
	}{
		{name: "too_low", err: fmt.Errorf("service: %w", biddingerrors.RejectTooLow(101000)), wantStatus: http.StatusBadRequest, wantReason: biddingerrors.ReasonBidTooLow, wantMinBid: int64(101000)},
		{name: "self_bid", err: biddingerrors.Reject(biddingerrors.ReasonSelfBidNotAllowed), wantStatus: http.StatusBadRequest, wantReason: biddingerrors.ReasonSelfBidNotAllowed},
		{name: "not_auction", err: biddingerrors.Reject(biddingerrors.ReasonNotAnAuction), wantStatus: http.StatusBadRequest, wantReason: biddingerrors.ReasonNotAnAuction},
		{name: "inactive", err: biddingerrors.Reject(biddingerrors.ReasonAuctionInactive), wantStatus: http.StatusBadRequest, wantReason: biddingerrors.ReasonAuctionInactive},
		{name: "ended", err: biddingerrors.Reject(biddingerrors.ReasonAuctionEnded), wantStatus: http.StatusBadRequest, wantReason: biddingerrors.ReasonAuctionEnded},
		{name: "not_started", err: biddingerrors.Reject(biddingerrors.ReasonAuctionNotStarted), wantStatus: http.StatusBadRequest, wantReason: biddingerrors.ReasonAuctionNotStarted},
		{name: "verification", err: biddingerrors.Reject(biddingerrors.ReasonVerificationRequired), wantStatus: http.StatusForbidden, wantReason: biddingerrors.ReasonVerificationRequired},
		{name: "banned", err: biddingerrors.Reject(biddingerrors.ReasonBidderBanned), wantStatus: http.StatusForbidden, wantReason: biddingerrors.ReasonBidderBanned},
		{name: "unauthenticated", err: biddingerrors.Reject(biddingerrors.ReasonUnauthenticated), wantStatus: http.StatusUnauthorized, wantReason: biddingerrors.ReasonUnauthenticated},
		{name: "rejected_not_found", err: biddingerrors.Reject(biddingerrors.ReasonNotFound), wantStatus: http.StatusNotFound, wantReason: biddingerrors.ReasonNotFound},
		{name: "plain_not_found", err: fmt.Errorf("service: %w", biddingerrors.ErrListingNotFound), wantStatus: http.StatusNotFound, wantReason: biddingerrors.ReasonNotFound},
		{name: "plain_unauthenticated", err: biddingerrors.ErrUnauthenticated, wantStatus: http.StatusUnauthorized, wantReason: biddingerrors.ReasonUnauthenticated},
		{name: "invalid", err: biddingerrors.ErrInvalidBid, wantStatus: http.StatusBadRequest, wantReason: biddingerrors.ReasonInvalidBid},
		{name: "internal", err: errors.New("database failure"), wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			status, message, extra := MapErrorToHTTP(tc.err)
			require.Equal(t, tc.wantStatus, status)
			require.NotEmpty(t, message)
			if tc.wantReason == nil {
				require.Nil(t, extra)
				require.Equal(t, "internal server error", message)
				return
			}
			require.Equal(t, tc.wantReason, extra["reason"])
			if tc.wantMinBid != nil {
				require.Equal(t, tc.wantMinBid, extra["minBid"])
				require.Contains(t, message, "minimum bid is 101000")
			} else {
				require.NotContains(t, extra, "minBid")
			}
		})
	}
}

func TestMapErrorToHTTP_DoesNotLeakInternals(t *testing.T) {
	t.Parallel()

	_, message, _ := MapErrorToHTTP(errors.New("pq: password authentication failed"))
	require.NotContains(t, message, "password")
}
