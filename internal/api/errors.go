package api

import (
	"errors"
	"net/http"

	"github.com/ignite/dm-dispatch/internal/pkg/httputil"
	"github.com/ignite/dm-dispatch/internal/service/campaign"
	"github.com/ignite/dm-dispatch/internal/service/dispatch"
	"github.com/ignite/dm-dispatch/internal/service/progression"
)

// respondServiceError maps service sentinels to HTTP statuses. Anything
// unrecognized is a 500 whose details stay in the server log.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrInvalidStatus),
		errors.Is(err, campaign.ErrValidation):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, dispatch.ErrJobNotFound),
		errors.Is(err, dispatch.ErrAccountNotFound),
		errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, progression.ErrCampaignNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, dispatch.ErrStaleJob),
		errors.Is(err, progression.ErrStaleTransition),
		errors.Is(err, campaign.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
