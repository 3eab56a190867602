package adapthttp

import (
	"errors"
	"net/http"

	"fitbite/internal/app"
	"fitbite/internal/domain"
)

var (
	errInternal        = errors.New("internal error")
	errTooManyRequests = errors.New("too many requests, please try again later")
	errUpstreamText    = errors.New("the analysis service is temporarily unavailable, please try again")
	errMalformedText   = errors.New("the analysis service returned an unexpected response, please try again")
	errSaveText        = errors.New("failed to save meal")
)

// writeServiceError maps an application error to a status code. Upstream and
// storage details are logged, never returned.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case app.IsValidation(err):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, app.ErrUnauthorized)
	case errors.Is(err, app.ErrMealNotFound):
		writeError(w, http.StatusNotFound, app.ErrMealNotFound)
	case errors.Is(err, app.ErrInvalidTransition):
		writeError(w, http.StatusConflict, app.ErrInvalidTransition)
	case errors.Is(err, app.ErrGoalReached):
		writeError(w, http.StatusConflict, app.ErrGoalReached)
	case errors.Is(err, app.ErrUpstreamUnavailable):
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("upstream unavailable")
		writeError(w, http.StatusServiceUnavailable, errUpstreamText)
	case errors.Is(err, app.ErrMalformedUpstream):
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("malformed upstream response")
		writeError(w, http.StatusBadGateway, errMalformedText)
	case errors.Is(err, app.ErrPersistence):
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("persistence failure")
		writeError(w, http.StatusInternalServerError, errSaveText)
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, errInternal)
	}
}

// writeViolation reports a dietary violation as 422 with the offending foods.
func writeViolation(w http.ResponseWriter, v *domain.DietaryViolation) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error":     "dietary violation",
		"violation": v,
	})
}
