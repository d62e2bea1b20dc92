package httpadapter

import (
	"net/http"

	"github.com/smnthegr/cali-ai/internal/core/domain"
)

// mapError translates a domain error into the response status and the
// machine-readable type string clients switch on.
func mapError(err error) (int, string) {
	switch {
	case domain.IsKind(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case domain.IsKind(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limit_error"
	case domain.IsKind(err, domain.ErrModel):
		return http.StatusInternalServerError, "model_error"
	case domain.IsKind(err, domain.ErrService):
		return http.StatusBadGateway, "service_error"
	case domain.IsKind(err, domain.ErrConfig):
		return http.StatusInternalServerError, "config_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

// genericMessage is what production responses say instead of internal error
// detail. Validation failures stay verbatim: they are the user's to fix.
func genericMessage(errType string) string {
	switch errType {
	case "rate_limit_error":
		return "too many requests, try again later"
	case "model_error":
		return "the model returned no usable prediction"
	case "service_error":
		return "inference service is unavailable"
	case "config_error":
		return "service is misconfigured"
	default:
		return "internal server error"
	}
}
