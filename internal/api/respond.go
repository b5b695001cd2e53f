package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/ignite/commerce-marketing/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the engine's error taxonomy onto HTTP statuses with a
// structured body. Callers always get {"error", "code"}, never an unhandled
// fault.
func writeError(w http.ResponseWriter, err error) {
	var (
		validation   *domain.ValidationError
		notFound     *domain.NotFoundError
		unsupported  *domain.UnsupportedActionError
		insufficient *domain.InsufficientBalanceError
		delivery     *domain.DeliveryError
		store        *domain.StoreError
	)

	status, code := http.StatusInternalServerError, domain.CodeStoreError
	switch {
	case errors.As(err, &validation):
		status, code = http.StatusBadRequest, domain.CodeValidation
	case errors.As(err, &notFound):
		status, code = http.StatusNotFound, domain.CodeNotFound
	case errors.As(err, &unsupported):
		status, code = http.StatusUnprocessableEntity, domain.CodeUnsupportedAction
	case errors.As(err, &insufficient):
		status, code = http.StatusConflict, domain.CodeInsufficientBalance
	case errors.As(err, &delivery):
		status, code = http.StatusBadGateway, domain.CodeDeliveryFailure
	case errors.As(err, &store):
		log.Printf("[API] store error: %v", err)
	default:
		log.Printf("[API] unexpected error: %v", err)
	}

	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, domain.NewValidationError("body", "invalid request body"))
		return false
	}
	return true
}
