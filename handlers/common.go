package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jcandido/hidrogest/backend/services"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps core failures to HTTP statuses and renders them as a
// structured body the UI can localize. Non-failure errors stay opaque.
func writeError(w http.ResponseWriter, err error) {
	if f, ok := services.AsFailure(err); ok {
		writeJSON(w, failureStatus(f.Kind), f)
		return
	}
	log.Printf("ERROR: %v", err)
	http.Error(w, "Database error", http.StatusInternalServerError)
}

func failureStatus(kind services.FailureKind) int {
	switch kind {
	case services.KindInvalidReading, services.KindInvalidPayment:
		return http.StatusUnprocessableEntity
	case services.KindMissingPeriod, services.KindMissingAssociate,
		services.KindMissingHydrometer, services.KindMissingInvoice:
		return http.StatusNotFound
	case services.KindDuplicatePeriodCode, services.KindReferentialIntegrity,
		services.KindTransactionConflict:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// decodeValid decodes a JSON body and runs struct validation on it.
func decodeValid(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return validate.Struct(v)
}
