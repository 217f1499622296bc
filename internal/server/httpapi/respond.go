package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avelancourt/passguard/internal/common"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps sentinel errors to HTTP statuses. Unknown errors become a
// generic 500 so internals never leak to clients.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	case errors.Is(err, common.ErrorNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, common.ErrDuplicateEmail):
		writeJSON(w, http.StatusConflict, errorResponse{Error: common.ErrDuplicateEmail.Error()})
	case errors.Is(err, common.ErrCodeInvalid):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: common.ErrCodeInvalid.Error()})
	case errors.Is(err, common.ErrMailNotSent):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: common.ErrMailNotSent.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return common.ErrValidation
	}
	return nil
}
