package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sensiblebit/efirma"
	"github.com/sensiblebit/efirma/internal"
)

var errUploadTooLarge = errors.New("upload too large")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, internal.NewErrorResponse(err))
}

func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errUploadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err)
	case errors.Is(err, efirma.ErrMissingField),
		errors.Is(err, efirma.ErrMalformedInput),
		errors.Is(err, efirma.ErrWrongPassphrase),
		errors.Is(err, efirma.ErrKeyMismatch),
		errors.Is(err, efirma.ErrNoCertificate),
		errors.Is(err, efirma.ErrNotYetValid),
		errors.Is(err, efirma.ErrExpired):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
