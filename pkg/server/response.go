package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/elonfeng/aipulse/internal/logging"
	"github.com/elonfeng/aipulse/internal/store"
	"github.com/elonfeng/aipulse/internal/validation"
	"github.com/elonfeng/aipulse/pkg/srs"
)

const (
	codeNotFound    = "NOT_FOUND"
	codeInternal    = "INTERNAL_ERROR"
	codeUnavailable = "UNAVAILABLE"
)

type errorBody struct {
	Error *validation.APIError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Warn().Err(err).Msg("encode response")
	}
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items, "count": len(items)})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: &validation.APIError{Code: code, Message: message}})
}

func writeValidation(w http.ResponseWriter, verr *validation.RequestError) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.ToAPIError()})
}

// writeFailure maps err to 404, 400 or 500.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, srs.ErrInvalidQuality):
		writeValidation(w, validation.Invalid("quality", "must be between 0 and 5"))
	default:
		logging.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

// decodeJSON reads a request body into v and validates it.
func decodeJSON(r *http.Request, v any) *validation.RequestError {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return validation.Invalid("body", "must be a valid JSON object: "+err.Error())
	}
	return validation.ValidateStruct(v)
}

// queryInt parses an optional integer query parameter.
func queryInt(q url.Values, key string, def int) (int, *validation.RequestError) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, validation.Invalid(key, "must be an integer")
	}
	return n, nil
}

func queryBool(q url.Values, key string) (bool, *validation.RequestError) {
	v := q.Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, validation.Invalid(key, "must be a boolean")
	}
	return b, nil
}
