package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	authvault "github.com/mkhalaf/authvault"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func mapError(w http.ResponseWriter, err error) {
	var rle *authvault.RateLimitError
	if errors.As(err, &rle) {
		seconds := int(rle.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	switch {
	case errors.Is(err, authvault.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, authvault.ErrAccountUnverified):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, authvault.ErrAccountExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, authvault.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, authvault.ErrTokenExpired),
		errors.Is(err, authvault.ErrTokenInvalid),
		errors.Is(err, authvault.ErrTokenRevoked),
		errors.Is(err, authvault.ErrMissingRefresh):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, authvault.ErrSessionNotFound):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, authvault.ErrWeakPassword),
		errors.Is(err, authvault.ErrPasswordReuse):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, authvault.ErrOTPInvalid),
		errors.Is(err, authvault.ErrResetInvalid):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON decodes a bounded request body into T, writing a 400 on
// failure.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxBytes int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return v, false
	}
	return v, true
}
