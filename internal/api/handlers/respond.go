package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/markdave123-py/smartbot/internal/core/ingestion_engine"
	"github.com/markdave123-py/smartbot/internal/services"
)

const maxJSONBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// decodeJSON reads a bounded JSON body into v and validates it. It writes the
// 400 response itself and reports whether the caller should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, validate *validator.Validate, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "invalid field " + fe.Field() + ": failed " + fe.Tag()
	}
	return "invalid input"
}

// writeServiceError maps service sentinels to status codes. Anything
// unrecognized is logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, ingestion_engine.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", "unsupported file type, upload a PDF or Word document")
	case errors.Is(err, ingestion_engine.ErrExtraction):
		writeError(w, http.StatusUnprocessableEntity, "EXTRACTION_FAILED", "could not extract text from the document")
	case errors.Is(err, services.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
	case errors.Is(err, services.ErrUnverified):
		writeError(w, http.StatusForbidden, "UNVERIFIED", "please verify your email first")
	case errors.Is(err, services.ErrTierLimit):
		writeError(w, http.StatusForbidden, "TIER_LIMIT", err.Error())
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "forbidden")
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, services.ErrConflict):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error())
	default:
		logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
