package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeNotFound           = "NOT_FOUND"
	CodeLicenseRequired    = "LICENSE_REQUIRED"
	CodeLicenseInvalid     = "LICENSE_INVALID"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeCustomerRequired   = "CUSTOMER_REQUIRED"
	CodeToolNotFound       = "TOOL_NOT_FOUND"
	CodeProRequired        = "PRO_REQUIRED"
	CodeFormatFailed       = "FORMAT_FAILED"
	CodeWebhookInvalid     = "WEBHOOK_INVALID"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Request decoding errors.
var (
	ErrMalformedBody = errors.New("invalid request body")
	ErrBodyTooLarge  = errors.New("request body too large")

	errEmptyBody = fmt.Errorf("%w: empty body", ErrMalformedBody)
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// defaultMaxBodyBytes caps JSON request bodies that carry no tool input.
const defaultMaxBodyBytes = 64 << 10

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJSON reads a JSON body of at most maxBytes into dst and validates it.
// Validation failures are returned as validator.ValidationErrors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return ErrBodyTooLarge
		case errors.Is(err, io.EOF):
			return errEmptyBody
		default:
			return fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
	}

	return validate.Struct(dst)
}

// missingField reports whether err is a validation failure on field.
func missingField(err error, field string) bool {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return false
	}
	for _, fe := range verrs {
		if strings.EqualFold(fe.Field(), field) && fe.Tag() == "required" {
			return true
		}
	}
	return false
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an ErrorResponse.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// decodeError maps request decoding failures to a 400 response.
func decodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, ErrBodyTooLarge.Error())
	case errors.Is(err, ErrMalformedBody):
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, ErrMalformedBody.Error())
	default:
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request")
	}
}

// NotFound responds with a JSON 404.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, CodeNotFound, "not found")
}

// MethodNotAllowed responds with a JSON 405.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
}
