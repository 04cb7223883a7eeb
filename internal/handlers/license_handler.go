package handlers

import (
	"net/http"
	"time"

	"github.com/devtoolspro/gateway/internal/license"
	"github.com/devtoolspro/gateway/internal/models"
	"github.com/devtoolspro/gateway/pkg/logger"
)

// LicenseRequest is the body of a license validation request.
type LicenseRequest struct {
	LicenseKey string `json:"licenseKey" validate:"required,max=256"`
}

// LicenseInfo describes a validated license.
type LicenseInfo struct {
	Key       string `json:"key"`
	Type      string `json:"type"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

// LicenseResponse is the body of a license validation response.
type LicenseResponse struct {
	Success bool         `json:"success"`
	License *LicenseInfo `json:"license,omitempty"`
	Error   string       `json:"error,omitempty"`
	Code    string       `json:"code,omitempty"`
}

// LicenseHandler handles license validation.
type LicenseHandler struct {
	verifier license.Verifier
	log      *logger.Logger
}

// NewLicenseHandler creates a new LicenseHandler.
func NewLicenseHandler(v license.Verifier, log *logger.Logger) *LicenseHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &LicenseHandler{verifier: v, log: log}
}

// Validate handles POST /api/v1/license/validate requests.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req LicenseRequest
	if err := decodeJSON(w, r, &req, defaultMaxBodyBytes); err != nil {
		if missingField(err, "LicenseKey") {
			h.fail(w, http.StatusBadRequest, CodeLicenseRequired, license.ReasonEmptyKey.Message())
			return
		}
		h.fail(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}

	res := h.verifier.Verify(r.Context(), req.LicenseKey)
	if !res.Valid {
		h.log.Info("license rejected",
			"key_fp", models.Fingerprint(req.LicenseKey),
			"reason", string(res.Reason),
			"source", res.Source,
		)

		switch {
		case res.Reason == license.ReasonEmptyKey:
			h.fail(w, http.StatusBadRequest, CodeLicenseRequired, res.Reason.Message())
		case res.Reason.Transient():
			h.fail(w, http.StatusServiceUnavailable, CodeServiceUnavailable, res.Reason.Message())
		default:
			h.fail(w, http.StatusBadRequest, CodeLicenseInvalid, res.Reason.Message())
		}
		return
	}

	info := &LicenseInfo{Key: req.LicenseKey, Type: models.LicenseTypePro}
	if l := res.License; l != nil {
		info.Type = l.Type
		info.Email = l.Email
		if !l.CreatedAt.IsZero() {
			info.CreatedAt = l.CreatedAt.UTC().Format(time.RFC3339)
		}
	}

	writeJSON(w, http.StatusOK, LicenseResponse{Success: true, License: info})
}

func (h *LicenseHandler) fail(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, LicenseResponse{Success: false, Error: msg, Code: code})
}
