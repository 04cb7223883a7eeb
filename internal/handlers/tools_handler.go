package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devtoolspro/gateway/internal/formatter"
	"github.com/devtoolspro/gateway/internal/middleware"
	"github.com/devtoolspro/gateway/internal/services"
	"github.com/devtoolspro/gateway/pkg/logger"
)

// ToolRequest is the body of a tool execution request.
type ToolRequest struct {
	Input string `json:"input" validate:"required"`
}

// ToolResponse is the result of a tool execution.
type ToolResponse struct {
	Tool   string `json:"tool"`
	Output string `json:"output"`
}

// ToolsHandler serves the tool catalog and runs tools.
type ToolsHandler struct {
	service services.ToolService
	log     *logger.Logger
}

// NewToolsHandler creates a new ToolsHandler.
func NewToolsHandler(service services.ToolService, log *logger.Logger) *ToolsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ToolsHandler{service: service, log: log}
}

// List handles GET /api/v1/tools requests.
func (h *ToolsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.List())
}

// Execute handles POST /api/v1/tools/{tool} requests.
func (h *ToolsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	// JSON escaping can grow input up to six times; leave room for it.
	maxBody := int64(h.service.MaxInputBytes())*6 + 1024

	var req ToolRequest
	if err := decodeJSON(w, r, &req, maxBody); err != nil {
		if missingField(err, "Input") {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, formatter.ErrEmptyInput.Error())
			return
		}
		decodeError(w, err)
		return
	}

	resp, err := h.service.Run(r.Context(), services.RunRequest{
		Tool:  chi.URLParam(r, "tool"),
		Input: req.Input,
		Tier:  middleware.GetTier(r.Context()),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ToolResponse{Tool: resp.Tool, Output: resp.Output})
}

func (h *ToolsHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrToolNotFound):
		writeError(w, http.StatusNotFound, CodeToolNotFound, err.Error())
	case errors.Is(err, services.ErrProRequired):
		writeError(w, http.StatusForbidden, CodeProRequired, err.Error())
	case errors.Is(err, services.ErrInputTooLarge), errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, services.ErrFormatFailed):
		h.log.Debug("tool failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusUnprocessableEntity, CodeFormatFailed, err.Error())
	default:
		h.log.Error("tool execution error", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "internal server error")
	}
}
