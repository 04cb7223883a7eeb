// Package services contains business logic.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/devtoolspro/gateway/internal/formatter"
	"github.com/devtoolspro/gateway/internal/metrics"
	"github.com/devtoolspro/gateway/internal/models"
	"github.com/devtoolspro/gateway/internal/security"
)

// Tool execution errors.
var (
	ErrToolNotFound  = errors.New("tool not found")
	ErrProRequired   = errors.New("tool requires a Pro license")
	ErrInputTooLarge = errors.New("input exceeds maximum size")
	ErrInvalidInput  = errors.New("invalid input")
	ErrFormatFailed  = errors.New("format failed")
)

// FormatError reports a formatter rejecting its input.
type FormatError struct {
	Tool string
	Err  error
}

func (e *FormatError) Error() string { return e.Err.Error() }

func (e *FormatError) Unwrap() error { return e.Err }

// Is matches ErrFormatFailed.
func (e *FormatError) Is(target error) bool { return target == ErrFormatFailed }

// UsageRecorder counts successful tool invocations.
type UsageRecorder interface {
	Record(tool string, tier models.Tier)
}

// RunRequest is one tool invocation.
type RunRequest struct {
	Tool  string
	Input string
	Tier  models.Tier
}

// RunResponse is the output of a tool invocation.
type RunResponse struct {
	Tool   string
	Output string
}

// ToolService defines the tool catalog and execution operations.
type ToolService interface {
	List() []formatter.Tool
	Run(ctx context.Context, req RunRequest) (*RunResponse, error)
	MaxInputBytes() int
}

// ToolServiceImpl implements ToolService.
type ToolServiceImpl struct {
	registry  *formatter.Registry
	sanitizer *security.Sanitizer
	usage     UsageRecorder
}

// NewToolService creates a ToolService. usage may be nil.
func NewToolService(reg *formatter.Registry, sanitizer *security.Sanitizer, usage UsageRecorder) *ToolServiceImpl {
	if sanitizer == nil {
		sanitizer = security.NewSanitizer(security.DefaultConfig())
	}
	return &ToolServiceImpl{
		registry:  reg,
		sanitizer: sanitizer,
		usage:     usage,
	}
}

// List returns the tool catalog.
func (s *ToolServiceImpl) List() []formatter.Tool {
	return s.registry.List()
}

// MaxInputBytes returns the largest accepted input.
func (s *ToolServiceImpl) MaxInputBytes() int {
	return s.sanitizer.MaxInputBytes()
}

// Run validates the input, checks the caller's tier and runs the tool.
func (s *ToolServiceImpl) Run(_ context.Context, req RunRequest) (*RunResponse, error) {
	tool, err := s.registry.Get(req.Tool)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, req.Tool)
	}

	if tool.Pro && !req.Tier.IsPro() {
		return nil, fmt.Errorf("%w: %s", ErrProRequired, tool.Title)
	}

	if err := s.sanitizer.Validate(tool.ID, req.Input); err != nil {
		metrics.RecordToolInvocation(tool.ID, false)
		return nil, mapSecurityError(err)
	}

	out, err := tool.Format(req.Input)
	if err != nil {
		metrics.RecordToolInvocation(tool.ID, false)
		return nil, &FormatError{Tool: tool.ID, Err: err}
	}

	metrics.RecordToolInvocation(tool.ID, true)
	if s.usage != nil {
		s.usage.Record(tool.ID, req.Tier)
	}

	return &RunResponse{Tool: tool.ID, Output: out}, nil
}

// mapSecurityError maps security package errors to service errors.
func mapSecurityError(err error) error {
	switch {
	case errors.Is(err, security.ErrInputTooLarge):
		return ErrInputTooLarge
	case errors.Is(err, security.ErrEmptyInput),
		errors.Is(err, security.ErrInvalidEncoding),
		errors.Is(err, security.ErrDangerousInput),
		errors.Is(err, security.ErrMalformedJSON):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	default:
		return ErrInvalidInput
	}
}
