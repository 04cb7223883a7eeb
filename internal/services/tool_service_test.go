package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/devtoolspro/gateway/internal/formatter"
	"github.com/devtoolspro/gateway/internal/models"
	"github.com/devtoolspro/gateway/internal/security"
)

// MockUsageRecorder is a mock implementation of UsageRecorder.
type MockUsageRecorder struct {
	mock.Mock
}

func (m *MockUsageRecorder) Record(tool string, tier models.Tier) {
	m.Called(tool, tier)
}

func newTestToolService(usage UsageRecorder) *ToolServiceImpl {
	return NewToolService(formatter.Default(), security.NewSanitizer(security.DefaultConfig()), usage)
}

func TestToolService_List(t *testing.T) {
	svc := newTestToolService(nil)

	tools := svc.List()

	require.NotEmpty(t, tools)
	assert.Equal(t, "json", tools[0].ID)
	assert.Equal(t, security.DefaultMaxInputBytes, svc.MaxInputBytes())
}

func TestToolService_Run(t *testing.T) {
	t.Run("free tool records usage", func(t *testing.T) {
		usage := new(MockUsageRecorder)
		usage.On("Record", "base64", models.TierFree).Return().Once()
		svc := newTestToolService(usage)

		resp, err := svc.Run(context.Background(), RunRequest{Tool: "base64", Input: "hello", Tier: models.TierFree})

		require.NoError(t, err)
		assert.Equal(t, "base64", resp.Tool)
		assert.Equal(t, "aGVsbG8=", resp.Output)
		usage.AssertExpectations(t)
	})

	t.Run("pro tool for pro tier", func(t *testing.T) {
		usage := new(MockUsageRecorder)
		usage.On("Record", "sql", models.TierPro).Return().Once()
		svc := newTestToolService(usage)

		resp, err := svc.Run(context.Background(), RunRequest{Tool: "sql", Input: "select a from b", Tier: models.TierPro})

		require.NoError(t, err)
		assert.Contains(t, resp.Output, "SELECT")
		usage.AssertExpectations(t)
	})

	t.Run("pro tool for free tier", func(t *testing.T) {
		usage := new(MockUsageRecorder)
		svc := newTestToolService(usage)

		resp, err := svc.Run(context.Background(), RunRequest{Tool: "xml", Input: "<a/>", Tier: models.TierFree})

		assert.Nil(t, resp)
		assert.ErrorIs(t, err, ErrProRequired)
		usage.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	})

	t.Run("unknown tool", func(t *testing.T) {
		svc := newTestToolService(nil)

		_, err := svc.Run(context.Background(), RunRequest{Tool: "yaml", Input: "a", Tier: models.TierPro})

		assert.ErrorIs(t, err, ErrToolNotFound)
	})

	t.Run("blocked input", func(t *testing.T) {
		svc := newTestToolService(nil)

		_, err := svc.Run(context.Background(), RunRequest{Tool: "csv", Input: "a\n<script>", Tier: models.TierPro})

		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.ErrorIs(t, err, security.ErrDangerousInput)
	})

	t.Run("input too large", func(t *testing.T) {
		svc := NewToolService(formatter.Default(), security.NewSanitizer(security.Config{MaxInputBytes: 4}), nil)

		_, err := svc.Run(context.Background(), RunRequest{Tool: "base64", Input: strings.Repeat("x", 5)})

		assert.ErrorIs(t, err, ErrInputTooLarge)
	})

	t.Run("formatter failure", func(t *testing.T) {
		usage := new(MockUsageRecorder)
		svc := newTestToolService(usage)

		_, err := svc.Run(context.Background(), RunRequest{Tool: "jwt", Input: "not-a-token", Tier: models.TierPro})

		assert.ErrorIs(t, err, ErrFormatFailed)
		assert.ErrorIs(t, err, formatter.ErrInvalidJWT)
		var fe *FormatError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, "jwt", fe.Tool)
		usage.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	})
}

func TestMapSecurityError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"too large", security.ErrInputTooLarge, ErrInputTooLarge},
		{"empty", security.ErrEmptyInput, ErrInvalidInput},
		{"encoding", security.ErrInvalidEncoding, ErrInvalidInput},
		{"dangerous", security.ErrDangerousInput, ErrInvalidInput},
		{"json", security.ErrMalformedJSON, ErrInvalidInput},
		{"other", errors.New("boom"), ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapSecurityError(tt.in), tt.want)
		})
	}
}
