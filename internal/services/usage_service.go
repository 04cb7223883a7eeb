package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/devtoolspro/gateway/internal/models"
)

// ErrInvalidRange is returned when a report range ends before it starts.
var ErrInvalidRange = errors.New("report range ends before it starts")

// UsageReader reads persisted daily usage counts.
type UsageReader interface {
	UsageBetween(ctx context.Context, from, to time.Time) ([]models.ToolUsage, error)
}

// ToolTotal is the usage of one tool over a report range.
type ToolTotal struct {
	Tool  string `json:"tool"`
	Free  int64  `json:"free"`
	Pro   int64  `json:"pro"`
	Total int64  `json:"total"`
}

// UsageReport summarises tool usage over a range of days.
type UsageReport struct {
	From  time.Time   `json:"from"`
	To    time.Time   `json:"to"`
	Tools []ToolTotal `json:"tools"`
	Total int64       `json:"total"`
}

// UsageService defines the usage reporting operations.
type UsageService interface {
	Report(ctx context.Context, from, to time.Time) (*UsageReport, error)
}

// UsageServiceImpl implements UsageService.
type UsageServiceImpl struct {
	repo UsageReader
}

// NewUsageService creates a new UsageService.
func NewUsageService(repo UsageReader) *UsageServiceImpl {
	return &UsageServiceImpl{repo: repo}
}

// Report totals usage per tool for the days from..to inclusive.
// Tools are ordered by total, busiest first.
func (s *UsageServiceImpl) Report(ctx context.Context, from, to time.Time) (*UsageReport, error) {
	if to.Before(from) {
		return nil, ErrInvalidRange
	}

	rows, err := s.repo.UsageBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	byTool := make(map[string]*ToolTotal)
	report := &UsageReport{From: from, To: to}
	for _, row := range rows {
		t, ok := byTool[row.Tool]
		if !ok {
			t = &ToolTotal{Tool: row.Tool}
			byTool[row.Tool] = t
		}
		if row.Tier.IsPro() {
			t.Pro += row.Count
		} else {
			t.Free += row.Count
		}
		t.Total += row.Count
		report.Total += row.Count
	}

	report.Tools = make([]ToolTotal, 0, len(byTool))
	for _, t := range byTool {
		report.Tools = append(report.Tools, *t)
	}
	sort.Slice(report.Tools, func(i, j int) bool {
		if report.Tools[i].Total != report.Tools[j].Total {
			return report.Tools[i].Total > report.Tools[j].Total
		}
		return report.Tools[i].Tool < report.Tools[j].Tool
	})

	return report, nil
}
