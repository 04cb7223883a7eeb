package analytics

import (
	"context"

	"github.com/devtoolspro/gateway/internal/models"
	"github.com/devtoolspro/gateway/pkg/logger"
)

// UsageRepository defines the interface for persisting usage counts.
type UsageRepository interface {
	IncrementUsage(ctx context.Context, usage []models.ToolUsage) error
}

// RepositoryFlusher implements Flusher using a repository.
type RepositoryFlusher struct {
	repo UsageRepository
	log  *logger.Logger
}

// NewRepositoryFlusher creates a new RepositoryFlusher.
func NewRepositoryFlusher(repo UsageRepository, log *logger.Logger) *RepositoryFlusher {
	return &RepositoryFlusher{
		repo: repo,
		log:  log,
	}
}

// FlushUsage persists usage counts to the repository.
func (f *RepositoryFlusher) FlushUsage(ctx context.Context, usage []models.ToolUsage) error {
	if len(usage) == 0 {
		return nil
	}

	err := f.repo.IncrementUsage(ctx, usage)
	if err != nil {
		if f.log != nil {
			f.log.Error("failed to flush tool usage", "error", err.Error(), "rows", len(usage))
		}
		return err
	}

	if f.log != nil {
		total := int64(0)
		for _, u := range usage {
			total += u.Count
		}
		f.log.Debug("flushed tool usage", "rows", len(usage), "total_invocations", total)
	}

	return nil
}

// LogFlusher writes usage to the log. It is used when no database is configured.
type LogFlusher struct {
	log *logger.Logger
}

// NewLogFlusher creates a LogFlusher.
func NewLogFlusher(log *logger.Logger) *LogFlusher {
	return &LogFlusher{log: log}
}

// FlushUsage logs one line per usage row.
func (f *LogFlusher) FlushUsage(_ context.Context, usage []models.ToolUsage) error {
	for _, u := range usage {
		f.log.Info("tool usage", "tool", u.Tool, "tier", u.Tier.String(), "day", u.Day.Format("2006-01-02"), "count", u.Count)
	}
	return nil
}
