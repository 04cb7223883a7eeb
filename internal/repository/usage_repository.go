package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/devtoolspro/gateway/internal/database"
	"github.com/devtoolspro/gateway/internal/models"
)

// UsageRepository defines persistence for daily tool usage counters.
type UsageRepository interface {
	// IncrementUsage adds each row's count to the stored counter for its day.
	IncrementUsage(ctx context.Context, usage []models.ToolUsage) error

	// UsageBetween returns counters for days in [from, to], ordered by day then tool.
	UsageBetween(ctx context.Context, from, to time.Time) ([]models.ToolUsage, error)
}

// PostgresUsageRepository implements UsageRepository using PostgreSQL.
type PostgresUsageRepository struct {
	pool *database.Pool
}

// NewPostgresUsageRepository creates a new PostgreSQL-backed usage repository.
func NewPostgresUsageRepository(pool *database.Pool) *PostgresUsageRepository {
	return &PostgresUsageRepository{pool: pool}
}

// IncrementUsage upserts all rows in a single batch.
func (r *PostgresUsageRepository) IncrementUsage(ctx context.Context, usage []models.ToolUsage) error {
	if len(usage) == 0 {
		return nil
	}
	defer observe("usage_upsert", time.Now())

	query := `
		INSERT INTO tool_usage (tool, tier, day, count, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tool, tier, day)
		DO UPDATE SET count = tool_usage.count + EXCLUDED.count, updated_at = NOW()
	`

	batch := &pgx.Batch{}
	for _, u := range usage {
		batch.Queue(query, u.Tool, u.Tier.String(), dayOf(u.Day), u.Count)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range usage {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to increment tool usage: %w", err)
		}
	}

	return nil
}

// UsageBetween returns stored counters for the given day range.
func (r *PostgresUsageRepository) UsageBetween(ctx context.Context, from, to time.Time) ([]models.ToolUsage, error) {
	defer observe("usage_select", time.Now())

	query := `
		SELECT tool, tier, day, count
		FROM tool_usage
		WHERE day BETWEEN $1 AND $2
		ORDER BY day, tool, tier
	`

	rows, err := r.pool.Query(ctx, query, dayOf(from), dayOf(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query tool usage: %w", err)
	}
	defer rows.Close()

	var usage []models.ToolUsage
	for rows.Next() {
		var (
			u    models.ToolUsage
			tier string
		)
		if err := rows.Scan(&u.Tool, &tier, &u.Day, &u.Count); err != nil {
			return nil, fmt.Errorf("failed to scan tool usage: %w", err)
		}
		u.Tier = models.Tier(tier)
		usage = append(usage, u)
	}

	return usage, rows.Err()
}

// dayOf truncates t to its UTC calendar day.
func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
