// Package repository handles data persistence.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/devtoolspro/gateway/internal/database"
	"github.com/devtoolspro/gateway/internal/metrics"
	"github.com/devtoolspro/gateway/internal/models"
)

// LicenseCheckRepository defines persistence for the license check audit log.
type LicenseCheckRepository interface {
	// RecordLicenseCheck appends one audit record and sets its ID.
	RecordLicenseCheck(ctx context.Context, check *models.LicenseCheck) error

	// RecentByKeyHash returns the latest checks for a key hash, newest first.
	RecentByKeyHash(ctx context.Context, keyHash string, limit int) ([]models.LicenseCheck, error)

	// DeleteOlderThan removes checks recorded before cutoff and returns the count.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// HealthCheck verifies the repository is healthy.
	HealthCheck(ctx context.Context) error
}

// PostgresLicenseCheckRepository implements LicenseCheckRepository using PostgreSQL.
type PostgresLicenseCheckRepository struct {
	pool *database.Pool
}

// NewPostgresLicenseCheckRepository creates a new PostgreSQL-backed audit log.
func NewPostgresLicenseCheckRepository(pool *database.Pool) *PostgresLicenseCheckRepository {
	return &PostgresLicenseCheckRepository{pool: pool}
}

// RecordLicenseCheck stores a check. Only the key hash is persisted.
func (r *PostgresLicenseCheckRepository) RecordLicenseCheck(ctx context.Context, check *models.LicenseCheck) error {
	defer observe("license_check_insert", time.Now())

	query := `
		INSERT INTO license_checks (license_key_hash, valid, reason, source, client_ip, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	checkedAt := check.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now()
	}

	err := r.pool.QueryRow(ctx, query,
		check.KeyHash,
		check.Valid,
		check.Reason,
		check.Source,
		check.ClientIP,
		checkedAt,
	).Scan(&check.ID)
	if err != nil {
		return fmt.Errorf("failed to record license check: %w", err)
	}

	return nil
}

// RecentByKeyHash returns the latest checks for a key hash.
func (r *PostgresLicenseCheckRepository) RecentByKeyHash(ctx context.Context, keyHash string, limit int) ([]models.LicenseCheck, error) {
	defer observe("license_check_select", time.Now())

	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, license_key_hash, valid, reason, source, client_ip, checked_at
		FROM license_checks
		WHERE license_key_hash = $1
		ORDER BY checked_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, keyHash, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query license checks: %w", err)
	}
	defer rows.Close()

	var checks []models.LicenseCheck
	for rows.Next() {
		var c models.LicenseCheck
		if err := rows.Scan(&c.ID, &c.KeyHash, &c.Valid, &c.Reason, &c.Source, &c.ClientIP, &c.CheckedAt); err != nil {
			return nil, fmt.Errorf("failed to scan license check: %w", err)
		}
		checks = append(checks, c)
	}

	return checks, rows.Err()
}

// DeleteOlderThan removes checks recorded before cutoff.
func (r *PostgresLicenseCheckRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	defer observe("license_check_delete", time.Now())

	result, err := r.pool.Exec(ctx, `DELETE FROM license_checks WHERE checked_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old license checks: %w", err)
	}

	return result.RowsAffected(), nil
}

// HealthCheck verifies the database connection is healthy.
func (r *PostgresLicenseCheckRepository) HealthCheck(ctx context.Context) error {
	return r.pool.HealthCheck(ctx)
}

// observe records how long a query took.
func observe(operation string, start time.Time) {
	metrics.RecordDBQuery(operation, time.Since(start))
}
