package cmd

import (
	"context"
	"time"

	"github.com/devtoolspro/gateway/internal/config"
	"github.com/devtoolspro/gateway/internal/database"
)

const dbConnectTimeout = 10 * time.Second

// openPool connects to the configured database.
func openPool(ctx context.Context, cfg *config.Config) (*database.Pool, error) {
	if !cfg.DatabaseEnabled() {
		return nil, errNoDatabase
	}
	ctx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()
	return database.NewPool(ctx, &cfg.Database)
}
