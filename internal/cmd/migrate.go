package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/devtoolspro/gateway/internal/database"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	// withMigrator connects, builds the schema migrator and runs fn.
	withMigrator := func(cmd *cobra.Command, fn func(*cobra.Command, *database.Migrator) error) error {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		pool, err := openPool(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		m, err := database.NewSchemaMigrator(pool)
		if err != nil {
			return err
		}
		return fn(cmd, m)
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(cmd *cobra.Command, m *database.Migrator) error {
				n, err := m.Up(cmd.Context())
				if err != nil {
					return err
				}
				version, err := m.CurrentVersion(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s), schema at version %d\n", n, version)
				return nil
			})
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(cmd *cobra.Command, m *database.Migrator) error {
				if err := m.Down(cmd.Context()); err != nil {
					return err
				}
				version, err := m.CurrentVersion(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back, schema at version %d\n", version)
				return nil
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and when they were applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(cmd *cobra.Command, m *database.Migrator) error {
				migrations, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				renderMigrations(cmd, migrations)
				return nil
			})
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func renderMigrations(cmd *cobra.Command, migrations []database.Migration) {
	t := newTable(cmd.OutOrStdout(), table.Row{"Version", "Name", "Applied"})
	for _, m := range migrations {
		applied := "pending"
		if m.AppliedAt != nil {
			applied = m.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		t.AppendRow(table.Row{m.Version, m.Name, applied})
	}
	t.Render()
}
