package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/devtoolspro/gateway/internal/license"
	"github.com/devtoolspro/gateway/internal/models"
	"github.com/devtoolspro/gateway/internal/repository"
	"github.com/devtoolspro/gateway/internal/services"
)

const defaultRetention = 90 * 24 * time.Hour

func newLicenseCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "Verify license keys and inspect the audit log",
	}
	cmd.AddCommand(
		newLicenseVerifyCommand(opts),
		newLicenseHistoryCommand(opts),
		newLicensePruneCommand(opts),
	)
	return cmd
}

func newLicenseVerifyCommand(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "verify <key>",
		Short: "Check a license key against the licensing service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			log := opts.logger(cfg, cmd.ErrOrStderr())
			verifier := license.New(license.ConfigOptions(cfg), log)

			key := args[0]
			res := verifier.Verify(cmd.Context(), key)
			state := res.State(key)

			if format == formatJSON {
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				t := newTable(cmd.OutOrStdout(), table.Row{"Key", "Valid", "Tier", "Source", "Detail"})
				t.AppendRow(table.Row{models.Fingerprint(key), state.IsValid, state.Tier, res.Source, state.Error})
				t.Render()
			}

			if !res.Valid {
				return fmt.Errorf("license rejected: %s", res.Reason.Message())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table or json")
	return cmd
}

func newLicenseHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "history <key>",
		Short: "Show recent checks of a license key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := services.NewAuditService(repository.NewPostgresLicenseCheckRepository(pool))
			checks, err := svc.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			if format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), checks)
			}

			t := newTable(cmd.OutOrStdout(), table.Row{"Checked", "Valid", "Reason", "Source", "Client"})
			for _, c := range checks {
				t.AppendRow(table.Row{
					c.CheckedAt.UTC().Format(time.RFC3339),
					c.Valid,
					c.Reason,
					c.Source,
					c.ClientIP,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of checks to show")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table or json")
	return cmd
}

func newLicensePruneCommand(opts *rootOptions) *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete license checks older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := services.NewAuditService(repository.NewPostgresLicenseCheckRepository(pool))
			n, err := svc.Prune(cmd.Context(), retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d license check(s) older than %s\n", n, retention)
			return nil
		},
	}

	cmd.Flags().DurationVar(&retention, "retention", defaultRetention, "keep checks newer than this")
	return cmd
}
