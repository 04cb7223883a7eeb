package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/devtoolspro/gateway/internal/repository"
	"github.com/devtoolspro/gateway/internal/services"
)

const dayLayout = "2006-01-02"

func newUsageCommand(opts *rootOptions) *cobra.Command {
	var (
		from   string
		to     string
		days   int
		output string
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Report tool usage per tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}
			start, end, err := reportRange(from, to, days, time.Now().UTC())
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

			svc := services.NewUsageService(repository.NewPostgresUsageRepository(pool))
			report, err := svc.Report(cmd.Context(), start, end)
			if err != nil {
				return err
			}

			if format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			renderUsage(cmd, report)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD), defaults to today")
	cmd.Flags().IntVar(&days, "days", 7, "days to report when --from is not set")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table or json")
	return cmd
}

// reportRange resolves the report's first and last day.
func reportRange(from, to string, days int, now time.Time) (time.Time, time.Time, error) {
	end := now.Truncate(24 * time.Hour)
	if to != "" {
		t, err := time.Parse(dayLayout, to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
		}
		end = t
	}

	if from != "" {
		start, err := time.Parse(dayLayout, from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
		}
		return start, end, nil
	}

	if days < 1 {
		return time.Time{}, time.Time{}, fmt.Errorf("--days must be at least 1")
	}
	return end.AddDate(0, 0, -(days - 1)), end, nil
}

func renderUsage(cmd *cobra.Command, report *services.UsageReport) {
	t := newTable(cmd.OutOrStdout(), table.Row{"Tool", "Free", "Pro", "Total"})
	for _, tool := range report.Tools {
		t.AppendRow(table.Row{tool.Tool, tool.Free, tool.Pro, tool.Total})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%s to %s", report.From.Format(dayLayout), report.To.Format(dayLayout)),
		"", "", report.Total,
	})
	t.Render()
}
