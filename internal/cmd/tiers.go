package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/devtoolspro/gateway/internal/formatter"
	"github.com/devtoolspro/gateway/internal/models"
)

type tierRow struct {
	Tier   models.Tier `json:"tier"`
	Limit  int         `json:"limit"`
	Window string      `json:"window"`
	Tools  []string    `json:"tools"`
}

func newTiersCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "tiers",
		Short: "Show rate limits and tools per tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}

			rows := tierRows(formatter.Default())
			if format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), rows)
			}

			t := newTable(cmd.OutOrStdout(), table.Row{"Tier", "Requests", "Window", "Tools"})
			for _, r := range rows {
				t.AppendRow(table.Row{r.Tier, r.Limit, r.Window, fmt.Sprintf("%d", len(r.Tools))})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table or json")
	return cmd
}

func tierRows(reg *formatter.Registry) []tierRow {
	rows := make([]tierRow, 0, len(models.Tiers()))
	for _, tier := range models.Tiers() {
		var tools []string
		for _, tool := range reg.List() {
			if !tool.Pro || tier.IsPro() {
				tools = append(tools, tool.ID)
			}
		}
		rows = append(rows, tierRow{
			Tier:   tier,
			Limit:  tier.Limit(),
			Window: models.Window.String(),
			Tools:  tools,
		})
	}
	return rows
}
