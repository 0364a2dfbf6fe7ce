package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/releasetrain/internal/release"
	"github.com/Iron-Ham/releasetrain/internal/step"
)

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "List the release steps",
	Long: `List the release steps in execution order. Names and short names can
be passed to --steps, --from, --to and --range.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), stepsTable(release.Catalog()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stepsCmd)
}

func stepsTable(steps []step.Step) string {
	var rows [][]string
	for _, s := range steps {
		critical := ""
		if s.Critical {
			critical = "yes"
		}
		rows = append(rows, []string{s.Name, s.ShortName, s.Modes.String(), critical, s.Description})
		for _, sub := range s.Steps {
			rows = append(rows, []string{"  " + sub.Name, sub.ShortName, "", "", sub.Description})
		}
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("STEP", "SHORT", "FLOW", "CRITICAL", "DESCRIPTION").
		Rows(rows...).
		String()
}
