package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/releasetrain/internal/version"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Show the resolved release train versions",
	Long: `Resolve the release train versions from the train checkout and the
fixed versions, and print them as a table or as YAML.`,
	Args: cobra.NoArgs,
	RunE: runVersions,
}

var versionsYAML bool

func init() {
	versionsCmd.Flags().BoolVar(&versionsYAML, "yaml", false, "Print the versions as YAML")
	rootCmd.AddCommand(versionsCmd)
}

func runVersions(cmd *cobra.Command, args []string) error {
	run, cleanup, err := newRun(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	versions, err := run.VersionMap(cmd.Context())
	if err != nil {
		return err
	}
	if versionsYAML {
		out, err := yaml.Marshal(versions.AsStringMap())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), versionsTable(versions))
	return nil
}

func versionsTable(versions *version.Map) string {
	rows := make([][]string, 0, versions.Len())
	for _, r := range versions.Records() {
		rows = append(rows, []string{r.Name(), r.Version()})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PROJECT", "VERSION").
		Rows(rows...).
		String()
}
