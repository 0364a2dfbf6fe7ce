package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update [project-dir]",
	Short: "Update a project's descriptors to the release train versions",
	Long: `Rewrite the versions in every descriptor of the project to the release
train versions without running any other release step. With --assert
nothing is written; the project is only checked for leftover pre-release
versions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUpdate,
}

var updateAssert bool

func init() {
	updateCmd.Flags().BoolVar(&updateAssert, "assert", false, "Only check for leftover pre-release versions")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	dir, err := projectDir(args)
	if err != nil {
		return err
	}
	run, cleanup, err := newRun(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := run.UpdateProject(cmd.Context(), dir, updateAssert)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if res.Skipped {
		fmt.Fprintln(out, "project is not part of the release train, nothing to do")
		return nil
	}
	if updateAssert {
		fmt.Fprintf(out, "%s: no leftover pre-release versions\n", res.Project)
		return nil
	}
	for _, f := range res.Files {
		if !f.Written {
			continue
		}
		rel, err := filepath.Rel(dir, f.Path)
		if err != nil {
			rel = f.Path
		}
		fmt.Fprintf(out, "%s\n", rel)
		for _, c := range f.Changes {
			fmt.Fprintf(out, "  %-8s %s: %s -> %s\n", c.Kind, c.Name, c.From, c.To)
		}
	}
	fmt.Fprintf(out, "%s: %d of %d descriptors updated\n", res.Project, res.Written(), len(res.Files))
	return nil
}
