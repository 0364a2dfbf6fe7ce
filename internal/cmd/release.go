package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/releasetrain/internal/report"
)

var releaseCmd = &cobra.Command{
	Use:   "release [project-dir]",
	Short: "Release a single project",
	Long: `Release the project checked out in project-dir (default: the current
directory) at the version the release train assigns to it.

Examples:
  # Full release of the current project
  releasetrain release --train-dir ../spring-cloud-release

  # Only update versions and build, without deploying anything
  releasetrain release --steps uv,b

  # Resume a failed release from the deploy step
  releasetrain release --from deploy

With release.meta_release set (or --meta-release) the whole train is
released as by the meta-release command and project-dir is ignored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRelease,
}

func init() {
	rootCmd.AddCommand(releaseCmd)
}

func runRelease(cmd *cobra.Command, args []string) error {
	dir, err := projectDir(args)
	if err != nil {
		return err
	}
	run, cleanup, err := newRun(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if run.Options.MetaRelease {
		res, err := run.MetaRelease(cmd.Context())
		if err != nil {
			return err
		}
		return finish(cmd, report.FromTrain(run.ID, res), run.Config.Release.JSONReport)
	}

	res, err := run.ReleaseProject(cmd.Context(), dir)
	if err != nil {
		return err
	}
	return finish(cmd, report.FromProject(run.ID, res), run.Config.Release.JSONReport)
}
