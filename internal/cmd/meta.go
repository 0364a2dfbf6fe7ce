package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/releasetrain/internal/report"
)

var metaReleaseCmd = &cobra.Command{
	Use:   "meta-release",
	Short: "Release every project of the release train",
	Long: `Release all train projects found in the workspace directory.

Projects are released in the configured order. Projects listed together
in a group are released in parallel; groups run one after another and a
group that exceeds its timeout does not hold back the next one. Once all
projects are released, the train's post-release steps run.

Examples:
  releasetrain meta-release --workspace ~/train --train-dir ~/train/spring-cloud-release \
    --fixed-versions spring-cloud-sleuth=1.3.1.RELEASE,spring-cloud-commons=1.3.1.RELEASE \
    --groups spring-cloud-sleuth,spring-cloud-zipkin`,
	Args: cobra.NoArgs,
	RunE: runMetaRelease,
}

func init() {
	rootCmd.AddCommand(metaReleaseCmd)
}

func runMetaRelease(cmd *cobra.Command, args []string) error {
	run, cleanup, err := newRun(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := run.MetaRelease(cmd.Context())
	if err != nil {
		return err
	}
	return finish(cmd, report.FromTrain(run.ID, res), run.Config.Release.JSONReport)
}
