package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/releasetrain/internal/config"
	"github.com/Iron-Ham/releasetrain/internal/logging"
	"github.com/Iron-Ham/releasetrain/internal/release"
)

var rootCmd = &cobra.Command{
	Use:   "releasetrain",
	Short: "Release a train of Maven projects in lockstep",
	Long: `Releasetrain resolves the versions of a release train from its
bill of materials, rewrites the descriptors of every member project to
those versions and drives each project through the release steps: build,
commit, deploy, publish docs, go back to snapshots, push and close the
milestone. A meta-release walks all projects group by group.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx. Canceling ctx stops the
// release at the next step boundary.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"meta-release":   "release.meta_release",
	"dry-run":        "release.dry_run",
	"interactive":    "release.interactive",
	"steps":          "release.steps",
	"from":           "release.from",
	"to":             "release.to",
	"fixed-versions": "release.fixed_versions",
	"groups":         "release.groups",
	"workspace":      "release.workspace_dir",
	"json-report":    "release.json_report",
	"threads":        "scheduler.threads",
	"group-timeout":  "scheduler.group_timeout_minutes",
	"train-dir":      "train.checkout_dir",
	"ref":            "train.ref",
	"log-level":      "logging.level",
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.config/releasetrain/config.yaml)")
	flags.Bool("meta-release", false, "Release the whole train (same as the meta-release command)")
	flags.Bool("dry-run", false, "Do everything but deploy, push and publish")
	flags.BoolP("interactive", "i", false, "Ask before every step")
	flags.StringSlice("steps", nil, "Run only these steps (names or short names)")
	flags.String("from", "", "Start from this step")
	flags.String("to", "", "Stop after this step")
	flags.String("range", "", "Run an inclusive step range, e.g. uv:d")
	flags.StringToString("fixed-versions", nil, "Override train versions (name=version,...)")
	flags.StringArray("groups", nil, "Projects released in parallel, comma separated (repeatable)")
	flags.String("workspace", "", "Directory holding the project checkouts")
	flags.String("json-report", "", "Also write the verdict as JSON to this file")
	flags.Int("threads", 0, "Projects released in parallel within a group")
	flags.Int("group-timeout", 0, "Minutes a release group may take")
	flags.String("train-dir", "", "Release train checkout holding the bill of materials")
	flags.String("ref", "", "Branch or tag of the release train")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")

	bindFlags()
}

func bindFlags() {
	flags := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("config", flags.Lookup("config"))
	for flag, key := range flagKeys {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/releasetrain")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("RELEASETRAIN")
	// Replace dots with underscores for nested keys in env vars
	// e.g., RELEASETRAIN_SCHEDULER_THREADS for scheduler.threads
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig applies the --range flag and loads the validated configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if r, _ := cmd.Flags().GetString("range"); r != "" {
		from, to, err := parseRange(r)
		if err != nil {
			return nil, err
		}
		viper.Set("release.from", from)
		viper.Set("release.to", to)
	}
	return config.Load()
}

// newRun loads the configuration and opens the logger and run context.
// The returned function closes both.
func newRun(cmd *cobra.Command) (*release.Run, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	run := release.NewRun(cfg, release.OptionsFromConfig(cfg), logger)
	run.Commands = &release.ExecRunner{Logger: run.Logger, Output: cmd.ErrOrStderr()}
	cleanup := func() {
		if err := run.Close(); err != nil {
			run.Logger.Warn("closing release run", "error", err)
		}
		_ = logger.Close()
	}
	return run, cleanup, nil
}

// projectDir returns the first argument, or the working directory.
func projectDir(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return os.Getwd()
}
