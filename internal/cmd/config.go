package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/releasetrain/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or create the releasetrain configuration",
	Long: `View or create the releasetrain configuration.

Without arguments, displays the effective configuration: defaults,
config file, RELEASETRAIN_* environment variables and flags combined.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/releasetrain/config.yaml.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}
	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

const defaultConfigContent = `# Releasetrain Configuration

# The release train: its bill of materials and where it is checked out
train:
  name: spring-cloud-release
  bom_artifact_id: spring-cloud-dependencies
  bom_parent_artifact_id: spring-cloud-dependencies-parent
  build_artifact_id: spring-cloud-build
  platform_name: spring-boot
  ref: main
  checkout_dir: ""

# Descriptor discovery
descriptor:
  file_name: pom.xml
  # Lines matching these regular expressions may keep pre-release versions
  whitelist_patterns: []

release:
  # Directory holding one checkout per project
  workspace_dir: ""
  # Release order for meta-release
  projects: []
  # Projects released in parallel, comma separated per group
  groups: []
  fixed_versions: {}
  # Close released milestones: none or github (uses the gh CLI)
  issue_tracker: none

scheduler:
  threads: 4
  group_timeout_minutes: 180

# Build tool commands; tool is one of maven, gradle, shell
commands:
  build:
    tool: maven
    args: [clean, install, -B, -Pdocs]
  deploy:
    tool: maven
    args: [deploy, -DskipTests, -B, "-Pfast,deploy"]
  publish:
    tool: shell
    command: ./docs/src/main/asciidoc/ghpages.sh
  env: {}

logging:
  level: info
  # Write releasetrain.log here instead of stderr
  dir: ""

metrics:
  # Prometheus text exposition written at the end of every run
  textfile_path: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintln(out, "  2. $HOME/.config/releasetrain/config.yaml")
	fmt.Fprintln(out, "  3. ./config.yaml (current directory)")
	fmt.Fprintln(out, "\nEnvironment variables: RELEASETRAIN_* (e.g., RELEASETRAIN_SCHEDULER_THREADS)")
	return nil
}
