package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/releasetrain/internal/descriptor"
	"github.com/Iron-Ham/releasetrain/internal/logging"
	"github.com/Iron-Ham/releasetrain/internal/manifest"
	"github.com/Iron-Ham/releasetrain/internal/version"
)

// Config represents the complete releasetrain configuration
type Config struct {
	Train      TrainConfig      `mapstructure:"train"`
	Descriptor DescriptorConfig `mapstructure:"descriptor"`
	Release    ReleaseConfig    `mapstructure:"release"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Commands   CommandsConfig   `mapstructure:"commands"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// TrainConfig describes the release train manifest and where to find it
type TrainConfig struct {
	version.Names `mapstructure:",squash"`
	// PlatformParentID is the artifact id expected as the platform
	// descriptor's parent (default: "<platform>-starter-parent")
	PlatformParentID string `mapstructure:"platform_parent_id"`
	// PlatformDescriptor is the path of the platform descriptor inside the checkout
	PlatformDescriptor string `mapstructure:"platform_descriptor"`
	// BOMDescriptor is the path of the bill of materials inside the checkout
	BOMDescriptor string `mapstructure:"bom_descriptor"`
	// PropertyPattern selects BOM properties; group 1 is the project name
	PropertyPattern string `mapstructure:"property_pattern"`
	// Ref is the branch or tag of the release train checkout
	Ref string `mapstructure:"ref"`
	// CheckoutDir is the local release train checkout
	CheckoutDir string `mapstructure:"checkout_dir"`
}

// DescriptorConfig controls how descriptor trees are walked and checked
type DescriptorConfig struct {
	// FileName is the descriptor file looked up in every directory
	FileName string `mapstructure:"file_name"`
	// IgnorePatterns are globs of paths never updated
	IgnorePatterns []string `mapstructure:"ignore_patterns"`
	// DeploySkipProperties opt a descriptor out of the leftover marker check
	DeploySkipProperties []string `mapstructure:"deploy_skip_properties"`
	// WhitelistPatterns are regexes of lines exempt from the leftover marker check
	WhitelistPatterns []string `mapstructure:"whitelist_patterns"`
}

// ReleaseConfig holds the operator's release options
type ReleaseConfig struct {
	// MetaRelease releases every project of the train
	MetaRelease bool `mapstructure:"meta_release"`
	// DryRun updates and builds but never deploys, pushes or publishes
	DryRun bool `mapstructure:"dry_run"`
	// Interactive asks before every step
	Interactive bool `mapstructure:"interactive"`
	// Steps restricts the release to the named steps
	Steps []string `mapstructure:"steps"`
	// From starts the release at this step
	From string `mapstructure:"from"`
	// To ends the release at this step (inclusive)
	To string `mapstructure:"to"`
	// FixedVersions override the manifest, keyed by project name
	FixedVersions map[string]string `mapstructure:"fixed_versions"`
	// Projects lists the meta-release projects in release order
	// (default: the fixed versions' projects, sorted)
	Projects []string `mapstructure:"projects"`
	// Groups are comma separated projects released in parallel
	Groups []string `mapstructure:"groups"`
	// WorkspaceDir holds one clone per project
	WorkspaceDir string `mapstructure:"workspace_dir"`
	// JSONReport is an optional path the JSON verdict report is written to
	JSONReport string `mapstructure:"json_report"`
	// IssueTracker closes released milestones: "none" or "github"
	IssueTracker string `mapstructure:"issue_tracker"`
}

// SchedulerConfig controls meta-release concurrency
type SchedulerConfig struct {
	// Threads is the number of projects of one group released at once
	Threads int `mapstructure:"threads"`
	// GroupTimeoutMinutes bounds each release group (0 = disabled)
	GroupTimeoutMinutes int `mapstructure:"group_timeout_minutes"`
}

// GroupTimeout returns the group timeout as a time.Duration (0 means disabled)
func (c *SchedulerConfig) GroupTimeout() time.Duration {
	return time.Duration(c.GroupTimeoutMinutes) * time.Minute
}

// CommandConfig is one external command
type CommandConfig struct {
	// Tool is one of "maven", "gradle", "shell"
	Tool string `mapstructure:"tool" yaml:"tool"`
	// Command overrides the tool's executable; for "shell" it is the script
	Command string `mapstructure:"command" yaml:"command"`
	// Args are appended to the tool's arguments
	Args []string `mapstructure:"args" yaml:"args"`
}

// IsZero reports whether nothing is configured.
func (c CommandConfig) IsZero() bool {
	return c.Tool == "" && c.Command == "" && len(c.Args) == 0
}

// CommandsConfig holds the commands run by the build-tool steps
type CommandsConfig struct {
	Build    CommandConfig     `mapstructure:"build" yaml:"build"`
	Deploy   CommandConfig     `mapstructure:"deploy" yaml:"deploy"`
	Publish  CommandConfig     `mapstructure:"publish" yaml:"publish"`
	Rollback CommandConfig     `mapstructure:"rollback" yaml:"rollback"`
	Env      map[string]string `mapstructure:"env" yaml:"env"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is where releasetrain.log is written (empty: stderr)
	Dir string `mapstructure:"dir"`
}

// MetricsConfig controls the metrics export
type MetricsConfig struct {
	// TextfilePath receives the prometheus text exposition at the end of a run
	TextfilePath string `mapstructure:"textfile_path"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Train: TrainConfig{
			Names:              version.DefaultNames(),
			PlatformParentID:   "",
			PlatformDescriptor: manifest.DefaultPlatformDescriptor,
			BOMDescriptor:      manifest.DefaultBOMDescriptor,
			PropertyPattern:    manifest.DefaultPropertyPattern,
			Ref:                "main",
			CheckoutDir:        "",
		},
		Descriptor: DescriptorConfig{
			FileName:             descriptor.DefaultFileName,
			IgnorePatterns:       descriptor.DefaultIgnorePatterns,
			DeploySkipProperties: descriptor.DefaultDeploySkipProperties,
			WhitelistPatterns:    []string{},
		},
		Release: ReleaseConfig{
			MetaRelease:   false,
			DryRun:        false,
			Interactive:   false,
			Steps:         []string{},
			FixedVersions: map[string]string{},
			Projects:      []string{},
			Groups:        []string{},
			WorkspaceDir:  "",
			IssueTracker:  "none",
		},
		Scheduler: SchedulerConfig{
			Threads:             4,
			GroupTimeoutMinutes: 180,
		},
		Commands: CommandsConfig{
			Build:    CommandConfig{Tool: "maven", Args: []string{"clean", "install", "-B", "-Pdocs"}},
			Deploy:   CommandConfig{Tool: "maven", Args: []string{"deploy", "-DskipTests", "-B", "-Pfast,deploy"}},
			Publish:  CommandConfig{Tool: "shell", Command: "./docs/src/main/asciidoc/ghpages.sh"},
			Rollback: CommandConfig{Tool: "maven", Args: []string{"clean", "install", "-B", "-DskipTests"}},
			Env:      map[string]string{},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Train defaults
	viper.SetDefault("train.name", defaults.Train.TrainName)
	viper.SetDefault("train.bom_artifact_id", defaults.Train.BOMArtifactID)
	viper.SetDefault("train.bom_parent_artifact_id", defaults.Train.BOMParentArtifactID)
	viper.SetDefault("train.build_artifact_id", defaults.Train.BuildArtifactID)
	viper.SetDefault("train.platform_name", defaults.Train.PlatformName)
	viper.SetDefault("train.dependency_names", defaults.Train.DependencyNames)
	viper.SetDefault("train.platform_parent_id", defaults.Train.PlatformParentID)
	viper.SetDefault("train.platform_descriptor", defaults.Train.PlatformDescriptor)
	viper.SetDefault("train.bom_descriptor", defaults.Train.BOMDescriptor)
	viper.SetDefault("train.property_pattern", defaults.Train.PropertyPattern)
	viper.SetDefault("train.ref", defaults.Train.Ref)
	viper.SetDefault("train.checkout_dir", defaults.Train.CheckoutDir)

	// Descriptor defaults
	viper.SetDefault("descriptor.file_name", defaults.Descriptor.FileName)
	viper.SetDefault("descriptor.ignore_patterns", defaults.Descriptor.IgnorePatterns)
	viper.SetDefault("descriptor.deploy_skip_properties", defaults.Descriptor.DeploySkipProperties)
	viper.SetDefault("descriptor.whitelist_patterns", defaults.Descriptor.WhitelistPatterns)

	// Release defaults
	viper.SetDefault("release.meta_release", defaults.Release.MetaRelease)
	viper.SetDefault("release.dry_run", defaults.Release.DryRun)
	viper.SetDefault("release.interactive", defaults.Release.Interactive)
	viper.SetDefault("release.steps", defaults.Release.Steps)
	viper.SetDefault("release.from", defaults.Release.From)
	viper.SetDefault("release.to", defaults.Release.To)
	viper.SetDefault("release.fixed_versions", defaults.Release.FixedVersions)
	viper.SetDefault("release.projects", defaults.Release.Projects)
	viper.SetDefault("release.groups", defaults.Release.Groups)
	viper.SetDefault("release.workspace_dir", defaults.Release.WorkspaceDir)
	viper.SetDefault("release.json_report", defaults.Release.JSONReport)
	viper.SetDefault("release.issue_tracker", defaults.Release.IssueTracker)

	// Scheduler defaults
	viper.SetDefault("scheduler.threads", defaults.Scheduler.Threads)
	viper.SetDefault("scheduler.group_timeout_minutes", defaults.Scheduler.GroupTimeoutMinutes)

	// Command defaults
	for name, c := range map[string]CommandConfig{
		"build":    defaults.Commands.Build,
		"deploy":   defaults.Commands.Deploy,
		"publish":  defaults.Commands.Publish,
		"rollback": defaults.Commands.Rollback,
	} {
		viper.SetDefault("commands."+name+".tool", c.Tool)
		viper.SetDefault("commands."+name+".command", c.Command)
		viper.SetDefault("commands."+name+".args", c.Args)
	}
	viper.SetDefault("commands.env", defaults.Commands.Env)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Metrics defaults
	viper.SetDefault("metrics.textfile_path", defaults.Metrics.TextfilePath)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "releasetrain")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".releasetrain"
	}
	return filepath.Join(home, ".config", "releasetrain")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ManifestParser builds the manifest parser described by the train section.
func (c *Config) ManifestParser(logger *logging.Logger) *manifest.Parser {
	p := manifest.NewParser(c.Train.Names, logger)
	if c.Train.PlatformParentID != "" {
		p.PlatformParentArtifactID = c.Train.PlatformParentID
	}
	p.PlatformDescriptor = c.Train.PlatformDescriptor
	p.BOMDescriptor = c.Train.BOMDescriptor
	p.PropertyPattern = c.Train.PropertyPattern
	return p
}

// DescriptorOptions returns the tree updater options of the descriptor section.
func (c *Config) DescriptorOptions() descriptor.Options {
	return descriptor.Options{
		FileName:             c.Descriptor.FileName,
		IgnorePatterns:       c.Descriptor.IgnorePatterns,
		DeploySkipProperties: c.Descriptor.DeploySkipProperties,
		WhitelistPatterns:    c.Descriptor.WhitelistPatterns,
	}
}

// ReleaseGroups splits the configured groups into project lists.
func (c *Config) ReleaseGroups() [][]string {
	var groups [][]string
	for _, g := range c.Release.Groups {
		var members []string
		for _, p := range strings.Split(g, ",") {
			if p = strings.TrimSpace(p); p != "" {
				members = append(members, p)
			}
		}
		if len(members) > 0 {
			groups = append(groups, members)
		}
	}
	return groups
}
