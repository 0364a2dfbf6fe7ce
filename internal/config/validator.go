package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "scheduler.threads")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// artifactIDRegex matches Maven style artifact ids
var artifactIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidTools returns the list of valid command tools
func ValidTools() []string {
	return []string{"maven", "gradle", "shell"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateTrain()...)
	errors = append(errors, c.validateDescriptor()...)
	errors = append(errors, c.validateRelease()...)
	errors = append(errors, c.validateScheduler()...)
	errors = append(errors, c.validateCommands()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateTrain validates the TrainConfig
func (c *Config) validateTrain() []ValidationError {
	var errors []ValidationError

	required := []struct {
		field string
		value string
	}{
		{"train.name", c.Train.TrainName},
		{"train.bom_artifact_id", c.Train.BOMArtifactID},
		{"train.bom_parent_artifact_id", c.Train.BOMParentArtifactID},
		{"train.build_artifact_id", c.Train.BuildArtifactID},
		{"train.platform_name", c.Train.PlatformName},
	}
	for _, r := range required {
		if !artifactIDRegex.MatchString(r.value) {
			errors = append(errors, ValidationError{
				Field:   r.field,
				Value:   r.value,
				Message: "must be a non-empty artifact id",
			})
		}
	}

	if c.Train.BOMArtifactID != "" && c.Train.BOMArtifactID == c.Train.BOMParentArtifactID {
		errors = append(errors, ValidationError{
			Field:   "train.bom_parent_artifact_id",
			Value:   c.Train.BOMParentArtifactID,
			Message: "must differ from train.bom_artifact_id",
		})
	}

	if c.Train.PropertyPattern != "" {
		re, err := regexp.Compile(c.Train.PropertyPattern)
		switch {
		case err != nil:
			errors = append(errors, ValidationError{
				Field:   "train.property_pattern",
				Value:   c.Train.PropertyPattern,
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		case re.NumSubexp() != 1:
			errors = append(errors, ValidationError{
				Field:   "train.property_pattern",
				Value:   c.Train.PropertyPattern,
				Message: "must have exactly one capturing group",
			})
		}
	}

	return errors
}

// validateDescriptor validates the DescriptorConfig
func (c *Config) validateDescriptor() []ValidationError {
	var errors []ValidationError

	if c.Descriptor.FileName == "" || strings.ContainsAny(c.Descriptor.FileName, `/\`) {
		errors = append(errors, ValidationError{
			Field:   "descriptor.file_name",
			Value:   c.Descriptor.FileName,
			Message: "must be a plain file name",
		})
	}

	for i, p := range c.Descriptor.IgnorePatterns {
		if _, err := glob.Compile(p, '/'); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("descriptor.ignore_patterns[%d]", i),
				Value:   p,
				Message: fmt.Sprintf("invalid glob: %v", err),
			})
		}
	}

	for i, p := range c.Descriptor.WhitelistPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("descriptor.whitelist_patterns[%d]", i),
				Value:   p,
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
	}

	return errors
}

// validateRelease validates the ReleaseConfig
func (c *Config) validateRelease() []ValidationError {
	var errors []ValidationError

	if len(c.Release.Steps) > 0 && (c.Release.From != "" || c.Release.To != "") {
		errors = append(errors, ValidationError{
			Field:   "release.steps",
			Value:   c.Release.Steps,
			Message: "cannot be combined with release.from or release.to",
		})
	}

	for name, v := range c.Release.FixedVersions {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(v) == "" {
			errors = append(errors, ValidationError{
				Field:   "release.fixed_versions",
				Value:   name + "=" + v,
				Message: "project name and version must both be set",
			})
		}
	}

	switch c.Release.IssueTracker {
	case "", "none", "github":
	default:
		errors = append(errors, ValidationError{
			Field:   "release.issue_tracker",
			Value:   c.Release.IssueTracker,
			Message: "must be one of: none, github",
		})
	}

	seen := make(map[string]int)
	for i, g := range c.ReleaseGroups() {
		for _, p := range g {
			if prev, ok := seen[p]; ok {
				errors = append(errors, ValidationError{
					Field:   "release.groups",
					Value:   p,
					Message: fmt.Sprintf("project listed in groups %d and %d", prev+1, i+1),
				})
				continue
			}
			seen[p] = i
		}
	}

	return errors
}

// validateScheduler validates the SchedulerConfig
func (c *Config) validateScheduler() []ValidationError {
	var errors []ValidationError

	const maxThreads = 64
	if c.Scheduler.Threads < 1 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.threads",
			Value:   c.Scheduler.Threads,
			Message: "must be at least 1",
		})
	}
	if c.Scheduler.Threads > maxThreads {
		errors = append(errors, ValidationError{
			Field:   "scheduler.threads",
			Value:   c.Scheduler.Threads,
			Message: fmt.Sprintf("exceeds maximum of %d", maxThreads),
		})
	}

	if c.Scheduler.GroupTimeoutMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.group_timeout_minutes",
			Value:   c.Scheduler.GroupTimeoutMinutes,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateCommands validates the CommandsConfig
func (c *Config) validateCommands() []ValidationError {
	var errors []ValidationError

	for name, cmd := range map[string]CommandConfig{
		"build":    c.Commands.Build,
		"deploy":   c.Commands.Deploy,
		"publish":  c.Commands.Publish,
		"rollback": c.Commands.Rollback,
	} {
		errors = append(errors, validateCommand("commands."+name, cmd)...)
	}
	slices.SortFunc(errors, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })

	for k := range c.Commands.Env {
		if k == "" || strings.ContainsAny(k, "= ") {
			errors = append(errors, ValidationError{
				Field:   "commands.env",
				Value:   k,
				Message: "invalid environment variable name",
			})
		}
	}

	return errors
}

func validateCommand(field string, cmd CommandConfig) []ValidationError {
	var errors []ValidationError

	if cmd.IsZero() {
		return nil
	}
	if !slices.Contains(ValidTools(), cmd.Tool) {
		errors = append(errors, ValidationError{
			Field:   field + ".tool",
			Value:   cmd.Tool,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidTools(), ", ")),
		})
	}
	if cmd.Tool == "shell" && strings.TrimSpace(cmd.Command) == "" {
		errors = append(errors, ValidationError{
			Field:   field + ".command",
			Value:   cmd.Command,
			Message: "is required for the shell tool",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if strings.ContainsRune(c.Logging.Dir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "logging.dir",
			Value:   c.Logging.Dir,
			Message: "path contains invalid null character",
		})
	}

	return errors
}
