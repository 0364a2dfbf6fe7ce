package config

import (
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/releasetrain/internal/errors"
)

// OverrideFile is the per-project override file, relative to the project root.
const OverrideFile = "config/releasetrain.yml"

// ProjectOverride overlays global settings for a single project
type ProjectOverride struct {
	Commands       CommandsConfig    `yaml:"commands"`
	IgnorePatterns []string          `yaml:"ignore_patterns"`
	FixedVersions  map[string]string `yaml:"fixed_versions"`
}

// LoadProjectOverride reads the override file of the project at root.
// A missing file yields nil and no error.
func LoadProjectOverride(root string) (*ProjectOverride, error) {
	path := filepath.Join(root, OverrideFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewConfigurationError("reading project override", err).WithFile(path)
	}

	var o ProjectOverride
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, errors.NewConfigurationError("parsing project override", err).WithFile(path)
	}
	return &o, nil
}

// WithOverride returns a copy of c with o applied. Commands set in o
// replace the global ones (keeping the global tool when o names none), ignore patterns are added, env and fixed
// versions are merged with o winning.
func (c *Config) WithOverride(o *ProjectOverride) *Config {
	out := *c
	out.Descriptor.IgnorePatterns = slices.Clone(c.Descriptor.IgnorePatterns)
	out.Commands.Env = maps.Clone(c.Commands.Env)
	out.Release.FixedVersions = maps.Clone(c.Release.FixedVersions)
	if o == nil {
		return &out
	}

	for _, pair := range []struct {
		dst *CommandConfig
		src CommandConfig
	}{
		{&out.Commands.Build, o.Commands.Build},
		{&out.Commands.Deploy, o.Commands.Deploy},
		{&out.Commands.Publish, o.Commands.Publish},
		{&out.Commands.Rollback, o.Commands.Rollback},
	} {
		if pair.src.IsZero() {
			continue
		}
		merged := pair.src
		if merged.Tool == "" {
			merged.Tool = pair.dst.Tool
		}
		*pair.dst = merged
	}

	out.Descriptor.IgnorePatterns = append(out.Descriptor.IgnorePatterns, o.IgnorePatterns...)
	if len(o.Commands.Env) > 0 && out.Commands.Env == nil {
		out.Commands.Env = make(map[string]string, len(o.Commands.Env))
	}
	maps.Copy(out.Commands.Env, o.Commands.Env)
	if len(o.FixedVersions) > 0 && out.Release.FixedVersions == nil {
		out.Release.FixedVersions = make(map[string]string, len(o.FixedVersions))
	}
	maps.Copy(out.Release.FixedVersions, o.FixedVersions)
	return &out
}
