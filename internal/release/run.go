// Package release wires the release train together: the run context, the
// collaborators a release drives, the step catalog and the single-project
// and meta-release drivers.
package release

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Iron-Ham/releasetrain/internal/config"
	"github.com/Iron-Ham/releasetrain/internal/decision"
	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/event"
	"github.com/Iron-Ham/releasetrain/internal/logging"
	"github.com/Iron-Ham/releasetrain/internal/metrics"
	"github.com/Iron-Ham/releasetrain/internal/version"
)

// Run is the context of one release invocation. Its caches live exactly as
// long as the run: call Close when done.
type Run struct {
	ID      string
	Config  *config.Config
	Options Options

	Maps     *version.MapCache
	Projects *version.ProjectCache
	Bus      *event.Bus
	Metrics  *metrics.Recorder
	Logger   *logging.Logger

	Collaborators Collaborators
	Commands      CommandRunner
	Decisions     decision.Port
}

// NewRun creates a run for cfg. Collaborators default to a LocalWorkspace
// on the configured workspace directory and commands run as child
// processes. Interactive runs ask on the terminal before every step.
func NewRun(cfg *config.Config, opts Options, logger *logging.Logger) *Run {
	id := uuid.NewString()
	logger = logging.OrNop(logger).WithRun(id)

	bus := event.NewBus(logger)
	rec := metrics.NewRecorder()
	rec.Attach(bus)

	var decisions decision.Port = decision.NonInteractive{}
	if opts.Interactive {
		decisions = decision.ForTerminal()
	}

	workspace := NewLocalWorkspace(opts.WorkspaceDir, logger)
	if cfg.Release.IssueTracker == TrackerGitHub {
		workspace.Milestones = NewGitHubMilestones(logger)
	}

	return &Run{
		ID:            id,
		Config:        cfg,
		Options:       opts,
		Maps:          version.NewMapCache(),
		Projects:      version.NewProjectCache(),
		Bus:           bus,
		Metrics:       rec,
		Logger:        logger,
		Collaborators: workspace,
		Commands:      &ExecRunner{Logger: logger},
		Decisions:     decisions,
	}
}

// Close clears the run's caches, detaches the metrics and writes them to
// the configured textfile.
func (r *Run) Close() error {
	r.Maps.Clear()
	r.Projects.Clear()
	if r.Metrics == nil {
		return nil
	}
	r.Metrics.Detach()
	if path := r.Config.Metrics.TextfilePath; path != "" {
		if err := r.Metrics.WriteTextfile(path); err != nil {
			return err
		}
		r.Logger.Info("metrics written", "file", path)
	}
	return nil
}

func (r *Run) mapKey() string {
	dir := r.Options.TrainDir
	if dir != "" {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}
	return dir + "@" + r.Options.Ref
}

// VersionMap resolves the versions of the release train: the manifest of
// the train checkout at the configured ref, overlaid with the operator's
// fixed versions. The parsed manifest is cached for the run; every call
// returns a fresh copy. An empty result is a configuration error.
func (r *Run) VersionMap(ctx context.Context) (*version.Map, error) {
	cached, err := r.Maps.GetOrBuild(ctx, r.mapKey(), r.buildVersionMap)
	if err != nil {
		return nil, err
	}
	versions := cached.Clone()
	versions.ApplyFixedVersions(r.Options.FixedVersions)
	if versions.IsEmpty() {
		return nil, errors.NewConfigurationError("release train version map is empty", errors.ErrInvalidInput).
			WithField("train.checkout_dir")
	}
	return versions, nil
}

func (r *Run) buildVersionMap(ctx context.Context, _ string) (*version.Map, error) {
	dir := r.Options.TrainDir
	if dir == "" {
		r.Logger.Info("no release train checkout configured, using fixed versions only")
		return version.NewMap(r.Config.Train.Names), nil
	}
	if err := r.Collaborators.Checkout(ctx, dir, r.Options.Ref); err != nil {
		return nil, errors.NewConfigurationError("cannot check out release train", err).WithFile(dir)
	}
	versions, err := r.Config.ManifestParser(r.Logger).Parse(dir)
	if err != nil {
		return nil, err
	}
	r.Logger.Info("release train versions resolved", "dir", dir, "ref", r.Options.Ref, "projects", versions.Len())
	return versions, nil
}
