package release

import (
	"context"
	"time"

	"github.com/Iron-Ham/releasetrain/internal/config"
	"github.com/Iron-Ham/releasetrain/internal/descriptor"
	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/event"
	"github.com/Iron-Ham/releasetrain/internal/flow"
	"github.com/Iron-Ham/releasetrain/internal/step"
	"github.com/Iron-Ham/releasetrain/internal/verdict"
	"github.com/Iron-Ham/releasetrain/internal/version"
)

// ReleaseProject releases the project checked out at dir against the
// release train versions. The error is only set when the release could not
// be prepared; step failures are part of the result's verdict.
func (r *Run) ReleaseProject(ctx context.Context, dir string) (flow.ProjectResult, error) {
	versions, err := r.VersionMap(ctx)
	if err != nil {
		return flow.ProjectResult{}, err
	}
	return r.releaseProject(ctx, "", dir, versions)
}

// UpdateProject only patches the descriptors of the project at dir. With
// assertOnly nothing is written: the tree is checked for leftover
// pre-release markers of the project's train version.
func (r *Run) UpdateProject(ctx context.Context, dir string, assertOnly bool) (descriptor.UpdateResult, error) {
	versions, err := r.VersionMap(ctx)
	if err != nil {
		return descriptor.UpdateResult{}, err
	}
	p, err := r.prepareProject("", dir, versions)
	if err != nil {
		return descriptor.UpdateResult{}, err
	}
	if !assertOnly {
		res, err := p.updater.Update(ctx, dir, p.versions, p.target)
		r.Projects.Invalidate(dir)
		return res, err
	}
	if !p.updater.ShouldUpdate(dir, p.versions) {
		return descriptor.UpdateResult{Skipped: true}, nil
	}
	return descriptor.UpdateResult{Project: p.target}, p.updater.AssertNoLeftoverMarkers(dir, p.target)
}

// prepareProject applies the project's override file and resolves its
// release version. name defaults to the root descriptor's artifact id.
func (r *Run) prepareProject(name, dir string, versions *version.Map) (*project, error) {
	override, err := config.LoadProjectOverride(dir)
	if err != nil {
		return nil, err
	}
	cfg := r.Config.WithOverride(override)
	if override != nil && len(override.FixedVersions) > 0 {
		versions = versions.Clone()
		versions.ApplyFixedVersions(override.FixedVersions)
	}

	updater, err := descriptor.NewTreeUpdater(cfg.DescriptorOptions(), r.Logger)
	if err != nil {
		return nil, err
	}
	current, err := r.Projects.GetOrLoad(dir, updater.ReadProjectVersion)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = current.ProjectName
	}
	cmds, err := commandsFromConfig(cfg.Commands)
	if err != nil {
		return nil, err
	}

	target := version.NewProjectVersion(current.ProjectName, versions.VersionForProject(current.ProjectName))
	return &project{
		run:      r,
		name:     name,
		dir:      dir,
		versions: versions,
		target:   target,
		updater:  updater,
		commands: cmds,
		log:      r.Logger.WithProject(name).With("version", target.Version),
	}, nil
}

func (r *Run) releaseProject(ctx context.Context, name, dir string, versions *version.Map) (flow.ProjectResult, error) {
	p, err := r.prepareProject(name, dir, versions)
	if err != nil {
		return flow.ProjectResult{}, err
	}
	steps, _, err := r.selectSteps(p, nil)
	if err != nil {
		return flow.ProjectResult{}, err
	}
	if !p.updater.ShouldUpdate(dir, p.versions) {
		return r.skippedResult(p.name, steps), nil
	}

	p.log.Info("releasing project", "dir", dir, "steps", step.Names(steps))
	runner := flow.Runner{Decisions: r.Decisions, Bus: r.Bus, Logger: r.Logger, Mode: step.ModeProject}
	return runner.Run(ctx, p.name, steps), nil
}

// skippedResult records every step of a project outside the train as skipped.
func (r *Run) skippedResult(name string, steps []step.Step) flow.ProjectResult {
	res := flow.ProjectResult{Project: name, States: make(map[string]verdict.State, len(steps))}
	for _, s := range steps {
		res.States[s.Name] = verdict.StateSkipped
		res.Verdict.Record(verdict.StepResult{
			Project:     name,
			Step:        s.Name,
			Description: s.Description,
			State:       verdict.StateSkipped,
			Outcome:     verdict.Skipped,
		})
	}
	r.Bus.Publish(event.NewProjectFinishedEvent(name, res.Status().String(), false, false, 0))
	return res
}

// failedResult is the result of a project that could not be prepared.
func (r *Run) failedResult(name string, err error, started time.Time) flow.ProjectResult {
	stepErr := errors.NewStepError("project could not be prepared", err).
		WithProject(name).WithStep("prepare").WithDescription("Prepare the project checkout")
	res := flow.ProjectResult{Project: name, Verdict: verdict.New(stepErr), Duration: time.Since(started)}
	r.Logger.WithProject(name).Error("project could not be prepared", "error", err)
	r.Bus.Publish(event.NewProjectFinishedEvent(name, res.Status().String(), false, false, res.Duration))
	return res
}
