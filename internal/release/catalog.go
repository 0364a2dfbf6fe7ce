package release

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/releasetrain/internal/config"
	"github.com/Iron-Ham/releasetrain/internal/descriptor"
	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/logging"
	"github.com/Iron-Ham/releasetrain/internal/scheduler"
	"github.com/Iron-Ham/releasetrain/internal/step"
	"github.com/Iron-Ham/releasetrain/internal/version"
)

// Step names of the catalog.
const (
	StepUpdateVersions  = "update-versions"
	StepBuild           = "build"
	StepCommit          = "commit"
	StepDeploy          = "deploy"
	StepPublishDocs     = "publish-docs"
	StepRollback        = "rollback"
	StepBumpSnapshot    = "bump-snapshot"
	StepCommitSnapshot  = "commit-snapshot"
	StepRollbackBuild   = "rollback-build"
	StepPush            = "push"
	StepCloseMilestone  = "close-milestone"
	StepUpdateTemplates = "update-templates"
	StepNotify          = "notify"
)

// commands are the resolved build tool commands of one project.
type commands struct {
	build, deploy, publish, rollback Command
}

func commandsFromConfig(c config.CommandsConfig) (commands, error) {
	var out commands
	for _, pair := range []struct {
		dst   *Command
		src   config.CommandConfig
		field string
	}{
		{&out.build, c.Build, "commands.build"},
		{&out.deploy, c.Deploy, "commands.deploy"},
		{&out.publish, c.Publish, "commands.publish"},
		{&out.rollback, c.Rollback, "commands.rollback"},
	} {
		cmd, err := CommandFromConfig(pair.src, c.Env)
		if err != nil {
			return commands{}, errors.NewConfigurationError("invalid command", err).WithField(pair.field)
		}
		*pair.dst = cmd
	}
	return out, nil
}

// project carries what the step bodies of one project need.
type project struct {
	run      *Run
	name     string
	dir      string
	versions *version.Map
	target   version.ProjectVersion
	updater  *descriptor.TreeUpdater
	commands commands
	log      *logging.Logger

	// bumped is set once the tree went back to snapshots.
	bumped bool
}

func (p *project) steps() []step.Step {
	return []step.Step{
		step.NewAtomic(StepUpdateVersions, "uv", "Update descriptor versions from the release train", p.updateVersions, step.Critical()),
		step.NewAtomic(StepBuild, "b", "Build the project", p.build, step.Critical()),
		step.NewAtomic(StepCommit, "c", "Commit and tag the release", p.commit, step.Critical()),
		step.NewAtomic(StepDeploy, "d", "Deploy the artifacts", p.deploy, step.Critical()),
		step.NewAtomic(StepPublishDocs, "pd", "Publish the documentation", p.publishDocs),
		step.NewComposite(StepRollback, "r", "Go back to snapshots", []step.Step{
			step.NewAtomic(StepBumpSnapshot, "bs", "Bump versions to the next snapshot", p.bumpSnapshot, step.Critical()),
			step.NewAtomic(StepCommitSnapshot, "cs", "Commit the snapshot versions", p.commitSnapshot),
			step.NewAtomic(StepRollbackBuild, "rb", "Build the snapshot", p.rollbackBuild),
		}),
		step.NewAtomic(StepPush, "p", "Push commits and tags", p.push, step.Critical()),
		step.NewAtomic(StepCloseMilestone, "m", "Close the release milestone", p.closeMilestone),
	}
}

func (p *project) dryRun(what string) error {
	if !p.run.Options.DryRun {
		return nil
	}
	p.log.Info("dry run, not "+what, "version", p.target.Version)
	return errors.Wrap(step.ErrSkip, "dry run")
}

func (p *project) runCommand(ctx context.Context, what string, cmd Command) error {
	if cmd.IsZero() {
		return errors.Wrapf(step.ErrSkip, "no %s command configured", what)
	}
	if _, err := p.run.Commands.Run(ctx, p.dir, cmd); err != nil {
		return errors.Wrapf(err, "%s", what)
	}
	return nil
}

func (p *project) updateVersions(ctx context.Context) error {
	res, err := p.updater.Update(ctx, p.dir, p.versions, p.target)
	p.run.Projects.Invalidate(p.dir)
	if err != nil {
		return err
	}
	if res.Skipped {
		return step.ErrSkip
	}
	p.log.Info("descriptors updated", "version", res.Project.Version,
		"descriptors", len(res.Files), "written", res.Written())
	return nil
}

func (p *project) build(ctx context.Context) error {
	return p.runCommand(ctx, "build", p.commands.build)
}

func (p *project) commit(ctx context.Context) error {
	tag := ""
	if !p.target.IsSnapshot() {
		tag = "v" + p.target.Version
	}
	return p.run.Collaborators.Commit(ctx, p.dir, "Update SNAPSHOT to "+p.target.Version, tag)
}

func (p *project) deploy(ctx context.Context) error {
	if err := p.dryRun("deploying"); err != nil {
		return err
	}
	return p.runCommand(ctx, "deploy", p.commands.deploy)
}

func (p *project) publishDocs(ctx context.Context) error {
	if err := p.dryRun("publishing docs"); err != nil {
		return err
	}
	return p.runCommand(ctx, "publish", p.commands.publish)
}

func (p *project) bumpSnapshot(ctx context.Context) error {
	if p.target.IsSnapshot() {
		return errors.Wrap(step.ErrSkip, "already a snapshot")
	}
	snapshot := version.NewProjectVersion(p.target.ProjectName, p.target.PostReleaseSnapshotVersion())
	versions := p.versions.Clone()
	versions.Add(snapshot.ProjectName, snapshot.Version)
	res, err := p.updater.Update(ctx, p.dir, versions, snapshot)
	p.run.Projects.Invalidate(p.dir)
	if err != nil {
		return err
	}
	if res.Skipped {
		return step.ErrSkip
	}
	p.bumped = true
	p.log.Info("back to snapshots", "version", snapshot.Version, "written", res.Written())
	return nil
}

func (p *project) commitSnapshot(ctx context.Context) error {
	if !p.bumped {
		return step.ErrSkip
	}
	return p.run.Collaborators.Commit(ctx, p.dir, "Going back to snapshots", "")
}

func (p *project) rollbackBuild(ctx context.Context) error {
	if !p.bumped {
		return step.ErrSkip
	}
	return p.runCommand(ctx, "rollback build", p.commands.rollback)
}

func (p *project) push(ctx context.Context) error {
	if err := p.dryRun("pushing"); err != nil {
		return err
	}
	return p.run.Collaborators.Push(ctx, p.dir)
}

func (p *project) closeMilestone(ctx context.Context) error {
	if err := p.dryRun("closing the milestone"); err != nil {
		return err
	}
	if p.target.IsSnapshot() {
		return errors.Wrap(step.ErrSkip, "no milestone for snapshots")
	}
	return p.run.Collaborators.CloseMilestone(ctx, p.name, p.target.Version)
}

// train carries what the post-release steps of the train need.
type train struct {
	run      *Run
	versions *version.Map
	result   *scheduler.TrainResult
}

func (t *train) steps() []step.Step {
	post := step.WithModes(step.ModeTrainPostRelease)
	return []step.Step{
		step.NewAtomic(StepUpdateTemplates, "ut", "Publish the released train versions", t.updateTemplates, post),
		step.NewAtomic(StepNotify, "n", "Announce the release", t.notify, post),
	}
}

func (t *train) updateTemplates(ctx context.Context) error {
	if t.run.Options.DryRun {
		t.run.Logger.Info("dry run, not publishing train versions")
		return errors.Wrap(step.ErrSkip, "dry run")
	}
	return t.run.Collaborators.PublishTemplates(ctx, t.versions)
}

func (t *train) notify(context.Context) error {
	released := 0
	for _, pr := range t.result.Projects {
		if !pr.Aborted && len(pr.Verdict.Results()) > 0 {
			released++
		}
	}
	trainVersion, _ := t.versions.Version(t.run.Config.Train.TrainName)
	t.run.Logger.Info(fmt.Sprintf("release train %s released", t.run.Config.Train.TrainName),
		"version", trainVersion, "projects", released, "status", t.result.Status().String())
	return nil
}

// Catalog returns every release step in order: the project steps followed
// by the train post-release steps.
func Catalog() []step.Step {
	return append((&project{}).steps(), (&train{}).steps()...)
}

// selectSteps applies the run's selection to the catalog bound to p and t
// and splits the result into project and train steps. A nil p or t binds
// placeholder bodies that are only used for selection.
func (r *Run) selectSteps(p *project, t *train) (projectSteps, trainSteps []step.Step, err error) {
	if p == nil {
		p = &project{}
	}
	if t == nil {
		t = &train{}
	}
	selected, err := step.Select(append(p.steps(), t.steps()...), r.Options.Selection())
	if err != nil {
		return nil, nil, err
	}
	for _, s := range selected {
		if s.Supports(step.ModeProject) {
			projectSteps = append(projectSteps, s)
		} else {
			trainSteps = append(trainSteps, s)
		}
	}
	return projectSteps, trainSteps, nil
}
