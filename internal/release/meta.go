package release

import (
	"context"
	"time"

	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/flow"
	"github.com/Iron-Ham/releasetrain/internal/scheduler"
	"github.com/Iron-Ham/releasetrain/internal/step"
	"github.com/Iron-Ham/releasetrain/internal/verdict"
	"github.com/Iron-Ham/releasetrain/internal/version"
)

// MetaRelease releases every train project group by group and then runs
// the train's post-release steps. The error is only set when the release
// could not start.
func (r *Run) MetaRelease(ctx context.Context) (scheduler.TrainResult, error) {
	versions, err := r.VersionMap(ctx)
	if err != nil {
		return scheduler.TrainResult{}, err
	}
	projects := r.Options.ReleaseProjects()
	if len(projects) == 0 {
		return scheduler.TrainResult{}, errors.NewConfigurationError("no projects to release", errors.ErrInvalidInput).
			WithField("release.projects")
	}
	projectSteps, _, err := r.selectSteps(nil, nil)
	if err != nil {
		return scheduler.TrainResult{}, err
	}

	groups := BuildGroups(projects, r.Options.Groups)
	r.Logger.Info("meta release started", "groups", len(groups), "projects", len(projects))

	sched := scheduler.Scheduler{
		Parallelism:  r.Options.Threads,
		GroupTimeout: r.Options.GroupTimeout,
		Logger:       r.Logger,
		Bus:          r.Bus,
		Steps:        projectSteps,
	}
	res := sched.Run(ctx, groups, func(ctx context.Context, name string) flow.ProjectResult {
		return r.releaseNamed(ctx, name, versions)
	})

	switch {
	case res.AbortedAll || ctx.Err() != nil:
		r.Logger.Info("post-release steps not run", "aborted_all", res.AbortedAll)
		return res, nil
	case res.Status() == verdict.Failure:
		r.Logger.Warn("release train failed, post-release steps not run")
		return res, nil
	}

	t := &train{run: r, versions: versions, result: &res}
	_, post, _ := r.selectSteps(nil, t)
	if len(post) == 0 {
		return res, nil
	}
	runner := flow.Runner{Decisions: r.Decisions, Bus: r.Bus, Logger: r.Logger, Mode: step.ModeTrainPostRelease}
	pr := runner.Run(ctx, r.Config.Train.TrainName, post)
	res.Projects = append(res.Projects, pr)
	res.Verdict = res.Verdict.Merge(pr.Verdict)
	res.AbortedAll = pr.AbortAll
	return res, nil
}

// releaseNamed clones the named project and releases it. Preparation
// failures are reported in the returned result.
func (r *Run) releaseNamed(ctx context.Context, name string, versions *version.Map) flow.ProjectResult {
	started := time.Now()
	dir, err := r.Collaborators.CloneProject(ctx, name)
	if err != nil {
		return r.failedResult(name, err, started)
	}
	res, err := r.releaseProject(ctx, name, dir, versions)
	if err != nil {
		return r.failedResult(name, err, started)
	}
	return res
}
