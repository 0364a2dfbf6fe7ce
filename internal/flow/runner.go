// Package flow runs the ordered release steps of one project.
//
// Each step moves from PENDING through DECIDING to either SKIPPED or
// RUNNING, and from RUNNING to SUCCEEDED, UNSTABLE or FAILED. An abort
// leaves the remaining steps NOT_RUN. The recorded outcomes are folded into
// one verdict per project.
package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/releasetrain/internal/decision"
	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/event"
	"github.com/Iron-Ham/releasetrain/internal/logging"
	"github.com/Iron-Ham/releasetrain/internal/step"
	"github.com/Iron-Ham/releasetrain/internal/verdict"
)

// ProjectResult is the outcome of one project's flow.
type ProjectResult struct {
	Project string
	Verdict verdict.Verdict
	// Aborted is set when a decision stopped the flow early.
	Aborted bool
	// AbortAll is set when the operator quit the whole release.
	AbortAll bool
	// States holds the terminal state of every step, keyed by step name.
	States   map[string]verdict.State
	Duration time.Duration
}

// Status returns the project's verdict status.
func (r ProjectResult) Status() verdict.Outcome {
	return r.Verdict.Status()
}

// Runner executes steps for a project. The zero value runs every step of
// ModeProject without asking.
type Runner struct {
	Decisions decision.Port
	Bus       *event.Bus
	Logger    *logging.Logger
	// Mode selects the steps that apply. Others are recorded SKIPPED
	// without consulting Decisions.
	Mode step.Mode
}

// Run executes steps in order for project. It never returns early on a
// step error: failures are recorded in the result's verdict.
func (r *Runner) Run(ctx context.Context, project string, steps []step.Step) ProjectResult {
	start := time.Now()
	decisions := r.Decisions
	if decisions == nil {
		decisions = decision.NonInteractive{}
	}
	mode := r.Mode
	if mode == 0 {
		mode = step.ModeProject
	}
	log := logging.OrNop(r.Logger).WithProject(project)

	res := ProjectResult{Project: project, States: make(map[string]verdict.State, len(steps))}
	record := func(s step.Step, state verdict.State, outcome verdict.Outcome, err error, d time.Duration) {
		res.States[s.Name] = state
		res.Verdict.Record(verdict.StepResult{
			Project:     project,
			Step:        s.Name,
			Description: s.Description,
			State:       state,
			Outcome:     outcome,
			Err:         err,
			Duration:    d,
		})
		r.Bus.Publish(event.NewStepFinishedEvent(project, s.Name, state.String(), outcome.String(), d, err))
	}
	notRun := func(rest []step.Step) {
		for _, s := range rest {
			record(s, verdict.NotRun, verdict.Skipped, nil, 0)
		}
	}

	for i, s := range steps {
		stepLog := log.WithStep(s.Name)

		if !s.Supports(mode) {
			stepLog.Debug("step does not apply to this flow", "mode", mode.String())
			record(s, verdict.StateSkipped, verdict.Skipped, nil, 0)
			continue
		}

		if err := ctx.Err(); err != nil {
			stepLog.Warn("release canceled, remaining steps not run")
			res.Verdict.Add(errors.NewStepError("release canceled", errors.Join(errors.ErrCanceled, err)).
				WithProject(project).WithStep(s.Name).WithDescription(s.Description))
			notRun(steps[i:])
			break
		}

		d, err := decisions.Before(ctx, project, s)
		if err != nil {
			stepLog.Warn("decision failed", "decision", d.String(), "error", err)
		}

		switch d {
		case decision.Skip:
			stepLog.Info("step skipped by decision")
			record(s, verdict.StateSkipped, verdict.Skipped, nil, 0)
			continue
		case decision.Abort, decision.AbortAll:
			res.Aborted = true
			res.AbortAll = d == decision.AbortAll
			stepLog.Info("project flow aborted", "decision", d.String())
			record(s, verdict.Aborted, verdict.Skipped, nil, 0)
			notRun(steps[i+1:])
			return r.finish(log, res, start)
		}

		state, outcome, stepErr, elapsed := r.execute(ctx, project, s, stepLog)
		record(s, state, outcome, stepErr, elapsed)
		if outcome == verdict.Failure {
			stepLog.Error("critical step failed, stopping project flow", "error", stepErr)
			notRun(steps[i+1:])
			break
		}
	}

	return r.finish(log, res, start)
}

func (r *Runner) finish(log *logging.Logger, res ProjectResult, start time.Time) ProjectResult {
	res.Duration = time.Since(start)
	status := res.Verdict.Status()
	log.Info("project flow finished", "status", status.String(), "aborted", res.Aborted,
		"duration", res.Duration.String())
	r.Bus.Publish(event.NewProjectFinishedEvent(res.Project, status.String(), res.Aborted, res.AbortAll, res.Duration))
	return res
}

// execute runs one step body and classifies its result. A critical step is
// the only one that can fail the flow; any other error is tagged unstable.
func (r *Runner) execute(ctx context.Context, project string, s step.Step, log *logging.Logger) (verdict.State, verdict.Outcome, error, time.Duration) {
	r.Bus.Publish(event.NewStepStartedEvent(project, s.Name))
	log.Info("running step", "composite", s.IsComposite())

	start := time.Now()
	err := runGuarded(ctx, s)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		log.Info("step succeeded", "duration", elapsed.String())
		return verdict.Succeeded, verdict.Success, nil, elapsed
	case errors.Is(err, step.ErrSkip):
		log.Info("step skipped itself", "reason", err.Error())
		return verdict.StateSkipped, verdict.Skipped, nil, elapsed
	}

	unstable := errors.IsUnstable(err) || !s.Critical
	stepErr := errors.NewStepError(s.Description+" failed", err).
		WithProject(project).
		WithStep(s.Name).
		WithDescription(s.Description).
		WithUnstable(unstable)
	if unstable {
		log.Warn("step failed, continuing", "error", err)
		return verdict.StateUnstable, verdict.Unstable, stepErr, elapsed
	}
	return verdict.Failed, verdict.Failure, stepErr, elapsed
}

// runGuarded turns a panicking step body into an error so that one broken
// step cannot take down sibling projects.
func runGuarded(ctx context.Context, s step.Step) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("step panicked: %v", rec)
		}
	}()
	return s.Execute(ctx)
}
