// Package scheduler runs a release train group by group.
//
// Groups run strictly in sequence. The projects of one group run
// concurrently, bounded by Parallelism, until they all finish or the
// group's timeout expires. Projects still running at expiry are recorded as
// failed and left to finish in the background; the next group starts
// immediately.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Iron-Ham/releasetrain/internal/decision"
	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/event"
	"github.com/Iron-Ham/releasetrain/internal/flow"
	"github.com/Iron-Ham/releasetrain/internal/logging"
	"github.com/Iron-Ham/releasetrain/internal/step"
	"github.com/Iron-Ham/releasetrain/internal/verdict"
)

// DefaultParallelism is used when Scheduler.Parallelism is not positive.
const DefaultParallelism = 4

// TimeoutStep is the step name under which a group timeout is recorded.
const TimeoutStep = "group-timeout"

// ProjectFunc releases one project. It must honour ctx for cancellation of
// the whole run; group timeouts only reach it as a prompt bound.
type ProjectFunc func(ctx context.Context, project string) flow.ProjectResult

// TrainResult is the merged outcome of all groups.
type TrainResult struct {
	Verdict verdict.Verdict
	// Projects holds one result per scheduled project, in group order.
	Projects []flow.ProjectResult
	// TimedOut lists projects that were still outstanding when their
	// group's timeout expired.
	TimedOut []string
	// AbortedAll is set when a project's flow asked to quit the release.
	AbortedAll bool
}

// Status returns the overall train status.
func (r TrainResult) Status() verdict.Outcome {
	return r.Verdict.Status()
}

// Scheduler runs release groups.
type Scheduler struct {
	Parallelism int
	// GroupTimeout bounds each group. Zero means no timeout.
	GroupTimeout time.Duration
	Logger       *logging.Logger
	Bus          *event.Bus
	// Steps are recorded as NOT_RUN for projects that never start.
	Steps []step.Step
}

// Run releases groups in order with fn. A group that times out does not
// prevent later groups from running; a quit decision does.
func (s *Scheduler) Run(ctx context.Context, groups [][]string, fn ProjectFunc) TrainResult {
	log := logging.OrNop(s.Logger)
	var res TrainResult
	var abortAll atomic.Bool

	for i, projects := range groups {
		group := i + 1
		if abortAll.Load() || ctx.Err() != nil {
			log.WithGroup(group).Info("release group not started", "projects", projects,
				"abort_all", abortAll.Load())
			for _, p := range projects {
				res.Projects = append(res.Projects, s.notStarted(p))
			}
			continue
		}

		results, timedOut := s.runGroup(ctx, group, projects, fn, &abortAll)
		for _, pr := range results {
			res.Projects = append(res.Projects, pr)
			res.Verdict = res.Verdict.Merge(pr.Verdict)
		}
		res.TimedOut = append(res.TimedOut, timedOut...)
	}

	if err := ctx.Err(); err != nil {
		res.Verdict.Add(errors.Join(errors.ErrCanceled, err))
	}
	res.AbortedAll = abortAll.Load()
	log.Info("release train finished", "status", res.Status().String(),
		"projects", len(res.Projects), "timed_out", len(res.TimedOut), "aborted_all", res.AbortedAll)
	return res
}

type outcome struct {
	index  int
	result flow.ProjectResult
}

func (s *Scheduler) parallelism() int64 {
	if s.Parallelism <= 0 {
		return DefaultParallelism
	}
	return int64(s.Parallelism)
}

// runGroup releases one group and returns the results in input order plus
// the projects that were still outstanding when the timeout expired.
func (s *Scheduler) runGroup(ctx context.Context, group int, projects []string, fn ProjectFunc, abortAll *atomic.Bool) ([]flow.ProjectResult, []string) {
	log := logging.OrNop(s.Logger).WithGroup(group)
	start := time.Now()
	log.Info("release group started", "projects", projects)
	s.Bus.Publish(event.NewGroupStartedEvent(group, projects))

	// waitCtx bounds waiting for slots and results. Project bodies get ctx
	// so that a timeout does not kill them mid-step; only their prompts are
	// bounded by the group timeout.
	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	projectCtx := ctx
	if s.GroupTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, s.GroupTimeout)
		projectCtx = decision.WithPromptBound(ctx, waitCtx)
	}
	defer cancel()

	sem := semaphore.NewWeighted(s.parallelism())
	// Late results land in the buffer and are dropped.
	done := make(chan outcome, len(projects))
	var g errgroup.Group
	for i, p := range projects {
		g.Go(func() error {
			if err := sem.Acquire(waitCtx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			if abortAll.Load() {
				done <- outcome{index: i, result: s.notStarted(p)}
				return nil
			}
			res, err := runProject(projectCtx, p, fn)
			if res.AbortAll {
				abortAll.Store(true)
			}
			done <- outcome{index: i, result: res}
			return err
		})
	}
	go func() {
		if err := g.Wait(); err != nil {
			log.Error("project task failed", "error", err)
		}
	}()

	results := make([]flow.ProjectResult, len(projects))
	received := make([]bool, len(projects))
collect:
	for range projects {
		select {
		case o := <-done:
			results[o.index] = o.result
			received[o.index] = true
		case <-waitCtx.Done():
			break collect
		}
	}

	var timedOut []string
	for i, p := range projects {
		if received[i] {
			continue
		}
		timedOut = append(timedOut, p)
		results[i] = s.timedOutResult(group, p, ctx.Err())
	}
	if len(timedOut) > 0 && ctx.Err() == nil {
		log.Warn("release group timed out, outstanding projects keep running in the background",
			"timeout", s.GroupTimeout.String(), "outstanding", timedOut)
		s.Bus.Publish(event.NewGroupTimedOutEvent(group, s.GroupTimeout, timedOut))
	}

	groupVerdict := verdict.Verdict{}
	for _, r := range results {
		groupVerdict = groupVerdict.Merge(r.Verdict)
	}
	elapsed := time.Since(start)
	log.Info("release group finished", "status", groupVerdict.Status().String(), "duration", elapsed.String())
	s.Bus.Publish(event.NewGroupFinishedEvent(group, groupVerdict.Status().String(), elapsed))
	return results, timedOut
}

// notStarted is the result of a project skipped after a quit decision or a
// canceled release.
func (s *Scheduler) notStarted(project string) flow.ProjectResult {
	res := flow.ProjectResult{Project: project, Aborted: true, States: make(map[string]verdict.State, len(s.Steps))}
	for _, st := range s.Steps {
		res.States[st.Name] = verdict.NotRun
		res.Verdict.Record(verdict.StepResult{
			Project:     project,
			Step:        st.Name,
			Description: st.Description,
			State:       verdict.NotRun,
			Outcome:     verdict.Skipped,
		})
	}
	return res
}

func (s *Scheduler) timedOutResult(group int, project string, cause error) flow.ProjectResult {
	var err error
	if cause != nil {
		err = errors.NewStepError("release canceled before project finished", errors.Join(errors.ErrCanceled, cause)).
			WithProject(project).WithStep(TimeoutStep)
	} else {
		err = errors.NewStepError("project still running when its group timed out",
			errors.NewTimeoutError(fmt.Sprintf("release group %d", group), s.GroupTimeout)).
			WithProject(project).WithStep(TimeoutStep)
	}
	var v verdict.Verdict
	v.Record(verdict.StepResult{
		Project: project,
		Step:    TimeoutStep,
		State:   verdict.Failed,
		Outcome: verdict.Failure,
		Err:     err,
	})
	return flow.ProjectResult{
		Project: project,
		Verdict: v,
		States:  map[string]verdict.State{TimeoutStep: verdict.Failed},
	}
}

// runProject calls fn, converting a panic into a failed project result so
// siblings keep running.
func runProject(ctx context.Context, project string, fn ProjectFunc) (res flow.ProjectResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("project %s panicked: %v", project, rec)
			res = flow.ProjectResult{Project: project, Verdict: verdict.New(
				errors.NewStepError("project release panicked", err).WithProject(project))}
		}
	}()
	return fn(ctx, project), nil
}
