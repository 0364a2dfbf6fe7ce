package scheduler

import (
	"context"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/releasetrain/internal/decision"
	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/event"
	"github.com/Iron-Ham/releasetrain/internal/flow"
	"github.com/Iron-Ham/releasetrain/internal/step"
	"github.com/Iron-Ham/releasetrain/internal/verdict"
)

// journal records "start:<p>" and "end:<p>" entries in happening order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	j.entries = append(j.entries, entry)
	j.mu.Unlock()
}

func (j *journal) index(entry string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Index(j.entries, entry)
}

func (j *journal) has(entry string) bool {
	return j.index(entry) >= 0
}

func success(project string) flow.ProjectResult {
	return flow.ProjectResult{Project: project}
}

func failure(project string, err error) flow.ProjectResult {
	return flow.ProjectResult{Project: project, Verdict: verdict.New(err)}
}

var trainGroups = [][]string{
	{"spring-cloud-build", "spring-cloud-commons", "spring-cloud-function"},
	{"spring-cloud-sleuth"},
	{"spring-cloud-gateway", "spring-cloud-stream"},
}

func TestRun_GroupsRunInSequence(t *testing.T) {
	j := &journal{}
	s := &Scheduler{Parallelism: 3}

	res := s.Run(context.Background(), trainGroups, func(ctx context.Context, p string) flow.ProjectResult {
		j.add("start:" + p)
		time.Sleep(10 * time.Millisecond)
		j.add("end:" + p)
		return success(p)
	})

	assert.Equal(t, verdict.Success, res.Status())
	require.Len(t, res.Projects, 6)
	for i := 1; i < len(trainGroups); i++ {
		for _, prev := range trainGroups[i-1] {
			for _, next := range trainGroups[i] {
				assert.Less(t, j.index("end:"+prev), j.index("start:"+next),
					"%s must finish before %s starts", prev, next)
			}
		}
	}
	var order []string
	for _, pr := range res.Projects {
		order = append(order, pr.Project)
	}
	assert.Equal(t, slices.Concat(trainGroups...), order)
}

func TestRun_TimeoutInFirstGroupDoesNotStopLaterGroups(t *testing.T) {
	j := &journal{}
	release := make(chan struct{})
	defer close(release)
	bus := event.NewBus(nil)
	var timedOutEvents atomic.Int32
	bus.Subscribe(event.TypeGroupTimedOut, func(e event.Event) {
		timedOutEvents.Add(1)
		assert.Equal(t, 1, e.(event.GroupTimedOutEvent).Group)
	})
	s := &Scheduler{Parallelism: 3, GroupTimeout: 100 * time.Millisecond, Bus: bus}

	res := s.Run(context.Background(), trainGroups, func(ctx context.Context, p string) flow.ProjectResult {
		j.add("start:" + p)
		defer j.add("end:" + p)
		switch p {
		case "spring-cloud-commons":
			<-release
		case "spring-cloud-stream":
			return failure(p, errors.New("deploy failed"))
		case "spring-cloud-gateway":
			return failure(p, errors.MarkUnstable(errors.New("docs not published")))
		}
		return success(p)
	})

	assert.Equal(t, []string{"spring-cloud-commons"}, res.TimedOut)
	assert.Equal(t, int32(1), timedOutEvents.Load())
	assert.True(t, j.has("start:spring-cloud-sleuth"))
	assert.True(t, j.has("start:spring-cloud-stream"))
	assert.False(t, j.has("end:spring-cloud-commons"), "timed out project must not be killed or awaited")
	assert.Less(t, j.index("end:spring-cloud-build"), j.index("start:spring-cloud-sleuth"))

	statuses := map[string]verdict.Outcome{}
	for _, pr := range res.Projects {
		statuses[pr.Project] = pr.Status()
	}
	assert.Equal(t, map[string]verdict.Outcome{
		"spring-cloud-build":    verdict.Success,
		"spring-cloud-commons":  verdict.Failure,
		"spring-cloud-function": verdict.Success,
		"spring-cloud-sleuth":   verdict.Success,
		"spring-cloud-gateway":  verdict.Unstable,
		"spring-cloud-stream":   verdict.Failure,
	}, statuses)
	assert.Equal(t, verdict.Failure, res.Status())
	assert.ErrorIs(t, res.Verdict.Err(), errors.ErrTimeout)
}

func TestRun_ParallelismIsBounded(t *testing.T) {
	var running, peak atomic.Int32
	s := &Scheduler{Parallelism: 2}

	res := s.Run(context.Background(), [][]string{{"a", "b", "c", "d", "e"}}, func(ctx context.Context, p string) flow.ProjectResult {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return success(p)
	})

	assert.Equal(t, verdict.Success, res.Status())
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Len(t, res.Projects, 5)
}

func TestRun_AbortAllStopsLaterGroups(t *testing.T) {
	var called sync.Map
	s := &Scheduler{Parallelism: 1}

	res := s.Run(context.Background(), trainGroups, func(ctx context.Context, p string) flow.ProjectResult {
		called.Store(p, true)
		if p == "spring-cloud-build" {
			return flow.ProjectResult{Project: p, Aborted: true, AbortAll: true}
		}
		return success(p)
	})

	assert.True(t, res.AbortedAll)
	_, sleuthCalled := called.Load("spring-cloud-sleuth")
	assert.False(t, sleuthCalled)
	require.Len(t, res.Projects, 6)
	for _, pr := range res.Projects[1:] {
		_, ran := called.Load(pr.Project)
		assert.Equal(t, !pr.Aborted, ran, pr.Project)
	}
	assert.Equal(t, verdict.Success, res.Status())
}

func TestRun_ProjectsNotStartedListEveryStepAsNotRun(t *testing.T) {
	s := &Scheduler{
		Parallelism: 1,
		Steps: []step.Step{
			{Name: "build", Description: "Build the project"},
			{Name: "deploy", Description: "Deploy the artifacts"},
		},
	}

	res := s.Run(context.Background(), [][]string{{"spring-cloud-build"}, {"spring-cloud-sleuth"}},
		func(ctx context.Context, p string) flow.ProjectResult {
			return flow.ProjectResult{Project: p, Aborted: true, AbortAll: true}
		})

	require.Len(t, res.Projects, 2)
	skipped := res.Projects[1]
	assert.True(t, skipped.Aborted)
	assert.Equal(t, map[string]verdict.State{"build": verdict.NotRun, "deploy": verdict.NotRun}, skipped.States)
	results := skipped.Verdict.Results()
	require.Len(t, results, 2)
	assert.Equal(t, "Deploy the artifacts", results[1].Description)
	assert.False(t, results[1].Ran())
	assert.Equal(t, verdict.Success, skipped.Status())
}

func TestRun_GroupTimeoutReleasesPendingPrompt(t *testing.T) {
	in, answers := io.Pipe()
	defer answers.Close()
	console := decision.NewConsole(in, io.Discard)
	s := &Scheduler{GroupTimeout: 50 * time.Millisecond}

	released := make(chan decision.Decision, 1)
	res := s.Run(context.Background(), [][]string{{"spring-cloud-sleuth"}}, func(ctx context.Context, p string) flow.ProjectResult {
		d, _ := console.Before(ctx, p, step.Step{Name: "deploy"})
		released <- d
		return success(p)
	})

	assert.Equal(t, []string{"spring-cloud-sleuth"}, res.TimedOut)
	select {
	case d := <-released:
		assert.Equal(t, decision.Abort, d)
	case <-time.After(5 * time.Second):
		t.Fatal("prompt of a timed out project kept waiting for input")
	}
}

func TestRun_ProjectFailureDoesNotCancelSiblings(t *testing.T) {
	s := &Scheduler{Parallelism: 3}

	res := s.Run(context.Background(), [][]string{{"a", "b", "c"}}, func(ctx context.Context, p string) flow.ProjectResult {
		if p == "b" {
			panic("collaborator crashed")
		}
		time.Sleep(10 * time.Millisecond)
		assert.NoError(t, ctx.Err())
		return success(p)
	})

	require.Len(t, res.Projects, 3)
	assert.Equal(t, verdict.Success, res.Projects[0].Status())
	assert.Equal(t, verdict.Failure, res.Projects[1].Status())
	assert.Equal(t, verdict.Success, res.Projects[2].Status())
	assert.Empty(t, res.TimedOut)
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	s := &Scheduler{}

	res := s.Run(ctx, trainGroups, func(ctx context.Context, p string) flow.ProjectResult {
		calls.Add(1)
		return success(p)
	})

	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, verdict.Failure, res.Status())
	assert.ErrorIs(t, res.Verdict.Err(), errors.ErrCanceled)
}

func TestRun_EmptyTrain(t *testing.T) {
	res := (&Scheduler{}).Run(context.Background(), nil, func(ctx context.Context, p string) flow.ProjectResult {
		t.Fatal("no project expected")
		return flow.ProjectResult{}
	})
	assert.Equal(t, verdict.Success, res.Status())
	assert.Empty(t, res.Projects)
}
