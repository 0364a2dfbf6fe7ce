package flow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/releasetrain/internal/decision"
	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/event"
	"github.com/Iron-Ham/releasetrain/internal/step"
	"github.com/Iron-Ham/releasetrain/internal/verdict"
)

// tracker records which step bodies ran, in order.
type tracker struct {
	mu  sync.Mutex
	ran []string
}

func (tr *tracker) step(name string, err error, opts ...step.Option) step.Step {
	return step.NewAtomic(name, "", name+" description", func(context.Context) error {
		tr.mu.Lock()
		tr.ran = append(tr.ran, name)
		tr.mu.Unlock()
		return err
	}, opts...)
}

func (tr *tracker) names() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.ran...)
}

func TestRun_AllSucceed(t *testing.T) {
	tr := &tracker{}
	steps := []step.Step{tr.step("build", nil), tr.step("deploy", nil), tr.step("push", nil)}

	res := (&Runner{}).Run(context.Background(), "spring-cloud-sleuth", steps)

	assert.Equal(t, []string{"build", "deploy", "push"}, tr.names())
	assert.Equal(t, verdict.Success, res.Status())
	assert.False(t, res.Aborted)
	for _, s := range steps {
		assert.Equal(t, verdict.Succeeded, res.States[s.Name])
	}
	assert.Len(t, res.Verdict.Results(), 3)
}

func TestRun_CriticalFailureStopsFlow(t *testing.T) {
	tr := &tracker{}
	steps := []step.Step{
		tr.step("build", errors.New("compilation failed"), step.Critical()),
		tr.step("deploy", nil),
		tr.step("push", nil),
	}

	res := (&Runner{}).Run(context.Background(), "p", steps)

	assert.Equal(t, []string{"build"}, tr.names())
	assert.Equal(t, verdict.Failure, res.Status())
	assert.Equal(t, verdict.Failed, res.States["build"])
	assert.Equal(t, verdict.NotRun, res.States["deploy"])
	assert.Equal(t, verdict.NotRun, res.States["push"])

	errs := res.Verdict.Errors()
	require.Len(t, errs, 1)
	var stepErr *errors.StepError
	require.True(t, errors.As(errs[0], &stepErr))
	assert.Equal(t, "p", stepErr.Project)
	assert.Equal(t, "build", stepErr.Step)
	assert.Equal(t, "build description", stepErr.Description)
	assert.False(t, stepErr.Unstable())
}

func TestRun_NonCriticalFailureIsUnstable(t *testing.T) {
	tr := &tracker{}
	steps := []step.Step{
		tr.step("build", nil, step.Critical()),
		tr.step("close-milestone", errors.New("tracker unreachable")),
		tr.step("push", nil),
	}

	res := (&Runner{}).Run(context.Background(), "p", steps)

	assert.Equal(t, []string{"build", "close-milestone", "push"}, tr.names())
	assert.Equal(t, verdict.Unstable, res.Status())
	assert.Equal(t, verdict.StateUnstable, res.States["close-milestone"])
	assert.Equal(t, verdict.Succeeded, res.States["push"])
}

func TestRun_CriticalStepWithUnstableErrorContinues(t *testing.T) {
	tr := &tracker{}
	steps := []step.Step{
		tr.step("deploy", errors.MarkUnstable(errors.New("mirror lagging")), step.Critical()),
		tr.step("push", nil),
	}

	res := (&Runner{}).Run(context.Background(), "p", steps)

	assert.Equal(t, []string{"deploy", "push"}, tr.names())
	assert.Equal(t, verdict.Unstable, res.Status())
}

func TestRun_Decisions(t *testing.T) {
	tests := []struct {
		name         string
		answers      map[string]decision.Decision
		wantRan      []string
		wantStates   map[string]verdict.State
		wantAborted  bool
		wantAbortAll bool
	}{
		{
			name:       "skip records skipped and moves on",
			answers:    map[string]decision.Decision{"deploy": decision.Skip},
			wantRan:    []string{"build", "push"},
			wantStates: map[string]verdict.State{"build": verdict.Succeeded, "deploy": verdict.StateSkipped, "push": verdict.Succeeded},
		},
		{
			name:        "abort leaves remaining steps not run",
			answers:     map[string]decision.Decision{"deploy": decision.Abort},
			wantRan:     []string{"build"},
			wantStates:  map[string]verdict.State{"build": verdict.Succeeded, "deploy": verdict.Aborted, "push": verdict.NotRun},
			wantAborted: true,
		},
		{
			name:         "quit aborts the whole release",
			answers:      map[string]decision.Decision{"build": decision.AbortAll},
			wantRan:      nil,
			wantStates:   map[string]verdict.State{"build": verdict.Aborted, "deploy": verdict.NotRun, "push": verdict.NotRun},
			wantAborted:  true,
			wantAbortAll: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &tracker{}
			steps := []step.Step{tr.step("build", nil), tr.step("deploy", nil), tr.step("push", nil)}
			runner := &Runner{Decisions: decision.NewScripted(decision.Continue, tt.answers)}

			res := runner.Run(context.Background(), "p", steps)

			assert.Equal(t, tt.wantRan, tr.names())
			assert.Equal(t, tt.wantStates, res.States)
			assert.Equal(t, tt.wantAborted, res.Aborted)
			assert.Equal(t, tt.wantAbortAll, res.AbortAll)
			// Aborting is not a failure.
			assert.Equal(t, verdict.Success, res.Status())
		})
	}
}

func TestRun_ModeMismatchSkipsWithoutAsking(t *testing.T) {
	tr := &tracker{}
	steps := []step.Step{
		tr.step("build", nil),
		tr.step("update-templates", nil, step.WithModes(step.ModeTrainPostRelease)),
	}
	decisions := decision.NewScripted(decision.Continue, nil)

	res := (&Runner{Decisions: decisions}).Run(context.Background(), "p", steps)

	assert.Equal(t, []string{"build"}, tr.names())
	assert.Equal(t, []string{"p/build"}, decisions.Asked())
	assert.Equal(t, verdict.StateSkipped, res.States["update-templates"])

	post := (&Runner{Decisions: decisions, Mode: step.ModeTrainPostRelease}).Run(context.Background(), "train", steps)
	assert.Equal(t, verdict.StateSkipped, post.States["build"])
	assert.Equal(t, verdict.Succeeded, post.States["update-templates"])
}

func TestRun_CompositeIsGatedOnce(t *testing.T) {
	tr := &tracker{}
	rollback := step.NewComposite("rollback", "rb", "roll back to snapshot", []step.Step{
		tr.step("bump-snapshot", nil),
		tr.step("commit-snapshot", nil),
	})
	decisions := decision.NewScripted(decision.Continue, nil)

	res := (&Runner{Decisions: decisions}).Run(context.Background(), "p", []step.Step{rollback})

	assert.Equal(t, []string{"p/rollback"}, decisions.Asked())
	assert.Equal(t, []string{"bump-snapshot", "commit-snapshot"}, tr.names())
	assert.Equal(t, verdict.Succeeded, res.States["rollback"])
}

func TestRun_StepSkippingItself(t *testing.T) {
	steps := []step.Step{
		step.NewAtomic("deploy", "", "deploy", func(context.Context) error { return step.ErrSkip }, step.Critical()),
	}

	res := (&Runner{}).Run(context.Background(), "p", steps)

	assert.Equal(t, verdict.StateSkipped, res.States["deploy"])
	assert.Equal(t, verdict.Success, res.Status())
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	steps := []step.Step{
		step.NewAtomic("build", "", "build", func(context.Context) error { panic("boom") }, step.Critical()),
	}

	res := (&Runner{}).Run(context.Background(), "p", steps)

	assert.Equal(t, verdict.Failure, res.Status())
	require.Len(t, res.Verdict.Errors(), 1)
	assert.Contains(t, res.Verdict.Errors()[0].Error(), "boom")
}

func TestRun_CanceledContext(t *testing.T) {
	tr := &tracker{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := (&Runner{}).Run(ctx, "p", []step.Step{tr.step("build", nil), tr.step("push", nil)})

	assert.Empty(t, tr.names())
	assert.Equal(t, verdict.Failure, res.Status())
	assert.ErrorIs(t, res.Verdict.Err(), errors.ErrCanceled)
	assert.Equal(t, verdict.NotRun, res.States["push"])
}

func TestRun_PublishesEvents(t *testing.T) {
	bus := event.NewBus(nil)
	var mu sync.Mutex
	var types []string
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		types = append(types, e.EventType())
		mu.Unlock()
	})
	tr := &tracker{}
	runner := &Runner{Bus: bus, Decisions: decision.NewScripted(decision.Continue, map[string]decision.Decision{"push": decision.Skip})}

	runner.Run(context.Background(), "p", []step.Step{tr.step("build", nil), tr.step("push", nil)})

	assert.Equal(t, []string{
		event.TypeStepStarted,
		event.TypeStepFinished,
		event.TypeStepFinished,
		event.TypeProjectFinished,
	}, types)
}
