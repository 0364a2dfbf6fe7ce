// Package verdict classifies step outcomes and folds them into build verdicts.
package verdict

import (
	"slices"
	"sort"
	"time"

	"github.com/Iron-Ham/releasetrain/internal/errors"
)

// Outcome is the result of running one step against one project. It is
// also the overall status of a Verdict, which is never Skipped.
type Outcome int

const (
	Success Outcome = iota
	Unstable
	Failure
	Skipped
)

// String returns the outcome name as shown in reports.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case Unstable:
		return "UNSTABLE"
	case Failure:
		return "FAILURE"
	case Skipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the outcome name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// State is the lifecycle position of a step inside a project flow.
type State int

const (
	Pending State = iota
	Deciding
	Running
	Succeeded
	StateUnstable
	Failed
	StateSkipped
	Aborted
	NotRun
)

var stateNames = map[State]string{
	Pending:       "PENDING",
	Deciding:      "DECIDING",
	Running:       "RUNNING",
	Succeeded:     "SUCCEEDED",
	StateUnstable: "UNSTABLE",
	Failed:        "FAILED",
	StateSkipped:  "SKIPPED",
	Aborted:       "ABORTED",
	NotRun:        "NOT_RUN",
}

// String returns the state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition happens from s.
func (s State) Terminal() bool {
	switch s {
	case Succeeded, StateUnstable, Failed, StateSkipped, Aborted, NotRun:
		return true
	}
	return false
}

// StateFor maps a finished step's outcome to its terminal state.
func StateFor(o Outcome) State {
	switch o {
	case Success:
		return Succeeded
	case Unstable:
		return StateUnstable
	case Failure:
		return Failed
	default:
		return StateSkipped
	}
}

// StepResult records what happened to one step of one project.
type StepResult struct {
	Project     string        `json:"project"`
	Step        string        `json:"step"`
	Description string        `json:"description,omitempty"`
	State       State         `json:"state"`
	Outcome     Outcome       `json:"outcome"`
	Err         error         `json:"-"`
	Duration    time.Duration `json:"duration"`
}

// Ran reports whether the step body was executed.
func (r StepResult) Ran() bool {
	switch r.State {
	case Succeeded, StateUnstable, Failed:
		return true
	}
	return false
}

// Classify derives the outcome of a finished step from its error.
// Unstable-tagged errors are Unstable, any other error is Failure.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errors.IsUnstable(err):
		return Unstable
	default:
		return Failure
	}
}

// Verdict accumulates step results and the errors they carried. The zero
// value is an empty, successful verdict. A Verdict is not safe for
// concurrent mutation; concurrent producers merge finished verdicts.
type Verdict struct {
	results []StepResult
	errs    []error
}

// New returns a verdict holding errs.
func New(errs ...error) Verdict {
	var v Verdict
	for _, err := range errs {
		v.Add(err)
	}
	return v
}

// Add accumulates err. Nil errors are ignored.
func (v *Verdict) Add(err error) {
	if err != nil {
		v.errs = append(v.errs, err)
	}
}

// Record appends a step result and accumulates its error.
func (v *Verdict) Record(r StepResult) {
	v.results = append(v.results, r)
	v.Add(r.Err)
}

// Merge returns the concatenation of v and other. Neither is modified.
func (v Verdict) Merge(other Verdict) Verdict {
	return Verdict{
		results: slices.Concat(v.results, other.results),
		errs:    slices.Concat(v.errs, other.errs),
	}
}

// MergeAll merges verdicts in order.
func MergeAll(verdicts ...Verdict) Verdict {
	var out Verdict
	for _, v := range verdicts {
		out = out.Merge(v)
	}
	return out
}

// Status is Failure if any accumulated error is not tagged unstable,
// Unstable if every accumulated error is, and Success when there are none.
func (v Verdict) Status() Outcome {
	if len(v.errs) == 0 {
		return Success
	}
	for _, err := range v.errs {
		if !errors.IsUnstable(err) {
			return Failure
		}
	}
	return Unstable
}

// Errors returns a copy of the accumulated errors.
func (v Verdict) Errors() []error {
	return slices.Clone(v.errs)
}

// Err joins the accumulated errors, or returns nil on success.
func (v Verdict) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return errors.Join(v.errs...)
}

// Results returns a copy of the recorded step results.
func (v Verdict) Results() []StepResult {
	return slices.Clone(v.results)
}

// ResultsFor returns the results recorded for project.
func (v Verdict) ResultsFor(project string) []StepResult {
	var out []StepResult
	for _, r := range v.results {
		if r.Project == project {
			out = append(out, r)
		}
	}
	return out
}

// Projects returns the distinct project names with recorded results, sorted.
func (v Verdict) Projects() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range v.results {
		if _, ok := seen[r.Project]; ok {
			continue
		}
		seen[r.Project] = struct{}{}
		out = append(out, r.Project)
	}
	sort.Strings(out)
	return out
}

// IsEmpty reports whether nothing was recorded.
func (v Verdict) IsEmpty() bool {
	return len(v.results) == 0 && len(v.errs) == 0
}
