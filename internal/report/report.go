// Package report renders release verdicts for humans and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/releasetrain/internal/flow"
	"github.com/Iron-Ham/releasetrain/internal/scheduler"
	"github.com/Iron-Ham/releasetrain/internal/verdict"
)

// Step is one step line of a project report.
type Step struct {
	Name     string          `json:"name"`
	State    verdict.State   `json:"state"`
	Outcome  verdict.Outcome `json:"outcome"`
	Ran      bool            `json:"ran"`
	Duration time.Duration   `json:"duration_ns,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Project is the report of one project.
type Project struct {
	Name     string          `json:"name"`
	Status   verdict.Outcome `json:"status"`
	Aborted  bool            `json:"aborted,omitempty"`
	TimedOut bool            `json:"timed_out,omitempty"`
	Steps    []Step          `json:"steps"`
	// Errors not attached to any step, such as a cancellation.
	Errors []string `json:"errors,omitempty"`
}

// Report is the full outcome of a run.
type Report struct {
	RunID      string          `json:"run_id"`
	Status     verdict.Outcome `json:"status"`
	AbortedAll bool            `json:"aborted_all,omitempty"`
	Projects   []Project       `json:"projects"`
	// Errors holds train-level errors not owned by a project.
	Errors []string `json:"errors,omitempty"`
}

// FromProject builds the report of a single project release.
func FromProject(runID string, res flow.ProjectResult) Report {
	return Report{
		RunID:      runID,
		Status:     res.Status(),
		AbortedAll: res.AbortAll,
		Projects:   []Project{projectReport(res, false)},
	}
}

// FromTrain builds the report of a meta-release.
func FromTrain(runID string, res scheduler.TrainResult) Report {
	timedOut := make(map[string]bool, len(res.TimedOut))
	for _, p := range res.TimedOut {
		timedOut[p] = true
	}
	r := Report{RunID: runID, Status: res.Status(), AbortedAll: res.AbortedAll}
	var projectErrs int
	for _, pr := range res.Projects {
		r.Projects = append(r.Projects, projectReport(pr, timedOut[pr.Project]))
		projectErrs += len(pr.Verdict.Errors())
	}
	// Errors beyond the projects' own belong to the train.
	if errs := res.Verdict.Errors(); projectErrs < len(errs) {
		for _, err := range errs[projectErrs:] {
			r.Errors = append(r.Errors, err.Error())
		}
	}
	return r
}

func projectReport(res flow.ProjectResult, timedOut bool) Project {
	p := Project{Name: res.Project, Status: res.Status(), Aborted: res.Aborted, TimedOut: timedOut}
	stepErrs := 0
	for _, sr := range res.Verdict.Results() {
		s := Step{Name: sr.Step, State: sr.State, Outcome: sr.Outcome, Ran: sr.Ran(), Duration: sr.Duration}
		if sr.Err != nil {
			s.Error = sr.Err.Error()
			stepErrs++
		}
		p.Steps = append(p.Steps, s)
	}
	errs := res.Verdict.Errors()
	if stepErrs < len(errs) {
		for _, err := range errs {
			if !ownedByStep(res.Verdict.Results(), err) {
				p.Errors = append(p.Errors, err.Error())
			}
		}
	}
	return p
}

func (p Project) anyRan() bool {
	for _, s := range p.Steps {
		if s.Ran || s.State == verdict.Aborted {
			return true
		}
	}
	return false
}

func ownedByStep(results []verdict.StepResult, err error) bool {
	for _, r := range results {
		if r.Err == err {
			return true
		}
	}
	return false
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

type styles struct {
	title    lipgloss.Style
	project  lipgloss.Style
	stepName lipgloss.Style
	muted    lipgloss.Style
	byState  map[verdict.State]lipgloss.Style
	byStatus map[verdict.Outcome]lipgloss.Style
}

func newStyles(re *lipgloss.Renderer) styles {
	green := re.NewStyle().Foreground(lipgloss.Color("#10B981"))
	amber := re.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	red := re.NewStyle().Foreground(lipgloss.Color("#F87171"))
	muted := re.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	return styles{
		title:    re.NewStyle().Bold(true).Foreground(lipgloss.Color("#A78BFA")),
		project:  re.NewStyle().Bold(true),
		stepName: re.NewStyle().Width(22),
		muted:    muted,
		byState: map[verdict.State]lipgloss.Style{
			verdict.Succeeded:     green,
			verdict.StateUnstable: amber,
			verdict.Failed:        red,
			verdict.StateSkipped:  muted,
			verdict.Aborted:       amber,
			verdict.NotRun:        muted,
		},
		byStatus: map[verdict.Outcome]lipgloss.Style{
			verdict.Success:  green.Bold(true),
			verdict.Unstable: amber.Bold(true),
			verdict.Failure:  red.Bold(true),
		},
	}
}

var stateIcons = map[verdict.State]string{
	verdict.Succeeded:     "✓",
	verdict.StateUnstable: "!",
	verdict.Failed:        "✗",
	verdict.StateSkipped:  "-",
	verdict.Aborted:       "■",
	verdict.NotRun:        "·",
}

// Render writes the human readable report. Colors are used only when w is
// a terminal that supports them.
func Render(w io.Writer, r Report) error {
	st := newStyles(lipgloss.NewRenderer(w))
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", st.title.Render("Release "+r.RunID+":"), st.byStatus[r.Status].Render(r.Status.String()))
	if r.AbortedAll {
		b.WriteString(st.muted.Render("release quit by operator, remaining projects not started") + "\n")
	}
	for _, p := range r.Projects {
		b.WriteString("\n")
		header := st.project.Render(p.Name) + "  " + st.byStatus[p.Status].Render(p.Status.String())
		switch {
		case p.TimedOut:
			header += st.muted.Render("  (timed out, may still be running)")
		case p.Aborted:
			header += st.muted.Render("  (aborted)")
		}
		b.WriteString(header + "\n")
		if p.Aborted && !p.TimedOut && !p.anyRan() {
			b.WriteString("  " + st.muted.Render("not started") + "\n")
		}
		for _, s := range p.Steps {
			style := st.byState[s.State]
			line := fmt.Sprintf("  %s %s%s", style.Render(stateIcons[s.State]), st.stepName.Render(s.Name), style.Render(s.State.String()))
			if s.Ran && s.Duration > 0 {
				line += st.muted.Render("  " + s.Duration.Round(time.Millisecond).String())
			}
			b.WriteString(line + "\n")
			if s.Error != "" {
				b.WriteString("      " + st.muted.Render(s.Error) + "\n")
			}
		}
		for _, e := range p.Errors {
			b.WriteString("  " + st.byState[verdict.Failed].Render("✗ "+e) + "\n")
		}
	}
	for _, e := range r.Errors {
		b.WriteString("\n" + st.byState[verdict.Failed].Render("✗ "+e) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
