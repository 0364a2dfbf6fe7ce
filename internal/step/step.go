// Package step defines release steps and the selection of which steps run.
//
// A Step is a tagged variant: an atomic step carries a body, a composite
// step carries an ordered list of sub-steps that always run together.
package step

import (
	"context"

	"github.com/Iron-Ham/releasetrain/internal/errors"
)

// ErrSkip is returned by a step body that decided not to do anything, for
// example a deploy in dry-run mode. The step is recorded as skipped.
var ErrSkip = errors.New("step skipped")

// Func is the body of an atomic step.
type Func func(ctx context.Context) error

// Kind tells atomic and composite steps apart.
type Kind int

const (
	Atomic Kind = iota
	Composite
)

// Mode is the flow a step belongs to.
type Mode uint8

const (
	// ModeProject steps run for every released project.
	ModeProject Mode = 1 << iota
	// ModeTrainPostRelease steps run once for the release train after all
	// projects are released.
	ModeTrainPostRelease

	ModeAny = ModeProject | ModeTrainPostRelease
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeProject:
		return "project"
	case ModeTrainPostRelease:
		return "train-post-release"
	case ModeAny:
		return "any"
	default:
		return "none"
	}
}

// Step is one named unit of release work.
type Step struct {
	Name        string
	ShortName   string
	Description string
	// Critical steps stop the project's flow when they fail.
	Critical bool
	Modes    Mode
	Kind     Kind
	Run      Func
	Steps    []Step
}

// Option customises a Step.
type Option func(*Step)

// Critical marks the step release-critical.
func Critical() Option {
	return func(s *Step) { s.Critical = true }
}

// WithModes sets the flows the step belongs to.
func WithModes(m Mode) Option {
	return func(s *Step) { s.Modes = m }
}

// NewAtomic creates an atomic step. Steps default to ModeProject.
func NewAtomic(name, shortName, description string, run Func, opts ...Option) Step {
	s := Step{Name: name, ShortName: shortName, Description: description, Modes: ModeProject, Kind: Atomic, Run: run}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// NewComposite creates a step that runs steps as one unit.
func NewComposite(name, shortName, description string, steps []Step, opts ...Option) Step {
	s := Step{Name: name, ShortName: shortName, Description: description, Modes: ModeProject, Kind: Composite, Steps: steps}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// IsComposite reports whether the step bundles sub-steps.
func (s Step) IsComposite() bool {
	return s.Kind == Composite
}

// Supports reports whether the step belongs to mode.
func (s Step) Supports(mode Mode) bool {
	return s.Modes&mode != 0
}

// Matches reports whether name is the step's name or short name.
func (s Step) Matches(name string) bool {
	return name != "" && (name == s.Name || name == s.ShortName)
}

// Execute runs the step. A composite runs its sub-steps in order without
// interruption: a failing critical sub-step ends it with that error, other
// failures are collected and returned tagged unstable. A composite whose
// sub-steps all skipped returns ErrSkip.
func (s Step) Execute(ctx context.Context) error {
	if s.Kind == Atomic {
		if s.Run == nil {
			return ErrSkip
		}
		return s.Run(ctx)
	}

	var softErrs []error
	skipped := 0
	for _, sub := range s.Steps {
		if err := ctx.Err(); err != nil {
			return errors.Join(errors.ErrCanceled, err)
		}
		err := sub.Execute(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrSkip):
			skipped++
		case errors.IsUnstable(err) || !sub.Critical:
			softErrs = append(softErrs, errors.Wrapf(err, "%s", sub.Name))
		default:
			return errors.Wrapf(err, "%s", sub.Name)
		}
	}
	if len(softErrs) > 0 {
		return errors.MarkUnstable(errors.Join(softErrs...))
	}
	if len(s.Steps) > 0 && skipped == len(s.Steps) {
		return ErrSkip
	}
	return nil
}
