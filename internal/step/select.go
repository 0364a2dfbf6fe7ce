package step

import (
	"fmt"

	"github.com/Iron-Ham/releasetrain/internal/errors"
)

// Selection chooses the steps of a release. The zero value selects every
// step. Names selects a subset; From alone starts from a step; From and To
// select an inclusive range. Names cannot be combined with From or To.
type Selection struct {
	Names []string
	From  string
	To    string
}

// IsFull reports whether every step is selected.
func (s Selection) IsFull() bool {
	return len(s.Names) == 0 && s.From == "" && s.To == ""
}

// Lookup returns the step named name (or short name).
func Lookup(steps []Step, name string) (Step, bool) {
	i := indexOf(steps, name)
	if i < 0 {
		return Step{}, false
	}
	return steps[i], true
}

func indexOf(steps []Step, name string) int {
	for i, s := range steps {
		if s.Matches(name) {
			return i
		}
	}
	return -1
}

func unknown(field, name string) error {
	return errors.NewValidationError(fmt.Sprintf("unknown step %q", name)).
		WithField(field).WithValue(name).WithCause(errors.ErrUnknownStep)
}

// Select returns the selected steps in catalog order.
func Select(steps []Step, sel Selection) ([]Step, error) {
	if sel.IsFull() {
		return append([]Step(nil), steps...), nil
	}
	if len(sel.Names) > 0 {
		if sel.From != "" || sel.To != "" {
			return nil, errors.NewValidationError("a step subset cannot be combined with a start or range").
				WithField("release.steps")
		}
		wanted := make(map[int]bool, len(sel.Names))
		for _, name := range sel.Names {
			i := indexOf(steps, name)
			if i < 0 {
				return nil, unknown("release.steps", name)
			}
			wanted[i] = true
		}
		var out []Step
		for i, s := range steps {
			if wanted[i] {
				out = append(out, s)
			}
		}
		return out, nil
	}

	start, end := 0, len(steps)-1
	if sel.From != "" {
		if start = indexOf(steps, sel.From); start < 0 {
			return nil, unknown("release.from", sel.From)
		}
	}
	if sel.To != "" {
		if end = indexOf(steps, sel.To); end < 0 {
			return nil, unknown("release.to", sel.To)
		}
	}
	if end < start {
		return nil, errors.NewValidationError(fmt.Sprintf("step %q comes before %q", sel.To, sel.From)).
			WithField("release.range")
	}
	return append([]Step(nil), steps[start:end+1]...), nil
}

// Names returns the names of steps.
func Names(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Name
	}
	return out
}
