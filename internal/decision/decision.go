// Package decision provides the gate consulted before each release step.
//
// The flow runner never reads input itself. It asks a Port, which answers
// with a Decision; quitting the whole release is an ordinary return value
// that the caller propagates up to the process entry point.
package decision

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/step"
)

// Decision is the answer of a Port.
type Decision int

const (
	// Continue runs the step.
	Continue Decision = iota
	// Skip records the step as skipped and moves on.
	Skip
	// Abort stops the remaining steps of the project.
	Abort
	// AbortAll stops the remaining steps of the project and every project
	// that has not started yet.
	AbortAll
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Skip:
		return "skip"
	case Abort:
		return "abort"
	case AbortAll:
		return "abort-all"
	default:
		return "unknown"
	}
}

// Parse maps an operator answer to a Decision. An empty answer continues.
func Parse(answer string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes", "c", "continue":
		return Continue, true
	case "s", "skip", "n", "no":
		return Skip, true
	case "a", "abort":
		return Abort, true
	case "q", "quit", "exit":
		return AbortAll, true
	default:
		return Continue, false
	}
}

// Port decides whether a step runs.
type Port interface {
	Before(ctx context.Context, project string, s step.Step) (Decision, error)
}

// NonInteractive continues every step without blocking.
type NonInteractive struct{}

// Before always returns Continue.
func (NonInteractive) Before(context.Context, string, step.Step) (Decision, error) {
	return Continue, nil
}

// maxAttempts bounds how often an unrecognised answer is re-prompted.
const maxAttempts = 3

// Console prompts on a writer and reads one line per decision. Prompts of
// concurrent projects are serialised.
type Console struct {
	turn  chan struct{}
	lines chan readResult
	once  sync.Once
	in    *bufio.Reader
	out   io.Writer
}

type readResult struct {
	text string
	err  error
}

// NewConsole creates a Console reading answers from in.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{
		turn:  make(chan struct{}, 1),
		lines: make(chan readResult),
		in:    bufio.NewReader(in),
		out:   out,
	}
}

// ForTerminal returns a Console on stdin/stdout when stdin is a terminal,
// and NonInteractive otherwise so unattended runs never block.
func ForTerminal() Port {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return NonInteractive{}
	}
	return NewConsole(os.Stdin, os.Stdout)
}

// read feeds input lines to prompts. It stops after the first read error.
func (c *Console) read() {
	defer close(c.lines)
	for {
		text, err := c.in.ReadString('\n')
		c.lines <- readResult{text: text, err: err}
		if err != nil {
			return
		}
	}
}

// Before prompts for the step. End of input quits the release. A prompt
// waiting for its turn or its answer gives up with Abort when ctx or the
// bound set by WithPromptBound is done.
func (c *Console) Before(ctx context.Context, project string, s step.Step) (Decision, error) {
	ctx, stop := boundPrompt(ctx)
	defer stop()

	select {
	case c.turn <- struct{}{}:
	case <-ctx.Done():
		return Abort, errors.Join(errors.ErrCanceled, context.Cause(ctx))
	}
	defer func() { <-c.turn }()
	c.once.Do(func() { go c.read() })

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return Abort, errors.Join(errors.ErrCanceled, context.Cause(ctx))
		}
		description := s.Description
		if description == "" {
			description = s.Name
		}
		fmt.Fprintf(c.out, "[%s] %s (%s)? [Y]es / [s]kip / [a]bort project / [q]uit release: ",
			project, description, s.Name)

		var r readResult
		select {
		case res, ok := <-c.lines:
			r = res
			if !ok {
				r.err = io.EOF
			}
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return Abort, errors.Join(errors.ErrCanceled, context.Cause(ctx))
		}
		if r.err != nil && r.text == "" {
			if r.err == io.EOF {
				fmt.Fprintln(c.out)
				return AbortAll, nil
			}
			return Abort, errors.Wrap(r.err, "reading decision")
		}
		if d, ok := Parse(r.text); ok {
			return d, nil
		}
		fmt.Fprintf(c.out, "unrecognised answer %q\n", strings.TrimSpace(r.text))
	}
	return Abort, errors.NewValidationError("no valid decision after repeated prompts").
		WithField("decision").WithValue(s.Name)
}

type promptBoundKey struct{}

// WithPromptBound returns a copy of ctx whose prompts also give up once
// bound is done. The steps themselves still only watch ctx.
func WithPromptBound(ctx, bound context.Context) context.Context {
	return context.WithValue(ctx, promptBoundKey{}, bound)
}

func boundPrompt(ctx context.Context) (context.Context, context.CancelFunc) {
	bound, ok := ctx.Value(promptBoundKey{}).(context.Context)
	if !ok {
		return ctx, func() {}
	}
	pctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(bound, func() { cancel(context.Cause(bound)) })
	return pctx, func() {
		stop()
		cancel(nil)
	}
}

// Scripted answers from a fixed table keyed by step name or short name.
// It records every question it was asked.
type Scripted struct {
	mu      sync.Mutex
	answers map[string]Decision
	def     Decision
	asked   []string
}

// NewScripted creates a Scripted port answering def for unknown steps.
func NewScripted(def Decision, answers map[string]Decision) *Scripted {
	return &Scripted{answers: answers, def: def}
}

// Before returns the scripted answer for the step.
func (s *Scripted) Before(_ context.Context, project string, st step.Step) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, project+"/"+st.Name)
	if d, ok := s.answers[project+"/"+st.Name]; ok {
		return d, nil
	}
	if d, ok := s.answers[st.Name]; ok {
		return d, nil
	}
	if d, ok := s.answers[st.ShortName]; ok && st.ShortName != "" {
		return d, nil
	}
	return s.def, nil
}

// Asked returns the "project/step" questions asked so far.
func (s *Scripted) Asked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.asked...)
}
