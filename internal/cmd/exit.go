package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/report"
	"github.com/Iron-Ham/releasetrain/internal/verdict"
)

// Process exit codes.
const (
	ExitSuccess  = 0
	ExitFailure  = 1
	ExitUnstable = 2
	ExitAborted  = 130
)

// StatusError reports a release that finished with a non-successful
// verdict. The report has already been printed.
type StatusError struct {
	Status     verdict.Outcome
	AbortedAll bool
}

func (e *StatusError) Error() string {
	if e.AbortedAll {
		return "release aborted by operator"
	}
	return "release finished with status " + e.Status.String()
}

// ExitCode maps the error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return ExitFailure
	}
	switch {
	case statusErr.AbortedAll:
		return ExitAborted
	case statusErr.Status == verdict.Unstable:
		return ExitUnstable
	case statusErr.Status == verdict.Success:
		return ExitSuccess
	default:
		return ExitFailure
	}
}

// IsReported reports whether err was already presented to the user.
func IsReported(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}

// parseRange splits "from:to" (or "from,to") into its two step names.
func parseRange(s string) (string, string, error) {
	sep := ":"
	if !strings.Contains(s, sep) {
		sep = ","
	}
	from, to, ok := strings.Cut(s, sep)
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if !ok || from == "" || to == "" {
		return "", "", errors.NewValidationError("step range must look like from:to").
			WithField("release.range").WithValue(s).WithCause(errors.ErrInvalidInput)
	}
	return from, to, nil
}

// finish prints the report, writes the JSON copy when configured and turns
// a non-successful verdict into a StatusError.
func finish(cmd *cobra.Command, r report.Report, jsonPath string) error {
	if err := report.Render(cmd.OutOrStdout(), r); err != nil {
		return err
	}
	if jsonPath != "" {
		f, err := os.Create(jsonPath)
		if err != nil {
			return errors.Wrapf(err, "creating %s", jsonPath)
		}
		if err := report.WriteJSON(f, r); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "report written to %s\n", jsonPath)
	}
	if r.Status == verdict.Success && !r.AbortedAll {
		return nil
	}
	return &StatusError{Status: r.Status, AbortedAll: r.AbortedAll}
}
