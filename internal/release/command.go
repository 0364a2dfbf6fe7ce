package release

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Iron-Ham/releasetrain/internal/config"
	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/logging"
)

// Tool is the build tool a Command drives.
type Tool int

const (
	// NoTool marks an unconfigured command.
	NoTool Tool = iota
	Maven
	Gradle
	Shell
)

// String returns the tool name as used in configuration.
func (t Tool) String() string {
	switch t {
	case NoTool:
		return "none"
	case Maven:
		return "maven"
	case Gradle:
		return "gradle"
	case Shell:
		return "shell"
	default:
		return "unknown"
	}
}

// ParseTool maps a configured tool name to a Tool.
func ParseTool(name string) (Tool, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "maven", "mvn":
		return Maven, nil
	case "gradle":
		return Gradle, nil
	case "shell", "sh":
		return Shell, nil
	default:
		return NoTool, errors.NewValidationError("unknown build tool").
			WithField("tool").WithValue(name).WithCause(errors.ErrInvalidInput)
	}
}

// Command is an external command run inside a project checkout.
type Command struct {
	Tool Tool
	// Executable replaces the tool's default executable. For Shell it is
	// the script or command line.
	Executable string
	Args       []string
	Env        map[string]string
}

// CommandFromConfig converts a configured command.
func CommandFromConfig(c config.CommandConfig, env map[string]string) (Command, error) {
	if c.IsZero() {
		return Command{}, nil
	}
	tool, err := ParseTool(c.Tool)
	if err != nil {
		return Command{}, err
	}
	return Command{Tool: tool, Executable: c.Command, Args: slices.Clone(c.Args), Env: maps.Clone(env)}, nil
}

// IsZero reports whether no command is configured. A command with a tool
// but no arguments still runs the tool's executable.
func (c Command) IsZero() bool {
	return c.Tool == NoTool
}

// WithArgs returns a copy of c with args appended.
func (c Command) WithArgs(args ...string) Command {
	c.Args = slices.Concat(c.Args, args)
	return c
}

// Argv returns the argument vector to execute in dir. Maven and Gradle
// prefer the project's wrapper script when present.
func (c Command) Argv(dir string) []string {
	switch c.Tool {
	case Maven:
		return slices.Concat([]string{c.executable(dir, "mvnw", "mvn")}, c.Args)
	case Gradle:
		return slices.Concat([]string{c.executable(dir, "gradlew", "gradle")}, c.Args)
	case Shell:
		line := strings.Join(slices.Concat([]string{c.Executable}, c.Args), " ")
		return []string{"sh", "-c", strings.TrimSpace(line)}
	default:
		return nil
	}
}

func (c Command) executable(dir, wrapper, fallback string) string {
	if c.Executable != "" {
		return c.Executable
	}
	if info, err := os.Stat(filepath.Join(dir, wrapper)); err == nil && !info.IsDir() {
		return "./" + wrapper
	}
	return fallback
}

// String renders the command line as run in dir.
func (c Command) String() string {
	return strings.Join(c.Argv(""), " ")
}

// Result is the outcome of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner runs commands. It is the seam tests replace.
type CommandRunner interface {
	Run(ctx context.Context, dir string, cmd Command) (Result, error)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	Logger *logging.Logger
	// Output receives the combined live output of every command. Nil
	// discards it; it is captured in the Result either way.
	Output io.Writer
}

// Run executes cmd in dir. A non-zero exit is returned as an error that
// carries the captured stderr.
func (r *ExecRunner) Run(ctx context.Context, dir string, cmd Command) (Result, error) {
	argv := cmd.Argv(dir)
	if len(argv) == 0 {
		return Result{}, errors.NewValidationError("empty command").WithCause(errors.ErrInvalidInput)
	}
	log := logging.OrNop(r.Logger).With("dir", dir, "command", strings.Join(argv, " "))
	log.Debug("running command")

	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Dir = dir
	if len(cmd.Env) > 0 {
		c.Env = os.Environ()
		for _, k := range slices.Sorted(maps.Keys(cmd.Env)) {
			c.Env = append(c.Env, fmt.Sprintf("%s=%s", k, cmd.Env[k]))
		}
	}

	var stdout, stderr bytes.Buffer
	c.Stdout, c.Stderr = &stdout, &stderr
	if r.Output != nil {
		c.Stdout = io.MultiWriter(&stdout, r.Output)
		c.Stderr = io.MultiWriter(&stderr, r.Output)
	}

	err := c.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	res.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	if ctx.Err() != nil {
		return res, errors.Join(errors.ErrCanceled, ctx.Err())
	}
	log.Warn("command failed", "exit_code", res.ExitCode)
	return res, fmt.Errorf("%s exited with %d: %s", argv[0], res.ExitCode, lastLine(res.Stderr))
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
