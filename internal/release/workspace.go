package release

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/logging"
	"github.com/Iron-Ham/releasetrain/internal/step"
	"github.com/Iron-Ham/releasetrain/internal/version"
)

// Collaborators are the external systems a release drives. Step bodies
// only look at the returned error. Returning step.ErrSkip (possibly
// wrapped) records the step as skipped.
type Collaborators interface {
	// CloneProject returns the local checkout of the named project.
	CloneProject(ctx context.Context, name string) (string, error)
	// Checkout switches the checkout at dir to ref.
	Checkout(ctx context.Context, dir, ref string) error
	// Commit records every change under dir, tagging the commit when tag
	// is not empty.
	Commit(ctx context.Context, dir, message, tag string) error
	// Push publishes the commits and tags of dir.
	Push(ctx context.Context, dir string) error
	// CloseMilestone closes the project's milestone for version.
	CloseMilestone(ctx context.Context, project, version string) error
	// PublishTemplates publishes the released train versions.
	PublishTemplates(ctx context.Context, versions *version.Map) error
}

// GitExecutor runs git commands.
type GitExecutor interface {
	Git(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// CLIGit runs git through the git binary.
type CLIGit struct{}

// Git executes git with args in dir and returns its standard output.
func (CLIGit) Git(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("git %s: %w\n%s", strings.Join(args, " "), err, stderr.String())
	}
	return out, nil
}

// DefaultTemplatesFile is where LocalWorkspace publishes train versions.
const DefaultTemplatesFile = "release-train-versions.yml"

// LocalWorkspace works on projects already cloned below Dir, one directory
// per project. Without Milestones closing milestones is skipped.
type LocalWorkspace struct {
	Dir           string
	Git           GitExecutor
	Milestones    MilestoneCloser
	Logger        *logging.Logger
	TemplatesFile string
}

// NewLocalWorkspace creates a LocalWorkspace using the git binary.
func NewLocalWorkspace(dir string, logger *logging.Logger) *LocalWorkspace {
	return &LocalWorkspace{Dir: dir, Git: CLIGit{}, Logger: logging.OrNop(logger), TemplatesFile: DefaultTemplatesFile}
}

func (w *LocalWorkspace) log() *logging.Logger {
	return logging.OrNop(w.Logger)
}

// CloneProject returns Dir/name when it is a directory.
func (w *LocalWorkspace) CloneProject(_ context.Context, name string) (string, error) {
	path := filepath.Join(w.Dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", errors.NewNotFoundError("project checkout", path).WithCause(errors.ErrProjectNotFound)
	}
	return path, nil
}

// Checkout runs git checkout. An empty ref keeps the current branch.
func (w *LocalWorkspace) Checkout(ctx context.Context, dir, ref string) error {
	if ref == "" {
		return nil
	}
	if _, err := w.Git.Git(ctx, dir, "checkout", ref); err != nil {
		return errors.Wrapf(err, "checking out %s", ref)
	}
	w.log().Info("checked out", "dir", dir, "ref", ref)
	return nil
}

// Commit stages everything and commits it. A clean tree is skipped.
func (w *LocalWorkspace) Commit(ctx context.Context, dir, message, tag string) error {
	status, err := w.Git.Git(ctx, dir, "status", "--porcelain")
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(status)) == 0 {
		return errors.Wrap(step.ErrSkip, "nothing to commit")
	}
	if _, err := w.Git.Git(ctx, dir, "add", "-A"); err != nil {
		return err
	}
	if _, err := w.Git.Git(ctx, dir, "commit", "-m", message); err != nil {
		return err
	}
	if tag != "" {
		if _, err := w.Git.Git(ctx, dir, "tag", tag); err != nil {
			return err
		}
	}
	w.log().Info("committed", "dir", dir, "message", message, "tag", tag)
	return nil
}

// Push pushes the current branch and all tags to origin.
func (w *LocalWorkspace) Push(ctx context.Context, dir string) error {
	if _, err := w.Git.Git(ctx, dir, "push", "origin", "HEAD", "--tags"); err != nil {
		return err
	}
	w.log().Info("pushed", "dir", dir)
	return nil
}

// CloseMilestone closes the milestone of the project checked out at
// Dir/project. It is skipped when no issue tracker is configured.
func (w *LocalWorkspace) CloseMilestone(ctx context.Context, project, version string) error {
	if w.Milestones == nil {
		w.log().Info("no issue tracker configured, milestone left open", "project", project, "version", version)
		return errors.Wrap(step.ErrSkip, "no issue tracker")
	}
	return w.Milestones.Close(ctx, filepath.Join(w.Dir, project), version)
}

// PublishTemplates writes the train versions as YAML into the workspace.
func (w *LocalWorkspace) PublishTemplates(_ context.Context, versions *version.Map) error {
	name := w.TemplatesFile
	if name == "" {
		name = DefaultTemplatesFile
	}
	data, err := yaml.Marshal(versions.AsStringMap())
	if err != nil {
		return err
	}
	path := filepath.Join(w.Dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	w.log().Info("published train versions", "file", path, "projects", versions.Len())
	return nil
}
