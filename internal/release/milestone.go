package release

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/logging"
	"github.com/Iron-Ham/releasetrain/internal/step"
)

// Issue trackers a workspace can close milestones in.
const (
	TrackerNone   = "none"
	TrackerGitHub = "github"
)

// MilestoneCloser closes the milestone named after a released version in
// the issue tracker of the project checked out at dir.
type MilestoneCloser interface {
	Close(ctx context.Context, dir, version string) error
}

// GHExecutor runs the GitHub CLI.
type GHExecutor interface {
	GH(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// CLIGH runs the gh binary.
type CLIGH struct{}

// GH executes gh with args in dir and returns its standard output.
func (CLIGH) GH(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("gh %s: %w\n%s", strings.Join(args, " "), err, stderr.String())
	}
	return out, nil
}

var gitHubRemoteRegex = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`)

// ParseGitHubRemote extracts owner/repo from an https or ssh GitHub remote.
func ParseGitHubRemote(remote string) (string, bool) {
	m := gitHubRemoteRegex.FindStringSubmatch(strings.TrimSpace(remote))
	if m == nil {
		return "", false
	}
	return m[1] + "/" + m[2], true
}

// GitHubMilestones closes milestones through the gh CLI. The repository is
// taken from the origin remote of the checkout.
type GitHubMilestones struct {
	Git    GitExecutor
	GH     GHExecutor
	Logger *logging.Logger
}

// NewGitHubMilestones creates a GitHubMilestones using the git and gh binaries.
func NewGitHubMilestones(logger *logging.Logger) *GitHubMilestones {
	return &GitHubMilestones{Git: CLIGit{}, GH: CLIGH{}, Logger: logging.OrNop(logger)}
}

type milestone struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// Close closes the open milestone titled version. A checkout without a
// GitHub origin or without such a milestone is skipped.
func (g *GitHubMilestones) Close(ctx context.Context, dir, version string) error {
	log := logging.OrNop(g.Logger)

	remote, err := g.Git.Git(ctx, dir, "remote", "get-url", "origin")
	if err != nil {
		return errors.Wrap(err, "reading origin remote")
	}
	repo, ok := ParseGitHubRemote(string(remote))
	if !ok {
		log.Warn("origin is not a GitHub repository, milestone left open",
			"remote", strings.TrimSpace(string(remote)), "version", version)
		return errors.Wrap(step.ErrSkip, "unsupported issue tracker")
	}

	out, err := g.GH.GH(ctx, dir, "api", "repos/"+repo+"/milestones?state=open&per_page=100")
	if err != nil {
		return errors.Wrapf(err, "listing milestones of %s", repo)
	}
	var open []milestone
	if err := json.Unmarshal(out, &open); err != nil {
		return errors.Wrapf(err, "decoding milestones of %s", repo)
	}

	for _, m := range open {
		if m.Title != version {
			continue
		}
		path := "repos/" + repo + "/milestones/" + strconv.Itoa(m.Number)
		if _, err := g.GH.GH(ctx, dir, "api", "-X", "PATCH", path, "-f", "state=closed"); err != nil {
			return errors.Wrapf(err, "closing milestone %s of %s", version, repo)
		}
		log.Info("closed milestone", "repo", repo, "milestone", version, "number", m.Number)
		return nil
	}

	log.Info("no open milestone for version", "repo", repo, "version", version)
	return errors.Wrap(step.ErrSkip, "no open milestone "+version)
}
