// Package testutil provides fixture helpers for releasetrain tests.
package testutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// WriteTree writes files (relative path -> content) below a fresh temporary
// directory and returns the directory.
func WriteTree(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	WriteFiles(t, dir, files)
	return dir
}

// WriteFiles writes files (relative path -> content) below dir.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for path, content := range files {
		WriteFile(t, dir, path, content)
	}
}

// WriteFile writes one file below dir, creating parent directories.
func WriteFile(t *testing.T, dir, path, content string) string {
	t.Helper()

	fullPath := filepath.Join(dir, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return fullPath
}

// ReadFile returns the content of path.
func ReadFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// POM describes a minimal descriptor for fixtures.
type POM struct {
	GroupID    string
	ArtifactID string
	Version    string

	ParentGroupID      string
	ParentArtifactID   string
	ParentVersion      string
	ParentRelativePath string

	// Properties are rendered in the given order as key, value pairs.
	Properties [][2]string
	// Extra is inserted verbatim before </project>.
	Extra string
}

// String renders the POM.
func (p POM) String() string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<project xmlns=\"http://maven.apache.org/POM/4.0.0\">\n")
	b.WriteString("\t<modelVersion>4.0.0</modelVersion>\n")
	if p.ParentArtifactID != "" {
		b.WriteString("\t<parent>\n")
		writeElement(&b, "\t\t", "groupId", p.ParentGroupID)
		writeElement(&b, "\t\t", "artifactId", p.ParentArtifactID)
		writeElement(&b, "\t\t", "version", p.ParentVersion)
		if p.ParentRelativePath != "" {
			writeElement(&b, "\t\t", "relativePath", p.ParentRelativePath)
		}
		b.WriteString("\t</parent>\n")
	}
	writeElement(&b, "\t", "groupId", p.GroupID)
	writeElement(&b, "\t", "artifactId", p.ArtifactID)
	writeElement(&b, "\t", "version", p.Version)
	if len(p.Properties) > 0 {
		b.WriteString("\t<properties>\n")
		for _, kv := range p.Properties {
			writeElement(&b, "\t\t", kv[0], kv[1])
		}
		b.WriteString("\t</properties>\n")
	}
	b.WriteString(p.Extra)
	b.WriteString("</project>\n")
	return b.String()
}

func writeElement(b *strings.Builder, indent, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s<%s>%s</%s>\n", indent, name, value, name)
}

// SetupGitRepo creates a temporary git repository holding files and one
// commit. The test is skipped when git is not installed.
func SetupGitRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	SkipIfNoGit(t)

	dir := WriteTree(t, files)
	if err := RunGit(dir, "init"); err != nil {
		t.Fatalf("failed to init git repo: %v", err)
	}
	if err := RunGit(dir, "add", "."); err != nil {
		t.Fatalf("failed to stage files: %v", err)
	}
	if err := RunGit(dir, "commit", "-m", "Initial commit"); err != nil {
		t.Fatalf("failed to create initial commit: %v", err)
	}
	if err := RunGit(dir, "branch", "-M", "main"); err != nil {
		t.Fatalf("failed to rename branch to main: %v", err)
	}
	return dir
}

// GetCommitCount returns the number of commits in the repository.
func GetCommitCount(t *testing.T, repoDir string) int {
	t.Helper()

	cmd := exec.Command("git", "rev-list", "--count", "HEAD")
	cmd.Dir = repoDir
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("failed to count commits: %v", err)
	}
	count, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil {
		t.Fatalf("failed to parse commit count: %v", err)
	}
	return count
}

// HasUncommittedChanges returns true if the repository has uncommitted changes.
func HasUncommittedChanges(t *testing.T, repoDir string) bool {
	t.Helper()

	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = repoDir
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("failed to check git status: %v", err)
	}
	return len(output) > 0
}

// SkipIfNoGit skips the test if git is not installed.
func SkipIfNoGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH, skipping test")
	}
}

// GitEnv is the committer identity used for fixture repositories.
var GitEnv = []string{
	"GIT_AUTHOR_NAME=Release Train Test",
	"GIT_AUTHOR_EMAIL=test@releasetrain.dev",
	"GIT_COMMITTER_NAME=Release Train Test",
	"GIT_COMMITTER_EMAIL=test@releasetrain.dev",
}

// RunGit runs a git command in dir.
func RunGit(dir string, args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), GitEnv...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &gitError{args: args, output: output, err: err}
	}
	return nil
}

type gitError struct {
	args   []string
	output []byte
	err    error
}

func (e *gitError) Error() string {
	return "git " + strings.Join(e.args, " ") + ": " + e.err.Error() + "\n" + string(e.output)
}

func (e *gitError) Unwrap() error {
	return e.err
}
