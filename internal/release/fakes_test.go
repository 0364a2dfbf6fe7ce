package release

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/Iron-Ham/releasetrain/internal/config"
	"github.com/Iron-Ham/releasetrain/internal/manifest"
	"github.com/Iron-Ham/releasetrain/internal/testutil"
	"github.com/Iron-Ham/releasetrain/internal/version"
)

// fakeCollaborators records calls and resolves projects below dir.
type fakeCollaborators struct {
	dir string

	mu        sync.Mutex
	calls     []string
	checkouts int
	published map[string]string
	failOn    map[string]error
}

func (f *fakeCollaborators) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	for prefix, err := range f.failOn {
		if strings.HasPrefix(call, prefix) {
			return err
		}
	}
	return nil
}

func (f *fakeCollaborators) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeCollaborators) CloneProject(_ context.Context, name string) (string, error) {
	if err := f.record("clone " + name); err != nil {
		return "", err
	}
	return filepath.Join(f.dir, name), nil
}

func (f *fakeCollaborators) Checkout(_ context.Context, dir, ref string) error {
	f.mu.Lock()
	f.checkouts++
	f.mu.Unlock()
	return nil
}

func (f *fakeCollaborators) Commit(_ context.Context, dir, message, tag string) error {
	return f.record(fmt.Sprintf("commit %s %q %s", filepath.Base(dir), message, tag))
}

func (f *fakeCollaborators) Push(_ context.Context, dir string) error {
	return f.record("push " + filepath.Base(dir))
}

func (f *fakeCollaborators) CloseMilestone(_ context.Context, project, version string) error {
	return f.record("milestone " + project + " " + version)
}

func (f *fakeCollaborators) PublishTemplates(_ context.Context, versions *version.Map) error {
	f.mu.Lock()
	f.published = versions.AsStringMap()
	f.mu.Unlock()
	return f.record("templates")
}

// fakeRunner records commands instead of running them.
type fakeRunner struct {
	mu     sync.Mutex
	ran    []string
	failOn map[string]error
}

func (f *fakeRunner) Run(_ context.Context, dir string, cmd Command) (Result, error) {
	line := filepath.Base(dir) + ": " + strings.Join(cmd.Args, " ")
	if cmd.Tool == Shell {
		line = filepath.Base(dir) + ": " + cmd.Executable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, line)
	for fragment, err := range f.failOn {
		if strings.Contains(line, fragment) {
			return Result{ExitCode: 1}, err
		}
	}
	return Result{}, nil
}

func (f *fakeRunner) Ran() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.ran)
}

// trainFixture writes a release train checkout releasing sleuth and
// commons at 1.3.1.RELEASE.
func trainFixture(t *testing.T) string {
	t.Helper()
	return testutil.WriteTree(t, map[string]string{
		manifest.DefaultPlatformDescriptor: testutil.POM{
			ParentGroupID:    "org.springframework.boot",
			ParentArtifactID: "spring-boot-starter-parent",
			ParentVersion:    "1.5.9.RELEASE",
			GroupID:          "org.springframework.cloud",
			ArtifactID:       "spring-cloud-starter-parent",
			Version:          "Edgware.SR1",
		}.String(),
		manifest.DefaultBOMDescriptor: testutil.POM{
			ParentGroupID:    "org.springframework.cloud",
			ParentArtifactID: "spring-cloud-dependencies-parent",
			ParentVersion:    "1.3.7.RELEASE",
			ArtifactID:       "spring-cloud-dependencies",
			Version:          "Edgware.SR1",
			Properties: [][2]string{
				{"spring-cloud-sleuth.version", "1.3.1.RELEASE"},
				{"spring-cloud-commons.version", "1.3.1.RELEASE"},
			},
		}.String(),
	})
}

// writeProject writes a two-module project named name below workspace.
func writeProject(t *testing.T, workspace, name string, extra map[string]string) string {
	t.Helper()
	files := map[string]string{
		"pom.xml": testutil.POM{
			ParentGroupID:    "org.springframework.cloud",
			ParentArtifactID: "spring-cloud-build",
			ParentVersion:    "1.3.6.RELEASE",
			GroupID:          "org.springframework.cloud",
			ArtifactID:       name,
			Version:          "1.3.1.BUILD-SNAPSHOT",
		}.String(),
		name + "-core/pom.xml": testutil.POM{
			ParentGroupID:      "org.springframework.cloud",
			ParentArtifactID:   name,
			ParentVersion:      "1.3.1.BUILD-SNAPSHOT",
			ParentRelativePath: "..",
			ArtifactID:         name + "-core",
		}.String(),
	}
	for path, content := range extra {
		files[path] = content
	}
	dir := filepath.Join(workspace, name)
	testutil.WriteFiles(t, dir, files)
	return dir
}

type testEnv struct {
	run       *Run
	collab    *fakeCollaborators
	commands  *fakeRunner
	workspace string
}

func newTestEnv(t *testing.T, configure func(*Options)) *testEnv {
	t.Helper()
	cfg := config.Default()
	workspace := t.TempDir()
	opts := OptionsFromConfig(cfg)
	opts.TrainDir = trainFixture(t)
	opts.WorkspaceDir = workspace
	if configure != nil {
		configure(&opts)
	}

	env := &testEnv{
		collab:    &fakeCollaborators{dir: workspace},
		commands:  &fakeRunner{},
		workspace: workspace,
	}
	env.run = NewRun(cfg, opts, nil)
	env.run.Collaborators = env.collab
	env.run.Commands = env.commands
	t.Cleanup(func() { _ = env.run.Close() })
	return env
}
