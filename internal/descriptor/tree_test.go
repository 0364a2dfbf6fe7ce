package descriptor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/testutil"
	"github.com/Iron-Ham/releasetrain/internal/version"
)

func newUpdater(t *testing.T, opts Options) *TreeUpdater {
	t.Helper()
	u, err := NewTreeUpdater(opts, nil)
	require.NoError(t, err)
	return u
}

// sleuthTree is a project at a stale parent and project version with one
// module, one sample owned by a third party and one ignored test fixture.
func sleuthTree(coreExtra string, coreProps [][2]string) map[string]string {
	return map[string]string{
		"pom.xml": testutil.POM{
			ParentGroupID:    "org.springframework.cloud",
			ParentArtifactID: "spring-cloud-build",
			ParentVersion:    "1.3.1.RELEASE",
			GroupID:          "org.springframework.cloud",
			ArtifactID:       "spring-cloud-sleuth",
			Version:          "1.1.0.BUILD-SNAPSHOT",
			Properties:       [][2]string{{"spring-cloud-commons.version", "1.1.0.BUILD-SNAPSHOT"}},
		}.String(),
		"spring-cloud-sleuth-core/pom.xml": testutil.POM{
			ParentGroupID:      "org.springframework.cloud",
			ParentArtifactID:   "spring-cloud-sleuth",
			ParentVersion:      "1.1.0.BUILD-SNAPSHOT",
			ParentRelativePath: "..",
			ArtifactID:         "spring-cloud-sleuth-core",
			Properties:         coreProps,
			Extra:              coreExtra,
		}.String(),
		"samples/foo/pom.xml": testutil.POM{
			ParentGroupID:    "org.springframework.boot",
			ParentArtifactID: "spring-boot-starter-parent",
			ParentVersion:    "1.5.2.RELEASE",
			GroupID:          "com.example",
			ArtifactID:       "foo",
			Version:          "0.0.1",
		}.String(),
		"src/test/resources/projects/pom.xml": testutil.POM{
			ParentGroupID:    "org.springframework.cloud",
			ParentArtifactID: "spring-cloud-sleuth",
			ParentVersion:    "0.0.1.BUILD-SNAPSHOT",
			ArtifactID:       "fixture",
		}.String(),
	}
}

func lineOf(t *testing.T, content, needle string) int {
	t.Helper()
	for i, line := range strings.Split(content, "\n") {
		if strings.Contains(line, needle) {
			return i + 1
		}
	}
	t.Fatalf("%q not found", needle)
	return 0
}

func TestTreeUpdater_Descriptors(t *testing.T) {
	dir := testutil.WriteTree(t, sleuthTree("", nil))
	testutil.WriteFile(t, dir, "target/classes/pom.xml", "<project/>")
	testutil.WriteFile(t, dir, ".git/pom.xml", "<project/>")
	testutil.WriteFile(t, dir, "docs/README.md", "docs")

	files, err := newUpdater(t, Options{}).Descriptors(dir)
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(dir, f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.ElementsMatch(t, []string{"pom.xml", "spring-cloud-sleuth-core/pom.xml", "samples/foo/pom.xml"}, rel)

	custom := newUpdater(t, Options{IgnorePatterns: []string{"**/samples/**"}})
	files, err = custom.Descriptors(dir)
	require.NoError(t, err)
	assert.Len(t, files, 5, "custom patterns replace the defaults")
}

func TestNewTreeUpdater_InvalidPatterns(t *testing.T) {
	_, err := NewTreeUpdater(Options{IgnorePatterns: []string{"[unclosed"}}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))

	_, err = NewTreeUpdater(Options{WhitelistPatterns: []string{"("}}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestTreeUpdater_ShouldUpdate(t *testing.T) {
	u := newUpdater(t, Options{})
	versions := sleuthVersions()

	assert.True(t, u.ShouldUpdate(testutil.WriteTree(t, sleuthTree("", nil)), versions))
	assert.False(t, u.ShouldUpdate(t.TempDir(), versions), "missing root descriptor")
	assert.False(t, u.ShouldUpdate(testutil.WriteTree(t, map[string]string{
		"pom.xml": testutil.POM{GroupID: "com.example", ArtifactID: "foo", Version: "1.0"}.String(),
	}), versions), "project absent from the train")
}

func TestTreeUpdater_Update_Sleuth(t *testing.T) {
	files := sleuthTree("", nil)
	dir := testutil.WriteTree(t, files)
	u := newUpdater(t, Options{})

	result, err := u.Update(context.Background(), dir, sleuthVersions(), version.ProjectVersion{})
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, "1.2.0.BUILD-SNAPSHOT", result.Project.Version)
	assert.Equal(t, 2, result.Written())

	root := testutil.ReadFile(t, filepath.Join(dir, "pom.xml"))
	rootModel := mustParse(t, root)
	assert.Equal(t, "1.2.0.BUILD-SNAPSHOT", rootModel.Version)
	assert.Equal(t, "1.3.6.RELEASE", rootModel.Parent.Version)
	v, _ := rootModel.Property("spring-cloud-commons.version")
	assert.Equal(t, "1.3.0.BUILD-SNAPSHOT", v)

	core := mustParse(t, testutil.ReadFile(t, filepath.Join(dir, "spring-cloud-sleuth-core/pom.xml")))
	assert.Equal(t, "1.2.0.BUILD-SNAPSHOT", core.Parent.Version)

	assert.Equal(t, files["samples/foo/pom.xml"], testutil.ReadFile(t, filepath.Join(dir, "samples/foo/pom.xml")))
	assert.Equal(t, files["src/test/resources/projects/pom.xml"],
		testutil.ReadFile(t, filepath.Join(dir, "src/test/resources/projects/pom.xml")))

	second, err := u.Update(context.Background(), dir, sleuthVersions(), version.ProjectVersion{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Written())
}

func TestTreeUpdater_Update_UntouchedFilesKeepTheirModTime(t *testing.T) {
	dir := testutil.WriteTree(t, sleuthTree("", nil))
	sample := filepath.Join(dir, "samples/foo/pom.xml")
	before, err := os.Stat(sample)
	require.NoError(t, err)

	_, err = newUpdater(t, Options{}).Update(context.Background(), dir, sleuthVersions(), version.ProjectVersion{})
	require.NoError(t, err)

	after, err := os.Stat(sample)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestTreeUpdater_Update_ProjectNotInTrain(t *testing.T) {
	content := testutil.POM{GroupID: "com.example", ArtifactID: "foo", Version: "1.0.0.BUILD-SNAPSHOT"}.String()
	dir := testutil.WriteTree(t, map[string]string{"pom.xml": content})

	result, err := newUpdater(t, Options{}).Update(context.Background(), dir, sleuthVersions(), version.ProjectVersion{})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, content, testutil.ReadFile(t, filepath.Join(dir, "pom.xml")))
}

func TestTreeUpdater_Update_Canceled(t *testing.T) {
	dir := testutil.WriteTree(t, sleuthTree("", nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newUpdater(t, Options{}).Update(ctx, dir, sleuthVersions(), version.ProjectVersion{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCanceled)
}

func releaseVersions() *version.Map {
	m := version.NewMap(version.DefaultNames())
	m.Add("spring-cloud-sleuth", "1.2.0.RELEASE")
	m.Add("spring-cloud-commons", "1.3.0.RELEASE")
	m.SetVersion("spring-cloud-build", "1.3.6.RELEASE")
	return m
}

const leftoverDependency = "\t<dependencies>\n\t\t<dependency>\n\t\t\t<groupId>io.zipkin</groupId>\n" +
	"\t\t\t<artifactId>zipkin</artifactId>\n\t\t\t<version>2.0.0.BUILD-SNAPSHOT</version>\n" +
	"\t\t</dependency>\n\t</dependencies>\n"

func TestTreeUpdater_Update_LeftoverMarkerNamesFileAndLine(t *testing.T) {
	dir := testutil.WriteTree(t, sleuthTree(leftoverDependency, nil))
	core := filepath.Join(dir, "spring-cloud-sleuth-core", "pom.xml")

	_, err := newUpdater(t, Options{}).Update(context.Background(), dir, releaseVersions(), version.ProjectVersion{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrLeftoverMarker)

	var assertErr *errors.VersionAssertionError
	require.True(t, errors.As(err, &assertErr))
	assert.Equal(t, core, assertErr.File)
	assert.Equal(t, lineOf(t, testutil.ReadFile(t, core), "2.0.0.BUILD-SNAPSHOT"), assertErr.Line)
	assert.Equal(t, "SNAPSHOT", assertErr.Marker)
	assert.Contains(t, err.Error(), core)
}

func TestTreeUpdater_Update_DeploySkippedFileTolerated(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		props [][2]string
	}{
		{name: "property", extra: leftoverDependency, props: [][2]string{{"maven.deploy.skip", "true"}}},
		{
			name: "deploy plugin",
			extra: leftoverDependency + "\t<build>\n\t\t<plugins>\n\t\t\t<plugin>\n" +
				"\t\t\t\t<artifactId>maven-deploy-plugin</artifactId>\n" +
				"\t\t\t\t<configuration>\n\t\t\t\t\t<skip>true</skip>\n\t\t\t\t</configuration>\n" +
				"\t\t\t</plugin>\n\t\t</plugins>\n\t</build>\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutil.WriteTree(t, sleuthTree(tt.extra, tt.props))
			result, err := newUpdater(t, Options{}).Update(context.Background(), dir, releaseVersions(), version.ProjectVersion{})
			require.NoError(t, err)
			assert.Equal(t, "1.2.0.RELEASE", result.Project.Version)
		})
	}
}

func TestTreeUpdater_AssertNoLeftoverMarkers(t *testing.T) {
	pom := func(body string) map[string]string {
		return map[string]string{"pom.xml": "<project>\n<artifactId>a</artifactId>\n" + body + "</project>\n"}
	}
	release := version.NewProjectVersion("a", "1.0.0.RELEASE")

	tests := []struct {
		name    string
		body    string
		target  version.ProjectVersion
		opts    Options
		wantErr string
	}{
		{name: "clean", body: "<version>1.0.0.RELEASE</version>\n", target: release},
		{name: "snapshot target forbids nothing", body: "<x>1.0.0.BUILD-SNAPSHOT</x>\n", target: version.NewProjectVersion("a", "1.0.1.BUILD-SNAPSHOT")},
		{name: "single line comment", body: "<!-- was 1.0.0.BUILD-SNAPSHOT -->\n", target: release},
		{name: "multi line comment", body: "<!--\n 1.0.0.BUILD-SNAPSHOT\n-->\n", target: release},
		{name: "comment then code", body: "<!-- c --><x>1.0.0.M2</x>\n", target: release, wantErr: "milestone"},
		{name: "milestone target tolerates release candidates", body: "<x>1.0.0.RC1</x>\n", target: version.NewProjectVersion("a", "1.0.0.M3")},
		{name: "release candidate target forbids milestones", body: "<x>1.0.0.M2</x>\n", target: version.NewProjectVersion("a", "1.0.0.RC1"), wantErr: "milestone"},
		{name: "release forbids release candidates", body: "<x>2.0.0-RC1</x>\n", target: release, wantErr: "release candidate"},
		{
			name:   "whitelisted line",
			body:   "<url>https://repo.example.org/libs-SNAPSHOT-local</url>\n",
			target: release,
			opts:   Options{WhitelistPatterns: []string{`repo\.example\.org`}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutil.WriteTree(t, pom(tt.body))
			err := newUpdater(t, tt.opts).AssertNoLeftoverMarkers(dir, tt.target)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var assertErr *errors.VersionAssertionError
			require.True(t, errors.As(err, &assertErr))
			assert.Equal(t, tt.wantErr, assertErr.Marker)
			assert.Equal(t, 3, assertErr.Line)
		})
	}
}

func TestTreeUpdater_ReadProjectVersion(t *testing.T) {
	u := newUpdater(t, Options{})
	dir := testutil.WriteTree(t, sleuthTree("", nil))

	pv, err := u.ReadProjectVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, version.NewProjectVersion("spring-cloud-sleuth", "1.1.0.BUILD-SNAPSHOT"), pv)

	_, err = u.ReadProjectVersion(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingDescriptor)

	var load version.LoadFunc = u.ReadProjectVersion
	cache := version.NewProjectCache()
	cached, err := cache.GetOrLoad(dir, load)
	require.NoError(t, err)
	assert.Equal(t, pv, cached)
}
