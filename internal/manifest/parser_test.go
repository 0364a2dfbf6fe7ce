package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/testutil"
	"github.com/Iron-Ham/releasetrain/internal/version"
)

func platformPOM(parent string) string {
	return testutil.POM{
		ParentGroupID:    "org.springframework.boot",
		ParentArtifactID: parent,
		ParentVersion:    "1.5.9.RELEASE",
		GroupID:          "org.springframework.cloud",
		ArtifactID:       "spring-cloud-starter-parent",
		Version:          "Edgware.SR1",
	}.String()
}

func bomPOM(parent string) string {
	return testutil.POM{
		ParentGroupID:    "org.springframework.cloud",
		ParentArtifactID: parent,
		ParentVersion:    "1.3.7.RELEASE",
		ArtifactID:       "spring-cloud-dependencies",
		Version:          "Edgware.SR1",
		Properties: [][2]string{
			{"spring-cloud-sleuth.version", "1.3.1.RELEASE"},
			{"spring-cloud-commons.version", "1.3.1.RELEASE"},
			{"spring-cloud-netflix.version", "${netflix}"},
			{"reactor.version", "3.1.0"},
		},
	}.String()
}

func TestParser_Parse(t *testing.T) {
	dir := testutil.WriteTree(t, map[string]string{
		DefaultPlatformDescriptor: platformPOM("spring-boot-starter-parent"),
		DefaultBOMDescriptor:      bomPOM("spring-cloud-dependencies-parent"),
	})

	versions, err := NewParser(version.DefaultNames(), nil).Parse(dir)
	require.NoError(t, err)

	for _, alias := range []string{"spring-boot", "spring-boot-starter-parent", "spring-boot-dependencies"} {
		assert.Equal(t, "1.5.9.RELEASE", versions.VersionForProject(alias), alias)
	}
	for _, alias := range []string{"spring-cloud-build", "spring-cloud-dependencies-parent"} {
		assert.Equal(t, "1.3.7.RELEASE", versions.VersionForProject(alias), alias)
	}
	for _, alias := range []string{"spring-cloud-release", "spring-cloud-dependencies", "spring-cloud-starter-parent", "spring-cloud-starter-build"} {
		assert.Equal(t, "Edgware.SR1", versions.VersionForProject(alias), alias)
	}
	assert.Equal(t, "1.3.1.RELEASE", versions.VersionForProject("spring-cloud-sleuth"))
	assert.Equal(t, "1.3.1.RELEASE", versions.VersionForProject("spring-cloud-commons"))
	assert.False(t, versions.Matches("spring-cloud-netflix"), "expressions are not versions")
	assert.False(t, versions.Matches("reactor"), "property outside the pattern")
}

func TestParser_MissingDescriptorsYieldEmptyMap(t *testing.T) {
	versions, err := NewParser(version.DefaultNames(), nil).Parse(t.TempDir())
	require.NoError(t, err)
	assert.True(t, versions.IsEmpty())
}

func TestParser_MissingPlatformStillReadsBOM(t *testing.T) {
	dir := testutil.WriteTree(t, map[string]string{
		DefaultBOMDescriptor: bomPOM("spring-cloud-dependencies-parent"),
	})
	versions, err := NewParser(version.DefaultNames(), nil).Parse(dir)
	require.NoError(t, err)
	assert.False(t, versions.Matches("spring-boot"))
	assert.Equal(t, "1.3.1.RELEASE", versions.VersionForProject("spring-cloud-sleuth"))
}

func TestParser_UnexpectedParentIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		file  string
	}{
		{
			name: "platform",
			files: map[string]string{
				DefaultPlatformDescriptor: platformPOM("some-other-parent"),
				DefaultBOMDescriptor:      bomPOM("spring-cloud-dependencies-parent"),
			},
			file: DefaultPlatformDescriptor,
		},
		{
			name: "bill of materials",
			files: map[string]string{
				DefaultPlatformDescriptor: platformPOM("spring-boot-starter-parent"),
				DefaultBOMDescriptor:      bomPOM("spring-cloud-build"),
			},
			file: DefaultBOMDescriptor,
		},
		{
			name: "no parent at all",
			files: map[string]string{
				DefaultBOMDescriptor: testutil.POM{GroupID: "g", ArtifactID: "spring-cloud-dependencies", Version: "1"}.String(),
			},
			file: DefaultBOMDescriptor,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutil.WriteTree(t, tt.files)
			_, err := NewParser(version.DefaultNames(), nil).Parse(dir)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrUnexpectedParent)
			assert.True(t, errors.IsConfigurationError(err))

			var cfgErr *errors.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Contains(t, cfgErr.File, tt.file)
		})
	}
}

func TestParser_CustomPropertyPattern(t *testing.T) {
	dir := testutil.WriteTree(t, map[string]string{
		DefaultBOMDescriptor: bomPOM("spring-cloud-dependencies-parent"),
	})
	p := NewParser(version.DefaultNames(), nil)
	p.PropertyPattern = `^(reactor)\.version$`

	versions, err := p.Parse(dir)
	require.NoError(t, err)
	assert.Equal(t, "3.1.0", versions.VersionForProject("reactor"))
	assert.False(t, versions.Matches("spring-cloud-sleuth"))
}

func TestParser_InvalidPropertyPattern(t *testing.T) {
	for _, pattern := range []string{"(", `^spring-cloud-.*\.version$`, `^(a)(b)$`} {
		p := NewParser(version.DefaultNames(), nil)
		p.PropertyPattern = pattern
		_, err := p.Parse(t.TempDir())
		require.Error(t, err, pattern)
		assert.True(t, errors.IsConfigurationError(err), pattern)
	}
}

func TestParser_MalformedDescriptor(t *testing.T) {
	dir := testutil.WriteTree(t, map[string]string{DefaultBOMDescriptor: "<project><artifactId>x"})
	_, err := NewParser(version.DefaultNames(), nil).Parse(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMalformedDescriptor)
}
