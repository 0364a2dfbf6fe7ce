package version

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	snapshotPattern       = regexp.MustCompile(`SNAPSHOT$`)
	milestonePattern      = regexp.MustCompile(`[.-]M\d+$`)
	releaseCandidatePatt  = regexp.MustCompile(`[.-]RC\d+$`)
	serviceReleasePattern = regexp.MustCompile(`[.-]SR\d+$`)
	releaseSuffixPattern  = regexp.MustCompile(`[.-]RELEASE$`)
	numericReleasePattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

	// numericCorePattern splits "1.2.3.QUALIFIER" / "1.2.3-QUALIFIER" / "1.2.3".
	numericCorePattern = regexp.MustCompile(`^(\d+\.\d+\.\d+)(([.-])(.+))?$`)
	// qualifierPattern splits "<base><sep><qualifier>" for train-style versions too.
	qualifierPattern = regexp.MustCompile(`^(.+?)([.-])(BUILD-SNAPSHOT|SNAPSHOT|RELEASE|SR\d+|M\d+|RC\d+)$`)
)

// Marker is a pre-release marker that must not survive in a descriptor once a
// project is at a given version.
type Marker struct {
	Name    string
	Pattern *regexp.Regexp
}

var (
	// SnapshotMarker matches any snapshot version.
	SnapshotMarker = Marker{Name: "SNAPSHOT", Pattern: regexp.MustCompile(`SNAPSHOT`)}
	// MilestoneMarker matches milestone qualifiers such as "1.0.0.M2".
	MilestoneMarker = Marker{Name: "milestone", Pattern: regexp.MustCompile(`\w[.-]M\d+\b`)}
	// ReleaseCandidateMarker matches release candidate qualifiers such as "1.0.0.RC1".
	ReleaseCandidateMarker = Marker{Name: "release candidate", Pattern: regexp.MustCompile(`\w[.-]RC\d+\b`)}
)

// ProjectVersion is the current version of one concrete project.
type ProjectVersion struct {
	ProjectName string
	Version     string
}

// NewProjectVersion creates a ProjectVersion. The project name is normalized.
func NewProjectVersion(name, version string) ProjectVersion {
	return ProjectVersion{
		ProjectName: NormalizeName(name),
		Version:     strings.TrimSpace(version),
	}
}

// IsZero reports whether no version is known.
func (p ProjectVersion) IsZero() bool {
	return p.Version == ""
}

// String renders "name:version".
func (p ProjectVersion) String() string {
	return p.ProjectName + ":" + p.Version
}

// IsSnapshot reports whether the version is a snapshot.
func (p ProjectVersion) IsSnapshot() bool {
	return snapshotPattern.MatchString(p.Version)
}

// IsMilestone reports whether the version is a milestone, e.g. "1.0.0.M1".
func (p ProjectVersion) IsMilestone() bool {
	return milestonePattern.MatchString(p.Version)
}

// IsReleaseCandidate reports whether the version is a release candidate, e.g. "1.0.0.RC1".
func (p ProjectVersion) IsReleaseCandidate() bool {
	return releaseCandidatePatt.MatchString(p.Version)
}

// IsServiceRelease reports whether the version is a service release, e.g. "Edgware.SR1".
func (p ProjectVersion) IsServiceRelease() bool {
	return serviceReleasePattern.MatchString(p.Version)
}

// IsRelease reports whether the version is a general availability release,
// e.g. "1.0.0.RELEASE", "Edgware.RELEASE" or "2.1.0".
func (p ProjectVersion) IsRelease() bool {
	return releaseSuffixPattern.MatchString(p.Version) || numericReleasePattern.MatchString(p.Version)
}

// IsReleaseOrServiceRelease reports whether the version is GA or a service release.
func (p ProjectVersion) IsReleaseOrServiceRelease() bool {
	return p.IsRelease() || p.IsServiceRelease()
}

// BumpedVersion increments the numeric patch of a "MAJOR.MINOR.PATCH[.QUALIFIER]"
// version and keeps the qualifier. Train-style versions such as
// "Edgware.BUILD-SNAPSHOT" are returned unchanged.
func (p ProjectVersion) BumpedVersion() string {
	m := numericCorePattern.FindStringSubmatch(p.Version)
	if m == nil {
		return p.Version
	}
	bumped, ok := bumpPatch(m[1])
	if !ok {
		return p.Version
	}
	return bumped + m[2]
}

func bumpPatch(core string) (string, bool) {
	v, err := semver.StrictNewVersion(core)
	if err != nil {
		return "", false
	}
	return v.IncPatch().String(), true
}

// PostReleaseSnapshotVersion returns the snapshot version to go back to after
// releasing this version:
//   - "1.0.0.RELEASE" / "1.0.0.SR1" -> "1.0.1.BUILD-SNAPSHOT"
//   - "1.0.0.M1" / "1.0.0.RC1"      -> "1.0.0.BUILD-SNAPSHOT"
//   - "1.0.0"                       -> "1.0.1-SNAPSHOT"
//   - "Edgware.SR2"                 -> "Edgware.BUILD-SNAPSHOT"
//
// Snapshots are returned unchanged.
func (p ProjectVersion) PostReleaseSnapshotVersion() string {
	if p.Version == "" || p.IsSnapshot() {
		return p.Version
	}
	if numericReleasePattern.MatchString(p.Version) {
		if bumped, ok := bumpPatch(p.Version); ok {
			return bumped + "-SNAPSHOT"
		}
		return p.Version
	}
	m := qualifierPattern.FindStringSubmatch(p.Version)
	if m == nil {
		return p.Version
	}
	base, sep := m[1], m[2]
	if p.IsReleaseOrServiceRelease() {
		if bumped, ok := bumpPatch(base); ok {
			base = bumped
		}
	}
	if sep == "." {
		return base + ".BUILD-SNAPSHOT"
	}
	return base + "-SNAPSHOT"
}

// ForbiddenMarkers returns the pre-release markers a descriptor must not
// contain once the project is at this version. Snapshots forbid nothing.
func (p ProjectVersion) ForbiddenMarkers() []Marker {
	switch {
	case p.Version == "" || p.IsSnapshot():
		return nil
	case p.IsMilestone():
		return []Marker{SnapshotMarker}
	case p.IsReleaseCandidate():
		return []Marker{SnapshotMarker, MilestoneMarker}
	case p.IsReleaseOrServiceRelease():
		return []Marker{SnapshotMarker, MilestoneMarker, ReleaseCandidateMarker}
	default:
		return []Marker{SnapshotMarker}
	}
}
