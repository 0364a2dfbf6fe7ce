package descriptor

import (
	"bytes"
	"regexp"
	"sort"
	"strings"

	"github.com/Iron-Ham/releasetrain/internal/logging"
	"github.com/Iron-Ham/releasetrain/internal/version"
)

// ChangeKind identifies which value of a descriptor a Change rewrites.
type ChangeKind int

const (
	// ParentVersion rewrites /project/parent/version.
	ParentVersion ChangeKind = iota
	// ProjectVersion rewrites /project/version.
	ProjectVersion
	// PropertyVersion rewrites a <name>.version property.
	PropertyVersion
)

// String returns the change kind name.
func (k ChangeKind) String() string {
	switch k {
	case ParentVersion:
		return "parent"
	case ProjectVersion:
		return "version"
	case PropertyVersion:
		return "property"
	default:
		return "unknown"
	}
}

// Change is one staged edit.
type Change struct {
	Kind ChangeKind
	// Name is the artifact id or the property key being changed.
	Name string
	From string
	To   string
	Span Span
}

// Patch holds the changes staged for one descriptor file.
type Patch struct {
	Path    string
	Changes []Change
}

// Dirty reports whether at least one change is staged.
func (p Patch) Dirty() bool {
	return len(p.Changes) > 0
}

// Apply returns content with every staged change written into its byte
// range. Bytes outside the staged ranges are copied unchanged; a clean patch
// returns content itself.
func (p Patch) Apply(content []byte) []byte {
	if !p.Dirty() {
		return content
	}
	changes := append([]Change(nil), p.Changes...)
	sort.Slice(changes, func(i, j int) bool { return changes[i].Span.Start < changes[j].Span.Start })

	var buf bytes.Buffer
	buf.Grow(len(content))
	var pos int64
	for _, c := range changes {
		if c.Span.Start < pos || c.Span.End > int64(len(content)) {
			continue
		}
		buf.Write(content[pos:c.Span.Start])
		buf.WriteString(escapeText(c.To))
		pos = c.Span.End
	}
	buf.Write(content[pos:])
	return buf.Bytes()
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

var versionPropertyPattern = regexp.MustCompile(`^(.+)\.version$`)

// Patcher computes minimal version edits for descriptor files.
type Patcher struct {
	Logger *logging.Logger
}

// NewPatcher creates a Patcher. A nil logger discards output.
func NewPatcher(logger *logging.Logger) *Patcher {
	return &Patcher{Logger: logging.OrNop(logger)}
}

// Patch stages the changes needed to bring file in line with versions.
// root is the project's root descriptor and rootVersion the version the
// project resolves to.
//
//   - The parent version is looked up by the parent artifact id. A purely
//     structural parent (one declaring a non-empty relativePath) falls
//     back to rootVersion. Otherwise the parent is left untouched.
//   - The file's own version is rewritten only when both the file and the
//     root have a group id and the file belongs to the root's group.
//   - Every "<project>.version" property whose project is registered with a
//     different version is rewritten. Expression values are left alone.
func (p *Patcher) Patch(file, root *Model, rootVersion string, versions *version.Map) Patch {
	log := logging.OrNop(p.Logger).With("file", file.Path)
	patch := Patch{Path: file.Path}

	if parent := file.Parent; parent != nil && parent.Version != "" {
		target := versions.VersionForProject(parent.ArtifactID)
		if target == "" && parent.Structural() {
			target = rootVersion
		}
		switch {
		case target == "":
			log.Debug("parent not part of the release train, leaving its version untouched",
				"parent", parent.ArtifactID, "version", parent.Version)
		case target != parent.Version && parent.VersionSpan.Valid():
			patch.Changes = append(patch.Changes, Change{
				Kind: ParentVersion, Name: parent.ArtifactID,
				From: parent.Version, To: target, Span: parent.VersionSpan,
			})
		}
	}

	if file.Version != "" && file.VersionSpan.Valid() && sameGroup(root, file) {
		target := versions.VersionForProject(file.ArtifactID)
		if target == "" {
			target = rootVersion
		}
		if target != "" && target != file.Version {
			patch.Changes = append(patch.Changes, Change{
				Kind: ProjectVersion, Name: file.ArtifactID,
				From: file.Version, To: target, Span: file.VersionSpan,
			})
		}
	}

	for _, prop := range file.Properties {
		m := versionPropertyPattern.FindStringSubmatch(prop.Key)
		if m == nil || !prop.Span.Valid() || strings.HasPrefix(prop.Value, "${") {
			continue
		}
		target := versions.VersionForProject(m[1])
		if target == "" || target == prop.Value {
			continue
		}
		patch.Changes = append(patch.Changes, Change{
			Kind: PropertyVersion, Name: prop.Key,
			From: prop.Value, To: target, Span: prop.Span,
		})
	}

	return patch
}

// sameGroup reports whether file belongs to the logical group of root.
// Sub-groups ("org.example.sub" under "org.example") count as the same group.
func sameGroup(root, file *Model) bool {
	rootGroup := root.EffectiveGroupID()
	fileGroup := file.EffectiveGroupID()
	if rootGroup == "" || fileGroup == "" {
		return false
	}
	return fileGroup == rootGroup || strings.HasPrefix(fileGroup, rootGroup+".")
}
