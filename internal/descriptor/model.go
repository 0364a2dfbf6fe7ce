package descriptor

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/Iron-Ham/releasetrain/internal/errors"
)

// Span is the byte range [Start, End) of an element's text inside the
// descriptor content it was decoded from.
type Span struct {
	Start int64
	End   int64
}

// Valid reports whether the span addresses editable text.
func (s Span) Valid() bool {
	return s.Start >= 0 && s.End > s.Start
}

// Coordinates identify an artifact. VersionSpan is only valid when the
// version is declared as plain text.
type Coordinates struct {
	GroupID     string
	ArtifactID  string
	Version     string
	VersionSpan Span
}

// Parent is the parent coordinate of a descriptor.
type Parent struct {
	Coordinates
	RelativePath    string
	HasRelativePath bool
}

// Structural reports whether the parent points at a descriptor inside the
// tree. An empty relativePath element asks for a repository lookup, so it
// does not count.
func (p *Parent) Structural() bool {
	return strings.TrimSpace(p.RelativePath) != ""
}

// Property is one entry of a properties block.
type Property struct {
	Key   string
	Value string
	Span  Span
}

// Plugin is a build plugin declared in plugins or pluginManagement, in the
// main build or in a profile.
type Plugin struct {
	GroupID    string
	ArtifactID string
	Skip       bool
	Managed    bool
	Profile    string
}

// Model is a decoded descriptor. It keeps the byte offsets of every value
// the patcher may rewrite so edits never re-serialize the document.
type Model struct {
	Path string
	Coordinates
	Parent *Parent
	// Properties of the main properties block in document order.
	Properties []Property
	// ProfileProperties are properties declared inside profiles. They are
	// only consulted for deploy-skip detection.
	ProfileProperties []Property
	Plugins           []Plugin
}

// EffectiveGroupID returns the group id, inherited from the parent when the
// descriptor does not declare one.
func (m *Model) EffectiveGroupID() string {
	if m.GroupID != "" {
		return m.GroupID
	}
	if m.Parent != nil {
		return m.Parent.GroupID
	}
	return ""
}

// EffectiveVersion returns the version, inherited from the parent when the
// descriptor does not declare one.
func (m *Model) EffectiveVersion() string {
	if m.Version != "" {
		return m.Version
	}
	if m.Parent != nil {
		return m.Parent.Version
	}
	return ""
}

// Property returns the value of the named main property.
func (m *Model) Property(key string) (string, bool) {
	for _, p := range m.Properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// DeploySkipped reports whether the descriptor opts out of deployment, either
// through one of skipProperties set to true or through a skip flag on the
// deploy plugin anywhere in its plugin configuration.
func (m *Model) DeploySkipped(skipProperties []string) bool {
	for _, props := range [][]Property{m.Properties, m.ProfileProperties} {
		for _, p := range props {
			if slices.Contains(skipProperties, p.Key) && strings.EqualFold(p.Value, "true") {
				return true
			}
		}
	}
	for _, p := range m.Plugins {
		if p.ArtifactID == deployPluginArtifactID && p.Skip {
			return true
		}
	}
	return false
}

const deployPluginArtifactID = "maven-deploy-plugin"

// ReadFile reads and decodes the descriptor at path.
func ReadFile(path string) (*Model, []byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := Parse(path, content)
	if err != nil {
		return nil, nil, err
	}
	return m, content, nil
}

// element tracks one open element while decoding.
type element struct {
	name      string
	textStart int64
	text      strings.Builder
}

// pluginState accumulates a plugin while its element is open.
type pluginState struct {
	depth  int
	plugin Plugin
}

// Parse decodes descriptor content. path is only used in error messages and
// recorded on the model.
func Parse(path string, content []byte) (*Model, error) {
	m := &Model{Path: path}
	src, offsets, err := utf8Source(path, content)
	if err != nil {
		return nil, err
	}
	dec := xml.NewDecoder(bytes.NewReader(src))
	dec.CharsetReader = passThrough

	var (
		stack   []*element
		plugin  *pluginState
		profile string
	)

	for {
		tokStart := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(errors.Join(errors.ErrMalformedDescriptor, err), "decoding %s", path)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, &element{name: t.Name.Local, textStart: dec.InputOffset()})
			if plugin == nil && t.Name.Local == "plugin" && len(stack) >= 2 && stack[len(stack)-2].name == "plugins" {
				plugin = &pluginState{depth: len(stack), plugin: Plugin{
					Managed: pathContains(stack, "pluginManagement"),
					Profile: profile,
				}}
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.Wrapf(errors.ErrMalformedDescriptor, "unbalanced element %q in %s", t.Name.Local, path)
			}
			el := stack[len(stack)-1]
			value := strings.TrimSpace(el.text.String())
			span := offsets.span(textSpan(src, el.textStart, tokStart))

			m.assign(stack, value, span)
			if plugin != nil {
				plugin.assign(stack, value)
				if len(stack) == plugin.depth {
					m.Plugins = append(m.Plugins, plugin.plugin)
					plugin = nil
				}
			}
			if pathEquals(stack, "project", "profiles", "profile", "id") {
				profile = value
			}
			if pathEquals(stack, "project", "profiles", "profile") {
				profile = ""
			}
			stack = stack[:len(stack)-1]
		}
	}

	if len(stack) != 0 {
		return nil, errors.Wrapf(errors.ErrMalformedDescriptor, "unclosed element %q in %s", stack[len(stack)-1].name, path)
	}
	if m.ArtifactID == "" {
		return nil, errors.Wrapf(errors.ErrMalformedDescriptor, "%s declares no artifactId", path)
	}
	return m, nil
}

func (m *Model) assign(stack []*element, value string, span Span) {
	switch {
	case pathEquals(stack, "project", "groupId"):
		m.GroupID = value
	case pathEquals(stack, "project", "artifactId"):
		m.ArtifactID = value
	case pathEquals(stack, "project", "version"):
		m.Version, m.VersionSpan = value, span
	case pathEquals(stack, "project", "parent", "groupId"):
		m.parent().GroupID = value
	case pathEquals(stack, "project", "parent", "artifactId"):
		m.parent().ArtifactID = value
	case pathEquals(stack, "project", "parent", "version"):
		p := m.parent()
		p.Version, p.VersionSpan = value, span
	case pathEquals(stack, "project", "parent", "relativePath"):
		p := m.parent()
		p.RelativePath, p.HasRelativePath = value, true
	case len(stack) == 3 && pathEquals(stack[:2], "project", "properties"):
		m.Properties = append(m.Properties, Property{Key: stack[2].name, Value: value, Span: span})
	case len(stack) == 5 && pathEquals(stack[:4], "project", "profiles", "profile", "properties"):
		m.ProfileProperties = append(m.ProfileProperties, Property{Key: stack[4].name, Value: value, Span: span})
	}
}

func (m *Model) parent() *Parent {
	if m.Parent == nil {
		m.Parent = &Parent{}
	}
	return m.Parent
}

func (p *pluginState) assign(stack []*element, value string) {
	rel := len(stack) - p.depth
	name := stack[len(stack)-1].name
	switch {
	case rel == 1 && name == "groupId":
		p.plugin.GroupID = value
	case rel == 1 && name == "artifactId":
		p.plugin.ArtifactID = value
	case rel >= 2 && name == "skip" && stack[len(stack)-2].name == "configuration":
		if strings.EqualFold(value, "true") {
			p.plugin.Skip = true
		}
	}
}

// textSpan returns the span of the trimmed text between start and end. Text
// that contains markup (comments, child elements) is not editable.
func textSpan(content []byte, start, end int64) Span {
	if start < 0 || end > int64(len(content)) || start >= end {
		return Span{Start: -1, End: -1}
	}
	raw := content[start:end]
	if bytes.ContainsAny(raw, "<>") {
		return Span{Start: -1, End: -1}
	}
	lead := len(raw) - len(bytes.TrimLeft(raw, " \t\r\n"))
	trail := len(raw) - len(bytes.TrimRight(raw, " \t\r\n"))
	if lead == len(raw) {
		return Span{Start: -1, End: -1}
	}
	return Span{Start: start + int64(lead), End: end - int64(trail)}
}

func pathEquals(stack []*element, names ...string) bool {
	if len(stack) != len(names) {
		return false
	}
	for i, n := range names {
		if stack[i].name != n {
			return false
		}
	}
	return true
}

func pathContains(stack []*element, name string) bool {
	for _, el := range stack {
		if el.name == name {
			return true
		}
	}
	return false
}

// String renders the model coordinates for log messages.
func (m *Model) String() string {
	return fmt.Sprintf("%s:%s:%s", m.EffectiveGroupID(), m.ArtifactID, m.EffectiveVersion())
}
