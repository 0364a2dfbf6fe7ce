// Package manifest turns a release train checkout into a version map.
package manifest

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Iron-Ham/releasetrain/internal/descriptor"
	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/logging"
	"github.com/Iron-Ham/releasetrain/internal/version"
)

// Defaults for the Spring Cloud release train layout.
const (
	DefaultPlatformDescriptor = "spring-cloud-starter-parent/pom.xml"
	DefaultBOMDescriptor      = "spring-cloud-dependencies/pom.xml"
	DefaultPropertyPattern    = `^(spring-cloud-.*)\.version$`
)

// Parser reads the two train descriptors of a checkout:
//   - the platform descriptor, whose parent coordinate carries the runtime
//     platform version;
//   - the BOM descriptor, whose parent carries the train build version, whose
//     own version is the train version and whose properties list the member
//     project versions.
type Parser struct {
	Names version.Names
	// PlatformParentArtifactID is the parent the platform descriptor must
	// declare. Defaults to "<platform>-starter-parent".
	PlatformParentArtifactID string
	// PlatformDescriptor and BOMDescriptor are relative to the checkout.
	PlatformDescriptor string
	BOMDescriptor      string
	// PropertyPattern selects member project properties. Group 1 is the
	// project name.
	PropertyPattern string
	Logger          *logging.Logger
}

// NewParser returns a Parser with the default layout for names.
func NewParser(names version.Names, logger *logging.Logger) *Parser {
	return &Parser{
		Names:              names,
		PlatformDescriptor: DefaultPlatformDescriptor,
		BOMDescriptor:      DefaultBOMDescriptor,
		PropertyPattern:    DefaultPropertyPattern,
		Logger:             logger,
	}
}

func (p *Parser) platformParent() string {
	if p.PlatformParentArtifactID != "" {
		return p.PlatformParentArtifactID
	}
	if aliases := p.Names.PlatformAliases(); len(aliases) > 1 {
		return aliases[1]
	}
	return ""
}

func (p *Parser) propertyPattern() (*regexp.Regexp, error) {
	pattern := p.PropertyPattern
	if pattern == "" {
		pattern = DefaultPropertyPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.NewConfigurationError("invalid property pattern", err).WithField("train.property_pattern")
	}
	if re.NumSubexp() != 1 {
		return nil, errors.NewConfigurationError("property pattern must have exactly one capturing group", errors.ErrInvalidInput).
			WithField("train.property_pattern")
	}
	return re, nil
}

// Parse builds the version map of the train checked out at dir. A missing
// descriptor contributes nothing, so an empty checkout yields an empty map;
// callers decide whether that is fatal. A descriptor whose parent is not
// the expected artifact fails with a ConfigurationError.
func (p *Parser) Parse(dir string) (*version.Map, error) {
	log := logging.OrNop(p.Logger).With("checkout", dir)
	re, err := p.propertyPattern()
	if err != nil {
		return nil, err
	}
	versions := version.NewMap(p.Names)

	platform, err := readOptional(filepath.Join(dir, p.PlatformDescriptor))
	if err != nil {
		return nil, err
	}
	if platform != nil {
		parent, err := expectParent(platform, p.platformParent())
		if err != nil {
			return nil, err
		}
		versions.SetVersion(p.Names.PlatformName, parent.Version)
	} else {
		log.Warn("platform descriptor not found", "path", p.PlatformDescriptor)
	}

	bom, err := readOptional(filepath.Join(dir, p.BOMDescriptor))
	if err != nil {
		return nil, err
	}
	if bom == nil {
		log.Warn("bill of materials descriptor not found", "path", p.BOMDescriptor)
		return versions, nil
	}
	parent, err := expectParent(bom, p.Names.BOMParentArtifactID)
	if err != nil {
		return nil, err
	}
	versions.SetVersion(p.Names.BuildArtifactID, parent.Version)
	if v := bom.Version; v != "" {
		versions.SetVersion(p.Names.TrainName, v)
	}
	for _, prop := range bom.Properties {
		m := re.FindStringSubmatch(prop.Key)
		if m == nil || m[1] == "" || prop.Value == "" || strings.HasPrefix(prop.Value, "${") {
			continue
		}
		versions.SetVersion(m[1], prop.Value)
	}

	log.Debug("parsed release train", "projects", versions.Len())
	return versions, nil
}

func readOptional(path string) (*descriptor.Model, error) {
	model, _, err := descriptor.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewConfigurationError("cannot read train descriptor", err).WithFile(path)
	}
	return model, nil
}

func expectParent(model *descriptor.Model, artifactID string) (*descriptor.Parent, error) {
	if model.Parent == nil || model.Parent.ArtifactID != artifactID {
		got := ""
		if model.Parent != nil {
			got = model.Parent.ArtifactID
		}
		return nil, errors.NewConfigurationError(
			"expected parent "+artifactID+" but found "+quoteOrNone(got), errors.ErrUnexpectedParent).
			WithFile(model.Path).WithField("parent.artifactId")
	}
	if model.Parent.Version == "" {
		return nil, errors.NewConfigurationError("parent "+artifactID+" declares no version", errors.ErrMalformedDescriptor).
			WithFile(model.Path).WithField("parent.version")
	}
	return model.Parent, nil
}

func quoteOrNone(s string) string {
	if s == "" {
		return "none"
	}
	return `"` + s + `"`
}
