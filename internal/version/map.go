package version

import (
	"slices"
	"sort"
	"strings"
	"sync"
)

// Names configures the well-known artifacts of a release train.
type Names struct {
	// TrainName is the release train project, e.g. "spring-cloud-release".
	TrainName string `mapstructure:"name" yaml:"name"`
	// BOMArtifactID is the train's bill of materials, e.g. "spring-cloud-dependencies".
	BOMArtifactID string `mapstructure:"bom_artifact_id" yaml:"bom_artifact_id"`
	// BOMParentArtifactID is the BOM's parent, e.g. "spring-cloud-dependencies-parent".
	// It carries the train build version and is never normalized.
	BOMParentArtifactID string `mapstructure:"bom_parent_artifact_id" yaml:"bom_parent_artifact_id"`
	// BuildArtifactID is the train build project, e.g. "spring-cloud-build".
	BuildArtifactID string `mapstructure:"build_artifact_id" yaml:"build_artifact_id"`
	// PlatformName is the runtime platform project, e.g. "spring-boot".
	PlatformName string `mapstructure:"platform_name" yaml:"platform_name"`
	// DependencyNames are updated together with the train name.
	DependencyNames []string `mapstructure:"dependency_names" yaml:"dependency_names"`
}

// DefaultNames returns the Spring Cloud release train names.
func DefaultNames() Names {
	return Names{
		TrainName:           "spring-cloud-release",
		BOMArtifactID:       "spring-cloud-dependencies",
		BOMParentArtifactID: "spring-cloud-dependencies-parent",
		BuildArtifactID:     "spring-cloud-build",
		PlatformName:        "spring-boot",
		DependencyNames: []string{
			"spring-cloud-dependencies",
			"spring-cloud-starter-parent",
			"spring-cloud-starter-build",
		},
	}
}

// PlatformAliases returns the platform name, its starter parent and its
// dependencies artifact.
func (n Names) PlatformAliases() []string {
	if n.PlatformName == "" {
		return nil
	}
	return []string{
		n.PlatformName,
		n.PlatformName + "-starter-parent",
		n.PlatformName + dependenciesSuffix,
	}
}

// BuildAliases returns the train build artifact and the BOM parent artifact.
func (n Names) BuildAliases() []string {
	return nonEmpty(n.BuildArtifactID, n.BOMParentArtifactID)
}

// TrainAliases returns the train name followed by the dependency names.
func (n Names) TrainAliases() []string {
	return nonEmpty(append([]string{n.TrainName}, n.DependencyNames...)...)
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

// Map is the canonical set of Records for one release train snapshot.
// It holds at most one Record per normalized name. A Map is safe for
// concurrent use; once built it is treated as read-mostly.
type Map struct {
	mu      sync.RWMutex
	names   Names
	records map[string]Record
}

// NewMap creates an empty Map for the given train names.
func NewMap(names Names) *Map {
	return &Map{
		names:   names,
		records: make(map[string]Record),
	}
}

// Names returns the train names the Map was created with.
func (m *Map) Names() Names {
	return m.names
}

// key returns the registry key for name. The reserved BOM parent keeps its
// suffix so it can never collide with the BOM artifact.
func (m *Map) key(name string) string {
	name = strings.TrimSpace(name)
	if m.isReservedBOMParent(name) {
		return name
	}
	return NormalizeName(name)
}

func (m *Map) record(name, version string) Record {
	if m.isReservedBOMParent(strings.TrimSpace(name)) {
		return newRawRecord(name, version)
	}
	return NewRecord(name, version)
}

func (m *Map) isReservedBOMParent(name string) bool {
	return m.names.BOMParentArtifactID != "" && name == m.names.BOMParentArtifactID
}

func (m *Map) sameProject(a, b string) bool {
	return m.key(a) == m.key(b)
}

func (m *Map) isAliasOf(name string, aliases []string) bool {
	return slices.ContainsFunc(aliases, func(alias string) bool {
		return m.sameProject(name, alias)
	})
}

// Add registers name at version without alias propagation, replacing any
// existing record for the same normalized name.
func (m *Map) Add(name, version string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(name, version)
}

func (m *Map) put(name, version string) {
	r := m.record(name, version)
	m.records[r.Name()] = r
}

// SetVersion sets the version of name, keeping all of its aliases consistent:
//   - a platform alias updates every platform alias;
//   - a train build alias updates the build artifact and the BOM parent;
//   - the train name or a dependency name updates the train and all
//     dependency names;
//   - any other name is replaced or inserted on its own.
func (m *Map) SetVersion(name, version string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, aliases := range [][]string{
		m.names.PlatformAliases(),
		m.names.BuildAliases(),
		m.names.TrainAliases(),
	} {
		if m.isAliasOf(name, aliases) {
			for _, alias := range aliases {
				m.put(alias, version)
			}
			return
		}
	}
	m.put(name, version)
}

// ApplyFixedVersions overlays operator supplied versions. Keys are applied
// in sorted order so the result does not depend on map iteration.
func (m *Map) ApplyFixedVersions(fixed map[string]string) {
	keys := make([]string, 0, len(fixed))
	for k := range fixed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.SetVersion(k, fixed[k])
	}
}

// lookup resolves name against the registered records. Callers hold m.mu.
func (m *Map) lookup(name string) (Record, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Record{}, false
	}
	if r, ok := m.records[m.key(name)]; ok {
		return r, true
	}
	// The BOM parent is registered explicitly or not at all.
	if m.isReservedBOMParent(name) {
		return Record{}, false
	}
	if stripped, ok := strings.CutSuffix(name, dependenciesSuffix); ok && stripped != "" {
		if r, ok := m.records[m.key(stripped)]; ok {
			// The BOM artifact never resolves through its parent's record.
			if m.isReservedBOMParent(r.Name()) {
				return Record{}, false
			}
			return r, true
		}
	}
	return Record{}, false
}

// Matches reports whether name resolves to a registered project. Exact
// names match, as do names carrying a "-parent" or "-dependencies" suffix of
// a registered project. The BOM artifact and its "-parent" companion never
// match each other.
func (m *Map) Matches(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.lookup(name)
	return ok
}

// Version returns the version registered for name.
func (m *Map) Version(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.lookup(name)
	return r.Version(), ok
}

// VersionForProject returns the version registered for name, or "" when the
// project is not part of the train.
func (m *Map) VersionForProject(name string) string {
	v, _ := m.Version(name)
	return v
}

// Record returns the record name resolves to.
func (m *Map) Record(name string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookup(name)
}

// Records returns all records sorted by name.
func (m *Map) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of records.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// IsEmpty reports whether the map holds no records.
func (m *Map) IsEmpty() bool {
	return m.Len() == 0
}

// Clone returns an independent copy of the map.
func (m *Map) Clone() *Map {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := NewMap(m.names)
	for k, r := range m.records {
		c.records[k] = r
	}
	return c
}

// AsStringMap returns name -> version for every record.
func (m *Map) AsStringMap() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.records))
	for k, r := range m.records {
		out[k] = r.Version()
	}
	return out
}
