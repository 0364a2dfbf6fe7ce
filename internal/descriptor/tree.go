package descriptor

import (
	"bufio"
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/logging"
	"github.com/Iron-Ham/releasetrain/internal/version"
)

// DefaultFileName is the descriptor file looked up in every directory.
const DefaultFileName = "pom.xml"

// DefaultIgnorePatterns skips VCS metadata, build output and test fixtures.
var DefaultIgnorePatterns = []string{
	"**/.git/**",
	"**/target/**",
	"**/node_modules/**",
	"**/src/test/resources/**",
}

// DefaultDeploySkipProperties are the properties that opt a descriptor out
// of deployment when set to true.
var DefaultDeploySkipProperties = []string{"maven.deploy.skip", "skipDeploy"}

// Options configure a TreeUpdater.
type Options struct {
	FileName             string
	IgnorePatterns       []string
	DeploySkipProperties []string
	// WhitelistPatterns exempt matching lines from the leftover marker check.
	WhitelistPatterns []string
}

// TreeUpdater walks a project's descriptor tree, patches every descriptor
// and checks the result for leftover pre-release markers.
type TreeUpdater struct {
	fileName       string
	ignore         []glob.Glob
	skipProperties []string
	whitelist      []*regexp.Regexp
	patcher        *Patcher
	logger         *logging.Logger
}

// NewTreeUpdater compiles opts into a TreeUpdater. Empty options fall back
// to the package defaults.
func NewTreeUpdater(opts Options, logger *logging.Logger) (*TreeUpdater, error) {
	logger = logging.OrNop(logger)
	u := &TreeUpdater{
		fileName:       opts.FileName,
		skipProperties: opts.DeploySkipProperties,
		patcher:        NewPatcher(logger),
		logger:         logger,
	}
	if u.fileName == "" {
		u.fileName = DefaultFileName
	}
	if u.skipProperties == nil {
		u.skipProperties = DefaultDeploySkipProperties
	}

	patterns := opts.IgnorePatterns
	if patterns == nil {
		patterns = DefaultIgnorePatterns
	}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.NewConfigurationError("invalid descriptor ignore pattern", err).
				WithField("descriptor.ignore_patterns")
		}
		u.ignore = append(u.ignore, g)
	}
	for _, p := range opts.WhitelistPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.NewConfigurationError("invalid whitelist pattern", err).
				WithField("descriptor.whitelist_patterns")
		}
		u.whitelist = append(u.whitelist, re)
	}
	return u, nil
}

// FileName returns the descriptor file name the updater looks for.
func (u *TreeUpdater) FileName() string {
	return u.fileName
}

// RootDescriptor returns the path of the root descriptor of the project at root.
func (u *TreeUpdater) RootDescriptor(root string) string {
	return filepath.Join(root, u.fileName)
}

// ShouldUpdate reports whether the project at root takes part in the train
// described by versions. A missing root descriptor or a project absent from
// versions means the project is skipped; neither is an error.
func (u *TreeUpdater) ShouldUpdate(root string, versions *version.Map) bool {
	model, _, err := ReadFile(u.RootDescriptor(root))
	if err != nil {
		u.logger.Info("no readable root descriptor, skipping project", "root", root, "error", err)
		return false
	}
	if !versions.Matches(model.ArtifactID) {
		u.logger.Info("project not part of the release train, skipping",
			"root", root, "artifact", model.ArtifactID)
		return false
	}
	return true
}

func (u *TreeUpdater) ignored(rel string) bool {
	for _, g := range u.ignore {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Descriptors returns every descriptor file under root in walk order,
// skipping paths that match an ignore pattern.
func (u *TreeUpdater) Descriptors(root string) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	var files []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return err
		}
		// Patterns are matched against the root-relative path with a leading
		// slash so "**/dir/**" also matches top-level directories.
		rel = "/" + filepath.ToSlash(rel)
		if d.IsDir() {
			if path != abs && u.ignored(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == u.fileName && !u.ignored(rel) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking %s", root)
	}
	return files, nil
}

// FileResult describes what happened to one descriptor.
type FileResult struct {
	Path    string
	Changes []Change
	Written bool
}

// UpdateResult summarises a tree update.
type UpdateResult struct {
	// Skipped is set when the project is not part of the train.
	Skipped bool
	Project version.ProjectVersion
	Files   []FileResult
}

// Written returns the number of files written back.
func (r UpdateResult) Written() int {
	n := 0
	for _, f := range r.Files {
		if f.Written {
			n++
		}
	}
	return n
}

// Update patches every descriptor under root. Files are written iff they
// carry a staged change. When target is a release-grade version the tree
// is then checked for leftover markers. A zero target means the version
// the project resolves to in versions.
func (u *TreeUpdater) Update(ctx context.Context, root string, versions *version.Map, target version.ProjectVersion) (UpdateResult, error) {
	if !u.ShouldUpdate(root, versions) {
		return UpdateResult{Skipped: true}, nil
	}

	rootModel, _, err := ReadFile(u.RootDescriptor(root))
	if err != nil {
		return UpdateResult{}, err
	}
	rootVersion := versions.VersionForProject(rootModel.ArtifactID)
	if target.IsZero() {
		target = version.NewProjectVersion(rootModel.ArtifactID, rootVersion)
	}
	result := UpdateResult{Project: target}
	log := u.logger.With("project", target.ProjectName, "target_version", target.Version)

	files, err := u.Descriptors(root)
	if err != nil {
		return result, err
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return result, errors.Join(errors.ErrCanceled, err)
		}
		fr, err := u.updateFile(path, rootModel, rootVersion, versions)
		if err != nil {
			return result, err
		}
		if fr.Written {
			log.Info("descriptor updated", "file", path, "changes", len(fr.Changes))
		}
		result.Files = append(result.Files, fr)
	}

	if err := u.AssertNoLeftoverMarkers(root, target); err != nil {
		return result, err
	}
	return result, nil
}

func (u *TreeUpdater) updateFile(path string, root *Model, rootVersion string, versions *version.Map) (FileResult, error) {
	model, content, err := ReadFile(path)
	if err != nil {
		return FileResult{}, err
	}
	patch := u.patcher.Patch(model, root, rootVersion, versions)
	fr := FileResult{Path: path, Changes: patch.Changes}
	if !patch.Dirty() {
		return fr, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fr, err
	}
	if err := os.WriteFile(path, patch.Apply(content), info.Mode().Perm()); err != nil {
		return fr, errors.Wrapf(err, "writing %s", path)
	}
	fr.Written = true
	return fr, nil
}

// AssertNoLeftoverMarkers scans every descriptor under root for the
// pre-release markers target forbids. Comments and whitelisted lines are
// exempt. A marker in a deploy-skipped descriptor is logged and tolerated;
// anywhere else it fails with an error naming the file and line.
func (u *TreeUpdater) AssertNoLeftoverMarkers(root string, target version.ProjectVersion) error {
	markers := target.ForbiddenMarkers()
	if target.IsSnapshot() || len(markers) == 0 {
		return nil
	}
	files, err := u.Descriptors(root)
	if err != nil {
		return err
	}
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		line, marker, text, found := u.findMarker(content, markers)
		if !found {
			continue
		}
		if model, err := Parse(path, content); err == nil && model.DeploySkipped(u.skipProperties) {
			u.logger.Warn("leftover pre-release marker in deploy-skipped descriptor",
				"file", path, "line", line, "marker", marker)
			continue
		}
		return errors.NewVersionAssertionError(path, line, marker, text)
	}
	return nil
}

func (u *TreeUpdater) findMarker(content []byte, markers []version.Marker) (int, string, string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	inComment := false
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		var code string
		code, inComment = stripComments(raw, inComment)
		if strings.TrimSpace(code) == "" || u.whitelisted(raw) {
			continue
		}
		for _, m := range markers {
			if m.Pattern.MatchString(code) {
				return lineNo, m.Name, raw, true
			}
		}
	}
	return 0, "", "", false
}

func (u *TreeUpdater) whitelisted(line string) bool {
	for _, re := range u.whitelist {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// stripComments removes XML comment text from line. inComment reports
// whether the line starts inside a comment opened on an earlier line.
func stripComments(line string, inComment bool) (string, bool) {
	var b strings.Builder
	rest := line
	for rest != "" {
		if inComment {
			end := strings.Index(rest, "-->")
			if end < 0 {
				return b.String(), true
			}
			rest = rest[end+3:]
			inComment = false
			continue
		}
		start := strings.Index(rest, "<!--")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:start])
		rest = rest[start+4:]
		inComment = true
	}
	return b.String(), inComment
}

// ReadProjectVersion reads the current version of the project rooted at
// root from its root descriptor. Its signature matches version.LoadFunc.
func (u *TreeUpdater) ReadProjectVersion(root string) (version.ProjectVersion, error) {
	path := u.RootDescriptor(root)
	model, _, err := ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return version.ProjectVersion{}, errors.NewNotFoundError("descriptor", path).
				WithCause(errors.ErrMissingDescriptor)
		}
		return version.ProjectVersion{}, err
	}
	return version.NewProjectVersion(model.ArtifactID, model.EffectiveVersion()), nil
}
