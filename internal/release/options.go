package release

import (
	"maps"
	"slices"
	"time"

	"github.com/Iron-Ham/releasetrain/internal/config"
	"github.com/Iron-Ham/releasetrain/internal/step"
)

// Options are the operator's choices for one release run.
type Options struct {
	MetaRelease bool
	DryRun      bool
	Interactive bool

	// Steps, From and To select a subset of the catalog. Empty means all.
	Steps []string
	From  string
	To    string

	// FixedVersions override the train manifest, keyed by project name.
	FixedVersions map[string]string
	// Projects are the meta-release projects in release order.
	Projects []string
	// Groups are sets of projects released in parallel.
	Groups [][]string

	Threads      int
	GroupTimeout time.Duration

	// TrainDir is the release train checkout, Ref its branch or tag.
	TrainDir     string
	Ref          string
	WorkspaceDir string
}

// OptionsFromConfig collects the release options of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MetaRelease:   cfg.Release.MetaRelease,
		DryRun:        cfg.Release.DryRun,
		Interactive:   cfg.Release.Interactive,
		Steps:         slices.Clone(cfg.Release.Steps),
		From:          cfg.Release.From,
		To:            cfg.Release.To,
		FixedVersions: maps.Clone(cfg.Release.FixedVersions),
		Projects:      slices.Clone(cfg.Release.Projects),
		Groups:        cfg.ReleaseGroups(),
		Threads:       cfg.Scheduler.Threads,
		GroupTimeout:  cfg.Scheduler.GroupTimeout(),
		TrainDir:      cfg.Train.CheckoutDir,
		Ref:           cfg.Train.Ref,
		WorkspaceDir:  cfg.Release.WorkspaceDir,
	}
}

// Selection returns the step selection of the options.
func (o Options) Selection() step.Selection {
	return step.Selection{Names: o.Steps, From: o.From, To: o.To}
}

// ReleaseProjects returns the meta-release projects: the configured list,
// else every grouped project, else the projects with a fixed version.
func (o Options) ReleaseProjects() []string {
	if len(o.Projects) > 0 {
		return o.Projects
	}
	if len(o.Groups) > 0 {
		return slices.Concat(o.Groups...)
	}
	return slices.Sorted(maps.Keys(o.FixedVersions))
}

// BuildGroups orders projects into release groups. A project that belongs
// to a configured group pulls in its whole group at the position of its
// first member; any other project forms a group of its own. Grouped
// projects that are not in projects are dropped.
func BuildGroups(projects []string, groups [][]string) [][]string {
	groupOf := make(map[string]int)
	for i, g := range groups {
		for _, p := range g {
			groupOf[p] = i
		}
	}
	wanted := make(map[string]bool, len(projects))
	for _, p := range projects {
		wanted[p] = true
	}

	var out [][]string
	emitted := make(map[int]bool)
	seen := make(map[string]bool)
	for _, p := range projects {
		if seen[p] {
			continue
		}
		gi, grouped := groupOf[p]
		if !grouped {
			seen[p] = true
			out = append(out, []string{p})
			continue
		}
		if emitted[gi] {
			continue
		}
		emitted[gi] = true
		var members []string
		for _, m := range groups[gi] {
			if wanted[m] && !seen[m] {
				seen[m] = true
				members = append(members, m)
			}
		}
		out = append(out, members)
	}
	return out
}
