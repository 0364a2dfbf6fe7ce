// Package version resolves the version every project of a release train
// should become.
//
// A [Map] holds one [Record] per logical project name. Names are normalized by
// stripping a trailing "-parent", so "foo" and "foo-parent" denote the same
// project, and lookups also accept a "-dependencies" suffix. The train's BOM
// parent artifact is the one exception: it is registered verbatim and never
// matches the BOM artifact itself.
//
// [Map.SetVersion] keeps aliases consistent: setting any platform alias
// updates the platform, its starter parent and its dependencies artifact;
// setting any train-build alias updates the build artifact and the BOM parent;
// setting the train name or a configured dependency name updates all of them.
//
// [ProjectVersion] classifies a concrete version string (snapshot, milestone,
// release candidate, release, service release) and derives the bumped and
// post-release snapshot versions.
//
// [MapCache] and [ProjectCache] are owned by one release run and cleared when
// the run ends.
package version
