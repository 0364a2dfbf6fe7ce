// Package descriptor reads and patches project build descriptors (POM files).
//
// Descriptors are decoded once to locate the byte range of every value a
// release may rewrite: the parent version, the project version and the
// "<project>.version" properties. Patches replace exactly those ranges, so a
// file without staged changes is never rewritten and every byte outside an
// edited value is preserved.
//
// The TreeUpdater applies the Patcher to every descriptor below a project
// root and, for release-grade versions, asserts that no pre-release marker
// was left behind.
package descriptor
