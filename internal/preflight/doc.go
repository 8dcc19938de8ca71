// Package preflight provides readiness checks for the filesystem paths and
// queue database renote depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and refuses to start when a required
//     path is unusable, so sessions do not fail one by one later.
//   - The CLI "renote preflight" command renders the same results for
//     operators setting up a new machine.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
