// Package daemon coordinates the long-running renote process.
//
// It wires configuration, queue storage, the workflow manager, and the
// watch-directory monitor into a single lifecycle with flock-based locking
// to prevent multiple instances. Startup runs preflight checks and returns
// interrupted items to their stage entry status before any lane starts.
//
// Keep orchestration logic here: individual pipeline stages live in their
// own packages while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
