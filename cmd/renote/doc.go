// Package main hosts the renote CLI entrypoint and command graph.
//
// The Cobra-based command tree covers the foreground daemon, session intake,
// synchronous one-shot fusion runs, queue maintenance, item inspection, and
// configuration scaffolding. It centralizes configuration resolution and
// queue store access so subcommands can focus on user experience instead of
// wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
// That separation keeps the CLI declarative while the heavy lifting lives in
// reusable pipeline components.
package main
