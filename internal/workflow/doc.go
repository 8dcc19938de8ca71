// Package workflow advances queue items through the configured processing
// stages.
//
// The Manager polls the queue, reclaims stale work via heartbeats, and feeds
// items into registered stage handlers (loader, merger, tempo estimator,
// quantizer, pedal inferrer, hand splitter, assembler) while capturing
// progress and failure metadata. It also aggregates queue stats and calls
// stage health checks.
//
// The workflow runs two independent lanes: foreground (source loading,
// ensemble merging) and background (tempo estimation, quantization, pedal
// inference, hand splitting, score assembly). Each lane polls for items
// matching its statuses and processes them independently, so session B can
// load and merge while session A works through renotation.
//
// Add new lifecycle stages by extending StageSet, updating the queue status
// enums, and teaching the manager how to transition items; this package is
// the authoritative home for that coordination logic.
package workflow
