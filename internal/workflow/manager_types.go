package workflow

import (
	"log/slog"

	"renote/internal/queue"
	"renote/internal/stage"
)

// StageHandler is the contract stage implementations satisfy. Aliased so
// callers wiring the daemon do not need to import the stage package.
type StageHandler = stage.Handler

// loggerAware mirrors stage.LoggerAware without forcing the lane runner to
// disambiguate the stage package from pipelineStage locals.
type loggerAware interface {
	SetLogger(*slog.Logger)
}

// StageSet bundles the concrete workflow handlers the manager orchestrates.
type StageSet struct {
	Loader         stage.Handler
	Merger         stage.Handler
	TempoEstimator stage.Handler
	Quantizer      stage.Handler
	PedalInferrer  stage.Handler
	HandSplitter   stage.Handler
	Assembler      stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
}

type laneKind string

const (
	laneForeground laneKind = "foreground"
	laneBackground laneKind = "background"
)

type laneState struct {
	kind               laneKind
	name               string
	stages             []pipelineStage
	statusOrder        []queue.Status
	stageByStart       map[queue.Status]pipelineStage
	processingStatuses []queue.Status
	logger             *slog.Logger
	announceRuns       bool
	runReclaimer       bool
}

func (l *laneState) finalize() {
	if l == nil {
		return
	}
	l.stageByStart = make(map[queue.Status]pipelineStage, len(l.stages))
	l.statusOrder = make([]queue.Status, 0, len(l.stages))
	seenProcessing := make(map[queue.Status]struct{})
	for _, stg := range l.stages {
		l.stageByStart[stg.startStatus] = stg
		l.statusOrder = append(l.statusOrder, stg.startStatus)
		if stg.processingStatus != "" {
			if _, ok := seenProcessing[stg.processingStatus]; !ok {
				l.processingStatuses = append(l.processingStatuses, stg.processingStatus)
				seenProcessing[stg.processingStatus] = struct{}{}
			}
		}
	}
}

func (l *laneState) stageForStatus(status queue.Status) (pipelineStage, bool) {
	if l == nil {
		return pipelineStage{}, false
	}
	stg, ok := l.stageByStart[status]
	return stg, ok
}
