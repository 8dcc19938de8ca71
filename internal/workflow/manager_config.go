package workflow

import "renote/internal/queue"

// ConfigureStages registers the concrete stage handlers the workflow will run.
// The status chain is fixed; a nil handler leaves a gap where items simply
// park at the preceding done status, which keeps partial wiring usable in
// tests and in the one-shot runner.
func (m *Manager) ConfigureStages(set StageSet) {
	foreground := &laneState{kind: laneForeground, name: "foreground", announceRuns: true}
	background := &laneState{kind: laneBackground, name: "background"}

	if set.Loader != nil {
		foreground.stages = append(foreground.stages, pipelineStage{
			name:             "load",
			handler:          set.Loader,
			startStatus:      queue.StatusPending,
			processingStatus: queue.StatusLoading,
			doneStatus:       queue.StatusLoaded,
		})
	}
	if set.Merger != nil {
		foreground.stages = append(foreground.stages, pipelineStage{
			name:             "merge",
			handler:          set.Merger,
			startStatus:      queue.StatusLoaded,
			processingStatus: queue.StatusMerging,
			doneStatus:       queue.StatusMerged,
		})
	}
	if set.TempoEstimator != nil {
		background.stages = append(background.stages, pipelineStage{
			name:             "tempo",
			handler:          set.TempoEstimator,
			startStatus:      queue.StatusMerged,
			processingStatus: queue.StatusTempoEstimating,
			doneStatus:       queue.StatusTempoEstimated,
		})
	}
	if set.Quantizer != nil {
		background.stages = append(background.stages, pipelineStage{
			name:             "quantize",
			handler:          set.Quantizer,
			startStatus:      queue.StatusTempoEstimated,
			processingStatus: queue.StatusQuantizing,
			doneStatus:       queue.StatusQuantized,
		})
	}
	if set.PedalInferrer != nil {
		background.stages = append(background.stages, pipelineStage{
			name:             "pedal",
			handler:          set.PedalInferrer,
			startStatus:      queue.StatusQuantized,
			processingStatus: queue.StatusPedalInferring,
			doneStatus:       queue.StatusPedalInferred,
		})
	}
	if set.HandSplitter != nil {
		background.stages = append(background.stages, pipelineStage{
			name:             "hands",
			handler:          set.HandSplitter,
			startStatus:      queue.StatusPedalInferred,
			processingStatus: queue.StatusHandSplitting,
			doneStatus:       queue.StatusHandsSplit,
		})
	}
	if set.Assembler != nil {
		background.stages = append(background.stages, pipelineStage{
			name:             "assemble",
			handler:          set.Assembler,
			startStatus:      queue.StatusHandsSplit,
			processingStatus: queue.StatusAssembling,
			doneStatus:       queue.StatusCompleted,
		})
	}

	lanes := make(map[laneKind]*laneState)
	order := make([]laneKind, 0, 2)

	if len(foreground.stages) > 0 {
		foreground.finalize()
		lanes[foreground.kind] = foreground
		order = append(order, foreground.kind)
	}
	if len(background.stages) > 0 {
		background.finalize()
		lanes[background.kind] = background
		order = append(order, background.kind)
	}

	for _, lane := range lanes {
		if lane == nil {
			continue
		}
		lane.runReclaimer = len(lane.processingStatuses) > 0
	}

	m.mu.Lock()
	m.lanes = lanes
	m.laneOrder = order
	m.mu.Unlock()
}
