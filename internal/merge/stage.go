package merge

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"renote/internal/config"
	"renote/internal/logging"
	"renote/internal/queue"
	"renote/internal/services"
	"renote/internal/session"
	"renote/internal/stage"
)

const (
	progressStageMerging  = "Merging"
	progressPercentFusing = 30.0
	progressPercentReport = 80.0
)

// Merger integrates ensemble fusion with the workflow manager.
type Merger struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// NewMerger constructs the workflow stage that fuses loaded streams.
func NewMerger(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Merger {
	return &Merger{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "merge"),
	}
}

// SetLogger allows the workflow manager to route stage logs into the item-scoped log.
func (m *Merger) SetLogger(logger *slog.Logger) {
	if m == nil {
		return
	}
	m.logger = logging.NewComponentLogger(logger, "merge")
}

// Prepare primes queue progress fields before executing the stage.
func (m *Merger) Prepare(ctx context.Context, item *queue.Item) error {
	if m == nil || m.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "merge", "prepare", "Merge stage is not configured", nil)
	}
	if m.store == nil {
		return services.Wrap(services.ErrConfiguration, "merge", "prepare", "Queue store unavailable", nil)
	}
	item.InitProgress(progressStageMerging, "Fusing transcription streams")
	return m.store.UpdateProgress(ctx, item)
}

// Execute fuses the staged streams into a consensus note list and computes
// the inter-source agreement report.
func (m *Merger) Execute(ctx context.Context, item *queue.Item) error {
	stageStart := time.Now()

	if m == nil || m.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "merge", "execute", "Merge stage is not configured", nil)
	}
	if item == nil {
		return services.Wrap(services.ErrValidation, "merge", "execute", "Queue item is nil", nil)
	}
	if m.store == nil {
		return services.Wrap(services.ErrConfiguration, "merge", "execute", "Queue store unavailable", nil)
	}

	logger := logging.WithContext(ctx, m.logger)

	env, err := stage.ParseEnvelope(item.EnvelopeData)
	if err != nil {
		return err
	}
	if strings.TrimSpace(env.Artifacts.Streams) == "" {
		return services.Wrap(services.ErrValidation, "merge", "locate streams",
			"Session envelope has no staged streams; rerun loading", nil)
	}
	var doc session.StreamsDocument
	if err := session.ReadArtifact(env.Artifacts.Streams, &doc); err != nil {
		return services.Wrap(services.ErrValidation, "merge", "read streams",
			"Staged stream artifact is missing or corrupt; rerun loading", err)
	}

	if err := m.updateProgress(ctx, item, fmt.Sprintf("Fusing %d stream(s)", len(doc.Streams)), progressPercentFusing); err != nil {
		return err
	}

	result := Merge(doc.Streams, Options{
		OnsetWindow:    m.cfg.OnsetWindow(),
		SingletonScale: m.cfg.Merge.SingletonConfidenceScale,
		TotalSources:   len(doc.Streams),
	})

	if err := m.updateProgress(ctx, item, "Computing agreement report", progressPercentReport); err != nil {
		return err
	}
	agreement := BuildAgreement(doc.Streams, result.Notes)

	stagingRoot := item.StagingRoot(m.cfg.Paths.StagingDir)
	mergedPath := filepath.Join(stagingRoot, session.MergedFile)
	if err := session.WriteArtifact(mergedPath, session.MergedDocument{Notes: result.Notes}); err != nil {
		return services.Wrap(services.ErrTransient, "merge", "stage consensus",
			"Failed to write merged note artifact", err)
	}

	env.Artifacts.Merged = mergedPath
	env.Metrics.Merge = &result.Metrics
	env.Agreement = agreement
	env.ReplaceStageDiagnostics("merge", result.Diagnostics...)
	encoded, err := env.Encode()
	if err != nil {
		return services.Wrap(services.ErrTransient, "merge", "encode envelope",
			"Failed to encode session envelope", err)
	}
	item.EnvelopeData = encoded
	item.NoteCount = len(result.Notes)

	item.ProgressStage = "Merged"
	item.ProgressPercent = 100
	item.ProgressMessage = fmt.Sprintf("%d consensus note(s) from %d input(s)",
		result.Metrics.MergedNotes, result.Metrics.InputNotes)
	if err := m.store.UpdateProgress(ctx, item); err != nil {
		return services.Wrap(services.ErrTransient, "merge", "persist progress",
			"Failed to persist merge progress", err)
	}

	logger.Info("merge stage summary",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(stageStart)),
		logging.Int("input_notes", result.Metrics.InputNotes),
		logging.Int("merged_notes", result.Metrics.MergedNotes),
		logging.Int("matched_groups", result.Metrics.MatchedGroups),
		logging.Int("singletons", result.Metrics.Singletons),
		logging.Float64("mean_confidence", result.Metrics.MeanConfidence),
	)
	return nil
}

// HealthCheck reports readiness for the merge stage.
func (m *Merger) HealthCheck(ctx context.Context) stage.Health {
	const name = "merge"
	if m == nil || m.cfg == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if m.store == nil {
		return stage.Unhealthy(name, "queue store unavailable")
	}
	if m.cfg.Merge.OnsetWindowMS <= 0 {
		return stage.Unhealthy(name, "onset window must be positive")
	}
	return stage.Healthy(name)
}

func (m *Merger) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) error {
	item.ProgressStage = progressStageMerging
	if strings.TrimSpace(message) != "" {
		item.ProgressMessage = message
	}
	if percent >= 0 {
		item.ProgressPercent = percent
	}
	if err := m.store.UpdateProgress(ctx, item); err != nil {
		return services.Wrap(services.ErrTransient, "merge", "persist progress",
			"Failed to persist merge progress", err)
	}
	return nil
}
