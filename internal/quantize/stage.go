package quantize

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"renote/internal/config"
	"renote/internal/logging"
	"renote/internal/notes"
	"renote/internal/queue"
	"renote/internal/services"
	"renote/internal/session"
	"renote/internal/stage"
)

const (
	progressStageQuantizing = "Quantizing"
	progressPercentSnapping = 40.0
)

// Quantizer integrates grid snapping with the workflow manager.
type Quantizer struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// NewQuantizer constructs the workflow stage that projects consensus notes
// onto the rational beat grid.
func NewQuantizer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Quantizer {
	return &Quantizer{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "quantize"),
	}
}

// SetLogger allows the workflow manager to route stage logs into the item-scoped log.
func (q *Quantizer) SetLogger(logger *slog.Logger) {
	if q == nil {
		return
	}
	q.logger = logging.NewComponentLogger(logger, "quantize")
}

// Prepare primes queue progress fields before executing the stage.
func (q *Quantizer) Prepare(ctx context.Context, item *queue.Item) error {
	if q == nil || q.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "quantize", "prepare", "Quantize stage is not configured", nil)
	}
	if q.store == nil {
		return services.Wrap(services.ErrConfiguration, "quantize", "prepare", "Queue store unavailable", nil)
	}
	item.InitProgress(progressStageQuantizing, "Snapping notes to the beat grid")
	return q.store.UpdateProgress(ctx, item)
}

// Execute projects the merged notes onto rational beat positions under the
// estimated tempo curve.
func (q *Quantizer) Execute(ctx context.Context, item *queue.Item) error {
	stageStart := time.Now()

	if q == nil || q.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "quantize", "execute", "Quantize stage is not configured", nil)
	}
	if item == nil {
		return services.Wrap(services.ErrValidation, "quantize", "execute", "Queue item is nil", nil)
	}
	if q.store == nil {
		return services.Wrap(services.ErrConfiguration, "quantize", "execute", "Queue store unavailable", nil)
	}

	logger := logging.WithContext(ctx, q.logger)

	env, err := stage.ParseEnvelope(item.EnvelopeData)
	if err != nil {
		return err
	}
	if strings.TrimSpace(env.Artifacts.Merged) == "" {
		return services.Wrap(services.ErrValidation, "quantize", "locate consensus",
			"Session envelope has no merged notes; rerun merging", nil)
	}
	if strings.TrimSpace(env.Artifacts.Tempo) == "" {
		return services.Wrap(services.ErrValidation, "quantize", "locate tempo",
			"Session envelope has no tempo curve; rerun tempo estimation", nil)
	}
	var merged session.MergedDocument
	if err := session.ReadArtifact(env.Artifacts.Merged, &merged); err != nil {
		return services.Wrap(services.ErrValidation, "quantize", "read consensus",
			"Merged note artifact is missing or corrupt; rerun merging", err)
	}
	var curve notes.TempoCurve
	if err := session.ReadArtifact(env.Artifacts.Tempo, &curve); err != nil {
		return services.Wrap(services.ErrValidation, "quantize", "read tempo",
			"Tempo curve artifact is missing or corrupt; rerun tempo estimation", err)
	}

	if err := q.updateProgress(ctx, item, fmt.Sprintf("Snapping %d note(s)", len(merged.Notes)), progressPercentSnapping); err != nil {
		return err
	}

	result := Quantize(merged.Notes, curve, Options{
		Subdivisions:     q.cfg.Quantize.Subdivisions,
		ComplexityWeight: q.cfg.Quantize.ComplexityWeight,
		TieEpsilonMS:     q.cfg.Quantize.TieEpsilonMS,
		MinDurationBeats: q.cfg.Quantize.MinDurationBeats,
		BeatsPerMeasure:  q.cfg.Quantize.BeatsPerMeasure,
	})

	stagingRoot := item.StagingRoot(q.cfg.Paths.StagingDir)
	quantizedPath := filepath.Join(stagingRoot, session.QuantizedFile)
	if err := session.WriteArtifact(quantizedPath, session.QuantizedDocument{Notes: result.Notes}); err != nil {
		return services.Wrap(services.ErrTransient, "quantize", "stage grid",
			"Failed to write quantized note artifact", err)
	}

	env.Artifacts.Quantized = quantizedPath
	env.Metrics.Quantize = &result.Metrics
	env.ReplaceStageDiagnostics("quantize", result.Diagnostics...)
	encoded, err := env.Encode()
	if err != nil {
		return services.Wrap(services.ErrTransient, "quantize", "encode envelope",
			"Failed to encode session envelope", err)
	}
	item.EnvelopeData = encoded

	item.ProgressStage = "Quantized"
	item.ProgressPercent = 100
	item.ProgressMessage = fmt.Sprintf("%d note(s) on the grid, %d tied", result.Metrics.Notes, result.Metrics.TiedNotes)
	if err := q.store.UpdateProgress(ctx, item); err != nil {
		return services.Wrap(services.ErrTransient, "quantize", "persist progress",
			"Failed to persist quantize progress", err)
	}

	logger.Info("quantize stage summary",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(stageStart)),
		logging.Int("notes", result.Metrics.Notes),
		logging.Int("tied_notes", result.Metrics.TiedNotes),
		logging.Int("clamped_notes", result.Metrics.ClampedNotes),
		logging.Float64("max_residual_ms", result.Metrics.MaxResidualMS),
	)
	return nil
}

// HealthCheck reports readiness for the quantize stage.
func (q *Quantizer) HealthCheck(ctx context.Context) stage.Health {
	const name = "quantize"
	if q == nil || q.cfg == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if q.store == nil {
		return stage.Unhealthy(name, "queue store unavailable")
	}
	if len(q.cfg.Quantize.Subdivisions) == 0 {
		return stage.Unhealthy(name, "no subdivision candidates configured")
	}
	return stage.Healthy(name)
}

func (q *Quantizer) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) error {
	item.ProgressStage = progressStageQuantizing
	if strings.TrimSpace(message) != "" {
		item.ProgressMessage = message
	}
	if percent >= 0 {
		item.ProgressPercent = percent
	}
	if err := q.store.UpdateProgress(ctx, item); err != nil {
		return services.Wrap(services.ErrTransient, "quantize", "persist progress",
			"Failed to persist quantize progress", err)
	}
	return nil
}
