package tempo

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"renote/internal/audiofeat"
	"renote/internal/config"
	"renote/internal/logging"
	"renote/internal/queue"
	"renote/internal/services"
	"renote/internal/session"
	"renote/internal/stage"
)

const (
	progressStageEstimating  = "Estimating"
	progressPercentAnalyzing = 40.0
)

// Estimator integrates tempo curve estimation with the workflow manager.
type Estimator struct {
	cfg    *config.Config
	cache  *audiofeat.Cache
	store  *queue.Store
	logger *slog.Logger
}

// NewEstimator constructs the workflow stage that derives the tempo curve.
// The feature cache is optional input: misses degrade weighting, not results.
func NewEstimator(cfg *config.Config, store *queue.Store, cache *audiofeat.Cache, logger *slog.Logger) *Estimator {
	return &Estimator{
		cfg:    cfg,
		cache:  cache,
		store:  store,
		logger: logging.NewComponentLogger(logger, "tempo"),
	}
}

// SetLogger allows the workflow manager to route stage logs into the item-scoped log.
func (e *Estimator) SetLogger(logger *slog.Logger) {
	if e == nil {
		return
	}
	e.logger = logging.NewComponentLogger(logger, "tempo")
}

// Prepare primes queue progress fields before executing the stage.
func (e *Estimator) Prepare(ctx context.Context, item *queue.Item) error {
	if e == nil || e.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "tempo", "prepare", "Tempo stage is not configured", nil)
	}
	if e.store == nil {
		return services.Wrap(services.ErrConfiguration, "tempo", "prepare", "Queue store unavailable", nil)
	}
	item.InitProgress(progressStageEstimating, "Estimating tempo curve")
	return e.store.UpdateProgress(ctx, item)
}

// Execute estimates the tempo curve from the merged onset distribution and
// stages it for the quantizer.
func (e *Estimator) Execute(ctx context.Context, item *queue.Item) error {
	stageStart := time.Now()

	if e == nil || e.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "tempo", "execute", "Tempo stage is not configured", nil)
	}
	if item == nil {
		return services.Wrap(services.ErrValidation, "tempo", "execute", "Queue item is nil", nil)
	}
	if e.store == nil {
		return services.Wrap(services.ErrConfiguration, "tempo", "execute", "Queue store unavailable", nil)
	}

	logger := logging.WithContext(ctx, e.logger)

	env, err := stage.ParseEnvelope(item.EnvelopeData)
	if err != nil {
		return err
	}
	if strings.TrimSpace(env.Artifacts.Merged) == "" {
		return services.Wrap(services.ErrValidation, "tempo", "locate consensus",
			"Session envelope has no merged notes; rerun merging", nil)
	}
	var merged session.MergedDocument
	if err := session.ReadArtifact(env.Artifacts.Merged, &merged); err != nil {
		return services.Wrap(services.ErrValidation, "tempo", "read consensus",
			"Merged note artifact is missing or corrupt; rerun merging", err)
	}

	features, _ := e.cache.Lookup(item.FeatureFingerprint)
	if err := e.updateProgress(ctx, item, fmt.Sprintf("Analyzing %d onset(s)", len(merged.Notes)), progressPercentAnalyzing); err != nil {
		return err
	}

	result := Estimate(merged.Notes, features, Options{
		MinBPM:         e.cfg.Tempo.MinBPM,
		MaxBPM:         e.cfg.Tempo.MaxBPM,
		FallbackBPM:    e.cfg.Tempo.FallbackBPM,
		SegmentPenalty: e.cfg.Tempo.SegmentPenalty,
		MaxRampBPMPerS: e.cfg.Tempo.MaxRampBPMPerSec,
	})

	stagingRoot := item.StagingRoot(e.cfg.Paths.StagingDir)
	tempoPath := filepath.Join(stagingRoot, session.TempoFile)
	if err := session.WriteArtifact(tempoPath, result.Curve); err != nil {
		return services.Wrap(services.ErrTransient, "tempo", "stage curve",
			"Failed to write tempo curve artifact", err)
	}

	env.Artifacts.Tempo = tempoPath
	env.Metrics.Tempo = &result.Metrics
	env.ReplaceStageDiagnostics("tempo", result.Diagnostics...)
	encoded, err := env.Encode()
	if err != nil {
		return services.Wrap(services.ErrTransient, "tempo", "encode envelope",
			"Failed to encode session envelope", err)
	}
	item.EnvelopeData = encoded

	item.ProgressStage = "Estimated"
	item.ProgressPercent = 100
	item.ProgressMessage = fmt.Sprintf("%.0f bpm median across %d segment(s)",
		result.Metrics.MedianBPM, result.Metrics.Segments)
	if result.Metrics.Fallback {
		item.ProgressMessage = fmt.Sprintf("Flat fallback tempo %.0f bpm", result.Metrics.MedianBPM)
	}
	if err := e.store.UpdateProgress(ctx, item); err != nil {
		return services.Wrap(services.ErrTransient, "tempo", "persist progress",
			"Failed to persist tempo progress", err)
	}

	logger.Info("tempo stage summary",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(stageStart)),
		logging.Int("points", result.Metrics.Points),
		logging.Int("segments", result.Metrics.Segments),
		logging.Float64("median_bpm", result.Metrics.MedianBPM),
		logging.Bool("fallback", result.Metrics.Fallback),
		logging.Bool("weighted_by_features", features.HasOnsetStrength()),
	)
	return nil
}

// HealthCheck reports readiness for the tempo stage.
func (e *Estimator) HealthCheck(ctx context.Context) stage.Health {
	const name = "tempo"
	if e == nil || e.cfg == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if e.store == nil {
		return stage.Unhealthy(name, "queue store unavailable")
	}
	if e.cfg.Tempo.MinBPM <= 0 || e.cfg.Tempo.MaxBPM <= e.cfg.Tempo.MinBPM {
		return stage.Unhealthy(name, "tempo band is empty")
	}
	return stage.Healthy(name)
}

func (e *Estimator) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) error {
	item.ProgressStage = progressStageEstimating
	if strings.TrimSpace(message) != "" {
		item.ProgressMessage = message
	}
	if percent >= 0 {
		item.ProgressPercent = percent
	}
	if err := e.store.UpdateProgress(ctx, item); err != nil {
		return services.Wrap(services.ErrTransient, "tempo", "persist progress",
			"Failed to persist tempo progress", err)
	}
	return nil
}
