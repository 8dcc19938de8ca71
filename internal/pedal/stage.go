package pedal

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
	progressStageInferring   = "Inferring"
	progressPercentListening = 40.0
)

// Inferrer integrates pedal inference with the workflow manager.
type Inferrer struct {
	cfg    *config.Config
	store  *queue.Store
	cache  *audiofeat.Cache
	logger *slog.Logger
}

// NewInferrer constructs the workflow stage that recovers sustain pedal
// intervals from cached audio features or, failing that, note overlap.
func NewInferrer(cfg *config.Config, store *queue.Store, cache *audiofeat.Cache, logger *slog.Logger) *Inferrer {
	return &Inferrer{
		cfg:    cfg,
		store:  store,
		cache:  cache,
		logger: logging.NewComponentLogger(logger, "pedal"),
	}
}

// SetLogger allows the workflow manager to route stage logs into the item-scoped log.
func (p *Inferrer) SetLogger(logger *slog.Logger) {
	if p == nil {
		return
	}
	p.logger = logging.NewComponentLogger(logger, "pedal")
}

// Prepare primes queue progress fields before executing the stage.
func (p *Inferrer) Prepare(ctx context.Context, item *queue.Item) error {
	if p == nil || p.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "pedal", "prepare", "Pedal stage is not configured", nil)
	}
	if p.store == nil {
		return services.Wrap(services.ErrConfiguration, "pedal", "prepare", "Queue store unavailable", nil)
	}
	item.InitProgress(progressStageInferring, "Inferring sustain pedal intervals")
	return p.store.UpdateProgress(ctx, item)
}

// Execute infers the pedal track and stages it next to the other artifacts.
func (p *Inferrer) Execute(ctx context.Context, item *queue.Item) error {
	stageStart := time.Now()

	if p == nil || p.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "pedal", "execute", "Pedal stage is not configured", nil)
	}
	if item == nil {
		return services.Wrap(services.ErrValidation, "pedal", "execute", "Queue item is nil", nil)
	}
	if p.store == nil {
		return services.Wrap(services.ErrConfiguration, "pedal", "execute", "Queue store unavailable", nil)
	}

	logger := logging.WithContext(ctx, p.logger)

	env, err := stage.ParseEnvelope(item.EnvelopeData)
	if err != nil {
		return err
	}
	if strings.TrimSpace(env.Artifacts.Merged) == "" {
		return services.Wrap(services.ErrValidation, "pedal", "locate consensus",
			"Session envelope has no merged notes; rerun merging", nil)
	}
	var merged session.MergedDocument
	if err := session.ReadArtifact(env.Artifacts.Merged, &merged); err != nil {
		return services.Wrap(services.ErrValidation, "pedal", "read consensus",
			"Merged note artifact is missing or corrupt; rerun merging", err)
	}

	features, _ := p.cache.Lookup(item.FeatureFingerprint)
	mode := SourceOverlap
	if features.HasResonance() {
		mode = SourceResonance
	}
	if err := p.updateProgress(ctx, item, fmt.Sprintf("Reading %s evidence", mode), progressPercentListening); err != nil {
		return err
	}

	result := Infer(merged.Notes, features, Options{
		MergeGapMS:     p.cfg.Pedal.MergeGapMS,
		HysteresisMS:   p.cfg.Pedal.HysteresisMS,
		HoldThresholdS: p.cfg.Pedal.HoldThresholdS,
		ResonanceOn:    p.cfg.Pedal.ResonanceOn,
		ResonanceOff:   p.cfg.Pedal.ResonanceOff,
	})

	stagingRoot := item.StagingRoot(p.cfg.Paths.StagingDir)
	pedalPath := filepath.Join(stagingRoot, session.PedalFile)
	doc := session.PedalDocument{Source: result.Source, Events: result.Events}
	if err := session.WriteArtifact(pedalPath, doc); err != nil {
		return services.Wrap(services.ErrTransient, "pedal", "stage intervals",
			"Failed to write pedal artifact", err)
	}

	env.Artifacts.Pedal = pedalPath
	env.Metrics.Pedal = &result.Metrics
	env.ReplaceStageDiagnostics("pedal", result.Diagnostics...)
	encoded, err := env.Encode()
	if err != nil {
		return services.Wrap(services.ErrTransient, "pedal", "encode envelope",
			"Failed to encode session envelope", err)
	}
	item.EnvelopeData = encoded

	item.ProgressStage = "Inferred"
	item.ProgressPercent = 100
	item.ProgressMessage = fmt.Sprintf("%d pedal interval(s) from %s evidence", result.Metrics.Events, result.Source)
	if err := p.store.UpdateProgress(ctx, item); err != nil {
		return services.Wrap(services.ErrTransient, "pedal", "persist progress",
			"Failed to persist pedal progress", err)
	}

	logger.Info("pedal stage summary",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(stageStart)),
		logging.Int("events", result.Metrics.Events),
		logging.String("source", result.Source),
		logging.Int("coalesced", result.Metrics.Coalesced),
	)
	return nil
}

// HealthCheck reports readiness for the pedal stage.
func (p *Inferrer) HealthCheck(ctx context.Context) stage.Health {
	const name = "pedal"
	if p == nil || p.cfg == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if p.store == nil {
		return stage.Unhealthy(name, "queue store unavailable")
	}
	if p.cfg.Pedal.ResonanceOn > 0 && p.cfg.Pedal.ResonanceOff >= p.cfg.Pedal.ResonanceOn {
		return stage.Unhealthy(name, "resonance off threshold must sit below the on threshold")
	}
	return stage.Healthy(name)
}

func (p *Inferrer) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) error {
	item.ProgressStage = progressStageInferring
	if strings.TrimSpace(message) != "" {
		item.ProgressMessage = message
	}
	if percent >= 0 {
		item.ProgressPercent = percent
	}
	if err := p.store.UpdateProgress(ctx, item); err != nil {
		return services.Wrap(services.ErrTransient, "pedal", "persist progress",
			"Failed to persist pedal progress", err)
	}
	return nil
}
