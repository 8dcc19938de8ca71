package hands

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
	progressStageSplitting = "Splitting"
	progressPercentSolving = 40.0
)

// Splitter integrates the staff assignment with the workflow manager.
type Splitter struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// NewSplitter constructs the workflow stage that assigns quantized notes to
// treble and bass staves.
func NewSplitter(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Splitter {
	return &Splitter{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "hands"),
	}
}

// SetLogger allows the workflow manager to route stage logs into the item-scoped log.
func (s *Splitter) SetLogger(logger *slog.Logger) {
	if s == nil {
		return
	}
	s.logger = logging.NewComponentLogger(logger, "hands")
}

// Prepare primes queue progress fields before executing the stage.
func (s *Splitter) Prepare(ctx context.Context, item *queue.Item) error {
	if s == nil || s.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "hands", "prepare", "Hands stage is not configured", nil)
	}
	if s.store == nil {
		return services.Wrap(services.ErrConfiguration, "hands", "prepare", "Queue store unavailable", nil)
	}
	item.InitProgress(progressStageSplitting, "Assigning notes to staves")
	return s.store.UpdateProgress(ctx, item)
}

// Execute solves the staff assignment and stages hands.json.
func (s *Splitter) Execute(ctx context.Context, item *queue.Item) error {
	stageStart := time.Now()

	if s == nil || s.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "hands", "execute", "Hands stage is not configured", nil)
	}
	if item == nil {
		return services.Wrap(services.ErrValidation, "hands", "execute", "Queue item is nil", nil)
	}
	if s.store == nil {
		return services.Wrap(services.ErrConfiguration, "hands", "execute", "Queue store unavailable", nil)
	}

	logger := logging.WithContext(ctx, s.logger)

	env, err := stage.ParseEnvelope(item.EnvelopeData)
	if err != nil {
		return err
	}
	if strings.TrimSpace(env.Artifacts.Quantized) == "" {
		return services.Wrap(services.ErrValidation, "hands", "locate grid",
			"Session envelope has no quantized notes; rerun quantization", nil)
	}
	if strings.TrimSpace(env.Artifacts.Merged) == "" {
		return services.Wrap(services.ErrValidation, "hands", "locate consensus",
			"Session envelope has no merged notes; rerun merging", nil)
	}
	var quantized session.QuantizedDocument
	if err := session.ReadArtifact(env.Artifacts.Quantized, &quantized); err != nil {
		return services.Wrap(services.ErrValidation, "hands", "read grid",
			"Quantized note artifact is missing or corrupt; rerun quantization", err)
	}
	var merged session.MergedDocument
	if err := session.ReadArtifact(env.Artifacts.Merged, &merged); err != nil {
		return services.Wrap(services.ErrValidation, "hands", "read consensus",
			"Merged note artifact is missing or corrupt; rerun merging", err)
	}

	if err := s.updateProgress(ctx, item, fmt.Sprintf("Solving staff assignment for %d note(s)", len(quantized.Notes)), progressPercentSolving); err != nil {
		return err
	}

	result := Split(quantized.Notes, merged.Notes, Options{
		SplitPoint:       s.cfg.Hands.SplitPoint,
		MaxSpanSemitones: s.cfg.Hands.MaxSpanSemitones,
		SwitchPenalty:    s.cfg.Hands.SwitchPenalty,
		CrossingPenalty:  s.cfg.Hands.CrossingPenalty,
		RangeWeight:      s.cfg.Hands.RangeWeight,
		RestResetS:       s.cfg.Hands.RestResetS,
	})

	stagingRoot := item.StagingRoot(s.cfg.Paths.StagingDir)
	handsPath := filepath.Join(stagingRoot, session.HandsFile)
	if err := session.WriteArtifact(handsPath, session.HandsDocument{Assignments: result.Assignments}); err != nil {
		return services.Wrap(services.ErrTransient, "hands", "stage assignment",
			"Failed to write hands artifact", err)
	}

	env.Artifacts.Hands = handsPath
	env.Metrics.Hands = &result.Metrics
	env.ReplaceStageDiagnostics("hands", result.Diagnostics...)
	encoded, err := env.Encode()
	if err != nil {
		return services.Wrap(services.ErrTransient, "hands", "encode envelope",
			"Failed to encode session envelope", err)
	}
	item.EnvelopeData = encoded

	item.ProgressStage = "Split"
	item.ProgressPercent = 100
	item.ProgressMessage = fmt.Sprintf("%d treble / %d bass note(s)", result.Metrics.TrebleNotes, result.Metrics.BassNotes)
	if err := s.store.UpdateProgress(ctx, item); err != nil {
		return services.Wrap(services.ErrTransient, "hands", "persist progress",
			"Failed to persist hands progress", err)
	}

	logger.Info("hands stage summary",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(stageStart)),
		logging.Int("treble_notes", result.Metrics.TrebleNotes),
		logging.Int("bass_notes", result.Metrics.BassNotes),
		logging.Int("switches", result.Metrics.Switches),
		logging.Int("crossings", result.Metrics.Crossings),
	)
	return nil
}

// HealthCheck reports readiness for the hands stage.
func (s *Splitter) HealthCheck(ctx context.Context) stage.Health {
	const name = "hands"
	if s == nil || s.cfg == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if s.store == nil {
		return stage.Unhealthy(name, "queue store unavailable")
	}
	if s.cfg.Hands.MaxSpanSemitones <= 0 {
		return stage.Unhealthy(name, "hand span must be positive")
	}
	if s.cfg.Hands.SplitPoint < notes.MinPitch || s.cfg.Hands.SplitPoint > notes.MaxPitch {
		return stage.Unhealthy(name, "split point outside the piano range")
	}
	return stage.Healthy(name)
}

func (s *Splitter) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) error {
	item.ProgressStage = progressStageSplitting
	if strings.TrimSpace(message) != "" {
		item.ProgressMessage = message
	}
	if percent >= 0 {
		item.ProgressPercent = percent
	}
	if err := s.store.UpdateProgress(ctx, item); err != nil {
		return services.Wrap(services.ErrTransient, "hands", "persist progress",
			"Failed to persist hands progress", err)
	}
	return nil
}
