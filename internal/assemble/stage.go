package assemble

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
	progressStageAssembling  = "Assembling"
	progressPercentComposing = 40.0
)

// untitledpiece names scores whose session never produced a title.
const untitledPiece = "Untitled"

// Assembler integrates the score composition with the workflow manager.
type Assembler struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// NewAssembler constructs the workflow stage that writes the final score
// document, renders the preview MIDI, and publishes into the library.
func NewAssembler(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Assembler {
	return &Assembler{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "assemble"),
	}
}

// SetLogger allows the workflow manager to route stage logs into the item-scoped log.
func (a *Assembler) SetLogger(logger *slog.Logger) {
	if a == nil {
		return
	}
	a.logger = logging.NewComponentLogger(logger, "assemble")
}

// Prepare primes queue progress fields before executing the stage.
func (a *Assembler) Prepare(ctx context.Context, item *queue.Item) error {
	if a == nil || a.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "assemble", "prepare", "Assemble stage is not configured", nil)
	}
	if a.store == nil {
		return services.Wrap(services.ErrConfiguration, "assemble", "prepare", "Queue store unavailable", nil)
	}
	item.InitProgress(progressStageAssembling, "Composing the score document")
	return a.store.UpdateProgress(ctx, item)
}

// Execute joins every staged artifact into score.json, renders the optional
// preview, and publishes the result.
func (a *Assembler) Execute(ctx context.Context, item *queue.Item) error {
	stageStart := time.Now()

	if a == nil || a.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "assemble", "execute", "Assemble stage is not configured", nil)
	}
	if item == nil {
		return services.Wrap(services.ErrValidation, "assemble", "execute", "Queue item is nil", nil)
	}
	if a.store == nil {
		return services.Wrap(services.ErrConfiguration, "assemble", "execute", "Queue store unavailable", nil)
	}

	logger := logging.WithContext(ctx, a.logger)

	env, err := stage.ParseEnvelope(item.EnvelopeData)
	if err != nil {
		return err
	}
	if strings.TrimSpace(env.Artifacts.Merged) == "" {
		return services.Wrap(services.ErrValidation, "assemble", "locate consensus",
			"Session envelope has no merged notes; rerun merging", nil)
	}
	if strings.TrimSpace(env.Artifacts.Tempo) == "" {
		return services.Wrap(services.ErrValidation, "assemble", "locate tempo",
			"Session envelope has no tempo curve; rerun tempo estimation", nil)
	}
	if strings.TrimSpace(env.Artifacts.Quantized) == "" {
		return services.Wrap(services.ErrValidation, "assemble", "locate grid",
			"Session envelope has no quantized notes; rerun quantization", nil)
	}
	if strings.TrimSpace(env.Artifacts.Pedal) == "" {
		return services.Wrap(services.ErrValidation, "assemble", "locate pedal",
			"Session envelope has no pedal events; rerun pedal inference", nil)
	}
	if strings.TrimSpace(env.Artifacts.Hands) == "" {
		return services.Wrap(services.ErrValidation, "assemble", "locate staves",
			"Session envelope has no staff assignment; rerun hand splitting", nil)
	}

	var merged session.MergedDocument
	if err := session.ReadArtifact(env.Artifacts.Merged, &merged); err != nil {
		return services.Wrap(services.ErrValidation, "assemble", "read consensus",
			"Merged note artifact is missing or corrupt; rerun merging", err)
	}
	var curve notes.TempoCurve
	if err := session.ReadArtifact(env.Artifacts.Tempo, &curve); err != nil {
		return services.Wrap(services.ErrValidation, "assemble", "read tempo",
			"Tempo artifact is missing or corrupt; rerun tempo estimation", err)
	}
	var quantized session.QuantizedDocument
	if err := session.ReadArtifact(env.Artifacts.Quantized, &quantized); err != nil {
		return services.Wrap(services.ErrValidation, "assemble", "read grid",
			"Quantized note artifact is missing or corrupt; rerun quantization", err)
	}
	var pedals session.PedalDocument
	if err := session.ReadArtifact(env.Artifacts.Pedal, &pedals); err != nil {
		return services.Wrap(services.ErrValidation, "assemble", "read pedal",
			"Pedal artifact is missing or corrupt; rerun pedal inference", err)
	}
	var staves session.HandsDocument
	if err := session.ReadArtifact(env.Artifacts.Hands, &staves); err != nil {
		return services.Wrap(services.ErrValidation, "assemble", "read staves",
			"Hands artifact is missing or corrupt; rerun hand splitting", err)
	}

	if err := a.updateProgress(ctx, item, fmt.Sprintf("Composing a score from %d note(s)", len(merged.Notes)), progressPercentComposing); err != nil {
		return err
	}

	title := strings.TrimSpace(item.PieceTitle)
	if title == "" {
		title = untitledPiece
	}
	result := Build(Input{
		Title:       title,
		GeneratedAt: time.Now().UTC(),
		SplitPoint:  a.cfg.Hands.SplitPoint,
		Sources:     env.Sources,
		Notes:       merged.Notes,
		Grid:        quantized.Notes,
		Staves:      staves.Assignments,
		Pedals:      pedals.Events,
		Tempo:       curve,
	})

	env.ReplaceStageDiagnostics("assemble", result.Diagnostics...)
	doc := result.Document
	doc.Diagnostics = append([]notes.Diagnostic{}, env.Diagnostics...)

	stagingRoot := item.StagingRoot(a.cfg.Paths.StagingDir)
	scorePath := filepath.Join(stagingRoot, session.ScoreFile)
	if err := session.WriteArtifact(scorePath, doc); err != nil {
		return services.Wrap(services.ErrTransient, "assemble", "stage score",
			"Failed to write score artifact", err)
	}
	env.Artifacts.Score = scorePath

	previewPath := ""
	if a.cfg.Output.RenderMIDI {
		data, err := RenderPreview(doc, a.cfg.Quantize.BeatsPerMeasure, a.cfg.Output.MIDIProgram)
		if err != nil {
			return services.Wrap(services.ErrTransient, "assemble", "render preview",
				"Failed to render the preview MIDI", err)
		}
		previewPath = filepath.Join(stagingRoot, session.PreviewFile)
		if err := session.WriteRawArtifact(previewPath, data); err != nil {
			return services.Wrap(services.ErrTransient, "assemble", "stage preview",
				"Failed to write preview artifact", err)
		}
		env.Artifacts.Preview = previewPath
	}

	finalScore := scorePath
	if a.cfg.Output.PublishLibrary && strings.TrimSpace(a.cfg.Paths.LibraryDir) != "" {
		destDir := libraryScoreDir(a.cfg.Paths.LibraryDir, title)
		published := filepath.Join(destDir, session.ScoreFile)
		if err := copyVerified(scorePath, published); err != nil {
			return services.Wrap(services.ErrTransient, "assemble", "publish score",
				"Failed to publish the score into the library", err)
		}
		if previewPath != "" {
			if err := copyVerified(previewPath, filepath.Join(destDir, session.PreviewFile)); err != nil {
				return services.Wrap(services.ErrTransient, "assemble", "publish preview",
					"Failed to publish the preview into the library", err)
			}
		}
		finalScore = published
	}
	item.ScoreFile = finalScore

	encoded, err := env.Encode()
	if err != nil {
		return services.Wrap(services.ErrTransient, "assemble", "encode envelope",
			"Failed to encode session envelope", err)
	}
	item.EnvelopeData = encoded

	item.ProgressStage = "Assembled"
	item.ProgressPercent = 100
	item.ProgressMessage = fmt.Sprintf("Score with %d note(s)", len(doc.Notes))
	if err := a.store.UpdateProgress(ctx, item); err != nil {
		return services.Wrap(services.ErrTransient, "assemble", "persist progress",
			"Failed to persist assemble progress", err)
	}

	logger.Info("assemble stage summary",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(stageStart)),
		logging.Int("notes", len(doc.Notes)),
		logging.Int("pedals", len(doc.Pedals)),
		logging.Int("diagnostics", len(doc.Diagnostics)),
		logging.Bool("preview", previewPath != ""),
		logging.String("score_file", finalScore),
	)
	return nil
}

// HealthCheck reports readiness for the assemble stage.
func (a *Assembler) HealthCheck(ctx context.Context) stage.Health {
	const name = "assemble"
	if a == nil || a.cfg == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if a.store == nil {
		return stage.Unhealthy(name, "queue store unavailable")
	}
	if a.cfg.Output.PublishLibrary && strings.TrimSpace(a.cfg.Paths.LibraryDir) == "" {
		return stage.Unhealthy(name, "library publishing enabled without a library directory")
	}
	if a.cfg.Output.MIDIProgram < 0 || a.cfg.Output.MIDIProgram > 127 {
		return stage.Unhealthy(name, "midi program outside 0-127")
	}
	return stage.Healthy(name)
}

func (a *Assembler) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) error {
	item.ProgressStage = progressStageAssembling
	if message != "" {
		item.ProgressMessage = message
	}
	if percent >= 0 {
		item.ProgressPercent = percent
	}
	if err := a.store.UpdateProgress(ctx, item); err != nil {
		return services.Wrap(services.ErrTransient, "assemble", "update progress",
			"Failed to persist assemble progress", err)
	}
	return nil
}
