package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"renote/internal/audiofeat"
	"renote/internal/config"
	"renote/internal/logging"
	"renote/internal/notes"
	"renote/internal/queue"
	"renote/internal/services"
	"renote/internal/session"
	"renote/internal/stage"
)

const (
	progressStageLoading   = "Loading"
	progressPercentParse   = 20.0
	progressPercentStaging = 80.0
)

// Loader discovers and normalizes per-model transcription streams for a
// queued session, staging them for the ensemble merger.
type Loader struct {
	cfg    *config.Config
	store  *queue.Store
	cache  *audiofeat.Cache
	logger *slog.Logger
}

// NewLoader constructs the workflow stage that ingests session inputs.
func NewLoader(cfg *config.Config, store *queue.Store, cache *audiofeat.Cache, logger *slog.Logger) *Loader {
	return &Loader{
		cfg:    cfg,
		store:  store,
		cache:  cache,
		logger: logging.NewComponentLogger(logger, "load"),
	}
}

// SetLogger allows the workflow manager to route stage logs into the item-scoped log.
func (l *Loader) SetLogger(logger *slog.Logger) {
	if l == nil {
		return
	}
	l.logger = logging.NewComponentLogger(logger, "load")
}

// Prepare primes queue progress fields before executing the stage.
func (l *Loader) Prepare(ctx context.Context, item *queue.Item) error {
	if l == nil || l.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "load", "prepare", "Load stage is not configured", nil)
	}
	if l.store == nil {
		return services.Wrap(services.ErrConfiguration, "load", "prepare", "Queue store unavailable", nil)
	}
	item.InitProgress(progressStageLoading, "Discovering transcription streams")
	return l.store.UpdateProgress(ctx, item)
}

type featureResult struct {
	set   *audiofeat.FeatureSet
	found bool
	err   error
}

// Execute parses every stream in the session directory, sanitizes the notes,
// loads optional audio features, and stages the normalized streams.
func (l *Loader) Execute(ctx context.Context, item *queue.Item) error {
	stageStart := time.Now()

	if l == nil || l.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "load", "execute", "Load stage is not configured", nil)
	}
	if item == nil {
		return services.Wrap(services.ErrValidation, "load", "execute", "Queue item is nil", nil)
	}
	if l.store == nil {
		return services.Wrap(services.ErrConfiguration, "load", "execute", "Queue store unavailable", nil)
	}

	logger := logging.WithContext(ctx, l.logger)

	sessionDir := strings.TrimSpace(item.SessionPath)
	if sessionDir == "" {
		return services.Wrap(services.ErrValidation, "load", "execute", "Queue item has no session path", nil)
	}
	info, err := os.Stat(sessionDir)
	if err != nil || !info.IsDir() {
		return services.Wrap(services.ErrValidation, "load", "locate session",
			fmt.Sprintf("Session directory %s is missing or not a directory", sessionDir), err)
	}

	discovered, err := DiscoverSources(sessionDir)
	if err != nil {
		return services.Wrap(services.ErrValidation, "load", "discover streams",
			"Failed to scan session directory for transcription streams", err)
	}
	if len(discovered) == 0 {
		return services.Wrap(services.ErrValidation, "load", "discover streams",
			"No transcription streams found; expected <model>.json or <model>.mid files", nil)
	}

	// Feature extraction output is independent of the streams, so it loads
	// while the streams parse.
	featCh := make(chan featureResult, 1)
	go func() {
		set, found, err := audiofeat.Load(filepath.Join(sessionDir, audiofeat.FeaturesFileName))
		featCh <- featureResult{set: set, found: found, err: err}
	}()

	if err := l.updateProgress(ctx, item, fmt.Sprintf("Parsing %d stream(s)", len(discovered)), progressPercentParse); err != nil {
		return err
	}

	env, err := stage.ParseEnvelope(item.EnvelopeData)
	if err != nil {
		return err
	}

	var (
		streams  []session.Stream
		diags    []notes.Diagnostic
		rejected int
		dropped  int
	)
	for _, src := range discovered {
		var (
			stream      session.Stream
			stats       ParseStats
			streamDiags []notes.Diagnostic
			parseErr    error
		)
		switch src.Format {
		case FormatJSON:
			stream, stats, streamDiags, parseErr = ParseJSONStream(src.Path, src.Model)
		case FormatSMF:
			stream, stats, streamDiags, parseErr = ParseSMFStream(src.Path, src.Model)
		default:
			parseErr = fmt.Errorf("unknown stream format %q", src.Format)
		}
		if parseErr != nil {
			rejected++
			diags = append(diags, notes.Diagnostic{
				Stage:   "load",
				Source:  src.Model,
				Message: fmt.Sprintf("stream rejected: %v", parseErr),
			})
			logger.Warn("transcription stream rejected",
				logging.String("model", src.Model),
				logging.String("path", src.Path),
				logging.Error(parseErr),
				logging.String(logging.FieldEventType, "stream_rejected"),
				logging.String(logging.FieldErrorHint, "re-run the model wrapper to regenerate the stream"),
				logging.String(logging.FieldImpact, "consensus will be built without this source"),
			)
			continue
		}
		diags = append(diags, streamDiags...)
		dropped += stats.Dropped
		streams = append(streams, stream)
		env.UpsertSource(summarizeStream(src, stream, stats))
	}
	if len(streams) == 0 {
		return services.Wrap(services.ErrValidation, "load", "parse streams",
			"Every transcription stream was unreadable", nil)
	}

	noteCount := 0
	for _, stream := range streams {
		noteCount += len(stream.Notes)
	}
	if noteCount == 0 {
		diags = append(diags, notes.Diagnostic{
			Stage:   "load",
			Message: "no usable notes in any stream; output document will be empty",
		})
		logger.Warn("session has no usable notes",
			logging.Int("streams", len(streams)),
			logging.String(logging.FieldEventType, "empty_session"),
			logging.String(logging.FieldImpact, "pipeline will complete with an empty score"),
		)
	}

	feat := <-featCh
	fingerprint := ""
	switch {
	case feat.err != nil:
		diags = append(diags, notes.Diagnostic{
			Stage:   "load",
			Source:  audiofeat.FeaturesFileName,
			Message: fmt.Sprintf("feature file ignored: %v", feat.err),
		})
		logger.Warn("feature file ignored",
			logging.Error(feat.err),
			logging.String(logging.FieldEventType, "features_rejected"),
			logging.String(logging.FieldImpact, "pedal inference falls back to note overlap"),
		)
	case feat.found:
		if storeErr := l.cache.Store(feat.set); storeErr != nil {
			logger.Warn("failed to cache audio features",
				logging.Error(storeErr),
				logging.String(logging.FieldEventType, "features_cache_failed"),
			)
		}
		fingerprint = feat.set.Fingerprint
	}
	if fingerprint == "" {
		paths := make([]string, 0, len(discovered))
		for _, src := range discovered {
			paths = append(paths, src.Path)
		}
		fingerprint, err = audiofeat.FingerprintFiles(paths...)
		if err != nil {
			return services.Wrap(services.ErrTransient, "load", "fingerprint session",
				"Failed to fingerprint session inputs", err)
		}
	}

	if strings.TrimSpace(item.PieceTitle) == "" {
		item.PieceTitle = InferTitle(sessionDir)
	}

	if err := l.updateProgress(ctx, item, "Staging normalized streams", progressPercentStaging); err != nil {
		return err
	}

	stagingRoot := item.StagingRoot(l.cfg.Paths.StagingDir)
	streamsPath := filepath.Join(stagingRoot, session.StreamsFile)
	doc := session.StreamsDocument{Title: item.PieceTitle, Streams: streams}
	if err := session.WriteArtifact(streamsPath, doc); err != nil {
		return services.Wrap(services.ErrTransient, "load", "stage streams",
			"Failed to write normalized stream artifact", err)
	}

	env.Fingerprint = fingerprint
	env.Artifacts.Streams = streamsPath
	env.ReplaceStageDiagnostics("load", diags...)
	encoded, err := env.Encode()
	if err != nil {
		return services.Wrap(services.ErrTransient, "load", "encode envelope",
			"Failed to encode session envelope", err)
	}
	item.EnvelopeData = encoded
	item.SourceCount = len(streams)
	item.NoteCount = noteCount
	item.FeatureFingerprint = fingerprint

	item.ProgressStage = "Loaded"
	item.ProgressPercent = 100
	item.ProgressMessage = fmt.Sprintf("%d stream(s), %d note(s)", len(streams), noteCount)
	if err := l.store.UpdateProgress(ctx, item); err != nil {
		return services.Wrap(services.ErrTransient, "load", "persist progress",
			"Failed to persist load progress", err)
	}

	logger.Info("load stage summary",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(stageStart)),
		logging.Int("streams", len(streams)),
		logging.Int("rejected_streams", rejected),
		logging.Int("notes", noteCount),
		logging.Int("dropped_notes", dropped),
		logging.Bool("features", feat.found && feat.err == nil),
		logging.String("fingerprint", shortFingerprint(fingerprint)),
	)
	return nil
}

// HealthCheck reports readiness for the load stage.
func (l *Loader) HealthCheck(ctx context.Context) stage.Health {
	const name = "load"
	if l == nil || l.cfg == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if l.store == nil {
		return stage.Unhealthy(name, "queue store unavailable")
	}
	if strings.TrimSpace(l.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	return stage.Healthy(name)
}

func (l *Loader) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) error {
	item.ProgressStage = progressStageLoading
	if strings.TrimSpace(message) != "" {
		item.ProgressMessage = message
	}
	if percent >= 0 {
		item.ProgressPercent = percent
	}
	if err := l.store.UpdateProgress(ctx, item); err != nil {
		return services.Wrap(services.ErrTransient, "load", "persist progress",
			"Failed to persist load progress", err)
	}
	return nil
}

// summarizeStream builds the envelope record for one parsed source.
func summarizeStream(src SourceFile, stream session.Stream, stats ParseStats) session.SourceSummary {
	mean := 0.0
	if len(stream.Notes) > 0 {
		for _, n := range stream.Notes {
			mean += n.Confidence
		}
		mean /= float64(len(stream.Notes))
	}
	return session.SourceSummary{
		Model:          stream.Model,
		Path:           src.Path,
		Format:         src.Format,
		Notes:          len(stream.Notes),
		Pedals:         len(stream.Pedals),
		Dropped:        stats.Dropped,
		MeanConfidence: mean,
	}
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
