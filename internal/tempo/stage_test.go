package tempo

import (
	"context"
	"path/filepath"
	"testing"

	"renote/internal/audiofeat"
	"renote/internal/config"
	"renote/internal/notes"
	"renote/internal/queue"
	"renote/internal/services"
	"renote/internal/session"
	"renote/internal/stage"
	"renote/internal/testsupport"
)

func stageMerged(t *testing.T, cfg *config.Config, item *queue.Item, events []notes.NoteEvent) {
	t.Helper()
	path := filepath.Join(item.StagingRoot(cfg.Paths.StagingDir), session.MergedFile)
	if err := session.WriteArtifact(path, session.MergedDocument{Notes: events}); err != nil {
		t.Fatalf("stage merged artifact: %v", err)
	}
	env := session.Envelope{}
	env.Artifacts.Merged = path
	encoded, err := env.Encode()
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	item.EnvelopeData = encoded
}

func TestEstimatorExecuteStagesTempoCurve(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	estimator := NewEstimator(cfg, store, nil, nil)

	item := testsupport.NewSession(t, store, filepath.Join(testsupport.BaseDir(cfg), "sessions", "waltz"), "Waltz")
	stageMerged(t, cfg, item, notesAt(steadyOnsets(0, 0.5, 9)...))

	ctx := context.Background()
	if err := estimator.Prepare(ctx, item); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := estimator.Execute(ctx, item); err != nil {
		t.Fatalf("execute: %v", err)
	}

	env, err := stage.ParseEnvelope(item.EnvelopeData)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if env.Artifacts.Tempo == "" {
		t.Fatal("tempo artifact path not recorded")
	}
	var curve notes.TempoCurve
	if err := session.ReadArtifact(env.Artifacts.Tempo, &curve); err != nil {
		t.Fatalf("read tempo artifact: %v", err)
	}
	if len(curve.Points) != 2 {
		t.Fatalf("curve points = %+v", curve.Points)
	}
	approx(t, curve.Points[0].BPM, 120, "staged curve bpm")

	if env.Metrics.Tempo == nil {
		t.Fatal("tempo metrics missing from envelope")
	}
	if env.Metrics.Tempo.Segments != 1 || env.Metrics.Tempo.Fallback {
		t.Errorf("tempo metrics = %+v", env.Metrics.Tempo)
	}
	approx(t, env.Metrics.Tempo.MedianBPM, 120, "median bpm metric")
	if item.ProgressStage != "Estimated" || item.ProgressPercent != 100 {
		t.Errorf("progress = %s %.0f%%", item.ProgressStage, item.ProgressPercent)
	}
}

func TestEstimatorExecuteFallbackOnEmptyConsensus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	estimator := NewEstimator(cfg, store, nil, nil)

	item := testsupport.NewSession(t, store, filepath.Join(testsupport.BaseDir(cfg), "sessions", "silence"), "")
	stageMerged(t, cfg, item, nil)

	if err := estimator.Execute(context.Background(), item); err != nil {
		t.Fatalf("empty consensus must not fail the stage: %v", err)
	}

	env, err := stage.ParseEnvelope(item.EnvelopeData)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if env.Metrics.Tempo == nil || !env.Metrics.Tempo.Fallback {
		t.Fatalf("tempo metrics = %+v", env.Metrics.Tempo)
	}
	var curve notes.TempoCurve
	if err := session.ReadArtifact(env.Artifacts.Tempo, &curve); err != nil {
		t.Fatalf("read tempo artifact: %v", err)
	}
	if len(curve.Points) != 1 || curve.Points[0].BPM != cfg.Tempo.FallbackBPM {
		t.Errorf("fallback curve = %+v", curve.Points)
	}
	if len(env.Diagnostics) != 1 || env.Diagnostics[0].Stage != "tempo" {
		t.Errorf("diagnostics = %+v", env.Diagnostics)
	}
}

func TestEstimatorExecuteUsesCachedFeatures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cache := audiofeat.NewCache(cfg.Paths.FeatureCacheDir, nil)

	strength := make([]float64, 80)
	for i := range strength {
		strength[i] = 0.8
	}
	if err := cache.Store(&audiofeat.FeatureSet{Fingerprint: "cafef00d", FrameRate: 10, OnsetStrength: strength}); err != nil {
		t.Fatalf("store features: %v", err)
	}

	estimator := NewEstimator(cfg, store, cache, nil)
	item := testsupport.NewSession(t, store, filepath.Join(testsupport.BaseDir(cfg), "sessions", "prelude"), "")
	item.FeatureFingerprint = "cafef00d"
	stageMerged(t, cfg, item, notesAt(steadyOnsets(0, 0.5, 9)...))

	if err := estimator.Execute(context.Background(), item); err != nil {
		t.Fatalf("execute: %v", err)
	}
	env, err := stage.ParseEnvelope(item.EnvelopeData)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	approx(t, env.Metrics.Tempo.MedianBPM, 120, "median bpm with features")
}

func TestEstimatorExecuteWithoutMergedArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	estimator := NewEstimator(cfg, store, nil, nil)

	item := testsupport.NewSession(t, store, filepath.Join(testsupport.BaseDir(cfg), "sessions", "bare"), "")

	err := estimator.Execute(context.Background(), item)
	if err == nil {
		t.Fatal("expected error when envelope has no merged notes")
	}
	if status := services.FailureStatus(err); status != queue.StatusReview {
		t.Errorf("failure status = %s, want review", status)
	}
}

func TestEstimatorHealthCheck(t *testing.T) {
	var missing *Estimator
	if health := missing.HealthCheck(context.Background()); health.Ready {
		t.Error("nil estimator must not report ready")
	}

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	estimator := NewEstimator(cfg, store, nil, nil)
	if health := estimator.HealthCheck(context.Background()); !health.Ready {
		t.Errorf("configured estimator should be ready: %+v", health)
	}

	cfg.Tempo.MaxBPM = cfg.Tempo.MinBPM
	if health := estimator.HealthCheck(context.Background()); health.Ready {
		t.Error("empty tempo band must not report ready")
	}
}
