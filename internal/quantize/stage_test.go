package quantize

import (
	"context"
	"path/filepath"
	"testing"

	"renote/internal/config"
	"renote/internal/notes"
	"renote/internal/queue"
	"renote/internal/services"
	"renote/internal/session"
	"renote/internal/stage"
	"renote/internal/testsupport"
)

func stageInputs(t *testing.T, cfg *config.Config, item *queue.Item, events []notes.NoteEvent, curve notes.TempoCurve) {
	t.Helper()
	root := item.StagingRoot(cfg.Paths.StagingDir)
	mergedPath := filepath.Join(root, session.MergedFile)
	if err := session.WriteArtifact(mergedPath, session.MergedDocument{Notes: events}); err != nil {
		t.Fatalf("stage merged artifact: %v", err)
	}
	tempoPath := filepath.Join(root, session.TempoFile)
	if err := session.WriteArtifact(tempoPath, curve); err != nil {
		t.Fatalf("stage tempo artifact: %v", err)
	}
	env := session.Envelope{}
	env.Artifacts.Merged = mergedPath
	env.Artifacts.Tempo = tempoPath
	encoded, err := env.Encode()
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	item.EnvelopeData = encoded
}

func TestQuantizerExecuteStagesGrid(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	quantizer := NewQuantizer(cfg, store, nil)

	item := testsupport.NewSession(t, store, filepath.Join(testsupport.BaseDir(cfg), "sessions", "nocturne"), "Nocturne")
	stageInputs(t, cfg, item, []notes.NoteEvent{
		mkEvent("m_0000", 1.00, 1.50),
		mkEvent("m_0001", 1.75, 2.25),
	}, notes.ConstantTempo(120))

	ctx := context.Background()
	if err := quantizer.Prepare(ctx, item); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := quantizer.Execute(ctx, item); err != nil {
		t.Fatalf("execute: %v", err)
	}

	env, err := stage.ParseEnvelope(item.EnvelopeData)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if env.Artifacts.Quantized == "" {
		t.Fatal("quantized artifact path not recorded")
	}
	var doc session.QuantizedDocument
	if err := session.ReadArtifact(env.Artifacts.Quantized, &doc); err != nil {
		t.Fatalf("read quantized artifact: %v", err)
	}
	if len(doc.Notes) != 2 {
		t.Fatalf("quantized notes = %+v", doc.Notes)
	}
	if doc.Notes[0].NoteID != "m_0000" || doc.Notes[0].Measure != 0 {
		t.Errorf("first note = %+v", doc.Notes[0])
	}
	if !doc.Notes[1].Tie {
		t.Error("note crossing the barline should persist with a tie")
	}

	if env.Metrics.Quantize == nil {
		t.Fatal("quantize metrics missing from envelope")
	}
	if env.Metrics.Quantize.Notes != 2 || env.Metrics.Quantize.TiedNotes != 1 {
		t.Errorf("quantize metrics = %+v", env.Metrics.Quantize)
	}
	if item.ProgressStage != "Quantized" || item.ProgressPercent != 100 {
		t.Errorf("progress = %s %.0f%%", item.ProgressStage, item.ProgressPercent)
	}
}

func TestQuantizerExecuteRerunReplacesDiagnostics(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	quantizer := NewQuantizer(cfg, store, nil)

	item := testsupport.NewSession(t, store, filepath.Join(testsupport.BaseDir(cfg), "sessions", "grace"), "")
	stageInputs(t, cfg, item, []notes.NoteEvent{mkEvent("m_0000", 1.00, 1.01)}, notes.ConstantTempo(120))

	ctx := context.Background()
	for run := 0; run < 2; run++ {
		if err := quantizer.Execute(ctx, item); err != nil {
			t.Fatalf("execute run %d: %v", run, err)
		}
	}

	env, err := stage.ParseEnvelope(item.EnvelopeData)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if len(env.Diagnostics) != 1 {
		t.Fatalf("diagnostics accumulated across reruns: %+v", env.Diagnostics)
	}
	if env.Diagnostics[0].Stage != "quantize" || env.Diagnostics[0].NoteRef != "m_0000" {
		t.Errorf("diagnostic = %+v", env.Diagnostics[0])
	}
	if env.Metrics.Quantize == nil || env.Metrics.Quantize.ClampedNotes != 1 {
		t.Errorf("quantize metrics = %+v", env.Metrics.Quantize)
	}
}

func TestQuantizerExecuteWithoutTempoArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	quantizer := NewQuantizer(cfg, store, nil)

	item := testsupport.NewSession(t, store, filepath.Join(testsupport.BaseDir(cfg), "sessions", "untimed"), "")
	mergedPath := filepath.Join(item.StagingRoot(cfg.Paths.StagingDir), session.MergedFile)
	if err := session.WriteArtifact(mergedPath, session.MergedDocument{Notes: []notes.NoteEvent{mkEvent("m_0000", 0, 0.5)}}); err != nil {
		t.Fatalf("stage merged artifact: %v", err)
	}
	env := session.Envelope{}
	env.Artifacts.Merged = mergedPath
	encoded, err := env.Encode()
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	item.EnvelopeData = encoded

	err = quantizer.Execute(context.Background(), item)
	if err == nil {
		t.Fatal("expected error when envelope has no tempo curve")
	}
	if status := services.FailureStatus(err); status != queue.StatusReview {
		t.Errorf("failure status = %s, want review", status)
	}
}

func TestQuantizerExecuteWithoutMergedArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	quantizer := NewQuantizer(cfg, store, nil)

	item := testsupport.NewSession(t, store, filepath.Join(testsupport.BaseDir(cfg), "sessions", "bare"), "")

	err := quantizer.Execute(context.Background(), item)
	if err == nil {
		t.Fatal("expected error when envelope has no merged notes")
	}
	if status := services.FailureStatus(err); status != queue.StatusReview {
		t.Errorf("failure status = %s, want review", status)
	}
}

func TestQuantizerHealthCheck(t *testing.T) {
	var missing *Quantizer
	if health := missing.HealthCheck(context.Background()); health.Ready {
		t.Error("nil quantizer must not report ready")
	}

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	quantizer := NewQuantizer(cfg, store, nil)
	if health := quantizer.HealthCheck(context.Background()); !health.Ready {
		t.Errorf("configured quantizer should be ready: %+v", health)
	}

	cfg.Quantize.Subdivisions = nil
	if health := quantizer.HealthCheck(context.Background()); health.Ready {
		t.Error("missing subdivision candidates must not report ready")
	}
}
