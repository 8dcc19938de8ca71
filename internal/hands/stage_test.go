package hands

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

func stageGrid(t *testing.T, cfg *config.Config, item *queue.Item, quantized []notes.QuantizedNote, events []notes.NoteEvent) {
	t.Helper()
	root := item.StagingRoot(cfg.Paths.StagingDir)
	mergedPath := filepath.Join(root, session.MergedFile)
	if err := session.WriteArtifact(mergedPath, session.MergedDocument{Notes: events}); err != nil {
		t.Fatalf("stage merged artifact: %v", err)
	}
	quantizedPath := filepath.Join(root, session.QuantizedFile)
	if err := session.WriteArtifact(quantizedPath, session.QuantizedDocument{Notes: quantized}); err != nil {
		t.Fatalf("stage quantized artifact: %v", err)
	}
	env := session.Envelope{}
	env.Artifacts.Merged = mergedPath
	env.Artifacts.Quantized = quantizedPath
	encoded, err := env.Encode()
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	item.EnvelopeData = encoded
}

func TestSplitterExecuteStagesAssignments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	splitter := NewSplitter(cfg, store, nil)

	item := testsupport.NewSession(t, store, filepath.Join(testsupport.BaseDir(cfg), "sessions", "etude"), "Etude")
	quantized, events := buildScore([]chordSpec{
		{measure: 0, beat: 0, onset: 1.0, dur: 1.0, pitches: []int{48, 50, 52, 76}},
	})
	stageGrid(t, cfg, item, quantized, events)

	ctx := context.Background()
	if err := splitter.Prepare(ctx, item); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := splitter.Execute(ctx, item); err != nil {
		t.Fatalf("execute: %v", err)
	}

	env, err := stage.ParseEnvelope(item.EnvelopeData)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if env.Artifacts.Hands == "" {
		t.Fatal("hands artifact path not recorded")
	}
	var doc session.HandsDocument
	if err := session.ReadArtifact(env.Artifacts.Hands, &doc); err != nil {
		t.Fatalf("read hands artifact: %v", err)
	}
	if len(doc.Assignments) != 4 {
		t.Fatalf("assignments = %+v", doc.Assignments)
	}

	if env.Metrics.Hands == nil {
		t.Fatal("hands metrics missing from envelope")
	}
	if env.Metrics.Hands.BassNotes != 3 || env.Metrics.Hands.TrebleNotes != 1 {
		t.Errorf("hands metrics = %+v", env.Metrics.Hands)
	}
	if item.ProgressStage != "Split" || item.ProgressPercent != 100 {
		t.Errorf("progress = %s %.0f%%", item.ProgressStage, item.ProgressPercent)
	}
}

func TestSplitterExecuteWithoutQuantizedArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	splitter := NewSplitter(cfg, store, nil)

	item := testsupport.NewSession(t, store, filepath.Join(testsupport.BaseDir(cfg), "sessions", "bare"), "")

	err := splitter.Execute(context.Background(), item)
	if err == nil {
		t.Fatal("expected error when envelope has no quantized notes")
	}
	if status := services.FailureStatus(err); status != queue.StatusReview {
		t.Errorf("failure status = %s, want review", status)
	}
}

func TestSplitterHealthCheck(t *testing.T) {
	var missing *Splitter
	if health := missing.HealthCheck(context.Background()); health.Ready {
		t.Error("nil splitter must not report ready")
	}

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	splitter := NewSplitter(cfg, store, nil)
	if health := splitter.HealthCheck(context.Background()); !health.Ready {
		t.Errorf("configured splitter should be ready: %+v", health)
	}

	cfg.Hands.MaxSpanSemitones = 0
	if health := splitter.HealthCheck(context.Background()); health.Ready {
		t.Error("zero hand span must not report ready")
	}
}
