package workflow_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"renote/internal/config"
	"renote/internal/logging"
	"renote/internal/queue"
	"renote/internal/services"
	"renote/internal/stage"
	"renote/internal/testsupport"
	"renote/internal/workflow"
)

type stubStage struct {
	name        string
	prepareHook func(*queue.Item)
	executeHook func(*queue.Item)
	prepareErr  error
	executeErr  error
	health      stage.Health
}

func newStubStage(name string) *stubStage {
	return &stubStage{name: name, health: stage.Healthy(name)}
}

func (s *stubStage) Prepare(_ context.Context, item *queue.Item) error {
	if s.prepareHook != nil {
		s.prepareHook(item)
	}
	return s.prepareErr
}

func (s *stubStage) Execute(_ context.Context, item *queue.Item) error {
	if s.executeHook != nil {
		s.executeHook(item)
	}
	return s.executeErr
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return s.health
}

type stageRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *stageRecorder) note(name string) {
	r.mu.Lock()
	r.order = append(r.order, name)
	r.mu.Unlock()
}

func (r *stageRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func managerConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 0
	return cfg
}

func waitForStatus(t *testing.T, store *queue.Store, id int64, want queue.Status) *queue.Item {
	t.Helper()
	deadline := time.After(30 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for status %s", want)
		default:
		}
		updated, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if updated.Status == want {
			return updated
		}
		if updated.Status == queue.StatusFailed && want != queue.StatusFailed {
			t.Fatalf("item failed while waiting for %s: %s", want, updated.ErrorMessage)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestManagerProcessesItemAcrossLanes(t *testing.T) {
	cfg := managerConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	recorder := &stageRecorder{}
	set := workflow.StageSet{}
	wire := func(name string, slot *stage.Handler) {
		stub := newStubStage(name)
		stub.executeHook = func(*queue.Item) { recorder.note(name) }
		*slot = stub
	}
	wire("load", &set.Loader)
	wire("merge", &set.Merger)
	wire("tempo", &set.TempoEstimator)
	wire("quantize", &set.Quantizer)
	wire("pedal", &set.PedalInferrer)
	wire("hands", &set.HandSplitter)
	wire("assemble", &set.Assembler)

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(set)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	item := testsupport.NewSession(t, store, filepath.Join(testsupport.BaseDir(cfg), "session"), "Gnossienne No. 1")

	final := waitForStatus(t, store, item.ID, queue.StatusCompleted)
	if final.ProgressStage != "Completed" {
		t.Fatalf("expected progress stage Completed, got %q", final.ProgressStage)
	}
	if final.ProgressPercent != 100 {
		t.Fatalf("expected progress 100, got %v", final.ProgressPercent)
	}
	if final.LastHeartbeat != nil {
		t.Fatal("expected heartbeat cleared after completion")
	}
	if final.BackgroundLogPath == "" {
		t.Fatal("expected background log path to be assigned")
	}

	want := []string{"load", "merge", "tempo", "quantize", "pedal", "hands", "assemble"}
	got := recorder.snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected %d stage executions, got %v", len(want), got)
	}
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("stage order mismatch at %d: want %s, got %v", i, name, got)
		}
	}
}

func TestManagerRoutesValidationFailureToReview(t *testing.T) {
	cfg := managerConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	failing := newStubStage("merge")
	failing.executeErr = services.Wrap(services.ErrValidation, "merge", "execute", "no usable source streams", nil)

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(workflow.StageSet{Merger: failing})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	item := testsupport.NewSession(t, store, filepath.Join(testsupport.BaseDir(cfg), "session"), "Empty Session")
	item.Status = queue.StatusLoaded
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	updated := waitForStatus(t, store, item.ID, queue.StatusReview)
	if !updated.NeedsReview {
		t.Fatal("expected NeedsReview to be set")
	}
	if !strings.Contains(updated.ReviewReason, "no usable source streams") {
		t.Fatalf("unexpected review reason %q", updated.ReviewReason)
	}
	if updated.ProgressStage != "Needs review" {
		t.Fatalf("expected progress stage 'Needs review', got %q", updated.ProgressStage)
	}
	if updated.ErrorMessage == "" {
		t.Fatal("expected error message to be populated")
	}
}

func TestManagerFailureDefaultsToFailed(t *testing.T) {
	cfg := managerConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	failing := newStubStage("quantize")
	failing.executeErr = fmt.Errorf("grid solver crashed")

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(workflow.StageSet{Quantizer: failing})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	item := testsupport.NewSession(t, store, filepath.Join(testsupport.BaseDir(cfg), "session"), "Crash Test")
	item.Status = queue.StatusTempoEstimated
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	updated := waitForStatus(t, store, item.ID, queue.StatusFailed)
	if updated.ProgressStage != "Failed" {
		t.Fatalf("expected progress stage Failed, got %q", updated.ProgressStage)
	}
	if !strings.Contains(updated.ErrorMessage, "grid solver crashed") {
		t.Fatalf("unexpected error message %q", updated.ErrorMessage)
	}
	if updated.NeedsReview {
		t.Fatal("transient failures should not be flagged for review")
	}
}

func TestManagerPrepareFailureAlsoClassified(t *testing.T) {
	cfg := managerConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	failing := newStubStage("load")
	failing.prepareErr = services.Wrap(services.ErrConfiguration, "load", "prepare", "staging directory missing", nil)

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(workflow.StageSet{Loader: failing})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	item := testsupport.NewSession(t, store, filepath.Join(testsupport.BaseDir(cfg), "session"), "Misconfigured")

	updated := waitForStatus(t, store, item.ID, queue.StatusReview)
	if !strings.Contains(updated.ReviewReason, "staging directory missing") {
		t.Fatalf("unexpected review reason %q", updated.ReviewReason)
	}
}

func TestManagerStatusIncludesStageHealth(t *testing.T) {
	cfg := managerConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	handler := newStubStage("load")
	handler.health = stage.Unhealthy(handler.name, "staging directory unwritable")

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(workflow.StageSet{Loader: handler})

	status := mgr.Status(context.Background())
	if status.Running {
		t.Fatal("manager should not report running before Start")
	}
	health, ok := status.StageHealth[handler.name]
	if !ok {
		t.Fatalf("expected stage health entry for %s", handler.name)
	}
	if health.Ready {
		t.Fatalf("expected not ready health, got %+v", health)
	}
	if health.Detail != "staging directory unwritable" {
		t.Fatalf("unexpected health detail %q", health.Detail)
	}
}

func TestManagerStartRequiresStages(t *testing.T) {
	cfg := managerConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	if err := mgr.Start(context.Background()); err == nil {
		mgr.Stop()
		t.Fatal("expected Start to fail without configured stages")
	}
}

func TestManagerReclaimsStaleProcessing(t *testing.T) {
	cfg := managerConfig(t)
	cfg.Workflow.HeartbeatTimeout = 1
	store := testsupport.MustOpenStore(t, cfg)

	merger := newStubStage("merge")

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(workflow.StageSet{Merger: merger})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	item := testsupport.NewSession(t, store, filepath.Join(testsupport.BaseDir(cfg), "session"), "Abandoned")
	stale := time.Now().UTC().Add(-time.Hour)
	item.Status = queue.StatusMerging
	item.LastHeartbeat = &stale
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	updated := waitForStatus(t, store, item.ID, queue.StatusMerged)
	if updated.LastHeartbeat != nil {
		t.Fatal("expected heartbeat cleared after reprocessing")
	}
}
