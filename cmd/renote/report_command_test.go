package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"renote/internal/session"
)

func TestReportCommandRequiresMerge(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	if _, err := env.store.NewSession(ctx, "/sessions/alpha", "Alpha"); err != nil {
		t.Fatalf("alpha: %v", err)
	}

	_, _, err := runCLI(t, []string{"report", "1"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "no agreement report yet") {
		t.Fatalf("err = %v, want missing report", err)
	}

	_, _, err = runCLI(t, []string{"report", "9"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "item 9 not found") {
		t.Fatalf("err = %v, want item 9 not found", err)
	}
}

func TestReportCommandRendersTables(t *testing.T) {
	env := setupCLITestEnv(t)
	sessionDir := filepath.Join(env.baseDir, "sessions", "clair_de_lune")
	writeSessionFixture(t, sessionDir)
	if _, _, err := runCLI(t, []string{"fuse", sessionDir}, env.configPath); err != nil {
		t.Fatalf("fuse: %v", err)
	}

	out, _, err := runCLI(t, []string{"report", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	requireContains(t, out, "Agreement report for item #1 (Clair De Lune)")
	requireContains(t, out, "Pairs:")
	requireContains(t, out, "Sources:")
	requireContains(t, out, "basic_pitch")
	requireContains(t, out, "onsets_frames")
	requireContains(t, out, "%")
}

func TestReportCommandJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	sessionDir := filepath.Join(env.baseDir, "sessions", "la_fille")
	writeSessionFixture(t, sessionDir)
	if _, _, err := runCLI(t, []string{"fuse", sessionDir}, env.configPath); err != nil {
		t.Fatalf("fuse: %v", err)
	}

	out, _, err := runCLI(t, []string{"report", "1", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("report --json: %v", err)
	}
	var report session.AgreementReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("parse output %q: %v", out, err)
	}
	if len(report.Pairs) != 1 {
		t.Fatalf("expected one source pair, got %d", len(report.Pairs))
	}
	pair := report.Pairs[0]
	if pair.SourceA != "basic_pitch" || pair.SourceB != "onsets_frames" {
		t.Fatalf("unexpected pair %+v", pair)
	}
	if pair.Matched == 0 || pair.Agreement <= 0.5 {
		t.Fatalf("expected strong agreement for near-identical streams, got %+v", pair)
	}
	if len(report.Sources) != 2 {
		t.Fatalf("expected two source summaries, got %d", len(report.Sources))
	}
}
