package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a thread-safe wrapper around bytes.Buffer for use in tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ io.Writer = (*syncBuffer)(nil)

func TestDaemonCommandRunsUntilCancelled(t *testing.T) {
	env := setupCLITestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--config", env.configPath, "daemon"})
	cmd.SetContext(ctx)
	cmd.SetOut(&syncBuffer{})
	cmd.SetErr(&syncBuffer{})

	done := make(chan error, 1)
	go func() {
		done <- cmd.Execute()
	}()

	pidPath := filepath.Join(env.cfg.Paths.LogDir, "renote.pid")
	waitFor(t, 5*time.Second, func() bool {
		_, err := os.Stat(pidPath)
		return err == nil
	})
	waitFor(t, 5*time.Second, func() bool {
		_, err := os.Stat(env.cfg.DaemonLockPath())
		return err == nil
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("daemon execute: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not exit after cancel")
	}

	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed on shutdown, stat err = %v", err)
	}
}

func TestEnsureCurrentLogPointer(t *testing.T) {
	logDir := t.TempDir()

	first := filepath.Join(logDir, "renote-20260101T000000.000Z.log")
	if err := os.WriteFile(first, []byte("first\n"), 0o644); err != nil {
		t.Fatalf("write first: %v", err)
	}
	if err := ensureCurrentLogPointer(logDir, first); err != nil {
		t.Fatalf("ensureCurrentLogPointer: %v", err)
	}

	current := filepath.Join(logDir, "renote.log")
	data, err := os.ReadFile(current)
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if !strings.Contains(string(data), "first") {
		t.Fatalf("pointer content = %q", data)
	}

	second := filepath.Join(logDir, "renote-20260102T000000.000Z.log")
	if err := os.WriteFile(second, []byte("second\n"), 0o644); err != nil {
		t.Fatalf("write second: %v", err)
	}
	if err := ensureCurrentLogPointer(logDir, second); err != nil {
		t.Fatalf("repoint: %v", err)
	}
	data, err = os.ReadFile(current)
	if err != nil {
		t.Fatalf("read repointed: %v", err)
	}
	if !strings.Contains(string(data), "second") {
		t.Fatalf("repointed content = %q", data)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renote.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" || strings.ContainsAny(text, "abcdefghijklmnopqrstuvwxyz") {
		t.Fatalf("pid content = %q", data)
	}

	if err := writePIDFile(""); err != nil {
		t.Fatalf("empty path should be a no-op, got %v", err)
	}
}
