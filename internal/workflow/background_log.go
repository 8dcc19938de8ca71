package workflow

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"renote/internal/config"
	"renote/internal/logging"
	"renote/internal/queue"
)

const backgroundSlugLimit = 60

// BackgroundLogger manages dedicated log files for per-item processing.
type BackgroundLogger struct {
	baseDir string
	hub     *logging.StreamHub
	cfg     *config.Config
}

// NewBackgroundLogger creates a new background logger.
func NewBackgroundLogger(cfg *config.Config, hub *logging.StreamHub) *BackgroundLogger {
	dir := ""
	if cfg != nil && cfg.Paths.LogDir != "" {
		dir = filepath.Join(cfg.Paths.LogDir, "background")
	}
	return &BackgroundLogger{
		baseDir: dir,
		hub:     hub,
		cfg:     cfg,
	}
}

// Ensure prepares the log directory and file path for an item.
func (b *BackgroundLogger) Ensure(item *queue.Item) (string, bool, error) {
	if item == nil {
		return "", false, fmt.Errorf("queue item is nil")
	}
	if strings.TrimSpace(b.baseDir) == "" {
		return "", false, fmt.Errorf("background log directory not configured")
	}
	created := false
	if strings.TrimSpace(item.BackgroundLogPath) == "" {
		filename := b.filename(item)
		if filename == "" {
			filename = fmt.Sprintf("item-%d.log", item.ID)
		}
		item.BackgroundLogPath = filepath.Join(b.baseDir, filename)
		created = true
	}
	if err := os.MkdirAll(filepath.Dir(item.BackgroundLogPath), 0o755); err != nil {
		return "", false, fmt.Errorf("ensure background log directory: %w", err)
	}
	return item.BackgroundLogPath, created, nil
}

// CreateHandler builds a slog.Handler writing to the specified path.
func (b *BackgroundLogger) CreateHandler(path string) (slog.Handler, error) {
	level := "info"
	if b.cfg != nil && strings.TrimSpace(b.cfg.Logging.Level) != "" {
		level = b.cfg.Logging.Level
	}
	// Item logs stay JSON regardless of the console format so they can be
	// grepped and shipped; they still publish to the daemon stream hub so
	// recent per-item events show up in queue health summaries.
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           "json",
		OutputPaths:      []string{path},
		ErrorOutputPaths: []string{path},
		Stream:           b.hub,
	})
	if err != nil {
		return nil, err
	}
	return logger.Handler(), nil
}

func (b *BackgroundLogger) filename(item *queue.Item) string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	fingerprint := strings.TrimSpace(item.FeatureFingerprint)
	if len(fingerprint) > 12 {
		fingerprint = fingerprint[:12]
	}
	if fingerprint == "" {
		fingerprint = fmt.Sprintf("item-%d", item.ID)
	}
	title := titleSlug(item.PieceTitle)
	if title == "" {
		title = "untitled"
	}
	return fmt.Sprintf("%s-%s-%s.log", timestamp, fingerprint, title)
}

// titleSlug lowercases the piece title and keeps alphanumerics, collapsing
// everything else into single hyphens.
func titleSlug(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	var builder strings.Builder
	builder.Grow(len(value))
	lastDash := false
	for _, r := range value {
		if builder.Len() >= backgroundSlugLimit {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				builder.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(builder.String(), "-")
}
