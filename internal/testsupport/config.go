package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"renote/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LibraryDir = filepath.Join(base, "library")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.FeatureCacheDir = filepath.Join(base, "features")
	cfgVal.Paths.DBPath = filepath.Join(base, "staging", "queue.db")
	cfgVal.Logging.Format = "json"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWatchDir enables the intake watch folder under the test base directory.
func WithWatchDir() ConfigOption {
	return func(b *configBuilder) {
		dir := filepath.Join(b.baseDir, "watch")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			b.t.Fatalf("mkdir watch dir: %v", err)
		}
		b.cfg.Paths.WatchDir = dir
	}
}

// WithoutLibraryPublish disables copying finished scores into the library.
func WithoutLibraryPublish() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Output.PublishLibrary = false
	}
}

// WithSubdivisions overrides the quantizer's candidate grid set.
func WithSubdivisions(subdivisions ...int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Quantize.Subdivisions = subdivisions
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
