package audiofeat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"renote/internal/logging"
)

// Cache provides thread-safe access to extracted feature sets keyed by
// fingerprint. A set is written once, when a session is first loaded, and
// shared read-only by every job that references the same recording.
type Cache struct {
	dir    string
	logger *slog.Logger
	mu     sync.RWMutex
	sets   map[string]*FeatureSet
}

// NewCache creates a cache rooted at dir. If dir is empty the cache is
// non-functional and all operations become no-ops. Entry files are created
// lazily on first Store call.
func NewCache(dir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{
		dir:    strings.TrimSpace(dir),
		logger: logging.NewComponentLogger(logger, "audiofeat"),
		sets:   make(map[string]*FeatureSet),
	}
}

// Lookup returns the cached feature set for a fingerprint. Memory is checked
// first, then the on-disk entry. Misses are not errors.
func (c *Cache) Lookup(fingerprint string) (*FeatureSet, bool) {
	fingerprint = strings.TrimSpace(fingerprint)
	if c == nil || fingerprint == "" || c.dir == "" {
		return nil, false
	}

	c.mu.RLock()
	set, found := c.sets[fingerprint]
	c.mu.RUnlock()
	if found {
		return set, true
	}

	set, err := c.loadEntry(fingerprint)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("failed to load cached features",
				logging.String(logging.FieldEventType, "audiofeat_load_failed"),
				logging.String("fingerprint", fingerprint),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the cache entry to force re-extraction"),
				logging.String(logging.FieldImpact, "stages fall back to note-derived features"))
		}
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.sets[fingerprint]; ok {
		return existing, true
	}
	c.sets[fingerprint] = set
	return set, true
}

// Store persists a feature set and memoizes it for later lookups. Storing the
// same fingerprint twice keeps the first set so shared readers never observe
// a swap.
func (c *Cache) Store(set *FeatureSet) error {
	if c == nil || set == nil {
		return nil
	}
	fingerprint := strings.TrimSpace(set.Fingerprint)
	if fingerprint == "" {
		return errors.New("feature fingerprint cannot be empty")
	}
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.sets[fingerprint]; exists {
		return nil
	}
	if err := c.saveEntry(fingerprint, set); err != nil {
		return fmt.Errorf("persist features: %w", err)
	}
	c.sets[fingerprint] = set

	c.logger.Debug("cached audio features",
		logging.String("fingerprint", fingerprint),
		logging.Int("resonance_frames", len(set.Resonance)),
		logging.Int("onset_frames", len(set.OnsetStrength)))
	return nil
}

// Count returns the number of sets held in memory.
func (c *Cache) Count() int {
	if c == nil || c.dir == "" {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sets)
}

func (c *Cache) loadEntry(fingerprint string) (*FeatureSet, error) {
	data, err := os.ReadFile(c.entryPath(fingerprint))
	if err != nil {
		return nil, err
	}
	var set FeatureSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse cache entry: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache entry: %w", err)
	}
	return &set, nil
}

func (c *Cache) saveEntry(fingerprint string, set *FeatureSet) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	path := c.entryPath(fingerprint)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// entryPath maps a fingerprint to its cache file. Fingerprints are hex
// digests, but the name is sanitized anyway so a corrupted envelope can never
// escape the cache directory.
func (c *Cache) entryPath(fingerprint string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(fingerprint) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if name == "" {
		name = "unknown"
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return filepath.Join(c.dir, name+".json")
}
